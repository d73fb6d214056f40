// Package router picks the pipeline that handles a file.
package router

import (
	"github.com/Iron-Ham/mergepipe/internal/merge"
	"github.com/Iron-Ham/mergepipe/internal/pipeline"
	"github.com/Iron-Ham/mergepipe/internal/rule"
)

// Find returns the first pipeline in cfg containing a file pattern rule that
// matches the file's base name, else the first pipeline, else nil.
//
// Matching is against the base name only, so a pattern with a directory
// part (src/*.java) never selects a pipeline here even though the same rule
// matches the full path when the pipeline's steps are evaluated.
func Find(cfg *pipeline.Configuration, ctx *merge.Context) pipeline.Pipeline {
	if cfg == nil || len(cfg.Pipelines) == 0 {
		return nil
	}

	byName := ctx.WithRelativePath(ctx.FileName())
	matches := func(fp *rule.FilePattern) bool {
		return rule.Applies(fp, byName)
	}

	for _, p := range cfg.Pipelines {
		if pipeline.ContainsFilePattern(p, matches) {
			return p
		}
	}
	return cfg.Pipelines[0]
}
