// Package operation defines merge operations and the registry that resolves
// them by name.
//
// An operation is a stateless capability: it reads the revisions described by
// a merge.Context, writes a result to the context's output slot and reports a
// merge.Result. Operations never panic on bad input; an error return or a
// FAILURE result are both turned into ERROR results by the pipeline executor.
//
// # Built-in operations
//
//   - take-current: keep the current revision
//   - take-other: replace the output with the other revision
//   - keep-base: restore the base revision (or delete the file when the base
//     does not exist)
//   - git-merge: tree-level merge using one of the strategies in vcs
//   - command-line-merge: run an external command with path placeholders
package operation

import (
	"os"
	"time"

	"github.com/Iron-Ham/mergepipe/internal/logging"
	"github.com/Iron-Ham/mergepipe/internal/merge"
	"github.com/Iron-Ham/mergepipe/internal/vcs"
)

// Operation is a named merge capability.
type Operation interface {
	// Name is the identifier pipelines use to refer to the operation.
	Name() string
	// Description is a short human-readable summary.
	Description() string
	// Execute merges the file described by ctx. params are the step's
	// ordered parameters.
	Execute(ctx *merge.Context, params []string) (merge.Result, error)
}

// DefaultCommandTimeout bounds command-line-merge when no timeout is given.
const DefaultCommandTimeout = 60 * time.Second

// Deps carries the collaborators built-in operations share.
type Deps struct {
	Logger *logging.Logger

	// GitBinary is the git executable used for standalone git-merge.
	GitBinary string

	// DefaultStrategy is used by git-merge when a step gives no strategy.
	DefaultStrategy string

	// CommandTimeout is used by command-line-merge when a step gives no
	// timeout.
	CommandTimeout time.Duration

	// NewTempRepository creates the scratch repository for a standalone
	// git-merge. Tests replace it to observe cleanup.
	NewTempRepository func() (*vcs.TempRepository, error)
}

// withDefaults fills unset fields.
func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = logging.NopLogger()
	}
	if d.GitBinary == "" {
		d.GitBinary = vcs.DefaultBinary
	}
	if d.DefaultStrategy == "" {
		d.DefaultStrategy = vcs.DefaultStrategy
	}
	if d.CommandTimeout <= 0 {
		d.CommandTimeout = DefaultCommandTimeout
	}
	if d.NewTempRepository == nil {
		binary, logger := d.GitBinary, d.Logger
		d.NewTempRepository = func() (*vcs.TempRepository, error) {
			return vcs.NewTempRepository(binary, logger)
		}
	}
	return d
}

// copyFile replaces dst with the contents of src. A src equal to dst is a
// no-op.
func copyFile(src, dst string) error {
	if src == dst {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

// removeFile deletes path, treating a missing file as success.
func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
