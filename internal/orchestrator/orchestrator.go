// Package orchestrator ties routing, pipeline execution and version control
// together into the four ways mergepipe is invoked: as a git merge driver,
// as a re-merge tool, as a git merge tool, and as a multi-branch merge.
//
// Each entry point reports success as a bool; the full result of a failed
// merge is logged.
package orchestrator

import (
	"os"

	"github.com/Iron-Ham/mergepipe/internal/errors"
	"github.com/Iron-Ham/mergepipe/internal/logging"
	"github.com/Iron-Ham/mergepipe/internal/merge"
	"github.com/Iron-Ham/mergepipe/internal/pipeline"
	"github.com/Iron-Ham/mergepipe/internal/router"
	"github.com/Iron-Ham/mergepipe/internal/vcs"
)

// RepositoryOpener opens the repository containing dir.
type RepositoryOpener func(dir string) (vcs.Repository, error)

// Orchestrator runs configured pipelines for files and branches.
type Orchestrator struct {
	config   *pipeline.Configuration
	executor *pipeline.Executor
	logger   *logging.Logger
	open     RepositoryOpener
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRepositoryOpener replaces how multi-branch merges open repositories.
func WithRepositoryOpener(open RepositoryOpener) Option {
	return func(o *Orchestrator) {
		if open != nil {
			o.open = open
		}
	}
}

// WithGitBinary opens repositories with the given git executable.
func WithGitBinary(binary string) Option {
	return func(o *Orchestrator) {
		o.open = func(dir string) (vcs.Repository, error) {
			return vcs.Open(dir, binary, o.logger)
		}
	}
}

// New creates an orchestrator for cfg. A nil cfg behaves like an empty
// configuration: every file fails for lack of a pipeline.
func New(cfg *pipeline.Configuration, executor *pipeline.Executor, opts ...Option) *Orchestrator {
	if cfg == nil {
		cfg = pipeline.NewConfiguration()
	}
	o := &Orchestrator{
		config:   cfg,
		executor: executor,
		logger:   logging.NopLogger(),
	}
	WithGitBinary(vcs.DefaultBinary)(o)
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// MergeFile merges a file as a git merge driver: the result is written over
// current.
func (o *Orchestrator) MergeFile(base, current, other, relativePath string) bool {
	return o.mergeSingle(merge.NewDriverContext(base, current, other, relativePath)) == nil
}

// ReMerge merges current in place, using its own path for routing.
func (o *Orchestrator) ReMerge(base, current, other string) bool {
	return o.mergeSingle(merge.NewDriverContext(base, current, other, current)) == nil
}

// MergeTool merges local and remote into merged. There is no base.
func (o *Orchestrator) MergeTool(local, remote, merged string) bool {
	return o.mergeSingle(merge.NewToolContext(local, remote, merged)) == nil
}

func (o *Orchestrator) mergeSingle(ctx *merge.Context) error {
	logger := o.logger.WithFile(ctx.RelativePath)

	p := router.Find(o.config, ctx)
	if p == nil {
		err := errors.NewMergeError("no pipeline found", errors.ErrNoPipeline).WithFile(ctx.RelativePath)
		logger.Error("merge failed", "error", err)
		return err
	}

	logger.Info("merging file", "pipeline", p.Name(), "mode", ctx.Kind.String())
	result := o.executor.Execute(p, ctx)
	if !result.Succeeded() {
		err := resultError(result).WithFile(ctx.RelativePath).WithPipeline(p.Name())
		logFailure(logger, result, err)
		return err
	}

	if err := deliver(result, ctx.OutputPath()); err != nil {
		err = errors.NewMergeError("failed to write merge result", err).WithFile(ctx.RelativePath).WithPipeline(p.Name())
		logger.Error("merge failed", "error", err)
		return err
	}

	logger.Info("merge successful", "message", result.Message)
	return nil
}

// deliver copies the result into the output slot when an operation left it
// elsewhere, e.g. keep-base answering with the base file.
func deliver(result merge.Result, slot string) error {
	if result.OutputPath == "" || slot == "" || result.OutputPath == slot {
		return nil
	}
	data, err := os.ReadFile(result.OutputPath)
	if err != nil {
		return err
	}
	return os.WriteFile(slot, data, 0644)
}

func resultError(result merge.Result) *errors.MergeError {
	cause := result.Err
	if cause == nil && result.Status == merge.StatusConflict {
		cause = errors.ErrMergeConflict
	}
	return errors.NewMergeError(result.Status.String()+": "+result.Message, cause)
}

func logFailure(logger *logging.Logger, result merge.Result, err error) {
	args := []any{
		"status", result.Status.String(),
		"message", result.Message,
		"error", err,
	}
	if result.Status == merge.StatusConflict {
		logger.Warn("merge produced conflicts", args...)
		return
	}
	logger.Error("merge failed", args...)
}
