package operation

import (
	"github.com/Iron-Ham/mergepipe/internal/errors"
	"github.com/Iron-Ham/mergepipe/internal/logging"
	"github.com/Iron-Ham/mergepipe/internal/merge"
)

func missingRevision(rev merge.Revision) merge.Result {
	return merge.Failure(rev.String()+" revision does not exist", errors.ErrMissingRevision)
}

func noOutput() merge.Result {
	return merge.Failure("no output location", errors.ErrInvalidInput)
}

// TakeCurrent resolves a file to its current revision.
type TakeCurrent struct {
	logger *logging.Logger
}

func (*TakeCurrent) Name() string { return "take-current" }

func (*TakeCurrent) Description() string {
	return "Uses the current version of the file, ignoring the other version"
}

func (o *TakeCurrent) Execute(ctx *merge.Context, _ []string) (merge.Result, error) {
	if !ctx.Has(merge.RevisionCurrent) {
		return missingRevision(merge.RevisionCurrent), nil
	}

	out := ctx.CurrentPath
	if ctx.Kind == merge.KindTool {
		out = ctx.OutputPath()
		if out == "" {
			return noOutput(), nil
		}
		if err := copyFile(ctx.CurrentPath, out); err != nil {
			return merge.Result{}, errors.Wrap(err, "failed to copy current revision")
		}
	}

	o.logger.Debug("kept current revision", "output", out)
	return merge.Success("take-current operation successful", out), nil
}

// TakeOther resolves a file to the other revision.
type TakeOther struct {
	logger *logging.Logger
}

func (*TakeOther) Name() string { return "take-other" }

func (*TakeOther) Description() string {
	return "Uses the other version of the file, ignoring the current version"
}

func (o *TakeOther) Execute(ctx *merge.Context, _ []string) (merge.Result, error) {
	if !ctx.Has(merge.RevisionOther) {
		return missingRevision(merge.RevisionOther), nil
	}

	out := ctx.OutputPath()
	if out == "" {
		return noOutput(), nil
	}
	if err := copyFile(ctx.OtherPath, out); err != nil {
		return merge.Result{}, errors.Wrap(err, "failed to copy other revision")
	}

	o.logger.Debug("took other revision", "output", out)
	return merge.Success("take-other operation successful", out), nil
}

// KeepBase restores the base revision. A file without a base did not exist
// before either side touched it, so keeping the base means it should not
// exist: the result has no output and, in tool mode, the merged file is
// removed.
type KeepBase struct {
	logger *logging.Logger
}

func (*KeepBase) Name() string { return "keep-base" }

func (*KeepBase) Description() string {
	return "Uses the base version of the file, ignoring the current and other versions"
}

func (o *KeepBase) Execute(ctx *merge.Context, _ []string) (merge.Result, error) {
	if !ctx.Has(merge.RevisionBase) {
		if ctx.Kind == merge.KindTool && ctx.MergedPath != "" {
			if err := removeFile(ctx.MergedPath); err != nil {
				return merge.Result{}, errors.Wrap(err, "failed to remove merged output")
			}
		}
		o.logger.Debug("base revision absent, file should not exist")
		return merge.Success("base revision absent, file should not exist", ""), nil
	}

	out := ctx.BasePath
	if ctx.Kind == merge.KindTool {
		out = ctx.OutputPath()
		if out == "" {
			return noOutput(), nil
		}
		if err := copyFile(ctx.BasePath, out); err != nil {
			return merge.Result{}, errors.Wrap(err, "failed to copy base revision")
		}
	}

	o.logger.Debug("kept base revision", "output", out)
	return merge.Success("keep-base operation successful", out), nil
}
