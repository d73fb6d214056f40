package rule

import (
	"mime"

	"github.com/gabriel-vasile/mimetype"

	"github.com/Iron-Ham/mergepipe/internal/logging"
	"github.com/Iron-Ham/mergepipe/internal/merge"
)

// Applies evaluates r against ctx without logging.
func Applies(r Rule, ctx *merge.Context) bool {
	return Evaluate(r, ctx, nil)
}

// Evaluate evaluates r against ctx. A nil rule always applies. Reading a
// revision never fails the evaluation: unreadable revisions are skipped and
// logged at warn level.
func Evaluate(r Rule, ctx *merge.Context, logger *logging.Logger) bool {
	if logger == nil {
		logger = logging.NopLogger()
	}

	switch r := r.(type) {
	case nil:
		return true
	case *FilePattern:
		return r.Matches(ctx.RelativePath)
	case *FileExtension:
		return r.Matches(ctx.Extension())
	case *ContentPattern:
		return evaluateContent(r, ctx, logger)
	case *MimeType:
		return evaluateMimeType(r, ctx, logger)
	case *Composite:
		return evaluateComposite(r, ctx, logger)
	default:
		logger.Error("unsupported rule variant", "rule", r.Description())
		return false
	}
}

func evaluateContent(r *ContentPattern, ctx *merge.Context, logger *logging.Logger) bool {
	checks := []struct {
		enabled bool
		rev     merge.Revision
	}{
		{r.CheckBase, merge.RevisionBase},
		{r.CheckCurrent, merge.RevisionCurrent},
		{r.CheckOther, merge.RevisionOther},
	}

	for _, check := range checks {
		if !check.enabled {
			continue
		}
		data, found, err := ctx.Read(check.rev)
		if err != nil {
			logger.Warn("failed to read revision for content rule",
				"revision", check.rev.String(),
				"path", ctx.Path(check.rev),
				"error", err)
			continue
		}
		if found && r.Matches(data) {
			return true
		}
	}
	return false
}

// evaluateMimeType consults the file extension first, then sniffs the first
// readable revision in the order current, other, base.
func evaluateMimeType(r *MimeType, ctx *merge.Context, logger *logging.Logger) bool {
	if ext := ctx.Extension(); ext != "" {
		if byExt := mime.TypeByExtension("." + ext); byExt != "" {
			if mediaType, _, err := mime.ParseMediaType(byExt); err == nil && mediaType == r.MimeType {
				return true
			}
		}
	}

	for _, rev := range []merge.Revision{merge.RevisionCurrent, merge.RevisionOther, merge.RevisionBase} {
		data, found, err := ctx.Read(rev)
		if err != nil {
			logger.Warn("failed to read revision for mime type rule",
				"revision", rev.String(),
				"path", ctx.Path(rev),
				"error", err)
			continue
		}
		if !found {
			continue
		}
		return DetectedAs(data, r.MimeType)
	}
	return false
}

// DetectedAs reports whether content sniffing classifies data as mimeType or
// as a more specific type derived from it.
func DetectedAs(data []byte, mimeType string) bool {
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is(mimeType) {
			return true
		}
	}
	return false
}

func evaluateComposite(r *Composite, ctx *merge.Context, logger *logging.Logger) bool {
	switch r.Operator {
	case OpAnd:
		for _, child := range r.Rules {
			if !Evaluate(child, ctx, logger) {
				return false
			}
		}
		return len(r.Rules) > 0
	case OpOr:
		for _, child := range r.Rules {
			if Evaluate(child, ctx, logger) {
				return true
			}
		}
		return false
	case OpNot:
		if len(r.Rules) != 1 {
			return false
		}
		return !Evaluate(r.Rules[0], ctx, logger)
	default:
		return false
	}
}
