// Package rule implements the predicates that gate pipeline steps and
// select pipelines. Rules are a closed set of variants; evaluation
// dispatches on the concrete type.
package rule

import (
	"fmt"
	"regexp"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/Iron-Ham/mergepipe/internal/errors"
)

// Rule is a predicate over a merge context. The variants are FilePattern,
// FileExtension, ContentPattern, MimeType and Composite.
type Rule interface {
	// Description is a human readable summary of the rule.
	Description() string
	isRule()
}

// -----------------------------------------------------------------------------
// FilePattern
// -----------------------------------------------------------------------------

// FilePattern matches the relative path of the file against a glob or a
// regular expression. The whole path must match.
type FilePattern struct {
	Pattern       string
	IsRegex       bool
	CaseSensitive bool

	re *regexp.Regexp
}

// NewFilePattern compiles a file pattern rule.
func NewFilePattern(pattern string, isRegex, caseSensitive bool) (*FilePattern, error) {
	re, err := CompilePathPattern(pattern, isRegex, caseSensitive)
	if err != nil {
		return nil, err
	}
	return &FilePattern{
		Pattern:       pattern,
		IsRegex:       isRegex,
		CaseSensitive: caseSensitive,
		re:            re,
	}, nil
}

// MustFilePattern is NewFilePattern for patterns known to be valid.
func MustFilePattern(glob string) *FilePattern {
	r, err := NewFilePattern(glob, false, false)
	if err != nil {
		panic(err)
	}
	return r
}

// Matches reports whether path matches the pattern.
func (r *FilePattern) Matches(path string) bool {
	return r.re.MatchString(path)
}

func (r *FilePattern) Description() string {
	kind := "glob"
	if r.IsRegex {
		kind = "regex"
	}
	return fmt.Sprintf("file matches %s pattern '%s' (%s)", kind, r.Pattern, sensitivity(r.CaseSensitive))
}

func (*FilePattern) isRule() {}

// -----------------------------------------------------------------------------
// FileExtension
// -----------------------------------------------------------------------------

// FileExtension matches the extension of the file name exactly.
type FileExtension struct {
	Extensions []string
	Invert     bool

	set mapset.Set[string]
}

// NewFileExtension builds a file extension rule. Extensions are given
// without the leading dot.
func NewFileExtension(extensions []string, invert bool) *FileExtension {
	return &FileExtension{
		Extensions: extensions,
		Invert:     invert,
		set:        mapset.NewThreadUnsafeSet(extensions...),
	}
}

// Matches reports whether ext satisfies the rule, honouring Invert.
func (r *FileExtension) Matches(ext string) bool {
	if r.set == nil {
		r.set = mapset.NewThreadUnsafeSet(r.Extensions...)
	}
	return r.set.Contains(ext) != r.Invert
}

func (r *FileExtension) Description() string {
	desc := fmt.Sprintf("file extension in [%s]", strings.Join(r.Extensions, ", "))
	if r.Invert {
		desc += " (inverted)"
	}
	return desc
}

func (*FileExtension) isRule() {}

// -----------------------------------------------------------------------------
// ContentPattern
// -----------------------------------------------------------------------------

// ContentPattern searches the selected revisions for a regular expression.
type ContentPattern struct {
	Pattern       string
	CaseSensitive bool
	CheckBase     bool
	CheckCurrent  bool
	CheckOther    bool

	re *regexp.Regexp
}

// NewContentPattern compiles a content pattern rule.
func NewContentPattern(pattern string, caseSensitive, checkBase, checkCurrent, checkOther bool) (*ContentPattern, error) {
	expr := pattern
	if !caseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, errors.NewValidationError("invalid content pattern").
			WithField("pattern").
			WithValue(pattern).
			WithCause(err)
	}
	return &ContentPattern{
		Pattern:       pattern,
		CaseSensitive: caseSensitive,
		CheckBase:     checkBase,
		CheckCurrent:  checkCurrent,
		CheckOther:    checkOther,
		re:            re,
	}, nil
}

// Matches reports whether data contains the pattern.
func (r *ContentPattern) Matches(data []byte) bool {
	return r.re.Match(data)
}

func (r *ContentPattern) Description() string {
	var where string
	if r.CheckBase && r.CheckCurrent && r.CheckOther {
		where = "any version"
	} else {
		var parts []string
		if r.CheckBase {
			parts = append(parts, "base version")
		}
		if r.CheckCurrent {
			parts = append(parts, "current version")
		}
		if r.CheckOther {
			parts = append(parts, "other version")
		}
		where = strings.Join(parts, ", ")
	}
	return fmt.Sprintf("content matches pattern '%s' (%s) in %s", r.Pattern, sensitivity(r.CaseSensitive), where)
}

func (*ContentPattern) isRule() {}

// -----------------------------------------------------------------------------
// MimeType
// -----------------------------------------------------------------------------

// MimeType matches the detected media type of the file.
type MimeType struct {
	MimeType string
}

// NewMimeType builds a MIME type rule.
func NewMimeType(mimeType string) *MimeType {
	return &MimeType{MimeType: mimeType}
}

func (r *MimeType) Description() string {
	return "mime type is " + r.MimeType
}

func (*MimeType) isRule() {}

// -----------------------------------------------------------------------------
// Composite
// -----------------------------------------------------------------------------

// Operator combines the children of a composite rule.
type Operator string

const (
	OpAnd Operator = "AND"
	OpOr  Operator = "OR"
	OpNot Operator = "NOT"
)

// ParseOperator parses AND, OR or NOT, case-insensitively.
func ParseOperator(s string) (Operator, error) {
	switch op := Operator(strings.ToUpper(s)); op {
	case OpAnd, OpOr, OpNot:
		return op, nil
	default:
		return "", errors.NewValidationError("unknown composite operation").WithField("operation").WithValue(s)
	}
}

// Composite combines rules with AND, OR or NOT.
type Composite struct {
	Operator Operator
	Rules    []Rule
}

// NewComposite builds a composite rule. NOT takes exactly one rule.
func NewComposite(op Operator, rules ...Rule) (*Composite, error) {
	op, err := ParseOperator(string(op))
	if err != nil {
		return nil, err
	}
	if op == OpNot && len(rules) != 1 {
		return nil, errors.NewValidationError("NOT requires exactly one rule").
			WithField("rules").
			WithValue(len(rules))
	}
	for i, r := range rules {
		if r == nil {
			return nil, errors.NewValidationError("composite rule has a nil child").WithField(fmt.Sprintf("rules[%d]", i))
		}
	}
	return &Composite{Operator: op, Rules: rules}, nil
}

func (r *Composite) Description() string {
	if r.Operator == OpNot {
		return "NOT (" + r.Rules[0].Description() + ")"
	}
	parts := make([]string, len(r.Rules))
	for i, child := range r.Rules {
		parts[i] = child.Description()
	}
	return "(" + strings.Join(parts, " "+string(r.Operator)+" ") + ")"
}

func (*Composite) isRule() {}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// Describe returns the description of r. A nil rule always applies.
func Describe(r Rule) string {
	if r == nil {
		return "always"
	}
	return r.Description()
}

// WalkFilePatterns calls visit for every FilePattern in the rule tree until
// visit returns true. It reports whether visit stopped the walk.
func WalkFilePatterns(r Rule, visit func(*FilePattern) bool) bool {
	switch r := r.(type) {
	case *FilePattern:
		return visit(r)
	case *Composite:
		for _, child := range r.Rules {
			if WalkFilePatterns(child, visit) {
				return true
			}
		}
	}
	return false
}

func sensitivity(caseSensitive bool) string {
	if caseSensitive {
		return "case-sensitive"
	}
	return "case-insensitive"
}
