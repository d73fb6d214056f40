// Package filter restricts which changed paths take part in a multi-branch
// merge. Every configured filter must include a path for it to be merged.
package filter

import (
	"fmt"
	"mime"
	"path"
	"regexp"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/Iron-Ham/mergepipe/internal/errors"
	"github.com/Iron-Ham/mergepipe/internal/rule"
)

// Candidate is a changed path offered to the filters.
type Candidate struct {
	// Path is the repository-relative path with forward slashes.
	Path string
	// Mode is the git file mode of the changed entry, e.g. "100644".
	Mode string
	// Load returns the content of the path on the branch that changed it.
	// It may be nil when content is unavailable.
	Load func() ([]byte, bool, error)
}

// Filter decides whether a changed path is merged.
type Filter interface {
	Include(c Candidate) bool
	Description() string
	isFilter()
}

// IncludeAll reports whether every filter includes c. No filters include
// everything.
func IncludeAll(filters []Filter, c Candidate) bool {
	for _, f := range filters {
		if !f.Include(c) {
			return false
		}
	}
	return true
}

// -----------------------------------------------------------------------------
// Path pattern
// -----------------------------------------------------------------------------

// Pattern includes paths matching a glob or regular expression.
type Pattern struct {
	Pattern       string
	IsRegex       bool
	CaseSensitive bool

	re *regexp.Regexp
}

// NewPattern compiles a path pattern filter.
func NewPattern(pattern string, isRegex, caseSensitive bool) (*Pattern, error) {
	re, err := rule.CompilePathPattern(pattern, isRegex, caseSensitive)
	if err != nil {
		return nil, err
	}
	return &Pattern{Pattern: pattern, IsRegex: isRegex, CaseSensitive: caseSensitive, re: re}, nil
}

func (f *Pattern) Include(c Candidate) bool { return f.re.MatchString(c.Path) }
func (f *Pattern) Description() string      { return fmt.Sprintf("path matches '%s'", f.Pattern) }
func (*Pattern) isFilter()                  {}

// -----------------------------------------------------------------------------
// MIME type
// -----------------------------------------------------------------------------

// MimeType includes paths of a given media type, judged by extension and
// then by content.
type MimeType struct {
	MimeType string
}

// NewMimeType builds a MIME type filter.
func NewMimeType(mimeType string) *MimeType {
	return &MimeType{MimeType: mimeType}
}

func (f *MimeType) Include(c Candidate) bool {
	if ext := path.Ext(c.Path); ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			if mediaType, _, err := mime.ParseMediaType(byExt); err == nil && mediaType == f.MimeType {
				return true
			}
		}
	}
	if c.Load == nil {
		return false
	}
	data, found, err := c.Load()
	if err != nil || !found {
		return false
	}
	return rule.DetectedAs(data, f.MimeType)
}

func (f *MimeType) Description() string { return "mime type is " + f.MimeType }
func (*MimeType) isFilter()             {}

// -----------------------------------------------------------------------------
// File mode
// -----------------------------------------------------------------------------

var fileModes = map[string]string{
	"regular":    "100644",
	"executable": "100755",
	"symlink":    "120000",
	"gitlink":    "160000",
	"tree":       "040000",
}

// FileMode includes paths whose git mode matches.
type FileMode struct {
	Name string
	bits string
}

// NewFileMode builds a file mode filter for regular, executable, symlink,
// gitlink or tree.
func NewFileMode(name string) (*FileMode, error) {
	bits, ok := fileModes[strings.ToLower(name)]
	if !ok {
		return nil, errors.NewValidationError("unknown file mode").WithField("mode").WithValue(name)
	}
	return &FileMode{Name: strings.ToLower(name), bits: bits}, nil
}

func (f *FileMode) Include(c Candidate) bool { return c.Mode == f.bits }
func (f *FileMode) Description() string      { return "file mode is " + f.Name }
func (*FileMode) isFilter()                  {}

// -----------------------------------------------------------------------------
// Gitignore patterns
// -----------------------------------------------------------------------------

// Gitignore includes paths matched by gitignore-style patterns.
type Gitignore struct {
	Patterns []string

	matcher *ignore.GitIgnore
}

// NewGitignore compiles gitignore-style patterns.
func NewGitignore(patterns []string) *Gitignore {
	return &Gitignore{Patterns: patterns, matcher: ignore.CompileIgnoreLines(patterns...)}
}

func (f *Gitignore) Include(c Candidate) bool { return f.matcher.MatchesPath(c.Path) }
func (f *Gitignore) Description() string {
	return fmt.Sprintf("path matches gitignore patterns [%s]", strings.Join(f.Patterns, ", "))
}
func (*Gitignore) isFilter() {}

// -----------------------------------------------------------------------------
// Combinators
// -----------------------------------------------------------------------------

// Or includes a path when any child includes it.
type Or struct {
	Filters []Filter
}

func (f *Or) Include(c Candidate) bool {
	for _, child := range f.Filters {
		if child.Include(c) {
			return true
		}
	}
	return false
}

func (f *Or) Description() string {
	parts := make([]string, len(f.Filters))
	for i, child := range f.Filters {
		parts[i] = child.Description()
	}
	return "any of (" + strings.Join(parts, "; ") + ")"
}

func (*Or) isFilter() {}

// Not inverts a filter.
type Not struct {
	Filter Filter
}

func (f *Not) Include(c Candidate) bool { return !f.Filter.Include(c) }
func (f *Not) Description() string      { return "not (" + f.Filter.Description() + ")" }
func (*Not) isFilter()                  {}
