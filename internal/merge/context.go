// Package merge defines the per-file merge context handed to rules and
// operations, and the result an operation reports back.
package merge

import (
	"os"
	"path"
	"strings"

	"github.com/Iron-Ham/mergepipe/internal/vcs"
)

// Kind discriminates how a context was created.
type Kind int

const (
	// KindDriver is a git merge driver (or re-merge) invocation. The merged
	// result is written over the current revision.
	KindDriver Kind = iota
	// KindTool is a merge tool invocation with a separate output file and no
	// base revision.
	KindTool
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindDriver:
		return "driver"
	case KindTool:
		return "tool"
	default:
		return "unknown"
	}
}

// Revision names one of the three inputs of a merge.
type Revision int

const (
	RevisionBase Revision = iota
	RevisionCurrent
	RevisionOther
)

// String returns the revision name.
func (r Revision) String() string {
	switch r {
	case RevisionBase:
		return "base"
	case RevisionCurrent:
		return "current"
	case RevisionOther:
		return "other"
	default:
		return "unknown"
	}
}

// Batch carries the commits a multi-branch merge step works on. It lets
// tree-level operations merge directly without a scratch repository.
type Batch struct {
	Repo    vcs.Repository
	Base    string
	Current string
	Other   string

	// Output receives results when the current revision is absent, e.g.
	// for a path that only the branch being folded in adds.
	Output string
}

// Context describes one file across up to three revisions. An empty path
// means the revision does not exist, e.g. a file added on one side only.
type Context struct {
	Kind Kind

	BasePath    string
	CurrentPath string
	OtherPath   string

	// RelativePath is the repository-relative path used for rule matching.
	RelativePath string

	// MergedPath is the output file in tool mode.
	MergedPath string

	// Batch is set when the context belongs to a multi-branch merge.
	Batch *Batch

	attributes map[string]any
}

// NewDriverContext creates a context for a merge driver invocation.
func NewDriverContext(base, current, other, relativePath string) *Context {
	return &Context{
		Kind:         KindDriver,
		BasePath:     base,
		CurrentPath:  current,
		OtherPath:    other,
		RelativePath: relativePath,
	}
}

// NewToolContext creates a context for a merge tool invocation. local and
// remote play the current and other roles, merged receives the result.
func NewToolContext(local, remote, merged string) *Context {
	return &Context{
		Kind:         KindTool,
		CurrentPath:  local,
		OtherPath:    remote,
		RelativePath: merged,
		MergedPath:   merged,
	}
}

// OutputPath is where operations write their result: the merged file in
// tool mode, the current revision otherwise.
func (c *Context) OutputPath() string {
	if c.Kind == KindTool {
		return c.MergedPath
	}
	if c.CurrentPath == "" && c.Batch != nil {
		return c.Batch.Output
	}
	return c.CurrentPath
}

// Path returns the file holding rev, or "" when it is absent.
func (c *Context) Path(rev Revision) string {
	switch rev {
	case RevisionBase:
		return c.BasePath
	case RevisionCurrent:
		return c.CurrentPath
	case RevisionOther:
		return c.OtherPath
	default:
		return ""
	}
}

// Has reports whether rev is present.
func (c *Context) Has(rev Revision) bool {
	return c.Path(rev) != ""
}

// Read returns the bytes of rev. found is false when the revision is absent.
func (c *Context) Read(rev Revision) (data []byte, found bool, err error) {
	p := c.Path(rev)
	if p == "" {
		return nil, false, nil
	}
	data, err = os.ReadFile(p)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// FileName returns the last element of RelativePath. Both separators are
// honoured since git always reports paths with forward slashes while tool
// invocations may pass native Windows paths.
func (c *Context) FileName() string {
	name := c.RelativePath
	if idx := strings.LastIndexAny(name, `/\`); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}

// Extension returns the text after the last dot of the file name, or "".
func (c *Context) Extension() string {
	ext := path.Ext(c.FileName())
	return strings.TrimPrefix(ext, ".")
}

// WithRelativePath returns a copy of the context with a different relative
// path. Attributes are shared with c.
func (c *Context) WithRelativePath(p string) *Context {
	clone := *c
	clone.RelativePath = p
	return &clone
}

// SetAttribute stores a plugin-defined value on the context.
func (c *Context) SetAttribute(key string, value any) {
	if c.attributes == nil {
		c.attributes = make(map[string]any)
	}
	c.attributes[key] = value
}

// Attribute returns a plugin-defined value.
func (c *Context) Attribute(key string) (any, bool) {
	v, ok := c.attributes[key]
	return v, ok
}
