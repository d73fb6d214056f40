// Package vcs is the version-control capability surface mergepipe merges
// against. The git implementation drives git plumbing commands and never
// touches a working tree or the repository index.
package vcs

// Change is one entry of a tree-to-tree diff.
type Change struct {
	// Status is the raw git status letter: A, M, D, R, C, T.
	Status  string
	OldPath string
	NewPath string
	OldMode string
	NewMode string
}

// Path returns the path a change lands on: the new path, or the old path
// for deletions.
func (c Change) Path() string {
	if c.NewPath == "" {
		return c.OldPath
	}
	return c.NewPath
}

// Entry describes one path inside a tree.
type Entry struct {
	Mode string
	Type string
	OID  string
	Path string
}

// IsFile reports whether the entry is a blob (regular, executable or symlink).
func (e Entry) IsFile() bool {
	return e.Type == "blob"
}

// MergeOutcome is the result of a tree-level merge.
type MergeOutcome struct {
	Tree  string
	Clean bool
}

// Repository is the set of capabilities the merge engine needs from a
// version-control system. Revisions are passed as object names (commit IDs
// or anything git can resolve to one).
type Repository interface {
	// Dir returns the repository directory.
	Dir() string

	// Resolve resolves ref to a commit ID. found is false when the ref does
	// not name a commit.
	Resolve(ref string) (commit string, found bool, err error)

	// CommonAncestor returns the best common ancestor of all commits.
	CommonAncestor(commits []string) (commit string, found bool, err error)

	// Diff lists the paths changed between two revisions.
	Diff(from, to string, detectRenames bool) ([]Change, error)

	// ReadBlob returns the content of path at treeish. found is false when
	// the path does not exist there or is not a file.
	ReadBlob(treeish, path string) (data []byte, found bool, err error)

	// Entry looks up path at treeish.
	Entry(treeish, path string) (Entry, bool, error)

	// MergeTrees merges three revisions with the named strategy. Strategies
	// without three-way support fall back to two sequential two-way merges,
	// base with current and then that result with other. The fallback is an
	// approximation of a true three-way merge.
	MergeTrees(strategy, base, current, other string) (MergeOutcome, error)

	// CommitTree creates a commit for tree with the given parents.
	CommitTree(tree string, parents []string, message string) (string, error)

	// CommitFile creates a commit on top of parent (or a root commit when
	// parent is empty) with path replaced by data, or removed when remove
	// is set.
	CommitFile(parent, path string, data []byte, remove bool) (string, error)
}

// Compile-time interface checks
var (
	_ Repository = (*GitRepository)(nil)
	_ Repository = (*TempRepository)(nil)
)
