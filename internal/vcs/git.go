package vcs

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Iron-Ham/mergepipe/internal/errors"
	"github.com/Iron-Ham/mergepipe/internal/logging"
)

// DefaultBinary is the git executable used when none is configured.
const DefaultBinary = "git"

// Synthetic commits are never referenced by a branch, so they carry a fixed
// identity instead of depending on the user's git configuration.
var syntheticIdentity = []string{
	"GIT_AUTHOR_NAME=mergepipe",
	"GIT_AUTHOR_EMAIL=mergepipe@localhost",
	"GIT_COMMITTER_NAME=mergepipe",
	"GIT_COMMITTER_EMAIL=mergepipe@localhost",
}

// -----------------------------------------------------------------------------
// GitRepository - implements Repository with git plumbing
// -----------------------------------------------------------------------------

// GitRepository implements Repository using git CLI plumbing commands.
// dir must be the top level of the repository (or the git directory of a
// bare repository) since index paths are interpreted relative to it.
type GitRepository struct {
	dir      string
	binary   string
	executor CommandExecutor
	logger   *logging.Logger
}

// NewGitRepository creates a GitRepository rooted at dir.
func NewGitRepository(dir, binary string, logger *logging.Logger) *GitRepository {
	return NewGitRepositoryWithExecutor(dir, binary, NewCLICommandExecutor(), logger)
}

// NewGitRepositoryWithExecutor creates a GitRepository with a custom executor.
// This is primarily useful for testing.
func NewGitRepositoryWithExecutor(dir, binary string, executor CommandExecutor, logger *logging.Logger) *GitRepository {
	if binary == "" {
		binary = DefaultBinary
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &GitRepository{
		dir:      dir,
		binary:   binary,
		executor: executor,
		logger:   logger,
	}
}

// Open locates the top level of the work tree containing dir and returns a
// repository rooted there.
func Open(dir, binary string, logger *logging.Logger) (*GitRepository, error) {
	repo := NewGitRepository(dir, binary, logger)
	out, err := repo.git(nil, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, repo.gitError("failed to locate repository", errors.Join(errors.ErrNotGitRepository, err))
	}
	repo.dir = strings.TrimSpace(string(out))
	return repo, nil
}

// Dir returns the repository directory.
func (r *GitRepository) Dir() string {
	return r.dir
}

func (r *GitRepository) git(env []string, args ...string) ([]byte, error) {
	return r.executor.Run(r.dir, env, r.binary, args...)
}

func (r *GitRepository) gitError(message string, err error) *errors.GitError {
	return errors.NewGitError(message, err).
		WithRepository(r.dir).
		WithGitOutput(StderrOf(err))
}

// Resolve resolves ref to a commit ID.
func (r *GitRepository) Resolve(ref string) (string, bool, error) {
	out, err := r.git(nil, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	if err != nil {
		if ExitCode(err) == 1 {
			return "", false, nil
		}
		return "", false, r.gitError("failed to resolve ref", err).WithRef(ref)
	}
	return strings.TrimSpace(string(out)), true, nil
}

// CommonAncestor returns the octopus merge base of commits.
func (r *GitRepository) CommonAncestor(commits []string) (string, bool, error) {
	switch len(commits) {
	case 0:
		return "", false, nil
	case 1:
		return commits[0], true, nil
	}

	args := append([]string{"merge-base", "--octopus"}, commits...)
	out, err := r.git(nil, args...)
	if err != nil {
		if ExitCode(err) == 1 {
			return "", false, nil
		}
		return "", false, r.gitError("failed to find merge base", err).
			WithRef(strings.Join(commits, " "))
	}

	base := strings.TrimSpace(string(out))
	if base == "" {
		return "", false, nil
	}
	return base, true, nil
}

// Diff lists the files changed between from and to.
func (r *GitRepository) Diff(from, to string, detectRenames bool) ([]Change, error) {
	args := []string{"diff-tree", "-r", "-z", "--raw", "--no-commit-id"}
	if detectRenames {
		args = append(args, "-M")
	} else {
		args = append(args, "--no-renames")
	}
	args = append(args, from, to)

	out, err := r.git(nil, args...)
	if err != nil {
		return nil, r.gitError("failed to diff trees", err).WithRef(from + ".." + to)
	}

	changes, err := parseRawDiff(out)
	if err != nil {
		return nil, r.gitError("failed to parse diff output", err).WithRef(from + ".." + to)
	}
	return changes, nil
}

// parseRawDiff parses `git diff-tree -z --raw` output. Each record is a
// header ":<old mode> <new mode> <old oid> <new oid> <status>" followed by
// one path, or two for renames and copies.
func parseRawDiff(out []byte) ([]Change, error) {
	tokens := strings.Split(strings.TrimSuffix(string(out), "\x00"), "\x00")
	var changes []Change

	for i := 0; i < len(tokens); i++ {
		header := tokens[i]
		if header == "" {
			continue
		}
		if !strings.HasPrefix(header, ":") {
			return nil, fmt.Errorf("unexpected diff record %q", header)
		}

		fields := strings.Fields(header[1:])
		if len(fields) != 5 || fields[4] == "" {
			return nil, fmt.Errorf("malformed diff header %q", header)
		}
		change := Change{
			Status:  fields[4][:1],
			OldMode: fields[0],
			NewMode: fields[1],
		}

		paths := 1
		if change.Status == "R" || change.Status == "C" {
			paths = 2
		}
		if i+paths >= len(tokens) {
			return nil, fmt.Errorf("truncated diff record %q", header)
		}

		switch {
		case paths == 2:
			change.OldPath = tokens[i+1]
			change.NewPath = tokens[i+2]
		case change.Status == "D":
			change.OldPath = tokens[i+1]
		case change.Status == "A":
			change.NewPath = tokens[i+1]
		default:
			change.OldPath = tokens[i+1]
			change.NewPath = tokens[i+1]
		}
		changes = append(changes, change)
		i += paths
	}

	return changes, nil
}

// Entry looks up path at treeish.
func (r *GitRepository) Entry(treeish, path string) (Entry, bool, error) {
	out, err := r.git(nil, "ls-tree", "-z", "--full-tree", treeish, "--", path)
	if err != nil {
		return Entry{}, false, r.gitError("failed to list tree", err).WithRef(treeish)
	}

	record := strings.TrimSuffix(string(out), "\x00")
	if record == "" {
		return Entry{}, false, nil
	}
	// Only the first record matters; a literal path matches at most one entry.
	if idx := strings.IndexByte(record, 0); idx >= 0 {
		record = record[:idx]
	}

	meta, name, ok := strings.Cut(record, "\t")
	fields := strings.Fields(meta)
	if !ok || len(fields) != 3 {
		return Entry{}, false, r.gitError("failed to parse tree entry", fmt.Errorf("malformed ls-tree record %q", record)).WithRef(treeish)
	}
	if name != path {
		return Entry{}, false, nil
	}

	return Entry{Mode: fields[0], Type: fields[1], OID: fields[2], Path: name}, true, nil
}

// ReadBlob returns the bytes of path at treeish.
func (r *GitRepository) ReadBlob(treeish, path string) ([]byte, bool, error) {
	entry, found, err := r.Entry(treeish, path)
	if err != nil || !found || !entry.IsFile() {
		return nil, false, err
	}

	out, err := r.readObject(entry.OID)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// MergeTrees merges current and other against base using strategy.
func (r *GitRepository) MergeTrees(strategy, base, current, other string) (MergeOutcome, error) {
	s, ok := LookupStrategy(strategy)
	if !ok {
		return MergeOutcome{}, errors.NewGitError(
			fmt.Sprintf("strategy %q is not supported (supported: %s)", strategy, strings.Join(StrategyNames(), ", ")),
			errors.ErrUnknownStrategy,
		).WithRepository(r.dir)
	}

	if s.ThreeWay {
		return r.mergeThreeWay(base, current, other)
	}

	first, err := r.MergeTwoWay(strategy, base, current)
	if err != nil {
		return MergeOutcome{}, err
	}
	second, err := r.MergeTwoWay(strategy, first.Tree, other)
	if err != nil {
		return MergeOutcome{}, err
	}
	return MergeOutcome{Tree: second.Tree, Clean: first.Clean && second.Clean}, nil
}

// MergeTwoWay merges two revisions with a strategy that needs no base.
func (r *GitRepository) MergeTwoWay(strategy, first, second string) (MergeOutcome, error) {
	s, ok := LookupStrategy(strategy)
	if !ok || s.ThreeWay {
		return MergeOutcome{}, errors.NewGitError(
			fmt.Sprintf("strategy %q does not support two-way merges", strategy),
			errors.ErrUnknownStrategy,
		).WithRepository(r.dir)
	}

	keep := first
	if s.Keep == SideSecond {
		keep = second
	}
	tree, err := r.treeOf(keep)
	if err != nil {
		return MergeOutcome{}, err
	}
	return MergeOutcome{Tree: tree, Clean: true}, nil
}

func (r *GitRepository) mergeThreeWay(base, current, other string) (MergeOutcome, error) {
	out, err := r.git(nil, "merge-tree", "--write-tree", "-z", "--no-messages", "--merge-base="+base, current, other)
	clean := err == nil
	if err != nil && ExitCode(err) != 1 {
		return MergeOutcome{}, r.gitError("failed to merge trees", err).WithRef(current + "+" + other)
	}

	records := strings.Split(string(out), "\x00")
	tree := strings.TrimSpace(records[0])
	if tree == "" {
		return MergeOutcome{}, r.gitError("merge-tree produced no tree", err).WithRef(current + "+" + other)
	}
	if clean {
		return MergeOutcome{Tree: tree, Clean: true}, nil
	}

	conflicts, err := parseConflicts(records[1:])
	if err != nil {
		return MergeOutcome{}, r.gitError("failed to parse merge-tree output", err).WithRef(current + "+" + other)
	}
	resolved, ok, err := r.resolveContentConflicts(tree, conflicts)
	if err != nil {
		return MergeOutcome{}, err
	}
	if ok {
		return MergeOutcome{Tree: resolved, Clean: true}, nil
	}
	return MergeOutcome{Tree: tree, Clean: false}, nil
}

// stagedBlob is one index stage of a conflicted path.
type stagedBlob struct {
	mode string
	oid  string
}

// conflictedPath holds the stages merge-tree reported for one path, indexed
// by stage number (1 base, 2 current, 3 other). Missing stages are nil.
type conflictedPath struct {
	path   string
	stages [4]*stagedBlob
}

// parseConflicts reads the conflicted file records of `merge-tree -z`:
// "<mode> <oid> <stage>\t<path>", ending at the first empty record.
func parseConflicts(records []string) ([]conflictedPath, error) {
	var paths []conflictedPath
	index := make(map[string]int)

	for _, record := range records {
		if record == "" {
			break
		}
		meta, path, ok := strings.Cut(record, "\t")
		fields := strings.Fields(meta)
		if !ok || len(fields) != 3 {
			return nil, fmt.Errorf("malformed conflict record %q", record)
		}
		stage, err := strconv.Atoi(fields[2])
		if err != nil || stage < 1 || stage > 3 {
			return nil, fmt.Errorf("malformed conflict stage in %q", record)
		}

		i, seen := index[path]
		if !seen {
			i = len(paths)
			index[path] = i
			paths = append(paths, conflictedPath{path: path})
		}
		paths[i].stages[stage] = &stagedBlob{mode: fields[0], oid: fields[1]}
	}
	return paths, nil
}

func isRegularMode(mode string) bool {
	return mode == "100644" || mode == "100755"
}

// mergeModes merges file modes the way git does: a side that changed the
// mode wins, and two different changes conflict.
func mergeModes(base, current, other string) (string, bool) {
	switch {
	case current == other:
		return current, true
	case base == current:
		return other, true
	case base == other:
		return current, true
	default:
		return "", false
	}
}

// resolveContentConflicts retries every conflicted path with MergeText and
// returns a tree holding the merged blobs. ok is false, and the tree is
// left alone, unless every path is a content conflict between regular files
// that merges cleanly.
func (r *GitRepository) resolveContentConflicts(tree string, conflicts []conflictedPath) (string, bool, error) {
	if len(conflicts) == 0 {
		return "", false, nil
	}

	scratch, err := os.MkdirTemp("", "mergepipe-resolve-")
	if err != nil {
		return "", false, errors.Wrap(err, "failed to create temporary index directory")
	}
	defer r.removeScratch(scratch)

	var updates []string
	for _, c := range conflicts {
		current, other := c.stages[2], c.stages[3]
		if current == nil || other == nil || !isRegularMode(current.mode) || !isRegularMode(other.mode) {
			return "", false, nil
		}

		var baseData []byte
		baseMode := ""
		if b := c.stages[1]; b != nil {
			if !isRegularMode(b.mode) {
				return "", false, nil
			}
			if baseData, err = r.readObject(b.oid); err != nil {
				return "", false, err
			}
			baseMode = b.mode
		}
		mode, ok := mergeModes(baseMode, current.mode, other.mode)
		if !ok {
			return "", false, nil
		}

		currentData, err := r.readObject(current.oid)
		if err != nil {
			return "", false, err
		}
		otherData, err := r.readObject(other.oid)
		if err != nil {
			return "", false, err
		}
		merged, ok := MergeText(baseData, currentData, otherData)
		if !ok {
			return "", false, nil
		}

		oid, err := r.writeBlob(scratch, merged)
		if err != nil {
			return "", false, err
		}
		updates = append(updates, mode+","+oid+","+c.path)
		r.logger.Debug("resolved content conflict line by line", "path", c.path)
	}

	env := []string{"GIT_INDEX_FILE=" + filepath.Join(scratch, "index")}
	if _, err := r.git(env, "read-tree", tree); err != nil {
		return "", false, r.gitError("failed to read tree into temporary index", err).WithRef(tree)
	}
	for _, update := range updates {
		if _, err := r.git(env, "update-index", "--add", "--cacheinfo", update); err != nil {
			return "", false, r.gitError("failed to stage merged blob", err).WithRef(update)
		}
	}
	out, err := r.git(env, "write-tree")
	if err != nil {
		return "", false, r.gitError("failed to write tree", err)
	}
	return strings.TrimSpace(string(out)), true, nil
}

func (r *GitRepository) readObject(oid string) ([]byte, error) {
	out, err := r.git(nil, "cat-file", "blob", oid)
	if err != nil {
		return nil, r.gitError("failed to read blob", err).WithRef(oid)
	}
	return out, nil
}

func (r *GitRepository) treeOf(treeish string) (string, error) {
	out, err := r.git(nil, "rev-parse", "--verify", treeish+"^{tree}")
	if err != nil {
		return "", r.gitError("failed to resolve tree", err).WithRef(treeish)
	}
	return strings.TrimSpace(string(out)), nil
}

// CommitTree creates a commit object for tree.
func (r *GitRepository) CommitTree(tree string, parents []string, message string) (string, error) {
	args := []string{"commit-tree", tree}
	for _, parent := range parents {
		args = append(args, "-p", parent)
	}
	args = append(args, "-m", message)

	out, err := r.git(syntheticIdentity, args...)
	if err != nil {
		return "", r.gitError("failed to create commit", err).WithRef(tree)
	}
	return strings.TrimSpace(string(out)), nil
}

// CommitFile builds a commit replacing or removing path on top of parent.
// The repository index is never touched: a throwaway index file holds the
// intermediate state.
func (r *GitRepository) CommitFile(parent, path string, data []byte, remove bool) (string, error) {
	scratch, err := os.MkdirTemp("", "mergepipe-index-")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temporary index directory")
	}
	defer r.removeScratch(scratch)

	env := append([]string{"GIT_INDEX_FILE=" + filepath.Join(scratch, "index")}, syntheticIdentity...)

	readTree := []string{"read-tree", "--empty"}
	if parent != "" {
		readTree = []string{"read-tree", parent}
	}
	if _, err := r.git(env, readTree...); err != nil {
		return "", r.gitError("failed to read tree into temporary index", err).WithRef(parent)
	}

	switch {
	case remove && parent == "":
		// An empty tree has nothing to remove.
	case remove:
		if _, err := r.git(env, "update-index", "--force-remove", "--", path); err != nil {
			return "", r.gitError("failed to remove path from index", err).WithRef(path)
		}
	default:
		oid, err := r.writeBlob(scratch, data)
		if err != nil {
			return "", err
		}
		mode := "100644"
		if parent != "" {
			if entry, found, err := r.Entry(parent, path); err == nil && found && entry.IsFile() {
				mode = entry.Mode
			}
		}
		if _, err := r.git(env, "update-index", "--add", "--cacheinfo", mode+","+oid+","+path); err != nil {
			return "", r.gitError("failed to stage blob", err).WithRef(path)
		}
	}

	out, err := r.git(env, "write-tree")
	if err != nil {
		return "", r.gitError("failed to write tree", err)
	}
	tree := strings.TrimSpace(string(out))

	var parents []string
	if parent != "" {
		parents = []string{parent}
	}
	verb := "update"
	if remove {
		verb = "remove"
	}
	return r.CommitTree(tree, parents, fmt.Sprintf("mergepipe: %s %s", verb, path))
}

func (r *GitRepository) writeBlob(scratch string, data []byte) (string, error) {
	blobPath := filepath.Join(scratch, "blob")
	if err := os.WriteFile(blobPath, data, 0600); err != nil {
		return "", errors.Wrap(err, "failed to stage blob content")
	}
	out, err := r.git(nil, "hash-object", "-w", "--no-filters", "--", blobPath)
	if err != nil {
		return "", r.gitError("failed to write blob", err)
	}
	return string(bytes.TrimSpace(out)), nil
}

func (r *GitRepository) removeScratch(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		r.logger.Warn("failed to remove temporary directory", "dir", dir, "error", err)
	}
}

// -----------------------------------------------------------------------------
// TempRepository
// -----------------------------------------------------------------------------

// TempRepository is a throwaway bare repository. Callers must Close it.
type TempRepository struct {
	*GitRepository
	root string
}

// NewTempRepository initialises an empty bare repository in a new
// temporary directory.
func NewTempRepository(binary string, logger *logging.Logger) (*TempRepository, error) {
	root, err := os.MkdirTemp("", "mergepipe-repo-")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create temporary repository directory")
	}

	repo := NewGitRepository(root, binary, logger)
	if _, err := repo.git(nil, "init", "--quiet", "--bare"); err != nil {
		repo.removeScratch(root)
		return nil, repo.gitError("failed to initialise temporary repository", err)
	}

	return &TempRepository{GitRepository: repo, root: root}, nil
}

// Close removes the repository. Removal failures are logged, not returned.
func (t *TempRepository) Close() {
	t.removeScratch(t.root)
}
