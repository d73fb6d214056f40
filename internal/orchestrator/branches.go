package orchestrator

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/Iron-Ham/mergepipe/internal/errors"
	"github.com/Iron-Ham/mergepipe/internal/filter"
	"github.com/Iron-Ham/mergepipe/internal/merge"
	"github.com/Iron-Ham/mergepipe/internal/router"
	"github.com/Iron-Ham/mergepipe/internal/vcs"
)

// branchHead is a branch to fold in, resolved to its commit.
type branchHead struct {
	name   string
	commit string
}

// foldedFile is the outcome of folding every branch into one path.
type foldedFile struct {
	path   string
	commit string
	entry  vcs.Entry
	data   []byte
	exists bool
}

// MergeBranches folds branches into the working tree of the repository at
// repoDir. baseRef may be empty, in which case the common ancestor of all
// branches is used.
//
// Every changed path is folded independently through each branch in order.
// The working tree is only written once every path has merged; any failure
// leaves it untouched.
func (o *Orchestrator) MergeBranches(baseRef, repoDir string, branches []string) bool {
	if err := o.mergeBranches(baseRef, repoDir, branches); err != nil {
		// Bad input such as an unknown ref logs as a warning.
		if errors.GetSeverity(err) < errors.SeverityError {
			o.logger.Warn("multi-branch merge failed", "error", err)
		} else {
			o.logger.Error("multi-branch merge failed", "error", err)
		}
		return false
	}
	return true
}

func (o *Orchestrator) mergeBranches(baseRef, repoDir string, branches []string) error {
	if len(branches) == 0 {
		return errors.NewValidationError("no branches to merge").WithField("branches")
	}

	repo, err := o.open(repoDir)
	if err != nil {
		return err
	}

	heads := make([]branchHead, 0, len(branches))
	commits := make([]string, 0, len(branches))
	for _, name := range branches {
		commit, err := resolve(repo, name)
		if err != nil {
			return err
		}
		heads = append(heads, branchHead{name: name, commit: commit})
		commits = append(commits, commit)
	}

	base, err := o.mergeBase(repo, baseRef, commits)
	if err != nil {
		return err
	}
	o.logger.Info("merging branches", "base", base, "branches", strings.Join(branches, ", "))

	paths, err := o.changedPaths(repo, base, heads)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		o.logger.Info("no changed paths to merge")
		return nil
	}

	scratch, err := os.MkdirTemp("", "mergepipe-merge-")
	if err != nil {
		return errors.Wrap(err, "failed to create scratch directory")
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			o.logger.Warn("failed to remove scratch directory", "dir", scratch, "error", err)
		}
	}()

	folded := make([]foldedFile, 0, len(paths))
	for _, path := range paths {
		f, err := o.foldPath(repo, scratch, base, heads, path)
		if err != nil {
			return err
		}
		folded = append(folded, f)
	}

	for _, f := range folded {
		if err := o.writeResult(repo.Dir(), f); err != nil {
			return err
		}
	}
	o.logger.Info("multi-branch merge complete", "files", len(folded))
	return nil
}

func resolve(repo vcs.Repository, ref string) (string, error) {
	commit, found, err := repo.Resolve(ref)
	if err != nil {
		return "", err
	}
	if !found {
		return "", errors.NewNotFoundError("revision", ref).WithCause(errors.ErrRefNotFound)
	}
	return commit, nil
}

func (o *Orchestrator) mergeBase(repo vcs.Repository, baseRef string, commits []string) (string, error) {
	if baseRef != "" {
		return resolve(repo, baseRef)
	}
	base, found, err := repo.CommonAncestor(commits)
	if err != nil {
		return "", err
	}
	if !found {
		return "", errors.NewGitError("branches share no common ancestor", errors.ErrNoCommonAncestor).
			WithRepository(repo.Dir())
	}
	return base, nil
}

// changedPaths returns the paths any branch changed relative to base, in
// first-seen order, that pass the configured filters.
func (o *Orchestrator) changedPaths(repo vcs.Repository, base string, heads []branchHead) ([]string, error) {
	seen := mapset.NewThreadUnsafeSet[string]()
	var paths []string

	for _, head := range heads {
		changes, err := repo.Diff(base, head.commit, o.config.DetectRenames)
		if err != nil {
			return nil, err
		}

		for _, change := range changes {
			candidates := []filter.Candidate{o.candidate(repo, head, change.Path(), change.NewMode)}
			// A rename also removes the old path.
			if strings.HasPrefix(change.Status, "R") && change.OldPath != "" {
				candidates = append(candidates, o.candidate(repo, head, change.OldPath, change.OldMode))
			}

			for _, c := range candidates {
				if seen.Contains(c.Path) {
					continue
				}
				seen.Add(c.Path)
				if !filter.IncludeAll(o.config.Filters, c) {
					o.logger.Debug("path excluded by filters", "path", c.Path)
					continue
				}
				paths = append(paths, c.Path)
			}
		}
	}
	return paths, nil
}

func (o *Orchestrator) candidate(repo vcs.Repository, head branchHead, path, mode string) filter.Candidate {
	return filter.Candidate{
		Path: path,
		Mode: mode,
		Load: func() ([]byte, bool, error) {
			return repo.ReadBlob(head.commit, path)
		},
	}
}

// foldPath merges path through every branch in turn, starting from base.
func (o *Orchestrator) foldPath(repo vcs.Repository, scratch, base string, heads []branchHead, path string) (foldedFile, error) {
	logger := o.logger.WithFile(path)
	current := base

	for _, head := range heads {
		stepLogger := logger.WithBranch(head.name)

		dir, err := os.MkdirTemp(scratch, "step-")
		if err != nil {
			return foldedFile{}, errors.Wrap(err, "failed to create step directory")
		}

		ctx, err := materialise(repo, dir, path, base, current, head.commit)
		if err != nil {
			return foldedFile{}, err
		}

		p := router.Find(o.config, ctx)
		if p == nil {
			return foldedFile{}, errors.NewMergeError("no pipeline found", errors.ErrNoPipeline).
				WithFile(path).WithBranch(head.name)
		}

		stepLogger.Debug("merging branch into path", "pipeline", p.Name())
		result := o.executor.Execute(p, ctx)
		if !result.Succeeded() {
			err := resultError(result).WithFile(path).WithBranch(head.name).WithPipeline(p.Name())
			logFailure(stepLogger, result, err)
			return foldedFile{}, err
		}

		current, err = reanchor(repo, ctx, result, current, path)
		if err != nil {
			return foldedFile{}, err
		}
	}

	f := foldedFile{path: path, commit: current}
	entry, found, err := repo.Entry(current, path)
	if err != nil {
		return foldedFile{}, err
	}
	if found {
		f.entry = entry
		f.data, f.exists, err = repo.ReadBlob(current, path)
		if err != nil {
			return foldedFile{}, err
		}
	}
	return f, nil
}

// materialise writes the three revisions of path into dir and returns a
// driver context over them. Absent revisions get no file.
func materialise(repo vcs.Repository, dir, path, base, current, other string) (*merge.Context, error) {
	write := func(name, commit string) (string, error) {
		data, found, err := repo.ReadBlob(commit, path)
		if err != nil || !found {
			return "", err
		}
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, data, 0644); err != nil {
			return "", errors.Wrapf(err, "failed to materialise %s revision", name)
		}
		return p, nil
	}

	basePath, err := write("base", base)
	if err != nil {
		return nil, err
	}
	currentPath, err := write("current", current)
	if err != nil {
		return nil, err
	}
	otherPath, err := write("other", other)
	if err != nil {
		return nil, err
	}

	ctx := merge.NewDriverContext(basePath, currentPath, otherPath, path)
	ctx.Batch = &merge.Batch{
		Repo:    repo,
		Base:    base,
		Current: current,
		Other:   other,
		Output:  filepath.Join(dir, "result"),
	}
	return ctx, nil
}

// reanchor returns the commit holding the step's result for path. A result
// commit is used as is. Otherwise the content of the result file (or of the
// output slot, for results that report no file) is committed on top of
// current when it differs from current's content.
func reanchor(repo vcs.Repository, ctx *merge.Context, result merge.Result, current, path string) (string, error) {
	if result.Commit != "" {
		return result.Commit, nil
	}

	slot := result.OutputPath
	if slot == "" {
		slot = ctx.OutputPath()
	}
	if slot == "" {
		return current, nil
	}

	data, found, err := readOptional(slot)
	if err != nil {
		return "", errors.Wrap(err, "failed to read merge result")
	}
	before, had, err := ctx.Read(merge.RevisionCurrent)
	if err != nil {
		return "", err
	}
	if found == had && bytes.Equal(data, before) {
		return current, nil
	}
	return repo.CommitFile(current, path, data, !found)
}

func readOptional(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// writeResult applies a folded path to the working tree.
func (o *Orchestrator) writeResult(root string, f foldedFile) error {
	logger := o.logger.WithFile(f.path)
	full := filepath.Join(root, filepath.FromSlash(f.path))

	if !f.exists {
		if f.entry.Type != "" && !f.entry.IsFile() {
			logger.Warn("skipping non-file entry", "type", f.entry.Type)
			return nil
		}
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to remove %s", f.path)
		}
		logger.Info("removed file")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", f.path)
	}

	switch f.entry.Mode {
	case "120000":
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to replace %s", f.path)
		}
		if err := os.Symlink(string(f.data), full); err != nil {
			return errors.Wrapf(err, "failed to create symlink %s", f.path)
		}
	default:
		perm := os.FileMode(0644)
		if f.entry.Mode == "100755" {
			perm = 0755
		}
		if err := os.WriteFile(full, f.data, perm); err != nil {
			return errors.Wrapf(err, "failed to write %s", f.path)
		}
		// WriteFile keeps the mode of an existing file.
		if err := os.Chmod(full, perm); err != nil {
			return errors.Wrapf(err, "failed to set mode of %s", f.path)
		}
	}

	logger.Info("wrote merged file")
	return nil
}
