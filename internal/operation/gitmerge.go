package operation

import (
	"fmt"
	"os"
	"strings"

	"github.com/Iron-Ham/mergepipe/internal/errors"
	"github.com/Iron-Ham/mergepipe/internal/merge"
	"github.com/Iron-Ham/mergepipe/internal/vcs"
)

// GitMerge merges a file with git's tree-level merge machinery.
//
// Without batch information the revisions are committed into a throwaway
// repository and merged there. With batch information the commits already
// exist and their trees are merged directly, and the result is committed so
// the next step of a multi-branch merge can build on it.
type GitMerge struct {
	deps Deps
}

func (*GitMerge) Name() string { return "git-merge" }

func (*GitMerge) Description() string {
	return "Merges files using the git merge algorithm (strategies: " + strings.Join(vcs.StrategyNames(), ", ") + ")"
}

func (o *GitMerge) Execute(ctx *merge.Context, params []string) (merge.Result, error) {
	name := o.deps.DefaultStrategy
	if len(params) > 0 && params[0] != "" {
		name = params[0]
	}
	strategy, ok := vcs.LookupStrategy(name)
	if !ok {
		o.deps.Logger.Error("unknown merge strategy", "strategy", name)
		return merge.Failure("unknown merge strategy: "+name, errors.ErrUnknownStrategy), nil
	}

	if ctx.Batch != nil && ctx.Batch.Repo != nil {
		return o.executeBatched(ctx, strategy)
	}
	return o.executeStandalone(ctx, strategy)
}

func (o *GitMerge) executeStandalone(ctx *merge.Context, strategy vcs.Strategy) (merge.Result, error) {
	out := ctx.OutputPath()
	if out == "" {
		return noOutput(), nil
	}

	repo, err := o.deps.NewTempRepository()
	if err != nil {
		return merge.Result{}, err
	}
	defer repo.Close()

	name := ctx.FileName()
	if name == "" {
		name = "file"
	}

	commit := func(rev merge.Revision) (string, error) {
		data, found, err := ctx.Read(rev)
		if err != nil {
			return "", errors.Wrapf(err, "failed to read %s revision", rev)
		}
		return repo.CommitFile("", name, data, !found)
	}

	current, err := commit(merge.RevisionCurrent)
	if err != nil {
		return merge.Result{}, err
	}
	other, err := commit(merge.RevisionOther)
	if err != nil {
		return merge.Result{}, err
	}

	var outcome vcs.MergeOutcome
	if strategy.ThreeWay {
		base, err := commit(merge.RevisionBase)
		if err != nil {
			return merge.Result{}, err
		}
		outcome, err = repo.MergeTrees(strategy.Name, base, current, other)
		if err != nil {
			return merge.Result{}, err
		}
	} else {
		outcome, err = repo.MergeTwoWay(strategy.Name, current, other)
		if err != nil {
			return merge.Result{}, err
		}
	}

	written, err := extract(repo, outcome.Tree, name, out)
	if err != nil {
		return merge.Result{}, err
	}
	return o.finish(outcome.Clean, written), nil
}

func (o *GitMerge) executeBatched(ctx *merge.Context, strategy vcs.Strategy) (merge.Result, error) {
	batch := ctx.Batch
	if !strategy.ThreeWay {
		o.deps.Logger.Warn("strategy cannot merge three ways, approximating with two sequential two-way merges",
			"strategy", strategy.Name)
	}

	outcome, err := batch.Repo.MergeTrees(strategy.Name, batch.Base, batch.Current, batch.Other)
	if err != nil {
		return merge.Result{}, err
	}

	message := fmt.Sprintf("mergepipe: %s merge of %s", strategy.Name, ctx.RelativePath)
	commit, err := batch.Repo.CommitTree(outcome.Tree, []string{batch.Current, batch.Other}, message)
	if err != nil {
		return merge.Result{}, err
	}

	var written string
	if out := ctx.OutputPath(); out != "" {
		written, err = extract(batch.Repo, outcome.Tree, ctx.RelativePath, out)
		if err != nil {
			return merge.Result{}, err
		}
	}

	result := o.finish(outcome.Clean, written)
	result.Commit = commit
	return result, nil
}

// extract copies path from tree into out. When the merge deleted the path,
// out is removed and "" is returned.
func extract(repo vcs.Repository, tree, path, out string) (string, error) {
	data, found, err := repo.ReadBlob(tree, path)
	if err != nil {
		return "", err
	}
	if !found {
		if err := removeFile(out); err != nil {
			return "", errors.Wrap(err, "failed to remove deleted file")
		}
		return "", nil
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return "", errors.Wrap(err, "failed to write merge result")
	}
	return out, nil
}

func (o *GitMerge) finish(clean bool, out string) merge.Result {
	if clean {
		o.deps.Logger.Debug("git merge successful", "output", out)
		return merge.Success("git merge successful", out)
	}
	o.deps.Logger.Debug("git merge resulted in conflicts", "output", out)
	r := merge.Conflict("git merge resulted in conflicts", out)
	r.Err = errors.ErrMergeConflict
	return r
}
