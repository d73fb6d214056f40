package vcs

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Iron-Ham/mergepipe/internal/errors"
	"github.com/Iron-Ham/mergepipe/internal/logging"
	"github.com/Iron-Ham/mergepipe/internal/testutil"
)

// -----------------------------------------------------------------------------
// Mock Command Executor for Unit Tests
// -----------------------------------------------------------------------------

// mockCall records a single command invocation
type mockCall struct {
	dir  string
	env  []string
	name string
	args []string
}

// exitError mimics a process that exited with a non-zero status.
type exitError struct {
	code   int
	stderr string
}

func (e *exitError) Error() string  { return fmt.Sprintf("exit status %d", e.code) }
func (e *exitError) ExitCode() int  { return e.code }
func (e *exitError) Stderr() string { return e.stderr }

// mockExecutor is a test double for CommandExecutor
type mockExecutor struct {
	calls      []mockCall
	runOutputs [][]byte
	runErrors  []error
	callIndex  int
}

func newMockExecutor() *mockExecutor {
	return &mockExecutor{}
}

func (m *mockExecutor) addResponse(output string, err error) {
	m.runOutputs = append(m.runOutputs, []byte(output))
	m.runErrors = append(m.runErrors, err)
}

func (m *mockExecutor) Run(dir string, env []string, name string, args ...string) ([]byte, error) {
	m.calls = append(m.calls, mockCall{dir: dir, env: env, name: name, args: args})
	idx := m.callIndex
	m.callIndex++
	if idx < len(m.runOutputs) {
		return m.runOutputs[idx], m.runErrors[idx]
	}
	return nil, nil
}

func newMockRepo(exec *mockExecutor) *GitRepository {
	return NewGitRepositoryWithExecutor("/repo", "", exec, logging.NopLogger())
}

// -----------------------------------------------------------------------------
// GitRepository Unit Tests
// -----------------------------------------------------------------------------

func TestGitRepository_Resolve(t *testing.T) {
	tests := []struct {
		name      string
		output    string
		err       error
		wantID    string
		wantFound bool
		wantErr   bool
	}{
		{name: "found", output: "abc123\n", wantID: "abc123", wantFound: true},
		{name: "missing ref", err: &exitError{code: 1}},
		{name: "git failure", err: &exitError{code: 128, stderr: "fatal: not a git repository"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := newMockExecutor()
			exec.addResponse(tt.output, tt.err)

			id, found, err := newMockRepo(exec).Resolve("feature")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Resolve() error = %v, wantErr %v", err, tt.wantErr)
			}
			if id != tt.wantID || found != tt.wantFound {
				t.Errorf("Resolve() = (%q, %v), want (%q, %v)", id, found, tt.wantID, tt.wantFound)
			}

			want := []string{"rev-parse", "--verify", "--quiet", "feature^{commit}"}
			if diff := cmp.Diff(want, exec.calls[0].args); diff != "" {
				t.Errorf("args mismatch (-want +got):\n%s", diff)
			}
			if exec.calls[0].name != DefaultBinary || exec.calls[0].dir != "/repo" {
				t.Errorf("ran %s in %s, want git in /repo", exec.calls[0].name, exec.calls[0].dir)
			}
		})
	}
}

func TestGitRepository_ResolveErrorCarriesGitOutput(t *testing.T) {
	exec := newMockExecutor()
	exec.addResponse("", &exitError{code: 128, stderr: "fatal: bad revision"})

	_, _, err := newMockRepo(exec).Resolve("nope")

	var gitErr *errors.GitError
	if !errors.As(err, &gitErr) {
		t.Fatalf("expected GitError, got %T", err)
	}
	if gitErr.GitOutput != "fatal: bad revision" {
		t.Errorf("GitOutput = %q, want %q", gitErr.GitOutput, "fatal: bad revision")
	}
	if gitErr.Ref != "nope" || gitErr.Repository != "/repo" {
		t.Errorf("context = (%q, %q), want (nope, /repo)", gitErr.Ref, gitErr.Repository)
	}
}

func TestGitRepository_CommonAncestor(t *testing.T) {
	t.Run("no commits", func(t *testing.T) {
		exec := newMockExecutor()
		_, found, err := newMockRepo(exec).CommonAncestor(nil)
		if err != nil || found {
			t.Errorf("CommonAncestor(nil) = (%v, %v), want (false, nil)", found, err)
		}
		if len(exec.calls) != 0 {
			t.Errorf("expected no git calls, got %d", len(exec.calls))
		}
	})

	t.Run("single commit is its own ancestor", func(t *testing.T) {
		exec := newMockExecutor()
		id, found, err := newMockRepo(exec).CommonAncestor([]string{"c1"})
		if err != nil || !found || id != "c1" {
			t.Errorf("CommonAncestor([c1]) = (%q, %v, %v)", id, found, err)
		}
	})

	t.Run("octopus", func(t *testing.T) {
		exec := newMockExecutor()
		exec.addResponse("base\n", nil)
		id, found, err := newMockRepo(exec).CommonAncestor([]string{"c1", "c2", "c3"})
		if err != nil || !found || id != "base" {
			t.Fatalf("CommonAncestor() = (%q, %v, %v)", id, found, err)
		}
		want := []string{"merge-base", "--octopus", "c1", "c2", "c3"}
		if diff := cmp.Diff(want, exec.calls[0].args); diff != "" {
			t.Errorf("args mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("unrelated histories", func(t *testing.T) {
		exec := newMockExecutor()
		exec.addResponse("", &exitError{code: 1})
		_, found, err := newMockRepo(exec).CommonAncestor([]string{"c1", "c2"})
		if err != nil || found {
			t.Errorf("CommonAncestor() = (%v, %v), want (false, nil)", found, err)
		}
	})
}

func TestParseRawDiff(t *testing.T) {
	raw := strings.Join([]string{
		":100644 100644 aaa bbb M", "src/a.txt",
		":000000 100644 000 ccc A", "new.txt",
		":100644 000000 ddd 000 D", "gone.txt",
		":100644 100644 eee eee R100", "old/name.txt", "new/name.txt",
		"",
	}, "\x00")

	got, err := parseRawDiff([]byte(raw))
	if err != nil {
		t.Fatalf("parseRawDiff() error = %v", err)
	}

	want := []Change{
		{Status: "M", OldPath: "src/a.txt", NewPath: "src/a.txt", OldMode: "100644", NewMode: "100644"},
		{Status: "A", NewPath: "new.txt", OldMode: "000000", NewMode: "100644"},
		{Status: "D", OldPath: "gone.txt", OldMode: "100644", NewMode: "000000"},
		{Status: "R", OldPath: "old/name.txt", NewPath: "new/name.txt", OldMode: "100644", NewMode: "100644"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parseRawDiff() mismatch (-want +got):\n%s", diff)
	}

	paths := []string{got[0].Path(), got[1].Path(), got[2].Path(), got[3].Path()}
	if diff := cmp.Diff([]string{"src/a.txt", "new.txt", "gone.txt", "new/name.txt"}, paths); diff != "" {
		t.Errorf("Path() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRawDiff_Malformed(t *testing.T) {
	tests := []string{
		"garbage\x00",
		":100644 100644 aaa M\x00a.txt\x00",
		":100644 100644 aaa bbb R100\x00only-one\x00",
	}
	for _, raw := range tests {
		if _, err := parseRawDiff([]byte(raw)); err == nil {
			t.Errorf("parseRawDiff(%q) expected error", raw)
		}
	}
}

func TestGitRepository_DiffRenameFlag(t *testing.T) {
	for _, detect := range []bool{true, false} {
		exec := newMockExecutor()
		exec.addResponse("", nil)
		if _, err := newMockRepo(exec).Diff("a", "b", detect); err != nil {
			t.Fatalf("Diff() error = %v", err)
		}
		args := strings.Join(exec.calls[0].args, " ")
		wantFlag := "--no-renames"
		if detect {
			wantFlag = "-M"
		}
		if !strings.Contains(args, wantFlag) {
			t.Errorf("Diff(detectRenames=%v) args %q missing %s", detect, args, wantFlag)
		}
	}
}

func TestGitRepository_Entry(t *testing.T) {
	tests := []struct {
		name      string
		output    string
		wantFound bool
		want      Entry
	}{
		{
			name:      "blob",
			output:    "100755 blob abc\tbin/run.sh\x00",
			wantFound: true,
			want:      Entry{Mode: "100755", Type: "blob", OID: "abc", Path: "bin/run.sh"},
		},
		{name: "missing", output: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := newMockExecutor()
			exec.addResponse(tt.output, nil)
			got, found, err := newMockRepo(exec).Entry("HEAD", "bin/run.sh")
			if err != nil {
				t.Fatalf("Entry() error = %v", err)
			}
			if found != tt.wantFound {
				t.Fatalf("Entry() found = %v, want %v", found, tt.wantFound)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Entry() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGitRepository_ReadBlobSkipsTrees(t *testing.T) {
	exec := newMockExecutor()
	exec.addResponse("040000 tree abc\tsrc\x00", nil)

	_, found, err := newMockRepo(exec).ReadBlob("HEAD", "src")
	if err != nil || found {
		t.Errorf("ReadBlob(dir) = (%v, %v), want (false, nil)", found, err)
	}
	if len(exec.calls) != 1 {
		t.Errorf("expected only ls-tree to run, got %d calls", len(exec.calls))
	}
}

func TestGitRepository_MergeTrees(t *testing.T) {
	t.Run("unknown strategy", func(t *testing.T) {
		_, err := newMockRepo(newMockExecutor()).MergeTrees("octopus", "b", "c", "o")
		if !errors.Is(err, errors.ErrUnknownStrategy) {
			t.Errorf("MergeTrees() error = %v, want ErrUnknownStrategy", err)
		}
	})

	t.Run("three-way clean", func(t *testing.T) {
		exec := newMockExecutor()
		exec.addResponse("tree1\x00", nil)
		got, err := newMockRepo(exec).MergeTrees("ort", "b", "c", "o")
		if err != nil {
			t.Fatalf("MergeTrees() error = %v", err)
		}
		if diff := cmp.Diff(MergeOutcome{Tree: "tree1", Clean: true}, got); diff != "" {
			t.Errorf("MergeTrees() mismatch (-want +got):\n%s", diff)
		}
		want := []string{"merge-tree", "--write-tree", "-z", "--no-messages", "--merge-base=b", "c", "o"}
		if diff := cmp.Diff(want, exec.calls[0].args); diff != "" {
			t.Errorf("args mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("three-way conflict", func(t *testing.T) {
		exec := newMockExecutor()
		// Deleted by other: no stage 3, so nothing can be merged line by line.
		exec.addResponse("tree2\x00100644 x 1\ta.txt\x00100644 y 2\ta.txt\x00", &exitError{code: 1})
		got, err := newMockRepo(exec).MergeTrees("recursive", "b", "c", "o")
		if err != nil {
			t.Fatalf("MergeTrees() error = %v", err)
		}
		if got.Tree != "tree2" || got.Clean {
			t.Errorf("MergeTrees() = %+v, want conflicted tree2", got)
		}
		if len(exec.calls) != 1 {
			t.Errorf("expected no follow-up commands, got %d calls", len(exec.calls))
		}
	})

	t.Run("three-way conflict resolved line by line", func(t *testing.T) {
		exec := newMockExecutor()
		exec.addResponse("tree2\x00100644 b1 1\tf.txt\x00100644 c1 2\tf.txt\x00100644 o1 3\tf.txt\x00", &exitError{code: 1})
		exec.addResponse("L1\nL2\nL3\n", nil)
		exec.addResponse("L1\nA2\nL3\n", nil)
		exec.addResponse("L1\nL2\nB3\n", nil)
		exec.addResponse("m1\n", nil)
		exec.addResponse("", nil)
		exec.addResponse("", nil)
		exec.addResponse("tree3\n", nil)

		got, err := newMockRepo(exec).MergeTrees("recursive", "b", "c", "o")
		if err != nil {
			t.Fatalf("MergeTrees() error = %v", err)
		}
		if diff := cmp.Diff(MergeOutcome{Tree: "tree3", Clean: true}, got); diff != "" {
			t.Errorf("MergeTrees() mismatch (-want +got):\n%s", diff)
		}
		want := []string{"update-index", "--add", "--cacheinfo", "100644,m1,f.txt"}
		if diff := cmp.Diff(want, exec.calls[6].args); diff != "" {
			t.Errorf("update-index args mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("three-way failure", func(t *testing.T) {
		exec := newMockExecutor()
		exec.addResponse("", &exitError{code: 128, stderr: "fatal: unknown option"})
		if _, err := newMockRepo(exec).MergeTrees("ort", "b", "c", "o"); err == nil {
			t.Error("MergeTrees() expected error")
		}
	})

	t.Run("two-way fallback folds base, current, other", func(t *testing.T) {
		exec := newMockExecutor()
		exec.addResponse("tb\n", nil)
		exec.addResponse("tb\n", nil)
		got, err := newMockRepo(exec).MergeTrees("ours", "b", "c", "o")
		if err != nil {
			t.Fatalf("MergeTrees() error = %v", err)
		}
		if got.Tree != "tb" || !got.Clean {
			t.Errorf("MergeTrees() = %+v", got)
		}
		if exec.calls[0].args[2] != "b^{tree}" || exec.calls[1].args[2] != "tb^{tree}" {
			t.Errorf("unexpected two-way sequence: %v / %v", exec.calls[0].args, exec.calls[1].args)
		}
	})
}

func TestGitRepository_MergeTwoWay(t *testing.T) {
	exec := newMockExecutor()
	exec.addResponse("theirs-tree\n", nil)
	got, err := newMockRepo(exec).MergeTwoWay("theirs", "c", "o")
	if err != nil {
		t.Fatalf("MergeTwoWay() error = %v", err)
	}
	if got.Tree != "theirs-tree" || exec.calls[0].args[2] != "o^{tree}" {
		t.Errorf("MergeTwoWay(theirs) kept the wrong side: %+v %v", got, exec.calls[0].args)
	}

	if _, err := newMockRepo(newMockExecutor()).MergeTwoWay("ort", "c", "o"); !errors.Is(err, errors.ErrUnknownStrategy) {
		t.Errorf("MergeTwoWay(ort) error = %v, want ErrUnknownStrategy", err)
	}
}

func TestGitRepository_CommitTreeIdentity(t *testing.T) {
	exec := newMockExecutor()
	exec.addResponse("commit1\n", nil)
	id, err := newMockRepo(exec).CommitTree("tree", []string{"p1", "p2"}, "msg")
	if err != nil || id != "commit1" {
		t.Fatalf("CommitTree() = (%q, %v)", id, err)
	}
	want := []string{"commit-tree", "tree", "-p", "p1", "-p", "p2", "-m", "msg"}
	if diff := cmp.Diff(want, exec.calls[0].args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(syntheticIdentity, exec.calls[0].env); diff != "" {
		t.Errorf("env mismatch (-want +got):\n%s", diff)
	}
}

func TestStrategyTable(t *testing.T) {
	if diff := cmp.Diff([]string{"ort", "ours", "recursive", "theirs"}, StrategyNames()); diff != "" {
		t.Errorf("StrategyNames() mismatch (-want +got):\n%s", diff)
	}
	for name, threeWay := range map[string]bool{"recursive": true, "ort": true, "ours": false, "theirs": false} {
		s, ok := LookupStrategy(name)
		if !ok || s.ThreeWay != threeWay {
			t.Errorf("LookupStrategy(%q) = (%+v, %v)", name, s, ok)
		}
	}
	if _, ok := LookupStrategy("resolve"); ok {
		t.Error("LookupStrategy(resolve) should fail")
	}
}

// -----------------------------------------------------------------------------
// Integration Tests (real git)
// -----------------------------------------------------------------------------

func TestTempRepository_CommitFileAndRead(t *testing.T) {
	testutil.SkipIfNoGit(t)

	repo, err := NewTempRepository("", logging.NopLogger())
	if err != nil {
		t.Fatalf("NewTempRepository() error = %v", err)
	}
	defer repo.Close()

	root, err := repo.CommitFile("", "dir/file.txt", []byte("hello\n"), false)
	if err != nil {
		t.Fatalf("CommitFile() error = %v", err)
	}
	data, found, err := repo.ReadBlob(root, "dir/file.txt")
	if err != nil || !found || string(data) != "hello\n" {
		t.Fatalf("ReadBlob() = (%q, %v, %v)", data, found, err)
	}

	removed, err := repo.CommitFile(root, "dir/file.txt", nil, true)
	if err != nil {
		t.Fatalf("CommitFile(remove) error = %v", err)
	}
	if _, found, _ := repo.ReadBlob(removed, "dir/file.txt"); found {
		t.Error("file still present after removal commit")
	}

	changes, err := repo.Diff(root, removed, true)
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	if len(changes) != 1 || changes[0].Status != "D" || changes[0].Path() != "dir/file.txt" {
		t.Errorf("Diff() = %+v", changes)
	}
}

func TestTempRepository_MergeTrees(t *testing.T) {
	testutil.SkipIfGitOlderThan(t, 2, 40)

	repo, err := NewTempRepository("", logging.NopLogger())
	if err != nil {
		t.Fatalf("NewTempRepository() error = %v", err)
	}
	defer repo.Close()

	commit := func(parent, content string) string {
		t.Helper()
		id, err := repo.CommitFile(parent, "f.txt", []byte(content), false)
		if err != nil {
			t.Fatalf("CommitFile() error = %v", err)
		}
		return id
	}

	base := commit("", "L1\nL2\nL3\n")
	a := commit(base, "L1\nA2\nL3\n")
	b := commit(base, "L1\nL2\nB3\n")
	c := commit(base, "L1\nC2\nL3\n")

	clean, err := repo.MergeTrees("ort", base, a, b)
	if err != nil {
		t.Fatalf("MergeTrees() error = %v", err)
	}
	if !clean.Clean {
		t.Error("expected clean merge")
	}
	data, _, _ := repo.ReadBlob(clean.Tree, "f.txt")
	if string(data) != "L1\nA2\nB3\n" {
		t.Errorf("merged content = %q", data)
	}

	conflicted, err := repo.MergeTrees("recursive", base, a, c)
	if err != nil {
		t.Fatalf("MergeTrees() error = %v", err)
	}
	if conflicted.Clean {
		t.Error("expected conflicting merge")
	}
	data, _, _ = repo.ReadBlob(conflicted.Tree, "f.txt")
	if !strings.Contains(string(data), "<<<<<<<") {
		t.Errorf("expected conflict markers, got %q", data)
	}

	theirs, err := repo.MergeTwoWay("theirs", a, c)
	if err != nil {
		t.Fatalf("MergeTwoWay() error = %v", err)
	}
	data, _, _ = repo.ReadBlob(theirs.Tree, "f.txt")
	if string(data) != "L1\nC2\nL3\n" {
		t.Errorf("theirs content = %q", data)
	}
}

func TestOpen(t *testing.T) {
	testutil.SkipIfNoGit(t)

	dir := testutil.SetupTestRepoWithContent(t, map[string]string{"sub/x.txt": "x"})
	repo, err := Open(dir+"/sub", "", logging.NopLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	head, found, err := repo.Resolve("main")
	if err != nil || !found {
		t.Fatalf("Resolve(main) = (%v, %v)", found, err)
	}
	data, found, err := repo.ReadBlob(head, "sub/x.txt")
	if err != nil || !found || string(data) != "x" {
		t.Errorf("ReadBlob() from subdirectory = (%q, %v, %v)", data, found, err)
	}

	if _, found, err := repo.Resolve("does-not-exist"); err != nil || found {
		t.Errorf("Resolve(missing) = (%v, %v), want (false, nil)", found, err)
	}

	if _, err := Open(t.TempDir(), "", logging.NopLogger()); err == nil {
		t.Error("Open() outside a repository should fail")
	}
}
