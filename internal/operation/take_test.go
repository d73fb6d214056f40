package operation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Iron-Ham/mergepipe/internal/errors"
	"github.com/Iron-Ham/mergepipe/internal/logging"
	"github.com/Iron-Ham/mergepipe/internal/merge"
)

// revisions writes the non-empty contents into a temp dir and returns their
// paths; empty content means the revision is absent.
func revisions(t *testing.T, base, current, other string) (string, string, string) {
	t.Helper()
	dir := t.TempDir()
	write := func(name, content string) string {
		if content == "" {
			return ""
		}
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		return p
	}
	return write("base", base), write("current", current), write("other", other)
}

func readOrEmpty(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ""
	}
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestTakeCurrent(t *testing.T) {
	op := &TakeCurrent{logger: logging.NopLogger()}

	t.Run("driver returns current without copying", func(t *testing.T) {
		base, current, other := revisions(t, "b", "c", "o")
		res, err := op.Execute(merge.NewDriverContext(base, current, other, "f.txt"), nil)
		if err != nil || res.Status != merge.StatusSuccess || res.OutputPath != current {
			t.Fatalf("Execute() = (%v, %v)", res, err)
		}
		if readOrEmpty(t, current) != "c" {
			t.Error("current was modified")
		}
	})

	t.Run("tool copies to merged", func(t *testing.T) {
		_, current, other := revisions(t, "", "c", "o")
		merged := filepath.Join(t.TempDir(), "merged")
		res, err := op.Execute(merge.NewToolContext(current, other, merged), nil)
		if err != nil || res.OutputPath != merged {
			t.Fatalf("Execute() = (%v, %v)", res, err)
		}
		if got := readOrEmpty(t, merged); got != "c" {
			t.Errorf("merged = %q, want %q", got, "c")
		}
	})

	t.Run("absent current", func(t *testing.T) {
		base, _, other := revisions(t, "b", "", "o")
		res, _ := op.Execute(merge.NewDriverContext(base, "", other, "f.txt"), nil)
		if res.Status != merge.StatusError || !errors.Is(res.Err, errors.ErrMissingRevision) {
			t.Errorf("Execute() = %v, want missing revision error", res)
		}
	})
}

func TestTakeOther(t *testing.T) {
	op := &TakeOther{logger: logging.NopLogger()}

	t.Run("driver copies other over current", func(t *testing.T) {
		base, current, other := revisions(t, "b", "c", "o")
		res, err := op.Execute(merge.NewDriverContext(base, current, other, "f.txt"), nil)
		if err != nil || res.Status != merge.StatusSuccess || res.OutputPath != current {
			t.Fatalf("Execute() = (%v, %v)", res, err)
		}
		if got := readOrEmpty(t, current); got != "o" {
			t.Errorf("current = %q, want %q", got, "o")
		}
	})

	t.Run("tool copies other to merged", func(t *testing.T) {
		_, current, other := revisions(t, "", "c", "o")
		merged := filepath.Join(t.TempDir(), "merged")
		res, err := op.Execute(merge.NewToolContext(current, other, merged), nil)
		if err != nil || res.OutputPath != merged {
			t.Fatalf("Execute() = (%v, %v)", res, err)
		}
		if got := readOrEmpty(t, merged); got != "o" {
			t.Errorf("merged = %q, want %q", got, "o")
		}
		if readOrEmpty(t, current) != "c" {
			t.Error("local was modified in tool mode")
		}
	})

	t.Run("absent other", func(t *testing.T) {
		base, current, _ := revisions(t, "b", "c", "")
		res, _ := op.Execute(merge.NewDriverContext(base, current, "", "f.txt"), nil)
		if res.Status != merge.StatusError {
			t.Errorf("Execute() = %v, want ERROR", res)
		}
	})

	t.Run("no output location", func(t *testing.T) {
		_, _, other := revisions(t, "", "", "o")
		res, _ := op.Execute(merge.NewDriverContext("", "", other, "f.txt"), nil)
		if res.Status != merge.StatusError {
			t.Errorf("Execute() = %v, want ERROR", res)
		}
	})

	t.Run("batch output when current is absent", func(t *testing.T) {
		_, _, other := revisions(t, "", "", "o")
		ctx := merge.NewDriverContext("", "", other, "f.txt")
		ctx.Batch = &merge.Batch{Output: filepath.Join(t.TempDir(), "result")}
		res, err := op.Execute(ctx, nil)
		if err != nil || res.OutputPath != ctx.Batch.Output {
			t.Fatalf("Execute() = (%v, %v)", res, err)
		}
		if got := readOrEmpty(t, ctx.Batch.Output); got != "o" {
			t.Errorf("result = %q, want %q", got, "o")
		}
	})
}

func TestKeepBase(t *testing.T) {
	op := &KeepBase{logger: logging.NopLogger()}

	t.Run("driver returns base", func(t *testing.T) {
		base, current, other := revisions(t, "b", "c", "o")
		res, err := op.Execute(merge.NewDriverContext(base, current, other, "f.txt"), nil)
		if err != nil || res.Status != merge.StatusSuccess || res.OutputPath != base {
			t.Fatalf("Execute() = (%v, %v)", res, err)
		}
	})

	t.Run("absent base means no output", func(t *testing.T) {
		_, current, other := revisions(t, "", "c", "o")
		res, err := op.Execute(merge.NewDriverContext("", current, other, "f.txt"), nil)
		if err != nil || res.Status != merge.StatusSuccess || res.OutputPath != "" {
			t.Fatalf("Execute() = (%v, %v), want SUCCESS without output", res, err)
		}
	})

	t.Run("tool removes merged", func(t *testing.T) {
		_, current, other := revisions(t, "", "c", "o")
		merged := filepath.Join(t.TempDir(), "merged")
		if err := os.WriteFile(merged, []byte("stale"), 0644); err != nil {
			t.Fatal(err)
		}
		res, err := op.Execute(merge.NewToolContext(current, other, merged), nil)
		if err != nil || res.Status != merge.StatusSuccess || res.OutputPath != "" {
			t.Fatalf("Execute() = (%v, %v)", res, err)
		}
		if _, err := os.Stat(merged); !os.IsNotExist(err) {
			t.Error("merged output still exists")
		}
	})

	t.Run("tool with missing merged file", func(t *testing.T) {
		_, current, other := revisions(t, "", "c", "o")
		merged := filepath.Join(t.TempDir(), "never-created")
		if res, err := op.Execute(merge.NewToolContext(current, other, merged), nil); err != nil || !res.Succeeded() {
			t.Errorf("Execute() = (%v, %v)", res, err)
		}
	})
}
