package pipeline

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	mperrors "github.com/Iron-Ham/mergepipe/internal/errors"
	"github.com/Iron-Ham/mergepipe/internal/merge"
	"github.com/Iron-Ham/mergepipe/internal/operation"
	"github.com/Iron-Ham/mergepipe/internal/rule"
)

// recorder is an operation that returns a canned result and records calls
// in a shared log.
type recorder struct {
	name   string
	result merge.Result
	err    error
	panic  any
	log    *[]string
}

func (r *recorder) Name() string        { return r.name }
func (r *recorder) Description() string { return "records " + r.name }
func (r *recorder) Execute(_ *merge.Context, _ []string) (merge.Result, error) {
	*r.log = append(*r.log, r.name)
	if r.panic != nil {
		panic(r.panic)
	}
	return r.result, r.err
}

type fixture struct {
	exec  *Executor
	calls []string
}

func newFixture(t *testing.T, ops ...*recorder) *fixture {
	t.Helper()
	f := &fixture{}
	reg := operation.NewRegistry()
	for _, op := range ops {
		op.log = &f.calls
		if err := reg.Register(op); err != nil {
			t.Fatal(err)
		}
	}
	f.exec = NewExecutor(reg)
	return f
}

func ok(name string) *recorder {
	return &recorder{name: name, result: merge.Success(name+" ok", "/out/"+name)}
}

func conflict(name string) *recorder {
	return &recorder{name: name, result: merge.Conflict(name+" conflict", "")}
}

func failing(name string) *recorder {
	return &recorder{name: name, result: merge.Failure(name+" failed", nil)}
}

func step(op string) Step { return Step{Operation: op} }

func skipped(op string) Step {
	return Step{Operation: op, Rule: rule.MustFilePattern("*.never")}
}

func mustStandard(t *testing.T, steps ...Step) *Standard {
	t.Helper()
	p, err := NewStandard("std", steps)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func mustFallback(t *testing.T, steps ...Step) *Fallback {
	t.Helper()
	p, err := NewFallback("fb", steps)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

var fileCtx = merge.NewDriverContext("", "", "", "src/Main.java")

func TestStandard(t *testing.T) {
	tests := []struct {
		name       string
		steps      []Step
		wantStatus merge.Status
		wantOutput string
		wantCalls  []string
	}{
		{"all succeed", []Step{step("a"), step("b")}, merge.StatusSuccess, "", []string{"a", "b"}},
		{"failure stops", []Step{step("fail"), step("a")}, merge.StatusError, "", []string{"fail"}},
		{"conflict stops", []Step{step("a"), step("conflict"), step("b")}, merge.StatusConflict, "", []string{"a", "conflict"}},
		{"skipped steps pass", []Step{skipped("fail"), step("a")}, merge.StatusSuccess, "", []string{"a"}},
		{"all skipped", []Step{skipped("a")}, merge.StatusSuccess, "", nil},
		{"empty", nil, merge.StatusSuccess, "", nil},
		{"unknown operation", []Step{step("missing"), step("a")}, merge.StatusError, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, ok("a"), ok("b"), failing("fail"), conflict("conflict"))
			res := f.exec.Execute(mustStandard(t, tt.steps...), fileCtx)
			if res.Status != tt.wantStatus {
				t.Errorf("Status = %v, want %v (%s)", res.Status, tt.wantStatus, res.Message)
			}
			if res.OutputPath != tt.wantOutput {
				t.Errorf("OutputPath = %q, want %q", res.OutputPath, tt.wantOutput)
			}
			if diff := cmp.Diff(tt.wantCalls, f.calls); diff != "" {
				t.Errorf("calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStandard_UnknownOperation(t *testing.T) {
	f := newFixture(t)
	res := f.exec.Execute(mustStandard(t, step("nope")), fileCtx)
	if !mperrors.Is(res.Err, mperrors.ErrUnknownOperation) {
		t.Errorf("Err = %v, want ErrUnknownOperation", res.Err)
	}
}

func TestFallback(t *testing.T) {
	tests := []struct {
		name        string
		steps       []Step
		wantStatus  merge.Status
		wantMessage string
		wantCalls   []string
	}{
		{"first success wins", []Step{step("a"), step("b")}, merge.StatusSuccess, "a ok", []string{"a"}},
		{"conflict then success", []Step{step("conflict"), step("b")}, merge.StatusSuccess, "b ok", []string{"conflict", "b"}},
		{"last failure returned", []Step{step("conflict"), step("fail")}, merge.StatusError, "fail failed", []string{"conflict", "fail"}},
		{"unknown operation is remembered", []Step{step("conflict"), step("missing")}, merge.StatusError, "unknown operation: missing", []string{"conflict"}},
		{"unknown operation then success", []Step{step("missing"), step("a")}, merge.StatusSuccess, "a ok", []string{"a"}},
		{"no applicable steps", []Step{skipped("fail")}, merge.StatusSuccess, "no applicable steps", nil},
		{"no steps", nil, merge.StatusSuccess, "no applicable steps", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, ok("a"), ok("b"), failing("fail"), conflict("conflict"))
			res := f.exec.Execute(mustFallback(t, tt.steps...), fileCtx)
			if res.Status != tt.wantStatus || res.Message != tt.wantMessage {
				t.Errorf("Execute() = %v, want %v %q", res, tt.wantStatus, tt.wantMessage)
			}
			if diff := cmp.Diff(tt.wantCalls, f.calls); diff != "" {
				t.Errorf("calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFallback_ReturnsOperationResultVerbatim(t *testing.T) {
	f := newFixture(t, ok("a"))
	res := f.exec.Execute(mustFallback(t, step("a")), fileCtx)
	if res.OutputPath != "/out/a" {
		t.Errorf("OutputPath = %q, want the operation's output", res.OutputPath)
	}
}

func TestConditional(t *testing.T) {
	java := rule.MustFilePattern("src/*.java")
	txt := rule.MustFilePattern("*.txt")

	f := newFixture(t, ok("a"), ok("b"), failing("fail"))
	javaPipeline := mustFallback(t, step("a"))
	txtPipeline := mustFallback(t, step("fail"))
	defPipeline := mustFallback(t, step("b"))

	tests := []struct {
		name        string
		branches    []Branch
		def         Pipeline
		wantStatus  merge.Status
		wantMessage string
	}{
		{"first matching branch", []Branch{{txt, txtPipeline}, {java, javaPipeline}}, defPipeline, merge.StatusSuccess, "a ok"},
		{"branch result is verbatim", []Branch{{java, txtPipeline}}, defPipeline, merge.StatusError, "fail failed"},
		{"default when nothing matches", []Branch{{txt, txtPipeline}}, defPipeline, merge.StatusSuccess, "b ok"},
		{"synthetic success", []Branch{{txt, txtPipeline}}, nil, merge.StatusSuccess, "no condition matched and no default pipeline"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewConditional("cond", tt.branches, tt.def)
			if err != nil {
				t.Fatal(err)
			}
			res := f.exec.Execute(p, fileCtx)
			if res.Status != tt.wantStatus || res.Message != tt.wantMessage {
				t.Errorf("Execute() = %v, want %v %q", res, tt.wantStatus, tt.wantMessage)
			}
			if tt.def == nil && res.OutputPath != "" {
				t.Errorf("synthetic success has output %q", res.OutputPath)
			}
		})
	}
}

func TestExecutor_ErrorsAndPanicsBecomeErrorResults(t *testing.T) {
	cause := errors.New("disk on fire")
	tests := []struct {
		name string
		op   *recorder
	}{
		{"returned error", &recorder{name: "op", err: cause}},
		{"panic with error", &recorder{name: "op", panic: cause}},
		{"panic with value", &recorder{name: "op", panic: "boom"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.op)
			res := f.exec.Execute(mustStandard(t, step("op")), fileCtx)
			if res.Status != merge.StatusError || res.Err == nil {
				t.Fatalf("Execute() = %v, want ERROR with cause", res)
			}
			var mergeErr *mperrors.MergeError
			if !mperrors.As(res.Err, &mergeErr) {
				t.Errorf("Err = %T, want *MergeError", res.Err)
			}
			if tt.op.panic != "boom" && !errors.Is(res.Err, cause) {
				t.Errorf("Err = %v, want it to wrap the cause", res.Err)
			}
		})
	}
}

func TestExecutor_NilPipeline(t *testing.T) {
	f := newFixture(t)
	if res := f.exec.Execute(nil, fileCtx); !mperrors.Is(res.Err, mperrors.ErrNoPipeline) {
		t.Errorf("Execute(nil) = %v", res)
	}
}

func TestConstructorsValidate(t *testing.T) {
	std := mustStandard(t)
	tests := []struct {
		name string
		err  error
	}{
		{"standard without name", func() error { _, err := NewStandard("", nil); return err }()},
		{"fallback step without operation", func() error { _, err := NewFallback("f", []Step{{}}); return err }()},
		{"branch without rule", func() error { _, err := NewConditional("c", []Branch{{Pipeline: std}}, nil); return err }()},
		{"branch without pipeline", func() error {
			_, err := NewConditional("c", []Branch{{Rule: rule.MustFilePattern("*")}}, nil)
			return err
		}()},
	}
	for _, tt := range tests {
		if !mperrors.Is(tt.err, mperrors.ErrInvalidInput) {
			t.Errorf("%s: error = %v, want validation error", tt.name, tt.err)
		}
	}
}

func TestContainsFilePattern(t *testing.T) {
	nested := mustStandard(t, Step{Operation: "a", Rule: rule.MustFilePattern("*.go")})
	notRule, _ := rule.NewComposite(rule.OpNot, rule.MustFilePattern("*.md"))
	cond, err := NewConditional("c",
		[]Branch{{Rule: rule.NewFileExtension([]string{"x"}, false), Pipeline: mustFallback(t, step("a"))}},
		nested)
	if err != nil {
		t.Fatal(err)
	}

	matches := func(path string) func(*rule.FilePattern) bool {
		return func(fp *rule.FilePattern) bool { return fp.Matches(path) }
	}

	tests := []struct {
		name string
		p    Pipeline
		path string
		want bool
	}{
		{"step rule", nested, "main.go", true},
		{"step rule miss", nested, "main.rs", false},
		{"inside composite", mustStandard(t, Step{Operation: "a", Rule: notRule}), "README.md", true},
		{"conditional default", cond, "main.go", true},
		{"no patterns", mustFallback(t, step("a")), "main.go", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContainsFilePattern(tt.p, matches(tt.path)); got != tt.want {
				t.Errorf("ContainsFilePattern() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfiguration(t *testing.T) {
	c := NewConfiguration()
	if !c.DetectRenames {
		t.Error("rename detection should default to on")
	}
	std := mustStandard(t)
	c.Pipelines = append(c.Pipelines, std)
	if p, ok := c.Pipeline("std"); !ok || p != std {
		t.Errorf("Pipeline(std) = (%v, %v)", p, ok)
	}
	if _, ok := c.Pipeline("other"); ok {
		t.Error("Pipeline(other) reported found")
	}
}
