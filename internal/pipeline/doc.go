// Package pipeline defines how a file's conflicting revisions are resolved:
// pipelines of rule-gated merge operations, and the executor that runs them.
//
// # Pipelines
//
// [Standard] runs its steps in order. A step whose rule does not apply is
// skipped; the first step that does not succeed ends the pipeline with its
// result. When every step is skipped or succeeds the result is a synthetic
// SUCCESS without output.
//
// [Fallback] tries its applicable steps in order and returns the first
// SUCCESS. When nothing succeeds it returns the last failure. No applicable
// steps at all is a synthetic SUCCESS.
//
// [Conditional] runs the sub-pipeline of the first [Branch] whose rule
// applies, else its default pipeline, else reports a synthetic SUCCESS.
//
// # Execution
//
// [Executor] resolves operations through an operation registry and never
// lets an operation failure escape: returned errors and panics both become
// ERROR results carrying the cause.
//
// # Usage
//
//	std, _ := pipeline.NewStandard("java", []pipeline.Step{
//	    {Rule: rule.MustFilePattern("*.java"), Operation: "git-merge", Params: []string{"ort"}},
//	})
//	exec := pipeline.NewExecutor(operation.Default(), pipeline.WithLogger(logger))
//	result := exec.Execute(std, ctx)
package pipeline
