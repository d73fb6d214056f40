package pipeline

import (
	"fmt"

	"github.com/Iron-Ham/mergepipe/internal/errors"
	"github.com/Iron-Ham/mergepipe/internal/logging"
	"github.com/Iron-Ham/mergepipe/internal/merge"
	"github.com/Iron-Ham/mergepipe/internal/operation"
	"github.com/Iron-Ham/mergepipe/internal/rule"
)

// Operations resolves operation names. *operation.Registry implements it.
type Operations interface {
	Get(name string) (operation.Operation, bool)
}

// Executor runs pipelines against merge contexts.
type Executor struct {
	ops    Operations
	logger *logging.Logger
}

// NewExecutor creates an executor that resolves operations through ops.
func NewExecutor(ops Operations, opts ...ExecutorOption) *Executor {
	e := &Executor{ops: ops, logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs p for ctx. It always returns exactly one result.
func (e *Executor) Execute(p Pipeline, ctx *merge.Context) merge.Result {
	if p == nil {
		return merge.Failure("no pipeline to execute", errors.ErrNoPipeline)
	}
	logger := e.logger.WithPipeline(p.Name())
	logger.Debug("executing pipeline", "description", p.Description())

	switch p := p.(type) {
	case *Standard:
		return e.executeStandard(p, ctx, logger)
	case *Fallback:
		return e.executeFallback(p, ctx, logger)
	case *Conditional:
		return e.executeConditional(p, ctx, logger)
	default:
		return merge.Failure(fmt.Sprintf("unsupported pipeline type %T", p), errors.ErrInvalidInput)
	}
}

func (e *Executor) executeStandard(p *Standard, ctx *merge.Context, logger *logging.Logger) merge.Result {
	for _, step := range p.steps {
		result, ran := e.runStep(step, ctx, logger)
		if !ran {
			continue
		}
		if !result.Succeeded() {
			logger.Debug("pipeline step did not succeed", "operation", step.Operation, "result", result.String())
			return result
		}
	}
	logger.Debug("pipeline executed successfully")
	return merge.Success("pipeline executed successfully", "")
}

func (e *Executor) executeFallback(p *Fallback, ctx *merge.Context, logger *logging.Logger) merge.Result {
	var last *merge.Result
	for _, step := range p.steps {
		result, ran := e.runStep(step, ctx, logger)
		if !ran {
			continue
		}
		if result.Succeeded() {
			logger.Debug("fallback step succeeded", "operation", step.Operation)
			return result
		}
		logger.Debug("fallback step failed, trying next", "operation", step.Operation, "result", result.String())
		last = &result
	}

	if last != nil {
		logger.Debug("all fallback steps failed")
		return *last
	}
	logger.Debug("no applicable steps in fallback pipeline")
	return merge.Success("no applicable steps", "")
}

func (e *Executor) executeConditional(p *Conditional, ctx *merge.Context, logger *logging.Logger) merge.Result {
	for _, b := range p.branches {
		if rule.Evaluate(b.Rule, ctx, logger) {
			logger.Debug("condition matched", "rule", rule.Describe(b.Rule), "pipeline", b.Pipeline.Name())
			return e.Execute(b.Pipeline, ctx)
		}
	}
	if p.fallback != nil {
		logger.Debug("no condition matched, running default pipeline", "pipeline", p.fallback.Name())
		return e.Execute(p.fallback, ctx)
	}
	logger.Debug("no condition matched and no default pipeline")
	return merge.Success("no condition matched and no default pipeline", "")
}

// runStep executes step when its rule applies. ran is false for a skipped
// step.
func (e *Executor) runStep(step Step, ctx *merge.Context, logger *logging.Logger) (result merge.Result, ran bool) {
	logger = logger.WithOperation(step.Operation)
	if !rule.Evaluate(step.Rule, ctx, logger) {
		logger.Debug("skipping step, rule does not apply", "rule", rule.Describe(step.Rule))
		return merge.Result{}, false
	}

	op, ok := e.ops.Get(step.Operation)
	if !ok {
		logger.Error("unknown operation")
		return merge.Failure("unknown operation: "+step.Operation, errors.ErrUnknownOperation), true
	}

	logger.Debug("executing step", "params", step.Params)
	return e.invoke(op, step.Params, ctx, logger), true
}

// invoke calls op, turning returned errors and panics into ERROR results.
func (e *Executor) invoke(op operation.Operation, params []string, ctx *merge.Context, logger *logging.Logger) (result merge.Result) {
	defer func() {
		if r := recover(); r != nil {
			cause, ok := r.(error)
			if !ok {
				cause = fmt.Errorf("%v", r)
			}
			logger.Error("operation panicked", "panic", r)
			result = merge.Failure("error executing operation "+op.Name(),
				errors.NewMergeError("operation panicked", cause).WithOperation(op.Name()).WithFile(ctx.RelativePath))
		}
	}()

	res, err := op.Execute(ctx, params)
	if err != nil {
		logger.Error("operation failed", "error", err)
		return merge.Failure("error executing operation "+op.Name()+": "+err.Error(),
			errors.NewMergeError("operation failed", err).WithOperation(op.Name()).WithFile(ctx.RelativePath))
	}
	return res
}
