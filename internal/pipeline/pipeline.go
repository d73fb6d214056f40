package pipeline

import (
	"fmt"

	"github.com/Iron-Ham/mergepipe/internal/errors"
	"github.com/Iron-Ham/mergepipe/internal/rule"
)

// Pipeline is one of *Standard, *Fallback or *Conditional.
type Pipeline interface {
	Name() string
	Description() string
	isPipeline()
}

// Step runs Operation with Params when Rule applies. A nil Rule always
// applies.
type Step struct {
	Rule      rule.Rule
	Operation string
	Params    []string
}

// Branch selects Pipeline when Rule applies.
type Branch struct {
	Rule     rule.Rule
	Pipeline Pipeline
}

func validateName(name string) error {
	if name == "" {
		return errors.NewValidationError("pipeline name is empty").WithField("name")
	}
	return nil
}

func validateSteps(name string, steps []Step) error {
	for i, s := range steps {
		if s.Operation == "" {
			return errors.NewValidationError(fmt.Sprintf("pipeline %q step %d has no operation", name, i)).
				WithField(fmt.Sprintf("steps[%d].operation", i))
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Standard
// -----------------------------------------------------------------------------

// Standard runs every applicable step in order.
type Standard struct {
	name  string
	steps []Step
}

// NewStandard creates a standard pipeline.
func NewStandard(name string, steps []Step) (*Standard, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validateSteps(name, steps); err != nil {
		return nil, err
	}
	return &Standard{name: name, steps: steps}, nil
}

func (p *Standard) Name() string        { return p.name }
func (p *Standard) Description() string { return "Standard pipeline: " + p.name }
func (p *Standard) Steps() []Step       { return p.steps }
func (*Standard) isPipeline()           {}

// -----------------------------------------------------------------------------
// Fallback
// -----------------------------------------------------------------------------

// Fallback tries applicable steps in order until one succeeds.
type Fallback struct {
	name  string
	steps []Step
}

// NewFallback creates a fallback pipeline.
func NewFallback(name string, steps []Step) (*Fallback, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validateSteps(name, steps); err != nil {
		return nil, err
	}
	return &Fallback{name: name, steps: steps}, nil
}

func (p *Fallback) Name() string        { return p.name }
func (p *Fallback) Description() string { return "Fallback pipeline: " + p.name }
func (p *Fallback) Steps() []Step       { return p.steps }
func (*Fallback) isPipeline()           {}

// -----------------------------------------------------------------------------
// Conditional
// -----------------------------------------------------------------------------

// Conditional runs the sub-pipeline of the first branch whose rule applies,
// or the default pipeline when none does. Nesting must be acyclic.
type Conditional struct {
	name     string
	branches []Branch
	fallback Pipeline
}

// NewConditional creates a conditional pipeline. def may be nil.
func NewConditional(name string, branches []Branch, def Pipeline) (*Conditional, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	for i, b := range branches {
		if b.Rule == nil {
			return nil, errors.NewValidationError(fmt.Sprintf("pipeline %q branch %d has no rule", name, i)).
				WithField(fmt.Sprintf("branches[%d].rule", i))
		}
		if b.Pipeline == nil {
			return nil, errors.NewValidationError(fmt.Sprintf("pipeline %q branch %d has no pipeline", name, i)).
				WithField(fmt.Sprintf("branches[%d].pipeline", i))
		}
	}
	return &Conditional{name: name, branches: branches, fallback: def}, nil
}

func (p *Conditional) Name() string        { return p.name }
func (p *Conditional) Description() string { return "Conditional pipeline: " + p.name }
func (p *Conditional) Branches() []Branch  { return p.branches }

// Default returns the pipeline used when no branch applies, or nil.
func (p *Conditional) Default() Pipeline { return p.fallback }

func (*Conditional) isPipeline() {}

// -----------------------------------------------------------------------------
// Tree walks
// -----------------------------------------------------------------------------

// ContainsFilePattern reports whether any FilePattern rule in p (step rules,
// branch rules and nested pipelines) satisfies match.
func ContainsFilePattern(p Pipeline, match func(*rule.FilePattern) bool) bool {
	stepsMatch := func(steps []Step) bool {
		for _, s := range steps {
			if s.Rule != nil && rule.WalkFilePatterns(s.Rule, match) {
				return true
			}
		}
		return false
	}

	switch p := p.(type) {
	case *Standard:
		return stepsMatch(p.steps)
	case *Fallback:
		return stepsMatch(p.steps)
	case *Conditional:
		for _, b := range p.branches {
			if rule.WalkFilePatterns(b.Rule, match) || ContainsFilePattern(b.Pipeline, match) {
				return true
			}
		}
		return p.fallback != nil && ContainsFilePattern(p.fallback, match)
	default:
		return false
	}
}
