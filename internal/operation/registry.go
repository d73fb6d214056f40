package operation

import (
	"sort"
	"sync"

	"github.com/Iron-Ham/mergepipe/internal/errors"
)

// Registry maps operation names to operations. It is safe for concurrent
// use. Once frozen it rejects further registrations.
type Registry struct {
	mu     sync.RWMutex
	ops    map[string]Operation
	frozen bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Operation)}
}

// Register adds op under its name. A later registration under the same name
// replaces the earlier one.
func (r *Registry) Register(op Operation) error {
	if op == nil {
		return errors.NewValidationError("operation is nil").WithField("operation")
	}
	name := op.Name()
	if name == "" {
		return errors.NewValidationError("operation name is empty").WithField("name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return errors.Wrapf(errors.ErrRegistryFrozen, "cannot register %q", name)
	}
	r.ops[name] = op
	return nil
}

// Get returns the operation registered under name.
func (r *Registry) Get(name string) (Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	return op, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Builtins returns the built-in operations configured with deps.
func Builtins(deps Deps) []Operation {
	deps = deps.withDefaults()
	return []Operation{
		&TakeCurrent{logger: deps.Logger},
		&TakeOther{logger: deps.Logger},
		&KeepBase{logger: deps.Logger},
		&GitMerge{deps: deps},
		&CommandLine{deps: deps},
	}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
	defaultErr      error
)

// InitDefault builds the process-wide registry from the built-ins and
// plugins, then freezes it. Only the first call has any effect; later calls
// return the outcome of the first.
func InitDefault(deps Deps, plugins ...Operation) (*Registry, error) {
	defaultOnce.Do(func() {
		reg := NewRegistry()
		for _, op := range append(Builtins(deps), plugins...) {
			if err := reg.Register(op); err != nil {
				defaultErr = err
				return
			}
		}
		reg.Freeze()
		defaultRegistry = reg
	})
	return defaultRegistry, defaultErr
}

// Default returns the process-wide registry, initialising it with the
// built-ins alone when InitDefault has not run.
func Default() *Registry {
	reg, err := InitDefault(Deps{})
	if err != nil || reg == nil {
		// Built-ins always register cleanly; only a bad plugin gets here.
		reg = NewRegistry()
		reg.Freeze()
	}
	return reg
}
