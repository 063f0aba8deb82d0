package operator

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aixgo-dev/synode/internal/graph"
	"github.com/aixgo-dev/synode/internal/logging"
	"github.com/aixgo-dev/synode/pkg/llm/provider"
)

// Deps are the collaborators operators are built from.
type Deps struct {
	Providers  *provider.Registry
	Basics     map[string]BasicFactory
	Supervisor Supervisor
	Launcher   Launcher
	Limits     *Limits
	Logger     *slog.Logger
}

func (d Deps) limits() *Limits {
	if d.Limits == nil {
		return DefaultLimits()
	}
	return d.Limits
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return logging.NewNop()
	}
	return d.Logger
}

// New builds the operator declared by decl.
func New(decl graph.OperatorDecl, deps Deps) (Operator, error) {
	switch decl.Kind {
	case graph.KindBot:
		return NewBot(decl, deps)
	case graph.KindHydra:
		return NewHydra(decl, deps)
	case graph.KindSynod:
		return NewSynod(decl, deps)
	case graph.KindBasic:
		return NewBasic(decl, deps)
	case graph.KindArgus:
		return NewArgus(decl, deps)
	}
	return nil, fmt.Errorf("%w: %q (operator %q)", ErrUnsupportedKind, decl.Kind, decl.Alias)
}

// Registry maps aliases to bound operators. It is populated once and then
// frozen; lookups are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	ops    map[string]Operator
	frozen bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Operator)}
}

// Bind builds every declared operator into a frozen registry. extra
// operators, keyed by alias, take the place of the declared ones.
func Bind(decls []graph.OperatorDecl, deps Deps, extra map[string]Operator) (*Registry, error) {
	r := NewRegistry()
	for _, decl := range decls {
		op, ok := extra[decl.Alias]
		if !ok {
			var err error
			if op, err = New(decl, deps); err != nil {
				return nil, err
			}
		}
		if err := r.Register(op); err != nil {
			return nil, err
		}
	}
	r.Freeze()
	return r, nil
}

// Register adds op under its alias.
func (r *Registry) Register(op Operator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrFrozen
	}
	if _, dup := r.ops[op.Alias()]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateAlias, op.Alias())
	}
	r.ops[op.Alias()] = op
	return nil
}

// Freeze rejects further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Lookup returns the operator bound under alias.
func (r *Registry) Lookup(alias string) (Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[alias]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperator, alias)
	}
	return op, nil
}

// Aliases lists the bound aliases in sorted order.
func (r *Registry) Aliases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ops))
	for alias := range r.ops {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}

// SetStreamer attaches fn to the operator under alias.
func (r *Registry) SetStreamer(alias string, fn func(chunk string)) error {
	op, err := r.Lookup(alias)
	if err != nil {
		return err
	}
	s, ok := op.(Streamable)
	if !ok {
		return fmt.Errorf("%w: %q is %s", ErrNotStreamable, alias, op.Kind())
	}
	s.SetStreamer(fn)
	return nil
}
