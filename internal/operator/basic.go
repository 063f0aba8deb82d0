package operator

import (
	"context"
	"fmt"
	"sort"

	"github.com/aixgo-dev/synode/internal/graph"
	"github.com/aixgo-dev/synode/pkg/blackboard"
	"golang.org/x/sync/semaphore"
)

// DefaultMethod is invoked when a BASIC agent names no handler.
const DefaultMethod = "run"

// Args are passed to a BASIC method.
type Args struct {
	// Kwargs are the handler's declared kwargs overlaid with the keys of a
	// mapping input, plus "use_input" holding the input itself.
	Kwargs       map[string]any
	Input        any
	Instructions string
	Board        blackboard.Blackboard
}

// Method is one callable of a BASIC instance.
type Method func(ctx context.Context, args Args) (any, error)

// Methods is a BASIC instance: its callables by name.
type Methods map[string]Method

// BasicFactory builds an instance from the operator's constructor kwargs.
type BasicFactory func(kwargs map[string]any) (Methods, error)

// Basic invokes plain named methods on an instance built by the factory
// registered under the operator's path.
type Basic struct {
	decl    graph.OperatorDecl
	methods Methods
	gate    *semaphore.Weighted
}

// NewBasic builds the instance for decl.
func NewBasic(decl graph.OperatorDecl, deps Deps) (*Basic, error) {
	factory, ok := deps.Basics[decl.Path]
	if !ok {
		return nil, fmt.Errorf("%w: no basic factory registered for path %q (operator %q)",
			ErrMissingCollaborator, decl.Path, decl.Alias)
	}
	methods, err := factory(decl.Kwargs)
	if err != nil {
		return nil, fmt.Errorf("construct basic %q: %w", decl.Alias, err)
	}
	return &Basic{decl: decl, methods: methods, gate: deps.limits().Basic}, nil
}

func (b *Basic) Alias() string            { return b.decl.Alias }
func (b *Basic) Kind() graph.OperatorKind { return graph.KindBasic }
func (b *Basic) Decl() graph.OperatorDecl { return b.decl }

// Methods lists the callable names.
func (b *Basic) Methods() []string {
	names := make([]string, 0, len(b.methods))
	for name := range b.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (b *Basic) Dispatch(ctx context.Context, call Call) (any, error) {
	name := call.Handler
	if name == "" {
		name = DefaultMethod
	}
	method, ok := b.methods[name]
	if !ok {
		return nil, fmt.Errorf("%w: basic %q has no method %q", ErrUnknownHandler, b.decl.Alias, name)
	}

	var input map[string]any
	if m, ok := blackboard.ToMap(call.Input); ok {
		input = m
	}
	kwargs := mergeKwargs(b.decl.Handlers[name].Kwargs, input)
	kwargs["use_input"] = call.Input

	if err := b.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer b.gate.Release(1)

	return method(ctx, Args{
		Kwargs:       kwargs,
		Input:        call.Input,
		Instructions: call.Instructions,
		Board:        call.Board,
	})
}
