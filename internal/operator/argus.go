package operator

import (
	"context"
	"fmt"
	"strings"

	"github.com/aixgo-dev/synode/internal/graph"
)

// Supervisor is the control plane an ARGUS operator drives.
type Supervisor interface {
	// Run starts every startup stalker and the heartbeat monitor.
	Run(ctx context.Context) (bool, error)
	Shutdown(ctx context.Context) error
	StartStalker(ctx context.Context, name string) (bool, error)
	StopStalker(ctx context.Context, name string) (bool, error)
	// CheckStalker reports whether name runs; registered is false for unknown names.
	CheckStalker(name string) (running, registered bool)
}

// Argus actions.
const (
	ActionStart = "start"
	ActionStop  = "stop"
	ActionCheck = "check"
)

// Argus drives a Supervisor. Handlers are "name@start", "name@stop" or
// "name@check" for a stalker, and "start" or "stop" for the supervisor
// itself. Results are acknowledgements: a bool, or nil when checking an
// unregistered stalker.
type Argus struct {
	decl graph.OperatorDecl
	sup  Supervisor
}

// NewArgus binds decl to the supervisor.
func NewArgus(decl graph.OperatorDecl, deps Deps) (*Argus, error) {
	if deps.Supervisor == nil {
		return nil, fmt.Errorf("%w: argus %q needs a supervisor", ErrMissingCollaborator, decl.Alias)
	}
	return &Argus{decl: decl, sup: deps.Supervisor}, nil
}

func (a *Argus) Alias() string            { return a.decl.Alias }
func (a *Argus) Kind() graph.OperatorKind { return graph.KindArgus }
func (a *Argus) Decl() graph.OperatorDecl { return a.decl }

func (a *Argus) Dispatch(ctx context.Context, call Call) (any, error) {
	name, action, found := strings.Cut(call.Handler, "@")
	if !found {
		name, action = "", call.Handler
	}

	if name == "" || name == a.decl.Alias {
		switch action {
		case ActionStart:
			return a.sup.Run(ctx)
		case ActionStop:
			if err := a.sup.Shutdown(ctx); err != nil {
				return false, err
			}
			return true, nil
		}
		return nil, fmt.Errorf("%w: %q on argus %q", ErrUnknownHandler, call.Handler, a.decl.Alias)
	}

	switch action {
	case ActionStart:
		return a.sup.StartStalker(ctx, name)
	case ActionStop:
		return a.sup.StopStalker(ctx, name)
	case ActionCheck:
		running, registered := a.sup.CheckStalker(name)
		if !registered {
			return nil, nil
		}
		return running, nil
	}
	return nil, fmt.Errorf("%w: %q on argus %q", ErrUnknownHandler, call.Handler, a.decl.Alias)
}
