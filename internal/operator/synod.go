package operator

import (
	"context"
	"fmt"

	"github.com/aixgo-dev/synode/internal/graph"
)

// SessionInstructions is the private-board key carrying a SYNOD agent's
// instructions into the nested graph.
const SessionInstructions = "_instructions"

// Launcher runs a nested graph identified by path.
type Launcher interface {
	LaunchGraph(ctx context.Context, path, trigger string, input any, session map[string]any) (any, error)
}

// Synod launches a nested graph. The handler names its trigger.
type Synod struct {
	decl     graph.OperatorDecl
	launcher Launcher
}

// NewSynod binds decl to launcher.
func NewSynod(decl graph.OperatorDecl, deps Deps) (*Synod, error) {
	if deps.Launcher == nil {
		return nil, fmt.Errorf("%w: synod %q needs a graph launcher", ErrMissingCollaborator, decl.Alias)
	}
	return &Synod{decl: decl, launcher: deps.Launcher}, nil
}

func (s *Synod) Alias() string            { return s.decl.Alias }
func (s *Synod) Kind() graph.OperatorKind { return graph.KindSynod }
func (s *Synod) Decl() graph.OperatorDecl { return s.decl }

func (s *Synod) Dispatch(ctx context.Context, call Call) (any, error) {
	trigger := call.Handler
	if trigger == "" {
		trigger = graph.DefaultTrigger
	}
	var session map[string]any
	if call.Instructions != "" {
		session = map[string]any{SessionInstructions: call.Instructions}
	}
	return s.launcher.LaunchGraph(ctx, s.decl.Path, trigger, call.Input, session)
}
