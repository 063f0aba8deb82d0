package synode

import (
	"context"
	"fmt"

	"github.com/aixgo-dev/synode/internal/supervisor"
)

// AttachArgus applies schema to a on this engine's blackboard. Each hook
// named in the schema launches the agent of the same name with the changed
// watch values as input.
func (e *Engine) AttachArgus(a *supervisor.Argus, schema *supervisor.Schema, stalkers map[string]supervisor.StalkerFactory) error {
	hooks := make(map[string]supervisor.HookFunc, len(schema.Hooks))
	for _, h := range schema.Hooks {
		trigger := h.Hook
		if _, ok := e.def.Agent(trigger); !ok {
			return fmt.Errorf("%w: hook %q in graph %q", ErrUnknownAgent, trigger, e.def.Name)
		}
		hooks[trigger] = func(ctx context.Context, values map[string]any) error {
			_, err := e.Launch(ctx, trigger, values, nil)
			return err
		}
	}
	return supervisor.Apply(a, schema, supervisor.BuildDeps{
		Board:    e.board,
		Stalkers: stalkers,
		Hooks:    hooks,
		Logger:   e.log,
	})
}
