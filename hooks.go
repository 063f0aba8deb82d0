package synode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aixgo-dev/synode/internal/graph"
	metrics "github.com/aixgo-dev/synode/pkg/observability"
)

// Hook actions.
const (
	ActionLaunch = "launch"
	ActionEnter  = "enter"
	ActionBefore = "before"
	ActionOutput = "output"
	ActionResult = "result"
	ActionAfter  = "after"
	ActionExit   = "exit"
)

// HookEvent describes one transition of an agent run. Op is nil for
// transitions of the agent itself.
type HookEvent struct {
	Graph  string
	Action string
	Data   any
	Agent  *graph.AgentDecl
	Op     *graph.OpDecl
}

// HookFunc observes transitions. Hooks run in the background and must not
// mutate the data they are given; their errors are logged and dropped.
type HookFunc func(ctx context.Context, e *Engine, ev HookEvent) error

// LogHook returns the default hook, which only logs.
func LogHook(log *slog.Logger) HookFunc {
	return func(ctx context.Context, _ *Engine, ev HookEvent) error {
		attrs := []any{"graph", ev.Graph, "action", ev.Action}
		if ev.Agent != nil {
			attrs = append(attrs, "agent", ev.Agent.Agent)
		}
		if ev.Op != nil {
			attrs = append(attrs, "op", string(ev.Op.OpType))
		}
		if ev.Action == ActionLaunch {
			log.InfoContext(ctx, "launching graph", attrs...)
			return nil
		}
		log.DebugContext(ctx, "transition", attrs...)
		return nil
	}
}

// taskBucket owns the hook tasks of one launch. Drain cancels whatever is
// still running and waits for every task to return.
type taskBucket struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *slog.Logger
}

func newTaskBucket(ctx context.Context, log *slog.Logger) *taskBucket {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &taskBucket{ctx: ctx, cancel: cancel, log: log}
}

// Go runs fn in the background.
func (b *taskBucket) Go(action string, fn func(ctx context.Context) error) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.call(fn); err != nil {
			if !errors.Is(err, context.Canceled) {
				b.log.Warn("hook task failed", "action", action, "err", err)
			}
			metrics.RecordHookFailure(action)
		}
	}()
}

func (b *taskBucket) call(fn func(ctx context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("hook panicked: %v", p)
		}
	}()
	return fn(b.ctx)
}

// Drain cancels pending tasks and waits for all of them.
func (b *taskBucket) Drain() {
	b.cancel()
	b.wg.Wait()
}
