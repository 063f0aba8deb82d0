package synode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aixgo-dev/synode/internal/graph"
	"github.com/aixgo-dev/synode/internal/observability"
	"github.com/aixgo-dev/synode/pkg/blackboard"
	"github.com/aixgo-dev/synode/pkg/expr"
	metrics "github.com/aixgo-dev/synode/pkg/observability"
	"golang.org/x/sync/errgroup"
)

// run is the state of one launch.
type run struct {
	e       *Engine
	private *blackboard.Memory
	bucket  *taskBucket

	mu     sync.Mutex
	cycles map[string]int
}

func (e *Engine) newRun(ctx context.Context) *run {
	return &run{
		e:       e,
		private: blackboard.NewMemory(),
		bucket:  newTaskBucket(ctx, e.log),
		cycles:  make(map[string]int),
	}
}

// seed fills the private board from the session, then from the declared
// defaults of private keys.
func (r *run) seed(ctx context.Context, session map[string]any) error {
	for k, v := range session {
		if err := r.private.Set(ctx, k, v); err != nil {
			return fmt.Errorf("session key %q: %w", k, err)
		}
	}
	for _, s := range r.e.def.Seeds() {
		if !blackboard.IsPrivate(s.Key) {
			continue
		}
		if err := r.private.Seed(ctx, s.Key, s.Value); err != nil {
			return fmt.Errorf("seed %q: %w", s.Key, err)
		}
	}
	return nil
}

func (r *run) close(ctx context.Context) {
	r.bucket.Drain()
	if err := r.private.Clear(context.WithoutCancel(ctx)); err != nil {
		r.e.log.Warn("clear private board", "graph", r.e.def.Name, "err", err)
	}
}

func (r *run) emit(action string, a *graph.AgentDecl, op *graph.OpDecl, data any) {
	hook := r.e.Hook()
	if hook == nil {
		return
	}
	ev := HookEvent{Graph: r.e.def.Name, Action: action, Data: data, Agent: a, Op: op}
	r.bucket.Go(action, func(ctx context.Context) error {
		return hook(ctx, r.e, ev)
	})
}

// store routes key to the private board when it starts with "_".
func (r *run) store(ctx context.Context, key string, value any) error {
	b := r.e.board
	if blackboard.IsPrivate(key) {
		b = r.private
	}
	if err := b.Set(ctx, key, value); err != nil {
		return fmt.Errorf("store %q: %w", key, err)
	}
	return nil
}

func (r *run) intercept(ctx context.Context, name string, input, result any) (any, error) {
	fn, ok := r.e.interceptors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInterceptor, name)
	}
	session, err := r.private.Dump(ctx)
	if err != nil {
		return nil, err
	}
	out, err := fn(ctx, Interception{Engine: r.e, Input: input, Result: result, Session: session})
	if err != nil {
		return nil, fmt.Errorf("interceptor %q: %w", name, err)
	}
	return out, nil
}

// runAgent walks one agent: enter, before, dispatch, output, operations,
// exit. A Signal from the before interceptor returns the agent's input; any
// later Signal returns the input as it stood after before.
func (r *run) runAgent(ctx context.Context, a *graph.AgentDecl, input any) (result any, err error) {
	ctx, span := observability.StartSpan(ctx, "synode.agent", map[string]any{
		"graph": r.e.def.Name,
		"agent": a.Agent,
	})
	start := time.Now()
	outcome := "ok"
	defer func() {
		if err != nil {
			outcome = "error"
		}
		metrics.RecordAgentRun(r.e.def.Name, a.Agent, outcome, time.Since(start))
		span.End(err)
	}()
	stop := func(sig Signal, ret any) (any, error) {
		outcome = sig.String()
		return ret, nil
	}

	original := input
	r.emit(ActionEnter, a, nil, input)

	if a.Before != "" {
		if input, err = r.intercept(ctx, a.Before, input, nil); err != nil {
			return nil, err
		}
		r.emit(ActionBefore, a, nil, input)
		if sig, ok := IsSignal(input); ok {
			return stop(sig, original)
		}
	}

	if result, err = r.dispatch(ctx, a, input); err != nil {
		return nil, fmt.Errorf("agent %q: %w", a.Agent, err)
	}
	if sig, ok := IsSignal(result); ok {
		r.emit(ActionOutput, a, nil, result)
		return stop(sig, input)
	}
	if a.StoreKey != "" {
		if err := r.store(ctx, a.StoreKey, result); err != nil {
			return nil, err
		}
	}
	r.emit(ActionOutput, a, nil, result)

	for i := range a.Operations {
		op := &a.Operations[i]
		r.emit(ActionEnter, a, op, result)

		if op.Before != "" {
			if result, err = r.intercept(ctx, op.Before, result, nil); err != nil {
				return nil, err
			}
			r.emit(ActionBefore, a, op, result)
			if sig, ok := IsSignal(result); ok {
				return stop(sig, input)
			}
		}

		if result, err = r.apply(ctx, a, op, result); err != nil {
			return nil, fmt.Errorf("agent %q %s: %w", a.Agent, op.OpType, err)
		}
		if sig, ok := IsSignal(result); ok {
			return stop(sig, input)
		}
		if op.StoreKey != "" {
			if err := r.store(ctx, op.StoreKey, result); err != nil {
				return nil, err
			}
		}
		r.emit(ActionResult, a, op, result)

		if op.After != "" {
			if result, err = r.intercept(ctx, op.After, input, result); err != nil {
				return nil, err
			}
			r.emit(ActionAfter, a, op, result)
			if sig, ok := IsSignal(result); ok {
				return stop(sig, input)
			}
		}
	}

	r.emit(ActionExit, a, nil, result)
	if a.After != "" {
		if result, err = r.intercept(ctx, a.After, input, result); err != nil {
			return nil, err
		}
		r.emit(ActionAfter, a, nil, result)
		if sig, ok := IsSignal(result); ok {
			return stop(sig, input)
		}
	}
	return result, nil
}

func (r *run) apply(ctx context.Context, owner *graph.AgentDecl, op *graph.OpDecl, result any) (any, error) {
	switch op.OpType {
	case graph.OpChainTo:
		target, err := r.target(ctx, op.Target, result)
		if err != nil {
			return nil, err
		}
		return r.runAgent(ctx, target, result)

	case graph.OpLoopTo:
		return r.loop(ctx, owner, op, result)

	case graph.OpForkTo:
		targets, err := r.targets(ctx, op.Target, result)
		if err != nil {
			return nil, err
		}
		return r.fanOut(ctx, len(targets), func(ctx context.Context, i int) (any, error) {
			return r.runAgent(ctx, targets[i], result)
		})

	case graph.OpMap, graph.OpFilter:
		items, ok := blackboard.ToSlice(result)
		if !ok {
			return nil, fmt.Errorf("%w: got %T", ErrNotSequence, result)
		}
		target, err := r.target(ctx, op.Target, result)
		if err != nil {
			return nil, err
		}
		out, err := r.fanOut(ctx, len(items), func(ctx context.Context, i int) (any, error) {
			return r.runAgent(ctx, target, items[i])
		})
		if err != nil || op.OpType == graph.OpMap {
			return out, err
		}
		kept := make([]any, 0, len(out))
		for _, v := range out {
			if v == nil || v == false {
				continue
			}
			kept = append(kept, v)
		}
		return kept, nil

	case graph.OpReduce:
		items, ok := blackboard.ToSlice(result)
		if !ok {
			return nil, fmt.Errorf("%w: got %T", ErrNotSequence, result)
		}
		target, err := r.target(ctx, op.Target, result)
		if err != nil {
			return nil, err
		}
		acc := op.Kwargs["accumulator"]
		for _, item := range items {
			acc, err = r.runAgent(ctx, target, map[string]any{"accumulate": acc, "item": item})
			if err != nil {
				return nil, err
			}
		}
		return acc, nil
	}
	return nil, fmt.Errorf("unsupported op_type %q", op.OpType)
}

// loop runs the target while the owner's cycle count is below max_cycles
// and the condition holds. The condition sees the current result as __input.
func (r *run) loop(ctx context.Context, owner *graph.AgentDecl, op *graph.OpDecl, result any) (any, error) {
	maxCycles, _ := graph.IntKwarg(op.Kwargs, "max_cycles")
	ok, err := r.condition(ctx, op.Kwargs["condition"], result)
	if err != nil || !ok {
		return result, err
	}

	r.mu.Lock()
	if r.cycles[owner.Agent] >= maxCycles {
		r.mu.Unlock()
		return result, nil
	}
	r.cycles[owner.Agent]++
	r.mu.Unlock()

	target, err := r.target(ctx, op.Target, result)
	if err != nil {
		return nil, err
	}
	return r.runAgent(ctx, target, result)
}

// condition evaluates a LOOP_TO condition. A missing condition holds; a
// path that resolves to nothing does not.
func (r *run) condition(ctx context.Context, cond, input any) (bool, error) {
	s, isString := cond.(string)
	if !isString {
		if cond == nil {
			return true, nil
		}
		return expr.Truthy(cond), nil
	}
	v, err := r.e.eval.EvalInput(ctx, s, r.private, input)
	if errors.Is(err, expr.ErrLookup) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return expr.Truthy(v), nil
}

// fanOut runs n calls concurrently and returns their results in call order.
// The first failure cancels the siblings and fails the whole batch.
func (r *run) fanOut(ctx context.Context, n int, call func(ctx context.Context, i int) (any, error)) ([]any, error) {
	out := make([]any, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			v, err := call(gctx, i)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// targets resolves declared targets to agents. Expressions may yield one
// name or a list of names.
func (r *run) targets(ctx context.Context, t graph.Target, input any) ([]*graph.AgentDecl, error) {
	var names []string
	for _, name := range t {
		if !graph.IsExpression(name) {
			names = append(names, name)
			continue
		}
		v, err := r.e.eval.EvalInput(ctx, name, r.private, input)
		if err != nil {
			return nil, fmt.Errorf("resolve target %q: %w", name, err)
		}
		if list, ok := blackboard.ToSlice(v); ok {
			for _, item := range list {
				names = append(names, expr.Stringify(item))
			}
			continue
		}
		names = append(names, expr.Stringify(v))
	}

	out := make([]*graph.AgentDecl, 0, len(names))
	for _, name := range names {
		a, ok := r.e.def.Agent(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q in graph %q", ErrUnknownAgent, name, r.e.def.Name)
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *run) target(ctx context.Context, t graph.Target, input any) (*graph.AgentDecl, error) {
	agents, err := r.targets(ctx, t, input)
	if err != nil {
		return nil, err
	}
	if len(agents) != 1 {
		return nil, fmt.Errorf("%w: %v resolved to %d agents", ErrTargetCount, []string(t), len(agents))
	}
	return agents[0], nil
}
