// Package synode runs declaratively defined agent graphs.
//
// An Engine walks the graph from a trigger agent. Every agent dispatches to
// a bound operator (a chat model, a nested graph, a plain callable or the
// supervisor control plane) and then routes the result through its
// operations: CHAIN_TO, LOOP_TO, FORK_TO, MAP, FILTER and REDUCE. Agents
// share state through a blackboard; keys starting with "_" live on a private
// board that exists for one launch only.
package synode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aixgo-dev/synode/internal/graph"
	"github.com/aixgo-dev/synode/internal/logging"
	"github.com/aixgo-dev/synode/internal/observability"
	"github.com/aixgo-dev/synode/internal/operator"
	"github.com/aixgo-dev/synode/internal/remote"
	"github.com/aixgo-dev/synode/pkg/blackboard"
	"github.com/aixgo-dev/synode/pkg/expr"
	"github.com/aixgo-dev/synode/pkg/llm/provider"
	metrics "github.com/aixgo-dev/synode/pkg/observability"
)

// GraphLoader resolves the path of a SYNOD operator to a definition.
type GraphLoader interface {
	Definition(ref string) (*graph.Definition, error)
}

// AsyncCallback receives the outcome of every Start.
type AsyncCallback func(result any, err error)

// Engine executes one graph definition. It is safe for concurrent launches;
// launches of a non-persistent graph clear the shared board when they finish.
type Engine struct {
	def   *graph.Definition
	board blackboard.Blackboard
	eval  *expr.Evaluator
	ops   *operator.Registry
	log   *slog.Logger

	interceptors map[string]Interceptor
	dispatcher   remote.Dispatcher
	graphs       GraphLoader
	limits       *operator.Limits
	providers    *provider.Registry
	basics       map[string]operator.BasicFactory
	supervisor   operator.Supervisor
	overrides    map[string]operator.Operator
	callback     AsyncCallback

	hookMu sync.RWMutex
	hook   HookFunc

	wg sync.WaitGroup

	nestedMu sync.Mutex
	nested   map[string]*Engine
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithBlackboard sets the shared board. The default is an in-memory board.
func WithBlackboard(b blackboard.Blackboard) Option {
	return func(e *Engine) { e.board = b }
}

// WithInterceptor registers a before/after method under name.
func WithInterceptor(name string, fn Interceptor) Option {
	return func(e *Engine) { e.interceptors[name] = fn }
}

// WithProviders sets the chat providers for BOT and HYDRA operators.
func WithProviders(r *provider.Registry) Option {
	return func(e *Engine) { e.providers = r }
}

// WithBasic registers the factory of the BASIC operators whose path is path.
func WithBasic(path string, factory operator.BasicFactory) Option {
	return func(e *Engine) { e.basics[path] = factory }
}

// WithSupervisor sets the supervisor ARGUS operators drive.
func WithSupervisor(s operator.Supervisor) Option {
	return func(e *Engine) { e.supervisor = s }
}

// WithDispatcher sets the transport for agents that run asynchronously.
func WithDispatcher(d remote.Dispatcher) Option {
	return func(e *Engine) { e.dispatcher = d }
}

// WithGraphLoader sets where SYNOD operators find their graphs.
func WithGraphLoader(l GraphLoader) Option {
	return func(e *Engine) { e.graphs = l }
}

func WithAsyncCallback(fn AsyncCallback) Option {
	return func(e *Engine) { e.callback = fn }
}

// WithLimits shares concurrency limits, typically with a parent engine.
func WithLimits(l *operator.Limits) Option {
	return func(e *Engine) { e.limits = l }
}

// WithOperator binds op in place of the declared operator with the same alias.
func WithOperator(op operator.Operator) Option {
	return func(e *Engine) { e.overrides[op.Alias()] = op }
}

// New validates def and binds its operators.
func New(def *graph.Definition, opts ...Option) (*Engine, error) {
	if def == nil {
		return nil, errors.New("nil graph definition")
	}
	if err := graph.Validate(def); err != nil {
		return nil, err
	}

	e := &Engine{
		def:          def,
		interceptors: make(map[string]Interceptor),
		basics:       make(map[string]operator.BasicFactory),
		overrides:    make(map[string]operator.Operator),
		nested:       make(map[string]*Engine),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logging.NewNop()
	}
	if e.board == nil {
		e.board = blackboard.NewMemory()
	}
	if e.limits == nil {
		e.limits = operator.DefaultLimits()
	}
	if e.providers == nil {
		e.providers = provider.NewDefaultRegistry()
	}
	e.eval = expr.New(e.board)
	e.hook = LogHook(e.log)

	if err := graph.ChainGraphOf(def).Validate(); err != nil {
		e.log.Warn("graph chains can recurse without bound", "graph", def.Name, "err", err)
	}
	if err := e.checkCollaborators(); err != nil {
		return nil, err
	}

	ops, err := operator.Bind(def.Operators, operator.Deps{
		Providers:  e.providers,
		Basics:     e.basics,
		Supervisor: e.supervisor,
		Launcher:   e,
		Limits:     e.limits,
		Logger:     e.log,
	}, e.overrides)
	if err != nil {
		return nil, fmt.Errorf("graph %q: %w", def.Name, err)
	}
	e.ops = ops

	if err := e.seedShared(context.Background()); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) checkCollaborators() error {
	var errs []error
	check := func(owner, name string) {
		if name == "" {
			return
		}
		if _, ok := e.interceptors[name]; !ok {
			errs = append(errs, fmt.Errorf("%w: %q on %s", ErrUnknownInterceptor, name, owner))
		}
	}
	for i := range e.def.Agents {
		a := &e.def.Agents[i]
		check(a.Agent, a.Before)
		check(a.Agent, a.After)
		for j, op := range a.Operations {
			owner := fmt.Sprintf("%s.operations[%d]", a.Agent, j)
			check(owner, op.Before)
			check(owner, op.After)
		}
		if e.def.AgentRunsAsync(a) && e.dispatcher == nil {
			errs = append(errs, fmt.Errorf("%w: agent %q runs async", ErrNoDispatcher, a.Agent))
		}
	}
	for _, op := range e.def.Operators {
		if op.Kind == graph.KindSynod && e.graphs == nil {
			if _, ok := e.overrides[op.Alias]; !ok {
				errs = append(errs, fmt.Errorf("%w: synod operator %q", ErrNoGraphLoader, op.Alias))
			}
		}
	}
	return errors.Join(errs...)
}

// seedShared writes the declared defaults of public keys that are absent.
func (e *Engine) seedShared(ctx context.Context) error {
	for _, s := range e.def.Seeds() {
		if blackboard.IsPrivate(s.Key) {
			continue
		}
		if err := e.board.Seed(ctx, s.Key, s.Value); err != nil {
			return fmt.Errorf("seed %q: %w", s.Key, err)
		}
	}
	return nil
}

// Launch runs the graph from trigger ("main" when empty) and returns the
// result of the trigger agent. session seeds the private board.
func (e *Engine) Launch(ctx context.Context, trigger string, input any, session map[string]any) (result any, err error) {
	if trigger == "" {
		trigger = graph.DefaultTrigger
	}
	agent, ok := e.def.Agent(trigger)
	if !ok {
		return nil, fmt.Errorf("%w: trigger %q in graph %q", ErrUnknownAgent, trigger, e.def.Name)
	}

	ctx, span := observability.StartSpan(ctx, "synode.launch", map[string]any{
		"graph":   e.def.Name,
		"trigger": trigger,
	})
	done := metrics.LaunchStarted(e.def.Name)
	r := e.newRun(ctx)
	defer func() {
		r.close(ctx)
		done(err)
		span.End(err)
	}()

	if err := e.seedShared(ctx); err != nil {
		return nil, err
	}
	if err := r.seed(ctx, session); err != nil {
		return nil, err
	}
	if hook := e.Hook(); hook != nil {
		ev := HookEvent{Graph: e.def.Name, Action: ActionLaunch, Data: input, Agent: agent}
		if err := hook(ctx, e, ev); err != nil {
			e.log.Warn("launch hook failed", "graph", e.def.Name, "err", err)
			metrics.RecordHookFailure(ActionLaunch)
		}
	}

	result, err = r.runAgent(ctx, agent, input)
	if err != nil {
		return nil, err
	}
	if !e.def.Persistent {
		if err := e.board.Clear(ctx); err != nil {
			return nil, fmt.Errorf("clear blackboard: %w", err)
		}
	}
	return result, nil
}

// Start launches in the background. The outcome goes to the async callback,
// or to the log when there is none.
func (e *Engine) Start(ctx context.Context, trigger string, input any, session map[string]any) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		result, err := e.Launch(ctx, trigger, input, session)
		if e.callback != nil {
			e.callback(result, err)
			return
		}
		if err != nil {
			e.log.Error("background launch failed", "graph", e.def.Name, "trigger", trigger, "err", err)
			return
		}
		e.log.Info("background launch finished", "graph", e.def.Name, "trigger", trigger)
	}()
}

// Wait blocks until every launch begun with Start has returned.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// SetHook replaces the hook. A nil hook disables hook tasks.
func (e *Engine) SetHook(fn HookFunc) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.hook = fn
}

func (e *Engine) Hook() HookFunc {
	e.hookMu.RLock()
	defer e.hookMu.RUnlock()
	return e.hook
}

// Blackboard returns the shared board.
func (e *Engine) Blackboard() blackboard.Blackboard { return e.board }

func (e *Engine) Name() string { return e.def.Name }

func (e *Engine) Definition() *graph.Definition { return e.def }

// Operators lists the bound operator aliases.
func (e *Engine) Operators() []string { return e.ops.Aliases() }

// SetStreamer forwards response chunks of the BOT or HYDRA operator alias to fn.
func (e *Engine) SetStreamer(alias string, fn func(chunk string)) error {
	return e.ops.SetStreamer(alias, fn)
}

// LaunchGraph runs the nested graph at path. Nested engines are built once
// per path with a fresh board and share this engine's collaborators.
func (e *Engine) LaunchGraph(ctx context.Context, path, trigger string, input any, session map[string]any) (any, error) {
	child, err := e.nestedEngine(path)
	if err != nil {
		return nil, err
	}
	return child.Launch(ctx, trigger, input, session)
}

func (e *Engine) nestedEngine(path string) (*Engine, error) {
	e.nestedMu.Lock()
	defer e.nestedMu.Unlock()
	if child, ok := e.nested[path]; ok {
		return child, nil
	}
	if e.graphs == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoGraphLoader, path)
	}
	def, err := e.graphs.Definition(path)
	if err != nil {
		return nil, err
	}
	child, err := New(def, e.inherited()...)
	if err != nil {
		return nil, fmt.Errorf("nested graph %q: %w", path, err)
	}
	e.nested[path] = child
	return child, nil
}

func (e *Engine) inherited() []Option {
	opts := []Option{
		WithLogger(e.log),
		WithProviders(e.providers),
		WithLimits(e.limits),
		WithGraphLoader(e.graphs),
	}
	if e.dispatcher != nil {
		opts = append(opts, WithDispatcher(e.dispatcher))
	}
	if e.supervisor != nil {
		opts = append(opts, WithSupervisor(e.supervisor))
	}
	for name, fn := range e.interceptors {
		opts = append(opts, WithInterceptor(name, fn))
	}
	for path, f := range e.basics {
		opts = append(opts, WithBasic(path, f))
	}
	return opts
}
