// Package supervisor runs ARGUS supervisors: named background stalkers on
// heartbeats, plus watches that re-query the shared blackboard and fire hooks
// when watched values change.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/aixgo-dev/synode/internal/logging"
	"github.com/aixgo-dev/synode/pkg/blackboard"
	"github.com/aixgo-dev/synode/pkg/expr"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultHeartbeat = time.Second
	inboxSize        = 64
)

var (
	ErrStalkerNotRegistered = errors.New("stalker not registered")
	ErrNoBlackboard         = errors.New("supervisor has no blackboard")
	ErrInboxFull            = errors.New("stalker inbox full")
)

// HookFunc receives the current values of every key of its hook.
type HookFunc func(ctx context.Context, values map[string]any) error

// MessageHandler receives messages routed to the supervisor itself.
type MessageHandler func(ctx context.Context, msg ControlMessage)

type watch struct {
	key        string
	expression string
}

type hook struct {
	keys []string
	fn   HookFunc
}

// Argus supervises stalkers and watches a blackboard.
type Argus struct {
	name      string
	heartbeat time.Duration
	log       *slog.Logger
	onMessage MessageHandler

	mu       sync.Mutex
	board    blackboard.Blackboard
	stalkers map[string]*stalkerEntry
	watches  []watch
	mirror   map[string]any
	hooks    []hook
	monitor  *cron.Cron
	running  bool
}

// Option configures an Argus.
type Option func(*Argus)

// WithHeartbeat sets the watch polling interval.
func WithHeartbeat(d time.Duration) Option {
	return func(a *Argus) {
		if d > 0 {
			a.heartbeat = d
		}
	}
}

// WithBlackboard sets the board watches run against.
func WithBlackboard(b blackboard.Blackboard) Option {
	return func(a *Argus) { a.board = b }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *Argus) { a.log = log }
}

// WithMessageHandler receives messages addressed to the supervisor.
func WithMessageHandler(fn MessageHandler) Option {
	return func(a *Argus) { a.onMessage = fn }
}

// New creates a supervisor named name.
func New(name string, opts ...Option) *Argus {
	a := &Argus{
		name:      name,
		heartbeat: DefaultHeartbeat,
		log:       logging.NewNop(),
		stalkers:  make(map[string]*stalkerEntry),
		mirror:    make(map[string]any),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With("argus", name)
	return a
}

func (a *Argus) Name() string             { return a.name }
func (a *Argus) Heartbeat() time.Duration { return a.heartbeat }

// IsRunning reports whether Run has been called without a later Shutdown.
func (a *Argus) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Blackboard returns the watched board.
func (a *Argus) Blackboard() blackboard.Blackboard {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.board
}

// SetBlackboard replaces the watched board.
func (a *Argus) SetBlackboard(b blackboard.Blackboard) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.board = b
}

// RegisterStalker registers s under name. Stalkers with startup set are
// started by Run. Registering a known name again is a no-op.
func (a *Argus) RegisterStalker(name string, s Stalker, heartbeat time.Duration, startup bool) {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.stalkers[name]; ok {
		return
	}
	a.stalkers[name] = &stalkerEntry{
		name:      name,
		stalker:   s,
		heartbeat: heartbeat,
		startup:   startup,
		inbox:     make(chan ControlMessage, inboxSize),
	}
}

// Stalkers lists registered stalker names.
func (a *Argus) Stalkers() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.stalkers))
	for name := range a.stalkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckStalker reports whether name is running. registered is false for
// unknown names.
func (a *Argus) CheckStalker(name string) (running, registered bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.stalkers[name]
	if !ok {
		return false, false
	}
	return s.running, true
}

// UseWatch re-evaluates expression against the board on every heartbeat and
// stores the result under key. def is the value before the first poll.
func (a *Argus) UseWatch(key, expression string, def any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, w := range a.watches {
		if w.key == key {
			a.watches[i].expression = expression
			a.mirror[key] = def
			return
		}
	}
	a.watches = append(a.watches, watch{key: key, expression: expression})
	a.mirror[key] = def
}

// UseHook calls fn whenever a poll changes any of keys.
func (a *Argus) UseHook(keys []string, fn HookFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hooks = append(a.hooks, hook{keys: append([]string(nil), keys...), fn: fn})
}

// Mirror returns the last polled value of every watch.
func (a *Argus) Mirror() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]any, len(a.mirror))
	for k, v := range a.mirror {
		out[k] = v
	}
	return out
}

// Run starts every startup stalker and the watch monitor. It returns true
// once running; calling it again is a no-op.
func (a *Argus) Run(ctx context.Context) (bool, error) {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return true, nil
	}
	var startup []string
	for name, s := range a.stalkers {
		if s.startup && !s.running {
			startup = append(startup, name)
		}
	}
	a.mu.Unlock()

	sort.Strings(startup)
	for _, name := range startup {
		if _, err := a.StartStalker(ctx, name); err != nil {
			return false, err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		a.monitor = newTicker(a.heartbeat, a.log, func() {
			if err := a.Poll(context.Background()); err != nil {
				a.log.Warn("watch poll failed", "err", err)
			}
		})
		a.running = true
	}
	a.log.Info("argus listening", "heartbeat", a.heartbeat)
	return true, nil
}

// Shutdown stops the monitor and every running stalker.
func (a *Argus) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	monitor := a.monitor
	a.monitor = nil
	a.running = false
	var names []string
	for name, s := range a.stalkers {
		if s.running {
			names = append(names, name)
		}
	}
	a.mu.Unlock()

	var errs []error
	if monitor != nil {
		errs = append(errs, waitStopped(ctx, monitor))
	}
	for _, name := range names {
		if _, err := a.StopStalker(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	a.log.Info("argus shut down")
	return errors.Join(errs...)
}

// StartStalker schedules the named stalker on its heartbeat.
func (a *Argus) StartStalker(_ context.Context, name string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.stalkers[name]
	if !ok {
		return false, fmt.Errorf("%w: %q in argus %q", ErrStalkerNotRegistered, name, a.name)
	}
	if s.running {
		return true, nil
	}

	env := &Env{Name: name, Board: a.board, Log: a.log.With("stalker", name), argus: a}
	c := newTicker(s.heartbeat, env.Log, func() { a.beat(s, env) })
	s.stop = func(ctx context.Context) error { return waitStopped(ctx, c) }
	s.running = true
	env.Log.Info("stalker started", "heartbeat", s.heartbeat)
	return true, nil
}

// StopStalker stops the named stalker and waits for its current heartbeat.
// It returns false when the stalker was not running.
func (a *Argus) StopStalker(ctx context.Context, name string) (bool, error) {
	a.mu.Lock()
	s, ok := a.stalkers[name]
	if !ok || !s.running {
		a.mu.Unlock()
		return false, nil
	}
	stop := s.stop
	s.running, s.stop = false, nil
	a.mu.Unlock()

	err := stop(ctx)
	a.log.Info("stalker stopped", "stalker", name)
	return true, err
}

func (a *Argus) beat(s *stalkerEntry, env *Env) {
	ctx := context.Background()
	for _, msg := range s.drain() {
		if msg.Message == StopMessage {
			go func() { _, _ = a.StopStalker(ctx, s.name) }()
			return
		}
		if p, ok := s.stalker.(Patcher); ok {
			if err := p.Patch(ctx, env, msg); err != nil {
				env.Log.Warn("patch failed", "origin", msg.Origin, "err", err)
			}
		}
	}
	if err := s.stalker.Execute(ctx, env); err != nil {
		env.Log.Warn("stalker heartbeat failed", "err", err)
	}
}

// Notify sends message to one running stalker. Unknown or stopped stalkers
// are ignored.
func (a *Argus) Notify(ctx context.Context, stalker string, message any) error {
	return a.deliver(ctx, ControlMessage{Origin: OriginArgus, Target: stalker, Message: message})
}

// Fanout sends message to every running stalker.
func (a *Argus) Fanout(ctx context.Context, message any) error {
	a.mu.Lock()
	var names []string
	for name, s := range a.stalkers {
		if s.running {
			names = append(names, name)
		}
	}
	a.mu.Unlock()

	var errs []error
	for _, name := range names {
		errs = append(errs, a.Notify(ctx, name, message))
	}
	return errors.Join(errs...)
}

// Route delivers msg to its target stalker when that stalker runs, and
// otherwise hands it to the supervisor's message handler.
func (a *Argus) Route(ctx context.Context, msg ControlMessage) error {
	a.mu.Lock()
	s, ok := a.stalkers[msg.Target]
	running := ok && s.running
	a.mu.Unlock()

	if running {
		return a.deliver(ctx, msg)
	}
	a.log.Debug("message", "origin", msg.Origin, "target", msg.Target, "message", msg.Message)
	if a.onMessage != nil {
		a.onMessage(ctx, msg)
	}
	return nil
}

func (a *Argus) deliver(ctx context.Context, msg ControlMessage) error {
	a.mu.Lock()
	s, ok := a.stalkers[msg.Target]
	running := ok && s.running
	a.mu.Unlock()
	if !running {
		return nil
	}
	select {
	case s.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("%w: %q", ErrInboxFull, msg.Target)
	}
}

// Poll evaluates every watch once, updates the mirror and runs the hooks
// whose keys changed. Paths that resolve to nothing yield nil.
func (a *Argus) Poll(ctx context.Context) error {
	a.mu.Lock()
	board := a.board
	watches := append([]watch(nil), a.watches...)
	a.mu.Unlock()

	if board == nil {
		return ErrNoBlackboard
	}
	data, err := board.Dump(ctx)
	if err != nil {
		return fmt.Errorf("dump blackboard: %w", err)
	}

	fresh := make(map[string]any, len(watches))
	for _, w := range watches {
		v, err := expr.Query(data, w.expression)
		if err != nil && !errors.Is(err, expr.ErrLookup) {
			return fmt.Errorf("watch %q: %w", w.key, err)
		}
		fresh[w.key] = v
	}
	return a.updateMirror(ctx, fresh)
}

func (a *Argus) updateMirror(ctx context.Context, fresh map[string]any) error {
	a.mu.Lock()
	changed := make(map[string]bool)
	for key, v := range fresh {
		if !reflect.DeepEqual(a.mirror[key], v) {
			changed[key] = true
			a.mirror[key] = v
		}
	}
	var fire []hook
	for _, h := range a.hooks {
		for _, k := range h.keys {
			if changed[k] {
				fire = append(fire, h)
				break
			}
		}
	}
	mirror := make(map[string]any, len(a.mirror))
	for k, v := range a.mirror {
		mirror[k] = v
	}
	a.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, h := range fire {
		values := make(map[string]any, len(h.keys))
		for _, k := range h.keys {
			values[k] = mirror[k]
		}
		g.Go(func() error { return h.fn(ctx, values) })
	}
	return g.Wait()
}

func waitStopped(ctx context.Context, c *cron.Cron) error {
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
