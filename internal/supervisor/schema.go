package supervisor

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aixgo-dev/synode/pkg/blackboard"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidSchema  = errors.New("invalid supervisor schema")
	ErrUnknownStalker = errors.New("unknown stalker kind")
	ErrUnknownHook    = errors.New("unknown hook")
)

// Schema declares a supervisor.
type Schema struct {
	Name      string          `yaml:"name"`
	Heartbeat float64         `yaml:"heartbeat,omitempty"`
	Stalkers  []StalkerSchema `yaml:"stalkers"`
	Watch     []WatchSchema   `yaml:"watch,omitempty"`
	Hooks     []HookSchema    `yaml:"hooks,omitempty"`
}

// StalkerSchema declares one stalker. Stalker names the factory.
type StalkerSchema struct {
	Stalker   string         `yaml:"stalker"`
	Name      string         `yaml:"name"`
	Kwargs    map[string]any `yaml:"kwargs,omitempty"`
	Heartbeat float64        `yaml:"heartbeat,omitempty"`
	Startup   *bool          `yaml:"startup,omitempty"`
}

// WatchSchema declares a watched expression.
type WatchSchema struct {
	Key        string `yaml:"key"`
	Expression string `yaml:"expression"`
	Default    any    `yaml:"default,omitempty"`
}

// HookSchema binds a named hook to a set of watch keys.
type HookSchema struct {
	Keys []string `yaml:"keys"`
	Hook string   `yaml:"hook"`
}

// LoadSchema decodes and validates a YAML supervisor schema.
func LoadSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks required fields and references between watches and hooks.
func (s *Schema) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, fmt.Errorf("%w: name is required", ErrInvalidSchema))
	}
	seen := make(map[string]bool)
	for i, st := range s.Stalkers {
		switch {
		case st.Name == "":
			errs = append(errs, fmt.Errorf("%w: stalkers[%d].name is required", ErrInvalidSchema, i))
		case st.Stalker == "":
			errs = append(errs, fmt.Errorf("%w: stalkers[%d].stalker is required", ErrInvalidSchema, i))
		case seen[st.Name]:
			errs = append(errs, fmt.Errorf("%w: duplicate stalker %q", ErrInvalidSchema, st.Name))
		}
		seen[st.Name] = true
	}
	keys := make(map[string]bool)
	for i, w := range s.Watch {
		if w.Key == "" || w.Expression == "" {
			errs = append(errs, fmt.Errorf("%w: watch[%d] needs key and expression", ErrInvalidSchema, i))
		}
		keys[w.Key] = true
	}
	for i, h := range s.Hooks {
		if h.Hook == "" || len(h.Keys) == 0 {
			errs = append(errs, fmt.Errorf("%w: hooks[%d] needs hook and keys", ErrInvalidSchema, i))
		}
		for _, k := range h.Keys {
			if !keys[k] {
				errs = append(errs, fmt.Errorf("%w: hooks[%d] references unwatched key %q", ErrInvalidSchema, i, k))
			}
		}
	}
	return errors.Join(errs...)
}

// StalkerFactory builds a stalker from its declared kwargs.
type StalkerFactory func(kwargs map[string]any) (Stalker, error)

// BuildDeps resolve the names used in a schema.
type BuildDeps struct {
	Board    blackboard.Blackboard
	Stalkers map[string]StalkerFactory
	Hooks    map[string]HookFunc
	Logger   *slog.Logger
}

// Build creates the supervisor described by s.
func Build(s *Schema, deps BuildDeps) (*Argus, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	opts := []Option{
		WithHeartbeat(seconds(s.Heartbeat)),
		WithBlackboard(deps.Board),
	}
	if deps.Logger != nil {
		opts = append(opts, WithLogger(deps.Logger))
	}
	a := New(s.Name, opts...)
	if err := Apply(a, s, deps); err != nil {
		return nil, err
	}
	return a, nil
}

// Apply registers the stalkers, watches and hooks of s on an existing
// supervisor. Stalker kinds resolve through deps.Stalkers, then Builtins.
func Apply(a *Argus, s *Schema, deps BuildDeps) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if deps.Board != nil && a.Blackboard() == nil {
		a.SetBlackboard(deps.Board)
	}
	builtins := Builtins()
	for _, st := range s.Stalkers {
		factory, ok := deps.Stalkers[st.Stalker]
		if !ok {
			factory, ok = builtins[st.Stalker]
		}
		if !ok {
			return fmt.Errorf("%w: %q (stalker %q)", ErrUnknownStalker, st.Stalker, st.Name)
		}
		stalker, err := factory(st.Kwargs)
		if err != nil {
			return fmt.Errorf("build stalker %q: %w", st.Name, err)
		}
		startup := st.Startup == nil || *st.Startup
		a.RegisterStalker(st.Name, stalker, seconds(st.Heartbeat), startup)
	}

	for _, w := range s.Watch {
		a.UseWatch(w.Key, w.Expression, w.Default)
	}
	for _, h := range s.Hooks {
		fn, ok := deps.Hooks[h.Hook]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownHook, h.Hook)
		}
		a.UseHook(h.Keys, fn)
	}
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
