package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/aixgo-dev/synode/pkg/blackboard"
)

// StopMessage stops the stalker it is addressed to.
const StopMessage = "STOP"

// OriginArgus is the origin of messages sent by the supervisor itself.
const OriginArgus = "argus"

// ControlMessage travels between the supervisor and its stalkers.
type ControlMessage struct {
	Origin  string `json:"origin" yaml:"origin"`
	Target  string `json:"target" yaml:"target"`
	Message any    `json:"message" yaml:"message"`
}

// Stalker is a background worker run on every heartbeat once started.
type Stalker interface {
	Execute(ctx context.Context, env *Env) error
}

// Patcher is a Stalker that receives control messages addressed to it.
// Messages are delivered before Execute on each heartbeat.
type Patcher interface {
	Patch(ctx context.Context, env *Env, msg ControlMessage) error
}

// StalkerFunc adapts a function to Stalker.
type StalkerFunc func(ctx context.Context, env *Env) error

func (f StalkerFunc) Execute(ctx context.Context, env *Env) error { return f(ctx, env) }

// Env is what a stalker sees of its supervisor.
type Env struct {
	Name  string
	Board blackboard.Blackboard
	Log   *slog.Logger

	argus *Argus
}

// Whisper sends message to another stalker, or to the supervisor when to
// is OriginArgus. Messages to oneself are dropped.
func (e *Env) Whisper(ctx context.Context, to string, message any) error {
	if to == e.Name {
		return nil
	}
	return e.argus.Route(ctx, ControlMessage{Origin: e.Name, Target: to, Message: message})
}

type stalkerEntry struct {
	name      string
	stalker   Stalker
	heartbeat time.Duration
	startup   bool
	running   bool
	inbox     chan ControlMessage
	stop      func(ctx context.Context) error
}

func (s *stalkerEntry) drain() []ControlMessage {
	var msgs []ControlMessage
	for {
		select {
		case m := <-s.inbox:
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
}
