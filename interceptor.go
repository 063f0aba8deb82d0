package synode

import "context"

// Interception is the argument of an Interceptor.
//
// For "before" interceptors Input is the value about to be processed and
// Result is nil. For "after" interceptors Input is the agent input and
// Result the value produced so far. Session is a copy of the private board.
type Interception struct {
	Engine  *Engine
	Input   any
	Result  any
	Session map[string]any
}

// Interceptor is a named before/after method. Its return value replaces the
// data flowing through the agent; returning a Signal stops the agent.
type Interceptor func(ctx context.Context, in Interception) (any, error)
