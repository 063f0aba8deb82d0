// Package remote carries operator dispatches across processes over a Redis
// list queue.
package remote

import (
	"context"
	"errors"
	"time"

	"github.com/aixgo-dev/synode/internal/graph"
	"github.com/aixgo-dev/synode/pkg/blackboard"
)

// Grace is added to an agent's timeout when waiting on a remote reply.
const Grace = 5 * time.Second

var (
	ErrRemoteTimeout = errors.New("remote task timed out")
	ErrRemoteFailed  = errors.New("remote task failed")
	ErrClosed        = errors.New("queue is closed")
)

// Task is one operator dispatch sent to a worker.
type Task struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Operator     graph.OperatorDecl  `json:"operator"`
	Agent        graph.AgentDecl     `json:"agent"`
	Handler      string              `json:"handler,omitempty"`
	Input        any                 `json:"input,omitempty"`
	Instructions string              `json:"instructions,omitempty"`
	Board        blackboard.Snapshot `json:"board,omitempty"`
	Kwargs       map[string]any      `json:"kwargs,omitempty"`
	// Timeout is the agent timeout in seconds.
	Timeout float64 `json:"timeout"`
}

// TimeoutDuration is the time a worker may spend on the task.
func (t Task) TimeoutDuration() time.Duration {
	return time.Duration(t.Timeout * float64(time.Second))
}

// Reply is a worker's answer to a Task.
type Reply struct {
	ID     string `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Dispatcher sends a task and waits for its result.
type Dispatcher interface {
	Dispatch(ctx context.Context, task Task) (any, error)
}

// Executor runs a task on the worker side.
type Executor func(ctx context.Context, task Task) (any, error)
