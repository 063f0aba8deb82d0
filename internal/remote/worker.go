package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aixgo-dev/synode/internal/graph"
	"github.com/aixgo-dev/synode/internal/logging"
	"github.com/aixgo-dev/synode/internal/operator"
	"github.com/aixgo-dev/synode/pkg/blackboard"
	metrics "github.com/aixgo-dev/synode/pkg/observability"
	"golang.org/x/sync/semaphore"
)

const defaultPoll = time.Second

// Worker consumes tasks from a RedisQueue and replies with their results.
type Worker struct {
	queue       *RedisQueue
	exec        Executor
	log         *slog.Logger
	poll        time.Duration
	concurrency *semaphore.Weighted
	wg          sync.WaitGroup
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithWorkerLogger sets the logger.
func WithWorkerLogger(log *slog.Logger) WorkerOption {
	return func(w *Worker) { w.log = log }
}

// WithConcurrency caps the tasks a worker runs at once.
func WithConcurrency(n int64) WorkerOption {
	return func(w *Worker) { w.concurrency = semaphore.NewWeighted(n) }
}

// WithPoll sets how long each BRPOP blocks.
func WithPoll(d time.Duration) WorkerOption {
	return func(w *Worker) { w.poll = d }
}

// NewWorker creates a worker running tasks with exec.
func NewWorker(queue *RedisQueue, exec Executor, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:       queue,
		exec:        exec,
		log:         logging.NewNop(),
		poll:        defaultPoll,
		concurrency: semaphore.NewWeighted(16),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run consumes tasks until ctx is done, then waits for running tasks.
func (w *Worker) Run(ctx context.Context) error {
	defer w.wg.Wait()
	w.log.Info("worker started", "queue", w.queue.queue)
	for {
		if err := w.concurrency.Acquire(ctx, 1); err != nil {
			return nil
		}
		task, err := w.queue.Next(ctx, w.poll)
		if err != nil {
			w.concurrency.Release(1)
			if ctx.Err() != nil {
				return nil
			}
			w.log.Warn("receive task", "err", err)
			continue
		}
		if task == nil {
			w.concurrency.Release(1)
			continue
		}

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer w.concurrency.Release(1)
			w.handle(context.WithoutCancel(ctx), *task)
		}()
	}
}

func (w *Worker) handle(ctx context.Context, task Task) {
	if d := task.TimeoutDuration(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	result, err := w.exec(ctx, task)
	metrics.RecordRemoteTask(task.Name, "worker", err)

	reply := Reply{ID: task.ID, Result: result}
	if err != nil {
		reply = Reply{ID: task.ID, Error: err.Error()}
		w.log.Warn("task failed", "task", task.Name, "id", task.ID, "err", err)
	}
	if err := w.queue.Reply(ctx, reply); err != nil {
		w.log.Error("send reply", "id", task.ID, "err", err)
	}
}

// ErrUnknownTask is returned for a task name no executor handles.
var ErrUnknownTask = errors.New("unknown task")

// OperatorExecutor rebuilds the operator of each task from its declaration
// and runs it through the matching operator entry point.
func OperatorExecutor(deps operator.Deps) Executor {
	return func(ctx context.Context, task Task) (any, error) {
		if task.Name != operator.TaskName(task.Operator.Kind) {
			return nil, fmt.Errorf("%w: %q for %s operator %q", ErrUnknownTask, task.Name, task.Operator.Kind, task.Operator.Alias)
		}
		op, err := operator.New(task.Operator, deps)
		if err != nil {
			return nil, err
		}
		call := operator.Call{
			Handler:      task.Handler,
			Input:        task.Input,
			Instructions: task.Instructions,
		}
		if task.Board != nil {
			call.Board = blackboard.FromSnapshot(task.Board)
		}
		switch o := op.(type) {
		case *operator.Bot:
			return operator.RunBot(ctx, o, call)
		case *operator.Hydra:
			return operator.RunHydra(ctx, o, call)
		case *operator.Synod:
			return operator.RunSynod(ctx, o, call)
		case *operator.Basic:
			return operator.RunBasic(ctx, o, call)
		}
		return nil, fmt.Errorf("%w: %s operators do not run remotely", operator.ErrUnsupportedKind, task.Operator.Kind)
	}
}

// NewTask builds the task for dispatching agent through op.
func NewTask(op graph.OperatorDecl, agent graph.AgentDecl, call operator.Call) Task {
	return Task{
		Name:         operator.TaskName(op.Kind),
		Operator:     op,
		Agent:        agent,
		Handler:      call.Handler,
		Input:        call.Input,
		Instructions: call.Instructions,
		Timeout:      agent.TimeoutDuration().Seconds(),
	}
}
