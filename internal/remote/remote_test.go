package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aixgo-dev/synode/internal/graph"
	"github.com/aixgo-dev/synode/internal/operator"
	"github.com/aixgo-dev/synode/pkg/blackboard"
	"github.com/aixgo-dev/synode/pkg/llm/provider"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupQueue(t *testing.T, opts ...QueueOption) (*miniredis.Miniredis, *RedisQueue) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewRedisQueue(client, opts...)
}

func startWorker(t *testing.T, q *RedisQueue, exec Executor) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	w := NewWorker(q, exec, WithPoll(100*time.Millisecond), WithConcurrency(4))
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestQueue_RoundTrip(t *testing.T) {
	_, q := setupQueue(t)
	startWorker(t, q, func(_ context.Context, task Task) (any, error) {
		return map[string]any{"echo": task.Input, "handler": task.Handler}, nil
	})

	out, err := q.Dispatch(context.Background(), Task{Name: "run_basic", Handler: "sum", Input: "x", Timeout: 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"echo": "x", "handler": "sum"}, out)
}

func TestQueue_WorkerError(t *testing.T) {
	_, q := setupQueue(t)
	startWorker(t, q, func(context.Context, Task) (any, error) {
		return nil, errors.New("exploded")
	})

	_, err := q.Dispatch(context.Background(), Task{Name: "run_bot", Timeout: 1})
	require.ErrorIs(t, err, ErrRemoteFailed)
	assert.Contains(t, err.Error(), "exploded")
}

func TestQueue_Timeout(t *testing.T) {
	_, q := setupQueue(t, WithGrace(0))

	start := time.Now()
	_, err := q.Dispatch(context.Background(), Task{Name: "run_bot", Timeout: 1})
	assert.ErrorIs(t, err, ErrRemoteTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)

	pending, err := q.Pending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
}

func TestQueue_ReplyExpires(t *testing.T) {
	mr, q := setupQueue(t)
	require.NoError(t, q.Reply(context.Background(), Reply{ID: "abc", Result: 1}))

	assert.True(t, mr.Exists(DefaultReplyPrefix+"abc"))
	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(DefaultReplyPrefix+"abc"))
}

func TestNewTask(t *testing.T) {
	op := graph.OperatorDecl{Alias: "calc", Kind: graph.KindBasic, Path: "tools.calc"}
	agent := graph.AgentDecl{Agent: "adder", Operator: "calc::add", Timeout: 2}

	task := NewTask(op, agent, operator.Call{Handler: "add", Input: 1, Instructions: "sum"})
	assert.Equal(t, "run_basic", task.Name)
	assert.Equal(t, 2*time.Second, task.TimeoutDuration())
	assert.Equal(t, "add", task.Handler)
}

func TestOperatorExecutor_Basic(t *testing.T) {
	_, q := setupQueue(t)

	deps := operator.Deps{Basics: map[string]operator.BasicFactory{
		"tools.calc": func(map[string]any) (operator.Methods, error) {
			return operator.Methods{
				"add": func(ctx context.Context, a operator.Args) (any, error) {
					base, err := a.Board.Get(ctx, "base")
					if err != nil {
						return nil, err
					}
					return base.(float64) + a.Kwargs["n"].(float64), nil
				},
			}, nil
		},
	}}
	startWorker(t, q, OperatorExecutor(deps))

	board := blackboard.NewMemory()
	require.NoError(t, board.Set(context.Background(), "base", 10))
	snap, err := board.Snapshot(context.Background())
	require.NoError(t, err)

	op := graph.OperatorDecl{Alias: "calc", Kind: graph.KindBasic, Path: "tools.calc"}
	task := NewTask(op, graph.AgentDecl{Agent: "adder", Operator: "calc::add", Timeout: 1},
		operator.Call{Handler: "add", Input: map[string]any{"n": 5}})
	task.Board = snap

	out, err := q.Dispatch(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, float64(15), out)
}

func TestOperatorExecutor_Bot(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	mock.AddCompletionResponse(provider.MockCompletionResponse("remote hi"))
	providers := provider.NewRegistry()
	providers.Register("mock", mock)

	exec := OperatorExecutor(operator.Deps{Providers: providers})
	op := graph.OperatorDecl{Alias: "w", Kind: graph.KindBot, Kwargs: map[string]any{"provider": "mock"}}

	out, err := exec(context.Background(), NewTask(op, graph.AgentDecl{Agent: "a"}, operator.Call{Input: "x"}))
	require.NoError(t, err)
	assert.Equal(t, "remote hi", out)
}

func TestOperatorExecutor_Rejects(t *testing.T) {
	exec := OperatorExecutor(operator.Deps{})

	_, err := exec(context.Background(), Task{Name: "run_bot", Operator: graph.OperatorDecl{Kind: graph.KindBasic}})
	assert.ErrorIs(t, err, ErrUnknownTask)

	sup := graph.OperatorDecl{Alias: "eye", Kind: graph.KindArgus}
	_, err = exec(context.Background(), Task{Name: "run_argus", Operator: sup})
	assert.Error(t, err)
}
