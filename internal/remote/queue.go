package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aixgo-dev/synode/internal/logging"
	metrics "github.com/aixgo-dev/synode/pkg/observability"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultQueue       = "synode:tasks"
	DefaultReplyPrefix = "synode:reply:"
	replyTTL           = time.Minute
)

// RedisQueue dispatches tasks by LPUSH onto a shared list; the worker pushes
// the reply onto a per-task list which the dispatcher BRPOPs.
type RedisQueue struct {
	client      *redis.Client
	queue       string
	replyPrefix string
	grace       time.Duration
	log         *slog.Logger
}

// QueueOption configures a RedisQueue.
type QueueOption func(*RedisQueue)

// WithQueueName sets the task list key.
func WithQueueName(name string) QueueOption {
	return func(q *RedisQueue) { q.queue = name }
}

// WithReplyPrefix sets the prefix of reply list keys.
func WithReplyPrefix(prefix string) QueueOption {
	return func(q *RedisQueue) { q.replyPrefix = prefix }
}

// WithGrace overrides the Grace added to task timeouts.
func WithGrace(d time.Duration) QueueOption {
	return func(q *RedisQueue) { q.grace = d }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) QueueOption {
	return func(q *RedisQueue) { q.log = log }
}

// NewRedisQueue creates a queue on client.
func NewRedisQueue(client *redis.Client, opts ...QueueOption) *RedisQueue {
	q := &RedisQueue{
		client:      client,
		queue:       DefaultQueue,
		replyPrefix: DefaultReplyPrefix,
		grace:       Grace,
		log:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *RedisQueue) replyKey(id string) string {
	return q.replyPrefix + id
}

// Dispatch enqueues task and waits up to its timeout plus the grace period for the
// reply. A late reply is discarded when its list expires.
func (q *RedisQueue) Dispatch(ctx context.Context, task Task) (result any, err error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	defer func() { metrics.RecordRemoteTask(task.Name, "dispatch", err) }()

	payload, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("encode task %s: %w", task.Name, err)
	}
	if err := q.client.LPush(ctx, q.queue, payload).Err(); err != nil {
		return nil, fmt.Errorf("enqueue task %s: %w", task.Name, err)
	}
	q.log.Debug("task enqueued", "task", task.Name, "id", task.ID, "operator", task.Operator.Alias)

	wait := task.TimeoutDuration() + q.grace
	res, err := q.client.BRPop(ctx, wait, q.replyKey(task.ID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s %s after %s", ErrRemoteTimeout, task.Name, task.ID, wait)
	}
	if err != nil {
		return nil, fmt.Errorf("await task %s: %w", task.ID, err)
	}

	var reply Reply
	if err := json.Unmarshal([]byte(res[1]), &reply); err != nil {
		return nil, fmt.Errorf("decode reply %s: %w", task.ID, err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("%w: %s: %s", ErrRemoteFailed, task.Name, reply.Error)
	}
	return reply.Result, nil
}

// Next blocks up to wait for a task. It returns nil when none arrived.
func (q *RedisQueue) Next(ctx context.Context, wait time.Duration) (*Task, error) {
	res, err := q.client.BRPop(ctx, wait, q.queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var task Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &task, nil
}

// Reply publishes the reply for a task.
func (q *RedisQueue) Reply(ctx context.Context, reply Reply) error {
	payload, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("encode reply %s: %w", reply.ID, err)
	}
	key := q.replyKey(reply.ID)
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, payload)
		pipe.Expire(ctx, key, replyTTL)
		return nil
	})
	return err
}

// Pending reports the number of queued tasks.
func (q *RedisQueue) Pending(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queue).Result()
}
