package blackboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrConflict is returned when an optimistic update keeps losing to other writers.
var ErrConflict = errors.New("blackboard write conflict")

const maxTxRetries = 16

// Redis is a Blackboard stored in a single Redis hash so that several
// processes can share it. Each field holds a JSON encoded Entry; merges run
// inside WATCH/MULTI transactions.
type Redis struct {
	client *redis.Client
	prefix string
	mu     sync.RWMutex
	closed bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix namespaces the board (default: "synode:board:").
	Prefix string
}

// NewRedis connects to Redis and returns a shared board.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisFromClient(client, cfg.Prefix), nil
}

// NewRedisFromClient creates a board from an existing client.
func NewRedisFromClient(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "synode:board:"
	}
	return &Redis{client: client, prefix: prefix}
}

func (b *Redis) hashKey() string {
	return b.prefix + "entries"
}

func (b *Redis) check() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

func decodeEntry(raw []byte) (Entry, error) {
	var e Entry
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&e); err != nil {
		return Entry{}, fmt.Errorf("decode entry: %w", err)
	}
	e.Value = restoreNumbers(e.Value)
	return e, nil
}

// restoreNumbers turns decoded numbers back into int when they are integral
// and into float64 otherwise, descending into lists and mappings.
func restoreNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(x.String(), 10, strconv.IntSize); err == nil {
			return int(i)
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []any:
		for i := range x {
			x[i] = restoreNumbers(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = restoreNumbers(x[k])
		}
		return x
	}
	return v
}

func (b *Redis) Get(ctx context.Context, key string) (any, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	raw, err := b.client.HGet(ctx, b.hashKey(), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hget %s: %w", key, err)
	}
	e, err := decodeEntry(raw)
	if err != nil {
		return nil, err
	}
	return plainCopy(e.Kind, e.Value), nil
}

func (b *Redis) Set(ctx context.Context, key string, value any) error {
	return b.update(ctx, key, func(cur *Entry) (*Entry, error) {
		if cur != nil && cur.Kind.Accumulating() {
			next := merge(*cur, value)
			return &next, nil
		}
		kind, plain := unwrap(value)
		return &Entry{Kind: kind, Value: plain}, nil
	})
}

func (b *Redis) Seed(ctx context.Context, key string, value any) error {
	return b.update(ctx, key, func(cur *Entry) (*Entry, error) {
		if cur != nil {
			return nil, nil
		}
		kind, plain := unwrap(value)
		return &Entry{Kind: kind, Value: plain}, nil
	})
}

// update runs fn against the current entry under an optimistic lock. A nil
// entry returned by fn leaves the field untouched.
func (b *Redis) update(ctx context.Context, key string, fn func(cur *Entry) (*Entry, error)) error {
	if err := b.check(); err != nil {
		return err
	}
	hash := b.hashKey()

	txf := func(tx *redis.Tx) error {
		var cur *Entry
		raw, err := tx.HGet(ctx, hash, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			e, err := decodeEntry(raw)
			if err != nil {
				return err
			}
			cur = &e
		}

		next, err := fn(cur)
		if err != nil || next == nil {
			return err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode entry %s: %w", key, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, hash, key, data)
			return nil
		})
		return err
	}

	for range maxTxRetries {
		err := b.client.Watch(ctx, txf, hash)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: %s", ErrConflict, key)
}

func (b *Redis) Has(ctx context.Context, key string) (bool, error) {
	if err := b.check(); err != nil {
		return false, err
	}
	return b.client.HExists(ctx, b.hashKey(), key).Result()
}

func (b *Redis) Remove(ctx context.Context, key string) error {
	if err := b.check(); err != nil {
		return err
	}
	return b.client.HDel(ctx, b.hashKey(), key).Err()
}

func (b *Redis) Keys(ctx context.Context) ([]string, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	keys, err := b.client.HKeys(ctx, b.hashKey()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *Redis) Dump(ctx context.Context) (map[string]any, error) {
	snap, err := b.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(snap))
	for k, e := range snap {
		out[k] = e.Value
	}
	return out, nil
}

func (b *Redis) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	all, err := b.client.HGetAll(ctx, b.hashKey()).Result()
	if err != nil {
		return nil, err
	}
	out := make(Snapshot, len(all))
	for k, raw := range all {
		e, err := decodeEntry([]byte(raw))
		if err != nil {
			return nil, err
		}
		out[k] = Entry{Kind: e.Kind, Value: plainCopy(e.Kind, e.Value)}
	}
	return out, nil
}

func (b *Redis) Clear(ctx context.Context) error {
	if err := b.check(); err != nil {
		return err
	}
	return b.client.Del(ctx, b.hashKey()).Err()
}

// Close closes the underlying client.
func (b *Redis) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.client.Close()
}
