package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Builtins returns the stalker kinds available to every schema:
//
//	clock    writes the current Unix time to kwargs.key on each heartbeat
//	counter  increments kwargs.key on each heartbeat
func Builtins() map[string]StalkerFactory {
	return map[string]StalkerFactory{
		"clock":   newClock,
		"counter": newCounter,
	}
}

func boardKey(kwargs map[string]any) (string, error) {
	key, _ := kwargs["key"].(string)
	if key == "" {
		return "", errors.New("kwargs.key is required")
	}
	return key, nil
}

func newClock(kwargs map[string]any) (Stalker, error) {
	key, err := boardKey(kwargs)
	if err != nil {
		return nil, err
	}
	return StalkerFunc(func(ctx context.Context, env *Env) error {
		if env.Board == nil {
			return ErrNoBlackboard
		}
		return env.Board.Set(ctx, key, time.Now().Unix())
	}), nil
}

func newCounter(kwargs map[string]any) (Stalker, error) {
	key, err := boardKey(kwargs)
	if err != nil {
		return nil, err
	}
	return StalkerFunc(func(ctx context.Context, env *Env) error {
		if env.Board == nil {
			return ErrNoBlackboard
		}
		cur, err := env.Board.Get(ctx, key)
		if err != nil {
			return err
		}
		var n int64
		switch v := cur.(type) {
		case nil:
		case int:
			n = int64(v)
		case int64:
			n = v
		case float64:
			n = int64(v)
		default:
			return fmt.Errorf("counter %q holds %T", key, cur)
		}
		return env.Board.Set(ctx, key, n+1)
	}), nil
}
