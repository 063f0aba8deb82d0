// Package blackboard provides the key/value state shared by agents of a graph.
//
// A blackboard remembers, next to every value, the container kind it was
// declared with. Writing to a key holding an accumulating container (List,
// Set, Dict, Queue) merges the new value into the container; writing to any
// other key replaces the value outright.
package blackboard

import (
	"context"
	"errors"
	"strings"
)

// ErrClosed is returned when operating on a closed board.
var ErrClosed = errors.New("blackboard closed")

// PrivatePrefix marks keys that live on the per-launch private board.
const PrivatePrefix = "_"

// IsPrivate reports whether key belongs on a private board.
func IsPrivate(key string) bool {
	return strings.HasPrefix(key, PrivatePrefix)
}

// Blackboard is a typed key/value store with merge-on-write semantics.
// Implementations serialize writers internally so concurrent Set calls never
// interleave a container mutation.
type Blackboard interface {
	// Get returns the value stored under key, or nil when absent.
	// Containers are returned as plain []any or map[string]any copies.
	Get(ctx context.Context, key string) (any, error)

	// Set stores value under key, merging into accumulating containers.
	Set(ctx context.Context, key string, value any) error

	// Seed stores value under key only if the key is absent.
	Seed(ctx context.Context, key string, value any) error

	Has(ctx context.Context, key string) (bool, error)
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)

	// Dump returns a read-consistent copy with containers normalized.
	Dump(ctx context.Context) (map[string]any, error)

	// Snapshot returns the board content with declared kinds preserved.
	Snapshot(ctx context.Context) (Snapshot, error)

	Clear(ctx context.Context) error
}

// Entry is one stored value together with its declared kind.
type Entry struct {
	Kind  Kind `json:"kind"`
	Value any  `json:"value"`
}

// Snapshot is a kind-preserving copy of a board, safe to serialize.
type Snapshot map[string]Entry

// Restore writes every entry of s into b, replacing existing values.
func (s Snapshot) Restore(ctx context.Context, b Blackboard) error {
	for key, e := range s {
		if err := b.Remove(ctx, key); err != nil {
			return err
		}
		if err := b.Set(ctx, key, e.Container()); err != nil {
			return err
		}
	}
	return nil
}

// Container rebuilds the typed container stored in e.
func (e Entry) Container() any {
	return wrap(e.Kind, e.Value)
}
