package blackboard

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Blackboard guarded by a mutex.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemory creates an empty in-memory board.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

// FromSnapshot creates an in-memory board holding the entries of s.
func FromSnapshot(s Snapshot) *Memory {
	m := NewMemory()
	for key, e := range s {
		kind, plain := unwrap(e.Container())
		m.entries[key] = Entry{Kind: kind, Value: plain}
	}
	return m
}

func (m *Memory) Get(_ context.Context, key string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	return plainCopy(e.Kind, e.Value), nil
}

func (m *Memory) Set(_ context.Context, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setLocked(key, value)
}

func (m *Memory) setLocked(key string, value any) error {
	if cur, ok := m.entries[key]; ok && cur.Kind.Accumulating() {
		m.entries[key] = merge(cur, value)
		return nil
	}
	kind, plain := unwrap(value)
	m.entries[key] = Entry{Kind: kind, Value: plain}
	return nil
}

func (m *Memory) Seed(_ context.Context, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; ok {
		return nil
	}
	return m.setLocked(key, value)
}

func (m *Memory) Has(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[key]
	return ok, nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Dump(_ context.Context) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]any, len(m.entries))
	for k, e := range m.entries {
		out[k] = plainCopy(e.Kind, e.Value)
	}
	return out, nil
}

func (m *Memory) Snapshot(_ context.Context) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(Snapshot, len(m.entries))
	for k, e := range m.entries {
		out[k] = Entry{Kind: e.Kind, Value: plainCopy(e.Kind, e.Value)}
	}
	return out, nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]Entry)
	return nil
}

// KindOf returns the declared kind of key, or KindScalar when absent.
func (m *Memory) KindOf(key string) Kind {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.entries[key]; ok {
		return e.Kind
	}
	return KindScalar
}
