package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory keeps values in process memory. Nothing survives a restart.
type Memory struct {
	mu     sync.RWMutex
	values map[string]Value
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{values: make(map[string]Value)}
}

func (m *Memory) Get(_ context.Context, key string) (Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return Value{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, key string, v Value) error {
	if !validKind(v.Kind) {
		return fmt.Errorf("set %s: unknown kind %q", key, v.Kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = v
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *Memory) List(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]Entry, 0, len(m.values))
	for k, v := range m.values {
		entries = append(entries, Entry{Key: k, Value: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func (m *Memory) Close() error {
	return nil
}
