package storage

import (
	"context"
	"sync"
)

// Memory is an in-process KV, MetaStore, and GroupRegistrar.  Values are
// stored as given; callers must not mutate them afterwards.
type Memory struct {
	mu      sync.RWMutex
	options map[string]any
	meta    map[int64]map[string]any
	groups  map[string]map[string]struct{}
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		options: make(map[string]any),
		meta:    make(map[int64]map[string]any),
		groups:  make(map[string]map[string]struct{}),
	}
}

func (m *Memory) GetOptions(_ context.Context, names []string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]any, len(names))
	for _, n := range names {
		if v, ok := m.options[n]; ok {
			out[n] = v
		}
	}
	return out, nil
}

func (m *Memory) SetOption(_ context.Context, name string, value any) error {
	m.mu.Lock()
	m.options[name] = value
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetMetas(_ context.Context, entityID int64, keys []string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := m.meta[entityID][k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *Memory) SetMeta(_ context.Context, entityID int64, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.meta[entityID] == nil {
		m.meta[entityID] = make(map[string]any)
	}
	m.meta[entityID][key] = value
	return nil
}

func (m *Memory) RegisterGroup(_ context.Context, group string, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.groups[group]
	if g == nil {
		g = make(map[string]struct{})
		m.groups[group] = g
	}
	for _, n := range names {
		g[n] = struct{}{}
	}
	return nil
}

// InGroup reports whether name was registered under group.
func (m *Memory) InGroup(group, name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.groups[group][name]
	return ok
}
