package mirror

import (
	"context"
	"sort"
	"sync"
)

// Mirror is one of the two isolated data stores the bridge synchronizes.
// Snapshot returns a consistent copy; Set and Remove are the only mutation
// paths and are used exclusively by the synchronizer under its apply lock.
type Mirror interface {
	Name() string
	Snapshot(ctx context.Context) (map[string]string, error)
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// InMemoryMirror is a map-backed mirror for tests and single-node dev.
type InMemoryMirror struct {
	name string
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryMirror constructs a mirror seeded with the given entries.
func NewMemoryMirror(name string, seed map[string]string) *InMemoryMirror {
	data := make(map[string]string, len(seed))
	for k, v := range seed {
		data[k] = v
	}
	return &InMemoryMirror{name: name, data: data}
}

func (m *InMemoryMirror) Name() string { return m.name }

func (m *InMemoryMirror) Snapshot(context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out, nil
}

func (m *InMemoryMirror) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *InMemoryMirror) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *InMemoryMirror) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// sortedKeys returns the union of both snapshots' keys in stable order, so
// diffs over the same state are byte-identical.
func sortedKeys(a, b map[string]string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
