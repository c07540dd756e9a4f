package storekv

import (
	"bytes"
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store, used for tests and single-process
// ad-hoc nodes. All operations are serialized by a single mutex; the DAG
// core's own per-federation write lock is the real concurrency control,
// this just needs to be safe to call from a worker pool.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string]map[string][]byte
	lists  map[string]map[string][][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string]map[string][]byte),
		lists:  make(map[string]map[string][][]byte),
	}
}

func (m *MemoryStore) Get(_ context.Context, table string, key []byte) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		return nil, false, nil
	}
	v, ok := t[string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryStore) Put(_ context.Context, table string, key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		t = make(map[string][]byte)
		m.tables[table] = t
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	t[string(key)] = cp
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, table string, key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tables[table]; ok {
		delete(t, string(key))
	}
	return nil
}

func (m *MemoryStore) List(_ context.Context, table string, prefix []byte) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		return nil, nil
	}
	keys := make([][]byte, 0, len(t))
	for k := range t {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, []byte(k))
		}
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
	return keys, nil
}

func (m *MemoryStore) Append(_ context.Context, table string, key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.lists[table]
	if !ok {
		t = make(map[string][][]byte)
		m.lists[table] = t
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	t[string(key)] = append(t[string(key)], cp)
	return nil
}

func (m *MemoryStore) GetList(_ context.Context, table string, key []byte) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.lists[table]
	if !ok {
		return nil, nil
	}
	return append([][]byte(nil), t[string(key)]...), nil
}

func (m *MemoryStore) Close() error { return nil }
