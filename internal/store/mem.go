package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/danmuck/busdecode/internal/table"
)

// MemStore keeps tables in memory, keyed by cleaned path.
type MemStore struct {
	mu     sync.RWMutex
	tables map[string]*table.Table
}

func NewMemStore() *MemStore {
	return &MemStore{tables: make(map[string]*table.Table)}
}

func (m *MemStore) Write(_ context.Context, path string, t *table.Table) error {
	t = table.Sanitize(t)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[filepath.Clean(path)] = t.WithName(Stem(path))
	return nil
}

func (m *MemStore) Read(_ context.Context, path string) (*table.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[filepath.Clean(path)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return t, nil
}

func (m *MemStore) Columns(ctx context.Context, path string) ([]string, error) {
	t, err := m.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	return t.ColumnNames(), nil
}

func (m *MemStore) List(_ context.Context, dir string) ([]string, error) {
	dir = filepath.Clean(dir)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for path := range m.tables {
		if filepath.Dir(path) == dir && filepath.Ext(path) == Ext {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemStore) Close() error {
	return nil
}
