package archive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/contextbuf"
)

// MemoryStore keeps archived items in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	byKey   map[string]int
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byKey: make(map[string]int), now: time.Now}
}

func (m *MemoryStore) Store(ctx context.Context, item contextbuf.Item) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fmt.Sprintf("mem:%s", item.ID)
	rec := Record{Key: key, Item: item, ArchivedAt: m.now()}
	if i, ok := m.byKey[key]; ok {
		m.records[i] = rec
		return key, nil
	}
	m.byKey[key] = len(m.records)
	m.records = append(m.records, rec)
	return key, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.byKey[key]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return m.records[i], nil
}

func (m *MemoryStore) List(_ context.Context, f Filter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for i := range m.records {
		if !f.match(&m.records[i].Item) {
			continue
		}
		out = append(out, m.records[i])
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func (m *MemoryStore) Close() error {
	return nil
}
