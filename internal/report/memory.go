package report

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/kirychukyurii/weka-scale-in/internal/model"
)

// MemoryStore keeps reports in process memory for ttl
type MemoryStore struct {
	data *gocache.Cache
}

// NewMemoryStore creates a store whose entries expire after ttl
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	cleanupInterval := ttl * 2
	return &MemoryStore{
		data: gocache.New(ttl, cleanupInterval),
	}
}

func (m *MemoryStore) Save(_ context.Context, rep *Report) error {
	m.data.Set(string(rep.Role), rep, gocache.DefaultExpiration)
	return nil
}

func (m *MemoryStore) Last(_ context.Context, role model.Role) (*Report, error) {
	cached, ok := m.data.Get(string(role))
	if !ok {
		return nil, ErrNotFound
	}
	rep, ok := cached.(*Report)
	if !ok {
		return nil, ErrNotFound
	}
	return rep, nil
}

func (m *MemoryStore) Close() error {
	m.data.Flush()
	return nil
}
