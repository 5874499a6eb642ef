package registry

import (
	"context"
	"sync"

	"github.com/zjrosen/linkctl/internal/registry/domain"
)

// MemoryRepository is an in-memory implementation of domain.Repository.
// It is thread-safe using sync.RWMutex for concurrent access.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[domain.NetworkID]domain.Record
	puts    int
}

// NewMemoryRepository creates a repository seeded with records.
func NewMemoryRepository(seed map[domain.NetworkID]domain.Record) *MemoryRepository {
	r := &MemoryRepository{records: make(map[domain.NetworkID]domain.Record, len(seed))}
	for id, rec := range seed {
		r.records[id] = rec.Clone()
	}
	return r
}

// Ensure MemoryRepository implements domain.Repository.
var _ domain.Repository = (*MemoryRepository)(nil)

// Get retrieves a record by network id.
func (r *MemoryRepository) Get(_ context.Context, id domain.NetworkID) (domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return domain.Record{}, &domain.NotFoundError{Network: id}
	}
	return rec.Clone(), nil
}

// Put stores a copy of rec.
func (r *MemoryRepository) Put(_ context.Context, id domain.NetworkID, rec domain.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[id] = rec.Clone()
	r.puts++
	return nil
}

// List returns copies of all records.
func (r *MemoryRepository) List(_ context.Context) (map[domain.NetworkID]domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[domain.NetworkID]domain.Record, len(r.records))
	for id, rec := range r.records {
		out[id] = rec.Clone()
	}
	return out, nil
}

// Puts returns how many writes the repository has seen.
func (r *MemoryRepository) Puts() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.puts
}

// Close is a no-op.
func (r *MemoryRepository) Close() error { return nil }
