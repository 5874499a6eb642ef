// Package registry serializes access to the registry repository per network.
//
// Writes for one network go through Update, a read-modify-write under that
// network's lock. Pipeline runs additionally hold a lease (Acquire) for their
// whole duration so two runs never target the same network at once. Locks
// are per network id; runs against different networks never contend.
// Repositories shared between processes extend both to other processes by
// implementing domain.Updater and domain.Leaser.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zjrosen/linkctl/internal/log"
	"github.com/zjrosen/linkctl/internal/registry/domain"
)

// ErrNetworkBusy is returned by TryAcquire when a run already holds the lease.
var ErrNetworkBusy = errors.New("another run holds this network")

// Service wraps a Repository with per-network write serialization.
type Service struct {
	repo domain.Repository

	mu     sync.Mutex
	writes map[domain.NetworkID]*sync.Mutex
	leases map[domain.NetworkID]chan struct{}
}

// NewService creates a Service over repo.
func NewService(repo domain.Repository) *Service {
	return &Service{
		repo:   repo,
		writes: make(map[domain.NetworkID]*sync.Mutex),
		leases: make(map[domain.NetworkID]chan struct{}),
	}
}

// Get returns a copy of the record for id.
func (s *Service) Get(ctx context.Context, id domain.NetworkID) (domain.Record, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Record{}, err
	}
	return rec.Clone(), nil
}

// List returns all records sorted by network id.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(all))
	for id, rec := range all {
		entries = append(entries, Entry{Network: id, Record: rec.Clone()})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Network < entries[j].Network
	})
	return entries, nil
}

// Entry pairs a record with its network id.
type Entry struct {
	Network domain.NetworkID
	Record  domain.Record
}

// Put replaces the record for id under the network's write lock.
func (s *Service) Put(ctx context.Context, id domain.NetworkID, rec domain.Record) error {
	lock := s.writeLock(id)
	lock.Lock()
	defer lock.Unlock()

	if err := s.repo.Put(ctx, id, rec.Clone()); err != nil {
		return fmt.Errorf("writing record for network %s: %w", id, err)
	}
	log.Debug(log.CatRegistry, "record written", "network", id)
	return nil
}

// Update applies fn to the current record and persists the result atomically
// with respect to other writers of the same network. If fn returns an error
// nothing is written. The updated record is returned.
func (s *Service) Update(ctx context.Context, id domain.NetworkID, fn func(*domain.Record) error) (domain.Record, error) {
	rec, err := s.modify(ctx, id, func(rec *domain.Record, exists bool) error {
		if !exists {
			return &domain.NotFoundError{Network: id}
		}
		return fn(rec)
	})
	if err != nil {
		return domain.Record{}, err
	}
	log.Debug(log.CatRegistry, "record updated", "network", id)
	return rec, nil
}

// modify runs one read-modify-write under the network's write lock. A
// repository that implements domain.Updater runs it itself so writers in
// other processes are excluded too.
func (s *Service) modify(ctx context.Context, id domain.NetworkID, fn func(*domain.Record, bool) error) (domain.Record, error) {
	lock := s.writeLock(id)
	lock.Lock()
	defer lock.Unlock()

	if u, ok := s.repo.(domain.Updater); ok {
		rec, err := u.Update(ctx, id, fn)
		if err != nil {
			return domain.Record{}, err
		}
		return rec.Clone(), nil
	}

	rec, err := s.repo.Get(ctx, id)
	exists := err == nil
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Record{}, err
	}
	rec = rec.Clone()
	if err := fn(&rec, exists); err != nil {
		return domain.Record{}, err
	}
	if err := s.repo.Put(ctx, id, rec); err != nil {
		return domain.Record{}, fmt.Errorf("writing record for network %s: %w", id, err)
	}
	return rec.Clone(), nil
}

// Merge writes every set field of incoming into id's record, creating the
// record when absent. Field writes follow Record.SetField, so addresses are
// validated and a different entityAddress is rejected with
// AlreadyDeployedError. incoming's journal is kept only when the stored
// record has none. Nothing is written if any field is rejected.
func (s *Service) Merge(ctx context.Context, id domain.NetworkID, incoming domain.Record) (domain.Record, error) {
	rec, err := s.modify(ctx, id, func(rec *domain.Record, _ bool) error {
		for _, name := range domain.Fields {
			v, ok := incoming.Field(name)
			if !ok {
				continue
			}
			if err := rec.SetField(id, name, v); err != nil {
				return err
			}
		}
		if rec.Progress == nil && incoming.Progress != nil {
			rec.Progress = incoming.Clone().Progress
		}
		return nil
	})
	if err != nil {
		return domain.Record{}, err
	}
	log.Debug(log.CatRegistry, "record merged", "network", id)
	return rec, nil
}

// Acquire blocks until the run lease for id is free or ctx is done. When the
// repository implements domain.Leaser the lease also excludes runs in other
// processes. The returned release function must be called exactly once.
func (s *Service) Acquire(ctx context.Context, id domain.NetworkID) (func(), error) {
	lease := s.lease(id)
	select {
	case lease <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for network %s: %w", id, ctx.Err())
	}

	var unlock func()
	if l, ok := s.repo.(domain.Leaser); ok {
		var err error
		if unlock, err = l.Lease(ctx, id); err != nil {
			<-lease
			return nil, fmt.Errorf("waiting for network %s: %w", id, err)
		}
	}
	log.Debug(log.CatRegistry, "lease acquired", "network", id)
	return s.releaser(id, lease, unlock), nil
}

// TryAcquire takes the run lease for id without waiting.
func (s *Service) TryAcquire(id domain.NetworkID) (func(), error) {
	lease := s.lease(id)
	select {
	case lease <- struct{}{}:
	default:
		return nil, fmt.Errorf("network %s: %w", id, ErrNetworkBusy)
	}

	var unlock func()
	if l, ok := s.repo.(domain.Leaser); ok {
		var held bool
		var err error
		unlock, held, err = l.TryLease(id)
		if err != nil || !held {
			<-lease
		}
		if err != nil {
			return nil, fmt.Errorf("network %s: %w", id, err)
		}
		if !held {
			return nil, fmt.Errorf("network %s: %w", id, ErrNetworkBusy)
		}
	}
	return s.releaser(id, lease, unlock), nil
}

// Close closes the underlying repository.
func (s *Service) Close() error {
	return s.repo.Close()
}

func (s *Service) releaser(id domain.NetworkID, lease chan struct{}, unlock func()) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			if unlock != nil {
				unlock()
			}
			<-lease
			log.Debug(log.CatRegistry, "lease released", "network", id)
		})
	}
}

func (s *Service) writeLock(id domain.NetworkID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.writes[id]
	if !ok {
		lock = &sync.Mutex{}
		s.writes[id] = lock
	}
	return lock
}

func (s *Service) lease(id domain.NetworkID) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	lease, ok := s.leases[id]
	if !ok {
		lease = make(chan struct{}, 1)
		s.leases[id] = lease
	}
	return lease
}
