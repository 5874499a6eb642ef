package domain

import "context"

// Repository is the persistence contract for registry records.
// Implementations return copies: mutating a returned Record never changes
// stored state until Put is called.
type Repository interface {
	// Get returns the record for a network or a NotFoundError.
	Get(ctx context.Context, id NetworkID) (Record, error)

	// Put creates or replaces the record for a network. The write is atomic:
	// readers observe either the old or the new record, never a mix.
	Put(ctx context.Context, id NetworkID, rec Record) error

	// List returns every record keyed by network.
	List(ctx context.Context) (map[NetworkID]Record, error)

	// Close releases any resources held by the repository.
	Close() error
}

// Updater is implemented by repositories that can run a read-modify-write of
// one record as a single step that other processes sharing the same storage
// cannot interleave with. fn receives the current record (zero when absent)
// and whether it exists; if fn returns an error nothing is written.
type Updater interface {
	Update(ctx context.Context, id NetworkID, fn func(rec *Record, exists bool) error) (Record, error)
}

// Leaser is implemented by repositories whose storage is shared between
// processes. A lease is held for a whole pipeline run on one network and
// excludes every other holder of the same storage, in any process.
type Leaser interface {
	// Lease blocks until the lease for id is held or ctx is done.
	Lease(ctx context.Context, id NetworkID) (release func(), err error)

	// TryLease takes the lease for id without waiting. ok is false when
	// another holder has it.
	TryLease(id NetworkID) (release func(), ok bool, err error)
}
