// Package filelock provides OS advisory locks on files next to a registry.
//
// Locks exclude every other open handle of the same lock file, including
// handles in the same process, so two stores over one registry serialize
// even when they live in one binary.
package filelock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/zjrosen/linkctl/internal/registry/domain"
)

// retryDelay is how often a blocked Lock polls for the lock.
const retryDelay = 20 * time.Millisecond

// Lock blocks until the exclusive lock on path is held or ctx is done.
// The lock file and its directory are created when missing.
func Lock(ctx context.Context, path string) (func(), error) {
	fl, err := open(path)
	if err != nil {
		return nil, err
	}
	ok, err := fl.TryLockContext(ctx, retryDelay)
	if err != nil {
		_ = fl.Close()
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	if !ok {
		_ = fl.Close()
		return nil, fmt.Errorf("locking %s: %w", path, ctx.Err())
	}
	return unlocker(fl), nil
}

// TryLock takes the exclusive lock on path without waiting.
func TryLock(path string) (func(), bool, error) {
	fl, err := open(path)
	if err != nil {
		return nil, false, err
	}
	ok, err := fl.TryLock()
	if err != nil {
		_ = fl.Close()
		return nil, false, fmt.Errorf("locking %s: %w", path, err)
	}
	if !ok {
		_ = fl.Close()
		return nil, false, nil
	}
	return unlocker(fl), true, nil
}

func open(path string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	return flock.New(path), nil
}

func unlocker(fl *flock.Flock) func() {
	done := false
	return func() {
		if done {
			return
		}
		done = true
		_ = fl.Unlock()
	}
}

// Leases hands out per-network run leases as lock files beside a registry.
// The zero value is unusable; set Base to the registry path.
type Leases struct {
	Base string
}

// Path returns the lease file for id.
func (l Leases) Path(id domain.NetworkID) string {
	return fmt.Sprintf("%s.%s.lease", l.Base, id)
}

// Lease blocks until the lease for id is held or ctx is done.
func (l Leases) Lease(ctx context.Context, id domain.NetworkID) (func(), error) {
	return Lock(ctx, l.Path(id))
}

// TryLease takes the lease for id without waiting.
func (l Leases) TryLease(id domain.NetworkID) (func(), bool, error) {
	return TryLock(l.Path(id))
}
