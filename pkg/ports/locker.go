package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker defines the interface for distributed concurrency
// control. The session manager uses it to keep edits to one document path
// serialized across replicas; a single process falls back to in-memory
// locks.
type DistributedLocker interface {
	// Lock attempts to acquire a distributed lock for the given key (for
	// deckhand, a document path). It blocks until the lock is acquired or
	// the context is canceled. Returns an UnlockFunc that MUST be called
	// to release the lock.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
