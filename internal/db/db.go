package db

import (
	"context"
	"time"
)

// Store is the database facade used by the composition root.
type Store interface {
	Pinger
	VersionedStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// VersionedStore is a key-value store with optimistic concurrency.
// Every successful write bumps the record version by one; version 0 means
// the key does not exist yet.
type VersionedStore interface {
	// GetVersioned returns the value and its version, or ErrKeyNotFound.
	GetVersioned(ctx context.Context, key string) ([]byte, uint64, error)
	// CompareAndSwap writes value iff the stored version still equals version.
	// A lost race returns ErrVersionConflict.
	CompareAndSwap(ctx context.Context, key string, version uint64, value []byte) error
}
