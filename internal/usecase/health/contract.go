package health

import (
	"context"
	"time"
)

// StorePinger checks ledger store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// SyncReporter reports the most recent remote balance sync.
type SyncReporter interface {
	SyncStatus() (time.Time, error)
}
