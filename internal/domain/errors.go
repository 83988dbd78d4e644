package domain

import "errors"

// KeyPrefix is the default namespace for persisted ledger records.
const KeyPrefix = "creditgate:"

var (
	// ErrInvalidAmount signals a non-positive spend or credit amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrUnknownResource signals a resource the gate does not meter.
	ErrUnknownResource = errors.New("unknown resource")
	// ErrContention signals that a ledger update kept losing compare-and-swap races.
	ErrContention = errors.New("ledger contention")
	// ErrSyncFailed signals a failed or timed-out remote balance fetch.
	ErrSyncFailed = errors.New("credit sync failed")
	// ErrRemoteNotConfigured signals that no remote balance source is wired.
	ErrRemoteNotConfigured = errors.New("remote balance source not configured")
)
