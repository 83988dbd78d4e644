package reconcile

import (
	"context"

	"github.com/kailas-cloud/creditgate/internal/domain/quota"
)

// Fetcher reads the authoritative verification balance.
type Fetcher interface {
	FetchCredits(ctx context.Context) (credits int, unlimited bool, err error)
}

// Ledger is the verification cache the coordinator reconciles.
type Ledger interface {
	State(ctx context.Context) (quota.VerificationState, error)
	Snapshot() quota.VerificationState
	ApplyRemoteBalance(ctx context.Context, rb quota.RemoteBalance) (quota.VerificationState, error)
	MarkUnlimited(ctx context.Context) (quota.VerificationState, error)
	DropUnlimited(ctx context.Context) (quota.VerificationState, error)
}
