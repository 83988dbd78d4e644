package ledger

import (
	"context"

	"github.com/kailas-cloud/creditgate/internal/domain/quota"
	"github.com/kailas-cloud/creditgate/internal/domain/tier"
)

// SearchStore persists the daily search record with optimistic versioning.
type SearchStore interface {
	LoadSearch(ctx context.Context) (quota.SearchState, uint64, error)
	SaveSearch(ctx context.Context, st quota.SearchState, version uint64) error
}

// VerificationStore persists the verification record with optimistic versioning.
type VerificationStore interface {
	LoadVerification(ctx context.Context) (quota.VerificationState, uint64, error)
	SaveVerification(ctx context.Context, st quota.VerificationState, version uint64) error
}

// EntitlementSource supplies the ceilings of the current tier.
type EntitlementSource interface {
	Entitlement() tier.Entitlement
}
