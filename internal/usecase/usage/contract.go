package usage

import (
	"context"

	"github.com/kailas-cloud/creditgate/internal/domain/quota"
	"github.com/kailas-cloud/creditgate/internal/domain/tier"
	domusage "github.com/kailas-cloud/creditgate/internal/domain/usage"
)

// AccountReader provides read-only access to the credit session.
type AccountReader interface {
	Entitlement() tier.Entitlement
	Scheduler() *quota.ResetScheduler
	Remaining(ctx context.Context, r domusage.Resource) tier.Limit
	SearchState(ctx context.Context) (quota.SearchState, error)
	VerificationState(ctx context.Context) (quota.VerificationState, error)
}
