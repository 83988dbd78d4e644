package ledger

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/creditgate/internal/domain/quota"
	"github.com/kailas-cloud/creditgate/internal/domain/usage"
	"github.com/kailas-cloud/creditgate/internal/metrics"
)

// Gate is the only path that consumes quota. Spend is total: every failure
// mode answers Denied.
type Gate struct {
	entitlements EntitlementSource
	scheduler    *quota.ResetScheduler
	search       *SearchLedger
	verification *VerificationLedger
	logger       *zap.Logger
}

// NewGate composes both ledgers behind one spend contract.
func NewGate(
	entitlements EntitlementSource,
	scheduler *quota.ResetScheduler,
	search *SearchLedger,
	verification *VerificationLedger,
	logger *zap.Logger,
) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		entitlements: entitlements,
		scheduler:    scheduler,
		search:       search,
		verification: verification,
		logger:       logger,
	}
}

// Spend attempts to consume n units of r.
func (g *Gate) Spend(ctx context.Context, r usage.Resource, n int) usage.Outcome {
	outcome := g.spend(ctx, r, n)
	label := string(r)
	if r != usage.Search && r != usage.Verification {
		label = "unknown"
	}
	metrics.SpendTotal.WithLabelValues(label, string(outcome)).Inc()
	return outcome
}

func (g *Gate) spend(ctx context.Context, r usage.Resource, n int) usage.Outcome {
	if n < 1 {
		g.logger.Warn("Spend rejected: non-positive amount",
			zap.String("resource", string(r)),
			zap.Int("n", n),
		)
		return usage.Denied
	}

	ent := g.entitlements.Entitlement()

	var (
		granted bool
		err     error
	)
	switch r {
	case usage.Search:
		granted, err = g.search.tryConsume(ctx, g.scheduler.Today(), ent.DailySearch, n)
	case usage.Verification:
		granted, err = g.verification.tryConsume(ctx, ent.MonthlyVerification, n)
	default:
		g.logger.Warn("Spend rejected: unknown resource", zap.String("resource", string(r)))
		return usage.Denied
	}

	if err != nil {
		g.logger.Warn("Spend denied: ledger unavailable",
			zap.String("resource", string(r)),
			zap.Int("n", n),
			zap.String("tier", ent.ID),
			zap.Error(err),
		)
		return usage.Denied
	}
	if !granted {
		g.logger.Info("Spend denied: quota exhausted",
			zap.String("resource", string(r)),
			zap.Int("n", n),
			zap.String("tier", ent.ID),
		)
		return usage.Denied
	}
	return usage.Granted
}
