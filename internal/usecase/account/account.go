// Package account owns one credit session: the tier, both ledgers, the gate
// and the sync coordinator. It is passed explicitly to whatever spends or
// displays quota.
package account

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/creditgate/internal/domain/quota"
	"github.com/kailas-cloud/creditgate/internal/domain/tier"
	"github.com/kailas-cloud/creditgate/internal/domain/usage"
	"github.com/kailas-cloud/creditgate/internal/metrics"
	"github.com/kailas-cloud/creditgate/internal/usecase/ledger"
	"github.com/kailas-cloud/creditgate/internal/usecase/reconcile"
)

// Store persists both ledger records of the session.
type Store interface {
	ledger.SearchStore
	ledger.VerificationStore
}

// Deps wires an Account. Store is required; everything else has a default.
type Deps struct {
	Store   Store
	Fetcher reconcile.Fetcher // nil: cache only, Sync reports ErrRemoteNotConfigured
	Policy  *tier.Policy
	Tier    string

	Location    *time.Location
	Now         func() time.Time
	MaxRetries  int
	SyncTimeout time.Duration
	Logger      *zap.Logger
}

// Account is the credit session.
type Account struct {
	mu  sync.RWMutex
	ent tier.Entitlement

	policy       *tier.Policy
	scheduler    *quota.ResetScheduler
	search       *ledger.SearchLedger
	verification *ledger.VerificationLedger
	gate         *ledger.Gate
	coordinator  *reconcile.Coordinator
	logger       *zap.Logger
}

// New creates an Account from deps.
func New(d Deps) *Account {
	if d.Policy == nil {
		d.Policy = tier.DefaultPolicy()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	a := &Account{
		policy:    d.Policy,
		scheduler: quota.NewResetScheduler(d.Now, d.Location),
		logger:    d.Logger,
	}
	a.ent = a.resolve(d.Tier)

	opts := []ledger.Option{
		ledger.WithMaxRetries(d.MaxRetries),
		ledger.WithLogger(d.Logger),
		ledger.WithClock(d.Now),
	}
	a.search = ledger.NewSearchLedger(d.Store, opts...)
	a.verification = ledger.NewVerificationLedger(d.Store, opts...)
	a.gate = ledger.NewGate(a, a.scheduler, a.search, a.verification, d.Logger)
	a.coordinator = reconcile.New(a.verification, d.Fetcher,
		reconcile.WithTimeout(d.SyncTimeout),
		reconcile.WithLogger(d.Logger),
		reconcile.WithClock(d.Now),
	)
	return a
}

// Start loads the cache and kicks off the first sync. An unlimited tier is
// applied locally instead. The returned channel yields the outcome once.
func (a *Account) Start(ctx context.Context) <-chan error {
	ent := a.Entitlement()
	if !ent.MonthlyVerification.IsUnlimited() {
		return a.coordinator.Start(ctx)
	}
	done := make(chan error, 1)
	done <- a.coordinator.OnTierChange(ctx, ent)
	close(done)
	return done
}

// Entitlement returns the current tier ceilings.
func (a *Account) Entitlement() tier.Entitlement {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ent
}

// SetTier switches the session tier. Unknown identifiers resolve to free.
// The returned error is a reconciliation failure only; the tier is switched regardless.
func (a *Account) SetTier(ctx context.Context, id string) (tier.Entitlement, error) {
	ent := a.resolve(id)

	a.mu.Lock()
	prev := a.ent
	a.ent = ent
	a.mu.Unlock()

	a.logger.Info("Tier changed",
		zap.String("from", prev.ID),
		zap.String("to", ent.ID),
	)
	return ent, a.coordinator.OnTierChange(ctx, ent)
}

func (a *Account) resolve(id string) tier.Entitlement {
	ent, ok := a.policy.Lookup(id)
	if !ok {
		ent = a.policy.LimitsFor(id)
		a.logger.Warn("Unknown tier, using free tier limits",
			zap.String("tier", id),
			zap.String("resolved", ent.ID),
		)
	}
	return ent
}

// Spend consumes n units of r. Never fails: problems answer Denied.
func (a *Account) Spend(ctx context.Context, r usage.Resource, n int) usage.Outcome {
	return a.gate.Spend(ctx, r, n)
}

// Remaining returns what is left of r. Unknown resources have nothing left.
func (a *Account) Remaining(ctx context.Context, r usage.Resource) tier.Limit {
	ent := a.Entitlement()

	var left tier.Limit
	switch r {
	case usage.Search:
		left = a.search.Remaining(ctx, a.scheduler.Today(), ent.DailySearch)
	case usage.Verification:
		left = a.verification.Remaining(ctx, ent.MonthlyVerification)
	default:
		return tier.Finite(0)
	}
	metrics.Remaining.WithLabelValues(string(r)).Set(float64(left.Int()))
	return left
}

// AddCredits records an optimistic credit top-up until the next sync.
func (a *Account) AddCredits(ctx context.Context, n int) (quota.VerificationState, error) {
	st, err := a.verification.Credit(ctx, n)
	if err != nil {
		return quota.VerificationState{}, err //nolint:wrapcheck // ledger errors carry context
	}
	a.logger.Info("Credits added locally", zap.Int("n", n), zap.Int("balance", st.Balance))
	return st, nil
}

// Sync reconciles the verification cache with the remote balance.
func (a *Account) Sync(ctx context.Context) error {
	return a.coordinator.Sync(ctx) //nolint:wrapcheck // coordinator wraps
}

// Run refreshes the balance every interval until ctx is done.
func (a *Account) Run(ctx context.Context, interval time.Duration) {
	a.coordinator.Run(ctx, interval)
}

// SearchState returns today's search record.
func (a *Account) SearchState(ctx context.Context) (quota.SearchState, error) {
	return a.search.State(ctx, a.scheduler.Today()) //nolint:wrapcheck // ledger errors carry context
}

// VerificationState returns the cached verification record.
func (a *Account) VerificationState(ctx context.Context) (quota.VerificationState, error) {
	st, err := a.verification.State(ctx)
	if err != nil {
		return a.verification.Snapshot(), err //nolint:wrapcheck // ledger errors carry context
	}
	return st, nil
}

// Scheduler exposes the session clock and calendar.
func (a *Account) Scheduler() *quota.ResetScheduler { return a.scheduler }

// SyncStatus reports the last sync attempt. A zero time means none has run.
func (a *Account) SyncStatus() (time.Time, error) {
	return a.coordinator.LastResult()
}
