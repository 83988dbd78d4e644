// Package reconcile keeps the verification cache in step with the remote balance.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/creditgate/internal/domain"
	"github.com/kailas-cloud/creditgate/internal/domain/quota"
	"github.com/kailas-cloud/creditgate/internal/domain/tier"
	"github.com/kailas-cloud/creditgate/internal/metrics"
)

const (
	defaultTimeout = 10 * time.Second
	flightKey      = "credits"
)

// Coordinator fetches the remote balance and applies it to the ledger.
// A failed sync never touches the cache.
type Coordinator struct {
	ledger  Ledger
	fetcher Fetcher
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
	group   singleflight.Group

	mu          sync.Mutex
	lastAttempt time.Time
	lastErr     error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout bounds each remote fetch.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the coordinator logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the clock used for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a coordinator. fetcher may be nil: Sync then reports
// domain.ErrRemoteNotConfigured and the cache is used as-is.
func New(ledger Ledger, fetcher Fetcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		ledger:  ledger,
		fetcher: fetcher,
		timeout: defaultTimeout,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start loads the cached balance right away and issues one background fetch.
// The fetch outcome is delivered on the returned channel, which is then closed.
func (c *Coordinator) Start(ctx context.Context) <-chan error {
	st, err := c.ledger.State(ctx)
	if err != nil {
		c.logger.Warn("Verification cache unavailable at start", zap.Error(err))
	} else {
		c.logger.Info("Verification cache loaded",
			zap.Int("balance", st.Balance),
			zap.Bool("unlimited", st.Unlimited),
			zap.Time("last_synced_at", st.LastSyncedAt),
			zap.Int("pending", len(st.Pending)),
		)
	}

	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- c.Sync(ctx)
	}()
	return done
}

// Sync fetches the remote balance and reconciles the cache. Concurrent
// callers share one in-flight request.
func (c *Coordinator) Sync(ctx context.Context) error {
	if c.fetcher == nil {
		metrics.SyncTotal.WithLabelValues("skipped").Inc()
		return domain.ErrRemoteNotConfigured
	}
	_, err, shared := c.group.Do(flightKey, func() (any, error) {
		return nil, c.sync(ctx)
	})
	if shared {
		c.logger.Debug("Joined in-flight credit sync")
	}
	return err //nolint:wrapcheck // sync already wraps
}

func (c *Coordinator) sync(ctx context.Context) error {
	// Snapshot time is taken before the request so spends made while it is
	// in flight stay pending after reconciliation.
	asOf := c.now()

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	start := time.Now()
	credits, unlimited, err := c.fetcher.FetchCredits(fctx)
	metrics.SyncDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return c.fail(err)
	}

	st, err := c.ledger.ApplyRemoteBalance(ctx, quota.RemoteBalance{
		Credits:   credits,
		Unlimited: unlimited,
		AsOf:      asOf,
	})
	if err != nil {
		return c.fail(fmt.Errorf("apply remote balance: %w", err))
	}

	c.record(nil)
	metrics.SyncTotal.WithLabelValues("ok").Inc()
	c.logger.Info("Credits synced",
		zap.Int("remote_credits", credits),
		zap.Bool("unlimited", unlimited),
		zap.Int("balance", st.Balance),
		zap.Int("pending", len(st.Pending)),
	)
	return nil
}

func (c *Coordinator) fail(err error) error {
	c.record(err)
	metrics.SyncTotal.WithLabelValues("error").Inc()
	c.logger.Warn("Credit sync failed, keeping cached balance", zap.Error(err))
	return fmt.Errorf("%w: %w", domain.ErrSyncFailed, err)
}

func (c *Coordinator) record(err error) {
	c.mu.Lock()
	c.lastAttempt = c.now()
	c.lastErr = err
	c.mu.Unlock()
}

// LastResult returns the time and error of the most recent sync attempt.
// A zero time means no attempt has been made.
func (c *Coordinator) LastResult() (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAttempt, c.lastErr
}

// OnTierChange reacts to a tier switch. An unlimited tier is applied at once
// without a network round-trip and leaves the last sync time alone; a fetch
// already in flight lands as stale. Any other tier drops a cached unlimited flag
// and re-syncs.
func (c *Coordinator) OnTierChange(ctx context.Context, ent tier.Entitlement) error {
	if ent.MonthlyVerification.IsUnlimited() {
		if _, err := c.ledger.MarkUnlimited(ctx); err != nil {
			return fmt.Errorf("apply unlimited tier: %w", err)
		}
		metrics.SyncTotal.WithLabelValues("skipped").Inc()
		c.logger.Info("Unlimited tier applied locally", zap.String("tier", ent.ID))
		return nil
	}

	if _, err := c.ledger.DropUnlimited(ctx); err != nil {
		return fmt.Errorf("drop unlimited flag: %w", err)
	}
	if err := c.Sync(ctx); err != nil && !errors.Is(err, domain.ErrRemoteNotConfigured) {
		return err
	}
	return nil
}

// Run syncs every interval until ctx is done. Failures are logged and retried
// on the next tick.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 || c.fetcher == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.Sync(ctx)
		}
	}
}
