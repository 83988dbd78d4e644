package creditgate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kailas-cloud/creditgate/internal/db"
	dbBadger "github.com/kailas-cloud/creditgate/internal/db/badger"
	dbRedis "github.com/kailas-cloud/creditgate/internal/db/redis"
	"github.com/kailas-cloud/creditgate/internal/domain"
	"github.com/kailas-cloud/creditgate/internal/domain/tier"
	"github.com/kailas-cloud/creditgate/internal/metrics"
	ledgerrepo "github.com/kailas-cloud/creditgate/internal/repository/ledger"
	"github.com/kailas-cloud/creditgate/internal/transport/remote"
	"github.com/kailas-cloud/creditgate/internal/usecase/account"
	healthuc "github.com/kailas-cloud/creditgate/internal/usecase/health"
	"github.com/kailas-cloud/creditgate/internal/usecase/reconcile"
	usageuc "github.com/kailas-cloud/creditgate/internal/usecase/usage"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultProfile          = "default"
)

// Client is the creditgate entry point. Safe for concurrent use.
type Client struct {
	store     db.Store
	acct      *account.Account
	usageSvc  *usageuc.Service
	healthSvc *healthuc.Service
	obs       *observer

	started <-chan error
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
}

// Open connects to the store, loads the cached ledgers and starts the first
// balance sync in the background. Spends are served from the cache right away;
// Started reports when that first sync finishes.
func Open(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		keyPrefix: domain.KeyPrefix,
		profile:   defaultProfile,
		tier:      tier.Free,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.driver == "" {
		return nil, errors.New("creditgate: store required (use WithBadger, WithInMemory, WithRedis or WithValkey)")
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}
	if cfg.metricsReg != nil {
		if err := metrics.RegisterLedgerMetrics(cfg.metricsReg); err != nil {
			return nil, fmt.Errorf("creditgate: register ledger metrics: %w", err)
		}
	}

	// Pass a nil interface, not a typed nil *remote.Client, when no remote is set.
	var fetcher reconcile.Fetcher
	if cfg.remoteURL != "" {
		rc, err := remote.NewClient(remote.Config{
			BaseURL: cfg.remoteURL,
			Token:   cfg.remoteToken,
			Timeout: cfg.remoteTimeout,
			Logger:  obs.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creditgate: %w", err)
		}
		fetcher = rc
	}

	store, err := createStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("creditgate: store not ready: %w", err)
	}

	return wireClient(store, fetcher, cfg, obs), nil
}

func createStore(cfg *clientConfig) (db.Store, error) {
	switch cfg.driver {
	case "redis", "valkey":
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.addrs,
			Password: cfg.password,
		})
		if err != nil {
			return nil, fmt.Errorf("creditgate: create %s store: %w", cfg.driver, err)
		}
		return s, nil
	case "badger":
		s, err := dbBadger.NewStore(dbBadger.Config{
			Path:     cfg.badgerPath,
			InMemory: cfg.inMemory,
			Logger:   cfg.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creditgate: create badger store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("creditgate: unknown driver %q", cfg.driver)
	}
}

func wireClient(store db.Store, fetcher reconcile.Fetcher, cfg *clientConfig, obs *observer) *Client {
	policy := tier.DefaultPolicy()
	if len(cfg.tiers) > 0 {
		policy = tier.NewPolicy(append(tier.DefaultTable(), cfg.tiers...)...)
	}

	acct := account.New(account.Deps{
		Store:       ledgerrepo.New(store, cfg.keyPrefix, cfg.profile),
		Fetcher:     fetcher,
		Policy:      policy,
		Tier:        cfg.tier,
		Location:    cfg.location,
		SyncTimeout: cfg.remoteTimeout,
		Logger:      obs.logger,
	})

	var reporter healthuc.SyncReporter
	if fetcher != nil {
		reporter = acct
	}

	// Background work outlives the Open ctx and stops at Close.
	runCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		store:     store,
		acct:      acct,
		usageSvc:  usageuc.New(acct),
		healthSvc: healthuc.New(store, reporter),
		obs:       obs,
		cancel:    cancel,
	}
	c.started = acct.Start(runCtx)
	if cfg.syncInterval > 0 && fetcher != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			acct.Run(runCtx, cfg.syncInterval)
		}()
	}
	return c
}

// Close stops background sync and releases the store. It waits for the
// initial sync, which is bounded by the remote timeout.
func (c *Client) Close() {
	c.once.Do(func() {
		c.cancel()
		c.wg.Wait()
		<-c.started
		c.store.Close()
	})
}

// Started delivers the outcome of the sync issued by Open, once.
// ErrRemoteNotConfigured means the client runs from its cache only.
func (c *Client) Started() <-chan error {
	return c.started
}

// Ping checks store connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Spend consumes n units of r. It never fails: invalid input, unknown
// resources, exhausted quota and store errors all answer Denied.
func (c *Client) Spend(ctx context.Context, r Resource, n int) Outcome {
	start := time.Now()
	out := c.acct.Spend(ctx, r, n)
	c.obs.observe("spend", string(out), start, nil)
	return out
}

// Remaining returns what is left of r. Unlimited resources report Unlimited.
func (c *Client) Remaining(ctx context.Context, r Resource) Limit {
	return c.acct.Remaining(ctx, r)
}

// AddCredits optimistically credits n verifications until the next sync
// confirms them. Returns the new local balance.
func (c *Client) AddCredits(ctx context.Context, n int) (int, error) {
	start := time.Now()
	st, err := c.acct.AddCredits(ctx, n)
	c.obs.observe("add_credits", statusOf(err), start, err)
	if err != nil {
		return 0, fmt.Errorf("add credits: %w", err)
	}
	return st.Balance, nil
}

// Tier returns the entitlement in force.
func (c *Client) Tier() Entitlement {
	return c.acct.Entitlement()
}

// SetTier switches tier and reconciles the verification cache. The tier is
// switched even when the returned error reports a failed sync.
func (c *Client) SetTier(ctx context.Context, id string) (Entitlement, error) {
	start := time.Now()
	ent, err := c.acct.SetTier(ctx, id)
	if errors.Is(err, domain.ErrRemoteNotConfigured) {
		err = nil
	}
	c.obs.observe("set_tier", statusOf(err), start, err)
	if err != nil {
		return ent, fmt.Errorf("set tier: %w", err)
	}
	return ent, nil
}

// Sync fetches the remote balance now. On failure the cache is kept.
func (c *Client) Sync(ctx context.Context) error {
	start := time.Now()
	err := c.acct.Sync(ctx)
	c.obs.observe("sync", statusOf(err), start, err)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}

// Usage reports one resource over its current window.
func (c *Client) Usage(ctx context.Context, r Resource) (UsageReport, error) {
	rep, err := c.usageSvc.GetReport(ctx, r)
	if err != nil {
		return UsageReport{}, fmt.Errorf("usage: %w", err)
	}
	return toUsageReport(&rep), nil
}

// UsageAll reports every resource, search first.
func (c *Client) UsageAll(ctx context.Context) []UsageReport {
	reps := c.usageSvc.GetAll(ctx)
	out := make([]UsageReport, len(reps))
	for i := range reps {
		out[i] = toUsageReport(&reps[i])
	}
	return out
}

// Health checks the store and the last sync.
func (c *Client) Health(ctx context.Context) HealthStatus {
	report := c.healthSvc.Check(ctx)
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	return HealthStatus{
		Status: string(report.Status),
		Checks: checks,
	}
}
