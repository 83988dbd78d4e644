package creditgate

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/creditgate/internal/domain/tier"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	driver   string // "badger", "redis" or "valkey"
	addrs    []string
	password string

	badgerPath string
	inMemory   bool
	keyPrefix  string

	remoteURL     string
	remoteToken   string
	remoteTimeout time.Duration
	syncInterval  time.Duration

	tier     string
	tiers    []tier.Entitlement
	profile  string
	location *time.Location

	logger     *zap.Logger
	metricsReg prometheus.Registerer
}

// WithRedis stores the ledgers in a Redis instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithValkey stores the ledgers in a Valkey instance.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "valkey"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithBadger stores the ledgers in an embedded BadgerDB at dir.
func WithBadger(dir string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "badger"
		c.badgerPath = dir
		c.inMemory = false
	})
}

// WithInMemory keeps the ledgers in RAM. State is lost on Close.
func WithInMemory() Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "badger"
		c.inMemory = true
	})
}

// WithKeyPrefix namespaces ledger keys. Default: "creditgate:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyPrefix = prefix
	})
}

// WithRemote enables balance sync against GET {baseURL}/credits.
// An empty token sends no Authorization header.
func WithRemote(baseURL, token string) Option {
	return optionFunc(func(c *clientConfig) {
		c.remoteURL = baseURL
		c.remoteToken = token
	})
}

// WithRemoteTimeout bounds each balance fetch. Default: 10s.
func WithRemoteTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.remoteTimeout = d
	})
}

// WithSyncInterval refreshes the balance in the background every d.
// Zero (default) syncs only at Open and on demand.
func WithSyncInterval(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.syncInterval = d
	})
}

// WithTier sets the starting tier. Unknown tiers get the free tier's limits.
func WithTier(id string) Option {
	return optionFunc(func(c *clientConfig) {
		c.tier = id
	})
}

// WithTiers adds or overrides entitlements on top of the built-in table.
func WithTiers(entries ...Entitlement) Option {
	return optionFunc(func(c *clientConfig) {
		c.tiers = append(c.tiers, entries...)
	})
}

// WithProfile selects whose ledgers to use. Default: "default".
func WithProfile(profile string) Option {
	return optionFunc(func(c *clientConfig) {
		c.profile = profile
	})
}

// WithLocation sets the timezone that defines the search day. Default: time.Local.
func WithLocation(loc *time.Location) Option {
	return optionFunc(func(c *clientConfig) {
		c.location = loc
	})
}

// WithLogger enables structured logging. Default: no logging.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithMetrics registers ledger and SDK metrics on reg. Pass nil to disable (default).
func WithMetrics(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
