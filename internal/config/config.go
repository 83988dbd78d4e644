package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/creditgate/internal/domain/tier"
)

// Store drivers.
const (
	DriverBadger = "badger"
	DriverRedis  = "redis"
	DriverValkey = "valkey"
)

// Config holds the creditd configuration.
type Config struct {
	HTTP    HTTPConfig            `yaml:"http"`
	Auth    AuthConfig            `yaml:"auth"`
	Storage StorageConfig         `yaml:"storage"`
	Remote  RemoteConfig          `yaml:"remote"`
	Session SessionConfig         `yaml:"session"`
	Ledger  LedgerConfig          `yaml:"ledger"`
	Tiers   map[string]TierConfig `yaml:"tiers"`
	Logging LoggingConfig         `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings. Empty APIKeys disables auth.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// StorageConfig selects and configures the ledger store.
type StorageConfig struct {
	Driver           string   `yaml:"driver"` // badger (default), redis, valkey
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`

	BadgerPath string `yaml:"badger_path"`
	InMemory   bool   `yaml:"in_memory"`
	SyncWrites bool   `yaml:"sync_writes"`

	KeyPrefix string `yaml:"key_prefix"`
}

// RemoteConfig points at the authoritative credit service. Empty BaseURL
// runs from the local cache only.
type RemoteConfig struct {
	BaseURL         string `yaml:"base_url"`
	Token           string `yaml:"token"`
	TimeoutMs       int    `yaml:"timeout_ms"`
	SyncIntervalSec int    `yaml:"sync_interval_sec"` // 0 disables periodic sync
}

// SessionConfig describes the credit session served by this process.
type SessionConfig struct {
	Profile  string `yaml:"profile"`
	Tier     string `yaml:"tier"`
	Timezone string `yaml:"timezone"` // IANA name, "Local" (default) or "UTC"
}

// LedgerConfig tunes the optimistic concurrency loop.
type LedgerConfig struct {
	MaxCASRetries int `yaml:"max_cas_retries"`
}

// TierConfig overrides one entitlement. -1 means unlimited.
type TierConfig struct {
	DailySearch         int `yaml:"daily_search"`
	MonthlyVerification int `yaml:"monthly_verification"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a YAML document.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverBadger
	}
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	if c.Storage.ReadinessTimeout <= 0 {
		c.Storage.ReadinessTimeout = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "creditgate:"
	}
	if c.Remote.TimeoutMs <= 0 {
		c.Remote.TimeoutMs = 10000
	}
	if c.Session.Profile == "" {
		c.Session.Profile = "default"
	}
	if c.Session.Tier == "" {
		c.Session.Tier = tier.Free
	}
	if c.Session.Timezone == "" {
		c.Session.Timezone = "Local"
	}
	if c.Ledger.MaxCASRetries <= 0 {
		c.Ledger.MaxCASRetries = 8
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Storage.Driver {
	case DriverRedis, DriverValkey:
		if len(c.Storage.Addrs) == 0 {
			return fmt.Errorf("storage.addrs is required for driver %q", c.Storage.Driver)
		}
	case DriverBadger:
		if c.Storage.BadgerPath == "" && !c.Storage.InMemory {
			return fmt.Errorf("storage.badger_path is required unless storage.in_memory is set")
		}
	default:
		return fmt.Errorf("storage.driver must be badger, redis or valkey, got %q", c.Storage.Driver)
	}
	if c.Remote.SyncIntervalSec < 0 {
		return fmt.Errorf("remote.sync_interval_sec must not be negative, got %d", c.Remote.SyncIntervalSec)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	for name, t := range c.Tiers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("tiers: empty tier name")
		}
		if t.DailySearch < -1 || t.MonthlyVerification < -1 {
			return fmt.Errorf("tiers.%s: limits must be >= 0 or -1 for unlimited", name)
		}
	}
	return nil
}

// Location resolves session.timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Session.Timezone)
	if err != nil {
		return nil, fmt.Errorf("session.timezone %q: %w", c.Session.Timezone, err)
	}
	return loc, nil
}

// Policy builds the tier policy: the built-in table with the tiers section
// layered on top.
func (c *Config) Policy() *tier.Policy {
	entries := tier.DefaultTable()
	for name, t := range c.Tiers {
		entries = append(entries, tier.Entitlement{
			ID:                  name,
			DailySearch:         tier.FromInt(t.DailySearch),
			MonthlyVerification: tier.FromInt(t.MonthlyVerification),
		})
	}
	return tier.NewPolicy(entries...)
}

// RemoteTimeout returns remote.timeout_ms as a duration.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutMs) * time.Millisecond
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
