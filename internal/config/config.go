// Package config handles application configuration from environment
// variables. Invalid combinations fail at load time so they can never
// reach the freshness policy.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/courtsight/shotcache/policy"
	"github.com/courtsight/shotcache/shots"
)

// Config holds all application configuration.
type Config struct {
	ModeName       string        `env:"SHOTCACHE_MODE" envDefault:"live"`
	TTL            time.Duration `env:"SHOTCACHE_TTL" envDefault:"24h"`
	HardStale      time.Duration `env:"SHOTCACHE_HARD_STALE" envDefault:"0"`
	MaxRetries     int           `env:"SHOTCACHE_MAX_RETRIES" envDefault:"6"`
	BackoffBase    time.Duration `env:"SHOTCACHE_BACKOFF_BASE" envDefault:"1s"`
	BackoffCap     time.Duration `env:"SHOTCACHE_BACKOFF_CAP" envDefault:"30s"`
	AttemptTimeout time.Duration `env:"SHOTCACHE_ATTEMPT_TIMEOUT" envDefault:"30s"`

	RefreshInterval time.Duration `env:"SHOTCACHE_REFRESH_INTERVAL" envDefault:"1h"`
	MaxRefreshJobs  int64         `env:"SHOTCACHE_MAX_REFRESH_JOBS" envDefault:"4"`

	CacheDir  string `env:"SHOTCACHE_CACHE_DIR" envDefault:"data/cache"`
	Port      string `env:"SHOTCACHE_PORT" envDefault:"8090"`
	RedisAddr string `env:"SHOTCACHE_REDIS_ADDR" envDefault:"127.0.0.1:6379"`

	// Subjects is the default refresh grid, comma-separated.
	Subjects []string `env:"SHOTCACHE_SUBJECTS" envSeparator:","`
	// Periods defaults to the most recent seasons when empty.
	Periods []string `env:"SHOTCACHE_PERIODS" envSeparator:","`

	// Upstream request headers as a JSON object, and an optional proxy
	// URL. Same convention as the upstream tooling.
	HeadersJSON string `env:"NBA_API_HEADERS"`
	ProxyURL    string `env:"NBA_API_PROXY"`

	mode policy.Mode
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and combinations.
func (c *Config) Validate() error {
	mode, err := policy.ParseMode(c.ModeName)
	if err != nil {
		return fmt.Errorf("SHOTCACHE_MODE: %w", err)
	}
	c.mode = mode

	if c.TTL <= 0 {
		return fmt.Errorf("SHOTCACHE_TTL must be positive, got %v", c.TTL)
	}
	if c.HardStale == 0 {
		// Hard threshold defaults to 4x TTL; tunable, not fixed.
		c.HardStale = 4 * c.TTL
	}
	if c.HardStale < c.TTL {
		return fmt.Errorf("SHOTCACHE_HARD_STALE (%v) must be >= SHOTCACHE_TTL (%v)", c.HardStale, c.TTL)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("SHOTCACHE_MAX_RETRIES must be positive, got %d", c.MaxRetries)
	}
	if c.BackoffBase <= 0 || c.BackoffCap < c.BackoffBase {
		return fmt.Errorf("invalid backoff: base=%v cap=%v", c.BackoffBase, c.BackoffCap)
	}
	if c.MaxRefreshJobs <= 0 {
		return fmt.Errorf("SHOTCACHE_MAX_REFRESH_JOBS must be positive, got %d", c.MaxRefreshJobs)
	}
	if c.HeadersJSON != "" {
		if _, err := c.Headers(); err != nil {
			return err
		}
	}
	return nil
}

// Mode returns the validated freshness mode.
func (c *Config) Mode() policy.Mode { return c.mode }

// Headers decodes the optional upstream request headers.
func (c *Config) Headers() (map[string]string, error) {
	if c.HeadersJSON == "" {
		return nil, nil
	}
	var h map[string]string
	if err := json.Unmarshal([]byte(c.HeadersJSON), &h); err != nil {
		return nil, fmt.Errorf("NBA_API_HEADERS is not a JSON object: %w", err)
	}
	return h, nil
}

// DefaultKeys expands the configured subject/period grid into fetch
// keys. Unset subjects or periods fall back to a conventional grid:
// a small set of high-traffic subjects over the last three seasons.
func (c *Config) DefaultKeys(now time.Time) []shots.Key {
	subjects := c.Subjects
	if len(subjects) == 0 {
		subjects = []string{
			"Stephen Curry", "LeBron James", "Kevin Durant",
			"Giannis Antetokounmpo", "Luka Doncic", "Jayson Tatum",
		}
	}
	periods := c.Periods
	if len(periods) == 0 {
		periods = RecentPeriods(now, 3)
	}

	keys := make([]shots.Key, 0, len(subjects)*len(periods))
	for _, s := range subjects {
		for _, p := range periods {
			keys = append(keys, shots.Key{
				Subject:    strings.TrimSpace(s),
				Period:     strings.TrimSpace(p),
				PeriodType: shots.RegularSeason,
			})
		}
	}
	return keys
}

// RecentPeriods renders the n most recent season labels ("2023-24").
// A season starting in year Y runs until the following spring, so the
// current season's start year rolls over in October.
func RecentPeriods(now time.Time, n int) []string {
	startYear := now.Year()
	if now.Month() < time.October {
		startYear--
	}
	periods := make([]string, 0, n)
	for i := 0; i < n; i++ {
		y := startYear - i
		periods = append(periods, fmt.Sprintf("%d-%02d", y, (y+1)%100))
	}
	return periods
}
