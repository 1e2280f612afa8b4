// Package config loads runtime settings from the environment and the source
// list (feeds, relays, providers, indices) from YAML.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default_sources.yaml
var defaultSources []byte

// Provider describes one structured news API.
type Provider struct {
	Name          string            `yaml:"name"`
	Kind          string            `yaml:"kind"` // newsapi | newsdata | alphavantage
	BaseURL       string            `yaml:"base_url"`
	Enabled       bool              `yaml:"enabled"`
	QueryParams   map[string]string `yaml:"query_params"`
	Credential    string            `yaml:"credential"`
	CredentialEnv string            `yaml:"credential_env"`
}

// APIKey returns the inline credential or, failing that, the one named by CredentialEnv.
func (p Provider) APIKey() string {
	if p.Credential != "" {
		return p.Credential
	}
	if p.CredentialEnv != "" {
		return os.Getenv(p.CredentialEnv)
	}
	return ""
}

// Index is a tracked market index used by the sentiment scorer.
type Index struct {
	Symbol string `yaml:"symbol"`
	Name   string `yaml:"name"`
}

// Sources is the YAML source list.
type Sources struct {
	Feeds     []string   `yaml:"feeds"`
	Relays    []string   `yaml:"relays"`
	Providers []Provider `yaml:"providers"`
	Indices   []Index    `yaml:"indices"`
}

type Config struct {
	Sources

	SourcesConfigPath string

	// Fetch settings
	FeedTimeout     time.Duration
	ProviderTimeout time.Duration
	FeedConcurrency int
	RelayRatePerSec float64
	RetryAttempts   int
	RetryDelay      time.Duration

	// Aggregation settings
	RefreshInterval     time.Duration
	PageSize            int
	DedupPrefixLen      int
	LoadMoreRetryAfter  time.Duration
	IndexCacheTTL       time.Duration
	ProviderDailyBudget int

	// Storage settings
	SnapshotPath string
	DatabaseURL  string

	// App settings
	HTTPAddr string
	// WSOriginPatterns are the cross-origin hosts allowed to open /ws.
	WSOriginPatterns []string
	Debug            bool
}

func Load() (*Config, error) {
	cfg := &Config{
		SourcesConfigPath:   getEnvOrDefault("SOURCES_CONFIG_PATH", "configs/sources.yaml"),
		FeedTimeout:         getEnvDurationOrDefault("FEED_TIMEOUT", 8*time.Second),
		ProviderTimeout:     getEnvDurationOrDefault("PROVIDER_TIMEOUT", 15*time.Second),
		FeedConcurrency:     getEnvIntOrDefault("FEED_CONCURRENCY", 4),
		RelayRatePerSec:     getEnvFloatOrDefault("RELAY_RATE_PER_SEC", 5),
		RetryAttempts:       getEnvIntOrDefault("RETRY_ATTEMPTS", 2),
		RetryDelay:          getEnvDurationOrDefault("RETRY_DELAY", time.Second),
		RefreshInterval:     getEnvDurationOrDefault("REFRESH_INTERVAL", 5*time.Minute),
		PageSize:            getEnvIntOrDefault("PAGE_SIZE", 6),
		DedupPrefixLen:      getEnvIntOrDefault("DEDUP_PREFIX_LEN", 50),
		LoadMoreRetryAfter:  getEnvDurationOrDefault("LOAD_MORE_RETRY_AFTER", time.Minute),
		IndexCacheTTL:       getEnvDurationOrDefault("INDEX_CACHE_TTL", time.Minute),
		ProviderDailyBudget: getEnvIntOrDefault("PROVIDER_DAILY_BUDGET", 100),
		SnapshotPath:        os.Getenv("SNAPSHOT_PATH"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		HTTPAddr:            getEnvOrDefault("HTTP_ADDR", ":8080"),
		WSOriginPatterns:    getEnvListOrDefault("WS_ORIGIN_PATTERNS", nil),
		Debug:               os.Getenv("DEBUG") == "true",
	}

	src, err := LoadSources(cfg.SourcesConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.Sources = src

	return cfg, cfg.Validate()
}

// LoadSources reads the source list from path. A missing file falls back to the
// built-in defaults.
func LoadSources(path string) (Sources, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultSources()
	}
	if err != nil {
		return Sources{}, fmt.Errorf("reading sources file: %w", err)
	}
	return ParseSources(data)
}

// DefaultSources returns the embedded source list.
func DefaultSources() (Sources, error) {
	return ParseSources(defaultSources)
}

func ParseSources(data []byte) (Sources, error) {
	var s Sources
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Sources{}, fmt.Errorf("parsing sources: %w", err)
	}
	s.Feeds = compact(s.Feeds)
	s.Relays = compact(s.Relays)
	for i := range s.Providers {
		s.Providers[i].Kind = strings.ToLower(strings.TrimSpace(s.Providers[i].Kind))
	}
	return s, nil
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		if list := compact(strings.Split(value, ",")); len(list) > 0 {
			return list
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

var knownKinds = map[string]bool{"newsapi": true, "newsdata": true, "alphavantage": true}

func (c *Config) Validate() error {
	if len(c.Feeds) == 0 && len(c.Providers) == 0 {
		return fmt.Errorf("at least one feed or provider is required")
	}
	if len(c.Feeds) > 0 && len(c.Relays) == 0 {
		return fmt.Errorf("feeds are configured but no relays")
	}
	for _, p := range c.Providers {
		if !knownKinds[p.Kind] {
			return fmt.Errorf("provider %q has unknown kind %q", p.Name, p.Kind)
		}
		if p.BaseURL == "" {
			return fmt.Errorf("provider %q has no base_url", p.Name)
		}
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("PAGE_SIZE must be positive")
	}
	if c.DedupPrefixLen <= 0 {
		return fmt.Errorf("DEDUP_PREFIX_LEN must be positive")
	}
	if c.FeedConcurrency <= 0 {
		return fmt.Errorf("FEED_CONCURRENCY must be positive")
	}
	if c.FeedTimeout <= 0 || c.ProviderTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}
