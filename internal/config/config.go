// Package config loads daemon configuration from an optional YAML file with
// environment variable and CLI flag overrides, following the same
// load-defaults-then-override pattern the rest of the stack uses.
package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// CacheConfig holds the resource manager's admission bounds.
type CacheConfig struct {
	MaxMemoryResidentDBs int   `yaml:"max_memory_resident_dbs"` // default: 10
	MaxConcurrentConns   int   `yaml:"max_concurrent_conns"`    // default: 100
	MaxPageCacheSizeKB   int64 `yaml:"max_page_cache_size_kb"`  // default: 1000 (negative PRAGMA cache_size)
}

// MetricsConfig holds the admin-plane Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`   // default: true
	Namespace string `yaml:"namespace"` // default: hiisid
	Addr      string `yaml:"addr"`      // default: 127.0.0.1:9090, separate from the pipeline listener
}

// RateLimitConfig holds the per-namespace admission token bucket settings.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`             // default: false
	RequestsPerSecond float64 `yaml:"requests_per_second"` // token refill rate
	BurstSize         int     `yaml:"burst_size"`          // max tokens
}

// Config is the central daemon configuration.
type Config struct {
	DBPath         string          `yaml:"db_path"`          // default: data
	HTTPListenAddr string          `yaml:"http_listen_addr"` // default: 127.0.0.1:8080
	Logging        LoggingConfig   `yaml:"logging"`
	Cache          CacheConfig     `yaml:"cache"`
	Metrics        MetricsConfig   `yaml:"metrics"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// DefaultConfig returns a Config with conservative defaults for a single
// node serving database files from the current working directory.
func DefaultConfig() *Config {
	return &Config{
		DBPath:         "data",
		HTTPListenAddr: "127.0.0.1:8080",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Cache: CacheConfig{
			MaxMemoryResidentDBs: 10,
			MaxConcurrentConns:   100,
			MaxPageCacheSizeKB:   1000,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "hiisid",
			Addr:      "127.0.0.1:9090",
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 100,
			BurstSize:         200,
		},
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to cfg, matching the
// names the original hiisi CLI reads (SQLD_DB_PATH, SQLD_HTTP_LISTEN_ADDR)
// plus a HIISID_ prefix for the settings the original didn't have.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("SQLD_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("SQLD_HTTP_LISTEN_ADDR"); v != "" {
		cfg.HTTPListenAddr = v
	}
	if v := os.Getenv("HIISID_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HIISID_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("HIISID_MAX_MEMORY_RESIDENT_DBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxMemoryResidentDBs = n
		}
	}
	if v := os.Getenv("HIISID_MAX_CONCURRENT_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxConcurrentConns = n
		}
	}
	if v := os.Getenv("HIISID_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("HIISID_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("HIISID_RATELIMIT_ENABLED"); v != "" {
		cfg.RateLimit.Enabled = parseBool(v)
	}
	if v := os.Getenv("HIISID_RATELIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimit.RequestsPerSecond = f
		}
	}
	if v := os.Getenv("HIISID_RATELIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.BurstSize = n
		}
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes"
}
