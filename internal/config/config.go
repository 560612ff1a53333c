// Package config loads the site API configuration from defaults, an optional
// YAML file and the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/gokaybiz/site-api/internal/cache"
	"github.com/gokaybiz/site-api/internal/lastfm"
	"github.com/gokaybiz/site-api/internal/logging"
	"github.com/gokaybiz/site-api/internal/upstream"
	"github.com/gokaybiz/site-api/internal/vsco"
)

// PathEnvVar overrides the config file location.
const PathEnvVar = "CONFIG_PATH"

// DefaultPaths are searched in order when PathEnvVar is unset.
var DefaultPaths = []string{
	"config.yaml",
	"config.yml",
}

// Config is the complete server configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	LastFM   lastfm.Config  `koanf:"lastfm"`
	VSCO     vsco.Config    `koanf:"vsco"`
	Cache    CacheConfig    `koanf:"cache"`
	Upstream UpstreamConfig `koanf:"upstream"`
	Logging  logging.Config `koanf:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `koanf:"addr" validate:"required"`

	// CORSOrigins are the origins allowed by preflight handling.
	CORSOrigins []string `koanf:"cors_origins" validate:"dive,required"`

	// RateLimitRequests per RateLimitWindow per client IP on /api.
	// Zero disables rate limiting.
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`

	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// CacheConfig configures response caching.
type CacheConfig struct {
	// TTL of cached responses. Zero keeps them until restart.
	TTL          time.Duration `koanf:"ttl" validate:"gte=0"`
	FetchTimeout time.Duration `koanf:"fetch_timeout" validate:"gt=0"`

	// RedisURL selects a shared redis store, e.g. redis://localhost:6379/0.
	// Empty keeps the cache in memory.
	RedisURL string `koanf:"redis_url" validate:"omitempty,url"`
}

// UpstreamConfig configures outbound API calls.
type UpstreamConfig struct {
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 60,
			RateLimitWindow:   time.Minute,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      45 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		LastFM: lastfm.Config{
			User:        lastfm.DefaultUser,
			MaxAttempts: lastfm.DefaultMaxAttempts,
		},
		VSCO: vsco.Config{
			User:        vsco.DefaultUser,
			MaxAttempts: vsco.DefaultMaxAttempts,
		},
		Cache: CacheConfig{
			TTL:          cache.DefaultTTL,
			FetchTimeout: cache.DefaultFetchTimeout,
		},
		Upstream: UpstreamConfig{
			Timeout: upstream.DefaultTimeout,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// envMappings maps environment variable names (lowercased) to config paths.
var envMappings = map[string]string{
	"http_addr":           "server.addr",
	"cors_origins":        "server.cors_origins",
	"rate_limit_requests": "server.rate_limit_requests",
	"rate_limit_window":   "server.rate_limit_window",
	"shutdown_timeout":    "server.shutdown_timeout",

	"lastfm_api_key":      "lastfm.api_key",
	"lastfm_user":         "lastfm.user",
	"lastfm_max_attempts": "lastfm.max_attempts",

	"vsco_user":         "vsco.user",
	"vsco_token":        "vsco.token",
	"vsco_max_attempts": "vsco.max_attempts",

	"cache_ttl":           "cache.ttl",
	"cache_fetch_timeout": "cache.fetch_timeout",
	"redis_url":           "cache.redis_url",

	"upstream_timeout": "upstream.timeout",

	"log_level":  "logging.level",
	"log_format": "logging.format",
}

// legacyEnvMappings are the variable names used by the earlier serverless
// deployment. They apply only when the current name is unset.
var legacyEnvMappings = map[string]string{
	"nuxt_lastfm_api_key":     "lastfm.api_key",
	"nuxt_public_lastfm_user": "lastfm.user",
}

// preferredLegacyEnvMappings are legacy names that win over the current
// name when both are set.
var preferredLegacyEnvMappings = map[string]string{
	"nuxt_public_vsco_user": "vsco.user",
}

// sliceConfigPaths are parsed as comma-separated lists when set from env.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// Load reads configuration with the precedence env > legacy env > file >
// defaults, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envTransform(legacyEnvMappings)), nil); err != nil {
		return nil, fmt.Errorf("failed to load legacy environment variables: %w", err)
	}
	if err := k.Load(env.ProviderWithValue("", ".", envTransform(envMappings)), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := k.Load(env.ProviderWithValue("", ".", envTransform(preferredLegacyEnvMappings)), nil); err != nil {
		return nil, fmt.Errorf("failed to load legacy environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// envTransform maps known variables through mappings and drops the rest,
// including known variables set to an empty string.
func envTransform(mappings map[string]string) func(key, value string) (string, any) {
	return func(key, value string) (string, any) {
		path, ok := mappings[strings.ToLower(key)]
		if !ok || strings.TrimSpace(value) == "" {
			return "", nil
		}
		return path, value
	}
}

func findConfigFile() string {
	if path := os.Getenv(PathEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		return ""
	}

	for _, path := range DefaultPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}

		parts := strings.Split(s, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
