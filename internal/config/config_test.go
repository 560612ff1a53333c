package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allEnvVars = []string{
	PathEnvVar,
	"HTTP_ADDR", "CORS_ORIGINS", "RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW", "SHUTDOWN_TIMEOUT",
	"LASTFM_API_KEY", "LASTFM_USER", "LASTFM_MAX_ATTEMPTS",
	"VSCO_USER", "VSCO_TOKEN", "VSCO_MAX_ATTEMPTS",
	"CACHE_TTL", "CACHE_FETCH_TIMEOUT", "REDIS_URL",
	"UPSTREAM_TIMEOUT", "LOG_LEVEL", "LOG_FORMAT",
	"NUXT_LASTFM_API_KEY", "NUXT_PUBLIC_LASTFM_USER", "NUXT_PUBLIC_VSCO_USER",
}

// clearEnv isolates a test from the process environment.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range allEnvVars {
		t.Setenv(name, "")
	}
	t.Setenv(PathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 60, cfg.Server.RateLimitRequests)
	assert.Equal(t, time.Minute, cfg.Server.RateLimitWindow)
	assert.Equal(t, "", cfg.LastFM.APIKey)
	assert.Equal(t, "gokaybiz", cfg.LastFM.User)
	assert.Equal(t, 5, cfg.LastFM.MaxAttempts)
	assert.Equal(t, "gokaybiz", cfg.VSCO.User)
	assert.Equal(t, 3, cfg.VSCO.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "", cfg.Cache.RedisURL)
	assert.Equal(t, 10*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("LASTFM_API_KEY", "key")
	t.Setenv("LASTFM_USER", "alice")
	t.Setenv("VSCO_TOKEN", "tok")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("UPSTREAM_TIMEOUT", "3s")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("RATE_LIMIT_REQUESTS", "0")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "key", cfg.LastFM.APIKey)
	assert.Equal(t, "alice", cfg.LastFM.User)
	assert.Equal(t, "tok", cfg.VSCO.Token)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "redis://localhost:6379/1", cfg.Cache.RedisURL)
	assert.Equal(t, 3*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 0, cfg.Server.RateLimitRequests)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoad_LegacyNames(t *testing.T) {
	clearEnv(t)
	t.Setenv("NUXT_LASTFM_API_KEY", "legacy-key")
	t.Setenv("NUXT_PUBLIC_LASTFM_USER", "legacy-user")
	t.Setenv("NUXT_PUBLIC_VSCO_USER", "legacy-vsco")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "legacy-key", cfg.LastFM.APIKey)
	assert.Equal(t, "legacy-user", cfg.LastFM.User)
	assert.Equal(t, "legacy-vsco", cfg.VSCO.User)
}

func TestLoad_CurrentNamesWinOverLegacy(t *testing.T) {
	clearEnv(t)
	t.Setenv("NUXT_LASTFM_API_KEY", "legacy-key")
	t.Setenv("LASTFM_API_KEY", "key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "key", cfg.LastFM.APIKey)
}

func TestLoad_LegacyVSCOUserWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("VSCO_USER", "current")
	t.Setenv("NUXT_PUBLIC_VSCO_USER", "legacy")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "legacy", cfg.VSCO.User)

	t.Setenv("NUXT_PUBLIC_VSCO_USER", "")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "current", cfg.VSCO.User)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":7000"
  cors_origins:
    - https://site.example
lastfm:
  user: fromfile
cache:
  ttl: 0s
logging:
  level: debug
`), 0o600))
	t.Setenv(PathEnvVar, path)
	t.Setenv("LASTFM_USER", "fromenv")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, []string{"https://site.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "fromenv", cfg.LastFM.User)
	assert.Equal(t, time.Duration(0), cfg.Cache.TTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 5, cfg.LastFM.MaxAttempts)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "bad duration", key: "CACHE_TTL", value: "soon"},
		{name: "negative ttl", key: "CACHE_TTL", value: "-1s"},
		{name: "bad redis url", key: "REDIS_URL", value: "not a url"},
		{name: "bad log level", key: "LOG_LEVEL", value: "loud"},
		{name: "bad log format", key: "LOG_FORMAT", value: "xml"},
		{name: "too many attempts", key: "LASTFM_MAX_ATTEMPTS", value: "50"},
		{name: "zero upstream timeout", key: "UPSTREAM_TIMEOUT", value: "0s"},
		{name: "negative rate limit", key: "RATE_LIMIT_REQUESTS", value: "-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
