package config

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/divtracker/src/apperrors"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("T212_KEY", "test-key")
	for _, key := range []string{"PORT", "BASE_URL", "FX_BASE_CURR", "TICKER_OVERRIDES", "PARTIAL_FAILURE_POLICY",
		"MAX_CONCURRENCY", "UPSTREAM_TIMEOUT", "LOG_FORMAT", "FX_RATE_PATH", "CORS_ORIGINS", "FX_WARM_CURRENCIES"} {
		unsetForTest(t, key)
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "test-key", cfg.T212Key)
	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, "https://live.trading212.com/api/v0/equity", cfg.BaseURL)
	assert.Equal(t, "GBP", cfg.FXBaseCurrency)
	assert.Equal(t, PolicyOmit, cfg.PartialFailurePolicy)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.Equal(t, 20*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, map[string]string{"BTl": "BT-A.L", "BT": "BT-A.L"}, cfg.TickerOverrides)
	assert.Equal(t, []string{"http://localhost:8000"}, cfg.CORSOrigins)
	assert.Equal(t, []string{"USD", "EUR"}, cfg.FXWarmCurrencies)
}

func TestLoadConfig_MissingKey(t *testing.T) {
	t.Setenv("T212_KEY", "  ")

	cfg, err := LoadConfig()
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConfig))
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("T212_KEY", "k")
	t.Setenv("BASE_URL", "https://demo.trading212.com/api/v0/equity/")
	t.Setenv("FX_BASE_CURR", "usd")
	t.Setenv("TICKER_OVERRIDES", "RDSAl = SHEL.L, ,VUSA=VUSA.L")
	t.Setenv("UPSTREAM_TIMEOUT", "5s")
	t.Setenv("MAX_CONCURRENCY", "8")
	t.Setenv("PARTIAL_FAILURE_POLICY", "FAIL")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://demo.trading212.com/api/v0/equity", cfg.BaseURL)
	assert.Equal(t, "USD", cfg.FXBaseCurrency)
	assert.Equal(t, map[string]string{"RDSAl": "SHEL.L", "VUSA": "VUSA.L"}, cfg.TickerOverrides)
	assert.Equal(t, 5*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, 8, cfg.MaxConcurrency)
	assert.Equal(t, PolicyFail, cfg.PartialFailurePolicy)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown currency", "FX_BASE_CURR", "XYZ1"},
		{"unknown policy", "PARTIAL_FAILURE_POLICY", "retry"},
		{"malformed override", "TICKER_OVERRIDES", "BTl"},
		{"rate path without placeholder", "FX_RATE_PATH", "$.rates.GBP"},
		{"zero concurrency", "MAX_CONCURRENCY", "0"},
		{"bad log format", "LOG_FORMAT", "xml"},
		{"zero cache ttl", "CACHE_TTL", "0s"},
		{"negative cache ttl", "CACHE_TTL", "-1m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("T212_KEY", "k")
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig()
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrConfig)
		})
	}
}

func TestGetEnvHelpers_FallBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "abc")
	t.Setenv("SOME_DURATION", "forever")

	assert.Equal(t, 7, getEnvAsInt("SOME_INT", 7))
	assert.Equal(t, time.Minute, getEnvAsDuration("SOME_DURATION", time.Minute))
}

// unsetForTest clears key for the duration of the test.
func unsetForTest(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}
