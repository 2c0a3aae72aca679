package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payflow-hq/payflow/pkg/logger"
)

func TestGetEnvAPIEndpoint(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv("API_ENDPOINT", "")
		endpoint, err := GetEnvAPIEndpoint()
		require.NoError(t, err)
		assert.Equal(t, DefaultAPIEndpoint, endpoint)
	})

	t.Run("override", func(t *testing.T) {
		t.Setenv("API_ENDPOINT", "https://api.example.com")
		endpoint, err := GetEnvAPIEndpoint()
		require.NoError(t, err)
		assert.Equal(t, "https://api.example.com", endpoint)
	})

	t.Run("invalid URL", func(t *testing.T) {
		t.Setenv("API_ENDPOINT", "not a url")
		_, err := GetEnvAPIEndpoint()
		require.Error(t, err)
	})
}

func TestGetEnvEnvironment(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "")
		env, err := GetEnvEnvironment()
		require.NoError(t, err)
		assert.Equal(t, "sandbox", env)
	})

	t.Run("live", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "live")
		env, err := GetEnvEnvironment()
		require.NoError(t, err)
		assert.Equal(t, "live", env)
	})

	t.Run("invalid", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "staging")
		_, err := GetEnvEnvironment()
		require.Error(t, err)
	})
}

func TestGetEnvSessionTimeout(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv("SESSION_TIMEOUT", "")
		timeout, err := GetEnvSessionTimeout()
		require.NoError(t, err)
		assert.Equal(t, DefaultSessionTimeout*time.Second, timeout)
	})

	t.Run("override", func(t *testing.T) {
		t.Setenv("SESSION_TIMEOUT", "120")
		timeout, err := GetEnvSessionTimeout()
		require.NoError(t, err)
		assert.Equal(t, 120*time.Second, timeout)
	})

	t.Run("not a number", func(t *testing.T) {
		t.Setenv("SESSION_TIMEOUT", "soon")
		_, err := GetEnvSessionTimeout()
		require.Error(t, err)
	})

	t.Run("non-positive", func(t *testing.T) {
		t.Setenv("SESSION_TIMEOUT", "0")
		_, err := GetEnvSessionTimeout()
		require.Error(t, err)
	})
}

func TestGetEnvDebounceSettle(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv("DEBOUNCE_SETTLE_MS", "")
		settle, err := GetEnvDebounceSettle()
		require.NoError(t, err)
		assert.Equal(t, DefaultDebounceSettle*time.Millisecond, settle)
	})

	t.Run("override", func(t *testing.T) {
		t.Setenv("DEBOUNCE_SETTLE_MS", "250")
		settle, err := GetEnvDebounceSettle()
		require.NoError(t, err)
		assert.Equal(t, 250*time.Millisecond, settle)
	})

	t.Run("non-positive", func(t *testing.T) {
		t.Setenv("DEBOUNCE_SETTLE_MS", "-1")
		_, err := GetEnvDebounceSettle()
		require.Error(t, err)
	})
}

func TestGetEnvMinAmount(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv("MIN_AMOUNT", "")
		amount, err := GetEnvMinAmount()
		require.NoError(t, err)
		assert.Equal(t, float64(DefaultMinAmount), amount)
	})

	t.Run("override", func(t *testing.T) {
		t.Setenv("MIN_AMOUNT", "50.5")
		amount, err := GetEnvMinAmount()
		require.NoError(t, err)
		assert.Equal(t, 50.5, amount)
	})

	t.Run("non-positive", func(t *testing.T) {
		t.Setenv("MIN_AMOUNT", "0")
		_, err := GetEnvMinAmount()
		require.Error(t, err)
	})
}

func TestGetEnvAccountNumberLen(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv("ACCOUNT_NUMBER_LENGTH", "")
		length, err := GetEnvAccountNumberLen()
		require.NoError(t, err)
		assert.Equal(t, DefaultAccountNumberLen, length)
	})

	t.Run("override", func(t *testing.T) {
		t.Setenv("ACCOUNT_NUMBER_LENGTH", "11")
		length, err := GetEnvAccountNumberLen()
		require.NoError(t, err)
		assert.Equal(t, 11, length)
	})

	t.Run("invalid", func(t *testing.T) {
		t.Setenv("ACCOUNT_NUMBER_LENGTH", "ten")
		_, err := GetEnvAccountNumberLen()
		require.Error(t, err)
	})
}

func TestGetEnvCircuitBreaker(t *testing.T) {
	t.Run("enabled default", func(t *testing.T) {
		t.Setenv("CIRCUIT_BREAKER_ENABLED", "")
		enabled, err := GetEnvCircuitBreakerEnabled()
		require.NoError(t, err)
		assert.True(t, enabled)
	})

	t.Run("enabled invalid", func(t *testing.T) {
		t.Setenv("CIRCUIT_BREAKER_ENABLED", "yes")
		_, err := GetEnvCircuitBreakerEnabled()
		require.Error(t, err)
	})

	t.Run("window duration string", func(t *testing.T) {
		t.Setenv("CIRCUIT_BREAKER_WINDOW", "30s")
		window, err := GetEnvCircuitBreakerWindow()
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, window)
	})

	t.Run("window invalid", func(t *testing.T) {
		t.Setenv("CIRCUIT_BREAKER_WINDOW", "30")
		_, err := GetEnvCircuitBreakerWindow()
		require.Error(t, err)
	})
}

func TestGetEnvLogLevel(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "")
		level, err := GetEnvLogLevel()
		require.NoError(t, err)
		assert.Equal(t, logger.InfoLevel, level)
	})

	t.Run("debug", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "debug")
		level, err := GetEnvLogLevel()
		require.NoError(t, err)
		assert.Equal(t, logger.DebugLevel, level)
	})

	t.Run("invalid", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "verbose")
		_, err := GetEnvLogLevel()
		require.Error(t, err)
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		clearPaymentEnv(t)
		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, DefaultAPIEndpoint, cfg.APIEndpoint)
		assert.Equal(t, DefaultSessionTimeout*time.Second, cfg.SessionTimeout)
		assert.Equal(t, DefaultQuoteValidity*time.Second, cfg.QuoteValidity)
		assert.Equal(t, DefaultDebounceSettle*time.Millisecond, cfg.DebounceSettle)
		assert.True(t, cfg.CircuitBreaker.Enabled)
	})

	t.Run("session warn threshold must be below the timeout", func(t *testing.T) {
		clearPaymentEnv(t)
		t.Setenv("SESSION_TIMEOUT", "60")
		t.Setenv("SESSION_WARN_THRESHOLD", "60")
		_, err := LoadConfig()
		require.Error(t, err)
	})

	t.Run("quote warn threshold must be below the validity", func(t *testing.T) {
		clearPaymentEnv(t)
		t.Setenv("QUOTE_VALIDITY", "30")
		t.Setenv("QUOTE_WARN_THRESHOLD", "45")
		_, err := LoadConfig()
		require.Error(t, err)
	})
}

// clearPaymentEnv blanks every variable LoadConfig reads so a test starts
// from the documented defaults regardless of the surrounding shell.
func clearPaymentEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"API_ENDPOINT", "PAYOUT_ENDPOINT", "ENVIRONMENT",
		"SESSION_TIMEOUT", "SESSION_WARN_THRESHOLD",
		"QUOTE_VALIDITY", "QUOTE_WARN_THRESHOLD",
		"DEBOUNCE_SETTLE_MS", "BANK_CACHE_TTL",
		"MIN_AMOUNT", "ACCOUNT_NUMBER_LENGTH", "METRICS_PORT",
		"CIRCUIT_BREAKER_ENABLED", "CIRCUIT_BREAKER_THRESHOLD",
		"CIRCUIT_BREAKER_WINDOW", "CIRCUIT_BREAKER_RESET",
		"LOG_LEVEL", "LOG_COLORING",
	} {
		t.Setenv(key, "")
	}
}
