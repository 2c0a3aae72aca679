package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/payflow-hq/payflow/pkg/logger"
)

const (
	sandbox = "sandbox"
	live    = "live"

	// DefaultEnvironment is the default provider environment flag
	DefaultEnvironment = sandbox

	// DefaultAPIEndpoint defines the default endpoint for rates, collection
	// accounts, the bank directory and account resolution
	DefaultAPIEndpoint = "https://api.payflow.exchange"

	// DefaultPayoutEndpoint defines the default endpoint for payout initiation
	DefaultPayoutEndpoint = "https://payout.payflow.exchange"

	// DefaultSessionTimeout defines the default inactivity window in seconds
	DefaultSessionTimeout = 300

	// DefaultSessionWarnThreshold defines the default pre-expiry warning threshold in seconds
	DefaultSessionWarnThreshold = 60

	// DefaultQuoteValidity defines the default quote validity window in seconds
	DefaultQuoteValidity = 60

	// DefaultQuoteWarnThreshold defines the default quote low-time warning threshold in seconds
	DefaultQuoteWarnThreshold = 30

	// DefaultDebounceSettle defines the default field settle delay in milliseconds
	DefaultDebounceSettle = 500

	// DefaultBankCacheTTL defines the default bank directory cache TTL in seconds
	DefaultBankCacheTTL = 1800

	// DefaultMinAmount defines the minimum source amount accepted for a quote
	DefaultMinAmount = 100

	// DefaultAccountNumberLen defines the required payout account number length
	DefaultAccountNumberLen = 10

	// DefaultMetricsPort defines the default port for the metrics server
	DefaultMetricsPort = "8080"

	// DefaultCircuitBreakerEnabled defines whether the circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker
	DefaultCircuitBreakerWindow = 5

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker
	DefaultCircuitBreakerReset = 15
)

// GetEnvAPIEndpoint returns the API endpoint from environment variables
func GetEnvAPIEndpoint() (string, error) {
	apiEndpoint := os.Getenv("API_ENDPOINT")
	if apiEndpoint == "" {
		return DefaultAPIEndpoint, nil
	}

	// Validate URL format
	if _, err := url.ParseRequestURI(apiEndpoint); err != nil {
		return "", fmt.Errorf("invalid API_ENDPOINT value: %s, must be a valid URL", apiEndpoint)
	}
	return apiEndpoint, nil
}

// GetEnvPayoutEndpoint returns the payout endpoint from environment variables
func GetEnvPayoutEndpoint() (string, error) {
	payoutEndpoint := os.Getenv("PAYOUT_ENDPOINT")
	if payoutEndpoint == "" {
		return DefaultPayoutEndpoint, nil
	}

	// Validate URL format
	if _, err := url.ParseRequestURI(payoutEndpoint); err != nil {
		return "", fmt.Errorf("invalid PAYOUT_ENDPOINT value: %s, must be a valid URL", payoutEndpoint)
	}
	return payoutEndpoint, nil
}

// GetEnvEnvironment returns the provider environment flag from environment variables
func GetEnvEnvironment() (string, error) {
	environment := os.Getenv("ENVIRONMENT")
	if environment == "" {
		return DefaultEnvironment, nil
	}

	if environment != sandbox && environment != live {
		return "", fmt.Errorf("invalid ENVIRONMENT value: %s, must be 'sandbox' or 'live'", environment)
	}
	return environment, nil
}

// GetEnvSessionTimeout returns the session inactivity timeout from environment variables
func GetEnvSessionTimeout() (time.Duration, error) {
	return getEnvSeconds("SESSION_TIMEOUT", DefaultSessionTimeout)
}

// GetEnvSessionWarnThreshold returns the session pre-expiry warning threshold from environment variables
func GetEnvSessionWarnThreshold() (time.Duration, error) {
	return getEnvSeconds("SESSION_WARN_THRESHOLD", DefaultSessionWarnThreshold)
}

// GetEnvQuoteValidity returns the quote validity window from environment variables
func GetEnvQuoteValidity() (time.Duration, error) {
	return getEnvSeconds("QUOTE_VALIDITY", DefaultQuoteValidity)
}

// GetEnvQuoteWarnThreshold returns the quote low-time warning threshold from environment variables
func GetEnvQuoteWarnThreshold() (time.Duration, error) {
	return getEnvSeconds("QUOTE_WARN_THRESHOLD", DefaultQuoteWarnThreshold)
}

// GetEnvDebounceSettle returns the field settle delay from environment variables
func GetEnvDebounceSettle() (time.Duration, error) {
	settle := os.Getenv("DEBOUNCE_SETTLE_MS")
	if settle == "" {
		return DefaultDebounceSettle * time.Millisecond, nil
	}

	ms, err := strconv.Atoi(settle)
	if err != nil {
		return 0, fmt.Errorf("invalid DEBOUNCE_SETTLE_MS value: %s, must be an integer", settle)
	}
	if ms <= 0 {
		return 0, fmt.Errorf("DEBOUNCE_SETTLE_MS must be greater than 0")
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// GetEnvBankCacheTTL returns the bank directory cache TTL from environment variables
func GetEnvBankCacheTTL() (time.Duration, error) {
	return getEnvSeconds("BANK_CACHE_TTL", DefaultBankCacheTTL)
}

// GetEnvMinAmount returns the minimum quote amount from environment variables
func GetEnvMinAmount() (float64, error) {
	minAmount := os.Getenv("MIN_AMOUNT")
	if minAmount == "" {
		return DefaultMinAmount, nil
	}

	amount, err := strconv.ParseFloat(minAmount, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid MIN_AMOUNT value: %s, must be a number", minAmount)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("MIN_AMOUNT must be greater than 0")
	}
	return amount, nil
}

// GetEnvAccountNumberLen returns the required account number length from environment variables
func GetEnvAccountNumberLen() (int, error) {
	accountLen := os.Getenv("ACCOUNT_NUMBER_LENGTH")
	if accountLen == "" {
		return DefaultAccountNumberLen, nil
	}

	length, err := strconv.Atoi(accountLen)
	if err != nil {
		return 0, fmt.Errorf("invalid ACCOUNT_NUMBER_LENGTH value: %s, must be an integer", accountLen)
	}
	if length <= 0 {
		return 0, fmt.Errorf("ACCOUNT_NUMBER_LENGTH must be greater than 0")
	}
	return length, nil
}

// GetEnvMetricsPort returns the metrics server port from environment variables
func GetEnvMetricsPort() (string, error) {
	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		return DefaultMetricsPort, nil
	}

	// Validate port format
	if _, err := strconv.Atoi(metricsPort); err != nil {
		return "", fmt.Errorf("invalid METRICS_PORT value: %s, must be a valid integer", metricsPort)
	}
	return metricsPort, nil
}

// GetEnvCircuitBreakerEnabled returns whether the circuit breaker is enabled from environment variables
func GetEnvCircuitBreakerEnabled() (bool, error) {
	enabled := os.Getenv("CIRCUIT_BREAKER_ENABLED")
	if enabled == "" {
		return DefaultCircuitBreakerEnabled, nil
	}

	if enabled == "true" {
		return true, nil
	} else if enabled == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid CIRCUIT_BREAKER_ENABLED value: %s, must be 'true' or 'false'", enabled)
}

// GetEnvCircuitBreakerThreshold returns the circuit breaker threshold from environment variables
func GetEnvCircuitBreakerThreshold() (int, error) {
	threshold := os.Getenv("CIRCUIT_BREAKER_THRESHOLD")
	if threshold == "" {
		return DefaultCircuitBreakerThreshold, nil
	}

	thresholdInt, err := strconv.Atoi(threshold)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_THRESHOLD value: %s, must be an integer", threshold)
	}
	if thresholdInt <= 0 {
		return 0, fmt.Errorf("CIRCUIT_BREAKER_THRESHOLD must be greater than 0")
	}
	return thresholdInt, nil
}

// GetEnvCircuitBreakerWindow returns the circuit breaker window duration from environment variables
func GetEnvCircuitBreakerWindow() (time.Duration, error) {
	window := os.Getenv("CIRCUIT_BREAKER_WINDOW")
	if window == "" {
		return DefaultCircuitBreakerWindow * time.Second, nil
	}

	// Validate duration format
	parsed, err := time.ParseDuration(window)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_WINDOW value: %s, must be a valid duration string", window)
	}
	return parsed, nil
}

// GetEnvCircuitBreakerReset returns the circuit breaker reset timeout from environment variables
func GetEnvCircuitBreakerReset() (time.Duration, error) {
	reset := os.Getenv("CIRCUIT_BREAKER_RESET")
	if reset == "" {
		return DefaultCircuitBreakerReset * time.Second, nil
	}

	// Validate duration format
	parsed, err := time.ParseDuration(reset)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_RESET value: %s, must be a valid duration string", reset)
	}
	return parsed, nil
}

// GetEnvLogLevel returns the log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return logger.InfoLevel, nil
	}

	switch level {
	case "debug":
		return logger.DebugLevel, nil
	case "info":
		return logger.InfoLevel, nil
	case "notice":
		return logger.NoticeLevel, nil
	case "error":
		return logger.ErrorLevel, nil
	}
	return 0, fmt.Errorf("invalid LOG_LEVEL value: %s, must be 'debug', 'info', 'notice' or 'error'", level)
}

// GetEnvLogColoring returns whether log coloring is enabled from environment variables
func GetEnvLogColoring() (bool, error) {
	coloring := os.Getenv("LOG_COLORING")
	if coloring == "" {
		return true, nil
	}

	if coloring == "true" {
		return true, nil
	} else if coloring == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid LOG_COLORING value: %s, must be 'true' or 'false'", coloring)
}

// getEnvSeconds reads an integer number of seconds with a default
func getEnvSeconds(key string, defaultSeconds int) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return time.Duration(defaultSeconds) * time.Second, nil
	}

	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be an integer", key, raw)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return time.Duration(seconds) * time.Second, nil
}
