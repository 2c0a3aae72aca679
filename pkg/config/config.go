package config

import (
	"fmt"
	"log"

	"time"

	"github.com/joho/godotenv"
	"github.com/payflow-hq/payflow/pkg/logger"
)

// Config holds the configuration for the payment session service
type Config struct {
	APIEndpoint    string
	PayoutEndpoint string
	Environment    string

	SessionTimeout       time.Duration
	SessionWarnThreshold time.Duration
	QuoteValidity        time.Duration
	QuoteWarnThreshold   time.Duration
	DebounceSettle       time.Duration
	BankCacheTTL         time.Duration

	MinAmount        float64
	AccountNumberLen int

	MetricsPort    string
	CircuitBreaker CircuitBreakerConfig
	LoggerConfig   LoggerConfig
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	apiEndpoint, err := GetEnvAPIEndpoint()
	if err != nil {
		return nil, err
	}

	payoutEndpoint, err := GetEnvPayoutEndpoint()
	if err != nil {
		return nil, err
	}

	environment, err := GetEnvEnvironment()
	if err != nil {
		return nil, err
	}

	sessionTimeout, err := GetEnvSessionTimeout()
	if err != nil {
		return nil, err
	}

	sessionWarn, err := GetEnvSessionWarnThreshold()
	if err != nil {
		return nil, err
	}

	quoteValidity, err := GetEnvQuoteValidity()
	if err != nil {
		return nil, err
	}

	quoteWarn, err := GetEnvQuoteWarnThreshold()
	if err != nil {
		return nil, err
	}

	debounceSettle, err := GetEnvDebounceSettle()
	if err != nil {
		return nil, err
	}

	bankCacheTTL, err := GetEnvBankCacheTTL()
	if err != nil {
		return nil, err
	}

	minAmount, err := GetEnvMinAmount()
	if err != nil {
		return nil, err
	}

	accountNumberLen, err := GetEnvAccountNumberLen()
	if err != nil {
		return nil, err
	}

	metricsPort, err := GetEnvMetricsPort()
	if err != nil {
		return nil, err
	}

	cbEnabled, err := GetEnvCircuitBreakerEnabled()
	if err != nil {
		return nil, err
	}

	cbThreshold, err := GetEnvCircuitBreakerThreshold()
	if err != nil {
		return nil, err
	}

	cbWindow, err := GetEnvCircuitBreakerWindow()
	if err != nil {
		return nil, err
	}

	cbReset, err := GetEnvCircuitBreakerReset()
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	logColoring, err := GetEnvLogColoring()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIEndpoint:          apiEndpoint,
		PayoutEndpoint:       payoutEndpoint,
		Environment:          environment,
		SessionTimeout:       sessionTimeout,
		SessionWarnThreshold: sessionWarn,
		QuoteValidity:        quoteValidity,
		QuoteWarnThreshold:   quoteWarn,
		DebounceSettle:       debounceSettle,
		BankCacheTTL:         bankCacheTTL,
		MinAmount:            minAmount,
		AccountNumberLen:     accountNumberLen,
		MetricsPort:          metricsPort,
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        cbEnabled,
			Threshold:      cbThreshold,
			WindowDuration: cbWindow,
			ResetTimeout:   cbReset,
		},
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
	}

	// Validate required environment variables
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.SessionWarnThreshold >= cfg.SessionTimeout {
		return fmt.Errorf("SESSION_WARN_THRESHOLD must be smaller than SESSION_TIMEOUT")
	}
	if cfg.QuoteWarnThreshold >= cfg.QuoteValidity {
		return fmt.Errorf("QUOTE_WARN_THRESHOLD must be smaller than QUOTE_VALIDITY")
	}
	return nil
}
