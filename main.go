package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/payflow-hq/payflow/pkg/api"
	"github.com/payflow-hq/payflow/pkg/auth"
	"github.com/payflow-hq/payflow/pkg/circuitbreaker"
	"github.com/payflow-hq/payflow/pkg/config"
	"github.com/payflow-hq/payflow/pkg/health"
	"github.com/payflow-hq/payflow/pkg/logger"
	"github.com/payflow-hq/payflow/pkg/provider"
	"github.com/payflow-hq/payflow/pkg/session"
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up context with cancellation on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stdLogger := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)

	// The bearer credential is installed by the authentication flow; until
	// then every protected provider call fails with AuthRequired.
	tokens := auth.NewBearerProvider()
	if token := os.Getenv("AUTH_TOKEN"); token != "" {
		if err := tokens.SetToken(token); err != nil {
			log.Fatalf("Failed to install auth token: %v", err)
		}
	}

	breaker := circuitbreaker.NewCircuitBreaker(
		cfg.CircuitBreaker.Enabled,
		cfg.CircuitBreaker.Threshold,
		cfg.CircuitBreaker.WindowDuration,
		cfg.CircuitBreaker.ResetTimeout,
		stdLogger,
	)

	client := provider.New(cfg.APIEndpoint, cfg.PayoutEndpoint, tokens, breaker, stdLogger)
	directory := provider.NewBankDirectory(client, cfg.BankCacheTTL)

	sessions := session.NewManager(client, directory, session.Options{
		SessionTimeout:       cfg.SessionTimeout,
		SessionWarnThreshold: cfg.SessionWarnThreshold,
		QuoteValidity:        cfg.QuoteValidity,
		QuoteWarnThreshold:   cfg.QuoteWarnThreshold,
		DebounceSettle:       cfg.DebounceSettle,
		MinAmount:            cfg.MinAmount,
		AccountNumberLen:     cfg.AccountNumberLen,
		Environment:          cfg.Environment,
	}, stdLogger)

	// Set up signal handling for graceful shutdown
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		log.Println("Received termination signal, shutting down gracefully...")
		cancel()
	}()

	// Reap expired sessions periodically
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if reaped := sessions.Reap(); reaped > 0 {
					stdLogger.Info("Reaped %d expired sessions", reaped)
				}
			}
		}
	}()

	// Start the health, metrics and session API server
	apiServer := api.NewServer(sessions, stdLogger)
	healthServer := health.NewServer(cfg.MetricsPort, sessions, breaker, directory, apiServer.Handler())
	go healthServer.Start()

	log.Println("Payment session service started")
	<-ctx.Done()
	sessions.CloseAll()
}
