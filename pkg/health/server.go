package health

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/payflow-hq/payflow/pkg/circuitbreaker"
	"github.com/payflow-hq/payflow/pkg/provider"
	"github.com/payflow-hq/payflow/pkg/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the health check and metrics HTTP server
type Server struct {
	port          string
	sessions      *session.Manager
	breaker       *circuitbreaker.CircuitBreaker
	directory     *provider.BankDirectory
	api           http.Handler
	metricsAPIKey string
}

// NewServer creates a new health check server. The session API handler is
// mounted alongside the operational endpoints.
func NewServer(port string, sessions *session.Manager, breaker *circuitbreaker.CircuitBreaker, directory *provider.BankDirectory, api http.Handler) *Server {
	return &Server{
		port:          port,
		sessions:      sessions,
		breaker:       breaker,
		directory:     directory,
		api:           api,
		metricsAPIKey: os.Getenv("METRICS_API_KEY"),
	}
}

// metricsAuthMiddleware is a middleware that checks for a valid API key
func (s *Server) metricsAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key is configured
		if s.metricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		// Get API key from Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		// Check if the header has the correct format
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		// Validate API key
		if parts[1] != s.metricsAPIKey {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler builds the HTTP handler serving the operational endpoints and
// the session API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Service status endpoint
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		circuitStatus := "closed"
		if s.breaker != nil && s.breaker.IsOpen() {
			circuitStatus = "open"
		}

		status := map[string]interface{}{
			"active_sessions": s.sessions.Count(),
			"circuit":         circuitStatus,
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("Error encoding status JSON: %v", err)
		}
	})

	// Circuit breaker admin control endpoint
	mux.HandleFunc("/circuit/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		if s.breaker == nil {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("No circuit breaker configured"))
			return
		}

		s.breaker.Reset()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Circuit breaker reset"))
	})

	// Bank directory admin control endpoint: drop the cached list so the
	// next lookup refetches
	mux.HandleFunc("/banks/refresh", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		if s.directory == nil {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("No bank directory configured"))
			return
		}

		s.directory.Clear()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Bank directory cache cleared"))
	})

	// Expose Prometheus metrics with API key authentication
	mux.Handle("/metrics", s.metricsAuthMiddleware(promhttp.Handler()))

	// Session API
	if s.api != nil {
		mux.Handle("/api/", s.api)
	}

	return mux
}

// Start starts the health check server
func (s *Server) Start() {
	log.Printf("Starting health and metrics server on port %s", s.port)
	if err := http.ListenAndServe(":"+s.port, s.Handler()); err != nil {
		log.Printf("Health server error: %v", err)
	}
}
