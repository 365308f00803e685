// Package metricsrv serves the operational HTTP endpoints of a running
// migration: Prometheus metrics under /metrics and a health report under
// /healthz that includes the circuit breaker states of the storage
// backend.
package metricsrv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nimamiri9248/bucketmover/logger"
	"github.com/nimamiri9248/bucketmover/pkg/circuitbreaker"
)

// BreakerReporter reports the circuit breaker state per operation class.
// *resilient.Store satisfies it.
type BreakerReporter interface {
	BreakerStates() map[string]circuitbreaker.State
}

// Server represents the metrics HTTP server.
type Server struct {
	addr     string
	breakers BreakerReporter
	server   *http.Server
}

// ServerOptions holds configuration options for the metrics server.
type ServerOptions struct {
	Addr     string
	Breakers BreakerReporter
}

// New creates a new metrics server.
func New(options ServerOptions) (*Server, error) {
	if options.Addr == "" {
		return nil, fmt.Errorf("listen address is required for metrics server")
	}
	return &Server{
		addr:     options.Addr,
		breakers: options.Breakers,
	}, nil
}

// Start runs the server until ctx is cancelled. Startup and serve
// failures are reported on errChan.
func Start(ctx context.Context, options ServerOptions, errChan chan<- error) {
	server, err := New(options)
	if err != nil {
		errChan <- fmt.Errorf("failed to create metrics server: %w", err)
		return
	}

	logger.Info("Starting metrics server", "addr", options.Addr)
	if err := server.start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		errChan <- fmt.Errorf("metrics server failed: %w", err)
	}
}

func (s *Server) start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down metrics server", "error", err)
		}
	}()

	return s.server.ListenAndServe()
}

func (s *Server) setupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.Use(s.loggingMiddleware)

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	return router
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

type healthResponse struct {
	Status   string            `json:"status"`
	Breakers map[string]string `json:"breakers,omitempty"`
}

// handleHealth reports overall health. An open breaker degrades the
// status but still answers 200: the process itself is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}

	if s.breakers != nil {
		resp.Breakers = make(map[string]string)
		for class, state := range s.breakers.BreakerStates() {
			resp.Breakers[class] = state.String()
			if state == circuitbreaker.StateOpen {
				resp.Status = "degraded"
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("Failed to encode health response", "error", err)
	}
}
