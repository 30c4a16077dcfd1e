// Package httpserve exposes the engine over HTTP: the agent role's document
// endpoints, the website role's authentication endpoints, and the
// operational surface.
package httpserve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sufield/fan/internal/adapters/metrics"
	coreerrors "github.com/sufield/fan/internal/core/errors"
	"github.com/sufield/fan/internal/core/services"
)

const (
	// DefaultAddress is where the server binds when none is configured.
	DefaultAddress = ":8080"
	// DefaultShutdownGrace bounds how long a shutdown waits for in-flight
	// requests.
	DefaultShutdownGrace = 10 * time.Second

	readHeaderTimeout = 5 * time.Second
	maxAuthBodyBytes  = 64 << 10
)

// Config carries the collaborators and settings of a Server. A deployment
// runs whichever roles it configures: agents set Publisher, relying sites
// set Website, and many deployments set both.
type Config struct {
	// Address is the listen address, e.g. ":8080".
	Address string
	// Publisher serves this deployment's own documents.
	Publisher *services.AgentPublisher
	// Website drives authentication for browser-facing endpoints.
	Website *services.Website
	// EnableMetrics mounts the Prometheus scrape endpoint at /metrics.
	EnableMetrics bool
	// ShutdownGrace bounds graceful shutdown. Defaults to
	// DefaultShutdownGrace.
	ShutdownGrace time.Duration

	Logger *slog.Logger
}

// Server serves the FAN HTTP surface.
type Server struct {
	address       string
	publisher     *services.AgentPublisher
	website       *services.Website
	logger        *slog.Logger
	shutdownGrace time.Duration

	server *http.Server
	ready  atomic.Bool
}

// New creates a Server from the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Publisher == nil && cfg.Website == nil {
		return nil, &coreerrors.ValidationError{
			Field:   "roles",
			Value:   nil,
			Message: "at least one of Publisher or Website must be configured",
		}
	}
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultShutdownGrace
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		address:       cfg.Address,
		publisher:     cfg.Publisher,
		website:       cfg.Website,
		logger:        cfg.Logger,
		shutdownGrace: cfg.ShutdownGrace,
	}

	mux := http.NewServeMux()
	if s.publisher != nil {
		mux.HandleFunc("GET /fan.did", s.handleAgentDocument)
		mux.HandleFunc("GET /did-fan/user/{file}", s.handleSubjectDocument)
	}
	if s.website != nil {
		mux.HandleFunc("GET /fan/auth", s.handleBeginAuth)
		mux.HandleFunc("POST /fan/auth", s.handleCompleteAuth)
	}
	mux.HandleFunc("GET /live", s.handleLive)
	mux.HandleFunc("GET /ready", s.handleReady)
	if cfg.EnableMetrics {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.logRequests(mux),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s, nil
}

// Handler returns the server's handler, letting tests and embedding
// deployments serve it through their own listeners.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run binds the listen address and serves until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.address, err)
	}
	s.ready.Store(true)
	s.logger.Info("http server listening", "address", ln.Addr().String())

	done := make(chan error, 1)
	go func() { done <- s.server.Serve(ln) }()

	select {
	case <-ctx.Done():
		s.ready.Store(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownGrace)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown did not complete cleanly: %w", err)
		}
		<-done
		s.logger.Info("http server stopped")
		return nil
	case err := <-done:
		s.ready.Store(false)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// statusRecorder captures the status a handler wrote so the request log
// carries it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)
		s.logger.Debug("request handled",
			"method", req.Method,
			"path", req.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
