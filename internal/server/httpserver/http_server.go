// Package httpserver wires the laundrycycle HTTP API onto a net/http server.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/laundrycycle/internal/config"
	foundationerrors "git.home.luguber.info/inful/laundrycycle/internal/foundation/errors"
	"git.home.luguber.info/inful/laundrycycle/internal/logfields"
	"git.home.luguber.info/inful/laundrycycle/internal/server/handlers"
	smw "git.home.luguber.info/inful/laundrycycle/internal/server/middleware"
)

// Options configures the server.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Metrics is mounted at MetricsPath when set.
	Metrics     http.Handler
	MetricsPath string
	Health      handlers.HealthChecker
	Defaults    config.CycleDefaults
	Logger      *slog.Logger
}

// Server manages the API listener.
type Server struct {
	opts         Options
	logger       *slog.Logger
	errorAdapter *foundationerrors.HTTPErrorAdapter

	entityHandlers     *handlers.EntityHandlers
	monitoringHandlers *handlers.MonitoringHandlers

	mchain func(http.Handler) http.Handler

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

// New constructs a server for service.
func New(service handlers.CycleService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	s := &Server{
		opts:               opts,
		logger:             logger,
		errorAdapter:       foundationerrors.NewHTTPErrorAdapter(logger),
		entityHandlers:     handlers.NewEntityHandlers(service, opts.Defaults, logger),
		monitoringHandlers: handlers.NewMonitoringHandlers(opts.Health),
	}
	s.mchain = smw.Chain(logger, s.errorAdapter)
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.monitoringHandlers.HandleHealthCheck)
	if s.opts.Metrics != nil {
		mux.Handle("GET "+s.opts.MetricsPath, s.opts.Metrics)
	}

	eh := s.entityHandlers
	mux.HandleFunc("GET /api/entities", eh.HandleList)
	mux.HandleFunc("POST /api/entities", eh.HandleRegister)
	mux.HandleFunc("GET /api/entities/{id}", eh.HandleGet)
	mux.HandleFunc("GET /api/entities/{id}/history", eh.HandleHistory)
	mux.HandleFunc("POST /api/entities/{id}/transition", eh.HandleTransition)
	mux.HandleFunc("POST /api/entities/{id}/cancel-timer", eh.HandleCancelTimer)
	mux.HandleFunc("POST /api/entities/{id}/escalate", eh.HandleEscalate)
	mux.HandleFunc("POST /api/maintenance/tick", eh.HandleTick)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.errorAdapter.WriteErrorResponse(w, r, foundationerrors.NotFoundError("no such route").
			WithContext("method", r.Method).
			WithContext("path", r.URL.Path).
			Build())
	})
	return s.mchain(mux)
}

// Start binds the listen address and serves in the background. Binding
// happens before Start returns so address conflicts surface immediately.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("http server already started")
	}

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("http startup failed: %w", err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.srv, s.ln = srv, ln

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", logfields.Error(err))
		}
	}()
	s.logger.Info("HTTP server started", slog.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv, s.ln = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
