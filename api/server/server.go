// Package server runs the grid HTTP API and its metrics listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/Agents-Autonomous/billiondollarcontract/api/handlers"
	"github.com/Agents-Autonomous/billiondollarcontract/api/metrics"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	readyTimeout           = 2 * time.Second
)

type Config struct {
	Logger  *slog.Logger
	Handler *handlers.Handler

	ListenAddr  string
	MetricsAddr string // optional; no metrics listener when empty

	CORSOrigins []string
	Version     handlers.VersionResponse

	// Ready reports whether the backend can serve requests. Optional.
	Ready func(ctx context.Context) error

	// Sentry enables panic and error reporting through the Sentry hub.
	Sentry bool

	ShutdownTimeout time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Handler == nil {
		return errors.New("handler is required")
	}
	if cfg.ListenAddr == "" {
		return errors.New("listen address is required")
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	return nil
}

type Server struct {
	log    *slog.Logger
	cfg    Config
	router *chi.Mux
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{log: cfg.Logger, cfg: cfg, router: chi.NewRouter()}
	s.setupRoutes()
	return s, nil
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if s.cfg.Sentry {
		r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	}
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Content-Type",
			handlers.HeaderSigner,
			handlers.HeaderTimestamp,
			handlers.HeaderSignature,
		},
		ExposedHeaders: []string{"Retry-After", middleware.RequestIDHeader},
		MaxAge:         300,
	}))
	r.Use(metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", s.handleReady)
	r.Get("/version", handlers.GetVersion(s.cfg.Version))
	r.Route("/api/v1", s.cfg.Handler.Routes)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.cfg.Ready(ctx); err != nil {
			s.log.Warn("server: readiness check failed", "error", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("server: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// Run serves the API, and the metrics endpoint when configured, until ctx is done or a
// listener fails. Both servers are shut down gracefully.
func (s *Server) Run(ctx context.Context) error {
	apiListener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	servers := []*http.Server{{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}}
	listeners := []net.Listener{apiListener}
	s.log.Info("server: api listening", "address", apiListener.Addr().String())

	if s.cfg.MetricsAddr != "" {
		metricsListener, err := net.Listen("tcp", s.cfg.MetricsAddr)
		if err != nil {
			_ = apiListener.Close()
			return fmt.Errorf("failed to listen on %s: %w", s.cfg.MetricsAddr, err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second})
		listeners = append(listeners, metricsListener)
		s.log.Info("server: prometheus metrics listening", "address", metricsListener.Addr().String())
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, srv := range servers {
		g.Go(func() error {
			if err := srv.Serve(listeners[i]); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("server: shutting down", "timeout", s.cfg.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
