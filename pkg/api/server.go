// Package api serves the synchronous query interface over HTTP.
//
// Routes:
//
//	GET  /versions?name=&system=                 all versions of a package
//	GET  /dependency?name=&version=&system=      one version (204 when unknown upstream)
//	GET  /dependencies?name=&version=&system=    dependency graph of a version
//	GET  /advisory/{advisoryKey}                 one advisory
//	POST /check                                  vulnerability check of cached versions
//	POST /scan                                   synchronous closure scan
//	GET  /healthz                                liveness and build info
//	GET  /metrics                                Prometheus metrics, when enabled
//
// Failures are reported as [ErrorDetails]. Missing data and invalid input
// map to 400; anything else to 500.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/depscanner/pkg/observability/prommetrics"
	"github.com/matzehuels/depscanner/pkg/resolve"
	"github.com/matzehuels/depscanner/pkg/scan"
)

// Options configures a [Server].
type Options struct {
	// Metrics, when set, instruments routes and serves GET /metrics.
	Metrics *prommetrics.Metrics
	// Breaker reports the upstream circuit breaker state for /healthz.
	Breaker func() string
	Logger  *log.Logger
}

// Server holds the handlers' dependencies.
type Server struct {
	svc     *resolve.Service
	engine  *scan.Engine
	metrics *prommetrics.Metrics
	breaker func() string
	logger  *log.Logger
}

// New creates a server. engine may be nil, which disables POST /scan.
func New(svc *resolve.Service, engine *scan.Engine, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Server{
		svc:     svc,
		engine:  engine,
		metrics: opts.Metrics,
		breaker: opts.Breaker,
		logger:  opts.Logger,
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/versions", s.handleVersions)
	r.Get("/dependency", s.handleDependency)
	r.Get("/dependencies", s.handleDependencies)
	r.Get("/advisory/{advisoryKey}", s.handleAdvisory)
	r.Post("/check", s.handleCheck)
	if s.engine != nil {
		r.Post("/scan", s.handleScan)
	}
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down,
// waiting up to shutdownTimeout for in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).Round(time.Microsecond),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
