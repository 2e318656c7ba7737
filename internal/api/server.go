// Package api serves the satellite catalog over HTTP and WebSocket.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/signalsfoundry/orbit-visualizer/internal/auth"
	"github.com/signalsfoundry/orbit-visualizer/internal/catalog"
	"github.com/signalsfoundry/orbit-visualizer/internal/httputil"
	"github.com/signalsfoundry/orbit-visualizer/internal/logging"
	"github.com/signalsfoundry/orbit-visualizer/internal/observability"
)

const (
	defaultPageSize = 100
	maxPageSize     = 500
	maxPathPoints   = 10000
)

// Options configures a Server. Zero values select the defaults.
type Options struct {
	Addr   string
	Logger logging.Logger

	// Metrics instruments every route and serves /metrics when non-nil.
	Metrics *observability.Collector

	Auth      auth.Config
	RateLimit httputil.RateLimitConfig

	AllowedOrigins   []string
	AllowCredentials bool

	DefaultPageSize int
	MaxPageSize     int

	// Now stamps health responses.
	Now func() time.Time
}

// publicPaths never require a token.
var publicPaths = map[string]bool{
	"/healthz":    true,
	"/readyz":     true,
	"/metrics":    true,
	"/api/health": true,
}

// probePaths bypass rate limiting and log at debug level.
var probePaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	svc        *catalog.Service
	opts       Options
	log        logging.Logger
	mux        *http.ServeMux
	upgrader   *websocket.Upgrader
	handler    http.Handler
	httpServer *http.Server

	// baseCtx outlives requests and is cancelled on shutdown; hijacked
	// live connections are not tracked by http.Server.Shutdown.
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewServer creates a configured HTTP server for svc.
func NewServer(svc *catalog.Service, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.Noop()
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = defaultPageSize
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = maxPageSize
	}
	if opts.DefaultPageSize > opts.MaxPageSize {
		opts.DefaultPageSize = opts.MaxPageSize
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	s := &Server{
		svc:  svc,
		opts: opts,
		log:  opts.Logger.With(logging.String("component", "api")),
		mux:  http.NewServeMux(),
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())
	s.upgrader = s.newUpgrader()
	s.routes()

	authCfg := opts.Auth
	authCfg.ExemptPaths = mergePaths(publicPaths, authCfg.ExemptPaths)
	rlCfg := opts.RateLimit
	rlCfg.Exempt = mergePaths(probePaths, rlCfg.Exempt)

	// Build middleware chain: cors -> logging -> rate limit -> auth -> mux.
	var handler http.Handler = s.mux
	handler = auth.Middleware(authCfg)(handler)
	handler = httputil.RateLimitMiddleware(rlCfg)(handler)
	handler = loggingMiddleware(s.log)(handler)
	handler = cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{logging.RequestIDHeader, "Retry-After"},
		AllowCredentials: opts.AllowCredentials,
	}).Handler(handler)
	s.handler = handler

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.httpServer.RegisterOnShutdown(s.cancelBase)
	return s
}

func (s *Server) routes() {
	s.handle("GET /healthz", http.HandlerFunc(s.handleHealthz))
	s.handle("GET /readyz", http.HandlerFunc(s.handleReadyz))
	if s.opts.Metrics != nil {
		s.mux.Handle("GET /metrics", s.opts.Metrics.Handler())
	}

	s.handle("GET /api/health", http.HandlerFunc(s.handleHealth))
	s.handle("GET /api/period", http.HandlerFunc(s.handlePeriod))
	s.handle("POST /api/validate-orbital-params", http.HandlerFunc(s.handleValidate))

	s.handle("GET /api/satellites", http.HandlerFunc(s.handleListSatellites))
	s.handle("POST /api/satellites/custom", http.HandlerFunc(s.handleCreateSatellite))
	s.handle("GET /api/satellites/{id}", http.HandlerFunc(s.handleGetSatellite))
	s.handle("PUT /api/satellites/{id}", http.HandlerFunc(s.handleUpdateSatellite))
	s.handle("DELETE /api/satellites/{id}", http.HandlerFunc(s.handleDeleteSatellite))
	s.handle("GET /api/satellites/{id}/orbit-path", http.HandlerFunc(s.handleOrbitPath))
	s.handle("GET /api/satellites/{id}/position", http.HandlerFunc(s.handlePosition))
	s.handle("GET /api/satellites/{id}/positions", http.HandlerFunc(s.handlePositions))
	s.handle("POST /api/satellites/{id}/track", http.HandlerFunc(s.handleStartTracking))
	s.handle("DELETE /api/satellites/{id}/track", http.HandlerFunc(s.handleStopTracking))
	s.handle("GET /api/satellites/{id}/live", http.HandlerFunc(s.handleLive))

	s.handle("GET /api/configurations", http.HandlerFunc(s.handleListConfigurations))
	s.handle("POST /api/configurations", http.HandlerFunc(s.handleSaveConfiguration))
	s.handle("DELETE /api/configurations/{id}", http.HandlerFunc(s.handleDeleteConfiguration))

	s.handle("GET /api/preferences", http.HandlerFunc(s.handleGetPreferences))
	s.handle("PUT /api/preferences", http.HandlerFunc(s.handleUpdatePreferences))
}

// handle registers h under pattern with a server span and per-route
// metrics labelled by the pattern.
func (s *Server) handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, s.opts.Metrics.InstrumentHandler(pattern, observability.TraceHandler(pattern, h)))
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// HTTPServer returns the underlying *http.Server for external control.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.log.Info(context.Background(), "http server listening", logging.String("addr", s.opts.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server and closes live feeds.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelBase()
	return s.httpServer.Shutdown(ctx)
}

func mergePaths(base, extra map[string]bool) map[string]bool {
	out := make(map[string]bool, len(base)+len(extra))
	for p, v := range base {
		out[p] = v
	}
	for p, v := range extra {
		out[p] = v
	}
	return out
}
