package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/signalsfoundry/orbit-visualizer/core"
	"github.com/signalsfoundry/orbit-visualizer/internal/adminrpc"
	"github.com/signalsfoundry/orbit-visualizer/internal/api"
	"github.com/signalsfoundry/orbit-visualizer/internal/auth"
	"github.com/signalsfoundry/orbit-visualizer/internal/catalog"
	"github.com/signalsfoundry/orbit-visualizer/internal/config"
	"github.com/signalsfoundry/orbit-visualizer/internal/httputil"
	"github.com/signalsfoundry/orbit-visualizer/internal/logging"
	"github.com/signalsfoundry/orbit-visualizer/internal/observability"
	"github.com/signalsfoundry/orbit-visualizer/kb"
	"github.com/signalsfoundry/orbit-visualizer/timectrl"
)

const (
	shutdownTimeout   = 10 * time.Second
	readinessInterval = 15 * time.Second
)

func main() {
	envFile := flag.String("env", ".env", "Optional .env file loaded before reading the environment")
	httpAddr := flag.String("http-addr", "", "Override HTTP_ADDR")
	adminAddr := flag.String("admin-addr", "", "Override ADMIN_GRPC_ADDR")
	flag.Parse()

	cfg, err := config.LoadEnv(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *adminAddr != "" {
		cfg.AdminGRPCAddr = *adminAddr
	}

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for HTTP", logging.String("addr", cfg.HTTPAddr), logging.Err(err))
		os.Exit(1)
	}
	var adminLis net.Listener
	if cfg.AdminGRPCAddr != "" {
		if adminLis, err = net.Listen("tcp", cfg.AdminGRPCAddr); err != nil {
			log.Error(ctx, "failed to listen for admin gRPC", logging.String("addr", cfg.AdminGRPCAddr), logging.Err(err))
			os.Exit(1)
		}
	}

	if err := run(ctx, cfg, log, httpLis, adminLis); err != nil {
		log.Error(ctx, "server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run wires every component, serves until ctx is cancelled and then shuts
// down. adminLis may be nil to disable the admin server.
func run(ctx context.Context, cfg config.Config, log logging.Logger, httpLis, adminLis net.Listener) error {
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.OTelEnabled,
		ServiceName: cfg.OTelServiceName,
		Exporter:    cfg.OTelExporter,
		Endpoint:    cfg.OTelEndpoint,
		SampleRatio: cfg.OTelSampleRatio,
	}, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	var (
		collector *observability.Collector
		tracker   *observability.TrackerCollector
	)
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		if collector, err = observability.NewCollector(reg); err != nil {
			return fmt.Errorf("metrics collector: %w", err)
		}
		if tracker, err = observability.NewTrackerCollector(reg); err != nil {
			return fmt.Errorf("tracker collector: %w", err)
		}
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Info(ctx, "store opened", logging.String("backend", cfg.StoreBackend))

	clock := timectrl.NewTimeController(time.Now().UTC(), cfg.TrackerTick, cfg.TrackerSpeed)
	opts := []catalog.Option{
		catalog.WithLogger(log.With(logging.String("component", "catalog"))),
		catalog.WithScene(core.Scene{EarthRadiusUnits: cfg.SceneEarthRadiusUnits}),
		catalog.WithClock(clock),
	}
	if collector != nil {
		opts = append(opts, catalog.WithMetrics(collector), catalog.WithTrackerMetrics(tracker))
	}
	svc := catalog.NewService(store, opts...)

	trackerCtx, stopTracker := context.WithCancel(ctx)
	defer stopTracker()
	clock.AddListener(func(simTime time.Time) { svc.Tick(trackerCtx, simTime) })
	trackerDone := clock.Start(trackerCtx)

	httpSrv := api.NewServer(svc, api.Options{
		Addr:    cfg.HTTPAddr,
		Logger:  log,
		Metrics: collector,
		Auth: auth.Config{
			Enabled:       cfg.AuthEnabled,
			Secret:        []byte(cfg.JWTSecret),
			Algorithm:     cfg.JWTAlgorithm,
			Audience:      cfg.JWTAudience,
			Issuer:        cfg.JWTIssuer,
			RequiredRoles: cfg.JWTRequiredRoles,
		},
		RateLimit: httputil.RateLimitConfig{
			Default:    httputil.NewIPRateLimiter(cfg.RateLimitDefault),
			Write:      httputil.NewIPRateLimiter(cfg.RateLimitWrite),
			TrustProxy: cfg.TrustProxy,
		},
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: cfg.AllowCredentials,
		DefaultPageSize:  cfg.DefaultPageSize,
		MaxPageSize:      cfg.MaxPageSize,
	})

	errCh := make(chan error, 2)
	go func() {
		log.Info(ctx, "http server listening", logging.String("addr", httpLis.Addr().String()))
		if err := httpSrv.HTTPServer().Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var admin *adminrpc.Server
	if adminLis != nil {
		admin = adminrpc.NewServer(svc, log, collector)
		go admin.WatchReadiness(ctx, readinessInterval)
		go func() {
			if err := admin.Serve(adminLis); err != nil {
				errCh <- fmt.Errorf("admin server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	log.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if admin != nil {
		admin.Shutdown(shutdownCtx)
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "http shutdown incomplete", logging.Err(err))
	}
	stopTracker()
	<-trackerDone
	return runErr
}

func openStore(cfg config.Config) (kb.Store, error) {
	switch cfg.StoreBackend {
	case "", "memory":
		return kb.NewKnowledgeBase(), nil
	case "sqlite":
		store, err := kb.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
