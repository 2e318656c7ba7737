package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Collector bundles Prometheus metrics for the HTTP API, the admin gRPC
// surface and the satellite catalog.
type Collector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	CatalogSatellites     prometheus.Gauge
	CatalogConfigurations prometheus.Gauge
	ValidationFailures    prometheus.Counter
}

// NewCollector registers metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	httpRequests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests, labeled by status code, method, and route pattern.",
	}, []string{"code", "method", "path"}), "http_requests_total")
	if err != nil {
		return nil, err
	}

	httpDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"code", "method", "path"}), "http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	rpcRequests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admin_rpc_requests_total",
		Help: "Total number of handled admin RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "admin_rpc_requests_total")
	if err != nil {
		return nil, err
	}

	rpcDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "admin_rpc_duration_seconds",
		Help:    "Admin RPC latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"service", "method"}), "admin_rpc_duration_seconds")
	if err != nil {
		return nil, err
	}

	satellites, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_satellites",
		Help: "Current number of satellites in the catalog.",
	}), "catalog_satellites")
	if err != nil {
		return nil, err
	}
	configurations, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_configurations",
		Help: "Current number of saved configurations.",
	}), "catalog_configurations")
	if err != nil {
		return nil, err
	}
	failures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbital_validation_failures_total",
		Help: "Orbital parameter sets rejected by validation.",
	}), "orbital_validation_failures_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:              gatherer,
		HTTPRequests:          httpRequests,
		HTTPDurations:         httpDurations,
		RPCRequests:           rpcRequests,
		RPCDurations:          rpcDurations,
		CatalogSatellites:     satellites,
		CatalogConfigurations: configurations,
		ValidationFailures:    failures,
	}, nil
}

// InstrumentHandler records request counts and latencies for h under the
// given route pattern. Using the pattern rather than the raw URL keeps
// label cardinality bounded.
func (c *Collector) InstrumentHandler(path string, h http.Handler) http.Handler {
	if c == nil {
		return h
	}
	labels := prometheus.Labels{"path": path}
	return promhttp.InstrumentHandlerDuration(
		c.HTTPDurations.MustCurryWith(labels),
		promhttp.InstrumentHandlerCounter(c.HTTPRequests.MustCurryWith(labels), h),
	)
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *Collector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		c.RPCRequests.WithLabelValues(service, method, code).Inc()
		c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())

		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetCatalogCounts updates the catalog gauges after a mutation.
func (c *Collector) SetCatalogCounts(satellites, configurations int) {
	if c == nil {
		return
	}
	c.CatalogSatellites.Set(float64(satellites))
	c.CatalogConfigurations.Set(float64(configurations))
}

// IncValidationFailures counts one rejected parameter set.
func (c *Collector) IncValidationFailures() {
	if c == nil {
		return
	}
	c.ValidationFailures.Inc()
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
