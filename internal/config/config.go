// Package config loads server settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/signalsfoundry/orbit-visualizer/internal/httputil"
)

// insecureDefaultSecret may not be used while auth is enabled.
const insecureDefaultSecret = "change-me"

// Config holds every server setting.
type Config struct {
	HTTPAddr      string
	AdminGRPCAddr string // empty disables the admin server

	StoreBackend string // memory | sqlite
	SQLitePath   string

	AllowedOrigins   []string
	AllowCredentials bool
	TrustProxy       bool

	LogLevel  string
	LogFormat string

	MaxPageSize     int
	DefaultPageSize int

	AuthEnabled      bool
	JWTSecret        string
	JWTSecretFile    string
	JWTAlgorithm     string
	JWTAudience      string
	JWTIssuer        string
	JWTRequiredRoles []string

	RateLimitDefault httputil.RateSpec
	RateLimitWrite   httputil.RateSpec

	MetricsEnabled bool

	OTelEnabled     bool
	OTelServiceName string
	OTelEndpoint    string
	OTelExporter    string
	OTelSampleRatio float64

	TrackerTick  time.Duration
	TrackerSpeed float64

	SceneEarthRadiusUnits float64
}

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// LoadEnv reads envFile (when present) into the process environment and
// then loads the configuration from it. Variables already set win over
// the file.
func LoadEnv(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return Load(os.LookupEnv)
}

// Load builds a Config from lookup. Every invalid setting is reported in
// the returned error.
func Load(lookup LookupFunc) (Config, error) {
	p := parser{lookup: lookup}

	cfg := Config{
		HTTPAddr:      p.str(":8080", "HTTP_ADDR", "http_addr"),
		AdminGRPCAddr: p.str(":50051", "ADMIN_GRPC_ADDR", "admin_grpc_addr"),

		StoreBackend: strings.ToLower(p.str("memory", "STORE_BACKEND", "store_backend")),
		SQLitePath:   p.str("orbit.db", "SQLITE_PATH", "DB_PATH", "sqlite_path"),

		AllowedOrigins:   p.list("ALLOWED_ORIGINS", "CORS_ORIGINS", "allowed_origins"),
		AllowCredentials: p.boolean(false, "ALLOW_CREDENTIALS", "allow_credentials"),
		TrustProxy:       p.boolean(false, "TRUST_PROXY", "trust_proxy"),

		LogLevel:  p.str("info", "LOG_LEVEL", "log_level"),
		LogFormat: p.str("text", "LOG_FORMAT", "log_format"),

		MaxPageSize:     p.integer(500, "MAX_PAGE_SIZE", "max_page_size"),
		DefaultPageSize: p.integer(100, "DEFAULT_PAGE_SIZE", "default_page_size"),

		AuthEnabled:      p.boolean(true, "AUTH_ENABLED", "auth_enabled"),
		JWTSecret:        p.str(insecureDefaultSecret, "JWT_SECRET", "jwt_secret"),
		JWTSecretFile:    p.str("", "JWT_SECRET_FILE", "jwt_secret_file"),
		JWTAlgorithm:     strings.ToUpper(p.str("HS256", "JWT_ALGORITHM", "jwt_algorithm")),
		JWTAudience:      p.str("", "JWT_AUDIENCE", "jwt_audience"),
		JWTIssuer:        p.str("", "JWT_ISSUER", "jwt_issuer"),
		JWTRequiredRoles: p.list("JWT_REQUIRED_ROLES", "jwt_required_roles"),

		RateLimitDefault: p.rate("100/minute", "RATE_LIMIT_DEFAULT", "rate_limit_default"),
		RateLimitWrite:   p.rate("20/minute", "RATE_LIMIT_WRITE", "RATE_LIMIT_AUTH", "rate_limit_auth"),

		MetricsEnabled: p.boolean(true, "METRICS_ENABLED", "metrics_enabled"),

		OTelEnabled:     p.boolean(false, "OTEL_ENABLED", "otel_enabled"),
		OTelServiceName: p.str("satellite-orbit-api", "OTEL_SERVICE_NAME", "otel_service_name"),
		OTelEndpoint:    p.str("", "OTEL_EXPORTER_OTLP_ENDPOINT", "otel_exporter_otlp_endpoint"),
		OTelExporter:    strings.ToLower(p.str("stdout", "OTEL_TRACES_EXPORTER", "otel_traces_exporter")),
		OTelSampleRatio: p.float(1.0, "OTEL_SAMPLE_RATIO", "otel_sample_ratio"),

		TrackerTick:  p.duration(time.Second, "TRACKER_TICK", "tracker_tick"),
		TrackerSpeed: p.float(1.0, "TRACKER_SPEED", "tracker_speed"),

		SceneEarthRadiusUnits: p.float(5, "SCENE_EARTH_RADIUS_UNITS", "scene_earth_radius_units"),
	}

	errs := p.errs
	errs = append(errs, cfg.resolveSecret())
	errs = append(errs, cfg.validate()...)
	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) resolveSecret() error {
	if c.JWTSecretFile == "" {
		return nil
	}
	raw, err := os.ReadFile(c.JWTSecretFile)
	if err != nil {
		return errors.New("JWT_SECRET_FILE must point to a readable file")
	}
	c.JWTSecret = strings.TrimSpace(string(raw))
	return nil
}

func (c Config) validate() []error {
	var errs []error
	if c.AuthEnabled && c.JWTSecret == insecureDefaultSecret {
		errs = append(errs, errors.New("JWT_SECRET must be set to a secure value when auth is enabled"))
	}
	switch c.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		errs = append(errs, fmt.Errorf("JWT_ALGORITHM %q is not supported", c.JWTAlgorithm))
	}
	switch c.StoreBackend {
	case "memory":
	case "sqlite":
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND %q must be memory or sqlite", c.StoreBackend))
	}
	if c.MaxPageSize <= 0 || c.DefaultPageSize <= 0 {
		errs = append(errs, errors.New("page sizes must be positive"))
	} else if c.DefaultPageSize > c.MaxPageSize {
		errs = append(errs, errors.New("DEFAULT_PAGE_SIZE must not exceed MAX_PAGE_SIZE"))
	}
	if c.OTelSampleRatio < 0 || c.OTelSampleRatio > 1 {
		errs = append(errs, errors.New("OTEL_SAMPLE_RATIO must be within [0, 1]"))
	}
	if c.TrackerTick <= 0 {
		errs = append(errs, errors.New("TRACKER_TICK must be positive"))
	}
	if c.TrackerSpeed <= 0 {
		errs = append(errs, errors.New("TRACKER_SPEED must be positive"))
	}
	if c.SceneEarthRadiusUnits <= 0 {
		errs = append(errs, errors.New("SCENE_EARTH_RADIUS_UNITS must be positive"))
	}
	return errs
}

// parser resolves aliased keys and records conversion errors.
type parser struct {
	lookup LookupFunc
	errs   []error
}

// get returns the first non-empty value among keys.
func (p *parser) get(keys ...string) (string, string, bool) {
	for _, k := range keys {
		if v, ok := p.lookup(k); ok && strings.TrimSpace(v) != "" {
			return k, strings.TrimSpace(v), true
		}
	}
	return "", "", false
}

func (p *parser) str(def string, keys ...string) string {
	if _, v, ok := p.get(keys...); ok {
		return v
	}
	return def
}

func (p *parser) list(keys ...string) []string {
	_, v, ok := p.get(keys...)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (p *parser) boolean(def bool, keys ...string) bool {
	k, v, ok := p.get(keys...)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be a boolean, got %q", k, v))
		return def
	}
	return b
}

func (p *parser) integer(def int, keys ...string) int {
	k, v, ok := p.get(keys...)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be an integer, got %q", k, v))
		return def
	}
	return n
}

func (p *parser) float(def float64, keys ...string) float64 {
	k, v, ok := p.get(keys...)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		p.errs = append(p.errs, fmt.Errorf("%s must be a finite number, got %q", k, v))
		return def
	}
	return f
}

func (p *parser) duration(def time.Duration, keys ...string) time.Duration {
	k, v, ok := p.get(keys...)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be a duration, got %q", k, v))
		return def
	}
	return d
}

func (p *parser) rate(def string, keys ...string) httputil.RateSpec {
	k, v, ok := p.get(keys...)
	if !ok {
		k, v = keys[0], def
	}
	spec, err := httputil.ParseRate(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", k, err))
	}
	return spec
}
