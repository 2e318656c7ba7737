package httputil

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateSpec is a request budget such as "100/minute".
type RateSpec struct {
	Events int
	Per    time.Duration
}

// ParseRate parses "N/second", "N/minute" or "N/hour". The unit may be
// given in plural form.
func ParseRate(spec string) (RateSpec, error) {
	count, unit, ok := strings.Cut(strings.TrimSpace(spec), "/")
	if !ok {
		return RateSpec{}, fmt.Errorf("rate %q: expected N/unit", spec)
	}
	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || n <= 0 {
		return RateSpec{}, fmt.Errorf("rate %q: count must be a positive integer", spec)
	}

	var per time.Duration
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(unit)), "s") {
	case "second":
		per = time.Second
	case "minute":
		per = time.Minute
	case "hour":
		per = time.Hour
	default:
		return RateSpec{}, fmt.Errorf("rate %q: unit must be second, minute or hour", spec)
	}
	return RateSpec{Events: n, Per: per}, nil
}

// Limit converts the spec into a token refill rate.
func (s RateSpec) Limit() rate.Limit {
	if s.Events <= 0 || s.Per <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(s.Events) / s.Per.Seconds())
}

// Burst allows the whole budget to be spent at once.
func (s RateSpec) Burst() int {
	return int(math.Max(1, float64(s.Events)))
}

func (s RateSpec) String() string {
	unit := "second"
	switch s.Per {
	case time.Minute:
		unit = "minute"
	case time.Hour:
		unit = "hour"
	}
	return fmt.Sprintf("%d/%s", s.Events, unit)
}

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewIPRateLimiter creates a limiter applying spec to every client.
func NewIPRateLimiter(spec RateSpec) *IPRateLimiter {
	return &IPRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    spec.Limit(),
		burst:    spec.Burst(),
	}
}

// GetLimiter returns the bucket for ip, creating it on first use.
func (l *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[ip] = limiter
	}
	return limiter
}

// Allow reports whether ip may make a request now.
func (l *IPRateLimiter) Allow(ip string) bool {
	return l.GetLimiter(ip).Allow()
}

// RateLimitConfig selects limiters for the rate limit middleware.
type RateLimitConfig struct {
	// Default applies to every request.
	Default *IPRateLimiter
	// Write additionally applies to POST, PUT, PATCH and DELETE.
	Write *IPRateLimiter
	// TrustProxy honours X-Forwarded-For when identifying clients.
	TrustProxy bool
	// Exempt paths bypass limiting entirely.
	Exempt map[string]bool
}

// RateLimitMiddleware rejects requests over budget with 429 and a
// Retry-After header.
func RateLimitMiddleware(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Exempt[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			ip := ClientIP(r, cfg.TrustProxy)
			if cfg.Default != nil && !cfg.Default.Allow(ip) {
				tooManyRequests(w, cfg.Default)
				return
			}
			if cfg.Write != nil && isWrite(r.Method) && !cfg.Write.Allow(ip) {
				tooManyRequests(w, cfg.Write)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func tooManyRequests(w http.ResponseWriter, l *IPRateLimiter) {
	retry := 1
	if l.limit > 0 && l.limit != rate.Inf {
		retry = int(math.Ceil(1 / float64(l.limit)))
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]string{"detail": "Rate limit exceeded"})
}
