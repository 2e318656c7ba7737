package api

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"github.com/signalsfoundry/orbit-visualizer/internal/httputil"
	"github.com/signalsfoundry/orbit-visualizer/internal/logging"
)

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// Hijack lets the live feed upgrade through the recorder.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	sr.statusCode = http.StatusSwitchingProtocols
	return http.NewResponseController(sr.ResponseWriter).Hijack()
}

// loggingMiddleware assigns every request an ID, echoes it in the
// X-Request-ID header, stores a request-scoped logger on the context and
// logs the outcome. Probe requests log at debug level.
func loggingMiddleware(base logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := r.Context()
			if id := r.Header.Get(logging.RequestIDHeader); id != "" && len(id) <= 128 {
				ctx = logging.ContextWithRequestID(ctx, id)
			}
			ctx, log := logging.WithRequestLogger(ctx, base)
			ctx = logging.ContextWithLogger(ctx, log)
			w.Header().Set(logging.RequestIDHeader, logging.RequestIDFromContext(ctx))

			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(sr, r.WithContext(ctx))

			fields := []logging.Field{
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.Int("status", sr.statusCode),
				logging.Duration("duration", time.Since(start)),
				logging.String("remote_ip", httputil.ClientIP(r, false)),
			}
			if probePaths[r.URL.Path] {
				log.Debug(ctx, "request", fields...)
				return
			}
			log.Info(ctx, "request", fields...)
		})
	}
}
