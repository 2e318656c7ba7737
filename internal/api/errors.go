package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/signalsfoundry/orbit-visualizer/core"
	"github.com/signalsfoundry/orbit-visualizer/internal/catalog"
	"github.com/signalsfoundry/orbit-visualizer/internal/logging"
	"github.com/signalsfoundry/orbit-visualizer/kb"
)

// ErrInvalidRequest marks malformed bodies, missing required fields and
// unparsable query parameters. It maps to 422.
var ErrInvalidRequest = errors.New("invalid request")

func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Detail any `json:"detail"`
}

type validationDetail struct {
	Errors []string `json:"errors"`
}

// toHTTPError maps service errors onto a status code and response detail.
func toHTTPError(err error) (int, any) {
	var verr *catalog.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, validationDetail{Errors: verr.Errors}

	case errors.Is(err, kb.ErrSatelliteNotFound):
		return http.StatusNotFound, "Satellite not found"
	case errors.Is(err, kb.ErrConfigurationNotFound):
		return http.StatusNotFound, "Configuration not found"

	case errors.Is(err, kb.ErrSatelliteExists),
		errors.Is(err, kb.ErrConfigurationExists),
		errors.Is(err, core.ErrNotTracked):
		return http.StatusConflict, err.Error()

	case errors.Is(err, core.ErrInvalidPeriod):
		return http.StatusBadRequest, err.Error()

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, core.ErrInvalidPointCount):
		return http.StatusUnprocessableEntity, err.Error()

	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "Request cancelled"

	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := toHTTPError(err)
	if status >= http.StatusInternalServerError {
		logging.LoggerFromContext(r.Context(), s.log).Error(r.Context(), "request failed",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Err(err),
		)
	}
	writeJSON(w, status, errorResponse{Detail: detail})
}

// writeJSON encodes body before committing status, so a value JSON cannot
// represent becomes a 500 instead of an empty success.
func writeJSON(w http.ResponseWriter, status int, body any) {
	raw, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		raw, _ = json.Marshal(errorResponse{Detail: "Internal server error"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(raw, '\n'))
}
