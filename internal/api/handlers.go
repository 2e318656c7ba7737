package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/signalsfoundry/orbit-visualizer/core"
	"github.com/signalsfoundry/orbit-visualizer/model"
)

const maxBodyBytes = 1 << 20

// ---- Probes ----

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.svc.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"detail": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": s.opts.Now(),
	})
}

// ---- Kinematics utilities ----

func (s *Server) handlePeriod(w http.ResponseWriter, r *http.Request) {
	altitude, err := queryFloat(r, "altitude", nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if altitude < 0 {
		s.writeError(w, r, invalidRequest("altitude must not be negative"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{
		"altitude":       altitude,
		"period_minutes": core.PeriodFromAltitude(altitude),
	})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var vals [3]float64
	for i, key := range []string{"altitude", "inclination", "eccentricity"} {
		v, err := queryFloat(r, key, nil)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		vals[i] = v
	}
	writeJSON(w, http.StatusOK, s.svc.Validate(vals[0], vals[1], vals[2]))
}

// ---- Satellites ----

func (s *Server) handleListSatellites(w http.ResponseWriter, r *http.Request) {
	limit, err := s.pageLimit(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sats, err := s.svc.ListSatellites(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sats == nil {
		sats = []model.Satellite{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"satellites": sats})
}

func (s *Server) handleGetSatellite(w http.ResponseWriter, r *http.Request) {
	sat, err := s.svc.GetSatellite(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"satellite": sat})
}

// createSatelliteRequest distinguishes absent fields from zero values.
type createSatelliteRequest struct {
	Name         *string        `json:"name"`
	Type         *string        `json:"type"`
	Altitude     *float64       `json:"altitude"`
	Inclination  *float64       `json:"inclination"`
	Eccentricity *float64       `json:"eccentricity"`
	Color        string         `json:"color"`
	Description  string         `json:"description"`
	Active       *bool          `json:"active"`
	CustomParams map[string]any `json:"custom_params"`
}

func (req createSatelliteRequest) toCreate() (model.SatelliteCreate, error) {
	switch {
	case req.Name == nil:
		return model.SatelliteCreate{}, invalidRequest("field %q is required", "name")
	case req.Type == nil:
		return model.SatelliteCreate{}, invalidRequest("field %q is required", "type")
	case req.Altitude == nil:
		return model.SatelliteCreate{}, invalidRequest("field %q is required", "altitude")
	case req.Inclination == nil:
		return model.SatelliteCreate{}, invalidRequest("field %q is required", "inclination")
	case req.Eccentricity == nil:
		return model.SatelliteCreate{}, invalidRequest("field %q is required", "eccentricity")
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return model.SatelliteCreate{
		Name:         *req.Name,
		Type:         *req.Type,
		Altitude:     *req.Altitude,
		Inclination:  *req.Inclination,
		Eccentricity: *req.Eccentricity,
		Color:        req.Color,
		Description:  req.Description,
		Active:       active,
		CustomParams: req.CustomParams,
	}, nil
}

func (s *Server) handleCreateSatellite(w http.ResponseWriter, r *http.Request) {
	var req createSatelliteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	in, err := req.toCreate()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sat, err := s.svc.CreateSatellite(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"satellite": sat, "id": sat.ID})
}

func (s *Server) handleUpdateSatellite(w http.ResponseWriter, r *http.Request) {
	var upd model.SatelliteUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		s.writeError(w, r, err)
		return
	}
	sat, err := s.svc.UpdateSatellite(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"satellite": sat})
}

func (s *Server) handleDeleteSatellite(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteSatellite(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleOrbitPath(w http.ResponseWriter, r *http.Request) {
	points, err := queryInt(r, "points", 100)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if points < 0 || points > maxPathPoints {
		s.writeError(w, r, invalidRequest("points must be between 0 and %d", maxPathPoints))
		return
	}
	id := r.PathValue("id")
	path, err := s.svc.OrbitPath(r.Context(), id, points)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"satellite_id": id, "points": path})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	zero := 0.0
	elapsed, err := queryFloat(r, "t", &zero)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.svc.PositionAt(r.Context(), r.PathValue("id"), elapsed)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q := model.PositionQuery{SatelliteID: id}

	var err error
	if q.Start, err = queryTime(r, "start"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if q.End, err = queryTime(r, "end"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if q.Start != nil && q.End != nil && q.End.Before(*q.Start) {
		s.writeError(w, r, invalidRequest("end must not be before start"))
		return
	}
	if q.Limit, err = s.pageLimit(r); err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := s.svc.GetSatellite(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	positions, err := s.svc.Positions(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if positions == nil {
		positions = []model.SatellitePosition{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

func (s *Server) handleStartTracking(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	started, err := s.svc.StartTracking(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tracking":     true,
		"satellite_id": id,
		"started":      started,
	})
}

func (s *Server) handleStopTracking(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.svc.StopTracking(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracking": false, "satellite_id": id})
}

// ---- Configurations ----

func (s *Server) handleListConfigurations(w http.ResponseWriter, r *http.Request) {
	limit, err := s.pageLimit(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cfgs, err := s.svc.ListConfigurations(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if cfgs == nil {
		cfgs = []model.Configuration{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"configurations": cfgs})
}

type configurationRequest struct {
	Name                *string        `json:"name"`
	Description         string         `json:"description"`
	SatelliteParams     map[string]any `json:"satellite_params"`
	TimeSpeed           *float64       `json:"time_speed"`
	SelectedSatelliteID *string        `json:"selected_satellite_id"`
}

func (req configurationRequest) toCreate() (model.ConfigurationCreate, error) {
	switch {
	case req.Name == nil:
		return model.ConfigurationCreate{}, invalidRequest("field %q is required", "name")
	case req.SatelliteParams == nil:
		return model.ConfigurationCreate{}, invalidRequest("field %q is required", "satellite_params")
	case req.SelectedSatelliteID == nil:
		return model.ConfigurationCreate{}, invalidRequest("field %q is required", "selected_satellite_id")
	}
	speed := 1.0
	if req.TimeSpeed != nil {
		speed = *req.TimeSpeed
	}
	return model.ConfigurationCreate{
		Name:                *req.Name,
		Description:         req.Description,
		SatelliteParams:     req.SatelliteParams,
		TimeSpeed:           speed,
		SelectedSatelliteID: *req.SelectedSatelliteID,
	}, nil
}

func (s *Server) handleSaveConfiguration(w http.ResponseWriter, r *http.Request) {
	var req configurationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	in, err := req.toCreate()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cfg, err := s.svc.SaveConfiguration(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"configuration": cfg, "id": cfg.ID})
}

func (s *Server) handleDeleteConfiguration(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteConfiguration(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ---- Preferences ----

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.svc.GetPreferences(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"preferences": prefs})
}

func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var upd model.PreferencesUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		s.writeError(w, r, err)
		return
	}
	prefs, err := s.svc.UpdatePreferences(r.Context(), upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"preferences": prefs})
}

// ---- Request parsing ----

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return invalidRequest("request body is empty")
		}
		return invalidRequest("malformed JSON body: %v", err)
	}
	return nil
}

// pageLimit reads ?limit=, defaulting to and capped by the configured
// page sizes.
func (s *Server) pageLimit(r *http.Request) (int, error) {
	limit, err := queryInt(r, "limit", s.opts.DefaultPageSize)
	if err != nil {
		return 0, err
	}
	if limit <= 0 {
		return 0, invalidRequest("limit must be positive")
	}
	if limit > s.opts.MaxPageSize {
		limit = s.opts.MaxPageSize
	}
	return limit, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidRequest("%s must be an integer", key)
	}
	return v, nil
}

// queryFloat parses a finite float query parameter. A nil def makes the
// parameter required.
func queryFloat(r *http.Request, key string, def *float64) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		if def == nil {
			return 0, invalidRequest("query parameter %q is required", key)
		}
		return *def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, invalidRequest("%s must be a finite number", key)
	}
	return v, nil
}

func queryTime(r *http.Request, key string) (*time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, invalidRequest("%s must be an RFC 3339 timestamp", key)
	}
	return &t, nil
}
