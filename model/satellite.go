package model

import (
	"time"

	"github.com/signalsfoundry/orbit-visualizer/core"
)

// DefaultSatelliteColor is used when a satellite is created without a colour.
const DefaultSatelliteColor = "#00ff88"

// Satellite is a stored satellite record. Period is always derived from the
// altitude on the server side.
type Satellite struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	Altitude     float64        `json:"altitude"`     // km
	Inclination  float64        `json:"inclination"`  // degrees
	Eccentricity float64        `json:"eccentricity"` // stored, not used for motion
	Period       float64        `json:"period"`       // minutes
	Color        string         `json:"color"`
	Description  string         `json:"description"`
	Active       bool           `json:"active"`
	CreatedAt    time.Time      `json:"created_at"`
	CustomParams map[string]any `json:"custom_params"`
}

// Elements returns the orbital elements used for motion. Numeric entries
// named altitude, inclination, eccentricity or period in CustomParams
// override the stored values. An altitude override without a period
// override also moves the period to the overridden altitude.
func (s Satellite) Elements() core.OrbitalElements {
	el := core.OrbitalElements{
		Altitude:     s.Altitude,
		Inclination:  s.Inclination,
		Eccentricity: s.Eccentricity,
		Period:       s.Period,
	}
	if v, ok := numericParam(s.CustomParams, "altitude"); ok {
		el.Altitude = v
		el.Period = core.PeriodFromAltitude(v)
	}
	if v, ok := numericParam(s.CustomParams, "inclination"); ok {
		el.Inclination = v
	}
	if v, ok := numericParam(s.CustomParams, "eccentricity"); ok {
		el.Eccentricity = v
	}
	if v, ok := numericParam(s.CustomParams, "period"); ok {
		el.Period = v
	}
	return el
}

// RecomputePeriod sets Period from Altitude.
func (s *Satellite) RecomputePeriod() {
	s.Period = core.PeriodFromAltitude(s.Altitude)
}

// SatelliteCreate carries the fields a client supplies for a new satellite.
type SatelliteCreate struct {
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	Altitude     float64        `json:"altitude"`
	Inclination  float64        `json:"inclination"`
	Eccentricity float64        `json:"eccentricity"`
	Color        string         `json:"color"`
	Description  string         `json:"description"`
	Active       bool           `json:"active"`
	CustomParams map[string]any `json:"custom_params,omitempty"`
}

// SatelliteUpdate is a partial update; nil fields are left unchanged.
type SatelliteUpdate struct {
	Name         *string  `json:"name,omitempty"`
	Description  *string  `json:"description,omitempty"`
	Altitude     *float64 `json:"altitude,omitempty"`
	Inclination  *float64 `json:"inclination,omitempty"`
	Eccentricity *float64 `json:"eccentricity,omitempty"`
	Active       *bool    `json:"active,omitempty"`
	Color        *string  `json:"color,omitempty"`
}

// TouchesOrbit reports whether the update changes an orbital parameter.
func (u SatelliteUpdate) TouchesOrbit() bool {
	return u.Altitude != nil || u.Inclination != nil || u.Eccentricity != nil
}

// Apply returns s with the non-nil fields of u applied. Period is
// recomputed when the altitude is part of the update.
func (u SatelliteUpdate) Apply(s Satellite) Satellite {
	if u.Name != nil {
		s.Name = *u.Name
	}
	if u.Description != nil {
		s.Description = *u.Description
	}
	if u.Altitude != nil {
		s.Altitude = *u.Altitude
		s.RecomputePeriod()
	}
	if u.Inclination != nil {
		s.Inclination = *u.Inclination
	}
	if u.Eccentricity != nil {
		s.Eccentricity = *u.Eccentricity
	}
	if u.Active != nil {
		s.Active = *u.Active
	}
	if u.Color != nil {
		s.Color = *u.Color
	}
	return s
}

func numericParam(params map[string]any, key string) (float64, bool) {
	raw, ok := params[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
