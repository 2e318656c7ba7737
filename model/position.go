package model

import (
	"time"

	"github.com/signalsfoundry/orbit-visualizer/core"
)

// SatellitePosition is one recorded sample of a tracked satellite.
type SatellitePosition struct {
	ID             string     `json:"id"`
	SatelliteID    string     `json:"satellite_id"`
	Timestamp      time.Time  `json:"timestamp"`
	ElapsedSeconds float64    `json:"elapsed_seconds"`
	Position       core.Vec3  `json:"position"`
	Velocity       *core.Vec3 `json:"velocity,omitempty"`
	Altitude       float64    `json:"altitude"`
	Latitude       float64    `json:"latitude"`
	Longitude      float64    `json:"longitude"`
}

// PositionQuery selects recorded positions of one satellite. Start and End
// are inclusive bounds; a zero Limit means no limit.
type PositionQuery struct {
	SatelliteID string
	Start       *time.Time
	End         *time.Time
	Limit       int
}

// Matches reports whether p satisfies the query's satellite and time bounds.
func (q PositionQuery) Matches(p SatellitePosition) bool {
	if p.SatelliteID != q.SatelliteID {
		return false
	}
	if q.Start != nil && p.Timestamp.Before(*q.Start) {
		return false
	}
	if q.End != nil && p.Timestamp.After(*q.End) {
		return false
	}
	return true
}
