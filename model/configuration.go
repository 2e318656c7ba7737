package model

import "time"

// Configuration is a saved simulation setup.
type Configuration struct {
	ID                  string         `json:"id"`
	Name                string         `json:"name"`
	Description         string         `json:"description"`
	SatelliteParams     map[string]any `json:"satellite_params"`
	TimeSpeed           float64        `json:"time_speed"`
	SelectedSatelliteID string         `json:"selected_satellite_id"`
	SavedAt             time.Time      `json:"saved_at"`
}

// ConfigurationCreate carries the client-supplied fields of a configuration.
type ConfigurationCreate struct {
	Name                string
	Description         string
	SatelliteParams     map[string]any
	TimeSpeed           float64
	SelectedSatelliteID string
}
