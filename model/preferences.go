package model

import "time"

// Preferences is the singleton viewer preference record.
type Preferences struct {
	ID           string    `json:"id"`
	Theme        string    `json:"theme"`
	DefaultSpeed float64   `json:"default_speed"`
	ShowOrbits   bool      `json:"show_orbits"`
	CameraMode   string    `json:"camera_mode"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DefaultPreferences returns the preferences served before any update.
func DefaultPreferences() Preferences {
	return Preferences{
		Theme:        "dark",
		DefaultSpeed: 1.0,
		ShowOrbits:   true,
		CameraMode:   "free",
	}
}

// PreferencesUpdate is a partial update; nil fields are left unchanged.
type PreferencesUpdate struct {
	Theme        *string  `json:"theme,omitempty"`
	DefaultSpeed *float64 `json:"default_speed,omitempty"`
	ShowOrbits   *bool    `json:"show_orbits,omitempty"`
	CameraMode   *string  `json:"camera_mode,omitempty"`
}

// Apply returns p with the non-nil fields of u applied.
func (u PreferencesUpdate) Apply(p Preferences) Preferences {
	if u.Theme != nil {
		p.Theme = *u.Theme
	}
	if u.DefaultSpeed != nil {
		p.DefaultSpeed = *u.DefaultSpeed
	}
	if u.ShowOrbits != nil {
		p.ShowOrbits = *u.ShowOrbits
	}
	if u.CameraMode != nil {
		p.CameraMode = *u.CameraMode
	}
	return p
}
