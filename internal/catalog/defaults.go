package catalog

import (
	"time"

	"github.com/signalsfoundry/orbit-visualizer/model"
)

// DefaultSatellites returns the reference satellites seeded into an empty
// catalog, with periods derived from their altitudes.
func DefaultSatellites(createdAt time.Time) []model.Satellite {
	sats := []model.Satellite{
		{
			ID:           "iss",
			Name:         "International Space Station (ISS)",
			Type:         "Space Station",
			Altitude:     408,
			Inclination:  51.6,
			Eccentricity: 0.0002,
			Color:        "#00ff88",
			Description:  "The largest artificial object in space and the third brightest object in the sky",
		},
		{
			ID:           "hubble",
			Name:         "Hubble Space Telescope",
			Type:         "Observatory",
			Altitude:     547,
			Inclination:  28.5,
			Eccentricity: 0.0003,
			Color:        "#ff6b35",
			Description:  "Space telescope that has revolutionized astronomy since 1990",
		},
		{
			ID:           "gps-1",
			Name:         "GPS Satellite Block IIF-1",
			Type:         "Navigation",
			Altitude:     20200,
			Inclination:  55.0,
			Eccentricity: 0.02,
			Color:        "#4f9eff",
			Description:  "Global Positioning System satellite for navigation",
		},
		{
			ID:           "gps-2",
			Name:         "GPS Satellite Block IIF-2",
			Type:         "Navigation",
			Altitude:     20200,
			Inclination:  55.0,
			Eccentricity: 0.018,
			Color:        "#4f9eff",
			Description:  "Global Positioning System satellite for navigation",
		},
		{
			ID:           "gps-3",
			Name:         "GPS Satellite Block IIF-3",
			Type:         "Navigation",
			Altitude:     20200,
			Inclination:  55.0,
			Eccentricity: 0.021,
			Color:        "#4f9eff",
			Description:  "Global Positioning System satellite for navigation",
		},
		{
			ID:           "landsat8",
			Name:         "Landsat 8",
			Type:         "Earth Observation",
			Altitude:     705,
			Inclination:  98.2,
			Eccentricity: 0.0001,
			Color:        "#ff4081",
			Description:  "Earth observation satellite for land imaging",
		},
	}
	for i := range sats {
		sats[i].Active = true
		sats[i].CreatedAt = createdAt
		sats[i].CustomParams = map[string]any{}
		sats[i].RecomputePeriod()
	}
	return sats
}
