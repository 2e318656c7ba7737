package core

import (
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// GeoPoint is a sub-satellite point on the WGS84 ellipsoid.
type GeoPoint struct {
	LatitudeDeg  float64 `json:"latitude"`
	LongitudeDeg float64 `json:"longitude"`
	AltitudeKm   float64 `json:"altitude"`
}

// GroundPoint returns the point beneath the satellite elapsedSeconds after
// epoch. The simplified orbit frame is treated as inertial with its z axis
// on Earth's pole; Earth's rotation enters through the Greenwich sidereal
// angle at epoch+elapsed.
func GroundPoint(el OrbitalElements, elapsedSeconds float64, epoch time.Time) (GeoPoint, error) {
	km, err := inertialPosition(el, elapsedSeconds)
	if err != nil {
		return GeoPoint{}, err
	}

	// Elapsed is added in days; a time.Duration overflows past ~292 years.
	gmst := satellite.ThetaG_JD(julianDay(epoch.UTC()) + elapsedSeconds/86400)

	alt, _, ll := satellite.ECIToLLA(satellite.Vector3{X: km.X, Y: km.Y, Z: km.Z}, gmst)
	return GeoPoint{
		LatitudeDeg:  ll.Latitude * 180 / math.Pi,
		LongitudeDeg: normalizeLongitude(ll.Longitude * 180 / math.Pi),
		AltitudeKm:   alt,
	}, nil
}

// julianDay keeps sub-second precision, which satellite.JDay drops.
func julianDay(t time.Time) float64 {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()
	frac := float64(t.Nanosecond()) / 1e9 / 86400
	return satellite.JDay(year, int(month), day, hour, min, sec) + frac
}

// normalizeLongitude wraps degrees into (-180, 180].
func normalizeLongitude(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg > 180 {
		deg -= 360
	} else if deg <= -180 {
		deg += 360
	}
	return deg
}
