package core

import (
	"errors"
	"fmt"
	"math"
)

const (
	// EarthMu is Earth's standard gravitational parameter in km^3/s^2.
	EarthMu = 398600.4418

	// DefaultEarthRadiusUnits is the radius of the rendered globe in scene units.
	DefaultEarthRadiusUnits = 5.0

	twoPi = 2 * math.Pi
)

var (
	// ErrInvalidPeriod is returned when an orbital period is not a positive,
	// finite number of minutes.
	ErrInvalidPeriod = errors.New("orbital period must be positive")
	// ErrInvalidPointCount is returned when a negative number of path samples
	// is requested.
	ErrInvalidPointCount = errors.New("point count must not be negative")
)

// OrbitalElements describes a simplified circular orbit.
//
// Eccentricity is carried so it can be validated and stored, but the
// position and path functions always treat the orbit as circular.
type OrbitalElements struct {
	Altitude     float64 `json:"altitude"`     // km above the reference sphere
	Inclination  float64 `json:"inclination"`  // degrees
	Eccentricity float64 `json:"eccentricity"` // unused by the position math
	Period       float64 `json:"period"`       // minutes
}

// Scene maps kilometres onto the units of a rendered scene whose Earth has a
// radius of EarthRadiusUnits.
type Scene struct {
	EarthRadiusUnits float64
}

// DefaultScene renders Earth with a radius of five scene units.
var DefaultScene = Scene{EarthRadiusUnits: DefaultEarthRadiusUnits}

// Scale returns the kilometre to scene-unit conversion factor.
func (s Scene) Scale() float64 {
	units := s.EarthRadiusUnits
	if units <= 0 || math.IsNaN(units) || math.IsInf(units, 0) {
		units = DefaultEarthRadiusUnits
	}
	return units / EarthRadiusKm
}

// Position returns the scene position of a satellite elapsedSeconds after
// it crossed the +x axis.
func (s Scene) Position(el OrbitalElements, elapsedSeconds float64) (Vec3, error) {
	km, err := inertialPosition(el, elapsedSeconds)
	if err != nil {
		return Vec3{}, err
	}
	return km.Scale(s.Scale()), nil
}

// Path samples pointCount positions evenly over one orbital period, in
// ascending time order. The first sample is not repeated at the end; callers
// drawing a closed loop append it themselves.
func (s Scene) Path(el OrbitalElements, pointCount int) ([]Vec3, error) {
	if pointCount < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPointCount, pointCount)
	}
	if pointCount == 0 {
		return []Vec3{}, nil
	}
	periodSec, err := periodSeconds(el.Period)
	if err != nil {
		return nil, err
	}

	step := periodSec / float64(pointCount)
	points := make([]Vec3, 0, pointCount)
	for i := 0; i < pointCount; i++ {
		p, err := s.Position(el, float64(i)*step)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

// Velocity returns the velocity in scene units per second. The magnitude
// is the circular orbital speed sqrt(mu/r) and the direction is the in-plane
// tangent tilted by the inclination.
func (s Scene) Velocity(el OrbitalElements, elapsedSeconds float64) (Vec3, error) {
	theta, err := phaseAngle(el.Period, elapsedSeconds)
	if err != nil {
		return Vec3{}, err
	}
	speed := math.Sqrt(EarthMu / orbitRadius(el))
	v := rotateAboutX(-speed*math.Sin(theta), speed*math.Cos(theta), degToRad(el.Inclination))
	return v.Scale(s.Scale()), nil
}

// ComputePosition evaluates Scene.Position on the default scene.
func ComputePosition(el OrbitalElements, elapsedSeconds float64) (Vec3, error) {
	return DefaultScene.Position(el, elapsedSeconds)
}

// GeneratePath evaluates Scene.Path on the default scene.
func GeneratePath(el OrbitalElements, pointCount int) ([]Vec3, error) {
	return DefaultScene.Path(el, pointCount)
}

// ComputeVelocity evaluates Scene.Velocity on the default scene.
func ComputeVelocity(el OrbitalElements, elapsedSeconds float64) (Vec3, error) {
	return DefaultScene.Velocity(el, elapsedSeconds)
}

// PeriodFromAltitude returns the period, in minutes, of a circular orbit at
// the given altitude: T = 2π sqrt(a³/μ) with a = R + altitude.
func PeriodFromAltitude(altitude float64) float64 {
	a := EarthRadiusKm + altitude
	return twoPi * math.Sqrt(a*a*a/EarthMu) / 60
}

// inertialPosition is the unscaled position in kilometres.
func inertialPosition(el OrbitalElements, elapsedSeconds float64) (Vec3, error) {
	theta, err := phaseAngle(el.Period, elapsedSeconds)
	if err != nil {
		return Vec3{}, err
	}
	r := orbitRadius(el)
	return rotateAboutX(r*math.Cos(theta), r*math.Sin(theta), degToRad(el.Inclination)), nil
}

// phaseAngle is the mean anomaly n*t reduced to [0, 2π). It is used directly
// as the orbital-plane angle.
func phaseAngle(periodMinutes, elapsedSeconds float64) (float64, error) {
	periodSec, err := periodSeconds(periodMinutes)
	if err != nil {
		return 0, err
	}
	meanMotion := twoPi / periodSec
	theta := math.Mod(meanMotion*elapsedSeconds, twoPi)
	if theta < 0 {
		theta += twoPi
	}
	return theta, nil
}

func periodSeconds(periodMinutes float64) (float64, error) {
	if !(periodMinutes > 0) || math.IsInf(periodMinutes, 0) {
		return 0, fmt.Errorf("%w: got %v minutes", ErrInvalidPeriod, periodMinutes)
	}
	return periodMinutes * 60, nil
}

func orbitRadius(el OrbitalElements) float64 {
	return EarthRadiusKm + el.Altitude
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180
}
