package core

import (
	"errors"
	"math"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

func TestGroundPoint_StartsOnEquator(t *testing.T) {
	epoch := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	gp, err := GroundPoint(issElements, 0, epoch)
	if err != nil {
		t.Fatalf("GroundPoint: %v", err)
	}
	if math.Abs(gp.LatitudeDeg) > 1e-9 {
		t.Fatalf("latitude at t=0 = %v, want 0", gp.LatitudeDeg)
	}
	// The WGS84 equatorial radius is ~7 km larger than the mean sphere.
	if math.Abs(gp.AltitudeKm-(issElements.Altitude-7.137)) > 0.05 {
		t.Fatalf("altitude = %v km, want ~%v", gp.AltitudeKm, issElements.Altitude-7.137)
	}
}

func TestGroundPoint_LatitudeBoundedByInclination(t *testing.T) {
	epoch := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	maxLat := 0.0
	for i := 0; i < 200; i++ {
		gp, err := GroundPoint(issElements, float64(i)*30, epoch)
		if err != nil {
			t.Fatalf("GroundPoint: %v", err)
		}
		maxLat = math.Max(maxLat, math.Abs(gp.LatitudeDeg))
	}
	// Geodetic latitude slightly exceeds the geocentric inclination.
	if maxLat > issElements.Inclination+0.5 || maxLat < issElements.Inclination-1 {
		t.Fatalf("max latitude %v, want close to inclination %v", maxLat, issElements.Inclination)
	}
}

func TestGroundPoint_EarthRotatesUnderOrbit(t *testing.T) {
	epoch := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	periodSec := issElements.Period * 60

	a, _ := GroundPoint(issElements, 0, epoch)
	b, _ := GroundPoint(issElements, periodSec, epoch)
	if math.Abs(a.LatitudeDeg-b.LatitudeDeg) > 1e-6 {
		t.Fatalf("latitude after one orbit %v, want %v", b.LatitudeDeg, a.LatitudeDeg)
	}
	if math.Abs(a.LongitudeDeg-b.LongitudeDeg) < 1 {
		t.Fatalf("longitude did not drift after one orbit: %v vs %v", a.LongitudeDeg, b.LongitudeDeg)
	}
}

func TestGroundPoint_InvalidPeriod(t *testing.T) {
	el := issElements
	el.Period = 0
	if _, err := GroundPoint(el, 0, time.Now()); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestNormalizeLongitude(t *testing.T) {
	for in, want := range map[float64]float64{0: 0, 190: -170, -190: 170, 540: 180, -180: 180, 359: -1} {
		if got := normalizeLongitude(in); math.Abs(got-want) > 1e-9 {
			t.Fatalf("normalizeLongitude(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestGroundPoint_LargeElapsedKeepsSiderealAngle(t *testing.T) {
	epoch := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	const elapsed = 1e10

	gp, err := GroundPoint(issElements, elapsed, epoch)
	if err != nil {
		t.Fatalf("GroundPoint: %v", err)
	}

	km, err := inertialPosition(issElements, elapsed)
	if err != nil {
		t.Fatalf("inertialPosition: %v", err)
	}
	gmst := satellite.ThetaG_JD(julianDay(epoch) + elapsed/86400)
	_, _, ll := satellite.ECIToLLA(satellite.Vector3{X: km.X, Y: km.Y, Z: km.Z}, gmst)
	wantLon := normalizeLongitude(ll.Longitude * 180 / math.Pi)

	if math.Abs(gp.LongitudeDeg-wantLon) > 1e-6 {
		t.Fatalf("longitude at t=%g = %v, want %v", elapsed, gp.LongitudeDeg, wantLon)
	}

	// One second later the Earth has turned by about 0.004 degrees.
	next, _ := GroundPoint(issElements, elapsed+1, epoch)
	if d := math.Abs(normalizeLongitude(next.LongitudeDeg - gp.LongitudeDeg)); d > 0.1 {
		t.Fatalf("longitude jumped %v degrees in one second", d)
	}
}
