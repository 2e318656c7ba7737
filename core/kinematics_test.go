package core

import (
	"errors"
	"math"
	"testing"
)

var issElements = OrbitalElements{
	Altitude:     408,
	Inclination:  51.6,
	Eccentricity: 0.0002,
	Period:       92.68,
}

func TestComputePosition_AtZeroLiesOnXAxis(t *testing.T) {
	pos, err := ComputePosition(issElements, 0)
	if err != nil {
		t.Fatalf("ComputePosition: %v", err)
	}

	wantX := (EarthRadiusKm + issElements.Altitude) * DefaultEarthRadiusUnits / EarthRadiusKm
	if math.Abs(pos.X-wantX) > 1e-12 || pos.Y != 0 || pos.Z != 0 {
		t.Fatalf("position at t=0 = %+v, want (%v, 0, 0)", pos, wantX)
	}
}

func TestComputePosition_QuarterOrbitAppliesInclination(t *testing.T) {
	quarter := issElements.Period * 60 / 4
	pos, err := ComputePosition(issElements, quarter)
	if err != nil {
		t.Fatalf("ComputePosition: %v", err)
	}

	r := (EarthRadiusKm + issElements.Altitude) * DefaultScene.Scale()
	inc := issElements.Inclination * math.Pi / 180
	want := Vec3{X: 0, Y: r * math.Cos(inc), Z: r * math.Sin(inc)}
	if !pos.ApproxEqual(want, 1e-9) {
		t.Fatalf("quarter-orbit position = %+v, want %+v", pos, want)
	}
}

func TestComputePosition_IsPeriodic(t *testing.T) {
	periodSec := issElements.Period * 60
	for _, elapsed := range []float64{0, 17, 1234.5, 4000, 86400} {
		a, err := ComputePosition(issElements, elapsed)
		if err != nil {
			t.Fatalf("ComputePosition(%v): %v", elapsed, err)
		}
		b, err := ComputePosition(issElements, elapsed+periodSec)
		if err != nil {
			t.Fatalf("ComputePosition(%v): %v", elapsed+periodSec, err)
		}
		if !a.ApproxEqual(b, 1e-9) {
			t.Fatalf("t=%v: %+v != %+v one period later", elapsed, a, b)
		}
	}
}

func TestComputePosition_IsIdempotent(t *testing.T) {
	a, _ := ComputePosition(issElements, 777.7)
	b, _ := ComputePosition(issElements, 777.7)
	if a != b {
		t.Fatalf("repeated calls differ: %+v vs %+v", a, b)
	}
}

func TestComputePosition_IgnoresEccentricity(t *testing.T) {
	elliptic := issElements
	elliptic.Eccentricity = 0.7

	for _, elapsed := range []float64{0, 300, 2500} {
		a, _ := ComputePosition(issElements, elapsed)
		b, _ := ComputePosition(elliptic, elapsed)
		if a != b {
			t.Fatalf("t=%v: eccentricity changed the position: %+v vs %+v", elapsed, a, b)
		}
	}
}

func TestComputePosition_RadiusIsConstant(t *testing.T) {
	r := (EarthRadiusKm + issElements.Altitude) * DefaultScene.Scale()
	for i := 0; i < 50; i++ {
		pos, _ := ComputePosition(issElements, float64(i)*97.3)
		if math.Abs(pos.Norm()-r) > 1e-9 {
			t.Fatalf("sample %d has radius %v, want %v", i, pos.Norm(), r)
		}
	}
}

func TestComputePosition_NegativeElapsedWraps(t *testing.T) {
	periodSec := issElements.Period * 60
	a, _ := ComputePosition(issElements, -100)
	b, _ := ComputePosition(issElements, periodSec-100)
	if !a.ApproxEqual(b, 1e-9) {
		t.Fatalf("negative elapsed: %+v, want %+v", a, b)
	}
}

func TestComputePosition_RejectsInvalidPeriod(t *testing.T) {
	for _, period := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		el := issElements
		el.Period = period
		if _, err := ComputePosition(el, 10); !errors.Is(err, ErrInvalidPeriod) {
			t.Fatalf("period %v: expected ErrInvalidPeriod, got %v", period, err)
		}
	}
}

func TestScene_CustomRadiusScalesLinearly(t *testing.T) {
	big := Scene{EarthRadiusUnits: 10}
	a, _ := DefaultScene.Position(issElements, 500)
	b, _ := big.Position(issElements, 500)
	if !b.ApproxEqual(a.Scale(2), 1e-12) {
		t.Fatalf("scene with radius 10 = %+v, want %+v", b, a.Scale(2))
	}
}

func TestScene_NonPositiveRadiusFallsBackToDefault(t *testing.T) {
	if got := (Scene{}).Scale(); got != DefaultScene.Scale() {
		t.Fatalf("zero scene scale = %v, want %v", got, DefaultScene.Scale())
	}
}

func TestGeneratePath_ReturnsExactlyNPoints(t *testing.T) {
	for _, n := range []int{1, 2, 36, 100, 361} {
		path, err := GeneratePath(issElements, n)
		if err != nil {
			t.Fatalf("GeneratePath(%d): %v", n, err)
		}
		if len(path) != n {
			t.Fatalf("GeneratePath(%d) returned %d points", n, len(path))
		}
		first, _ := ComputePosition(issElements, 0)
		if path[0] != first {
			t.Fatalf("first point %+v, want %+v", path[0], first)
		}
	}
}

func TestGeneratePath_SamplesEvenlyWithoutClosingPoint(t *testing.T) {
	const n = 8
	path, err := GeneratePath(issElements, n)
	if err != nil {
		t.Fatalf("GeneratePath: %v", err)
	}

	step := issElements.Period * 60 / n
	for i, p := range path {
		want, _ := ComputePosition(issElements, float64(i)*step)
		if p != want {
			t.Fatalf("point %d = %+v, want %+v", i, p, want)
		}
	}
	if path[n-1].ApproxEqual(path[0], 1e-6) {
		t.Fatalf("last point duplicates the first; path must not be closed")
	}
}

func TestGeneratePath_ZeroPointsIsEmpty(t *testing.T) {
	path, err := GeneratePath(issElements, 0)
	if err != nil {
		t.Fatalf("GeneratePath(0): %v", err)
	}
	if path == nil || len(path) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", path)
	}

	// A zero-point request never divides by the period either.
	el := issElements
	el.Period = 0
	if _, err := GeneratePath(el, 0); err != nil {
		t.Fatalf("GeneratePath(0) with zero period: %v", err)
	}
}

func TestGeneratePath_Errors(t *testing.T) {
	if _, err := GeneratePath(issElements, -1); !errors.Is(err, ErrInvalidPointCount) {
		t.Fatalf("expected ErrInvalidPointCount, got %v", err)
	}

	el := issElements
	el.Period = -1
	if _, err := GeneratePath(el, 10); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestPeriodFromAltitude(t *testing.T) {
	tests := []struct {
		name     string
		altitude float64
		want     float64
		tol      float64
	}{
		{name: "ISS", altitude: 408, want: 92.6, tol: 0.1},
		{name: "surface grazing", altitude: 0, want: 84.5, tol: 0.2},
		{name: "GPS", altitude: 20200, want: 718, tol: 1},
		{name: "geostationary", altitude: 35786, want: 1436, tol: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := PeriodFromAltitude(tc.altitude)
			if math.Abs(got-tc.want) > tc.tol {
				t.Fatalf("PeriodFromAltitude(%v) = %v, want %v ± %v", tc.altitude, got, tc.want, tc.tol)
			}
		})
	}
}

func TestComputeVelocity_TangentialAndCircularSpeed(t *testing.T) {
	for _, elapsed := range []float64{0, 600, 3210} {
		pos, _ := ComputePosition(issElements, elapsed)
		vel, err := ComputeVelocity(issElements, elapsed)
		if err != nil {
			t.Fatalf("ComputeVelocity: %v", err)
		}

		if dot := pos.Dot(vel); math.Abs(dot) > 1e-12 {
			t.Fatalf("t=%v: velocity not perpendicular to position (dot=%v)", elapsed, dot)
		}
		wantSpeed := math.Sqrt(EarthMu/(EarthRadiusKm+issElements.Altitude)) * DefaultScene.Scale()
		if math.Abs(vel.Norm()-wantSpeed) > 1e-12 {
			t.Fatalf("t=%v: speed %v, want %v", elapsed, vel.Norm(), wantSpeed)
		}
	}
}
