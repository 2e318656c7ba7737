package core

import "math"

// EarthRadiusKm is the mean radius of the reference sphere (kilometres).
const EarthRadiusKm = 6371.0

// Vec3 is a Cartesian vector. Positions returned by the kinematics
// functions are expressed in scene units, not kilometres.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Norm()
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Scale multiplies every component by k.
func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// ApproxEqual reports whether every component of v and other differs by at
// most tol.
func (v Vec3) ApproxEqual(other Vec3, tol float64) bool {
	return math.Abs(v.X-other.X) <= tol &&
		math.Abs(v.Y-other.Y) <= tol &&
		math.Abs(v.Z-other.Z) <= tol
}

// rotateAboutX tilts an in-plane (x, y) point by the inclination angle.
// The tilted y component is returned as y, the out-of-plane one as z.
func rotateAboutX(x, y, inclinationRad float64) Vec3 {
	return Vec3{
		X: x,
		Y: y * math.Cos(inclinationRad),
		Z: y * math.Sin(inclinationRad),
	}
}
