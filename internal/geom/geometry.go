// Package geom provides the spherical geometry used by the planet grid:
// lat/lon conversion, great-circle angles and ray–triangle tests.
// Latitude is measured north from the equator, longitude east from +Z,
// with +Y pointing at the north pole.
package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// intersectEpsilon is the relative determinant below which a ray is treated
// as parallel to a triangle's plane.
const intersectEpsilon = 1e-12

// ToCartesian converts latitude/longitude (radians) and a radius to a point.
func ToCartesian(lat, lon, radius float64) mgl64.Vec3 {
	cosLat := math.Cos(lat)
	return mgl64.Vec3{
		radius * math.Sin(lon) * cosLat,
		radius * math.Sin(lat),
		radius * math.Cos(lon) * cosLat,
	}
}

// ToSpherical is the inverse of ToCartesian. Longitude is normalised into
// [0, 2π). v must not be the zero vector.
func ToSpherical(v mgl64.Vec3) (lat, lon, radius float64) {
	radius = v.Len()
	if radius == 0 {
		panic("geom: ToSpherical of zero vector")
	}
	lat = math.Asin(clamp(v.Y()/radius, -1, 1))
	lon = math.Atan2(v.X(), v.Z())
	if lon < 0 {
		lon += 2 * math.Pi
	}
	if lon >= 2*math.Pi {
		lon -= 2 * math.Pi
	}
	return lat, lon, radius
}

// AngularDistance returns the great-circle angle in radians between the
// directions of a and b.
func AngularDistance(a, b mgl64.Vec3) float64 {
	// Dot products of unit vectors drift just outside [-1, 1].
	return math.Acos(clamp(a.Normalize().Dot(b.Normalize()), -1, 1))
}

// RayIntersectsTriangle reports whether the ray from the origin through dir
// hits the triangle. The ray is infinite in the forward direction only.
func RayIntersectsTriangle(dir mgl64.Vec3, tri [3]mgl64.Vec3) bool {
	e1 := tri[1].Sub(tri[0])
	e2 := tri[2].Sub(tri[0])
	p := dir.Cross(e2)
	det := e1.Dot(p)

	scale := e1.Len() * e2.Len() * dir.Len()
	if math.Abs(det) <= intersectEpsilon*scale {
		return false
	}
	inv := 1 / det

	// Ray origin is the sphere centre, so s = origin - v0 = -v0.
	s := tri[0].Mul(-1)
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		return false
	}
	q := s.Cross(e1)
	v := dir.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return false
	}
	t := e2.Dot(q) * inv
	return t >= 0
}

// UniformSpherePoint maps two uniforms in [0, 1) to a latitude/longitude
// that is uniformly distributed over the sphere's surface.
func UniformSpherePoint(u1, u2 float64) (lat, lon float64) {
	lon = 2 * math.Pi * u1
	lat = math.Acos(2*u2-1) - math.Pi/2
	return lat, lon
}

// ProjectOntoSphere scales v so it lies on the sphere of the given radius.
func ProjectOntoSphere(v mgl64.Vec3, radius float64) mgl64.Vec3 {
	return v.Normalize().Mul(radius)
}

// Midpoint returns the straight-line midpoint of a and b.
func Midpoint(a, b mgl64.Vec3) mgl64.Vec3 {
	return a.Add(b).Mul(0.5)
}

// TriangleCentroid returns the mean of the triangle's vertices projected
// onto the sphere of the given radius.
func TriangleCentroid(tri [3]mgl64.Vec3, radius float64) mgl64.Vec3 {
	return ProjectOntoSphere(tri[0].Add(tri[1]).Add(tri[2]), radius)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
