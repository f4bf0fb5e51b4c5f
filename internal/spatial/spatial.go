// Package spatial compares game locations.
package spatial

import (
	"math"

	"github.com/dmitrijs2005/charasync/internal/models"
)

// Match describes how closely two locations coincide.
type Match struct {
	SameMap      bool
	SameServer   bool
	SameInstance bool
}

// Classify compares a and b. SameInstance implies SameMap and SameServer.
func Classify(a, b models.Location) Match {
	m := Match{
		SameMap:    a.MapID == b.MapID,
		SameServer: a.ServerID == b.ServerID,
	}
	m.SameInstance = m.SameMap && m.SameServer &&
		a.InstanceID == b.InstanceID && SameHousing(a.Housing, b.Housing)
	return m
}

// SameHousing reports whether two optional housing coordinates are equal.
func SameHousing(a, b *models.Housing) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Distance is the euclidean distance between two positions.
func Distance(a, b models.Vec3) float64 {
	dx, dy, dz := b.X-a.X, b.Y-a.Y, b.Z-a.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Bearing returns the horizontal angle from an observer at from, facing
// facing radians, to the point to. Zero is straight ahead; the result lies
// in (-Pi, Pi]. Yaw is measured from +Z toward +X.
func Bearing(from models.Vec3, facing float64, to models.Vec3) float64 {
	dx, dz := to.X-from.X, to.Z-from.Z
	if dx == 0 && dz == 0 {
		return 0
	}
	return NormalizeAngle(math.Atan2(dx, dz) - facing)
}

// NormalizeAngle folds a into (-Pi, Pi].
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}
