package world

import (
	"fmt"
	"math"

	"github.com/talgya/planetgrid/internal/geom"
)

// maxLeafDepth bounds the subdivision depth (20·4^11 ≈ 84M cells).
const maxLeafDepth = 11

// Config holds grid and plate generation parameters.
type Config struct {
	Radius      float64 // Sphere radius in metres
	MaxCellEdge float64 // Subdivision stops once a triangle's edge is at or below this (metres)

	MajorPlates          int     // Placed first, in plate-list order
	MinorPlates          int     // Placed after the major plates
	MajorSeparation      float64 // Minimum angle between major plate centres (radians)
	MinorSeparation      float64 // Minimum angle between minor plate centres (radians)
	MajorSizeMultiplier  float64 // Divides the distance to major plate centres during labelling
	MaxPlacementAttempts int     // Draws allowed per plate before giving up

	ReliefOctaves   int
	ReliefFrequency float64 // Base noise frequency over the unit sphere
	ReliefAmplitude float64 // 0 disables relief
}

// DefaultConfig returns the full-resolution planet: an Earth-sized sphere
// with cells no wider than 50 km.
func DefaultConfig() Config {
	return Config{
		Radius:               6_371_000,
		MaxCellEdge:          50_000,
		MajorPlates:          8,
		MinorPlates:          10,
		MajorSeparation:      0.5,
		MinorSeparation:      0.25,
		MajorSizeMultiplier:  2.0,
		MaxPlacementAttempts: 10_000,
		ReliefOctaves:        5,
		ReliefFrequency:      1.5,
		ReliefAmplitude:      0.4,
	}
}

// SmallTestConfig returns a coarse planet (1,280 cells) for rapid iteration.
func SmallTestConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxCellEdge = 2_000_000
	return cfg
}

// Validate reports configuration values that cannot produce a grid.
func (c Config) Validate() error {
	switch {
	case !finite(c.Radius) || c.Radius <= 0:
		return fmt.Errorf("world config: radius must be positive and finite, got %v", c.Radius)
	case c.MaxCellEdge <= 0 || math.IsNaN(c.MaxCellEdge):
		return fmt.Errorf("world config: max cell edge must be positive, got %v", c.MaxCellEdge)
	case c.LeafDepth() > maxLeafDepth:
		return fmt.Errorf("world config: max cell edge %v m needs depth %d, limit is %d", c.MaxCellEdge, c.LeafDepth(), maxLeafDepth)
	case c.MajorPlates < 0 || c.MinorPlates < 0:
		return fmt.Errorf("world config: plate counts must not be negative (major=%d, minor=%d)", c.MajorPlates, c.MinorPlates)
	case c.MajorPlates+c.MinorPlates == 0:
		return fmt.Errorf("world config: at least one plate is required")
	case !finite(c.MajorSeparation) || !finite(c.MinorSeparation) || c.MajorSeparation < 0 || c.MinorSeparation < 0:
		return fmt.Errorf("world config: separations must be finite and not negative (major=%v, minor=%v)", c.MajorSeparation, c.MinorSeparation)
	case !finite(c.MajorSizeMultiplier) || c.MajorSizeMultiplier <= 1:
		return fmt.Errorf("world config: major size multiplier must be greater than 1, got %v", c.MajorSizeMultiplier)
	case c.MaxPlacementAttempts < 1:
		return fmt.Errorf("world config: max placement attempts must be at least 1, got %d", c.MaxPlacementAttempts)
	case !finite(c.ReliefAmplitude) || c.ReliefAmplitude < 0:
		return fmt.Errorf("world config: relief amplitude must be finite and not negative, got %v", c.ReliefAmplitude)
	case c.ReliefAmplitude > 0 && (c.ReliefOctaves < 1 || !finite(c.ReliefFrequency) || c.ReliefFrequency <= 0):
		return fmt.Errorf("world config: relief needs at least one octave and a positive frequency")
	}
	return nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// FaceEdge returns the edge length of one icosahedron face on this sphere.
func (c Config) FaceEdge() float64 {
	return geom.ToCartesian(math.Pi/2, 0, c.Radius).Sub(geom.ToCartesian(apexLat, 0, c.Radius)).Len()
}

// LeafDepth returns how many subdivisions separate a top-level face from
// its leaves. Each face holds 4^LeafDepth cells.
func (c Config) LeafDepth() int {
	depth := 1
	for edge := c.FaceEdge(); edge > c.MaxCellEdge && depth <= maxLeafDepth; edge /= 2 {
		depth++
	}
	return depth
}

// ExpectedCells returns 20·4^LeafDepth.
func (c Config) ExpectedCells() int {
	return 20 << (2 * c.LeafDepth())
}
