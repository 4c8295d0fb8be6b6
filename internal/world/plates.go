package world

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/talgya/planetgrid/internal/geom"
)

// ErrPlatePlacement is returned when rejection sampling runs out of draws,
// meaning the separation thresholds are too large for the plate counts.
var ErrPlatePlacement = errors.New("plate placement failed")

// pcgStream is the PCG stream constant mixed into the world seed.
const pcgStream = 0x9e3779b97f4a7c15

// newRand returns the generator every plate draw comes from. The sequence
// is fixed by the seed across platforms and Go releases.
func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^pcgStream))
}

// placePlates seeds the major plates, then the minor plates. Each seed is a
// uniformly random point on the sphere, redrawn while its cell is closer
// than the tier's separation to an already placed plate of the same tier.
// Returns the plates and the total number of draws.
func placePlates(r *root, cfg Config, rng *rand.Rand) ([]Plate, int, error) {
	tiers := []struct {
		major      bool
		count      int
		separation float64
	}{
		{true, cfg.MajorPlates, cfg.MajorSeparation},
		{false, cfg.MinorPlates, cfg.MinorSeparation},
	}

	plates := make([]Plate, 0, cfg.MajorPlates+cfg.MinorPlates)
	draws := 0
	for _, tier := range tiers {
		tierStart := len(plates)
		for i := 0; i < tier.count; i++ {
			center, n, ok := drawCenter(r, rng, plates[tierStart:], tier.separation, cfg.MaxPlacementAttempts)
			draws += n
			if !ok {
				name := "minor"
				if tier.major {
					name = "major"
				}
				return nil, draws, fmt.Errorf("%w: cannot place %d %s plates with separation %.3f rad (placed %d after %d draws)",
					ErrPlatePlacement, tier.count, name, tier.separation, i, draws)
			}
			plates = append(plates, Plate{
				Index:       len(plates),
				Major:       tier.major,
				Continental: isContinental(tier.major, i),
				Center:      center,
			})
		}
	}
	return plates, draws, nil
}

// drawCenter rejection-samples one plate centre. Returns the cell, the
// number of draws used and whether a cell was accepted.
func drawCenter(r *root, rng *rand.Rand, placed []Plate, separation float64, maxAttempts int) (*Cell, int, bool) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		u1 := rng.Float64()
		u2 := rng.Float64()
		lat, lon := geom.UniformSpherePoint(u1, u2)
		cell := r.locate(geom.ToCartesian(lat, lon, 1))
		if farFromAll(cell, placed, separation) {
			return cell, attempt, true
		}
	}
	return nil, maxAttempts, false
}

func farFromAll(cell *Cell, placed []Plate, separation float64) bool {
	for i := range placed {
		if placed[i].Center == cell {
			return false
		}
		if geom.AngularDistance(cell.Centroid, placed[i].Center.Centroid) < separation {
			return false
		}
	}
	return true
}

// isContinental alternates crust type by index within the tier: every
// other major plate and every third minor plate is continental, starting
// with the first.
func isContinental(major bool, tierIndex int) bool {
	if major {
		return tierIndex%2 == 0
	}
	return tierIndex%3 == 0
}

// labelCells assigns every cell to its nearest plate, one task per face.
func labelCells(r *root, plates []Plate, majorMultiplier float64) {
	r.forEachCell(func(c *Cell) {
		c.Plate = int32(nearestPlate(c.Centroid, plates, majorMultiplier))
	})
}

// nearestPlate returns the index of the plate whose centre is angularly
// closest to dir, with distances to major plates divided by
// majorMultiplier. Ties go to the lowest index. Returns NoPlate when there
// are no plates.
func nearestPlate(dir mgl64.Vec3, plates []Plate, majorMultiplier float64) int {
	best, bestDist := NoPlate, math.Inf(1)
	for i := range plates {
		d := geom.AngularDistance(dir, plates[i].Center.Centroid)
		if plates[i].Major {
			d /= majorMultiplier
		}
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
