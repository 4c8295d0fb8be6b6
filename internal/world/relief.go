// Crust relief using layered simplex noise over the unit sphere.
// Runs after labelling: continental plates sit above sea level, oceanic
// plates below, and noise roughens both.
package world

import (
	"github.com/go-gl/mathgl/mgl64"
	opensimplex "github.com/ojrac/opensimplex-go"
)

const (
	continentalBase = 0.3
	oceanicBase     = -0.5
)

// applyRelief sets every cell's Elevation. A zero amplitude leaves the
// crust base without noise.
func applyRelief(r *root, plates []Plate, cfg Config, seed uint64) {
	var noise opensimplex.Noise
	if cfg.ReliefAmplitude > 0 {
		noise = opensimplex.NewNormalized(int64(seed))
	}

	r.forEachCell(func(c *Cell) {
		elev := oceanicBase
		if c.Plate >= 0 && plates[c.Plate].Continental {
			elev = continentalBase
		}
		if noise != nil {
			n := octaveNoise(noise, c.Centroid.Normalize(), cfg.ReliefOctaves, cfg.ReliefFrequency, 0.5)
			elev += cfg.ReliefAmplitude * (2*n - 1)
		}
		c.Elevation = clampUnit(elev)
	})
}

// octaveNoise generates fractal noise by layering multiple frequencies.
// Returns a value in [0, 1].
func octaveNoise(noise opensimplex.Noise, p mgl64.Vec3, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval3(p.X()*frequency, p.Y()*frequency, p.Z()*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

func clampUnit(x float64) float64 {
	if x < -1 {
		return -1
	}
	if x > 1 {
		return 1
	}
	return x
}
