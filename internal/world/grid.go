package world

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/talgya/planetgrid/internal/geom"
)

// Grid owns the planet's node hierarchy and its plates.
type Grid struct {
	cfg    Config
	root   *root
	plates []Plate
	seed   uint64
	stats  GenStats

	// Geometry the current root was built for.
	builtRadius float64
	builtDepth  int
}

// GenStats records what the last Generate call did.
type GenStats struct {
	Cells     int
	Draws     int           // Candidate points drawn while placing plates
	Reused    bool          // The hierarchy was kept from the previous Generate
	Build     time.Duration // Zero when Reused
	Placement time.Duration
	Labelling time.Duration
	Relief    time.Duration
}

// Total returns the wall-clock time of the whole generation.
func (s GenStats) Total() time.Duration {
	return s.Build + s.Placement + s.Labelling + s.Relief
}

// NewGrid returns an empty grid. Nothing is built until Generate.
func NewGrid(cfg Config) *Grid {
	return &Grid{cfg: cfg}
}

// Generate builds the hierarchy and assigns plates for seed. The result is
// fully determined by seed and the grid's Config. The hierarchy does not
// depend on the seed, so a later call with the same radius and depth keeps
// it and relabels its cells in place; only a geometry change builds a new
// one. On error the previous state is kept.
func (g *Grid) Generate(seed uint64) error {
	if err := g.cfg.Validate(); err != nil {
		return err
	}

	var stats GenStats
	depth := g.cfg.LeafDepth()
	r := g.root
	if r != nil && g.builtRadius == g.cfg.Radius && g.builtDepth == depth {
		stats.Reused = true
	} else {
		start := time.Now()
		r = buildRoot(g.cfg)
		stats.Build = time.Since(start)
	}
	stats.Cells = r.offsets[faceCount]

	// Placement only reads the hierarchy, so a failure here leaves a
	// reused root exactly as it was.
	start := time.Now()
	plates, draws, err := placePlates(r, g.cfg, newRand(seed))
	stats.Draws = draws
	stats.Placement = time.Since(start)
	if err != nil {
		return fmt.Errorf("generate seed %d: %w", seed, err)
	}

	start = time.Now()
	labelCells(r, plates, g.cfg.MajorSizeMultiplier)
	stats.Labelling = time.Since(start)

	start = time.Now()
	applyRelief(r, plates, g.cfg, seed)
	stats.Relief = time.Since(start)

	g.root, g.plates, g.seed, g.stats = r, plates, seed, stats
	g.builtRadius, g.builtDepth = g.cfg.Radius, depth

	slog.Info("grid generated",
		"seed", seed,
		"cells", stats.Cells,
		"depth", depth,
		"reused", stats.Reused,
		"plates", len(plates),
		"draws", draws,
		"elapsed", stats.Total().Round(time.Millisecond),
	)
	return nil
}

// Generated reports whether Generate has succeeded at least once.
func (g *Grid) Generated() bool {
	return g.root != nil
}

// Seed returns the seed of the last successful Generate.
func (g *Grid) Seed() uint64 {
	return g.seed
}

// Config returns the generation parameters.
func (g *Grid) Config() Config {
	return g.cfg
}

// Depth returns the number of subdivision levels below the faces.
func (g *Grid) Depth() int {
	return g.cfg.LeafDepth()
}

// Stats returns timings and counts from the last successful Generate.
func (g *Grid) Stats() GenStats {
	return g.stats
}

// Plates returns the plates in creation order: all major plates, then all
// minor plates.
func (g *Grid) Plates() []Plate {
	return g.plates
}

// Locate returns the cell containing the direction dir. It panics if the
// grid has not been generated or dir is the zero vector.
func (g *Grid) Locate(dir mgl64.Vec3) *Cell {
	g.mustBeGenerated()
	if dir.Len() == 0 {
		panic("world: Locate with zero direction")
	}
	return g.root.locate(dir)
}

// LocateLatLon returns the cell at latitude/longitude (radians).
func (g *Grid) LocateLatLon(lat, lon float64) *Cell {
	return g.Locate(geom.ToCartesian(lat, lon, 1))
}

// ForEachCell calls fn for every cell. Calls for different top-level faces
// run concurrently, so fn must only touch the cell it is given (or
// synchronise). ForEachCell returns after every call has completed.
func (g *Grid) ForEachCell(fn func(*Cell)) {
	g.mustBeGenerated()
	g.root.forEachCell(fn)
}

// CellCount returns the number of leaf cells, always 20·4^k.
func (g *Grid) CellCount() int {
	g.mustBeGenerated()
	return g.root.countCells()
}

// Cell returns the cell with the given ID.
func (g *Grid) Cell(id uint32) (*Cell, bool) {
	if g.root == nil {
		return nil, false
	}
	c, _, ok := g.root.cell(id)
	return c, ok
}

// CellVertices returns the triangle of the leaf that owns c.
func (g *Grid) CellVertices(c *Cell) [3]mgl64.Vec3 {
	g.mustBeGenerated()
	_, f, ok := g.root.cell(c.ID)
	if !ok {
		panic(fmt.Sprintf("world: cell %d does not belong to this grid", c.ID))
	}
	return f.nodes[c.leaf].verts
}

// PlateOf returns the plate c was assigned to, or nil before labelling.
func (g *Grid) PlateOf(c *Cell) *Plate {
	if c.Plate < 0 || int(c.Plate) >= len(g.plates) {
		return nil
	}
	return &g.plates[c.Plate]
}

// PlateCellCounts returns how many cells each plate owns, indexed like
// Plates.
func (g *Grid) PlateCellCounts() []int {
	g.mustBeGenerated()
	var perFace [faceCount][]int
	g.root.forEachFace(func(i int, f *face) {
		counts := make([]int, len(g.plates))
		f.forEachCell(func(c *Cell) {
			if c.Plate >= 0 {
				counts[c.Plate]++
			}
		})
		perFace[i] = counts
	})

	total := make([]int, len(g.plates))
	for _, counts := range perFace {
		for p, n := range counts {
			total[p] += n
		}
	}
	return total
}

func (g *Grid) mustBeGenerated() {
	if g.root == nil {
		panic("world: grid used before Generate")
	}
}

// String returns a summary of the grid.
func (g *Grid) String() string {
	if g.root == nil {
		return "Grid(empty)"
	}
	return fmt.Sprintf("Grid(seed=%d, cells=%d, plates=%d)", g.seed, g.root.offsets[faceCount], len(g.plates))
}
