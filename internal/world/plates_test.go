package world

import (
	"errors"
	"image/color"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/talgya/planetgrid/internal/geom"
)

func TestPlateCountAndTiers(t *testing.T) {
	g := newTestGrid(t, 42)
	cfg := g.Config()
	plates := g.Plates()
	if len(plates) != cfg.MajorPlates+cfg.MinorPlates {
		t.Fatalf("plates = %d, want %d", len(plates), cfg.MajorPlates+cfg.MinorPlates)
	}
	for i, p := range plates {
		if p.Index != i {
			t.Fatalf("plate %d has index %d", i, p.Index)
		}
		if wantMajor := i < cfg.MajorPlates; p.Major != wantMajor {
			t.Fatalf("plate %d major = %v, want %v", i, p.Major, wantMajor)
		}
		if p.Center == nil {
			t.Fatalf("plate %d has no centre", i)
		}
	}
}

func TestContinentalAlternation(t *testing.T) {
	g := newTestGrid(t, 42)
	// 8 major: every other, from the first. 10 minor: every third.
	want := []bool{
		true, false, true, false, true, false, true, false,
		true, false, false, true, false, false, true, false, false, true,
	}
	for i, p := range g.Plates() {
		if p.Continental != want[i] {
			t.Fatalf("plate %d continental = %v, want %v", i, p.Continental, want[i])
		}
	}
}

func TestSeparationInvariant(t *testing.T) {
	for seed := uint64(1); seed <= 5; seed++ {
		g := newTestGrid(t, seed)
		cfg := g.Config()
		plates := g.Plates()
		for i := range plates {
			for j := i + 1; j < len(plates); j++ {
				if plates[i].Major != plates[j].Major {
					continue
				}
				limit := cfg.MinorSeparation
				if plates[i].Major {
					limit = cfg.MajorSeparation
				}
				d := geom.AngularDistance(plates[i].Center.Centroid, plates[j].Center.Centroid)
				if d < limit {
					t.Fatalf("seed %d: plates %d and %d are %v rad apart, want >= %v", seed, i, j, d, limit)
				}
			}
		}
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	a := newTestGrid(t, 1234)
	b := newTestGrid(t, 1234)

	if a.Seed() != 1234 || b.Seed() != 1234 {
		t.Fatalf("seeds = %d, %d", a.Seed(), b.Seed())
	}
	pa, pb := a.Plates(), b.Plates()
	for i := range pa {
		if pa[i].Center.ID != pb[i].Center.ID || pa[i].Major != pb[i].Major || pa[i].Continental != pb[i].Continental {
			t.Fatalf("plate %d differs: %+v vs %+v", i, pa[i], pb[i])
		}
	}
	for id := uint32(0); id < uint32(a.CellCount()); id++ {
		ca, _ := a.Cell(id)
		cb, _ := b.Cell(id)
		if ca.Plate != cb.Plate || ca.Elevation != cb.Elevation || ca.Centroid != cb.Centroid {
			t.Fatalf("cell %d differs: %+v vs %+v", id, ca, cb)
		}
	}

	c := newTestGrid(t, 4321)
	same := true
	for i, p := range c.Plates() {
		same = same && p.Center.ID == pa[i].Center.ID
	}
	if same {
		t.Fatalf("different seeds produced identical plate centres")
	}
}

func TestRegenerateReplacesPlates(t *testing.T) {
	g := newTestGrid(t, 1)
	first := g.Plates()[0].Center.ID
	if err := g.Generate(2); err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if err := g.Generate(1); err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if g.Seed() != 1 || g.Plates()[0].Center.ID != first {
		t.Fatalf("regenerating seed 1 gave seed %d, first centre %d (want %d)", g.Seed(), g.Plates()[0].Center.ID, first)
	}
}

func TestEveryCellIsLabelled(t *testing.T) {
	g := newTestGrid(t, 9)
	plates := g.Plates()
	mult := g.Config().MajorSizeMultiplier
	g.ForEachCell(func(c *Cell) {
		if c.Plate == NoPlate {
			t.Errorf("cell %d unlabelled", c.ID)
			return
		}
		if want := nearestPlate(c.Centroid, plates, mult); int(c.Plate) != want {
			t.Errorf("cell %d labelled %d, nearest is %d", c.ID, c.Plate, want)
		}
	})

	counts := g.PlateCellCounts()
	total := 0
	for i, n := range counts {
		total += n
		if plates[i].Major && n == 0 {
			t.Errorf("major plate %d owns no cells", i)
		}
	}
	if total != g.CellCount() {
		t.Fatalf("plate cell counts sum to %d, want %d", total, g.CellCount())
	}
}

func TestPlateCentreBelongsToItsPlate(t *testing.T) {
	g := newTestGrid(t, 9)
	plates := g.Plates()
	for i := range plates {
		p := &plates[i]
		got := g.PlateOf(p.Center)
		if got.Index == p.Index {
			continue
		}
		// Only an earlier plate seeded on the very same cell can win.
		if got.Index > p.Index || got.Center != p.Center {
			t.Fatalf("centre of plate %d labelled %d", p.Index, got.Index)
		}
	}
}

func fakePlate(index int, major bool, dir mgl64.Vec3) Plate {
	return Plate{Index: index, Major: major, Center: &Cell{Centroid: dir}}
}

func TestNearestPlateTieGoesToLowestIndex(t *testing.T) {
	query := mgl64.Vec3{0, 0, 1}
	plates := []Plate{
		fakePlate(0, false, mgl64.Vec3{1, 0, 1}),
		fakePlate(1, false, mgl64.Vec3{-1, 0, 1}),
		fakePlate(2, false, mgl64.Vec3{0, 1, 1}),
	}
	if got := nearestPlate(query, plates, 2); got != 0 {
		t.Fatalf("tie resolved to %d, want 0", got)
	}
	plates[0], plates[1] = plates[1], plates[0]
	if got := nearestPlate(query, plates, 2); got != 0 {
		t.Fatalf("tie resolved to %d after swap, want 0", got)
	}
}

func TestNearestPlateBiasesMajorPlates(t *testing.T) {
	query := mgl64.Vec3{0, 0, 1}
	major := fakePlate(0, true, geom.ToCartesian(0, 0.6, 1))
	minor := fakePlate(1, false, geom.ToCartesian(0, -0.4, 1))
	plates := []Plate{major, minor}

	if got := nearestPlate(query, plates, 2); got != 0 {
		t.Fatalf("biased nearest = %d, want the major plate", got)
	}
	if got := nearestPlate(query, plates, 1.2); got != 1 {
		t.Fatalf("weakly biased nearest = %d, want the minor plate", got)
	}
	if got := nearestPlate(query, nil, 2); got != NoPlate {
		t.Fatalf("nearest with no plates = %d", got)
	}
}

func TestPlacementFailsWhenSeparationImpossible(t *testing.T) {
	cfg := SmallTestConfig()
	cfg.MajorSeparation = 3.0
	cfg.MaxPlacementAttempts = 200
	g := NewGrid(cfg)

	err := g.Generate(1)
	if !errors.Is(err, ErrPlatePlacement) {
		t.Fatalf("Generate error = %v, want ErrPlatePlacement", err)
	}
	if g.Generated() {
		t.Fatalf("failed Generate left the grid generated")
	}
}

func TestGenerateRejectsNaNMultiplier(t *testing.T) {
	cfg := SmallTestConfig()
	cfg.MinorPlates = 0
	cfg.MajorSizeMultiplier = math.NaN()
	g := NewGrid(cfg)
	if err := g.Generate(1); err == nil {
		t.Fatalf("Generate accepted a NaN size multiplier")
	}
	if g.Generated() {
		t.Fatalf("rejected config left the grid generated")
	}
}

func TestFailedRegenerateKeepsPreviousWorld(t *testing.T) {
	g := newTestGrid(t, 5)
	before := g.Plates()[0].Center.ID
	labels := make([]int32, g.CellCount())
	for id := range labels {
		c, _ := g.Cell(uint32(id))
		labels[id] = c.Plate
	}

	g.cfg.MajorSeparation = 3.0
	g.cfg.MaxPlacementAttempts = 50
	if err := g.Generate(6); err == nil {
		t.Fatalf("expected placement failure")
	}
	if g.Seed() != 5 || g.Plates()[0].Center.ID != before {
		t.Fatalf("failed Generate replaced the world")
	}
	for id, want := range labels {
		if c, _ := g.Cell(uint32(id)); c.Plate != want {
			t.Fatalf("cell %d relabelled by a failed Generate", id)
		}
	}
}

func TestRegenerateReusesHierarchy(t *testing.T) {
	g := newTestGrid(t, 8)
	r := g.root
	if g.Stats().Reused {
		t.Fatalf("first Generate reported a reused hierarchy")
	}
	if err := g.Generate(9); err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if g.root != r || !g.Stats().Reused || g.Stats().Build != 0 {
		t.Fatalf("regenerate rebuilt the hierarchy: stats %+v", g.Stats())
	}

	fresh := newTestGrid(t, 9)
	for id := uint32(0); id < uint32(g.CellCount()); id++ {
		got, _ := g.Cell(id)
		want, _ := fresh.Cell(id)
		if got.Plate != want.Plate || got.Elevation != want.Elevation {
			t.Fatalf("cell %d = plate %d elev %v, fresh grid has plate %d elev %v",
				id, got.Plate, got.Elevation, want.Plate, want.Elevation)
		}
	}
	for i, p := range g.Plates() {
		if p.Center.ID != fresh.Plates()[i].Center.ID {
			t.Fatalf("plate %d centre %d, fresh grid has %d", i, p.Center.ID, fresh.Plates()[i].Center.ID)
		}
	}
}

func TestGeometryChangeRebuildsHierarchy(t *testing.T) {
	g := newTestGrid(t, 8)
	r := g.root
	g.cfg.MaxCellEdge /= 2
	if err := g.Generate(8); err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if g.root == r || g.Stats().Reused {
		t.Fatalf("finer cells kept the old hierarchy")
	}
	if g.CellCount() != g.cfg.ExpectedCells() {
		t.Fatalf("cells = %d, want %d", g.CellCount(), g.cfg.ExpectedCells())
	}
}

func TestReliefRange(t *testing.T) {
	g := newTestGrid(t, 77)
	varied := false
	first, _ := g.Cell(0)
	g.ForEachCell(func(c *Cell) {
		if c.Elevation < -1 || c.Elevation > 1 || math.IsNaN(c.Elevation) {
			t.Errorf("cell %d elevation %v", c.ID, c.Elevation)
		}
	})
	for id := uint32(1); id < uint32(g.CellCount()); id++ {
		c, _ := g.Cell(id)
		varied = varied || c.Elevation != first.Elevation
	}
	if !varied {
		t.Fatalf("relief produced a flat world")
	}
}

func TestReliefDisabledUsesCrustBase(t *testing.T) {
	cfg := SmallTestConfig()
	cfg.ReliefAmplitude = 0
	g := NewGrid(cfg)
	if err := g.Generate(77); err != nil {
		t.Fatalf("generate: %v", err)
	}
	g.ForEachCell(func(c *Cell) {
		want := oceanicBase
		if g.PlateOf(c).Continental {
			want = continentalBase
		}
		if c.Elevation != want {
			t.Errorf("cell %d elevation %v, want %v", c.ID, c.Elevation, want)
		}
	})
}

func TestRenderPlates(t *testing.T) {
	g := newTestGrid(t, 8)
	plates := g.Plates()
	allowed := map[color.RGBA]bool{markerColor: true}
	for i := range plates {
		allowed[PlateColor(&plates[i], len(plates))] = true
	}

	img := RenderPlates(g, 120, 60)
	if b := img.Bounds(); b.Dx() != 120 || b.Dy() != 60 {
		t.Fatalf("bounds = %v", b)
	}
	for y := 0; y < 60; y++ {
		for x := 0; x < 120; x++ {
			if c := img.RGBAAt(x, y); !allowed[c] {
				t.Fatalf("pixel (%d, %d) = %v is not a plate colour", x, y, c)
			}
		}
	}
}
