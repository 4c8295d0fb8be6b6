package persistence

import (
	"path/filepath"
	"strconv"
	"testing"

	"github.com/talgya/planetgrid/internal/world"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "world.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func generate(t *testing.T, seed uint64) *world.Grid {
	t.Helper()
	g := world.NewGrid(world.SmallTestConfig())
	if err := g.Generate(seed); err != nil {
		t.Fatalf("generate: %v", err)
	}
	return g
}

func TestEmptyDatabase(t *testing.T) {
	db := openTestDB(t)
	has, err := db.HasWorld()
	if err != nil || has {
		t.Fatalf("HasWorld = %v, %v on empty db", has, err)
	}
	plates, err := db.LoadPlates()
	if err != nil || len(plates) != 0 {
		t.Fatalf("LoadPlates = %v, %v on empty db", plates, err)
	}
}

func TestSaveAndRestoreWorld(t *testing.T) {
	db := openTestDB(t)
	// Above the signed 64-bit range.
	const seed = uint64(1<<63 + 12345)
	g := generate(t, seed)
	if err := db.SaveWorld(g); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := db.LoadSeed()
	if err != nil || !ok || got != seed {
		t.Fatalf("LoadSeed = %d, %v, %v", got, ok, err)
	}
	cells, err := db.GetMeta(MetaCells)
	if err != nil || cells != strconv.Itoa(g.CellCount()) {
		t.Fatalf("cells meta = %q, %v", cells, err)
	}

	plates, err := db.LoadPlates()
	if err != nil {
		t.Fatalf("load plates: %v", err)
	}
	if len(plates) != len(g.Plates()) {
		t.Fatalf("loaded %d plates, want %d", len(plates), len(g.Plates()))
	}
	for i, rec := range plates {
		p := g.Plates()[i]
		if rec.Index != i || rec.Major != p.Major || rec.Continental != p.Continental || rec.CenterCell != p.Center.ID {
			t.Fatalf("plate %d = %+v, want %+v", i, rec, p)
		}
	}

	restored := generate(t, got)
	if err := db.VerifyPlates(restored); err != nil {
		t.Fatalf("verify regenerated world: %v", err)
	}
	if err := db.VerifyPlates(generate(t, seed+1)); err == nil {
		t.Fatalf("verify accepted a different world")
	}
}

func TestSaveReplacesPreviousWorld(t *testing.T) {
	db := openTestDB(t)
	if err := db.SaveWorld(generate(t, 1)); err != nil {
		t.Fatalf("save: %v", err)
	}
	second := generate(t, 2)
	if err := db.SaveWorld(second); err != nil {
		t.Fatalf("save: %v", err)
	}
	seed, _, _ := db.LoadSeed()
	if seed != 2 {
		t.Fatalf("seed = %d, want 2", seed)
	}
	if err := db.VerifyPlates(second); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestSaveUngeneratedGrid(t *testing.T) {
	db := openTestDB(t)
	if err := db.SaveWorld(world.NewGrid(world.SmallTestConfig())); err == nil {
		t.Fatalf("saving an ungenerated grid succeeded")
	}
}

func TestMeta(t *testing.T) {
	db := openTestDB(t)
	if err := db.SaveMeta("k", "v1"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := db.SaveMeta("k", "v2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if v, err := db.GetMeta("k"); err != nil || v != "v2" {
		t.Fatalf("GetMeta = %q, %v", v, err)
	}
	if _, err := db.GetMeta("missing"); err == nil {
		t.Fatalf("missing key returned no error")
	}
}
