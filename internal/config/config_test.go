package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/talgya/planetgrid/internal/world"
)

func TestDefaultMatchesWorldDefaults(t *testing.T) {
	if got, want := Default().World(), world.DefaultConfig(); got != want {
		t.Fatalf("Default().World() = %+v, want %+v", got, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if f.World() != world.DefaultConfig() || f.Server.Port != "8080" {
		t.Fatalf("missing file did not give defaults: %+v", f)
	}
}

func TestLoadOverridesOnlyGivenKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planetgrid.yaml")
	raw := `
grid:
  seed: 18446744073709551615
  max_cell_edge: 2000000
  minor_plates: 4
server:
  port: "9090"
database:
  path: /tmp/x.db
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if f.Grid.Seed == nil || *f.Grid.Seed != 18446744073709551615 {
		t.Fatalf("seed = %v", f.Grid.Seed)
	}
	w := f.World()
	if w.MaxCellEdge != 2_000_000 || w.MinorPlates != 4 {
		t.Fatalf("overrides not applied: %+v", w)
	}
	if w.MajorPlates != 8 || w.Radius != 6_371_000 {
		t.Fatalf("defaults lost: %+v", w)
	}
	if f.Server.Port != "9090" || f.Server.LocateBurst != 20 || f.Database.Path != "/tmp/x.db" {
		t.Fatalf("server/database = %+v / %+v", f.Server, f.Database)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("grid: [1, 2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("bad yaml accepted")
	}
}

func TestLoadedNaNFailsValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nan.yaml")
	raw := "grid:\n  major_size_multiplier: .nan\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := f.World().Validate(); err == nil {
		t.Fatalf("NaN multiplier passed validation")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PLANETGRID_SEED":      "42",
		"PLANETGRID_DB":        "/data/w.db",
		"PLANETGRID_PORT":      "7000",
		"PLANETGRID_ADMIN_KEY": "secret",
		"RANDOM_ORG_API_KEY":   "rk",

		"PLANETGRID_TRUSTED_PROXIES": "10.0.0.0/8,192.0.2.7",
	}
	f := Default()
	if err := f.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if f.Grid.Seed == nil || *f.Grid.Seed != 42 {
		t.Fatalf("seed = %v", f.Grid.Seed)
	}
	if f.Database.Path != "/data/w.db" || f.Server.Port != "7000" || f.Server.AdminKey != "secret" || f.Entropy.RandomOrgKey != "rk" {
		t.Fatalf("env not applied: %+v", f)
	}
	if p := f.Server.TrustedProxies; len(p) != 2 || p[0] != "10.0.0.0/8" || p[1] != "192.0.2.7" {
		t.Fatalf("trusted proxies = %q", p)
	}

	env["PLANETGRID_SEED"] = "-1"
	if err := f.ApplyEnv(func(k string) string { return env[k] }); err == nil {
		t.Fatalf("negative seed accepted")
	}
}
