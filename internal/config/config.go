// Package config loads host settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/talgya/planetgrid/internal/world"
)

// File is the on-disk configuration.
type File struct {
	Grid     Grid     `yaml:"grid"`
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	Entropy  Entropy  `yaml:"entropy"`
}

// Grid holds the generation parameters. Seed, when set, fixes the world.
type Grid struct {
	Seed                 *uint64 `yaml:"seed"`
	Radius               float64 `yaml:"radius"`
	MaxCellEdge          float64 `yaml:"max_cell_edge"`
	MajorPlates          int     `yaml:"major_plates"`
	MinorPlates          int     `yaml:"minor_plates"`
	MajorSeparation      float64 `yaml:"major_separation"`
	MinorSeparation      float64 `yaml:"minor_separation"`
	MajorSizeMultiplier  float64 `yaml:"major_size_multiplier"`
	MaxPlacementAttempts int     `yaml:"max_placement_attempts"`
	ReliefOctaves        int     `yaml:"relief_octaves"`
	ReliefFrequency      float64 `yaml:"relief_frequency"`
	ReliefAmplitude      float64 `yaml:"relief_amplitude"`
}

type Server struct {
	Port         string  `yaml:"port"`
	AdminKey     string  `yaml:"admin_key"`
	LocatePerMin float64 `yaml:"locate_per_minute"`
	LocateBurst  int     `yaml:"locate_burst"`
	MaxMapPixels int     `yaml:"max_map_pixels"`

	// TrustedProxies lists the reverse proxies (IPs or CIDRs) whose
	// X-Forwarded-For header identifies the client. Empty trusts none.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type Database struct {
	Path string `yaml:"path"`
}

type Entropy struct {
	RandomOrgKey string `yaml:"random_org_key"`
}

// Default returns the configuration used when no file is present.
func Default() File {
	w := world.DefaultConfig()
	return File{
		Grid: Grid{
			Radius:               w.Radius,
			MaxCellEdge:          w.MaxCellEdge,
			MajorPlates:          w.MajorPlates,
			MinorPlates:          w.MinorPlates,
			MajorSeparation:      w.MajorSeparation,
			MinorSeparation:      w.MinorSeparation,
			MajorSizeMultiplier:  w.MajorSizeMultiplier,
			MaxPlacementAttempts: w.MaxPlacementAttempts,
			ReliefOctaves:        w.ReliefOctaves,
			ReliefFrequency:      w.ReliefFrequency,
			ReliefAmplitude:      w.ReliefAmplitude,
		},
		Server: Server{
			Port:         "8080",
			LocatePerMin: 120,
			LocateBurst:  20,
			MaxMapPixels: 4096 * 2048,
		},
		Database: Database{Path: "data/planetgrid.db"},
	}
}

// Load reads path over the defaults. Keys absent from the file keep their
// default values and a missing file yields the defaults.
func Load(path string) (File, error) {
	f := Default()
	if path == "" {
		return f, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return f, err
	}
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// ApplyEnv overrides settings from PLANETGRID_* variables and
// RANDOM_ORG_API_KEY. getenv is usually os.Getenv.
func (f *File) ApplyEnv(getenv func(string) string) error {
	if v := getenv("PLANETGRID_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("PLANETGRID_SEED: %w", err)
		}
		f.Grid.Seed = &seed
	}
	if v := getenv("PLANETGRID_DB"); v != "" {
		f.Database.Path = v
	}
	if v := getenv("PLANETGRID_PORT"); v != "" {
		f.Server.Port = v
	}
	if v := getenv("PLANETGRID_ADMIN_KEY"); v != "" {
		f.Server.AdminKey = v
	}
	if v := getenv("PLANETGRID_TRUSTED_PROXIES"); v != "" {
		f.Server.TrustedProxies = strings.Split(v, ",")
	}
	if v := getenv("RANDOM_ORG_API_KEY"); v != "" {
		f.Entropy.RandomOrgKey = v
	}
	return nil
}

// World converts the grid section into generation parameters.
func (f File) World() world.Config {
	g := f.Grid
	return world.Config{
		Radius:               g.Radius,
		MaxCellEdge:          g.MaxCellEdge,
		MajorPlates:          g.MajorPlates,
		MinorPlates:          g.MinorPlates,
		MajorSeparation:      g.MajorSeparation,
		MinorSeparation:      g.MinorSeparation,
		MajorSizeMultiplier:  g.MajorSizeMultiplier,
		MaxPlacementAttempts: g.MaxPlacementAttempts,
		ReliefOctaves:        g.ReliefOctaves,
		ReliefFrequency:      g.ReliefFrequency,
		ReliefAmplitude:      g.ReliefAmplitude,
	}
}
