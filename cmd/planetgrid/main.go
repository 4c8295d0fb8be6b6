// Command planetgrid generates the geodesic planet grid and serves it over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/talgya/planetgrid/internal/api"
	"github.com/talgya/planetgrid/internal/config"
	"github.com/talgya/planetgrid/internal/entropy"
	"github.com/talgya/planetgrid/internal/metrics"
	"github.com/talgya/planetgrid/internal/persistence"
	"github.com/talgya/planetgrid/internal/world"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	_ = godotenv.Load(".env")

	// ── Configuration ─────────────────────────────────────────────────
	cfgPath := os.Getenv("PLANETGRID_CONFIG")
	if cfgPath == "" {
		cfgPath = "planetgrid.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		slog.Error("bad environment", "error", err)
		os.Exit(1)
	}
	gridCfg := cfg.World()
	if err := gridCfg.Validate(); err != nil {
		slog.Error("invalid grid config", "error", err)
		os.Exit(1)
	}

	// ── Database ──────────────────────────────────────────────────────
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		os.MkdirAll(dir, 0755)
	}
	db, err := persistence.Open(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Database.Path)

	// ── Seed: config/env, then the saved world, then fresh entropy ───
	rng := entropy.NewClient(cfg.Entropy.RandomOrgKey)
	if !rng.Enabled() {
		slog.Warn("RANDOM_ORG_API_KEY not set, fresh seeds come from crypto/rand")
	}

	stored, hasStored, err := db.LoadSeed()
	if err != nil {
		slog.Error("failed to read saved world", "error", err)
		os.Exit(1)
	}
	var seed uint64
	source := "entropy"
	switch {
	case cfg.Grid.Seed != nil:
		seed, source = *cfg.Grid.Seed, "config"
	case hasStored:
		seed, source = stored, "database"
	default:
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		seed = rng.Seed(ctx)
		cancel()
	}

	// ── World ─────────────────────────────────────────────────────────
	slog.Info("generating world...", "seed", seed, "source", source,
		"depth", gridCfg.LeafDepth(), "expected_cells", gridCfg.ExpectedCells())
	grid := world.NewGrid(gridCfg)
	err = grid.Generate(seed)
	metrics.ObserveGeneration(grid, err)
	if err != nil {
		slog.Error("world generation failed", "error", err)
		os.Exit(1)
	}

	counts := grid.PlateCellCounts()
	for i, p := range grid.Plates() {
		slog.Info("plate",
			"index", p.Index,
			"tier", p.Tier(),
			"crust", p.Crust(),
			"cells", counts[i],
			"share", fmt.Sprintf("%.3f", float64(counts[i])/float64(grid.CellCount())),
		)
	}

	if source == "database" {
		if err := db.VerifyPlates(grid); err != nil {
			slog.Warn("saved world differs from regenerated world, overwriting", "error", err)
			source = "regenerated"
		}
	}
	if source != "database" {
		if err := db.SaveWorld(grid); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.Server.AdminKey == "" {
		slog.Warn("PLANETGRID_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}
	apiServer := &api.Server{
		Grid:            grid,
		DB:              db,
		Entropy:         rng,
		Port:            cfg.Server.Port,
		AdminKey:        cfg.Server.AdminKey,
		LocatePerMinute: cfg.Server.LocatePerMin,
		LocateBurst:     cfg.Server.LocateBurst,
		MaxMapPixels:    cfg.Server.MaxMapPixels,
		TrustedProxies:  cfg.Server.TrustedProxies,
	}
	apiServer.Start()

	fmt.Printf("\n%s ready.\n", grid)
	fmt.Printf("API: http://localhost:%s/api/v1/status\n", cfg.Server.Port)

	// ── Run until signalled ───────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	fmt.Println("Server stopped.")
}
