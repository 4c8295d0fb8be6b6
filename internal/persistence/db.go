// Package persistence provides SQLite-based world storage. A world is fully
// determined by its seed, so only the seed, the generation parameters and a
// plate summary are stored; cells are regenerated on load.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/planetgrid/internal/world"
)

// Metadata keys.
const (
	MetaSeed        = "seed"
	MetaRadius      = "radius"
	MetaMaxCellEdge = "max_cell_edge"
	MetaCells       = "cells"
	MetaSavedAt     = "saved_at"
)

// DB wraps a SQLite connection for world persistence.
type DB struct {
	conn *sqlx.DB
}

// PlateRecord is one stored plate.
type PlateRecord struct {
	Index       int    `db:"idx" json:"index"`
	Major       bool   `db:"major" json:"major"`
	Continental bool   `db:"continental" json:"continental"`
	CenterCell  uint32 `db:"center_cell" json:"center_cell"`
	Cells       int    `db:"cell_count" json:"cells"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS plates (
		idx INTEGER PRIMARY KEY,
		major INTEGER NOT NULL,
		continental INTEGER NOT NULL,
		center_cell INTEGER NOT NULL,
		cell_count INTEGER NOT NULL
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveWorld replaces the stored world with g in one transaction.
func (db *DB) SaveWorld(g *world.Grid) error {
	if !g.Generated() {
		return errors.New("save world: grid not generated")
	}
	plates := g.Plates()
	counts := g.PlateCellCounts()
	cfg := g.Config()

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM plates"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO plates
		(idx, major, continental, center_cell, cell_count)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, p := range plates {
		if _, err := stmt.Exec(p.Index, p.Major, p.Continental, p.Center.ID, counts[i]); err != nil {
			return fmt.Errorf("insert plate %d: %w", p.Index, err)
		}
	}

	meta := map[string]string{
		MetaSeed:        strconv.FormatUint(g.Seed(), 10),
		MetaRadius:      strconv.FormatFloat(cfg.Radius, 'g', -1, 64),
		MetaMaxCellEdge: strconv.FormatFloat(cfg.MaxCellEdge, 'g', -1, 64),
		MetaCells:       strconv.Itoa(g.CellCount()),
		MetaSavedAt:     time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.Exec("INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("world saved", "seed", g.Seed(), "plates", len(plates))
	return nil
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value. Missing keys return sql.ErrNoRows.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// LoadSeed returns the stored world seed. ok is false when no world has
// been saved.
func (db *DB) LoadSeed() (seed uint64, ok bool, err error) {
	v, err := db.GetMeta(MetaSeed)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load seed: %w", err)
	}
	seed, err = strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("load seed: %w", err)
	}
	return seed, true, nil
}

// HasWorld reports whether a world has been saved.
func (db *DB) HasWorld() (bool, error) {
	_, ok, err := db.LoadSeed()
	return ok, err
}

// LoadPlates returns the stored plates in index order.
func (db *DB) LoadPlates() ([]PlateRecord, error) {
	var plates []PlateRecord
	err := db.conn.Select(&plates,
		"SELECT idx, major, continental, center_cell, cell_count FROM plates ORDER BY idx",
	)
	if err != nil {
		return nil, fmt.Errorf("load plates: %w", err)
	}
	return plates, nil
}

// VerifyPlates checks that g, regenerated from the stored seed, matches
// the stored plates.
func (db *DB) VerifyPlates(g *world.Grid) error {
	stored, err := db.LoadPlates()
	if err != nil {
		return err
	}
	plates := g.Plates()
	if len(stored) != len(plates) {
		return fmt.Errorf("verify plates: stored %d plates, grid has %d", len(stored), len(plates))
	}
	counts := g.PlateCellCounts()
	for i, rec := range stored {
		p := plates[i]
		if rec.Index != p.Index || rec.Major != p.Major || rec.Continental != p.Continental ||
			rec.CenterCell != p.Center.ID || rec.Cells != counts[i] {
			return fmt.Errorf("verify plates: plate %d stored %+v, grid has centre %d with %d cells",
				i, rec, p.Center.ID, counts[i])
		}
	}
	return nil
}
