// Package store keeps an append-only local copy of submitted recycling
// records, so a form is never lost when the backend is unreachable.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/menta2k/ecorecycle/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS recycling_records (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT NOT NULL UNIQUE,
	item            TEXT NOT NULL,
	bin             TEXT NOT NULL DEFAULT '',
	points          INTEGER NOT NULL DEFAULT 0,
	instructions    TEXT NOT NULL DEFAULT '',
	location        TEXT NOT NULL DEFAULT '',
	notes           TEXT NOT NULL DEFAULT '',
	image_filename  TEXT NOT NULL DEFAULT '',
	image_timestamp TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL,
	synced          INTEGER NOT NULL DEFAULT 0
);`

// Store is a SQLite-backed record log
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the store at path. ":memory:" gives a
// private in-memory store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	// a single connection keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores a record and returns it with its ID and creation time filled
// in when they were empty.
func (s *Store) Append(ctx context.Context, rec types.RecyclingRecord) (types.RecyclingRecord, error) {
	if rec.Item == "" {
		return rec, fmt.Errorf("record item is required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recycling_records
			(id, item, bin, points, instructions, location, notes, image_filename, image_timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Item, rec.Bin, rec.Points, rec.Instructions, rec.Location, rec.Notes,
		rec.ImageFilename, formatTime(rec.ImageTimestamp), formatTime(rec.CreatedAt))
	if err != nil {
		return rec, fmt.Errorf("failed to append record: %w", err)
	}
	return rec, nil
}

// MarkSynced flags a record as delivered to the backend
func (s *Store) MarkSynced(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `UPDATE recycling_records SET synced = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark record synced: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record %s not found", id)
	}
	return nil
}

// List returns the most recent records first. limit <= 0 returns all of them.
func (s *Store) List(ctx context.Context, limit int) ([]types.RecyclingRecord, error) {
	return s.query(ctx, `WHERE 1 = 1`, limit)
}

// Unsynced returns records not yet delivered to the backend, oldest first
func (s *Store) Unsynced(ctx context.Context) ([]types.RecyclingRecord, error) {
	recs, err := s.query(ctx, `WHERE synced = 0`, 0)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

func (s *Store) query(ctx context.Context, where string, limit int) ([]types.RecyclingRecord, error) {
	q := `SELECT id, item, bin, points, instructions, location, notes, image_filename, image_timestamp, created_at
		FROM recycling_records ` + where + ` ORDER BY seq DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var out []types.RecyclingRecord
	for rows.Next() {
		var (
			rec            types.RecyclingRecord
			imageTS, creat string
		)
		if err := rows.Scan(&rec.ID, &rec.Item, &rec.Bin, &rec.Points, &rec.Instructions,
			&rec.Location, &rec.Notes, &rec.ImageFilename, &imageTS, &creat); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.ImageTimestamp = parseTime(imageTS)
		rec.CreatedAt = parseTime(creat)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
