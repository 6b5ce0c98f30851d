package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/biedra-watchdog/internal/domain"
)

// timeLayout is fixed-width so recorded_at sorts chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// FixStore persists device fixes in SQLite and answers last-known-location
// queries for the watchdog.
type FixStore struct {
	db *sql.DB
}

// Open initializes the database connection, creating directories as needed.
func Open(path string) (*FixStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &FixStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *FixStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InitSchema ensures the fixes table exists.
func (s *FixStore) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fixes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL,
			lat REAL NOT NULL,
			lng REAL NOT NULL,
			recorded_at TEXT NOT NULL,
			received_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);`,
		`CREATE INDEX IF NOT EXISTS idx_fixes_device_time ON fixes(device_id, recorded_at);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// RecordFix stores a validated fix for the device.
func (s *FixStore) RecordFix(ctx context.Context, deviceID string, p domain.Position, recordedAt time.Time) error {
	if deviceID == "" {
		return errors.New("record fix: device id is required")
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("record fix: %w", err)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fixes (device_id, lat, lng, recorded_at) VALUES (?, ?, ?, ?)`,
		deviceID, p.Latitude, p.Longitude, recordedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record fix: %w", err)
	}
	return nil
}

// LastFix returns the most recently recorded fix for the device, or nil when
// the device never reported one.
func (s *FixStore) LastFix(ctx context.Context, deviceID string) (*domain.Position, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT lat, lng FROM fixes WHERE device_id = ? ORDER BY recorded_at DESC, id DESC LIMIT 1`,
		deviceID,
	)

	var lat, lng float64
	if err := row.Scan(&lat, &lng); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("last fix: %w", err)
	}

	p := domain.At(lat, lng)
	return &p, nil
}

// Prune deletes fixes recorded before the cutoff and returns how many rows went.
func (s *FixStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM fixes WHERE recorded_at < ?`,
		before.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("prune fixes: %w", err)
	}
	return res.RowsAffected()
}
