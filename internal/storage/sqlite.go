// Package storage provides SQLite implementation of the Gateway interface.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteGateway implements Gateway using SQLite.
type SQLiteGateway struct {
	db        *sql.DB
	sessionID string
}

// NewSQLiteGateway opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. sessionID is recorded on every save.
func NewSQLiteGateway(dbPath string, sessionID string) (*SQLiteGateway, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteGateway{db: db, sessionID: sessionID}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		key TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		session_id TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_updated_at ON snapshots(updated_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Save upserts the snapshot stored under key.
func (s *SQLiteGateway) Save(ctx context.Context, key string, data []byte) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (key, data, session_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data, session_id = excluded.session_id, updated_at = excluded.updated_at`,
		key, data, s.sessionID, now, now,
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	return nil
}

// Load returns the snapshot stored under key.
func (s *SQLiteGateway) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	return data, nil
}

// Count returns the total number of snapshots.
func (s *SQLiteGateway) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&count)
	return count, err
}

// SessionOf returns the review session that last wrote key.
func (s *SQLiteGateway) SessionOf(ctx context.Context, key string) (string, error) {
	var session sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT session_id FROM snapshots WHERE key = ?`, key).Scan(&session)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return session.String, err
}

// Close closes the database connection.
func (s *SQLiteGateway) Close() error {
	return s.db.Close()
}
