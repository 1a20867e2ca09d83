// Package store persists the MCU selection and per-MCU configurations in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// DB wraps the database connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates the directory if needed and opens path in WAL mode.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY churn.
	conn.SetMaxOpenConns(1)

	return &DB{conn: conn, path: path}, nil
}

func (db *DB) Close() error { return db.conn.Close() }

func (db *DB) Conn() *sql.DB { return db.conn }

func (db *DB) Path() string { return db.path }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS selection (
		id          INTEGER PRIMARY KEY CHECK (id = 1),
		mcu_id      TEXT NOT NULL,
		spec        TEXT NOT NULL,
		selected_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS configs (
		mcu_id     TEXT PRIMARY KEY,
		body       TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
}

// Migrate creates the tables; it is safe to run on every start.
func (db *DB) Migrate(ctx context.Context) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer tx.Rollback()
	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return tx.Commit()
}
