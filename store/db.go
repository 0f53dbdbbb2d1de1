// Package store is a durable, SQLite-backed store for Project rows, plus the
// minimal Team/CourseOffering tables backing the collaborator interfaces.
// Raw database/sql is used throughout, no ORM — the teacher's db package
// convention.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps a *sql.DB connection and logger. SQLite only tolerates a
// single writer at a time, so the connection pool is capped to one
// connection — the same constraint the teacher's db.Database documents.
type Store struct {
	connection *sql.DB
	logger     *slog.Logger
}

// Open creates the database file's parent directory if needed, opens the
// SQLite connection, and runs the schema migration.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %q: %w", dir, err)
		}
	}

	connection, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %q: %w", dbPath, err)
	}

	// SQLite allows only one writer at a time; capping the pool avoids
	// "database is locked" errors under concurrent writes.
	connection.SetMaxOpenConns(1)

	s := &Store{connection: connection, logger: logger}
	if err := s.migrate(); err != nil {
		connection.Close()
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}

	logger.Info("database opened", "path", dbPath)
	return s, nil
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	return s.connection.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS teams (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	course_offering_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS course_offerings (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	settings TEXT NOT NULL DEFAULT '{"server_locked":false,"project_tags":[]}'
);

CREATE TABLE IF NOT EXISTS enrollments (
	user_id TEXT NOT NULL,
	team_id TEXT,
	course_offering_id TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'student',
	PRIMARY KEY (user_id, course_offering_id)
);

CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	team_id TEXT NOT NULL,
	deployed_by_id TEXT,
	github_url TEXT NOT NULL DEFAULT '',
	image_hash TEXT NOT NULL DEFAULT '',
	tag TEXT,
	container_id TEXT,
	container_name TEXT,
	status TEXT NOT NULL,
	ports TEXT,
	build_logs TEXT NOT NULL DEFAULT '',
	build_args TEXT,
	env_vars TEXT,
	data_file TEXT,
	original_data_file_name TEXT,
	deployed_at DATETIME,
	stopped_at DATETIME,
	failed_check_count INTEGER NOT NULL DEFAULT 0,
	last_checked_at DATETIME,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_projects_team_status ON projects(team_id, status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_projects_container_id ON projects(container_id) WHERE container_id IS NOT NULL AND container_id != '';
`

func (s *Store) migrate() error {
	_, err := s.connection.Exec(schema)
	return err
}
