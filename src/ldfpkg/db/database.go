// Package db records the history of builds in a SQLite database.
package db

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/bitswalk/ldfpkg/src/common/logs"
	"github.com/bitswalk/ldfpkg/src/common/paths"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/db/migrations"
	_ "github.com/mattn/go-sqlite3"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the db package and its migrations
func SetLogger(l *logs.Logger) {
	log = l
	migrations.SetLogger(l)
}

// Database wraps the SQLite connection
type Database struct {
	db   *sql.DB
	path string
}

// Config holds the database configuration
type Config struct {
	// Path is the database file; ":memory:" keeps the history in memory
	Path string
}

// DefaultConfig returns a default database configuration
func DefaultConfig() Config {
	return Config{
		Path: filepath.Join(paths.StateDir("ldfpkg"), "history.db"),
	}
}

// New opens the database at cfg.Path and applies pending migrations
func New(cfg Config) (*Database, error) {
	path := cfg.Path
	dsn := ":memory:"
	if path != ":memory:" && path != "" {
		path = paths.Expand(path)
		if err := paths.EnsureDir(path); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = "file:" + path + "?_foreign_keys=on&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared across queries
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := migrations.NewRunner(db).Run(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Debug("Opened build history", "path", path)
	return &Database{db: db, path: path}, nil
}

// DB returns the underlying sql.DB
func (d *Database) DB() *sql.DB {
	return d.db
}

// Path returns the database file path
func (d *Database) Path() string {
	return d.path
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}
