// Package migrations versions the build history schema.
//
// The schema version lives in the SQLite user_version pragma. Each
// migration runs in its own transaction together with the version bump,
// so an interrupted upgrade leaves the previous version in place.
package migrations

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/bitswalk/ldfpkg/src/common/errors"
	"github.com/bitswalk/ldfpkg/src/common/logs"
)

// package-level logger, can be set via SetLogger
var log *logs.Logger

// SetLogger sets the logger for the migrations package
func SetLogger(l *logs.Logger) {
	log = l
}

// Migration moves the schema from Version-1 to Version
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// Runner applies the known migrations to one database
type Runner struct {
	db         *sql.DB
	migrations []Migration
}

// NewRunner creates a runner for every known migration
func NewRunner(db *sql.DB) *Runner {
	ms := []Migration{
		migration001Builds(),
		migration002BuildArchs(),
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].Version < ms[j].Version })
	return &Runner{db: db, migrations: ms}
}

// Latest is the schema version Run upgrades to
func (r *Runner) Latest() int {
	if len(r.migrations) == 0 {
		return 0
	}
	return r.migrations[len(r.migrations)-1].Version
}

// CurrentVersion returns the schema version recorded in the database
func (r *Runner) CurrentVersion() (int, error) {
	var version int
	if err := r.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, errors.ErrDatabaseQuery.WithMessage("Cannot read schema version").WithCause(err)
	}
	return version, nil
}

// Run applies every migration above the current version. A database
// written by a newer schema is refused rather than downgraded.
func (r *Runner) Run() error {
	current, err := r.CurrentVersion()
	if err != nil {
		return err
	}
	if current > r.Latest() {
		return errors.ErrDatabaseQuery.WithMessagef(
			"History schema version %d is newer than the supported version %d", current, r.Latest())
	}

	for _, m := range r.migrations {
		if m.Version <= current {
			continue
		}
		if err := r.apply(m); err != nil {
			if log != nil {
				log.Error("Migration failed", "version", m.Version, "description", m.Description, "error", err)
			}
			return errors.ErrDatabaseQuery.WithMessagef("Migration %d (%s) failed", m.Version, m.Description).WithCause(err)
		}
	}
	return nil
}

func (r *Runner) apply(m Migration) error {
	if log != nil {
		log.Debug("Applying migration", "version", m.Version, "description", m.Description)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	if err := m.Up(tx); err != nil {
		tx.Rollback()
		return err
	}
	// PRAGMA takes no bind parameters
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// PendingCount returns the number of migrations Run would apply
func (r *Runner) PendingCount() (int, error) {
	current, err := r.CurrentVersion()
	if err != nil {
		return 0, err
	}
	pending := 0
	for _, m := range r.migrations {
		if m.Version > current {
			pending++
		}
	}
	return pending, nil
}
