package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bitswalk/ldfpkg/src/common/errors"
)

// BuildRepository handles build record database operations
type BuildRepository struct {
	db *Database
}

// NewBuildRepository creates a new build repository
func NewBuildRepository(db *Database) *BuildRepository {
	return &BuildRepository{db: db}
}

// Create inserts a build record and its architectures
func (r *BuildRepository) Create(rec *BuildRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.Status == "" {
		rec.Status = BuildStatusPending
	}

	merged, err := json.Marshal(rec.Merged)
	if err != nil {
		return fmt.Errorf("failed to encode merged outputs: %w", err)
	}

	tx, err := r.db.DB().Begin()
	if err != nil {
		return errors.ErrDatabaseQuery.WithCause(err)
	}

	_, err = tx.Exec(`
		INSERT INTO builds (id, input, kind, source, version, vendor, suite,
			worker, status, merged, error_message, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.Input, rec.Kind, rec.Source, rec.Version, rec.Vendor, rec.Suite,
		rec.Worker, rec.Status, string(merged), rec.ErrorMessage,
		rec.CreatedAt, rec.StartedAt, rec.CompletedAt,
	)
	if err != nil {
		tx.Rollback()
		return errors.ErrDatabaseQuery.WithMessage("Failed to create build record").WithCause(err)
	}

	for i, a := range rec.Archs {
		_, err := tx.Exec(`
			INSERT INTO build_archs (build_id, position, arch, status, changes_path, log_path)
			VALUES (?, ?, ?, ?, ?, ?)
		`, rec.ID, i, a.Arch, a.Status, a.Changes, a.Log)
		if err != nil {
			tx.Rollback()
			return errors.ErrDatabaseQuery.WithMessagef("Failed to record architecture %s", a.Arch).WithCause(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.ErrDatabaseQuery.WithCause(err)
	}
	return nil
}

const selectBuildsQuery = `
	SELECT id, input, kind, source, version, vendor, suite, worker, status,
		merged, error_message, created_at, started_at, completed_at
	FROM builds
`

// GetByID retrieves a build record by ID, or nil when there is none
func (r *BuildRepository) GetByID(id string) (*BuildRecord, error) {
	rec, err := r.scan(r.db.DB().QueryRow(selectBuildsQuery+` WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadArchs(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// FindByPrefix retrieves the record whose ID starts with prefix, or nil
// when there is none. A prefix matching several records is an error.
func (r *BuildRepository) FindByPrefix(prefix string) (*BuildRecord, error) {
	if prefix == "" {
		return nil, nil
	}
	rows, err := r.db.DB().Query(selectBuildsQuery+` WHERE substr(id, 1, ?) = ? LIMIT 2`, len(prefix), prefix)
	if err != nil {
		return nil, errors.ErrDatabaseQuery.WithMessage("Failed to look up build").WithCause(err)
	}
	defer rows.Close()

	var found []*BuildRecord
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.ErrDatabaseQuery.WithCause(err)
	}

	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		if err := r.loadArchs(found[0]); err != nil {
			return nil, err
		}
		return found[0], nil
	}
	return nil, errors.ErrInvalidValue.WithMessagef("Build ID prefix %q is ambiguous", prefix)
}

// List returns the most recent records first. A limit of 0 returns all.
func (r *BuildRepository) List(limit int) ([]BuildRecord, error) {
	query := selectBuildsQuery + ` ORDER BY created_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.DB().Query(query, args...)
	if err != nil {
		return nil, errors.ErrDatabaseQuery.WithMessage("Failed to list builds").WithCause(err)
	}
	defer rows.Close()

	var records []BuildRecord
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.ErrDatabaseQuery.WithCause(err)
	}

	for i := range records {
		if err := r.loadArchs(&records[i]); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// Delete removes a build record and its architectures
func (r *BuildRepository) Delete(id string) error {
	if _, err := r.db.DB().Exec(`DELETE FROM builds WHERE id = ?`, id); err != nil {
		return errors.ErrDatabaseQuery.WithMessagef("Failed to delete build %s", id).WithCause(err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *BuildRepository) scan(row scanner) (*BuildRecord, error) {
	var rec BuildRecord
	var merged string
	var errMsg sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&rec.ID, &rec.Input, &rec.Kind, &rec.Source, &rec.Version,
		&rec.Vendor, &rec.Suite, &rec.Worker, &rec.Status, &merged, &errMsg,
		&rec.CreatedAt, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, errors.ErrDatabaseQuery.WithMessage("Failed to scan build").WithCause(err)
	}

	if merged != "" && merged != "null" {
		if err := json.Unmarshal([]byte(merged), &rec.Merged); err != nil {
			return nil, fmt.Errorf("failed to decode merged outputs of %s: %w", rec.ID, err)
		}
	}
	rec.ErrorMessage = errMsg.String
	if startedAt.Valid {
		rec.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		rec.CompletedAt = &completedAt.Time
	}
	return &rec, nil
}

func (r *BuildRepository) loadArchs(rec *BuildRecord) error {
	rows, err := r.db.DB().Query(`
		SELECT arch, status, changes_path, log_path FROM build_archs
		WHERE build_id = ? ORDER BY position
	`, rec.ID)
	if err != nil {
		return errors.ErrDatabaseQuery.WithCause(err)
	}
	defer rows.Close()

	for rows.Next() {
		var a ArchRecord
		var changes, logPath sql.NullString
		if err := rows.Scan(&a.Arch, &a.Status, &changes, &logPath); err != nil {
			return errors.ErrDatabaseQuery.WithCause(err)
		}
		a.Changes = changes.String
		a.Log = logPath.String
		rec.Archs = append(rec.Archs, a)
	}
	return rows.Err()
}
