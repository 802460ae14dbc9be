package migrations

import (
	"database/sql"
)

func migration001Builds() Migration {
	return Migration{
		Version:     1,
		Description: "Add builds table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE builds (
					id TEXT PRIMARY KEY,
					input TEXT NOT NULL,
					kind TEXT NOT NULL,
					source TEXT NOT NULL DEFAULT '',
					version TEXT NOT NULL DEFAULT '',
					vendor TEXT NOT NULL DEFAULT '',
					suite TEXT NOT NULL DEFAULT '',
					worker TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL DEFAULT 'pending',
					merged TEXT NOT NULL DEFAULT '{}',
					error_message TEXT DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					started_at DATETIME,
					completed_at DATETIME
				)
			`)
			if err != nil {
				return err
			}

			_, err = tx.Exec(`CREATE INDEX idx_builds_created ON builds(created_at)`)
			return err
		},
	}
}
