package migrations

import (
	"database/sql"
)

func migration002BuildArchs() Migration {
	return Migration{
		Version:     2,
		Description: "Add build_archs table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE build_archs (
					build_id TEXT NOT NULL,
					position INTEGER NOT NULL,
					arch TEXT NOT NULL,
					status TEXT NOT NULL,
					changes_path TEXT DEFAULT '',
					log_path TEXT DEFAULT '',
					PRIMARY KEY (build_id, position),
					FOREIGN KEY (build_id) REFERENCES builds(id) ON DELETE CASCADE
				)
			`)
			return err
		},
	}
}
