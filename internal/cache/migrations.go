package cache

import (
	"database/sql"
	"fmt"
)

// Timestamps are unix milliseconds so the same schema works on both drivers.
var migrations = []string{
	createCredentialsTable,
	createPageSnapshotsTable,
}

const createCredentialsTable = `
CREATE TABLE IF NOT EXISTS credentials (
    account TEXT PRIMARY KEY,
    token TEXT NOT NULL,
    updated_at BIGINT NOT NULL
)`

const createPageSnapshotsTable = `
CREATE TABLE IF NOT EXISTS page_snapshots (
    view_key TEXT PRIMARY KEY,
    payload TEXT NOT NULL,
    saved_at BIGINT NOT NULL
)`

func runMigrations(db *sql.DB) error {
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}
	return nil
}
