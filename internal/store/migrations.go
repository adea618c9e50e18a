package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "subjects: latest validated snapshot per entity",
		SQL: `
CREATE TABLE subjects (
    subject_type TEXT NOT NULL CHECK (subject_type IN ('user', 'repo', 'trending_repo')),
    subject_id   TEXT NOT NULL,
    data_json    TEXT,
    embedding    BLOB,
    updated_at   INTEGER NOT NULL,
    PRIMARY KEY (subject_type, subject_id)
);

CREATE INDEX idx_subjects_type ON subjects(subject_type);
`,
	},
	{
		Version:     2,
		Description: "user_repo_links: membership edge between a user and included repos",
		SQL: `
CREATE TABLE user_repo_links (
    username         TEXT NOT NULL,
    repo_id          TEXT NOT NULL,
    include_reason   TEXT CHECK (include_reason IN ('owned', 'fork_active', 'contributed', 'manual')),
    user_commit_days INTEGER,
    updated_at       INTEGER NOT NULL,
    PRIMARY KEY (username, repo_id)
);

CREATE INDEX idx_links_repo ON user_repo_links(repo_id);
`,
	},
	{
		Version:     3,
		Description: "work_items: idempotency ledger, one row per (kind, subject)",
		SQL: `
CREATE TABLE work_items (
    id           TEXT PRIMARY KEY,
    kind         TEXT NOT NULL,
    subject_type TEXT NOT NULL,
    subject_id   TEXT NOT NULL,
    status       TEXT NOT NULL CHECK (status IN ('pending', 'running', 'succeeded', 'failed')),
    output_json  TEXT,
    processed_at INTEGER
);

CREATE UNIQUE INDEX ux_work_item ON work_items(kind, subject_type, subject_id);
CREATE INDEX idx_work_items_subject ON work_items(subject_type, subject_id);
`,
	},
	{
		Version:     4,
		Description: "recommendations: per-viewer exposure counters for served feed items",
		SQL: `
CREATE TABLE recommendations (
    username      TEXT NOT NULL,
    item_type     TEXT NOT NULL,
    item_id       TEXT NOT NULL,
    times_shown   INTEGER NOT NULL DEFAULT 0,
    last_shown_at INTEGER,
    PRIMARY KEY (username, item_type, item_id)
);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
