package store

import (
	"fmt"
	"time"
)

// Inclusion reasons for a user-repo link.
const (
	ReasonOwned       = "owned"
	ReasonForkActive  = "fork_active"
	ReasonContributed = "contributed"
	ReasonManual      = "manual"
)

// Link records that a repo belongs to a user's profile, and why.
type Link struct {
	Username       string
	RepoID         string
	IncludeReason  string
	UserCommitDays *int
	UpdatedAt      int64
}

// UpsertLink inserts or refreshes a membership edge.
func (db *DB) UpsertLink(l Link) error {
	_, err := db.Exec(`
		INSERT INTO user_repo_links (username, repo_id, include_reason, user_commit_days, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (username, repo_id) DO UPDATE SET
			include_reason = excluded.include_reason,
			user_commit_days = excluded.user_commit_days,
			updated_at = excluded.updated_at
	`, l.Username, l.RepoID, l.IncludeReason, l.UserCommitDays, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert link %s -> %s: %w", l.Username, l.RepoID, err)
	}
	return nil
}

// ListLinks returns all membership edges for a user.
func (db *DB) ListLinks(username string) ([]Link, error) {
	rows, err := db.Query(`
		SELECT username, repo_id, include_reason, user_commit_days, updated_at
		FROM user_repo_links
		WHERE username = ?
		ORDER BY repo_id
	`, username)
	if err != nil {
		return nil, fmt.Errorf("list links for %s: %w", username, err)
	}
	defer rows.Close()

	var out []Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.Username, &l.RepoID, &l.IncludeReason, &l.UserCommitDays, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListAllLinks returns every membership edge, used by candidate selection.
func (db *DB) ListAllLinks() ([]Link, error) {
	rows, err := db.Query(`
		SELECT username, repo_id, include_reason, user_commit_days, updated_at
		FROM user_repo_links
	`)
	if err != nil {
		return nil, fmt.Errorf("list all links: %w", err)
	}
	defer rows.Close()

	var out []Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.Username, &l.RepoID, &l.IncludeReason, &l.UserCommitDays, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteLinks removes all membership edges for a user.
func (db *DB) DeleteLinks(username string) error {
	_, err := db.Exec("DELETE FROM user_repo_links WHERE username = ?", username)
	if err != nil {
		return fmt.Errorf("delete links for %s: %w", username, err)
	}
	return nil
}
