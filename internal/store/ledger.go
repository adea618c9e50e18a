package store

import (
	"database/sql"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Work item statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// WorkItem is one row of the idempotency ledger: the durable record of a
// unit of enrichment work against a subject.
type WorkItem struct {
	ID          string
	Kind        string
	SubjectType string
	SubjectID   string
	Status      string
	OutputJSON  *string
	ProcessedAt *int64
}

// SubjectRef identifies a subject for bulk ledger operations.
type SubjectRef struct {
	Type string
	ID   string
}

// GetWorkItem returns the ledger row for (kind, subject), or nil if the
// work has never been recorded.
func (db *DB) GetWorkItem(kind, subjectType, subjectID string) (*WorkItem, error) {
	var w WorkItem
	err := db.QueryRow(`
		SELECT id, kind, subject_type, subject_id, status, output_json, processed_at
		FROM work_items
		WHERE kind = ? AND subject_type = ? AND subject_id = ?
	`, kind, subjectType, subjectID).Scan(
		&w.ID, &w.Kind, &w.SubjectType, &w.SubjectID, &w.Status, &w.OutputJSON, &w.ProcessedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get work item %s %s/%s: %w", kind, subjectType, subjectID, err)
	}
	return &w, nil
}

// SetWorkStatus upserts the ledger row for (kind, subject). A nil output
// leaves any previously stored output in place, so a transition through
// running does not wipe the result of an earlier success. processed_at is
// stamped only when the new status is succeeded.
func (db *DB) SetWorkStatus(kind, subjectType, subjectID, status string, output *string) error {
	var processedAt *int64
	if status == StatusSucceeded {
		now := time.Now().UnixMilli()
		processedAt = &now
	}
	_, err := db.Exec(`
		INSERT INTO work_items (id, kind, subject_type, subject_id, status, output_json, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, subject_type, subject_id) DO UPDATE SET
			status = excluded.status,
			output_json = COALESCE(excluded.output_json, output_json),
			processed_at = COALESCE(excluded.processed_at, processed_at)
	`, newULID(), kind, subjectType, subjectID, status, output, processedAt)
	if err != nil {
		return fmt.Errorf("set work status %s %s/%s: %w", kind, subjectType, subjectID, err)
	}
	return nil
}

// ListWorkItems returns every ledger row for a subject, ordered by kind.
func (db *DB) ListWorkItems(subjectType, subjectID string) ([]WorkItem, error) {
	rows, err := db.Query(`
		SELECT id, kind, subject_type, subject_id, status, output_json, processed_at
		FROM work_items
		WHERE subject_type = ? AND subject_id = ?
		ORDER BY kind
	`, subjectType, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list work items %s/%s: %w", subjectType, subjectID, err)
	}
	defer rows.Close()

	var out []WorkItem
	for rows.Next() {
		var w WorkItem
		if err := rows.Scan(&w.ID, &w.Kind, &w.SubjectType, &w.SubjectID, &w.Status, &w.OutputJSON, &w.ProcessedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ResetMany sets every matching (kind, subject) ledger row back to pending
// and clears its output and processed_at, in a single transaction. Rows
// that do not exist are skipped: reset never creates ledger entries.
func (db *DB) ResetMany(kinds []string, refs []SubjectRef) error {
	if len(kinds) == 0 || len(refs) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("reset work items: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		UPDATE work_items
		SET status = 'pending', output_json = NULL, processed_at = NULL
		WHERE kind = ? AND subject_type = ? AND subject_id = ?
	`)
	if err != nil {
		return fmt.Errorf("reset work items: %w", err)
	}
	defer stmt.Close()

	for _, ref := range refs {
		for _, kind := range kinds {
			if _, err := stmt.Exec(kind, ref.Type, ref.ID); err != nil {
				return fmt.Errorf("reset %s %s/%s: %w", kind, ref.Type, ref.ID, err)
			}
		}
	}
	return tx.Commit()
}

var ulidEntropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)

func newULID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}
