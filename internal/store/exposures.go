package store

import (
	"fmt"
	"time"
)

// Exposure is the per-viewer display history of a feed item.
type Exposure struct {
	ItemType    string
	ItemID      string
	TimesShown  int
	LastShownAt *int64
}

// ItemRef identifies a feed item for exposure bookkeeping.
type ItemRef struct {
	Type string
	ID   string
}

// GetExposures returns the viewer's display history keyed by item id.
// Items never shown have no entry.
func (db *DB) GetExposures(username string) (map[ItemRef]Exposure, error) {
	rows, err := db.Query(`
		SELECT item_type, item_id, times_shown, last_shown_at
		FROM recommendations
		WHERE username = ?
	`, username)
	if err != nil {
		return nil, fmt.Errorf("get exposures for %s: %w", username, err)
	}
	defer rows.Close()

	out := make(map[ItemRef]Exposure)
	for rows.Next() {
		var e Exposure
		if err := rows.Scan(&e.ItemType, &e.ItemID, &e.TimesShown, &e.LastShownAt); err != nil {
			return nil, err
		}
		out[ItemRef{Type: e.ItemType, ID: e.ItemID}] = e
	}
	return out, rows.Err()
}

// BumpExposures increments times_shown and stamps last_shown_at for each
// served item, all in one transaction so a partially recorded serve can
// never skew future ranking.
func (db *DB) BumpExposures(username string, items []ItemRef) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("bump exposures for %s: %w", username, err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	stmt, err := tx.Prepare(`
		INSERT INTO recommendations (username, item_type, item_id, times_shown, last_shown_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT (username, item_type, item_id) DO UPDATE SET
			times_shown = times_shown + 1,
			last_shown_at = excluded.last_shown_at
	`)
	if err != nil {
		return fmt.Errorf("bump exposures for %s: %w", username, err)
	}
	defer stmt.Close()

	for _, it := range items {
		if _, err := stmt.Exec(username, it.Type, it.ID, now); err != nil {
			return fmt.Errorf("bump exposure %s/%s: %w", it.Type, it.ID, err)
		}
	}
	return tx.Commit()
}
