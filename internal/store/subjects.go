package store

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Subject types stored in the subjects table.
const (
	SubjectUser         = "user"
	SubjectRepo         = "repo"
	SubjectTrendingRepo = "trending_repo"
)

// GalleryImage is a media entry attached to a repo.
type GalleryImage struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// UserSubject is the latest validated snapshot of a developer profile.
type UserSubject struct {
	Login            string   `json:"login"`
	Name             string   `json:"name,omitempty"`
	Bio              string   `json:"bio,omitempty"`
	AvatarURL        string   `json:"avatar_url,omitempty"`
	Theme            string   `json:"theme,omitempty"`
	IsGhost          bool     `json:"is_ghost,omitempty"`
	HighlightedRepos []string `json:"highlighted_repos,omitempty"`
}

// RepoSubject is the latest validated snapshot of a repository. The same
// shape is used for trending repos.
type RepoSubject struct {
	Name                 string         `json:"name"` // owner/repo
	Description          string         `json:"description,omitempty"`
	GeneratedDescription string         `json:"generated_description,omitempty"`
	Language             string         `json:"language,omitempty"`
	Topics               []string       `json:"topics,omitempty"`
	Stars                int            `json:"stars,omitempty"`
	IsFork               bool           `json:"is_fork,omitempty"`
	Link                 string         `json:"link,omitempty"`
	Gallery              []GalleryImage `json:"gallery,omitempty"`
	Emphasis             []string       `json:"emphasis,omitempty"`
	Keywords             []string       `json:"keywords,omitempty"`
	Kind                 string         `json:"kind,omitempty"`
	PushedAt             int64          `json:"pushed_at,omitempty"`
}

// PutSubject upserts the JSON snapshot for a subject, preserving any
// stored embedding.
func (db *DB) PutSubject(subjectType, subjectID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal subject %s/%s: %w", subjectType, subjectID, err)
	}
	_, err = db.Exec(`
		INSERT INTO subjects (subject_type, subject_id, data_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (subject_type, subject_id) DO UPDATE SET
			data_json = excluded.data_json,
			updated_at = excluded.updated_at
	`, subjectType, subjectID, string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("put subject %s/%s: %w", subjectType, subjectID, err)
	}
	return nil
}

// GetUser returns the stored profile for a login, or nil if none exists.
func (db *DB) GetUser(login string) (*UserSubject, error) {
	data, err := db.subjectJSON(SubjectUser, login)
	if err != nil || data == nil {
		return nil, err
	}
	var u UserSubject
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", login, err)
	}
	return &u, nil
}

// GetRepo returns the stored repo snapshot, or nil if none exists.
func (db *DB) GetRepo(subjectType, repoID string) (*RepoSubject, error) {
	data, err := db.subjectJSON(subjectType, repoID)
	if err != nil || data == nil {
		return nil, err
	}
	var r RepoSubject
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode repo %s: %w", repoID, err)
	}
	return &r, nil
}

func (db *DB) subjectJSON(subjectType, subjectID string) ([]byte, error) {
	var data sql.NullString
	err := db.QueryRow(
		"SELECT data_json FROM subjects WHERE subject_type = ? AND subject_id = ?",
		subjectType, subjectID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subject %s/%s: %w", subjectType, subjectID, err)
	}
	if !data.Valid {
		return nil, nil
	}
	return []byte(data.String), nil
}

// SetEmbedding stores the embedding vector for a subject.
func (db *DB) SetEmbedding(subjectType, subjectID string, vec []float64) error {
	res, err := db.Exec(
		"UPDATE subjects SET embedding = ? WHERE subject_type = ? AND subject_id = ?",
		encodeVector(vec), subjectType, subjectID,
	)
	if err != nil {
		return fmt.Errorf("set embedding %s/%s: %w", subjectType, subjectID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("set embedding %s/%s: subject not found", subjectType, subjectID)
	}
	return nil
}

// GetEmbedding returns the stored vector for a subject, or nil if the
// subject has no embedding.
func (db *DB) GetEmbedding(subjectType, subjectID string) ([]float64, error) {
	var blob []byte
	err := db.QueryRow(
		"SELECT embedding FROM subjects WHERE subject_type = ? AND subject_id = ?",
		subjectType, subjectID,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get embedding %s/%s: %w", subjectType, subjectID, err)
	}
	if len(blob) == 0 {
		return nil, nil
	}
	return decodeVector(blob), nil
}

// EmbeddedSubject is a subject row carrying its decoded snapshot and vector.
type EmbeddedSubject struct {
	SubjectType string
	SubjectID   string
	Data        []byte
	Embedding   []float64
	UpdatedAt   int64
}

// ListEmbedded returns all subjects of a type that have an embedding.
func (db *DB) ListEmbedded(subjectType string) ([]EmbeddedSubject, error) {
	rows, err := db.Query(`
		SELECT subject_id, data_json, embedding, updated_at
		FROM subjects
		WHERE subject_type = ? AND embedding IS NOT NULL
	`, subjectType)
	if err != nil {
		return nil, fmt.Errorf("list embedded %s: %w", subjectType, err)
	}
	defer rows.Close()

	var out []EmbeddedSubject
	for rows.Next() {
		var s EmbeddedSubject
		var data sql.NullString
		var blob []byte
		if err := rows.Scan(&s.SubjectID, &data, &blob, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.SubjectType = subjectType
		if data.Valid {
			s.Data = []byte(data.String)
		}
		s.Embedding = decodeVector(blob)
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteUserData removes everything stored for a login: the profile, repo
// snapshots the login owns, membership links, ledger rows, and exposure
// counters. Repos owned by other users survive even if linked.
func (db *DB) DeleteUserData(login string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("delete user %s: %w", login, err)
	}
	defer tx.Rollback()

	ownedPrefix := login + "/%"
	stmts := []struct {
		sql  string
		args []any
	}{
		{"DELETE FROM work_items WHERE subject_type = 'repo' AND subject_id LIKE ?", []any{ownedPrefix}},
		{"DELETE FROM work_items WHERE subject_type = 'user' AND subject_id = ?", []any{login}},
		{"DELETE FROM subjects WHERE subject_type = 'repo' AND subject_id LIKE ?", []any{ownedPrefix}},
		{"DELETE FROM subjects WHERE subject_type = 'user' AND subject_id = ?", []any{login}},
		{"DELETE FROM user_repo_links WHERE username = ?", []any{login}},
		{"DELETE FROM recommendations WHERE username = ?", []any{login}},
	}
	for _, s := range stmts {
		if _, err := tx.Exec(s.sql, s.args...); err != nil {
			return fmt.Errorf("delete user %s: %w", login, err)
		}
	}
	return tx.Commit()
}

// encodeVector serializes a float64 slice as little-endian bytes.
func encodeVector(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeVector deserializes little-endian bytes back into float64s.
func decodeVector(buf []byte) []float64 {
	vec := make([]float64, len(buf)/8)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}
