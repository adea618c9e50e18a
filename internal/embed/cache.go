package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"strings"

	"github.com/stankur/devfeed/internal/store"
)

// Work items covering embeddings store this output on success. The hash
// lets later runs skip subjects whose canonical text has not changed.
type Output struct {
	ContentHash string `json:"content_hash"`
	Dim         int    `json:"dim"`
}

// Item is one subject queued for embedding.
type Item struct {
	SubjectType string
	SubjectID   string
	Text        string
}

// Result summarizes one Ensure pass.
type Result struct {
	Embedded int
	Skipped  int
	Failed   int
}

// Cache embeds subjects through the provider, gated by content hashes in
// the work-item ledger so unchanged text never costs a provider call.
type Cache struct {
	DB        *store.DB
	Embedder  Embedder
	BatchSize int
}

// NewCache wires a cache with the standard batch size.
func NewCache(db *store.DB, e Embedder, batchSize int) *Cache {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Cache{DB: db, Embedder: e, BatchSize: batchSize}
}

// Ensure embeds every item whose stored hash does not match its current
// canonical text. It owns the ledger rows for kind: subjects it skips are
// left untouched, subjects it embeds are marked succeeded with the new
// hash, and a failed provider batch marks every member failed with a
// shared reason. The returned error covers infrastructure faults only;
// provider failures are reported through Result and the ledger.
func (c *Cache) Ensure(ctx context.Context, kind string, items []Item) (Result, error) {
	var res Result
	var pending []Item

	for _, it := range items {
		fresh, err := c.isFresh(kind, it)
		if err != nil {
			return res, err
		}
		if fresh {
			res.Skipped++
			continue
		}
		if err := c.DB.SetWorkStatus(kind, it.SubjectType, it.SubjectID, store.StatusRunning, nil); err != nil {
			return res, err
		}
		pending = append(pending, it)
	}

	for start := 0; start < len(pending); start += c.BatchSize {
		end := start + c.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		texts := make([]string, len(batch))
		for i, it := range batch {
			texts[i] = it.Text
		}

		vecs, err := c.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			log.Printf("[embed] batch of %d failed: %v", len(batch), err)
			reason, _ := json.Marshal(map[string]string{"reason": err.Error()})
			out := string(reason)
			for _, it := range batch {
				if serr := c.DB.SetWorkStatus(kind, it.SubjectType, it.SubjectID, store.StatusFailed, &out); serr != nil {
					return res, serr
				}
				res.Failed++
			}
			continue
		}

		for i, it := range batch {
			if err := c.DB.SetEmbedding(it.SubjectType, it.SubjectID, vecs[i]); err != nil {
				return res, err
			}
			out, _ := json.Marshal(Output{ContentHash: ContentHash(it.Text), Dim: len(vecs[i])})
			s := string(out)
			if err := c.DB.SetWorkStatus(kind, it.SubjectType, it.SubjectID, store.StatusSucceeded, &s); err != nil {
				return res, err
			}
			res.Embedded++
		}
	}
	return res, nil
}

// isFresh reports whether the subject already has an embedding for its
// current text. Malformed stored output reads as stale, not as an error.
func (c *Cache) isFresh(kind string, it Item) (bool, error) {
	w, err := c.DB.GetWorkItem(kind, it.SubjectType, it.SubjectID)
	if err != nil {
		return false, err
	}
	if w == nil || w.Status != store.StatusSucceeded || w.OutputJSON == nil {
		return false, nil
	}
	var out Output
	if err := json.Unmarshal([]byte(*w.OutputJSON), &out); err != nil {
		return false, nil
	}
	return out.ContentHash == ContentHash(it.Text), nil
}

// ContentHash is the canonical fingerprint of embedding input text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// FormatRepo builds the canonical embedding text for a repo. Field order
// is fixed: changing it would invalidate every stored hash.
func FormatRepo(r store.RepoSubject) string {
	parts := []string{r.Name}
	if r.Description != "" {
		parts = append(parts, r.Description)
	}
	if r.GeneratedDescription != "" {
		parts = append(parts, r.GeneratedDescription)
	}
	if r.Language != "" {
		parts = append(parts, r.Language)
	}
	return strings.Join(parts, "\n")
}

// FormatUser builds the canonical embedding text for a user profile from
// the login, bio, and highlighted repo blocks.
func FormatUser(u store.UserSubject, repos []store.RepoSubject) string {
	var b strings.Builder
	b.WriteString(u.Login)
	if u.Bio != "" {
		b.WriteByte('\n')
		b.WriteString(u.Bio)
	}
	if len(repos) > 0 {
		b.WriteString("\nuser's highlighted repositories:")
		for _, r := range repos {
			b.WriteByte('\n')
			b.WriteString(FormatRepo(r))
		}
	}
	return b.String()
}
