package feed

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/stankur/devfeed/internal/config"
	"github.com/stankur/devfeed/internal/store"
)

// Item is one served feed entry.
type Item struct {
	ItemType   string          `json:"item_type"`
	ItemID     string          `json:"item_id"`
	Score      float64         `json:"score"`
	Similarity float64         `json:"similarity"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Ranker serves personalized feeds: embedding similarity discounted by
// how recently and how often the viewer has already seen each item.
type Ranker struct {
	DB  *store.DB
	Cfg config.FeedConfig

	// now is swappable for tests.
	now func() time.Time
}

// NewRanker wires a ranker with the configured fatigue tunables.
func NewRanker(db *store.DB, cfg config.FeedConfig) *Ranker {
	return &Ranker{DB: db, Cfg: cfg, now: time.Now}
}

// Serve ranks all candidates for a viewer, records the exposure of every
// item it returns, and returns at most limit items (Cfg.Limit when limit
// is not positive). A viewer without an embedding gets an empty feed,
// not an error.
func (r *Ranker) Serve(viewer string, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = r.Cfg.Limit
	}
	viewerVec, err := r.DB.GetEmbedding(store.SubjectUser, viewer)
	if err != nil {
		return nil, fmt.Errorf("serve feed for %s: %w", viewer, err)
	}
	if viewerVec == nil {
		log.Printf("[rank] %s has no embedding yet, serving empty feed", viewer)
		return []Item{}, nil
	}

	candidates, err := SelectCandidates(r.DB)
	if err != nil {
		return nil, fmt.Errorf("serve feed for %s: %w", viewer, err)
	}
	exposures, err := r.DB.GetExposures(viewer)
	if err != nil {
		return nil, fmt.Errorf("serve feed for %s: %w", viewer, err)
	}

	now := r.now()
	items := make([]Item, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Embedding) == 0 {
			continue
		}
		sim := Cosine(viewerVec, c.Embedding)

		timesShown := 0
		hoursSince := neverShownHours
		if e, ok := exposures[store.ItemRef{Type: c.ItemType, ID: c.ItemID}]; ok {
			timesShown = e.TimesShown
			if e.LastShownAt != nil {
				hoursSince = now.Sub(time.UnixMilli(*e.LastShownAt)).Hours()
			}
		}

		score := sim - r.PenaltyHours(timesShown, hoursSince)/r.Cfg.DivisorHours
		items = append(items, Item{
			ItemType:   c.ItemType,
			ItemID:     c.ItemID,
			Score:      score,
			Similarity: sim,
			Data:       c.Data,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ItemID < items[j].ItemID
	})

	items = dedupByID(items)
	if len(items) > limit {
		items = items[:limit]
	}

	refs := make([]store.ItemRef, len(items))
	for i, it := range items {
		refs[i] = store.ItemRef{Type: it.ItemType, ID: it.ItemID}
	}
	if err := r.DB.BumpExposures(viewer, refs); err != nil {
		return nil, fmt.Errorf("serve feed for %s: %w", viewer, err)
	}
	return items, nil
}

// Items never shown rank as if last seen eons ago.
const neverShownHours = 1e9

// PenaltyHours is the fatigue cost of an item in hours of staleness:
// a fixed charge per prior showing plus a charge for recency that decays
// exponentially as the last showing ages out.
func (r *Ranker) PenaltyHours(timesShown int, hoursSince float64) float64 {
	return r.Cfg.ShownPenaltyHours*float64(timesShown) +
		r.Cfg.RecentPenaltyMax*math.Exp(-hoursSince/r.Cfg.RecencyDecayHours)
}

// Cosine is the cosine similarity of two vectors, 0 when either has no
// magnitude or the lengths differ.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// dedupByID keeps the first (highest ranked) occurrence of each item id.
// The same project can surface both through a membership link and as a
// trending repo.
func dedupByID(items []Item) []Item {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, it := range items {
		if seen[it.ItemID] {
			continue
		}
		seen[it.ItemID] = true
		out = append(out, it)
	}
	return out
}
