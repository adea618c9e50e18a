package feed

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stankur/devfeed/internal/store"
)

// Candidate is a feed item eligible for ranking: an embedded repo or
// trending repo, annotated with the authorship that got it included.
type Candidate struct {
	ItemType      string
	ItemID        string
	Author        string
	CommitDays    int // -1 when unknown
	ExternalOwner bool
	UpdatedAt     int64
	Data          []byte
	Embedding     []float64
}

// SelectCandidates loads every embedded repo reachable through a
// membership link, collapses competing copies of the same project, and
// appends trending repos. Copies compete when the same author is linked
// to repos sharing a bare name, a fork of upstream next to the upstream
// itself being the usual case.
func SelectCandidates(db *store.DB) ([]Candidate, error) {
	embedded, err := db.ListEmbedded(store.SubjectRepo)
	if err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}
	byID := make(map[string]store.EmbeddedSubject, len(embedded))
	for _, e := range embedded {
		byID[e.SubjectID] = e
	}

	links, err := db.ListAllLinks()
	if err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}

	// Group by (author, bare repo name) and keep the strongest copy.
	best := make(map[[2]string]Candidate)
	for _, l := range links {
		subj, ok := byID[l.RepoID]
		if !ok {
			continue
		}
		c := Candidate{
			ItemType:      store.SubjectRepo,
			ItemID:        l.RepoID,
			Author:        l.Username,
			CommitDays:    -1,
			ExternalOwner: repoOwner(l.RepoID) != l.Username,
			UpdatedAt:     subj.UpdatedAt,
			Data:          subj.Data,
			Embedding:     subj.Embedding,
		}
		if l.UserCommitDays != nil {
			c.CommitDays = *l.UserCommitDays
		}

		key := [2]string{l.Username, bareName(l.RepoID)}
		cur, exists := best[key]
		if !exists || stronger(c, cur) {
			best[key] = c
		}
	}

	out := make([]Candidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	// Map iteration order is random; downstream ranking needs stable input.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Author != out[j].Author {
			return out[i].Author < out[j].Author
		}
		return out[i].ItemID < out[j].ItemID
	})

	trending, err := db.ListEmbedded(store.SubjectTrendingRepo)
	if err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}
	for _, e := range trending {
		out = append(out, Candidate{
			ItemType:   store.SubjectTrendingRepo,
			ItemID:     e.SubjectID,
			CommitDays: -1,
			UpdatedAt:  e.UpdatedAt,
			Data:       e.Data,
			Embedding:  e.Embedding,
		})
	}
	return out, nil
}

// stronger orders competing copies of one project: more of the author's
// commit days wins, then an externally owned home wins over the author's
// own fork, then the fresher snapshot.
func stronger(a, b Candidate) bool {
	if a.CommitDays != b.CommitDays {
		return a.CommitDays > b.CommitDays
	}
	if a.ExternalOwner != b.ExternalOwner {
		return a.ExternalOwner
	}
	return a.UpdatedAt > b.UpdatedAt
}

func repoOwner(fullName string) string {
	if i := strings.IndexByte(fullName, '/'); i >= 0 {
		return fullName[:i]
	}
	return fullName
}

func bareName(fullName string) string {
	if i := strings.IndexByte(fullName, '/'); i >= 0 {
		return fullName[i+1:]
	}
	return fullName
}
