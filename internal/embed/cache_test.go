package embed

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stankur/devfeed/internal/store"
)

func newCache(t *testing.T) (*Cache, *store.DB, *MockEmbedder) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	emb := &MockEmbedder{Dim: 4}
	return NewCache(db, emb, 20), db, emb
}

func putRepo(t *testing.T, db *store.DB, id string) {
	t.Helper()
	if err := db.PutSubject(store.SubjectRepo, id, store.RepoSubject{Name: id}); err != nil {
		t.Fatalf("PutSubject %s: %v", id, err)
	}
}

func TestEnsureEmbedsAndRecordsHash(t *testing.T) {
	c, db, emb := newCache(t)
	putRepo(t, db, "alice/tool")

	res, err := c.Ensure(context.Background(), "embed_repos", []Item{
		{store.SubjectRepo, "alice/tool", "alice/tool\nGo"},
	})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if res.Embedded != 1 || res.Skipped != 0 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}
	if emb.Calls != 1 {
		t.Errorf("provider calls = %d, want 1", emb.Calls)
	}

	vec, err := db.GetEmbedding(store.SubjectRepo, "alice/tool")
	if err != nil {
		t.Fatalf("GetEmbedding: %v", err)
	}
	if len(vec) != 4 {
		t.Errorf("vector length = %d, want 4", len(vec))
	}

	w, _ := db.GetWorkItem("embed_repos", store.SubjectRepo, "alice/tool")
	if w == nil || w.Status != store.StatusSucceeded {
		t.Fatalf("work item = %+v, want succeeded", w)
	}
}

func TestEnsureSkipsUnchangedText(t *testing.T) {
	c, db, emb := newCache(t)
	putRepo(t, db, "alice/tool")

	items := []Item{{store.SubjectRepo, "alice/tool", "alice/tool\nGo"}}
	if _, err := c.Ensure(context.Background(), "embed_repos", items); err != nil {
		t.Fatalf("first Ensure: %v", err)
	}

	res, err := c.Ensure(context.Background(), "embed_repos", items)
	if err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if res.Skipped != 1 || res.Embedded != 0 {
		t.Errorf("result = %+v, want skip", res)
	}
	if emb.Calls != 1 {
		t.Errorf("provider calls = %d, want 1 (unchanged text is free)", emb.Calls)
	}
}

func TestEnsureReembedsChangedText(t *testing.T) {
	c, db, emb := newCache(t)
	putRepo(t, db, "alice/tool")

	if _, err := c.Ensure(context.Background(), "embed_repos", []Item{
		{store.SubjectRepo, "alice/tool", "version A"},
	}); err != nil {
		t.Fatalf("first Ensure: %v", err)
	}

	res, err := c.Ensure(context.Background(), "embed_repos", []Item{
		{store.SubjectRepo, "alice/tool", "version B"},
	})
	if err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if res.Embedded != 1 {
		t.Errorf("result = %+v, want re-embed", res)
	}
	if emb.Calls != 2 {
		t.Errorf("provider calls = %d, want 2", emb.Calls)
	}

	w, _ := db.GetWorkItem("embed_repos", store.SubjectRepo, "alice/tool")
	var out Output
	if err := decodeOutput(w, &out); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if out.ContentHash != ContentHash("version B") {
		t.Error("stored hash should reflect the new text")
	}
}

func TestEnsureMalformedOutputIsCacheMiss(t *testing.T) {
	c, db, emb := newCache(t)
	putRepo(t, db, "alice/tool")

	bad := "not json"
	if err := db.SetWorkStatus("embed_repos", store.SubjectRepo, "alice/tool", store.StatusSucceeded, &bad); err != nil {
		t.Fatalf("SetWorkStatus: %v", err)
	}

	res, err := c.Ensure(context.Background(), "embed_repos", []Item{
		{store.SubjectRepo, "alice/tool", "text"},
	})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if res.Embedded != 1 {
		t.Errorf("result = %+v, malformed cache entry should re-embed", res)
	}
	if emb.Calls != 1 {
		t.Errorf("provider calls = %d, want 1", emb.Calls)
	}
}

func TestEnsureBatchFailureMarksAllMembers(t *testing.T) {
	c, db, emb := newCache(t)
	emb.Err = context.DeadlineExceeded
	putRepo(t, db, "alice/tool")
	putRepo(t, db, "alice/lib")

	res, err := c.Ensure(context.Background(), "embed_repos", []Item{
		{store.SubjectRepo, "alice/tool", "a"},
		{store.SubjectRepo, "alice/lib", "b"},
	})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if res.Failed != 2 {
		t.Errorf("result = %+v, want both failed", res)
	}

	for _, id := range []string{"alice/tool", "alice/lib"} {
		w, _ := db.GetWorkItem("embed_repos", store.SubjectRepo, id)
		if w == nil || w.Status != store.StatusFailed {
			t.Errorf("%s: work item = %+v, want failed", id, w)
		}
		if w != nil && w.OutputJSON == nil {
			t.Errorf("%s: failure reason should be recorded", id)
		}
	}
}

func TestEnsureBatching(t *testing.T) {
	c, db, emb := newCache(t)
	c.BatchSize = 2

	var items []Item
	for _, id := range []string{"a/1", "a/2", "a/3", "a/4", "a/5"} {
		putRepo(t, db, id)
		items = append(items, Item{store.SubjectRepo, id, id})
	}

	res, err := c.Ensure(context.Background(), "embed_repos", items)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if res.Embedded != 5 {
		t.Errorf("embedded = %d, want 5", res.Embedded)
	}
	if emb.Calls != 3 {
		t.Errorf("provider calls = %d, want 3 batches of <=2", emb.Calls)
	}
}

func TestFormatUser(t *testing.T) {
	u := store.UserSubject{Login: "alice", Bio: "builds tools"}
	repos := []store.RepoSubject{
		{Name: "alice/tool", Description: "a tool", Language: "Go"},
	}
	got := FormatUser(u, repos)
	want := "alice\nbuilds tools\nuser's highlighted repositories:\nalice/tool\na tool\nGo"
	if got != want {
		t.Errorf("FormatUser = %q, want %q", got, want)
	}

	// Formatting is the hash input; same content must hash identically.
	if ContentHash(got) != ContentHash(want) {
		t.Error("hash mismatch on identical text")
	}
}

func decodeOutput(w *store.WorkItem, out *Output) error {
	return json.Unmarshal([]byte(*w.OutputJSON), out)
}
