package store

import (
	"testing"
)

func strPtr(s string) *string { return &s }

func TestWorkItemLifecycle(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	w, err := db.GetWorkItem("fetch_profile", SubjectUser, "alice")
	if err != nil {
		t.Fatalf("GetWorkItem: %v", err)
	}
	if w != nil {
		t.Fatal("expected nil for unrecorded work")
	}

	if err := db.SetWorkStatus("fetch_profile", SubjectUser, "alice", StatusRunning, nil); err != nil {
		t.Fatalf("SetWorkStatus running: %v", err)
	}
	w, err = db.GetWorkItem("fetch_profile", SubjectUser, "alice")
	if err != nil {
		t.Fatalf("GetWorkItem: %v", err)
	}
	if w.Status != StatusRunning {
		t.Errorf("status = %q, want running", w.Status)
	}
	if w.ProcessedAt != nil {
		t.Error("processed_at should be unset before success")
	}
	if w.ID == "" {
		t.Error("work item should carry an id")
	}

	out := strPtr(`{"profile_found":true}`)
	if err := db.SetWorkStatus("fetch_profile", SubjectUser, "alice", StatusSucceeded, out); err != nil {
		t.Fatalf("SetWorkStatus succeeded: %v", err)
	}
	w, _ = db.GetWorkItem("fetch_profile", SubjectUser, "alice")
	if w.Status != StatusSucceeded {
		t.Errorf("status = %q, want succeeded", w.Status)
	}
	if w.OutputJSON == nil || *w.OutputJSON != *out {
		t.Errorf("output = %v, want %q", w.OutputJSON, *out)
	}
	if w.ProcessedAt == nil {
		t.Error("processed_at should be stamped on success")
	}
}

func TestSetWorkStatusNilOutputPreservesPrevious(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	out := strPtr(`{"content_hash":"abc","dim":4}`)
	if err := db.SetWorkStatus("embed_repos", SubjectRepo, "alice/tool", StatusSucceeded, out); err != nil {
		t.Fatalf("SetWorkStatus: %v", err)
	}

	// Status-only transition back through running must not wipe the
	// earlier output or timestamp.
	if err := db.SetWorkStatus("embed_repos", SubjectRepo, "alice/tool", StatusRunning, nil); err != nil {
		t.Fatalf("SetWorkStatus running: %v", err)
	}
	w, _ := db.GetWorkItem("embed_repos", SubjectRepo, "alice/tool")
	if w.Status != StatusRunning {
		t.Errorf("status = %q, want running", w.Status)
	}
	if w.OutputJSON == nil || *w.OutputJSON != *out {
		t.Errorf("output should be preserved, got %v", w.OutputJSON)
	}
	if w.ProcessedAt == nil {
		t.Error("processed_at should be preserved across running transition")
	}
}

func TestResetMany(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	out := strPtr(`{"theme":"systems"}`)
	if err := db.SetWorkStatus("infer_user_theme", SubjectUser, "alice", StatusSucceeded, out); err != nil {
		t.Fatalf("SetWorkStatus: %v", err)
	}
	if err := db.SetWorkStatus("generate_repo_blurb", SubjectRepo, "alice/tool", StatusFailed, strPtr(`{"reason":"timeout"}`)); err != nil {
		t.Fatalf("SetWorkStatus: %v", err)
	}
	if err := db.SetWorkStatus("fetch_profile", SubjectUser, "bob", StatusSucceeded, nil); err != nil {
		t.Fatalf("SetWorkStatus: %v", err)
	}

	err = db.ResetMany(
		[]string{"infer_user_theme", "generate_repo_blurb"},
		[]SubjectRef{{SubjectUser, "alice"}, {SubjectRepo, "alice/tool"}},
	)
	if err != nil {
		t.Fatalf("ResetMany: %v", err)
	}

	for _, tc := range []struct {
		kind, st, id string
	}{
		{"infer_user_theme", SubjectUser, "alice"},
		{"generate_repo_blurb", SubjectRepo, "alice/tool"},
	} {
		w, _ := db.GetWorkItem(tc.kind, tc.st, tc.id)
		if w.Status != StatusPending {
			t.Errorf("%s: status = %q, want pending", tc.kind, w.Status)
		}
		if w.OutputJSON != nil {
			t.Errorf("%s: output should be cleared", tc.kind)
		}
		if w.ProcessedAt != nil {
			t.Errorf("%s: processed_at should be cleared", tc.kind)
		}
	}

	// Untouched subject keeps its state.
	w, _ := db.GetWorkItem("fetch_profile", SubjectUser, "bob")
	if w.Status != StatusSucceeded {
		t.Errorf("bob should be untouched, got %q", w.Status)
	}
}

func TestResetManyDoesNotCreateRows(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	err = db.ResetMany([]string{"fetch_profile"}, []SubjectRef{{SubjectUser, "nobody"}})
	if err != nil {
		t.Fatalf("ResetMany: %v", err)
	}
	w, _ := db.GetWorkItem("fetch_profile", SubjectUser, "nobody")
	if w != nil {
		t.Error("reset must not create ledger rows")
	}
}

func TestListWorkItems(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	kinds := []string{"fetch_profile", "fetch_repos", "infer_user_theme"}
	for _, k := range kinds {
		if err := db.SetWorkStatus(k, SubjectUser, "alice", StatusSucceeded, nil); err != nil {
			t.Fatalf("SetWorkStatus %s: %v", k, err)
		}
	}

	items, err := db.ListWorkItems(SubjectUser, "alice")
	if err != nil {
		t.Fatalf("ListWorkItems: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
}
