package server

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stankur/devfeed/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	schema, err := s.db.SchemaVersion()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"schema_version": schema,
	})
}

// handleLogin activates the login: a pre-fetched ghost profile becomes a
// real user, and an enrichment run kicks off in the background.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "login")

	u, err := s.db.GetUser(login)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	activated := false
	if u != nil && u.IsGhost {
		u.IsGhost = false
		if err := s.db.PutSubject(store.SubjectUser, login, *u); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		activated = true
	}

	s.runAsync(login)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"login":           login,
		"ghost_activated": activated,
		"status":          "run started",
	})
}

// handleStart kicks off a run; finished work is skipped via the ledger.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "login")
	s.runAsync(login)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"login":  login,
		"status": "run started",
	})
}

// handleRestart resets every ledger row for the login and reruns.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "login")
	if err := s.orch.ResetActor(login); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.runAsync(login)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"login":  login,
		"status": "reset, run started",
	})
}

// handleRestartFrom resets one stage and its downstream, then reruns.
func (s *Server) handleRestartFrom(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "login")
	kind := chi.URLParam(r, "kind")
	if err := s.orch.ResetFrom(login, kind); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.runAsync(login)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"login":  login,
		"from":   kind,
		"status": "reset, run started",
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "login")
	if err := s.db.DeleteUserData(login); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"login":  login,
		"status": "deleted",
	})
}

// handleWorkItems lists the ledger for the login and every linked repo.
func (s *Server) handleWorkItems(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "login")

	items, err := s.db.ListWorkItems(store.SubjectUser, login)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	links, err := s.db.ListLinks(login)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, l := range links {
		repoItems, err := s.db.ListWorkItems(store.SubjectRepo, l.RepoID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		items = append(items, repoItems...)
	}

	type workItem struct {
		ID          string  `json:"id"`
		Kind        string  `json:"kind"`
		SubjectType string  `json:"subject_type"`
		SubjectID   string  `json:"subject_id"`
		Status      string  `json:"status"`
		Output      *string `json:"output,omitempty"`
		ProcessedAt *int64  `json:"processed_at,omitempty"`
	}
	out := make([]workItem, len(items))
	for i, it := range items {
		out[i] = workItem{
			ID: it.ID, Kind: it.Kind,
			SubjectType: it.SubjectType, SubjectID: it.SubjectID,
			Status: it.Status, Output: it.OutputJSON, ProcessedAt: it.ProcessedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"work_items": out})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "login")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	items, err := s.ranker.Serve(login, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// runAsync starts a pipeline run in the background. The request already
// got its 202; progress is observable through the work-items route.
func (s *Server) runAsync(login string) {
	go func() {
		res := s.orch.RunActor(context.Background(), login)
		if n := res.Failed(); n > 0 {
			log.Printf("[server] run %s for %s finished with %d failed stages", res.RunID, login, n)
		}
	}()
}
