package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stankur/devfeed/internal/config"
	"github.com/stankur/devfeed/internal/embed"
	"github.com/stankur/devfeed/internal/feed"
	"github.com/stankur/devfeed/internal/github"
	"github.com/stankur/devfeed/internal/llm"
	"github.com/stankur/devfeed/internal/pipeline"
	"github.com/stankur/devfeed/internal/store"
)

func newTestServer(t *testing.T, apiKey string) (*Server, *store.DB) {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.Server.APIKey = apiKey
	cfg.Pipeline.FanOutWorkers = 1

	deps := &pipeline.Deps{
		DB:     db,
		GitHub: &github.MockFetcher{Users: map[string]*github.User{}},
		LLM:    &llm.MockClient{},
		Cache:  embed.NewCache(db, &embed.MockEmbedder{Dim: 4}, 20),
		Cfg:    cfg,
	}
	reg, err := pipeline.DefaultRegistry()
	require.NoError(t, err)

	return New(db, cfg, pipeline.NewOrchestrator(reg, deps), feed.NewRanker(db, cfg.Feed), "test"), db
}

func do(t *testing.T, s *Server, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthSkipsAuth(t *testing.T) {
	s, _ := newTestServer(t, "secret")

	w := do(t, s, "GET", "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotZero(t, body["schema_version"])
}

func TestAuthRequired(t *testing.T) {
	s, _ := newTestServer(t, "secret")

	assert.Equal(t, http.StatusUnauthorized, do(t, s, "GET", "/users/alice/feed", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, s, "GET", "/users/alice/feed", "wrong").Code)
	assert.Equal(t, http.StatusOK, do(t, s, "GET", "/users/alice/feed", "secret").Code)
}

func TestNoKeyMeansOpenServer(t *testing.T) {
	s, _ := newTestServer(t, "")
	assert.Equal(t, http.StatusOK, do(t, s, "GET", "/users/alice/feed", "").Code)
}

func TestLoginActivatesGhost(t *testing.T) {
	s, db := newTestServer(t, "")
	require.NoError(t, db.PutSubject(store.SubjectUser, "alice", store.UserSubject{
		Login: "alice", IsGhost: true,
	}))

	w := do(t, s, "POST", "/users/alice/login", "")
	require.Equal(t, http.StatusAccepted, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["ghost_activated"])

	u, err := db.GetUser("alice")
	require.NoError(t, err)
	assert.False(t, u.IsGhost)
}

func TestLoginUnknownUserStillAccepted(t *testing.T) {
	s, _ := newTestServer(t, "")
	w := do(t, s, "POST", "/users/newcomer/login", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestRestartFromUnknownKind(t *testing.T) {
	s, _ := newTestServer(t, "")
	w := do(t, s, "POST", "/users/alice/restart-from/no_such_stage", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteUser(t *testing.T) {
	s, db := newTestServer(t, "")
	require.NoError(t, db.PutSubject(store.SubjectUser, "alice", store.UserSubject{Login: "alice"}))

	w := do(t, s, "DELETE", "/users/alice", "")
	require.Equal(t, http.StatusOK, w.Code)

	u, err := db.GetUser("alice")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestWorkItemsIncludeLinkedRepos(t *testing.T) {
	s, db := newTestServer(t, "")
	require.NoError(t, db.SetWorkStatus("fetch_profile", store.SubjectUser, "alice", store.StatusSucceeded, nil))
	require.NoError(t, db.PutSubject(store.SubjectRepo, "alice/tool", store.RepoSubject{Name: "alice/tool"}))
	require.NoError(t, db.UpsertLink(store.Link{Username: "alice", RepoID: "alice/tool", IncludeReason: store.ReasonOwned}))
	require.NoError(t, db.SetWorkStatus("generate_repo_blurb", store.SubjectRepo, "alice/tool", store.StatusFailed, nil))

	w := do(t, s, "GET", "/users/alice/work-items", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		WorkItems []struct {
			Kind   string `json:"kind"`
			Status string `json:"status"`
		} `json:"work_items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.WorkItems, 2)
}

func TestFeedEmptyForUnembeddedViewer(t *testing.T) {
	s, _ := newTestServer(t, "")

	w := do(t, s, "GET", "/users/alice/feed", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Items []feed.Item `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Items)
}

func TestFeedLimitQueryParam(t *testing.T) {
	s, db := newTestServer(t, "")
	require.NoError(t, db.PutSubject(store.SubjectUser, "viewer", store.UserSubject{Login: "viewer"}))
	require.NoError(t, db.SetEmbedding(store.SubjectUser, "viewer", []float64{1, 0}))
	for _, id := range []string{"alice/a", "bob/b"} {
		require.NoError(t, db.PutSubject(store.SubjectRepo, id, store.RepoSubject{Name: id}))
		require.NoError(t, db.SetEmbedding(store.SubjectRepo, id, []float64{1, 0}))
		require.NoError(t, db.UpsertLink(store.Link{Username: "viewer", RepoID: id, IncludeReason: store.ReasonOwned}))
	}

	w := do(t, s, "GET", "/users/viewer/feed?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Items []feed.Item `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Items, 1)
}

func TestFeedRejectsBadLimit(t *testing.T) {
	s, _ := newTestServer(t, "")
	assert.Equal(t, http.StatusBadRequest, do(t, s, "GET", "/users/alice/feed?limit=abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, "GET", "/users/alice/feed?limit=0", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, "GET", "/users/alice/feed?limit=-3", "").Code)
}

func TestStartIsAsync(t *testing.T) {
	s, db := newTestServer(t, "")

	w := do(t, s, "POST", "/users/nobody/start", "")
	require.Equal(t, http.StatusAccepted, w.Code)

	// The background run lands a failed fetch_profile row eventually.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		item, err := db.GetWorkItem("fetch_profile", store.SubjectUser, "nobody")
		require.NoError(t, err)
		if item != nil && item.Status == store.StatusFailed {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("background run never recorded the failure")
}
