package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/stankur/devfeed/internal/store"
)

// Stage result statuses within one run. Ledger statuses are separate:
// a stage skipped here because its work already succeeded keeps its
// succeeded ledger row.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
	RunSkipped   = "skipped"
	RunBlocked   = "blocked" // an upstream stage failed this run
)

// StageResult is the outcome of one stage (or one fan-out task) in a run.
type StageResult struct {
	Kind        string `json:"kind"`
	SubjectType string `json:"subject_type"`
	SubjectID   string `json:"subject_id"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

// RunResult aggregates a whole pipeline pass. Runs never raise: every
// failure is recorded here and in the ledger instead.
type RunResult struct {
	RunID      string        `json:"run_id"`
	Actor      string        `json:"actor"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Stages     []StageResult `json:"stages"`
}

// Failed counts stages that failed in this run.
func (r *RunResult) Failed() int {
	n := 0
	for _, s := range r.Stages {
		if s.Status == RunFailed {
			n++
		}
	}
	return n
}

// partialFailure is implemented by stage outputs that track per-subject
// failures their stage absorbed instead of returning as an error.
type partialFailure interface {
	failedSubjects() int
}

// Orchestrator schedules the stage graph for one actor at a time.
// Concurrent runs for the same actor are not locked out; the ledger
// makes double execution wasteful but harmless.
type Orchestrator struct {
	Registry *Registry
	Deps     *Deps
}

// NewOrchestrator wires an orchestrator.
func NewOrchestrator(reg *Registry, deps *Deps) *Orchestrator {
	return &Orchestrator{Registry: reg, Deps: deps}
}

// RunActor executes the critical path sequentially, then fans the
// deferred stages out across the actor's highlighted repos.
func (o *Orchestrator) RunActor(ctx context.Context, actor string) *RunResult {
	res := &RunResult{
		RunID:     ulid.Make().String(),
		Actor:     actor,
		StartedAt: time.Now(),
	}
	log.Printf("[pipeline] run %s starting for %s", res.RunID, actor)

	blocked := make(map[string]bool)
	for _, kind := range o.Registry.CriticalOrder() {
		stage := o.Registry.Get(kind)

		upstreamBlocked := false
		for _, up := range stage.After {
			if blocked[up] {
				upstreamBlocked = true
				break
			}
		}
		if upstreamBlocked {
			blocked[kind] = true
			res.Stages = append(res.Stages, StageResult{
				Kind: kind, SubjectType: store.SubjectUser, SubjectID: actor, Status: RunBlocked,
			})
			continue
		}

		sr := o.runCritical(ctx, stage, actor)
		if sr.Status == RunFailed {
			blocked[kind] = true
		}
		res.Stages = append(res.Stages, sr)
	}

	res.Stages = append(res.Stages, o.runDeferred(ctx, actor)...)
	res.FinishedAt = time.Now()
	log.Printf("[pipeline] run %s finished for %s: %d stages, %d failed",
		res.RunID, actor, len(res.Stages), res.Failed())
	return res
}

func (o *Orchestrator) runCritical(ctx context.Context, stage *Stage, actor string) StageResult {
	sr := StageResult{
		Kind:        stage.Kind,
		SubjectType: store.SubjectUser,
		SubjectID:   actor,
	}

	if !stage.SelfManaged {
		w, err := o.Deps.DB.GetWorkItem(stage.Kind, store.SubjectUser, actor)
		if err != nil {
			sr.Status = RunFailed
			sr.Error = err.Error()
			return sr
		}
		if w != nil && w.Status == store.StatusSucceeded {
			sr.Status = RunSkipped
			return sr
		}
		if err := o.Deps.DB.SetWorkStatus(stage.Kind, store.SubjectUser, actor, store.StatusRunning, nil); err != nil {
			sr.Status = RunFailed
			sr.Error = err.Error()
			return sr
		}
	}

	output, err := stage.Run(ctx, o.Deps, actor)
	if err != nil {
		log.Printf("[pipeline] %s failed for %s: %v", stage.Kind, actor, err)
		sr.Status = RunFailed
		sr.Error = err.Error()
		if !stage.SelfManaged {
			if serr := setFailed(o.Deps, stage.Kind, store.SubjectUser, actor, err); serr != nil {
				sr.Error = fmt.Sprintf("%v (and recording failed: %v)", err, serr)
			}
		}
		return sr
	}

	// Self-managed stages report per-subject failures through their
	// output; those must surface in the run aggregate, not vanish
	// behind a nil error.
	if pf, ok := output.(partialFailure); ok && pf.failedSubjects() > 0 {
		log.Printf("[pipeline] %s for %s: %d subjects failed", stage.Kind, actor, pf.failedSubjects())
		sr.Status = RunFailed
		sr.Error = fmt.Sprintf("%d subjects failed", pf.failedSubjects())
		return sr
	}

	if !stage.SelfManaged {
		if err := setSucceeded(o.Deps, stage.Kind, store.SubjectUser, actor, output); err != nil {
			sr.Status = RunFailed
			sr.Error = err.Error()
			return sr
		}
	}
	sr.Status = RunSucceeded
	return sr
}

// runDeferred fans (deferred kind x highlighted repo) tasks across a
// bounded worker pool. Each slot owns its own store connection; SQLite
// connections are not shared across workers.
func (o *Orchestrator) runDeferred(ctx context.Context, actor string) []StageResult {
	kinds := o.Registry.DeferredKinds()
	if len(kinds) == 0 {
		return nil
	}

	u, err := o.Deps.DB.GetUser(actor)
	if err != nil {
		return []StageResult{{Kind: "deferred", SubjectType: store.SubjectUser, SubjectID: actor, Status: RunFailed, Error: err.Error()}}
	}
	if u == nil || len(u.HighlightedRepos) == 0 {
		return nil
	}

	workers := o.Deps.Cfg.Pipeline.FanOutWorkers
	if workers <= 0 {
		workers = 1
	}

	pool := make(chan *Deps, workers)
	for i := 0; i < workers; i++ {
		db, err := o.Deps.DB.Clone()
		if err != nil {
			return []StageResult{{Kind: "deferred", SubjectType: store.SubjectUser, SubjectID: actor, Status: RunFailed, Error: err.Error()}}
		}
		d := *o.Deps
		d.DB = db
		pool <- &d
	}
	defer func() {
		for i := 0; i < workers; i++ {
			d := <-pool
			if d.DB != o.Deps.DB {
				d.DB.Close()
			}
		}
	}()

	var mu sync.Mutex
	var results []StageResult

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, kind := range kinds {
		for _, repoID := range u.HighlightedRepos {
			kind, repoID := kind, repoID
			g.Go(func() error {
				d := <-pool
				defer func() { pool <- d }()

				sr := o.runRepoTask(gctx, d, kind, actor, repoID)
				mu.Lock()
				results = append(results, sr)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait() // tasks record their own failures
	return results
}

func (o *Orchestrator) runRepoTask(ctx context.Context, d *Deps, kind, actor, repoID string) StageResult {
	sr := StageResult{
		Kind:        kind,
		SubjectType: store.SubjectRepo,
		SubjectID:   repoID,
	}
	stage := o.Registry.Get(kind)

	w, err := d.DB.GetWorkItem(kind, store.SubjectRepo, repoID)
	if err != nil {
		sr.Status = RunFailed
		sr.Error = err.Error()
		return sr
	}
	if w != nil && w.Status == store.StatusSucceeded {
		sr.Status = RunSkipped
		return sr
	}
	if err := d.DB.SetWorkStatus(kind, store.SubjectRepo, repoID, store.StatusRunning, nil); err != nil {
		sr.Status = RunFailed
		sr.Error = err.Error()
		return sr
	}

	output, err := stage.RunRepo(ctx, d, actor, repoID)
	if err != nil {
		log.Printf("[pipeline] %s failed for %s: %v", kind, repoID, err)
		sr.Status = RunFailed
		sr.Error = err.Error()
		if serr := setFailed(d, kind, store.SubjectRepo, repoID, err); serr != nil {
			sr.Error = fmt.Sprintf("%v (and recording failed: %v)", err, serr)
		}
		return sr
	}
	if err := setSucceeded(d, kind, store.SubjectRepo, repoID, output); err != nil {
		sr.Status = RunFailed
		sr.Error = err.Error()
		return sr
	}
	sr.Status = RunSucceeded
	return sr
}

// ResetActor sets every ledger row for the actor and their linked repos
// back to pending. The next run redoes everything.
func (o *Orchestrator) ResetActor(actor string) error {
	return o.reset(actor, o.Registry.Kinds())
}

// ResetFrom resets one stage and everything transitively downstream of
// it, leaving unrelated finished work in place.
func (o *Orchestrator) ResetFrom(actor, kind string) error {
	kinds, err := o.Registry.DownstreamOf(kind)
	if err != nil {
		return err
	}
	return o.reset(actor, kinds)
}

func (o *Orchestrator) reset(actor string, kinds []string) error {
	refs := []store.SubjectRef{{Type: store.SubjectUser, ID: actor}}
	links, err := o.Deps.DB.ListLinks(actor)
	if err != nil {
		return err
	}
	for _, l := range links {
		refs = append(refs, store.SubjectRef{Type: store.SubjectRepo, ID: l.RepoID})
	}
	return o.Deps.DB.ResetMany(kinds, refs)
}

func setSucceeded(d *Deps, kind, subjectType, subjectID string, output any) error {
	var out *string
	if output != nil {
		b, err := json.Marshal(output)
		if err != nil {
			return fmt.Errorf("marshal %s output: %w", kind, err)
		}
		s := string(b)
		out = &s
	}
	return d.DB.SetWorkStatus(kind, subjectType, subjectID, store.StatusSucceeded, out)
}

func setFailed(d *Deps, kind, subjectType, subjectID string, cause error) error {
	b, _ := json.Marshal(FailureOutput{Reason: cause.Error()})
	s := string(b)
	return d.DB.SetWorkStatus(kind, subjectType, subjectID, store.StatusFailed, &s)
}
