package pipeline

import (
	"context"
	"fmt"
	"sort"
)

// Stage kinds, one per unit of enrichment work.
const (
	KindFetchProfile   = "fetch_profile"
	KindFetchRepos     = "fetch_repos"
	KindSelectRepos    = "select_highlighted_repos"
	KindInferTheme     = "infer_user_theme"
	KindGenerateBlurb  = "generate_repo_blurb"
	KindEmbedRepos     = "embed_repos"
	KindEmbedUser      = "embed_user_profile"
	KindEnhanceMedia   = "enhance_repo_media"
	KindExtractEmph    = "extract_repo_emphasis"
	KindExtractKeyword = "extract_repo_keywords"
	KindExtractKind    = "extract_repo_kind"
)

// Stage describes one node of the enrichment graph.
type Stage struct {
	Kind string

	// After lists upstream kinds that must have run in this pass first.
	After []string

	// Deferred stages run after the critical path completes, fanned out
	// per highlighted repo.
	Deferred bool

	// SelfManaged stages maintain their own ledger rows (at finer
	// granularity than the stage itself) instead of getting the generic
	// skip-if-succeeded wrapper.
	SelfManaged bool

	// Run executes an actor-scoped stage and returns its typed output.
	Run func(ctx context.Context, d *Deps, actor string) (any, error)

	// RunRepo executes a deferred stage against one highlighted repo.
	RunRepo func(ctx context.Context, d *Deps, actor, repoID string) (any, error)
}

// Registry holds the validated stage graph.
type Registry struct {
	stages []Stage
	byKind map[string]*Stage
	order  []string // topological, critical path only
}

// NewRegistry validates the graph: kinds unique, upstream references
// known, no cycles. The topological order is computed once here.
func NewRegistry(stages []Stage) (*Registry, error) {
	r := &Registry{stages: stages, byKind: make(map[string]*Stage, len(stages))}
	for i := range stages {
		s := &stages[i]
		if s.Kind == "" {
			return nil, fmt.Errorf("stage %d has no kind", i)
		}
		if _, dup := r.byKind[s.Kind]; dup {
			return nil, fmt.Errorf("duplicate stage kind %q", s.Kind)
		}
		r.byKind[s.Kind] = s
	}
	for _, s := range stages {
		for _, up := range s.After {
			if _, ok := r.byKind[up]; !ok {
				return nil, fmt.Errorf("stage %q depends on unknown kind %q", s.Kind, up)
			}
		}
	}

	order, err := r.topoSort()
	if err != nil {
		return nil, err
	}
	r.order = order
	return r, nil
}

// Get returns the stage for a kind, or nil.
func (r *Registry) Get(kind string) *Stage {
	return r.byKind[kind]
}

// Kinds returns every registered kind, critical path in execution order
// followed by deferred kinds.
func (r *Registry) Kinds() []string {
	out := append([]string{}, r.order...)
	for _, s := range r.stages {
		if s.Deferred {
			out = append(out, s.Kind)
		}
	}
	return out
}

// CriticalOrder returns the non-deferred kinds in execution order.
func (r *Registry) CriticalOrder() []string {
	return r.order
}

// DeferredKinds returns the fan-out kinds in registration order.
func (r *Registry) DeferredKinds() []string {
	var out []string
	for _, s := range r.stages {
		if s.Deferred {
			out = append(out, s.Kind)
		}
	}
	return out
}

// DownstreamOf returns kind plus every kind that transitively depends on
// it, plus all deferred kinds when kind is on the critical path: deferred
// work always reruns once its inputs may have changed.
func (r *Registry) DownstreamOf(kind string) ([]string, error) {
	if _, ok := r.byKind[kind]; !ok {
		return nil, fmt.Errorf("unknown stage kind %q", kind)
	}

	affected := map[string]bool{kind: true}
	// Dependents reachable through After edges, to a fixed point.
	for changed := true; changed; {
		changed = false
		for _, s := range r.stages {
			if affected[s.Kind] {
				continue
			}
			for _, up := range s.After {
				if affected[up] {
					affected[s.Kind] = true
					changed = true
					break
				}
			}
		}
	}

	if !r.byKind[kind].Deferred {
		for _, s := range r.stages {
			if s.Deferred {
				affected[s.Kind] = true
			}
		}
	}

	out := make([]string, 0, len(affected))
	for k := range affected {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// topoSort orders the critical path by Kahn's algorithm. Deferred stages
// are excluded: they all run after the last critical stage.
func (r *Registry) topoSort() ([]string, error) {
	indegree := make(map[string]int)
	dependents := make(map[string][]string)
	for _, s := range r.stages {
		if s.Deferred {
			continue
		}
		indegree[s.Kind] += 0
		for _, up := range s.After {
			if r.byKind[up].Deferred {
				return nil, fmt.Errorf("stage %q depends on deferred stage %q", s.Kind, up)
			}
			indegree[s.Kind]++
			dependents[up] = append(dependents[up], s.Kind)
		}
	}

	// Seed with roots in registration order for stable output.
	var queue []string
	for _, s := range r.stages {
		if !s.Deferred && indegree[s.Kind] == 0 {
			queue = append(queue, s.Kind)
		}
	}

	var order []string
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		order = append(order, k)
		for _, dep := range dependents[k] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	if len(order) != len(indegree) {
		return nil, fmt.Errorf("stage graph has a cycle")
	}
	return order, nil
}
