package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/stankur/devfeed/internal/config"
	"github.com/stankur/devfeed/internal/embed"
	"github.com/stankur/devfeed/internal/github"
	"github.com/stankur/devfeed/internal/llm"
	"github.com/stankur/devfeed/internal/store"
)

// At most this many repos are highlighted per profile.
const maxHighlights = 6

// Commit-day counting for contributed repos stops at this cap; the
// tie-break only needs relative ordering, not exact totals.
const commitDayCap = 30

// Trending repos are embedded under their own ledger kind, outside the
// per-actor graph.
const KindEmbedTrending = "embed_trending"

// Deps bundles everything stages need. Workers get a copy with their own
// store connection.
type Deps struct {
	DB     *store.DB
	GitHub github.Fetcher
	LLM    llm.Client
	Cache  *embed.Cache
	Cfg    config.Config
	Now    func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// DefaultRegistry wires the full enrichment graph.
func DefaultRegistry() (*Registry, error) {
	return NewRegistry([]Stage{
		{Kind: KindFetchProfile, Run: fetchProfile},
		{Kind: KindFetchRepos, After: []string{KindFetchProfile}, Run: fetchRepos},
		{Kind: KindSelectRepos, After: []string{KindFetchRepos}, Run: selectHighlightedRepos},
		{Kind: KindInferTheme, After: []string{KindSelectRepos}, Run: inferUserTheme},
		{Kind: KindGenerateBlurb, After: []string{KindSelectRepos}, SelfManaged: true, Run: generateRepoBlurbs},
		{Kind: KindEmbedRepos, After: []string{KindGenerateBlurb}, SelfManaged: true, Run: embedRepos},
		{Kind: KindEmbedUser, After: []string{KindEmbedRepos, KindInferTheme}, SelfManaged: true, Run: embedUserProfile},
		{Kind: KindEnhanceMedia, Deferred: true, RunRepo: enhanceRepoMedia},
		{Kind: KindExtractEmph, Deferred: true, RunRepo: extractRepoEmphasis},
		{Kind: KindExtractKeyword, Deferred: true, RunRepo: extractRepoKeywords},
		{Kind: KindExtractKind, Deferred: true, RunRepo: extractRepoKind},
	})
}

// fetchProfile pulls the profile snapshot, carrying enrichment fields and
// the ghost flag over from any existing snapshot.
func fetchProfile(ctx context.Context, d *Deps, actor string) (any, error) {
	existing, err := d.DB.GetUser(actor)
	if err != nil {
		return nil, err
	}

	u, err := d.GitHub.GetUser(ctx, actor)
	if err != nil {
		return nil, err
	}
	if u == nil {
		if existing != nil {
			// Keep serving the stale snapshot rather than erroring a
			// whole run over a renamed or deleted account.
			return ProfileOutput{ProfileFound: false, Ghost: existing.IsGhost}, nil
		}
		return nil, fmt.Errorf("github user %q not found", actor)
	}

	sub := store.UserSubject{
		Login:     u.Login,
		Name:      u.Name,
		Bio:       u.Bio,
		AvatarURL: u.AvatarURL,
	}
	if existing != nil {
		sub.Theme = existing.Theme
		sub.HighlightedRepos = existing.HighlightedRepos
		sub.IsGhost = existing.IsGhost
	}
	if err := d.DB.PutSubject(store.SubjectUser, actor, sub); err != nil {
		return nil, err
	}
	return ProfileOutput{ProfileFound: true, Ghost: sub.IsGhost}, nil
}

// fetchRepos pulls the actor's repos, filters them down to profile
// material, and links the survivors. Forks must show real author
// activity; contributed repos are discovered through commit search.
func fetchRepos(ctx context.Context, d *Deps, actor string) (any, error) {
	now := d.now()
	repos, err := d.GitHub.ListRepos(ctx, actor)
	if err != nil {
		return nil, err
	}

	var out FetchReposOutput
	for _, r := range repos {
		if !github.IsProfileMaterial(r, now) {
			out.Discarded++
			continue
		}
		reason := store.ReasonOwned
		var days *int
		if r.Fork {
			keep, n, err := github.KeepFork(ctx, d.GitHub, r.FullName, actor, now)
			if err != nil {
				return nil, err
			}
			if !keep {
				out.Discarded++
				continue
			}
			reason = store.ReasonForkActive
			days = &n
			out.Forks++
		}
		if err := putRepoSnapshot(d, store.SubjectRepo, r); err != nil {
			return nil, err
		}
		if err := d.DB.UpsertLink(store.Link{
			Username: actor, RepoID: r.FullName, IncludeReason: reason, UserCommitDays: days,
		}); err != nil {
			return nil, err
		}
		out.Linked++
	}

	contributed, err := github.DiscoverContributed(ctx, d.GitHub, actor, now)
	if err != nil {
		return nil, err
	}
	for _, name := range contributed {
		r, err := d.GitHub.GetRepo(ctx, name)
		if err != nil {
			return nil, err
		}
		if r == nil || !github.IsProfileMaterial(*r, now) {
			out.Discarded++
			continue
		}
		days, err := github.AuthorCommitDays(ctx, d.GitHub, name, actor, commitDayCap, now)
		if err != nil {
			return nil, err
		}
		if days == 0 {
			out.Discarded++
			continue
		}
		if err := putRepoSnapshot(d, store.SubjectRepo, *r); err != nil {
			return nil, err
		}
		if err := d.DB.UpsertLink(store.Link{
			Username: actor, RepoID: r.FullName, IncludeReason: store.ReasonContributed, UserCommitDays: &days,
		}); err != nil {
			return nil, err
		}
		out.Contributed++
		out.Linked++
	}
	return out, nil
}

// putRepoSnapshot refreshes API-derived fields while carrying over
// everything other stages wrote into the snapshot.
func putRepoSnapshot(d *Deps, subjectType string, r github.Repo) error {
	sub := store.RepoSubject{
		Name:        r.FullName,
		Description: r.Description,
		Language:    r.Language,
		Topics:      r.Topics,
		Stars:       r.Stars,
		IsFork:      r.Fork,
	}
	if t, err := time.Parse(time.RFC3339, r.PushedAt); err == nil {
		sub.PushedAt = t.UnixMilli()
	}
	existing, err := d.DB.GetRepo(subjectType, r.FullName)
	if err != nil {
		return err
	}
	if existing != nil {
		sub.GeneratedDescription = existing.GeneratedDescription
		sub.Link = existing.Link
		sub.Gallery = existing.Gallery
		sub.Emphasis = existing.Emphasis
		sub.Keywords = existing.Keywords
		sub.Kind = existing.Kind
	}
	return d.DB.PutSubject(subjectType, r.FullName, sub)
}

// selectHighlightedRepos asks the model which linked repos best represent
// the actor and stores the vetted list on the profile.
func selectHighlightedRepos(ctx context.Context, d *Deps, actor string) (any, error) {
	u, err := d.DB.GetUser(actor)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("no profile snapshot for %q", actor)
	}

	links, err := d.DB.ListLinks(actor)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		u.HighlightedRepos = nil
		if err := d.DB.PutSubject(store.SubjectUser, actor, *u); err != nil {
			return nil, err
		}
		return HighlightsOutput{Highlighted: []string{}}, nil
	}

	linked := make(map[string]bool, len(links))
	summaries := make([]llm.RepoSummary, 0, len(links))
	for _, l := range links {
		r, err := d.DB.GetRepo(store.SubjectRepo, l.RepoID)
		if err != nil {
			return nil, err
		}
		if r == nil {
			continue
		}
		linked[l.RepoID] = true
		summaries = append(summaries, repoSummary(*r))
	}

	resp, err := d.LLM.Complete(ctx, llm.HighlightPrompt(actor, u.Bio, summaries, maxHighlights))
	if err != nil {
		return nil, err
	}
	names, err := llm.ParseStringArray(resp.Content)
	if err != nil {
		return nil, err
	}

	// Drop hallucinated names; the model only gets to order what exists.
	var picked []string
	for _, n := range names {
		if linked[n] && len(picked) < maxHighlights {
			picked = append(picked, n)
		}
	}
	if len(picked) == 0 {
		return nil, fmt.Errorf("model selected none of the %d linked repos", len(links))
	}

	u.HighlightedRepos = picked
	if err := d.DB.PutSubject(store.SubjectUser, actor, *u); err != nil {
		return nil, err
	}
	return HighlightsOutput{Highlighted: picked}, nil
}

// inferUserTheme condenses the highlighted repos into a one-line theme.
func inferUserTheme(ctx context.Context, d *Deps, actor string) (any, error) {
	u, err := d.DB.GetUser(actor)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("no profile snapshot for %q", actor)
	}

	summaries, err := highlightedSummaries(d, u)
	if err != nil {
		return nil, err
	}

	resp, err := d.LLM.Complete(ctx, llm.ThemePrompt(actor, u.Bio, summaries))
	if err != nil {
		return nil, err
	}
	theme := strings.TrimSpace(resp.Content)
	if theme == "" {
		return nil, fmt.Errorf("model returned an empty theme")
	}

	u.Theme = theme
	if err := d.DB.PutSubject(store.SubjectUser, actor, *u); err != nil {
		return nil, err
	}
	return ThemeOutput{Theme: theme}, nil
}

// generateRepoBlurbs writes a generated description for each highlighted
// repo. Ledger rows are per repo so a rerun only pays for repos that
// failed or were never attempted.
func generateRepoBlurbs(ctx context.Context, d *Deps, actor string) (any, error) {
	u, err := d.DB.GetUser(actor)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("no profile snapshot for %q", actor)
	}

	var totalChars, failed int
	for _, repoID := range u.HighlightedRepos {
		w, err := d.DB.GetWorkItem(KindGenerateBlurb, store.SubjectRepo, repoID)
		if err != nil {
			return nil, err
		}
		if w != nil && w.Status == store.StatusSucceeded {
			continue
		}
		if err := d.DB.SetWorkStatus(KindGenerateBlurb, store.SubjectRepo, repoID, store.StatusRunning, nil); err != nil {
			return nil, err
		}

		blurb, err := generateOneBlurb(ctx, d, repoID)
		if err != nil {
			if serr := setFailed(d, KindGenerateBlurb, store.SubjectRepo, repoID, err); serr != nil {
				return nil, serr
			}
			failed++
			continue
		}
		totalChars += len(blurb)
		if err := setSucceeded(d, KindGenerateBlurb, store.SubjectRepo, repoID, BlurbOutput{Chars: len(blurb)}); err != nil {
			return nil, err
		}
	}
	return BlurbOutput{Chars: totalChars, Failed: failed}, nil
}

func generateOneBlurb(ctx context.Context, d *Deps, repoID string) (string, error) {
	r, err := d.DB.GetRepo(store.SubjectRepo, repoID)
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", fmt.Errorf("no snapshot for repo %q", repoID)
	}
	readme, err := d.GitHub.GetReadme(ctx, repoID)
	if err != nil {
		return "", err
	}
	resp, err := d.LLM.Complete(ctx, llm.BlurbPrompt(repoSummary(*r), readme))
	if err != nil {
		return "", err
	}
	blurb := strings.TrimSpace(resp.Content)
	if blurb == "" {
		return "", fmt.Errorf("model returned an empty blurb")
	}
	r.GeneratedDescription = blurb
	if err := d.DB.PutSubject(store.SubjectRepo, repoID, *r); err != nil {
		return "", err
	}
	return blurb, nil
}

// embedRepos pushes every highlighted repo through the embedding cache.
// The cache owns the per-repo ledger rows and their content-hash gating.
func embedRepos(ctx context.Context, d *Deps, actor string) (any, error) {
	u, err := d.DB.GetUser(actor)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("no profile snapshot for %q", actor)
	}

	var items []embed.Item
	for _, repoID := range u.HighlightedRepos {
		r, err := d.DB.GetRepo(store.SubjectRepo, repoID)
		if err != nil {
			return nil, err
		}
		if r == nil {
			continue
		}
		items = append(items, embed.Item{
			SubjectType: store.SubjectRepo,
			SubjectID:   repoID,
			Text:        embed.FormatRepo(*r),
		})
	}

	res, err := d.Cache.Ensure(ctx, KindEmbedRepos, items)
	if err != nil {
		return nil, err
	}
	return EmbedStageOutput(res), nil
}

// embedUserProfile embeds the profile text built from the login, bio,
// and highlighted repo snapshots.
func embedUserProfile(ctx context.Context, d *Deps, actor string) (any, error) {
	u, err := d.DB.GetUser(actor)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("no profile snapshot for %q", actor)
	}

	var repos []store.RepoSubject
	for _, repoID := range u.HighlightedRepos {
		r, err := d.DB.GetRepo(store.SubjectRepo, repoID)
		if err != nil {
			return nil, err
		}
		if r != nil {
			repos = append(repos, *r)
		}
	}

	res, err := d.Cache.Ensure(ctx, KindEmbedUser, []embed.Item{{
		SubjectType: store.SubjectUser,
		SubjectID:   actor,
		Text:        embed.FormatUser(*u, repos),
	}})
	if err != nil {
		return nil, err
	}
	return EmbedStageOutput(res), nil
}

var markdownImage = regexp.MustCompile(`!\[[^\]]*\]\(([^)\s]+)`)

// Gallery growth per pass is capped; a README image dump should not
// flood the profile.
const maxGalleryAdd = 6

// enhanceRepoMedia attaches the homepage link and merges README images
// into the gallery, deduplicated by URL.
func enhanceRepoMedia(ctx context.Context, d *Deps, actor, repoID string) (any, error) {
	r, err := d.DB.GetRepo(store.SubjectRepo, repoID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("no snapshot for repo %q", repoID)
	}

	gr, err := d.GitHub.GetRepo(ctx, repoID)
	if err != nil {
		return nil, err
	}
	if gr != nil && gr.Homepage != "" {
		r.Link = normalizeLink(gr.Homepage)
	}

	readme, err := d.GitHub.GetReadme(ctx, repoID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(r.Gallery))
	for _, g := range r.Gallery {
		seen[g.URL] = true
	}
	added := 0
	for _, m := range markdownImage.FindAllStringSubmatch(readme, -1) {
		url := m[1]
		if !strings.HasPrefix(url, "http") || seen[url] || added >= maxGalleryAdd {
			continue
		}
		seen[url] = true
		r.Gallery = append(r.Gallery, store.GalleryImage{URL: url})
		added++
	}

	if err := d.DB.PutSubject(store.SubjectRepo, repoID, *r); err != nil {
		return nil, err
	}
	return MediaOutput{Link: r.Link, GalleryImages: len(r.Gallery)}, nil
}

func normalizeLink(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://" + raw
}

// extractRepoEmphasis stores the model's pick of standout aspects.
func extractRepoEmphasis(ctx context.Context, d *Deps, actor, repoID string) (any, error) {
	return extractList(ctx, d, repoID, llm.EmphasisPrompt, func(r *store.RepoSubject, vals []string) {
		r.Emphasis = vals
	}, func(vals []string) any { return EmphasisOutput{Emphasis: vals} })
}

// extractRepoKeywords stores search keywords for the repo.
func extractRepoKeywords(ctx context.Context, d *Deps, actor, repoID string) (any, error) {
	return extractList(ctx, d, repoID, llm.KeywordsPrompt, func(r *store.RepoSubject, vals []string) {
		r.Keywords = vals
	}, func(vals []string) any { return KeywordsOutput{Keywords: vals} })
}

func extractList(
	ctx context.Context,
	d *Deps,
	repoID string,
	prompt func(llm.RepoSummary, string) string,
	apply func(*store.RepoSubject, []string),
	output func([]string) any,
) (any, error) {
	r, err := d.DB.GetRepo(store.SubjectRepo, repoID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("no snapshot for repo %q", repoID)
	}
	readme, err := d.GitHub.GetReadme(ctx, repoID)
	if err != nil {
		return nil, err
	}
	resp, err := d.LLM.Complete(ctx, prompt(repoSummary(*r), readme))
	if err != nil {
		return nil, err
	}
	vals, err := llm.ParseStringArray(resp.Content)
	if err != nil {
		return nil, err
	}
	apply(r, vals)
	if err := d.DB.PutSubject(store.SubjectRepo, repoID, *r); err != nil {
		return nil, err
	}
	return output(vals), nil
}

// extractRepoKind classifies the repo into one of the fixed kinds.
func extractRepoKind(ctx context.Context, d *Deps, actor, repoID string) (any, error) {
	r, err := d.DB.GetRepo(store.SubjectRepo, repoID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("no snapshot for repo %q", repoID)
	}
	readme, err := d.GitHub.GetReadme(ctx, repoID)
	if err != nil {
		return nil, err
	}
	resp, err := d.LLM.Complete(ctx, llm.KindPrompt(repoSummary(*r), readme))
	if err != nil {
		return nil, err
	}
	kind := llm.ParseWord(resp.Content)
	valid := false
	for _, k := range llm.RepoKinds {
		if kind == k {
			valid = true
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("model answered %q, not a known kind", kind)
	}
	r.Kind = kind
	if err := d.DB.PutSubject(store.SubjectRepo, repoID, *r); err != nil {
		return nil, err
	}
	return KindOutput{Kind: kind}, nil
}

// RefreshTrending snapshots the given repos as trending subjects and
// embeds them through the same content-hash gated cache the per-actor
// pipeline uses.
func RefreshTrending(ctx context.Context, d *Deps, fullNames []string) (EmbedStageOutput, error) {
	var items []embed.Item
	for _, name := range fullNames {
		r, err := d.GitHub.GetRepo(ctx, name)
		if err != nil {
			return EmbedStageOutput{}, err
		}
		if r == nil {
			continue
		}
		if err := putRepoSnapshot(d, store.SubjectTrendingRepo, *r); err != nil {
			return EmbedStageOutput{}, err
		}
		sub, err := d.DB.GetRepo(store.SubjectTrendingRepo, name)
		if err != nil {
			return EmbedStageOutput{}, err
		}
		items = append(items, embed.Item{
			SubjectType: store.SubjectTrendingRepo,
			SubjectID:   name,
			Text:        embed.FormatRepo(*sub),
		})
	}
	res, err := d.Cache.Ensure(ctx, KindEmbedTrending, items)
	if err != nil {
		return EmbedStageOutput{}, err
	}
	return EmbedStageOutput(res), nil
}

func highlightedSummaries(d *Deps, u *store.UserSubject) ([]llm.RepoSummary, error) {
	var out []llm.RepoSummary
	for _, repoID := range u.HighlightedRepos {
		r, err := d.DB.GetRepo(store.SubjectRepo, repoID)
		if err != nil {
			return nil, err
		}
		if r != nil {
			out = append(out, repoSummary(*r))
		}
	}
	return out, nil
}

func repoSummary(r store.RepoSubject) llm.RepoSummary {
	return llm.RepoSummary{
		Name:        r.Name,
		Description: r.Description,
		Language:    r.Language,
		Topics:      r.Topics,
		Stars:       r.Stars,
	}
}
