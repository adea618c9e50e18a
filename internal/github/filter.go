package github

import (
	"context"
	"time"
)

const (
	// Repos untouched for longer than this are not profile material.
	maxRepoAge = 2 * 365 * 24 * time.Hour

	// Forks need at least this many distinct days of author commits to
	// count as the user's own work rather than a drive-by clone.
	minForkCommitDays = 4

	// Commit-day counting inspects at most this many branches per repo.
	maxBranchScan = 20

	// Contributed-repo discovery walks back this far in one-year windows.
	contributionLookback = 3
)

// IsProfileMaterial reports whether a repo is fresh and substantial enough
// to appear on a profile: it must name a language and have been pushed
// within the last two years. Fork activity is checked separately.
func IsProfileMaterial(r Repo, now time.Time) bool {
	if r.Language == "" {
		return false
	}
	pushed, err := time.Parse(time.RFC3339, r.PushedAt)
	if err != nil {
		return false
	}
	return now.Sub(pushed) <= maxRepoAge
}

// AuthorCommitDays counts distinct UTC days on which the author committed
// to a repo, scanning up to maxBranchScan branches. Counting short-circuits
// at stopAt since callers only care whether a threshold was reached.
func AuthorCommitDays(ctx context.Context, f Fetcher, fullName, author string, stopAt int, now time.Time) (int, error) {
	branches, err := f.ListBranches(ctx, fullName, maxBranchScan)
	if err != nil {
		return 0, err
	}

	since := now.Add(-maxRepoAge)
	days := make(map[string]bool)
	for _, br := range branches {
		commits, err := f.ListAuthorCommits(ctx, fullName, br.Name, author, since, now)
		if err != nil {
			return 0, err
		}
		for _, c := range commits {
			at, err := time.Parse(time.RFC3339, c.AuthoredAt)
			if err != nil {
				continue
			}
			days[at.UTC().Format("2006-01-02")] = true
			if len(days) >= stopAt {
				return len(days), nil
			}
		}
	}
	return len(days), nil
}

// KeepFork reports whether a fork shows enough of the author's own
// activity to be included.
func KeepFork(ctx context.Context, f Fetcher, fullName, author string, now time.Time) (keep bool, commitDays int, err error) {
	days, err := AuthorCommitDays(ctx, f, fullName, author, minForkCommitDays, now)
	if err != nil {
		return false, 0, err
	}
	return days >= minForkCommitDays, days, nil
}

// DiscoverContributed finds externally owned repos the login committed to,
// walking back in one-year windows. The commit search API caps result
// windows, so one wide query would silently drop older contributions.
func DiscoverContributed(ctx context.Context, f Fetcher, login string, now time.Time) ([]string, error) {
	seen := make(map[string]bool)
	var out []string

	until := now
	for i := 0; i < contributionLookback; i++ {
		since := until.AddDate(-1, 0, 0)
		names, err := f.ListContributedRepos(ctx, login, since, until)
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
		until = since
	}
	return out, nil
}
