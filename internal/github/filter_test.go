package github

import (
	"context"
	"testing"
	"time"
)

var now = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

func ts(t time.Time) string { return t.Format(time.RFC3339) }

func TestIsProfileMaterial(t *testing.T) {
	cases := []struct {
		name string
		repo Repo
		want bool
	}{
		{"fresh with language", Repo{Language: "Go", PushedAt: ts(now.AddDate(0, -3, 0))}, true},
		{"no language", Repo{PushedAt: ts(now.AddDate(0, -3, 0))}, false},
		{"stale", Repo{Language: "Go", PushedAt: ts(now.AddDate(-3, 0, 0))}, false},
		{"bad timestamp", Repo{Language: "Go", PushedAt: "yesterday"}, false},
	}
	for _, tc := range cases {
		if got := IsProfileMaterial(tc.repo, now); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestAuthorCommitDaysShortCircuits(t *testing.T) {
	// Five distinct days on the first branch; counting should stop at 4
	// without touching the second branch.
	var commits []Commit
	for i := 0; i < 5; i++ {
		commits = append(commits, Commit{AuthoredAt: ts(now.AddDate(0, 0, -i))})
	}
	f := &MockFetcher{
		Branches: map[string][]Branch{"alice/fork": {{Name: "main"}, {Name: "dev"}}},
		Commits:  map[string][]Commit{"alice/fork@main": commits},
	}

	days, err := AuthorCommitDays(context.Background(), f, "alice/fork", "alice", minForkCommitDays, now)
	if err != nil {
		t.Fatalf("AuthorCommitDays: %v", err)
	}
	if days != minForkCommitDays {
		t.Errorf("days = %d, want %d (short-circuit)", days, minForkCommitDays)
	}
}

func TestAuthorCommitDaysDedupesSameDay(t *testing.T) {
	day := now.AddDate(0, 0, -1)
	f := &MockFetcher{
		Branches: map[string][]Branch{"alice/fork": {{Name: "main"}}},
		Commits: map[string][]Commit{"alice/fork@main": {
			{AuthoredAt: ts(day)},
			{AuthoredAt: ts(day.Add(2 * time.Hour))},
			{AuthoredAt: ts(day.Add(5 * time.Hour))},
		}},
	}

	days, err := AuthorCommitDays(context.Background(), f, "alice/fork", "alice", minForkCommitDays, now)
	if err != nil {
		t.Fatalf("AuthorCommitDays: %v", err)
	}
	if days != 1 {
		t.Errorf("days = %d, want 1", days)
	}
}

func TestKeepFork(t *testing.T) {
	f := &MockFetcher{
		Branches: map[string][]Branch{
			"alice/active":   {{Name: "main"}},
			"alice/driveby":  {{Name: "main"}},
			"alice/branches": {{Name: "main"}, {Name: "feat"}},
		},
		Commits: map[string][]Commit{
			"alice/active@main": {
				{AuthoredAt: ts(now.AddDate(0, 0, -1))},
				{AuthoredAt: ts(now.AddDate(0, 0, -2))},
				{AuthoredAt: ts(now.AddDate(0, 0, -3))},
				{AuthoredAt: ts(now.AddDate(0, 0, -4))},
			},
			"alice/driveby@main": {
				{AuthoredAt: ts(now.AddDate(0, 0, -1))},
			},
			// Days spread across branches still accumulate.
			"alice/branches@main": {
				{AuthoredAt: ts(now.AddDate(0, 0, -1))},
				{AuthoredAt: ts(now.AddDate(0, 0, -2))},
			},
			"alice/branches@feat": {
				{AuthoredAt: ts(now.AddDate(0, 0, -3))},
				{AuthoredAt: ts(now.AddDate(0, 0, -4))},
			},
		},
	}

	keep, days, err := KeepFork(context.Background(), f, "alice/active", "alice", now)
	if err != nil {
		t.Fatalf("KeepFork: %v", err)
	}
	if !keep || days != 4 {
		t.Errorf("active fork: keep=%v days=%d, want keep with 4 days", keep, days)
	}

	keep, days, err = KeepFork(context.Background(), f, "alice/driveby", "alice", now)
	if err != nil {
		t.Fatalf("KeepFork: %v", err)
	}
	if keep || days != 1 {
		t.Errorf("driveby fork: keep=%v days=%d, want dropped with 1 day", keep, days)
	}

	keep, _, err = KeepFork(context.Background(), f, "alice/branches", "alice", now)
	if err != nil {
		t.Fatalf("KeepFork: %v", err)
	}
	if !keep {
		t.Error("cross-branch days should accumulate to keep the fork")
	}
}

func TestDiscoverContributedDedupes(t *testing.T) {
	f := &MockFetcher{
		Contributed: map[string][]string{
			"alice": {"upstream/core", "upstream/core", "other/lib"},
		},
	}
	names, err := DiscoverContributed(context.Background(), f, "alice", now)
	if err != nil {
		t.Fatalf("DiscoverContributed: %v", err)
	}
	// The mock returns the same list per window; dedup collapses repeats
	// across the three one-year windows too.
	if len(names) != 2 {
		t.Errorf("got %v, want 2 distinct repos", names)
	}
}
