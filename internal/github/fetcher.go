package github

import (
	"context"
	"time"
)

// Fetcher is the read surface of the GitHub API the pipeline depends on.
type Fetcher interface {
	// GetUser returns the profile for a login, or nil if it does not exist.
	GetUser(ctx context.Context, login string) (*User, error)

	// ListRepos returns the login's repos ordered by most recently pushed.
	ListRepos(ctx context.Context, login string) ([]Repo, error)

	// GetRepo returns metadata for owner/repo, or nil if it does not exist.
	GetRepo(ctx context.Context, fullName string) (*Repo, error)

	// ListBranches returns up to max branch heads of a repo.
	ListBranches(ctx context.Context, fullName string, max int) ([]Branch, error)

	// ListAuthorCommits returns commits authored by the login on a branch
	// within [since, until).
	ListAuthorCommits(ctx context.Context, fullName, branch, author string, since, until time.Time) ([]Commit, error)

	// GetReadme returns the decoded README body, or "" if the repo has none.
	GetReadme(ctx context.Context, fullName string) (string, error)

	// ListContributedRepos returns full names of repos outside the login's
	// namespace that the login committed to within [since, until).
	ListContributedRepos(ctx context.Context, login string, since, until time.Time) ([]string, error)
}
