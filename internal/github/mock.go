package github

import (
	"context"
	"time"
)

// MockFetcher is a test double for the Fetcher interface, backed by maps.
type MockFetcher struct {
	Users       map[string]*User
	Repos       map[string][]Repo   // login -> repos
	RepoByName  map[string]*Repo    // full name -> repo
	Branches    map[string][]Branch // full name -> branches
	Commits     map[string][]Commit // full name + "@" + branch -> commits
	Readmes     map[string]string
	Contributed map[string][]string // login -> full names

	Err error
}

func (m *MockFetcher) GetUser(ctx context.Context, login string) (*User, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Users[login], nil
}

func (m *MockFetcher) ListRepos(ctx context.Context, login string) ([]Repo, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Repos[login], nil
}

func (m *MockFetcher) GetRepo(ctx context.Context, fullName string) (*Repo, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.RepoByName[fullName], nil
}

func (m *MockFetcher) ListBranches(ctx context.Context, fullName string, max int) ([]Branch, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	branches := m.Branches[fullName]
	if len(branches) > max {
		branches = branches[:max]
	}
	return branches, nil
}

func (m *MockFetcher) ListAuthorCommits(ctx context.Context, fullName, branch, author string, since, until time.Time) ([]Commit, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Commits[fullName+"@"+branch], nil
}

func (m *MockFetcher) GetReadme(ctx context.Context, fullName string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	return m.Readmes[fullName], nil
}

func (m *MockFetcher) ListContributedRepos(ctx context.Context, login string, since, until time.Time) ([]string, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Contributed[login], nil
}
