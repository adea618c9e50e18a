package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the GitHub REST API v3.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a GitHub API client. An empty token makes
// unauthenticated requests, which hit much lower rate limits.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) get(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("github api %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, nil
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("github api %s status %d: %s", path, resp.StatusCode, truncateBody(body))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

// GetUser returns the profile for a login, or nil on 404.
func (c *Client) GetUser(ctx context.Context, login string) (*User, error) {
	var u User
	status, err := c.get(ctx, "/users/"+url.PathEscape(login), &u)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	return &u, nil
}

// ListRepos returns the login's repos ordered by most recently pushed,
// walking pagination to the end.
func (c *Client) ListRepos(ctx context.Context, login string) ([]Repo, error) {
	var all []Repo
	for page := 1; ; page++ {
		var batch []Repo
		path := fmt.Sprintf("/users/%s/repos?sort=pushed&per_page=100&page=%d", url.PathEscape(login), page)
		if _, err := c.get(ctx, path, &batch); err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < 100 {
			return all, nil
		}
	}
}

// GetRepo returns metadata for owner/repo, or nil on 404.
func (c *Client) GetRepo(ctx context.Context, fullName string) (*Repo, error) {
	var r Repo
	status, err := c.get(ctx, "/repos/"+fullName, &r)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	return &r, nil
}

// ListBranches returns up to max branch heads.
func (c *Client) ListBranches(ctx context.Context, fullName string, max int) ([]Branch, error) {
	var branches []Branch
	path := fmt.Sprintf("/repos/%s/branches?per_page=%d", fullName, max)
	if _, err := c.get(ctx, path, &branches); err != nil {
		return nil, err
	}
	if len(branches) > max {
		branches = branches[:max]
	}
	return branches, nil
}

// ListAuthorCommits returns commits authored by the login on a branch
// within [since, until).
func (c *Client) ListAuthorCommits(ctx context.Context, fullName, branch, author string, since, until time.Time) ([]Commit, error) {
	var raw []struct {
		SHA    string `json:"sha"`
		Commit struct {
			Author struct {
				Date string `json:"date"`
			} `json:"author"`
		} `json:"commit"`
	}
	path := fmt.Sprintf("/repos/%s/commits?sha=%s&author=%s&since=%s&until=%s&per_page=100",
		fullName,
		url.QueryEscape(branch),
		url.QueryEscape(author),
		since.UTC().Format(time.RFC3339),
		until.UTC().Format(time.RFC3339),
	)
	if _, err := c.get(ctx, path, &raw); err != nil {
		return nil, err
	}
	commits := make([]Commit, 0, len(raw))
	for _, r := range raw {
		commits = append(commits, Commit{SHA: r.SHA, AuthoredAt: r.Commit.Author.Date})
	}
	return commits, nil
}

// GetReadme returns the decoded README body, or "" when the repo has none.
func (c *Client) GetReadme(ctx context.Context, fullName string) (string, error) {
	var raw struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	status, err := c.get(ctx, "/repos/"+fullName+"/readme", &raw)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", nil
	}
	if raw.Encoding != "base64" {
		return raw.Content, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(raw.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("decode readme %s: %w", fullName, err)
	}
	return string(decoded), nil
}

// ListContributedRepos searches commits by author within [since, until)
// and returns the distinct repos outside the login's own namespace.
func (c *Client) ListContributedRepos(ctx context.Context, login string, since, until time.Time) ([]string, error) {
	var result struct {
		Items []struct {
			Repository struct {
				FullName string `json:"full_name"`
			} `json:"repository"`
		} `json:"items"`
	}
	q := fmt.Sprintf("author:%s author-date:%s..%s",
		login,
		since.UTC().Format("2006-01-02"),
		until.UTC().Format("2006-01-02"),
	)
	path := "/search/commits?per_page=100&q=" + url.QueryEscape(q)
	if _, err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []string
	prefix := login + "/"
	for _, it := range result.Items {
		name := it.Repository.FullName
		if name == "" || strings.HasPrefix(name, prefix) || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out, nil
}

func truncateBody(b []byte) string {
	if len(b) > 300 {
		b = b[:300]
	}
	return string(b)
}
