package github

// User is a developer profile as returned by the API.
type User struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	Bio       string `json:"bio"`
	AvatarURL string `json:"avatar_url"`
}

// Repo is the subset of repository metadata the pipeline consumes.
type Repo struct {
	FullName    string   `json:"full_name"` // owner/repo
	Description string   `json:"description"`
	Language    string   `json:"language"`
	Topics      []string `json:"topics"`
	Stars       int      `json:"stargazers_count"`
	Fork        bool     `json:"fork"`
	Homepage    string   `json:"homepage"`
	PushedAt    string   `json:"pushed_at"` // RFC 3339
	Owner       struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// Branch is a repository branch head.
type Branch struct {
	Name string `json:"name"`
}

// Commit carries only what commit-day counting needs.
type Commit struct {
	SHA        string
	AuthoredAt string // RFC 3339
}
