package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Repo kinds the extraction prompt is allowed to answer with.
var RepoKinds = []string{"library", "tool", "application", "framework", "infra", "experiment"}

// RepoSummary is the slim repo view handed to prompt builders.
type RepoSummary struct {
	Name        string
	Description string
	Language    string
	Topics      []string
	Stars       int
}

// HighlightPrompt asks for the repos that best represent a developer,
// answered as a JSON array of full repo names.
func HighlightPrompt(login, bio string, repos []RepoSummary, max int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are curating a developer's profile page.\n")
	fmt.Fprintf(&b, "Developer: %s\n", login)
	if bio != "" {
		fmt.Fprintf(&b, "Bio: %s\n", bio)
	}
	b.WriteString("\nRepositories:\n")
	writeRepoList(&b, repos)
	fmt.Fprintf(&b, "\nPick up to %d repositories that best showcase this developer's work.\n", max)
	b.WriteString("Respond with ONLY a JSON array of full repository names, most representative first.\n")
	return b.String()
}

// ThemePrompt asks for a one-line theme describing the developer's focus.
func ThemePrompt(login, bio string, repos []RepoSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Developer: %s\n", login)
	if bio != "" {
		fmt.Fprintf(&b, "Bio: %s\n", bio)
	}
	b.WriteString("\nHighlighted repositories:\n")
	writeRepoList(&b, repos)
	b.WriteString("\nIn one short sentence, what is this developer's overall focus or theme?\n")
	b.WriteString("Respond with ONLY the sentence, no quotes.\n")
	return b.String()
}

// BlurbPrompt asks for a one-to-two sentence description of a repo.
func BlurbPrompt(repo RepoSummary, readme string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n", repo.Name)
	if repo.Description != "" {
		fmt.Fprintf(&b, "Stated description: %s\n", repo.Description)
	}
	if repo.Language != "" {
		fmt.Fprintf(&b, "Primary language: %s\n", repo.Language)
	}
	if readme != "" {
		fmt.Fprintf(&b, "\nREADME (may be truncated):\n%s\n", truncate(readme, 6000))
	}
	b.WriteString("\nWrite one or two plain sentences describing what this project does and who it is for.\n")
	b.WriteString("Respond with ONLY the description.\n")
	return b.String()
}

// EmphasisPrompt asks which aspects of a repo deserve visual emphasis,
// answered as a JSON array of short phrases.
func EmphasisPrompt(repo RepoSummary, readme string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n", repo.Name)
	if readme != "" {
		fmt.Fprintf(&b, "README (may be truncated):\n%s\n", truncate(readme, 6000))
	}
	b.WriteString("\nList up to 3 short phrases naming the most impressive or distinctive aspects of this project.\n")
	b.WriteString("Respond with ONLY a JSON array of strings.\n")
	return b.String()
}

// KeywordsPrompt asks for search keywords, answered as a JSON array.
func KeywordsPrompt(repo RepoSummary, readme string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n", repo.Name)
	if repo.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", repo.Description)
	}
	if readme != "" {
		fmt.Fprintf(&b, "README (may be truncated):\n%s\n", truncate(readme, 4000))
	}
	b.WriteString("\nList up to 8 lowercase keywords a developer might search to find this project.\n")
	b.WriteString("Respond with ONLY a JSON array of strings.\n")
	return b.String()
}

// KindPrompt asks for a single category, answered as one word from RepoKinds.
func KindPrompt(repo RepoSummary, readme string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n", repo.Name)
	if repo.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", repo.Description)
	}
	if readme != "" {
		fmt.Fprintf(&b, "README (may be truncated):\n%s\n", truncate(readme, 4000))
	}
	fmt.Fprintf(&b, "\nClassify this project as exactly one of: %s.\n", strings.Join(RepoKinds, ", "))
	b.WriteString("Respond with ONLY the single word.\n")
	return b.String()
}

func writeRepoList(b *strings.Builder, repos []RepoSummary) {
	for _, r := range repos {
		fmt.Fprintf(b, "- %s", r.Name)
		if r.Language != "" {
			fmt.Fprintf(b, " (%s)", r.Language)
		}
		if r.Stars > 0 {
			fmt.Fprintf(b, " [%d stars]", r.Stars)
		}
		if r.Description != "" {
			fmt.Fprintf(b, ": %s", r.Description)
		}
		b.WriteByte('\n')
	}
}

// ParseStringArray decodes a JSON string array from model output,
// tolerating markdown code fences around the JSON.
func ParseStringArray(content string) ([]string, error) {
	cleaned := stripFences(content)
	var out []string
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, fmt.Errorf("parse string array from model output: %w", err)
	}
	return out, nil
}

// ParseWord extracts a single-word answer, lowercased and trimmed.
func ParseWord(content string) string {
	w := strings.TrimSpace(stripFences(content))
	if i := strings.IndexAny(w, " \n\t"); i >= 0 {
		w = w[:i]
	}
	return strings.ToLower(strings.Trim(w, `."'`))
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
