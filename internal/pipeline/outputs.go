package pipeline

// Typed ledger outputs, one shape per stage kind. Only the owning stage
// decodes its output; everything else treats output_json as opaque.

type ProfileOutput struct {
	ProfileFound bool `json:"profile_found"`
	Ghost        bool `json:"ghost,omitempty"`
}

type FetchReposOutput struct {
	Linked      int `json:"linked"`
	Forks       int `json:"forks_kept"`
	Contributed int `json:"contributed"`
	Discarded   int `json:"discarded"`
}

type HighlightsOutput struct {
	Highlighted []string `json:"highlighted"`
}

type ThemeOutput struct {
	Theme string `json:"theme"`
}

type BlurbOutput struct {
	Chars  int `json:"chars"`
	Failed int `json:"failed,omitempty"`
}

func (o BlurbOutput) failedSubjects() int { return o.Failed }

type EmbedStageOutput struct {
	Embedded int `json:"embedded"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

func (o EmbedStageOutput) failedSubjects() int { return o.Failed }

type MediaOutput struct {
	Link          string `json:"link,omitempty"`
	GalleryImages int    `json:"gallery_images"`
}

type EmphasisOutput struct {
	Emphasis []string `json:"emphasis"`
}

type KeywordsOutput struct {
	Keywords []string `json:"keywords"`
}

type KindOutput struct {
	Kind string `json:"kind"`
}

// FailureOutput is what any failed stage stores.
type FailureOutput struct {
	Reason string `json:"reason"`
}
