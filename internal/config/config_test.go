package config

import (
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Feed.ShownPenaltyHours != 18 || cfg.Feed.RecentPenaltyMax != 24 {
		t.Errorf("unexpected fatigue defaults: %+v", cfg.Feed)
	}
	if cfg.Feed.DivisorHours != 240 {
		t.Errorf("divisor = %v, want 240", cfg.Feed.DivisorHours)
	}
	if cfg.Embedding.BatchSize != 20 {
		t.Errorf("batch size = %d, want 20", cfg.Embedding.BatchSize)
	}
	if cfg.ListenAddr() == "" {
		t.Error("listen addr should resolve from defaults")
	}
}

func TestMergeOverridesOnlySetFields(t *testing.T) {
	base := Default()
	merged := merge(base, Config{
		Server: ServerConfig{Port: 9000},
		Feed:   FeedConfig{Limit: 5},
	})

	if merged.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", merged.Server.Port)
	}
	if merged.Server.Bind != base.Server.Bind {
		t.Error("unset bind should keep the default")
	}
	if merged.Feed.Limit != 5 {
		t.Errorf("limit = %d, want 5", merged.Feed.Limit)
	}
	if merged.Feed.DivisorHours != base.Feed.DivisorHours {
		t.Error("unset divisor should keep the default")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DEVFEED_API_KEY", "sekrit")
	t.Setenv("GITHUB_TOKEN", "ghp_x")

	cfg := Default()
	cfg.applyEnvOverrides()
	if cfg.Server.APIKey != "sekrit" {
		t.Errorf("api key = %q", cfg.Server.APIKey)
	}
	if cfg.GitHub.Token != "ghp_x" {
		t.Errorf("token = %q", cfg.GitHub.Token)
	}
}
