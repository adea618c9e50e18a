package config

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv  = "DEVFEED_CONFIG"
	apiKeyEnv      = "DEVFEED_API_KEY"
	dbPathEnv      = "DEVFEED_DB_PATH"
	githubTokenEnv = "GITHUB_TOKEN"
	llmKeyEnv      = "OPENROUTER_API_KEY"
	embedKeyEnv    = "EMBEDDING_API_KEY"
)

// Config holds all devfeed configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	GitHub    GitHubConfig    `yaml:"github"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Feed      FeedConfig      `yaml:"feed"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

type ServerConfig struct {
	Bind   string `yaml:"bind"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"apiKey"` // empty disables auth on /healthz only
}

type DatabaseConfig struct {
	Path string `yaml:"path"` // empty resolves to store.DefaultDBPath()
}

type GitHubConfig struct {
	Token   string `yaml:"token"`
	BaseURL string `yaml:"baseUrl"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"` // "openrouter", "mock"
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
	BaseURL  string `yaml:"baseUrl"`
}

type EmbeddingConfig struct {
	BaseURL    string `yaml:"baseUrl"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"apiKey"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batchSize"`
}

// FeedConfig tunes the fatigue penalty. Penalties are expressed in hours
// of staleness; DivisorHours converts penalty hours into similarity points.
type FeedConfig struct {
	Limit             int     `yaml:"limit"`
	ShownPenaltyHours float64 `yaml:"shownPenaltyHours"`
	RecentPenaltyMax  float64 `yaml:"recentPenaltyMax"`
	RecencyDecayHours float64 `yaml:"recencyDecayHours"`
	DivisorHours      float64 `yaml:"divisorHours"`
}

type PipelineConfig struct {
	FanOutWorkers int `yaml:"fanOutWorkers"`
}

// Load reads YAML configuration (if present) and applies environment
// overrides on top of defaults.
func Load() Config {
	cfg := Default()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("[config] cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("[config] cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = merge(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 38200,
		},
		GitHub: GitHubConfig{
			BaseURL: "https://api.github.com",
		},
		LLM: LLMConfig{
			Provider: "openrouter",
			Model:    "google/gemini-2.5-flash",
			BaseURL:  "https://openrouter.ai/api/v1",
		},
		Embedding: EmbeddingConfig{
			BaseURL:    "https://api.openai.com/v1",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			BatchSize:  20,
		},
		Feed: FeedConfig{
			Limit:             30,
			ShownPenaltyHours: 18,
			RecentPenaltyMax:  24,
			RecencyDecayHours: 24,
			DivisorHours:      240,
		},
		Pipeline: PipelineConfig{
			FanOutWorkers: 4,
		},
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(apiKeyEnv); v != "" {
		c.Server.APIKey = v
	}
	if v := os.Getenv(dbPathEnv); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(githubTokenEnv); v != "" {
		c.GitHub.Token = v
	}
	if v := os.Getenv(llmKeyEnv); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(embedKeyEnv); v != "" {
		c.Embedding.APIKey = v
	}
}

func merge(base, override Config) Config {
	if override.Server.Bind != "" {
		base.Server.Bind = override.Server.Bind
	}
	if override.Server.Port != 0 {
		base.Server.Port = override.Server.Port
	}
	if override.Server.APIKey != "" {
		base.Server.APIKey = override.Server.APIKey
	}

	if override.Database.Path != "" {
		base.Database.Path = override.Database.Path
	}

	if override.GitHub.Token != "" {
		base.GitHub.Token = override.GitHub.Token
	}
	if override.GitHub.BaseURL != "" {
		base.GitHub.BaseURL = override.GitHub.BaseURL
	}

	if override.LLM.Provider != "" {
		base.LLM.Provider = override.LLM.Provider
	}
	if override.LLM.Model != "" {
		base.LLM.Model = override.LLM.Model
	}
	if override.LLM.APIKey != "" {
		base.LLM.APIKey = override.LLM.APIKey
	}
	if override.LLM.BaseURL != "" {
		base.LLM.BaseURL = override.LLM.BaseURL
	}

	if override.Embedding.BaseURL != "" {
		base.Embedding.BaseURL = override.Embedding.BaseURL
	}
	if override.Embedding.Model != "" {
		base.Embedding.Model = override.Embedding.Model
	}
	if override.Embedding.APIKey != "" {
		base.Embedding.APIKey = override.Embedding.APIKey
	}
	if override.Embedding.Dimensions != 0 {
		base.Embedding.Dimensions = override.Embedding.Dimensions
	}
	if override.Embedding.BatchSize != 0 {
		base.Embedding.BatchSize = override.Embedding.BatchSize
	}

	if override.Feed.Limit != 0 {
		base.Feed.Limit = override.Feed.Limit
	}
	if override.Feed.ShownPenaltyHours != 0 {
		base.Feed.ShownPenaltyHours = override.Feed.ShownPenaltyHours
	}
	if override.Feed.RecentPenaltyMax != 0 {
		base.Feed.RecentPenaltyMax = override.Feed.RecentPenaltyMax
	}
	if override.Feed.RecencyDecayHours != 0 {
		base.Feed.RecencyDecayHours = override.Feed.RecencyDecayHours
	}
	if override.Feed.DivisorHours != 0 {
		base.Feed.DivisorHours = override.Feed.DivisorHours
	}

	if override.Pipeline.FanOutWorkers != 0 {
		base.Pipeline.FanOutWorkers = override.Pipeline.FanOutWorkers
	}

	return base
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
