package cli

import (
	"fmt"

	"github.com/stankur/devfeed/internal/config"
	"github.com/stankur/devfeed/internal/embed"
	"github.com/stankur/devfeed/internal/feed"
	"github.com/stankur/devfeed/internal/github"
	"github.com/stankur/devfeed/internal/llm"
	"github.com/stankur/devfeed/internal/pipeline"
	"github.com/stankur/devfeed/internal/store"
)

// app is everything a command needs, wired from config.
type app struct {
	cfg    config.Config
	db     *store.DB
	orch   *pipeline.Orchestrator
	ranker *feed.Ranker
}

func (a *app) Close() {
	a.db.Close()
}

func buildApp() (*app, error) {
	cfg := config.Load()

	dbPath := cfg.Database.Path
	if dbPath == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			return nil, err
		}
		dbPath = p
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		db.Close()
		return nil, err
	}

	deps := &pipeline.Deps{
		DB:     db,
		GitHub: github.NewClient(cfg.GitHub.BaseURL, cfg.GitHub.Token),
		LLM:    client,
		Cache:  embed.NewCache(db, embed.NewHTTPEmbedder(cfg.Embedding), cfg.Embedding.BatchSize),
		Cfg:    cfg,
	}
	reg, err := pipeline.DefaultRegistry()
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{
		cfg:    cfg,
		db:     db,
		orch:   pipeline.NewOrchestrator(reg, deps),
		ranker: feed.NewRanker(db, cfg.Feed),
	}, nil
}
