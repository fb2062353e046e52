package main

import (
	"context"
	"fmt"
	"log/slog"

	"summa/internal/agent"
	"summa/internal/chain"
	"summa/internal/config"
	"summa/internal/db"
	"summa/internal/history"
	"summa/internal/llm"
	"summa/internal/prompt"
	"summa/internal/tools"
	"summa/internal/trace"
)

// app holds everything a command needs, built from config.
type app struct {
	cfg      *config.Config
	provider llm.Provider
	chain    *chain.Chain
	registry *agent.Registry
	store    *history.Store
	database *db.DB
	shutdown func(context.Context) error
}

type appOptions struct {
	withStore bool
	onToken   func(string)
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	shutdown, err := trace.Init(ctx, trace.Config{
		Enabled:  cfg.Trace.Enabled,
		Endpoint: cfg.Trace.Endpoint,
		URLPath:  cfg.Trace.URLPath,
		APIKey:   cfg.Trace.APIKey,
		Insecure: cfg.Trace.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}

	a := &app{cfg: cfg, shutdown: shutdown}

	llmCfg := cfg.LLM()
	var llmOpts []llm.Option
	if llmCfg.Temperature != nil {
		llmOpts = append(llmOpts, llm.WithTemperature(*llmCfg.Temperature))
	}
	llmOpts = append(llmOpts, llm.WithMaxOutputTokens(llmCfg.MaxOutputTokens))
	a.provider = llm.NewOpenAI(llmCfg.BaseURL, llmCfg.APIKey, llmCfg.Model, llmOpts...)

	prompts, err := prompt.LoadSet(cfg.Prompts)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("loading prompts: %w", err)
	}

	a.chain = chain.New(a.provider, prompts,
		chain.WithLanguage(cfg.Agent.Language),
		chain.WithTokenSink(opts.onToken),
	)

	web, err := tools.NewWeb(cfg.Services.Brave.APIKey, nil)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.registry = agent.NewRegistry(
		tools.NewSummarize(a.chain),
		tools.NewTranslate(a.chain, a.chain.Language()),
		web,
	)

	if opts.withStore && cfg.DB.Enabled {
		database, err := db.Open(cfg.DB.Path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("opening database: %w", err)
		}
		a.database = database
		if err := database.Migrate(); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		a.store = history.NewStore(database)
	}

	slog.Debug("app ready",
		"llm", cfg.DefaultLLM,
		"model", llmCfg.Model,
		"language", cfg.Agent.Language,
		"tools", a.registry.Len(),
		"history", a.store != nil,
	)
	return a, nil
}

// runner builds the agent. maxIterations overrides the config when positive.
func (a *app) runner(maxIterations int) *agent.ReactRunner {
	if maxIterations <= 0 {
		maxIterations = a.cfg.Agent.MaxIterations
	}
	systemPrompt := a.cfg.Agent.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = agent.DefaultSystemPrompt(a.cfg.Agent.Language)
	}

	var store agent.Store
	if a.store != nil {
		store = a.store
	}
	return agent.NewReactRunner(a.provider, store, a.registry,
		agent.WithSystemPrompt(systemPrompt),
		agent.WithMaxIterations(maxIterations),
	)
}

func (a *app) Close() {
	if a.database != nil {
		if err := a.database.Close(); err != nil {
			slog.Warn("closing database", "error", err)
		}
	}
	if a.shutdown != nil {
		if err := a.shutdown(context.Background()); err != nil {
			slog.Warn("shutting down tracing", "error", err)
		}
	}
}
