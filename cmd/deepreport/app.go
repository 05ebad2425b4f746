package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"deepreport/internal/agents"
	"deepreport/internal/chart"
	"deepreport/internal/config"
	"deepreport/internal/embedding"
	"deepreport/internal/evidence"
	"deepreport/internal/llm"
	"deepreport/internal/progress"
	"deepreport/internal/retrieval"
	"deepreport/internal/workflow"

	"go.uber.org/zap"
)

// app holds the components of one CLI invocation.
type app struct {
	client   *llm.TimedClient
	engine   embedding.EmbeddingEngine
	kb       *retrieval.KnowledgeBase
	web      *retrieval.WebRetriever
	evidence *evidence.Manager
	broker   *progress.Broker
	runner   *workflow.Runner
}

// newEngine creates the configured embedding engine, or nil for keyword-only
// search when it is unavailable.
func newEngine(cfg *config.Config) embedding.EmbeddingEngine {
	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		logger.Warn("Embedding engine unavailable, falling back to keyword search", zap.Error(err))
		return nil
	}
	if hc, ok := engine.(embedding.HealthChecker); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hc.HealthCheck(ctx); err != nil {
			logger.Warn("Embedding engine unreachable, falling back to keyword search",
				zap.String("engine", engine.Name()), zap.Error(err))
			return nil
		}
	}
	return engine
}

func openKnowledgeBase(cfg *config.Config, engine embedding.EmbeddingEngine) (*retrieval.KnowledgeBase, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return retrieval.OpenKnowledgeBase(cfg.KnowledgeDBPath(), engine, cfg.Storage.ChunkSize, cfg.Storage.ChunkOverlap)
}

// newApp wires the workflow runner from configuration.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	client, err := llm.NewClient(ctx, cfg.LLM, cfg.GetLLMTimeout())
	if err != nil {
		return nil, err
	}

	a := &app{client: client, engine: newEngine(cfg), broker: progress.NewBroker()}

	a.kb, err = openKnowledgeBase(cfg, a.engine)
	if err != nil {
		return nil, err
	}

	if cfg.Web.Enabled {
		a.web, err = retrieval.NewWebRetrieverFromConfig(cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	if err := os.MkdirAll(cfg.EvidenceDir(), 0755); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create evidence directory: %w", err)
	}
	a.evidence = evidence.NewManager(cfg.EvidenceDir(), a.engine)

	caps := workflow.Capabilities{
		Planner:   agents.NewPlanner(client, cfg.Workflow.DefaultWords),
		Selector:  agents.NewSelector(client, cfg.Workflow.MaxPriorSections),
		Queries:   agents.NewQueryGenerator(client, cfg.Workflow.MinQueries),
		Knowledge: a.kb,
		Filter:    agents.NewFilter(client),
		Evaluator: agents.NewEvaluator(client),
		Writer:    agents.NewWriter(client),
	}
	if a.web != nil {
		caps.Web = a.web
	}
	if cfg.Chart.Enabled {
		var opts []chart.Option
		if cfg.Chart.ShortURLs {
			opts = append(opts, chart.WithShortURLs(nil))
		}
		caps.Charts = chart.NewQuickChart(client, cfg.Chart.BaseURL, opts...)
	}

	a.runner, err = workflow.New(caps, workflow.FromManager(a.evidence), a.broker, cfg.Workflow)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases stores and browser sessions.
func (a *app) Close() {
	if a.web != nil {
		if err := a.web.Close(); err != nil {
			logger.Warn("Failed to close web retriever", zap.Error(err))
		}
	}
	if a.kb != nil {
		if err := a.kb.Close(); err != nil {
			logger.Warn("Failed to close knowledge base", zap.Error(err))
		}
	}
}
