package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/faultmatch/core/internal/config"
	"github.com/faultmatch/core/internal/embed"
	"github.com/faultmatch/core/internal/llm"
	"github.com/faultmatch/core/internal/pipeline"
	"github.com/faultmatch/core/internal/remote"
	"github.com/faultmatch/core/internal/rerank"
	"github.com/faultmatch/core/internal/store"
)

// loadedOrchestrator bundles the Orchestrator with the closers its
// components need, so callers can defer a single cleanup.
type loadedOrchestrator struct {
	orch    *pipeline.Orchestrator
	closers []func() error
}

func (l *loadedOrchestrator) Close() {
	for _, c := range l.closers {
		_ = c()
	}
}

// loadSettingsOnly loads process settings and the optional calibration
// sidecar, without constructing any retrieval components.
func loadSettingsOnly() (*config.Settings, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if settings.Paths.ScoreCalibrationPath != "" {
		if err := settings.LoadCalibration(settings.Paths.ScoreCalibrationPath); err != nil {
			return nil, fmt.Errorf("load calibration: %w", err)
		}
	}
	return settings, nil
}

// buildOrchestrator loads settings and every configured retrieval/scoring
// component, wiring them into a pipeline.Orchestrator ready for Handle.
// embedderProvider overrides the embedder provider when non-empty.
func buildOrchestrator(ctx context.Context, embedderProvider string) (*loadedOrchestrator, *config.Settings, error) {
	settings, err := loadSettingsOnly()
	if err != nil {
		return nil, nil, err
	}

	cs, err := store.LoadCases(settings.Paths.DataFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load cases from %s: %w", settings.Paths.DataFile, err)
	}

	result := &loadedOrchestrator{}

	kw, err := store.NewKeywordRetriever(ctx, cs, settings.Paths.TFIDFCachePath, store.DefaultBM25Config())
	if err != nil {
		return nil, nil, fmt.Errorf("build keyword retriever: %w", err)
	}
	result.closers = append(result.closers, kw.Close)

	embedder, err := embed.NewEmbedder(ctx, embed.ParseProvider(embedderProvider), settings.LLM.EmbeddingModel)
	if err != nil {
		return nil, nil, fmt.Errorf("build embedder: %w", err)
	}

	sem, err := store.NewSemanticRetriever(ctx, cs, embedder, settings.Paths.HNSWIndexPath, embedder.Dimensions())
	if err != nil {
		return nil, nil, fmt.Errorf("build semantic retriever: %w", err)
	}
	result.closers = append(result.closers, sem.Close, embedder.Close)

	var remoteAdapter *remote.Adapter
	if settings.Remote.Endpoint != "" {
		remoteAdapter = remote.NewAdapter(remote.Config{
			Endpoint: settings.Remote.Endpoint,
			Index:    settings.Remote.Index,
			Timeout:  time.Duration(settings.Remote.TimeoutMS) * time.Millisecond,
		})
		result.closers = append(result.closers, remoteAdapter.Close)
	}

	reranker, err := rerank.New(ctx, settings.Rerank.Endpoint, settings.Rerank.Concurrency, settings.Rerank.TimeoutMS)
	if err != nil {
		return nil, nil, fmt.Errorf("build reranker: %w", err)
	}
	result.closers = append(result.closers, reranker.Close)

	picker := llm.New(settings.LLM.APIBase, settings.LLM.APIKey, settings.LLM.Model)
	if picker != nil {
		result.closers = append(result.closers, picker.Close)
	}

	result.orch = &pipeline.Orchestrator{
		Cases:     cs,
		Keyword:   kw,
		Semantic:  sem,
		Remote:    remoteAdapter,
		Embedder:  embedder,
		Reranker:  reranker,
		Picker:    picker,
		Weights:   settings.FusionWeights,
		Threshold: settings.Thresholds,
	}
	return result, settings, nil
}
