package main

import (
	"context"
	"log/slog"
	"time"

	"askbot/internal/channel"
	"askbot/internal/config"
	"askbot/internal/corpus"
	"askbot/internal/domain"
	"askbot/internal/provider"
	"askbot/internal/qa"
	"askbot/internal/retriever"
	"askbot/internal/source"
	"askbot/internal/synth"
)

// pipeline is the assembled answering stack shared by serve, ask, and eval.
type pipeline struct {
	store     *corpus.Store
	svc       *qa.Service
	factory   *provider.Factory
	retriever domain.Retriever
}

func newFetcher(cfg *config.Config, logger *slog.Logger) *source.Fetcher {
	client := source.NewClient(source.ClientConfig{
		BaseURL:  cfg.Source.BaseURL,
		PageSize: cfg.Source.PageSize,
		Timeout:  time.Duration(cfg.Source.TimeoutSeconds) * time.Second,
	})
	return source.NewFetcher(client, source.FetcherConfig{
		RetryAttempts:          cfg.Source.RetryAttempts,
		RetryBackoff:           time.Duration(cfg.Source.RetryBackoffMS) * time.Millisecond,
		MaxPages:               cfg.Source.MaxPages,
		MaxConsecutiveFailures: cfg.Source.MaxConsecutiveFailures,
		Logger:                 logger,
	})
}

func newPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) *pipeline {
	store := corpus.NewStore(newFetcher(cfg, logger), corpus.StoreConfig{
		TTL:    time.Duration(cfg.Corpus.TTLMinutes) * time.Minute,
		Logger: logger,
	})

	factory := provider.NewFactory(cfg, logger)

	lexical := retriever.NewLexical(retriever.LexicalConfig{
		TopK:     cfg.Retriever.TopK,
		MinScore: cfg.Retriever.MinScore,
		Logger:   logger,
	})
	var ret domain.Retriever = lexical
	if cfg.Retriever.Mode == "embedding" {
		if embedder, err := factory.Embedder(ctx); err != nil {
			logger.Warn("embedding retriever unavailable, using lexical", "error", err)
		} else {
			ret = retriever.NewEmbedding(embedder, lexical, retriever.EmbeddingConfig{
				TopK:          cfg.Retriever.TopK,
				MinSimilarity: cfg.Retriever.MinSimilarity,
				Logger:        logger,
			})
		}
	}

	// An empty chain means no key is configured anywhere; the synthesizer
	// then answers by extraction instead of calling a provider.
	chain := factory.Chain(ctx)
	var prov domain.Provider
	if chain.Len() > 0 {
		prov = chain
	}
	synthesizer := synth.New(synth.Config{
		Provider:     prov,
		Temperature:  cfg.Synth.Temperature,
		ContextChars: cfg.Synth.ContextChars,
		Logger:       logger,
	})

	svc := qa.New(qa.Config{
		Store:            store,
		Retriever:        ret,
		Synth:            synthesizer,
		MaxQuestionChars: cfg.General.MaxQuestionChars,
		Logger:           logger,
	})

	return &pipeline{store: store, svc: svc, factory: factory, retriever: ret}
}

// providerStatuses reports, per configured chain entry, whether the
// provider can actually be built. Feeds /health.
func providerStatuses(ctx context.Context, cfg *config.Config, f *provider.Factory) []channel.ProviderStatus {
	statuses := make([]channel.ProviderStatus, 0, len(cfg.General.FailoverChain))
	for _, name := range cfg.General.FailoverChain {
		_, err := f.Get(ctx, name)
		statuses = append(statuses, channel.ProviderStatus{Name: name, Configured: err == nil})
	}
	return statuses
}
