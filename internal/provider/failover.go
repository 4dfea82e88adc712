// Package provider holds the LLM clients and the failover chain that the
// synthesizer asks for completions.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"askbot/internal/domain"
	"askbot/internal/metrics"
)

// FailoverProvider tries providers in order with the same request until one
// answers. Every provider failing is reported as ErrAllProvidersFailed;
// callers decide what a question without a model is worth.
type FailoverProvider struct {
	providers []domain.Provider
	logger    *slog.Logger
}

func NewFailoverProvider(providers []domain.Provider, logger *slog.Logger) *FailoverProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &FailoverProvider{
		providers: providers,
		logger:    logger,
	}
}

// Len reports how many providers are in the chain.
func (fp *FailoverProvider) Len() int { return len(fp.providers) }

func (fp *FailoverProvider) Name() string {
	if len(fp.providers) == 0 {
		return "failover(empty)"
	}
	names := make([]string, len(fp.providers))
	for i, p := range fp.providers {
		names[i] = p.Name()
	}
	return "failover(" + strings.Join(names, "→") + ")"
}

func (fp *FailoverProvider) Models() []string {
	var all []string
	seen := make(map[string]bool)
	for _, p := range fp.providers {
		for _, m := range p.Models() {
			if !seen[m] {
				seen[m] = true
				all = append(all, m)
			}
		}
	}
	return all
}

// Healthy succeeds when at least one provider in the chain does.
func (fp *FailoverProvider) Healthy(ctx context.Context) error {
	if len(fp.providers) == 0 {
		return fmt.Errorf("failover chain is empty")
	}
	var lastErr error
	for _, p := range fp.providers {
		if err := p.Healthy(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("no healthy provider in failover chain: %w", lastErr)
}

// Chat tries each provider in order with the identical request and returns
// the first successful response.
func (fp *FailoverProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if len(fp.providers) == 0 {
		return nil, domain.ErrAllProvidersFailed
	}

	var lastErr error
	for i, p := range fp.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		metrics.ProviderCalls(p.Name()).Inc()
		start := time.Now()
		resp, err := p.Chat(ctx, req)
		if err == nil {
			metrics.ProviderLatency.Observe(time.Since(start).Seconds())
			if i > 0 {
				fp.logger.Info("failover: used fallback provider",
					"provider", p.Name(),
					"attempt", i+1,
				)
			}
			if resp.Provider == "" {
				resp.Provider = p.Name()
			}
			return resp, nil
		}
		lastErr = err
		metrics.ProviderErrors(p.Name()).Inc()
		fp.logger.Warn("failover: provider failed, trying next",
			"provider", p.Name(),
			"attempt", i+1,
			"error", err,
		)
	}
	return nil, fmt.Errorf("%w: %w", domain.ErrAllProvidersFailed, lastErr)
}
