package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"askbot/internal/config"
	"askbot/internal/domain"
)

// Factory builds and caches providers from configuration. Construction is
// lazy: a provider is built the first time something asks for it and the
// same instance is reused afterwards.
type Factory struct {
	cfg    *config.Config
	logger *slog.Logger
	http   *http.Client

	mu    sync.RWMutex
	cache map[string]domain.Provider
}

func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		cfg:    cfg,
		logger: logger,
		http:   SharedHTTPClient(0),
		cache:  make(map[string]domain.Provider),
	}
}

// Get returns the named provider, building it on first use. Uses
// double-check locking so concurrent callers build at most once.
func (f *Factory) Get(ctx context.Context, name string) (domain.Provider, error) {
	f.mu.RLock()
	if cached, ok := f.cache[name]; ok {
		f.mu.RUnlock()
		return cached, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	if cached, ok := f.cache[name]; ok {
		return cached, nil
	}

	pc, ok := f.cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	if !pc.Enabled {
		return nil, fmt.Errorf("provider %s is disabled", name)
	}

	p, err := f.build(ctx, name, pc)
	if err != nil {
		return nil, err
	}
	f.cache[name] = p
	return p, nil
}

func (f *Factory) build(ctx context.Context, name string, pc config.ProviderConfig) (domain.Provider, error) {
	switch name {
	case "groq":
		if pc.APIKey == "" {
			return nil, fmt.Errorf("groq: no API key configured")
		}
		return NewGroq(OpenAIConfig{
			APIKey:     pc.APIKey,
			APIBase:    pc.APIBase,
			Model:      pc.Model,
			MaxTokens:  pc.MaxTokens,
			HTTPClient: f.http,
			Logger:     f.logger,
		}), nil
	case "openai":
		if pc.APIKey == "" {
			return nil, fmt.Errorf("openai: no API key configured")
		}
		return NewOpenAI(OpenAIConfig{
			APIKey:     pc.APIKey,
			APIBase:    pc.APIBase,
			Model:      pc.Model,
			MaxTokens:  pc.MaxTokens,
			HTTPClient: f.http,
			Logger:     f.logger,
		}), nil
	case "claude":
		if pc.APIKey == "" {
			return nil, fmt.Errorf("claude: no API key configured")
		}
		return NewClaude(ClaudeConfig{
			APIKey:     pc.APIKey,
			Model:      pc.Model,
			MaxTokens:  pc.MaxTokens,
			HTTPClient: f.http,
			Logger:     f.logger,
		}), nil
	case "gemini":
		return NewGemini(ctx, GeminiConfig{
			APIKey:         pc.APIKey,
			Model:          pc.Model,
			EmbeddingModel: pc.EmbeddingModel,
			MaxTokens:      pc.MaxTokens,
			Logger:         f.logger,
		})
	case "ollama":
		return NewOllama(OllamaConfig{
			APIBase:    pc.APIBase,
			Model:      pc.Model,
			HTTPClient: f.http,
			Logger:     f.logger,
		}), nil
	default:
		// Unknown names with a base URL and key are treated as
		// OpenAI-compatible.
		if pc.APIBase != "" && pc.APIKey != "" {
			p := NewOpenAI(OpenAIConfig{
				APIKey:     pc.APIKey,
				APIBase:    pc.APIBase,
				Model:      pc.Model,
				MaxTokens:  pc.MaxTokens,
				HTTPClient: f.http,
				Logger:     f.logger,
			})
			p.name = name
			return p, nil
		}
		return nil, fmt.Errorf("provider %s: not built in and no API base/key configured", name)
	}
}

// Chain assembles the failover chain in the order configuration names the
// providers, skipping any that cannot be built (disabled, missing key).
// An empty chain is legal; answering then degrades to extraction.
func (f *Factory) Chain(ctx context.Context) *FailoverProvider {
	var ps []domain.Provider
	for _, name := range f.cfg.General.FailoverChain {
		p, err := f.Get(ctx, name)
		if err != nil {
			f.logger.Debug("factory: skipping provider", "provider", name, "reason", err)
			continue
		}
		ps = append(ps, p)
	}
	if len(ps) == 0 {
		f.logger.Warn("factory: no usable provider, answers will rely on extraction")
	} else {
		names := make([]string, len(ps))
		for i, p := range ps {
			names[i] = p.Name()
		}
		f.logger.Info("factory: failover chain assembled", "chain", names)
	}
	return NewFailoverProvider(ps, f.logger)
}

// Embedder returns the embedding backend when one is configured. Gemini is
// the only provider that embeds today.
func (f *Factory) Embedder(ctx context.Context) (domain.Embedder, error) {
	p, err := f.Get(ctx, "gemini")
	if err != nil {
		return nil, fmt.Errorf("embedding retrieval needs the gemini provider: %w", err)
	}
	emb, ok := p.(domain.Embedder)
	if !ok {
		return nil, fmt.Errorf("provider gemini cannot embed")
	}
	return emb, nil
}
