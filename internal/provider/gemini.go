package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"askbot/internal/domain"
)

const (
	geminiDefaultModel      = "gemini-1.5-flash-latest"
	geminiDefaultEmbedModel = "text-embedding-004"
)

// Gemini implements domain.Provider and domain.Embedder on Google's
// Generative AI API. One client serves both chat completions and the
// embedding model behind the embedding retriever.
type Gemini struct {
	client     *genai.Client
	model      string
	embedModel string
	maxTokens  int
	logger     *slog.Logger
}

type GeminiConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	MaxTokens      int
	Logger         *slog.Logger
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: no API key configured")
	}
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = geminiDefaultEmbedModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{
		client:     client,
		model:      cfg.Model,
		embedModel: cfg.EmbeddingModel,
		maxTokens:  cfg.MaxTokens,
		logger:     cfg.Logger,
	}, nil
}

func (g *Gemini) Name() string     { return "gemini" }
func (g *Gemini) Models() []string { return []string{g.model} }

func (g *Gemini) Healthy(ctx context.Context) error {
	if g.client == nil {
		return fmt.Errorf("gemini: client not initialized")
	}
	return nil
}

// Close releases the underlying gRPC connection.
func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func (g *Gemini) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = g.model
	}
	model := g.client.GenerativeModel(modelName)

	// Gemini takes the system prompt as a model-level instruction, not a
	// conversation turn.
	var userParts []string
	for _, m := range req.Messages {
		if m.Role == domain.RoleSystem {
			model.SystemInstruction = &genai.Content{
				Parts: []genai.Part{genai.Text(m.Content)},
			}
			continue
		}
		userParts = append(userParts, m.Content)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.maxTokens
	}
	var genCfg genai.GenerationConfig
	if maxTokens > 0 {
		mt := int32(maxTokens)
		genCfg.MaxOutputTokens = &mt
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		genCfg.Temperature = &temp
	}
	model.GenerationConfig = genCfg

	start := time.Now()
	resp, err := model.GenerateContent(ctx, genai.Text(strings.Join(userParts, "\n\n")))
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	out := &domain.ChatResponse{
		Content:   sb.String(),
		Model:     modelName,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if resp.UsageMetadata != nil {
		out.Usage = domain.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

// Embed returns one vector per input text. The API embeds one content per
// call, so a large corpus means sequential requests; the per-snapshot
// cache upstream keeps this from happening more than once per refresh.
func (g *Gemini) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	em := g.client.EmbeddingModel(g.embedModel)
	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := em.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, fmt.Errorf("embed text %d of %d: %w", i+1, len(texts), err)
		}
		if res.Embedding == nil || len(res.Embedding.Values) == 0 {
			return nil, fmt.Errorf("empty embedding for text %d of %d", i+1, len(texts))
		}
		out = append(out, res.Embedding.Values)
	}
	return out, nil
}
