package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"askbot/internal/domain"
)

const (
	claudeAPIURL     = "https://api.anthropic.com/v1/messages"
	claudeAPIVersion = "2023-06-01"
	defaultMaxTokens = 2048
)

// claudeCandidates are tried in order until one answers. The model set an
// Anthropic key can reach varies by account, so a fixed single model would
// hard-fail for some keys.
var claudeCandidates = []string{
	"claude-3-5-sonnet-20241022",
	"claude-3-5-sonnet-20240620",
	"claude-3-5-sonnet",
	"claude-3-opus-20240229",
	"claude-3-sonnet-20240229",
	"claude-3-haiku-20240307",
}

// Claude implements domain.Provider for the Anthropic Messages API.
type Claude struct {
	apiKey     string
	maxTokens  int
	candidates []string
	client     *http.Client
	logger     *slog.Logger
}

type ClaudeConfig struct {
	APIKey string
	// Model, when set, is tried before the built-in candidates.
	Model      string
	MaxTokens  int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewClaude(cfg ClaudeConfig) *Claude {
	candidates := claudeCandidates
	if cfg.Model != "" {
		candidates = []string{cfg.Model}
		for _, m := range claudeCandidates {
			if m != cfg.Model {
				candidates = append(candidates, m)
			}
		}
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = SharedHTTPClient(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Claude{
		apiKey:     cfg.APIKey,
		maxTokens:  cfg.MaxTokens,
		candidates: candidates,
		client:     cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

func (c *Claude) Name() string     { return "claude" }
func (c *Claude) Models() []string { return c.candidates }

func (c *Claude) Healthy(ctx context.Context) error {
	if c.apiKey == "" {
		return fmt.Errorf("claude: no API key configured")
	}
	return nil
}

type claudeRequest struct {
	Model       string      `json:"model"`
	MaxTokens   int         `json:"max_tokens"`
	System      string      `json:"system,omitempty"`
	Messages    []claudeMsg `json:"messages"`
	Temperature *float64    `json:"temperature,omitempty"`
}

type claudeMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type claudeResponse struct {
	Content    []claudeContent `json:"content"`
	StopReason string          `json:"stop_reason"`
	Usage      claudeUsage     `json:"usage"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// modelNotFoundError marks a 404 for one candidate so Chat can move on to
// the next.
type modelNotFoundError struct {
	model string
	body  string
}

func (e *modelNotFoundError) Error() string {
	return fmt.Sprintf("model %s not available: %s", e.model, e.body)
}

func (c *Claude) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	// The Messages API takes the system prompt as a top-level field.
	var systemPrompt string
	msgs := make([]claudeMsg, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == domain.RoleSystem {
			systemPrompt = m.Content
			continue
		}
		msgs = append(msgs, claudeMsg{Role: m.Role, Content: m.Content})
	}

	candidates := c.candidates
	if req.Model != "" {
		candidates = []string{req.Model}
	}

	start := time.Now()
	var lastErr error
	for _, model := range candidates {
		out, err := c.send(ctx, model, systemPrompt, msgs, maxTokens, req.Temperature)
		if err == nil {
			out.Model = model
			out.LatencyMs = time.Since(start).Milliseconds()
			return out, nil
		}
		lastErr = err
		var nf *modelNotFoundError
		if !errors.As(err, &nf) {
			return nil, err
		}
		c.logger.Warn("claude: model unavailable, trying next candidate",
			"model", model, "error", err)
	}
	return nil, fmt.Errorf("claude: no usable model: %w", lastErr)
}

func (c *Claude) send(ctx context.Context, model, system string, msgs []claudeMsg, maxTokens int, temperature float64) (*domain.ChatResponse, error) {
	body := claudeRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  msgs,
	}
	if temperature > 0 {
		body.Temperature = &temperature
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	resp, err := doWithRetry(ctx, c.client, func() (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", claudeAPIVersion)
		return httpReq, nil
	}, c.logger)
	if err != nil {
		return nil, fmt.Errorf("claude request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &modelNotFoundError{model: model, body: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("claude %d: %s", resp.StatusCode, string(respBody))
	}

	var claudeResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&claudeResp); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	var textParts []string
	for _, block := range claudeResp.Content {
		if block.Type == "text" {
			textParts = append(textParts, block.Text)
		}
	}

	return &domain.ChatResponse{
		Content: strings.Join(textParts, ""),
		Usage: domain.Usage{
			PromptTokens:     claudeResp.Usage.InputTokens,
			CompletionTokens: claudeResp.Usage.OutputTokens,
			TotalTokens:      claudeResp.Usage.InputTokens + claudeResp.Usage.OutputTokens,
		},
	}, nil
}
