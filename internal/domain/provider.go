package domain

import "context"

// Provider is the interface all LLM providers must implement.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Name() string
	Models() []string
	Healthy(ctx context.Context) error
}

// Embedder is implemented by providers that can turn text into vectors.
// The embedding retriever depends on this, not on a concrete provider.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type ChatRequest struct {
	Messages    []ChatMessage
	Model       string // optional: override the provider's default model
	MaxTokens   int    // 0 means the provider's default
	Temperature float64
}

type ChatResponse struct {
	Content   string
	Provider  string // which provider answered; the failover chain fills it
	Model     string // the model that actually answered
	Usage     Usage
	LatencyMs int64 // time taken for this LLM call in milliseconds
}

type ChatMessage struct {
	Role    string `json:"role"` // system | user | assistant
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
