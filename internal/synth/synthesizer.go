// Package synth turns a question and its retrieved evidence into an answer.
// With a provider chain it builds a grounded prompt and asks the chain; with
// no chain it falls back to quoting the best-matching message directly.
package synth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"askbot/internal/domain"
)

const (
	// notFoundText is returned whenever the corpus holds no evidence for a
	// question. It is fixed text, never generated.
	notFoundText = "I couldn't find relevant information in the messages to answer this question."

	// unavailableText is returned when every provider in the chain failed.
	unavailableText = "The answer service is temporarily unavailable right now. Please try again in a moment."

	// emptyContextText is returned when the context budget is too small to
	// hold even one message line.
	emptyContextText = "I couldn't find any messages to analyze. The data source may be empty."

	systemPrompt = "You are a helpful assistant that answers questions accurately based on the provided context. Be specific and cite user names when relevant."

	userPromptFormat = `Here are the messages from members:

%s

Based on the above messages, please answer the following question. If the information is not available in the messages, say so. Be specific and cite user names when relevant.

Question: %s

Answer:`
)

// refusalPhrases mark a provider reply that says the messages do not answer
// the question. Matched against the lowercased opening of the reply.
var refusalPhrases = []string{
	"couldn't find",
	"could not find",
	"no information",
	"not available in the messages",
	"don't have",
	"do not have",
	"insufficient",
	"unable to find",
	"no relevant",
}

type Synthesizer struct {
	provider     domain.Provider
	temperature  float64
	contextChars int
	logger       *slog.Logger
}

type Config struct {
	// Provider is the completion backend, normally the failover chain. Nil
	// means no provider is configured and answers come from the extractive
	// fallback.
	Provider domain.Provider

	// Temperature for completions. Zero means the 0.7 default.
	Temperature float64

	// ContextChars bounds the size of the message block in the prompt.
	ContextChars int

	Logger *slog.Logger
}

func New(cfg Config) *Synthesizer {
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.ContextChars <= 0 {
		cfg.ContextChars = 20000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Synthesizer{
		provider:     cfg.Provider,
		temperature:  cfg.Temperature,
		contextChars: cfg.ContextChars,
		logger:       cfg.Logger,
	}
}

// Answer produces an answer for the question from the candidate messages.
// The error is non-nil only when ctx is cancelled; every other failure maps
// to a degraded Answer with fixed text.
func (s *Synthesizer) Answer(ctx context.Context, question string, candidates []domain.Message) (domain.Answer, error) {
	if err := ctx.Err(); err != nil {
		return domain.Answer{}, err
	}

	if len(candidates) == 0 {
		return domain.Answer{Text: notFoundText, Found: false}, nil
	}

	if s.provider == nil {
		return s.extract(question, candidates), nil
	}

	contextBlock := buildContext(candidates, s.contextChars)
	if contextBlock == "" {
		return domain.Answer{Text: emptyContextText, Found: false}, nil
	}

	req := domain.ChatRequest{
		Messages: []domain.ChatMessage{
			{Role: domain.RoleSystem, Content: systemPrompt},
			{Role: domain.RoleUser, Content: fmt.Sprintf(userPromptFormat, contextBlock, question)},
		},
		Temperature: s.temperature,
	}

	s.logger.Debug("synthesizing answer",
		"candidates", len(candidates),
		"context_chars", len(contextBlock))

	resp, err := s.provider.Chat(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Answer{}, ctx.Err()
		}
		s.logger.Error("provider chain exhausted", "error", err)
		return domain.Answer{Text: unavailableText, Found: false}, nil
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		s.logger.Warn("provider returned empty completion", "provider", resp.Provider)
		return domain.Answer{Text: unavailableText, Found: false}, nil
	}

	return domain.Answer{
		Text:     text,
		Found:    !isRefusal(text),
		Provider: resp.Provider,
	}, nil
}

// buildContext formats candidates into the prompt's message block, one line
// per message, truncated at whole-line boundaries to the budget.
func buildContext(candidates []domain.Message, budget int) string {
	var b strings.Builder
	for _, m := range candidates {
		line := fmt.Sprintf("User: %s (ID: %s, Time: %s): %s\n", m.UserName, m.UserID, m.TimeLabel(), m.Text)
		if b.Len()+len(line) > budget {
			break
		}
		b.WriteString(line)
	}
	return b.String()
}

// isRefusal reports whether the reply opens by saying the messages hold no
// answer. Only the opening is checked so an answer that merely quotes such a
// phrase later is not misread.
func isRefusal(text string) bool {
	opening := strings.ToLower(text)
	opening = strings.ReplaceAll(opening, "’", "'")
	if len(opening) > 160 {
		opening = opening[:160]
	}
	for _, phrase := range refusalPhrases {
		if strings.Contains(opening, phrase) {
			return true
		}
	}
	return false
}
