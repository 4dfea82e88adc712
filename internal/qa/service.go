// Package qa runs one question end to end: corpus lookup, retrieval, then
// synthesis. It owns validation and turns every downstream failure into a
// fixed degraded answer so callers never see a raw fault.
package qa

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"askbot/internal/domain"
	"askbot/internal/metrics"
)

const (
	// archiveUnavailableText is returned when no corpus can be served at all.
	archiveUnavailableText = "I couldn't reach the message archive right now. Please try again later."

	// noMessagesText is returned when the archive is reachable but empty.
	noMessagesText = "No messages found in the data source."

	// degradedText is the catch-all for internal failures past validation.
	degradedText = "Something went wrong while answering this question. Please try again."
)

type Service struct {
	store     domain.CorpusSource
	retriever domain.Retriever
	synth     domain.Synthesizer

	maxQuestionChars int
	logger           *slog.Logger
}

type Config struct {
	Store     domain.CorpusSource
	Retriever domain.Retriever
	Synth     domain.Synthesizer

	// MaxQuestionChars rejects overlong questions. Zero means 2000.
	MaxQuestionChars int

	Logger *slog.Logger
}

func New(cfg Config) *Service {
	if cfg.MaxQuestionChars <= 0 {
		cfg.MaxQuestionChars = 2000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:            cfg.Store,
		retriever:        cfg.Retriever,
		synth:            cfg.Synth,
		maxQuestionChars: cfg.MaxQuestionChars,
		logger:           cfg.Logger,
	}
}

// Ask answers a question about the message corpus. The only errors are the
// validation sentinels (ErrQuestionEmpty, ErrQuestionTooLong) and context
// cancellation; every internal failure comes back as a degraded Answer.
func (s *Service) Ask(ctx context.Context, question string) (domain.Answer, error) {
	started := time.Now()

	q := strings.TrimSpace(question)
	if q == "" {
		metrics.ValidationErrors.Inc()
		return domain.Answer{}, domain.ErrQuestionEmpty
	}
	if n := utf8.RuneCountInString(q); n > s.maxQuestionChars {
		metrics.ValidationErrors.Inc()
		return domain.Answer{}, fmt.Errorf("%w: %d characters (max %d)",
			domain.ErrQuestionTooLong, n, s.maxQuestionChars)
	}

	metrics.QuestionsTotal.Inc()
	s.logger.Debug("question received", "question", q)

	corpus, err := s.store.Get(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Answer{}, ctx.Err()
		}
		s.logger.Error("no corpus to serve", "error", err)
		return s.finish(started, 0, domain.Answer{Text: archiveUnavailableText}), nil
	}
	if corpus.Len() == 0 {
		return s.finish(started, 0, domain.Answer{Text: noMessagesText}), nil
	}

	candidates, err := s.retriever.Select(ctx, q, corpus)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Answer{}, ctx.Err()
		}
		s.logger.Error("retrieval failed", "retriever", s.retriever.Name(), "error", err)
		return s.finish(started, 0, domain.Answer{Text: degradedText}), nil
	}

	ans, err := s.synth.Answer(ctx, q, candidates)
	if err != nil {
		return domain.Answer{}, err
	}
	return s.finish(started, len(candidates), ans), nil
}

func (s *Service) finish(started time.Time, candidates int, ans domain.Answer) domain.Answer {
	if ans.Found {
		metrics.AnswersFound.Inc()
	} else {
		metrics.AnswersNotFound.Inc()
	}
	s.logger.Info("question answered",
		"found", ans.Found,
		"provider", ans.Provider,
		"candidates", candidates,
		"took", time.Since(started).Round(time.Millisecond))
	return ans
}
