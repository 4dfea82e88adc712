package retriever

import (
	"context"
	"log/slog"

	"askbot/internal/domain"
	"askbot/internal/metrics"
)

// Lexical scores messages by keyword overlap with the question. When the
// question names a known user, only that user's messages are considered and
// they start from a base score, so "what did Alice say" returns Alice's
// recent messages even without content keywords.
type Lexical struct {
	topK     int
	minScore float64
	logger   *slog.Logger
}

type LexicalConfig struct {
	// TopK bounds how many messages Select returns.
	TopK int
	// MinScore drops candidates scoring below it; an empty result is a
	// valid outcome, not an error.
	MinScore float64
	Logger   *slog.Logger
}

func NewLexical(cfg LexicalConfig) *Lexical {
	if cfg.TopK <= 0 {
		cfg.TopK = 30
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Lexical{
		topK:     cfg.TopK,
		minScore: cfg.MinScore,
		logger:   cfg.Logger,
	}
}

func (l *Lexical) Name() string { return "lexical" }

// Select returns up to TopK relevant messages in chronological (fetch)
// order. Scoring is pure text matching, so the same question against the
// same corpus always yields the same result.
func (l *Lexical) Select(ctx context.Context, question string, c *domain.Corpus) ([]domain.Message, error) {
	if c.Len() == 0 {
		return nil, nil
	}

	matched := MatchUserNames(question, c.UserNames())
	keywords := contentKeywords(question, matched)

	var cands []candidate
	if len(matched) > 0 {
		// Restrict to the named users. The base score keeps their
		// messages above the floor even when the question carries no
		// content keywords at all.
		for _, name := range matched {
			for _, idx := range c.IndexesFor(name) {
				score := 0.5 + 0.5*keywordScore(keywords, c.Messages[idx].Text)
				if score >= l.minScore {
					cands = append(cands, candidate{index: idx, score: score})
				}
			}
		}
	} else {
		for i := range c.Messages {
			score := keywordScore(keywords, c.Messages[i].Text)
			if score > 0 && score >= l.minScore {
				cands = append(cands, candidate{index: i, score: score})
			}
		}
	}

	cands = rankAndClip(cands, l.topK)
	out := make([]domain.Message, len(cands))
	for i, cd := range cands {
		out[i] = c.Messages[cd.index]
	}
	metrics.RetrieverCandidates.Observe(float64(len(out)))
	l.logger.Debug("lexical: candidates selected",
		"keywords", len(keywords),
		"matched_users", matched,
		"candidates", len(out))
	return out, nil
}

// contentKeywords tokenizes the question and strips the words that are part
// of a matched user name, so the name itself does not dilute the keyword
// score of that user's messages.
func contentKeywords(question string, matchedUsers []string) []string {
	nameTokens := make(map[string]bool)
	for _, name := range matchedUsers {
		for _, t := range splitWords(name) {
			nameTokens[t] = true
		}
	}
	var keywords []string
	for _, t := range uniq(Tokenize(question)) {
		if nameTokens[t] {
			continue
		}
		keywords = append(keywords, t)
	}
	return keywords
}

// keywordScore is the fraction of question keywords present in the text.
func keywordScore(keywords []string, text string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	toks := make(map[string]bool)
	for _, t := range splitWords(text) {
		toks[t] = true
	}
	hits := 0
	for _, k := range keywords {
		if toks[k] {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}
