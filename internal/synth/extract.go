package synth

import (
	"fmt"
	"strings"

	"askbot/internal/domain"
)

// extract answers without a provider by quoting the candidate that shares
// the most question words. Candidates arrive in chronological order, so ties
// resolve to the most recent message.
func (s *Synthesizer) extract(question string, candidates []domain.Message) domain.Answer {
	keywords := extractKeywords(question)

	best := candidates[len(candidates)-1]
	bestScore := -1
	for _, m := range candidates {
		text := strings.ToLower(m.Text)
		score := 0
		for _, k := range keywords {
			if strings.Contains(text, k) {
				score++
			}
		}
		if score >= bestScore {
			best = m
			bestScore = score
		}
	}

	s.logger.Debug("extractive answer", "message_id", best.ID, "score", bestScore)

	return domain.Answer{
		Text: fmt.Sprintf("Based on the messages, I found that %s mentioned: '%s' (on %s)",
			best.UserName, best.Text, best.TimeLabel()),
		Found:    true,
		Provider: "extractive",
	}
}

// extractKeywords keeps question words longer than three characters. Short
// words are nearly always function words and match everything.
func extractKeywords(question string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(question)) {
		w = strings.Trim(w, ".,!?;:'\"()")
		if len(w) > 3 {
			out = append(out, w)
		}
	}
	return out
}
