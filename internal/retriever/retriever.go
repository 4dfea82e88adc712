// Package retriever narrows a corpus down to the handful of messages worth
// showing a language model for one question. Two strategies exist behind
// the same interface: lexical keyword overlap and embedding similarity.
package retriever

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// stopwords are dropped from question keywords. Deliberately small; an
// over-eager list would eat content words.
var stopwords = map[string]bool{
	"a": true, "about": true, "after": true, "all": true, "also": true,
	"an": true, "and": true, "any": true, "are": true, "as": true,
	"at": true, "be": true, "because": true, "been": true, "before": true,
	"but": true, "by": true, "can": true, "could": true, "did": true,
	"do": true, "does": true, "for": true, "from": true, "had": true,
	"has": true, "have": true, "he": true, "her": true, "him": true,
	"his": true, "how": true, "i": true, "if": true, "in": true,
	"into": true, "is": true, "it": true, "its": true, "just": true,
	"like": true, "me": true, "mention": true, "mentioned": true,
	"my": true, "no": true, "not": true, "of": true, "on": true,
	"or": true, "our": true, "out": true, "said": true, "say": true,
	"she": true, "so": true, "some": true, "talk": true, "talked": true,
	"tell": true, "than": true, "that": true, "the": true, "their": true,
	"them": true, "then": true, "there": true, "these": true, "they": true,
	"this": true, "to": true, "told": true, "up": true, "us": true,
	"was": true, "we": true, "were": true, "what": true, "when": true,
	"where": true, "which": true, "who": true, "why": true, "with": true,
	"would": true, "you": true, "your": true,
}

// splitWords lowercases and splits on anything that is not a letter or
// digit.
func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// Tokenize extracts the content keywords of a question: lower-cased words
// with stopwords removed and short tokens dropped, except tokens carrying
// digits (dates, versions) which are kept at any length.
func Tokenize(s string) []string {
	var tokens []string
	for _, w := range splitWords(s) {
		if stopwords[w] {
			continue
		}
		if utf8.RuneCountInString(w) < 3 && !containsDigit(w) {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

func uniq(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// MatchUserNames reports which known user names the question references.
// A name matches when it appears verbatim in the question, when one of its
// words equals a question word, or when a longer name word is within one
// edit of a question word ("laila" still finds Layla). Results keep the
// corpus first-seen order so downstream ranking stays deterministic.
func MatchUserNames(question string, names []string) []string {
	q := strings.ToLower(question)
	qtoks := splitWords(question)

	var matched []string
	for _, name := range names {
		if matchesName(q, qtoks, name) {
			matched = append(matched, name)
		}
	}
	return matched
}

func matchesName(q string, qtoks []string, name string) bool {
	ln := strings.ToLower(name)
	if ln != "" && strings.Contains(q, ln) {
		return true
	}
	for _, nt := range splitWords(name) {
		long := utf8.RuneCountInString(nt) >= 4
		for _, qt := range qtoks {
			if qt == nt {
				return true
			}
			if long && levenshtein.ComputeDistance(qt, nt) <= 1 {
				return true
			}
		}
	}
	return false
}

// candidate is one message index with its relevance score.
type candidate struct {
	index int
	score float64
}

// rankAndClip orders candidates by score, ties resolved by original fetch
// order, keeps the best topK, then restores fetch order so the survivors
// read chronologically.
func rankAndClip(cands []candidate, topK int) []candidate {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].index < cands[j].index
	})
	if topK > 0 && len(cands) > topK {
		cands = cands[:topK]
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].index < cands[j].index })
	return cands
}
