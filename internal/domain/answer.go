package domain

// Answer is the result of one question. When Found is false the Text is one
// of the fixed fallback messages, never a generated guess.
type Answer struct {
	Text     string `json:"answer"`
	Found    bool   `json:"found"`
	Provider string `json:"provider,omitempty"` // which provider produced the text; "extractive" for the keyword fallback
}
