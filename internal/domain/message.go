package domain

import "time"

// Message is a single member message fetched from the remote archive.
// Identity is the ID; messages are immutable once fetched and never
// mutated by this service.
type Message struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	UserName     string    `json:"user_name"`
	Timestamp    time.Time `json:"timestamp"`
	RawTimestamp string    `json:"raw_timestamp,omitempty"` // wire form, kept because the source mixes formats
	Text         string    `json:"text"`
}

// TimeLabel returns the timestamp in the form best suited for display and
// prompt attribution: the original wire string when we have it, the parsed
// time otherwise.
func (m Message) TimeLabel() string {
	if m.RawTimestamp != "" {
		return m.RawTimestamp
	}
	if !m.Timestamp.IsZero() {
		return m.Timestamp.Format(time.RFC3339)
	}
	return "unknown"
}
