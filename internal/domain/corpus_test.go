package domain

import (
	"testing"
	"time"
)

func msg(id, userName, text string) Message {
	return Message{ID: id, UserID: "u-" + userName, UserName: userName, Text: text}
}

// --- Index building ---

func TestNewCorpus_BuildsUserIndex(t *testing.T) {
	c := NewCorpus([]Message{
		msg("m1", "Layla Kim", "first"),
		msg("m2", "Victor Reyes", "second"),
		msg("m3", "Layla Kim", "third"),
	})

	if c.Len() != 3 {
		t.Fatalf("Len = %d, want 3", c.Len())
	}

	names := c.UserNames()
	if len(names) != 2 || names[0] != "Layla Kim" || names[1] != "Victor Reyes" {
		t.Fatalf("UserNames = %v, want first-seen order", names)
	}

	idx := c.IndexesFor("Layla Kim")
	if len(idx) != 2 || idx[0] != 0 || idx[1] != 2 {
		t.Fatalf("IndexesFor = %v, want [0 2]", idx)
	}
}

func TestCorpus_LookupIsCaseInsensitive(t *testing.T) {
	c := NewCorpus([]Message{msg("m1", "Layla Kim", "hello")})

	if got := c.IndexesFor("layla kim"); len(got) != 1 {
		t.Fatalf("IndexesFor(lowercase) = %v, want one index", got)
	}
	msgs := c.MessagesFor("LAYLA KIM")
	if len(msgs) != 1 || msgs[0].Text != "hello" {
		t.Fatalf("MessagesFor(uppercase) = %v", msgs)
	}
}

func TestCorpus_MessagesForUnknownUser(t *testing.T) {
	c := NewCorpus([]Message{msg("m1", "Layla Kim", "hello")})
	if got := c.MessagesFor("Zara"); got != nil {
		t.Fatalf("MessagesFor(unknown) = %v, want nil", got)
	}
}

func TestCorpus_LenOnNil(t *testing.T) {
	var c *Corpus
	if c.Len() != 0 {
		t.Fatal("nil corpus should have length 0")
	}
}

// --- Stats ---

func TestCorpus_Stats(t *testing.T) {
	c := NewCorpus([]Message{
		msg("m1", "Layla Kim", "a"),
		msg("m2", "Layla Kim", "b"),
		msg("m3", "Victor Reyes", "c"),
	})
	c.FetchedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.RefreshID = "refresh-1"
	c.Degraded = true
	c.SkippedPages = 2

	stats := c.Stats()
	if stats.TotalMessages != 3 || stats.UniqueUsers != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.Users["Layla Kim"] != 2 || stats.Users["Victor Reyes"] != 1 {
		t.Fatalf("per-user counts = %v", stats.Users)
	}
	if !stats.Degraded || stats.SkippedPages != 2 || stats.RefreshID != "refresh-1" {
		t.Fatalf("metadata not carried: %+v", stats)
	}
}

func TestCorpus_TopUsers(t *testing.T) {
	c := NewCorpus([]Message{
		msg("m1", "Bea", "a"),
		msg("m2", "Alma", "b"),
		msg("m3", "Bea", "c"),
		msg("m4", "Cato", "d"),
		msg("m5", "Alma", "e"),
	})

	top := c.TopUsers(2)
	if len(top) != 2 {
		t.Fatalf("TopUsers(2) returned %d entries", len(top))
	}
	// Alma and Bea tie at 2; alphabetical order breaks the tie.
	if top[0].Name != "Alma" || top[0].Count != 2 {
		t.Fatalf("top[0] = %+v", top[0])
	}
	if top[1].Name != "Bea" || top[1].Count != 2 {
		t.Fatalf("top[1] = %+v", top[1])
	}
}

// --- Timestamp display ---

func TestMessage_TimeLabel(t *testing.T) {
	parsed := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		m    Message
		want string
	}{
		{"raw wins", Message{RawTimestamp: "2025-06-01 10:00:00", Timestamp: parsed}, "2025-06-01 10:00:00"},
		{"parsed fallback", Message{Timestamp: parsed}, "2025-06-01T10:00:00Z"},
		{"nothing known", Message{}, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.TimeLabel(); got != tt.want {
				t.Fatalf("TimeLabel = %q, want %q", got, tt.want)
			}
		})
	}
}
