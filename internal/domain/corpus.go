package domain

import (
	"sort"
	"strings"
	"time"
)

// Corpus is the deduplicated union of all fetched messages, in fetch order,
// with a derived per-user index. It is immutable after construction; the
// store replaces whole snapshots instead of mutating one.
type Corpus struct {
	Messages []Message

	FetchedAt    time.Time
	RefreshID    string // correlates one fetch across log lines and /stats
	SourceTotal  int    // the server's total-count hint, 0 if absent
	Degraded     bool   // at least one page was permanently skipped
	SkippedPages int

	byUser map[string][]int // lower-cased user_name -> indices into Messages
	users  []string         // distinct user names, first-seen order
}

// NewCorpus builds a corpus from already-deduplicated messages in fetch
// order and derives the user index.
func NewCorpus(msgs []Message) *Corpus {
	c := &Corpus{
		Messages: msgs,
		byUser:   make(map[string][]int),
	}
	for i, m := range msgs {
		key := strings.ToLower(m.UserName)
		if _, seen := c.byUser[key]; !seen {
			c.users = append(c.users, m.UserName)
		}
		c.byUser[key] = append(c.byUser[key], i)
	}
	return c
}

func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Messages)
}

// UserNames returns the distinct user names in first-seen order.
func (c *Corpus) UserNames() []string {
	return c.users
}

// IndexesFor returns the positions of one user's messages within Messages,
// in fetch order. The name is matched case-insensitively. Callers must not
// mutate the returned slice.
func (c *Corpus) IndexesFor(name string) []int {
	return c.byUser[strings.ToLower(name)]
}

// MessagesFor returns the messages of one user, in fetch order. The name is
// matched case-insensitively.
func (c *Corpus) MessagesFor(name string) []Message {
	idx := c.byUser[strings.ToLower(name)]
	if len(idx) == 0 {
		return nil
	}
	out := make([]Message, 0, len(idx))
	for _, i := range idx {
		out = append(out, c.Messages[i])
	}
	return out
}

// CorpusStats summarizes a corpus for the stats endpoint and CLI.
type CorpusStats struct {
	TotalMessages int            `json:"total_messages"`
	UniqueUsers   int            `json:"unique_users"`
	Users         map[string]int `json:"users"`
	FetchedAt     time.Time      `json:"fetched_at"`
	RefreshID     string         `json:"refresh_id"`
	Degraded      bool           `json:"degraded"`
	SkippedPages  int            `json:"skipped_pages,omitempty"`
}

func (c *Corpus) Stats() CorpusStats {
	users := make(map[string]int, len(c.users))
	for _, m := range c.Messages {
		users[m.UserName]++
	}
	return CorpusStats{
		TotalMessages: len(c.Messages),
		UniqueUsers:   len(users),
		Users:         users,
		FetchedAt:     c.FetchedAt,
		RefreshID:     c.RefreshID,
		Degraded:      c.Degraded,
		SkippedPages:  c.SkippedPages,
	}
}

// TopUsers returns up to n users ordered by message count (descending),
// ties broken alphabetically so the output is stable.
func (c *Corpus) TopUsers(n int) []UserCount {
	counts := make(map[string]int)
	for _, m := range c.Messages {
		counts[m.UserName]++
	}
	out := make([]UserCount, 0, len(counts))
	for name, cnt := range counts {
		out = append(out, UserCount{Name: name, Count: cnt})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

type UserCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}
