package domain

import "context"

// Fetcher builds a fresh corpus from the remote message archive.
type Fetcher interface {
	FetchAll(ctx context.Context) (*Corpus, error)
}

// CorpusSource serves the current corpus, refreshing it when stale.
type CorpusSource interface {
	// Get returns a corpus no older than the store's TTL when possible,
	// falling back to the last good snapshot on refresh failure.
	Get(ctx context.Context) (*Corpus, error)

	// Invalidate forces the next Get to refresh. The old snapshot stays
	// servable if that refresh fails.
	Invalidate()

	// Snapshot returns the current snapshot without triggering a refresh.
	Snapshot() (*Corpus, bool)
}

// Retriever narrows a corpus to the bounded set of messages relevant to a
// question. An empty result means "no evidence", not an error; the returned
// messages are in chronological order.
type Retriever interface {
	Select(ctx context.Context, question string, c *Corpus) ([]Message, error)
	Name() string
}

// Synthesizer produces the final answer from a question and its evidence.
// The error is non-nil only for context cancellation.
type Synthesizer interface {
	Answer(ctx context.Context, question string, candidates []Message) (Answer, error)
}
