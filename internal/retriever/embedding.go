package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"askbot/internal/domain"
	"askbot/internal/metrics"
)

// Embedding ranks messages by cosine similarity between the question vector
// and per-message vectors. Message vectors are computed once per corpus
// snapshot and cached until the snapshot is replaced. Any embedder failure
// degrades to the lexical strategy instead of failing the question.
type Embedding struct {
	embedder domain.Embedder
	fallback *Lexical
	topK     int
	minSim   float64
	logger   *slog.Logger

	// mu guards the vector cache. The first Select against a new snapshot
	// builds the vectors while later callers wait and reuse them.
	mu      sync.Mutex
	cacheID string
	vectors [][]float32
}

type EmbeddingConfig struct {
	TopK int
	// MinSimilarity drops candidates below this cosine similarity.
	MinSimilarity float64
	Logger        *slog.Logger
}

func NewEmbedding(embedder domain.Embedder, fallback *Lexical, cfg EmbeddingConfig) *Embedding {
	if cfg.TopK <= 0 {
		cfg.TopK = 30
	}
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = 0.7
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Embedding{
		embedder: embedder,
		fallback: fallback,
		topK:     cfg.TopK,
		minSim:   cfg.MinSimilarity,
		logger:   cfg.Logger,
	}
}

func (e *Embedding) Name() string { return "embedding" }

func (e *Embedding) Select(ctx context.Context, question string, c *domain.Corpus) ([]domain.Message, error) {
	if c.Len() == 0 {
		return nil, nil
	}

	vectors, err := e.vectorsFor(ctx, c)
	if err != nil {
		return e.degrade(ctx, question, c, err)
	}
	qv, err := e.embedder.Embed(ctx, []string{question})
	if err != nil {
		return e.degrade(ctx, question, c, err)
	}
	if len(qv) != 1 {
		return e.degrade(ctx, question, c, fmt.Errorf("embedder returned %d vectors for the question", len(qv)))
	}

	matched := MatchUserNames(question, c.UserNames())
	var indices []int
	if len(matched) > 0 {
		for _, name := range matched {
			indices = append(indices, c.IndexesFor(name)...)
		}
	} else {
		indices = make([]int, c.Len())
		for i := range indices {
			indices[i] = i
		}
	}

	var cands []candidate
	for _, idx := range indices {
		sim := cosineSimilarity(qv[0], vectors[idx])
		if sim >= e.minSim {
			cands = append(cands, candidate{index: idx, score: sim})
		}
	}

	cands = rankAndClip(cands, e.topK)
	out := make([]domain.Message, len(cands))
	for i, cd := range cands {
		out[i] = c.Messages[cd.index]
	}
	metrics.RetrieverCandidates.Observe(float64(len(out)))
	e.logger.Debug("embedding: candidates selected",
		"matched_users", matched,
		"candidates", len(out))
	return out, nil
}

// vectorsFor returns the cached message vectors for this snapshot, building
// them on first use.
func (e *Embedding) vectorsFor(ctx context.Context, c *domain.Corpus) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cacheID == c.RefreshID && e.vectors != nil {
		return e.vectors, nil
	}

	texts := make([]string, c.Len())
	for i, m := range c.Messages {
		texts[i] = m.Text
	}
	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed corpus: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d messages", len(vectors), len(texts))
	}
	e.cacheID = c.RefreshID
	e.vectors = vectors
	e.logger.Info("embedding: corpus vectors built",
		"refresh_id", c.RefreshID, "messages", len(texts))
	return vectors, nil
}

func (e *Embedding) degrade(ctx context.Context, question string, c *domain.Corpus, err error) ([]domain.Message, error) {
	e.logger.Warn("embedding: falling back to lexical retrieval", "error", err)
	return e.fallback.Select(ctx, question, c)
}

// cosineSimilarity is zero for mismatched or zero-magnitude vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
