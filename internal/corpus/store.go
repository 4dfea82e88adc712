// Package corpus keeps the current message snapshot in memory and refreshes
// it from the source when it goes stale.
package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"askbot/internal/domain"
	"askbot/internal/metrics"
)

// snapshot pairs a corpus with the time the store accepted it. The stale
// flag forces a refresh on the next Get while keeping the corpus servable
// as a fallback.
type snapshot struct {
	corpus    *domain.Corpus
	refreshed time.Time
	stale     bool
}

// Store hands out the current corpus. Reads never block behind a refresh:
// the snapshot is swapped atomically, and concurrent cache misses collapse
// into a single fetch whose result every waiter shares. If a refresh fails
// and an older snapshot exists, the store serves the old data instead of
// failing the caller.
type Store struct {
	fetcher        domain.Fetcher
	ttl            time.Duration
	refreshTimeout time.Duration
	logger         *slog.Logger

	current atomic.Pointer[snapshot]
	group   singleflight.Group
	now     func() time.Time
}

type StoreConfig struct {
	// TTL is how long a snapshot stays fresh. Zero or negative means every
	// Get triggers a refresh.
	TTL time.Duration
	// RefreshTimeout caps one full fetch of the archive.
	RefreshTimeout time.Duration
	Logger         *slog.Logger
}

func NewStore(fetcher domain.Fetcher, cfg StoreConfig) *Store {
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Store{
		fetcher:        fetcher,
		ttl:            cfg.TTL,
		refreshTimeout: cfg.RefreshTimeout,
		logger:         cfg.Logger,
		now:            time.Now,
	}
}

// Get returns a corpus that was fresh at the time of the call. It blocks
// only when the snapshot is missing or expired, and then at most one fetch
// runs no matter how many callers are waiting.
func (s *Store) Get(ctx context.Context) (*domain.Corpus, error) {
	if snap := s.current.Load(); snap != nil && s.fresh(snap) {
		return snap.corpus, nil
	}
	return s.refresh(ctx)
}

func (s *Store) fresh(snap *snapshot) bool {
	if snap.stale || s.ttl <= 0 {
		return false
	}
	return s.now().Sub(snap.refreshed) < s.ttl
}

func (s *Store) refresh(ctx context.Context) (*domain.Corpus, error) {
	ch := s.group.DoChan("refresh", func() (any, error) {
		// A refresh may have finished while this caller was queueing.
		if snap := s.current.Load(); snap != nil && s.fresh(snap) {
			return snap.corpus, nil
		}

		// The fetch is shared between callers, so it must not die with
		// whichever caller happened to start it.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refreshTimeout)
		defer cancel()

		start := time.Now()
		fresh, err := s.fetcher.FetchAll(fetchCtx)
		if err != nil {
			metrics.CorpusRefreshErrors.Inc()
			if snap := s.current.Load(); snap != nil {
				metrics.CorpusStaleServes.Inc()
				s.logger.Warn("corpus: refresh failed, serving previous snapshot",
					"age", s.now().Sub(snap.refreshed).Round(time.Second),
					"error", err)
				return snap.corpus, nil
			}
			return nil, fmt.Errorf("%w: %w", domain.ErrCorpusUnavailable, err)
		}

		s.current.Store(&snapshot{corpus: fresh, refreshed: s.now()})
		metrics.CorpusRefreshes.Inc()
		metrics.CorpusMessages.Set(int64(fresh.Len()))
		s.logger.Info("corpus: snapshot refreshed",
			"refresh_id", fresh.RefreshID,
			"messages", fresh.Len(),
			"degraded", fresh.Degraded,
			"took", time.Since(start).Round(time.Millisecond))
		return fresh, nil
	})

	select {
	case <-ctx.Done():
		// The shared fetch keeps running for the other waiters.
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Corpus), nil
	}
}

// Invalidate marks the current snapshot stale. The next Get refreshes, but
// the old corpus stays around as a fallback should that refresh fail.
func (s *Store) Invalidate() {
	for {
		snap := s.current.Load()
		if snap == nil || snap.stale {
			return
		}
		if s.current.CompareAndSwap(snap, &snapshot{
			corpus:    snap.corpus,
			refreshed: snap.refreshed,
			stale:     true,
		}) {
			return
		}
	}
}

// Snapshot returns whatever corpus the store currently holds, fresh or not,
// without triggering a fetch.
func (s *Store) Snapshot() (*domain.Corpus, bool) {
	snap := s.current.Load()
	if snap == nil {
		return nil, false
	}
	return snap.corpus, true
}

// Warm fetches the initial corpus so the first question does not pay for
// it. Failures are logged and left for the first Get to retry.
func (s *Store) Warm(ctx context.Context) {
	if _, err := s.Get(ctx); err != nil {
		s.logger.Warn("corpus: warm-up fetch failed", "error", err)
	}
}

// Run refreshes the corpus on a fixed interval until the context ends.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.Info("corpus: background refresh started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("corpus: background refresh stopped")
			return
		case <-ticker.C:
			s.Invalidate()
			if _, err := s.Get(ctx); err != nil {
				s.logger.Warn("corpus: background refresh failed", "error", err)
			}
		}
	}
}
