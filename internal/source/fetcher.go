package source

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"askbot/internal/domain"
	"askbot/internal/metrics"
)

// Fetcher walks the archive page by page and assembles a corpus. Individual
// page failures are retried and then skipped so that one bad page cannot
// sink the whole refresh; a corpus built with gaps is marked degraded.
type Fetcher struct {
	client *Client

	retryAttempts  int
	retryBackoff   time.Duration
	maxPages       int
	maxConsecutive int

	logger *slog.Logger
}

type FetcherConfig struct {
	// RetryAttempts is the total number of tries per page, including the
	// first one.
	RetryAttempts int
	// RetryBackoff is the base delay; attempt n waits n times this plus
	// jitter.
	RetryBackoff time.Duration
	// MaxPages bounds the pagination loop even if the server keeps
	// returning items.
	MaxPages int
	// MaxConsecutiveFailures aborts the walk after this many skipped
	// pages in a row.
	MaxConsecutiveFailures int
	Logger                 *slog.Logger
}

func NewFetcher(client *Client, cfg FetcherConfig) *Fetcher {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1000
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Fetcher{
		client:         client,
		retryAttempts:  cfg.RetryAttempts,
		retryBackoff:   cfg.RetryBackoff,
		maxPages:       cfg.MaxPages,
		maxConsecutive: cfg.MaxConsecutiveFailures,
		logger:         cfg.Logger,
	}
}

// walkResult summarizes one pagination walk.
type walkResult struct {
	total    int // the server's total-count hint, 0 if it never sent one
	pages    int
	skipped  int
	degraded bool
	lastErr  error
}

// walk drives the pagination loop and hands each fetched page to visit.
// It returns an error only when ctx is cancelled; page failures are
// skipped and reported through the result.
func (f *Fetcher) walk(ctx context.Context, logger *slog.Logger, visit func(*Page)) (walkResult, error) {
	var (
		res         walkResult
		rawCount    int
		skip        int
		consecutive int
	)

	for {
		if res.pages >= f.maxPages {
			// Safety bound against a source that paginates forever.
			logger.Warn("fetch: stopped at page safety bound",
				"max_pages", f.maxPages, "items", rawCount)
			res.degraded = true
			break
		}
		res.pages++

		page, err := f.fetchPageWithRetry(ctx, skip)
		if err != nil {
			if ctx.Err() != nil {
				return res, fmt.Errorf("fetch aborted: %w", ctx.Err())
			}
			res.lastErr = err
			res.skipped++
			consecutive++
			metrics.FetchPagesSkipped.Inc()
			logger.Warn("fetch: skipping page",
				"skip", skip, "consecutive_failures", consecutive, "error", err)
			if consecutive >= f.maxConsecutive {
				logger.Error("fetch: giving up after consecutive page failures",
					"failures", consecutive, "items", rawCount)
				res.degraded = true
				break
			}
			skip += f.client.PageSize()
			continue
		}
		consecutive = 0
		metrics.FetchPages.Inc()

		if page.Total > 0 {
			res.total = page.Total
		}
		if len(page.Items) == 0 {
			break
		}
		rawCount += len(page.Items)
		visit(page)

		if res.total > 0 && rawCount >= res.total {
			break
		}
		skip += f.client.PageSize()
	}

	if res.skipped > 0 {
		res.degraded = true
	}
	return res, nil
}

// FetchAll retrieves every page of the archive and returns the deduplicated
// corpus. When an item id appears more than once the first occurrence wins;
// later duplicates are dropped and counted. FetchAll returns an error only
// when not a single page could be fetched; partial results come back as a
// degraded corpus instead.
func (f *Fetcher) FetchAll(ctx context.Context) (*domain.Corpus, error) {
	refreshID := uuid.NewString()
	logger := f.logger.With("refresh_id", refreshID)
	start := time.Now()

	var (
		msgs  []domain.Message
		seen  = make(map[string]bool)
		dupes int
		noID  int
	)

	res, err := f.walk(ctx, logger, func(page *Page) {
		for _, it := range page.Items {
			if it.ID == "" {
				noID++
				continue
			}
			if seen[it.ID] {
				dupes++
				continue
			}
			seen[it.ID] = true
			msgs = append(msgs, toMessage(it))
		}
	})
	if err != nil {
		return nil, err
	}

	if len(msgs) == 0 && res.skipped > 0 {
		return nil, fmt.Errorf("fetch: no pages could be retrieved: %w", res.lastErr)
	}

	corpus := domain.NewCorpus(msgs)
	corpus.FetchedAt = time.Now()
	corpus.RefreshID = refreshID
	corpus.SourceTotal = res.total
	corpus.Degraded = res.degraded
	corpus.SkippedPages = res.skipped

	logger.Info("fetch: corpus built",
		"messages", len(msgs),
		"duplicates", dupes,
		"missing_id", noID,
		"skipped_pages", res.skipped,
		"degraded", res.degraded,
		"source_total", res.total,
		"took", time.Since(start).Round(time.Millisecond))
	return corpus, nil
}

// FetchRaw retrieves every page and returns the items exactly as served,
// duplicates and defects included. The analysis report inspects this stream
// before any dedup touches it.
func (f *Fetcher) FetchRaw(ctx context.Context) ([]RawItem, error) {
	var items []RawItem
	res, err := f.walk(ctx, f.logger, func(page *Page) {
		items = append(items, page.Items...)
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 && res.skipped > 0 {
		return nil, fmt.Errorf("fetch: no pages could be retrieved: %w", res.lastErr)
	}
	f.logger.Info("fetch: raw items collected",
		"items", len(items), "skipped_pages", res.skipped, "degraded", res.degraded)
	return items, nil
}

// fetchPageWithRetry tries a page up to retryAttempts times, backing off
// between tries. Permanent failures (4xx, bad JSON) are returned
// immediately.
func (f *Fetcher) fetchPageWithRetry(ctx context.Context, skip int) (*Page, error) {
	var lastErr error
	for attempt := 1; attempt <= f.retryAttempts; attempt++ {
		page, err := f.client.FetchPage(ctx, skip)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !isRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
		if attempt == f.retryAttempts {
			break
		}
		metrics.FetchPageRetries.Inc()
		f.logger.Debug("fetch: retrying page",
			"skip", skip, "attempt", attempt, "error", err)
		backoff := time.Duration(attempt) * f.retryBackoff
		jitter := time.Duration(rand.Int63n(int64(f.retryBackoff/2) + 1))
		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("page at skip=%d failed after %d attempts: %w",
		skip, f.retryAttempts, lastErr)
}

// timestampLayouts covers the formats the archive has been seen emitting.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toMessage(it RawItem) domain.Message {
	m := domain.Message{
		ID:           it.ID,
		UserID:       it.UserID,
		UserName:     it.UserName,
		RawTimestamp: it.Timestamp,
		Text:         it.Message,
	}
	if t, ok := parseTimestamp(it.Timestamp); ok {
		m.Timestamp = t
	}
	return m
}
