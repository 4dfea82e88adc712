package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testFetcher(baseURL string, pageSize int) *Fetcher {
	client := NewClient(ClientConfig{BaseURL: baseURL, PageSize: pageSize, Timeout: 5 * time.Second})
	return NewFetcher(client, FetcherConfig{
		RetryAttempts:          3,
		RetryBackoff:           time.Millisecond,
		MaxPages:               50,
		MaxConsecutiveFailures: 5,
		Logger:                 testLogger(),
	})
}

func genItems(start, n int) []RawItem {
	items := make([]RawItem, 0, n)
	for i := start; i < start+n; i++ {
		items = append(items, RawItem{
			ID:        fmt.Sprintf("msg-%03d", i),
			UserID:    "u1",
			UserName:  "Alice",
			Timestamp: "2024-01-15T10:04:05Z",
			Message:   fmt.Sprintf("message number %d", i),
		})
	}
	return items
}

func writePage(w http.ResponseWriter, p Page) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p)
}

// --- Pagination ---

func TestFetcher_FetchAll_SinglePage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages/" {
			http.NotFound(w, r)
			return
		}
		writePage(w, Page{Total: 2, Items: genItems(0, 2)})
	}))
	defer server.Close()

	corpus, err := testFetcher(server.URL, 100).FetchAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if corpus.Len() != 2 {
		t.Errorf("expected 2 messages, got %d", corpus.Len())
	}
	if corpus.Degraded {
		t.Error("corpus should not be degraded")
	}
	if corpus.SourceTotal != 2 {
		t.Errorf("expected source total 2, got %d", corpus.SourceTotal)
	}
	if corpus.RefreshID == "" {
		t.Error("refresh id should be set")
	}
}

func TestFetcher_FetchAll_WalksAllPages(t *testing.T) {
	var skips []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
		skips = append(skips, skip)
		if skip >= 5 {
			writePage(w, Page{Total: 5})
			return
		}
		writePage(w, Page{Total: 5, Items: genItems(skip, 2)})
	}))
	defer server.Close()

	corpus, err := testFetcher(server.URL, 2).FetchAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if corpus.Len() != 6 {
		t.Errorf("expected 6 messages, got %d", corpus.Len())
	}
	// Offsets advance by the page size until the total is reached.
	want := []int{0, 2, 4}
	if len(skips) != len(want) {
		t.Fatalf("expected %d requests, got %d: %v", len(want), len(skips), skips)
	}
	for i, s := range want {
		if skips[i] != s {
			t.Errorf("request %d: expected skip=%d, got %d", i, s, skips[i])
		}
	}
	// Fetch order is preserved.
	if corpus.Messages[0].ID != "msg-000" || corpus.Messages[5].ID != "msg-005" {
		t.Errorf("messages out of order: first=%s last=%s",
			corpus.Messages[0].ID, corpus.Messages[5].ID)
	}
}

func TestFetcher_FetchAll_StopsOnEmptyPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
		if skip == 0 {
			// Total overstates what the source can actually deliver.
			writePage(w, Page{Total: 100, Items: genItems(0, 2)})
			return
		}
		writePage(w, Page{Total: 100})
	}))
	defer server.Close()

	corpus, err := testFetcher(server.URL, 2).FetchAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if corpus.Len() != 2 {
		t.Errorf("expected 2 messages, got %d", corpus.Len())
	}
}

func TestFetcher_FetchAll_EmptyArchive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writePage(w, Page{Total: 0})
	}))
	defer server.Close()

	corpus, err := testFetcher(server.URL, 100).FetchAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if corpus.Len() != 0 {
		t.Errorf("expected empty corpus, got %d messages", corpus.Len())
	}
	if corpus.Degraded {
		t.Error("an empty archive is not a degraded fetch")
	}
}

func TestFetcher_FetchAll_SafetyBound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
		// Never-ending source: always a full page, absurd total.
		writePage(w, Page{Total: 1 << 30, Items: genItems(skip, 2)})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, PageSize: 2, Timeout: 5 * time.Second})
	f := NewFetcher(client, FetcherConfig{
		RetryAttempts: 3,
		RetryBackoff:  time.Millisecond,
		MaxPages:      4,
		Logger:        testLogger(),
	})

	corpus, err := f.FetchAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if corpus.Len() != 8 {
		t.Errorf("expected 8 messages (4 pages of 2), got %d", corpus.Len())
	}
	if !corpus.Degraded {
		t.Error("hitting the page bound must mark the corpus degraded")
	}
}

// --- Deduplication ---

func TestFetcher_FetchAll_DedupFirstWins(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
		switch skip {
		case 0:
			writePage(w, Page{Total: 4, Items: []RawItem{
				{ID: "a", UserName: "Alice", Message: "first version"},
				{ID: "b", UserName: "Bob", Message: "hello"},
			}})
		case 2:
			writePage(w, Page{Total: 4, Items: []RawItem{
				{ID: "a", UserName: "Alice", Message: "second version"},
				{ID: "c", UserName: "Cara", Message: "bye"},
			}})
		default:
			writePage(w, Page{Total: 4})
		}
	}))
	defer server.Close()

	corpus, err := testFetcher(server.URL, 2).FetchAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if corpus.Len() != 3 {
		t.Fatalf("expected 3 unique messages, got %d", corpus.Len())
	}
	if corpus.Messages[0].Text != "first version" {
		t.Errorf("first occurrence must win, got %q", corpus.Messages[0].Text)
	}
}

func TestFetcher_FetchAll_DropsItemsWithoutID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writePage(w, Page{Total: 2, Items: []RawItem{
			{ID: "", UserName: "Ghost", Message: "no id"},
			{ID: "a", UserName: "Alice", Message: "kept"},
		}})
	}))
	defer server.Close()

	corpus, err := testFetcher(server.URL, 100).FetchAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if corpus.Len() != 1 {
		t.Fatalf("expected 1 message, got %d", corpus.Len())
	}
	if corpus.Messages[0].ID != "a" {
		t.Errorf("expected id %q, got %q", "a", corpus.Messages[0].ID)
	}
}

// --- Retries and skipped pages ---

func TestFetcher_FetchAll_RetriesTransientError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		writePage(w, Page{Total: 1, Items: genItems(0, 1)})
	}))
	defer server.Close()

	corpus, err := testFetcher(server.URL, 100).FetchAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if corpus.Len() != 1 {
		t.Errorf("expected 1 message, got %d", corpus.Len())
	}
	if corpus.Degraded {
		t.Error("a page that eventually succeeded must not degrade the corpus")
	}
}

func TestFetcher_FetchAll_SkipsFailingPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
		switch skip {
		case 0:
			writePage(w, Page{Total: 6, Items: genItems(0, 2)})
		case 2:
			http.Error(w, "broken shard", http.StatusInternalServerError)
		case 4:
			writePage(w, Page{Total: 6, Items: genItems(4, 2)})
		default:
			writePage(w, Page{Total: 6})
		}
	}))
	defer server.Close()

	corpus, err := testFetcher(server.URL, 2).FetchAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if corpus.Len() != 4 {
		t.Errorf("expected 4 messages around the bad page, got %d", corpus.Len())
	}
	if !corpus.Degraded {
		t.Error("a skipped page must mark the corpus degraded")
	}
	if corpus.SkippedPages != 1 {
		t.Errorf("expected 1 skipped page, got %d", corpus.SkippedPages)
	}
}

func TestFetcher_FetchAll_MalformedPageNotRetried(t *testing.T) {
	badPageHits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
		switch skip {
		case 0:
			writePage(w, Page{Total: 4, Items: genItems(0, 2)})
		case 2:
			badPageHits++
			w.Write([]byte("{not json"))
		default:
			writePage(w, Page{Total: 4})
		}
	}))
	defer server.Close()

	corpus, err := testFetcher(server.URL, 2).FetchAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if badPageHits != 1 {
		t.Errorf("malformed page should not be retried, got %d hits", badPageHits)
	}
	if corpus.Len() != 2 {
		t.Errorf("expected 2 messages, got %d", corpus.Len())
	}
	if !corpus.Degraded {
		t.Error("a malformed page counts as skipped, corpus must be degraded")
	}
}

func TestFetcher_FetchAll_AbortsAfterConsecutiveFailures(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
		if skip == 0 {
			writePage(w, Page{Total: 1000, Items: genItems(0, 2)})
			return
		}
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, PageSize: 2, Timeout: 5 * time.Second})
	f := NewFetcher(client, FetcherConfig{
		RetryAttempts:          2,
		RetryBackoff:           time.Millisecond,
		MaxPages:               100,
		MaxConsecutiveFailures: 3,
		Logger:                 testLogger(),
	})

	corpus, err := f.FetchAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if corpus.Len() != 2 {
		t.Errorf("expected the 2 messages fetched before the outage, got %d", corpus.Len())
	}
	if !corpus.Degraded {
		t.Error("an aborted walk must produce a degraded corpus")
	}
	if corpus.SkippedPages != 3 {
		t.Errorf("expected 3 skipped pages, got %d", corpus.SkippedPages)
	}
	// 1 good page + 3 failing pages x 2 attempts each.
	if requests != 7 {
		t.Errorf("expected 7 requests, got %d", requests)
	}
}

func TestFetcher_FetchAll_ErrorWhenNothingFetched(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, PageSize: 2, Timeout: 5 * time.Second})
	f := NewFetcher(client, FetcherConfig{
		RetryAttempts:          2,
		RetryBackoff:           time.Millisecond,
		MaxConsecutiveFailures: 2,
		Logger:                 testLogger(),
	})

	if _, err := f.FetchAll(context.Background()); err == nil {
		t.Fatal("expected an error when no page at all could be fetched")
	}
}

func TestFetcher_FetchAll_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writePage(w, Page{Total: 1, Items: genItems(0, 1)})
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := testFetcher(server.URL, 100).FetchAll(ctx); err == nil {
		t.Fatal("expected an error for a cancelled context")
	}
}

// --- Raw fetch ---

func TestFetcher_FetchRaw_KeepsDuplicates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
		switch skip {
		case 0:
			writePage(w, Page{Total: 4, Items: []RawItem{
				{ID: "a", UserName: "Alice", Message: "first version"},
				{ID: "", UserName: "Ghost", Message: "no id"},
			}})
		case 2:
			writePage(w, Page{Total: 4, Items: []RawItem{
				{ID: "a", UserName: "Alice", Message: "second version"},
				{ID: "b", UserName: "Bob", Message: "hello"},
			}})
		default:
			writePage(w, Page{Total: 4})
		}
	}))
	defer server.Close()

	items, err := testFetcher(server.URL, 2).FetchRaw(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 4 {
		t.Fatalf("expected all 4 raw items, duplicates included, got %d", len(items))
	}
	if items[0].ID != "a" || items[2].ID != "a" {
		t.Errorf("duplicate ids must survive a raw fetch: %v", items)
	}
}

func TestFetcher_FetchRaw_ErrorWhenNothingFetched(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, PageSize: 2, Timeout: 5 * time.Second})
	f := NewFetcher(client, FetcherConfig{
		RetryAttempts:          2,
		RetryBackoff:           time.Millisecond,
		MaxConsecutiveFailures: 2,
		Logger:                 testLogger(),
	})

	if _, err := f.FetchRaw(context.Background()); err == nil {
		t.Fatal("expected an error when no page at all could be fetched")
	}
}

// --- Timestamp parsing ---

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"2024-01-15T10:04:05Z", true},
		{"2024-01-15T10:04:05.123456Z", true},
		{"2024-01-15T10:04:05+02:00", true},
		{"2024-01-15T10:04:05", true},
		{"2024-01-15 10:04:05", true},
		{"2024-01-15", true},
		{"yesterday at noon", false},
		{"", false},
	}
	for _, tt := range tests {
		_, ok := parseTimestamp(tt.in)
		if ok != tt.ok {
			t.Errorf("parseTimestamp(%q): expected ok=%v, got %v", tt.in, tt.ok, ok)
		}
	}
}

func TestToMessage_KeepsRawTimestamp(t *testing.T) {
	m := toMessage(RawItem{
		ID:        "a",
		UserName:  "Alice",
		Timestamp: "not a timestamp",
		Message:   "hi",
	})
	if !m.Timestamp.IsZero() {
		t.Error("unparseable timestamp should leave Timestamp zero")
	}
	if m.RawTimestamp != "not a timestamp" {
		t.Errorf("raw timestamp lost: %q", m.RawTimestamp)
	}
	if m.TimeLabel() != "not a timestamp" {
		t.Errorf("TimeLabel should fall back to the raw value, got %q", m.TimeLabel())
	}
}
