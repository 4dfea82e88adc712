// Package source talks to the remote member-message archive and turns its
// paginated wire format into a deduplicated corpus.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// RawItem is the wire form of one message. The source names the text field
// "message".
type RawItem struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// Page is one page of the archive plus the server's pagination metadata.
// There is no explicit has-more flag; the end is derived from an empty items
// array or from the cumulative count reaching Total.
type Page struct {
	Total int       `json:"total"`
	Items []RawItem `json:"items"`
}

// Client fetches single pages from the archive.
type Client struct {
	baseURL  string
	pageSize int
	http     *http.Client
}

type ClientConfig struct {
	BaseURL  string
	PageSize int
	Timeout  time.Duration
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		pageSize: cfg.PageSize,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
}

// PageSize returns the page size the client requests.
func (c *Client) PageSize() int { return c.pageSize }

// retryableError indicates a transient failure that can be retried.
type retryableError struct {
	statusCode int
	err        error
}

func (e *retryableError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("HTTP %d from message source", e.statusCode)
}

func (e *retryableError) Unwrap() error { return e.err }

// isRetryable reports whether the fetcher should retry the page.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// FetchPage requests one page at the given offset. Network errors, 5xx and
// 429 responses come back as retryable; other failures (4xx, malformed
// JSON) are permanent for this page.
func (c *Client) FetchPage(ctx context.Context, skip int) (*Page, error) {
	q := url.Values{}
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(c.pageSize))
	reqURL := c.baseURL + "/messages/?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &retryableError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &retryableError{statusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("message source returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode page at skip=%d: %w", skip, err)
	}
	return &page, nil
}
