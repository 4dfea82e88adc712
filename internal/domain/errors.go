package domain

import "errors"

var (
	// ErrQuestionEmpty is returned for empty or whitespace-only questions.
	ErrQuestionEmpty = errors.New("question must not be empty")

	// ErrQuestionTooLong is returned when a question exceeds the configured
	// maximum length.
	ErrQuestionTooLong = errors.New("question exceeds maximum length")

	// ErrCorpusUnavailable means no corpus has ever been fetched successfully,
	// so there is nothing to serve, stale or otherwise.
	ErrCorpusUnavailable = errors.New("message corpus unavailable")

	// ErrAllProvidersFailed means every provider in the failover chain failed
	// for one request.
	ErrAllProvidersFailed = errors.New("all providers in failover chain failed")
)
