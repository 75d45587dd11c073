package domain

import (
	"context"
	"errors"
)

// Connector layer: the source is skipped for the round.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrRateLimited       = errors.New("rate limited")
	ErrTimeout           = errors.New("timeout")
)

// Extractor layer: the item is skipped.
var (
	ErrExtractionFailed    = errors.New("extraction failed")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrInvalidResponse     = errors.New("invalid response")
)

// Admission and repository outcomes.
var (
	ErrDuplicate     = errors.New("duplicate rejected")
	ErrNotFound      = errors.New("not found")
	ErrPersistence   = errors.New("persistence failure")
	ErrRunInProgress = errors.New("collection run already in progress")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrRateLimited, "rate_limited"},
	{ErrTimeout, "timeout"},
	{ErrSourceUnavailable, "source_unavailable"},
	{ErrProviderUnavailable, "provider_unavailable"},
	{ErrInvalidResponse, "invalid_response"},
	{ErrExtractionFailed, "extraction_failed"},
	{ErrDuplicate, "duplicate"},
	{ErrNotFound, "not_found"},
	{ErrPersistence, "persistence_failure"},
	{ErrRunInProgress, "run_in_progress"},
}

// ErrorKind returns a stable label for logs and metrics.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "unknown"
}
