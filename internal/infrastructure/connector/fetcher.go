package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"HustleCollector/internal/domain"
)

const (
	defaultUserAgent = "HustleCollector/1.0"
	maxErrorBody     = 512
)

// fetcher performs rate-limited requests and maps failures onto the
// connector error taxonomy.
type fetcher struct {
	source    string
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

func newFetcher(source string, client *http.Client, requestsPerMinute int, userAgent string) *fetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = defaultUserAgent
	}
	return &fetcher{
		source:    source,
		client:    client,
		limiter:   newLimiter(requestsPerMinute),
		userAgent: userAgent,
	}
}

func newLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
}

// do waits for the limiter, sends req and returns the body of a 200 response.
// The caller closes the body.
func (f *fetcher) do(req *http.Request) (io.ReadCloser, error) {
	ctx := req.Context()
	if err := f.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrTimeout, f.source, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrRateLimited, f.source, err)
	}

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransport(f.source, err)
	}

	if resp.StatusCode == http.StatusOK {
		return resp.Body, nil
	}

	defer resp.Body.Close()
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := strings.TrimSpace(string(payload))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s returned %s (retry-after %s)",
			domain.ErrRateLimited, f.source, resp.Status, retryAfter(resp.Header))
	default:
		return nil, fmt.Errorf("%w: %s returned %s: %s",
			domain.ErrSourceUnavailable, f.source, resp.Status, detail)
	}
}

func classifyTransport(source string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s: %v", domain.ErrTimeout, source, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %v", domain.ErrTimeout, source, err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrSourceUnavailable, source, err)
}

func malformed(source string, err error) error {
	return fmt.Errorf("%w: %s: malformed payload: %v", domain.ErrSourceUnavailable, source, err)
}

func retryAfter(h http.Header) string {
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		return v
	}
	return "unknown"
}

// parseCount reads counters such as "42", "1,204" or "1.2k".
func parseCount(raw string) int {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0
	}

	multiplier := 1.0
	switch {
	case strings.HasSuffix(s, "k"):
		multiplier = 1_000
		s = strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "m"):
		multiplier = 1_000_000
		s = strings.TrimSuffix(s, "m")
	}

	end := 0
	for end < len(s) && (s[end] == '.' || (s[end] >= '0' && s[end] <= '9')) {
		end++
	}
	value, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0
	}
	return int(value * multiplier)
}

func clampPage(limit, ceiling int) int {
	if limit > ceiling {
		return ceiling
	}
	return limit
}
