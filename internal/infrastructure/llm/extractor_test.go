package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"HustleCollector/internal/config"
	"HustleCollector/internal/domain"
	"HustleCollector/internal/logging"
)

func completionHandler(t *testing.T, content string, calls *atomic.Int32) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); !strings.HasPrefix(got, "Bearer ") {
			t.Errorf("missing bearer token: %q", got)
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if payload["temperature"] != float64(0) {
			t.Errorf("expected temperature 0, got %v", payload["temperature"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": content}}},
		})
	}
}

func newTestExtractor(providers ...config.ProviderConfig) *Extractor {
	return NewExtractor(config.AIConfig{
		Providers:    providers,
		Timeout:      2 * time.Second,
		ProbeTimeout: time.Second,
	}, logging.Discard())
}

func TestExtractFallsBackToNextProvider(t *testing.T) {
	t.Parallel()

	var primaryCalls, backupCalls atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		primaryCalls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer primary.Close()
	backup := httptest.NewServer(completionHandler(t, `{"description": "Walking dogs."}`, &backupCalls))
	defer backup.Close()

	ex := newTestExtractor(
		config.ProviderConfig{Name: "openai", Endpoint: primary.URL, Model: "m", APIKey: "k1"},
		config.ProviderConfig{Name: "deepseek", Endpoint: backup.URL + "/", Model: "m", APIKey: "k2"},
	)

	if got := ex.CurrentProvider(); got != "openai" {
		t.Fatalf("expected first provider before any call, got %s", got)
	}

	draft, err := ex.Extract(context.Background(), samplePost())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if draft.Description != "Walking dogs." {
		t.Fatalf("unexpected draft %+v", draft.CaseContent)
	}
	if primaryCalls.Load() != 1 || backupCalls.Load() != 1 {
		t.Fatalf("expected one call each, got primary=%d backup=%d", primaryCalls.Load(), backupCalls.Load())
	}
	if got := ex.CurrentProvider(); got != "deepseek" {
		t.Fatalf("expected deepseek as current provider, got %s", got)
	}
}

func TestExtractDoesNotFallBackOnInvalidAnswer(t *testing.T) {
	t.Parallel()

	var primaryCalls, backupCalls atomic.Int32
	primary := httptest.NewServer(completionHandler(t, "not json at all", &primaryCalls))
	defer primary.Close()
	backup := httptest.NewServer(completionHandler(t, `{"description": "x"}`, &backupCalls))
	defer backup.Close()

	ex := newTestExtractor(
		config.ProviderConfig{Name: "openai", Endpoint: primary.URL, Model: "m", APIKey: "k1"},
		config.ProviderConfig{Name: "deepseek", Endpoint: backup.URL, Model: "m", APIKey: "k2"},
	)

	_, err := ex.Extract(context.Background(), samplePost())
	if !errors.Is(err, domain.ErrInvalidResponse) {
		t.Fatalf("expected invalid response, got %v", err)
	}
	if backupCalls.Load() != 0 {
		t.Fatalf("backup should not be called, got %d calls", backupCalls.Load())
	}
}

func TestExtractAllProvidersDown(t *testing.T) {
	t.Parallel()

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer down.Close()

	ex := newTestExtractor(config.ProviderConfig{Name: "openai", Endpoint: down.URL, Model: "m", APIKey: "k"})
	if _, err := ex.Extract(context.Background(), samplePost()); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable, got %v", err)
	}
}

func TestExtractWithoutProviders(t *testing.T) {
	t.Parallel()

	ex := newTestExtractor(config.ProviderConfig{Name: "openai", Endpoint: "http://127.0.0.1", Model: "m"})
	if _, err := ex.Extract(context.Background(), samplePost()); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable, got %v", err)
	}
	if got := ex.CurrentProvider(); got != "none" {
		t.Fatalf("expected none, got %s", got)
	}
	if ex.TestConnection(context.Background()) {
		t.Fatal("expected probe to fail without providers")
	}
}

func TestTestConnection(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") == "Bearer bad" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data": []}`))
	}))
	defer srv.Close()

	bad := newTestExtractor(config.ProviderConfig{Name: "openai", Endpoint: srv.URL, Model: "m", APIKey: "bad"})
	if bad.TestConnection(context.Background()) {
		t.Fatal("expected unauthorized provider to fail the probe")
	}

	good := newTestExtractor(
		config.ProviderConfig{Name: "openai", Endpoint: srv.URL, Model: "m", APIKey: "bad"},
		config.ProviderConfig{Name: "deepseek", Endpoint: srv.URL, Model: "m", APIKey: "good"},
	)
	if !good.TestConnection(context.Background()) {
		t.Fatal("expected probe to succeed on second provider")
	}
	if got := good.CurrentProvider(); got != "deepseek" {
		t.Fatalf("expected deepseek, got %s", got)
	}
}
