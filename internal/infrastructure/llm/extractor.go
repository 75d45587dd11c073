package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"HustleCollector/internal/config"
	"HustleCollector/internal/domain"
	"HustleCollector/internal/ports"
)

const (
	defaultTimeout      = 45 * time.Second
	defaultProbeTimeout = 5 * time.Second
	noProvider          = "none"
)

type provider struct {
	name     string
	endpoint string
	model    string
	apiKey   string
}

// Extractor implements ports.Extractor on top of OpenAI-compatible chat
// completion APIs, falling back through providers in configured order.
type Extractor struct {
	providers    []provider
	systemPrompt string
	httpClient   *http.Client
	probeClient  *http.Client
	probeTimeout time.Duration
	logger       *slog.Logger

	mu      sync.RWMutex
	current string
}

var (
	_ ports.Extractor     = (*Extractor)(nil)
	_ ports.ProviderProbe = (*Extractor)(nil)
)

// NewExtractor builds an extractor from configuration. Providers without an
// API key, endpoint or model are skipped.
func NewExtractor(cfg config.AIConfig, logger *slog.Logger) *Extractor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	var providers []provider
	for _, p := range cfg.Providers {
		if p.APIKey == "" || p.Endpoint == "" || p.Model == "" {
			continue
		}
		providers = append(providers, provider{
			name:     p.Name,
			endpoint: strings.TrimSuffix(p.Endpoint, "/"),
			model:    p.Model,
			apiKey:   p.APIKey,
		})
	}

	return &Extractor{
		providers:    providers,
		systemPrompt: systemPrompt(cfg.SystemPrompt),
		httpClient:   &http.Client{Timeout: timeout},
		probeClient:  &http.Client{Timeout: probeTimeout},
		probeTimeout: probeTimeout,
		logger:       logger,
	}
}

// Extract asks each provider in turn until one answers, then validates the
// answer into a draft.
func (e *Extractor) Extract(ctx context.Context, post domain.RawPost) (domain.CaseDraft, error) {
	if len(e.providers) == 0 {
		return domain.CaseDraft{}, fmt.Errorf("%w: no AI provider configured", domain.ErrProviderUnavailable)
	}

	var lastErr error
	for _, p := range e.providers {
		content, err := e.complete(ctx, p, post)
		if err != nil {
			lastErr = err
			if errors.Is(err, domain.ErrProviderUnavailable) && ctx.Err() == nil {
				e.logger.Warn("provider failed, trying next", "provider", p.name, "source_id", post.SourceID, "error", err)
				continue
			}
			return domain.CaseDraft{}, err
		}

		e.setCurrent(p.name)
		return ValidateDraft(content, post)
	}

	return domain.CaseDraft{}, lastErr
}

// TestConnection reports whether any provider answers its model listing
// within the probe timeout.
func (e *Extractor) TestConnection(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, e.probeTimeout)
	defer cancel()

	for _, p := range e.providers {
		if e.probe(ctx, p) {
			e.setCurrent(p.name)
			return true
		}
	}
	return false
}

// CurrentProvider names the provider that answered last, or the first
// configured one before any call.
func (e *Extractor) CurrentProvider() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current != "" {
		return e.current
	}
	if len(e.providers) > 0 {
		return e.providers[0].name
	}
	return noProvider
}

func (e *Extractor) setCurrent(name string) {
	e.mu.Lock()
	e.current = name
	e.mu.Unlock()
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (e *Extractor) complete(ctx context.Context, p provider, post domain.RawPost) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model":           p.model,
		"temperature":     0,
		"response_format": map[string]string{"type": "json_object"},
		"messages": []map[string]string{
			{"role": "system", "content": e.systemPrompt},
			{"role": "user", "content": userPrompt(post)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal payload: %v", domain.ErrExtractionFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: new request: %v", domain.ErrExtractionFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrProviderUnavailable, p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		detail := strings.TrimSpace(string(payload))
		if resp.StatusCode == http.StatusBadRequest {
			return "", fmt.Errorf("%w: %s %s: %s", domain.ErrExtractionFailed, p.name, resp.Status, detail)
		}
		return "", fmt.Errorf("%w: %s %s: %s", domain.ErrProviderUnavailable, p.name, resp.Status, detail)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: %s: decode completion: %v", domain.ErrInvalidResponse, p.name, err)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: %s: empty completion", domain.ErrInvalidResponse, p.name)
	}

	return parsed.Choices[0].Message.Content, nil
}

func (e *Extractor) probe(ctx context.Context, p provider) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := e.probeClient.Do(req)
	if err != nil {
		e.logger.Debug("provider probe failed", "provider", p.name, "error", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	return resp.StatusCode == http.StatusOK
}
