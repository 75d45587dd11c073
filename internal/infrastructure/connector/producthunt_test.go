package connector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"HustleCollector/internal/config"
	"HustleCollector/internal/domain"
)

func TestProductHuntConnectorFetch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer ph-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var body struct {
			Variables map[string]any `json:"variables"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if body.Variables["after"] == "cursor-1" {
			_, _ = w.Write([]byte(`{"data":{"posts":{"edges":[
				{"node":{"id":"3","name":"InvoiceBot","tagline":"Get paid faster","description":"Freelancer tool","slug":"invoicebot","votesCount":90,"commentsCount":4}}
			],"pageInfo":{"endCursor":"cursor-2","hasNextPage":false}}}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"posts":{"edges":[
			{"node":{"id":"1","name":"NicheSite Kit","tagline":"Launch affiliate sites","description":"Templates and guides","slug":"nichesite-kit","votesCount":310,"commentsCount":25}},
			{"node":{"id":"","name":"Broken"}}
		],"pageInfo":{"endCursor":"cursor-1","hasNextPage":true}}}}`))
	}))
	defer server.Close()

	conn := NewProductHuntConnector(config.ProductHuntConfig{
		Endpoint: server.URL,
		Token:    "ph-token",
	}, server.Client(), quietLogger())

	posts, err := collect(conn.Fetch(context.Background(), 10))
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}

	first := posts[0]
	if first.SourceID != "producthunt_1" {
		t.Fatalf("unexpected source id: %s", first.SourceID)
	}
	if first.Title != "NicheSite Kit: Launch affiliate sites" {
		t.Fatalf("unexpected title: %s", first.Title)
	}
	if first.URL != "https://www.producthunt.com/posts/nichesite-kit" {
		t.Fatalf("unexpected url: %s", first.URL)
	}
	if first.SourceType != domain.SourceLaunch || first.Upvotes != 310 {
		t.Fatalf("unexpected post: %+v", first)
	}
	if posts[1].SourceID != "producthunt_3" {
		t.Fatalf("unexpected second post: %s", posts[1].SourceID)
	}
}

func TestProductHuntConnectorGraphQLErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"Rate limit reached"}]}`))
	}))
	defer server.Close()

	conn := NewProductHuntConnector(config.ProductHuntConfig{
		Endpoint: server.URL,
		Token:    "ph-token",
	}, server.Client(), quietLogger())

	_, err := collect(conn.Fetch(context.Background(), 5))
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
}

func TestProductHuntConnectorWithoutToken(t *testing.T) {
	t.Parallel()

	conn := NewProductHuntConnector(config.ProductHuntConfig{Endpoint: "http://127.0.0.1:1"}, nil, quietLogger())
	_, err := collect(conn.Fetch(context.Background(), 5))
	if !errors.Is(err, domain.ErrSourceUnavailable) {
		t.Fatalf("expected source unavailable, got %v", err)
	}
}
