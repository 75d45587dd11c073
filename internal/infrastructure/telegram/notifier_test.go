package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"HustleCollector/internal/config"
)

func TestNewNotifierDisabledWithoutCredentials(t *testing.T) {
	t.Parallel()

	if n := NewNotifier(config.TelegramConfig{BotToken: "token"}); n != nil {
		t.Fatal("expected nil notifier without chat id")
	}
}

func TestPublishDigest(t *testing.T) {
	t.Parallel()

	var gotPath, gotChat, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotChat = r.PostForm.Get("chat_id")
		gotText = r.PostForm.Get("text")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewNotifier(config.TelegramConfig{BotToken: "abc", ChatID: "42"}).WithAPIBase(srv.URL + "/")
	if err := n.PublishDigest(context.Background(), "3 new cases"); err != nil {
		t.Fatalf("PublishDigest: %v", err)
	}
	if gotPath != "/botabc/sendMessage" || gotChat != "42" || gotText != "3 new cases" {
		t.Fatalf("unexpected request: path=%s chat=%s text=%q", gotPath, gotChat, gotText)
	}
}

func TestPublishDigestReportsAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewNotifier(config.TelegramConfig{BotToken: "abc", ChatID: "42"}).WithAPIBase(srv.URL)
	err := n.PublishDigest(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected API error, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("é", maxMessageRunes+10)
	if got := utf8.RuneCountInString(truncate(long, maxMessageRunes)); got != maxMessageRunes {
		t.Fatalf("expected %d runes, got %d", maxMessageRunes, got)
	}
	if got := truncate("short", maxMessageRunes); got != "short" {
		t.Fatalf("short text changed: %q", got)
	}
}
