package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseKeepsDefaultsForOmittedKeys(t *testing.T) {
	t.Parallel()

	raw := []byte(`
collection:
  target: 12
  sourceTimeout: 3s
sources:
  reddit:
    subreddits: [passive_income]
`)

	cfg, err := parse(raw, defaultConfig())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.Collection.Target != 12 {
		t.Fatalf("expected target 12, got %d", cfg.Collection.Target)
	}
	if cfg.Collection.SourceTimeout != 3*time.Second {
		t.Fatalf("expected 3s source timeout, got %s", cfg.Collection.SourceTimeout)
	}
	if cfg.Collection.MaxRounds != 5 {
		t.Fatalf("max rounds default lost: %d", cfg.Collection.MaxRounds)
	}
	if got := cfg.Sources.Reddit.Subreddits; len(got) != 1 || got[0] != "passive_income" {
		t.Fatalf("unexpected subreddits: %v", got)
	}
	if cfg.Sources.Reddit.BaseURL != "https://www.reddit.com" {
		t.Fatalf("reddit base url default lost: %s", cfg.Sources.Reddit.BaseURL)
	}
}

func TestLoadAppliesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
database:
  driver: memory
scheduler:
  timezone: Europe/Berlin
collection:
  workers: 0
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(configPathEnv, path)
	t.Setenv(openAIKeyEnv, "sk-test")
	t.Setenv(collectTargetEnv, "7")
	t.Setenv(httpAddrEnv, ":9999")

	cfg := Load()

	if cfg.Database.Driver != "memory" {
		t.Fatalf("expected memory driver, got %s", cfg.Database.Driver)
	}
	if cfg.Collection.Target != 7 {
		t.Fatalf("expected env target 7, got %d", cfg.Collection.Target)
	}
	if cfg.Collection.Workers != 4 {
		t.Fatalf("zero workers should fall back to default, got %d", cfg.Collection.Workers)
	}
	if cfg.HTTP.Addr != ":9999" {
		t.Fatalf("unexpected addr %s", cfg.HTTP.Addr)
	}
	if cfg.AI.Providers[0].APIKey != "sk-test" {
		t.Fatalf("openai key not applied: %+v", cfg.AI.Providers[0])
	}
	if cfg.AI.Providers[1].APIKey != "" {
		t.Fatalf("deepseek key should stay empty: %+v", cfg.AI.Providers[1])
	}
	if cfg.Scheduler.Location().String() != "Europe/Berlin" {
		t.Fatalf("unexpected location %s", cfg.Scheduler.Location())
	}
}

func TestLoadFallsBackOnBrokenFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(path, []byte("collection: [oops"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(configPathEnv, path)

	cfg := Load()
	if cfg.Collection.Target != defaultConfig().Collection.Target {
		t.Fatalf("expected default target, got %d", cfg.Collection.Target)
	}
}
