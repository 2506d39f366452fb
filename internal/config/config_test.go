package config

import (
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := parse([]byte(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Search.Engine != "google" {
		t.Errorf("expected google, got %q", cfg.Search.Engine)
	}
	if cfg.Search.MinInterval() != time.Second {
		t.Errorf("expected 1s spacing, got %v", cfg.Search.MinInterval())
	}
	if cfg.Search.BreakerTimeout() != time.Minute {
		t.Errorf("expected 1m breaker timeout, got %v", cfg.Search.BreakerTimeout())
	}
	if cfg.Generation.Provider != "ollama" {
		t.Errorf("expected ollama default, got %q", cfg.Generation.Provider)
	}
	if cfg.Marketplace.BaseURL != "https://api.crowdreply.io" {
		t.Errorf("unexpected marketplace base URL: %q", cfg.Marketplace.BaseURL)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestParseOverrides(t *testing.T) {
	yaml := `
search:
  engine: bing
  min_interval_ms: 250
generation:
  provider: openai
marketplace:
  project_id: proj_42
  upvotes: 3
`
	cfg, err := parse([]byte(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Search.Engine != "bing" {
		t.Errorf("override lost: %q", cfg.Search.Engine)
	}
	if cfg.Search.MinInterval() != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", cfg.Search.MinInterval())
	}
	if cfg.Generation.Provider != "openai" {
		t.Errorf("override lost: %q", cfg.Generation.Provider)
	}
	if cfg.Marketplace.ProjectID != "proj_42" || cfg.Marketplace.Upvotes != 3 {
		t.Errorf("marketplace overrides lost: %+v", cfg.Marketplace)
	}
	// Untouched sections keep defaults.
	if cfg.Search.MaxRetries != 3 {
		t.Errorf("default lost: %d", cfg.Search.MaxRetries)
	}
}

func TestEmbeddedDefaultParses(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("embedded default.yaml must parse: %v", err)
	}
	if cfg.Search.APIKeyEnv != "SERP_API_KEY" {
		t.Errorf("unexpected api key env: %q", cfg.Search.APIKeyEnv)
	}
	if cfg.Marketplace.WebhookSecretEnv != "CROWDREPLY_WEBHOOK_SECRET" {
		t.Errorf("unexpected webhook secret env: %q", cfg.Marketplace.WebhookSecretEnv)
	}
}

func TestParseInvalidYAML(t *testing.T) {
	if _, err := parse([]byte("search: [not a map")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}
