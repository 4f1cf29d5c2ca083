package tracker

import (
	"context"
	"flag"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("tracker", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.ServerURL != "http://localhost:8080" {
		t.Fatalf("expected default server url, got %q", cfg.ServerURL)
	}
	if cfg.Role != "player" {
		t.Fatalf("expected default role player, got %q", cfg.Role)
	}
	if cfg.Mode != "" {
		t.Fatalf("expected empty mode (auto), got %q", cfg.Mode)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	fs := flag.NewFlagSet("tracker", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{
		"-server-url", "http://example.test:9000",
		"-session-id", "s1",
		"-role", "gm",
		"-mode", "legacy",
		"-poll-interval", "2s",
	})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.ServerURL != "http://example.test:9000" {
		t.Fatalf("expected server url override, got %q", cfg.ServerURL)
	}
	if cfg.SessionID != "s1" || cfg.Role != "gm" || cfg.Mode != "legacy" {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.BaseInterval != 2*time.Second {
		t.Fatalf("expected 2s poll interval, got %v", cfg.BaseInterval)
	}
}

func TestParseConfigFromEnv(t *testing.T) {
	t.Setenv("INITIATIVE_WATCH_SESSION_ID", "env-session")
	t.Setenv("INITIATIVE_WATCH_DISPATCH_MODE", "unified")

	fs := flag.NewFlagSet("tracker", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.SessionID != "env-session" {
		t.Fatalf("expected env session id, got %q", cfg.SessionID)
	}
	if cfg.Mode != "unified" {
		t.Fatalf("expected env mode, got %q", cfg.Mode)
	}
}

func TestRunRequiresSessionID(t *testing.T) {
	if err := Run(context.Background(), Config{}); err == nil {
		t.Fatal("expected missing session id error")
	}
}

func TestRunRejectsUnknownMode(t *testing.T) {
	if err := Run(context.Background(), Config{SessionID: "s1", Mode: "telepathy"}); err == nil {
		t.Fatal("expected unknown mode error")
	}
}
