package config

import (
	"os"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Remove(tmpfile.Name()) })

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: "127.0.0.1"

storage:
  cdnBaseURL: "https://cdn.example.com"

delivery:
  maxSignedURLTTL: 2h
  defaultSignedURLTTL: 30m
  publicURL: "https://api.example.com"

orchestrator:
  maxAttempts: 4
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}

	if cfg.Storage.CDNBaseURL != "https://cdn.example.com" {
		t.Errorf("Expected CDN base URL, got %q", cfg.Storage.CDNBaseURL)
	}

	if cfg.Delivery.MaxSignedURLTTL != 2*time.Hour {
		t.Errorf("Expected max TTL 2h, got %s", cfg.Delivery.MaxSignedURLTTL)
	}

	if cfg.Orchestrator.MaxAttempts != 4 {
		t.Errorf("Expected 4 attempts, got %d", cfg.Orchestrator.MaxAttempts)
	}

	if cfg.Orchestrator.JobTimeout != 2*time.Hour {
		t.Errorf("Expected default job timeout 2h, got %s", cfg.Orchestrator.JobTimeout)
	}

	if cfg.Delivery.PlanCeilings["standard"] != 2800 {
		t.Errorf("Expected standard ceiling 2800, got %d", cfg.Delivery.PlanCeilings["standard"])
	}

	if cfg.Delivery.PublicURL != "https://api.example.com" {
		t.Errorf("Expected public URL, got %q", cfg.Delivery.PublicURL)
	}
}

func TestLoadRejectsDefaultTTLAboveMax(t *testing.T) {
	path := writeConfig(t, `
delivery:
  maxSignedURLTTL: 10m
  defaultSignedURLTTL: 1h
`)

	if _, err := Load(path); err == nil {
		t.Error("Expected validation error when default TTL exceeds max TTL")
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error when loading nonexistent file")
	}
}
