package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/targetup?sslmode=disable")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.CampaignQueue != "campaign_sends" {
		t.Errorf("expected campaign_sends queue, got %q", cfg.CampaignQueue)
	}
	if cfg.LockWindow != 15*time.Minute {
		t.Errorf("expected 15m lock window, got %s", cfg.LockWindow)
	}
	if cfg.DispatchCooldown != 30*time.Second {
		t.Errorf("expected 30s cooldown, got %s", cfg.DispatchCooldown)
	}
}

func TestLoadFromParts(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_USER", "user")
	t.Setenv("DB_PASSWORD", "pass")
	t.Setenv("DB_NAME", "targetup")

	// An explicitly empty DATABASE_URL wins over the parts.
	if _, err := Load(); err == nil {
		t.Fatal("expected missing DATABASE_URL error")
	}
}

func TestInvalidOverridesFallBack(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/targetup")
	t.Setenv("WORKER_COUNT", "many")
	t.Setenv("DISPATCH_COOLDOWN", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.WorkerCount != 5 {
		t.Errorf("expected default worker count, got %d", cfg.WorkerCount)
	}
	if cfg.DispatchCooldown != 30*time.Second {
		t.Errorf("expected default cooldown, got %s", cfg.DispatchCooldown)
	}
}
