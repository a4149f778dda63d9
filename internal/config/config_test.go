package config

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL_SECONDS", "")
	t.Setenv("LOCK_BACKEND", "")

	cfg := Load()
	if cfg.SweepInterval != 20*time.Second {
		t.Errorf("sweep interval = %v, want 20s", cfg.SweepInterval)
	}
	if cfg.LockBackend != LockBackendLocal {
		t.Errorf("lock backend = %q, want local", cfg.LockBackend)
	}
	if cfg.AllowedOrigins != nil {
		t.Errorf("origins = %v, want allow-all", cfg.AllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL_SECONDS", "5")
	t.Setenv("LOCK_TTL_SECONDS", "not-a-number")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("AUTO_MIGRATE", "TRUE")

	cfg := Load()
	if !cfg.AutoMigrate {
		t.Error("AUTO_MIGRATE=TRUE must enable migrations")
	}
	if cfg.SweepInterval != 5*time.Second {
		t.Errorf("sweep interval = %v, want 5s", cfg.SweepInterval)
	}
	if cfg.LockTTL != 10*time.Second {
		t.Errorf("invalid int must fall back, got %v", cfg.LockTTL)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("origins = %v", cfg.AllowedOrigins)
	}
}

func TestCacheKeys(t *testing.T) {
	id := uuid.MustParse("5f0c2f1e-8a57-4c4b-9d0b-2f8c1a6d7e90")
	if got := CacheKey.ExamContentKey(id); got != "exam:5f0c2f1e-8a57-4c4b-9d0b-2f8c1a6d7e90:content" {
		t.Errorf("content key = %q", got)
	}
	if got := CacheKey.CandidateExamLockKey("c-1", id); got != "lock:candidate:c-1:exam:5f0c2f1e-8a57-4c4b-9d0b-2f8c1a6d7e90" {
		t.Errorf("candidate lock key = %q", got)
	}
}
