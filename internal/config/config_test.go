package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected default HTTP_ADDR, got %s", cfg.HTTPAddr)
	}
	if cfg.SnapshotInterval != 15*time.Minute {
		t.Fatalf("expected default SNAPSHOT_INTERVAL 15m, got %s", cfg.SnapshotInterval)
	}
	if cfg.RedisAddr != "" {
		t.Fatalf("expected redis disabled by default, got %s", cfg.RedisAddr)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":18080")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("JWT_ISSUER", "test-issuer")
	t.Setenv("PUBLIC_BASE_URL", "https://records.example.org")
	t.Setenv("REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("SNAPSHOT_PATH", "/var/lib/schoolledger/snapshot.json")
	t.Setenv("SNAPSHOT_INTERVAL", "5m")
	t.Setenv("BOOTSTRAP_ADMIN", "principal-1")

	cfg := Load()
	if cfg.HTTPAddr != ":18080" {
		t.Fatalf("expected HTTP_ADDR override, got %s", cfg.HTTPAddr)
	}
	if cfg.JWTSecret != "test-secret" {
		t.Fatalf("expected JWT_SECRET override, got %s", cfg.JWTSecret)
	}
	if cfg.JWTIssuer != "test-issuer" {
		t.Fatalf("expected JWT_ISSUER override, got %s", cfg.JWTIssuer)
	}
	if cfg.PublicBaseURL != "https://records.example.org" {
		t.Fatalf("expected PUBLIC_BASE_URL override, got %s", cfg.PublicBaseURL)
	}
	if cfg.RedisAddr != "127.0.0.1:6379" {
		t.Fatalf("expected REDIS_ADDR override, got %s", cfg.RedisAddr)
	}
	if cfg.SnapshotPath != "/var/lib/schoolledger/snapshot.json" {
		t.Fatalf("expected SNAPSHOT_PATH override, got %s", cfg.SnapshotPath)
	}
	if cfg.SnapshotInterval != 5*time.Minute {
		t.Fatalf("expected SNAPSHOT_INTERVAL 5m, got %s", cfg.SnapshotInterval)
	}
	if cfg.BootstrapAdmin != "principal-1" {
		t.Fatalf("expected BOOTSTRAP_ADMIN override, got %s", cfg.BootstrapAdmin)
	}
}

func TestLoadDurationSecondsFallback(t *testing.T) {
	t.Setenv("SNAPSHOT_INTERVAL_SECONDS", "90")
	cfg := Load()
	if cfg.SnapshotInterval != 90*time.Second {
		t.Fatalf("expected SNAPSHOT_INTERVAL 90s, got %s", cfg.SnapshotInterval)
	}
}
