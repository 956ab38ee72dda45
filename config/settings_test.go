package config

import (
	"testing"
	"time"
)

func TestLoadSettingsDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("LOCK_TTL_SECONDS", "")
	s := settingsFrom(newViper())
	if s.DBDriver != DriverMySQL {
		t.Fatalf("expected default driver mysql, got %q", s.DBDriver)
	}
	if s.LockTTL != 10*time.Second {
		t.Fatalf("expected 10s lock ttl, got %s", s.LockTTL)
	}
	if s.ApiPort != "8080" {
		t.Fatalf("expected port 8080, got %q", s.ApiPort)
	}
}

func TestLoadSettingsFromEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", " SQLite ")
	t.Setenv("SQLITE_PATH", "/tmp/x.db")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test,,")
	t.Setenv("PUBSUB_PROJECT_ID", "")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "fallback-project")
	s := settingsFrom(newViper())
	if s.DBDriver != DriverSQLite || s.SQLitePath != "/tmp/x.db" {
		t.Fatalf("unexpected db settings %q %q", s.DBDriver, s.SQLitePath)
	}
	if len(s.CorsOrigins) != 2 || s.CorsOrigins[1] != "http://b.test" {
		t.Fatalf("unexpected cors origins %v", s.CorsOrigins)
	}
	if s.PubSubProjectId != "fallback-project" {
		t.Fatalf("expected project fallback, got %q", s.PubSubProjectId)
	}
}

func TestLoadSettingsRateLimit(t *testing.T) {
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "600")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "30")
	t.Setenv("TRUST_USER_HEADER", "true")
	s := settingsFrom(newViper())
	if s.RateLimitMaxRequests != 600 || s.RateLimitWindow != 30*time.Second {
		t.Fatalf("unexpected rate limit %d/%s", s.RateLimitMaxRequests, s.RateLimitWindow)
	}
	if !s.TrustUserHeader {
		t.Fatalf("expected TrustUserHeader")
	}
}
