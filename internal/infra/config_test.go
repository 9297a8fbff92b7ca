package infra

import (
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AUTH_JWT_SECRET", "test-secret")
	t.Setenv("PROFILE_STORE", "memory")
	t.Setenv("CREDENTIAL_STORE", "")
	t.Setenv("IMAGE_PROVIDER", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PORT", "")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("PROFILE_FALLBACK_RETRY", "")
}

func TestLoadConfigDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8787" {
		t.Fatalf("Port mismatch: got %q", cfg.Port)
	}
	if cfg.CredentialStore != "file" {
		t.Fatalf("CredentialStore mismatch: got %q", cfg.CredentialStore)
	}
	if cfg.ImageProvider != "gemini" {
		t.Fatalf("ImageProvider mismatch: got %q", cfg.ImageProvider)
	}
	if cfg.FallbackRetryInterval != 30*time.Second {
		t.Fatalf("FallbackRetryInterval mismatch: got %v", cfg.FallbackRetryInterval)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:5173" {
		t.Fatalf("AllowedOrigins mismatch: %#v", cfg.AllowedOrigins)
	}
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AUTH_JWT_SECRET", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error without AUTH_JWT_SECRET")
	}
}

func TestLoadConfigPostgresNeedsDatabaseURL(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PROFILE_STORE", "postgres")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}

	t.Setenv("DATABASE_URL", "postgres://example")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.DatabaseURL != "postgres://example" {
		t.Fatalf("DatabaseURL mismatch: got %q", cfg.DatabaseURL)
	}
}

func TestLoadConfigRejectsUnknownProvider(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("IMAGE_PROVIDER", "midjourney")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestLoadConfigParsesListsAndDurations(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ALLOWED_ORIGINS", " http://a.test , ,http://b.test ")
	t.Setenv("PROFILE_FALLBACK_RETRY", "5s")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := []string{"http://a.test", "http://b.test"}
	if len(cfg.AllowedOrigins) != len(expected) {
		t.Fatalf("AllowedOrigins mismatch: got %#v want %#v", cfg.AllowedOrigins, expected)
	}
	for i, origin := range expected {
		if cfg.AllowedOrigins[i] != origin {
			t.Fatalf("AllowedOrigins[%d] = %q, want %q", i, cfg.AllowedOrigins[i], origin)
		}
	}
	if cfg.FallbackRetryInterval != 5*time.Second {
		t.Fatalf("FallbackRetryInterval mismatch: got %v", cfg.FallbackRetryInterval)
	}
}
