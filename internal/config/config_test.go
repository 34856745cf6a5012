package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"RHEMA_ADDR", "RHEMA_DB_DRIVER", "RHEMA_DATABASE_URL", "SUPABASE_URL",
		"RHEMA_DATABASE_KEY", "SUPABASE_SERVICE_ROLE_KEY", "GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY", "RHEMA_AI_PROVIDER", "RHEMA_JWT_SECRET",
		"RHEMA_LIBRARY_DIR", "RHEMA_LOG_MODE", "RHEMA_REDIS_ADDR",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Server.Address != DefaultAddress {
		t.Fatalf("address = %q", cfg.Server.Address)
	}
	if cfg.AI.EmbedModel != "text-embedding-004" || cfg.AI.EmbedDimension != 768 {
		t.Fatalf("unexpected embedding defaults: %+v", cfg.AI)
	}
	if cfg.Retrieval.MatchThreshold != 0.5 || cfg.Retrieval.MatchCount != 5 {
		t.Fatalf("unexpected retrieval defaults: %+v", cfg.Retrieval)
	}
	if cfg.Ingest.ChunkSize != 1000 || cfg.Ingest.Overlap != 100 {
		t.Fatalf("unexpected ingest defaults: %+v", cfg.Ingest)
	}
	if cfg.RateLimit() != 200*time.Millisecond {
		t.Fatalf("rate limit = %v", cfg.RateLimit())
	}
	if cfg.Providers["gemini"].Model != "gemini-2.5-flash-lite" {
		t.Fatalf("gemini model = %q", cfg.Providers["gemini"].Model)
	}
}

func TestLoadYAMLAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
database:
  driver: sqlite3
  url: rhema.db
retrieval:
  match_count: 3
ingest:
  library_dir: library
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GEMINI_API_KEY", "gem-key")
	t.Setenv("RHEMA_REDIS_ADDR", "cache.local:6380")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Database.URL != filepath.Join(dir, "rhema.db") {
		t.Fatalf("sqlite path not resolved: %q", cfg.Database.URL)
	}
	if cfg.Ingest.LibraryDir != filepath.Join(dir, "library") {
		t.Fatalf("library dir not resolved: %q", cfg.Ingest.LibraryDir)
	}
	if cfg.Retrieval.MatchCount != 3 {
		t.Fatalf("match count = %d", cfg.Retrieval.MatchCount)
	}
	if cfg.AI.APIKey != "gem-key" {
		t.Fatalf("api key not taken from env")
	}
	if cfg.Redis.Host != "cache.local" || cfg.Redis.Port != 6380 {
		t.Fatalf("redis addr = %s:%d", cfg.Redis.Host, cfg.Redis.Port)
	}
	p, err := cfg.ProviderFor("")
	if err != nil {
		t.Fatalf("ProviderFor error: %v", err)
	}
	if p.APIKey != "gem-key" {
		t.Fatalf("gemini provider should fall back to shared key")
	}
	if err := cfg.RequireCredentials(); err != nil {
		t.Fatalf("sqlite store needs no key: %v", err)
	}
}

func TestRequireCredentialsNamesEveryMissingValue(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	err = cfg.RequireCredentials()
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	for _, want := range []string{"database url", "database key", "embedding api key"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %q", err, want)
		}
	}
}

func TestValidateRejectsOverlapNotBelowChunkSize(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"ingest":{"chunk_size":100,"overlap":100}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestLoadKeepsExplicitZeroes(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"retrieval":{"match_threshold":0},"ingest":{"chunk_size":50,"overlap":0,"rate_limit_ms":0}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Retrieval.MatchThreshold != 0 {
		t.Fatalf("match threshold = %v, want 0", cfg.Retrieval.MatchThreshold)
	}
	if cfg.Ingest.ChunkSize != 50 || cfg.Ingest.Overlap != 0 || cfg.RateLimit() != 0 {
		t.Fatalf("unexpected ingest settings: %+v", cfg.Ingest)
	}
	if cfg.Retrieval.MatchCount != DefaultMatchCount {
		t.Fatalf("absent match count should default, got %d", cfg.Retrieval.MatchCount)
	}
}
