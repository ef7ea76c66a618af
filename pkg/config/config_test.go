package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Host = %s, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Level = %s, want INFO", cfg.Logging.Level)
	}
	if cfg.Database.URL != "" || cfg.Database.SQLitePath != "fileholder.db" {
		t.Errorf("database defaults = %q/%q, want SQLite fallback", cfg.Database.URL, cfg.Database.SQLitePath)
	}
	if cfg.Database.Retries != 5 || cfg.Database.RetryDelay() != 2*time.Second {
		t.Errorf("retry defaults = %d/%s", cfg.Database.Retries, cfg.Database.RetryDelay())
	}
	if cfg.Storage.Path != "./uploads" {
		t.Errorf("Storage.Path = %s, want ./uploads", cfg.Storage.Path)
	}
	if cfg.Storage.PendingPrefix != "pending_" {
		t.Errorf("PendingPrefix = %s, want pending_", cfg.Storage.PendingPrefix)
	}
	if cfg.Storage.LockTimeout() != 10*time.Second {
		t.Errorf("LockTimeout = %s, want 10s", cfg.Storage.LockTimeout())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("APP_HOST", "127.0.0.1")
	t.Setenv("APP_PORT", "9001")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/files")
	t.Setenv("FILE_STORAGE_PATH", "/var/lib/files")
	t.Setenv("PENDING_FILE_PREFIX", "tmp_")
	t.Setenv("LOCK_TIMEOUT", "2.5")
	t.Setenv("DB_RETRIES", "3")
	t.Setenv("DB_RETRY_DELAY", "0.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9001 {
		t.Errorf("server = %s:%d, want 127.0.0.1:9001", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://u:p@localhost/files" {
		t.Errorf("DATABASE_URL not applied: %q", cfg.Database.URL)
	}
	if cfg.Database.Retries != 3 {
		t.Errorf("Retries = %d, want 3", cfg.Database.Retries)
	}
	if cfg.Database.RetryDelay() != 500*time.Millisecond {
		t.Errorf("RetryDelay = %s, want 500ms", cfg.Database.RetryDelay())
	}
	if cfg.Storage.Path != "/var/lib/files" || cfg.Storage.PendingPrefix != "tmp_" {
		t.Errorf("storage = %q/%q", cfg.Storage.Path, cfg.Storage.PendingPrefix)
	}
	if cfg.Storage.LockTimeout() != 2500*time.Millisecond {
		t.Errorf("LockTimeout = %s, want 2.5s", cfg.Storage.LockTimeout())
	}
}

func TestLoadDebugLowersLogLevel(t *testing.T) {
	t.Setenv("DEBUG", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Debug {
		t.Error("Debug not applied")
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Level = %s, want DEBUG", cfg.Logging.Level)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `server:
  host: 10.0.0.1
  port: 8080
storage:
  path: /data/blobs
  lock_timeout: 1.5
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Host != "10.0.0.1" || cfg.Server.Port != 8080 {
		t.Errorf("server = %s:%d, want 10.0.0.1:8080", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Storage.Path != "/data/blobs" {
		t.Errorf("Storage.Path = %s", cfg.Storage.Path)
	}
	if cfg.Storage.LockTimeout() != 1500*time.Millisecond {
		t.Errorf("LockTimeout = %s, want 1.5s", cfg.Storage.LockTimeout())
	}
	// Untouched sections keep defaults.
	if cfg.Database.Retries != 5 {
		t.Errorf("Retries = %d, want default 5", cfg.Database.Retries)
	}
}

func TestEnvBeatsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("APP_PORT", "9999")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Port = %d, want env override 9999", cfg.Server.Port)
	}
}

func TestMetricsEnabledByDefault(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Metrics.IsEnabled() {
		t.Error("metrics disabled by default, want enabled")
	}
}

func TestMetricsDisabledByConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("metrics:\n  enabled: false\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Metrics.IsEnabled() {
		t.Error("metrics enabled despite enabled: false in config file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)
	cfg.Server.Port = 70000

	if err := Validate(&cfg); err == nil {
		t.Error("out-of-range port accepted")
	}
}

func TestSaveRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	var cfg Config
	ApplyDefaults(&cfg)
	cfg.Server.Port = 8123

	if err := Save(&cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Server.Port != 8123 {
		t.Errorf("Port after roundtrip = %d, want 8123", loaded.Server.Port)
	}
}
