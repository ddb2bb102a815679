package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadJSONAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"databases": {"sqlite3": {"dsn": "chat.db"}}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CHATVAULT_DB", "")
	t.Setenv("CHATVAULT_DSN", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.BasicConfig.Driver != "sqlite3" {
		t.Fatalf("expected sqlite3 driver, got %s", cfg.BasicConfig.Driver)
	}
	if cfg.BasicConfig.ServerAddress != ":8090" {
		t.Fatalf("unexpected address %s", cfg.BasicConfig.ServerAddress)
	}
	if got := cfg.Databases["sqlite3"].DSN; got != filepath.Join(dir, "chat.db") {
		t.Fatalf("sqlite dsn not resolved against config dir: %s", got)
	}
	if cfg.Entitlements.GuestMessagesPerDay != 20 || cfg.Entitlements.RegularMessagesPerDay != 100 {
		t.Fatalf("entitlement defaults missing: %+v", cfg.Entitlements)
	}
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "basic_config:\n  server_address: \":9000\"\n  title_workers: 4\ndatabases:\n  mysql:\n    host: db\n    port: 3306\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CHATVAULT_DB", "mysql")
	t.Setenv("CHATVAULT_DSN", "")
	t.Setenv("CHATVAULT_REDIS_ADDR", "cache:6380")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.BasicConfig.ServerAddress != ":9000" || cfg.BasicConfig.TitleWorkers != 4 {
		t.Fatalf("yaml values not decoded: %+v", cfg.BasicConfig)
	}
	if cfg.BasicConfig.Driver != "mysql" {
		t.Fatalf("env driver override ignored")
	}
	if !cfg.Redis.Enabled || cfg.Redis.Host != "cache" || cfg.Redis.Port != 6380 {
		t.Fatalf("redis env override not applied: %+v", cfg.Redis)
	}
}

func TestLoadMissingDriverConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"basic_config": {"driver": "postgres"}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CHATVAULT_DB", "")
	t.Setenv("CHATVAULT_DSN", "")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing database section")
	}
}
