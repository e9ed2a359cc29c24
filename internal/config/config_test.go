package config

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected http addr: %s", cfg.HTTPAddr)
	}
	if cfg.DBDriver != "sqlite" || cfg.DBDSN != "tomas.db" {
		t.Fatalf("unexpected db defaults: %s %s", cfg.DBDriver, cfg.DBDSN)
	}
	if cfg.CommandQueueSize != 16 {
		t.Fatalf("unexpected queue size: %d", cfg.CommandQueueSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate defaults: %v", err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	contents := `version: 1
gateway:
  http_addr: ":9000"
  db_driver: postgres
  db_dsn: "host=localhost dbname=tomas"
  workspace_dir: /var/lib/tomas
  command_queue_size: 32
  openai_api_key: file-key
  webhook_urls:
    - https://hooks.example.com/tomas
`
	if err := os.WriteFile(configPath, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv(EnvConfigFile, configPath)
	t.Setenv("TOMAS_HTTP_ADDR", ":7777")
	t.Setenv("OPENAI_API_KEY", "env-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":7777" {
		t.Fatalf("expected env to win, got %s", cfg.HTTPAddr)
	}
	if cfg.DBDriver != "postgres" {
		t.Fatalf("expected file db driver, got %s", cfg.DBDriver)
	}
	if cfg.WorkspaceDir != "/var/lib/tomas" {
		t.Fatalf("expected file workspace dir, got %s", cfg.WorkspaceDir)
	}
	if cfg.CommandQueueSize != 32 {
		t.Fatalf("expected file queue size, got %d", cfg.CommandQueueSize)
	}
	if cfg.OpenAIAPIKey != "env-key" {
		t.Fatalf("expected env api key to win, got %s", cfg.OpenAIAPIKey)
	}
	if len(cfg.WebhookURLs) != 1 || cfg.WebhookURLs[0] != "https://hooks.example.com/tomas" {
		t.Fatalf("unexpected webhook urls: %v", cfg.WebhookURLs)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := Config{
		HTTPAddr:         ":8080",
		DBDriver:         "sqlite",
		DBDSN:            "tomas.db",
		WorkspaceDir:     ".tomas/workspaces",
		CommandQueueSize: 16,
		ShutdownTimeout:  10 * time.Second,
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected base config valid: %v", err)
	}

	bad := base
	bad.DBDriver = "mongodb"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected driver rejection")
	}

	bad = base
	bad.CommandQueueSize = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected queue size rejection")
	}

	bad = base
	bad.WorkspaceDir = " "
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected workspace dir rejection")
	}
}

func TestRuntimeConfigSnapshot(t *testing.T) {
	rc := NewRuntimeConfig(Config{OpenAIAPIKey: "base-key"})
	rc.SetAPIKey("anthropic", "runtime-key")
	rc.SetSetting("default_backend", "thorough")

	snap := rc.Snapshot()
	keys, ok := snap["api_keys"].(map[string]any)
	if !ok {
		t.Fatalf("expected api_keys map, got %T", snap["api_keys"])
	}
	if keys["openai"] != "base-key" || keys["anthropic"] != "runtime-key" {
		t.Fatalf("unexpected keys: %v", keys)
	}
	if snap["default_backend"] != "thorough" {
		t.Fatalf("unexpected setting: %v", snap["default_backend"])
	}

	// Mutating the snapshot must not leak back.
	keys["openai"] = "tampered"
	if rc.Snapshot()["api_keys"].(map[string]any)["openai"] != "base-key" {
		t.Fatalf("snapshot mutation leaked into runtime config")
	}

	rc.SetAPIKey("openai", "")
	providers := rc.Providers()
	sort.Strings(providers)
	if len(providers) != 1 || providers[0] != "anthropic" {
		t.Fatalf("unexpected providers after delete: %v", providers)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvConfigFile,
		"TOMAS_HTTP_ADDR", "TOMAS_DB_DRIVER", "TOMAS_DB_DSN",
		"TOMAS_WORKSPACE_DIR", "TOMAS_COMMAND_QUEUE_SIZE",
		"TOMAS_WEBHOOK_URLS", "TOMAS_PLANNER_COMMAND",
		"TOMAS_RESEARCHER_COMMAND", "TOMAS_SHUTDOWN_TIMEOUT",
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GOOGLE_API_KEY",
	} {
		t.Setenv(key, "")
	}
	// Keep the home-directory lookup away from any real ~/.tomas.
	t.Setenv("HOME", t.TempDir())

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
