package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.WorkerCommand != "claude" {
		t.Errorf("WorkerCommand = %q, want claude", cfg.General.WorkerCommand)
	}
	if cfg.General.AutonomyLevel != "standby" {
		t.Errorf("AutonomyLevel = %q, want standby", cfg.General.AutonomyLevel)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Web.Port)
	}
	if cfg.Health.MemoryCeilingMB != 2048 {
		t.Errorf("MemoryCeilingMB = %d, want 2048", cfg.Health.MemoryCeilingMB)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[general]
autonomy_level = "manager"
apps = ["webshop", "blog"]

[notifications]
slack_webhook = "https://hooks.slack.com/services/T/B/X"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.AutonomyLevel != "manager" {
		t.Errorf("AutonomyLevel = %q", cfg.General.AutonomyLevel)
	}
	if len(cfg.General.Apps) != 2 {
		t.Errorf("Apps = %v", cfg.General.Apps)
	}
	if cfg.Notifications.SlackWebhook == "" {
		t.Error("SlackWebhook not loaded")
	}
	// Untouched sections keep their defaults.
	if cfg.General.WorkerCommand != "claude" {
		t.Errorf("WorkerCommand = %q, want default", cfg.General.WorkerCommand)
	}
	if cfg.Web.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want default", cfg.Web.Host)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("[general\nbroken"), 0o644)

	if _, err := Load(path); err == nil {
		t.Fatal("malformed TOML should fail to load")
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	if got := ExpandPath("~/data/cos.db"); got != filepath.Join(home, "data", "cos.db") {
		t.Errorf("ExpandPath = %q", got)
	}
	if got := ExpandPath("/absolute/path.db"); got != "/absolute/path.db" {
		t.Errorf("absolute path changed: %q", got)
	}
}
