package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Health        HealthConfig        `toml:"health"`
	Notifications NotificationsConfig `toml:"notifications"`
	Web           WebConfig           `toml:"web"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	DatabasePath  string   `toml:"database_path"`
	AgentLogDir   string   `toml:"agent_log_dir"`
	WorkerCommand string   `toml:"worker_command"`
	AutonomyLevel string   `toml:"autonomy_level"`
	Apps          []string `toml:"apps"`
}

// HealthConfig holds health monitor settings
type HealthConfig struct {
	CheckIntervalMs int64 `toml:"check_interval_ms"`
	MemoryCeilingMB int64 `toml:"memory_ceiling_mb"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// WebConfig holds API server settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			DatabasePath:  filepath.Join(home, ".cos", "cos.db"),
			AgentLogDir:   filepath.Join(home, ".cos", "logs"),
			WorkerCommand: "claude",
			AutonomyLevel: "standby",
		},
		Health: HealthConfig{
			CheckIntervalMs: 60_000,
			MemoryCeilingMB: 2048,
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.General.AgentLogDir = ExpandPath(cfg.General.AgentLogDir)

	return cfg, nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "cos", "config.toml")
}
