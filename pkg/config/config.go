// Package config holds the daemon configuration and the per-group
// configuration repository. The daemon config is JSON with environment
// variable overrides; group config is a YAML document per group root.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DataDir        string   `env:"TALECLAW_DATA_DIR"        json:"data_dir"`
	LogDir         string   `env:"TALECLAW_LOG_DIR"         json:"log_dir,omitempty"`
	LogLevel       string   `env:"TALECLAW_LOG_LEVEL"       json:"log_level,omitempty"`
	LogFormat      string   `env:"TALECLAW_LOG_FORMAT"      json:"log_format,omitempty"`
	GlobalKeywords []string `                               json:"global_keywords,omitempty"`

	Channels    ChannelsConfig    `json:"channels"`
	Provider    ProviderConfig    `json:"provider,omitzero"`
	Maintenance MaintenanceConfig `json:"maintenance,omitzero"`
}

type ChannelsConfig struct {
	Discord DiscordConfig `json:"discord,omitzero"`
	OneBot  OneBotConfig  `json:"onebot,omitzero"`
}

type DiscordConfig struct {
	Enabled bool   `env:"TALECLAW_DISCORD_ENABLED" json:"enabled"`
	Token   string `env:"TALECLAW_DISCORD_TOKEN"   json:"token,omitempty"`
}

// OneBotConfig configures QQ connectivity over the OneBot v11
// websocket protocol.
type OneBotConfig struct {
	Enabled     bool   `env:"TALECLAW_ONEBOT_ENABLED"      json:"enabled"`
	URL         string `env:"TALECLAW_ONEBOT_URL"          json:"url,omitempty"`
	AccessToken string `env:"TALECLAW_ONEBOT_ACCESS_TOKEN" json:"access_token,omitempty"`
}

type ProviderConfig struct {
	APIKey  string `env:"TALECLAW_PROVIDER_API_KEY"  json:"api_key,omitempty"`
	Model   string `env:"TALECLAW_PROVIDER_MODEL"    json:"model,omitempty"`
	BaseURL string `env:"TALECLAW_PROVIDER_BASE_URL" json:"base_url,omitempty"`
}

type MaintenanceConfig struct {
	Enabled          bool   `env:"TALECLAW_MAINTENANCE_ENABLED"  json:"enabled"`
	Schedule         string `env:"TALECLAW_MAINTENANCE_SCHEDULE" json:"schedule,omitempty"`
	IdleAfterMinutes int    `                                    json:"idle_after_minutes,omitempty"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir:   filepath.Join(home, ".taleclaw", "data"),
		LogDir:    filepath.Join(home, ".taleclaw", "logs"),
		LogLevel:  "info",
		LogFormat: "json",
		Provider: ProviderConfig{
			Model: "claude-sonnet-4.6",
		},
		Maintenance: MaintenanceConfig{
			Enabled:          true,
			Schedule:         "*/30 * * * *",
			IdleAfterMinutes: 24 * 60,
		},
	}
}

// LoadConfig reads a JSON config file and applies environment variable
// overrides. A missing file yields defaults (plus env overrides).
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Defaults + env only.
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("applying env overrides: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config as indented JSON.
func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
