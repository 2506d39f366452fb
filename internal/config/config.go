package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Search      Search      `yaml:"search"`
	Generation  Generation  `yaml:"generation"`
	Marketplace Marketplace `yaml:"marketplace"`
	Output      Output      `yaml:"output"`
	Server      Server      `yaml:"server"`
	Logging     Logging     `yaml:"logging"`
}

type Search struct {
	APIKeyEnv         string  `yaml:"api_key_env"`
	Engine            string  `yaml:"engine"`
	ResultLimit       int     `yaml:"result_limit"`
	MinIntervalMillis int     `yaml:"min_interval_ms"`
	MaxRetries        int     `yaml:"max_retries"`
	BreakerTrip       int     `yaml:"breaker_trip"`
	BreakerTimeoutSec int     `yaml:"breaker_timeout_seconds"`
}

// MinInterval returns the inter-request spacing as a duration.
func (s Search) MinInterval() time.Duration {
	return time.Duration(s.MinIntervalMillis) * time.Millisecond
}

// BreakerTimeout returns the breaker recovery window as a duration.
func (s Search) BreakerTimeout() time.Duration {
	return time.Duration(s.BreakerTimeoutSec) * time.Second
}

type Generation struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	OllamaURL   string `yaml:"ollama_url"`
	OpenAIModel string `yaml:"openai_model"`
	APIKeyEnv   string `yaml:"api_key_env"`
}

type Marketplace struct {
	BaseURL          string `yaml:"base_url"`
	APIKeyEnv        string `yaml:"api_key_env"`
	ProjectID        string `yaml:"project_id"`
	WebhookSecretEnv string `yaml:"webhook_secret_env"`
	Upvotes          int    `yaml:"upvotes"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for redditengage.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "redditengage")
}

// DataDir returns the XDG data directory for redditengage.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "redditengage")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/redditengage/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'redditengage init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Search: Search{
			APIKeyEnv:         "SERP_API_KEY",
			Engine:            "google",
			ResultLimit:       20,
			MinIntervalMillis: 1000,
			MaxRetries:        3,
			BreakerTrip:       5,
			BreakerTimeoutSec: 60,
		},
		Generation: Generation{
			Provider:    "ollama",
			Model:       "qwen2.5:7b",
			OllamaURL:   "http://localhost:11434",
			OpenAIModel: "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
		},
		Marketplace: Marketplace{
			BaseURL:          "https://api.crowdreply.io",
			APIKeyEnv:        "CROWDREPLY_API_KEY",
			WebhookSecretEnv: "CROWDREPLY_WEBHOOK_SECRET",
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
