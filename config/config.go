package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Provider        string `yaml:"provider"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIModel     string `yaml:"openai_model"`
	AnthropicModel  string `yaml:"anthropic_model"`
	TalksDir        string `yaml:"talks_dir"`
	OutputDir       string `yaml:"output_dir"`
	BatchSize       int    `yaml:"batch_size"`
	Schedule        string `yaml:"schedule"`
	Timezone        string `yaml:"timezone"`
	TelegramToken   string `yaml:"telegram_token"`
	TelegramChatID  int64  `yaml:"telegram_chat_id"`
	LogLevel        string `yaml:"log_level"`
}

// scheduleRegex validates HH:MM format with proper ranges.
var scheduleRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])$`)

// Load reads configuration from a YAML file and applies defaults and
// environment overrides. A missing file is not an error: the original
// deployment configured everything through the environment, so the file
// is optional and defaults plus environment must be enough.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	}

	applyDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// GetConfigPath returns the config file path from environment or default.
func GetConfigPath() string {
	if path := os.Getenv("CLASSIFIER_CONFIG"); path != "" {
		return path
	}
	return "./config.yaml"
}

// Model returns the model name for the selected provider.
func (c *Config) Model() string {
	if c.Provider == "anthropic" {
		return c.AnthropicModel
	}
	return c.OpenAIModel
}

func applyDefaults(cfg *Config) {
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "o4-mini-2025-04-16"
	}
	if cfg.AnthropicModel == "" {
		cfg.AnthropicModel = "claude-sonnet-4-5-20250929"
	}
	if cfg.TalksDir == "" {
		cfg.TalksDir = "conference_talks"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "output"
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 10
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func applyEnvironmentOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.AnthropicAPIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.OpenAIModel = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.TelegramToken = v
	}
	if v := os.Getenv("TALKS_DIR"); v != "" {
		cfg.TalksDir = v
	}
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
}

func validate(cfg *Config) error {
	switch cfg.Provider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return fmt.Errorf("openai_api_key is required (or set OPENAI_API_KEY)")
		}
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return fmt.Errorf("anthropic_api_key is required (or set ANTHROPIC_API_KEY)")
		}
	default:
		return fmt.Errorf("provider must be openai or anthropic, got %q", cfg.Provider)
	}
	if cfg.BatchSize < 1 {
		return fmt.Errorf("batch_size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.Schedule != "" && !scheduleRegex.MatchString(cfg.Schedule) {
		return fmt.Errorf("schedule must be in HH:MM format (00:00-23:59), got %q", cfg.Schedule)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	info, err := os.Stat(cfg.TalksDir)
	if err != nil {
		return fmt.Errorf("talks_dir %q not found: %w", cfg.TalksDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("talks_dir %q is not a directory", cfg.TalksDir)
	}
	return nil
}
