package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "DOCREVIEW"

// defaults lists every configuration key with its default value. Registering
// each key lets viper resolve it from the environment during Unmarshal.
var defaults = map[string]any{
	"server.port":                8080,
	"server.log_level":           "info",
	"server.log_format":          "json",
	"server.read_header_timeout": 10 * time.Second,
	"server.shutdown_timeout":    10 * time.Second,

	"jobs.max_concurrent":       0,
	"jobs.timeout":              10 * time.Minute,
	"jobs.max_upload_bytes":     int64(16 << 20),
	"jobs.max_jobs":             0,
	"jobs.retention":            24 * time.Hour,
	"jobs.sweep_interval":       10 * time.Minute,
	"jobs.stream_poll_interval": time.Second,

	"llm.default_mode":        "claude-4-5-sonnet",
	"llm.models_file":         "",
	"llm.prompt_file":         "",
	"llm.aws_region":          "us-east-1",
	"llm.gemini_api_key":      "",
	"llm.openai_api_key":      "",
	"llm.openai_base_url":     "",
	"llm.max_tokens":          8000,
	"llm.temperature":         0.6,
	"llm.max_retries":         3,
	"llm.retry_delay_seconds": 2,

	"storage.backend":      "local",
	"storage.upload_dir":   "uploads",
	"storage.results_dir":  "results",
	"storage.s3_bucket":    "",
	"storage.s3_prefix":    "reports/",
	"storage.database_url": "",
}

// Load configuration from environment variables and optionally config files.
// Environment variables (DOCREVIEW_SERVER_PORT, DOCREVIEW_LLM_AWS_REGION, ...)
// take precedence over values from a config.yaml found in "." or "./config".
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the struct tags of cfg.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// LoadDotEnv loads variables from a .env file into the process environment
// without overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}
