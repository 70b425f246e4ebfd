package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" validate:"required"`
	Jobs    JobsConfig    `mapstructure:"jobs" validate:"required"`
	LLM     LLMConfig     `mapstructure:"llm" validate:"required"`
	Storage StorageConfig `mapstructure:"storage" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port              int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel          string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat         string        `mapstructure:"log_format" validate:"omitempty,oneof=json text"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" validate:"gte=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// JobsConfig controls job execution, upload limits and record retention.
type JobsConfig struct {
	// MaxConcurrent bounds the number of jobs executing at once. Zero means unbounded.
	MaxConcurrent int `mapstructure:"max_concurrent" validate:"gte=0"`

	// Timeout is the overall time budget of one job.
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`

	// MaxUploadBytes is the size ceiling for submitted documents.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" validate:"gt=0"`

	// MaxJobs caps the number of records held in memory. Zero means unlimited.
	MaxJobs int `mapstructure:"max_jobs" validate:"gte=0"`

	// Retention is how long terminal records are kept. Zero keeps them until restart.
	Retention time.Duration `mapstructure:"retention" validate:"gte=0"`

	// SweepInterval is how often expired records are evicted.
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gte=0"`

	// StreamPollInterval is the fallback re-read interval of progress streams.
	StreamPollInterval time.Duration `mapstructure:"stream_poll_interval" validate:"gt=0"`
}

// LLMConfig contains all model provider settings.
type LLMConfig struct {
	DefaultMode       string  `mapstructure:"default_mode" validate:"required"`
	ModelsFile        string  `mapstructure:"models_file"`
	PromptFile        string  `mapstructure:"prompt_file"`
	AWSRegion         string  `mapstructure:"aws_region" validate:"required"`
	GeminiAPIKey      string  `mapstructure:"gemini_api_key"`
	OpenAIAPIKey      string  `mapstructure:"openai_api_key"`
	OpenAIBaseURL     string  `mapstructure:"openai_base_url" validate:"omitempty,url"`
	MaxTokens         int     `mapstructure:"max_tokens" validate:"gt=0"`
	Temperature       float64 `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxRetries        int     `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelaySeconds int     `mapstructure:"retry_delay_seconds" validate:"gte=1,lte=60"`
}

// StorageConfig selects where uploads and reports are kept.
type StorageConfig struct {
	Backend     string `mapstructure:"backend" validate:"required,oneof=local s3 postgres sqlite"`
	UploadDir   string `mapstructure:"upload_dir" validate:"required"`
	ResultsDir  string `mapstructure:"results_dir" validate:"required_if=Backend local"`
	S3Bucket    string `mapstructure:"s3_bucket" validate:"required_if=Backend s3"`
	S3Prefix    string `mapstructure:"s3_prefix"`
	DatabaseURL string `mapstructure:"database_url" validate:"required_if=Backend postgres,required_if=Backend sqlite"`
}
