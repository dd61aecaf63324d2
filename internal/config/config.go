package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"invoicebot/internal/logger"
)

// Config holds all process configuration, sourced from the environment.
type Config struct {
	// Slack Configuration
	SlackBotToken      string `env:"SLACK_BOT_TOKEN"`
	SlackSigningSecret string `env:"SLACK_SIGNING_SECRET"`
	SlackBotUserID     string `env:"SLACK_BOT_USER_ID"`
	SlackAPIBaseURL    string `env:"SLACK_API_BASE_URL" envDefault:"https://slack.com/api"`

	// OpenAI Configuration
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	OpenAIModel  string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`

	// Server Configuration
	Port int `env:"PORT" envDefault:"8080"`

	// Dispatcher Configuration
	WorkerCount int `env:"WORKER_COUNT" envDefault:"4"`
	QueueSize   int `env:"WORKER_QUEUE_SIZE" envDefault:"64"`

	// Engine Configuration
	AnomalyThreshold float64 `env:"ANOMALY_THRESHOLD" envDefault:"2500"`

	// Ingestion Configuration
	LenientHeaders bool `env:"INGEST_LENIENT_HEADERS" envDefault:"false"`
	SkipBadRows    bool `env:"INGEST_SKIP_BAD_ROWS" envDefault:"false"`

	// Logging Configuration
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"console"`
	LogTimeFormat string `env:"LOG_TIME_FORMAT" envDefault:"2006-01-02T15:04:05Z07:00"`
	LogOutput     string `env:"LOG_OUTPUT" envDefault:"stdout"`
}

// Load parses configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.SlackBotToken == "" {
		return fmt.Errorf("SLACK_BOT_TOKEN is required")
	}
	if c.SlackSigningSecret == "" {
		return fmt.Errorf("SLACK_SIGNING_SECRET is required")
	}
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("WORKER_QUEUE_SIZE must be at least 1")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}
