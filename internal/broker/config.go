package broker

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds broker configuration.
type Config struct {
	// DBPath is the SQLite database path.
	DBPath string `yaml:"db_path"`

	// AMQPURL is the RabbitMQ connection URL. Empty selects the in-process
	// queue, where synchronization tasks are drained by the same binary.
	AMQPURL string `yaml:"amqp_url"`

	// QueueName is the task queue name.
	QueueName string `yaml:"queue_name"`

	// MaxReapplyAttempts bounds how often a failed item may be re-enqueued
	// before it is flagged for manual review.
	MaxReapplyAttempts int `yaml:"max_reapply_attempts"`
}

// DefaultConfig returns configuration with defaults.
func DefaultConfig() *Config {
	return &Config{
		QueueName:          "sharegate.sync",
		MaxReapplyAttempts: 3,
	}
}

// LoadFromFile overlays configuration from a YAML file.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// LoadFromEnv overlays configuration from environment variables.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("SHAREGATE_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("SHAREGATE_AMQP_URL"); v != "" {
		c.AMQPURL = v
	}
	if v := os.Getenv("SHAREGATE_QUEUE"); v != "" {
		c.QueueName = v
	}
	if v := os.Getenv("SHAREGATE_MAX_REAPPLY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SHAREGATE_MAX_REAPPLY_ATTEMPTS: %w", err)
		}
		c.MaxReapplyAttempts = n
	}
	return nil
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.QueueName == "" {
		return fmt.Errorf("queue name is required")
	}
	if c.MaxReapplyAttempts < 1 {
		return fmt.Errorf("max reapply attempts must be at least 1")
	}
	return nil
}
