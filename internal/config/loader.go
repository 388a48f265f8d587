package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ConfigLoader reads a Config from a YAML file and fills in defaults for
// anything the file leaves unset.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

// LoadConfig reads filename, unmarshals it, applies defaults for any
// zero-valued tunable, and validates the result.
func (cl *ConfigLoader) LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(c *Config) {
	if c.Pool.ReadyTimeoutMs == 0 {
		c.Pool.ReadyTimeoutMs = 10000
	}
	if c.Pool.ShutdownFlushTimeoutMs == 0 {
		c.Pool.ShutdownFlushTimeoutMs = 10000
	}

	if c.IPC.MaxConnections == 0 {
		c.IPC.MaxConnections = 256
	}
	if c.IPC.ConnectTimeoutMs == 0 {
		c.IPC.ConnectTimeoutMs = 5000
	}
	if c.IPC.RequestTimeoutMs == 0 {
		c.IPC.RequestTimeoutMs = 10000
	}
	if c.IPC.MaxRetries == 0 {
		c.IPC.MaxRetries = 5
	}
	if c.IPC.BaseRetryDelayMs == 0 {
		c.IPC.BaseRetryDelayMs = 200
	}
	if c.IPC.MaxRetryDelayMs == 0 {
		c.IPC.MaxRetryDelayMs = 10000
	}

	if c.Persistence.DSN == "" {
		c.Persistence.DSN = "footprintd.db"
	}
	if c.Persistence.QueuePollIntervalMs == 0 {
		c.Persistence.QueuePollIntervalMs = 1000
	}
	if c.Persistence.QueueBatchSize == 0 {
		c.Persistence.QueueBatchSize = 100
	}
	if c.Persistence.RetentionHours == 0 {
		c.Persistence.RetentionHours = 24
	}

	if c.GapWriter.MaxQueueSize == 0 {
		c.GapWriter.MaxQueueSize = 1000
	}
	if c.GapWriter.MaxRetryQueueSize == 0 {
		c.GapWriter.MaxRetryQueueSize = 500
	}
	if c.GapWriter.BatchSize == 0 {
		c.GapWriter.BatchSize = 10
	}
	if c.GapWriter.FlushIntervalMs == 0 {
		c.GapWriter.FlushIntervalMs = 1000
	}
	if c.GapWriter.RetryIntervalMs == 0 {
		c.GapWriter.RetryIntervalMs = 5000
	}
	if c.GapWriter.BatchMaxRetries == 0 {
		c.GapWriter.BatchMaxRetries = 3
	}
	if len(c.GapWriter.BatchRetryDelaysMs) == 0 {
		c.GapWriter.BatchRetryDelaysMs = []int64{100, 200, 400}
	}
	if c.GapWriter.FlushTimeoutMs == 0 {
		c.GapWriter.FlushTimeoutMs = 10000
	}

	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}

	if c.Monitoring.ListenAddr == "" {
		c.Monitoring.ListenAddr = ":9090"
	}
}

// GetRedisAddress returns host:port for the completed-candle event sink.
func (c *Config) GetRedisAddress() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
