// Package config defines the nested, yaml-tagged Config tree for the
// ingestion engine: one large struct unmarshalled from a single YAML
// file, with defaults applied afterward by the loader.
package config

import "time"

// Config is the root configuration object.
type Config struct {
	Pool        PoolConfig        `yaml:"pool"`
	IPC         IPCConfig         `yaml:"ipc"`
	Persistence PersistenceConfig `yaml:"persistence"`
	GapWriter   GapWriterConfig   `yaml:"gapWriter"`
	Redis       RedisConfig       `yaml:"redis"`
	Exchanges   []ExchangeConfig  `yaml:"exchanges"`
	Symbols     []SymbolConfig    `yaml:"symbols"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
}

// PoolConfig covers the router/pool-controller tunables.
type PoolConfig struct {
	WorkerCount            int   `yaml:"workerCount"`
	ReadyTimeoutMs         int64 `yaml:"readyTimeoutMs"`
	ShutdownFlushTimeoutMs int64 `yaml:"shutdownFlushTimeoutMs"`
}

// ReadyTimeout returns ReadyTimeoutMs as a time.Duration.
func (p PoolConfig) ReadyTimeout() time.Duration {
	return time.Duration(p.ReadyTimeoutMs) * time.Millisecond
}

// ShutdownFlushTimeout returns ShutdownFlushTimeoutMs as a time.Duration.
func (p PoolConfig) ShutdownFlushTimeout() time.Duration {
	return time.Duration(p.ShutdownFlushTimeoutMs) * time.Millisecond
}

// IPCConfig covers the client connection/request tuning.
type IPCConfig struct {
	SocketPath       string `yaml:"socketPath"`
	MaxConnections   int    `yaml:"maxConnections"`
	ConnectTimeoutMs int64  `yaml:"connectTimeoutMs"`
	RequestTimeoutMs int64  `yaml:"requestTimeoutMs"`
	MaxRetries       int    `yaml:"maxRetries"`
	BaseRetryDelayMs int64  `yaml:"baseRetryDelayMs"`
	MaxRetryDelayMs  int64  `yaml:"maxRetryDelayMs"`
}

// PersistenceConfig covers the embedded store's file path and the queue
// poller's tuning. QueueBatchSize is loaded and defaulted but not passed to
// the poller, which always reads up to 100 rows per poll.
type PersistenceConfig struct {
	DSN                 string `yaml:"dsn"`
	QueuePollIntervalMs int64  `yaml:"queuePollIntervalMs"`
	QueueBatchSize      int    `yaml:"queueBatchSize"`
	RetentionHours      int    `yaml:"retentionHours"`
}

// GapWriterConfig covers the gap writer's queueing and flush tuning.
type GapWriterConfig struct {
	MaxQueueSize       int     `yaml:"maxQueueSize"`
	MaxRetryQueueSize  int     `yaml:"maxRetryQueueSize"`
	BatchSize          int     `yaml:"batchSize"`
	FlushIntervalMs    int64   `yaml:"flushIntervalMs"`
	RetryIntervalMs    int64   `yaml:"retryIntervalMs"`
	BatchMaxRetries    int     `yaml:"batchMaxRetries"`
	BatchRetryDelaysMs []int64 `yaml:"batchRetryDelaysMs"`
	FlushTimeoutMs     int64   `yaml:"flushTimeoutMs"`
}

// RedisConfig configures the completed-candle event sink.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	Database int    `yaml:"database"`
	Enabled  bool   `yaml:"enabled"`
}

// ExchangeConfig identifies one upstream trade source.
type ExchangeConfig struct {
	Name    string `yaml:"name"`
	Enabled bool   `yaml:"enabled"`
	WSURL   string `yaml:"wsUrl"`
}

// SymbolConfig is the operator-mutable per-symbol bin configuration.
type SymbolConfig struct {
	Exchange      string  `yaml:"exchange"`
	Symbol        string  `yaml:"symbol"`
	TickValue     float64 `yaml:"tickValue"`
	BinMultiplier float64 `yaml:"binMultiplier"`
}

// MonitoringConfig covers the Prometheus metrics listener.
type MonitoringConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listenAddr"`
}

// GetSymbolConfig finds a symbol's configuration, or ok=false if absent.
func (c *Config) GetSymbolConfig(exchange, symbol string) (SymbolConfig, bool) {
	for _, sc := range c.Symbols {
		if sc.Exchange == exchange && sc.Symbol == symbol {
			return sc, true
		}
	}
	return SymbolConfig{}, false
}

// GetExchangeConfig finds an exchange's configuration, or ok=false if
// absent.
func (c *Config) GetExchangeConfig(name string) (ExchangeConfig, bool) {
	for _, ec := range c.Exchanges {
		if ec.Name == name {
			return ec, true
		}
	}
	return ExchangeConfig{}, false
}

// Validate checks the invariants the startup config must satisfy,
// returning a ConfigError-kind failure description.
func (c *Config) Validate() error {
	if c.Pool.WorkerCount < 1 {
		return errConfig("pool.workerCount must be >= 1")
	}
	if c.IPC.SocketPath == "" {
		return errConfig("ipc.socketPath must be set")
	}
	for _, sc := range c.Symbols {
		if sc.TickValue <= 0 {
			return errConfig("symbol " + sc.Symbol + ": tickValue must be > 0")
		}
		if sc.BinMultiplier < 1 {
			return errConfig("symbol " + sc.Symbol + ": binMultiplier must be >= 1")
		}
	}
	return nil
}
