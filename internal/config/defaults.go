package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHeartbeatTimeout  = 2 * time.Minute
	DefaultReconnectBaseWait = 1 * time.Second
	DefaultReconnectMaxWait  = 8 * time.Minute
	DefaultStableResetWindow = 15 * time.Minute
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultBatchSize         = 500
	DefaultFlushInterval     = 1 * time.Second
	DefaultBufferSize        = 10000
	DefaultHealthPort        = 8080
	DefaultHealthPath        = "/health"
)

func (c *WatchConfig) applyDefaults() {
	// Server defaults
	if c.Server.HeartbeatTimeout == 0 {
		c.Server.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.Server.ReconnectBaseWait == 0 {
		c.Server.ReconnectBaseWait = DefaultReconnectBaseWait
	}
	if c.Server.ReconnectMaxWait == 0 {
		c.Server.ReconnectMaxWait = DefaultReconnectMaxWait
	}
	if c.Server.StableResetWindow == 0 {
		c.Server.StableResetWindow = DefaultStableResetWindow
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Writer defaults
	if c.Writer.BatchSize == 0 {
		c.Writer.BatchSize = DefaultBatchSize
	}
	if c.Writer.FlushInterval == 0 {
		c.Writer.FlushInterval = DefaultFlushInterval
	}
	if c.Writer.BufferSize == 0 {
		c.Writer.BufferSize = DefaultBufferSize
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
	if c.Health.Path == "" {
		c.Health.Path = DefaultHealthPath
	}
}
