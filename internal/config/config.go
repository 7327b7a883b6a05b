package config

import "time"

// WatchConfig is the root configuration for a driftwatch instance.
type WatchConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Server   ServerConfig   `yaml:"server"`
	Database DBConfig       `yaml:"database"`
	Writer   WriterConfig   `yaml:"writer"`
	Topics   []TopicConfig  `yaml:"topics"`
	Health   HealthConfig   `yaml:"health"`
}

// InstanceConfig identifies this recorder.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ServerConfig holds DriftDB server settings.
type ServerConfig struct {
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	APIKey   string `yaml:"api_key"`

	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`
	ReconnectBaseWait time.Duration `yaml:"reconnect_base_wait"`
	ReconnectMaxWait  time.Duration `yaml:"reconnect_max_wait"`
	StableResetWindow time.Duration `yaml:"stable_reset_window"`
}

// TopicConfig names one subscription to record.
type TopicConfig struct {
	Path      string `yaml:"path"`
	Transform string `yaml:"transform"`

	// AutoAck acknowledges downlink payloads after they are recorded,
	// re-inserting them into the live stream.
	AutoAck bool `yaml:"auto_ack"`
}

// DBConfig holds the PostgreSQL connection for recorded datapoints.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WriterConfig holds batch writer settings.
type WriterConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
