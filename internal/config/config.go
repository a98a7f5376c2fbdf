// Package config defines the YAML configuration consumed by the roslink
// CLI and library defaults.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Gateway      GatewayConfig      `yaml:"gateway"`
	Reconnect    ReconnectConfig    `yaml:"reconnect"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	Output       OutputConfig       `yaml:"output"`
	Recorder     RecorderConfig     `yaml:"recorder"`
	Topics       []TopicConfig      `yaml:"topics"`
}

// GatewayConfig holds connection settings for the gateway endpoint.
type GatewayConfig struct {
	Address          string        `yaml:"address"` // e.g. ws://robot:9090
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	CallTimeout      time.Duration `yaml:"call_timeout"`
	BufferSize       int           `yaml:"buffer_size"`
}

// ReconnectConfig tunes the automatic reconnection cycle.
type ReconnectConfig struct {
	// MaxAttempts caps automatic reconnection; zero means unlimited.
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// SubscriptionConfig sets per-subscription defaults.
type SubscriptionConfig struct {
	ThrottleInterval time.Duration `yaml:"throttle_interval"`
	MaxBufferSize    int           `yaml:"max_buffer_size"`
	QueueSize        int           `yaml:"queue_size"`
}

// OutputConfig bounds buffered message history.
type OutputConfig struct {
	MaxMemoryMB   int           `yaml:"max_memory_mb"`
	MaxLines      int           `yaml:"max_lines"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// RecorderConfig configures the optional Postgres message recorder.
type RecorderConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Database      DBConfig      `yaml:"database"`
}

// DBConfig holds a single database connection.
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

// TopicConfig names one topic the CLI subscribes to at startup.
type TopicConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	// ThrottleInterval overrides the subscription default when positive.
	ThrottleInterval time.Duration `yaml:"throttle_interval"`
}
