package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPingInterval     = 15 * time.Second
	DefaultPingTimeout      = 60 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultCallTimeout      = 10 * time.Second
	DefaultBufferSize       = 1000
	DefaultBaseDelay        = 1 * time.Second
	DefaultMaxDelay         = 30 * time.Second
	DefaultMaxBufferSize    = 200
	DefaultQueueSize        = 10
	DefaultMaxMemoryMB      = 64
	DefaultMaxLines         = 5000
	DefaultSweepInterval    = 30 * time.Second
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultDBMaxConns       = 10
	DefaultDBMinConns       = 2
	DefaultBatchSize        = 500
	DefaultFlushInterval    = 1 * time.Second
)

func (c *Config) applyDefaults() {
	// Gateway defaults
	if c.Gateway.HandshakeTimeout == 0 {
		c.Gateway.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Gateway.PingInterval == 0 {
		c.Gateway.PingInterval = DefaultPingInterval
	}
	if c.Gateway.PingTimeout == 0 {
		c.Gateway.PingTimeout = DefaultPingTimeout
	}
	if c.Gateway.WriteTimeout == 0 {
		c.Gateway.WriteTimeout = DefaultWriteTimeout
	}
	if c.Gateway.CallTimeout == 0 {
		c.Gateway.CallTimeout = DefaultCallTimeout
	}
	if c.Gateway.BufferSize == 0 {
		c.Gateway.BufferSize = DefaultBufferSize
	}

	// Reconnect defaults
	if c.Reconnect.BaseDelay == 0 {
		c.Reconnect.BaseDelay = DefaultBaseDelay
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = DefaultMaxDelay
	}

	// Subscription defaults
	if c.Subscription.MaxBufferSize == 0 {
		c.Subscription.MaxBufferSize = DefaultMaxBufferSize
	}
	if c.Subscription.QueueSize == 0 {
		c.Subscription.QueueSize = DefaultQueueSize
	}

	// Output defaults
	if c.Output.MaxMemoryMB == 0 {
		c.Output.MaxMemoryMB = DefaultMaxMemoryMB
	}
	if c.Output.MaxLines == 0 {
		c.Output.MaxLines = DefaultMaxLines
	}
	if c.Output.SweepInterval == 0 {
		c.Output.SweepInterval = DefaultSweepInterval
	}

	// Recorder defaults
	if c.Recorder.BatchSize == 0 {
		c.Recorder.BatchSize = DefaultBatchSize
	}
	if c.Recorder.FlushInterval == 0 {
		c.Recorder.FlushInterval = DefaultFlushInterval
	}
	applyDBDefaults(&c.Recorder.Database)
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultDBMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultDBMinConns
	}
}
