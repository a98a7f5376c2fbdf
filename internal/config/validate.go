package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Gateway.Address == "" {
		return errors.New("gateway.address is required")
	}
	if !strings.HasPrefix(c.Gateway.Address, "ws://") && !strings.HasPrefix(c.Gateway.Address, "wss://") {
		return fmt.Errorf("gateway.address must be a ws:// or wss:// URL, got %q", c.Gateway.Address)
	}

	if c.Reconnect.MaxAttempts < 0 {
		return errors.New("reconnect.max_attempts must be >= 0 (0 = unlimited)")
	}
	if c.Reconnect.BaseDelay <= 0 {
		return errors.New("reconnect.base_delay must be > 0")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		return errors.New("reconnect.max_delay must be >= reconnect.base_delay")
	}

	if c.Subscription.ThrottleInterval < 0 {
		return errors.New("subscription.throttle_interval must be >= 0")
	}
	if c.Subscription.MaxBufferSize < 1 {
		return errors.New("subscription.max_buffer_size must be >= 1")
	}

	if c.Output.MaxMemoryMB < 1 {
		return errors.New("output.max_memory_mb must be >= 1")
	}
	if c.Output.MaxLines < 1 {
		return errors.New("output.max_lines must be >= 1")
	}

	if c.Recorder.Enabled {
		if err := c.Recorder.Database.validate("recorder.database"); err != nil {
			return err
		}
		if c.Recorder.BatchSize < 1 {
			return errors.New("recorder.batch_size must be >= 1")
		}
	}

	for i, topic := range c.Topics {
		if topic.Name == "" {
			return fmt.Errorf("topics[%d].name is required", i)
		}
		if topic.Type == "" {
			return fmt.Errorf("topics[%d].type is required", i)
		}
		if topic.ThrottleInterval < 0 {
			return fmt.Errorf("topics[%d].throttle_interval must be >= 0", i)
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	return nil
}
