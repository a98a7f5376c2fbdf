package gateway

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors surfaced by the session engine. All are returned, never panicked.
var (
	ErrNotConnected       = errors.New("not connected")
	ErrAlreadyConnecting  = errors.New("connect already in progress")
	ErrAlreadyClosed      = errors.New("already closed")
	ErrConnectionLost     = errors.New("connection lost")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrProtocol           = errors.New("protocol error")
	ErrTimeout            = errors.New("operation timeout")
	ErrStaleConnection    = errors.New("connection stale (no ping)")

	// ErrParameterListUnavailable signals that parameter discovery failed
	// and the caller should fall back to manually naming parameters.
	ErrParameterListUnavailable = errors.New("parameter listing unavailable")
)

// Status is the externally visible session state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
)

// TimestampedMessage wraps raw message data with its receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Decoded JSON bytes (binary CBOR frames are converted)
	ReceivedAt time.Time // Local timestamp when the read returned
}

// envelope is the common shape of every gateway operation. Only the fields
// relevant to the op in question are populated.
type envelope struct {
	Op      string          `json:"op"`
	ID      string          `json:"id,omitempty"`
	Topic   string          `json:"topic,omitempty"`
	Service string          `json:"service,omitempty"`
	Msg     json.RawMessage `json:"msg,omitempty"`
	Values  json.RawMessage `json:"values,omitempty"`
	Result  *bool           `json:"result,omitempty"`
	Level   string          `json:"level,omitempty"`
}

// subscribeOp is the outbound subscribe operation. Throttle and queue hints
// are honored best-effort by the gateway.
type subscribeOp struct {
	Op           string `json:"op"`
	ID           string `json:"id,omitempty"`
	Topic        string `json:"topic"`
	Type         string `json:"type,omitempty"`
	ThrottleRate int    `json:"throttle_rate,omitempty"`
	QueueSize    int    `json:"queue_size,omitempty"`
}

// unsubscribeOp is the outbound unsubscribe operation.
type unsubscribeOp struct {
	Op    string `json:"op"`
	ID    string `json:"id,omitempty"`
	Topic string `json:"topic"`
}

// callServiceOp is the outbound service call operation.
type callServiceOp struct {
	Op      string          `json:"op"`
	ID      string          `json:"id"`
	Service string          `json:"service"`
	Type    string          `json:"type,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// ClientConfig configures a single WebSocket transport.
type ClientConfig struct {
	URL              string        // Gateway URL (e.g., ws://robot:9090)
	HandshakeTimeout time.Duration // Dial handshake deadline
	PingInterval     time.Duration // Keepalive ping cadence
	PingTimeout      time.Duration // Max silence before the socket is stale
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Inbound message channel capacity
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     15 * time.Second,
		PingTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
	}
}

// SessionConfig configures the session engine.
type SessionConfig struct {
	Client ClientConfig

	// MaxReconnectAttempts caps automatic reconnection. Zero means
	// unlimited.
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration

	// CallTimeout bounds correlated service calls. There is no other
	// per-call timeout.
	CallTimeout time.Duration

	// SweepInterval is the cadence of the buffer memory/line sweep.
	SweepInterval time.Duration

	// Subscription defaults applied to new subscriptions.
	ThrottleInterval time.Duration
	MaxBufferSize    int
	QueueSize        int

	// Output ceilings enforced by the sweep.
	MaxMemoryBytes int64
	MaxLines       int
}

// DefaultSessionConfig returns sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Client:             DefaultClientConfig(),
		ReconnectBaseDelay: 1 * time.Second,
		ReconnectMaxDelay:  30 * time.Second,
		CallTimeout:        10 * time.Second,
		SweepInterval:      30 * time.Second,
		MaxBufferSize:      200,
		QueueSize:          10,
		MaxMemoryBytes:     64 << 20,
		MaxLines:           5000,
	}
}
