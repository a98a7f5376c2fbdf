package subscription

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ErrNotSubscribed is returned when an operation references an unknown topic.
var ErrNotSubscribed = errors.New("not subscribed")

// Wire is the outbound surface the registry needs from the session
// transport. Implementations send the actual subscribe/unsubscribe
// operations to the gateway.
type Wire interface {
	SendSubscribe(topic, msgType string, throttle time.Duration, queueSize int) error
	SendUnsubscribe(topic string) error
}

// Callback delivers an accepted message for a topic. Callbacks run on the
// session's read loop and must not block.
type Callback func(msg Message)

// Handle identifies an active subscription.
type Handle struct {
	Topic string
	Type  string
}

// Defaults are the buffer settings applied to new subscriptions.
type Defaults struct {
	ThrottleInterval time.Duration
	MaxEntries       int
	MaxBytes         int64
	MaxLines         int
	QueueSize        int
}

// Options override registry defaults for one subscription.
type Options struct {
	// ThrottleInterval replaces the default throttle when positive.
	ThrottleInterval time.Duration
}

type entry struct {
	topic    string
	msgType  string
	throttle time.Duration
	buf      *Buffer

	mu        sync.Mutex
	cb        Callback
	delivered int64
}

// Registry tracks active topic subscriptions and replays them after
// reconnection. One subscription is active per topic at a time.
type Registry struct {
	defaults Defaults
	logger   *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry(defaults Defaults, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		defaults: defaults,
		logger:   logger,
		entries:  make(map[string]*entry),
	}
}

// Subscribe registers a callback for a topic and issues the wire-level
// subscribe. Re-subscribing to an already tracked topic replaces the
// callback in place without a duplicate wire operation; delivery statistics
// and the buffer are preserved.
func (r *Registry) Subscribe(w Wire, topic, msgType string, cb Callback) (*Handle, error) {
	return r.SubscribeWith(w, topic, msgType, Options{}, cb)
}

// SubscribeWith is Subscribe with per-subscription overrides. The effective
// throttle is stored on the entry so reconnect replay preserves it.
func (r *Registry) SubscribeWith(w Wire, topic, msgType string, opts Options, cb Callback) (*Handle, error) {
	throttle := r.defaults.ThrottleInterval
	if opts.ThrottleInterval > 0 {
		throttle = opts.ThrottleInterval
	}

	r.mu.Lock()
	if e, ok := r.entries[topic]; ok {
		r.mu.Unlock()
		e.mu.Lock()
		e.cb = cb
		e.mu.Unlock()
		r.logger.Debug("replaced subscription callback", "topic", topic)
		return &Handle{Topic: topic, Type: e.msgType}, nil
	}

	e := &entry{
		topic:    topic,
		msgType:  msgType,
		throttle: throttle,
		cb:       cb,
		buf: NewBuffer(BufferConfig{
			ThrottleInterval: throttle,
			MaxEntries:       r.defaults.MaxEntries,
			MaxBytes:         r.defaults.MaxBytes,
			MaxLines:         r.defaults.MaxLines,
			Latched:          IsLatched(topic, msgType),
		}),
	}
	r.entries[topic] = e
	r.mu.Unlock()

	if err := w.SendSubscribe(topic, msgType, throttle, r.defaults.QueueSize); err != nil {
		r.mu.Lock()
		delete(r.entries, topic)
		r.mu.Unlock()
		return nil, err
	}

	r.logger.Debug("subscribed", "topic", topic, "type", msgType)
	return &Handle{Topic: topic, Type: msgType}, nil
}

// Unsubscribe removes a topic and issues the wire-level unsubscribe. It
// reports false when the topic is not tracked. Safe to call while a
// delivery for the topic is mid-flight.
func (r *Registry) Unsubscribe(w Wire, topic string) bool {
	r.mu.Lock()
	e, ok := r.entries[topic]
	if ok {
		delete(r.entries, topic)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	if err := w.SendUnsubscribe(topic); err != nil {
		// Entry is gone either way; the gateway binding dies with the socket.
		r.logger.Warn("wire unsubscribe failed", "topic", topic, "error", err)
	}

	e.buf.Clear()
	r.logger.Debug("unsubscribed", "topic", topic)
	return true
}

// ResubscribeAll re-issues the wire-level subscribe for every tracked topic
// against a new socket. Invoked by the session exactly once per successful
// reconnection, before any message for the new socket generation is
// dispatched. Callback identity is preserved.
func (r *Registry) ResubscribeAll(w Wire) {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	for _, e := range entries {
		if err := w.SendSubscribe(e.topic, e.msgType, e.throttle, r.defaults.QueueSize); err != nil {
			r.logger.Warn("resubscribe failed", "topic", e.topic, "error", err)
		}
	}

	r.logger.Info("resubscribed topics", "count", len(entries))
}

// Dispatch routes an inbound publish through the topic's buffer and, when
// accepted, into its callback. Unknown topics and throttled messages are
// dropped silently.
func (r *Registry) Dispatch(topic string, receivedAt time.Time, payload json.RawMessage) {
	r.mu.Lock()
	e, ok := r.entries[topic]
	r.mu.Unlock()

	if !ok {
		return
	}

	msg := Message{ReceivedAt: receivedAt, Payload: payload}
	if !e.buf.Offer(receivedAt, payload) {
		return
	}

	e.mu.Lock()
	cb := e.cb
	e.delivered++
	e.mu.Unlock()

	if cb != nil {
		cb(msg)
	}
}

// SweepAll applies the memory and line ceilings across every buffer.
func (r *Registry) SweepAll(now time.Time) {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	for _, e := range entries {
		e.buf.Sweep(now)
	}
}

// Topics returns the tracked topic names in unspecified order.
func (r *Registry) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	topics := make([]string, 0, len(r.entries))
	for topic := range r.entries {
		topics = append(topics, topic)
	}
	return topics
}

// Len returns the number of tracked subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Buffer returns the buffer for a topic, or nil when not tracked.
func (r *Registry) Buffer(topic string) *Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[topic]; ok {
		return e.buf
	}
	return nil
}

// Delivered returns how many messages have reached the topic's callback.
func (r *Registry) Delivered(topic string) (int64, error) {
	r.mu.Lock()
	e, ok := r.entries[topic]
	r.mu.Unlock()
	if !ok {
		return 0, ErrNotSubscribed
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.delivered, nil
}

// Clear drops every tracked subscription without wire operations. Used on
// session teardown, where the socket (and its bindings) is already gone.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for topic, e := range r.entries {
		e.buf.Clear()
		delete(r.entries, topic)
	}
}

// IsLatched reports whether a topic publishes at most once, by name or
// message type convention. Latched topics keep their single message out of
// the line-count clear.
func IsLatched(topic, msgType string) bool {
	switch {
	case strings.HasSuffix(topic, "/map"),
		strings.HasSuffix(topic, "/robot_description"),
		strings.HasSuffix(topic, "/tf_static"):
		return true
	}
	switch {
	case strings.HasSuffix(msgType, "/OccupancyGrid"),
		strings.HasSuffix(msgType, "/MapMetaData"):
		return true
	}
	return false
}
