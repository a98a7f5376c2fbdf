package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/roslink/roslink/internal/subscription"
)

// Session is the single logical connection to a gateway. It owns at most
// one socket at a time and drives the reconnection state machine:
//
//	Disconnected → Connecting → Connected → Reconnecting → Disconnected
//
// Terminal only on explicit stop or Close.
type Session struct {
	cfg    SessionConfig
	logger *slog.Logger

	registry   *subscription.Registry
	dispatcher *dispatcher

	mu              sync.Mutex
	state           Status
	client          Client
	address         string
	shouldReconnect bool
	connecting      bool
	reconnecting    bool
	attempt         int
	retryTimer      *time.Timer
	generation      int
	lastErr         error
	closed          bool

	statusMu     sync.Mutex
	statusSubs   []chan Status
	statusClosed bool

	done chan struct{}
}

// NewSession creates a session engine. The session is Disconnected until
// Connect is called.
func NewSession(cfg SessionConfig, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = 1 * time.Second
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = 30 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}

	s := &Session{
		cfg:    cfg,
		logger: logger,
		state:  StatusDisconnected,
		registry: subscription.NewRegistry(subscription.Defaults{
			ThrottleInterval: cfg.ThrottleInterval,
			MaxEntries:       cfg.MaxBufferSize,
			MaxBytes:         cfg.MaxMemoryBytes,
			MaxLines:         cfg.MaxLines,
			QueueSize:        cfg.QueueSize,
		}, logger.With("component", "registry")),
		dispatcher: newDispatcher(logger.With("component", "calls")),
		done:       make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		go s.sweepLoop()
	}

	return s
}

// Connect establishes the connection to address. It fails with
// ErrAlreadyConnecting when a connect attempt is already in flight. A
// pending reconnect retry is cancelled in favor of the explicit attempt.
// On dial failure the automatic reconnection cycle starts (unless stopped),
// and the dial error is still returned.
func (s *Session) Connect(ctx context.Context, address string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrAlreadyClosed
	}
	if s.connecting {
		s.mu.Unlock()
		return ErrAlreadyConnecting
	}
	if s.state == StatusConnected {
		s.mu.Unlock()
		return nil
	}
	s.cancelRetryLocked()
	s.connecting = true
	s.shouldReconnect = true
	s.address = address
	s.lastErr = nil
	s.setStateLocked(StatusConnecting)
	s.mu.Unlock()

	err := s.dial(ctx)

	s.mu.Lock()
	s.connecting = false
	if err != nil {
		if s.shouldReconnect && !s.closed {
			s.scheduleRetryLocked()
		} else {
			s.setStateLocked(StatusDisconnected)
		}
	}
	s.mu.Unlock()

	return err
}

// Disconnect stops reconnection, fails in-flight calls with
// ErrConnectionLost, releases all subscriptions and closes the socket.
// Idempotent.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.shouldReconnect = false
	s.cancelRetryLocked()
	c := s.client
	s.client = nil
	s.generation++ // invalidates in-flight pumps
	s.setStateLocked(StatusDisconnected)
	s.mu.Unlock()

	if c != nil {
		c.Close()
	}
	s.dispatcher.failAll(ErrConnectionLost)
	s.registry.Clear()
}

// StopReconnection is Disconnect under its operator-facing name: it halts
// the retry cycle permanently until an explicit Connect or ForceReset.
func (s *Session) StopReconnection() {
	s.Disconnect()
}

// ForceReset disconnects and immediately restarts the full connect
// sequence with backoff counters cleared.
func (s *Session) ForceReset(ctx context.Context) error {
	s.mu.Lock()
	address := s.address
	s.mu.Unlock()

	if address == "" {
		return ErrNotConnected
	}

	s.Disconnect()

	s.mu.Lock()
	s.attempt = 0
	s.lastErr = nil
	s.mu.Unlock()

	return s.Connect(ctx, address)
}

// Close is a full teardown: Disconnect plus stopping the sweep loop and
// closing every status stream.
func (s *Session) Close() {
	s.Disconnect()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)

	s.statusMu.Lock()
	s.statusClosed = true
	for _, ch := range s.statusSubs {
		close(ch)
	}
	s.statusSubs = nil
	s.statusMu.Unlock()
}

// IsConnected reports whether the session is usable right now.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	c := s.client
	connected := s.state == StatusConnected
	s.mu.Unlock()
	return connected && c != nil && c.IsConnected()
}

// State returns the current session state.
func (s *Session) State() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the sticky failure surfaced when automatic reconnection was
// abandoned (ErrReconnectExhausted), or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// StatusChanges returns a stream of status transitions. The channel is
// buffered; slow consumers miss intermediate transitions rather than
// blocking the engine. Closed by Close.
func (s *Session) StatusChanges() <-chan Status {
	ch := make(chan Status, 16)
	s.statusMu.Lock()
	if s.statusClosed {
		close(ch)
	} else {
		s.statusSubs = append(s.statusSubs, ch)
	}
	s.statusMu.Unlock()
	return ch
}

// Subscribe registers a topic subscription. Fails with ErrNotConnected
// while the session is down.
func (s *Session) Subscribe(topic, msgType string, cb subscription.Callback) (*subscription.Handle, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}
	return s.registry.Subscribe(s, topic, msgType, cb)
}

// SubscribeWith is Subscribe with per-subscription overrides.
func (s *Session) SubscribeWith(topic, msgType string, opts subscription.Options, cb subscription.Callback) (*subscription.Handle, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}
	return s.registry.SubscribeWith(s, topic, msgType, opts, cb)
}

// Unsubscribe removes a topic subscription, reporting false when the topic
// is not tracked.
func (s *Session) Unsubscribe(topic string) bool {
	return s.registry.Unsubscribe(s, topic)
}

// Registry exposes the subscription table for consumers that inspect
// buffers or topics.
func (s *Session) Registry() *subscription.Registry {
	return s.registry
}

// SendSubscribe implements subscription.Wire.
func (s *Session) SendSubscribe(topic, msgType string, throttle time.Duration, queueSize int) error {
	return s.send(subscribeOp{
		Op:           "subscribe",
		ID:           "subscribe:" + topic,
		Topic:        topic,
		Type:         msgType,
		ThrottleRate: int(throttle / time.Millisecond),
		QueueSize:    queueSize,
	})
}

// SendUnsubscribe implements subscription.Wire.
func (s *Session) SendUnsubscribe(topic string) error {
	return s.send(unsubscribeOp{
		Op:    "unsubscribe",
		ID:    "unsubscribe:" + topic,
		Topic: topic,
	})
}

// send marshals one operation onto the current socket.
func (s *Session) send(v any) error {
	s.mu.Lock()
	c := s.client
	s.mu.Unlock()
	if c == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(data)
}

// dial creates a fresh transport for the stored address and, on success,
// installs it as the new socket generation. Resubscription completes
// before the read pump starts, so replay strictly precedes delivery of any
// message for the new generation.
func (s *Session) dial(ctx context.Context) error {
	ccfg := s.cfg.Client
	s.mu.Lock()
	ccfg.URL = s.address
	s.mu.Unlock()

	c := NewClient(ccfg, s.logger.With("component", "transport"))
	if err := c.Connect(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed || !s.shouldReconnect {
		// Disconnect raced the dial; drop the socket.
		s.mu.Unlock()
		c.Close()
		return ErrConnectionLost
	}
	s.generation++
	gen := s.generation
	old := s.client
	s.client = c
	s.attempt = 0
	s.lastErr = nil
	s.setStateLocked(StatusConnected)
	s.mu.Unlock()

	// A displaced prior socket dies with its generation.
	if old != nil {
		old.Close()
	}

	s.registry.ResubscribeAll(s)
	go s.pump(c, gen)

	return nil
}

// pump routes inbound traffic for one socket generation.
func (s *Session) pump(c Client, gen int) {
	for {
		select {
		case <-s.done:
			return

		case err := <-c.Errors():
			s.handleSocketLoss(gen, err)
			return

		case msg, ok := <-c.Messages():
			if !ok {
				return
			}
			s.route(msg)
		}
	}
}

// route dispatches one inbound operation.
func (s *Session) route(msg TimestampedMessage) {
	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		s.logger.Debug("unparseable gateway message", "error", err)
		return
	}

	switch env.Op {
	case "publish":
		s.registry.Dispatch(env.Topic, msg.ReceivedAt, env.Msg)

	case "service_response":
		s.dispatcher.resolve(env)

	case "status":
		s.logger.Info("gateway status", "level", env.Level, "msg", string(env.Msg))

	default:
		s.logger.Debug("unhandled gateway op", "op", env.Op)
	}
}

// handleSocketLoss reacts to an unexpected socket failure for a specific
// generation. Stale generations are ignored.
func (s *Session) handleSocketLoss(gen int, err error) {
	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		return
	}
	c := s.client
	s.client = nil
	s.mu.Unlock()

	if c != nil {
		c.Close()
	}
	s.dispatcher.failAll(ErrConnectionLost)

	s.mu.Lock()
	if s.shouldReconnect {
		s.logger.Warn("connection lost", "error", err)
		s.scheduleRetryLocked()
	} else {
		s.setStateLocked(StatusDisconnected)
	}
	s.mu.Unlock()
}

// scheduleRetryLocked arms the single-shot retry timer. The reconnecting
// flag makes concurrent retries impossible.
func (s *Session) scheduleRetryLocked() {
	if s.reconnecting {
		return
	}
	if s.cfg.MaxReconnectAttempts > 0 && s.attempt >= s.cfg.MaxReconnectAttempts {
		s.lastErr = ErrReconnectExhausted
		s.logger.Error("reconnect attempts exhausted", "attempts", s.attempt)
		s.setStateLocked(StatusDisconnected)
		return
	}

	s.attempt++
	delay := backoffDelay(s.cfg.ReconnectBaseDelay, s.cfg.ReconnectMaxDelay, s.attempt)
	s.reconnecting = true
	s.setStateLocked(StatusReconnecting)
	s.logger.Info("scheduling reconnect", "attempt", s.attempt, "delay", delay)
	s.retryTimer = time.AfterFunc(delay, s.retry)
}

// retry is the timer callback for one reconnection attempt. It holds the
// connecting flag for the duration of the dial, so a retry and an explicit
// Connect can never run concurrent dials.
func (s *Session) retry() {
	s.mu.Lock()
	s.reconnecting = false
	s.retryTimer = nil
	if s.closed || !s.shouldReconnect {
		s.mu.Unlock()
		return
	}
	if s.connecting || s.state == StatusConnected {
		// An explicit Connect owns the attempt; it schedules its own
		// retry on failure.
		s.mu.Unlock()
		return
	}
	s.connecting = true
	address := s.address
	s.mu.Unlock()

	s.logger.Info("attempting reconnection", "address", address)

	err := s.dial(context.Background())

	s.mu.Lock()
	s.connecting = false
	if err != nil {
		if s.shouldReconnect && !s.closed {
			s.scheduleRetryLocked()
		} else {
			s.setStateLocked(StatusDisconnected)
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("reconnection failed", "error", err)
		return
	}

	s.logger.Info("reconnected", "address", address)
}

func (s *Session) cancelRetryLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.reconnecting = false
}

// setStateLocked transitions the state machine and notifies observers on
// every change.
func (s *Session) setStateLocked(st Status) {
	if s.state == st {
		return
	}
	s.state = st

	s.statusMu.Lock()
	for _, ch := range s.statusSubs {
		select {
		case ch <- st:
		default:
		}
	}
	s.statusMu.Unlock()
}

// sweepLoop periodically applies the buffer memory and line ceilings.
func (s *Session) sweepLoop() {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.registry.SweepAll(time.Now())
		}
	}
}

// backoffDelay computes min(base × 2^(attempt−1), max) with overflow
// protection.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 31 {
		return max
	}
	delay := base << (attempt - 1)
	if delay <= 0 || delay > max {
		return max
	}
	return delay
}
