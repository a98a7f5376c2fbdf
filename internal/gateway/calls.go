package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// callResult carries one correlated response or failure.
type callResult struct {
	values json.RawMessage
	err    error
}

// dispatcher correlates outbound service calls with their asynchronous
// responses. Every pending call resolves exactly once: with the matching
// response, a protocol error, a timeout, or ErrConnectionLost when the
// socket dies underneath it.
type dispatcher struct {
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]chan callResult
}

func newDispatcher(logger *slog.Logger) *dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &dispatcher{
		logger:  logger,
		pending: make(map[string]chan callResult),
	}
}

// call sends one correlated request and waits for its response.
func (d *dispatcher) call(ctx context.Context, c Client, service, srvType string, args any, timeout time.Duration) (json.RawMessage, error) {
	var raw json.RawMessage
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("marshal args: %w", err)
		}
		raw = data
	}

	id := "call_service:" + service + ":" + uuid.NewString()
	op := callServiceOp{
		Op:      "call_service",
		ID:      id,
		Service: service,
		Type:    srvType,
		Args:    raw,
	}

	data, err := json.Marshal(op)
	if err != nil {
		return nil, err
	}

	ch := make(chan callResult, 1)
	d.mu.Lock()
	d.pending[id] = ch
	d.mu.Unlock()

	if err := c.Send(data); err != nil {
		d.remove(id)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		d.remove(id)
		return nil, ctx.Err()
	case <-timer.C:
		d.remove(id)
		return nil, fmt.Errorf("%w: service %s", ErrTimeout, service)
	case res := <-ch:
		return res.values, res.err
	}
}

// resolve routes a service_response to its waiting caller.
func (d *dispatcher) resolve(env envelope) {
	d.mu.Lock()
	ch, ok := d.pending[env.ID]
	if ok {
		delete(d.pending, env.ID)
	}
	d.mu.Unlock()

	if !ok {
		d.logger.Debug("uncorrelated service response", "id", env.ID)
		return
	}

	res := callResult{values: env.Values}
	if env.Result != nil && !*env.Result {
		res.err = fmt.Errorf("%w: service %s failed: %s", ErrProtocol, env.Service, env.Values)
	}
	ch <- res
}

// failAll resolves every pending call with err. Called on socket loss so
// no caller hangs forever.
func (d *dispatcher) failAll(err error) {
	d.mu.Lock()
	for id, ch := range d.pending {
		delete(d.pending, id)
		ch <- callResult{err: err}
	}
	d.mu.Unlock()
}

func (d *dispatcher) remove(id string) {
	d.mu.Lock()
	delete(d.pending, id)
	d.mu.Unlock()
}

func (d *dispatcher) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// CallService sends a correlated request to a named service and returns
// the response values. Fails synchronously with ErrNotConnected while the
// session is down; no pending call is created in that case.
func (s *Session) CallService(ctx context.Context, service, srvType string, args any) (json.RawMessage, error) {
	s.mu.Lock()
	c := s.client
	connected := s.state == StatusConnected
	s.mu.Unlock()

	if !connected || c == nil {
		return nil, ErrNotConnected
	}

	return s.dispatcher.call(ctx, c, service, srvType, args, s.cfg.CallTimeout)
}

// PendingCalls returns the number of in-flight service calls.
func (s *Session) PendingCalls() int {
	return s.dispatcher.len()
}
