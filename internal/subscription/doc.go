// Package subscription implements the topic subscription registry and the
// per-subscription bounded message buffers.
//
// The registry:
//   - Tracks one subscription per topic (callback replaceable in place)
//   - Issues wire-level subscribe/unsubscribe through a narrow Wire interface
//   - Replays every tracked subscription after a reconnect
//
// Each subscription owns a Buffer that throttles and bounds its message
// history. Eviction is always a silent drop of the oldest data; delivery
// never applies backpressure to the gateway.
package subscription
