// Package gateway implements the connection/session engine for a
// rosbridge-style JSON-over-WebSocket gateway.
//
// The engine:
//   - Owns one socket at a time through a small Client transport
//   - Runs the reconnection state machine with exponential backoff
//   - Replays tracked subscriptions after every successful reconnect
//   - Correlates service and parameter calls with their async responses
//
// Nothing here is fatal to the process. The worst case is a session parked
// in Disconnected awaiting an explicit Connect or ForceReset.
package gateway
