// Package connection implements the DriftDB pub/sub client core.
//
// A Manager owns one WebSocket connection to a DriftDB server and
// multiplexes any number of topic subscriptions over it. It:
//   - Drives the connect/disconnect/reconnect state machine
//   - Reconnects with exponential backoff and jitter after unexpected drops
//   - Detects dead connections via server heartbeat timeout
//   - Re-establishes every subscription after a reconnect
//   - Routes inbound datapoints to registered handlers
//   - Re-inserts acknowledged downlink payloads into the live stream
package connection
