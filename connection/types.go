package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrNotSubscribed = errors.New("not subscribed")
	ErrDisconnecting = errors.New("disconnect in progress")
)

// State is the lifecycle state of the managed connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Disconnecting
	Reconnecting
	Errored
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	case Reconnecting:
		return "reconnecting"
	case Errored:
		return "errored"
	}
	return "unknown"
}

// Datapoint is the atomic unit of data exchanged with the server: a unix
// timestamp in floating point seconds paired with an arbitrary JSON value.
type Datapoint struct {
	Timestamp float64 `json:"t"`
	Data      any     `json:"d"`
}

// Handler receives the datapoints delivered for a subscribed topic.
// Its AckResult decides whether a downlink payload is re-inserted into the
// corresponding live stream (see Acknowledge).
type Handler func(topic string, data []Datapoint) AckResult

type ackKind int

const (
	ackPassThrough ackKind = iota
	ackSuppress
	ackAcknowledge
)

// AckResult is returned by a Handler to control downlink acknowledgment.
type AckResult struct {
	kind ackKind
	data []Datapoint
}

// Acknowledge accepts a downlink payload: the manager re-inserts data into
// the topic with the downlink suffix stripped. Acknowledge(nil) re-inserts
// the payload exactly as delivered.
func Acknowledge(data []Datapoint) AckResult {
	return AckResult{kind: ackAcknowledge, data: data}
}

// Suppress rejects a downlink payload; nothing is re-inserted.
func Suppress() AckResult {
	return AckResult{kind: ackSuppress}
}

// PassThrough takes no position on the payload. Equivalent to Suppress for
// routing purposes; use it from handlers on non-downlink topics.
func PassThrough() AckResult {
	return AckResult{kind: ackPassThrough}
}

// Acknowledged reports whether the result accepts the payload.
func (r AckResult) Acknowledged() bool {
	return r.kind == ackAcknowledge
}

// command is the outbound envelope. Transform is a pointer so that
// subscribe/unsubscribe serialize an explicit "transform" field even when
// empty, while insert omits it entirely.
type command struct {
	Cmd       string      `json:"cmd"`
	Arg       string      `json:"arg"`
	Transform *string     `json:"transform,omitempty"`
	Data      []Datapoint `json:"d,omitempty"`
}

// message is the inbound envelope.
type message struct {
	Stream    string      `json:"stream"`
	Transform string      `json:"transform,omitempty"`
	Data      []Datapoint `json:"data"`
}

// Config configures a Manager.
type Config struct {
	// URL is the server API base URL, e.g. "https://drift.example.com/api/v1/".
	// The websocket endpoint is derived from it (see WebsocketURL).
	URL string

	ReconnectBaseWait time.Duration // first reconnect delay, and the floor
	ReconnectMaxWait  time.Duration // reconnect delay ceiling
	BackoffMultiplier float64       // delay growth factor per failed attempt
	StableResetWindow time.Duration // connected longer than this resets the delay

	HeartbeatTimeout time.Duration // max quiet time before the link is declared dead

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  8 * time.Minute,
		BackoffMultiplier: 1.5,
		StableResetWindow: 15 * time.Minute,
		HeartbeatTimeout:  2 * time.Minute,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ReconnectBaseWait == 0 {
		c.ReconnectBaseWait = def.ReconnectBaseWait
	}
	if c.ReconnectMaxWait == 0 {
		c.ReconnectMaxWait = def.ReconnectMaxWait
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = def.BackoffMultiplier
	}
	if c.StableResetWindow == 0 {
		c.StableResetWindow = def.StableResetWindow
	}
	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	return c
}
