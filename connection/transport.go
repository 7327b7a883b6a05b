package connection

import (
	"context"
	"net/http"
)

// Transport is an abstract duplex message channel to the server. The manager
// never depends on a concrete implementation beyond this interface and the
// events in Hooks, so tests substitute an in-memory transport.
type Transport interface {
	// Open establishes the channel, blocking until it is up or the attempt
	// fails. The header carries connect-time authentication.
	Open(ctx context.Context, header http.Header) error

	// Send writes one text frame. Callers serialize access.
	Send(frame []byte) error

	// Close tears the channel down. Safe to call more than once.
	Close() error
}

// Hooks are the event callbacks a Transport fires on its read side.
// OnClose fires when the channel drops for any reason other than a local
// Close; OnError reports the fault that caused it, when known.
type Hooks struct {
	OnMessage   func(frame []byte)
	OnClose     func()
	OnError     func(err error)
	OnHeartbeat func()
}

// TransportFactory builds a fresh Transport for a single connect attempt.
// A transport is never reused across attempts.
type TransportFactory func(url string, hooks Hooks) Transport
