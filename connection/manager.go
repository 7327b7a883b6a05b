package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const downlinkSuffix = "/downlink"

// downlinkDepth is the number of path separators in a device-level downlink
// topic (user/device/stream/downlink). Topics nested deeper are not treated
// as downlinks even when they end with the suffix.
const downlinkDepth = 3

// Manager multiplexes topic subscriptions over one auto-reconnecting
// connection to a DriftDB server.
//
// A Manager is created once per client session and lives until Close. Its
// subscription map survives transport churn: after an unexpected drop the
// manager reconnects with backoff and replays a subscribe command for every
// retained entry. All public methods are safe for concurrent use.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	newTransport TransportFactory
	wsURL        string

	credMu sync.Mutex
	creds  Credentials

	// stateMu guards state and disconnectDone. Critical sections are
	// check-and-set only and never span I/O.
	stateMu        sync.Mutex
	state          State
	disconnectDone chan struct{} // non-nil while Disconnecting; closed on completion

	// attemptMu serializes connect attempts: a caller that finds one in
	// flight blocks here and observes its outcome instead of racing a
	// second dial.
	attemptMu sync.Mutex

	subMu sync.Mutex
	subs  map[string]Handler // "topic:transform" → handler

	// sendMu serializes transport writes and guards the transport handle.
	sendMu    sync.Mutex
	transport Transport

	bo *backoff

	timerMu        sync.Mutex
	heartbeatTimer *time.Timer
	reconnectTimer *time.Timer
	lastHeartbeat  time.Time
}

// NewManager creates a manager for the server at cfg.URL. Zero config fields
// take the DefaultConfig values. A nil logger uses slog.Default.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	m := &Manager{
		cfg:    cfg,
		logger: logger,
		wsURL:  WebsocketURL(cfg.URL),
		subs:   make(map[string]Handler),
		bo:     newBackoff(cfg),
	}
	m.newTransport = func(url string, hooks Hooks) Transport {
		return newWebsocketTransport(url, hooks, cfg)
	}
	return m
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.state
}

// Stats is a point-in-time snapshot of the manager.
type Stats struct {
	State         State
	Subscriptions int
}

// Stats returns current statistics.
func (m *Manager) Stats() Stats {
	m.subMu.Lock()
	subs := len(m.subs)
	m.subMu.Unlock()

	return Stats{
		State:         m.State(),
		Subscriptions: subs,
	}
}

// SetCredentials replaces the stored credentials. There is no immediate I/O:
// the new credentials apply to the next connect or reconnect attempt, so an
// API key can be rotated without disturbing the open connection.
func (m *Manager) SetCredentials(creds Credentials) {
	m.credMu.Lock()
	m.creds = creds
	m.credMu.Unlock()
}

// Connect ensures a live connection, dialing if one does not exist. The
// context bounds this caller's wait only; it does not tear down an attempt
// that other callers are converged on.
func (m *Manager) Connect(ctx context.Context) error {
	// A disconnect in progress finishes quickly; wait for its completion
	// signal a bounded number of times rather than failing immediately.
	const maxDisconnectWaits = 5

	for waits := 0; ; waits++ {
		m.attemptMu.Lock()

		switch m.State() {
		case Connected:
			m.attemptMu.Unlock()
			return nil

		case Disconnecting:
			done := m.disconnectSignal()
			m.attemptMu.Unlock()
			if waits >= maxDisconnectWaits {
				return ErrDisconnecting
			}
			select {
			case <-done:
			case <-time.After(100 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		err := m.dial(ctx)
		m.attemptMu.Unlock()
		return err
	}
}

func (m *Manager) disconnectSignal() <-chan struct{} {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if m.disconnectDone != nil {
		return m.disconnectDone
	}
	// Disconnect already completed; return a signal that fires at once.
	done := make(chan struct{})
	close(done)
	return done
}

// dial runs a single connect attempt. Caller holds attemptMu.
func (m *Manager) dial(ctx context.Context) error {
	m.setState(Connecting)

	m.credMu.Lock()
	header := m.creds.header()
	m.credMu.Unlock()

	t := m.newTransport(m.wsURL, Hooks{
		OnMessage:   m.handleMessage,
		OnClose:     m.handleClose,
		OnError:     m.handleError,
		OnHeartbeat: m.handleHeartbeat,
	})

	if err := t.Open(ctx, header); err != nil {
		m.setState(Errored)
		m.logger.Warn("connect failed", "url", m.wsURL, "error", err)
		return fmt.Errorf("open transport: %w", err)
	}

	m.sendMu.Lock()
	m.transport = t
	m.sendMu.Unlock()

	m.bo.markConnected(time.Now())
	m.setState(Connected)
	m.armHeartbeat()

	m.logger.Info("connected", "url", m.wsURL)
	return nil
}

// Disconnect tears down the connection and forgets every subscription. An
// explicit disconnect never triggers the reconnection loop. Calling it while
// already disconnected is a no-op.
func (m *Manager) Disconnect() {
	m.stateMu.Lock()
	switch m.state {
	case Connected:
		m.state = Disconnecting
		m.disconnectDone = make(chan struct{})
		m.stateMu.Unlock()

	case Reconnecting, Errored:
		// No live transport; just stop the retry machinery.
		m.state = Disconnected
		m.stateMu.Unlock()
		m.cancelTimers()
		m.clearSubscriptions()
		m.logger.Info("disconnected")
		return

	default:
		m.stateMu.Unlock()
		return
	}

	m.cancelTimers()
	m.clearSubscriptions()

	m.sendMu.Lock()
	t := m.transport
	m.transport = nil
	m.sendMu.Unlock()

	if t != nil {
		t.Close()
	}

	// A locally closed transport does not fire OnClose, so complete the
	// transition here. handleClose tolerates the occasional double call.
	m.handleClose()

	m.logger.Info("disconnected")
}

// Close shuts the manager down, guaranteeing no timers outlive it.
// It implements io.Closer.
func (m *Manager) Close() error {
	m.Disconnect()
	m.cancelTimers()
	return nil
}

// Subscribe registers handler for (topic, transform) and tells the server to
// start delivering, connecting first when necessary. Registering a pair that
// is already registered replaces its handler; callers rely on this to swap
// handlers in place.
func (m *Manager) Subscribe(ctx context.Context, topic, transform string, handler Handler) error {
	if m.State() != Connected {
		if err := m.Connect(ctx); err != nil {
			return err
		}
	}

	m.logger.Debug("subscribing", "topic", topic, "transform", transform)

	if err := m.send(command{Cmd: "subscribe", Arg: topic, Transform: &transform}); err != nil {
		return err
	}

	m.subMu.Lock()
	m.subs[subscriptionKey(topic, transform)] = handler
	m.subMu.Unlock()

	return nil
}

// Unsubscribe removes the (topic, transform) registration. Unsubscribing a
// pair that was never subscribed returns ErrNotSubscribed; this is a benign
// race during teardown, not a fault. Removing the last subscription tears
// the connection down rather than keeping it idle.
func (m *Manager) Unsubscribe(topic, transform string) error {
	if m.State() != Connected {
		return ErrNotConnected
	}

	key := subscriptionKey(topic, transform)
	m.subMu.Lock()
	_, ok := m.subs[key]
	m.subMu.Unlock()
	if !ok {
		return ErrNotSubscribed
	}

	m.logger.Debug("unsubscribing", "topic", topic, "transform", transform)

	if err := m.send(command{Cmd: "unsubscribe", Arg: topic, Transform: &transform}); err != nil {
		return err
	}

	m.subMu.Lock()
	delete(m.subs, key)
	empty := len(m.subs) == 0
	m.subMu.Unlock()

	if empty {
		m.Disconnect()
	}
	return nil
}

// Insert publishes datapoints to a topic.
func (m *Manager) Insert(topic string, data []Datapoint) error {
	if m.State() != Connected {
		return ErrNotConnected
	}
	return m.send(command{Cmd: "insert", Arg: topic, Data: data})
}

func subscriptionKey(topic, transform string) string {
	return topic + ":" + transform
}

func (m *Manager) setState(s State) {
	m.stateMu.Lock()
	m.state = s
	m.stateMu.Unlock()
	m.logger.Debug("connection state", "state", s)
}

func (m *Manager) clearSubscriptions() {
	m.subMu.Lock()
	m.subs = make(map[string]Handler)
	m.subMu.Unlock()
}

// send serializes one command onto the transport. Subscribe commands,
// user inserts and ack re-inserts from the read loop all funnel through
// sendMu, so frames never interleave.
func (m *Manager) send(cmd command) error {
	frame, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	if m.transport == nil {
		return ErrNotConnected
	}
	return m.transport.Send(frame)
}

// handleMessage dispatches one inbound frame to its registered handler.
// Nothing here may panic outward: malformed and unrouted frames are logged
// and dropped with the connection left up.
func (m *Manager) handleMessage(frame []byte) {
	var msg message
	if err := json.Unmarshal(frame, &msg); err != nil {
		m.logger.Warn("dropping unparsable frame", "error", err)
		return
	}

	key := subscriptionKey(msg.Stream, msg.Transform)
	m.subMu.Lock()
	handler, ok := m.subs[key]
	m.subMu.Unlock()
	if !ok {
		m.logger.Warn("dropping message with no subscriber",
			"topic", msg.Stream,
			"transform", msg.Transform,
		)
		return
	}

	result := handler(msg.Stream, msg.Data)

	if result.kind != ackAcknowledge || !isDownlink(msg.Stream) {
		return
	}

	// An acknowledged downlink payload is re-inserted into the live stream
	// at the same path with the suffix stripped.
	ack := result.data
	if ack == nil {
		ack = msg.Data
	}
	live := strings.TrimSuffix(msg.Stream, downlinkSuffix)
	if err := m.Insert(live, ack); err != nil {
		m.logger.Warn("downlink ack insert failed", "topic", live, "error", err)
	}
}

// isDownlink reports whether topic names a device-level write-pending
// substream.
func isDownlink(topic string) bool {
	return strings.Count(topic, "/") == downlinkDepth &&
		strings.HasSuffix(topic, downlinkSuffix)
}

func (m *Manager) handleError(err error) {
	m.logger.Warn("transport error", "error", err)
}

// handleClose runs when the transport drops, expectedly or not. Only a drop
// out of Connected starts the reconnection loop.
func (m *Manager) handleClose() {
	m.stateMu.Lock()
	switch m.state {
	case Disconnecting:
		m.state = Disconnected
		done := m.disconnectDone
		m.disconnectDone = nil
		m.stateMu.Unlock()

		m.bo.markDisconnected(time.Now())
		m.cancelTimers()
		if done != nil {
			close(done)
		}

	case Connected:
		m.state = Reconnecting
		m.stateMu.Unlock()

		m.bo.markDisconnected(time.Now())
		m.cancelHeartbeat()
		m.sendMu.Lock()
		m.transport = nil
		m.sendMu.Unlock()
		m.scheduleReconnect()

	default:
		// Close events can double-fire on teardown, and a drop may race the
		// heartbeat check; whoever transitioned first already handled it.
		m.stateMu.Unlock()
	}
}

// scheduleReconnect arms the one-shot backoff timer for the next attempt.
func (m *Manager) scheduleReconnect() {
	delay := m.bo.next()
	m.logger.Warn("connection lost, reconnecting", "delay", delay)

	m.timerMu.Lock()
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
	}
	m.reconnectTimer = time.AfterFunc(delay, m.reconnectAttempt)
	m.timerMu.Unlock()
}

// reconnectAttempt fires from the backoff timer: reconnect and replay the
// subscription map, or grow the delay and try again. The loop has no retry
// ceiling; it is bounded only by the growing delay.
func (m *Manager) reconnectAttempt() {
	// An explicit disconnect may have landed after this timer fired.
	if m.State() != Reconnecting {
		return
	}
	if err := m.Connect(context.Background()); err != nil {
		m.setState(Reconnecting)
		m.scheduleReconnect()
		return
	}
	m.resubscribe()
}

// resubscribe replays the subscribe command for every retained registration.
// The local map, not the server, is the source of truth across reconnects.
func (m *Manager) resubscribe() {
	m.subMu.Lock()
	keys := make([]string, 0, len(m.subs))
	for key := range m.subs {
		keys = append(keys, key)
	}
	m.subMu.Unlock()

	for _, key := range keys {
		topic, transform, _ := strings.Cut(key, ":")
		m.logger.Debug("resubscribing", "topic", topic, "transform", transform)
		if err := m.send(command{Cmd: "subscribe", Arg: topic, Transform: &transform}); err != nil {
			m.logger.Warn("resubscribe failed", "topic", topic, "error", err)
		}
	}
}

// handleHeartbeat records server liveness. The check timer self-renews from
// the recorded timestamp, so there is nothing to rearm here.
func (m *Manager) handleHeartbeat() {
	m.timerMu.Lock()
	m.lastHeartbeat = time.Now()
	m.timerMu.Unlock()
	m.logger.Debug("heartbeat")
}

// armHeartbeat starts liveness tracking for a fresh connection.
func (m *Manager) armHeartbeat() {
	m.timerMu.Lock()
	m.lastHeartbeat = time.Now()
	if m.heartbeatTimer != nil {
		m.heartbeatTimer.Stop()
	}
	m.heartbeatTimer = time.AfterFunc(m.cfg.HeartbeatTimeout, m.checkHeartbeat)
	m.timerMu.Unlock()
}

// checkHeartbeat fires HeartbeatTimeout after the connection came up and
// then self-renews for the remainder of the window after each heartbeat.
// A server quiet past the timeout is treated as an unexpected closure.
func (m *Manager) checkHeartbeat() {
	m.timerMu.Lock()
	idle := time.Since(m.lastHeartbeat)
	m.timerMu.Unlock()

	if idle >= m.cfg.HeartbeatTimeout {
		m.logger.Warn("heartbeat timed out", "idle", idle)

		m.sendMu.Lock()
		t := m.transport
		m.transport = nil
		m.sendMu.Unlock()
		if t != nil {
			t.Close()
		}
		m.handleClose()
		return
	}

	m.timerMu.Lock()
	if m.heartbeatTimer != nil {
		m.heartbeatTimer = time.AfterFunc(m.cfg.HeartbeatTimeout-idle, m.checkHeartbeat)
	}
	m.timerMu.Unlock()
}

func (m *Manager) cancelHeartbeat() {
	m.timerMu.Lock()
	if m.heartbeatTimer != nil {
		m.heartbeatTimer.Stop()
		m.heartbeatTimer = nil
	}
	m.timerMu.Unlock()
}

// cancelTimers stops both scheduled tasks. Guaranteed on disconnect and on
// Close so no timer outlives the connection that armed it.
func (m *Manager) cancelTimers() {
	m.timerMu.Lock()
	if m.heartbeatTimer != nil {
		m.heartbeatTimer.Stop()
		m.heartbeatTimer = nil
	}
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.timerMu.Unlock()
}
