package connection

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebsocketURL derives the websocket endpoint from the server API base URL:
// the scheme flips to ws/wss and "websocket" is appended to the path.
func WebsocketURL(serverURL string) string {
	if !strings.HasSuffix(serverURL, "/") {
		serverURL += "/"
	}
	serverURL += "websocket"

	switch {
	case strings.HasPrefix(serverURL, "https://"):
		return "wss://" + strings.TrimPrefix(serverURL, "https://")
	case strings.HasPrefix(serverURL, "http://"):
		return "ws://" + strings.TrimPrefix(serverURL, "http://")
	}
	return serverURL
}

// wsTransport is the production Transport over gorilla/websocket.
type wsTransport struct {
	url   string
	hooks Hooks

	handshakeTimeout time.Duration
	writeTimeout     time.Duration

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func newWebsocketTransport(url string, hooks Hooks, cfg Config) Transport {
	return &wsTransport{
		url:              url,
		hooks:            hooks,
		handshakeTimeout: cfg.HandshakeTimeout,
		writeTimeout:     cfg.WriteTimeout,
	}
}

// Open dials the server and starts the read loop. Server pings double as
// heartbeats: each one is answered with a pong and reported via OnHeartbeat.
func (t *wsTransport) Open(ctx context.Context, header http.Header) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: t.handshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, t.url, header)
	if err != nil {
		return err
	}
	t.conn = conn

	conn.SetPingHandler(func(data string) error {
		if t.hooks.OnHeartbeat != nil {
			t.hooks.OnHeartbeat()
		}
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(t.writeTimeout),
		)
	})

	go t.readLoop()

	return nil
}

// Send writes one text frame under a write deadline.
func (t *wsTransport) Send(frame []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, frame)
}

// Close tears the connection down. The read loop sees the closed socket and
// exits without firing OnClose, since this drop was requested locally.
func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(t.writeTimeout),
	)
	return t.conn.Close()
}

func (t *wsTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// readLoop delivers inbound frames until the connection drops.
func (t *wsTransport) readLoop() {
	for {
		_, frame, err := t.conn.ReadMessage()
		if err != nil {
			if t.isClosed() {
				return
			}
			if t.hooks.OnError != nil {
				t.hooks.OnError(err)
			}
			if t.hooks.OnClose != nil {
				t.hooks.OnClose()
			}
			return
		}

		if t.hooks.OnMessage != nil {
			t.hooks.OnMessage(frame)
		}
	}
}
