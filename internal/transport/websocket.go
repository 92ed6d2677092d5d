package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// DefaultOrigin is sent as the Origin header of WebSocket handshakes.
const DefaultOrigin = "http://st.chatango.com"

const wsPingInterval = 54 * time.Second

// WebSocketDialer opens WebSocket connections whose text messages carry the
// same frames as the TCP stream.
type WebSocketDialer struct {
	Dialer    *websocket.Dialer
	Origin    string
	Secure    bool
	RateLimit *RateLimitConfig
	Logger    zerolog.Logger
}

// NewWebSocketDialer creates a dialer with the given handshake timeout.
func NewWebSocketDialer(timeout time.Duration, rl *RateLimitConfig, logger zerolog.Logger) *WebSocketDialer {
	return &WebSocketDialer{
		Dialer: &websocket.Dialer{
			HandshakeTimeout: timeout,
			ReadBufferSize:   ReadChunkSize,
			WriteBufferSize:  ReadChunkSize,
		},
		Origin:    DefaultOrigin,
		RateLimit: rl,
		Logger:    logger.With().Str("module", "transport").Str("transport", "websocket").Logger(),
	}
}

// Dial performs the WebSocket handshake with host:port. The returned Conn is not started.
func (d *WebSocketDialer) Dial(ctx context.Context, host string, port int) (Conn, error) {
	scheme := "ws"
	if d.Secure {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: address(host, port), Path: "/"}

	header := http.Header{}
	if d.Origin != "" {
		header.Set("Origin", d.Origin)
	}

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", u.String(), err)
	}

	return NewWebSocketConn(conn, d.RateLimit, d.Logger), nil
}

// NewWebSocketConn wraps an established WebSocket connection.
func NewWebSocketConn(c *websocket.Conn, rl *RateLimitConfig, logger zerolog.Logger) Conn {
	return newStream(&wsWire{conn: c}, c.RemoteAddr().String(), rl, logger)
}

type wsWire struct {
	conn *websocket.Conn
}

func (w *wsWire) read() ([]byte, error) {
	_, data, err := w.conn.ReadMessage()
	return data, err
}

func (w *wsWire) write(data []byte) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsWire) pingInterval() time.Duration {
	return wsPingInterval
}

func (w *wsWire) ping() error {
	w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteMessage(websocket.PingMessage, nil)
}

func (w *wsWire) close() error {
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	w.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
	return w.conn.Close()
}
