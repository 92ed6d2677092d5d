package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// TCPDialer opens plain TCP connections.
type TCPDialer struct {
	Timeout   time.Duration
	RateLimit *RateLimitConfig
	Logger    zerolog.Logger
}

// NewTCPDialer creates a dialer with the given connect timeout.
func NewTCPDialer(timeout time.Duration, rl *RateLimitConfig, logger zerolog.Logger) *TCPDialer {
	return &TCPDialer{
		Timeout:   timeout,
		RateLimit: rl,
		Logger:    logger.With().Str("module", "transport").Str("transport", "tcp").Logger(),
	}
}

// Dial connects to host:port. The returned Conn is not started.
func (d *TCPDialer) Dial(ctx context.Context, host string, port int) (Conn, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	c, err := nd.DialContext(ctx, "tcp", address(host, port))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address(host, port), err)
	}
	return NewStreamConn(c, d.RateLimit, d.Logger), nil
}

// NewStreamConn wraps an established net.Conn.
func NewStreamConn(c net.Conn, rl *RateLimitConfig, logger zerolog.Logger) Conn {
	return newStream(&tcpWire{conn: c, buf: make([]byte, ReadChunkSize)}, c.RemoteAddr().String(), rl, logger)
}

type tcpWire struct {
	conn net.Conn
	buf  []byte
}

func (w *tcpWire) read() ([]byte, error) {
	n, err := w.conn.Read(w.buf)
	if n == 0 {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, w.buf[:n])
	return out, err
}

func (w *tcpWire) write(data []byte) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := w.conn.Write(data)
	return err
}

func (w *tcpWire) close() error {
	return w.conn.Close()
}
