// Package transport provides the byte-stream connections that carry frames
// between the client and the chat servers.
//
// A Conn is returned unstarted by a Dialer. Writes are queued to a
// per-connection write pump so concurrent producers never interleave
// mid-frame; reads begin only when Start is called, so the owner can
// register the connection before its first chunk arrives.
package transport

import (
	"context"
	"errors"
	"net"
	"strconv"

	"golang.org/x/time/rate"
)

// ErrClosed is returned by Send after the connection was closed.
var ErrClosed = errors.New("transport: connection closed")

// ReadChunkSize is the most bytes delivered by a single stream read.
const ReadChunkSize = 1024

// Receiver is called on the connection's reader goroutine for every chunk
// read. It is called once more with a non-nil err when reading stops;
// a clean close by the peer is reported as io.EOF.
type Receiver func(c Conn, data []byte, err error)

// Conn is one open connection.
type Conn interface {
	// ID returns a unique identifier generated when the connection was dialled.
	ID() string

	// RemoteAddr returns the peer address, typically "host:port".
	RemoteAddr() string

	// Start begins delivering inbound chunks to recv. Calling it more than once has no effect.
	Start(recv Receiver)

	// Send queues data for writing and returns without blocking. It returns
	// ErrClosed once the connection is closed.
	Send(ctx context.Context, data []byte) error

	// Close closes the connection. Queued writes not yet dispatched are dropped.
	Close() error

	// Done is closed when the connection is closed.
	Done() <-chan struct{}
}

// Dialer opens connections to a server.
type Dialer interface {
	Dial(ctx context.Context, host string, port int) (Conn, error)
}

// RateLimitConfig defines outbound rate limiting for each connection.
type RateLimitConfig struct {
	// MessagesPerSecond defines how many frames a connection may write per second
	MessagesPerSecond rate.Limit
	// Burst defines the maximum burst size (token bucket capacity)
	Burst int
	// Enabled determines if rate limiting is active
	Enabled bool
}

// DefaultRateLimitConfig allows 5 frames per second with a burst of 10,
// which stays under the servers' flood warning threshold.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 5,
		Burst:             10,
		Enabled:           true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

func (c *RateLimitConfig) limiter() *rate.Limiter {
	if c == nil || !c.Enabled {
		return nil
	}
	return rate.NewLimiter(c.MessagesPerSecond, c.Burst)
}

func address(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
