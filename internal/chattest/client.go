package chattest

import (
	"context"
	"errors"
	"net"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/luciancaetano/roomlink/internal/protocol"
	"github.com/luciancaetano/roomlink/internal/transport"
)

// ErrTimeout is returned by WaitFrame when no matching frame arrives in time.
var ErrTimeout = errors.New("chattest: timed out waiting for frame")

type peer interface {
	read() ([]byte, error)
	write(data []byte) error
	close() error
}

type streamPeer struct {
	conn net.Conn
}

func (p *streamPeer) read() ([]byte, error) {
	buf := make([]byte, transport.ReadChunkSize)
	n, err := p.conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (p *streamPeer) write(data []byte) error {
	_, err := p.conn.Write(data)
	return err
}

func (p *streamPeer) close() error {
	return p.conn.Close()
}

type wsPeer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (p *wsPeer) read() ([]byte, error) {
	_, data, err := p.conn.ReadMessage()
	return data, err
}

func (p *wsPeer) write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (p *wsPeer) close() error {
	return p.conn.Close()
}

// Client is one connection accepted by the server.
type Client struct {
	id         string
	remoteAddr string
	peer       peer

	mu     sync.Mutex
	frames []protocol.Frame
	notify chan struct{}
	closed bool
}

func newClient(p peer, remoteAddr string) *Client {
	return &Client{
		id:         uuid.New().String(),
		remoteAddr: remoteAddr,
		peer:       p,
		notify:     make(chan struct{}),
	}
}

// ID returns the uuid assigned on accept.
func (c *Client) ID() string {
	return c.id
}

func (c *Client) RemoteAddr() string {
	return c.remoteAddr
}

// Send writes one frame terminated the way the server terminates them.
func (c *Client) Send(args ...string) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	data := append([]byte(strings.Join(args, ":")+protocol.LineBreak), protocol.Terminator)
	return c.peer.write(data)
}

// SendRaw writes data untouched.
func (c *Client) SendRaw(data string) error {
	return c.peer.write([]byte(data))
}

// Close drops the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.peer.close()
}

func (c *Client) record(f protocol.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	close(c.notify)
	c.notify = make(chan struct{})
}

// Frames returns every frame received so far.
func (c *Client) Frames() []protocol.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.frames)
}

// Commands returns the command of every frame received so far.
func (c *Client) Commands() []string {
	frames := c.Frames()
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Command()
	}
	return out
}

// WaitFrame returns the first frame with the given command, waiting up
// to timeout for it to arrive.
func (c *Client) WaitFrame(cmd string, timeout time.Duration) (protocol.Frame, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for {
		c.mu.Lock()
		for _, f := range c.frames {
			if f.Command() == cmd {
				c.mu.Unlock()
				return f, nil
			}
		}
		notify := c.notify
		c.mu.Unlock()

		select {
		case <-notify:
		case <-ctx.Done():
			return nil, ErrTimeout
		}
	}
}
