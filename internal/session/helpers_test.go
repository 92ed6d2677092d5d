package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/luciancaetano/roomlink"
	"github.com/luciancaetano/roomlink/internal/identity"
	"github.com/luciancaetano/roomlink/internal/metrics"
	"github.com/luciancaetano/roomlink/internal/protocol"
	"github.com/luciancaetano/roomlink/internal/shard"
	"github.com/luciancaetano/roomlink/internal/transport"
)

type event struct {
	name string
	args []any
}

// recorder records every event through OnEventCalled.
type recorder struct {
	roomlink.NopHandler

	mu     sync.Mutex
	events []event
}

func (r *recorder) OnEventCalled(_ roomlink.Connection, name string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{name: name, args: args})
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		if e.name == "OnRaw" {
			continue
		}
		out = append(out, e.name)
	}
	return out
}

func (r *recorder) count(name string) int {
	n := 0
	for _, e := range r.names() {
		if e == name {
			n++
		}
	}
	return n
}

func (r *recorder) last(name string) (event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].name == name {
			return r.events[i], true
		}
	}
	return event{}, false
}

type fakeTask struct {
	mu        sync.Mutex
	cancelled bool
}

func (t *fakeTask) Cancel() {
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
}

func (t *fakeTask) isCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

type fakeAuth struct {
	token string
	err   error
}

func (a fakeAuth) Authenticate(context.Context, string, string) (string, error) {
	return a.token, a.err
}

type fakeHost struct {
	handler  *recorder
	users    *identity.Registry
	self     *identity.User
	settings *Settings
	auth     roomlink.Authenticator
	metrics  *metrics.Metrics

	mu        sync.Mutex
	tasks     []*fakeTask
	dialed    []Endpoint
	forgotten []*Room
}

func newFakeHost(name, password string) *fakeHost {
	users := identity.NewRegistry()
	self := users.Lookup(name)
	if self == nil {
		self = identity.NewUser("")
	}
	return &fakeHost{
		handler: &recorder{},
		users:   users,
		self:    self,
		settings: &Settings{
			Name:       name,
			Password:   password,
			RoomPort:   443,
			PMHost:     "c1.chatango.com",
			PMPort:     5222,
			AnonPMHost: "b1.chatango.com",
			Shards:     shard.Default(),
			PingDelay:  20 * time.Second,
			MaxLength:  700,
			MaxHistory: 150,
		},
		metrics: metrics.New(nil),
	}
}

func (h *fakeHost) Handler() roomlink.Handler             { return h.handler }
func (h *fakeHost) Users() *identity.Registry             { return h.users }
func (h *fakeHost) Self() *identity.User                  { return h.self }
func (h *fakeHost) Settings() *Settings                   { return h.settings }
func (h *fakeHost) Authenticator() roomlink.Authenticator { return h.auth }
func (h *fakeHost) Metrics() *metrics.Metrics             { return h.metrics }
func (h *fakeHost) Logger() zerolog.Logger                { return zerolog.Nop() }
func (h *fakeHost) Context() context.Context              { return context.Background() }

func (h *fakeHost) SetInterval(time.Duration, func()) roomlink.Task {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := &fakeTask{}
	h.tasks = append(h.tasks, t)
	return t
}

func (h *fakeHost) Dial(ep Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dialed = append(h.dialed, ep)
}

func (h *fakeHost) Forget(r *Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.forgotten = append(h.forgotten, r)
}

// fakeConn records every frame sent to it.
type fakeConn struct {
	id string

	mu     sync.Mutex
	sent   [][]byte
	closed bool
	done   chan struct{}
}

var _ transport.Conn = (*fakeConn)(nil)

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, done: make(chan struct{})}
}

func (c *fakeConn) ID() string               { return c.id }
func (c *fakeConn) RemoteAddr() string       { return "127.0.0.1:443" }
func (c *fakeConn) Start(transport.Receiver) {}
func (c *fakeConn) Done() <-chan struct{}    { return c.done }

func (c *fakeConn) Send(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrClosed
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// frames decodes everything sent so far.
func (c *fakeConn) frames() []protocol.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var dec protocol.Decoder
	var out []protocol.Frame
	for _, chunk := range c.sent {
		out = append(out, dec.Feed(chunk)...)
	}
	return out
}

// commands lists the command names sent so far, keepalives included.
func (c *fakeConn) commands() []string {
	var out []string
	for _, f := range c.frames() {
		out = append(out, f.Command())
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.sent = nil
	c.mu.Unlock()
}

// feed delivers raw frames, each terminated by CRLF and NUL.
func feed(ep Endpoint, conn transport.Conn, frames ...string) {
	var b strings.Builder
	for _, f := range frames {
		b.WriteString(f)
		b.WriteString("\r\n\x00")
	}
	ep.Feed(conn, []byte(b.String()))
}

// joinRoom runs a room through ok and inited.
func joinRoom(t *testing.T, host *fakeHost, ok string) (*Room, *fakeConn) {
	t.Helper()
	r := NewRoom("lobby", host)
	conn := newFakeConn("c1")
	r.Attach(conn)
	feed(r, conn, ok, "inited")
	if got := r.State(); got != Authenticated {
		t.Fatalf("state = %v, want authenticated", got)
	}
	return r, conn
}
