package session

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/luciancaetano/roomlink"
	"github.com/luciancaetano/roomlink/internal/protocol"
	"github.com/luciancaetano/roomlink/internal/transport"
)

// command is one inbound frame handler. Frames with fewer than min
// arguments are dropped as malformed.
type command struct {
	min int
	fn  func(args []string)
}

// link is the connection core shared by rooms and private-message sessions.
//
// Outbound frames pass through a two-state sink: while locked they are
// kept in backlog and encoded only when the lock is released, so the
// handshake is always the first frame on the wire.
type link struct {
	kind   string
	host   Host
	owner  roomlink.Connection
	logger zerolog.Logger

	handshake func() []string
	ping      func()
	commands  map[string]command

	mu           sync.Mutex
	conn         transport.Conn
	enc          protocol.Encoder
	locked       bool
	backlog      [][]string
	state        State
	reconnecting bool
	keepalive    roomlink.Task

	// dec is only touched by the loop goroutine.
	dec protocol.Decoder
}

func (l *link) init(kind, name string, host Host, owner roomlink.Connection, handshake func() []string, ping func()) {
	l.kind = kind
	l.host = host
	l.owner = owner
	l.handshake = handshake
	l.ping = ping
	l.commands = make(map[string]command)
	l.logger = host.Logger().With().Str("module", "session").Str("kind", kind).Str("name", name).Logger()
	l.locked = true
	l.state = Connecting
}

func (l *link) handle(cmd string, min int, fn func(args []string)) {
	l.commands[cmd] = command{min: min, fn: fn}
}

// Kind returns the metrics label of the connection.
func (l *link) Kind() string {
	return l.kind
}

// State returns the current lifecycle state.
func (l *link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Connected reports whether a connection is attached.
func (l *link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// dialPending reports whether a dial is queued and nothing is attached yet.
func (l *link) dialPending() bool {
	return l.conn == nil && l.state == Connecting
}

func (l *link) isReconnecting() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reconnecting
}

// send frames args. While the write lock is held the frame waits in the
// backlog; once disconnected it is dropped.
func (l *link) send(args ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locked {
		l.backlog = append(l.backlog, args)
		return
	}
	if l.conn == nil {
		l.logger.Debug().Str("cmd", args[0]).Msg("dropping frame for closed connection")
		return
	}
	l.writeLocked(args)
}

func (l *link) writeLocked(args []string) {
	data := l.enc.Encode(args...)
	l.host.Metrics().FrameSent(l.kind, len(data))
	if err := l.conn.Send(l.host.Context(), data); err != nil {
		l.logger.Debug().Err(err).Str("cmd", args[0]).Msg("send failed")
	}
}

// attach installs conn, writes the handshake directly and keeps the lock
// until the server acknowledges it. A link closed while dialling drops conn;
// a connection already attached is closed along with its keepalive.
func (l *link) attach(conn transport.Conn) {
	l.mu.Lock()
	if l.state == Disconnected {
		l.mu.Unlock()
		conn.Close()
		l.logger.Debug().Str("conn_id", conn.ID()).Msg("closed while dialling")
		return
	}
	old, oldKA := l.conn, l.keepalive
	l.conn = conn
	l.keepalive = nil
	l.enc.Reset()
	l.dec.Reset()
	l.locked = true
	l.state = AwaitingAuth
	l.reconnecting = false
	l.writeLocked(l.handshake())
	l.mu.Unlock()

	if oldKA != nil {
		oldKA.Cancel()
	}
	if old != nil {
		old.Close()
		l.host.Metrics().ConnectionClosed(l.kind)
		l.logger.Debug().Str("conn_id", old.ID()).Msg("closed superseded connection")
	}

	ka := l.host.SetInterval(l.host.Settings().PingDelay, l.ping)
	l.mu.Lock()
	l.keepalive = ka
	l.mu.Unlock()

	l.host.Metrics().ConnectionOpened(l.kind)
	l.logger.Info().Str("conn_id", conn.ID()).Str("remote_addr", conn.RemoteAddr()).Msg("connected")
}

// unlock releases the write lock and flushes the backlog in order.
func (l *link) unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.locked = false
	l.state = Authenticated
	if l.conn == nil {
		l.backlog = nil
		return
	}
	for _, args := range l.backlog {
		l.writeLocked(args)
	}
	l.backlog = nil
}

// teardown cancels the keepalive and closes the connection.
// It reports whether a connection was attached.
func (l *link) teardown() bool {
	l.mu.Lock()
	conn := l.conn
	ka := l.keepalive
	l.conn = nil
	l.keepalive = nil
	l.locked = false
	l.backlog = nil
	l.state = Disconnected
	l.mu.Unlock()

	if ka != nil {
		ka.Cancel()
	}
	if conn == nil {
		return false
	}
	conn.Close()
	l.host.Metrics().ConnectionClosed(l.kind)
	l.logger.Info().Str("conn_id", conn.ID()).Msg("disconnected")
	return true
}

// Close drops the connection without firing any event.
func (l *link) Close() {
	l.teardown()
}

// redial moves back to Connecting so frames queue until the next handshake.
func (l *link) redial() {
	l.mu.Lock()
	l.locked = true
	l.state = Connecting
	l.mu.Unlock()
}

func (l *link) current(conn transport.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil && l.conn == conn
}

// Feed decodes data and dispatches every complete frame.
func (l *link) Feed(conn transport.Conn, data []byte) {
	if !l.current(conn) {
		return
	}
	l.host.Metrics().BytesReceived(len(data))

	for _, frame := range l.dec.Feed(data) {
		// A handler may have closed or replaced the connection.
		if !l.current(conn) {
			return
		}
		l.dispatch(frame)
	}
}

func (l *link) dispatch(frame protocol.Frame) {
	l.host.Metrics().FrameReceived(l.kind)
	raw := frame.String()
	l.emit("OnRaw", func(h roomlink.Handler) { h.OnRaw(l.owner, raw) }, raw)

	cmd, args := frame.Command(), frame.Args()
	c, ok := l.commands[cmd]
	if !ok {
		l.host.Metrics().UnknownCommand(l.kind)
		l.logger.Debug().Str("cmd", cmd).Int("args", len(args)).Msg("unknown command")
		return
	}
	if len(args) < c.min {
		l.logger.Warn().Str("cmd", cmd).Int("args", len(args)).Int("want", c.min).Msg("dropping malformed frame")
		return
	}
	l.logger.Debug().Str("cmd", cmd).Msg("frame received")
	c.fn(args)
}

// emit delivers one event and then OnEventCalled.
func (l *link) emit(event string, fire func(h roomlink.Handler), args ...any) {
	h := l.host.Handler()
	fire(h)
	h.OnEventCalled(l.owner, event, args...)
	l.host.Metrics().Event(event)
}
