// Package manager runs the event loop that owns every room and
// private-message connection.
//
// Three goroutines cooperate: the loop, which decodes frames, fires
// handler callbacks and timer tasks; the join worker, which performs the
// blocking credential exchange and dial for each new connection; and one
// reader plus one writer per connection inside the transport. Only the
// loop touches connection state machines, so callbacks never overlap.
package manager

import (
	"context"
	"errors"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/luciancaetano/roomlink"
	"github.com/luciancaetano/roomlink/internal/identity"
	"github.com/luciancaetano/roomlink/internal/metrics"
	"github.com/luciancaetano/roomlink/internal/scheduler"
	"github.com/luciancaetano/roomlink/internal/session"
	"github.com/luciancaetano/roomlink/internal/transport"
)

// closer is implemented by every session connection.
type closer interface {
	Close()
}

// Manager implements roomlink.Manager.
type Manager struct {
	cfg      Config
	settings *session.Settings
	handler  roomlink.Handler
	users    *identity.Registry
	self     *identity.User
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	sched    *scheduler.Scheduler

	inbox *queue[func()]
	joins *queue[session.Endpoint]
	done  chan struct{}

	mu      sync.RWMutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	err     error
	rooms   map[string]*session.Room
	pm      roomlink.PrivateMessenger
}

var _ roomlink.Manager = (*Manager)(nil)

// New creates a stopped manager. handler may be nil.
func New(cfg Config, handler roomlink.Handler) *Manager {
	cfg = cfg.withDefaults()
	if handler == nil {
		handler = roomlink.NopHandler{}
	}

	users := identity.NewRegistry()
	self := users.Lookup(cfg.Name)
	if self == nil {
		self = identity.NewUser("")
	}

	m := &Manager{
		cfg:      cfg,
		settings: cfg.settings(),
		handler:  handler,
		users:    users,
		self:     self,
		logger:   cfg.Logger.With().Str("module", "manager").Logger(),
		metrics:  cfg.Metrics,
		sched:    scheduler.New(nil),
		inbox:    newQueue[func()](),
		joins:    newQueue[session.Endpoint](),
		done:     make(chan struct{}),
		ctx:      context.Background(),
		rooms:    make(map[string]*session.Room),
	}
	return m
}

// Start fires OnInit, opens the private-message session when configured,
// launches the loop and the join worker and queues OnFinishStartup.
// A manager runs once; later calls return an error.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New(roomlink.ErrManagerAlreadyRunning)
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.handler.OnInit()

	if m.cfg.PM {
		m.startPM()
	}

	m.post(m.handler.OnFinishStartup)

	go m.joinWorker(m.ctx)
	go m.run(m.ctx)

	m.logger.Info().
		Str("name", m.cfg.Name).
		Bool("pm", m.cfg.PM).
		Str("transport", m.cfg.Transport).
		Int("rooms", len(m.RoomNames())).
		Msg("manager started")
	return nil
}

func (m *Manager) startPM() {
	h := host{m}
	if m.cfg.Name != "" && m.cfg.Password != "" {
		pm := session.NewPM(h)
		m.mu.Lock()
		m.pm = pm
		m.mu.Unlock()
		m.Dial(pm)
		return
	}
	m.mu.Lock()
	m.pm = session.NewAnonPM(h)
	m.mu.Unlock()
}

// Stop disconnects every connection on the loop and waits for it to exit.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.RLock()
	started := m.started
	m.mu.RUnlock()
	if !started {
		return nil
	}

	m.post(func() {
		m.disconnectAll()
		m.cancel()
	})

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the loop exits and returns the error that stopped it.
func (m *Manager) Wait() error {
	m.mu.RLock()
	started := m.started
	m.mu.RUnlock()
	if !started {
		return errors.New(roomlink.ErrManagerNotRunning)
	}

	<-m.done
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// run is the event loop.
func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	err := m.loop(ctx)
	if err != nil {
		var pe *scheduler.PanicError
		if errors.As(err, &pe) {
			m.metrics.TaskPanicked()
			m.logger.Error().Interface("panic", pe.Value).Bytes("stack", pe.Stack).Msg("callback panicked, stopping")
		}
		m.mu.Lock()
		m.err = err
		m.mu.Unlock()
	}

	m.cancel()
	m.closeAll()
	m.sched.Clear()
	m.logger.Info().Msg("manager stopped")
}

func (m *Manager) loop(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.TimerResolution)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-m.inbox.ready():
			for _, fn := range m.inbox.drain() {
				if err := protect(fn); err != nil {
					return err
				}
			}
		case now := <-ticker.C:
			if err := m.sched.Tick(now); err != nil {
				return err
			}
		}
	}
}

// protect runs fn, converting a panic into a *scheduler.PanicError.
func protect(fn func()) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if pe, ok := r.(*scheduler.PanicError); ok {
			err = pe
			return
		}
		err = &scheduler.PanicError{Value: r, Stack: debug.Stack()}
	}()
	fn()
	return nil
}

// post queues fn for the loop.
func (m *Manager) post(fn func()) {
	m.inbox.push(fn)
}

// joinWorker dials queued endpoints one at a time.
func (m *Manager) joinWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.joins.ready():
		}

		for _, ep := range m.joins.drain() {
			if ctx.Err() != nil {
				return
			}
			m.connect(ctx, ep)
		}
		m.metrics.JoinQueueDepth(m.joins.size())
	}
}

func (m *Manager) connect(ctx context.Context, ep session.Endpoint) {
	host, port := ep.Address()
	log := m.logger.With().Str("kind", ep.Kind()).Str("host", host).Int("port", port).Logger()

	if err := ep.Prepare(ctx); err != nil {
		log.Warn().Err(err).Msg("prepare failed")
		m.post(func() { ep.DialFailed(err) })
		return
	}

	conn, err := m.cfg.Dialer.Dial(ctx, host, port)
	if err != nil {
		log.Warn().Err(err).Msg(roomlink.ErrDialFailed)
		m.post(func() { ep.DialFailed(err) })
		return
	}

	log.Debug().Str("conn_id", conn.ID()).Msg("dialled")
	m.post(func() {
		ep.Attach(conn)
		conn.Start(m.receiver(ep))
	})
}

// receiver hands every chunk read from a connection to the loop.
func (m *Manager) receiver(ep session.Endpoint) transport.Receiver {
	return func(c transport.Conn, data []byte, err error) {
		if err != nil {
			m.post(func() { ep.Lost(c, err) })
			return
		}
		m.post(func() { ep.Feed(c, data) })
	}
}

// Dial queues ep on the join worker.
func (m *Manager) Dial(ep session.Endpoint) {
	n := m.joins.push(ep)
	m.metrics.JoinQueueDepth(n)
}

// disconnectAll closes every connection, firing the disconnect events.
func (m *Manager) disconnectAll() {
	for _, r := range m.liveRooms() {
		r.Disconnect()
	}
	if pm := m.PM(); pm != nil {
		pm.Disconnect()
	}
}

// closeAll drops every connection silently.
func (m *Manager) closeAll() {
	m.mu.Lock()
	rooms := m.rooms
	m.rooms = make(map[string]*session.Room)
	pm := m.pm
	m.mu.Unlock()

	for _, r := range rooms {
		r.Close()
	}
	if c, ok := pm.(closer); ok {
		c.Close()
	}
}

// JoinRoom creates the room and queues its connection.
func (m *Manager) JoinRoom(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return
	}

	m.mu.Lock()
	if _, ok := m.rooms[name]; ok {
		m.mu.Unlock()
		return
	}
	r := session.NewRoom(name, host{m})
	m.rooms[name] = r
	m.mu.Unlock()

	m.logger.Info().Str("room", name).Str("server", r.Server()).Msg("joining room")
	m.Dial(r)
}

// LeaveRoom disconnects the room on the loop.
func (m *Manager) LeaveRoom(name string) {
	m.mu.RLock()
	r, ok := m.rooms[strings.ToLower(name)]
	m.mu.RUnlock()
	if !ok {
		return
	}
	m.post(r.Disconnect)
}

// Forget removes r from the room table unless it was replaced.
func (m *Manager) Forget(r *session.Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rooms[r.Name()] == r {
		delete(m.rooms, r.Name())
	}
}

// Room returns the connected or connecting room called name.
func (m *Manager) Room(name string) (roomlink.Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return r, true
}

func (m *Manager) liveRooms() []*session.Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*session.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b *session.Room) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return out
}

// Rooms returns every room ordered by name.
func (m *Manager) Rooms() []roomlink.Room {
	rooms := m.liveRooms()
	out := make([]roomlink.Room, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r)
	}
	return out
}

// RoomNames returns the names of every room, sorted.
func (m *Manager) RoomNames() []string {
	rooms := m.liveRooms()
	out := make([]string, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Name())
	}
	return out
}

// PM returns the private messenger, nil unless enabled and started.
func (m *Manager) PM() roomlink.PrivateMessenger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pm
}

// SetTimeout runs fn once on the loop after d.
func (m *Manager) SetTimeout(d time.Duration, fn func()) roomlink.Task {
	return m.sched.SetTimeout(d, fn)
}

// SetInterval runs fn on the loop every d until cancelled.
func (m *Manager) SetInterval(d time.Duration, fn func()) roomlink.Task {
	return m.sched.SetInterval(d, fn)
}

// Defer runs work on a new goroutine and schedules callback with its
// result on the loop. A panic in work stops the manager like a panic in
// a timer callback.
func (m *Manager) Defer(work func() any, callback func(result any)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				pe := &scheduler.PanicError{Value: r, Stack: debug.Stack()}
				m.post(func() { panic(pe) })
			}
		}()
		v := work()
		m.sched.SetTimeout(0, func() { callback(v) })
	}()
}

// EnableBg turns the message background on in every room.
func (m *Manager) EnableBg() {
	m.self.Update(identity.Fields{BgMode: identity.Bool(true)})
	m.eachRoom(func(r *session.Room) { r.SetBgMode(true) })
}

// DisableBg turns the message background off in every room.
func (m *Manager) DisableBg() {
	m.self.Update(identity.Fields{BgMode: identity.Bool(false)})
	m.eachRoom(func(r *session.Room) { r.SetBgMode(false) })
}

// EnableRecording turns media recording on in every room.
func (m *Manager) EnableRecording() {
	m.self.Update(identity.Fields{RecordingMode: identity.Bool(true)})
	m.eachRoom(func(r *session.Room) { r.SetRecordingMode(true) })
}

// DisableRecording turns media recording off in every room.
func (m *Manager) DisableRecording() {
	m.self.Update(identity.Fields{RecordingMode: identity.Bool(false)})
	m.eachRoom(func(r *session.Room) { r.SetRecordingMode(false) })
}

func (m *Manager) eachRoom(fn func(r *session.Room)) {
	for _, r := range m.liveRooms() {
		fn(r)
	}
}

// SetNameColor sets the hex color used for the name tag.
func (m *Manager) SetNameColor(color string) {
	m.self.Update(identity.Fields{NameColor: color})
}

// SetFontColor sets the hex color of outgoing text.
func (m *Manager) SetFontColor(color string) {
	m.self.Update(identity.Fields{FontColor: color})
}

// SetFontFace sets the font face of outgoing text.
func (m *Manager) SetFontFace(face string) {
	m.self.Update(identity.Fields{FontFace: face})
}

// SetFontSize clamps size to 9..22.
func (m *Manager) SetFontSize(size int) {
	m.self.Update(identity.Fields{FontSize: min(max(size, 9), 22)})
}

// Self returns the identity the manager posts as.
func (m *Manager) Self() *identity.User {
	return m.self
}

// Users returns the identity registry shared by every connection.
func (m *Manager) Users() *identity.Registry {
	return m.users
}
