package session

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/luciancaetano/roomlink"
	"github.com/luciancaetano/roomlink/internal/history"
	"github.com/luciancaetano/roomlink/internal/identity"
	"github.com/luciancaetano/roomlink/internal/metrics"
	"github.com/luciancaetano/roomlink/internal/transport"
)

// backlogEntry is a history message replayed by the server before the
// room finishes its handshake.
type backlogEntry struct {
	id  string
	msg *history.Message
}

// Room is the connection to one chat room.
type Room struct {
	link

	name   string
	server string
	port   int
	store  *history.Store

	mu           sync.RWMutex
	uid          string
	puid         string
	owner        *identity.User
	mods         map[*identity.User]identity.Perm
	participants []*identity.User
	replay       []backlogEntry
	banlist      map[*identity.User]roomlink.BanRecord
	unbanlist    map[*identity.User]roomlink.BanRecord
	silent       bool
	premium      bool
	userCount    int
	botName      string
	currentName  string
	connects     int
}

var (
	_ roomlink.Room = (*Room)(nil)
	_ Endpoint      = (*Room)(nil)
)

// NewRoom creates a room in the Connecting state. Frames sent before the
// handshake completes are queued.
func NewRoom(name string, host Host) *Room {
	name = strings.ToLower(name)
	s := host.Settings()

	r := &Room{
		name:      name,
		server:    s.Shards.Host(name),
		port:      s.RoomPort,
		store:     history.NewStore(s.MaxHistory),
		uid:       newUID(),
		mods:      make(map[*identity.User]identity.Perm),
		banlist:   make(map[*identity.User]roomlink.BanRecord),
		unbanlist: make(map[*identity.User]roomlink.BanRecord),
	}
	r.link.init(metrics.KindRoom, name, host, r, r.handshake, r.Ping)
	r.link.logger = r.link.logger.With().Str("server", r.server).Logger()
	r.registerCommands()
	return r
}

// Name returns the lowercase room name.
func (r *Room) Name() string {
	return r.name
}

// Server returns the shard host serving the room.
func (r *Room) Server() string {
	return r.server
}

// Address returns the shard host and port.
func (r *Room) Address() (string, int) {
	return r.server, r.port
}

// Prepare has nothing to do for rooms.
func (r *Room) Prepare(context.Context) error {
	return nil
}

func (r *Room) handshake() []string {
	s := r.host.Settings()

	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Name != "" && s.Password != "" {
		r.currentName = s.Name
		return []string{"bauth", r.name, r.uid, s.Name, s.Password}
	}
	return []string{"bauth", r.name}
}

// Attach installs conn and sends the handshake.
func (r *Room) Attach(conn transport.Conn) {
	r.link.attach(conn)
}

// DialFailed drops the room and reports the failure.
func (r *Room) DialFailed(err error) {
	r.link.logger.Warn().Err(err).Msg("connect failed")
	r.link.teardown()
	r.host.Metrics().ConnectFailed(r.kind)
	r.host.Forget(r)
	r.emit("OnConnectFail", func(h roomlink.Handler) { h.OnConnectFail(r) })
}

// Lost handles the server closing the connection.
func (r *Room) Lost(conn transport.Conn, err error) {
	if !r.current(conn) {
		return
	}
	r.link.logger.Debug().Err(err).Msg("connection lost")
	r.Disconnect()
}

// Disconnect closes the connection, removes the room from the manager
// and fires OnDisconnect.
func (r *Room) Disconnect() {
	if r.State() == Disconnected {
		return
	}
	r.disconnect()
	r.emit("OnDisconnect", func(h roomlink.Handler) { h.OnDisconnect(r) })
}

// disconnect closes the connection without an event. While reconnecting
// the room stays registered with the manager.
func (r *Room) disconnect() {
	r.link.teardown()
	r.clearParticipants()
	if !r.isReconnecting() {
		r.host.Forget(r)
	}
}

// Reconnect drops the connection and dials again with a fresh session id.
// It does nothing while a dial is already pending.
func (r *Room) Reconnect() {
	r.link.mu.Lock()
	pending := r.link.dialPending()
	r.link.reconnecting = true
	r.link.mu.Unlock()
	if pending {
		return
	}

	if r.Connected() {
		r.disconnect()
	}

	r.mu.Lock()
	r.uid = newUID()
	r.mu.Unlock()

	r.link.redial()
	r.host.Metrics().Reconnected()
	r.host.Dial(r)
}

func (r *Room) clearParticipants() {
	r.mu.Lock()
	users := r.participants
	r.participants = nil
	r.mu.Unlock()

	for _, u := range users {
		u.LeaveRoom(r.name)
	}
}

// self returns the identity the room currently posts as.
func (r *Room) self() *identity.User {
	return r.host.Users().Lookup(r.CurrentName())
}

// Level returns the privilege level of user in the room.
func (r *Room) Level(user *identity.User) int {
	if user == nil {
		return roomlink.LevelNone
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if user == r.owner {
		return roomlink.LevelOwner
	}
	if _, ok := r.mods[user]; ok {
		return roomlink.LevelMod
	}
	return roomlink.LevelNone
}

// Perms returns the moderator mask of user.
func (r *Room) Perms(user *identity.User) (identity.Perm, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.mods[user]
	return p, ok
}

// LastMessage returns the newest message by user, or by anyone when user is nil.
func (r *Room) LastMessage(user *identity.User) *history.Message {
	if user == nil {
		return r.store.Last()
	}
	return r.store.LastBy(user)
}

// FindUser returns the only participant whose name contains substr.
func (r *Room) FindUser(substr string) *identity.User {
	substr = strings.ToLower(substr)

	var found *identity.User
	for _, u := range r.Users(roomlink.UserlistAll, true, 0) {
		if !strings.Contains(u.Name(), substr) {
			continue
		}
		if found != nil {
			return nil
		}
		found = u
	}
	return found
}

// UserList applies the manager's user-list settings.
func (r *Room) UserList() []*identity.User {
	s := r.host.Settings()
	return r.Users(s.UserlistMode, s.UserlistUnique, s.UserlistMemory)
}

// Users lists participants, or the senders of the last memory messages in recent mode.
func (r *Room) Users(mode roomlink.UserlistMode, unique bool, memory int) []*identity.User {
	var users []*identity.User
	switch mode {
	case roomlink.UserlistRecent:
		for _, m := range r.store.Recent(memory) {
			users = append(users, m.User)
		}
	default:
		r.mu.RLock()
		users = slices.Clone(r.participants)
		r.mu.RUnlock()
	}

	if !unique {
		return users
	}
	seen := make(map[*identity.User]struct{}, len(users))
	out := users[:0]
	for _, u := range users {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// Usernames returns the names of every participant session.
func (r *Room) Usernames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.participants))
	for _, u := range r.participants {
		names = append(names, u.Name())
	}
	return names
}

// Owner returns the room owner, nil before the handshake completes.
func (r *Room) Owner() *identity.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owner
}

// Mods returns the moderators ordered by name.
func (r *Room) Mods() []*identity.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedUsers(r.mods)
}

// ModNames returns the moderator names ordered by name.
func (r *Room) ModNames() []string {
	return names(r.Mods())
}

// UserCount returns the last participant count reported by the server.
func (r *Room) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userCount
}

// Silent reports whether outgoing chat messages are dropped.
func (r *Room) Silent() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.silent
}

// SetSilent makes RawMessage and Message drop chat messages locally.
func (r *Room) SetSilent(silent bool) {
	r.mu.Lock()
	r.silent = silent
	r.mu.Unlock()
}

// BanList returns the banned users ordered by name.
func (r *Room) BanList() []*identity.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedUsers(r.banlist)
}

// UnbanList returns the unban records ordered by target name.
func (r *Room) UnbanList() []roomlink.BanRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]roomlink.BanRecord, 0, len(r.unbanlist))
	for _, rec := range r.unbanlist {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b roomlink.BanRecord) int {
		return cmp.Compare(a.Target.Name(), b.Target.Name())
	})
	return out
}

// BanRecord returns the ban entry for user, if banned.
func (r *Room) BanRecord(user *identity.User) (roomlink.BanRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.banlist[user]
	return rec, ok
}

// History returns the attached messages, oldest first.
func (r *Room) History() []*history.Message {
	return r.store.History()
}

// BotName returns the name the bot logged in with: the account name, a
// '#'-prefixed temporary name, or the derived anonymous name.
func (r *Room) BotName() string {
	s := r.host.Settings()
	switch {
	case s.Name != "" && s.Password != "":
		return s.Name
	case s.Name != "":
		return "#" + s.Name
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.botName
}

// CurrentName returns the name the bot currently posts as.
func (r *Room) CurrentName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentName
}

// Premium reports whether the account has an active premium subscription.
func (r *Room) Premium() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.premium
}

// UID returns the session id used in the handshake.
func (r *Room) UID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.uid
}

func (r *Room) String() string {
	return "<Room: " + r.name + ">"
}

func sortedUsers[V any](set map[*identity.User]V) []*identity.User {
	out := make([]*identity.User, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b *identity.User) int {
		return cmp.Compare(a.Name(), b.Name())
	})
	return out
}

func names(users []*identity.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.Name())
	}
	return out
}
