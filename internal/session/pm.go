package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/luciancaetano/roomlink"
	"github.com/luciancaetano/roomlink/internal/identity"
	"github.com/luciancaetano/roomlink/internal/markup"
	"github.com/luciancaetano/roomlink/internal/metrics"
	"github.com/luciancaetano/roomlink/internal/transport"
)

// status is what the server has told us about a contact.
type status struct {
	lastOn time.Time
	online bool
	// idleSince is zero while the user is active.
	idleSince time.Time
}

// PM is the authenticated private-message session.
type PM struct {
	link

	now func() time.Time

	mu        sync.RWMutex
	token     string
	contacts  map[*identity.User]struct{}
	blocklist map[*identity.User]struct{}
	status    map[*identity.User]status
}

var (
	_ roomlink.PM = (*PM)(nil)
	_ Endpoint    = (*PM)(nil)
)

// NewPM creates an authenticated private-message session.
func NewPM(host Host) *PM {
	pm := &PM{
		now:       time.Now,
		contacts:  make(map[*identity.User]struct{}),
		blocklist: make(map[*identity.User]struct{}),
		status:    make(map[*identity.User]status),
	}
	pm.link.init(metrics.KindPM, pm.Name(), host, pm, pm.handshake, pm.Ping)

	pm.handle("OK", 0, pm.onOK)
	pm.handle("wl", 0, pm.onContactList)
	pm.handle("block_list", 0, pm.onBlockList)
	pm.handle("idleupdate", 2, pm.onIdleUpdate)
	pm.handle("track", 3, pm.onTrack)
	pm.handle("DENIED", 0, pm.onDenied)
	pm.handle("msg", 1, pm.onMessage)
	pm.handle("msgoff", 1, pm.onOfflineMessage)
	pm.handle("wlonline", 2, pm.onContactOnline)
	pm.handle("wloffline", 2, pm.onContactOffline)
	pm.handle("kickingoff", 0, pm.onKicked)
	pm.handle("toofast", 0, pm.onKicked)
	pm.handle("unblocked", 1, pm.onUnblocked)
	return pm
}

func (pm *PM) Name() string {
	return "pm"
}

// Address returns the private-message server.
func (pm *PM) Address() (string, int) {
	s := pm.host.Settings()
	return s.PMHost, s.PMPort
}

// Prepare exchanges the account credentials for a session token.
func (pm *PM) Prepare(ctx context.Context) error {
	s := pm.host.Settings()
	auth := pm.host.Authenticator()
	if auth == nil || s.Name == "" || s.Password == "" {
		return fmt.Errorf("%w: %s", errAuth, roomlink.ErrNoCredentials)
	}

	token, err := auth.Authenticate(ctx, s.Name, s.Password)
	if err != nil {
		return fmt.Errorf("%w: %w", errAuth, err)
	}

	pm.mu.Lock()
	pm.token = token
	pm.mu.Unlock()
	return nil
}

func (pm *PM) handshake() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return []string{"tlogin", pm.token, "2"}
}

// Attach installs conn and sends the token login.
func (pm *PM) Attach(conn transport.Conn) {
	pm.link.attach(conn)
}

// DialFailed reports a rejected login or an unreachable server.
func (pm *PM) DialFailed(err error) {
	pm.link.teardown()
	pm.host.Metrics().ConnectFailed(pm.kind)
	if errors.Is(err, errAuth) {
		pm.link.logger.Warn().Err(err).Msg("login failed")
		pm.emit("OnPMLoginFail", func(h roomlink.Handler) { h.OnPMLoginFail(pm) })
		return
	}
	pm.link.logger.Warn().Err(err).Msg("connect failed")
	pm.emit("OnPMDisconnect", func(h roomlink.Handler) { h.OnPMDisconnect(pm) })
}

// Lost handles the server closing the connection.
func (pm *PM) Lost(conn transport.Conn, err error) {
	if !pm.current(conn) {
		return
	}
	pm.link.logger.Debug().Err(err).Msg("connection lost")
	pm.Disconnect()
}

// Disconnect closes the session and fires OnPMDisconnect.
func (pm *PM) Disconnect() {
	if pm.State() == Disconnected {
		return
	}
	pm.link.teardown()
	pm.emit("OnPMDisconnect", func(h roomlink.Handler) { h.OnPMDisconnect(pm) })
}

// Ping sends a keepalive.
func (pm *PM) Ping() {
	pm.send("")
	pm.emit("OnPMPing", func(h roomlink.Handler) { h.OnPMPing(pm) })
}

// Message sends body to user.
func (pm *PM) Message(user *identity.User, body string) {
	if user == nil {
		return
	}
	pm.send("msg", user.Name(), body)
}

// AddContact adds user to the contact list.
func (pm *PM) AddContact(user *identity.User) {
	if user == nil {
		return
	}
	pm.mu.Lock()
	_, ok := pm.contacts[user]
	pm.contacts[user] = struct{}{}
	pm.mu.Unlock()
	if ok {
		return
	}
	pm.send("wladd", user.Name())
	pm.emit("OnPMContactAdd", func(h roomlink.Handler) { h.OnPMContactAdd(pm, user) }, user)
}

// RemoveContact removes user from the contact list.
func (pm *PM) RemoveContact(user *identity.User) {
	pm.mu.Lock()
	_, ok := pm.contacts[user]
	delete(pm.contacts, user)
	pm.mu.Unlock()
	if !ok {
		return
	}
	pm.send("wldelete", user.Name())
	pm.emit("OnPMContactRemove", func(h roomlink.Handler) { h.OnPMContactRemove(pm, user) }, user)
}

// Block blocks user.
func (pm *PM) Block(user *identity.User) {
	if user == nil {
		return
	}
	pm.mu.Lock()
	_, ok := pm.blocklist[user]
	pm.blocklist[user] = struct{}{}
	pm.mu.Unlock()
	if ok {
		return
	}
	pm.send("block", user.Name(), user.Name(), "S")
	pm.emit("OnPMBlock", func(h roomlink.Handler) { h.OnPMBlock(pm, user) }, user)
}

// Unblock asks the server to unblock user. The block list changes when
// the server confirms.
func (pm *PM) Unblock(user *identity.User) {
	pm.mu.RLock()
	_, ok := pm.blocklist[user]
	pm.mu.RUnlock()
	if ok {
		pm.send("unblock", user.Name())
	}
}

// Track asks the server for the status of user.
func (pm *PM) Track(user *identity.User) {
	if user == nil {
		return
	}
	pm.send("track", user.Name())
}

// CheckOnline reports whether user is online, and whether a status is known.
func (pm *PM) CheckOnline(user *identity.User) (online, known bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	st, ok := pm.status[user]
	return st.online, ok
}

// Idle returns when user went idle: now for active users and the zero time
// for offline ones. It reports false when no status is known.
func (pm *PM) Idle(user *identity.User) (time.Time, bool) {
	pm.mu.RLock()
	st, ok := pm.status[user]
	pm.mu.RUnlock()
	switch {
	case !ok:
		return time.Time{}, false
	case !st.online:
		return time.Time{}, true
	case st.idleSince.IsZero():
		return pm.now(), true
	default:
		return st.idleSince, true
	}
}

// Contacts returns the contact list ordered by name.
func (pm *PM) Contacts() []*identity.User {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return sortedUsers(pm.contacts)
}

// Blocklist returns the blocked users ordered by name.
func (pm *PM) Blocklist() []*identity.User {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return sortedUsers(pm.blocklist)
}

func (pm *PM) String() string {
	return "<PM>"
}

func (pm *PM) onOK([]string) {
	pm.unlock()
	pm.send("wl")
	pm.send("getblock")
	pm.emit("OnPMConnect", func(h roomlink.Handler) { h.OnPMConnect(pm) })
}

// onContactList handles wl:name:last-on:on|off:idle-minutes:name:...
func (pm *PM) onContactList(args []string) {
	users := pm.host.Users()
	now := pm.now()

	contacts := make(map[*identity.User]struct{})
	statuses := make(map[*identity.User]status)
	for i := 0; i+4 <= len(args); i += 4 {
		name, lastOn, isOn, idle := args[i], args[i+1], args[i+2], args[i+3]
		u := users.Lookup(name)
		if u == nil {
			continue
		}
		contacts[u] = struct{}{}
		if lastOn == "None" {
			continue
		}
		st := status{lastOn: parseTime(lastOn), online: isOn == "on"}
		if st.online {
			st.idleSince = idleSince(now, idle)
		}
		statuses[u] = st
	}

	pm.mu.Lock()
	pm.contacts = contacts
	for u, st := range statuses {
		pm.status[u] = st
	}
	pm.mu.Unlock()

	pm.emit("OnPMContactlistReceive", func(h roomlink.Handler) { h.OnPMContactlistReceive(pm) })
}

func (pm *PM) onBlockList(args []string) {
	users := pm.host.Users()
	list := make(map[*identity.User]struct{})
	for _, name := range args {
		if u := users.Lookup(name); u != nil {
			list[u] = struct{}{}
		}
	}
	pm.mu.Lock()
	pm.blocklist = list
	pm.mu.Unlock()
	pm.emit("OnPMBlocklistReceive", func(h roomlink.Handler) { h.OnPMBlocklistReceive(pm) })
}

// onIdleUpdate handles idleupdate:name:active.
func (pm *PM) onIdleUpdate(args []string) {
	u := pm.host.Users().Lookup(args[0])
	if u == nil {
		return
	}
	pm.mu.Lock()
	st := pm.status[u]
	if args[1] == "1" {
		st.idleSince = time.Time{}
	} else {
		st.idleSince = pm.now()
	}
	pm.status[u] = st
	pm.mu.Unlock()
}

// onTrack handles track:name:idle-minutes:online|offline.
func (pm *PM) onTrack(args []string) {
	u := pm.host.Users().Lookup(args[0])
	if u == nil {
		return
	}
	now := pm.now()
	pm.mu.Lock()
	st := pm.status[u]
	st.online = args[2] == "online"
	st.idleSince = idleSince(now, args[1])
	pm.status[u] = st
	pm.mu.Unlock()
}

func (pm *PM) onDenied([]string) {
	pm.link.teardown()
	pm.emit("OnPMLoginFail", func(h roomlink.Handler) { h.OnPMLoginFail(pm) })
}

func (pm *PM) onMessage(args []string) {
	u, body := pm.parseMessage(args)
	if u == nil {
		return
	}
	pm.emit("OnPMMessage", func(h roomlink.Handler) { h.OnPMMessage(pm, u, body) }, u, body)
}

func (pm *PM) onOfflineMessage(args []string) {
	u, body := pm.parseMessage(args)
	if u == nil {
		return
	}
	pm.emit("OnPMOfflineMessage", func(h roomlink.Handler) { h.OnPMOfflineMessage(pm, u, body) }, u, body)
}

// parseMessage reads msg:name:?:?:time:?:body...
func (pm *PM) parseMessage(args []string) (*identity.User, string) {
	return parsePrivateMessage(pm.host.Users(), args)
}

func (pm *PM) onContactOnline(args []string) {
	u := pm.host.Users().Lookup(args[0])
	if u == nil {
		return
	}
	pm.mu.Lock()
	pm.status[u] = status{lastOn: parseTime(args[1]), online: true}
	pm.mu.Unlock()
	pm.emit("OnPMContactOnline", func(h roomlink.Handler) { h.OnPMContactOnline(pm, u) }, u)
}

func (pm *PM) onContactOffline(args []string) {
	u := pm.host.Users().Lookup(args[0])
	if u == nil {
		return
	}
	pm.mu.Lock()
	pm.status[u] = status{lastOn: parseTime(args[1])}
	pm.mu.Unlock()
	pm.emit("OnPMContactOffline", func(h roomlink.Handler) { h.OnPMContactOffline(pm, u) }, u)
}

func (pm *PM) onKicked([]string) {
	pm.Disconnect()
}

func (pm *PM) onUnblocked(args []string) {
	u := pm.host.Users().Lookup(args[0])
	pm.mu.Lock()
	_, ok := pm.blocklist[u]
	delete(pm.blocklist, u)
	pm.mu.Unlock()
	if ok {
		pm.emit("OnPMUnblock", func(h roomlink.Handler) { h.OnPMUnblock(pm, u) }, u)
	}
}

// idleSince converts a minute offset reported by the server. "0" or an
// unparseable value means the user is active.
func idleSince(now time.Time, minutes string) time.Time {
	n, err := strconv.Atoi(minutes)
	if err != nil || n <= 0 {
		return time.Time{}
	}
	return now.Add(-time.Duration(n) * time.Minute)
}

func parsePrivateMessage(users *identity.Registry, args []string) (*identity.User, string) {
	u := users.Lookup(args[0])
	body := ""
	if len(args) > 5 {
		body = markup.StripHTML(strings.Join(args[5:], ":"))
	}
	return u, body
}
