package session

import (
	"context"
	"slices"
	"sync"

	"github.com/luciancaetano/roomlink"
	"github.com/luciancaetano/roomlink/internal/identity"
	"github.com/luciancaetano/roomlink/internal/metrics"
	"github.com/luciancaetano/roomlink/internal/transport"
)

// AnonPM sends private messages without an account. Every correspondent
// gets a separate connection, opened on the first message to them.
type AnonPM struct {
	host Host

	mu    sync.Mutex
	links map[string]*anonLink
}

var _ roomlink.PrivateMessenger = (*AnonPM)(nil)

// NewAnonPM creates an anonymous messenger. Links are dialled on first use.
func NewAnonPM(host Host) *AnonPM {
	return &AnonPM{
		host:  host,
		links: make(map[string]*anonLink),
	}
}

func (a *AnonPM) Name() string {
	return "anonpm"
}

// Connected reports whether any correspondent link is up.
func (a *AnonPM) Connected() bool {
	for _, l := range a.snapshot() {
		if l.Connected() {
			return true
		}
	}
	return false
}

// Disconnect closes every link, firing OnAnonPMDisconnect for each.
func (a *AnonPM) Disconnect() {
	for _, l := range a.snapshot() {
		l.close()
	}
}

// Close drops every link without firing events.
func (a *AnonPM) Close() {
	a.mu.Lock()
	links := a.links
	a.links = make(map[string]*anonLink)
	a.mu.Unlock()
	for _, l := range links {
		l.teardown()
	}
}

// Ping sends a keepalive on every open link.
func (a *AnonPM) Ping() {
	for _, l := range a.snapshot() {
		l.ping()
	}
}

// Message queues body on the link to user, dialling it if needed.
func (a *AnonPM) Message(user *identity.User, body string) {
	if user == nil {
		return
	}

	a.mu.Lock()
	l, ok := a.links[user.Name()]
	if !ok {
		l = newAnonLink(a, user)
		a.links[user.Name()] = l
	}
	a.mu.Unlock()

	if !ok {
		a.host.Dial(l)
	}
	l.send("msg", user.Name(), body)
}

// Correspondents returns the users with an open or pending link.
func (a *AnonPM) Correspondents() []*identity.User {
	links := a.snapshot()
	out := make([]*identity.User, 0, len(links))
	for _, l := range links {
		out = append(out, l.user)
	}
	return out
}

func (a *AnonPM) String() string {
	return "<AnonPM>"
}

func (a *AnonPM) snapshot() []*anonLink {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.links))
	for name := range a.links {
		names = append(names, name)
	}
	slices.Sort(names)
	out := make([]*anonLink, 0, len(names))
	for _, name := range names {
		out = append(out, a.links[name])
	}
	return out
}

func (a *AnonPM) remove(l *anonLink) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.links[l.user.Name()] != l {
		return false
	}
	delete(a.links, l.user.Name())
	return true
}

// anonLink is the connection to one anonymous correspondent.
type anonLink struct {
	link

	pm   *AnonPM
	user *identity.User
}

var _ Endpoint = (*anonLink)(nil)

func newAnonLink(pm *AnonPM, user *identity.User) *anonLink {
	l := &anonLink{pm: pm, user: user}
	l.link.init(metrics.KindAnonPM, user.Name(), pm.host, pm, l.handshake, l.ping)
	l.handle("mhs", 0, l.onHandshake)
	l.handle("msg", 1, l.onMessage)
	return l
}

func (l *anonLink) handshake() []string {
	return []string{"mhs", "mini", "unknown", l.user.Name()}
}

func (l *anonLink) Address() (string, int) {
	s := l.host.Settings()
	return s.AnonPMHost, s.PMPort
}

func (l *anonLink) Prepare(context.Context) error {
	return nil
}

func (l *anonLink) Attach(conn transport.Conn) {
	l.link.attach(conn)
}

func (l *anonLink) DialFailed(err error) {
	l.logger.Warn().Err(err).Msg("connect failed")
	l.host.Metrics().ConnectFailed(l.kind)
	l.close()
}

func (l *anonLink) Lost(conn transport.Conn, err error) {
	if !l.current(conn) {
		return
	}
	l.logger.Debug().Err(err).Msg("connection lost")
	l.close()
}

// close tears the link down and forgets it. The event fires once.
func (l *anonLink) close() {
	l.teardown()
	if !l.pm.remove(l) {
		return
	}
	pm := l.pm
	l.emit("OnAnonPMDisconnect", func(h roomlink.Handler) { h.OnAnonPMDisconnect(pm, l.user) }, l.user)
}

func (l *anonLink) ping() {
	l.send("")
	pm := l.pm
	l.emit("OnPMPing", func(h roomlink.Handler) { h.OnPMPing(pm) })
}

// onHandshake handles mhs:name:online|offline.
func (l *anonLink) onHandshake([]string) {
	l.unlock()
}

func (l *anonLink) onMessage(args []string) {
	u, body := parsePrivateMessage(l.host.Users(), args)
	if u == nil {
		return
	}
	pm := l.pm
	l.emit("OnPMMessage", func(h roomlink.Handler) { h.OnPMMessage(pm, u, body) }, u, body)
}
