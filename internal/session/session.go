// Package session implements the per-connection protocol state machines:
// rooms, the authenticated private-message session and anonymous
// private-message links.
//
// Every connection shares the same link core, which owns the frame codec,
// the handshake write lock, keepalive and command dispatch. The manager
// drives them through the Endpoint interface and provides shared services
// through Host.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/luciancaetano/roomlink"
	"github.com/luciancaetano/roomlink/internal/identity"
	"github.com/luciancaetano/roomlink/internal/metrics"
	"github.com/luciancaetano/roomlink/internal/shard"
	"github.com/luciancaetano/roomlink/internal/transport"
)

// Settings are the manager-wide options every connection reads.
// They must not change after the manager starts.
type Settings struct {
	Name     string
	Password string

	RoomPort   int
	PMHost     string
	PMPort     int
	AnonPMHost string
	Shards     *shard.Selector

	PingDelay time.Duration

	MaxLength  int
	BigMessage roomlink.BigMessagePolicy
	MaxHistory int

	UserlistMode   roomlink.UserlistMode
	UserlistUnique bool
	UserlistMemory int
	// UniqueEvents suppresses join and leave events for users who keep
	// another session open in the room.
	UniqueEvents bool
}

// Host is implemented by the manager.
type Host interface {
	Handler() roomlink.Handler
	Users() *identity.Registry
	Self() *identity.User
	Settings() *Settings
	Authenticator() roomlink.Authenticator
	Metrics() *metrics.Metrics
	Logger() zerolog.Logger

	// Context bounds blocking writes to connections.
	Context() context.Context

	SetInterval(d time.Duration, fn func()) roomlink.Task

	// Dial queues ep on the join worker.
	Dial(ep Endpoint)
	// Forget removes a closed room from the manager's table.
	Forget(r *Room)
}

// Endpoint is what the manager needs to establish and feed a connection.
// Attach, DialFailed, Feed and Lost are called on the loop goroutine;
// Address and Prepare on the join worker.
type Endpoint interface {
	Kind() string
	Address() (host string, port int)

	// Prepare does blocking work that must finish before dialling.
	Prepare(ctx context.Context) error

	// Attach installs a freshly dialled connection and sends the handshake.
	Attach(conn transport.Conn)
	DialFailed(err error)

	// Feed hands over bytes read from conn. Chunks from a connection that
	// is no longer attached are ignored.
	Feed(conn transport.Conn, data []byte)
	// Lost reports that reading from conn stopped.
	Lost(conn transport.Conn, err error)
}

// State is the position of a connection in its lifecycle.
type State int

const (
	Disconnected State = iota
	Connecting
	AwaitingAuth
	Authenticated
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case AwaitingAuth:
		return "awaiting_auth"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

var errAuth = errors.New(roomlink.ErrAuthFailed)
