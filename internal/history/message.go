package history

import (
	"sync"
	"time"

	"github.com/luciancaetano/roomlink/internal/identity"
)

// State is the lifecycle position of a message.
type State int

const (
	// Pending messages wait for the server to confirm storage.
	Pending State = iota
	// Attached messages carry a permanent id and sit in a room's history.
	Attached
	// Detached messages were deleted or evicted from history.
	Detached
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Attached:
		return "attached"
	case Detached:
		return "detached"
	default:
		return "unknown"
	}
}

// Message is a single room chat message.
// The exported fields are set when the broadcast is parsed and never change.
type Message struct {
	// TransientID is the server's submit-time id. History replays carry
	// only the stored id, so there it equals ID.
	TransientID string

	Time      time.Time
	User      *identity.User
	Body      string
	Raw       string
	IP        string
	Channel   string
	UnID      string
	PUID      string
	NameColor string
	FontColor string
	FontFace  string
	FontSize  int
	Room      string

	mu    sync.RWMutex
	id    string
	state State
}

// ID returns the permanent id, empty while the message is pending.
func (m *Message) ID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.id
}

// State returns the lifecycle position of the message.
func (m *Message) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// attach assigns the permanent id. It reports false if the message has
// already left the pending state.
func (m *Message) attach(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Pending {
		return false
	}
	m.id = id
	m.state = Attached
	return true
}

func (m *Message) detach() {
	m.mu.Lock()
	m.state = Detached
	m.mu.Unlock()
}
