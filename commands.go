package roomlink

// Message channels.
const (
	ChannelWhite = "0"
	ChannelRed   = "256"
	ChannelBlue  = "2048"
	ChannelMod   = "32768"
)

// BigMessagePolicy selects what Room.Message does with text longer than the maximum length.
type BigMessagePolicy int

const (
	// BigMessageMultiple sends every chunk as its own message
	BigMessageMultiple BigMessagePolicy = iota
	// BigMessageCut sends only the first chunk
	BigMessageCut
)

// UserlistMode selects the source of Room.UserList.
type UserlistMode int

const (
	// UserlistRecent lists the senders of recent messages
	UserlistRecent UserlistMode = iota
	// UserlistAll lists every participant
	UserlistAll
)

// Privilege levels returned by Room.Level.
const (
	LevelNone  = 0
	LevelMod   = 1
	LevelOwner = 2
)

// Standard error messages
const (
	// Manager errors
	ErrManagerAlreadyRunning = "manager already running"
	ErrManagerNotRunning     = "manager not running"

	// Connection errors
	ErrConnectionClosed = "connection is closed"
	ErrDialFailed       = "failed to connect"
	ErrAuthFailed       = "authentication failed"
	ErrNoCredentials    = "private messages need a name and password"
)
