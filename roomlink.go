package roomlink

import (
	"context"
	"time"

	"github.com/luciancaetano/roomlink/internal/history"
	"github.com/luciancaetano/roomlink/internal/identity"
)

// User is the shared record for one participant name. Every room and
// message referring to the same name points at the same *User.
type User = identity.User

// Message is a single room chat message.
type Message = history.Message

// Perm is a per-room moderator permission mask.
type Perm = identity.Perm

// Manager owns every room connection, the private-message session, the
// timer tasks and the event loop that drives them.
//
// All Handler callbacks run on the manager's loop goroutine, one at a time.
//
// Example usage:
//
//	import "github.com/luciancaetano/roomlink/client"
//
//	type bot struct{ roomlink.NopHandler }
//
//	func (bot) OnMessage(room roomlink.Room, user *roomlink.User, msg *roomlink.Message) {
//	    if msg.Body == "!ping" {
//	        room.Message("pong", false, roomlink.ChannelWhite)
//	    }
//	}
//
//	mgr := client.New(client.NewConfig("botname", "secret", true), bot{})
//	mgr.JoinRoom("lobby")
//	mgr.Start(ctx)
//	mgr.Wait()
type Manager interface {
	// Start fires OnInit, launches the loop and the join worker, then fires
	// OnFinishStartup. Rooms queued with JoinRoom before Start are joined
	// once the loop runs.
	//
	// Returns an error if the manager is already running.
	Start(ctx context.Context) error

	// Stop disconnects every connection and stops the loop.
	// Cancelling ctx stops waiting for the loop to exit.
	Stop(ctx context.Context) error

	// Wait blocks until the loop exits. It returns the fatal error that
	// stopped it, such as a *scheduler.PanicError from a task callback,
	// or nil after Stop.
	Wait() error

	// JoinRoom queues a connection to the named room. Names are case-insensitive;
	// joining a room already held is a no-op.
	JoinRoom(name string)

	// LeaveRoom disconnects from the named room and fires OnDisconnect.
	LeaveRoom(name string)

	// Room returns the live connection to the named room.
	Room(name string) (Room, bool)

	// Rooms returns every live room connection, ordered by name.
	Rooms() []Room

	// RoomNames returns the names of every live room, sorted.
	RoomNames() []string

	// PM returns the private-message session, or nil when disabled.
	// It is a PM when logged in with a password and an anonymous
	// messenger otherwise.
	PM() PrivateMessenger

	// SetTimeout runs fn once on the loop after at least d.
	SetTimeout(d time.Duration, fn func()) Task

	// SetInterval runs fn on the loop at least every d.
	SetInterval(d time.Duration, fn func()) Task

	// Defer runs work on its own goroutine, then hands its result to
	// callback on the loop.
	//
	// Example:
	//
	//	mgr.Defer(func() any {
	//	    return lookupWeather(city)
	//	}, func(v any) {
	//	    room.Message(v.(string), false, roomlink.ChannelWhite)
	//	})
	Defer(work func() any, callback func(result any))

	EnableBg()
	DisableBg()
	EnableRecording()
	DisableRecording()

	// SetNameColor sets the 3-digit hex name color used for outgoing messages.
	SetNameColor(color string)
	// SetFontColor sets the 3-digit hex font color.
	SetFontColor(color string)
	SetFontFace(face string)
	// SetFontSize sets the font size, clamped to 9..22.
	SetFontSize(size int)

	// Self returns the bot's own identity.
	Self() *User
}

// Task is a pending timer callback.
type Task interface {
	Cancel()
}

// Connection is the part shared by rooms and private-message sessions.
type Connection interface {
	// Name returns the room name or the private-message session name.
	Name() string

	// Connected reports whether the connection is established.
	Connected() bool

	// Disconnect closes the connection and fires the matching disconnect event.
	Disconnect()
}

// Room is a live connection to one chat room.
//
// Moderation operations check the bot's level in the room first and do
// nothing when it is too low.
type Room interface {
	Connection

	// Login changes the posting name. An empty password sets a temporary name.
	Login(name, password string)
	Logout()
	Ping()

	// RawMessage sends body untouched. Silent rooms drop it.
	RawMessage(body, channel string)

	// Message escapes text unless html is set, splits it according to the
	// manager's size policy and sends each part wrapped in the bot's name
	// and font tags.
	Message(text string, html bool, channel string)

	SetBgMode(on bool)
	SetRecordingMode(on bool)

	// AddMod and RemoveMod require owner level.
	AddMod(user *User)
	RemoveMod(user *User)

	Flag(msg *Message)
	// FlagUser flags the user's last message and reports whether one was found.
	FlagUser(user *User) bool

	// DeleteMessage, DeleteUser, ClearUser, Ban, BanUser and Unban require moderator level.
	DeleteMessage(msg *Message)
	DeleteUser(user *User) bool
	ClearUser(user *User) bool
	// ClearAll requires owner level.
	ClearAll()
	Ban(msg *Message)
	BanUser(user *User) bool
	RawBan(name, ip, unid string)
	Unban(user *User) bool
	RawUnban(name, ip, unid string)
	RequestBanlist()
	RequestUnbanlist()

	// Level returns LevelOwner, LevelMod or LevelNone for user.
	Level(user *User) int
	// Perms returns the moderator mask of user in this room.
	Perms(user *User) (Perm, bool)

	// LastMessage returns the user's newest message in history, or the
	// newest message overall when user is nil.
	LastMessage(user *User) *Message

	// FindUser returns the only participant whose name contains substr.
	// It returns nil when no participant or more than one matches.
	FindUser(substr string) *User

	// UserList applies the manager's user-list mode.
	UserList() []*User
	// Users lists participants by mode. Recent mode returns the senders of
	// the last memory messages.
	Users(mode UserlistMode, unique bool, memory int) []*User
	Usernames() []string

	Owner() *User
	Mods() []*User
	ModNames() []string
	UserCount() int

	Silent() bool
	SetSilent(silent bool)

	BanList() []*User
	UnbanList() []BanRecord
	BanRecord(user *User) (BanRecord, bool)

	// History returns the room's attached messages, oldest first.
	History() []*Message

	BotName() string
	CurrentName() string
	Premium() bool

	// Reconnect drops the connection and joins again under a fresh session
	// id. The room stays registered with the manager throughout.
	Reconnect()
}

// BanRecord describes one entry in a room's ban or unban list.
type BanRecord struct {
	UnID   string
	IP     string
	Target *User
	Time   time.Time
	Source *User
}

// PrivateMessenger sends private messages, either through the
// authenticated PM session or through anonymous per-correspondent links.
type PrivateMessenger interface {
	Connection

	// Message sends body to user.
	Message(user *User, body string)
	Ping()
}

// PM is the authenticated private-message session.
type PM interface {
	PrivateMessenger

	AddContact(user *User)
	RemoveContact(user *User)
	Block(user *User)
	Unblock(user *User)
	// Track asks the server for the user's presence.
	Track(user *User)

	// CheckOnline reports whether user is online. known is false when
	// nothing has been heard about the user.
	CheckOnline(user *User) (online, known bool)

	// Idle returns the time user became idle: now when active and the
	// zero time when offline. known is false for unknown users.
	Idle(user *User) (since time.Time, known bool)

	Contacts() []*User
	Blocklist() []*User
}

// Authenticator exchanges credentials for a private-message session token.
type Authenticator interface {
	Authenticate(ctx context.Context, name, password string) (string, error)
}
