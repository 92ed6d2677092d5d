package roomlink

// Handler receives every event raised by the manager and its connections.
// Embed NopHandler to implement only the events you need.
//
// All methods are called on the manager's loop goroutine. A handler that
// blocks stalls every connection; use Manager.Defer for slow work.
type Handler interface {
	// OnInit is called by Start before the loop begins.
	OnInit()
	// OnFinishStartup is called by Start once the loop is running.
	OnFinishStartup()

	// OnConnect is called when the first handshake with a room completes.
	OnConnect(room Room)
	// OnReconnect is called when a later handshake with a room completes.
	OnReconnect(room Room)
	// OnConnectFail is called when a room cannot be reached or the server refuses it.
	OnConnectFail(room Room)
	OnDisconnect(room Room)
	// OnLoginFail is called when the server rejects the credentials; the room disconnects after.
	OnLoginFail(room Room)

	// OnFloodBan is called when flood banned, with the ban duration.
	OnFloodBan(room Room, seconds int)
	// OnFloodBanRepeat is called when sending while flood banned.
	OnFloodBanRepeat(room Room, seconds int)
	OnFloodWarning(room Room)

	OnMessageDelete(room Room, user *User, msg *Message)
	OnModChange(room Room)
	OnModAdd(room Room, user *User)
	OnModRemove(room Room, user *User)

	// OnMessage is called once a message is stored and has its permanent id.
	OnMessage(room Room, user *User, msg *Message)
	// OnHistoryMessage is called for each backlog message replayed on first connect.
	OnHistoryMessage(room Room, user *User, msg *Message)

	OnJoin(room Room, user *User, puid string)
	OnLeave(room Room, user *User, puid string)

	// OnRaw is called with every frame before it is parsed.
	OnRaw(conn Connection, raw string)
	// OnPing is called when a keepalive is sent.
	OnPing(room Room)
	OnUserCountChange(room Room)

	// OnBan is called when user bans target.
	OnBan(room Room, user, target *User)
	// OnUnban is called when user unbans target.
	OnUnban(room Room, user, target *User)
	OnBanlistUpdate(room Room)
	OnUnbanlistUpdate(room Room)

	OnPMConnect(pm PM)
	OnPMDisconnect(pm PM)
	// OnAnonPMDisconnect is called when the anonymous link to user closes.
	OnAnonPMDisconnect(pm PrivateMessenger, user *User)
	OnPMLoginFail(pm PM)
	OnPMPing(pm PrivateMessenger)
	OnPMMessage(pm PrivateMessenger, user *User, body string)
	// OnPMOfflineMessage delivers a message sent while the bot was offline.
	OnPMOfflineMessage(pm PM, user *User, body string)
	OnPMContactlistReceive(pm PM)
	OnPMBlocklistReceive(pm PM)
	OnPMContactAdd(pm PM, user *User)
	OnPMContactRemove(pm PM, user *User)
	OnPMBlock(pm PM, user *User)
	OnPMUnblock(pm PM, user *User)
	OnPMContactOnline(pm PM, user *User)
	OnPMContactOffline(pm PM, user *User)

	// OnEventCalled is called after every connection event with the event
	// name (the method name, e.g. "OnMessage") and its arguments.
	OnEventCalled(conn Connection, event string, args ...any)
}

// NopHandler implements Handler with empty methods.
type NopHandler struct{}

var _ Handler = NopHandler{}

func (NopHandler) OnInit()                                     {}
func (NopHandler) OnFinishStartup()                            {}
func (NopHandler) OnConnect(Room)                              {}
func (NopHandler) OnReconnect(Room)                            {}
func (NopHandler) OnConnectFail(Room)                          {}
func (NopHandler) OnDisconnect(Room)                           {}
func (NopHandler) OnLoginFail(Room)                            {}
func (NopHandler) OnFloodBan(Room, int)                        {}
func (NopHandler) OnFloodBanRepeat(Room, int)                  {}
func (NopHandler) OnFloodWarning(Room)                         {}
func (NopHandler) OnMessageDelete(Room, *User, *Message)       {}
func (NopHandler) OnModChange(Room)                            {}
func (NopHandler) OnModAdd(Room, *User)                        {}
func (NopHandler) OnModRemove(Room, *User)                     {}
func (NopHandler) OnMessage(Room, *User, *Message)             {}
func (NopHandler) OnHistoryMessage(Room, *User, *Message)      {}
func (NopHandler) OnJoin(Room, *User, string)                  {}
func (NopHandler) OnLeave(Room, *User, string)                 {}
func (NopHandler) OnRaw(Connection, string)                    {}
func (NopHandler) OnPing(Room)                                 {}
func (NopHandler) OnUserCountChange(Room)                      {}
func (NopHandler) OnBan(Room, *User, *User)                    {}
func (NopHandler) OnUnban(Room, *User, *User)                  {}
func (NopHandler) OnBanlistUpdate(Room)                        {}
func (NopHandler) OnUnbanlistUpdate(Room)                      {}
func (NopHandler) OnPMConnect(PM)                              {}
func (NopHandler) OnPMDisconnect(PM)                           {}
func (NopHandler) OnAnonPMDisconnect(PrivateMessenger, *User)  {}
func (NopHandler) OnPMLoginFail(PM)                            {}
func (NopHandler) OnPMPing(PrivateMessenger)                   {}
func (NopHandler) OnPMMessage(PrivateMessenger, *User, string) {}
func (NopHandler) OnPMOfflineMessage(PM, *User, string)        {}
func (NopHandler) OnPMContactlistReceive(PM)                   {}
func (NopHandler) OnPMBlocklistReceive(PM)                     {}
func (NopHandler) OnPMContactAdd(PM, *User)                    {}
func (NopHandler) OnPMContactRemove(PM, *User)                 {}
func (NopHandler) OnPMBlock(PM, *User)                         {}
func (NopHandler) OnPMUnblock(PM, *User)                       {}
func (NopHandler) OnPMContactOnline(PM, *User)                 {}
func (NopHandler) OnPMContactOffline(PM, *User)                {}
func (NopHandler) OnEventCalled(Connection, string, ...any)    {}
