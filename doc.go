// Package roomlink is a client library for a text-framed chat service with
// sharded rooms and private messaging.
//
// A single Manager holds any number of room connections plus one private
// message session, and drives all of them from one event loop. Your code
// reacts to events by implementing Handler (embed NopHandler for the
// events you ignore) and acts through the Room, PM and Manager interfaces.
//
// # Architecture
//
// Each room name maps deterministically to one server shard. Every
// connection runs its own handshake, keepalive and command dispatch,
// and every frame it decodes is handled on the manager's loop goroutine.
// Handler callbacks therefore never run concurrently with each other.
//
// Participants are tracked in a process-wide identity registry: the same
// *User is shared by every room and message that mentions a name.
//
// # Quick Start
//
//	import (
//	    "github.com/luciancaetano/roomlink"
//	    "github.com/luciancaetano/roomlink/client"
//	)
//
//	type echo struct{ roomlink.NopHandler }
//
//	func (echo) OnMessage(room roomlink.Room, user *roomlink.User, msg *roomlink.Message) {
//	    room.Message(user.Name()+" said "+msg.Body, false, roomlink.ChannelWhite)
//	}
//
//	func (echo) OnPMMessage(pm roomlink.PrivateMessenger, user *roomlink.User, body string) {
//	    pm.Message(user, body)
//	}
//
//	cfg := client.NewConfig("botname", "password", true)
//	mgr := client.New(cfg, echo{})
//	mgr.JoinRoom("lobby")
//	if err := mgr.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	mgr.Wait()
//
// # Protocol Format
//
// Frames are colon-separated fields terminated by a NUL byte. Every frame
// after the first on a connection carries CRLF before the NUL:
//
//	bauth:lobby:1234567890123456:botname:password\x00
//	bm:tl2r:0:<n000/>hello\r\n\x00
//
// The same frames travel over plain TCP or as WebSocket text messages.
//
// # Rate Limiting
//
// Servers flood-ban clients that write too fast. Each connection can
// throttle its own writes with a token bucket:
//
//	cfg.RateLimit = client.DefaultRateLimitConfig() // 5 frames/s, burst 10
//	cfg.RateLimit = client.NoRateLimit()
//
// # Timers and Deferred Work
//
// SetTimeout and SetInterval schedule callbacks on the loop. Defer runs
// slow work on its own goroutine and delivers the result back on the
// loop. A panic in a timer callback stops the manager, and Wait returns it.
package roomlink
