package session

import (
	"slices"
	"strings"
	"testing"

	"github.com/luciancaetano/roomlink"
	"github.com/luciancaetano/roomlink/internal/history"
)

const (
	okPlain   = "ok:owner:1234567890123456:M:bot:1700000000.5:1.2.3.4:"
	okAsMod   = "ok:owner:1234567890123456:M:bot:1700000000.5:1.2.3.4:bot,8;helper,16"
	okAsOwner = "ok:bot:1234567890123456:M:bot:1700000000.5:1.2.3.4:"
)

func TestAnonID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		n    string
		puid string
		want string
	}{
		{name: "digit sum", n: "1234", puid: "xxxx5678", want: "6802"},
		{name: "default fragment", n: "", puid: "00000000", want: "5504"},
		{name: "non digit", n: "12a4", puid: "00005678", want: "NNNN"},
		{name: "short puid", n: "1234", puid: "123", want: "NNNN"},
		{name: "short fragment", n: "12", puid: "00005678", want: "NNNN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := AnonID(tt.n, tt.puid); got != tt.want {
				t.Errorf("AnonID(%q, %q) = %q, want %q", tt.n, tt.puid, got, tt.want)
			}
		})
	}
}

func TestServerFragment(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"1700001234.56": "1234",
		"1700001234":    "1234",
		"12.5":          "12",
	}
	for in, want := range tests {
		if got := serverFragment(in); got != want {
			t.Errorf("serverFragment(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRoomHandshakeAndBacklog(t *testing.T) {
	t.Parallel()

	host := newFakeHost("bot", "secret")
	r := NewRoom("Lobby", host)
	if r.Name() != "lobby" {
		t.Fatalf("Name() = %q, want lobby", r.Name())
	}

	r.RawMessage("early", roomlink.ChannelWhite)

	conn := newFakeConn("c1")
	r.Attach(conn)

	conn.mu.Lock()
	first := string(conn.sent[0])
	n := len(conn.sent)
	conn.mu.Unlock()

	want := "bauth:lobby:" + r.UID() + ":bot:secret\x00"
	if first != want {
		t.Fatalf("first frame = %q, want %q", first, want)
	}
	if n != 1 {
		t.Fatalf("sent %d frames before auth, want 1", n)
	}
	if r.State() != AwaitingAuth {
		t.Fatalf("state = %v, want awaiting_auth", r.State())
	}

	feed(r, conn, okPlain, "inited")

	got := conn.commands()
	wantCmds := []string{"bauth", "bm", "g_participants", "getpremium", "blocklist", "blocklist"}
	if !slices.Equal(got, wantCmds) {
		t.Fatalf("commands = %v, want %v", got, wantCmds)
	}
	if r.CurrentName() != "bot" || r.BotName() != "bot" {
		t.Errorf("names = %q/%q, want bot", r.CurrentName(), r.BotName())
	}
	if r.Owner().Name() != "owner" {
		t.Errorf("owner = %v, want owner", r.Owner())
	}
	if host.handler.count("OnConnect") != 1 {
		t.Errorf("OnConnect fired %d times, want 1", host.handler.count("OnConnect"))
	}
	if len(host.tasks) != 1 {
		t.Fatalf("keepalive tasks = %d, want 1", len(host.tasks))
	}
}

func TestRoomAnonymousLogin(t *testing.T) {
	t.Parallel()

	host := newFakeHost("", "")
	r := NewRoom("lobby", host)
	conn := newFakeConn("c1")
	r.Attach(conn)

	if got := conn.commands(); !slices.Equal(got, []string{"bauth"}) {
		t.Fatalf("commands = %v", got)
	}
	if f := conn.frames()[0]; len(f) != 2 {
		t.Fatalf("anonymous handshake = %v, want bauth:lobby", f)
	}

	feed(r, conn, "ok:owner:5678901234567890:N::1700001234.5:1.2.3.4:", "inited")

	// 1234 from the server time plus 9012 from the session id.
	if got := r.CurrentName(); got != "!anon0246" {
		t.Errorf("CurrentName() = %q, want !anon0246", got)
	}
	if got := r.BotName(); got != "!anon0246" {
		t.Errorf("BotName() = %q, want !anon0246", got)
	}
	if got := host.Self().NameColor(); got != "1234" {
		t.Errorf("self name color = %q, want 1234", got)
	}
}

func TestRoomTemporaryName(t *testing.T) {
	t.Parallel()

	host := newFakeHost("guest", "")
	r, conn := joinRoom(t, host, "ok:owner:5678901234567890:N::1700001234.5:1.2.3.4:")

	frames := conn.frames()
	if frames[1].Command() != "blogin" || frames[1].Args()[0] != "guest" {
		t.Errorf("second frame = %v, want blogin:guest", frames[1])
	}
	if r.BotName() != "#guest" {
		t.Errorf("BotName() = %q, want #guest", r.BotName())
	}
}

func TestRoomLoginFail(t *testing.T) {
	t.Parallel()

	host := newFakeHost("bot", "wrong")
	r := NewRoom("lobby", host)
	conn := newFakeConn("c1")
	r.Attach(conn)
	feed(r, conn, "ok:owner:1234567890123456:C:bot:1700000000.5:1.2.3.4:")

	if got := host.handler.names(); !slices.Equal(got, []string{"OnLoginFail", "OnDisconnect"}) {
		t.Errorf("events = %v", got)
	}
	if !conn.isClosed() {
		t.Error("connection still open")
	}
	if len(host.forgotten) != 1 {
		t.Errorf("forgotten = %d rooms, want 1", len(host.forgotten))
	}
	if !host.tasks[0].isCancelled() {
		t.Error("keepalive not cancelled")
	}
}

func TestRoomDenied(t *testing.T) {
	t.Parallel()

	host := newFakeHost("bot", "secret")
	r := NewRoom("lobby", host)
	conn := newFakeConn("c1")
	r.Attach(conn)
	feed(r, conn, "denied")

	if host.handler.count("OnConnectFail") != 1 {
		t.Errorf("events = %v", host.handler.names())
	}
	if r.State() != Disconnected {
		t.Errorf("state = %v, want disconnected", r.State())
	}
}

func TestMessageChunking(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		policy roomlink.BigMessagePolicy
		want   []int
	}{
		{name: "multiple", policy: roomlink.BigMessageMultiple, want: []int{700, 700, 700, 400}},
		{name: "cut", policy: roomlink.BigMessageCut, want: []int{700}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			host := newFakeHost("bot", "secret")
			host.settings.BigMessage = tt.policy
			r, conn := joinRoom(t, host, okPlain)
			conn.reset()

			r.Message(strings.Repeat("a", 2500), false, "")

			var got []int
			for _, f := range conn.frames() {
				if f.Command() != "bm" {
					t.Fatalf("unexpected frame %v", f)
				}
				got = append(got, strings.Count(f.String(), "a"))
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("chunk sizes = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMessageDecoration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		login string
		ok    string
		text  string
		html  bool
		want  string
	}{
		{
			name:  "named escapes text",
			login: "bot",
			ok:    okPlain,
			text:  "a <b>\nc  ",
			want:  `bm:tl2r:0:<f x12000="0"><n000/>a &lt;b&gt;</f></p><p><f x12000="0">c`,
		},
		{
			name:  "named html",
			login: "bot",
			ok:    okPlain,
			text:  "<b>x</b>",
			html:  true,
			want:  `bm:tl2r:0:<f x12000="0"><n000/><b>x</b>`,
		},
		{
			name: "anonymous has no font",
			ok:   "ok:owner:5678901234567890:N::1700001234.5:1.2.3.4:",
			text: "hi",
			want: "bm:tl2r:0:<n1234/>hi",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			password := ""
			if tt.login != "" {
				password = "secret"
			}
			host := newFakeHost(tt.login, password)
			r, conn := joinRoom(t, host, tt.ok)
			conn.reset()

			r.Message(tt.text, tt.html, "")

			frames := conn.frames()
			if len(frames) != 1 {
				t.Fatalf("sent %d frames, want 1", len(frames))
			}
			if got := frames[0].String(); got != tt.want {
				t.Errorf("frame = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSilentRoomDropsMessages(t *testing.T) {
	t.Parallel()

	host := newFakeHost("bot", "secret")
	r, conn := joinRoom(t, host, okAsMod)
	conn.reset()

	r.SetSilent(true)
	r.Message("hello", false, "")
	r.RawMessage("hello", "")
	r.RequestBanlist()

	if got := conn.commands(); !slices.Equal(got, []string{"blocklist"}) {
		t.Errorf("commands = %v, want only blocklist", got)
	}
}

// sendMessage broadcasts and acknowledges one message from name.
func sendMessage(r *Room, conn *fakeConn, name, tid, pid, body string) {
	feed(r, conn,
		"b:1700000000.25:"+name+"::abcd1234:unid-"+name+":"+tid+":10.0.0.1:0::<nF00/><f x11333=\"1\">"+body,
		"u:"+tid+":"+pid,
	)
}

func TestMessageAttachFlow(t *testing.T) {
	t.Parallel()

	host := newFakeHost("bot", "secret")
	r, conn := joinRoom(t, host, okPlain)

	feed(r, conn, "b:1700000000.25:Alice::abcd1234:unid1:T1:10.0.0.1:0::<nF00/><f x11333=\"1\">hello &amp; bye")
	if len(r.History()) != 0 {
		t.Fatal("message in history before acknowledgement")
	}
	if host.handler.count("OnMessage") != 0 {
		t.Fatal("OnMessage fired before acknowledgement")
	}

	feed(r, conn, "u:T1:P1", "u:T9:P9")

	hist := r.History()
	if len(hist) != 1 {
		t.Fatalf("history length = %d, want 1", len(hist))
	}
	msg := hist[0]
	if msg.ID() != "P1" || msg.State() != history.Attached {
		t.Errorf("id/state = %q/%v, want P1/attached", msg.ID(), msg.State())
	}
	if msg.TransientID != "T1" {
		t.Errorf("TransientID = %q, want T1", msg.TransientID)
	}
	if msg.Body != "hello & bye" {
		t.Errorf("Body = %q", msg.Body)
	}
	if msg.FontSize != 11 || msg.FontColor != "333" || msg.FontFace != "1" {
		t.Errorf("font = %d/%q/%q", msg.FontSize, msg.FontColor, msg.FontFace)
	}
	u := msg.User
	if u.Name() != "alice" || u.RawName() != "Alice" || u.NameColor() != "F00" || u.IP() != "10.0.0.1" {
		t.Errorf("user = %q/%q/%q/%q", u.Name(), u.RawName(), u.NameColor(), u.IP())
	}
	if u != host.users.Lookup("ALICE") {
		t.Error("message user is not the registry entry")
	}
	if host.handler.count("OnMessage") != 1 {
		t.Errorf("OnMessage fired %d times, want 1", host.handler.count("OnMessage"))
	}
	if r.LastMessage(u) != msg || r.LastMessage(nil) != msg {
		t.Error("LastMessage does not return the new message")
	}
}

func TestAnonymousSenderNames(t *testing.T) {
	t.Parallel()

	host := newFakeHost("bot", "secret")
	r, conn := joinRoom(t, host, okPlain)

	feed(r, conn,
		"b:1700000000:::00005678:u1:T1:10.0.0.1:0::<n1234/>anon",
		"u:T1:P1",
		"b:1700000000::Visitor:00005678:u2:T2:10.0.0.2:0::temp",
		"u:T2:P2",
	)

	hist := r.History()
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want 2", len(hist))
	}
	if got := hist[0].User.Name(); got != "#!anon6802" {
		t.Errorf("anonymous name = %q, want #!anon6802", got)
	}
	if got := hist[1].User.Name(); got != "#visitor" {
		t.Errorf("temporary name = %q, want #visitor", got)
	}
}

func TestHistoryReplay(t *testing.T) {
	t.Parallel()

	host := newFakeHost("bot", "secret")
	r := NewRoom("lobby", host)
	conn := newFakeConn("c1")
	r.Attach(conn)
	feed(r, conn,
		okPlain,
		"i:1700000002:bob::abcd1234:u1:P2:10.0.0.1:0::second",
		"i:1700000001:bob::abcd1234:u1:P1:10.0.0.1:0::first",
		"inited",
	)

	hist := r.History()
	if len(hist) != 2 || hist[0].ID() != "P1" || hist[1].ID() != "P2" {
		t.Fatalf("history = %v", hist)
	}
	want := []string{"OnConnect", "OnHistoryMessage", "OnHistoryMessage"}
	if got := host.handler.names(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	ev, _ := host.handler.last("OnHistoryMessage")
	if msg := ev.args[1].(*history.Message); msg.ID() != "P2" || msg.TransientID != "P2" {
		t.Errorf("last replayed = %q/%q, want P2/P2", msg.ID(), msg.TransientID)
	}
}

func TestDeleteFrames(t *testing.T) {
	t.Parallel()

	host := newFakeHost("bot", "secret")
	r, conn := joinRoom(t, host, okPlain)
	sendMessage(r, conn, "alice", "T1", "P1", "one")
	sendMessage(r, conn, "alice", "T2", "P2", "two")
	sendMessage(r, conn, "bob", "T3", "P3", "three")

	feed(r, conn, "delete:P1", "delete:P1")
	if host.handler.count("OnMessageDelete") != 1 {
		t.Fatalf("OnMessageDelete fired %d times, want 1", host.handler.count("OnMessageDelete"))
	}

	feed(r, conn, "deleteall:P2:P3:P404")
	if host.handler.count("OnMessageDelete") != 3 {
		t.Errorf("OnMessageDelete fired %d times, want 3", host.handler.count("OnMessageDelete"))
	}
	if len(r.History()) != 0 {
		t.Errorf("history length = %d, want 0", len(r.History()))
	}
}

func TestPrivilegeGating(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ok   string
		want []string
	}{
		{name: "none", ok: okPlain, want: nil},
		{
			name: "moderator",
			ok:   okAsMod,
			want: []string{"delmsg", "delmsg", "delallmsg", "block", "block"},
		},
		{
			name: "owner",
			ok:   okAsOwner,
			want: []string{"delmsg", "delmsg", "delallmsg", "block", "block", "clearall", "addmod", "removemod"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			host := newFakeHost("bot", "secret")
			r, conn := joinRoom(t, host, tt.ok)
			sendMessage(r, conn, "alice", "T1", "P1", "spam")
			conn.reset()

			alice := host.users.Lookup("alice")
			msg := r.LastMessage(alice)
			r.DeleteMessage(msg)
			r.DeleteUser(alice)
			r.ClearUser(alice)
			r.Ban(msg)
			r.BanUser(alice)
			r.ClearAll()
			r.AddMod(alice)
			r.RemoveMod(alice)

			if got := conn.commands(); !slices.Equal(got, tt.want) {
				t.Errorf("commands = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClearUserBlanksTemporaryNames(t *testing.T) {
	t.Parallel()

	host := newFakeHost("bot", "secret")
	r, conn := joinRoom(t, host, okAsMod)
	feed(r, conn, "b:1700000000::Visitor:00005678:unid9:T1:10.0.0.2:0::hey", "u:T1:P1")
	conn.reset()

	if !r.ClearUser(host.users.Lookup("#visitor")) {
		t.Fatal("ClearUser() = false")
	}
	if got := conn.frames()[0].String(); got != "delallmsg:unid9:10.0.0.2:" {
		t.Errorf("frame = %q", got)
	}
}

func TestModsDiff(t *testing.T) {
	t.Parallel()

	host := newFakeHost("bot", "secret")
	r, conn := joinRoom(t, host, "ok:owner:1234567890123456:M:bot:1700000000.5:1.2.3.4:a,1;b,2")

	feed(r, conn, "mods:b,2;c,4")

	want := []string{"OnConnect", "OnModAdd", "OnModRemove", "OnModChange"}
	if got := host.handler.names(); !slices.Equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	added, _ := host.handler.last("OnModAdd")
	if u := added.args[0].(*roomlink.User); u.Name() != "c" {
		t.Errorf("added = %q, want c", u.Name())
	}
	if got := r.ModNames(); !slices.Equal(got, []string{"b", "c"}) {
		t.Errorf("ModNames() = %v", got)
	}
	c := host.users.Lookup("c")
	if p, ok := r.Perms(c); !ok || p != 4 {
		t.Errorf("Perms(c) = %v, %v", p, ok)
	}
	if r.Level(c) != roomlink.LevelMod {
		t.Errorf("Level(c) = %d", r.Level(c))
	}
}

func TestParticipants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		unique bool
		joins  int
		leaves int
	}{
		{name: "every session", unique: false, joins: 2, leaves: 2},
		{name: "unique users", unique: true, joins: 1, leaves: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			host := newFakeHost("bot", "secret")
			host.settings.UniqueEvents = tt.unique
			r, conn := joinRoom(t, host, okPlain)

			feed(r, conn, "participant:1:s1:puid1:Alice:x")
			feed(r, conn, "participant:1:s2:puid1:alice:x")
			alice := host.users.Lookup("alice")
			if got := len(r.Users(roomlink.UserlistAll, false, 0)); got != 2 {
				t.Fatalf("sessions = %d, want 2", got)
			}
			if got := len(r.Users(roomlink.UserlistAll, true, 0)); got != 1 {
				t.Fatalf("unique users = %d, want 1", got)
			}
			if len(alice.RoomSessions("lobby")) != 2 {
				t.Errorf("room sessions = %v", alice.RoomSessions("lobby"))
			}

			feed(r, conn, "participant:0:s1:puid1:alice:x", "participant:0:s2:puid1:alice:x")

			if got := host.handler.count("OnJoin"); got != tt.joins {
				t.Errorf("OnJoin fired %d times, want %d", got, tt.joins)
			}
			if got := host.handler.count("OnLeave"); got != tt.leaves {
				t.Errorf("OnLeave fired %d times, want %d", got, tt.leaves)
			}
			if len(r.Usernames()) != 0 {
				t.Errorf("Usernames() = %v", r.Usernames())
			}
		})
	}
}

func TestParticipantList(t *testing.T) {
	t.Parallel()

	host := newFakeHost("bot", "secret")
	r, conn := joinRoom(t, host, okPlain)

	feed(r, conn, "g_participants:s1:1700000000:p1:Alice:x;s2:1700000000:p2:None:x;s3:1700000000:p3:bob:x")

	if got := r.Usernames(); !slices.Equal(got, []string{"alice", "bob"}) {
		t.Fatalf("Usernames() = %v", got)
	}
	if r.FindUser("ali") != host.users.Lookup("alice") {
		t.Error("FindUser(ali) did not match alice")
	}
	feed(r, conn, "participant:1:s4:p4:alina:x")
	if r.FindUser("ali") != nil {
		t.Error("ambiguous FindUser returned a user")
	}

	r.Disconnect()
	if len(host.users.Lookup("alice").Rooms()) != 0 {
		t.Error("sessions kept after disconnect")
	}
}

func TestFloodEvents(t *testing.T) {
	t.Parallel()

	host := newFakeHost("bot", "secret")
	r, conn := joinRoom(t, host, okPlain)
	feed(r, conn, "show_fw", "show_tb:900", "tb:300", "tb")

	want := []string{"OnConnect", "OnFloodWarning", "OnFloodBan", "OnFloodBanRepeat", "OnFloodBanRepeat"}
	if got := host.handler.names(); !slices.Equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	ev, _ := host.handler.last("OnFloodBan")
	if ev.args[0].(int) != 900 {
		t.Errorf("ban seconds = %v, want 900", ev.args[0])
	}
	ev, _ = host.handler.last("OnFloodBanRepeat")
	if ev.args[0].(int) != 0 {
		t.Errorf("repeat seconds = %v, want 0", ev.args[0])
	}
}

func TestUserCount(t *testing.T) {
	t.Parallel()

	host := newFakeHost("bot", "secret")
	r, conn := joinRoom(t, host, okPlain)
	feed(r, conn, "n:1f", "n:zz")

	if r.UserCount() != 31 {
		t.Errorf("UserCount() = %d, want 31", r.UserCount())
	}
	if host.handler.count("OnUserCountChange") != 1 {
		t.Errorf("OnUserCountChange fired %d times, want 1", host.handler.count("OnUserCountChange"))
	}
}

func TestBanlists(t *testing.T) {
	t.Parallel()

	host := newFakeHost("bot", "secret")
	r, conn := joinRoom(t, host, okAsMod)

	feed(r, conn, "blocklist:unid1:1.1.1.1:Spammer:1700000000:helper;unid2:2.2.2.2::1700000000:helper;broken")
	spammer := host.users.Lookup("spammer")
	if got := r.BanList(); len(got) != 1 || got[0] != spammer {
		t.Fatalf("BanList() = %v", got)
	}
	rec, ok := r.BanRecord(spammer)
	if !ok || rec.IP != "1.1.1.1" || rec.Source.Name() != "helper" || rec.Time.Unix() != 1700000000 {
		t.Errorf("BanRecord = %+v, %v", rec, ok)
	}

	conn.reset()
	if !r.Unban(spammer) {
		t.Fatal("Unban() = false")
	}
	if got := conn.frames()[0].String(); got != "removeblock:unid1:1.1.1.1:spammer" {
		t.Errorf("frame = %q", got)
	}
	if r.Unban(host.users.Lookup("nobody")) {
		t.Error("Unban of unknown user = true")
	}

	feed(r, conn, "unblocked:unid1:1.1.1.1:spammer:helper:1700000100", "blocked:unid3:3.3.3.3:troll:helper:1700000200")

	if _, ok := r.BanRecord(spammer); ok {
		t.Error("spammer still banned")
	}
	unbans := r.UnbanList()
	if len(unbans) != 1 || unbans[0].Target != spammer {
		t.Errorf("UnbanList() = %v", unbans)
	}
	if got := r.BanList(); len(got) != 1 || got[0].Name() != "troll" {
		t.Errorf("BanList() = %v", got)
	}
	want := []string{"OnConnect", "OnBanlistUpdate", "OnUnban", "OnBan"}
	if got := host.handler.names(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestMalformedAndUnknownFramesIgnored(t *testing.T) {
	t.Parallel()

	host := newFakeHost("bot", "secret")
	r, conn := joinRoom(t, host, okPlain)
	feed(r, conn, "brandnew:1:2", "u", "participant:1", "b:1:2")

	if got := host.handler.names(); !slices.Equal(got, []string{"OnConnect"}) {
		t.Errorf("events = %v", got)
	}
	if r.State() != Authenticated {
		t.Errorf("state = %v", r.State())
	}
}

func TestReconnectIgnoresStaleConnection(t *testing.T) {
	t.Parallel()

	host := newFakeHost("bot", "secret")
	r, old := joinRoom(t, host, okPlain)
	uid := r.UID()

	r.Reconnect()
	if !old.isClosed() {
		t.Fatal("old connection still open")
	}
	if len(host.forgotten) != 0 {
		t.Fatal("reconnecting room was forgotten")
	}
	if len(host.dialed) != 1 || host.dialed[0] != Endpoint(r) {
		t.Fatalf("dialed = %v", host.dialed)
	}
	if r.State() != Connecting {
		t.Fatalf("state = %v, want connecting", r.State())
	}
	if r.UID() == uid {
		t.Error("session id not regenerated")
	}

	fresh := newFakeConn("c2")
	r.Attach(fresh)
	feed(r, fresh, okPlain, "inited")
	feed(r, old, "n:ff")
	r.Lost(old, nil)

	if r.UserCount() != 0 {
		t.Errorf("stale frame changed user count to %d", r.UserCount())
	}
	if !r.Connected() {
		t.Fatal("stale loss disconnected the room")
	}
	if host.handler.count("OnReconnect") != 1 {
		t.Errorf("OnReconnect fired %d times, want 1", host.handler.count("OnReconnect"))
	}

	r.Lost(fresh, nil)
	if r.Connected() || host.handler.count("OnDisconnect") != 1 {
		t.Error("loss of the live connection did not disconnect")
	}
	r.Disconnect()
	if host.handler.count("OnDisconnect") != 1 {
		t.Error("second Disconnect fired OnDisconnect again")
	}
}

func TestRepeatedReconnectKeepsOneConnection(t *testing.T) {
	t.Parallel()

	host := newFakeHost("bot", "secret")
	r, first := joinRoom(t, host, okPlain)

	r.Reconnect()
	r.Reconnect()
	if len(host.dialed) != 1 {
		t.Fatalf("dials queued = %d, want 1", len(host.dialed))
	}
	if !first.isClosed() {
		t.Fatal("first connection still open")
	}

	// A duplicate dial completing must replace, not leak, the earlier conn.
	second, third := newFakeConn("c2"), newFakeConn("c3")
	r.Attach(second)
	r.Attach(third)
	if !second.isClosed() {
		t.Error("superseded connection left open")
	}
	if third.isClosed() || !r.Connected() {
		t.Fatal("live connection closed")
	}

	live := 0
	for _, task := range host.tasks {
		if !task.isCancelled() {
			live++
		}
	}
	if live != 1 {
		t.Errorf("uncancelled keepalives = %d, want 1", live)
	}

	r.Disconnect()
	for i, task := range host.tasks {
		if !task.isCancelled() {
			t.Errorf("keepalive %d still running after Disconnect", i)
		}
	}
	if !third.isClosed() {
		t.Error("connection open after Disconnect")
	}
}

func TestReconnectWhileDialling(t *testing.T) {
	t.Parallel()

	host := newFakeHost("bot", "secret")
	r := NewRoom("lobby", host)

	r.Reconnect()
	if len(host.dialed) != 0 {
		t.Fatalf("dials queued = %d while a dial was pending", len(host.dialed))
	}

	conn := newFakeConn("c1")
	r.Attach(conn)
	feed(r, conn, okPlain, "inited")
	if r.State() != Authenticated {
		t.Fatalf("state = %v, want authenticated", r.State())
	}
	if len(host.tasks) != 1 {
		t.Errorf("keepalives = %d, want 1", len(host.tasks))
	}
}

func TestSendAfterDisconnectDropped(t *testing.T) {
	t.Parallel()

	host := newFakeHost("bot", "secret")
	r, conn := joinRoom(t, host, okPlain)
	r.Disconnect()
	conn.reset()

	r.Message("late", false, "")
	r.Ping()

	if len(conn.frames()) != 0 {
		t.Errorf("frames after disconnect: %v", conn.commands())
	}
}

func TestAttachAfterDisconnectClosesConn(t *testing.T) {
	t.Parallel()

	host := newFakeHost("bot", "secret")
	r := NewRoom("lobby", host)
	r.Disconnect()

	conn := newFakeConn("c1")
	r.Attach(conn)
	if !conn.isClosed() {
		t.Error("connection dialled for a closed room was kept")
	}
	if r.Connected() {
		t.Error("room connected after Disconnect")
	}
}

func TestUserListRecent(t *testing.T) {
	t.Parallel()

	host := newFakeHost("bot", "secret")
	host.settings.UserlistMode = roomlink.UserlistRecent
	host.settings.UserlistUnique = true
	host.settings.UserlistMemory = 2
	r, conn := joinRoom(t, host, okPlain)

	sendMessage(r, conn, "alice", "T1", "P1", "1")
	sendMessage(r, conn, "bob", "T2", "P2", "2")
	sendMessage(r, conn, "bob", "T3", "P3", "3")

	got := names(r.UserList())
	if !slices.Equal(got, []string{"bob"}) {
		t.Errorf("UserList() = %v, want [bob]", got)
	}
}
