package session

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/luciancaetano/roomlink"
	"github.com/luciancaetano/roomlink/internal/history"
	"github.com/luciancaetano/roomlink/internal/identity"
	"github.com/luciancaetano/roomlink/internal/markup"
)

func (r *Room) registerCommands() {
	r.handle("ok", 5, r.onOK)
	r.handle("denied", 0, r.onDenied)
	r.handle("inited", 0, r.onInited)
	r.handle("premium", 2, r.onPremium)
	r.handle("mods", 0, r.onMods)
	r.handle("b", 9, r.onBroadcast)
	r.handle("u", 2, r.onAck)
	r.handle("i", 9, r.onHistory)
	r.handle("g_participants", 0, r.onParticipants)
	r.handle("participant", 4, r.onParticipant)
	r.handle("show_fw", 0, r.onFloodWarning)
	r.handle("show_tb", 0, r.onFloodBan)
	r.handle("tb", 0, r.onFloodBanRepeat)
	r.handle("delete", 1, r.onDelete)
	r.handle("deleteall", 0, r.onDeleteAll)
	r.handle("n", 1, r.onUserCount)
	r.handle("blocklist", 0, r.onBanlist)
	r.handle("unblocklist", 0, r.onUnbanlist)
	r.handle("blocked", 5, r.onBlocked)
	r.handle("unblocked", 5, r.onUnblocked)
}

// onOK handles the handshake reply:
// owner:uid:login-status:name:server-time:ip:mods.
func (r *Room) onOK(args []string) {
	s := r.host.Settings()
	users := r.host.Users()

	switch {
	case args[2] == "N" && s.Name == "" && s.Password == "":
		n := serverFragment(args[4])
		name := "!anon" + AnonID(n, prefix(args[1], 8))
		r.mu.Lock()
		r.botName = name
		r.currentName = name
		r.mu.Unlock()
		r.host.Self().Update(identity.Fields{NameColor: n})
	case args[2] == "N" && s.Password == "":
		r.send("blogin", s.Name)
		r.mu.Lock()
		r.currentName = s.Name
		r.mu.Unlock()
	case args[2] != "M":
		r.emit("OnLoginFail", func(h roomlink.Handler) { h.OnLoginFail(r) })
		r.Disconnect()
		return
	}

	owner := users.Get(args[0], identity.Fields{
		Perm: &identity.RoomPerm{Room: r.name, Perm: identity.PermOwner},
	})
	var mods map[*identity.User]identity.Perm
	if len(args) > 6 {
		mods = r.parseMods(args[6:])
	}

	r.mu.Lock()
	r.uid = args[1]
	r.puid = prefix(args[1], 8)
	r.owner = owner
	r.mods = mods
	r.replay = nil
	r.mu.Unlock()
}

func (r *Room) onDenied([]string) {
	r.link.teardown()
	r.host.Forget(r)
	r.emit("OnConnectFail", func(h roomlink.Handler) { h.OnConnectFail(r) })
}

func (r *Room) onInited([]string) {
	r.send("g_participants", "start")
	r.send("getpremium", "1")
	r.RequestBanlist()
	r.RequestUnbanlist()

	r.mu.Lock()
	first := r.connects == 0
	r.connects++
	replay := r.replay
	r.replay = nil
	r.mu.Unlock()

	if first {
		r.emit("OnConnect", func(h roomlink.Handler) { h.OnConnect(r) })
		// The server sends history newest first.
		for i := len(replay) - 1; i >= 0; i-- {
			e := replay[i]
			if !r.store.Add(e.id, e.msg) {
				continue
			}
			r.emit("OnHistoryMessage", func(h roomlink.Handler) { h.OnHistoryMessage(r, e.msg.User, e.msg) }, e.msg.User, e.msg)
		}
	} else {
		r.emit("OnReconnect", func(h roomlink.Handler) { h.OnReconnect(r) })
	}

	r.unlock()
}

// onPremium handles premium:flags:expiry.
func (r *Room) onPremium(args []string) {
	expiry, err := strconv.ParseFloat(args[1], 64)
	premium := err == nil && expiry > float64(time.Now().Unix())

	r.mu.Lock()
	r.premium = premium
	r.mu.Unlock()

	if !premium {
		return
	}
	self := r.host.Self()
	if self.BgMode() {
		r.SetBgMode(true)
	}
	if self.RecordingMode() {
		r.SetRecordingMode(true)
	}
}

func (r *Room) onMods(args []string) {
	mods := r.parseMods(args)

	r.mu.Lock()
	prev := r.mods
	r.mods = mods
	r.mu.Unlock()

	for _, u := range sortedUsers(mods) {
		if _, ok := prev[u]; !ok {
			r.emit("OnModAdd", func(h roomlink.Handler) { h.OnModAdd(r, u) }, u)
		}
	}
	for _, u := range sortedUsers(prev) {
		if _, ok := mods[u]; !ok {
			r.emit("OnModRemove", func(h roomlink.Handler) { h.OnModRemove(r, u) }, u)
		}
	}
	r.emit("OnModChange", func(h roomlink.Handler) { h.OnModChange(r) })
}

// parseMods reads name,perm entries separated by ';' or split across
// arguments. A bare name carries no permissions.
func (r *Room) parseMods(args []string) map[*identity.User]identity.Perm {
	users := r.host.Users()
	mods := make(map[*identity.User]identity.Perm)
	for _, arg := range args {
		for _, entry := range strings.Split(arg, ";") {
			name, permText, _ := strings.Cut(entry, ",")
			if name == "" {
				continue
			}
			perm, _ := strconv.Atoi(permText)
			p := identity.Perm(perm)
			mods[users.Get(name, identity.Fields{Perm: &identity.RoomPerm{Room: r.name, Perm: p}})] = p
		}
	}
	return mods
}

// parseMessage reads the shared layout of b and i frames:
// time:name:tempname:puid:unid:id:ip:channel:?:raw...
func (r *Room) parseMessage(args []string) *history.Message {
	raw := ""
	if len(args) > 9 {
		raw = strings.Join(args[9:], ":")
	}
	body, n, f := markup.Clean(raw)

	name, puid, ip := args[1], args[3], args[6]
	nameColor := ""
	switch {
	case name != "":
		nameColor = n
	case args[2] != "":
		name = "#" + args[2]
	default:
		name = "#!anon" + AnonID(n, puid)
	}

	user := r.host.Users().Get(name, identity.Fields{RawName: args[1], PUID: puid, IP: ip})
	msg := &history.Message{
		TransientID: args[5],
		Time:        parseTime(args[0]),
		User:        user,
		Body:        body,
		Raw:         raw,
		IP:          ip,
		Channel:     args[7],
		UnID:        args[4],
		PUID:        puid,
		NameColor:   nameColor,
		Room:        r.name,
	}
	if font, ok := markup.ParseFont(f); ok {
		msg.FontColor = font.Color
		msg.FontFace = font.Face
		msg.FontSize = font.Size
	}
	return msg
}

func (r *Room) onBroadcast(args []string) {
	r.store.EnqueuePending(args[5], r.parseMessage(args))
}

// onAck handles u:transient-id:permanent-id.
func (r *Room) onAck(args []string) {
	msg, ok := r.store.Attach(args[0], args[1])
	if !ok {
		return
	}
	if msg.User != r.host.Self() {
		msg.User.Update(identity.Fields{
			NameColor: msg.NameColor,
			FontColor: msg.FontColor,
			FontFace:  msg.FontFace,
			FontSize:  msg.FontSize,
		})
	}
	r.emit("OnMessage", func(h roomlink.Handler) { h.OnMessage(r, msg.User, msg) }, msg.User, msg)
}

func (r *Room) onHistory(args []string) {
	msg := r.parseMessage(args)
	r.mu.Lock()
	r.replay = append(r.replay, backlogEntry{id: args[5], msg: msg})
	r.mu.Unlock()
}

// onParticipants handles the initial participant list:
// sid:time:puid:name:tempname;sid:...
func (r *Room) onParticipants(args []string) {
	joined := strings.Join(args, ":")
	if joined == "" {
		return
	}
	users := r.host.Users()
	for _, entry := range strings.Split(joined, ";") {
		fields := strings.Split(entry, ":")
		if len(fields) < 4 {
			continue
		}
		name := strings.ToLower(fields[3])
		if name == "none" || name == "" {
			continue
		}
		u := users.Get(name, identity.Fields{
			PUID:     fields[2],
			Presence: &identity.Presence{Joined: true, Room: r.name, SessionID: fields[0]},
		})
		r.mu.Lock()
		r.participants = append(r.participants, u)
		r.mu.Unlock()
	}
}

// onParticipant handles participant:joined:sid:puid:name:...
func (r *Room) onParticipant(args []string) {
	name := strings.ToLower(args[3])
	if name == "none" || name == "" {
		return
	}
	puid := args[2]
	joined := args[0] != "0"
	u := r.host.Users().Get(name, identity.Fields{
		PUID:     puid,
		Presence: &identity.Presence{Joined: joined, Room: r.name, SessionID: args[1]},
	})
	unique := r.host.Settings().UniqueEvents

	r.mu.Lock()
	present := r.present(u)
	if joined {
		r.participants = append(r.participants, u)
	} else if i := r.index(u); i >= 0 {
		r.participants = append(r.participants[:i], r.participants[i+1:]...)
	}
	still := r.present(u)
	r.mu.Unlock()

	switch {
	case joined && (!unique || !present):
		r.emit("OnJoin", func(h roomlink.Handler) { h.OnJoin(r, u, puid) }, u, puid)
	case !joined && (!unique || !still):
		r.emit("OnLeave", func(h roomlink.Handler) { h.OnLeave(r, u, puid) }, u, puid)
	}
}

func (r *Room) index(u *identity.User) int {
	for i, p := range r.participants {
		if p == u {
			return i
		}
	}
	return -1
}

func (r *Room) present(u *identity.User) bool {
	return r.index(u) >= 0
}

func (r *Room) onFloodWarning([]string) {
	r.emit("OnFloodWarning", func(h roomlink.Handler) { h.OnFloodWarning(r) })
}

func (r *Room) onFloodBan(args []string) {
	secs := seconds(args)
	r.emit("OnFloodBan", func(h roomlink.Handler) { h.OnFloodBan(r, secs) }, secs)
}

func (r *Room) onFloodBanRepeat(args []string) {
	secs := seconds(args)
	r.emit("OnFloodBanRepeat", func(h roomlink.Handler) { h.OnFloodBanRepeat(r, secs) }, secs)
}

func (r *Room) onDelete(args []string) {
	if msg, ok := r.store.Delete(args[0]); ok {
		r.emitDelete(msg)
	}
}

func (r *Room) onDeleteAll(args []string) {
	for _, msg := range r.store.DeleteBatch(args) {
		r.emitDelete(msg)
	}
}

func (r *Room) emitDelete(msg *history.Message) {
	r.emit("OnMessageDelete", func(h roomlink.Handler) { h.OnMessageDelete(r, msg.User, msg) }, msg.User, msg)
}

// onUserCount handles n:count with the count in hex.
func (r *Room) onUserCount(args []string) {
	n, err := strconv.ParseInt(args[0], 16, 64)
	if err != nil {
		r.link.logger.Warn().Str("count", args[0]).Msg("invalid user count")
		return
	}
	r.mu.Lock()
	r.userCount = int(n)
	r.mu.Unlock()
	r.emit("OnUserCountChange", func(h roomlink.Handler) { h.OnUserCountChange(r) })
}

func (r *Room) onBanlist(args []string) {
	list := r.parseBanRecords(args)
	r.mu.Lock()
	r.banlist = list
	r.mu.Unlock()
	r.emit("OnBanlistUpdate", func(h roomlink.Handler) { h.OnBanlistUpdate(r) })
}

func (r *Room) onUnbanlist(args []string) {
	list := r.parseBanRecords(args)
	r.mu.Lock()
	r.unbanlist = list
	r.mu.Unlock()
	r.emit("OnUnbanlistUpdate", func(h roomlink.Handler) { h.OnUnbanlistUpdate(r) })
}

// parseBanRecords reads unid:ip:target:time:source;unid:...
func (r *Room) parseBanRecords(args []string) map[*identity.User]roomlink.BanRecord {
	out := make(map[*identity.User]roomlink.BanRecord)
	for _, section := range strings.Split(strings.Join(args, ":"), ";") {
		params := strings.Split(section, ":")
		if len(params) != 5 || params[2] == "" {
			continue
		}
		rec := r.banRecord(params)
		out[rec.Target] = rec
	}
	return out
}

func (r *Room) banRecord(params []string) roomlink.BanRecord {
	users := r.host.Users()
	return roomlink.BanRecord{
		UnID:   params[0],
		IP:     params[1],
		Target: users.Lookup(params[2]),
		Time:   parseTime(params[3]),
		Source: users.Lookup(params[4]),
	}
}

// onBlocked handles blocked:unid:ip:target:source:time.
func (r *Room) onBlocked(args []string) {
	if args[2] == "" {
		return
	}
	rec := r.banRecord([]string{args[0], args[1], args[2], args[4], args[3]})
	r.mu.Lock()
	r.banlist[rec.Target] = rec
	r.mu.Unlock()
	r.emit("OnBan", func(h roomlink.Handler) { h.OnBan(r, rec.Source, rec.Target) }, rec.Source, rec.Target)
}

// onUnblocked handles unblocked:unid:ip:target:source:time.
func (r *Room) onUnblocked(args []string) {
	if args[2] == "" {
		return
	}
	rec := r.banRecord([]string{args[0], args[1], args[2], args[4], args[3]})
	r.mu.Lock()
	delete(r.banlist, rec.Target)
	r.unbanlist[rec.Target] = rec
	r.mu.Unlock()
	r.emit("OnUnban", func(h roomlink.Handler) { h.OnUnban(r, rec.Source, rec.Target) }, rec.Source, rec.Target)
}

// parseTime converts fractional unix seconds. Invalid input yields the zero time.
func parseTime(s string) time.Time {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9))
}

func seconds(args []string) int {
	if len(args) == 0 {
		return 0
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0
	}
	return n
}

func prefix(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
