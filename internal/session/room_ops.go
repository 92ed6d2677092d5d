package session

import (
	"strings"

	"github.com/luciancaetano/roomlink"
	"github.com/luciancaetano/roomlink/internal/history"
	"github.com/luciancaetano/roomlink/internal/identity"
	"github.com/luciancaetano/roomlink/internal/markup"
)

// Login changes the posting name. An empty password sets a temporary name.
func (r *Room) Login(name, password string) {
	if password != "" {
		r.send("blogin", name, password)
	} else {
		r.send("blogin", name)
	}
	r.mu.Lock()
	r.currentName = name
	r.mu.Unlock()
}

// Logout returns to the name the bot joined with.
func (r *Room) Logout() {
	r.send("blogout")
	r.mu.Lock()
	r.currentName = r.botName
	r.mu.Unlock()
}

// Ping sends the empty keepalive frame.
func (r *Room) Ping() {
	r.send("")
	r.emit("OnPing", func(h roomlink.Handler) { h.OnPing(r) })
}

// RawMessage sends body without adding any tags.
func (r *Room) RawMessage(body, channel string) {
	if r.Silent() {
		return
	}
	if channel == "" {
		channel = roomlink.ChannelWhite
	}
	r.send("bm:tl2r", channel, body)
}

// Message sends text in the bot's name and font tags, split or cut to the
// configured maximum length.
func (r *Room) Message(text string, html bool, channel string) {
	text = strings.TrimRight(text, " \t\r\n")
	if !html {
		text = markup.Escape(text)
	}
	if text == "" {
		return
	}

	s := r.host.Settings()
	parts := chunk(text, s.MaxLength)
	if s.BigMessage == roomlink.BigMessageCut {
		parts = parts[:1]
	}
	for _, part := range parts {
		r.RawMessage(r.decorate(part), channel)
	}
}

func (r *Room) decorate(text string) string {
	self := r.host.Self()
	text = markup.NameTag(self.NameColor()) + text

	name := r.CurrentName()
	if name == "" || strings.HasPrefix(name, "!anon") {
		return text
	}
	font := markup.FontTag(self.FontSize(), self.FontColor(), self.FontFace())
	text = strings.ReplaceAll(text, "\n", markup.LineBreak(font))
	return font + text
}

// chunk splits s into pieces of at most n runes.
func chunk(s string, n int) []string {
	runes := []rune(s)
	if n <= 0 || len(runes) <= n {
		return []string{s}
	}
	parts := make([]string, 0, (len(runes)+n-1)/n)
	for len(runes) > 0 {
		k := min(n, len(runes))
		parts = append(parts, string(runes[:k]))
		runes = runes[k:]
	}
	return parts
}

// SetBgMode toggles the message background for the room.
func (r *Room) SetBgMode(on bool) {
	r.send("msgbg", onOff(on))
}

// SetRecordingMode toggles media recording for the room.
func (r *Room) SetRecordingMode(on bool) {
	r.send("msgmedia", onOff(on))
}

func onOff(on bool) string {
	if on {
		return "1"
	}
	return "0"
}

// selfLevel is the privilege level of the name the bot posts as.
func (r *Room) selfLevel() int {
	return r.Level(r.self())
}

// AddMod promotes user. Only the owner may do this.
func (r *Room) AddMod(user *identity.User) {
	if user == nil || r.selfLevel() < roomlink.LevelOwner {
		return
	}
	r.send("addmod", user.Name())
}

// RemoveMod demotes user. Only the owner may do this.
func (r *Room) RemoveMod(user *identity.User) {
	if user == nil || r.selfLevel() < roomlink.LevelOwner {
		return
	}
	r.send("removemod", user.Name())
}

// Flag reports msg to the moderators.
func (r *Room) Flag(msg *history.Message) {
	if msg == nil || msg.ID() == "" {
		return
	}
	r.send("g_flag", msg.ID())
}

// FlagUser flags user's last message. It reports false if there is none.
func (r *Room) FlagUser(user *identity.User) bool {
	if user == nil {
		return false
	}
	msg := r.LastMessage(user)
	if msg == nil {
		return false
	}
	r.Flag(msg)
	return true
}

// DeleteMessage removes msg from the room. It requires moderator level.
func (r *Room) DeleteMessage(msg *history.Message) {
	if msg == nil || msg.ID() == "" || r.selfLevel() < roomlink.LevelMod {
		return
	}
	r.send("delmsg", msg.ID())
}

// DeleteUser deletes the user's last message.
func (r *Room) DeleteUser(user *identity.User) bool {
	if user == nil || r.selfLevel() < roomlink.LevelMod {
		return false
	}
	if msg := r.LastMessage(user); msg != nil {
		r.send("delmsg", msg.ID())
	}
	return true
}

// ClearUser deletes every message of the user's last unid and ip.
func (r *Room) ClearUser(user *identity.User) bool {
	if user == nil || r.selfLevel() < roomlink.LevelMod {
		return false
	}
	msg := r.LastMessage(user)
	if msg == nil {
		return false
	}
	name := msg.User.Name()
	if strings.HasPrefix(name, "!") || strings.HasPrefix(name, "#") {
		name = ""
	}
	r.send("delallmsg", msg.UnID, msg.IP, name)
	return true
}

// ClearAll removes every message. Only the owner may do this.
func (r *Room) ClearAll() {
	if r.selfLevel() < roomlink.LevelOwner {
		return
	}
	r.send("clearall")
}

// RawBan sends a block without checking privileges.
func (r *Room) RawBan(name, ip, unid string) {
	r.send("block", unid, ip, name)
}

// Ban blocks the sender of msg.
func (r *Room) Ban(msg *history.Message) {
	if msg == nil || r.selfLevel() < roomlink.LevelMod {
		return
	}
	r.RawBan(msg.User.Name(), msg.IP, msg.UnID)
}

// BanUser bans user by their last message. It reports false without
// moderator level or a message to ban by.
func (r *Room) BanUser(user *identity.User) bool {
	if user == nil || r.selfLevel() < roomlink.LevelMod {
		return false
	}
	msg := r.LastMessage(user)
	if msg == nil {
		return false
	}
	r.Ban(msg)
	return true
}

// RawUnban sends a removeblock without checking privileges.
func (r *Room) RawUnban(name, ip, unid string) {
	r.send("removeblock", unid, ip, name)
}

// Unban lifts the ban recorded for user.
func (r *Room) Unban(user *identity.User) bool {
	if r.selfLevel() < roomlink.LevelMod {
		return false
	}
	rec, ok := r.BanRecord(user)
	if !ok {
		return false
	}
	r.RawUnban(rec.Target.Name(), rec.IP, rec.UnID)
	return true
}

// RequestBanlist asks for the first page of the ban list.
func (r *Room) RequestBanlist() {
	r.send("blocklist", "block", "", "next", "500")
}

// RequestUnbanlist asks for the first page of the unban list.
func (r *Room) RequestUnbanlist() {
	r.send("blocklist", "unblock", "", "next", "500")
}
