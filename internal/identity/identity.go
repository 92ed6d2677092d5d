// Package identity keeps one shared record per chat participant name.
//
// Rooms, private sessions and messages all point at the same *User for a
// given name; facts learned on any connection accumulate on that record.
package identity

import (
	"slices"
	"strings"
	"sync"
)

// Default display attributes for a user nobody has described yet.
const (
	DefaultNameColor = "000"
	DefaultFontColor = "000"
	DefaultFontFace  = "0"
	DefaultFontSize  = 12
)

// RoomPerm assigns a permission mask to a user in one room.
type RoomPerm struct {
	Room string
	Perm Perm
}

// Presence records one session of a user joining or leaving a room.
type Presence struct {
	Joined    bool
	Room      string
	SessionID string
}

// Fields carries facts about a user. Zero values and nil pointers are ignored.
type Fields struct {
	RawName       string
	IP            string
	PUID          string
	Perm          *RoomPerm
	Presence      *Presence
	NameColor     string
	FontColor     string
	FontFace      string
	FontSize      int
	BgMode        *bool
	RecordingMode *bool
}

// Bool returns a pointer to v, for the optional flags of Fields.
func Bool(v bool) *bool {
	return &v
}

// User is the shared record for one normalized name.
type User struct {
	mu sync.RWMutex

	name          string
	rawName       string
	ip            string
	ips           map[string]struct{}
	puid          string
	puids         map[string]struct{}
	perms         map[string]Perm
	sessions      map[string]map[string]struct{}
	nameColor     string
	fontColor     string
	fontFace      string
	fontSize      int
	bgMode        bool
	recordingMode bool
}

// NewUser creates a record that is not registered anywhere.
// The manager uses it for its own identity when running anonymously.
func NewUser(name string) *User {
	return &User{
		name:      Normalize(name),
		rawName:   name,
		ips:       make(map[string]struct{}),
		puids:     make(map[string]struct{}),
		perms:     make(map[string]Perm),
		sessions:  make(map[string]map[string]struct{}),
		nameColor: DefaultNameColor,
		fontColor: DefaultFontColor,
		fontFace:  DefaultFontFace,
		fontSize:  DefaultFontSize,
	}
}

// Normalize returns the registry key for name.
func Normalize(name string) string {
	return strings.ToLower(name)
}

// Update merges f into the record.
func (u *User) Update(f Fields) {
	if u == nil {
		return
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if f.RawName != "" {
		u.rawName = f.RawName
	}
	if f.IP != "" {
		u.ip = f.IP
		u.ips[f.IP] = struct{}{}
	}
	if f.PUID != "" {
		u.puid = f.PUID
		u.puids[f.PUID] = struct{}{}
	}
	if f.Perm != nil {
		u.perms[f.Perm.Room] = f.Perm.Perm
	}
	if p := f.Presence; p != nil {
		if p.Joined {
			set, ok := u.sessions[p.Room]
			if !ok {
				set = make(map[string]struct{})
				u.sessions[p.Room] = set
			}
			set[p.SessionID] = struct{}{}
		} else if set, ok := u.sessions[p.Room]; ok {
			delete(set, p.SessionID)
			if len(set) == 0 {
				delete(u.sessions, p.Room)
			}
		}
	}
	if f.NameColor != "" {
		u.nameColor = f.NameColor
	}
	if f.FontColor != "" {
		u.fontColor = f.FontColor
	}
	if f.FontFace != "" {
		u.fontFace = f.FontFace
	}
	if f.FontSize != 0 {
		u.fontSize = f.FontSize
	}
	if f.BgMode != nil {
		u.bgMode = *f.BgMode
	}
	if f.RecordingMode != nil {
		u.recordingMode = *f.RecordingMode
	}
}

// LeaveRoom drops every session the user holds in room.
func (u *User) LeaveRoom(room string) {
	if u == nil {
		return
	}
	u.mu.Lock()
	delete(u.sessions, room)
	u.mu.Unlock()
}

// Name returns the normalized name.
func (u *User) Name() string {
	if u == nil {
		return ""
	}
	return u.name
}

// RawName returns the name with the casing last seen on the wire.
func (u *User) RawName() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.rawName
}

// IP returns the most recently observed address.
func (u *User) IP() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.ip
}

// IPs returns every address observed for the user, sorted.
func (u *User) IPs() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return sortedKeys(u.ips)
}

// PUID returns the most recently observed presence id.
func (u *User) PUID() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.puid
}

// PUIDs returns every presence id observed for the user, sorted.
func (u *User) PUIDs() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return sortedKeys(u.puids)
}

// Perm returns the mask recorded for room.
func (u *User) Perm(room string) (Perm, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	p, ok := u.perms[room]
	return p, ok
}

// Rooms returns the rooms the user currently has sessions in, sorted.
func (u *User) Rooms() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	rooms := make([]string, 0, len(u.sessions))
	for r := range u.sessions {
		rooms = append(rooms, r)
	}
	slices.Sort(rooms)
	return rooms
}

// SessionIDs returns the union of session ids across all rooms, sorted.
func (u *User) SessionIDs() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	all := make(map[string]struct{})
	for _, set := range u.sessions {
		for sid := range set {
			all[sid] = struct{}{}
		}
	}
	return sortedKeys(all)
}

// RoomSessions returns the session ids held in one room, sorted.
func (u *User) RoomSessions(room string) []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return sortedKeys(u.sessions[room])
}

// NameColor returns the hex name color, empty if unknown.
func (u *User) NameColor() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.nameColor
}

// FontColor returns the hex font color, empty if unknown.
func (u *User) FontColor() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.fontColor
}

// FontFace returns the font face number.
func (u *User) FontFace() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.fontFace
}

// FontSize returns the font size in points.
func (u *User) FontSize() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.fontSize
}

// BgMode reports whether the message background is enabled.
func (u *User) BgMode() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.bgMode
}

// RecordingMode reports whether media recording is enabled.
func (u *User) RecordingMode() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.recordingMode
}

func (u *User) String() string {
	return "<User: " + u.Name() + ">"
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
