package identity

import "strings"

// Perm is the per-room permission bitmask the server reports for a moderator.
type Perm int

// Permission flags.
const (
	PermDeleted                      Perm = 1
	PermEditMods                     Perm = 2
	PermEditModVisibility            Perm = 4
	PermEditBadWords                 Perm = 8
	PermEditRestrictions             Perm = 16
	PermEditGroup                    Perm = 32
	PermSeeCounter                   Perm = 64
	PermSeeModChannel                Perm = 128
	PermSeeModActions                Perm = 256
	PermEditNLP                      Perm = 512
	PermEditGroupAnnouncement        Perm = 1024
	PermNoSendingLimitations         Perm = 8192
	PermSeeIPs                       Perm = 16384
	PermCloseGroup                   Perm = 32768
	PermCanBroadcast                 Perm = 65536
	PermModIconVisibilityNotLogged   Perm = 131072
	PermIsStaff                      Perm = 262144
	PermStaffIconVisibilityNotLogged Perm = 524288
)

// PermOwner is the mask granted to a room's owner.
const PermOwner Perm = 1048575

var permNames = []struct {
	flag Perm
	name string
}{
	{PermDeleted, "deleted"},
	{PermEditMods, "edit_mods"},
	{PermEditModVisibility, "edit_mod_visibility"},
	{PermEditBadWords, "edit_bw"},
	{PermEditRestrictions, "edit_restrictions"},
	{PermEditGroup, "edit_group"},
	{PermSeeCounter, "see_counter"},
	{PermSeeModChannel, "see_mod_channel"},
	{PermSeeModActions, "see_mod_actions"},
	{PermEditNLP, "edit_nlp"},
	{PermEditGroupAnnouncement, "edit_gp_annc"},
	{PermNoSendingLimitations, "no_sending_limitations"},
	{PermSeeIPs, "see_ips"},
	{PermCloseGroup, "close_group"},
	{PermCanBroadcast, "can_broadcast"},
	{PermModIconVisibilityNotLogged, "should_not_be_logged_mod_icon_vis"},
	{PermIsStaff, "is_staff"},
	{PermStaffIconVisibilityNotLogged, "should_not_be_logged_staff_icon_vis"},
}

// Has reports whether every bit of flag is set.
func (p Perm) Has(flag Perm) bool {
	return p&flag == flag
}

// String lists the named flags set in p, separated by '|'.
func (p Perm) String() string {
	var names []string
	for _, n := range permNames {
		if p.Has(n.flag) {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}
