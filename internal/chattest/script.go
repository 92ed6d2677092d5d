package chattest

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/luciancaetano/roomlink/internal/protocol"
)

// Joined is the join time sent in every ok frame.
const Joined = "1700000000.5"

// RoomScript answers like a room server owned by owner: the handshake is
// accepted and every posted message is echoed back as a b and u pair.
func RoomScript(owner string) FrameFn {
	var seq atomic.Int64
	return func(c *Client, f protocol.Frame) {
		args := f.Args()
		switch f.Command() {
		case "bauth":
			uid, name := arg(args, 1), arg(args, 2)
			c.Send("ok", owner, uid, "M", name, Joined, "127.0.0.1", "")
			c.Send("inited")
		case "blogin":
			// temporary names need no answer
		case "bm":
			n := strconv.FormatInt(seq.Add(1), 10)
			body := strings.Join(args[min(2, len(args)):], ":")
			c.Send("b", Joined, owner, "", "00001234", "unid"+n, "T"+n, "127.0.0.1", "0", "", body)
			c.Send("u", "T"+n, "M"+n)
		}
	}
}

// PMScript answers like the private-message server: any token is accepted
// and every message is echoed back from its recipient.
func PMScript() FrameFn {
	return func(c *Client, f protocol.Frame) {
		args := f.Args()
		switch f.Command() {
		case "tlogin":
			c.Send("OK")
		case "mhs":
			c.Send("mhs")
		case "msg":
			c.Send("msg", arg(args, 0), arg(args, 0), "", Joined, "0", strings.Join(args[min(1, len(args)):], ":"))
		}
	}
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
