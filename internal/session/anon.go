package session

import (
	"math/rand/v2"
	"strconv"
	"strings"
)

// defaultAnonFragment is used when a message carries no name tag digits.
const defaultAnonFragment = "5504"

// AnonID derives the four-digit display id of an anonymous user from the
// digits the server handed out (n) and the user's presence id: each digit
// is the sum of the matching digit of n and of puid[4:8], modulo 10.
// Inputs that are not digits yield "NNNN".
func AnonID(n, puid string) string {
	if n == "" {
		n = defaultAnonFragment
	}
	if len(n) < 4 || len(puid) < 8 {
		return "NNNN"
	}

	out := make([]byte, 4)
	for i := 0; i < 4; i++ {
		a, b := puid[i+4], n[i]
		if a < '0' || a > '9' || b < '0' || b > '9' {
			return "NNNN"
		}
		out[i] = '0' + (a-'0'+b-'0')%10
	}
	return string(out)
}

// serverFragment returns the last four digits before the fractional part
// of a server timestamp.
func serverFragment(ts string) string {
	if i := strings.LastIndexByte(ts, '.'); i >= 0 {
		ts = ts[:i]
	}
	if len(ts) > 4 {
		ts = ts[len(ts)-4:]
	}
	return ts
}

// newUID returns a random 16-digit session id.
func newUID() string {
	return strconv.FormatInt(rand.Int64N(9e15)+1e15, 10)
}
