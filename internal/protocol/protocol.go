// Package protocol implements the text framing used on every room and
// private-message connection.
//
// A frame is a list of fields joined by ':' and terminated by a NUL byte.
// Every frame after the first on a connection carries "\r\n" before the NUL.
package protocol

import (
	"bytes"
	"strings"
)

const (
	// Separator joins the fields of a frame.
	Separator = ":"
	// Terminator ends every frame.
	Terminator byte = 0x00
	// LineBreak precedes the terminator on every frame but the first.
	LineBreak = "\r\n"
)

// Frame is one decoded command: the command name followed by its arguments.
type Frame []string

// Parse splits a raw frame into its fields.
func Parse(raw string) Frame {
	return Frame(strings.Split(raw, Separator))
}

// Command returns the command name.
func (f Frame) Command() string {
	if len(f) == 0 {
		return ""
	}
	return f[0]
}

// Args returns the fields after the command name.
func (f Frame) Args() []string {
	if len(f) < 2 {
		return nil
	}
	return f[1:]
}

// String joins the fields back into the raw frame text.
func (f Frame) String() string {
	return strings.Join(f, Separator)
}

// Encoder frames outgoing commands for a single connection.
// It is not safe for concurrent use; callers serialise access per connection.
type Encoder struct {
	sent bool
}

// Encode joins args and appends the terminator. The first frame encoded
// after construction or Reset has no line break before the terminator.
func (e *Encoder) Encode(args ...string) []byte {
	body := strings.Join(args, Separator)

	out := make([]byte, 0, len(body)+len(LineBreak)+1)
	out = append(out, body...)
	if e.sent {
		out = append(out, LineBreak...)
	}
	out = append(out, Terminator)
	e.sent = true
	return out
}

// Sent reports whether a frame has been encoded since the last Reset.
func (e *Encoder) Sent() bool {
	return e.sent
}

// Reset makes the next frame the first frame of a fresh connection.
func (e *Encoder) Reset() {
	e.sent = false
}

// Decoder splits an inbound byte stream into frames, keeping any trailing
// partial frame until the rest of it arrives.
// It is not safe for concurrent use.
type Decoder struct {
	buf []byte
}

// Feed appends chunk to the pending bytes and returns every frame completed by it.
// Empty frames are dropped and trailing line breaks are stripped.
// Invalid UTF-8 is replaced rather than rejected.
func (d *Decoder) Feed(chunk []byte) []Frame {
	d.buf = append(d.buf, chunk...)

	pieces := bytes.Split(d.buf, []byte{Terminator})
	rest := pieces[len(pieces)-1]

	var frames []Frame
	for _, piece := range pieces[:len(pieces)-1] {
		raw := strings.TrimRight(strings.ToValidUTF8(string(piece), "�"), LineBreak)
		if raw == "" {
			continue
		}
		frames = append(frames, Parse(raw))
	}

	// Copy so the kept partial frame does not pin the whole read buffer.
	d.buf = append(d.buf[:0:0], rest...)
	return frames
}

// Pending returns the number of buffered bytes not yet forming a frame.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// Reset discards any partial frame.
func (d *Decoder) Reset() {
	d.buf = nil
}
