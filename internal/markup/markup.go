// Package markup handles the small tag language embedded in message bodies.
package markup

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
)

var (
	nameTag = regexp.MustCompile(`<n(.*?)/>`)
	fontTag = regexp.MustCompile(`<f(.*?)>`)
)

// Clean strips the name and font tags and any other markup from raw and
// unescapes HTML entities. It returns the plain body together with the
// contents of the first name tag and the first font tag.
func Clean(raw string) (body, name, font string) {
	if m := nameTag.FindStringSubmatch(raw); m != nil {
		name = m[1]
	}
	if m := fontTag.FindStringSubmatch(raw); m != nil {
		font = m[1]
	}
	body = nameTag.ReplaceAllString(raw, "")
	body = fontTag.ReplaceAllString(body, "")
	body = html.UnescapeString(StripHTML(body))
	return body, name, font
}

// StripHTML drops everything between '<' and the next '>'.
// A '<' without a closing '>' keeps the text that follows it.
func StripHTML(s string) string {
	parts := strings.Split(s, "<")
	if len(parts) == 1 {
		return s
	}
	var b strings.Builder
	for _, part := range parts {
		if _, after, ok := strings.Cut(part, ">"); ok {
			b.WriteString(after)
		} else {
			b.WriteString(part)
		}
	}
	return b.String()
}

// Font is a parsed font tag. Empty fields were absent from the tag.
type Font struct {
	Color string
	Face  string
	Size  int
}

// ParseFont reads the contents of a font tag of the form ` xSSCCC="face"`.
func ParseFont(f string) (Font, bool) {
	sizeColor, _, ok := strings.Cut(f, "=")
	if !ok {
		return Font{}, false
	}
	sizeColor = strings.TrimSpace(sizeColor)
	if len(sizeColor) < 3 {
		return Font{}, false
	}
	size, err := strconv.Atoi(sizeColor[1:3])
	if err != nil {
		return Font{}, false
	}

	quoted := strings.SplitN(f, `"`, 3)
	if len(quoted) < 2 {
		return Font{}, false
	}

	font := Font{Size: size, Face: quoted[1]}
	if len(sizeColor) > 3 {
		font.Color = sizeColor[3:min(len(sizeColor), 6)]
	}
	return font, true
}

// Escape replaces angle brackets so the server renders them as text.
func Escape(s string) string {
	return strings.NewReplacer("<", "&lt;", ">", "&gt;").Replace(s)
}

// NameTag builds the tag carrying the sender's name color.
func NameTag(color string) string {
	return "<n" + color + "/>"
}

// FontTag builds the opening font tag for outgoing messages.
func FontTag(size int, color, face string) string {
	return fmt.Sprintf(`<f x%02d%s="%s">`, size, color, face)
}

// LineBreak is what a newline becomes inside a font-tagged message.
func LineBreak(fontTag string) string {
	return "</f></p><p>" + fontTag
}
