package markup

import "testing"

// TestClean tests tag extraction and body cleanup
func TestClean(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      string
		wantBody string
		wantName string
		wantFont string
	}{
		{
			name:     "plain text",
			raw:      "hello",
			wantBody: "hello",
		},
		{
			name:     "name and font tags",
			raw:      `<nF00/><f x12000="1">hi there`,
			wantBody: "hi there",
			wantName: "F00",
			wantFont: ` x12000="1"`,
		},
		{
			name:     "entities unescaped",
			raw:      "<n000/>1 &lt; 2 &amp;&amp; 3 &gt; 2",
			wantBody: "1 < 2 && 3 > 2",
			wantName: "000",
		},
		{
			name:     "other markup stripped",
			raw:      "<b>bold</b> and <i>italic</i>",
			wantBody: "bold and italic",
		},
		{
			name:     "anon digits in name tag",
			raw:      "<n1234/>anon says hi",
			wantBody: "anon says hi",
			wantName: "1234",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			body, name, font := Clean(tt.raw)
			if body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			if font != tt.wantFont {
				t.Errorf("font = %q, want %q", font, tt.wantFont)
			}
		})
	}
}

// TestStripHTML tests unclosed and empty tags
func TestStripHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "no tags", want: "no tags"},
		{in: "a<br/>b", want: "ab"},
		{in: "a < b", want: "a  b"},
		{in: "<p>x</p>", want: "x"},
	}

	for _, tt := range tests {
		if got := StripHTML(tt.in); got != tt.want {
			t.Errorf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestParseFont tests font tag parsing
func TestParseFont(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		in     string
		want   Font
		wantOK bool
	}{
		{name: "full", in: ` x12F00="Arial"`, want: Font{Size: 12, Color: "F00", Face: "Arial"}, wantOK: true},
		{name: "no color", in: ` x09="0"`, want: Font{Size: 9, Face: "0"}, wantOK: true},
		{name: "missing equals", in: ` x12F00`, wantOK: false},
		{name: "bad size", in: ` xabF00="1"`, wantOK: false},
		{name: "empty", in: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := ParseFont(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ParseFont() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// TestOutgoingTags tests the tags built for outgoing messages
func TestOutgoingTags(t *testing.T) {
	t.Parallel()

	if got := FontTag(9, "F00", "1"); got != `<f x09F00="1">` {
		t.Errorf("FontTag() = %q", got)
	}
	if got := NameTag("0F0"); got != "<n0F0/>" {
		t.Errorf("NameTag() = %q", got)
	}
	if got := Escape("<b>"); got != "&lt;b&gt;" {
		t.Errorf("Escape() = %q", got)
	}
}
