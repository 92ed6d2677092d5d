package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

// TestNewWithWriter tests level selection and the JSON envelope
func TestNewWithWriter(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantLines int
	}{
		{name: "info drops debug", level: "info", wantLines: 1},
		{name: "debug keeps debug", level: "debug", wantLines: 2},
		{name: "unknown falls back to info", level: "loud", wantLines: 1},
		{name: "upper case accepted", level: "WARN", wantLines: 0},
	}

	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter(&buf, tt.level, FormatJSON)
			logger.Debug().Msg("debug line")
			logger.Info().Msg("info line")

			lines := bytes.Count(buf.Bytes(), []byte("\n"))
			if lines != tt.wantLines {
				t.Fatalf("got %d lines, want %d: %s", lines, tt.wantLines, buf.String())
			}
			if lines == 0 {
				return
			}

			var entry map[string]any
			first := bytes.SplitN(buf.Bytes(), []byte("\n"), 2)[0]
			if err := json.Unmarshal(first, &entry); err != nil {
				t.Fatalf("not JSON: %v", err)
			}
			if entry["service"] != "roomlink" {
				t.Errorf("service = %v", entry["service"])
			}
			if _, ok := entry["time"]; !ok {
				t.Error("missing timestamp")
			}
		})
	}
}
