package main

import (
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/luciancaetano/roomlink"
	"github.com/luciancaetano/roomlink/internal/identity"
)

// fakeRoom records the messages posted to it.
type fakeRoom struct {
	roomlink.Room
	sent []string
}

func (r *fakeRoom) Message(text string, _ bool, _ string) {
	r.sent = append(r.sent, text)
}

// TestBotCommands tests the replies to room commands
func TestBotCommands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want []string
	}{
		{name: "ping", body: "!ping", want: []string{"pong"}},
		{name: "echo", body: "!echo hello there", want: []string{"alice said hello there"}},
		{name: "echo without text", body: "!echo", want: nil},
		{name: "chatter", body: "hello", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			room := &fakeRoom{}
			alice := identity.NewUser("alice")
			bot{logger: zerolog.Nop()}.OnMessage(room, alice, &roomlink.Message{User: alice, Body: tt.body})
			if !slices.Equal(room.sent, tt.want) {
				t.Errorf("sent = %v, want %v", room.sent, tt.want)
			}
		})
	}
}

// TestMetricsMux tests the health and metrics endpoints
func TestMetricsMux(t *testing.T) {
	t.Parallel()

	mux := metricsMux(prometheus.NewRegistry())
	for _, path := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}
