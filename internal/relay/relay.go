// Package relay republishes chat events to NATS as JSON.
package relay

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/luciancaetano/roomlink"
)

// Event types published by the relay.
const (
	TypeMessage    = "message"
	TypeJoin       = "join"
	TypeLeave      = "leave"
	TypeConnect    = "connect"
	TypeDisconnect = "disconnect"
	TypePM         = "pm"
)

// Publisher is the part of *nats.Conn the relay uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// Event is the JSON payload of every published message.
type Event struct {
	Type    string    `json:"type"`
	Room    string    `json:"room,omitempty"`
	User    string    `json:"user,omitempty"`
	PUID    string    `json:"puid,omitempty"`
	Body    string    `json:"body,omitempty"`
	Channel string    `json:"channel,omitempty"`
	Time    time.Time `json:"time"`
}

// Connect dials the NATS server at url, reconnecting forever.
func Connect(url string, logger zerolog.Logger) (*nats.Conn, error) {
	log := logger.With().Str("module", "relay").Logger()
	return nats.Connect(url,
		nats.Name("roomlink"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
}

// Handler publishes room and private-message events, then passes every
// event on to the wrapped handler.
type Handler struct {
	roomlink.Handler

	pub     Publisher
	subject string
	now     func() time.Time
	logger  zerolog.Logger
}

// New wraps next. Events go to "<subject>.<type>", with ".<room>" appended
// for room events. A nil next is replaced by roomlink.NopHandler.
func New(next roomlink.Handler, pub Publisher, subject string, logger zerolog.Logger) *Handler {
	if next == nil {
		next = roomlink.NopHandler{}
	}
	return &Handler{
		Handler: next,
		pub:     pub,
		subject: subject,
		now:     time.Now,
		logger:  logger.With().Str("module", "relay").Logger(),
	}
}

// OnConnect publishes a connect event and forwards it.
func (h *Handler) OnConnect(room roomlink.Room) {
	h.publish(Event{Type: TypeConnect, Room: room.Name()})
	h.Handler.OnConnect(room)
}

func (h *Handler) OnDisconnect(room roomlink.Room) {
	h.publish(Event{Type: TypeDisconnect, Room: room.Name()})
	h.Handler.OnDisconnect(room)
}

// OnMessage publishes the message body with its sender.
func (h *Handler) OnMessage(room roomlink.Room, user *roomlink.User, msg *roomlink.Message) {
	h.publish(Event{
		Type:    TypeMessage,
		Room:    room.Name(),
		User:    user.Name(),
		PUID:    msg.PUID,
		Body:    msg.Body,
		Channel: msg.Channel,
		Time:    msg.Time,
	})
	h.Handler.OnMessage(room, user, msg)
}

func (h *Handler) OnJoin(room roomlink.Room, user *roomlink.User, puid string) {
	h.publish(Event{Type: TypeJoin, Room: room.Name(), User: user.Name(), PUID: puid})
	h.Handler.OnJoin(room, user, puid)
}

func (h *Handler) OnLeave(room roomlink.Room, user *roomlink.User, puid string) {
	h.publish(Event{Type: TypeLeave, Room: room.Name(), User: user.Name(), PUID: puid})
	h.Handler.OnLeave(room, user, puid)
}

func (h *Handler) OnPMMessage(pm roomlink.PrivateMessenger, user *roomlink.User, body string) {
	h.publish(Event{Type: TypePM, User: user.Name(), Body: body})
	h.Handler.OnPMMessage(pm, user, body)
}

// publish never fails the event: errors are logged and dropped.
func (h *Handler) publish(e Event) {
	if e.Time.IsZero() {
		e.Time = h.now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Error().Err(err).Str("type", e.Type).Msg("failed to encode event")
		return
	}

	subject := h.subject + "." + e.Type
	if e.Room != "" {
		subject += "." + e.Room
	}
	if err := h.pub.Publish(subject, data); err != nil {
		h.logger.Warn().Err(err).Str("subject", subject).Msg("failed to publish event")
		return
	}
	h.logger.Debug().Str("subject", subject).Msg("event published")
}
