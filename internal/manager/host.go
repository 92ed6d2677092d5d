package manager

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/luciancaetano/roomlink"
	"github.com/luciancaetano/roomlink/internal/metrics"
	"github.com/luciancaetano/roomlink/internal/session"
)

// host exposes the manager's shared services to its connections.
type host struct {
	*Manager
}

var _ session.Host = host{}

func (h host) Handler() roomlink.Handler             { return h.handler }
func (h host) Settings() *session.Settings           { return h.settings }
func (h host) Authenticator() roomlink.Authenticator { return h.cfg.Authenticator }
func (h host) Metrics() *metrics.Metrics             { return h.metrics }
func (h host) Logger() zerolog.Logger                { return h.cfg.Logger }

// Context is cancelled when the manager stops.
func (h host) Context() context.Context {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ctx
}
