// Package client is the public entry point for building a roomlink bot.
package client

import (
	"github.com/luciancaetano/roomlink"
	"github.com/luciancaetano/roomlink/internal/manager"
	"github.com/luciancaetano/roomlink/internal/transport"
)

type Config = manager.Config
type RateLimitConfig = transport.RateLimitConfig
type Dialer = transport.Dialer

// Transports accepted by Config.Transport.
const (
	TransportTCP       = manager.TransportTCP
	TransportWebSocket = manager.TransportWebSocket
)

// New creates a manager. Nothing is dialled until Start.
//
// Parameters:
//   - cfg: Settings. Zero fields take the values of DefaultSettings().
//   - handler: Receives every event. Embed roomlink.NopHandler to implement
//     only the events you need. Can be nil.
//
// Example:
//
//	mgr := client.New(client.NewConfig("botname", "secret", false), bot{})
//	mgr.JoinRoom("lobby")
//	mgr.Start(ctx)
func New(cfg Config, handler roomlink.Handler) roomlink.Manager {
	return manager.New(cfg, handler)
}

// NewConfig returns DefaultSettings() with the account filled in.
// An empty password posts under a temporary name; an empty name posts anonymously.
// pm opens the private-message session on Start.
func NewConfig(name, password string, pm bool) Config {
	cfg := manager.DefaultConfig()
	cfg.Name = name
	cfg.Password = password
	cfg.PM = pm
	return cfg
}

// DefaultSettings returns the settings of the public service.
func DefaultSettings() Config {
	return manager.DefaultConfig()
}

// DefaultRateLimitConfig returns the default outbound rate limit
// Allows 5 frames per second with burst of 10
func DefaultRateLimitConfig() *RateLimitConfig {
	return transport.DefaultRateLimitConfig()
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return transport.NoRateLimit()
}
