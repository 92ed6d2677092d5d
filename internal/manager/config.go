package manager

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/luciancaetano/roomlink"
	"github.com/luciancaetano/roomlink/internal/auth"
	"github.com/luciancaetano/roomlink/internal/metrics"
	"github.com/luciancaetano/roomlink/internal/session"
	"github.com/luciancaetano/roomlink/internal/shard"
	"github.com/luciancaetano/roomlink/internal/transport"
)

const (
	DefaultRoomPort        = 443
	DefaultWebSocketPort   = 8080
	DefaultPMHost          = "c1.chatango.com"
	DefaultPMPort          = 5222
	DefaultAnonPMHost      = "b1.chatango.com"
	DefaultPingDelay       = 20 * time.Second
	DefaultTimerResolution = 200 * time.Millisecond
	DefaultMaxLength       = 700
	DefaultUserlistMemory  = 50
	DefaultDialTimeout     = 10 * time.Second
)

// Transports accepted by Config.Transport.
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)

// Config configures a Manager.
type Config struct {
	// Name and Password log the bot in. A name without a password posts
	// under a temporary name; neither posts anonymously.
	Name     string
	Password string

	// PM opens the private-message session on Start: the authenticated
	// session when a password is set, anonymous links otherwise.
	PM bool

	Shards     *shard.Selector
	RoomPort   int
	PMHost     string
	PMPort     int
	AnonPMHost string

	PingDelay       time.Duration
	TimerResolution time.Duration

	MaxLength  int
	BigMessage roomlink.BigMessagePolicy
	MaxHistory int

	UserlistMode   roomlink.UserlistMode
	UserlistUnique bool
	UserlistMemory int
	UniqueEvents   bool

	// Transport selects the default dialer: TransportTCP or TransportWebSocket.
	Transport string
	// RateLimit throttles writes on every connection of the default dialer.
	RateLimit *transport.RateLimitConfig
	// Dialer opens every connection. It overrides Transport and RateLimit.
	Dialer transport.Dialer
	// Authenticator exchanges the credentials for the PM session token.
	// It defaults to the login form of the public service.
	Authenticator roomlink.Authenticator

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// DefaultConfig returns the settings of the public service.
func DefaultConfig() Config {
	return Config{
		Shards:          shard.Default(),
		Transport:       TransportTCP,
		RateLimit:       transport.DefaultRateLimitConfig(),
		RoomPort:        DefaultRoomPort,
		PMHost:          DefaultPMHost,
		PMPort:          DefaultPMPort,
		AnonPMHost:      DefaultAnonPMHost,
		PingDelay:       DefaultPingDelay,
		TimerResolution: DefaultTimerResolution,
		MaxLength:       DefaultMaxLength,
		BigMessage:      roomlink.BigMessageMultiple,
		MaxHistory:      150,
		UserlistMode:    roomlink.UserlistRecent,
		UserlistUnique:  true,
		UserlistMemory:  DefaultUserlistMemory,
		Logger:          zerolog.Nop(),
	}
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Shards == nil {
		c.Shards = d.Shards
	}
	if c.Transport == "" {
		c.Transport = d.Transport
	}
	if c.RoomPort == 0 {
		c.RoomPort = d.RoomPort
		if c.Transport == TransportWebSocket {
			c.RoomPort = DefaultWebSocketPort
		}
	}
	if c.PMHost == "" {
		c.PMHost = d.PMHost
	}
	if c.PMPort == 0 {
		c.PMPort = d.PMPort
	}
	if c.AnonPMHost == "" {
		c.AnonPMHost = d.AnonPMHost
	}
	if c.PingDelay <= 0 {
		c.PingDelay = d.PingDelay
	}
	if c.TimerResolution <= 0 {
		c.TimerResolution = d.TimerResolution
	}
	if c.MaxLength <= 0 {
		c.MaxLength = d.MaxLength
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = d.MaxHistory
	}
	if c.RateLimit == nil {
		c.RateLimit = transport.NoRateLimit()
	}
	if c.Authenticator == nil {
		c.Authenticator = auth.NewHTTPLogin(auth.DefaultLoginURL, c.Logger)
	}
	if c.Dialer == nil {
		if c.Transport == TransportWebSocket {
			c.Dialer = transport.NewWebSocketDialer(DefaultDialTimeout, c.RateLimit, c.Logger)
		} else {
			c.Dialer = transport.NewTCPDialer(DefaultDialTimeout, c.RateLimit, c.Logger)
		}
	}
	return c
}

func (c Config) settings() *session.Settings {
	return &session.Settings{
		Name:           c.Name,
		Password:       c.Password,
		RoomPort:       c.RoomPort,
		PMHost:         c.PMHost,
		PMPort:         c.PMPort,
		AnonPMHost:     c.AnonPMHost,
		Shards:         c.Shards,
		PingDelay:      c.PingDelay,
		MaxLength:      c.MaxLength,
		BigMessage:     c.BigMessage,
		MaxHistory:     c.MaxHistory,
		UserlistMode:   c.UserlistMode,
		UserlistUnique: c.UserlistUnique,
		UserlistMemory: c.UserlistMemory,
		UniqueEvents:   c.UniqueEvents,
	}
}
