// Package config loads the bot configuration from the environment.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/roomlink"
	"github.com/luciancaetano/roomlink/internal/auth"
	"github.com/luciancaetano/roomlink/internal/manager"
	"github.com/luciancaetano/roomlink/internal/shard"
	"github.com/luciancaetano/roomlink/internal/transport"
)

// Config holds every setting of a bot process
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
type Config struct {
	// Account
	Name     string   `env:"ROOMLINK_NAME"`
	Password string   `env:"ROOMLINK_PASSWORD"`
	Rooms    []string `env:"ROOMLINK_ROOMS" envSeparator:","`
	PM       bool     `env:"ROOMLINK_PM" envDefault:"false"`

	// Servers
	Transport     string `env:"ROOMLINK_TRANSPORT" envDefault:"tcp"`
	RoomPort      int    `env:"ROOMLINK_ROOM_PORT" envDefault:"443"`
	WebSocketPort int    `env:"ROOMLINK_WEBSOCKET_PORT" envDefault:"8080"`
	Domain        string `env:"ROOMLINK_DOMAIN" envDefault:"chatango.com"`
	PMHost        string `env:"ROOMLINK_PM_HOST" envDefault:"c1.chatango.com"`
	PMPort        int    `env:"ROOMLINK_PM_PORT" envDefault:"5222"`
	AnonPMHost    string `env:"ROOMLINK_ANON_PM_HOST" envDefault:"b1.chatango.com"`
	LoginURL      string `env:"ROOMLINK_LOGIN_URL" envDefault:"http://chatango.com/login"`

	// Timing
	PingDelay       time.Duration `env:"ROOMLINK_PING_DELAY" envDefault:"20s"`
	TimerResolution time.Duration `env:"ROOMLINK_TIMER_RESOLUTION" envDefault:"200ms"`

	// Messages
	MaxLength  int    `env:"ROOMLINK_MAX_LENGTH" envDefault:"700"`
	BigMessage string `env:"ROOMLINK_BIG_MESSAGE" envDefault:"multiple"`
	MaxHistory int    `env:"ROOMLINK_MAX_HISTORY" envDefault:"150"`

	// User lists
	UserlistMode   string `env:"ROOMLINK_USERLIST_MODE" envDefault:"recent"`
	UserlistUnique bool   `env:"ROOMLINK_USERLIST_UNIQUE" envDefault:"true"`
	UserlistMemory int    `env:"ROOMLINK_USERLIST_MEMORY" envDefault:"50"`
	UniqueEvents   bool   `env:"ROOMLINK_UNIQUE_EVENTS" envDefault:"false"`

	// Outbound rate limiting
	RateLimitEnabled bool    `env:"ROOMLINK_RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitPerSec  float64 `env:"ROOMLINK_RATE_LIMIT_PER_SEC" envDefault:"5"`
	RateLimitBurst   int     `env:"ROOMLINK_RATE_LIMIT_BURST" envDefault:"10"`

	// Observability
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`
	MetricsAddr string `env:"ROOMLINK_METRICS_ADDR" envDefault:":9090"`

	// Relay
	NATSURL     string `env:"ROOMLINK_NATS_URL"`
	NATSSubject string `env:"ROOMLINK_NATS_SUBJECT" envDefault:"roomlink.events"`
}

// Load reads configuration from a .env file and environment variables
// Priority: ENV vars > .env file > defaults
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("No .env file found (using environment variables only)")
		}
	} else if logger != nil {
		logger.Info().Msg("Loaded configuration from .env file")
	}

	cfg, err := Parse(nil)
	if err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info().Msg("Configuration loaded and validated successfully")
	}
	return cfg, nil
}

// Parse reads configuration from environ, or from the process environment
// when environ is nil, and validates it.
func Parse(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.Password != "" && c.Name == "" {
		return fmt.Errorf("ROOMLINK_PASSWORD needs ROOMLINK_NAME")
	}

	for _, r := range c.Rooms {
		if strings.TrimSpace(r) == "" {
			return fmt.Errorf("ROOMLINK_ROOMS contains an empty room name")
		}
	}

	if c.RoomPort < 1 || c.RoomPort > 65535 {
		return fmt.Errorf("ROOMLINK_ROOM_PORT must be 1-65535, got %d", c.RoomPort)
	}
	if c.WebSocketPort < 1 || c.WebSocketPort > 65535 {
		return fmt.Errorf("ROOMLINK_WEBSOCKET_PORT must be 1-65535, got %d", c.WebSocketPort)
	}
	if c.PMPort < 1 || c.PMPort > 65535 {
		return fmt.Errorf("ROOMLINK_PM_PORT must be 1-65535, got %d", c.PMPort)
	}
	if c.PingDelay <= 0 {
		return fmt.Errorf("ROOMLINK_PING_DELAY must be > 0, got %s", c.PingDelay)
	}
	if c.TimerResolution <= 0 {
		return fmt.Errorf("ROOMLINK_TIMER_RESOLUTION must be > 0, got %s", c.TimerResolution)
	}
	if c.MaxLength < 1 {
		return fmt.Errorf("ROOMLINK_MAX_LENGTH must be > 0, got %d", c.MaxLength)
	}
	if c.MaxHistory < 1 {
		return fmt.Errorf("ROOMLINK_MAX_HISTORY must be > 0, got %d", c.MaxHistory)
	}
	if c.UserlistMemory < 1 {
		return fmt.Errorf("ROOMLINK_USERLIST_MEMORY must be > 0, got %d", c.UserlistMemory)
	}
	if c.RateLimitEnabled && (c.RateLimitPerSec <= 0 || c.RateLimitBurst < 1) {
		return fmt.Errorf("ROOMLINK_RATE_LIMIT_PER_SEC and ROOMLINK_RATE_LIMIT_BURST must be > 0 when rate limiting is enabled")
	}

	if !slices.Contains([]string{manager.TransportTCP, manager.TransportWebSocket}, c.Transport) {
		return fmt.Errorf("ROOMLINK_TRANSPORT must be one of: tcp, websocket (got: %s)", c.Transport)
	}
	if !slices.Contains([]string{"multiple", "cut"}, c.BigMessage) {
		return fmt.Errorf("ROOMLINK_BIG_MESSAGE must be one of: multiple, cut (got: %s)", c.BigMessage)
	}
	if !slices.Contains([]string{"recent", "all"}, c.UserlistMode) {
		return fmt.Errorf("ROOMLINK_USERLIST_MODE must be one of: recent, all (got: %s)", c.UserlistMode)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, pretty (got: %s)", c.LogFormat)
	}
	return nil
}

// Settings converts the configuration into manager settings. Metrics are
// left for the caller to attach.
func (c *Config) Settings(logger zerolog.Logger) manager.Config {
	cfg := manager.DefaultConfig()
	cfg.Name = c.Name
	cfg.Password = c.Password
	cfg.PM = c.PM
	cfg.Transport = c.Transport
	cfg.RoomPort = c.RoomPort
	if c.Transport == manager.TransportWebSocket {
		cfg.RoomPort = c.WebSocketPort
	}
	cfg.Shards = shard.New(shard.Specials, shard.Weights, c.Domain)
	cfg.PMHost = c.PMHost
	cfg.PMPort = c.PMPort
	cfg.AnonPMHost = c.AnonPMHost
	cfg.PingDelay = c.PingDelay
	cfg.TimerResolution = c.TimerResolution
	cfg.MaxLength = c.MaxLength
	cfg.MaxHistory = c.MaxHistory
	cfg.UserlistUnique = c.UserlistUnique
	cfg.UserlistMemory = c.UserlistMemory
	cfg.UniqueEvents = c.UniqueEvents
	cfg.Logger = logger

	if c.BigMessage == "cut" {
		cfg.BigMessage = roomlink.BigMessageCut
	}
	if c.UserlistMode == "all" {
		cfg.UserlistMode = roomlink.UserlistAll
	}

	cfg.RateLimit = &transport.RateLimitConfig{
		MessagesPerSecond: rate.Limit(c.RateLimitPerSec),
		Burst:             c.RateLimitBurst,
		Enabled:           c.RateLimitEnabled,
	}
	cfg.Authenticator = auth.NewHTTPLogin(c.LoginURL, logger)
	return cfg
}

// LogConfig logs configuration using structured logging. The password is never logged.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("name", c.Name).
		Bool("password_set", c.Password != "").
		Strs("rooms", c.Rooms).
		Bool("pm", c.PM).
		Str("transport", c.Transport).
		Int("room_port", c.RoomPort).
		Int("websocket_port", c.WebSocketPort).
		Str("domain", c.Domain).
		Str("pm_host", c.PMHost).
		Int("pm_port", c.PMPort).
		Dur("ping_delay", c.PingDelay).
		Dur("timer_resolution", c.TimerResolution).
		Int("max_length", c.MaxLength).
		Str("big_message", c.BigMessage).
		Int("max_history", c.MaxHistory).
		Str("userlist_mode", c.UserlistMode).
		Bool("rate_limit_enabled", c.RateLimitEnabled).
		Float64("rate_limit_per_sec", c.RateLimitPerSec).
		Int("rate_limit_burst", c.RateLimitBurst).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Str("metrics_addr", c.MetricsAddr).
		Bool("relay", c.NATSURL != "").
		Msg("Bot configuration loaded")
}
