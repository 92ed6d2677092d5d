// Command roomlinkbot is an echo bot configured from the environment.
//
// It answers "!ping" with "pong" and "!echo <text>" with the text in every
// joined room, echoes private messages back to their sender, serves
// Prometheus metrics and, when ROOMLINK_NATS_URL is set, republishes chat
// events to NATS.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/luciancaetano/roomlink"
	"github.com/luciancaetano/roomlink/internal/config"
	"github.com/luciancaetano/roomlink/internal/logging"
	"github.com/luciancaetano/roomlink/internal/manager"
	"github.com/luciancaetano/roomlink/internal/metrics"
	"github.com/luciancaetano/roomlink/internal/relay"
)

type bot struct {
	roomlink.NopHandler
	logger zerolog.Logger
}

func (b bot) OnConnect(room roomlink.Room) {
	b.logger.Info().Str("room", room.Name()).Int("users", room.UserCount()).Msg("connected")
}

func (b bot) OnDisconnect(room roomlink.Room) {
	b.logger.Info().Str("room", room.Name()).Msg("disconnected")
}

func (b bot) OnConnectFail(room roomlink.Room) {
	b.logger.Warn().Str("room", room.Name()).Msg("connect failed")
}

func (b bot) OnMessage(room roomlink.Room, user *roomlink.User, msg *roomlink.Message) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(msg.Body), " ")
	switch cmd {
	case "!ping":
		room.Message("pong", false, roomlink.ChannelWhite)
	case "!echo":
		if arg != "" {
			room.Message(user.Name()+" said "+arg, false, roomlink.ChannelWhite)
		}
	}
}

func (b bot) OnPMMessage(pm roomlink.PrivateMessenger, user *roomlink.User, body string) {
	pm.Message(user, body)
}

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	startup := logging.New("info", logging.FormatJSON)
	cfg, err := config.Load(&startup)
	if err != nil {
		startup.Fatal().Err(err).Msg("failed to load config")
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("starting")
	cfg.LogConfig(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	settings := cfg.Settings(logger)
	settings.Metrics = metrics.New(reg)

	var handler roomlink.Handler = bot{logger: logger.With().Str("module", "bot").Logger()}
	if cfg.NATSURL != "" {
		nc, err := relay.Connect(cfg.NATSURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Str("url", cfg.NATSURL).Msg("failed to connect to NATS")
		}
		defer nc.Drain()
		handler = relay.New(handler, nc, cfg.NATSSubject, logger)
	}

	mgr := manager.New(settings, handler)
	for _, room := range cfg.Rooms {
		mgr.JoinRoom(room)
	}

	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	if err := mgr.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start manager")
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- mgr.Wait() }()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-waitErr:
		if err != nil {
			logger.Error().Err(err).Msg("manager stopped")
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := mgr.Stop(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("manager did not stop in time")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("metrics server did not stop in time")
	}
}

func metricsMux(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
