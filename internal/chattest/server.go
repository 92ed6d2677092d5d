// Package chattest runs an in-process chat server for tests. It accepts
// both plain TCP streams and WebSocket connections carrying the same
// frames, and hands every decoded frame to a FrameFn.
package chattest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/luciancaetano/roomlink/internal/protocol"
	"github.com/luciancaetano/roomlink/internal/transport"
)

// FrameFn is called on the client's reader goroutine for every frame it sends.
type FrameFn = func(c *Client, f protocol.Frame)

// OnConnectFn is called once a client is accepted, before its frames are read.
type OnConnectFn = func(c *Client)

// OnClientDisconnectFn is called after a client's connection ends.
type OnClientDisconnectFn = func(c *Client)

type ServerConfig struct {
	OnFrame            FrameFn
	OnConnect          OnConnectFn
	OnClientDisconnect OnClientDisconnectFn
	Logger             zerolog.Logger
}

// Server listens on two loopback ports, one per transport.
type Server struct {
	cfg      ServerConfig
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	clients sync.Map // map[string]*Client

	mu       sync.RWMutex
	running  bool
	ln       net.Listener
	httpLn   net.Listener
	server   *http.Server
	dialed   []string
	accepted chan *Client
}

// New creates a stopped server.
func New(cfg *ServerConfig) *Server {
	if cfg == nil {
		cfg = &ServerConfig{Logger: zerolog.Nop()}
	}
	return &Server{
		cfg:    *cfg,
		logger: cfg.Logger.With().Str("module", "chattest").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  transport.ReadChunkSize,
			WriteBufferSize: transport.ReadChunkSize,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		accepted: make(chan *Client, 64),
	}
}

// Start opens both listeners.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("chattest: server already running")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("chattest: listen tcp: %w", err)
	}
	httpLn, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		ln.Close()
		return fmt.Errorf("chattest: listen websocket: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.ln = ln
	s.httpLn = httpLn
	s.running = true

	go s.acceptLoop(ln)
	go func() {
		if err := s.server.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("websocket server stopped")
		}
	}()
	return nil
}

// Stop closes the listeners and every client.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	ln, server := s.ln, s.server
	s.mu.Unlock()

	s.clients.Range(func(_, value any) bool {
		value.(*Client).Close()
		return true
	})
	ln.Close()
	return server.Shutdown(ctx)
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		go s.serve(newClient(&streamPeer{conn: c}, c.RemoteAddr().String()))
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	go s.serve(newClient(&wsPeer{conn: conn}, r.RemoteAddr))
}

func (s *Server) serve(c *Client) {
	s.clients.Store(c.ID(), c)
	defer func() {
		s.clients.Delete(c.ID())
		c.Close()
		if s.cfg.OnClientDisconnect != nil {
			s.cfg.OnClientDisconnect(c)
		}
	}()

	if s.cfg.OnConnect != nil {
		s.cfg.OnConnect(c)
	}
	select {
	case s.accepted <- c:
	default:
	}

	var dec protocol.Decoder
	for {
		data, err := c.peer.read()
		if err != nil {
			return
		}
		for _, f := range dec.Feed(data) {
			c.record(f)
			if s.cfg.OnFrame != nil {
				s.cfg.OnFrame(c, f)
			}
		}
	}
}

// Accepted delivers clients as they connect.
func (s *Server) Accepted() <-chan *Client {
	return s.accepted
}

// Clients returns the connected clients.
func (s *Server) Clients() []*Client {
	var out []*Client
	s.clients.Range(func(_, value any) bool {
		out = append(out, value.(*Client))
		return true
	})
	return out
}

// Broadcast sends a frame to every connected client.
func (s *Server) Broadcast(args ...string) {
	for _, c := range s.Clients() {
		c.Send(args...)
	}
}

// TCPAddr returns the stream listener address.
func (s *Server) TCPAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ln.Addr().String()
}

// WebSocketAddr returns the WebSocket listener address.
func (s *Server) WebSocketAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.httpLn.Addr().String()
}

// Dialed returns every "host:port" requested through Dialer, in order.
func (s *Server) Dialed() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.dialed)
}

// Dialer returns a dialer that sends every connection to this server,
// whatever host it is asked for. kind is "tcp" or "websocket".
func (s *Server) Dialer(kind string) transport.Dialer {
	var next transport.Dialer
	addr := s.TCPAddr()
	if kind == "websocket" {
		next = transport.NewWebSocketDialer(time.Second, transport.NoRateLimit(), s.logger)
		addr = s.WebSocketAddr()
	} else {
		next = transport.NewTCPDialer(time.Second, transport.NoRateLimit(), s.logger)
	}
	host, p, _ := net.SplitHostPort(addr)
	port, _ := strconv.Atoi(p)
	return &redirect{s: s, next: next, host: host, port: port}
}

type redirect struct {
	s    *Server
	next transport.Dialer
	host string
	port int
}

func (r *redirect) Dial(ctx context.Context, host string, port int) (transport.Conn, error) {
	r.s.mu.Lock()
	r.s.dialed = append(r.s.dialed, net.JoinHostPort(host, strconv.Itoa(port)))
	r.s.mu.Unlock()
	return r.next.Dial(ctx, r.host, r.port)
}
