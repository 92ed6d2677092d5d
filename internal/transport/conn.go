package transport

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const writeTimeout = 10 * time.Second

// wire is the framing-specific half of a connection.
type wire interface {
	read() ([]byte, error)
	write(data []byte) error
	close() error
}

// pinger is implemented by wires that need transport-level keepalives.
type pinger interface {
	pingInterval() time.Duration
	ping() error
}

// stream implements Conn over a wire.
type stream struct {
	id          string
	remoteAddr  string
	wire        wire
	ctx         context.Context
	cancel      context.CancelFunc
	rateLimiter *rate.Limiter
	logger      zerolog.Logger
	startOnce   sync.Once
	closeOnce   sync.Once

	// pending is the unbounded write queue; wake is signalled on push.
	mu      sync.Mutex
	pending [][]byte
	wake    chan struct{}
}

func newStream(w wire, remoteAddr string, rl *RateLimitConfig, logger zerolog.Logger) *stream {
	ctx, cancel := context.WithCancel(context.Background())

	s := &stream{
		id:          uuid.New().String(),
		remoteAddr:  remoteAddr,
		wire:        w,
		ctx:         ctx,
		cancel:      cancel,
		rateLimiter: rl.limiter(),
		wake:        make(chan struct{}, 1),
	}
	s.logger = logger.With().Str("conn_id", s.id).Str("remote_addr", remoteAddr).Logger()

	go s.writePump()

	return s
}

// ID returns a unique identifier for the connection
func (s *stream) ID() string {
	return s.id
}

// RemoteAddr returns the peer address
func (s *stream) RemoteAddr() string {
	return s.remoteAddr
}

// Done is closed once the connection is closed
func (s *stream) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Start launches the read loop
func (s *stream) Start(recv Receiver) {
	s.startOnce.Do(func() {
		go s.readPump(recv)
	})
}

// Send queues data for the write pump without waiting for the rate limiter
func (s *stream) Send(ctx context.Context, data []byte) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.pending = append(s.pending, data)
	s.mu.Unlock()
	s.signal()
	return nil
}

func (s *stream) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// next pops the oldest queued frame and reports whether more remain.
func (s *stream) next() (data []byte, ok, more bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, false, false
	}
	data = s.pending[0]
	s.pending[0] = nil
	s.pending = s.pending[1:]
	return data, true, len(s.pending) > 0
}

// queued returns the number of frames waiting for the write pump.
func (s *stream) queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close closes the connection
func (s *stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.wire.close()
	})
	return err
}

func (s *stream) readPump(recv Receiver) {
	for {
		data, err := s.wire.read()
		if len(data) > 0 {
			recv(s, data, nil)
		}
		if err != nil {
			s.logger.Debug().Err(err).Msg("read loop stopped")
			recv(s, nil, err)
			return
		}
	}
}

// writePump writes one queued frame per wake, interleaved with pings
func (s *stream) writePump() {
	var tick <-chan time.Time
	p, hasPing := s.wire.(pinger)
	if hasPing {
		ticker := time.NewTicker(p.pingInterval())
		defer ticker.Stop()
		tick = ticker.C
	}

	defer s.Close()

	for {
		select {
		case <-s.wake:
			data, ok, more := s.next()
			if !ok {
				continue
			}
			if more {
				s.signal()
			}
			if s.rateLimiter != nil {
				if err := s.rateLimiter.Wait(s.ctx); err != nil {
					return
				}
			}
			if err := s.wire.write(data); err != nil {
				s.logger.Debug().Err(err).Msg("write failed")
				return
			}

		case <-tick:
			if err := p.ping(); err != nil {
				s.logger.Debug().Err(err).Msg("ping failed")
				return
			}

		case <-s.ctx.Done():
			return
		}
	}
}
