package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zeusync/worldsync/internal/core/observability/log"
	"github.com/zeusync/worldsync/internal/core/protocol/packet"
	"github.com/zeusync/worldsync/internal/core/transport"
)

const (
	handshakeDatagrams = 3
	handshakeSpacing   = 100 * time.Millisecond
)

// Session is a joined connection to an authority.
type Session struct {
	link     *transport.Link
	playerID int64
	logger   log.Log

	inbound chan packet.Message
	done    chan struct{}
	stop    context.CancelFunc

	errOnce   sync.Once
	err       error
	closeOnce sync.Once
}

var _ Conn = (*Session)(nil)

// Dial connects to cfg.ServerAddr and joins as cfg.Name. Packets that
// arrive after the WELCOME stay queued on Inbound.
func Dial(ctx context.Context, cfg Config, logger log.Log) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()

	logger = logger.With(log.String("component", "session"), log.String("server", cfg.ServerAddr))
	link, err := transport.Dial(ctx, cfg.Transport, cfg.ServerAddr, transport.Options{
		SendQueueSize: cfg.SendQueueSize,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}

	serveCtx, stop := context.WithCancel(context.Background())
	s := &Session{
		link:    link,
		logger:  logger,
		inbound: make(chan packet.Message, cfg.SendQueueSize),
		done:    make(chan struct{}),
		stop:    stop,
	}
	go s.readReliable(serveCtx)
	if recv, ok := link.Unreliable.(transport.Receiver); ok {
		go s.readUnreliable(serveCtx, recv)
	}

	if err := s.join(ctx, cfg.Name); err != nil {
		_ = s.shutdown()
		return nil, err
	}
	if cfg.Transport != transport.BackendQUIC {
		s.associate()
	}
	s.logger = s.logger.With(log.Int64("player_id", s.playerID))
	s.logger.Info("Joined server")
	return s, nil
}

func (s *Session) join(ctx context.Context, name string) error {
	if err := s.link.Reliable.Send(packet.Encode(&packet.Join{Name: name, Version: packet.Version})); err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	for {
		var m packet.Message
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrHandshake, ctx.Err())
		case m = <-s.inbound:
		case <-s.done:
			// The refusal may still be queued behind the close.
			select {
			case m = <-s.inbound:
			default:
				return fmt.Errorf("%w: %w", ErrHandshake, s.Err())
			}
		}

		switch m := m.(type) {
		case *packet.Welcome:
			s.playerID = m.PlayerID
			return nil
		case *packet.ErrorNotice:
			return fmt.Errorf("%w: %s", ErrRejected, m.Message)
		case *packet.Disconnect:
			return fmt.Errorf("%w: %s", ErrRejected, m.Reason)
		default:
			s.logger.Debug("Packet before welcome", log.Stringer("type", m.Type()))
		}
	}
}

// associate ties the datagram endpoint to the player id. Datagrams may be
// lost, so the handshake is repeated a few times.
func (s *Session) associate() {
	hello := packet.Encode(&packet.Welcome{PlayerID: s.playerID})
	go func() {
		for i := 0; i < handshakeDatagrams; i++ {
			if err := s.link.Unreliable.Send(hello); err != nil {
				s.logger.Debug("Datagram handshake failed", log.Error(err))
			}
			select {
			case <-s.done:
				return
			case <-time.After(handshakeSpacing):
			}
		}
	}()
}

func (s *Session) readReliable(ctx context.Context) {
	err := s.link.Reliable.Serve(ctx, func(p []byte) {
		m, err := packet.Decode(p)
		if err != nil {
			s.logger.Warn("Dropped undecodable packet", log.Error(err))
			return
		}
		select {
		case s.inbound <- m:
		case <-ctx.Done():
		}
	})
	if err == nil {
		err = errors.New("closed by server")
	}
	s.fail(fmt.Errorf("%w: %w", ErrConnectionLost, err))
}

func (s *Session) readUnreliable(ctx context.Context, recv transport.Receiver) {
	err := recv.Serve(ctx, func(p []byte) {
		m, err := packet.Decode(p)
		if err != nil {
			s.logger.Debug("Dropped undecodable datagram", log.Error(err))
			return
		}
		select {
		case s.inbound <- m:
		default:
		}
	})
	if err != nil && ctx.Err() == nil {
		s.logger.Debug("Datagram reader stopped", log.Error(err))
	}
}

func (s *Session) fail(err error) {
	s.errOnce.Do(func() {
		s.err = err
		close(s.done)
	})
}

// PlayerID is the id the authority assigned in its welcome.
func (s *Session) PlayerID() int64 { return s.playerID }

// Send encodes m onto ch. Unreliable falls back to the reliable channel
// when the link has no datagram side.
func (s *Session) Send(ch Channel, m packet.Message) error {
	p := packet.Encode(m)
	if ch == Unreliable && s.link.Unreliable != nil {
		return s.link.Unreliable.Send(p)
	}
	return s.link.Reliable.Send(p)
}

// Inbound delivers decoded packets in arrival order.
func (s *Session) Inbound() <-chan packet.Message { return s.inbound }

// Done is closed when the session ends. Err then reports why.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err reports why the session ended, or nil while it is running.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Close says goodbye and tears the link down.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.link.Reliable.Send(packet.Encode(&packet.Disconnect{PlayerID: s.playerID, Reason: "Disconnected"}))
		err = s.shutdown()
		s.fail(ErrConnectionLost)
		s.logger.Info("Left server")
	})
	return err
}

func (s *Session) shutdown() error {
	err := s.link.Close()
	s.stop()
	return err
}

// Ping asks a server for its status without joining.
func Ping(ctx context.Context, backend transport.Backend, addr string, logger log.Log) (*packet.Ping, error) {
	link, err := transport.Dial(ctx, backend, addr, transport.Options{Logger: logger})
	if err != nil {
		return nil, err
	}
	defer link.Close()

	reply := make(chan *packet.Ping, 1)
	serveCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		_ = link.Reliable.Serve(serveCtx, func(p []byte) {
			if m, err := packet.Decode(p); err == nil {
				if ping, ok := m.(*packet.Ping); ok {
					select {
					case reply <- ping:
					default:
					}
				}
			}
		})
	}()

	if err := link.Reliable.Send(packet.Encode(&packet.Ping{})); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case p := <-reply:
		return p, nil
	}
}
