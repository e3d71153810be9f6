// Package transport carries framed packets over a reliable ordered channel and
// an unreliable datagram channel.
package transport

import (
	"context"
	"errors"
	"net"

	"github.com/zeusync/worldsync/internal/core/observability/log"
)

var (
	ErrClosed        = errors.New("transport: connection closed")
	ErrSendQueueFull = errors.New("transport: send queue full")
	ErrUnsupported   = errors.New("transport: unsupported backend")
)

// Conn sends packets to one peer. Send never blocks on the network.
type Conn interface {
	Send(packet []byte) error
	RemoteAddr() net.Addr
	Counters() *Counters
	Close() error
}

// Receiver is a Conn that owns its read side. Serve calls handle once per
// received packet, in arrival order, until the connection closes or ctx is
// done. The slice passed to handle is only valid during the call.
type Receiver interface {
	Conn
	Serve(ctx context.Context, handle func(packet []byte)) error
}

// Link pairs the two channels of one peer. Unreliable is nil for a TCP link on
// the authority until the peer's datagram handshake arrives.
type Link struct {
	Reliable   Receiver
	Unreliable Conn
}

// Close closes both channels.
func (l *Link) Close() error {
	err := l.Reliable.Close()
	if l.Unreliable != nil {
		err = errors.Join(err, l.Unreliable.Close())
	}
	return err
}

// Listener accepts reliable links.
type Listener interface {
	Accept(ctx context.Context) (*Link, error)
	Addr() net.Addr
	Close() error
}

// Backend selects how the reliable channel is carried.
type Backend string

const (
	BackendTCP  Backend = "tcp"
	BackendQUIC Backend = "quic"
)

// Options tunes a connection. SendQueueSize bounds the frames buffered per
// reliable channel; zero means 256. A nil Logger uses the process logger.
type Options struct {
	SendQueueSize int
	Logger        log.Log
}

func (o Options) withDefaults() Options {
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = 256
	}
	if o.Logger == nil {
		o.Logger = log.Provide()
	}
	return o
}

// Dial opens a client link to addr over the given backend.
func Dial(ctx context.Context, backend Backend, addr string, opts Options) (*Link, error) {
	switch backend {
	case BackendTCP, "":
		return DialTCP(ctx, addr, opts)
	case BackendQUIC:
		return DialQUIC(ctx, addr, opts)
	default:
		return nil, ErrUnsupported
	}
}
