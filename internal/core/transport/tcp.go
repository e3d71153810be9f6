package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// TCPListener accepts reliable links whose unreliable side is associated
// later through a PacketListener.
type TCPListener struct {
	ln   net.Listener
	opts Options
}

// ListenTCP binds addr for reliable links.
func ListenTCP(addr string, opts Options) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
	}
	return &TCPListener{ln: ln, opts: opts.withDefaults()}, nil
}

// Accept waits for the next connection. Cancelling ctx closes the listener.
func (l *TCPListener) Accept(ctx context.Context) (*Link, error) {
	stop := context.AfterFunc(ctx, func() { _ = l.ln.Close() })
	defer stop()

	conn, err := l.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return &Link{Reliable: newTCPConn(conn, l.opts)}, nil
}

func (l *TCPListener) Addr() net.Addr { return l.ln.Addr() }

func (l *TCPListener) Close() error { return l.ln.Close() }

func newTCPConn(conn net.Conn, opts Options) *streamConn {
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return newStreamConn(conn, conn.Close, conn.RemoteAddr(), opts)
}

// DialTCP connects the reliable channel over TCP and the unreliable channel
// over UDP to the same address.
func DialTCP(ctx context.Context, addr string, opts Options) (*Link, error) {
	opts = opts.withDefaults()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial tcp %s: %w", addr, err)
	}

	udp, err := DialUDP(conn.RemoteAddr().String(), opts)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &Link{Reliable: newTCPConn(conn, opts), Unreliable: udp}, nil
}
