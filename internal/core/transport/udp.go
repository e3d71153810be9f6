package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/zeusync/worldsync/internal/core/observability/log"
)

// MaxDatagramSize bounds a single unreliable packet.
const MaxDatagramSize = 64 * 1024

// PacketListener is the authority's single UDP socket shared by every peer.
type PacketListener struct {
	conn     *net.UDPConn
	counters Counters
	logger   log.Log
}

// ListenUDP binds the shared datagram socket.
func ListenUDP(addr string, opts Options) (*PacketListener, error) {
	opts = opts.withDefaults()
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve udp %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}
	return &PacketListener{
		conn:   conn,
		logger: opts.Logger.With(log.String("component", "udp")),
	}, nil
}

// Serve reads datagrams until ctx is done or the socket closes. The packet
// slice is reused after handle returns.
func (l *PacketListener) Serve(ctx context.Context, handle func(from netip.AddrPort, packet []byte)) error {
	stop := context.AfterFunc(ctx, func() { _ = l.conn.Close() })
	defer stop()

	buf := make([]byte, MaxDatagramSize)
	for {
		n, from, err := l.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			// ICMP errors from departed peers surface here on some platforms.
			l.logger.Debug("Datagram read failed", log.Error(err))
			continue
		}
		if n == 0 {
			continue
		}
		l.counters.AddReceived(n)
		handle(from, buf[:n])
	}
}

// Endpoint returns a Conn that sends to one peer through the shared socket.
func (l *PacketListener) Endpoint(addr netip.AddrPort) Conn {
	return &udpEndpoint{listener: l, addr: addr}
}

// Addr is the bound local address.
func (l *PacketListener) Addr() net.Addr { return l.conn.LocalAddr() }

// Counters counts datagrams received on the shared socket. Sends are counted
// by each endpoint, so summing both never counts a datagram twice.
func (l *PacketListener) Counters() *Counters { return &l.counters }

func (l *PacketListener) Close() error { return l.conn.Close() }

type udpEndpoint struct {
	listener *PacketListener
	addr     netip.AddrPort
	counters Counters
}

func (e *udpEndpoint) Send(packet []byte) error {
	n, err := e.listener.conn.WriteToUDPAddrPort(packet, e.addr)
	if err != nil {
		return err
	}
	e.counters.AddSent(n)
	return nil
}

func (e *udpEndpoint) RemoteAddr() net.Addr { return net.UDPAddrFromAddrPort(e.addr) }

func (e *udpEndpoint) Counters() *Counters { return &e.counters }

// Close is a no-op: the socket is shared.
func (e *udpEndpoint) Close() error { return nil }

// datagramConn is a connected client-side UDP socket.
type datagramConn struct {
	conn     *net.UDPConn
	counters Counters
}

// DialUDP opens a connected socket to the authority's datagram port.
func DialUDP(addr string, _ Options) (Receiver, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve udp %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial udp %s: %w", addr, err)
	}
	return &datagramConn{conn: conn}, nil
}

func (c *datagramConn) Send(packet []byte) error {
	n, err := c.conn.Write(packet)
	if err != nil {
		return err
	}
	c.counters.AddSent(n)
	return nil
}

func (c *datagramConn) Serve(ctx context.Context, handle func(packet []byte)) error {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()

	buf := make([]byte, MaxDatagramSize)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			// Connection refused until the authority's socket is reachable.
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if n == 0 {
			continue
		}
		c.counters.AddReceived(n)
		handle(buf[:n])
	}
}

func (c *datagramConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *datagramConn) Counters() *Counters { return &c.counters }

func (c *datagramConn) Close() error { return c.conn.Close() }
