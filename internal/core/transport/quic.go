package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

const (
	alpn             = "worldsync"
	streamAcceptWait = 5 * time.Second
)

func quicConfig() *quic.Config {
	return &quic.Config{
		EnableDatagrams:      true,
		MaxIdleTimeout:       35 * time.Second,
		KeepAlivePeriod:      10 * time.Second,
		HandshakeIdleTimeout: 10 * time.Second,
	}
}

// QUICListener carries the reliable channel on the first bidirectional
// stream of each connection and the unreliable channel on QUIC datagrams, so
// no separate association handshake is needed.
//
// Connections are accepted in the background. Each one waits for its first
// stream on its own goroutine, so a peer that never opens one cannot hold up
// the others.
type QUICListener struct {
	ln     *quic.Listener
	opts   Options
	links  chan *Link
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// ListenQUIC binds addr with a fresh self-signed certificate and starts
// accepting connections.
func ListenQUIC(addr string, opts Options) (*QUICListener, error) {
	tlsConf, err := selfSignedTLS()
	if err != nil {
		return nil, err
	}
	ln, err := quic.ListenAddr(addr, tlsConf, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("listen quic %s: %w", addr, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &QUICListener{
		ln:     ln,
		opts:   opts.withDefaults(),
		links:  make(chan *Link),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go l.acceptLoop()
	return l, nil
}

func (l *QUICListener) acceptLoop() {
	defer close(l.done)
	for {
		conn, err := l.ln.Accept(l.ctx)
		if err != nil {
			l.err = err
			return
		}
		go l.awaitStream(conn)
	}
}

func (l *QUICListener) awaitStream(conn *quic.Conn) {
	ctx, cancel := context.WithTimeout(l.ctx, streamAcceptWait)
	stream, err := conn.AcceptStream(ctx)
	cancel()
	if err != nil {
		_ = conn.CloseWithError(0, "no stream opened")
		return
	}

	link := newQUICLink(conn, stream, l.opts)
	select {
	case l.links <- link:
	case <-l.ctx.Done():
		_ = link.Close()
	}
}

// Accept returns the next connection that has opened its stream.
func (l *QUICListener) Accept(ctx context.Context) (*Link, error) {
	select {
	case link := <-l.links:
		return link, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
		if errors.Is(l.err, quic.ErrServerClosed) || l.ctx.Err() != nil {
			return nil, ErrClosed
		}
		return nil, l.err
	}
}

// Addr is the bound UDP address.
func (l *QUICListener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting. Links already returned by Accept stay open.
func (l *QUICListener) Close() error {
	l.cancel()
	return l.ln.Close()
}

// DialQUIC connects and opens the reliable stream.
func DialQUIC(ctx context.Context, addr string, opts Options) (*Link, error) {
	opts = opts.withDefaults()
	conn, err := quic.DialAddr(ctx, addr, clientTLS(), quicConfig())
	if err != nil {
		return nil, fmt.Errorf("dial quic %s: %w", addr, err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "stream open failed")
		return nil, fmt.Errorf("open quic stream: %w", err)
	}
	return newQUICLink(conn, stream, opts), nil
}

func clientTLS() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true, // self-signed authority certificates
		NextProtos:         []string{alpn},
		MinVersion:         tls.VersionTLS13,
	}
}

func newQUICLink(conn *quic.Conn, stream *quic.Stream, opts Options) *Link {
	closeConn := func() error {
		_ = stream.Close()
		return conn.CloseWithError(0, "closed")
	}
	return &Link{
		Reliable:   newStreamConn(stream, closeConn, conn.RemoteAddr(), opts),
		Unreliable: &quicDatagramConn{conn: conn},
	}
}

type quicDatagramConn struct {
	conn     *quic.Conn
	counters Counters
}

func (c *quicDatagramConn) Send(packet []byte) error {
	if err := c.conn.SendDatagram(packet); err != nil {
		return err
	}
	c.counters.AddSent(len(packet))
	return nil
}

func (c *quicDatagramConn) Serve(ctx context.Context, handle func(packet []byte)) error {
	for {
		b, err := c.conn.ReceiveDatagram(ctx)
		if err != nil {
			if ctx.Err() != nil || c.conn.Context().Err() != nil {
				return nil
			}
			return err
		}
		c.counters.AddReceived(len(b))
		handle(b)
	}
}

func (c *quicDatagramConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *quicDatagramConn) Counters() *Counters { return &c.counters }

// Close is handled by the reliable side, which owns the QUIC connection.
func (c *quicDatagramConn) Close() error { return nil }

func selfSignedTLS() (*tls.Config, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "worldsync"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		NextProtos:   []string{alpn},
		MinVersion:   tls.VersionTLS13,
	}, nil
}
