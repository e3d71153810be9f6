package transport

import (
	"bytes"
	"context"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/worldsync/internal/core/observability/log"
)

func testOptions() Options {
	return Options{SendQueueSize: 16, Logger: log.NewNop()}
}

type sink struct {
	mu      sync.Mutex
	packets [][]byte
}

func (s *sink) add(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets = append(s.packets, bytes.Clone(p))
}

func (s *sink) get() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.packets...)
}

func acceptOne(t *testing.T, ln Listener) <-chan *Link {
	t.Helper()
	ch := make(chan *Link, 1)
	go func() {
		link, err := ln.Accept(context.Background())
		if err == nil {
			ch <- link
		}
		close(ch)
	}()
	return ch
}

func TestTCPReliableOrdered(t *testing.T) {
	ln, err := ListenTCP("127.0.0.1:0", testOptions())
	require.NoError(t, err)
	defer ln.Close()

	accepted := acceptOne(t, ln)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := DialTCP(ctx, ln.Addr().String(), testOptions())
	require.NoError(t, err)
	defer client.Close()

	server := <-accepted
	require.NotNil(t, server)
	assert.Nil(t, server.Unreliable)

	var got sink
	go func() { _ = server.Reliable.Serve(ctx, got.add) }()

	want := [][]byte{{1, 2, 3}, {4}, bytes.Repeat([]byte{9}, 5000)}
	for _, p := range want {
		require.NoError(t, client.Reliable.Send(p))
	}

	require.Eventually(t, func() bool { return len(got.get()) == len(want) }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, want, got.get())

	stats := server.Reliable.Counters().Take()
	assert.Equal(t, uint64(3), stats.PacketsReceived)
	assert.Equal(t, uint64(3+1+5000+3*2), stats.BytesReceived)
	assert.Equal(t, Stats{}, server.Reliable.Counters().Take())
}

func TestStreamSendAfterClose(t *testing.T) {
	ln, err := ListenTCP("127.0.0.1:0", testOptions())
	require.NoError(t, err)
	defer ln.Close()

	accepted := acceptOne(t, ln)
	client, err := DialTCP(context.Background(), ln.Addr().String(), testOptions())
	require.NoError(t, err)
	server := <-accepted
	require.NotNil(t, server)
	defer server.Close()

	require.NoError(t, client.Close())
	assert.ErrorIs(t, client.Reliable.Send([]byte{1}), ErrClosed)
	assert.NoError(t, client.Reliable.Close())
}

func TestCloseDoesNotWaitForStalledPeer(t *testing.T) {
	near, far := net.Pipe()
	defer far.Close()

	// far never reads, so the writer goroutine blocks on the first frame.
	c := newStreamConn(near, near.Close, near.RemoteAddr(), testOptions())
	require.NoError(t, c.Send([]byte{1, 2, 3}))

	start := time.Now()
	require.NoError(t, c.Close())
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.ErrorIs(t, c.Send([]byte{4}), ErrClosed)

	select {
	case <-c.finished:
	case <-time.After(3 * flushTimeout):
		t.Fatal("stream was not closed after the flush timeout")
	}
	_, err := far.Write([]byte{0})
	assert.Error(t, err)
}

func TestServeReturnsOnPeerClose(t *testing.T) {
	ln, err := ListenTCP("127.0.0.1:0", testOptions())
	require.NoError(t, err)
	defer ln.Close()

	accepted := acceptOne(t, ln)
	client, err := DialTCP(context.Background(), ln.Addr().String(), testOptions())
	require.NoError(t, err)
	server := <-accepted
	require.NotNil(t, server)

	done := make(chan error, 1)
	go func() { done <- server.Reliable.Serve(context.Background(), func([]byte) {}) }()

	require.NoError(t, client.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after peer closed")
	}
}

func TestAcceptCancelled(t *testing.T) {
	ln, err := ListenTCP("127.0.0.1:0", testOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ln.Accept(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUDPEndpointRoundTrip(t *testing.T) {
	pl, err := ListenUDP("127.0.0.1:0", testOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type datagram struct {
		from netip.AddrPort
		data []byte
	}
	received := make(chan datagram, 4)
	go func() {
		_ = pl.Serve(ctx, func(from netip.AddrPort, p []byte) {
			received <- datagram{from: from, data: bytes.Clone(p)}
		})
	}()

	client, err := DialUDP(pl.Addr().String(), testOptions())
	require.NoError(t, err)
	defer client.Close()

	var replies sink
	go func() { _ = client.Serve(ctx, replies.add) }()

	require.NoError(t, client.Send([]byte{1, 42}))

	var d datagram
	select {
	case d = <-received:
	case <-time.After(3 * time.Second):
		t.Fatal("datagram not received")
	}
	assert.Equal(t, []byte{1, 42}, d.data)

	ep := pl.Endpoint(d.from)
	require.NoError(t, ep.Send([]byte{2, 7}))
	require.Eventually(t, func() bool { return len(replies.get()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []byte{2, 7}, replies.get()[0])
	assert.Equal(t, uint64(1), ep.Counters().Take().PacketsSent)

	// The shared socket only counts what it received; the endpoint owns sends.
	shared := pl.Counters().Take()
	assert.Equal(t, uint64(1), shared.PacketsReceived)
	assert.Zero(t, shared.PacketsSent)
}

func TestQUICLink(t *testing.T) {
	ln, err := ListenQUIC("127.0.0.1:0", testOptions())
	require.NoError(t, err)
	defer ln.Close()

	accepted := acceptOne(t, ln)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := DialQUIC(ctx, ln.Addr().String(), testOptions())
	require.NoError(t, err)
	defer client.Close()

	// The stream reaches the listener with its first frame.
	require.NoError(t, client.Reliable.Send([]byte{254, 0}))

	var server *Link
	select {
	case server = <-accepted:
	case <-ctx.Done():
		t.Fatal("quic link not accepted")
	}
	require.NotNil(t, server)
	require.NotNil(t, server.Unreliable)

	var reliable sink
	go func() { _ = server.Reliable.Serve(ctx, reliable.add) }()
	require.Eventually(t, func() bool { return len(reliable.get()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []byte{254, 0}, reliable.get()[0])

	var datagrams sink
	recv, ok := server.Unreliable.(Receiver)
	require.True(t, ok)
	go func() { _ = recv.Serve(ctx, datagrams.add) }()

	require.Eventually(t, func() bool {
		_ = client.Unreliable.Send([]byte{22, 1})
		return len(datagrams.get()) > 0
	}, 3*time.Second, 50*time.Millisecond)
	assert.Equal(t, []byte{22, 1}, datagrams.get()[0])
}

func TestQUICIdleConnDoesNotBlockAccept(t *testing.T) {
	ln, err := ListenQUIC("127.0.0.1:0", testOptions())
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Completes the handshake but never opens the reliable stream.
	idle, err := quic.DialAddr(ctx, ln.Addr().String(), clientTLS(), quicConfig())
	require.NoError(t, err)
	defer idle.CloseWithError(0, "done")

	accepted := acceptOne(t, ln)
	client, err := DialQUIC(ctx, ln.Addr().String(), testOptions())
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Reliable.Send([]byte{254, 0}))

	select {
	case server := <-accepted:
		require.NotNil(t, server)
		_ = server.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("idle connection held up accept")
	}
}

func TestQUICAcceptAfterClose(t *testing.T) {
	ln, err := ListenQUIC("127.0.0.1:0", testOptions())
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	_, err = ln.Accept(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
