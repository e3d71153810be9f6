package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/worldsync/internal/capture"
	"github.com/zeusync/worldsync/internal/core/observability/log"
	"github.com/zeusync/worldsync/internal/core/protocol/packet"
	"github.com/zeusync/worldsync/internal/core/transport"
)

// Authority owns the listeners and the event loop that drives the Router.
type Authority struct {
	config Config
	logger log.Log
	router *Router

	listener transport.Listener
	packets  *transport.PacketListener
	recorder *capture.Writer
	status   *StatusServer

	// Loop-owned state
	events    chan func()
	loopDone  chan struct{}
	conns     map[*connState]struct{}
	endpoints map[netip.AddrPort]*ClientData
	traffic   transport.Stats

	snapshot atomic.Pointer[Status]

	running atomic.Bool
	closed  atomic.Bool

	cancel   context.CancelFunc
	group    *errgroup.Group
	stopOnce sync.Once
	waitErr  error
}

// connState is one accepted link. client is set once Join succeeds and is
// only touched by the event loop.
type connState struct {
	peer     *linkPeer
	openedAt time.Time
	client   *ClientData
}

// NewAuthority creates an authority; nothing is bound until Start.
func NewAuthority(config Config, logger log.Log) *Authority {
	a := &Authority{
		config:    config,
		logger:    logger.With(log.String("component", "server")),
		router:    NewRouter(config, logger),
		events:    make(chan func(), 1024),
		loopDone:  make(chan struct{}),
		conns:     make(map[*connState]struct{}),
		endpoints: make(map[netip.AddrPort]*ClientData),
	}
	a.router.OnLeave = a.forgetEndpoints

	a.logger.Info("Server created",
		log.String("listen_addr", config.ListenAddr),
		log.String("transport", string(config.Transport)),
		log.Int("max_clients", config.MaxClients))
	return a
}

// Start binds the listeners and launches the authority goroutines.
func (a *Authority) Start(ctx context.Context) error {
	if a.closed.Load() {
		return ErrServerClosed
	}
	if !a.running.CompareAndSwap(false, true) {
		return ErrServerAlreadyRunning
	}
	if err := a.config.Validate(); err != nil {
		a.running.Store(false)
		return err
	}

	if err := a.bind(); err != nil {
		a.running.Store(false)
		a.closeListeners()
		a.logger.Error("Failed to create listener", log.Error(err))
		return fmt.Errorf("%w: %w", ErrListenerFailed, err)
	}

	if a.config.CapturePath != "" {
		recorder, err := capture.Create(a.config.CapturePath)
		if err != nil {
			a.running.Store(false)
			a.closeListeners()
			return fmt.Errorf("open capture: %w", err)
		}
		a.recorder = recorder
		a.router.tap = a.record
	}

	runCtx, cancel := context.WithCancel(ctx)
	connCtx, connCancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.publishStatus(time.Now())

	g, gctx := errgroup.WithContext(runCtx)
	a.group = g
	g.Go(func() error { return a.loop(gctx, connCancel) })
	g.Go(func() error { return a.acceptLoop(gctx, connCtx, g) })
	if a.packets != nil {
		g.Go(func() error { return a.receiveDatagrams(gctx) })
	}
	if a.status != nil {
		g.Go(func() error { return a.status.Serve(gctx) })
	}

	a.logger.Info("Server listening", log.String("addr", a.listener.Addr().String()))
	return nil
}

func (a *Authority) bind() error {
	opts := transport.Options{SendQueueSize: a.config.SendQueueSize, Logger: a.logger}

	switch a.config.Transport {
	case transport.BackendQUIC:
		ln, err := transport.ListenQUIC(a.config.ListenAddr, opts)
		if err != nil {
			return err
		}
		a.listener = ln
	default:
		ln, err := transport.ListenTCP(a.config.ListenAddr, opts)
		if err != nil {
			return err
		}
		a.listener = ln
		// The datagram socket shares the reliable port number.
		packets, err := transport.ListenUDP(ln.Addr().String(), opts)
		if err != nil {
			return err
		}
		a.packets = packets
	}

	if a.config.StatusAddr != "" {
		status, err := NewStatusServer(a.config.StatusAddr, a.Status, a.config.SweepInterval, a.logger)
		if err != nil {
			return err
		}
		a.status = status
	}
	return nil
}

func (a *Authority) closeListeners() {
	if a.listener != nil {
		_ = a.listener.Close()
	}
	if a.packets != nil {
		_ = a.packets.Close()
	}
	if a.status != nil {
		_ = a.status.Close()
	}
}

// Addr returns the reliable listener address.
func (a *Authority) Addr() net.Addr {
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// StatusAddr returns the status feed address, or nil when disabled.
func (a *Authority) StatusAddr() net.Addr {
	if a.status == nil {
		return nil
	}
	return a.status.Addr()
}

// Wait blocks until the authority goroutines have exited.
func (a *Authority) Wait() error {
	if a.group == nil {
		return ErrServerNotRunning
	}
	a.stopOnce.Do(func() { a.waitErr = a.group.Wait() })
	return a.waitErr
}

// Stop disconnects every client with "Server closed" and waits for the
// goroutines to exit.
func (a *Authority) Stop(ctx context.Context) error {
	if !a.running.CompareAndSwap(true, false) {
		return ErrServerNotRunning
	}
	a.closed.Store(true)
	a.logger.Info("Stopping server")

	a.cancel()

	done := make(chan error, 1)
	go func() { done <- a.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if a.recorder != nil {
		err = errors.Join(err, a.recorder.Close())
	}
	a.logger.Info("Server stopped")
	return err
}

// Run starts the authority and blocks until ctx is done.
func (a *Authority) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return a.Stop(context.Background())
}

// post queues fn for the event loop. It gives up once the loop has exited.
func (a *Authority) post(fn func()) {
	select {
	case a.events <- fn:
	case <-a.loopDone:
	}
}

func (a *Authority) loop(ctx context.Context, connCancel context.CancelFunc) error {
	defer close(a.loopDone)
	defer connCancel()

	ticker := time.NewTicker(a.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.shutdown()
			return nil
		case fn := <-a.events:
			fn()
		case now := <-ticker.C:
			a.sweep(now)
		}
	}
}

func (a *Authority) shutdown() {
	a.closeListeners()
	a.router.Shutdown()
	for st := range a.conns {
		_ = st.peer.Close()
	}
	clear(a.conns)
	if a.recorder != nil {
		_ = a.recorder.Flush()
	}
}

func (a *Authority) sweep(now time.Time) {
	a.router.Sweep(now)
	for st := range a.conns {
		if st.client == nil && now.Sub(st.openedAt) > a.config.ClientTimeout {
			a.logger.Debug("Closing connection that never joined",
				log.String("remote_addr", st.peer.link.Reliable.RemoteAddr().String()))
			_ = st.peer.Close()
			delete(a.conns, st)
		}
	}
	a.publishStatus(now)
	if a.recorder != nil {
		if err := a.recorder.Flush(); err != nil {
			a.logger.Warn("Capture flush failed", log.Error(err))
		}
	}
}

// acceptLoop accepts links until ctx is done. Connection readers run on
// connCtx so they outlive the final DISCONNECT fan-out.
func (a *Authority) acceptLoop(ctx, connCtx context.Context, g *errgroup.Group) error {
	a.logger.Debug("Connection acceptor started")
	defer a.logger.Debug("Connection acceptor stopped")

	for {
		link, err := a.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			a.logger.Error("Failed to accept connection", log.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		st := &connState{peer: newLinkPeer(link), openedAt: time.Now()}
		a.logger.Debug("Connection accepted", log.String("remote_addr", link.Reliable.RemoteAddr().String()))
		a.post(func() { a.conns[st] = struct{}{} })

		g.Go(func() error {
			a.serveConn(connCtx, st)
			return nil
		})
		if recv, ok := link.Unreliable.(transport.Receiver); ok {
			g.Go(func() error {
				a.serveDatagrams(connCtx, st, recv)
				return nil
			})
		}
	}
}

func (a *Authority) serveConn(ctx context.Context, st *connState) {
	err := st.peer.link.Reliable.Serve(ctx, func(p []byte) {
		m, ok := a.decode(p, Reliable, st)
		if !ok {
			return
		}
		a.post(func() { a.onReliable(st, m) })
	})
	a.post(func() { a.onClosed(st, err) })
}

// serveDatagrams reads a QUIC link's datagrams. The link needs no handshake.
func (a *Authority) serveDatagrams(ctx context.Context, st *connState, recv transport.Receiver) {
	_ = recv.Serve(ctx, func(p []byte) {
		m, ok := a.decode(p, Unreliable, st)
		if !ok {
			return
		}
		a.post(func() {
			if st.client != nil {
				a.onUnreliable(st.client, m)
			}
		})
	})
}

// decode runs on reader goroutines, which cannot read st.client, so inbound
// capture records carry no player id.
func (a *Authority) decode(p []byte, ch Channel, st *connState) (packet.Message, bool) {
	if a.recorder != nil {
		a.record(capture.Inbound, ch, 0, bytes.Clone(p))
	}
	m, err := packet.Decode(p)
	if err != nil {
		a.logger.Warn("Dropping undecodable packet",
			log.Stringer("channel", ch),
			log.String("remote_addr", st.peer.link.Reliable.RemoteAddr().String()),
			log.Error(err))
		return nil, false
	}
	return m, true
}

func (a *Authority) onReliable(st *connState, m packet.Message) {
	if st.client == nil {
		a.onUnjoined(st, m)
		return
	}
	a.router.Handle(st.client, m, Reliable)
}

func (a *Authority) onUnjoined(st *connState, m packet.Message) {
	switch m := m.(type) {
	case *packet.Ping:
		data := packet.Encode(a.router.StatusPing())
		a.record(capture.Outbound, Reliable, 0, data)
		_ = st.peer.Send(Reliable, data)
		_ = st.peer.Close()
		delete(a.conns, st)
	case *packet.Join:
		c, err := a.router.Join(st.peer, m)
		if err != nil {
			delete(a.conns, st)
			return
		}
		st.client = c
	default:
		a.logger.Debug("Dropping packet before join", log.Stringer("type", m.Type()))
	}
}

func (a *Authority) onClosed(st *connState, err error) {
	delete(a.conns, st)
	if err != nil {
		a.logger.Debug("Connection read failed", log.Error(err))
	}
	if st.client != nil {
		a.router.Leave(st.client, ReasonDisconnected)
		return
	}
	_ = st.peer.Close()
}

func (a *Authority) receiveDatagrams(ctx context.Context) error {
	return a.packets.Serve(ctx, func(from netip.AddrPort, p []byte) {
		if a.recorder != nil {
			a.record(capture.Inbound, Unreliable, 0, bytes.Clone(p))
		}
		m, err := packet.Decode(p)
		if err != nil {
			a.logger.Debug("Dropping undecodable datagram",
				log.String("remote_addr", from.String()),
				log.Error(err))
			return
		}
		a.post(func() { a.onDatagram(from, m) })
	})
}

// onDatagram routes a UDP packet by source endpoint. Unknown endpoints may
// only send the Welcome handshake naming their player id.
func (a *Authority) onDatagram(from netip.AddrPort, m packet.Message) {
	if c, ok := a.endpoints[from]; ok {
		if _, welcome := m.(*packet.Welcome); !welcome {
			a.onUnreliable(c, m)
		}
		return
	}

	w, ok := m.(*packet.Welcome)
	if !ok {
		a.logger.Debug("Dropping datagram from unknown endpoint", log.String("remote_addr", from.String()))
		return
	}
	c, ok := a.router.Client(w.PlayerID)
	if !ok {
		return
	}
	peer, ok := c.Peer.(*linkPeer)
	if !ok || peer.associated() {
		return
	}
	peer.associate(a.packets.Endpoint(from))
	a.endpoints[from] = c
	c.LastActivity = time.Now()
	c.logger.Debug("Unreliable channel associated", log.String("remote_addr", from.String()))
}

func (a *Authority) onUnreliable(c *ClientData, m packet.Message) {
	if !c.Allow(time.Now()) {
		c.logger.Debug("Rate limited unreliable packet", log.Stringer("type", m.Type()))
		return
	}
	a.router.Handle(c, m, Unreliable)
}

func (a *Authority) forgetEndpoints(c *ClientData) {
	for addr, owner := range a.endpoints {
		if owner == c {
			delete(a.endpoints, addr)
		}
	}
}

func (a *Authority) record(dir capture.Direction, ch Channel, playerID int64, data []byte) {
	if a.recorder == nil {
		return
	}
	err := a.recorder.Write(capture.Record{
		Time:      time.Now(),
		Direction: dir,
		Channel:   byte(ch),
		PlayerID:  playerID,
		Packet:    data,
	})
	if err != nil && !errors.Is(err, os.ErrClosed) {
		a.logger.Debug("Capture write failed", log.Error(err))
	}
}
