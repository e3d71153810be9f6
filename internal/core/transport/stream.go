package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/zeusync/worldsync/internal/core/observability/log"
	"github.com/zeusync/worldsync/internal/core/protocol/frame"
)

const flushTimeout = time.Second

// streamConn frames packets over any ordered byte stream. Writes go through a
// bounded queue drained by a single writer goroutine.
type streamConn struct {
	rw       io.ReadWriter
	closer   func() error
	remote   net.Addr
	counters Counters
	logger   log.Log

	queue    chan []byte
	done     chan struct{}
	finished chan struct{}

	mu     sync.Mutex
	closed bool
}

func newStreamConn(rw io.ReadWriter, closer func() error, remote net.Addr, opts Options) *streamConn {
	opts = opts.withDefaults()
	c := &streamConn{
		rw:       rw,
		closer:   closer,
		remote:   remote,
		logger:   opts.Logger.With(log.String("remote_addr", remote.String())),
		queue:    make(chan []byte, opts.SendQueueSize),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// Send frames packet and queues it. It fails with ErrSendQueueFull rather
// than block when the writer has fallen behind.
func (c *streamConn) Send(packet []byte) error {
	framed, err := frame.Append(make([]byte, 0, len(packet)+frame.HeaderSize), packet)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.queue <- framed:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (c *streamConn) writeLoop() {
	defer close(c.done)
	failed := false
	for b := range c.queue {
		if failed {
			continue
		}
		if _, err := c.rw.Write(b); err != nil {
			// Remaining queued frames are discarded; the read side or the
			// timeout sweep tears the connection down.
			failed = true
			c.logger.Warn("Stream write failed", log.Error(err))
			continue
		}
		c.counters.AddSent(len(b))
	}
}

func (c *streamConn) Serve(ctx context.Context, handle func(packet []byte)) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	var dec frame.Decoder
	buf := make([]byte, 16*1024)
	for {
		n, err := c.rw.Read(buf)
		if n > 0 {
			ferr := dec.Feed(buf[:n], func(p []byte) {
				c.counters.AddReceived(len(p) + frame.HeaderSize)
				handle(p)
			})
			if ferr != nil {
				return ferr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || c.isClosed() {
				return nil
			}
			return err
		}
	}
}

func (c *streamConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close stops accepting sends and returns at once. Queued frames get up to
// flushTimeout to drain before the underlying stream is closed, so a peer
// that stopped reading never stalls the caller.
func (c *streamConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()

	go c.finish()
	return nil
}

func (c *streamConn) finish() {
	defer close(c.finished)

	timer := time.NewTimer(flushTimeout)
	defer timer.Stop()
	select {
	case <-c.done:
	case <-timer.C:
		c.logger.Debug("Flush timed out, closing with frames pending")
	}
	if err := c.closer(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.logger.Debug("Stream close failed", log.Error(err))
	}
}

func (c *streamConn) RemoteAddr() net.Addr { return c.remote }

func (c *streamConn) Counters() *Counters { return &c.counters }
