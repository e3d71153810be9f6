package server

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/zeusync/worldsync/internal/core/entity"
	"github.com/zeusync/worldsync/internal/core/observability/log"
	"github.com/zeusync/worldsync/internal/core/transport"
)

// Channel selects the delivery guarantee of a send.
type Channel uint8

const (
	Reliable Channel = iota
	Unreliable
)

func (c Channel) String() string {
	if c == Unreliable {
		return "unreliable"
	}
	return "reliable"
}

// Peer is the sending side of one client connection.
type Peer interface {
	Send(ch Channel, packet []byte) error
	Close() error
}

// ClientData is the authority's record of a joined client. It is owned by
// the event loop.
type ClientData struct {
	ID           int64
	Session      uuid.UUID
	Name         string
	Peer         Peer
	Player       *entity.Player
	Greeted      bool
	ConnectedAt  time.Time
	LastActivity time.Time

	limiter *rate.Limiter
	logger  log.Log
}

// Allow reports whether another unreliable packet fits the client's budget.
func (c *ClientData) Allow(now time.Time) bool {
	if c.limiter == nil {
		return true
	}
	return c.limiter.AllowN(now, 1)
}

// linkPeer sends over a transport link. The unreliable side is attached once
// the datagram handshake arrives, or at accept time for QUIC.
type linkPeer struct {
	link       *transport.Link
	unreliable transport.Conn
}

func newLinkPeer(link *transport.Link) *linkPeer {
	return &linkPeer{link: link, unreliable: link.Unreliable}
}

func (p *linkPeer) Send(ch Channel, packet []byte) error {
	if ch == Unreliable {
		if p.unreliable == nil {
			return ErrNotAssociated
		}
		return p.unreliable.Send(packet)
	}
	return p.link.Reliable.Send(packet)
}

func (p *linkPeer) Close() error { return p.link.Close() }

func (p *linkPeer) associated() bool { return p.unreliable != nil }

func (p *linkPeer) associate(conn transport.Conn) { p.unreliable = conn }

func (p *linkPeer) traffic() transport.Stats {
	stats := p.link.Reliable.Counters().Take()
	if p.unreliable != nil {
		stats = stats.Add(p.unreliable.Counters().Take())
	}
	return stats
}
