package transport

import "sync/atomic"

// Counters tracks traffic for one connection. Take resets them, so each read
// reports the traffic since the previous read.
type Counters struct {
	bytesSent       atomic.Uint64
	bytesReceived   atomic.Uint64
	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64
}

// Stats is a snapshot of Counters.
type Stats struct {
	BytesSent       uint64 `json:"bytes_sent"`
	BytesReceived   uint64 `json:"bytes_received"`
	PacketsSent     uint64 `json:"packets_sent"`
	PacketsReceived uint64 `json:"packets_received"`
}

func (s Stats) Add(o Stats) Stats {
	return Stats{
		BytesSent:       s.BytesSent + o.BytesSent,
		BytesReceived:   s.BytesReceived + o.BytesReceived,
		PacketsSent:     s.PacketsSent + o.PacketsSent,
		PacketsReceived: s.PacketsReceived + o.PacketsReceived,
	}
}

// AddSent and AddReceived count one packet of n bytes on the wire.
func (c *Counters) AddSent(n int) {
	c.bytesSent.Add(uint64(n))
	c.packetsSent.Add(1)
}

func (c *Counters) AddReceived(n int) {
	c.bytesReceived.Add(uint64(n))
	c.packetsReceived.Add(1)
}

// Take returns the current values and zeroes them.
func (c *Counters) Take() Stats {
	return Stats{
		BytesSent:       c.bytesSent.Swap(0),
		BytesReceived:   c.bytesReceived.Swap(0),
		PacketsSent:     c.packetsSent.Swap(0),
		PacketsReceived: c.packetsReceived.Swap(0),
	}
}
