package client

import (
	"time"

	"github.com/zeusync/worldsync/internal/core/geom"
)

// Gate decides when a moving transform is worth sending.
type Gate struct {
	MinDistance float32
	MinAngleDeg float32
	StaleAfter  time.Duration
}

// Sent is the last transform put on the wire for one entity.
type Sent struct {
	Transform geom.Transform
	At        time.Time
	valid     bool
}

// Record remembers t as sent at now.
func (s *Sent) Record(t geom.Transform, now time.Time) {
	s.Transform, s.At, s.valid = t, now, true
}

// Reset forces the next check to send everything.
func (s *Sent) Reset() { *s = Sent{} }

// Check reports whether cur should be sent. A forced send happens when
// nothing was sent yet or the last send is stale; it carries every field.
func (g Gate) Check(last Sent, cur geom.Transform, now time.Time) (send, forced bool) {
	if !last.valid || now.Sub(last.At) >= g.StaleAfter {
		return true, true
	}
	if cur.Position.DistanceSq(last.Transform.Position) >= g.MinDistance*g.MinDistance {
		return true, false
	}
	if cur.Rotation.AngleTo(last.Transform.Rotation) >= g.MinAngleDeg {
		return true, false
	}
	return false, false
}
