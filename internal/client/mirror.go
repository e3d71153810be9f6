package client

import (
	"cmp"
	"slices"

	"github.com/zeusync/worldsync/internal/core/entity"
	"github.com/zeusync/worldsync/internal/core/geom"
)

// record mirrors one networked object. networkID is zero until the
// authority acknowledged a local spawn; handle is zero until the host
// materialized a foreign one.
type record struct {
	kind         Kind
	networkID    int64
	clientsideID int64
	handle       Handle
	spawning     bool
	owned        bool

	transform   geom.Transform
	health      float32
	fingerprint uint64
	sent        Sent

	// Remote players only.
	player *entity.Player
}

type mirror struct {
	pending   map[int64]*record
	items     map[int64]*record
	creatures map[int64]*record
	players   map[int64]*record
	byHandle  map[Handle]*record
}

func newMirror() *mirror {
	return &mirror{
		pending:   make(map[int64]*record),
		items:     make(map[int64]*record),
		creatures: make(map[int64]*record),
		players:   make(map[int64]*record),
		byHandle:  make(map[Handle]*record),
	}
}

func (m *mirror) table(k Kind) map[int64]*record {
	switch k {
	case KindItem:
		return m.items
	case KindCreature:
		return m.creatures
	default:
		return m.players
	}
}

func (m *mirror) get(k Kind, id int64) (*record, bool) {
	rec, ok := m.table(k)[id]
	return rec, ok
}

func (m *mirror) bind(rec *record, h Handle) {
	rec.handle = h
	rec.spawning = false
	if h != 0 {
		m.byHandle[h] = rec
	}
}

// acknowledge moves a pending record under its network id.
func (m *mirror) acknowledge(rec *record, id int64) {
	delete(m.pending, rec.clientsideID)
	rec.networkID = id
	m.table(rec.kind)[id] = rec
}

// live reports whether rec is still tracked.
func (m *mirror) live(rec *record) bool {
	if rec.networkID != 0 {
		return m.table(rec.kind)[rec.networkID] == rec
	}
	return m.pending[rec.clientsideID] == rec
}

func (m *mirror) remove(rec *record) {
	if rec.networkID != 0 && m.table(rec.kind)[rec.networkID] == rec {
		delete(m.table(rec.kind), rec.networkID)
	}
	if rec.clientsideID != 0 && m.pending[rec.clientsideID] == rec {
		delete(m.pending, rec.clientsideID)
	}
	if rec.handle != 0 && m.byHandle[rec.handle] == rec {
		delete(m.byHandle, rec.handle)
	}
}

// owned returns the acknowledged records this client simulates, creatures
// first, each kind by network id.
func (m *mirror) owned() []*record {
	var out []*record
	for _, table := range []map[int64]*record{m.creatures, m.items} {
		start := len(out)
		for _, rec := range table {
			if rec.owned && rec.handle != 0 {
				out = append(out, rec)
			}
		}
		slices.SortFunc(out[start:], func(a, b *record) int { return cmp.Compare(a.networkID, b.networkID) })
	}
	return out
}

// reset forgets every entity record and returns them. Remote players stay.
func (m *mirror) reset() []*record {
	var out []*record
	for _, table := range []map[int64]*record{m.pending, m.items, m.creatures} {
		for _, rec := range table {
			out = append(out, rec)
		}
		clear(table)
	}
	for h, rec := range m.byHandle {
		if rec.kind != KindPlayer {
			delete(m.byHandle, h)
		}
	}
	return out
}
