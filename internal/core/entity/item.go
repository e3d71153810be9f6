package entity

import (
	"github.com/zeusync/worldsync/internal/core/geom"
	"github.com/zeusync/worldsync/internal/core/protocol/packet"
)

// Snap describes what an item is attached to.
type Snap struct {
	HolderID       int64
	HolderIsPlayer bool
	DrawSlot       byte
	Side           byte
}

// Item is a networked world object. ClientsideID is the spawner's own
// handle and is only echoed back to the spawner.
type Item struct {
	ID           int64
	ClientsideID int64
	DataID       string
	Category     string
	Transform    geom.Transform
	Snap         *Snap
}

// ItemFromSpawn records a spawn. The authority assigns ID afterwards.
func ItemFromSpawn(m *packet.ItemSpawn) *Item {
	return &Item{
		ID:           m.ItemID,
		ClientsideID: m.ClientsideID,
		DataID:       m.DataID,
		Category:     m.Category,
		Transform:    geom.Transform{Position: m.Position, Rotation: m.Rotation},
	}
}

// SpawnPacket describes the item to peers that did not spawn it.
func (it *Item) SpawnPacket() *packet.ItemSpawn {
	return &packet.ItemSpawn{
		ItemID:   it.ID,
		DataID:   it.DataID,
		Category: it.Category,
		Position: it.Transform.Position,
		Rotation: it.Transform.Rotation,
	}
}

// ApplyPosition merges a position delta into the transform.
func (it *Item) ApplyPosition(m *packet.ItemPosition) {
	it.Transform.Position = m.Position.Or(it.Transform.Position)
	it.Transform.Rotation = m.Rotation.Or(it.Transform.Rotation)
	it.Transform.Velocity = m.Velocity.Or(it.Transform.Velocity)
}

// ApplySnap attaches the item to a holder. ApplyUnsnap detaches it.
func (it *Item) ApplySnap(m *packet.ItemSnap) {
	it.Snap = &Snap{
		HolderID:       m.HolderID,
		HolderIsPlayer: m.HolderIsPlayer,
		DrawSlot:       m.DrawSlot,
		Side:           m.Side,
	}
}

func (it *Item) ApplyUnsnap() { it.Snap = nil }

// SnapPacket returns nil when the item is not attached.
func (it *Item) SnapPacket() *packet.ItemSnap {
	if it.Snap == nil {
		return nil
	}
	return &packet.ItemSnap{
		ItemID:         it.ID,
		HolderID:       it.Snap.HolderID,
		HolderIsPlayer: it.Snap.HolderIsPlayer,
		DrawSlot:       it.Snap.DrawSlot,
		Side:           it.Snap.Side,
	}
}

// DuplicateOf finds a tracked item with the same template lying within
// maxDistSq of pos.
func DuplicateOf(items *Table[*Item], dataID string, pos geom.Vec3, maxDistSq float32) (*Item, bool) {
	return items.Find(func(it *Item) bool {
		return it.DataID == dataID && it.Transform.Position.DistanceSq(pos) <= maxDistSq
	})
}
