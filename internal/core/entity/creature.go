package entity

import (
	"slices"

	"github.com/zeusync/worldsync/internal/core/geom"
	"github.com/zeusync/worldsync/internal/core/protocol/packet"
)

// Creature is a networked NPC. Its simulation runs on the owning client.
type Creature struct {
	ID           int64
	ClientsideID int64
	TypeID       string
	ContainerID  string
	FactionID    int32
	TargetID     int64
	Transform    geom.Transform
	Health       float32
	MaxHealth    float32
	Height       float32
	Equipment    []string
	Colors       []geom.Color
}

func CreatureFromSpawn(m *packet.CreatureSpawn) *Creature {
	return &Creature{
		ID:           m.CreatureID,
		ClientsideID: m.ClientsideID,
		TypeID:       m.TypeID,
		ContainerID:  m.ContainerID,
		FactionID:    m.FactionID,
		TargetID:     m.TargetID,
		Transform:    geom.Transform{Position: m.Position, Rotation: m.Rotation},
		Health:       m.Health,
		MaxHealth:    m.MaxHealth,
		Height:       m.Height,
		Equipment:    slices.Clone(m.Equipment),
		Colors:       slices.Clone(m.Colors),
	}
}

// SpawnPacket omits ClientsideID, which only the spawner knows.
func (c *Creature) SpawnPacket() *packet.CreatureSpawn {
	return &packet.CreatureSpawn{
		CreatureID:  c.ID,
		TypeID:      c.TypeID,
		ContainerID: c.ContainerID,
		FactionID:   c.FactionID,
		TargetID:    c.TargetID,
		Position:    c.Transform.Position,
		Rotation:    c.Transform.Rotation,
		Health:      c.Health,
		MaxHealth:   c.MaxHealth,
		Height:      c.Height,
		Equipment:   slices.Clone(c.Equipment),
		Colors:      slices.Clone(c.Colors),
	}
}

func (c *Creature) ApplyPosition(m *packet.CreaturePosition) {
	c.Transform.Position = m.Position.Or(c.Transform.Position)
	c.Transform.Rotation = m.Rotation.Or(c.Transform.Rotation)
	c.Transform.Velocity = m.Velocity.Or(c.Transform.Velocity)
}

// ApplyRagdoll keeps only the root transform. Limb positions are relayed,
// not stored.
func (c *Creature) ApplyRagdoll(m *packet.CreatureRagdoll) {
	c.Transform.Position = m.Position
	c.Transform.Rotation = m.Rotation
}

// ApplyDamage subtracts change from health. Negative values heal, capped at
// the maximum.
func (c *Creature) ApplyDamage(change float32) {
	c.Health -= change
	if c.MaxHealth > 0 && c.Health > c.MaxHealth {
		c.Health = c.MaxHealth
	}
}
