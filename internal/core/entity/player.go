package entity

import (
	"slices"
	"strings"

	"github.com/zeusync/worldsync/internal/core/geom"
	"github.com/zeusync/worldsync/internal/core/protocol/packet"
)

// Pose is one IK target.
type Pose struct {
	Position geom.Vec3
	Rotation geom.Quat
}

func (p *Pose) apply(l packet.Limb) {
	p.Position = l.Position.Or(p.Position)
	p.Rotation = l.Rotation.Or(p.Rotation)
}

func (p Pose) full() packet.Limb {
	return packet.Limb{Position: packet.Full(p.Position), Rotation: packet.Full(p.Rotation)}
}

// Player is the authority's record of one connected client's avatar.
type Player struct {
	ID         int64
	Name       string
	CreatureID string
	Height     float32
	Position   geom.Vec3
	Yaw        float32
	Velocity   geom.Vec3
	HandLeft   Pose
	HandRight  Pose
	Head       Pose
	Health     float32
	Equipment  []string
	Colors     []geom.Color
	Ragdoll    []geom.Vec3
}

// NewPlayer starts at full health with nothing else known.
func NewPlayer(id int64) *Player {
	return &Player{ID: id, Health: 1}
}

// ApplyData records the join-time description. The name is sanitized.
func (p *Player) ApplyData(m *packet.PlayerData) {
	p.Name = SanitizeName(m.Name)
	p.CreatureID = m.CreatureID
	p.Height = m.Height
	p.Position = m.Position
	p.Yaw = m.Yaw
}

// ApplyPosition merges a position update. Unchanged deltas keep the stored
// value. Any position update ends a ragdoll.
func (p *Player) ApplyPosition(m *packet.PlayerPosition) {
	p.Position = m.Position.Or(p.Position)
	p.Velocity = m.Velocity.Or(p.Velocity)
	p.Yaw = m.Yaw
	p.HandLeft.apply(m.HandLeft)
	p.HandRight.apply(m.HandRight)
	p.Head.apply(m.Head)
	p.Health = m.Health
	p.Ragdoll = nil
}

func (p *Player) ApplyEquipment(m *packet.PlayerEquipment) {
	p.Equipment = slices.Clone(m.Equipment)
	p.Colors = slices.Clone(m.Colors)
}

func (p *Player) ApplyRagdoll(m *packet.PlayerRagdoll) {
	p.Position = m.Position
	p.Yaw = m.Yaw
	p.Ragdoll = slices.Clone(m.Parts)
}

// DataPacket and EquipmentPacket replay the player to a late joiner.
func (p *Player) DataPacket() *packet.PlayerData {
	return &packet.PlayerData{
		PlayerID:   p.ID,
		Name:       p.Name,
		CreatureID: p.CreatureID,
		Height:     p.Height,
		Position:   p.Position,
		Yaw:        p.Yaw,
	}
}

func (p *Player) EquipmentPacket() *packet.PlayerEquipment {
	return &packet.PlayerEquipment{
		PlayerID:  p.ID,
		Colors:    slices.Clone(p.Colors),
		Equipment: slices.Clone(p.Equipment),
	}
}

// PositionPacket carries every field, for forced resends.
func (p *Player) PositionPacket() *packet.PlayerPosition {
	return &packet.PlayerPosition{
		PlayerID:  p.ID,
		Position:  packet.Full(p.Position),
		Velocity:  packet.Full(p.Velocity),
		Yaw:       p.Yaw,
		HandLeft:  p.HandLeft.full(),
		HandRight: p.HandRight.full(),
		Head:      p.Head.full(),
		Health:    p.Health,
	}
}

// SanitizeName keeps printable ASCII and trims surrounding spaces.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r >= 0x20 && r < 0x7f {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
