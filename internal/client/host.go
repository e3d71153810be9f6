package client

import (
	"github.com/zeusync/worldsync/internal/core/geom"
)

// Handle identifies an object inside the host simulation. Zero is never a
// valid handle.
type Handle uint64

// LocalPlayerHandle addresses the local player in ApplyDamage.
const LocalPlayerHandle Handle = 0

type Kind uint8

const (
	KindItem Kind = iota + 1
	KindCreature
	KindPlayer
)

func (k Kind) String() string {
	switch k {
	case KindItem:
		return "item"
	case KindCreature:
		return "creature"
	case KindPlayer:
		return "player"
	default:
		return "unknown"
	}
}

// Pose is the target of one tracked limb.
type Pose struct {
	Position geom.Vec3
	Rotation geom.Quat
}

// LocalPlayer is the avatar driven on this machine.
type LocalPlayer struct {
	Name       string
	CreatureID string
	Height     float32
	Position   geom.Vec3
	Velocity   geom.Vec3
	Yaw        float32
	HandLeft   Pose
	HandRight  Pose
	Head       Pose
	// Health is a fraction of maximum health.
	Health    float32
	Equipment []string
	Colors    []geom.Color
}

func (p LocalPlayer) transform() geom.Transform {
	return geom.Transform{Position: p.Position, Rotation: geom.FromYaw(p.Yaw), Velocity: p.Velocity}
}

// LocalEntity is an item or creature present in the host simulation.
type LocalEntity struct {
	Handle      Handle
	Kind        Kind
	DataID      string
	Category    string
	ContainerID string
	FactionID   int32
	Transform   geom.Transform
	Health      float32
	MaxHealth   float32
	Height      float32
	Equipment   []string
	Colors      []geom.Color
}

// SpawnRequest asks the host to materialize a networked object.
type SpawnRequest struct {
	Kind        Kind
	NetworkID   int64
	DataID      string
	Category    string
	ContainerID string
	Name        string
	FactionID   int32
	Transform   geom.Transform
	Health      float32
	MaxHealth   float32
	Height      float32
	Equipment   []string
	Colors      []geom.Color
}

// Host is the simulation the client mirrors the world into. Methods are
// called from the loop goroutine and must not block on I/O. SpawnEntity is
// asynchronous: the host calls ready once the object exists, from any
// goroutine.
type Host interface {
	LocalPlayer() (LocalPlayer, bool)
	LocalEntities() []LocalEntity

	SpawnEntity(req SpawnRequest, ready func(Handle))
	DespawnEntity(h Handle)
	Transform(h Handle) (geom.Transform, bool)
	ApplyTransform(h Handle, t geom.Transform)
	ApplyAppearance(h Handle, equipment []string, colors []geom.Color)
	ApplyLimbs(h Handle, left, right, head Pose)
	ApplyRagdoll(h Handle, parts []geom.Vec3)

	// Attach snaps an item to a holder; LocalPlayerHandle is the local player.
	Attach(h Handle, holder Handle, drawSlot, side byte)
	Detach(h Handle)
	Imbue(h Handle, spellID string, amount float32)

	PlayAnimation(h Handle, clip string, stateHash int32)
	Slice(h Handle, part int16)
	ApplyDamage(h Handle, change float32)

	LoadLevel(level, mode string, options map[string]string)
}
