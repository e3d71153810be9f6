package client

import "github.com/zeusync/worldsync/internal/core/geom"

// Event is something the host reports to the loop through Loop.Post.
type Event interface {
	event()
}

// Spawned reports a new local item or creature ahead of the next sweep.
type Spawned struct{ Entity LocalEntity }

// Despawned reports that a local object is gone.
type Despawned struct{ Handle Handle }

// Grabbed asks for ownership of an item the local player picked up.
type Grabbed struct{ Handle Handle }

// Released forces a full position update for a dropped item.
type Released struct{ Handle Handle }

// Attached reports an item snapped to a holder. Holder is LocalPlayerHandle
// for the local player.
type Attached struct {
	Handle   Handle
	Holder   Handle
	DrawSlot byte
	Side     byte
}

type Detached struct{ Handle Handle }

type Imbued struct {
	Handle  Handle
	SpellID string
	Amount  float32
}

type CreatureDamaged struct {
	Handle Handle
	Damage float32
}

type CreatureHealed struct {
	Handle Handle
	Amount float32
}

type CreatureKilled struct{ Handle Handle }

type CreatureAnimated struct {
	Handle    Handle
	Clip      string
	StateHash int32
}

type CreatureSliced struct {
	Handle Handle
	Part   int16
}

type CreatureRagdolled struct {
	Handle Handle
	Parts  []geom.Vec3
}

// PlayerAttacked reports damage the local player dealt to a remote avatar.
type PlayerAttacked struct {
	Target Handle
	Damage float32
}

// EquipmentChanged asks the loop to compare and resend the local appearance.
type EquipmentChanged struct{}

// LevelLoaded reports the level the host finished loading.
type LevelLoaded struct {
	Level   string
	Mode    string
	Options map[string]string
}

// spawnReady delivers the handle of an object created for a network record.
type spawnReady struct {
	rec    *record
	handle Handle
}

func (Spawned) event()           {}
func (Despawned) event()         {}
func (Grabbed) event()           {}
func (Released) event()          {}
func (Attached) event()          {}
func (Detached) event()          {}
func (Imbued) event()            {}
func (CreatureDamaged) event()   {}
func (CreatureHealed) event()    {}
func (CreatureKilled) event()    {}
func (CreatureAnimated) event()  {}
func (CreatureSliced) event()    {}
func (CreatureRagdolled) event() {}
func (PlayerAttacked) event()    {}
func (EquipmentChanged) event()  {}
func (LevelLoaded) event()       {}
func (spawnReady) event()        {}
