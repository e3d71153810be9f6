package packet

import "github.com/zeusync/worldsync/internal/core/geom"

// Message is one of the variants below. The set is closed: only this package
// can implement the unexported codec methods.
type Message interface {
	Type() Type
	encode(w *Writer)
	decode(r *Reader)
}

func newMessage(t Type) Message {
	switch t {
	case TypeWelcome:
		return &Welcome{}
	case TypeDisconnect:
		return &Disconnect{}
	case TypeError:
		return &ErrorNotice{}
	case TypeMessage:
		return &Text{}
	case TypePlayerData:
		return &PlayerData{}
	case TypePlayerPosition:
		return &PlayerPosition{}
	case TypePlayerEquipment:
		return &PlayerEquipment{}
	case TypePlayerRagdoll:
		return &PlayerRagdoll{}
	case TypePlayerHealthSet:
		return &PlayerHealthSet{}
	case TypePlayerHealthChange:
		return &PlayerHealthChange{}
	case TypeItemSpawn:
		return &ItemSpawn{}
	case TypeItemDespawn:
		return &ItemDespawn{}
	case TypeItemPosition:
		return &ItemPosition{}
	case TypeItemOwner:
		return &ItemOwner{}
	case TypeItemSnap:
		return &ItemSnap{}
	case TypeItemUnsnap:
		return &ItemUnsnap{}
	case TypeItemImbue:
		return &ItemImbue{}
	case TypeLevelChange:
		return &LevelChange{}
	case TypeCreatureSpawn:
		return &CreatureSpawn{}
	case TypeCreaturePosition:
		return &CreaturePosition{}
	case TypeCreatureHealthSet:
		return &CreatureHealthSet{}
	case TypeCreatureHealthChange:
		return &CreatureHealthChange{}
	case TypeCreatureDespawn:
		return &CreatureDespawn{}
	case TypeCreatureAnimation:
		return &CreatureAnimation{}
	case TypeCreatureRagdoll:
		return &CreatureRagdoll{}
	case TypeCreatureSlice:
		return &CreatureSlice{}
	case TypeCreatureOwner:
		return &CreatureOwner{}
	case TypeJoin:
		return &Join{}
	case TypePing:
		return &Ping{}
	default:
		return nil
	}
}

// Welcome carries the assigned player id. Id -1 marks the end of the world
// snapshot; over the unreliable channel it is the association handshake.
type Welcome struct {
	PlayerID int64
}

// SnapshotComplete is the Welcome id sent after the greeting snapshot.
const SnapshotComplete int64 = -1

func (*Welcome) Type() Type         { return TypeWelcome }
func (m *Welcome) encode(w *Writer) { w.Int64(m.PlayerID) }
func (m *Welcome) decode(r *Reader) { m.PlayerID = r.Int64() }

type Disconnect struct {
	PlayerID int64
	Reason   string
}

func (*Disconnect) Type() Type { return TypeDisconnect }

func (m *Disconnect) encode(w *Writer) {
	w.Int64(m.PlayerID)
	w.String(m.Reason)
}

func (m *Disconnect) decode(r *Reader) {
	m.PlayerID = r.Int64()
	m.Reason = r.Str()
}

// ErrorNotice tells a peer why the authority refused it.
type ErrorNotice struct {
	Message string
}

func (*ErrorNotice) Type() Type         { return TypeError }
func (m *ErrorNotice) encode(w *Writer) { w.String(m.Message) }
func (m *ErrorNotice) decode(r *Reader) { m.Message = r.Str() }

// Text is a free-form message, logged by the authority.
type Text struct {
	Text string
}

func (*Text) Type() Type         { return TypeMessage }
func (m *Text) encode(w *Writer) { w.String(m.Text) }
func (m *Text) decode(r *Reader) { m.Text = r.Str() }

// Join opens a session.
type Join struct {
	Name    string
	Version string
}

func (*Join) Type() Type { return TypeJoin }

func (m *Join) encode(w *Writer) {
	w.String(m.Name)
	w.String(m.Version)
}

func (m *Join) decode(r *Reader) {
	m.Name = r.Str()
	m.Version = r.Str()
}

// Ping is a status query. Requests are sent zeroed; the authority fills in
// its counts and closes the connection.
type Ping struct {
	Players    int32
	MaxPlayers int32
	Name       string
	Version    string
}

func (*Ping) Type() Type { return TypePing }

func (m *Ping) encode(w *Writer) {
	w.Int32(m.Players)
	w.Int32(m.MaxPlayers)
	w.String(m.Name)
	w.String(m.Version)
}

func (m *Ping) decode(r *Reader) {
	m.Players = r.Int32()
	m.MaxPlayers = r.Int32()
	m.Name = r.Str()
	m.Version = r.Str()
}

type PlayerData struct {
	PlayerID   int64
	Name       string
	CreatureID string
	Height     float32
	Position   geom.Vec3
	Yaw        float32
}

func (*PlayerData) Type() Type { return TypePlayerData }

func (m *PlayerData) encode(w *Writer) {
	w.Int64(m.PlayerID)
	w.String(m.Name)
	w.String(m.CreatureID)
	w.Float32(m.Height)
	w.Vec3(m.Position)
	w.Float32(m.Yaw)
}

func (m *PlayerData) decode(r *Reader) {
	m.PlayerID = r.Int64()
	m.Name = r.Str()
	m.CreatureID = r.Str()
	m.Height = r.Float32()
	m.Position = r.Vec3()
	m.Yaw = r.Float32()
}

// Limb is an IK target.
type Limb struct {
	Position Delta[geom.Vec3]
	Rotation Delta[geom.Quat]
}

func (l *Limb) encode(w *Writer) {
	w.DeltaVec3(l.Position)
	w.DeltaQuat(l.Rotation)
}

func (l *Limb) decode(r *Reader) {
	l.Position = r.DeltaVec3()
	l.Rotation = r.DeltaQuat()
}

type PlayerPosition struct {
	PlayerID  int64
	Position  Delta[geom.Vec3]
	Velocity  Delta[geom.Vec3]
	Yaw       float32
	HandLeft  Limb
	HandRight Limb
	Head      Limb
	Health    float32
}

func (*PlayerPosition) Type() Type { return TypePlayerPosition }

func (m *PlayerPosition) encode(w *Writer) {
	w.Int64(m.PlayerID)
	w.DeltaVec3(m.Position)
	w.DeltaVec3(m.Velocity)
	w.Float32(m.Yaw)
	m.HandLeft.encode(w)
	m.HandRight.encode(w)
	m.Head.encode(w)
	w.Float32(m.Health)
}

func (m *PlayerPosition) decode(r *Reader) {
	m.PlayerID = r.Int64()
	m.Position = r.DeltaVec3()
	m.Velocity = r.DeltaVec3()
	m.Yaw = r.Float32()
	m.HandLeft.decode(r)
	m.HandRight.decode(r)
	m.Head.decode(r)
	m.Health = r.Float32()
}

type PlayerEquipment struct {
	PlayerID  int64
	Colors    []geom.Color
	Equipment []string
}

func (*PlayerEquipment) Type() Type { return TypePlayerEquipment }

func (m *PlayerEquipment) encode(w *Writer) {
	w.Int64(m.PlayerID)
	w.Colors(m.Colors)
	w.Strings(m.Equipment)
}

func (m *PlayerEquipment) decode(r *Reader) {
	m.PlayerID = r.Int64()
	m.Colors = r.Colors()
	m.Equipment = r.Strings()
}

type PlayerRagdoll struct {
	PlayerID int64
	Position geom.Vec3
	Yaw      float32
	Parts    []geom.Vec3
}

func (*PlayerRagdoll) Type() Type { return TypePlayerRagdoll }

func (m *PlayerRagdoll) encode(w *Writer) {
	w.Int64(m.PlayerID)
	w.Vec3(m.Position)
	w.Float32(m.Yaw)
	w.Vec3s(m.Parts)
}

func (m *PlayerRagdoll) decode(r *Reader) {
	m.PlayerID = r.Int64()
	m.Position = r.Vec3()
	m.Yaw = r.Float32()
	m.Parts = r.Vec3s()
}

type PlayerHealthSet struct {
	PlayerID int64
	Health   float32
}

func (*PlayerHealthSet) Type() Type { return TypePlayerHealthSet }

func (m *PlayerHealthSet) encode(w *Writer) {
	w.Int64(m.PlayerID)
	w.Float32(m.Health)
}

func (m *PlayerHealthSet) decode(r *Reader) {
	m.PlayerID = r.Int64()
	m.Health = r.Float32()
}

// PlayerHealthChange is damage dealt to another player. PlayerID is the target.
type PlayerHealthChange struct {
	PlayerID int64
	Change   float32
}

func (*PlayerHealthChange) Type() Type { return TypePlayerHealthChange }

func (m *PlayerHealthChange) encode(w *Writer) {
	w.Int64(m.PlayerID)
	w.Float32(m.Change)
}

func (m *PlayerHealthChange) decode(r *Reader) {
	m.PlayerID = r.Int64()
	m.Change = r.Float32()
}

// ItemSpawn is both the request (ItemID zero) and the authority's answer. A
// negative ClientsideID in an answer means the request was a duplicate of
// ItemID.
type ItemSpawn struct {
	ItemID       int64
	ClientsideID int64
	DataID       string
	Category     string
	Position     geom.Vec3
	Rotation     geom.Quat
}

func (*ItemSpawn) Type() Type { return TypeItemSpawn }

func (m *ItemSpawn) encode(w *Writer) {
	w.Int64(m.ItemID)
	w.Int64(m.ClientsideID)
	w.String(m.DataID)
	w.String(m.Category)
	w.Vec3(m.Position)
	w.Quat(m.Rotation)
}

func (m *ItemSpawn) decode(r *Reader) {
	m.ItemID = r.Int64()
	m.ClientsideID = r.Int64()
	m.DataID = r.Str()
	m.Category = r.Str()
	m.Position = r.Vec3()
	m.Rotation = r.Quat()
}

type ItemDespawn struct {
	ItemID int64
}

func (*ItemDespawn) Type() Type         { return TypeItemDespawn }
func (m *ItemDespawn) encode(w *Writer) { w.Int64(m.ItemID) }
func (m *ItemDespawn) decode(r *Reader) { m.ItemID = r.Int64() }

type ItemPosition struct {
	ItemID   int64
	Position Delta[geom.Vec3]
	Rotation Delta[geom.Quat]
	Velocity Delta[geom.Vec3]
}

func (*ItemPosition) Type() Type { return TypeItemPosition }

func (m *ItemPosition) encode(w *Writer) {
	w.Int64(m.ItemID)
	w.DeltaVec3(m.Position)
	w.DeltaQuat(m.Rotation)
	w.DeltaVec3(m.Velocity)
}

func (m *ItemPosition) decode(r *Reader) {
	m.ItemID = r.Int64()
	m.Position = r.DeltaVec3()
	m.Rotation = r.DeltaQuat()
	m.Velocity = r.DeltaVec3()
}

// ItemOwner is a claim when sent by a client and a notification when sent by
// the authority: Owning reports whether the receiver now holds the item.
type ItemOwner struct {
	ItemID int64
	Owning bool
}

func (*ItemOwner) Type() Type { return TypeItemOwner }

func (m *ItemOwner) encode(w *Writer) {
	w.Int64(m.ItemID)
	w.Bool(m.Owning)
}

func (m *ItemOwner) decode(r *Reader) {
	m.ItemID = r.Int64()
	m.Owning = r.Bool()
}

// ItemSnap attaches an item to a holder.
type ItemSnap struct {
	ItemID         int64
	HolderID       int64
	HolderIsPlayer bool
	DrawSlot       byte
	Side           byte
}

func (*ItemSnap) Type() Type { return TypeItemSnap }

func (m *ItemSnap) encode(w *Writer) {
	w.Int64(m.ItemID)
	w.Int64(m.HolderID)
	w.Bool(m.HolderIsPlayer)
	w.Byte(m.DrawSlot)
	w.Byte(m.Side)
}

func (m *ItemSnap) decode(r *Reader) {
	m.ItemID = r.Int64()
	m.HolderID = r.Int64()
	m.HolderIsPlayer = r.Bool()
	m.DrawSlot = r.Byte()
	m.Side = r.Byte()
}

type ItemUnsnap struct {
	ItemID int64
}

func (*ItemUnsnap) Type() Type         { return TypeItemUnsnap }
func (m *ItemUnsnap) encode(w *Writer) { w.Int64(m.ItemID) }
func (m *ItemUnsnap) decode(r *Reader) { m.ItemID = r.Int64() }

type ItemImbue struct {
	ItemID  int64
	SpellID string
	Amount  float32
}

func (*ItemImbue) Type() Type { return TypeItemImbue }

func (m *ItemImbue) encode(w *Writer) {
	w.Int64(m.ItemID)
	w.String(m.SpellID)
	w.Float32(m.Amount)
}

func (m *ItemImbue) decode(r *Reader) {
	m.ItemID = r.Int64()
	m.SpellID = r.Str()
	m.Amount = r.Float32()
}

type LevelChange struct {
	Level   string
	Mode    string
	Options map[string]string
}

func (*LevelChange) Type() Type { return TypeLevelChange }

func (m *LevelChange) encode(w *Writer) {
	w.String(m.Level)
	w.String(m.Mode)
	w.Options(m.Options)
}

func (m *LevelChange) decode(r *Reader) {
	m.Level = r.Str()
	m.Mode = r.Str()
	m.Options = r.Options()
}

type CreatureSpawn struct {
	CreatureID   int64
	ClientsideID int64
	TypeID       string
	ContainerID  string
	FactionID    int32
	TargetID     int64
	Position     geom.Vec3
	Rotation     geom.Quat
	Health       float32
	MaxHealth    float32
	Height       float32
	Equipment    []string
	Colors       []geom.Color
}

func (*CreatureSpawn) Type() Type { return TypeCreatureSpawn }

func (m *CreatureSpawn) encode(w *Writer) {
	w.Int64(m.CreatureID)
	w.Int64(m.ClientsideID)
	w.String(m.TypeID)
	w.String(m.ContainerID)
	w.Int32(m.FactionID)
	w.Int64(m.TargetID)
	w.Vec3(m.Position)
	w.Quat(m.Rotation)
	w.Float32(m.Health)
	w.Float32(m.MaxHealth)
	w.Float32(m.Height)
	w.Strings(m.Equipment)
	w.Colors(m.Colors)
}

func (m *CreatureSpawn) decode(r *Reader) {
	m.CreatureID = r.Int64()
	m.ClientsideID = r.Int64()
	m.TypeID = r.Str()
	m.ContainerID = r.Str()
	m.FactionID = r.Int32()
	m.TargetID = r.Int64()
	m.Position = r.Vec3()
	m.Rotation = r.Quat()
	m.Health = r.Float32()
	m.MaxHealth = r.Float32()
	m.Height = r.Float32()
	m.Equipment = r.Strings()
	m.Colors = r.Colors()
}

type CreaturePosition struct {
	CreatureID int64
	Position   Delta[geom.Vec3]
	Rotation   Delta[geom.Quat]
	Velocity   Delta[geom.Vec3]
}

func (*CreaturePosition) Type() Type { return TypeCreaturePosition }

func (m *CreaturePosition) encode(w *Writer) {
	w.Int64(m.CreatureID)
	w.DeltaVec3(m.Position)
	w.DeltaQuat(m.Rotation)
	w.DeltaVec3(m.Velocity)
}

func (m *CreaturePosition) decode(r *Reader) {
	m.CreatureID = r.Int64()
	m.Position = r.DeltaVec3()
	m.Rotation = r.DeltaQuat()
	m.Velocity = r.DeltaVec3()
}

type CreatureHealthSet struct {
	CreatureID int64
	Health     float32
}

func (*CreatureHealthSet) Type() Type { return TypeCreatureHealthSet }

func (m *CreatureHealthSet) encode(w *Writer) {
	w.Int64(m.CreatureID)
	w.Float32(m.Health)
}

func (m *CreatureHealthSet) decode(r *Reader) {
	m.CreatureID = r.Int64()
	m.Health = r.Float32()
}

// CreatureHealthChange is damage dealt by the sender. Negative values heal.
type CreatureHealthChange struct {
	CreatureID int64
	Change     float32
}

func (*CreatureHealthChange) Type() Type { return TypeCreatureHealthChange }

func (m *CreatureHealthChange) encode(w *Writer) {
	w.Int64(m.CreatureID)
	w.Float32(m.Change)
}

func (m *CreatureHealthChange) decode(r *Reader) {
	m.CreatureID = r.Int64()
	m.Change = r.Float32()
}

type CreatureDespawn struct {
	CreatureID int64
}

func (*CreatureDespawn) Type() Type         { return TypeCreatureDespawn }
func (m *CreatureDespawn) encode(w *Writer) { w.Int64(m.CreatureID) }
func (m *CreatureDespawn) decode(r *Reader) { m.CreatureID = r.Int64() }

type CreatureAnimation struct {
	CreatureID int64
	StateHash  int32
	Clip       string
}

func (*CreatureAnimation) Type() Type { return TypeCreatureAnimation }

func (m *CreatureAnimation) encode(w *Writer) {
	w.Int64(m.CreatureID)
	w.Int32(m.StateHash)
	w.String(m.Clip)
}

func (m *CreatureAnimation) decode(r *Reader) {
	m.CreatureID = r.Int64()
	m.StateHash = r.Int32()
	m.Clip = r.Str()
}

type CreatureRagdoll struct {
	CreatureID int64
	Position   geom.Vec3
	Rotation   geom.Quat
	Parts      []geom.Vec3
}

func (*CreatureRagdoll) Type() Type { return TypeCreatureRagdoll }

func (m *CreatureRagdoll) encode(w *Writer) {
	w.Int64(m.CreatureID)
	w.Vec3(m.Position)
	w.Quat(m.Rotation)
	w.Vec3s(m.Parts)
}

func (m *CreatureRagdoll) decode(r *Reader) {
	m.CreatureID = r.Int64()
	m.Position = r.Vec3()
	m.Rotation = r.Quat()
	m.Parts = r.Vec3s()
}

type CreatureSlice struct {
	CreatureID int64
	Part       int16
}

func (*CreatureSlice) Type() Type { return TypeCreatureSlice }

func (m *CreatureSlice) encode(w *Writer) {
	w.Int64(m.CreatureID)
	w.Int16(m.Part)
}

func (m *CreatureSlice) decode(r *Reader) {
	m.CreatureID = r.Int64()
	m.Part = r.Int16()
}

type CreatureOwner struct {
	CreatureID int64
	Owning     bool
}

func (*CreatureOwner) Type() Type { return TypeCreatureOwner }

func (m *CreatureOwner) encode(w *Writer) {
	w.Int64(m.CreatureID)
	w.Bool(m.Owning)
}

func (m *CreatureOwner) decode(r *Reader) {
	m.CreatureID = r.Int64()
	m.Owning = r.Bool()
}
