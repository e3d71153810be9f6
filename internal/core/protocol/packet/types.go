package packet

import "strconv"

// Version is exchanged on join; peers must match exactly.
const Version = "1.0.0"

// Type is the one-byte tag that prefixes every packet on the wire.
type Type uint8

const (
	TypeUnknown    Type = 0
	TypeWelcome    Type = 1
	TypeDisconnect Type = 2
	TypeError      Type = 3
	TypeMessage    Type = 4

	TypePlayerData         Type = 10
	TypePlayerPosition     Type = 11
	TypePlayerEquipment    Type = 12
	TypePlayerRagdoll      Type = 13
	TypePlayerHealthSet    Type = 14
	TypePlayerHealthChange Type = 15

	TypeItemSpawn    Type = 20
	TypeItemDespawn  Type = 21
	TypeItemPosition Type = 22
	TypeItemOwner    Type = 23
	TypeItemSnap     Type = 24
	TypeItemUnsnap   Type = 25
	TypeItemImbue    Type = 26

	TypeLevelChange Type = 39

	TypeCreatureSpawn        Type = 40
	TypeCreaturePosition     Type = 41
	TypeCreatureHealthSet    Type = 42
	TypeCreatureHealthChange Type = 43
	TypeCreatureDespawn      Type = 44
	TypeCreatureAnimation    Type = 45
	TypeCreatureRagdoll      Type = 46
	TypeCreatureSlice        Type = 47
	TypeCreatureOwner        Type = 48

	TypeJoin Type = 254
	TypePing Type = 255
)

var typeNames = map[Type]string{
	TypeWelcome:              "WELCOME",
	TypeDisconnect:           "DISCONNECT",
	TypeError:                "ERROR",
	TypeMessage:              "MESSAGE",
	TypePlayerData:           "PLAYER_DATA",
	TypePlayerPosition:       "PLAYER_POSITION",
	TypePlayerEquipment:      "PLAYER_EQUIPMENT",
	TypePlayerRagdoll:        "PLAYER_RAGDOLL",
	TypePlayerHealthSet:      "PLAYER_HEALTH_SET",
	TypePlayerHealthChange:   "PLAYER_HEALTH_CHANGE",
	TypeItemSpawn:            "ITEM_SPAWN",
	TypeItemDespawn:          "ITEM_DESPAWN",
	TypeItemPosition:         "ITEM_POSITION",
	TypeItemOwner:            "ITEM_OWNER",
	TypeItemSnap:             "ITEM_SNAPPING_SNAP",
	TypeItemUnsnap:           "ITEM_SNAPPING_UNSNAP",
	TypeItemImbue:            "ITEM_IMBUE",
	TypeLevelChange:          "LEVEL_CHANGE",
	TypeCreatureSpawn:        "CREATURE_SPAWN",
	TypeCreaturePosition:     "CREATURE_POSITION",
	TypeCreatureHealthSet:    "CREATURE_HEALTH_SET",
	TypeCreatureHealthChange: "CREATURE_HEALTH_CHANGE",
	TypeCreatureDespawn:      "CREATURE_DESPAWN",
	TypeCreatureAnimation:    "CREATURE_PLAY_ANIMATION",
	TypeCreatureRagdoll:      "CREATURE_RAGDOLL",
	TypeCreatureSlice:        "CREATURE_SLICE",
	TypeCreatureOwner:        "CREATURE_OWNER",
	TypeJoin:                 "SERVER_JOIN",
	TypePing:                 "SERVER_STATUS_PING",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "UNKNOWN(" + strconv.Itoa(int(t)) + ")"
}

// IsWorld reports whether t carries player, item or creature state.
func (t Type) IsWorld() bool {
	return t >= TypePlayerData && t <= TypeCreatureOwner && t != TypeLevelChange
}
