package client

import (
	"fmt"
	"slices"

	"github.com/zeusync/worldsync/internal/core/entity"
	"github.com/zeusync/worldsync/internal/core/geom"
	"github.com/zeusync/worldsync/internal/core/observability/log"
	"github.com/zeusync/worldsync/internal/core/protocol/packet"
)

// reconcile folds one authority packet into the mirror and the host.
func (l *Loop) reconcile(msg packet.Message) {
	switch m := msg.(type) {
	case *packet.Welcome:
		if m.PlayerID == packet.SnapshotComplete {
			l.synced = true
			l.logger.Info("World snapshot received",
				log.Int("items", len(l.mirror.items)),
				log.Int("creatures", len(l.mirror.creatures)))
		}
	case *packet.Disconnect:
		l.disconnect(m)
	case *packet.ErrorNotice:
		l.logger.Warn("Server error", log.String("message", m.Message))
	case *packet.Text:
		l.logger.Info("Server message", log.String("text", m.Text))

	case *packet.PlayerData:
		l.playerData(m)
	case *packet.PlayerPosition:
		rec, ok := l.remotePlayer(m.PlayerID)
		if !ok {
			return
		}
		rec.player.ApplyPosition(m)
		if rec.handle != 0 {
			l.host.ApplyTransform(rec.handle, playerTransform(rec))
			p := rec.player
			l.host.ApplyLimbs(rec.handle, Pose(p.HandLeft), Pose(p.HandRight), Pose(p.Head))
		}
	case *packet.PlayerEquipment:
		rec, ok := l.remotePlayer(m.PlayerID)
		if !ok {
			return
		}
		rec.player.ApplyEquipment(m)
		fp := Fingerprint(m.Equipment, m.Colors)
		if fp == rec.fingerprint {
			return
		}
		rec.fingerprint = fp
		if rec.handle != 0 {
			l.host.ApplyAppearance(rec.handle, slices.Clone(m.Equipment), slices.Clone(m.Colors))
		}
	case *packet.PlayerRagdoll:
		rec, ok := l.remotePlayer(m.PlayerID)
		if !ok {
			return
		}
		rec.player.ApplyRagdoll(m)
		if rec.handle != 0 {
			l.host.ApplyRagdoll(rec.handle, slices.Clone(m.Parts))
		}
	case *packet.PlayerHealthSet:
		if rec, ok := l.remotePlayer(m.PlayerID); ok {
			rec.player.Health = m.Health
		}
	case *packet.PlayerHealthChange:
		if m.PlayerID == l.conn.PlayerID() {
			l.host.ApplyDamage(LocalPlayerHandle, m.Change)
		}

	case *packet.ItemSpawn:
		l.itemSpawn(m)
	case *packet.ItemDespawn:
		l.networkDespawn(KindItem, m.ItemID)
	case *packet.ItemPosition:
		rec, ok := l.mirror.get(KindItem, m.ItemID)
		if !ok || rec.owned {
			return
		}
		rec.transform = geom.Transform{
			Position: m.Position.Or(rec.transform.Position),
			Rotation: m.Rotation.Or(rec.transform.Rotation),
			Velocity: m.Velocity.Or(rec.transform.Velocity),
		}
		if rec.handle != 0 {
			l.host.ApplyTransform(rec.handle, rec.transform)
		}
	case *packet.ItemOwner:
		l.ownership(KindItem, m.ItemID, m.Owning)
	case *packet.ItemSnap:
		rec, ok := l.mirror.get(KindItem, m.ItemID)
		if !ok || rec.handle == 0 {
			return
		}
		holder, ok := l.holderHandle(m.HolderID, m.HolderIsPlayer)
		if !ok {
			l.logger.Debug("Snap to unknown holder", log.Int64("item_id", m.ItemID), log.Int64("holder_id", m.HolderID))
			return
		}
		l.host.Attach(rec.handle, holder, m.DrawSlot, m.Side)
	case *packet.ItemUnsnap:
		if rec, ok := l.mirror.get(KindItem, m.ItemID); ok && rec.handle != 0 {
			l.host.Detach(rec.handle)
		}
	case *packet.ItemImbue:
		if rec, ok := l.mirror.get(KindItem, m.ItemID); ok && rec.handle != 0 {
			l.host.Imbue(rec.handle, m.SpellID, m.Amount)
		}

	case *packet.LevelChange:
		l.levelChange(m)

	case *packet.CreatureSpawn:
		l.creatureSpawn(m)
	case *packet.CreaturePosition:
		rec, ok := l.mirror.get(KindCreature, m.CreatureID)
		if !ok || rec.owned {
			return
		}
		rec.transform = geom.Transform{
			Position: m.Position.Or(rec.transform.Position),
			Rotation: m.Rotation.Or(rec.transform.Rotation),
			Velocity: m.Velocity.Or(rec.transform.Velocity),
		}
		if rec.handle != 0 {
			l.host.ApplyTransform(rec.handle, rec.transform)
		}
	case *packet.CreatureHealthSet:
		if rec, ok := l.mirror.get(KindCreature, m.CreatureID); ok {
			rec.health = m.Health
		}
	case *packet.CreatureHealthChange:
		rec, ok := l.mirror.get(KindCreature, m.CreatureID)
		if !ok {
			return
		}
		rec.health -= m.Change
		if rec.handle != 0 {
			l.host.ApplyDamage(rec.handle, m.Change)
		}
	case *packet.CreatureDespawn:
		l.networkDespawn(KindCreature, m.CreatureID)
	case *packet.CreatureAnimation:
		if rec, ok := l.mirror.get(KindCreature, m.CreatureID); ok && rec.handle != 0 && !rec.owned {
			l.host.PlayAnimation(rec.handle, m.Clip, m.StateHash)
		}
	case *packet.CreatureRagdoll:
		if rec, ok := l.mirror.get(KindCreature, m.CreatureID); ok && rec.handle != 0 && !rec.owned {
			l.host.ApplyRagdoll(rec.handle, slices.Clone(m.Parts))
		}
	case *packet.CreatureSlice:
		if rec, ok := l.mirror.get(KindCreature, m.CreatureID); ok && rec.handle != 0 {
			l.host.Slice(rec.handle, m.Part)
		}
	case *packet.CreatureOwner:
		l.ownership(KindCreature, m.CreatureID, m.Owning)

	default:
		l.logger.Debug("Unhandled packet", log.Stringer("type", msg.Type()))
	}
}

func (l *Loop) disconnect(m *packet.Disconnect) {
	if m.PlayerID == l.conn.PlayerID() {
		l.err = fmt.Errorf("%w: %s", ErrDisconnected, m.Reason)
		return
	}
	rec, ok := l.mirror.get(KindPlayer, m.PlayerID)
	if !ok {
		return
	}
	l.mirror.remove(rec)
	if rec.handle != 0 {
		l.host.DespawnEntity(rec.handle)
	}
	l.logger.Info("Player left", log.Int64("remote_id", m.PlayerID), log.String("reason", m.Reason))
}

func (l *Loop) remotePlayer(id int64) (*record, bool) {
	if id == l.conn.PlayerID() {
		return nil, false
	}
	return l.mirror.get(KindPlayer, id)
}

func (l *Loop) playerData(m *packet.PlayerData) {
	if m.PlayerID == l.conn.PlayerID() {
		return
	}
	rec, ok := l.mirror.get(KindPlayer, m.PlayerID)
	if !ok {
		rec = &record{kind: KindPlayer, networkID: m.PlayerID, player: entity.NewPlayer(m.PlayerID)}
		l.mirror.players[m.PlayerID] = rec
	}
	rec.player.ApplyData(m)

	switch {
	case rec.handle != 0:
		l.host.ApplyTransform(rec.handle, playerTransform(rec))
	case !rec.spawning:
		rec.spawning = true
		p := rec.player
		l.host.SpawnEntity(SpawnRequest{
			Kind:      KindPlayer,
			NetworkID: p.ID,
			DataID:    p.CreatureID,
			Name:      p.Name,
			Transform: playerTransform(rec),
			Health:    p.Health,
			Height:    p.Height,
			Equipment: slices.Clone(p.Equipment),
			Colors:    slices.Clone(p.Colors),
		}, l.spawned(rec))
		l.logger.Info("Player joined", log.Int64("remote_id", p.ID), log.String("name", p.Name))
	}
}

func (l *Loop) itemSpawn(m *packet.ItemSpawn) {
	switch {
	case m.ClientsideID > 0:
		rec, ok := l.mirror.pending[m.ClientsideID]
		if !ok {
			l.logger.Debug("Spawn ack for unknown item", log.Int64("clientside_id", m.ClientsideID))
			return
		}
		l.mirror.acknowledge(rec, m.ItemID)
		rec.owned = true
	case m.ClientsideID < 0:
		l.duplicate(KindItem, -m.ClientsideID, m.ItemID)
	default:
		if rec, ok := l.mirror.get(KindItem, m.ItemID); ok {
			l.resync(rec, geom.Transform{Position: m.Position, Rotation: m.Rotation})
			return
		}
		rec := &record{
			kind:      KindItem,
			networkID: m.ItemID,
			transform: geom.Transform{Position: m.Position, Rotation: m.Rotation},
			spawning:  true,
		}
		l.mirror.items[m.ItemID] = rec
		l.host.SpawnEntity(SpawnRequest{
			Kind:      KindItem,
			NetworkID: m.ItemID,
			DataID:    m.DataID,
			Category:  m.Category,
			Transform: rec.transform,
		}, l.spawned(rec))
	}
}

func (l *Loop) creatureSpawn(m *packet.CreatureSpawn) {
	switch {
	case m.ClientsideID > 0:
		rec, ok := l.mirror.pending[m.ClientsideID]
		if !ok {
			l.logger.Debug("Spawn ack for unknown creature", log.Int64("clientside_id", m.ClientsideID))
			return
		}
		l.mirror.acknowledge(rec, m.CreatureID)
		rec.owned = true
	case m.ClientsideID < 0:
		l.duplicate(KindCreature, -m.ClientsideID, m.CreatureID)
	default:
		if rec, ok := l.mirror.get(KindCreature, m.CreatureID); ok {
			l.resync(rec, geom.Transform{Position: m.Position, Rotation: m.Rotation})
			return
		}
		rec := &record{
			kind:        KindCreature,
			networkID:   m.CreatureID,
			transform:   geom.Transform{Position: m.Position, Rotation: m.Rotation},
			health:      m.Health,
			fingerprint: Fingerprint(m.Equipment, m.Colors),
			spawning:    true,
		}
		l.mirror.creatures[m.CreatureID] = rec
		l.host.SpawnEntity(SpawnRequest{
			Kind:        KindCreature,
			NetworkID:   m.CreatureID,
			DataID:      m.TypeID,
			ContainerID: m.ContainerID,
			FactionID:   m.FactionID,
			Transform:   rec.transform,
			Health:      m.Health,
			MaxHealth:   m.MaxHealth,
			Height:      m.Height,
			Equipment:   slices.Clone(m.Equipment),
			Colors:      slices.Clone(m.Colors),
		}, l.spawned(rec))
	}
}

// duplicate handles a spawn the authority matched to an existing entity. The
// local copy goes away when that entity is already mirrored; otherwise it is
// adopted under the network id without ownership.
func (l *Loop) duplicate(k Kind, clientsideID, networkID int64) {
	rec, ok := l.mirror.pending[clientsideID]
	if !ok {
		return
	}
	if _, mirrored := l.mirror.get(k, networkID); mirrored {
		l.mirror.remove(rec)
		if rec.handle != 0 {
			l.host.DespawnEntity(rec.handle)
		}
		l.logger.Debug("Dropped duplicate spawn",
			log.Stringer("kind", k),
			log.Int64("network_id", networkID))
		return
	}
	l.mirror.acknowledge(rec, networkID)
	rec.owned = false
}

// resync handles a repeated spawn of a known entity, as sent when the world
// is replayed after a level report.
func (l *Loop) resync(rec *record, t geom.Transform) {
	if rec.owned {
		return
	}
	rec.transform = t
	if rec.handle != 0 {
		l.host.ApplyTransform(rec.handle, t)
	}
}

func (l *Loop) networkDespawn(k Kind, id int64) {
	rec, ok := l.mirror.get(k, id)
	if !ok {
		return
	}
	l.mirror.remove(rec)
	if rec.handle != 0 {
		l.host.DespawnEntity(rec.handle)
	}
}

func (l *Loop) ownership(k Kind, id int64, owning bool) {
	rec, ok := l.mirror.get(k, id)
	if !ok {
		return
	}
	if owning && !rec.owned {
		rec.sent.Reset()
	}
	rec.owned = owning
	l.logger.Debug("Ownership changed",
		log.Stringer("kind", k),
		log.Int64("network_id", id),
		log.Bool("owning", owning))
}

func (l *Loop) holderHandle(id int64, isPlayer bool) (Handle, bool) {
	if isPlayer && id == l.conn.PlayerID() {
		return LocalPlayerHandle, true
	}
	k := KindCreature
	if isPlayer {
		k = KindPlayer
	}
	rec, ok := l.mirror.get(k, id)
	if !ok || rec.handle == 0 {
		return 0, false
	}
	return rec.handle, true
}

func (l *Loop) levelChange(m *packet.LevelChange) {
	if m.Level == l.level {
		return
	}
	l.logger.Info("Level change",
		log.String("level", m.Level),
		log.String("mode", m.Mode))
	l.dropEntities(true)
	l.level = m.Level
	l.host.LoadLevel(m.Level, m.Mode, m.Options)
}
