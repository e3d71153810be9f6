package client

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/zeusync/worldsync/internal/core/geom"
	"github.com/zeusync/worldsync/internal/core/observability/log"
	"github.com/zeusync/worldsync/internal/core/protocol/packet"
)

// Channel picks the transport a packet is sent on.
type Channel uint8

const (
	Reliable Channel = iota
	Unreliable
)

func (c Channel) String() string {
	if c == Unreliable {
		return "unreliable"
	}
	return "reliable"
}

// Conn is the loop's view of a joined session.
type Conn interface {
	PlayerID() int64
	Send(ch Channel, m packet.Message) error
	Inbound() <-chan packet.Message
	Done() <-chan struct{}
	Err() error
}

// Loop mirrors the authority's world into a Host and reports local changes
// back. Everything except Post runs on the goroutine calling Run (or Tick and
// Sweep in tests).
type Loop struct {
	cfg    Config
	conn   Conn
	host   Host
	logger log.Log

	playerGate Gate
	entityGate Gate
	excluded   map[string]struct{}

	mu       sync.Mutex
	queue    []Event
	adopting map[Handle]struct{}

	mirror         *mirror
	nextClientside int64
	synced         bool
	level          string
	err            error

	self struct {
		announced   bool
		last        LocalPlayer
		sent        Sent
		fingerprint uint64
	}
}

// NewLoop binds a session to a host. Items in cfg.ExcludedCategories are
// never announced.
func NewLoop(cfg Config, conn Conn, host Host, logger log.Log) *Loop {
	excluded := make(map[string]struct{}, len(cfg.ExcludedCategories))
	for _, c := range cfg.ExcludedCategories {
		excluded[c] = struct{}{}
	}
	return &Loop{
		cfg:        cfg,
		conn:       conn,
		host:       host,
		logger:     logger.With(log.String("component", "client_loop"), log.Int64("player_id", conn.PlayerID())),
		playerGate: cfg.playerGate(),
		entityGate: cfg.entityGate(),
		excluded:   excluded,
		adopting:   make(map[Handle]struct{}),
		mirror:     newMirror(),
	}
}

// Post queues a host event for the next tick. Safe from any goroutine.
func (l *Loop) Post(e Event) {
	l.mu.Lock()
	l.queue = append(l.queue, e)
	l.mu.Unlock()
}

func (l *Loop) spawned(rec *record) func(Handle) {
	return func(h Handle) {
		l.mu.Lock()
		l.adopting[h] = struct{}{}
		l.queue = append(l.queue, spawnReady{rec: rec, handle: h})
		l.mu.Unlock()
	}
}

// Run ticks until ctx is done or the session ends.
func (l *Loop) Run(ctx context.Context) error {
	tick := time.NewTicker(time.Second / time.Duration(l.cfg.TickRate))
	defer tick.Stop()
	sweep := time.NewTicker(l.cfg.SweepInterval)
	defer sweep.Stop()

	l.logger.Info("Client loop started", log.Int("tick_rate", l.cfg.TickRate))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.conn.Done():
			// A DISCONNECT may still be queued behind the close.
			l.drainInbound()
			if l.err != nil {
				return l.err
			}
			return l.conn.Err()
		case now := <-tick.C:
			if err := l.Tick(now); err != nil {
				return err
			}
		case now := <-sweep.C:
			l.Sweep(now)
		}
	}
}

// Tick runs one synchronization step.
func (l *Loop) Tick(now time.Time) error {
	l.drainInbound()
	if l.err != nil {
		return l.err
	}
	l.drainEvents()
	l.syncLocalPlayer(now)
	l.syncOwned(now)
	return nil
}

func (l *Loop) drainInbound() {
	for {
		select {
		case m := <-l.conn.Inbound():
			l.reconcile(m)
			if l.err != nil {
				return
			}
		default:
			return
		}
	}
}

func (l *Loop) drainEvents() {
	l.mu.Lock()
	events := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, e := range events {
		l.handleEvent(e)
	}
}

func (l *Loop) send(ch Channel, m packet.Message) {
	if err := l.conn.Send(ch, m); err != nil {
		l.logger.Debug("Send failed",
			log.Stringer("type", m.Type()),
			log.Stringer("channel", ch),
			log.Error(err))
	}
}

// Sweep announces local entities the authority does not know yet and drops
// excluded ones.
func (l *Loop) Sweep(now time.Time) {
	l.drainEvents()

	l.mu.Lock()
	adopting := make(map[Handle]struct{}, len(l.adopting))
	for h := range l.adopting {
		adopting[h] = struct{}{}
	}
	l.mu.Unlock()

	present := make(map[Handle]struct{})
	for _, e := range l.host.LocalEntities() {
		present[e.Handle] = struct{}{}
		if _, ok := l.mirror.byHandle[e.Handle]; ok {
			continue
		}
		if _, ok := adopting[e.Handle]; ok {
			continue
		}
		l.announce(e)
	}

	for h, rec := range l.mirror.byHandle {
		if rec.kind == KindPlayer {
			continue
		}
		if _, ok := present[h]; !ok {
			l.logger.Debug("Local entity vanished", log.Uint64("handle", uint64(h)))
			l.despawned(rec)
		}
	}
}

// announce asks the authority to register a local entity.
func (l *Loop) announce(e LocalEntity) {
	if e.Kind == KindPlayer {
		return
	}
	if _, ok := l.excluded[e.Category]; ok && e.Kind == KindItem {
		l.host.DespawnEntity(e.Handle)
		return
	}
	if !l.synced {
		return
	}

	l.nextClientside++
	rec := &record{
		kind:         e.Kind,
		clientsideID: l.nextClientside,
		transform:    e.Transform,
		health:       e.Health,
		fingerprint:  Fingerprint(e.Equipment, e.Colors),
	}
	l.mirror.pending[rec.clientsideID] = rec
	l.mirror.bind(rec, e.Handle)

	switch e.Kind {
	case KindItem:
		l.send(Reliable, &packet.ItemSpawn{
			ClientsideID: rec.clientsideID,
			DataID:       e.DataID,
			Category:     e.Category,
			Position:     e.Transform.Position,
			Rotation:     e.Transform.Rotation,
		})
	case KindCreature:
		l.send(Reliable, &packet.CreatureSpawn{
			ClientsideID: rec.clientsideID,
			TypeID:       e.DataID,
			ContainerID:  e.ContainerID,
			FactionID:    e.FactionID,
			Position:     e.Transform.Position,
			Rotation:     e.Transform.Rotation,
			Health:       e.Health,
			MaxHealth:    e.MaxHealth,
			Height:       e.Height,
			Equipment:    slices.Clone(e.Equipment),
			Colors:       slices.Clone(e.Colors),
		})
	}
}

func (l *Loop) syncLocalPlayer(now time.Time) {
	p, ok := l.host.LocalPlayer()
	if !ok {
		return
	}
	id := l.conn.PlayerID()
	cur := p.transform()

	if !l.self.announced {
		name := p.Name
		if name == "" {
			name = l.cfg.Name
		}
		l.send(Reliable, &packet.PlayerData{
			PlayerID:   id,
			Name:       name,
			CreatureID: p.CreatureID,
			Height:     p.Height,
			Position:   p.Position,
			Yaw:        p.Yaw,
		})
		l.send(Reliable, &packet.PlayerEquipment{
			PlayerID:  id,
			Colors:    slices.Clone(p.Colors),
			Equipment: slices.Clone(p.Equipment),
		})
		l.send(Reliable, playerPosition(id, p, LocalPlayer{}, true))
		l.self.announced = true
		l.self.fingerprint = Fingerprint(p.Equipment, p.Colors)
		l.self.last = p
		l.self.sent.Record(cur, now)
		return
	}

	send, forced := l.playerGate.Check(l.self.sent, cur, now)
	if !send {
		return
	}
	l.send(Unreliable, playerPosition(id, p, l.self.last, forced))
	l.self.last = p
	l.self.sent.Record(cur, now)
}

func playerPosition(id int64, p, prev LocalPlayer, full bool) *packet.PlayerPosition {
	m := &packet.PlayerPosition{PlayerID: id, Yaw: p.Yaw, Health: p.Health}
	if full {
		m.Position = packet.Full(p.Position)
		m.Velocity = packet.Full(p.Velocity)
		m.HandLeft = limb(p.HandLeft, Pose{}, true)
		m.HandRight = limb(p.HandRight, Pose{}, true)
		m.Head = limb(p.Head, Pose{}, true)
		return m
	}
	m.Position = packet.DeltaOf(p.Position, prev.Position)
	m.Velocity = packet.DeltaOf(p.Velocity, prev.Velocity)
	m.HandLeft = limb(p.HandLeft, prev.HandLeft, false)
	m.HandRight = limb(p.HandRight, prev.HandRight, false)
	m.Head = limb(p.Head, prev.Head, false)
	return m
}

func limb(cur, prev Pose, full bool) packet.Limb {
	if full {
		return packet.Limb{Position: packet.Full(cur.Position), Rotation: packet.Full(cur.Rotation)}
	}
	return packet.Limb{
		Position: packet.DeltaOf(cur.Position, prev.Position),
		Rotation: packet.DeltaOf(cur.Rotation, prev.Rotation),
	}
}

func (l *Loop) syncOwned(now time.Time) {
	for _, rec := range l.mirror.owned() {
		cur, ok := l.host.Transform(rec.handle)
		if !ok {
			continue
		}
		send, forced := l.entityGate.Check(rec.sent, cur, now)
		if !send {
			continue
		}
		prev := rec.sent.Transform
		position := packet.DeltaOf(cur.Position, prev.Position)
		rotation := packet.DeltaOf(cur.Rotation, prev.Rotation)
		velocity := packet.DeltaOf(cur.Velocity, prev.Velocity)
		if forced {
			position, rotation, velocity = packet.Full(cur.Position), packet.Full(cur.Rotation), packet.Full(cur.Velocity)
		}

		switch rec.kind {
		case KindItem:
			l.send(Unreliable, &packet.ItemPosition{ItemID: rec.networkID, Position: position, Rotation: rotation, Velocity: velocity})
		case KindCreature:
			l.send(Unreliable, &packet.CreaturePosition{CreatureID: rec.networkID, Position: position, Rotation: rotation, Velocity: velocity})
		}
		rec.transform = cur
		rec.sent.Record(cur, now)
	}
}

func (l *Loop) handleEvent(e Event) {
	switch e := e.(type) {
	case Spawned:
		if _, ok := l.mirror.byHandle[e.Entity.Handle]; !ok {
			l.announce(e.Entity)
		}
	case Despawned:
		if rec, ok := l.mirror.byHandle[e.Handle]; ok {
			l.despawned(rec)
		}
	case Grabbed:
		rec, ok := l.acknowledged(e.Handle, KindItem)
		if ok && !rec.owned {
			l.send(Reliable, &packet.ItemOwner{ItemID: rec.networkID, Owning: true})
		}
	case Released:
		if rec, ok := l.acknowledged(e.Handle, KindItem); ok && rec.owned {
			rec.sent.Reset()
		}
	case Attached:
		rec, ok := l.acknowledged(e.Handle, KindItem)
		if !ok {
			return
		}
		holderID, isPlayer, ok := l.holderID(e.Holder)
		if !ok {
			l.logger.Debug("Snap to unknown holder", log.Uint64("holder", uint64(e.Holder)))
			return
		}
		l.send(Reliable, &packet.ItemSnap{
			ItemID:         rec.networkID,
			HolderID:       holderID,
			HolderIsPlayer: isPlayer,
			DrawSlot:       e.DrawSlot,
			Side:           e.Side,
		})
	case Detached:
		if rec, ok := l.acknowledged(e.Handle, KindItem); ok {
			l.send(Reliable, &packet.ItemUnsnap{ItemID: rec.networkID})
		}
	case Imbued:
		if rec, ok := l.acknowledged(e.Handle, KindItem); ok {
			l.send(Reliable, &packet.ItemImbue{ItemID: rec.networkID, SpellID: e.SpellID, Amount: e.Amount})
		}
	case CreatureDamaged:
		if rec, ok := l.acknowledged(e.Handle, KindCreature); ok {
			l.send(Reliable, &packet.CreatureHealthChange{CreatureID: rec.networkID, Change: e.Damage})
		}
	case CreatureHealed:
		if rec, ok := l.acknowledged(e.Handle, KindCreature); ok {
			l.send(Reliable, &packet.CreatureHealthChange{CreatureID: rec.networkID, Change: -e.Amount})
		}
	case CreatureKilled:
		if rec, ok := l.acknowledged(e.Handle, KindCreature); ok {
			rec.health = 0
			l.send(Reliable, &packet.CreatureHealthSet{CreatureID: rec.networkID, Health: 0})
		}
	case CreatureAnimated:
		if rec, ok := l.acknowledged(e.Handle, KindCreature); ok && rec.owned {
			l.send(Reliable, &packet.CreatureAnimation{CreatureID: rec.networkID, StateHash: e.StateHash, Clip: e.Clip})
		}
	case CreatureSliced:
		if rec, ok := l.acknowledged(e.Handle, KindCreature); ok {
			l.send(Reliable, &packet.CreatureSlice{CreatureID: rec.networkID, Part: e.Part})
		}
	case CreatureRagdolled:
		if rec, ok := l.acknowledged(e.Handle, KindCreature); ok && rec.owned {
			cur, _ := l.host.Transform(rec.handle)
			l.send(Unreliable, &packet.CreatureRagdoll{
				CreatureID: rec.networkID,
				Position:   cur.Position,
				Rotation:   cur.Rotation,
				Parts:      slices.Clone(e.Parts),
			})
		}
	case PlayerAttacked:
		rec, ok := l.mirror.byHandle[e.Target]
		if !ok || rec.kind != KindPlayer {
			return
		}
		l.send(Reliable, &packet.PlayerHealthChange{PlayerID: rec.networkID, Change: e.Damage})
	case EquipmentChanged:
		l.equipmentChanged()
	case LevelLoaded:
		l.levelLoaded(e)
	case spawnReady:
		l.spawnReady(e)
	}
}

// acknowledged resolves a host handle to a record the authority knows.
func (l *Loop) acknowledged(h Handle, k Kind) (*record, bool) {
	rec, ok := l.mirror.byHandle[h]
	if !ok || rec.kind != k || rec.networkID == 0 {
		return nil, false
	}
	return rec, true
}

func (l *Loop) holderID(h Handle) (int64, bool, bool) {
	if h == LocalPlayerHandle {
		return l.conn.PlayerID(), true, true
	}
	rec, ok := l.mirror.byHandle[h]
	if !ok || rec.networkID == 0 {
		return 0, false, false
	}
	switch rec.kind {
	case KindPlayer:
		return rec.networkID, true, true
	case KindCreature:
		return rec.networkID, false, true
	default:
		return 0, false, false
	}
}

// despawned drops a local object. Only the owner tells the authority.
func (l *Loop) despawned(rec *record) {
	l.mirror.remove(rec)
	if !rec.owned || rec.networkID == 0 {
		return
	}
	switch rec.kind {
	case KindItem:
		l.send(Reliable, &packet.ItemDespawn{ItemID: rec.networkID})
	case KindCreature:
		l.send(Reliable, &packet.CreatureDespawn{CreatureID: rec.networkID})
	}
}

func (l *Loop) equipmentChanged() {
	if !l.self.announced {
		return
	}
	p, ok := l.host.LocalPlayer()
	if !ok {
		return
	}
	fp := Fingerprint(p.Equipment, p.Colors)
	if fp == l.self.fingerprint {
		return
	}
	l.self.fingerprint = fp
	l.send(Reliable, &packet.PlayerEquipment{
		PlayerID:  l.conn.PlayerID(),
		Colors:    slices.Clone(p.Colors),
		Equipment: slices.Clone(p.Equipment),
	})
}

func (l *Loop) levelLoaded(e LevelLoaded) {
	if e.Level != l.level {
		l.dropEntities(false)
	}
	l.level = e.Level
	l.send(Reliable, &packet.LevelChange{Level: e.Level, Mode: e.Mode, Options: e.Options})
}

// dropEntities forgets every item and creature record, despawning the ones
// the host materialized for the network when despawn is set.
func (l *Loop) dropEntities(despawn bool) {
	for _, rec := range l.mirror.reset() {
		if despawn && rec.handle != 0 && rec.clientsideID == 0 {
			l.host.DespawnEntity(rec.handle)
		}
	}
}

func (l *Loop) spawnReady(e spawnReady) {
	l.mu.Lock()
	delete(l.adopting, e.handle)
	l.mu.Unlock()

	rec := e.rec
	if !l.mirror.live(rec) {
		l.host.DespawnEntity(e.handle)
		return
	}
	l.mirror.bind(rec, e.handle)
	if rec.player != nil {
		l.host.ApplyTransform(e.handle, playerTransform(rec))
		return
	}
	l.host.ApplyTransform(e.handle, rec.transform)
}

func playerTransform(rec *record) geom.Transform {
	p := rec.player
	return geom.Transform{Position: p.Position, Rotation: geom.FromYaw(p.Yaw), Velocity: p.Velocity}
}
