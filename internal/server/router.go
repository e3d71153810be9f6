package server

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/zeusync/worldsync/internal/capture"
	"github.com/zeusync/worldsync/internal/core/entity"
	"github.com/zeusync/worldsync/internal/core/observability/log"
	"github.com/zeusync/worldsync/internal/core/ownership"
	"github.com/zeusync/worldsync/internal/core/protocol/packet"
)

const (
	ReasonDisconnected    = "Player disconnected"
	ReasonTimedOut        = "Player timed out"
	ReasonServerClosed    = "Server closed"
	ReasonLevelChangeDeny = "Map changing is not allowed by the server!"
)

// Tap observes every packet the router sends. Inbound packets are tapped by
// the Authority, which still holds the raw bytes.
type Tap func(dir capture.Direction, ch Channel, playerID int64, packet []byte)

// Router is the authority's world state and dispatch table. It is not safe
// for concurrent use: the Authority drives it from a single event loop.
type Router struct {
	cfg    Config
	logger log.Log
	now    func() time.Time
	tap    Tap

	// OnLeave runs after a client has been removed.
	OnLeave func(c *ClientData)

	clients      map[int64]*ClientData
	nextPlayerID int64

	items          *entity.Table[*entity.Item]
	creatures      *entity.Table[*entity.Creature]
	itemOwners     *ownership.Registry
	creatureOwners *ownership.Registry
	damage         *ownership.DamageLedger

	level   string
	mode    string
	options map[string]string
}

// NewRouter returns an empty router. It is not safe for concurrent use; the
// authority drives it from a single goroutine.
func NewRouter(cfg Config, logger log.Log) *Router {
	return &Router{
		cfg:            cfg,
		logger:         logger.With(log.String("component", "router")),
		now:            time.Now,
		clients:        make(map[int64]*ClientData),
		items:          entity.NewTable[*entity.Item](),
		creatures:      entity.NewTable[*entity.Creature](),
		itemOwners:     ownership.NewRegistry(),
		creatureOwners: ownership.NewRegistry(),
		damage:         ownership.NewDamageLedger(),
		level:          cfg.Level,
		mode:           cfg.Mode,
		options:        cfg.LevelOptions,
	}
}

// Client returns the joined client with the given id.
func (r *Router) Client(id int64) (*ClientData, bool) {
	c, ok := r.clients[id]
	return c, ok
}

// Clients returns the joined clients ordered by id.
func (r *Router) Clients() []*ClientData {
	out := make([]*ClientData, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *ClientData) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Level reports the current level and game mode. Both are empty until a
// level is configured or reported.
func (r *Router) Level() (level, mode string) { return r.level, r.mode }

// StatusPing answers a status query.
func (r *Router) StatusPing() *packet.Ping {
	return &packet.Ping{
		Players:    int32(len(r.clients)),
		MaxPlayers: int32(r.cfg.MaxClients),
		Name:       r.cfg.Name,
		Version:    packet.Version,
	}
}

// Join admits a new client on peer. A refused peer is sent an ERROR and
// closed.
func (r *Router) Join(peer Peer, m *packet.Join) (*ClientData, error) {
	if m.Version != packet.Version {
		r.refuse(peer, "version mismatch: server runs "+packet.Version)
		r.logger.Info("Join refused", log.String("version", m.Version), log.Error(ErrVersionMismatch))
		return nil, ErrVersionMismatch
	}
	if len(r.clients) >= r.cfg.MaxClients {
		r.refuse(peer, ErrServerFull.Error())
		r.logger.Warn("Maximum clients reached, rejecting join", log.Int("max_clients", r.cfg.MaxClients))
		return nil, ErrServerFull
	}

	r.nextPlayerID++
	now := r.now()
	c := &ClientData{
		ID:           r.nextPlayerID,
		Session:      uuid.New(),
		Name:         entity.SanitizeName(m.Name),
		Peer:         peer,
		ConnectedAt:  now,
		LastActivity: now,
	}
	if r.cfg.UnreliableRate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(r.cfg.UnreliableRate), r.cfg.UnreliableBurst)
	}
	c.logger = r.logger.With(
		log.Int64("player_id", c.ID),
		log.String("session_id", c.Session.String()))
	r.clients[c.ID] = c

	c.logger.Info("Client joined",
		log.String("name", c.Name),
		log.Int("total_clients", len(r.clients)))

	r.unicast(c, Reliable, &packet.Welcome{PlayerID: c.ID})
	if r.level != "" {
		r.unicast(c, Reliable, r.levelPacket())
	} else {
		r.greet(c)
	}
	return c, nil
}

func (r *Router) refuse(peer Peer, reason string) {
	data := packet.Encode(&packet.ErrorNotice{Message: reason})
	r.record(capture.Outbound, Reliable, 0, data)
	_ = peer.Send(Reliable, data)
	_ = peer.Close()
}

// Handle dispatches one packet from a joined client.
func (r *Router) Handle(c *ClientData, m packet.Message, ch Channel) {
	if _, ok := r.clients[c.ID]; !ok {
		return
	}
	c.LastActivity = r.now()

	switch m := m.(type) {
	case *packet.Welcome:
		// Datagram handshake only.
	case *packet.Disconnect:
		r.Leave(c, ReasonDisconnected)
	case *packet.Text:
		c.logger.Info("Client message", log.String("text", m.Text))
	case *packet.ErrorNotice:
		c.logger.Warn("Client reported error", log.String("message", m.Message))
	case *packet.LevelChange:
		r.handleLevelChange(c, m)

	case *packet.PlayerData:
		r.handlePlayerData(c, m)
	case *packet.PlayerPosition:
		if c.Player == nil {
			r.ignore(c, m, "no player record")
			return
		}
		m.PlayerID = c.ID
		c.Player.ApplyPosition(m)
		r.broadcast(Unreliable, m, c)
	case *packet.PlayerEquipment:
		if c.Player == nil {
			r.ignore(c, m, "no player record")
			return
		}
		c.Player.ApplyEquipment(m)
		r.broadcast(Reliable, c.Player.EquipmentPacket(), c)
	case *packet.PlayerRagdoll:
		if c.Player == nil || m.PlayerID != c.ID {
			r.ignore(c, m, "ragdoll for foreign player")
			return
		}
		c.Player.ApplyRagdoll(m)
		r.broadcast(Reliable, m, c)
	case *packet.PlayerHealthSet:
		if c.Player == nil {
			r.ignore(c, m, "no player record")
			return
		}
		m.PlayerID = c.ID
		c.Player.Health = m.Health
		r.broadcast(Reliable, m, c)
	case *packet.PlayerHealthChange:
		r.handlePlayerHealthChange(c, m)

	case *packet.ItemSpawn:
		r.handleItemSpawn(c, m)
	case *packet.ItemDespawn:
		if !r.items.Delete(m.ItemID) {
			r.ignore(c, m, "unknown item")
			return
		}
		r.itemOwners.Release(m.ItemID)
		r.broadcast(Reliable, m, c)
	case *packet.ItemPosition:
		item, ok := r.items.Get(m.ItemID)
		if !ok {
			r.ignore(c, m, "unknown item")
			return
		}
		item.ApplyPosition(m)
		r.broadcast(Unreliable, m, c)
	case *packet.ItemOwner:
		if _, ok := r.items.Get(m.ItemID); !ok {
			r.ignore(c, m, "unknown item")
			return
		}
		r.claim(c, r.itemOwners, m.ItemID, true, itemOwner)
	case *packet.ItemSnap:
		item, ok := r.items.Get(m.ItemID)
		if !ok {
			r.ignore(c, m, "unknown item")
			return
		}
		item.ApplySnap(m)
		r.broadcast(Reliable, m, c)
	case *packet.ItemUnsnap:
		item, ok := r.items.Get(m.ItemID)
		if !ok {
			r.ignore(c, m, "unknown item")
			return
		}
		item.ApplyUnsnap()
		r.broadcast(Reliable, m, c)
	case *packet.ItemImbue:
		if _, ok := r.items.Get(m.ItemID); !ok {
			r.ignore(c, m, "unknown item")
			return
		}
		r.broadcast(Reliable, m, c)

	case *packet.CreatureSpawn:
		r.handleCreatureSpawn(c, m)
	case *packet.CreaturePosition:
		creature, ok := r.creatures.Get(m.CreatureID)
		if !ok {
			r.ignore(c, m, "unknown creature")
			return
		}
		creature.ApplyPosition(m)
		r.broadcast(Unreliable, m, c)
	case *packet.CreatureHealthSet:
		creature, ok := r.creatures.Get(m.CreatureID)
		if !ok {
			r.ignore(c, m, "unknown creature")
			return
		}
		creature.Health = m.Health
		r.broadcast(Reliable, m, c)
	case *packet.CreatureHealthChange:
		r.handleCreatureHealthChange(c, m)
	case *packet.CreatureDespawn:
		if !r.creatures.Delete(m.CreatureID) {
			r.ignore(c, m, "unknown creature")
			return
		}
		r.creatureOwners.Release(m.CreatureID)
		r.damage.Forget(m.CreatureID)
		r.broadcast(Reliable, m, c)
	case *packet.CreatureAnimation:
		if _, ok := r.creatures.Get(m.CreatureID); !ok {
			r.ignore(c, m, "unknown creature")
			return
		}
		r.broadcast(Reliable, m, c)
	case *packet.CreatureRagdoll:
		creature, ok := r.creatures.Get(m.CreatureID)
		if !ok {
			r.ignore(c, m, "unknown creature")
			return
		}
		creature.ApplyRagdoll(m)
		r.broadcast(Unreliable, m, c)
	case *packet.CreatureSlice:
		if _, ok := r.creatures.Get(m.CreatureID); !ok {
			r.ignore(c, m, "unknown creature")
			return
		}
		r.broadcast(Reliable, m, c)
	case *packet.CreatureOwner:
		if _, ok := r.creatures.Get(m.CreatureID); !ok {
			r.ignore(c, m, "unknown creature")
			return
		}
		r.claim(c, r.creatureOwners, m.CreatureID, true, creatureOwner)

	default:
		r.ignore(c, m, "unexpected packet")
	}
}

func (r *Router) ignore(c *ClientData, m packet.Message, why string) {
	c.logger.Debug("Ignoring packet",
		log.Stringer("type", m.Type()),
		log.String("reason", why))
}

func (r *Router) handlePlayerData(c *ClientData, m *packet.PlayerData) {
	if c.Player == nil {
		c.Player = entity.NewPlayer(c.ID)
	}
	c.Player.ApplyData(m)
	if c.Player.Name != "" {
		c.Name = c.Player.Name
	}
	r.broadcast(Reliable, c.Player.DataPacket(), c)
}

func (r *Router) handlePlayerHealthChange(c *ClientData, m *packet.PlayerHealthChange) {
	if !r.cfg.PvPEnabled {
		r.ignore(c, m, "pvp disabled")
		return
	}
	target, ok := r.clients[m.PlayerID]
	if !ok || target == c || target.Player == nil {
		r.ignore(c, m, "unknown target")
		return
	}
	change := m.Change * r.cfg.PvPDamageMultiplier
	if change == 0 {
		return
	}
	r.unicast(target, Reliable, &packet.PlayerHealthChange{PlayerID: target.ID, Change: change})
}

func (r *Router) handleItemSpawn(c *ClientData, m *packet.ItemSpawn) {
	if m.ClientsideID <= 0 {
		r.ignore(c, m, "missing clientside id")
		return
	}
	if dup, ok := entity.DuplicateOf(r.items, m.DataID, m.Position, r.cfg.DuplicateDistanceSq); ok {
		ack := dup.SpawnPacket()
		ack.ClientsideID = -m.ClientsideID
		r.unicast(c, Reliable, ack)
		c.logger.Debug("Duplicate item spawn",
			log.Int64("item_id", dup.ID),
			log.String("data_id", m.DataID))
		return
	}

	item := entity.ItemFromSpawn(m)
	item.ID = r.items.NextID()
	r.items.Put(item.ID, item)
	r.itemOwners.Claim(item.ID, c.ID)

	ack := item.SpawnPacket()
	ack.ClientsideID = m.ClientsideID
	r.unicast(c, Reliable, ack)
	r.broadcast(Reliable, item.SpawnPacket(), c)
}

func (r *Router) handleCreatureSpawn(c *ClientData, m *packet.CreatureSpawn) {
	if m.CreatureID > 0 {
		r.ignore(c, m, "creature already has a network id")
		return
	}
	if m.ClientsideID <= 0 {
		r.ignore(c, m, "missing clientside id")
		return
	}

	creature := entity.CreatureFromSpawn(m)
	creature.ID = r.creatures.NextID()
	r.creatures.Put(creature.ID, creature)
	r.creatureOwners.Claim(creature.ID, c.ID)

	ack := creature.SpawnPacket()
	ack.ClientsideID = m.ClientsideID
	r.unicast(c, Reliable, ack)
	r.broadcast(Reliable, creature.SpawnPacket(), c)
}

func (r *Router) handleCreatureHealthChange(c *ClientData, m *packet.CreatureHealthChange) {
	creature, ok := r.creatures.Get(m.CreatureID)
	if !ok {
		r.ignore(c, m, "unknown creature")
		return
	}
	creature.ApplyDamage(m.Change)
	r.broadcast(Reliable, m, c)

	if m.Change <= 0 {
		return
	}
	share := r.damage.Record(m.CreatureID, c.ID, m.Change)
	if share > r.cfg.DamageShareThreshold {
		r.claim(c, r.creatureOwners, m.CreatureID, false, creatureOwner)
	}
}

func itemOwner(id int64, owning bool) packet.Message {
	return &packet.ItemOwner{ItemID: id, Owning: owning}
}

func creatureOwner(id int64, owning bool) packet.Message {
	return &packet.CreatureOwner{CreatureID: id, Owning: owning}
}

// claim hands id to c. The claimant is acknowledged on explicit requests or
// when authority moved; everyone else hears about it only when it moved.
func (r *Router) claim(c *ClientData, reg *ownership.Registry, id int64, explicit bool, notice func(int64, bool) packet.Message) {
	transfer := reg.Claim(id, c.ID)
	moved := transfer.Changed(c.ID)
	if explicit || moved {
		r.unicast(c, Reliable, notice(id, true))
	}
	if moved {
		r.broadcast(Reliable, notice(id, false), c)
		c.logger.Debug("Ownership transferred",
			log.Int64("entity_id", id),
			log.Int64("previous_owner", transfer.Previous))
	}
}

func (r *Router) levelPacket() *packet.LevelChange {
	return &packet.LevelChange{Level: r.level, Mode: r.mode, Options: r.options}
}

func (r *Router) sameLevel(m *packet.LevelChange) bool {
	return strings.EqualFold(m.Level, r.level) && strings.EqualFold(m.Mode, r.mode)
}

func (r *Router) handleLevelChange(c *ClientData, m *packet.LevelChange) {
	if !c.Greeted {
		if r.level == "" || r.sameLevel(m) {
			r.greet(c)
			return
		}
		c.logger.Debug("Client reported another level", log.String("level", m.Level))
		r.unicast(c, Reliable, r.levelPacket())
		return
	}

	if m.Level == "" || strings.EqualFold(m.Level, "characterselection") {
		return
	}
	if r.sameLevel(m) {
		r.sendWorld(c)
		return
	}
	// The first level reported to a fresh authority establishes it.
	if r.level != "" && !r.cfg.AllowLevelChange {
		r.Leave(c, ReasonLevelChangeDeny)
		return
	}

	r.level, r.mode, r.options = m.Level, m.Mode, m.Options
	r.clearWorld()
	c.logger.Info("Level changed",
		log.String("level", r.level),
		log.String("mode", r.mode))
	r.broadcast(Reliable, m, c)
}

// greet sends the world snapshot and marks c as greeted.
func (r *Router) greet(c *ClientData) {
	for _, other := range r.Clients() {
		if other == c || other.Player == nil {
			continue
		}
		r.unicast(c, Reliable, other.Player.DataPacket())
		r.unicast(c, Reliable, other.Player.EquipmentPacket())
		r.unicast(c, Reliable, other.Player.PositionPacket())
	}
	c.Greeted = true
	r.sendWorld(c)
	r.unicast(c, Reliable, &packet.Welcome{PlayerID: packet.SnapshotComplete})
	c.logger.Debug("Client greeted",
		log.Int("creatures", r.creatures.Len()),
		log.Int("items", r.items.Len()))
}

// sendWorld sends every tracked entity to c. Entities c already holds, for
// example after inheriting them while ungreeted, are followed by OWNER(true).
func (r *Router) sendWorld(c *ClientData) {
	for _, creature := range r.creatures.Values() {
		r.unicast(c, Reliable, creature.SpawnPacket())
		r.sendHeld(c, r.creatureOwners, creature.ID, creatureOwner)
	}
	for _, item := range r.items.Values() {
		r.unicast(c, Reliable, item.SpawnPacket())
		r.sendHeld(c, r.itemOwners, item.ID, itemOwner)
		if snap := item.SnapPacket(); snap != nil {
			r.unicast(c, Reliable, snap)
		}
	}
}

func (r *Router) sendHeld(c *ClientData, reg *ownership.Registry, id int64, notice func(int64, bool) packet.Message) {
	if owner, ok := reg.Owner(id); ok && owner == c.ID {
		r.unicast(c, Reliable, notice(id, true))
	}
}

func (r *Router) clearWorld() {
	r.items.Clear()
	r.creatures.Clear()
	r.itemOwners.Clear()
	r.creatureOwners.Clear()
	r.damage.Clear()
}

// Leave removes c, hands its entities to the lowest greeted client id and
// tells everyone else.
func (r *Router) Leave(c *ClientData, reason string) {
	if _, ok := r.clients[c.ID]; !ok {
		return
	}
	delete(r.clients, c.ID)

	r.unicast(c, Reliable, &packet.Disconnect{PlayerID: c.ID, Reason: reason})
	if err := c.Peer.Close(); err != nil {
		c.logger.Debug("Close failed", log.Error(err))
	}
	r.damage.ForgetAttacker(c.ID)

	remaining := r.Clients()
	if len(remaining) == 0 {
		r.clearWorld()
	} else {
		heir := successor(remaining)
		items := r.itemOwners.Migrate(c.ID, heir.ID)
		creatures := r.creatureOwners.Migrate(c.ID, heir.ID)
		// An ungreeted heir has not seen these entities yet; its greeting
		// snapshot carries the ownership instead.
		if heir.Greeted {
			for _, id := range items {
				r.unicast(heir, Reliable, itemOwner(id, true))
			}
			for _, id := range creatures {
				r.unicast(heir, Reliable, creatureOwner(id, true))
			}
		}
	}
	r.broadcast(Reliable, &packet.Disconnect{PlayerID: c.ID, Reason: reason}, nil)

	c.logger.Info("Client left",
		log.String("reason", reason),
		log.Int("total_clients", len(r.clients)))
	if r.OnLeave != nil {
		r.OnLeave(c)
	}
}

// successor picks the lowest greeted client, or the lowest id when nobody
// has been greeted yet. remaining is ordered by id.
func successor(remaining []*ClientData) *ClientData {
	for _, c := range remaining {
		if c.Greeted {
			return c
		}
	}
	return remaining[0]
}

// Sweep removes clients that have been silent longer than the timeout.
func (r *Router) Sweep(now time.Time) {
	for _, c := range r.Clients() {
		if now.Sub(c.LastActivity) > r.cfg.ClientTimeout {
			r.Leave(c, ReasonTimedOut)
		}
	}
}

// Shutdown disconnects every client and drops the world.
func (r *Router) Shutdown() {
	for _, c := range r.Clients() {
		r.unicast(c, Reliable, &packet.Disconnect{PlayerID: c.ID, Reason: ReasonServerClosed})
		_ = c.Peer.Close()
		delete(r.clients, c.ID)
		if r.OnLeave != nil {
			r.OnLeave(c)
		}
	}
	r.clearWorld()
}

func (r *Router) unicast(c *ClientData, ch Channel, m packet.Message) {
	r.send(c, ch, packet.Encode(m))
}

// broadcast encodes m once and sends it to every client but except. World
// traffic only reaches greeted clients.
func (r *Router) broadcast(ch Channel, m packet.Message, except *ClientData) {
	var data []byte
	world := m.Type().IsWorld()
	for _, c := range r.Clients() {
		if c == except || (world && !c.Greeted) {
			continue
		}
		if data == nil {
			data = packet.Encode(m)
		}
		r.send(c, ch, data)
	}
}

func (r *Router) send(c *ClientData, ch Channel, data []byte) {
	r.record(capture.Outbound, ch, c.ID, data)
	if err := c.Peer.Send(ch, data); err != nil {
		c.logger.Debug("Send dropped",
			log.Stringer("channel", ch),
			log.Stringer("type", packet.Type(data[0])),
			log.Error(err))
	}
}

func (r *Router) record(dir capture.Direction, ch Channel, playerID int64, data []byte) {
	if r.tap != nil {
		r.tap(dir, ch, playerID, data)
	}
}
