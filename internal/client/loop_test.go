package client

import (
	"context"
	"maps"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/worldsync/internal/core/geom"
	"github.com/zeusync/worldsync/internal/core/observability/log"
	"github.com/zeusync/worldsync/internal/core/protocol/packet"
)

type sentPacket struct {
	ch  Channel
	msg packet.Message
}

type fakeConn struct {
	id      int64
	sent    []sentPacket
	inbound chan packet.Message
	done    chan struct{}
	err     error
}

func newFakeConn(id int64) *fakeConn {
	return &fakeConn{id: id, inbound: make(chan packet.Message, 64), done: make(chan struct{})}
}

func (c *fakeConn) PlayerID() int64 { return c.id }

func (c *fakeConn) Send(ch Channel, m packet.Message) error {
	c.sent = append(c.sent, sentPacket{ch: ch, msg: m})
	return nil
}

func (c *fakeConn) Inbound() <-chan packet.Message { return c.inbound }
func (c *fakeConn) Done() <-chan struct{}          { return c.done }
func (c *fakeConn) Err() error                     { return c.err }

func (c *fakeConn) take() []sentPacket {
	out := c.sent
	c.sent = nil
	return out
}

func (c *fakeConn) deliver(msgs ...packet.Message) {
	for _, m := range msgs {
		c.inbound <- m
	}
}

func types(sent []sentPacket) []packet.Type {
	out := make([]packet.Type, len(sent))
	for i, s := range sent {
		out[i] = s.msg.Type()
	}
	return out
}

type fakeHost struct {
	player     *LocalPlayer
	entities   map[Handle]*LocalEntity
	nextHandle Handle
	spawns     []SpawnRequest
	pending    []func()
	despawned  []Handle
	applied    map[Handle]geom.Transform
	appearance map[Handle]int
	attached   map[Handle]Handle
	damage     map[Handle]float32
	animations []string
	levels     []string
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		entities:   make(map[Handle]*LocalEntity),
		nextHandle: 100,
		applied:    make(map[Handle]geom.Transform),
		appearance: make(map[Handle]int),
		attached:   make(map[Handle]Handle),
		damage:     make(map[Handle]float32),
	}
}

func (h *fakeHost) LocalPlayer() (LocalPlayer, bool) {
	if h.player == nil {
		return LocalPlayer{}, false
	}
	return *h.player, true
}

func (h *fakeHost) LocalEntities() []LocalEntity {
	keys := slices.Sorted(maps.Keys(h.entities))
	out := make([]LocalEntity, 0, len(keys))
	for _, k := range keys {
		if e := h.entities[k]; e.Kind != KindPlayer {
			out = append(out, *e)
		}
	}
	return out
}

// SpawnEntity completes when the test calls finishSpawns.
func (h *fakeHost) SpawnEntity(req SpawnRequest, ready func(Handle)) {
	h.spawns = append(h.spawns, req)
	h.pending = append(h.pending, func() {
		h.nextHandle++
		handle := h.nextHandle
		h.entities[handle] = &LocalEntity{
			Handle:    handle,
			Kind:      req.Kind,
			DataID:    req.DataID,
			Category:  req.Category,
			Transform: req.Transform,
		}
		ready(handle)
	})
}

func (h *fakeHost) finishSpawns() {
	pending := h.pending
	h.pending = nil
	for _, f := range pending {
		f()
	}
}

func (h *fakeHost) add(e LocalEntity) {
	h.entities[e.Handle] = &e
}

func (h *fakeHost) DespawnEntity(handle Handle) {
	delete(h.entities, handle)
	h.despawned = append(h.despawned, handle)
}

func (h *fakeHost) Transform(handle Handle) (geom.Transform, bool) {
	e, ok := h.entities[handle]
	if !ok {
		return geom.Transform{}, false
	}
	return e.Transform, true
}

func (h *fakeHost) ApplyTransform(handle Handle, t geom.Transform) {
	h.applied[handle] = t
	if e, ok := h.entities[handle]; ok {
		e.Transform = t
	}
}

func (h *fakeHost) ApplyAppearance(handle Handle, _ []string, _ []geom.Color) {
	h.appearance[handle]++
}

func (h *fakeHost) ApplyLimbs(Handle, Pose, Pose, Pose) {}
func (h *fakeHost) ApplyRagdoll(Handle, []geom.Vec3)    {}
func (h *fakeHost) Detach(handle Handle)                { delete(h.attached, handle) }
func (h *fakeHost) Imbue(Handle, string, float32)       {}
func (h *fakeHost) Slice(Handle, int16)                 {}

func (h *fakeHost) Attach(handle, holder Handle, _, _ byte) {
	h.attached[handle] = holder
}

func (h *fakeHost) PlayAnimation(_ Handle, clip string, _ int32) {
	h.animations = append(h.animations, clip)
}

func (h *fakeHost) ApplyDamage(handle Handle, change float32) {
	h.damage[handle] += change
}

func (h *fakeHost) LoadLevel(level, _ string, _ map[string]string) {
	h.levels = append(h.levels, level)
}

type loopHarness struct {
	loop *Loop
	conn *fakeConn
	host *fakeHost
	now  time.Time
}

func newLoopHarness(t *testing.T) *loopHarness {
	t.Helper()
	conn := newFakeConn(1)
	host := newFakeHost()
	return &loopHarness{
		loop: NewLoop(DefaultClientConfig(), conn, host, log.NewNop()),
		conn: conn,
		host: host,
		now:  time.Unix(1000, 0),
	}
}

func (h *loopHarness) tick(t *testing.T, advance time.Duration) []sentPacket {
	t.Helper()
	h.now = h.now.Add(advance)
	require.NoError(t, h.loop.Tick(h.now))
	return h.conn.take()
}

func (h *loopHarness) sweep() []sentPacket {
	h.loop.Sweep(h.now)
	return h.conn.take()
}

// synced delivers the end of the greeting snapshot.
func (h *loopHarness) synced(t *testing.T) {
	t.Helper()
	h.conn.deliver(&packet.Welcome{PlayerID: packet.SnapshotComplete})
	h.tick(t, 0)
}

// ownItem announces a local item, acknowledges it as networkID and returns
// what the acknowledging tick sent.
func (h *loopHarness) ownItem(t *testing.T, handle Handle, networkID int64) []sentPacket {
	t.Helper()
	h.host.add(LocalEntity{Handle: handle, Kind: KindItem, DataID: "Sword", Category: "weapon"})
	sent := h.sweep()
	require.Len(t, sent, 1)
	spawn := sent[0].msg.(*packet.ItemSpawn)
	h.conn.deliver(&packet.ItemSpawn{ItemID: networkID, ClientsideID: spawn.ClientsideID, DataID: "Sword"})
	return h.tick(t, 0)
}

func TestLocalPlayerAnnouncedThenGated(t *testing.T) {
	h := newLoopHarness(t)
	assert.Empty(t, h.tick(t, 0), "no local player yet")

	h.host.player = &LocalPlayer{Name: "Ada", CreatureID: "HumanFemale", Position: geom.Vec3{X: 1}, Health: 1, Equipment: []string{"helmet"}}
	sent := h.tick(t, 0)
	assert.Equal(t, []packet.Type{packet.TypePlayerData, packet.TypePlayerEquipment, packet.TypePlayerPosition}, types(sent))
	for _, s := range sent {
		assert.Equal(t, Reliable, s.ch)
	}
	full := sent[2].msg.(*packet.PlayerPosition)
	assert.True(t, full.Position.Changed)
	assert.True(t, full.Head.Rotation.Changed)
	assert.Equal(t, "Ada", sent[0].msg.(*packet.PlayerData).Name)

	assert.Empty(t, h.tick(t, 10*time.Millisecond), "identical transform produces no packet")

	h.host.player.Position.X = 3
	sent = h.tick(t, 10*time.Millisecond)
	require.Len(t, sent, 1)
	assert.Equal(t, Unreliable, sent[0].ch)
	delta := sent[0].msg.(*packet.PlayerPosition)
	assert.True(t, delta.Position.Changed)
	assert.Equal(t, geom.Vec3{X: 3}, delta.Position.Value)
	assert.False(t, delta.Velocity.Changed)
	assert.False(t, delta.HandLeft.Position.Changed)

	sent = h.tick(t, 300*time.Millisecond)
	require.Len(t, sent, 1)
	stale := sent[0].msg.(*packet.PlayerPosition)
	assert.True(t, stale.Position.Changed)
	assert.True(t, stale.Velocity.Changed)
	assert.True(t, stale.HandRight.Position.Changed)
}

func TestEquipmentChangeSentOnlyWhenDifferent(t *testing.T) {
	h := newLoopHarness(t)
	h.host.player = &LocalPlayer{Name: "Ada", Equipment: []string{"helmet"}}
	h.tick(t, 0)

	h.loop.Post(EquipmentChanged{})
	assert.Empty(t, h.tick(t, 10*time.Millisecond))

	h.host.player.Equipment = []string{"helmet", "cape"}
	h.loop.Post(EquipmentChanged{})
	sent := h.tick(t, 10*time.Millisecond)
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"helmet", "cape"}, sent[0].msg.(*packet.PlayerEquipment).Equipment)
}

func TestSweepWaitsForSnapshotAndDropsExcluded(t *testing.T) {
	h := newLoopHarness(t)
	h.host.add(LocalEntity{Handle: 5, Kind: KindItem, DataID: "Sword", Category: "weapon"})
	h.host.add(LocalEntity{Handle: 6, Kind: KindItem, DataID: "Fireball", Category: "spell"})

	assert.Empty(t, h.sweep())
	assert.Equal(t, []Handle{6}, h.host.despawned)

	h.synced(t)
	sent := h.sweep()
	require.Len(t, sent, 1)
	spawn := sent[0].msg.(*packet.ItemSpawn)
	assert.Equal(t, int64(1), spawn.ClientsideID)
	assert.Equal(t, "Sword", spawn.DataID)

	assert.Empty(t, h.sweep(), "pending entity is not announced twice")
}

func TestSpawnAckThenOwnedPositionUpdates(t *testing.T) {
	h := newLoopHarness(t)
	h.synced(t)
	sent := h.ownItem(t, 5, 7)
	require.Len(t, sent, 1)
	pos := sent[0].msg.(*packet.ItemPosition)
	assert.Equal(t, Unreliable, sent[0].ch)
	assert.Equal(t, int64(7), pos.ItemID)
	assert.True(t, pos.Velocity.Changed, "first update after ack is full")

	assert.Empty(t, h.tick(t, 10*time.Millisecond))

	h.host.entities[5].Transform.Position = geom.Vec3{Y: 2}
	sent = h.tick(t, 10*time.Millisecond)
	require.Len(t, sent, 1)
	pos = sent[0].msg.(*packet.ItemPosition)
	assert.True(t, pos.Position.Changed)
	assert.False(t, pos.Rotation.Changed)

	sent = h.tick(t, time.Second)
	require.Len(t, sent, 1)
	assert.True(t, sent[0].msg.(*packet.ItemPosition).Rotation.Changed, "stale resend is full")
}

func TestDuplicateAckDespawnsMirroredCopy(t *testing.T) {
	h := newLoopHarness(t)
	h.conn.deliver(&packet.ItemSpawn{ItemID: 3, DataID: "Sword"}, &packet.Welcome{PlayerID: packet.SnapshotComplete})
	h.tick(t, 0)
	require.Len(t, h.host.spawns, 1)
	h.host.finishSpawns()
	h.tick(t, 0)

	h.host.add(LocalEntity{Handle: 5, Kind: KindItem, DataID: "Sword", Category: "weapon"})
	sent := h.sweep()
	require.Len(t, sent, 1, "the network copy is not re-announced")
	spawn := sent[0].msg.(*packet.ItemSpawn)

	h.conn.deliver(&packet.ItemSpawn{ItemID: 3, ClientsideID: -spawn.ClientsideID, DataID: "Sword"})
	h.tick(t, 0)
	assert.Equal(t, []Handle{5}, h.host.despawned)
	assert.Empty(t, h.sweep())
}

func TestDuplicateAckAdoptsUnmirroredEntity(t *testing.T) {
	h := newLoopHarness(t)
	h.synced(t)
	h.host.add(LocalEntity{Handle: 5, Kind: KindItem, DataID: "Sword", Category: "weapon"})
	spawn := h.sweep()[0].msg.(*packet.ItemSpawn)

	h.conn.deliver(&packet.ItemSpawn{ItemID: 3, ClientsideID: -spawn.ClientsideID, DataID: "Sword"})
	assert.Empty(t, h.tick(t, 0), "adopted copies are not owned")
	assert.Empty(t, h.host.despawned)

	h.loop.Post(Grabbed{Handle: 5})
	sent := h.tick(t, 10*time.Millisecond)
	require.Len(t, sent, 1)
	assert.Equal(t, &packet.ItemOwner{ItemID: 3, Owning: true}, sent[0].msg)

	h.conn.deliver(&packet.ItemOwner{ItemID: 3, Owning: true})
	sent = h.tick(t, 10*time.Millisecond)
	require.Len(t, sent, 1)
	assert.Equal(t, packet.TypeItemPosition, sent[0].msg.Type())
}

func TestForeignSpawnCompletesAsynchronously(t *testing.T) {
	h := newLoopHarness(t)
	h.synced(t)
	h.conn.deliver(
		&packet.ItemSpawn{ItemID: 9, DataID: "Shield", Position: geom.Vec3{X: 1}},
		&packet.ItemPosition{ItemID: 9, Position: packet.Full(geom.Vec3{X: 4})},
	)
	h.tick(t, 0)
	require.Len(t, h.host.spawns, 1)
	assert.Equal(t, int64(9), h.host.spawns[0].NetworkID)

	// The object exists in the host before the loop hears about it.
	h.host.finishSpawns()
	assert.Empty(t, h.sweep())

	h.tick(t, 0)
	handle := h.host.nextHandle
	assert.Equal(t, geom.Vec3{X: 4}, h.host.applied[handle].Position)

	h.conn.deliver(&packet.ItemDespawn{ItemID: 9})
	h.tick(t, 0)
	assert.Equal(t, []Handle{handle}, h.host.despawned)
}

func TestSpawnCompletingAfterDespawnIsUndone(t *testing.T) {
	h := newLoopHarness(t)
	h.conn.deliver(&packet.CreatureSpawn{CreatureID: 4, TypeID: "Goblin"}, &packet.CreatureDespawn{CreatureID: 4})
	h.tick(t, 0)
	require.Len(t, h.host.spawns, 1)

	h.host.finishSpawns()
	h.tick(t, 0)
	assert.Equal(t, []Handle{h.host.nextHandle}, h.host.despawned)
}

func TestOwnershipLossStopsUpdates(t *testing.T) {
	h := newLoopHarness(t)
	h.synced(t)
	h.ownItem(t, 5, 7)
	assert.Empty(t, h.tick(t, 10*time.Millisecond))

	h.conn.deliver(&packet.ItemOwner{ItemID: 7, Owning: false})
	h.host.entities[5].Transform.Position = geom.Vec3{Z: 3}
	assert.Empty(t, h.tick(t, 2*time.Second))

	h.conn.deliver(&packet.ItemPosition{ItemID: 7, Position: packet.Full(geom.Vec3{Z: 9})})
	h.tick(t, 0)
	assert.Equal(t, geom.Vec3{Z: 9}, h.host.applied[5].Position)

	h.loop.Post(Despawned{Handle: 5})
	assert.Empty(t, h.tick(t, 0), "only the owner reports despawns")
}

func TestOwnerReportsDespawn(t *testing.T) {
	h := newLoopHarness(t)
	h.synced(t)
	h.ownItem(t, 5, 7)

	delete(h.host.entities, 5)
	sent := h.sweep()
	require.Len(t, sent, 1)
	assert.Equal(t, &packet.ItemDespawn{ItemID: 7}, sent[0].msg)
}

func TestRemotePlayerLifecycle(t *testing.T) {
	h := newLoopHarness(t)
	h.conn.deliver(
		&packet.PlayerData{PlayerID: 2, Name: "Bob", CreatureID: "HumanMale"},
		&packet.PlayerData{PlayerID: 1, Name: "self"},
	)
	h.tick(t, 0)
	require.Len(t, h.host.spawns, 1)
	assert.Equal(t, KindPlayer, h.host.spawns[0].Kind)
	assert.Equal(t, "Bob", h.host.spawns[0].Name)
	h.host.finishSpawns()
	h.tick(t, 0)
	handle := h.host.nextHandle

	equipment := &packet.PlayerEquipment{PlayerID: 2, Equipment: []string{"hat"}}
	h.conn.deliver(equipment, equipment)
	h.tick(t, 0)
	assert.Equal(t, 1, h.host.appearance[handle], "unchanged appearance is not reapplied")

	h.conn.deliver(&packet.PlayerPosition{PlayerID: 2, Position: packet.Full(geom.Vec3{X: 5}), Yaw: 90})
	h.tick(t, 0)
	assert.Equal(t, geom.Vec3{X: 5}, h.host.applied[handle].Position)

	h.loop.Post(PlayerAttacked{Target: handle, Damage: 10})
	sent := h.tick(t, 0)
	require.Len(t, sent, 1)
	assert.Equal(t, &packet.PlayerHealthChange{PlayerID: 2, Change: 10}, sent[0].msg)

	h.conn.deliver(&packet.Disconnect{PlayerID: 2, Reason: "Disconnected"})
	h.tick(t, 0)
	assert.Equal(t, []Handle{handle}, h.host.despawned)
}

func TestDamageToLocalPlayer(t *testing.T) {
	h := newLoopHarness(t)
	h.conn.deliver(&packet.PlayerHealthChange{PlayerID: 1, Change: 12})
	h.tick(t, 0)
	assert.Equal(t, float32(12), h.host.damage[LocalPlayerHandle])
}

func TestCreatureEventsBecomePackets(t *testing.T) {
	h := newLoopHarness(t)
	h.synced(t)
	h.host.add(LocalEntity{Handle: 8, Kind: KindCreature, DataID: "Goblin", Health: 50, MaxHealth: 50})
	sent := h.sweep()
	require.Len(t, sent, 1)
	spawn := sent[0].msg.(*packet.CreatureSpawn)
	assert.Equal(t, "Goblin", spawn.TypeID)
	h.conn.deliver(&packet.CreatureSpawn{CreatureID: 4, ClientsideID: spawn.ClientsideID})
	h.tick(t, 0)
	h.tick(t, 10*time.Millisecond)

	h.loop.Post(CreatureDamaged{Handle: 8, Damage: 5})
	h.loop.Post(CreatureHealed{Handle: 8, Amount: 2})
	h.loop.Post(CreatureAnimated{Handle: 8, Clip: "attack"})
	h.loop.Post(CreatureSliced{Handle: 8, Part: 3})
	h.loop.Post(CreatureKilled{Handle: 8})
	sent = h.tick(t, 10*time.Millisecond)
	assert.Equal(t, []packet.Message{
		&packet.CreatureHealthChange{CreatureID: 4, Change: 5},
		&packet.CreatureHealthChange{CreatureID: 4, Change: -2},
		&packet.CreatureAnimation{CreatureID: 4, Clip: "attack"},
		&packet.CreatureSlice{CreatureID: 4, Part: 3},
		&packet.CreatureHealthSet{CreatureID: 4, Health: 0},
	}, messages(sent))
}

func TestInboundCreatureEffects(t *testing.T) {
	h := newLoopHarness(t)
	h.conn.deliver(&packet.CreatureSpawn{CreatureID: 4, TypeID: "Goblin", Health: 50})
	h.tick(t, 0)
	h.host.finishSpawns()
	h.tick(t, 0)
	handle := h.host.nextHandle

	h.conn.deliver(
		&packet.CreatureHealthChange{CreatureID: 4, Change: 7},
		&packet.CreatureAnimation{CreatureID: 4, Clip: "roar"},
	)
	h.tick(t, 0)
	assert.Equal(t, float32(7), h.host.damage[handle])
	assert.Equal(t, []string{"roar"}, h.host.animations)
}

func TestItemSnapResolvesHolders(t *testing.T) {
	h := newLoopHarness(t)
	h.synced(t)
	h.ownItem(t, 5, 7)

	h.loop.Post(Attached{Handle: 5, Holder: LocalPlayerHandle, DrawSlot: 1})
	sent := h.tick(t, 10*time.Millisecond)
	assert.Contains(t, messages(sent), packet.Message(&packet.ItemSnap{ItemID: 7, HolderID: 1, HolderIsPlayer: true, DrawSlot: 1}))

	h.conn.deliver(&packet.ItemSnap{ItemID: 7, HolderID: 1, HolderIsPlayer: true})
	h.tick(t, 10*time.Millisecond)
	assert.Equal(t, LocalPlayerHandle, h.host.attached[5])

	h.conn.deliver(&packet.ItemUnsnap{ItemID: 7})
	h.tick(t, 10*time.Millisecond)
	assert.NotContains(t, h.host.attached, Handle(5))
}

func TestLevelChangeLoadsLevelAndClearsMirror(t *testing.T) {
	h := newLoopHarness(t)
	h.conn.deliver(&packet.ItemSpawn{ItemID: 3, DataID: "Sword"})
	h.tick(t, 0)
	h.host.finishSpawns()
	h.tick(t, 0)
	handle := h.host.nextHandle

	h.conn.deliver(&packet.LevelChange{Level: "Arena", Mode: "Sandbox"})
	h.tick(t, 0)
	assert.Equal(t, []string{"Arena"}, h.host.levels)
	assert.Equal(t, []Handle{handle}, h.host.despawned)

	h.loop.Post(LevelLoaded{Level: "Arena", Mode: "Sandbox"})
	sent := h.tick(t, 0)
	require.Len(t, sent, 1)
	assert.Equal(t, &packet.LevelChange{Level: "Arena", Mode: "Sandbox"}, sent[0].msg)

	h.conn.deliver(&packet.LevelChange{Level: "Arena", Mode: "Sandbox"})
	h.tick(t, 0)
	assert.Len(t, h.host.levels, 1, "same level is not reloaded")
}

func TestSelfDisconnectEndsLoop(t *testing.T) {
	h := newLoopHarness(t)
	h.conn.deliver(&packet.Disconnect{PlayerID: 1, Reason: "Server closed"})
	err := h.loop.Tick(h.now)
	require.ErrorIs(t, err, ErrDisconnected)
	assert.Contains(t, err.Error(), "Server closed")
}

func TestRunReturnsDisconnectQueuedBeforeClose(t *testing.T) {
	h := newLoopHarness(t)
	h.conn.deliver(&packet.Disconnect{PlayerID: 1, Reason: "Timed out"})
	h.conn.err = ErrConnectionLost
	close(h.conn.done)

	err := h.loop.Run(context.Background())
	require.ErrorIs(t, err, ErrDisconnected)
	assert.Contains(t, err.Error(), "Timed out")
}

func TestRunStopsWithContext(t *testing.T) {
	h := newLoopHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.loop.Run(ctx), context.DeadlineExceeded)
}

func messages(sent []sentPacket) []packet.Message {
	out := make([]packet.Message, len(sent))
	for i, s := range sent {
		out[i] = s.msg
	}
	return out
}
