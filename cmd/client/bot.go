package main

import (
	"math"
	"sync"
	"time"

	"github.com/zeusync/worldsync/internal/client"
	"github.com/zeusync/worldsync/internal/core/geom"
	"github.com/zeusync/worldsync/internal/core/observability/log"
)

const (
	botRadius = 4
	botSpeed  = 0.5 // radians per second
)

type botObject struct {
	entity client.LocalEntity
	// carried objects orbit the bot instead of following the network.
	carried bool
	slot    int
}

// botHost is a headless Host: the player walks in a circle carrying a few
// items, and everything else just stores what the network says.
type botHost struct {
	name   string
	start  time.Time
	logger log.Log
	post   func(client.Event)

	mu      sync.Mutex
	next    client.Handle
	objects map[client.Handle]*botObject
	level   string
	health  float32
}

func newBotHost(name string, items int, logger log.Log) *botHost {
	h := &botHost{
		name:    name,
		start:   time.Now(),
		logger:  logger.With(log.String("component", "bot")),
		objects: make(map[client.Handle]*botObject),
		health:  1,
	}
	for i := 0; i < items; i++ {
		h.next++
		h.objects[h.next] = &botObject{
			entity: client.LocalEntity{
				Handle:   h.next,
				Kind:     client.KindItem,
				DataID:   "Torch",
				Category: "misc",
			},
			carried: true,
			slot:    i,
		}
	}
	return h
}

func (h *botHost) angle() float64 {
	return time.Since(h.start).Seconds() * botSpeed
}

func (h *botHost) LocalPlayer() (client.LocalPlayer, bool) {
	a := h.angle()
	pos := geom.Vec3{X: float32(math.Cos(a) * botRadius), Z: float32(math.Sin(a) * botRadius)}
	vel := geom.Vec3{X: float32(-math.Sin(a) * botRadius * botSpeed), Z: float32(math.Cos(a) * botRadius * botSpeed)}

	h.mu.Lock()
	health := h.health
	h.mu.Unlock()

	return client.LocalPlayer{
		Name:       h.name,
		CreatureID: "HumanMale",
		Height:     1.8,
		Position:   pos,
		Velocity:   vel,
		Yaw:        float32(-a*180/math.Pi) - 90,
		Head:       client.Pose{Position: pos.Add(geom.Vec3{Y: 1.7}), Rotation: geom.Identity},
		Health:     health,
	}, true
}

func (h *botHost) LocalEntities() []client.LocalEntity {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]client.LocalEntity, 0, len(h.objects))
	for handle, o := range h.objects {
		if o.entity.Kind == client.KindPlayer {
			continue
		}
		e := o.entity
		e.Transform = h.transformLocked(handle)
		out = append(out, e)
	}
	return out
}

func (h *botHost) SpawnEntity(req client.SpawnRequest, ready func(client.Handle)) {
	h.mu.Lock()
	h.next++
	handle := h.next
	h.objects[handle] = &botObject{entity: client.LocalEntity{
		Handle:      handle,
		Kind:        req.Kind,
		DataID:      req.DataID,
		Category:    req.Category,
		ContainerID: req.ContainerID,
		FactionID:   req.FactionID,
		Transform:   req.Transform,
		Health:      req.Health,
		MaxHealth:   req.MaxHealth,
		Height:      req.Height,
		Equipment:   req.Equipment,
		Colors:      req.Colors,
	}}
	h.mu.Unlock()

	h.logger.Debug("Spawned",
		log.Stringer("kind", req.Kind),
		log.Int64("network_id", req.NetworkID),
		log.String("data_id", req.DataID))
	go ready(handle)
}

func (h *botHost) DespawnEntity(handle client.Handle) {
	h.mu.Lock()
	delete(h.objects, handle)
	h.mu.Unlock()
}

func (h *botHost) Transform(handle client.Handle) (geom.Transform, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.objects[handle]; !ok {
		return geom.Transform{}, false
	}
	return h.transformLocked(handle), true
}

func (h *botHost) transformLocked(handle client.Handle) geom.Transform {
	o := h.objects[handle]
	if !o.carried {
		return o.entity.Transform
	}
	a := h.angle() + float64(o.slot)*0.4
	return geom.Transform{
		Position: geom.Vec3{X: float32(math.Cos(a) * botRadius), Y: 1, Z: float32(math.Sin(a) * botRadius)},
		Rotation: geom.FromYaw(float32(a * 180 / math.Pi)),
	}
}

func (h *botHost) ApplyTransform(handle client.Handle, t geom.Transform) {
	h.mu.Lock()
	if o, ok := h.objects[handle]; ok && !o.carried {
		o.entity.Transform = t
	}
	h.mu.Unlock()
}

func (h *botHost) ApplyAppearance(handle client.Handle, equipment []string, colors []geom.Color) {
	h.mu.Lock()
	if o, ok := h.objects[handle]; ok {
		o.entity.Equipment, o.entity.Colors = equipment, colors
	}
	h.mu.Unlock()
}

func (h *botHost) ApplyLimbs(client.Handle, client.Pose, client.Pose, client.Pose) {}

func (h *botHost) ApplyRagdoll(handle client.Handle, parts []geom.Vec3) {
	h.logger.Debug("Ragdoll", log.Uint64("handle", uint64(handle)), log.Int("parts", len(parts)))
}

func (h *botHost) Attach(handle, holder client.Handle, drawSlot, side byte) {
	h.logger.Debug("Attach", log.Uint64("handle", uint64(handle)), log.Uint64("holder", uint64(holder)))
}

func (h *botHost) Detach(handle client.Handle) {
	h.logger.Debug("Detach", log.Uint64("handle", uint64(handle)))
}

func (h *botHost) Imbue(handle client.Handle, spellID string, amount float32) {
	h.logger.Debug("Imbue", log.Uint64("handle", uint64(handle)), log.String("spell", spellID), log.Float32("amount", amount))
}

func (h *botHost) PlayAnimation(handle client.Handle, clip string, _ int32) {
	h.logger.Debug("Animation", log.Uint64("handle", uint64(handle)), log.String("clip", clip))
}

func (h *botHost) Slice(handle client.Handle, part int16) {
	h.logger.Debug("Slice", log.Uint64("handle", uint64(handle)), log.Int("part", int(part)))
}

func (h *botHost) ApplyDamage(handle client.Handle, change float32) {
	if handle != client.LocalPlayerHandle {
		h.mu.Lock()
		if o, ok := h.objects[handle]; ok {
			o.entity.Health -= change
		}
		h.mu.Unlock()
		return
	}
	h.mu.Lock()
	h.health = max(0, h.health-change/100)
	health := h.health
	h.mu.Unlock()
	h.logger.Info("Took damage", log.Float32("change", change), log.Float32("health", health))
}

// LoadLevel completes instantly: network objects vanish, carried ones stay.
func (h *botHost) LoadLevel(level, mode string, options map[string]string) {
	h.mu.Lock()
	h.level = level
	for handle, o := range h.objects {
		if !o.carried {
			delete(h.objects, handle)
		}
	}
	h.mu.Unlock()

	h.logger.Info("Level loaded", log.String("level", level), log.String("mode", mode))
	if h.post != nil {
		h.post(client.LevelLoaded{Level: level, Mode: mode, Options: options})
	}
}
