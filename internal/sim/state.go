package sim

import (
	"bytes"
	"fmt"

	"github.com/beyawnko/Majestik-World/internal/core/ecs"
)

// worldState is the mutable working form of the world. A tick runs against a
// clone and the clone replaces the committed state only when the tick succeeds.
type worldState struct {
	ents    *ecs.World
	pos     *ecs.ComponentStore[Position]
	body    *ecs.ComponentStore[Body]
	motion  *ecs.ComponentStore[Motion]
	regions map[RegionCoord][]byte
}

func newWorldState() *worldState {
	ws := &worldState{
		ents:    ecs.NewWorld(),
		pos:     ecs.NewComponentStore[Position](),
		body:    ecs.NewComponentStore[Body](),
		motion:  ecs.NewComponentStore[Motion](),
		regions: make(map[RegionCoord][]byte),
	}
	ws.register()
	return ws
}

func (ws *worldState) register() {
	reg := ws.ents.Registry()
	reg.Register(ws.pos)
	reg.Register(ws.body)
	reg.Register(ws.motion)
}

func (ws *worldState) clone() *worldState {
	c := &worldState{
		ents:    ws.ents.CloneEmpty(),
		pos:     ws.pos.Clone(),
		body:    ws.body.Clone(),
		motion:  ws.motion.Clone(),
		regions: make(map[RegionCoord][]byte, len(ws.regions)),
	}
	for k, v := range ws.regions {
		c.regions[k] = v
	}
	c.register()
	return c
}

func (ws *worldState) spawn(p Position, b Body) (ecs.EntityID, error) {
	id, err := ws.ents.CreateEntity()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrExhausted, err)
	}
	ws.attach(id, p, b)
	return id, nil
}

func (ws *worldState) attach(id ecs.EntityID, p Position, b Body) {
	ws.pos.Set(id, p)
	ws.body.Set(id, b)
	ws.motion.Set(id, Motion{})
}

// alive reports whether id exists and is not queued for destruction.
func (ws *worldState) alive(id ecs.EntityID) bool {
	return ws.ents.Alive(id) && !ws.ents.PendingDestruction(id)
}

func (ws *worldState) setRegion(c RegionCoord, data []byte) {
	if len(data) == 0 {
		delete(ws.regions, c)
		return
	}
	ws.regions[c] = data
}

// snapshot captures the state at tick. Versions continue from prev: an
// entity whose payload did not change keeps its version, a changed one is
// bumped, a new one starts at 1 unless restored with an explicit version.
func (ws *worldState) snapshot(tick uint64, prev *Snapshot, restored map[ecs.EntityID]uint32) *Snapshot {
	snap := &Snapshot{
		Tick:     tick,
		Entities: make(map[ecs.EntityID]EntityRecord, ws.ents.Pool().Len()),
		Regions:  make(map[RegionCoord]Region, len(ws.regions)),
	}
	for _, id := range ws.ents.Pool().IDs() {
		p, _ := ws.pos.Get(id)
		b, _ := ws.body.Get(id)
		payload := encodeEntity(p, b)
		version := uint32(1)
		if v, ok := restored[id]; ok && v != 0 {
			version = v
		}
		if prev != nil {
			if old, ok := prev.Entities[id]; ok {
				version = old.Version
				if !bytes.Equal(old.Payload, payload) {
					version++
				}
			}
		}
		snap.Entities[id] = EntityRecord{ID: id, Version: version, Payload: payload}
	}
	for c, data := range ws.regions {
		snap.Regions[c] = Region{Coord: c, Payload: data}
	}
	return snap
}
