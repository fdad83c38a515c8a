package sim

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/beyawnko/Majestik-World/internal/core/ecs"
	"github.com/beyawnko/Majestik-World/internal/core/event"
	coresys "github.com/beyawnko/Majestik-World/internal/core/system"
	"github.com/beyawnko/Majestik-World/internal/scripting"
)

// tickContext is the per-tick state every system sees. world is the clone
// being advanced; it is discarded if any system fails.
type tickContext struct {
	tick    uint64 // index being produced
	frame   []byte
	world   *worldState
	rng     *rand.Rand
	bus     *event.Bus
	cfg     *Config
	intents int
}

// inputSystem decodes the frame, re-validates every intent against the
// world at frame start and queues them on the bus. Phase 0.
type inputSystem struct{}

func (inputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (inputSystem) Update(tc *tickContext) error {
	intents, err := DecodeFrame(tc.frame)
	if err != nil {
		return err
	}
	despawned := make(map[ecs.EntityID]struct{})
	for i, in := range intents {
		if err := validateIntent(tc, in, despawned); err != nil {
			return fmt.Errorf("%w: intent %d: %v", ErrMalformedInput, i, err)
		}
	}
	for _, in := range intents {
		switch v := in.(type) {
		case event.SpawnIntent:
			event.Emit(tc.bus, v)
		case event.DespawnIntent:
			event.Emit(tc.bus, v)
		case event.MoveIntent:
			event.Emit(tc.bus, v)
		case event.EditRegionIntent:
			event.Emit(tc.bus, v)
		case event.SetDataIntent:
			event.Emit(tc.bus, v)
		}
	}
	tc.intents = len(intents)
	tc.bus.SwapBuffers()
	return nil
}

func validateIntent(tc *tickContext, in any, despawned map[ecs.EntityID]struct{}) error {
	ws := tc.world
	requireAlive := func(id ecs.EntityID) error {
		if !ws.alive(id) {
			return fmt.Errorf("unknown entity %d", id)
		}
		if _, gone := despawned[id]; gone {
			return fmt.Errorf("entity %d despawned earlier in frame", id)
		}
		return nil
	}
	switch v := in.(type) {
	case event.SpawnIntent:
		if !tc.cfg.InBounds(v.X, v.Y) {
			return fmt.Errorf("spawn at (%d,%d) outside world", v.X, v.Y)
		}
		if v.Heading >= headingCount {
			return fmt.Errorf("heading %d", v.Heading)
		}
		if err := validateTag(v.Tag); err != nil {
			return err
		}
		if len(v.Data) > MaxEntityData {
			return fmt.Errorf("entity data %d bytes", len(v.Data))
		}
	case event.DespawnIntent:
		if err := requireAlive(v.Entity); err != nil {
			return err
		}
		despawned[v.Entity] = struct{}{}
	case event.MoveIntent:
		if err := requireAlive(v.Entity); err != nil {
			return err
		}
		if v.DX < -1 || v.DX > 1 || v.DY < -1 || v.DY > 1 {
			return fmt.Errorf("move (%d,%d) outside [-1,1]", v.DX, v.DY)
		}
	case event.EditRegionIntent:
		if !tc.cfg.RegionInBounds(RegionCoord{X: v.X, Y: v.Y}) {
			return fmt.Errorf("region (%d,%d) outside map", v.X, v.Y)
		}
		if len(v.Data) > MaxRegionPayload {
			return fmt.Errorf("region payload %d bytes", len(v.Data))
		}
	case event.SetDataIntent:
		if err := requireAlive(v.Entity); err != nil {
			return err
		}
		if len(v.Data) > MaxEntityData {
			return fmt.Errorf("entity data %d bytes", len(v.Data))
		}
	default:
		return fmt.Errorf("unsupported intent %T", in)
	}
	return nil
}

// dispatchSystem delivers the frame's intents to the core's handlers in
// frame order. Phase 1.
type dispatchSystem struct{}

func (dispatchSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

func (dispatchSystem) Update(tc *tickContext) error {
	return tc.bus.DispatchAll()
}

// wanderSystem steps wandering entities that received no explicit move this
// tick. RNG draws happen in ascending entity order. Phase 2.
type wanderSystem struct{}

func (wanderSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (wanderSystem) Update(tc *tickContext) error {
	ws := tc.world
	ecs.Each2(ws.body, ws.motion, func(id ecs.EntityID, b Body, m Motion) {
		if !b.Wander || m != (Motion{}) || !ws.alive(id) {
			return
		}
		ws.motion.Set(id, Motion{
			DX: int8(tc.rng.Intn(3) - 1),
			DY: int8(tc.rng.Intn(3) - 1),
		})
	})
	return nil
}

// rulesSystem runs the script hook for every live entity. Phase 2, after
// wander so scripts can override it.
type rulesSystem struct {
	engine *scripting.Engine
}

func (rulesSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s rulesSystem) Update(tc *tickContext) error {
	if s.engine == nil || !s.engine.HasEntityHook() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), tc.cfg.RuleBudget())
	defer cancel()
	ws := tc.world
	for _, id := range ws.body.IDs() {
		if !ws.alive(id) {
			continue
		}
		p, _ := ws.pos.Get(id)
		b, _ := ws.body.Get(id)
		steer, ok, err := s.engine.OnEntity(ctx, scripting.EntityView{
			ID:      uint64(id),
			X:       p.X,
			Y:       p.Y,
			Heading: b.Heading,
			Tag:     b.Tag,
			Tick:    tc.tick,
		}, tc.rng)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRuleFault, err)
		}
		if ok {
			ws.motion.Set(id, Motion{DX: steer.DX, DY: steer.DY})
		}
	}
	return nil
}

// movementSystem integrates motion into position with integer math and
// clamps to the world extent. Phase 3.
type movementSystem struct{}

func (movementSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (movementSystem) Update(tc *tickContext) error {
	ws := tc.world
	w, h := tc.cfg.Extent()
	step := tc.cfg.MoveStep
	ecs.Each2(ws.pos, ws.motion, func(id ecs.EntityID, p Position, m Motion) {
		if m == (Motion{}) {
			return
		}
		p.X = clamp(int64(p.X)+int64(m.DX)*int64(step), 0, w-1)
		p.Y = clamp(int64(p.Y)+int64(m.DY)*int64(step), 0, h-1)
		ws.pos.Set(id, p)
		ws.body.Update(id, func(b *Body) { b.Heading = headingFor(m.DX, m.DY, b.Heading) })
	})
	return nil
}

// cleanupSystem flushes the deferred destruction queue. Phase 4.
type cleanupSystem struct{}

func (cleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (cleanupSystem) Update(tc *tickContext) error {
	tc.world.ents.FlushDestroyQueue()
	return nil
}

func clamp(v int64, lo, hi int32) int32 {
	if v < int64(lo) {
		return lo
	}
	if v > int64(hi) {
		return hi
	}
	return int32(v)
}
