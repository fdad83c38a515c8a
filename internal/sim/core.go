package sim

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/beyawnko/Majestik-World/internal/core/ecs"
	"github.com/beyawnko/Majestik-World/internal/core/event"
	coresys "github.com/beyawnko/Majestik-World/internal/core/system"
	"github.com/beyawnko/Majestik-World/internal/scripting"
	"go.uber.org/zap"
)

// Core owns the authoritative world and is its only mutator. It retains the
// current and previous snapshots and nothing older.
//
// A Core is not safe for concurrent use; the gateway serializes calls per
// simulation handle.
type Core struct {
	cfg      Config
	log      *zap.Logger
	rules    *scripting.Engine
	runner   *coresys.Runner[*tickContext]
	bus      *event.Bus
	world    *worldState
	current  *Snapshot
	previous *Snapshot
	active   *tickContext
	closed   bool
}

// Option configures a Core.
type Option func(*Core)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(c *Core) { c.log = log }
}

// New parses cfgBlob and builds the world at its start tick (0 unless the
// blob is a saved world).
func New(cfgBlob []byte, opts ...Option) (*Core, error) {
	cfg, err := ParseConfig(cfgBlob)
	if err != nil {
		return nil, err
	}
	c := &Core{
		cfg: cfg,
		log: zap.NewNop(),
		bus: event.NewBus(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if cfg.Rules != "" {
		c.rules, err = scripting.NewEngine(cfg.Rules, c.log.Named("rules"))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
		}
	}

	world, restored, err := buildWorld(&cfg)
	if err != nil {
		c.closeRules()
		return nil, err
	}
	c.world = world
	c.current = world.snapshot(cfg.StartTick, nil, restored)

	c.runner = coresys.NewRunner[*tickContext]()
	c.runner.Register(inputSystem{})
	c.runner.Register(dispatchSystem{})
	c.runner.Register(wanderSystem{})
	c.runner.Register(rulesSystem{engine: c.rules})
	c.runner.Register(movementSystem{})
	c.runner.Register(cleanupSystem{})
	c.subscribe()

	c.log.Debug("simulation created",
		zap.Int64("seed", cfg.Seed),
		zap.Uint64("tick", cfg.StartTick),
		zap.Int("entities", len(c.current.Entities)),
		zap.Int("regions", len(c.current.Regions)),
	)
	return c, nil
}

func buildWorld(cfg *Config) (*worldState, map[ecs.EntityID]uint32, error) {
	ws := newWorldState()
	restored := make(map[ecs.EntityID]uint32)
	specs := cfg.initialEntities()

	// Explicit IDs first so generated ones never collide with them.
	for _, e := range specs {
		if e.ID == 0 {
			continue
		}
		id := ecs.EntityID(e.ID)
		ws.ents.Pool().Reserve(id)
		data, _ := decodeData(e.Data)
		ws.attach(id, Position{X: e.X, Y: e.Y}, Body{Heading: e.Heading, Tag: e.Tag, Wander: e.Wander, Data: data})
		restored[id] = e.Version
	}
	if cfg.NextEntityID != 0 {
		ws.ents.Pool().AdvanceTo(ecs.EntityID(cfg.NextEntityID))
	}
	for _, e := range specs {
		if e.ID != 0 {
			continue
		}
		data, _ := decodeData(e.Data)
		id, err := ws.spawn(Position{X: e.X, Y: e.Y}, Body{Heading: e.Heading, Tag: e.Tag, Wander: e.Wander, Data: data})
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
		}
		restored[id] = e.Version
	}
	for _, r := range cfg.Regions {
		data, _ := decodeData(r.Data)
		ws.setRegion(RegionCoord{X: r.X, Y: r.Y}, data)
	}
	return ws, restored, nil
}

// subscribe wires intent handlers. Handlers act on the world of the tick in
// progress.
func (c *Core) subscribe() {
	event.Subscribe(c.bus, func(in event.SpawnIntent) error {
		_, err := c.active.world.spawn(Position{X: in.X, Y: in.Y}, Body{Heading: in.Heading, Tag: in.Tag, Data: in.Data})
		return err
	})
	event.Subscribe(c.bus, func(in event.DespawnIntent) error {
		c.active.world.ents.MarkForDestruction(in.Entity)
		return nil
	})
	event.Subscribe(c.bus, func(in event.MoveIntent) error {
		c.active.world.motion.Set(in.Entity, Motion{DX: in.DX, DY: in.DY})
		return nil
	})
	event.Subscribe(c.bus, func(in event.EditRegionIntent) error {
		c.active.world.setRegion(RegionCoord{X: in.X, Y: in.Y}, in.Data)
		return nil
	})
	event.Subscribe(c.bus, func(in event.SetDataIntent) error {
		c.active.world.body.Update(in.Entity, func(b *Body) { b.Data = in.Data })
		return nil
	})
}

// Tick advances the world by exactly one fixed timestep. On error the world
// is left exactly as it was.
func (c *Core) Tick(frame []byte) (uint64, error) {
	if c.closed {
		return 0, ErrShutdown
	}
	if c.current.Tick == math.MaxUint64 {
		return 0, fmt.Errorf("%w: tick index at %d", ErrExhausted, c.current.Tick)
	}
	next := c.current.Tick + 1

	work := c.world.clone()
	for _, id := range work.motion.IDs() {
		work.motion.Set(id, Motion{})
	}
	c.bus.Reset()
	c.active = &tickContext{
		tick:  next,
		frame: frame,
		world: work,
		rng:   tickRNG(c.cfg.Seed, next),
		bus:   c.bus,
		cfg:   &c.cfg,
	}
	defer func() { c.active = nil }()

	if err := c.runner.Tick(c.active); err != nil {
		return 0, fmt.Errorf("tick %d: %w", next, err)
	}

	snap := work.snapshot(next, c.current, nil)
	c.previous, c.current = c.current, snap
	c.world = work

	c.log.Debug("tick",
		zap.Uint64("tick", next),
		zap.Int("intents", c.active.intents),
		zap.Int("entities", len(snap.Entities)),
	)
	return next, nil
}

// tickRNG derives the random source for one tick from the seed and the
// tick index. Nothing carries over between ticks, so a failed tick cannot
// shift later draws.
func tickRNG(seed int64, tick uint64) *rand.Rand {
	z := uint64(seed) + tick*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	z ^= z >> 31
	return rand.New(rand.NewSource(int64(z)))
}

// Current returns the snapshot at the current tick.
func (c *Core) Current() *Snapshot { return c.current }

// Previous returns the snapshot before the last tick, or nil before the
// first tick.
func (c *Core) Previous() *Snapshot { return c.previous }

// TickIndex returns the current tick.
func (c *Core) TickIndex() uint64 {
	if c.current == nil {
		return 0
	}
	return c.current.Tick
}

// Closed reports whether Shutdown has run.
func (c *Core) Closed() bool { return c.closed }

// Timestep returns the fixed tick duration.
func (c *Core) Timestep() time.Duration {
	return time.Duration(c.cfg.TickMillis) * time.Millisecond
}

// TimeSeconds is the simulated time elapsed at the current tick. It is
// derived from the tick index, never accumulated.
func (c *Core) TimeSeconds() float64 {
	return float64(c.TickIndex()) * float64(c.cfg.TickMillis) / 1000
}

// ProgramTimeSeconds is the simulated time this core has run since New.
// Unlike TimeSeconds it restarts at 0 when a saved world is loaded.
func (c *Core) ProgramTimeSeconds() float64 {
	return float64(c.TickIndex()-c.cfg.StartTick) * float64(c.cfg.TickMillis) / 1000
}

// GameMode returns the mode the world was created in.
func (c *Core) GameMode() string { return c.cfg.GameMode }

// TimeOfDaySeconds is the in-world clock, running day_cycle_coefficient
// times faster than simulated time.
func (c *Core) TimeOfDaySeconds() float64 {
	return c.TimeSeconds() * c.cfg.DayCycleCoefficient
}

// Shutdown releases the world and the rule VM. A second call returns
// ErrShutdown.
func (c *Core) Shutdown() error {
	if c.closed {
		return ErrShutdown
	}
	c.closed = true
	c.closeRules()
	c.world = nil
	c.current = nil
	c.previous = nil
	c.log.Debug("simulation shut down")
	return nil
}

func (c *Core) closeRules() {
	if c.rules != nil {
		c.rules.Close()
		c.rules = nil
	}
}
