package gateway

import (
	"errors"

	"github.com/beyawnko/Majestik-World/internal/arena"
	"github.com/beyawnko/Majestik-World/internal/delta"
	"github.com/beyawnko/Majestik-World/internal/sim"
	"go.uber.org/zap"
)

// Init creates a simulation from a config blob.
func (g *Gateway) Init(version uint32, cfg []byte) (h SimHandle, code Code) {
	code = g.guard("init", 0, func() Code {
		if !g.checkVersion("init", version) {
			return VersionMismatch
		}
		if len(cfg) == 0 {
			g.log.Warn("init rejected", zap.String("reason", "empty config"))
			return ConfigInvalid
		}
		id := SimHandle(g.next.Add(1))
		core, err := sim.New(cfg, sim.WithLogger(g.log.Named("sim").With(zap.Uint64("sim", uint64(id)))))
		if err != nil {
			g.log.Warn("init rejected", zap.Error(err))
			if errors.Is(err, sim.ErrConfigInvalid) {
				return ConfigInvalid
			}
			return InternalFault
		}
		inst := &instance{core: core}
		inst.tick.Store(core.TickIndex())

		g.mu.Lock()
		g.sims[id] = inst
		g.mu.Unlock()

		h = id
		g.log.Info("simulation started", zap.Uint64("sim", uint64(id)), zap.Uint64("tick", core.TickIndex()))
		return OK
	})
	if code != OK {
		h = 0
	}
	return h, code
}

// Tick advances the simulation by one step. A tick already in flight on the
// same handle yields Busy; the caller may retry.
func (g *Gateway) Tick(version uint32, h SimHandle, frame []byte) (tick uint64, code Code) {
	code = g.guard("tick", h, func() Code {
		if !g.checkVersion("tick", version) {
			return VersionMismatch
		}
		inst, ok := g.lookup(h)
		if !ok {
			return InvalidHandle
		}
		if !inst.mu.TryLock() {
			return Busy
		}
		defer inst.mu.Unlock()
		if inst.closed {
			return InvalidHandle
		}
		if g.beforeTick != nil {
			g.beforeTick(h)
		}
		if len(frame) == 0 {
			g.log.Warn("tick rejected", zap.Uint64("sim", uint64(h)), zap.String("reason", "empty frame"))
			return MalformedInput
		}

		next, err := inst.core.Tick(frame)
		if err != nil {
			c := tickCode(err)
			fields := []zap.Field{
				zap.Uint64("sim", uint64(h)),
				zap.Uint64("tick", inst.core.TickIndex()),
				zap.Error(err),
			}
			if c == MalformedInput {
				g.log.Warn("tick rejected", fields...)
			} else {
				g.log.Error("tick failed", fields...)
			}
			return c
		}
		inst.tick.Store(next)
		tick = next
		return OK
	})
	if code != OK {
		tick = 0
	}
	return tick, code
}

func tickCode(err error) Code {
	switch {
	case errors.Is(err, sim.ErrMalformedInput):
		return MalformedInput
	case errors.Is(err, sim.ErrShutdown):
		return InvalidHandle
	default:
		return InternalFault
	}
}

// Shutdown waits for any in-flight tick, destroys the simulation and
// reclaims every block it published that the host never released.
func (g *Gateway) Shutdown(version uint32, h SimHandle) Code {
	return g.guard("shutdown", h, func() Code {
		if !g.checkVersion("shutdown", version) {
			return VersionMismatch
		}
		inst, ok := g.lookup(h)
		if !ok {
			return InvalidHandle
		}
		inst.mu.Lock()
		defer inst.mu.Unlock()
		if inst.closed {
			return InvalidHandle
		}
		inst.closed = true

		g.mu.Lock()
		delete(g.sims, h)
		g.mu.Unlock()

		if err := inst.core.Shutdown(); err != nil {
			g.log.Error("core shutdown", zap.Uint64("sim", uint64(h)), zap.Error(err))
		}
		reclaimed, err := g.arena.ReleaseAll(arena.Owner(h))
		if err != nil {
			return g.corrupted("shutdown", h, err)
		}
		g.log.Info("simulation stopped",
			zap.Uint64("sim", uint64(h)),
			zap.Uint64("tick", inst.tick.Load()),
			zap.Int("reclaimed", reclaimed),
		)
		return OK
	})
}

// PublishDelta encodes the change from the previous to the current tick
// (everything, before the first tick) and hands it to the host as a block.
func (g *Gateway) PublishDelta(version uint32, h SimHandle) (buf Buffer, code Code) {
	code = g.guard("publish_delta", h, func() Code {
		if !g.checkVersion("publish_delta", version) {
			return VersionMismatch
		}
		inst, ok := g.lookup(h)
		if !ok {
			return InvalidHandle
		}
		inst.mu.Lock()
		defer inst.mu.Unlock()
		if inst.closed {
			return InvalidHandle
		}

		batch := delta.Encode(inst.core.Previous(), inst.core.Current())
		blk, err := g.arena.PublishBatch(arena.Owner(h), batch)
		if err != nil {
			g.log.Error("publish failed", zap.Uint64("sim", uint64(h)), zap.Uint64("tick", batch.Tick), zap.Error(err))
			return InternalFault
		}
		buf = Buffer{Handle: blk.Handle, Data: blk.Data}
		g.log.Debug("delta published",
			zap.Uint64("sim", uint64(h)),
			zap.Uint64("tick", batch.Tick),
			zap.Uint64("buffer", uint64(blk.Handle)),
			zap.Int("records", len(batch.Records)),
			zap.Int("bytes", len(blk.Data)),
		)
		return OK
	})
	if code != OK {
		buf = Buffer{}
	}
	return buf, code
}

// ReleaseBuffer frees a block published by h. A buffer that h never
// published, or already released, yields UnknownHandle and frees nothing.
// It does not wait for an in-flight tick.
func (g *Gateway) ReleaseBuffer(version uint32, h SimHandle, buf arena.Handle) Code {
	return g.guard("release_buffer", h, func() Code {
		if !g.checkVersion("release_buffer", version) {
			return VersionMismatch
		}
		if _, ok := g.lookup(h); !ok {
			return UnknownHandle
		}
		err := g.arena.ReleaseOwned(arena.Owner(h), buf)
		switch {
		case err == nil:
			return OK
		case errors.Is(err, arena.ErrUnknownHandle):
			g.log.Warn("release of unknown buffer", zap.Uint64("sim", uint64(h)), zap.Uint64("buffer", uint64(buf)))
			return UnknownHandle
		case errors.Is(err, arena.ErrCorrupted):
			return g.corrupted("release_buffer", h, err)
		default:
			g.log.Error("release failed", zap.Uint64("sim", uint64(h)), zap.Error(err))
			return InternalFault
		}
	})
}

// ExportConfig returns a config blob that Init turns back into an
// equivalent simulation at the same tick.
func (g *Gateway) ExportConfig(version uint32, h SimHandle) (blob []byte, code Code) {
	code = g.withCore("export_config", version, h, func(c *sim.Core) Code {
		out, err := c.Export()
		if err != nil {
			g.log.Error("export failed", zap.Uint64("sim", uint64(h)), zap.Error(err))
			return InternalFault
		}
		blob = out
		return OK
	})
	return blob, code
}

// PublishConfig publishes the exported config as a block owned by h, for
// hosts that cannot hold Go memory. It is released like a delta block.
func (g *Gateway) PublishConfig(version uint32, h SimHandle) (buf Buffer, code Code) {
	code = g.withCore("publish_config", version, h, func(c *sim.Core) Code {
		out, err := c.Export()
		if err != nil {
			g.log.Error("export failed", zap.Uint64("sim", uint64(h)), zap.Error(err))
			return InternalFault
		}
		blk, err := g.arena.Publish(arena.Owner(h), out)
		if err != nil {
			g.log.Error("publish failed", zap.Uint64("sim", uint64(h)), zap.Error(err))
			return InternalFault
		}
		buf = Buffer{Handle: blk.Handle, Data: blk.Data}
		return OK
	})
	if code != OK {
		buf = Buffer{}
	}
	return buf, code
}

// TimeSeconds returns the simulated time at the current tick.
func (g *Gateway) TimeSeconds(version uint32, h SimHandle) (secs float64, code Code) {
	code = g.withCore("time_seconds", version, h, func(c *sim.Core) Code {
		secs = c.TimeSeconds()
		return OK
	})
	return secs, code
}

// TimeOfDaySeconds returns the in-world clock at the current tick.
func (g *Gateway) TimeOfDaySeconds(version uint32, h SimHandle) (secs float64, code Code) {
	code = g.withCore("time_of_day_seconds", version, h, func(c *sim.Core) Code {
		secs = c.TimeOfDaySeconds()
		return OK
	})
	return secs, code
}

// ProgramTimeSeconds returns the simulated time since this simulation was
// created, excluding any time carried in by a loaded save.
func (g *Gateway) ProgramTimeSeconds(version uint32, h SimHandle) (secs float64, code Code) {
	code = g.withCore("program_time_seconds", version, h, func(c *sim.Core) Code {
		secs = c.ProgramTimeSeconds()
		return OK
	})
	return secs, code
}

// LiveBuffers returns how many blocks published by h are unreleased.
func (g *Gateway) LiveBuffers(version uint32, h SimHandle) (n int, code Code) {
	code = g.guard("live_buffers", h, func() Code {
		if !g.checkVersion("live_buffers", version) {
			return VersionMismatch
		}
		if _, ok := g.lookup(h); !ok {
			return InvalidHandle
		}
		n = g.arena.Live(arena.Owner(h))
		return OK
	})
	return n, code
}

// withCore runs a read-only query against a live core under its lock.
func (g *Gateway) withCore(op string, version uint32, h SimHandle, fn func(*sim.Core) Code) Code {
	return g.guard(op, h, func() Code {
		if !g.checkVersion(op, version) {
			return VersionMismatch
		}
		inst, ok := g.lookup(h)
		if !ok {
			return InvalidHandle
		}
		inst.mu.Lock()
		defer inst.mu.Unlock()
		if inst.closed {
			return InvalidHandle
		}
		return fn(inst.core)
	})
}
