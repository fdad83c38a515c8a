// Package gateway is the boundary between the simulation and a foreign host.
// Every operation takes the ABI version first, returns a Code and never
// lets a panic escape.
package gateway

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/beyawnko/Majestik-World/internal/arena"
	"github.com/beyawnko/Majestik-World/internal/sim"
	"go.uber.org/zap"
)

// ABIVersion is the only version accepted by this build.
const ABIVersion uint32 = 1

// Code is the result of a boundary call. Values are part of the ABI.
type Code int32

const (
	OK Code = iota
	ConfigInvalid
	VersionMismatch
	InvalidHandle
	MalformedInput
	Busy
	UnknownHandle
	InternalFault
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case ConfigInvalid:
		return "ConfigInvalid"
	case VersionMismatch:
		return "VersionMismatch"
	case InvalidHandle:
		return "InvalidHandle"
	case MalformedInput:
		return "MalformedInput"
	case Busy:
		return "Busy"
	case UnknownHandle:
		return "UnknownHandle"
	case InternalFault:
		return "InternalFault"
	default:
		return fmt.Sprintf("Code(%d)", int32(c))
	}
}

// SimHandle names one live simulation. 0 is never issued.
type SimHandle uint64

// Buffer is a published delta block: the host reads Data and later passes
// Handle to ReleaseBuffer.
type Buffer struct {
	Handle arena.Handle
	Data   []byte
}

// AbortFunc terminates the process after unrecoverable corruption. It is
// expected not to return.
type AbortFunc func(msg string, fields ...zap.Field)

type instance struct {
	mu     sync.Mutex
	core   *sim.Core
	closed bool
	tick   atomic.Uint64 // mirror of core tick for fault logs
}

// Gateway owns every simulation created through it and the arena their
// blocks are published in.
type Gateway struct {
	log   *zap.Logger
	arena *arena.Arena
	alloc arena.Allocator
	abort AbortFunc
	next  atomic.Uint64

	mu   sync.RWMutex
	sims map[SimHandle]*instance

	beforeTick func(SimHandle)
}

// Option configures a Gateway.
type Option func(*Gateway)

func WithLogger(log *zap.Logger) Option {
	return func(g *Gateway) { g.log = log }
}

// WithArena shares an existing arena instead of creating one.
func WithArena(a *arena.Arena) Option {
	return func(g *Gateway) { g.arena = a }
}

// WithAllocator sets the allocator of the gateway's own arena. Ignored when
// WithArena is given.
func WithAllocator(a arena.Allocator) Option {
	return func(g *Gateway) { g.alloc = a }
}

// WithAbort replaces the corruption handler. The default logs at fatal
// level, which exits the process.
func WithAbort(fn AbortFunc) Option {
	return func(g *Gateway) { g.abort = fn }
}

func New(opts ...Option) *Gateway {
	g := &Gateway{
		log:  zap.NewNop(),
		sims: make(map[SimHandle]*instance),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.arena == nil {
		aopts := []arena.Option{arena.WithLogger(g.log.Named("arena"))}
		if g.alloc != nil {
			aopts = append(aopts, arena.WithAllocator(g.alloc))
		}
		g.arena = arena.New(aopts...)
	}
	if g.abort == nil {
		g.abort = g.log.Fatal
	}
	return g
}

// Arena returns the block registry, for diagnostics.
func (g *Gateway) Arena() *arena.Arena { return g.arena }

func (g *Gateway) lookup(h SimHandle) (*instance, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	inst, ok := g.sims[h]
	return inst, ok
}

func (g *Gateway) tickOf(h SimHandle) uint64 {
	if inst, ok := g.lookup(h); ok {
		return inst.tick.Load()
	}
	return 0
}

// guard runs fn and converts a panic into InternalFault. A panic or error
// carrying arena.ErrCorrupted aborts the process instead.
func (g *Gateway) guard(op string, h SimHandle, fn func() Code) (code Code) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		fields := []zap.Field{
			zap.String("op", op),
			zap.Uint64("sim", uint64(h)),
			zap.Uint64("tick", g.tickOf(h)),
			zap.Any("panic", rec),
			zap.Stack("stack"),
		}
		if err, ok := rec.(error); ok && errors.Is(err, arena.ErrCorrupted) {
			g.abort("memory corruption detected", fields...)
		} else {
			g.log.Error("internal fault contained", fields...)
		}
		code = InternalFault
	}()
	return fn()
}

// checkVersion logs and reports a mismatched ABI version.
func (g *Gateway) checkVersion(op string, version uint32) bool {
	if version == ABIVersion {
		return true
	}
	g.log.Warn("abi version mismatch",
		zap.String("op", op),
		zap.Uint32("got", version),
		zap.Uint32("want", ABIVersion),
	)
	return false
}

// corrupted aborts on detected corruption and reports InternalFault for the
// case where the abort hook returns.
func (g *Gateway) corrupted(op string, h SimHandle, err error) Code {
	g.abort("memory corruption detected",
		zap.String("op", op),
		zap.Uint64("sim", uint64(h)),
		zap.Uint64("tick", g.tickOf(h)),
		zap.Error(err),
	)
	return InternalFault
}
