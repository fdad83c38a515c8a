package scripting

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// EntityHook is the global a rule script defines to steer entities.
const EntityHook = "on_entity"

// ErrNoRNG is raised when a script calls rand outside a tick.
var ErrNoRNG = errors.New("scripting: rand called outside a tick")

// Engine wraps a single gopher-lua VM running rule content. Single-goroutine
// access only: the simulation core calls it from inside Tick. Scripts must
// not keep state in globals between calls; the VM is not part of the world
// snapshot and is not rolled back when a tick fails. Calls are bounded by
// the context passed to OnEntity.
type Engine struct {
	vm   *lua.LState
	hook lua.LValue
	rng  *rand.Rand
	log  *zap.Logger
}

// EntityView is the read-only entity table handed to on_entity.
type EntityView struct {
	ID      uint64
	X, Y    int32
	Heading uint8
	Tag     string
	Tick    uint64
}

// Steer is the step a script requests for an entity, clamped to [-1, 1].
type Steer struct {
	DX, DY int8
}

// NewEngine creates a sandboxed VM and runs source once to define globals.
func NewEngine(source string, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState(lua.Options{SkipOpenLibs: true})
	e := &Engine{vm: vm, log: log}

	if err := e.openLibs(); err != nil {
		vm.Close()
		return nil, err
	}
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	vm.SetGlobal("rand", vm.NewFunction(e.luaRand))

	if err := vm.DoString(source); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load rules: %w", err)
	}
	if fn := vm.GetGlobal(EntityHook); fn.Type() == lua.LTFunction {
		e.hook = fn
	}
	log.Debug("rule script loaded", zap.Bool("entity_hook", e.hook != nil))
	return e, nil
}

// openLibs opens only the deterministic standard libraries. File access and
// the process-global math.random are removed.
func (e *Engine) openLibs() error {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := e.vm.CallByParam(lua.P{
			Fn:      e.vm.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			return fmt.Errorf("open lua lib %q: %w", lib.name, err)
		}
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "collectgarbage"} {
		e.vm.SetGlobal(name, lua.LNil)
	}
	if m, ok := e.vm.GetGlobal(lua.MathLibName).(*lua.LTable); ok {
		m.RawSetString("random", lua.LNil)
		m.RawSetString("randomseed", lua.LNil)
	}
	return nil
}

// HasEntityHook reports whether the script defines on_entity.
func (e *Engine) HasEntityHook() bool { return e.hook != nil }

// OnEntity calls on_entity for one entity. ok is false when the script
// returned nil. rng backs the script's rand function for this call only.
// The script is interrupted once ctx is done.
func (e *Engine) OnEntity(ctx context.Context, v EntityView, rng *rand.Rand) (steer Steer, ok bool, err error) {
	if e.hook == nil {
		return Steer{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		return Steer{}, false, fmt.Errorf("%s(%d): %w", EntityHook, v.ID, err)
	}
	e.rng = rng
	e.vm.SetContext(ctx)
	defer func() {
		e.vm.RemoveContext()
		e.rng = nil
	}()

	t := e.vm.NewTable()
	t.RawSetString("id", lua.LNumber(v.ID))
	t.RawSetString("x", lua.LNumber(v.X))
	t.RawSetString("y", lua.LNumber(v.Y))
	t.RawSetString("heading", lua.LNumber(v.Heading))
	t.RawSetString("tag", lua.LString(v.Tag))
	t.RawSetString("tick", lua.LNumber(v.Tick))

	if err := e.vm.CallByParam(lua.P{
		Fn:      e.hook,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return Steer{}, false, fmt.Errorf("%s(%d): %w", EntityHook, v.ID, cerr)
		}
		return Steer{}, false, fmt.Errorf("%s(%d): %w", EntityHook, v.ID, err)
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	switch rt := result.(type) {
	case *lua.LNilType:
		return Steer{}, false, nil
	case *lua.LTable:
		return Steer{
			DX: clampStep(rt.RawGetString("dx")),
			DY: clampStep(rt.RawGetString("dy")),
		}, true, nil
	default:
		return Steer{}, false, fmt.Errorf("%s(%d) returned %s, want table or nil", EntityHook, v.ID, result.Type())
	}
}

func clampStep(v lua.LValue) int8 {
	n := lua.LVAsNumber(v)
	switch {
	case n >= 1:
		return 1
	case n <= -1:
		return -1
	default:
		return 0
	}
}

// luaRand implements rand(n): a uniform integer in [1, n] from the tick RNG.
func (e *Engine) luaRand(L *lua.LState) int {
	n := L.CheckInt(1)
	if n <= 0 {
		L.ArgError(1, "must be positive")
		return 0
	}
	if e.rng == nil {
		L.RaiseError("%s", ErrNoRNG.Error())
		return 0
	}
	L.Push(lua.LNumber(e.rng.Intn(n) + 1))
	return 1
}

// Close releases the VM.
func (e *Engine) Close() {
	e.vm.Close()
}
