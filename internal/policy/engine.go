// Package policy embeds the Lua scripting runtime that drives window
// placement, key bindings and lifecycle hooks. Scripts run on the loop
// goroutine under hard CPU and memory limits; a failing script logs and
// degrades to built-in defaults instead of taking the compositor down.
package policy

import (
	"fmt"
	"os"
	"time"

	"github.com/arnodel/golua/lib"
	rt "github.com/arnodel/golua/runtime"

	"github.com/loomwm/loom/internal/core"
	"github.com/loomwm/loom/internal/logger"
)

// Host is the surface the compositor exposes to scripts. *core.Compositor
// satisfies it.
type Host interface {
	Spawn(command string)
	Quit()
	FocusOrSpawn(appID, command string)
	CycleFocus()
	MoveFocusedToZone(zone string)
	SetZones(zones []core.Zone)
	SetBindings(bt core.BindingTable)
	SetRules(rules core.PlacementRules)
	OutputInfos() []core.OutputInfo
	WindowInfos() []core.WindowInfo
}

// Limits bound a single Lua entry point. Zero means unlimited.
type Limits struct {
	CPU    uint64
	Memory uint64
}

// DefaultLimits allows a generous slice per callback while keeping a
// runaway script from wedging the loop.
func DefaultLimits() Limits {
	return Limits{CPU: 10_000_000, Memory: 32 * 1024 * 1024}
}

// hookSet holds the callback values a script registered.
type hookSet struct {
	onStartup      rt.Value
	onOutputChange rt.Value
	onWindowMap    rt.Value
	onWindowUnmap  rt.Value
	onTick         rt.Value
}

// Engine owns one Lua runtime and the tables built from the last good
// script run. It implements core.PolicyHooks.
type Engine struct {
	host   Host
	limits Limits

	runtime *rt.Runtime
	cleanup func()
	hooks   *hookSet

	// Reload staging: API calls made while a script executes land here and
	// are applied to the host only if the whole script succeeds.
	staging *staging

	// inCall guards against re-entering the Lua runtime; hook invocations
	// arriving while a callback runs are queued FIFO and drained after.
	inCall bool
	queued []func()
}

// staging collects everything a script declares. Before commit the values
// are provisional; after commit the same tables are live, so API calls made
// later from callbacks mutate them in place.
type staging struct {
	engine    *Engine
	zones     []core.Zone
	bindings  *Bindings
	rules     *Rules
	hooks     hookSet
	committed bool
}

func NewEngine(host Host, limits Limits) *Engine {
	return &Engine{host: host, limits: limits, hooks: &hookSet{}}
}

// LoadFile compiles and runs a script, committing its declarations on
// success. On any error the previous script's state stays in effect.
func (e *Engine) LoadFile(path string) error {
	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	return e.Load(path, code)
}

// Load runs a script chunk. The chunk name shows up in Lua tracebacks.
func (e *Engine) Load(name string, code []byte) error {
	runtime := rt.New(os.Stdout)
	cleanup := lib.LoadAll(runtime)

	st := &staging{
		engine:   e,
		bindings: NewBindings(),
		rules:    NewRules(),
	}
	e.staging = st
	registerAPI(e, runtime, st)

	closure, err := runtime.CompileAndLoadLuaChunk(
		name, code, rt.TableValue(runtime.GlobalEnv()))
	if err != nil {
		e.staging = nil
		cleanup()
		return fmt.Errorf("compile script: %w", err)
	}

	runtime.PushContext(rt.RuntimeContextDef{
		HardLimits: rt.RuntimeResources{Cpu: e.limits.CPU, Memory: e.limits.Memory},
	})
	_, err = rt.Call1(runtime.MainThread(), rt.FunctionValue(closure))
	runtime.PopContext()
	e.staging = nil
	if err != nil {
		cleanup()
		return fmt.Errorf("run script: %w", err)
	}

	// Commit: swap the runtime and hand the tables to the host.
	if e.cleanup != nil {
		e.cleanup()
	}
	e.runtime = runtime
	e.cleanup = cleanup
	e.hooks = &st.hooks
	st.committed = true
	st.bindings.engine = e
	e.host.SetZones(st.zones)
	e.host.SetBindings(st.bindings)
	e.host.SetRules(st.rules)
	logger.Info("policy script loaded", "chunk", name,
		"bindings", st.bindings.Len(), "rules", st.rules.Len(), "zones", len(st.zones))
	return nil
}

// Close releases the Lua runtime.
func (e *Engine) Close() {
	if e.cleanup != nil {
		e.cleanup()
		e.cleanup = nil
	}
	e.runtime = nil
}

// call invokes a stored Lua callback under the hard limits. Errors are
// logged and swallowed; policy failures must never break dispatch.
func (e *Engine) call(what string, fn rt.Value, args ...rt.Value) {
	if e.runtime == nil || fn == rt.NilValue {
		return
	}
	if e.inCall {
		e.queued = append(e.queued, func() { e.call(what, fn, args...) })
		return
	}
	e.inCall = true
	e.runtime.PushContext(rt.RuntimeContextDef{
		HardLimits: rt.RuntimeResources{Cpu: e.limits.CPU, Memory: e.limits.Memory},
	})
	_, err := rt.Call1(e.runtime.MainThread(), fn, args...)
	e.runtime.PopContext()
	e.inCall = false
	if err != nil {
		logger.Error("policy callback failed", "hook", what, "error", err)
	}

	for len(e.queued) > 0 {
		next := e.queued[0]
		e.queued = e.queued[1:]
		next()
	}
}

// --- core.PolicyHooks ---

func (e *Engine) Startup() {
	e.call("on_startup", e.hooks.onStartup)
}

func (e *Engine) WindowMapped(w core.WindowInfo) {
	e.call("on_window_map", e.hooks.onWindowMap, rt.TableValue(windowTable(w)))
}

func (e *Engine) WindowUnmapped(w core.WindowInfo) {
	e.call("on_window_unmap", e.hooks.onWindowUnmap, rt.TableValue(windowTable(w)))
}

func (e *Engine) OutputsChanged(outs []core.OutputInfo) {
	e.call("on_output_change", e.hooks.onOutputChange, rt.TableValue(outputsTable(outs)))
}

func (e *Engine) Tick(now time.Time) {
	if e.hooks.onTick == rt.NilValue {
		return
	}
	e.call("on_tick", e.hooks.onTick, rt.FloatValue(float64(now.UnixMilli())/1000.0))
}

// NopHooks is the hook set used before any script has loaded.
type NopHooks struct{}

func (NopHooks) Startup()                            {}
func (NopHooks) WindowMapped(core.WindowInfo)        {}
func (NopHooks) WindowUnmapped(core.WindowInfo)      {}
func (NopHooks) OutputsChanged([]core.OutputInfo)    {}
func (NopHooks) Tick(time.Time)                      {}
