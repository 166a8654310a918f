package policy

import (
	"fmt"

	rt "github.com/arnodel/golua/runtime"

	"github.com/loomwm/loom/internal/core"
	"github.com/loomwm/loom/internal/geom"
	"github.com/loomwm/loom/internal/logger"
)

// registerAPI installs the `loom` global table into a fresh runtime. The
// closures capture the staging area, which becomes the live table set once
// the script commits.
func registerAPI(e *Engine, runtime *rt.Runtime, st *staging) {
	tbl := rt.NewTable()

	register := func(name string, nArgs int, fn rt.GoFunctionFunc) {
		gf := rt.NewGoFunction(fn, "loom."+name, nArgs, false)
		rt.SolemnlyDeclareCompliance(rt.ComplyMemSafe|rt.ComplyCpuSafe, gf)
		tbl.Set(rt.StringValue(name), rt.FunctionValue(gf))
	}

	hook := func(name string, slot *rt.Value) {
		register(name, 1, func(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
			*slot = c.Arg(0)
			return c.Next(), nil
		})
	}
	hook("on_startup", &st.hooks.onStartup)
	hook("on_output_change", &st.hooks.onOutputChange)
	hook("on_window_map", &st.hooks.onWindowMap)
	hook("on_window_unmap", &st.hooks.onWindowUnmap)
	hook("on_tick", &st.hooks.onTick)

	register("spawn", 1, func(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
		command, err := c.StringArg(0)
		if err != nil {
			return nil, fmt.Errorf("spawn: %w", err)
		}
		e.host.Spawn(command)
		return c.Next(), nil
	})

	register("quit", 0, func(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
		e.host.Quit()
		return c.Next(), nil
	})

	register("focus_or_spawn", 2, func(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
		app, err := c.StringArg(0)
		if err != nil {
			return nil, fmt.Errorf("focus_or_spawn: %w", err)
		}
		command, err := c.StringArg(1)
		if err != nil {
			return nil, fmt.Errorf("focus_or_spawn: %w", err)
		}
		e.host.FocusOrSpawn(app, command)
		return c.Next(), nil
	})

	register("cycle_focus", 0, func(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
		e.host.CycleFocus()
		return c.Next(), nil
	})

	register("move_to_zone", 1, func(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
		zone, err := c.StringArg(0)
		if err != nil {
			return nil, fmt.Errorf("move_to_zone: %w", err)
		}
		e.host.MoveFocusedToZone(zone)
		return c.Next(), nil
	})

	register("map_key", 1, func(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
		spec, ok := c.Arg(0).TryTable()
		if !ok {
			return nil, fmt.Errorf("map_key: table argument expected")
		}
		modSpec, _ := spec.Get(rt.StringValue("mods")).TryString()
		keyName, ok := spec.Get(rt.StringValue("key")).TryString()
		if !ok {
			return nil, fmt.Errorf("map_key: key field required")
		}
		callback := spec.Get(rt.StringValue("callback"))
		if callback == rt.NilValue {
			return nil, fmt.Errorf("map_key: callback field required")
		}
		mods, err := ParseMods(string(modSpec))
		if err != nil {
			return nil, fmt.Errorf("map_key: %w", err)
		}
		sym, mods, err := ParseKey(string(keyName), mods)
		if err != nil {
			return nil, fmt.Errorf("map_key: %w", err)
		}
		st.bindings.add(mods, sym, callback)
		return c.Next(), nil
	})

	register("rule", 1, func(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
		spec, ok := c.Arg(0).TryTable()
		if !ok {
			return nil, fmt.Errorf("rule: table argument expected")
		}
		r := Rule{}
		if app, ok := spec.Get(rt.StringValue("app")).TryString(); ok {
			r.AppID = string(app)
		}
		if title, ok := spec.Get(rt.StringValue("title")).TryString(); ok {
			r.Title = string(title)
		}
		if output, ok := spec.Get(rt.StringValue("output")).TryString(); ok {
			r.Directive.Output = string(output)
		}
		if zone, ok := spec.Get(rt.StringValue("zone")).TryString(); ok {
			r.Directive.Zone = string(zone)
		}
		x, hasX := intField(spec, "x")
		y, hasY := intField(spec, "y")
		if hasX && hasY {
			r.Directive.Pos = &geom.Point{X: x, Y: y}
		}
		if focus, ok := spec.Get(rt.StringValue("focus")).TryBool(); ok {
			f := bool(focus)
			r.Directive.Focus = &f
		}
		st.rules.add(r)
		return c.Next(), nil
	})

	register("set_zones", 1, func(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
		list, ok := c.Arg(0).TryTable()
		if !ok {
			return nil, fmt.Errorf("set_zones: table argument expected")
		}
		var zones []core.Zone
		for i := int64(1); ; i++ {
			entry, ok := list.Get(rt.IntValue(i)).TryTable()
			if !ok {
				break
			}
			z, err := parseZone(entry)
			if err != nil {
				return nil, fmt.Errorf("set_zones: entry %d: %w", i, err)
			}
			zones = append(zones, z)
		}
		if st.committed {
			st.engine.host.SetZones(zones)
		}
		st.zones = zones
		return c.Next(), nil
	})

	register("outputs", 0, func(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
		return c.PushingNext1(t.Runtime, rt.TableValue(outputsTable(e.host.OutputInfos()))), nil
	})

	register("windows", 0, func(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
		list := rt.NewTable()
		for i, w := range e.host.WindowInfos() {
			list.Set(rt.IntValue(int64(i+1)), rt.TableValue(windowTable(w)))
		}
		return c.PushingNext1(t.Runtime, rt.TableValue(list)), nil
	})

	register("log", 1, func(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
		msg, err := c.StringArg(0)
		if err != nil {
			return nil, fmt.Errorf("log: %w", err)
		}
		logger.Info(string(msg), "source", "policy")
		return c.Next(), nil
	})

	runtime.GlobalEnv().Set(rt.StringValue("loom"), rt.TableValue(tbl))
}

func parseZone(entry *rt.Table) (core.Zone, error) {
	name, ok := entry.Get(rt.StringValue("name")).TryString()
	if !ok {
		return core.Zone{}, fmt.Errorf("name field required")
	}
	z := core.Zone{Name: string(name)}
	fields := [4]struct {
		key string
		dst *int
	}{
		{"x", &z.Rect.X}, {"y", &z.Rect.Y}, {"w", &z.Rect.W}, {"h", &z.Rect.H},
	}
	for _, f := range fields {
		v, ok := intField(entry, f.key)
		if !ok {
			return core.Zone{}, fmt.Errorf("%s field required", f.key)
		}
		*f.dst = v
	}
	if def, ok := entry.Get(rt.StringValue("default")).TryBool(); ok {
		z.Default = bool(def)
	}
	return z, nil
}

func intField(tbl *rt.Table, key string) (int, bool) {
	v := tbl.Get(rt.StringValue(key))
	if n, ok := v.TryInt(); ok {
		return int(n), true
	}
	if f, ok := v.TryFloat(); ok {
		return int(f), true
	}
	return 0, false
}

func windowTable(w core.WindowInfo) *rt.Table {
	tbl := rt.NewTable()
	tbl.Set(rt.StringValue("id"), rt.IntValue(int64(w.ID)))
	tbl.Set(rt.StringValue("app"), rt.StringValue(w.AppID))
	tbl.Set(rt.StringValue("title"), rt.StringValue(w.Title))
	tbl.Set(rt.StringValue("output"), rt.StringValue(w.Output))
	tbl.Set(rt.StringValue("x"), rt.IntValue(int64(w.X)))
	tbl.Set(rt.StringValue("y"), rt.IntValue(int64(w.Y)))
	tbl.Set(rt.StringValue("width"), rt.IntValue(int64(w.Width)))
	tbl.Set(rt.StringValue("height"), rt.IntValue(int64(w.Height)))
	tbl.Set(rt.StringValue("focused"), rt.BoolValue(w.Focused))
	return tbl
}

func outputsTable(outs []core.OutputInfo) *rt.Table {
	list := rt.NewTable()
	for i, o := range outs {
		tbl := rt.NewTable()
		tbl.Set(rt.StringValue("name"), rt.StringValue(o.Name))
		tbl.Set(rt.StringValue("x"), rt.IntValue(int64(o.X)))
		tbl.Set(rt.StringValue("y"), rt.IntValue(int64(o.Y)))
		tbl.Set(rt.StringValue("width"), rt.IntValue(int64(o.Width)))
		tbl.Set(rt.StringValue("height"), rt.IntValue(int64(o.Height)))
		tbl.Set(rt.StringValue("refresh_mhz"), rt.IntValue(int64(o.RefreshMHz)))
		tbl.Set(rt.StringValue("scale"), rt.IntValue(int64(o.Scale)))
		tbl.Set(rt.StringValue("enabled"), rt.BoolValue(o.Enabled))
		list.Set(rt.IntValue(int64(i+1)), rt.TableValue(tbl))
	}
	return list
}
