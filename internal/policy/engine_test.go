package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomwm/loom/internal/core"
)

// fakeHost records every host call a script makes.
type fakeHost struct {
	spawned  []string
	quit     bool
	zones    []core.Zone
	bindings core.BindingTable
	rules    core.PlacementRules
	moved    []string
	cycles   int
	focusOr  []string
	outputs  []core.OutputInfo
	windows  []core.WindowInfo
}

func (h *fakeHost) Spawn(command string) { h.spawned = append(h.spawned, command) }
func (h *fakeHost) Quit()                { h.quit = true }
func (h *fakeHost) FocusOrSpawn(appID, command string) {
	h.focusOr = append(h.focusOr, appID+"/"+command)
}
func (h *fakeHost) CycleFocus()                         { h.cycles++ }
func (h *fakeHost) MoveFocusedToZone(zone string)       { h.moved = append(h.moved, zone) }
func (h *fakeHost) SetZones(zones []core.Zone)          { h.zones = zones }
func (h *fakeHost) SetBindings(bt core.BindingTable)    { h.bindings = bt }
func (h *fakeHost) SetRules(rules core.PlacementRules)  { h.rules = rules }
func (h *fakeHost) OutputInfos() []core.OutputInfo      { return h.outputs }
func (h *fakeHost) WindowInfos() []core.WindowInfo      { return h.windows }

func loadScript(t *testing.T, host *fakeHost, code string) *Engine {
	t.Helper()
	e := NewEngine(host, DefaultLimits())
	require.NoError(t, e.Load("test.lua", []byte(code)))
	return e
}

func TestLoadCommitsDeclarations(t *testing.T) {
	host := &fakeHost{}
	e := loadScript(t, host, `
		loom.set_zones({
			{ name = "main", x = 0, y = 0, w = 1280, h = 1080, default = true },
			{ name = "side", x = 1280, y = 0, w = 640, h = 1080 },
		})
		loom.rule({ app = "term", zone = "side", focus = false })
		loom.map_key({ mods = "alt", key = "Return", callback = function()
			loom.spawn("foot")
		end })
	`)
	defer e.Close()

	require.Len(t, host.zones, 2)
	assert.Equal(t, "main", host.zones[0].Name)
	assert.True(t, host.zones[0].Default)
	assert.Equal(t, 1280, host.zones[1].Rect.X)

	require.NotNil(t, host.rules)
	dir, ok := host.rules.Match("term", "anything", core.RoleToplevel)
	require.True(t, ok)
	assert.Equal(t, "side", dir.Zone)
	require.NotNil(t, dir.Focus)
	assert.False(t, *dir.Focus)

	require.NotNil(t, host.bindings)
	mods, err := ParseMods("alt")
	require.NoError(t, err)
	sym, mods, err := ParseKey("Return", mods)
	require.NoError(t, err)
	action, ok := host.bindings.Lookup(mods, sym)
	require.True(t, ok)
	action()
	assert.Equal(t, []string{"foot"}, host.spawned)
}

func TestShiftChordMatchesShiftedKeysym(t *testing.T) {
	host := &fakeHost{}
	e := loadScript(t, host, `
		loom.map_key({ mods = "shift|alt", key = "q", callback = function()
			loom.quit()
		end })
		loom.map_key({ mods = "super", key = "T", callback = function()
			loom.spawn("foot")
		end })
	`)
	defer e.Close()

	require.NotNil(t, host.bindings)

	// While shift is held xkb delivers 'Q', not 'q'; the chord must match
	// the shifted keysym.
	action, ok := host.bindings.Lookup(core.ModShift|core.ModAlt, core.Keysym('Q'))
	require.True(t, ok, "shift chord must bind the shifted keysym")
	action()
	assert.True(t, host.quit)

	_, ok = host.bindings.Lookup(core.ModShift|core.ModAlt, core.Keysym('q'))
	assert.False(t, ok, "the unshifted keysym never arrives with shift held")

	// An uppercase spelling implies shift.
	action, ok = host.bindings.Lookup(core.ModLogo|core.ModShift, core.Keysym('T'))
	require.True(t, ok, "uppercase key spelling implies the shift modifier")
	action()
	assert.Equal(t, []string{"foot"}, host.spawned)
}

func TestLoadErrorKeepsPreviousScript(t *testing.T) {
	host := &fakeHost{}
	e := loadScript(t, host, `
		loom.set_zones({ { name = "main", x = 0, y = 0, w = 100, h = 100 } })
	`)
	defer e.Close()
	require.Len(t, host.zones, 1)

	t.Run("compile error", func(t *testing.T) {
		err := e.Load("bad.lua", []byte(`this is not lua ((`))
		assert.Error(t, err)
		assert.Len(t, host.zones, 1, "previous zones untouched")
	})

	t.Run("runtime error", func(t *testing.T) {
		err := e.Load("bad.lua", []byte(`
			loom.set_zones({ { name = "other", x = 0, y = 0, w = 1, h = 1 } })
			error("boom")
		`))
		assert.Error(t, err)
		assert.Len(t, host.zones, 1, "zones from the failed run discarded")
		assert.Equal(t, "main", host.zones[0].Name)
	})
}

func TestReloadSwapsBindingsWholesale(t *testing.T) {
	host := &fakeHost{}
	e := loadScript(t, host, `
		loom.map_key({ mods = "alt", key = "F1", callback = function() loom.spawn("one") end })
	`)
	defer e.Close()
	first := host.bindings

	require.NoError(t, e.Load("v2.lua", []byte(`
		loom.map_key({ mods = "alt", key = "Tab", callback = function() loom.cycle_focus() end })
	`)))
	assert.NotSame(t, first, host.bindings)

	_, ok := host.bindings.Lookup(core.ModAlt, core.KeyF1)
	assert.False(t, ok, "old binding gone")
	action, ok := host.bindings.Lookup(core.ModAlt, core.KeyTab)
	require.True(t, ok)
	action()
	assert.Equal(t, 1, host.cycles)
}

func TestHooksInvoked(t *testing.T) {
	host := &fakeHost{
		outputs: []core.OutputInfo{{Name: "DP-1", Width: 1920, Height: 1080, Enabled: true}},
	}
	e := loadScript(t, host, `
		loom.on_startup(function()
			loom.spawn("startup-cmd")
		end)
		loom.on_output_change(function(outs)
			loom.log("outputs " .. #outs)
		end)
		loom.on_window_map(function(w)
			if w.app == "browser" then
				loom.move_to_zone("side")
			end
		end)
	`)
	defer e.Close()

	e.Startup()
	assert.Equal(t, []string{"startup-cmd"}, host.spawned)

	e.OutputsChanged(host.outputs)

	e.WindowMapped(core.WindowInfo{ID: 1, AppID: "browser"})
	assert.Equal(t, []string{"side"}, host.moved)

	e.WindowMapped(core.WindowInfo{ID: 2, AppID: "term"})
	assert.Len(t, host.moved, 1)
}

func TestCallbackErrorIsSwallowed(t *testing.T) {
	host := &fakeHost{}
	e := loadScript(t, host, `
		loom.on_startup(function() error("startup exploded") end)
		loom.on_window_map(function() loom.spawn("ok") end)
	`)
	defer e.Close()

	e.Startup()
	e.WindowMapped(core.WindowInfo{ID: 1})
	assert.Equal(t, []string{"ok"}, host.spawned, "later hooks still run")
}

func TestRunawayScriptHitsCPULimit(t *testing.T) {
	host := &fakeHost{}
	e := NewEngine(host, Limits{CPU: 100_000, Memory: 16 * 1024 * 1024})
	err := e.Load("spin.lua", []byte(`while true do end`))
	assert.Error(t, err)
}

func TestScriptReadsStateBack(t *testing.T) {
	host := &fakeHost{
		windows: []core.WindowInfo{
			{ID: 7, AppID: "term", Focused: true},
		},
	}
	e := loadScript(t, host, `
		loom.on_tick(function()
			for _, w in ipairs(loom.windows()) do
				if w.focused and w.app == "term" then
					loom.spawn("seen")
				end
			end
		end)
	`)
	defer e.Close()

	e.Tick(time.Now())
	assert.Equal(t, []string{"seen"}, host.spawned)
}

func TestParseMods(t *testing.T) {
	cases := []struct {
		spec string
		want core.ModMask
	}{
		{"", 0},
		{"alt", core.ModAlt},
		{"ctrl|alt", core.ModCtrl | core.ModAlt},
		{"shift|super", core.ModShift | core.ModLogo},
		{"Control|ALT", core.ModCtrl | core.ModAlt},
	}
	for _, tc := range cases {
		mods, err := ParseMods(tc.spec)
		require.NoError(t, err, tc.spec)
		assert.Equal(t, tc.want, mods, tc.spec)
	}

	_, err := ParseMods("hyper")
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	cases := []struct {
		name     string
		mods     core.ModMask
		want     core.Keysym
		wantMods core.ModMask
	}{
		{"a", 0, core.Keysym('a'), 0},
		{"1", 0, core.Keysym('1'), 0},
		{"Return", 0, core.KeyReturn, 0},
		{"escape", 0, core.KeyEscape, 0},
		{"Tab", 0, core.KeyTab, 0},
		{"Left", 0, core.KeyLeft, 0},
		// Uppercase spelling implies shift and binds the shifted keysym.
		{"Q", 0, core.Keysym('Q'), core.ModShift},
		// A shift chord stores the shifted keysym, since that is what
		// xkb delivers while shift is held.
		{"q", core.ModShift, core.Keysym('Q'), core.ModShift},
		{"q", core.ModShift | core.ModAlt, core.Keysym('Q'), core.ModShift | core.ModAlt},
		// Named keys pass modifiers through untouched.
		{"Return", core.ModShift, core.KeyReturn, core.ModShift},
	}
	for _, tc := range cases {
		sym, mods, err := ParseKey(tc.name, tc.mods)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, sym, tc.name)
		assert.Equal(t, tc.wantMods, mods, tc.name)
	}

	_, _, err := ParseKey("NoSuchKey", 0)
	assert.Error(t, err)
	_, _, err = ParseKey("", 0)
	assert.Error(t, err)
}
