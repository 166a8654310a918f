package policy

import (
	"fmt"
	"strings"
	"unicode"

	rt "github.com/arnodel/golua/runtime"

	"github.com/loomwm/loom/internal/core"
)

type chord struct {
	mods core.ModMask
	sym  core.Keysym
}

// Bindings is the chord-to-callback table a script builds with map_key.
// It implements core.BindingTable; lookups run on the loop goroutine.
type Bindings struct {
	engine  *Engine
	actions map[chord]rt.Value
}

func NewBindings() *Bindings {
	return &Bindings{actions: make(map[chord]rt.Value)}
}

func (b *Bindings) add(mods core.ModMask, sym core.Keysym, fn rt.Value) {
	b.actions[chord{mods: mods, sym: sym}] = fn
}

func (b *Bindings) Len() int { return len(b.actions) }

// Lookup resolves an exact chord. The returned closure invokes the Lua
// callback through the owning engine.
func (b *Bindings) Lookup(mods core.ModMask, sym core.Keysym) (func(), bool) {
	fn, ok := b.actions[chord{mods: mods, sym: sym}]
	if !ok {
		return nil, false
	}
	return func() { b.engine.call("binding", fn) }, true
}

// ParseMods parses a '|'-separated modifier list such as "ctrl|alt".
func ParseMods(spec string) (core.ModMask, error) {
	var mods core.ModMask
	if spec == "" {
		return 0, nil
	}
	for _, part := range strings.Split(spec, "|") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "shift":
			mods |= core.ModShift
		case "ctrl", "control":
			mods |= core.ModCtrl
		case "alt":
			mods |= core.ModAlt
		case "super", "logo", "mod4":
			mods |= core.ModLogo
		case "":
		default:
			return 0, fmt.Errorf("unknown modifier %q", part)
		}
	}
	return mods, nil
}

var namedKeys = map[string]core.Keysym{
	"escape": core.KeyEscape,
	"esc":    core.KeyEscape,
	"return": core.KeyReturn,
	"enter":  core.KeyReturn,
	"tab":    core.KeyTab,
	"left":   core.KeyLeft,
	"right":  core.KeyRight,
	"up":     core.KeyUp,
	"down":   core.KeyDown,
	"f1":     core.KeyF1,
}

// ParseKey parses a key name: a single printable character maps to its
// keysym directly, everything else goes through the named-key table.
// xkb applies modifiers before delivering keysyms, so a shift chord must
// store the shifted (uppercase) keysym to ever match; an uppercase
// spelling implies shift. The possibly-extended modifier set is returned
// alongside the keysym.
func ParseKey(name string, mods core.ModMask) (core.Keysym, core.ModMask, error) {
	if name == "" {
		return 0, mods, fmt.Errorf("empty key name")
	}
	runes := []rune(name)
	if len(runes) == 1 && runes[0] < 256 {
		r := runes[0]
		if unicode.IsUpper(r) {
			mods |= core.ModShift
		}
		// Latin-1 keysyms equal the codepoint.
		if mods&core.ModShift != 0 {
			return core.Keysym(unicode.ToUpper(r)), mods, nil
		}
		return core.Keysym(unicode.ToLower(r)), mods, nil
	}
	if sym, ok := namedKeys[strings.ToLower(name)]; ok {
		return sym, mods, nil
	}
	return 0, mods, fmt.Errorf("unknown key %q", name)
}
