package core

import (
	"errors"
	"fmt"
)

// fakeBackend records composes and can be told to fail.
type fakeBackend struct {
	composes  []composeCall
	failNext  int
	vsync     bool
	importErr error
}

type composeCall struct {
	output  string
	windows []FrameWindow
}

func (b *fakeBackend) ImportBuffer(h BufferHandle) (BufferToken, error) {
	if b.importErr != nil {
		return 0, b.importErr
	}
	return BufferToken(h), nil
}

func (b *fakeBackend) Compose(output string, windows []FrameWindow) error {
	if b.failNext > 0 {
		b.failNext--
		return errors.New("compose refused")
	}
	b.composes = append(b.composes, composeCall{output: output, windows: windows})
	return nil
}

func (b *fakeBackend) HasVSync() bool { return b.vsync }

func (b *fakeBackend) composesFor(output string) int {
	n := 0
	for _, c := range b.composes {
		if c.output == output {
			n++
		}
	}
	return n
}

// fakeEvents records surface-targeted deliveries as readable strings.
type fakeEvents struct {
	log []string
}

func (e *fakeEvents) PointerEnter(s SurfaceID, sx, sy float64) {
	e.log = append(e.log, fmt.Sprintf("enter:%d", s))
}

func (e *fakeEvents) PointerLeave(s SurfaceID) {
	e.log = append(e.log, fmt.Sprintf("leave:%d", s))
}

func (e *fakeEvents) PointerMotion(s SurfaceID, time uint32, sx, sy float64) {
	e.log = append(e.log, fmt.Sprintf("motion:%d:%.0f,%.0f", s, sx, sy))
}

func (e *fakeEvents) PointerButton(s SurfaceID, time uint32, button uint32, pressed bool) {
	e.log = append(e.log, fmt.Sprintf("button:%d:%d:%t", s, button, pressed))
}

func (e *fakeEvents) PointerAxis(s SurfaceID, time uint32, horizontal bool, delta float64) {
	e.log = append(e.log, fmt.Sprintf("axis:%d", s))
}

func (e *fakeEvents) KeyboardEnter(s SurfaceID) {
	e.log = append(e.log, fmt.Sprintf("kenter:%d", s))
}

func (e *fakeEvents) KeyboardLeave(s SurfaceID) {
	e.log = append(e.log, fmt.Sprintf("kleave:%d", s))
}

func (e *fakeEvents) KeyboardKey(s SurfaceID, time uint32, keycode uint32, pressed bool) {
	e.log = append(e.log, fmt.Sprintf("key:%d:%d:%t", s, keycode, pressed))
}

func (e *fakeEvents) count(prefix string) int {
	n := 0
	for _, l := range e.log {
		if len(l) >= len(prefix) && l[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// fakeBindings is a map-backed binding table.
type fakeBindings map[string]func()

func bindingKey(mods ModMask, sym Keysym) string {
	return fmt.Sprintf("%d+%d", mods, sym)
}

func (b fakeBindings) Lookup(mods ModMask, sym Keysym) (func(), bool) {
	fn, ok := b[bindingKey(mods, sym)]
	return fn, ok
}

// fakeRules matches a single app id.
type fakeRules struct {
	app string
	dir PlacementDirective
}

func (r *fakeRules) Match(appID, title string, role Role) (PlacementDirective, bool) {
	if appID == r.app {
		return r.dir, true
	}
	return PlacementDirective{}, false
}
