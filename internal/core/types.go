// Package core implements the compositor state machine: the output
// registry, the surface tree, per-seat input state, per-output frame
// scheduling, and the single-threaded event loop that owns all of it.
//
// Everything in this package is mutated exclusively by the loop goroutine.
// External collaborators (the rendering backend, the XWayland bridge, the
// control channels) communicate through events and posted tasks, never by
// touching state directly.
package core

import (
	"time"

	"github.com/loomwm/loom/internal/geom"
)

// WindowID identifies a window for the lifetime of the process. IDs are
// never reused.
type WindowID uint64

// SurfaceID identifies a client surface.
type SurfaceID uint64

// BufferHandle is an opaque reference to a client buffer. The rendering
// backend owns the memory behind it; the core only passes it around.
type BufferHandle uint64

// BufferToken is a render-ready buffer reference returned by the rendering
// backend's import step.
type BufferToken uint64

// Keysym is an xkbcommon keysym value. For Latin-1 characters the keysym
// equals the codepoint, which is what the policy layer relies on when
// parsing key names.
type Keysym uint32

const (
	KeyEscape Keysym = 0xff1b
	KeyLeft   Keysym = 0xff51
	KeyUp     Keysym = 0xff52
	KeyRight  Keysym = 0xff53
	KeyDown   Keysym = 0xff54
	KeyReturn Keysym = 0xff0d
	KeyTab    Keysym = 0xff09
	KeyF1     Keysym = 0xffbe
)

// ModMask is a set of held modifier keys.
type ModMask uint8

const (
	ModShift ModMask = 1 << iota
	ModCtrl
	ModAlt
	ModLogo
)

// Role describes what a surface is used for.
type Role int

const (
	RoleToplevel Role = iota
	RolePopup
	RoleSubsurface
	RoleCursor
)

// Edges is a bitmask of window edges, used by interactive resizes.
type Edges uint8

const (
	EdgeTop Edges = 1 << iota
	EdgeBottom
	EdgeLeft
	EdgeRight
)

// Mode is an output video mode.
type Mode struct {
	Width      int
	Height     int
	RefreshMHz int
}

// Zone is a named placement target in global coordinates. Zones are
// supplied wholesale by the policy layer.
type Zone struct {
	Name    string
	Rect    geom.Rect
	Default bool
}

// Placement is the resolved decision of where a mapping window goes.
type Placement struct {
	Output string
	Pos    geom.Point
	Focus  bool
}

// PlacementDirective is what a placement rule asks for before the tree
// resolves it against live outputs and zones.
type PlacementDirective struct {
	Output string      // target output name, "" to derive
	Zone   string      // target zone name, "" for none
	Pos    *geom.Point // explicit global position
	Center bool        // center on the resolved output
	Focus  *bool       // override focus-on-map, nil keeps the default
}

// PlacementRules matches a mapping window against the rule table built by
// the policy layer. First matching rule wins.
type PlacementRules interface {
	Match(appID, title string, role Role) (PlacementDirective, bool)
}

// BindingTable resolves an exact (modifier set, keysym) chord to a bound
// action. The returned func runs the action; a hit consumes the key event.
type BindingTable interface {
	Lookup(mods ModMask, sym Keysym) (func(), bool)
}

// PolicyHooks are the fixed points where the policy layer is invoked
// synchronously from the loop thread.
type PolicyHooks interface {
	Startup()
	WindowMapped(w WindowInfo)
	WindowUnmapped(w WindowInfo)
	OutputsChanged(outs []OutputInfo)
	Tick(now time.Time)
}

// SurfaceEvents delivers protocol events to client surfaces. Implemented by
// the display backend.
type SurfaceEvents interface {
	PointerEnter(s SurfaceID, sx, sy float64)
	PointerLeave(s SurfaceID)
	PointerMotion(s SurfaceID, time uint32, sx, sy float64)
	PointerButton(s SurfaceID, time uint32, button uint32, pressed bool)
	PointerAxis(s SurfaceID, time uint32, horizontal bool, delta float64)
	KeyboardEnter(s SurfaceID)
	KeyboardLeave(s SurfaceID)
	KeyboardKey(s SurfaceID, time uint32, keycode uint32, pressed bool)
}

// FrameWindow is one entry of the ordered window list handed to the
// rendering backend, bottom to top, in output-local coordinates.
type FrameWindow struct {
	Window WindowID
	Buffer BufferToken
	Bounds geom.Rect
	Damage []geom.Rect
}

// RenderBackend is the narrow interface to the external renderer.
// Compose submits a frame for an output and must not block on hardware;
// completion and the next scheduling opportunity arrive as FrameDoneEvents.
type RenderBackend interface {
	ImportBuffer(h BufferHandle) (BufferToken, error)
	Compose(output string, windows []FrameWindow) error
	// HasVSync reports whether the backend emits its own frame-done
	// signals. Backends without hardware sync are driven by the loop timer.
	HasVSync() bool
}

// FramePublisher receives every presented frame, one per output compose.
// Used by the screencast tap; a nil publisher is valid.
type FramePublisher interface {
	Publish(output string, buf BufferToken)
}

// OutputInfo is the read-only view of an output handed to policy scripts
// and control channels.
type OutputInfo struct {
	Name       string
	X, Y       int
	Width      int
	Height     int
	RefreshMHz int
	Scale      int
	Enabled    bool
}

// WindowInfo is the read-only view of a window.
type WindowInfo struct {
	ID      WindowID
	AppID   string
	Title   string
	Output  string
	X, Y    int
	Width   int
	Height  int
	Focused bool
}
