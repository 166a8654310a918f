package core

import "github.com/loomwm/loom/internal/geom"

// Surface is a client-submitted drawable unit. The buffer behind Handle is
// owned by the rendering backend; the core only references it.
type Surface struct {
	ID     SurfaceID
	Role   Role
	Handle BufferHandle
	Token  BufferToken
	Width  int
	Height int

	// Damage accumulates committed damage in surface-local coordinates and
	// is cleared when a frame containing the surface is composed.
	Damage geom.Region

	// InputTransparent marks a click-through surface that hit-testing
	// skips. Set through policy.
	InputTransparent bool

	window WindowID
}

// Window is a toplevel (or popup) surface plus its placement state.
type Window struct {
	ID    WindowID
	AppID string
	Title string
	Role  Role
	Root  *Surface

	Pos    geom.Point
	Width  int
	Height int

	Mapped bool
	Output string // primary output, the one the window was placed on

	// Parent/Popups are relations, not ownership: they hold IDs so that a
	// destroyed window can never be reached through a stale pointer.
	Parent WindowID
	Popups []WindowID

	FocusEligible bool
}

// Bounds returns the window rectangle in global coordinates.
func (w *Window) Bounds() geom.Rect {
	return geom.Rect{X: w.Pos.X, Y: w.Pos.Y, W: w.Width, H: w.Height}
}

func (w *Window) info(focused bool) WindowInfo {
	return WindowInfo{
		ID:      w.ID,
		AppID:   w.AppID,
		Title:   w.Title,
		Output:  w.Output,
		X:       w.Pos.X,
		Y:       w.Pos.Y,
		Width:   w.Width,
		Height:  w.Height,
		Focused: focused,
	}
}
