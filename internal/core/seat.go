package core

import "github.com/loomwm/loom/internal/geom"

// GrabKind says which device class a grab captures.
type GrabKind int

const (
	GrabNone GrabKind = iota
	GrabPointer
	GrabKeyboard
)

// InteractiveMode distinguishes plain grabs from compositor-driven move
// and resize operations.
type InteractiveMode int

const (
	InteractiveNone InteractiveMode = iota
	InteractiveMove
	InteractiveResize
)

// Grab is exclusive temporary ownership of pointer or keyboard routing by
// one window. Released only by the owning seat or by teardown of the
// grabbing window.
type Grab struct {
	Kind  GrabKind
	Owner WindowID

	// Interactive move/resize bookkeeping.
	Mode     InteractiveMode
	Edges    Edges
	GrabX    float64
	GrabY    float64
	StartGeo geom.Rect
}

// Seat is one keyboard+pointer+touch identity. Focus is held as a
// WindowID relation, never a pointer, so a destroyed window cannot dangle.
type Seat struct {
	Name     string
	PointerX float64
	PointerY float64

	focus   WindowID
	pressed map[uint32]struct{}
	buttons map[uint32]struct{}
	grab    Grab
}

func NewSeat(name string) *Seat {
	return &Seat{
		Name:    name,
		pressed: make(map[uint32]struct{}),
		buttons: make(map[uint32]struct{}),
	}
}

// Focus returns the focused window id, zero for none.
func (s *Seat) Focus() WindowID { return s.focus }

func (s *Seat) SetFocus(id WindowID) { s.focus = id }

// ClearFocusIf drops focus when it references the given window. Returns
// true when focus was cleared.
func (s *Seat) ClearFocusIf(id WindowID) bool {
	if s.focus == id {
		s.focus = 0
		return true
	}
	return false
}

// PointerPos returns the pointer position in global space.
func (s *Seat) PointerPos() geom.Point {
	return geom.Point{X: int(s.PointerX), Y: int(s.PointerY)}
}

func (s *Seat) KeyDown(keycode uint32)      { s.pressed[keycode] = struct{}{} }
func (s *Seat) KeyUp(keycode uint32)        { delete(s.pressed, keycode) }
func (s *Seat) ButtonDown(button uint32)    { s.buttons[button] = struct{}{} }
func (s *Seat) ButtonUp(button uint32)      { delete(s.buttons, button) }
func (s *Seat) PressedKeyCount() int        { return len(s.pressed) }
func (s *Seat) ButtonsPressed() bool        { return len(s.buttons) > 0 }
func (s *Seat) IsKeyDown(keycode uint32) bool {
	_, ok := s.pressed[keycode]
	return ok
}

// Grab returns the active grab. Kind is GrabNone when idle.
func (s *Seat) Grab() Grab { return s.grab }

// BeginGrab establishes an exclusive grab. A second grab request while one
// is active is refused.
func (s *Seat) BeginGrab(g Grab) bool {
	if s.grab.Kind != GrabNone {
		return false
	}
	if g.Kind == GrabNone || g.Owner == 0 {
		return false
	}
	s.grab = g
	return true
}

// EndGrab releases the grab when owner matches, or unconditionally when
// owner is zero (seat-initiated release).
func (s *Seat) EndGrab(owner WindowID) bool {
	if s.grab.Kind == GrabNone {
		return false
	}
	if owner != 0 && s.grab.Owner != owner {
		return false
	}
	s.grab = Grab{}
	return true
}
