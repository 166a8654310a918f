package core

import (
	"github.com/loomwm/loom/internal/geom"
	"github.com/loomwm/loom/internal/logger"
)

// Router maps raw input events to seat state transitions and to
// surface-targeted protocol events. One router serves every seat.
type Router struct {
	tree  *Tree
	reg   *Registry
	seats map[string]*Seat
	order []string

	bindings BindingTable
	events   SurfaceEvents

	// hover tracks which surface currently has pointer focus per seat, so
	// enter/leave fire exactly once per transition.
	hover map[string]SurfaceID

	// onFocusChange lets the compositor react to focus moves (raise the
	// window, update policy-visible state).
	onFocusChange func(seat *Seat, w *Window)
}

func NewRouter(tree *Tree, reg *Registry, events SurfaceEvents) *Router {
	return &Router{
		tree:   tree,
		reg:    reg,
		seats:  make(map[string]*Seat),
		events: events,
		hover:  make(map[string]SurfaceID),
	}
}

func (r *Router) AddSeat(s *Seat) {
	r.seats[s.Name] = s
	r.order = append(r.order, s.Name)
}

func (r *Router) Seat(name string) *Seat { return r.seats[name] }

// Seats returns seats in creation order.
func (r *Router) Seats() []*Seat {
	out := make([]*Seat, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.seats[name])
	}
	return out
}

// PrimarySeat returns the first seat, the one consulted for pointer-based
// placement decisions.
func (r *Router) PrimarySeat() *Seat {
	if len(r.order) == 0 {
		return nil
	}
	return r.seats[r.order[0]]
}

// SetBindings swaps the binding table wholesale. Called between frames on
// config reload, never mid-dispatch.
func (r *Router) SetBindings(bt BindingTable) { r.bindings = bt }

func (r *Router) OnFocusChange(fn func(seat *Seat, w *Window)) { r.onFocusChange = fn }

// windowAt hit-tests the topmost mapped window under a global point,
// respecting per-output clipping and skipping click-through surfaces.
func (r *Router) windowAt(p geom.Point) *Window {
	out := r.reg.At(p)
	if out == nil {
		return nil
	}
	clip := out.Bounds()
	for _, w := range r.tree.WindowsOn(out.Name) {
		if w.Root != nil && w.Root.InputTransparent {
			continue
		}
		if w.Bounds().Intersect(clip).Contains(p) {
			return w
		}
	}
	return nil
}

// PointerMotion handles an absolute motion sample for a seat.
func (r *Router) PointerMotion(seatName string, time uint32, x, y float64) {
	seat := r.seats[seatName]
	if seat == nil {
		return
	}
	seat.PointerX, seat.PointerY = x, y

	grab := seat.Grab()
	if grab.Kind == GrabPointer {
		switch grab.Mode {
		case InteractiveMove:
			r.processMove(seat)
			return
		case InteractiveResize:
			r.processResize(seat)
			return
		default:
			// Plain pointer grab: all motion goes to the owner.
			if owner := r.tree.Window(grab.Owner); owner != nil && owner.Root != nil {
				sx := x - float64(owner.Pos.X)
				sy := y - float64(owner.Pos.Y)
				r.events.PointerMotion(owner.Root.ID, time, sx, sy)
			}
			return
		}
	}

	target := r.windowAt(seat.PointerPos())
	if target == nil || target.Root == nil {
		r.clearHover(seat)
		return
	}

	sx := x - float64(target.Pos.X)
	sy := y - float64(target.Pos.Y)
	if r.hover[seat.Name] != target.Root.ID {
		if prev := r.hover[seat.Name]; prev != 0 {
			r.events.PointerLeave(prev)
		}
		r.hover[seat.Name] = target.Root.ID
		r.events.PointerEnter(target.Root.ID, sx, sy)
	}
	r.events.PointerMotion(target.Root.ID, time, sx, sy)
}

func (r *Router) clearHover(seat *Seat) {
	if prev := r.hover[seat.Name]; prev != 0 {
		r.events.PointerLeave(prev)
		delete(r.hover, seat.Name)
	}
}

// Hover returns the surface currently under the seat's pointer, zero when
// none.
func (r *Router) Hover(seatName string) SurfaceID { return r.hover[seatName] }

// PointerButton handles a button press or release. A press focuses the
// window under the pointer; a release ends any interactive grab.
func (r *Router) PointerButton(seatName string, time uint32, button uint32, pressed bool) {
	seat := r.seats[seatName]
	if seat == nil {
		return
	}
	if pressed {
		seat.ButtonDown(button)
	} else {
		seat.ButtonUp(button)
	}

	grab := seat.Grab()
	if grab.Kind == GrabPointer && grab.Mode != InteractiveNone {
		if !pressed {
			seat.EndGrab(0)
		}
		return
	}

	target := r.windowAt(seat.PointerPos())
	if grab.Kind == GrabPointer {
		target = r.tree.Window(grab.Owner)
	}
	if target == nil || target.Root == nil {
		return
	}
	r.events.PointerButton(target.Root.ID, time, button, pressed)
	if pressed && grab.Kind == GrabNone {
		r.FocusWindow(seat, target)
	}
}

// PointerAxis forwards a scroll event to the hovered (or grabbed) surface.
func (r *Router) PointerAxis(seatName string, time uint32, horizontal bool, delta float64) {
	seat := r.seats[seatName]
	if seat == nil {
		return
	}
	target := r.hover[seat.Name]
	if grab := seat.Grab(); grab.Kind == GrabPointer && grab.Mode == InteractiveNone {
		if owner := r.tree.Window(grab.Owner); owner != nil && owner.Root != nil {
			target = owner.Root.ID
		}
	}
	if target != 0 {
		r.events.PointerAxis(target, time, horizontal, delta)
	}
}

// Key routes a key event. Pressed keys are first offered to the binding
// table; a match consumes the event entirely, which is how user bindings
// pre-empt application shortcuts. Unmatched events go to the keyboard grab
// owner or the focused window; with neither they are dropped silently.
func (r *Router) Key(seatName string, time uint32, keycode uint32, sym Keysym, mods ModMask, pressed bool) {
	seat := r.seats[seatName]
	if seat == nil {
		return
	}
	if pressed {
		seat.KeyDown(keycode)
	} else {
		seat.KeyUp(keycode)
	}

	if pressed && r.bindings != nil {
		if action, ok := r.bindings.Lookup(mods, sym); ok {
			action()
			return
		}
	}

	target := seat.Focus()
	if grab := seat.Grab(); grab.Kind == GrabKeyboard {
		target = grab.Owner
	}
	if target == 0 {
		return
	}
	w := r.tree.Window(target)
	if w == nil || w.Root == nil {
		return
	}
	r.events.KeyboardKey(w.Root.ID, time, keycode, pressed)
}

// Touch maps touch down to a pointer warp plus button press, matching
// backends that emulate single-touch pointers.
func (r *Router) Touch(seatName string, time uint32, x, y float64, down bool) {
	r.PointerMotion(seatName, time, x, y)
	r.PointerButton(seatName, time, 0x110, down) // BTN_LEFT
}

// FocusWindow gives a seat keyboard focus on a window, deactivating the
// previous one and raising the new one to the top of its stack.
func (r *Router) FocusWindow(seat *Seat, w *Window) {
	if w == nil || !w.Mapped || !w.FocusEligible {
		return
	}
	if seat.Focus() == w.ID {
		return
	}
	if prev := r.tree.Window(seat.Focus()); prev != nil && prev.Root != nil {
		r.events.KeyboardLeave(prev.Root.ID)
	}
	seat.SetFocus(w.ID)
	r.tree.Restack(w.ID, RestackTop)
	if w.Root != nil {
		r.events.KeyboardEnter(w.Root.ID)
	}
	if r.onFocusChange != nil {
		r.onFocusChange(seat, w)
	}
}

// ClearFocusOf atomically clears the window from every seat that focuses
// it, returning the seats affected.
func (r *Router) ClearFocusOf(id WindowID) []*Seat {
	var cleared []*Seat
	for _, seat := range r.Seats() {
		if seat.ClearFocusIf(id) {
			cleared = append(cleared, seat)
		}
		if grab := seat.Grab(); grab.Owner == id {
			seat.EndGrab(id)
		}
		if w := r.tree.Window(id); w != nil && w.Root != nil && r.hover[seat.Name] == w.Root.ID {
			delete(r.hover, seat.Name)
		}
	}
	return cleared
}

// BeginInteractive starts a pointer-driven move or resize. Requests for
// windows the pointer is not currently over are denied, matching the
// usual rule that only the focused client may start one.
func (r *Router) BeginInteractive(seatName string, id WindowID, resize bool, edges Edges) bool {
	seat := r.seats[seatName]
	w := r.tree.Window(id)
	if seat == nil || w == nil || !w.Mapped || w.Root == nil {
		return false
	}
	if r.hover[seat.Name] != w.Root.ID {
		return false
	}

	g := Grab{Kind: GrabPointer, Owner: id, Mode: InteractiveMove}
	if resize {
		g.Mode = InteractiveResize
		g.Edges = edges
		g.GrabX = seat.PointerX
		g.GrabY = seat.PointerY
		g.StartGeo = w.Bounds()
	} else {
		g.GrabX = seat.PointerX - float64(w.Pos.X)
		g.GrabY = seat.PointerY - float64(w.Pos.Y)
	}
	if !seat.BeginGrab(g) {
		return false
	}
	logger.Debug("interactive grab", "seat", seat.Name, "window", id, "resize", resize)
	return true
}

func (r *Router) processMove(seat *Seat) {
	grab := seat.Grab()
	w := r.tree.Window(grab.Owner)
	if w == nil {
		seat.EndGrab(0)
		return
	}
	r.tree.MoveWindow(w.ID, geom.Point{
		X: int(seat.PointerX - grab.GrabX),
		Y: int(seat.PointerY - grab.GrabY),
	})
}

func (r *Router) processResize(seat *Seat) {
	grab := seat.Grab()
	w := r.tree.Window(grab.Owner)
	if w == nil {
		seat.EndGrab(0)
		return
	}

	dx := int(seat.PointerX - grab.GrabX)
	dy := int(seat.PointerY - grab.GrabY)
	geo := grab.StartGeo
	x, y := geo.X, geo.Y
	width, height := geo.W, geo.H

	if grab.Edges&EdgeTop != 0 {
		y = geo.Y + dy
		height -= dy
	} else if grab.Edges&EdgeBottom != 0 {
		height += dy
	}
	if grab.Edges&EdgeLeft != 0 {
		x = geo.X + dx
		width -= dx
	} else if grab.Edges&EdgeRight != 0 {
		width += dx
	}
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	r.tree.MoveWindow(w.ID, geom.Point{X: x, Y: y})
	w.Width, w.Height = width, height
}
