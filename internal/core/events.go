package core

import "github.com/loomwm/loom/internal/geom"

// Event is a message delivered into the event loop by a backend or bridge.
// All events are dispatched on the loop goroutine.
type Event interface {
	isEvent()
}

// KeyEvent is a raw keyboard event, already translated through xkb by the
// input backend.
type KeyEvent struct {
	Seat    string
	Time    uint32
	Keycode uint32
	Sym     Keysym
	Mods    ModMask
	Pressed bool
}

// PointerMotionEvent carries an absolute pointer position in global
// layout coordinates.
type PointerMotionEvent struct {
	Seat string
	Time uint32
	X, Y float64
}

// PointerButtonEvent is a pointer button press or release.
type PointerButtonEvent struct {
	Seat    string
	Time    uint32
	Button  uint32
	Pressed bool
}

// PointerAxisEvent is a scroll event.
type PointerAxisEvent struct {
	Seat       string
	Time       uint32
	Horizontal bool
	Delta      float64
}

// TouchEvent is a touch down/up at a global position. Motion between down
// and up arrives as PointerMotionEvents from backends that emulate.
type TouchEvent struct {
	Seat string
	Time uint32
	X, Y float64
	Down bool
}

// OutputAddedEvent announces a hotplugged output. Pos is nil when the
// backend has no position preference and the registry should pack it.
type OutputAddedEvent struct {
	Name  string
	Mode  Mode
	Scale int
	Pos   *geom.Point
}

// OutputRemovedEvent announces an unplugged output.
type OutputRemovedEvent struct {
	Name string
}

// FrameDoneEvent is the per-output scheduling signal: the previous frame
// has been presented and the output can take another.
type FrameDoneEvent struct {
	Output string
}

// WindowMappedEvent announces a client window that is ready to be shown.
// Parent is non-zero for popups.
type WindowMappedEvent struct {
	ID         WindowID
	Surface    SurfaceID
	AppID      string
	Title      string
	Width      int
	Height     int
	Role       Role
	Parent     WindowID
	OutputHint string
}

// WindowUnmappedEvent announces that a window should no longer be shown.
type WindowUnmappedEvent struct {
	ID WindowID
}

// SurfaceCommitEvent carries a client's committed buffer and damage.
type SurfaceCommitEvent struct {
	Surface SurfaceID
	Buffer  BufferHandle
	Width   int
	Height  int
	Damage  []geom.Rect
}

// InteractiveBeginEvent is a client (or policy) request to start an
// interactive pointer move or resize of a window.
type InteractiveBeginEvent struct {
	Seat   string
	Window WindowID
	Resize bool
	Edges  Edges
}

// ConfigChangedEvent is posted by the config watcher after debouncing.
type ConfigChangedEvent struct{}

func (KeyEvent) isEvent()              {}
func (PointerMotionEvent) isEvent()    {}
func (PointerButtonEvent) isEvent()    {}
func (PointerAxisEvent) isEvent()      {}
func (TouchEvent) isEvent()            {}
func (OutputAddedEvent) isEvent()      {}
func (OutputRemovedEvent) isEvent()    {}
func (FrameDoneEvent) isEvent()        {}
func (WindowMappedEvent) isEvent()     {}
func (WindowUnmappedEvent) isEvent()   {}
func (SurfaceCommitEvent) isEvent()    {}
func (InteractiveBeginEvent) isEvent() {}
func (ConfigChangedEvent) isEvent()    {}
