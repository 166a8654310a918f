// Package wlroots bridges the compositor core to real displays and input
// through go-wlroots. The wlroots event loop runs on its own goroutine and
// forwards everything into the core loop as events; the core talks back
// through the RenderBackend and SurfaceEvents interfaces.
package wlroots

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/swaywm/go-wlroots/wlroots"
	"github.com/swaywm/go-wlroots/xkb"

	"github.com/loomwm/loom/internal/core"
	"github.com/loomwm/loom/internal/geom"
	"github.com/loomwm/loom/internal/logger"
)

// Poster is the slice of the core loop the server needs.
type Poster interface {
	Post(ev core.Event)
}

// outputMeta pairs a wlroots output with its layout origin. AddOutputAuto
// packs outputs left to right in arrival order, so the origin is the sum of
// the widths that came before, mirroring the core registry's packing.
type outputMeta struct {
	output wlroots.Output
	origin geom.Point
	width  int
}

// window tracks one wlroots toplevel and the ids the core knows it by.
type window struct {
	id       core.WindowID
	surface  core.SurfaceID
	toplevel wlroots.XDGTopLevel
	xdg      wlroots.XDGSurface
}

// Server owns the wlroots display, backend, renderer and scene graph. It
// mirrors every wlroots signal into a core event and applies the core's
// compose decisions back onto the scene.
type Server struct {
	display   wlroots.Display
	backend   wlroots.Backend
	renderer  wlroots.Renderer
	allocator wlroots.Allocator
	scene     wlroots.Scene

	xdgShell    wlroots.XDGShell
	cursor      wlroots.Cursor
	cursorMgr   wlroots.XCursorManager
	seat        wlroots.Seat
	layout      wlroots.OutputLayout
	sceneLayout wlroots.SceneOutputLayout

	seatName string
	poster   Poster

	mu        sync.Mutex
	outputs   map[string]*outputMeta
	windows   map[core.WindowID]*window
	bySurface map[core.SurfaceID]*window
	keyboards []wlroots.Keyboard

	nextWindowID  atomic.Uint64
	nextSurfaceID atomic.Uint64
	nextToken     atomic.Uint64

	socket string
}

func NewServer(seatName string, poster Poster) (*Server, error) {
	s := &Server{
		seatName:  seatName,
		poster:    poster,
		outputs:   make(map[string]*outputMeta),
		windows:   make(map[core.WindowID]*window),
		bySurface: make(map[core.SurfaceID]*window),
	}

	s.display = wlroots.NewDisplay()

	var err error
	s.backend, err = s.display.BackendAutocreate()
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}
	s.renderer, err = s.backend.RendererAutoCreate()
	if err != nil {
		return nil, fmt.Errorf("create renderer: %w", err)
	}
	s.renderer.InitDisplay(s.display)
	s.allocator, err = s.backend.AllocatorAutocreate(s.renderer)
	if err != nil {
		return nil, fmt.Errorf("create allocator: %w", err)
	}

	s.display.CompositorCreate(5, s.renderer)
	s.display.SubCompositorCreate()
	s.display.DataDeviceManagerCreate()

	s.layout = wlroots.NewOutputLayout()
	s.backend.OnNewOutput(s.handleNewOutput)

	s.scene = wlroots.NewScene()
	s.sceneLayout = s.scene.AttachOutputLayout(s.layout)

	s.xdgShell = s.display.XDGShellCreate(3)
	s.xdgShell.OnNewSurface(s.handleNewXDGSurface)

	s.cursor = wlroots.NewCursor()
	s.cursor.AttachOutputLayout(s.layout)
	s.cursorMgr = wlroots.NewXCursorManager("", 24)
	s.cursor.OnMotion(s.handleCursorMotion)
	s.cursor.OnMotionAbsolute(s.handleCursorMotionAbsolute)
	s.cursor.OnButton(s.handleCursorButton)
	s.cursor.OnAxis(s.handleCursorAxis)
	s.cursor.OnFrame(s.handleCursorFrame)
	s.cursorMgr.Load(1)

	s.backend.OnNewInput(s.handleNewInput)
	s.seat = s.display.SeatCreate(seatName)
	s.seat.OnSetCursorRequest(s.handleSetCursorRequest)

	return s, nil
}

// Start adds the Wayland socket and starts the backend. Returns after the
// socket exists; the display loop itself runs in Run.
func (s *Server) Start() error {
	socket, err := s.display.AddSocketAuto()
	if err != nil {
		s.backend.Destroy()
		return fmt.Errorf("add socket: %w", err)
	}
	s.socket = socket

	if err := s.backend.Start(); err != nil {
		s.backend.Destroy()
		s.display.Destroy()
		return fmt.Errorf("start backend: %w", err)
	}
	logger.Info("wayland display ready", "socket", socket)
	return nil
}

// Socket returns the WAYLAND_DISPLAY name, valid after Start.
func (s *Server) Socket() string { return s.socket }

// Run drives the wlroots event loop until Stop. Blocks.
func (s *Server) Run() {
	s.display.Run()
	s.display.DestroyClients()
	s.scene.Tree().Node().Destroy()
	s.cursorMgr.Destroy()
	s.layout.Destroy()
	s.display.Destroy()
}

// Stop terminates the display loop. Safe from any goroutine via the
// wayland event source.
func (s *Server) Stop() {
	s.display.Terminate()
}

// --- output plumbing ---

func (s *Server) handleNewOutput(output wlroots.Output) {
	output.InitRender(s.allocator, s.renderer)

	state := wlroots.NewOutputState()
	state.StateInit()
	state.StateSetEnabled(true)
	mode, err := output.PrefferedMode()
	width, height, refresh := 0, 0, 0
	if err == nil {
		state.SetMode(mode)
		width, height, refresh = mode.Width(), mode.Height(), mode.RefreshRate()
	}
	output.CommitState(state)
	state.Finish()

	output.OnFrame(s.handleOutputFrame)
	output.OnRequestState(func(output wlroots.Output, state wlroots.OutputState) {
		output.CommitState(state)
	})
	output.OnDestroy(s.handleOutputDestroy)

	lOutput := s.layout.AddOutputAuto(output)
	sceneOutput := s.scene.NewOutput(output)
	s.sceneLayout.AddOutput(lOutput, sceneOutput)

	s.mu.Lock()
	edge := 0
	for _, meta := range s.outputs {
		if right := meta.origin.X + meta.width; right > edge {
			edge = right
		}
	}
	s.outputs[output.Name()] = &outputMeta{
		output: output,
		origin: geom.Point{X: edge},
		width:  width,
	}
	s.mu.Unlock()

	s.poster.Post(core.OutputAddedEvent{
		Name:  output.Name(),
		Mode:  core.Mode{Width: width, Height: height, RefreshMHz: refresh},
		Scale: 1,
	})
}

func (s *Server) handleOutputFrame(output wlroots.Output) {
	// The scene graph tracks damage itself; commit renders if needed.
	sOut, err := s.scene.SceneOutput(output)
	if err != nil {
		return
	}
	sOut.Commit()
	sOut.SendFrameDone(time.Now())
	s.poster.Post(core.FrameDoneEvent{Output: output.Name()})
}

func (s *Server) handleOutputDestroy(output wlroots.Output) {
	s.mu.Lock()
	delete(s.outputs, output.Name())
	s.mu.Unlock()
	s.poster.Post(core.OutputRemovedEvent{Name: output.Name()})
}

// --- xdg-shell plumbing ---

func (s *Server) handleNewXDGSurface(xdgSurface wlroots.XDGSurface) {
	if xdgSurface.Role() == wlroots.XDGSurfaceRolePopup {
		parent := xdgSurface.Popup().Parent()
		if parent.Nil() {
			logger.Warn("popup without parent surface")
			return
		}
		xdgSurface.SetData(parent.XDGSurface().SceneTree().NewXDGSurface(xdgSurface))
		return
	}
	if xdgSurface.Role() != wlroots.XDGSurfaceRoleTopLevel {
		return
	}

	xdgSurface.SetData(s.scene.Tree().NewXDGSurface(xdgSurface.TopLevel().Base()))

	w := &window{
		id:       core.WindowID(s.nextWindowID.Add(1)),
		surface:  core.SurfaceID(s.nextSurfaceID.Add(1)),
		toplevel: xdgSurface.TopLevel(),
		xdg:      xdgSurface,
	}

	xdgSurface.OnMap(func(xdgSurface wlroots.XDGSurface) { s.handleMap(w) })
	xdgSurface.OnUnmap(func(xdgSurface wlroots.XDGSurface) { s.handleUnmap(w) })
	xdgSurface.OnDestroy(func(xdgSurface wlroots.XDGSurface) { s.handleDestroy(w) })

	toplevel := xdgSurface.TopLevel()
	toplevel.OnRequestMove(func(client wlroots.SeatClient, serial uint32) {
		s.poster.Post(core.InteractiveBeginEvent{Seat: s.seatName, Window: w.id})
	})
	toplevel.OnRequestResize(func(client wlroots.SeatClient, serial uint32, edges wlroots.Edges) {
		s.poster.Post(core.InteractiveBeginEvent{
			Seat: s.seatName, Window: w.id, Resize: true, Edges: convertEdges(edges),
		})
	})
}

func (s *Server) handleMap(w *window) {
	s.mu.Lock()
	s.windows[w.id] = w
	s.bySurface[w.surface] = w
	s.mu.Unlock()

	geo := w.xdg.Geometry()
	s.poster.Post(core.WindowMappedEvent{
		ID:      w.id,
		Surface: w.surface,
		AppID:   w.toplevel.AppID(),
		Title:   w.toplevel.Title(),
		Width:   geo.Width,
		Height:  geo.Height,
		Role:    core.RoleToplevel,
	})
	// The first buffer is already attached by the time map fires.
	s.poster.Post(core.SurfaceCommitEvent{
		Surface: w.surface,
		Buffer:  core.BufferHandle(s.nextToken.Add(1)),
		Width:   geo.Width,
		Height:  geo.Height,
	})
}

func (s *Server) handleUnmap(w *window) {
	s.poster.Post(core.WindowUnmappedEvent{ID: w.id})
}

func (s *Server) handleDestroy(w *window) {
	s.mu.Lock()
	delete(s.windows, w.id)
	delete(s.bySurface, w.surface)
	s.mu.Unlock()
}

// --- input plumbing ---

func (s *Server) handleNewInput(dev wlroots.InputDevice) {
	switch dev.Type() {
	case wlroots.InputDeviceTypePointer:
		s.cursor.AttachInputDevice(dev)
	case wlroots.InputDeviceTypeKeyboard:
		s.handleNewKeyboard(dev)
	}

	caps := wlroots.SeatCapabilityPointer
	s.mu.Lock()
	if len(s.keyboards) > 0 {
		caps |= wlroots.SeatCapabilityKeyboard
	}
	s.mu.Unlock()
	s.seat.SetCapabilities(caps)
}

func (s *Server) handleNewKeyboard(dev wlroots.InputDevice) {
	keyboard := dev.Keyboard()

	context := xkb.NewContext(xkb.KeySymFlagNoFlags)
	keymap := context.KeyMap()
	keyboard.SetKeymap(keymap)
	keymap.Destroy()
	context.Destroy()
	keyboard.SetRepeatInfo(25, 600)

	keyboard.OnModifiers(func(keyboard wlroots.Keyboard) {
		s.seat.SetKeyboard(dev)
		s.seat.NotifyKeyboardModifiers(keyboard)
	})
	keyboard.OnKey(func(keyboard wlroots.Keyboard, t uint32, keyCode uint32, updateState bool, state wlroots.KeyState) {
		s.seat.SetKeyboard(dev)
		syms := keyboard.XKBState().Syms(xkb.KeyCode(keyCode + 8))
		var sym core.Keysym
		if len(syms) > 0 {
			sym = core.Keysym(syms[0])
		}
		s.poster.Post(core.KeyEvent{
			Seat:    s.seatName,
			Time:    t,
			Keycode: keyCode,
			Sym:     sym,
			Mods:    convertModifiers(keyboard.Modifiers()),
			Pressed: state == wlroots.KeyStatePressed,
		})
	})

	s.seat.SetKeyboard(dev)
	s.mu.Lock()
	s.keyboards = append(s.keyboards, keyboard)
	s.mu.Unlock()
}

func (s *Server) handleCursorMotion(dev wlroots.InputDevice, t uint32, dx, dy float64) {
	s.cursor.Move(dev, dx, dy)
	s.postCursorPos(t)
}

func (s *Server) handleCursorMotionAbsolute(dev wlroots.InputDevice, t uint32, x, y float64) {
	s.cursor.WarpAbsolute(dev, x, y)
	s.postCursorPos(t)
}

func (s *Server) postCursorPos(t uint32) {
	s.poster.Post(core.PointerMotionEvent{
		Seat: s.seatName, Time: t, X: s.cursor.X(), Y: s.cursor.Y(),
	})
}

func (s *Server) handleCursorButton(_ wlroots.InputDevice, t uint32, button uint32, state wlroots.ButtonState) {
	s.poster.Post(core.PointerButtonEvent{
		Seat: s.seatName, Time: t, Button: button,
		Pressed: state != wlroots.ButtonStateReleased,
	})
}

func (s *Server) handleCursorAxis(_ wlroots.InputDevice, t uint32, source wlroots.AxisSource, orientation wlroots.AxisOrientation, delta float64, deltaDiscrete int32) {
	s.poster.Post(core.PointerAxisEvent{
		Seat: s.seatName, Time: t,
		Horizontal: orientation == wlroots.AxisOrientationHorizontal,
		Delta:      delta,
	})
}

func (s *Server) handleCursorFrame() {
	s.seat.NotifyPointerFrame()
}

func (s *Server) handleSetCursorRequest(client wlroots.SeatClient, surface wlroots.Surface, _ uint32, hotspotX, hotspotY int32) {
	if s.seat.PointerState().FocusedClient() == client {
		s.cursor.SetSurface(surface, hotspotX, hotspotY)
	}
}

// --- core.RenderBackend ---

// ImportBuffer is a formality for the scene graph, which references client
// buffers directly; the token only needs to be non-zero and stable.
func (s *Server) ImportBuffer(buf core.BufferHandle) (core.BufferToken, error) {
	return core.BufferToken(buf), nil
}

// Compose applies the core's window placement onto the scene graph. The
// actual pixel work happens in the per-output frame handler.
func (s *Server) Compose(output string, windows []core.FrameWindow) error {
	s.mu.Lock()
	meta, ok := s.outputs[output]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown output %q", output)
	}

	origin := meta.origin
	for _, fw := range windows {
		s.mu.Lock()
		w, ok := s.windows[fw.Window]
		s.mu.Unlock()
		if !ok {
			continue
		}
		node := w.toplevel.Base().SceneTree().Node()
		node.SetPosition(float64(origin.X+fw.Bounds.X), float64(origin.Y+fw.Bounds.Y))
		node.RaiseToTop()
	}
	return nil
}

// HasVSync is true: per-output frame signals come from the hardware via
// the scene output commit path.
func (s *Server) HasVSync() bool { return true }

// --- core.SurfaceEvents ---

func (s *Server) surfaceFor(id core.SurfaceID) (wlroots.Surface, bool) {
	s.mu.Lock()
	w, ok := s.bySurface[id]
	s.mu.Unlock()
	if !ok {
		return wlroots.Surface{}, false
	}
	return w.xdg.Surface(), true
}

func (s *Server) PointerEnter(id core.SurfaceID, sx, sy float64) {
	if surface, ok := s.surfaceFor(id); ok {
		s.seat.NotifyPointerEnter(surface, sx, sy)
	}
}

func (s *Server) PointerLeave(id core.SurfaceID) {
	s.seat.ClearPointerFocus()
	s.cursor.SetXCursor(s.cursorMgr, "default")
}

func (s *Server) PointerMotion(id core.SurfaceID, t uint32, sx, sy float64) {
	if surface, ok := s.surfaceFor(id); ok {
		s.seat.NotifyPointerEnter(surface, sx, sy)
		s.seat.NotifyPointerMotion(t, sx, sy)
	}
}

func (s *Server) PointerButton(id core.SurfaceID, t uint32, button uint32, pressed bool) {
	state := wlroots.ButtonStateReleased
	if pressed {
		state = wlroots.ButtonStatePressed
	}
	s.seat.NotifyPointerButton(t, button, state)
}

func (s *Server) PointerAxis(id core.SurfaceID, t uint32, horizontal bool, delta float64) {
	orientation := wlroots.AxisOrientationVertical
	if horizontal {
		orientation = wlroots.AxisOrientationHorizontal
	}
	s.seat.NotifyPointerAxis(t, orientation, delta, int32(delta), wlroots.AxisSourceWheel)
}

func (s *Server) KeyboardEnter(id core.SurfaceID) {
	s.mu.Lock()
	w, ok := s.bySurface[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	w.toplevel.SetActivated(true)
	s.seat.NotifyKeyboardEnter(w.xdg.Surface(), s.seat.Keyboard())
}

func (s *Server) KeyboardLeave(id core.SurfaceID) {
	s.mu.Lock()
	w, ok := s.bySurface[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	w.toplevel.SetActivated(false)
}

func (s *Server) KeyboardKey(id core.SurfaceID, t uint32, keycode uint32, pressed bool) {
	state := wlroots.KeyStateReleased
	if pressed {
		state = wlroots.KeyStatePressed
	}
	s.seat.NotifyKeyboardKey(t, keycode, state)
}

func convertEdges(edges wlroots.Edges) core.Edges {
	var out core.Edges
	if edges&wlroots.EdgeTop != 0 {
		out |= core.EdgeTop
	}
	if edges&wlroots.EdgeBottom != 0 {
		out |= core.EdgeBottom
	}
	if edges&wlroots.EdgeLeft != 0 {
		out |= core.EdgeLeft
	}
	if edges&wlroots.EdgeRight != 0 {
		out |= core.EdgeRight
	}
	return out
}

func convertModifiers(mods wlroots.KeyboardModifier) core.ModMask {
	var out core.ModMask
	if mods&wlroots.KeyboardModifierShift != 0 {
		out |= core.ModShift
	}
	if mods&wlroots.KeyboardModifierCtrl != 0 {
		out |= core.ModCtrl
	}
	if mods&wlroots.KeyboardModifierAlt != 0 {
		out |= core.ModAlt
	}
	if mods&wlroots.KeyboardModifierLogo != 0 {
		out |= core.ModLogo
	}
	return out
}
