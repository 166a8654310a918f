package core

import (
	"os"
	"os/exec"
	"time"

	"github.com/loomwm/loom/internal/geom"
	"github.com/loomwm/loom/internal/logger"
)

// Options configures a Compositor.
type Options struct {
	// SeatName is the initial seat. More can be added with AddSeat.
	SeatName string

	// SnapshotPath is where the layout snapshot is persisted. Empty
	// disables persistence.
	SnapshotPath string

	// WaylandDisplay and X11Display are exported to spawned clients so
	// they connect back to this compositor.
	WaylandDisplay string
	X11Display     string
}

// Compositor is the context object threaded through the event loop. It owns
// the registry, the tree, the router and the scheduler, and is only ever
// touched from the loop goroutine.
type Compositor struct {
	reg    *Registry
	tree   *Tree
	router *Router
	sched  *Scheduler

	backend RenderBackend
	hooks   PolicyHooks

	opts Options

	// layoutHint remembers snapshot positions by output name, consulted
	// when the backend reports an output without a position preference.
	layoutHint map[string]OutputSnapshot

	// pendingReload is applied between frames, never mid-dispatch.
	pendingReload func(*Compositor)

	// unmapCleared collects seats whose focus a cascading unmap cleared,
	// so refocus happens once, after the cascade.
	unmapCleared []*Seat

	quit    func()
	quitReq bool
}

func NewCompositor(backend RenderBackend, events SurfaceEvents, opts Options) *Compositor {
	if opts.SeatName == "" {
		opts.SeatName = "seat0"
	}
	reg := NewRegistry()
	tree := NewTree(reg)
	router := NewRouter(tree, reg, events)
	sched := NewScheduler(backend)

	c := &Compositor{
		reg:        reg,
		tree:       tree,
		router:     router,
		sched:      sched,
		backend:    backend,
		opts:       opts,
		layoutHint: make(map[string]OutputSnapshot),
	}
	router.AddSeat(NewSeat(opts.SeatName))
	tree.OnDamage(sched.Damage)
	tree.OnUnmap(c.windowLeaving)
	sched.SetSnapshot(c.frameSnapshot)
	return c
}

func (c *Compositor) Registry() *Registry   { return c.reg }
func (c *Compositor) Tree() *Tree           { return c.tree }
func (c *Compositor) Router() *Router       { return c.router }
func (c *Compositor) Scheduler() *Scheduler { return c.sched }

// SetHooks installs the policy hook set. A nil-safe no-op set is used until
// the policy engine is wired.
func (c *Compositor) SetHooks(h PolicyHooks) { c.hooks = h }

// SetPublisher installs the presented-frame tap.
func (c *Compositor) SetPublisher(p FramePublisher) { c.sched.SetPublisher(p) }

// OnQuit installs the callback that stops the loop.
func (c *Compositor) OnQuit(fn func()) { c.quit = fn }

// AddSeat registers an additional seat.
func (c *Compositor) AddSeat(name string) { c.router.AddSeat(NewSeat(name)) }

// Startup restores the persisted layout hint and runs the policy startup
// hook. Called once, on the loop goroutine, before the first event.
func (c *Compositor) Startup() {
	if c.opts.SnapshotPath != "" {
		snap := LoadSnapshot(c.opts.SnapshotPath)
		for _, o := range snap.Outputs {
			c.layoutHint[o.Name] = o
		}
		for _, s := range snap.Seats {
			if seat := c.router.Seat(s.Name); seat != nil {
				seat.PointerX, seat.PointerY = s.PointerX, s.PointerY
			}
		}
	}
	if c.hooks != nil {
		c.hooks.Startup()
	}
}

// Shutdown persists the layout snapshot. Failures are logged, not fatal.
func (c *Compositor) Shutdown() {
	if c.opts.SnapshotPath == "" {
		return
	}
	snap := &LayoutSnapshot{}
	for _, o := range c.reg.All() {
		snap.Outputs = append(snap.Outputs, OutputSnapshot{
			Name:       o.Name,
			X:          o.Pos.X,
			Y:          o.Pos.Y,
			Width:      o.Mode.Width,
			Height:     o.Mode.Height,
			RefreshMHz: o.Mode.RefreshMHz,
			Scale:      o.Scale,
			Enabled:    o.Enabled,
		})
	}
	for _, s := range c.router.Seats() {
		snap.Seats = append(snap.Seats, SeatSnapshot{
			Name: s.Name, PointerX: s.PointerX, PointerY: s.PointerY,
		})
	}
	if err := SaveSnapshot(c.opts.SnapshotPath, snap); err != nil {
		logger.Warn("snapshot save failed", "path", c.opts.SnapshotPath, "error", err)
	}
}

// HandleEvent dispatches one event. This is the single entry point the loop
// calls; every state mutation in the process funnels through here or Tick.
func (c *Compositor) HandleEvent(ev Event) {
	switch e := ev.(type) {
	case KeyEvent:
		c.router.Key(e.Seat, e.Time, e.Keycode, e.Sym, e.Mods, e.Pressed)
	case PointerMotionEvent:
		c.router.PointerMotion(e.Seat, e.Time, e.X, e.Y)
	case PointerButtonEvent:
		c.router.PointerButton(e.Seat, e.Time, e.Button, e.Pressed)
	case PointerAxisEvent:
		c.router.PointerAxis(e.Seat, e.Time, e.Horizontal, e.Delta)
	case TouchEvent:
		c.router.Touch(e.Seat, e.Time, e.X, e.Y, e.Down)
	case OutputAddedEvent:
		c.outputAdded(e)
	case OutputRemovedEvent:
		c.outputRemoved(e.Name)
	case FrameDoneEvent:
		c.sched.FrameDone(e.Output, time.Now())
	case WindowMappedEvent:
		c.windowMapped(e)
	case WindowUnmappedEvent:
		c.windowUnmapped(e.ID)
	case SurfaceCommitEvent:
		c.surfaceCommit(e)
	case InteractiveBeginEvent:
		c.router.BeginInteractive(e.Seat, e.Window, e.Resize, e.Edges)
	case ConfigChangedEvent:
		// The actual reload closure is posted by the config watcher via
		// ScheduleReload; this event alone is informational.
		logger.Debug("config change observed")
	default:
		logger.Warn("unhandled event", "type", ev)
	}
}

// Tick runs the periodic work: deferred config reloads, the policy tick and
// the scheduler's timer-driven outputs. Reloads apply here so they land
// between frames, never mid-dispatch.
func (c *Compositor) Tick(now time.Time) {
	if fn := c.pendingReload; fn != nil {
		c.pendingReload = nil
		fn(c)
	}
	if c.hooks != nil {
		c.hooks.Tick(now)
	}
	c.sched.Tick(now)
}

// ScheduleReload queues a reload closure for the next tick. A second call
// before the tick replaces the first; only the latest config matters.
func (c *Compositor) ScheduleReload(fn func(*Compositor)) { c.pendingReload = fn }

func (c *Compositor) outputAdded(e OutputAddedEvent) {
	pos := e.Pos
	if pos == nil {
		if hint, ok := c.layoutHint[e.Name]; ok {
			pos = &geom.Point{X: hint.X, Y: hint.Y}
		}
	}
	out := c.reg.Add(e.Name, e.Mode, e.Scale, pos)
	c.sched.AddOutput(out.Name)
	c.sched.Damage(out.Name, out.Bounds())
	c.rehomeOrphans(out)
	if c.hooks != nil {
		c.hooks.OutputsChanged(c.reg.Infos())
	}
}

// rehomeOrphans moves windows stranded on dead outputs (or parked before any
// output existed) onto the newly added one.
func (c *Compositor) rehomeOrphans(out *Output) {
	for _, w := range c.tree.AllMapped() {
		live := c.reg.Get(w.Output)
		if live == nil || !live.Enabled {
			c.tree.MoveToOutput(w.ID, out)
		}
	}
}

func (c *Compositor) outputRemoved(name string) {
	out := c.reg.Remove(name)
	if out == nil {
		return
	}
	c.sched.RemoveOutput(name)
	movers := c.tree.BottomToTop(name)
	for _, w := range movers {
		dest := c.reg.NearestTo(w.Bounds(), name)
		if dest == nil {
			// No outputs left; the window stays parked and is re-homed on
			// the next hotplug.
			continue
		}
		c.tree.MoveToOutput(w.ID, dest)
	}
	logger.Info("output removed", "output", name, "rehomed", len(movers))
	if c.hooks != nil {
		c.hooks.OutputsChanged(c.reg.Infos())
	}
}

func (c *Compositor) windowMapped(e WindowMappedEvent) {
	w := &Window{
		ID:    e.ID,
		AppID: e.AppID,
		Title: e.Title,
		Role:  e.Role,
		Root: &Surface{
			ID:     e.Surface,
			Role:   e.Role,
			Width:  e.Width,
			Height: e.Height,
		},
		Width:         e.Width,
		Height:        e.Height,
		Parent:        e.Parent,
		FocusEligible: e.Role == RoleToplevel,
	}
	c.tree.AddWindow(w)

	pointer := geom.Point{}
	seat := c.router.PrimarySeat()
	if seat != nil {
		pointer = seat.PointerPos()
	}
	placement := c.tree.Map(e.ID, e.OutputHint, pointer)
	if placement.Focus && seat != nil {
		c.router.FocusWindow(seat, w)
	}
	if c.hooks != nil {
		c.hooks.WindowMapped(w.info(seat != nil && seat.Focus() == w.ID))
	}
}

func (c *Compositor) windowUnmapped(id WindowID) {
	c.unmapCleared = c.unmapCleared[:0]
	output := ""
	if w := c.tree.Window(id); w != nil {
		output = w.Output
	}
	c.tree.Unmap(id)
	c.tree.Remove(id)

	// Refocus once per affected seat: topmost remaining window on the same
	// output, nothing if the output is empty.
	for _, seat := range c.unmapCleared {
		for _, w := range c.tree.WindowsOn(output) {
			if w.FocusEligible {
				c.router.FocusWindow(seat, w)
				break
			}
		}
	}
	c.unmapCleared = c.unmapCleared[:0]
}

// windowLeaving is the tree's unmap hook: clear seat relations before the
// window's state is discarded, and tell policy.
func (c *Compositor) windowLeaving(w *Window) {
	cleared := c.router.ClearFocusOf(w.ID)
	c.unmapCleared = append(c.unmapCleared, cleared...)
	if c.hooks != nil {
		c.hooks.WindowUnmapped(w.info(false))
	}
}

func (c *Compositor) surfaceCommit(e SurfaceCommitEvent) {
	s := c.tree.Surface(e.Surface)
	if s == nil {
		logger.Debug("commit for unknown surface", "surface", e.Surface)
		return
	}
	token, err := c.backend.ImportBuffer(e.Buffer)
	if err != nil {
		// Protocol-level client error: keep the previous buffer visible.
		logger.Warn("buffer import failed", "surface", e.Surface, "error", err)
		return
	}
	s.Handle = e.Buffer
	s.Token = token

	resized := e.Width != s.Width || e.Height != s.Height
	s.Width, s.Height = e.Width, e.Height
	if w := c.tree.Window(s.window); w != nil && resized {
		c.tree.MoveWindow(w.ID, w.Pos) // damage old bounds
		w.Width, w.Height = e.Width, e.Height
		c.tree.MoveWindow(w.ID, w.Pos) // damage new bounds
	}

	var region geom.Region
	if len(e.Damage) == 0 {
		// No damage listed means the whole surface changed.
		region.Add(geom.Rect{W: s.Width, H: s.Height})
	} else {
		for _, r := range e.Damage {
			region.Add(r)
		}
	}
	c.tree.MarkDamaged(e.Surface, region)
}

// frameSnapshot builds the bottom-to-top compose list for an output in
// output-local coordinates. Surface damage is consumed here.
func (c *Compositor) frameSnapshot(output string) []FrameWindow {
	out := c.reg.Get(output)
	if out == nil {
		return nil
	}
	origin := out.Pos
	var frame []FrameWindow
	for _, w := range c.tree.BottomToTop(output) {
		if w.Root == nil || w.Root.Token == 0 {
			continue
		}
		fw := FrameWindow{
			Window: w.ID,
			Buffer: w.Root.Token,
			Bounds: w.Bounds().Translate(-origin.X, -origin.Y),
		}
		for _, r := range w.Root.Damage.Rects() {
			fw.Damage = append(fw.Damage, r.Translate(w.Pos.X-origin.X, w.Pos.Y-origin.Y))
		}
		w.Root.Damage.Reset()
		frame = append(frame, fw)
	}
	return frame
}

// --- host API exposed to the policy layer and the control channels ---

// Spawn launches a client with the compositor's sockets in its environment.
func (c *Compositor) Spawn(command string) {
	if command == "" {
		return
	}
	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Env = os.Environ()
	if c.opts.WaylandDisplay != "" {
		cmd.Env = append(cmd.Env, "WAYLAND_DISPLAY="+c.opts.WaylandDisplay)
	}
	if c.opts.X11Display != "" {
		cmd.Env = append(cmd.Env, "DISPLAY="+c.opts.X11Display)
	}
	if err := cmd.Start(); err != nil {
		logger.Error("spawn failed", "command", command, "error", err)
		return
	}
	logger.Info("spawned", "command", command, "pid", cmd.Process.Pid)
	go func() { _ = cmd.Wait() }()
}

// Quit asks the loop to stop. Idempotent.
func (c *Compositor) Quit() {
	if c.quitReq {
		return
	}
	c.quitReq = true
	logger.Info("quit requested")
	if c.quit != nil {
		c.quit()
	}
}

// FocusWindowID focuses a window by id on the primary seat.
func (c *Compositor) FocusWindowID(id WindowID) bool {
	seat := c.router.PrimarySeat()
	w := c.tree.Window(id)
	if seat == nil || w == nil {
		return false
	}
	c.router.FocusWindow(seat, w)
	return seat.Focus() == id
}

// FocusOrSpawn focuses the topmost window of an app, spawning the command
// when no such window exists.
func (c *Compositor) FocusOrSpawn(appID, command string) {
	if w := c.tree.FindByApp(appID); w != nil {
		if seat := c.router.PrimarySeat(); seat != nil {
			c.router.FocusWindow(seat, w)
		}
		return
	}
	c.Spawn(command)
}

// CycleFocus focuses the bottom-most eligible window on the focused
// output and raises it, giving round-robin cycling since focusing raises.
func (c *Compositor) CycleFocus() {
	seat := c.router.PrimarySeat()
	if seat == nil {
		return
	}
	output := ""
	if cur := c.tree.Window(seat.Focus()); cur != nil {
		output = cur.Output
	} else if out := c.reg.At(seat.PointerPos()); out != nil {
		output = out.Name
	}
	for _, w := range c.tree.BottomToTop(output) {
		if w.FocusEligible {
			c.router.FocusWindow(seat, w)
			return
		}
	}
}

// MoveFocusedToZone centers the focused window in a named zone.
func (c *Compositor) MoveFocusedToZone(zone string) {
	seat := c.router.PrimarySeat()
	if seat == nil {
		return
	}
	w := c.tree.Window(seat.Focus())
	if w == nil {
		return
	}
	z, ok := c.tree.ZoneByName(zone)
	if !ok {
		logger.Warn("unknown zone", "zone", zone)
		return
	}
	pos := geom.Point{
		X: z.Rect.X + (z.Rect.W-w.Width)/2,
		Y: z.Rect.Y + (z.Rect.H-w.Height)/2,
	}
	if out := c.reg.At(z.Rect.Center()); out != nil && out.Name != w.Output {
		c.tree.MoveToOutput(w.ID, out)
	}
	c.tree.MoveWindow(w.ID, pos)
}

// SetZones replaces the zone table.
func (c *Compositor) SetZones(zones []Zone) { c.tree.SetZones(zones) }

// SetBindings replaces the binding table.
func (c *Compositor) SetBindings(bt BindingTable) { c.router.SetBindings(bt) }

// SetRules replaces the placement rule table.
func (c *Compositor) SetRules(rules PlacementRules) { c.tree.SetRules(rules) }

// OutputInfos returns the read-only output list.
func (c *Compositor) OutputInfos() []OutputInfo { return c.reg.Infos() }

// WindowInfos returns the read-only window list, focus per the primary seat.
func (c *Compositor) WindowInfos() []WindowInfo {
	var focused WindowID
	if seat := c.router.PrimarySeat(); seat != nil {
		focused = seat.Focus()
	}
	return c.tree.Infos(focused)
}
