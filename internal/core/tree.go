package core

import (
	"github.com/loomwm/loom/internal/geom"
	"github.com/loomwm/loom/internal/logger"
)

// RestackDirection selects how Restack moves a window within its output's
// stack.
type RestackDirection int

const (
	RestackTop RestackDirection = iota
	RestackBottom
	RestackUp
	RestackDown
)

// Tree owns every surface and window and the per-output stacking order.
// Stacks are stored bottom-to-top; a window's stacking index is its slice
// position, which keeps indices unique by construction.
type Tree struct {
	reg      *Registry
	windows  map[WindowID]*Window
	surfaces map[SurfaceID]*Surface
	stacks   map[string][]WindowID
	zones    []Zone
	rules    PlacementRules

	// onDamage reports global-space damage per affected output. Wired to
	// the frame scheduler by the compositor.
	onDamage func(output string, r geom.Rect)

	// onUnmap runs for every window leaving the tree, before its state is
	// discarded. The compositor uses it to clear seat focus and grabs.
	onUnmap func(w *Window)
}

func NewTree(reg *Registry) *Tree {
	return &Tree{
		reg:      reg,
		windows:  make(map[WindowID]*Window),
		surfaces: make(map[SurfaceID]*Surface),
		stacks:   make(map[string][]WindowID),
	}
}

func (t *Tree) OnDamage(fn func(output string, r geom.Rect)) { t.onDamage = fn }
func (t *Tree) OnUnmap(fn func(w *Window))                   { t.onUnmap = fn }

// SetRules swaps the cached placement rule table wholesale.
func (t *Tree) SetRules(rules PlacementRules) { t.rules = rules }

// SetZones replaces the zone list wholesale.
func (t *Tree) SetZones(zones []Zone) { t.zones = zones }

func (t *Tree) ZoneByName(name string) (Zone, bool) {
	for _, z := range t.zones {
		if z.Name == name {
			return z, true
		}
	}
	return Zone{}, false
}

func (t *Tree) defaultZone() (Zone, bool) {
	for _, z := range t.zones {
		if z.Default {
			return z, true
		}
	}
	return Zone{}, false
}

func (t *Tree) Window(id WindowID) *Window    { return t.windows[id] }
func (t *Tree) Surface(id SurfaceID) *Surface { return t.surfaces[id] }

// AddWindow registers a window and its root surface without mapping it.
func (t *Tree) AddWindow(w *Window) {
	t.windows[w.ID] = w
	if w.Root != nil {
		w.Root.window = w.ID
		t.surfaces[w.Root.ID] = w.Root
	}
	if w.Parent != 0 {
		if parent := t.windows[w.Parent]; parent != nil {
			parent.Popups = append(parent.Popups, w.ID)
		}
	}
}

// Map places a window and inserts it at the top of its output's stack.
// Placement consults the cached policy rules; without a match the window
// goes to the default zone if one is set, otherwise it is centered on the
// output under pointer. A missing or disabled target output falls back to
// the first enabled output; with no outputs at all the window stays at the
// origin on an empty stack and becomes visible once an output appears.
func (t *Tree) Map(id WindowID, outputHint string, pointer geom.Point) Placement {
	w := t.windows[id]
	if w == nil || w.Mapped {
		return Placement{}
	}

	p := t.resolvePlacement(w, outputHint, pointer)
	w.Pos = p.Pos
	w.Output = p.Output
	w.Mapped = true
	t.stacks[p.Output] = append(t.stacks[p.Output], id)
	t.damageWindow(w)
	logger.Debug("window mapped", "window", id, "app", w.AppID,
		"output", p.Output, "x", p.Pos.X, "y", p.Pos.Y)
	return p
}

func (t *Tree) resolvePlacement(w *Window, outputHint string, pointer geom.Point) Placement {
	p := Placement{Focus: w.FocusEligible}

	var dir PlacementDirective
	matched := false
	if t.rules != nil {
		dir, matched = t.rules.Match(w.AppID, w.Title, w.Role)
	}
	if !matched {
		if z, ok := t.defaultZone(); ok {
			dir = PlacementDirective{Zone: z.Name}
			matched = true
		}
	}

	// Pick the output first so that centering and fallbacks have a target.
	target := dir.Output
	if target == "" {
		target = outputHint
	}
	out := t.reg.Get(target)
	if out == nil || !out.Enabled {
		if target != "" && out == nil {
			logger.Warn("placement on unknown output, falling back", "output", target)
		}
		out = t.reg.At(geom.Point{X: pointer.X, Y: pointer.Y})
	}
	if out == nil {
		out = t.reg.FirstEnabled()
	}
	if out == nil {
		// No enabled outputs; keep the window parked at the origin.
		return p
	}
	p.Output = out.Name

	switch {
	case matched && dir.Zone != "":
		if z, ok := t.ZoneByName(dir.Zone); ok {
			p.Pos = geom.Point{
				X: z.Rect.X + (z.Rect.W-w.Width)/2,
				Y: z.Rect.Y + (z.Rect.H-w.Height)/2,
			}
			if zoneOut := t.reg.At(z.Rect.Center()); zoneOut != nil {
				p.Output = zoneOut.Name
			}
		} else {
			logger.Warn("placement rule targets unknown zone", "zone", dir.Zone)
			p.Pos = centerOn(out, w)
		}
	case matched && dir.Pos != nil:
		p.Pos = *dir.Pos
	default:
		p.Pos = centerOn(out, w)
	}

	if matched && dir.Focus != nil {
		p.Focus = *dir.Focus
	}
	return p
}

func centerOn(out *Output, w *Window) geom.Point {
	b := out.Bounds()
	return geom.Point{X: b.X + (b.W-w.Width)/2, Y: b.Y + (b.H-w.Height)/2}
}

// Unmap removes a window from its stack and cascades: child popups are
// unmapped first, the onUnmap hook clears focus and grabs, and the vacated
// region is damaged so the next frame composes without the window.
func (t *Tree) Unmap(id WindowID) {
	w := t.windows[id]
	if w == nil {
		return
	}
	for _, popup := range w.Popups {
		t.Unmap(popup)
	}
	w.Popups = nil
	if !w.Mapped {
		return
	}

	if t.onUnmap != nil {
		t.onUnmap(w)
	}
	t.damageWindow(w)
	t.removeFromStack(w)
	w.Mapped = false
	logger.Debug("window unmapped", "window", id, "app", w.AppID)
}

// Remove drops a window and its surfaces entirely (client destroyed it or
// the client connection closed). Unmaps first if needed.
func (t *Tree) Remove(id WindowID) {
	w := t.windows[id]
	if w == nil {
		return
	}
	t.Unmap(id)
	if w.Parent != 0 {
		if parent := t.windows[w.Parent]; parent != nil {
			for i, pid := range parent.Popups {
				if pid == id {
					parent.Popups = append(parent.Popups[:i], parent.Popups[i+1:]...)
					break
				}
			}
		}
	}
	if w.Root != nil {
		delete(t.surfaces, w.Root.ID)
	}
	delete(t.windows, id)
}

func (t *Tree) removeFromStack(w *Window) {
	stack := t.stacks[w.Output]
	for i, id := range stack {
		if id == w.ID {
			t.stacks[w.Output] = append(stack[:i], stack[i+1:]...)
			return
		}
	}
}

// Restack moves a window within its output's stack. Slice positions are
// the stacking indices, so collisions cannot occur.
func (t *Tree) Restack(id WindowID, dir RestackDirection) {
	w := t.windows[id]
	if w == nil || !w.Mapped {
		return
	}
	stack := t.stacks[w.Output]
	idx := -1
	for i, sid := range stack {
		if sid == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	switch dir {
	case RestackTop:
		stack = append(append(stack[:idx], stack[idx+1:]...), id)
	case RestackBottom:
		stack = append([]WindowID{id}, append(stack[:idx], stack[idx+1:]...)...)
	case RestackUp:
		if idx < len(stack)-1 {
			stack[idx], stack[idx+1] = stack[idx+1], stack[idx]
		}
	case RestackDown:
		if idx > 0 {
			stack[idx], stack[idx-1] = stack[idx-1], stack[idx]
		}
	}
	t.stacks[w.Output] = stack
	t.damageWindow(w)
}

// StackIndex returns the window's position in its output stack, bottom
// being zero, or -1 when unmapped.
func (t *Tree) StackIndex(id WindowID) int {
	w := t.windows[id]
	if w == nil || !w.Mapped {
		return -1
	}
	for i, sid := range t.stacks[w.Output] {
		if sid == id {
			return i
		}
	}
	return -1
}

// WindowsOn returns the mapped windows on an output, top to bottom.
func (t *Tree) WindowsOn(output string) []*Window {
	stack := t.stacks[output]
	out := make([]*Window, 0, len(stack))
	for i := len(stack) - 1; i >= 0; i-- {
		if w := t.windows[stack[i]]; w != nil {
			out = append(out, w)
		}
	}
	return out
}

// BottomToTop returns the mapped windows on an output in composition
// order.
func (t *Tree) BottomToTop(output string) []*Window {
	stack := t.stacks[output]
	out := make([]*Window, 0, len(stack))
	for _, id := range stack {
		if w := t.windows[id]; w != nil {
			out = append(out, w)
		}
	}
	return out
}

// MoveWindow repositions a mapped window, damaging both the vacated and
// the occupied regions.
func (t *Tree) MoveWindow(id WindowID, pos geom.Point) {
	w := t.windows[id]
	if w == nil {
		return
	}
	t.damageWindow(w)
	w.Pos = pos
	t.damageWindow(w)
}

// MoveToOutput re-homes a window onto another output, used on hotplug
// removal. The window keeps its stack position relative to other movers.
func (t *Tree) MoveToOutput(id WindowID, dest *Output) {
	w := t.windows[id]
	if w == nil || !w.Mapped || w.Output == dest.Name {
		return
	}
	t.removeFromStack(w)
	w.Output = dest.Name
	w.Pos = centerOn(dest, w)
	t.stacks[dest.Name] = append(t.stacks[dest.Name], id)
	// Full-output damage on the destination, per the re-home contract.
	if t.onDamage != nil {
		t.onDamage(dest.Name, dest.Bounds())
	}
}

// MarkDamaged accumulates surface-local damage and reports it, clipped, to
// every output the owning window currently intersects.
func (t *Tree) MarkDamaged(id SurfaceID, region geom.Region) {
	s := t.surfaces[id]
	if s == nil {
		return
	}
	s.Damage.AddRegion(region)
	w := t.windows[s.window]
	if w == nil || !w.Mapped {
		return
	}
	for _, r := range region.Rects() {
		t.reportDamage(w, r.Translate(w.Pos.X, w.Pos.Y))
	}
}

func (t *Tree) damageWindow(w *Window) {
	t.reportDamage(w, w.Bounds())
}

// reportDamage fans a global-space rectangle out to each intersecting
// enabled output.
func (t *Tree) reportDamage(w *Window, r geom.Rect) {
	if t.onDamage == nil || r.Empty() {
		return
	}
	for _, out := range t.reg.All() {
		if !out.Enabled {
			continue
		}
		if clipped := r.Intersect(out.Bounds()); !clipped.Empty() {
			t.onDamage(out.Name, clipped)
		}
	}
}

// AllMapped returns every mapped window in no particular order.
func (t *Tree) AllMapped() []*Window {
	var out []*Window
	for _, w := range t.windows {
		if w.Mapped {
			out = append(out, w)
		}
	}
	return out
}

// FindByApp returns the topmost mapped window with the given app id.
func (t *Tree) FindByApp(appID string) *Window {
	for _, out := range t.reg.All() {
		for _, w := range t.WindowsOn(out.Name) {
			if w.AppID == appID {
				return w
			}
		}
	}
	return nil
}

// Infos returns the read-only view of every mapped window, top to bottom
// per output in registry order.
func (t *Tree) Infos(focused WindowID) []WindowInfo {
	var infos []WindowInfo
	for _, out := range t.reg.All() {
		for _, w := range t.WindowsOn(out.Name) {
			infos = append(infos, w.info(w.ID == focused))
		}
	}
	return infos
}
