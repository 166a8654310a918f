package core

import (
	"github.com/loomwm/loom/internal/geom"
	"github.com/loomwm/loom/internal/logger"
)

// Output is one display sink. Only the Registry mutates outputs, in
// response to backend hotplug events.
type Output struct {
	Name    string
	Mode    Mode
	Pos     geom.Point
	Scale   int
	Enabled bool
}

// Bounds returns the output's rectangle in global layout coordinates.
func (o *Output) Bounds() geom.Rect {
	return geom.Rect{X: o.Pos.X, Y: o.Pos.Y, W: o.Mode.Width, H: o.Mode.Height}
}

func (o *Output) Info() OutputInfo {
	return OutputInfo{
		Name:       o.Name,
		X:          o.Pos.X,
		Y:          o.Pos.Y,
		Width:      o.Mode.Width,
		Height:     o.Mode.Height,
		RefreshMHz: o.Mode.RefreshMHz,
		Scale:      o.Scale,
		Enabled:    o.Enabled,
	}
}

// Registry holds the authoritative ordered list of outputs and their
// positions in global space.
type Registry struct {
	outputs []*Output
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add inserts an output. When pos is nil the output is packed immediately
// right of the rightmost existing output.
func (r *Registry) Add(name string, mode Mode, scale int, pos *geom.Point) *Output {
	if existing := r.Get(name); existing != nil {
		logger.Warn("output already registered, replacing", "output", name)
		r.Remove(name)
	}
	if scale < 1 {
		scale = 1
	}
	out := &Output{Name: name, Mode: mode, Scale: scale, Enabled: true}
	if pos != nil {
		out.Pos = *pos
	} else {
		out.Pos = r.packRight()
	}
	r.outputs = append(r.outputs, out)
	logger.Info("output added", "output", name, "x", out.Pos.X, "y", out.Pos.Y,
		"mode", mode.Width, "height", mode.Height)
	return out
}

// packRight returns the position immediately right of the rightmost
// existing output, or the origin for the first one.
func (r *Registry) packRight() geom.Point {
	edge := 0
	for _, o := range r.outputs {
		if right := o.Pos.X + o.Mode.Width; right > edge {
			edge = right
		}
	}
	return geom.Point{X: edge, Y: 0}
}

// Remove deletes an output and returns it, or nil if unknown.
func (r *Registry) Remove(name string) *Output {
	for i, o := range r.outputs {
		if o.Name == name {
			r.outputs = append(r.outputs[:i], r.outputs[i+1:]...)
			return o
		}
	}
	return nil
}

func (r *Registry) Get(name string) *Output {
	for _, o := range r.outputs {
		if o.Name == name {
			return o
		}
	}
	return nil
}

// All returns outputs in registry (insertion) order.
func (r *Registry) All() []*Output {
	return r.outputs
}

// FirstEnabled is the placement fallback target when a requested output is
// missing or disabled.
func (r *Registry) FirstEnabled() *Output {
	for _, o := range r.outputs {
		if o.Enabled {
			return o
		}
	}
	return nil
}

// At returns the first enabled output, in registry order, whose bounds
// contain p. Registry order is the documented tie-break for overlapping
// outputs.
func (r *Registry) At(p geom.Point) *Output {
	for _, o := range r.outputs {
		if o.Enabled && o.Bounds().Contains(p) {
			return o
		}
	}
	return nil
}

// NearestTo returns the enabled output whose center is closest to the
// center of rect, excluding the named output. Used to re-home windows when
// their output is unplugged.
func (r *Registry) NearestTo(rect geom.Rect, excluding string) *Output {
	var best *Output
	bestDist := 0
	for _, o := range r.outputs {
		if !o.Enabled || o.Name == excluding {
			continue
		}
		d := o.Bounds().DistanceSq(rect)
		if best == nil || d < bestDist {
			best, bestDist = o, d
		}
	}
	return best
}

// Infos returns the read-only view of every output.
func (r *Registry) Infos() []OutputInfo {
	infos := make([]OutputInfo, 0, len(r.outputs))
	for _, o := range r.outputs {
		infos = append(infos, o.Info())
	}
	return infos
}
