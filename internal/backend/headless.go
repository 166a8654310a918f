// Package backend provides the rendering and display backends. The
// headless backend serves tests and CI; the wlroots backend drives real
// hardware.
package backend

import (
	"sync"

	"github.com/loomwm/loom/internal/core"
)

// HeadlessFrame is one recorded compose.
type HeadlessFrame struct {
	Output  string
	Windows []core.FrameWindow
}

// Headless is a render backend with no display attached. Composes are
// recorded, never drawn; frame pacing comes from the loop timer since there
// is no hardware vsync signal.
type Headless struct {
	mu     sync.Mutex
	frames []HeadlessFrame
	nextTk core.BufferToken
}

func NewHeadless() *Headless {
	return &Headless{}
}

func (h *Headless) ImportBuffer(buf core.BufferHandle) (core.BufferToken, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextTk++
	return h.nextTk, nil
}

func (h *Headless) Compose(output string, windows []core.FrameWindow) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	snapshot := make([]core.FrameWindow, len(windows))
	copy(snapshot, windows)
	h.frames = append(h.frames, HeadlessFrame{Output: output, Windows: snapshot})
	return nil
}

func (h *Headless) HasVSync() bool { return false }

// Frames returns the recorded composes.
func (h *Headless) Frames() []HeadlessFrame {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HeadlessFrame, len(h.frames))
	copy(out, h.frames)
	return out
}

// NullEvents discards every surface event. Used with the headless backend,
// which has no clients to deliver to.
type NullEvents struct{}

func (NullEvents) PointerEnter(core.SurfaceID, float64, float64)        {}
func (NullEvents) PointerLeave(core.SurfaceID)                          {}
func (NullEvents) PointerMotion(core.SurfaceID, uint32, float64, float64) {}
func (NullEvents) PointerButton(core.SurfaceID, uint32, uint32, bool)   {}
func (NullEvents) PointerAxis(core.SurfaceID, uint32, bool, float64)    {}
func (NullEvents) KeyboardEnter(core.SurfaceID)                         {}
func (NullEvents) KeyboardLeave(core.SurfaceID)                         {}
func (NullEvents) KeyboardKey(core.SurfaceID, uint32, uint32, bool)     {}
