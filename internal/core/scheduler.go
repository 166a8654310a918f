package core

import (
	"time"

	"github.com/loomwm/loom/internal/geom"
	"github.com/loomwm/loom/internal/logger"
)

// frameState is the per-output scheduling state.
type frameState int

const (
	frameIdle frameState = iota
	frameRequested
	framePending
)

const (
	// composeBackoffBase is the first retry delay after a failed compose.
	// Delays double per consecutive failure up to composeBackoffMax.
	composeBackoffBase = 10 * time.Millisecond
	composeBackoffMax  = time.Second
)

// outputFrame tracks one output's damage accumulation and in-flight frame.
type outputFrame struct {
	state    frameState
	damage   geom.Region
	failures int
	retryAt  time.Time
}

// Scheduler coalesces damage into at most one in-flight frame per output.
// Any number of damage reports while a frame is pending produce exactly one
// follow-up compose once the frame-done signal arrives.
type Scheduler struct {
	backend RenderBackend
	outputs map[string]*outputFrame

	// snapshot builds the bottom-to-top window list for an output at
	// compose time. Wired to the compositor's tree walk.
	snapshot func(output string) []FrameWindow

	// onPresented, when set, taps every successfully composed frame.
	onPresented FramePublisher
}

func NewScheduler(backend RenderBackend) *Scheduler {
	return &Scheduler{
		backend: backend,
		outputs: make(map[string]*outputFrame),
	}
}

func (s *Scheduler) SetSnapshot(fn func(output string) []FrameWindow) { s.snapshot = fn }
func (s *Scheduler) SetPublisher(p FramePublisher)                    { s.onPresented = p }

// AddOutput starts scheduling for an output. The initial full-frame compose
// happens on the first damage report.
func (s *Scheduler) AddOutput(name string) {
	if _, ok := s.outputs[name]; !ok {
		s.outputs[name] = &outputFrame{}
	}
}

// RemoveOutput stops scheduling for an output. A frame-done signal arriving
// afterwards for it is ignored.
func (s *Scheduler) RemoveOutput(name string) {
	delete(s.outputs, name)
}

// Damage accumulates a global-space rectangle for an output and requests a
// frame if none is in flight.
func (s *Scheduler) Damage(output string, r geom.Rect) {
	of := s.outputs[output]
	if of == nil || r.Empty() {
		return
	}
	of.damage.Add(r)
	if of.state == frameIdle {
		of.state = frameRequested
		s.compose(output, of, time.Now())
	}
}

// FrameDone handles the per-output presentation signal. In framePending with
// accumulated damage it composes exactly one more frame; without damage the
// output goes idle.
func (s *Scheduler) FrameDone(output string, now time.Time) {
	of := s.outputs[output]
	if of == nil {
		return
	}
	switch of.state {
	case framePending:
		if of.damage.Empty() {
			of.state = frameIdle
			return
		}
		of.state = frameRequested
		s.compose(output, of, now)
	case frameRequested:
		// A retry is owed (previous compose failed); try again if the
		// backoff window has passed.
		s.compose(output, of, now)
	}
}

// Tick drives outputs whose backend has no vsync signal and retries failed
// composes whose backoff has elapsed.
func (s *Scheduler) Tick(now time.Time) {
	for name, of := range s.outputs {
		switch of.state {
		case frameRequested:
			s.compose(name, of, now)
		case framePending:
			if !s.backend.HasVSync() {
				// Synthesize the frame-done signal from the loop timer.
				s.FrameDone(name, now)
			}
		}
	}
}

// Pending reports whether the output has a frame in flight.
func (s *Scheduler) Pending(output string) bool {
	of := s.outputs[output]
	return of != nil && of.state == framePending
}

func (s *Scheduler) compose(output string, of *outputFrame, now time.Time) {
	if of.failures > 0 && now.Before(of.retryAt) {
		return
	}

	var windows []FrameWindow
	if s.snapshot != nil {
		windows = s.snapshot(output)
	}
	if err := s.backend.Compose(output, windows); err != nil {
		of.failures++
		// Clamp the exponent: an unbounded shift overflows the duration
		// after enough consecutive failures.
		backoff := composeBackoffMax
		if shift := of.failures - 1; shift < 7 {
			backoff = composeBackoffBase << shift
		}
		of.retryAt = now.Add(backoff)
		logger.Warn("compose failed", "output", output, "failures", of.failures,
			"retry_in", backoff, "error", err)
		return
	}

	of.failures = 0
	of.damage.Reset()
	of.state = framePending
	if s.onPresented != nil {
		s.publish(output, windows)
	}
}

func (s *Scheduler) publish(output string, windows []FrameWindow) {
	// The tap sees the topmost buffer; full-scene capture belongs to the
	// backend, this is the per-output notification channel.
	var top BufferToken
	if len(windows) > 0 {
		top = windows[len(windows)-1].Buffer
	}
	s.onPresented.Publish(output, top)
}
