package core

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomwm/loom/internal/geom"
)

func newTestCompositor() (*Compositor, *fakeBackend, *fakeEvents) {
	backend := &fakeBackend{vsync: true}
	events := &fakeEvents{}
	comp := NewCompositor(backend, events, Options{SeatName: "seat0"})
	return comp, backend, events
}

func (c *Compositor) addTestOutput(name string, x int) {
	pos := geom.Point{X: x}
	c.HandleEvent(OutputAddedEvent{
		Name: name, Mode: Mode{Width: 1920, Height: 1080, RefreshMHz: 60000},
		Scale: 1, Pos: &pos,
	})
}

func TestWindowMapFocusesAndComposes(t *testing.T) {
	comp, backend, events := newTestCompositor()
	comp.addTestOutput("DP-1", 0)
	comp.HandleEvent(FrameDoneEvent{Output: "DP-1"})
	backend.composes = nil

	comp.HandleEvent(WindowMappedEvent{
		ID: 1, Surface: 10, AppID: "term", Title: "sh",
		Width: 400, Height: 300, Role: RoleToplevel,
	})

	seat := comp.Router().Seat("seat0")
	assert.Equal(t, WindowID(1), seat.Focus())
	assert.Equal(t, 1, events.count("kenter:10"))
	assert.Equal(t, 1, backend.composesFor("DP-1"))
}

func TestPopupDoesNotTakeFocus(t *testing.T) {
	comp, _, _ := newTestCompositor()
	comp.addTestOutput("DP-1", 0)

	comp.HandleEvent(WindowMappedEvent{
		ID: 1, Surface: 10, AppID: "term", Width: 400, Height: 300, Role: RoleToplevel,
	})
	comp.HandleEvent(WindowMappedEvent{
		ID: 2, Surface: 11, Width: 100, Height: 80, Role: RolePopup, Parent: 1,
	})

	assert.Equal(t, WindowID(1), comp.Router().Seat("seat0").Focus())
}

func TestUnmapRefocusesTopmostRemaining(t *testing.T) {
	comp, _, events := newTestCompositor()
	comp.addTestOutput("DP-1", 0)

	comp.HandleEvent(WindowMappedEvent{ID: 1, Surface: 10, AppID: "a", Width: 400, Height: 300, Role: RoleToplevel})
	comp.HandleEvent(WindowMappedEvent{ID: 2, Surface: 11, AppID: "b", Width: 400, Height: 300, Role: RoleToplevel})
	require.Equal(t, WindowID(2), comp.Router().Seat("seat0").Focus())

	comp.HandleEvent(WindowUnmappedEvent{ID: 2})

	assert.Equal(t, WindowID(1), comp.Router().Seat("seat0").Focus())
	assert.Equal(t, 2, events.count("kenter:10"), "map focus plus refocus")
	assert.Nil(t, comp.Tree().Window(2))
}

func TestUnmapLastWindowLeavesNoFocus(t *testing.T) {
	comp, _, _ := newTestCompositor()
	comp.addTestOutput("DP-1", 0)
	comp.HandleEvent(WindowMappedEvent{ID: 1, Surface: 10, Width: 400, Height: 300, Role: RoleToplevel})

	comp.HandleEvent(WindowUnmappedEvent{ID: 1})
	assert.Equal(t, WindowID(0), comp.Router().Seat("seat0").Focus())
}

func TestOutputRemovalRehomesWindows(t *testing.T) {
	comp, backend, _ := newTestCompositor()
	comp.addTestOutput("DP-1", 0)
	comp.addTestOutput("DP-2", 1920)

	comp.HandleEvent(WindowMappedEvent{
		ID: 1, Surface: 10, Width: 400, Height: 300, Role: RoleToplevel,
		OutputHint: "DP-1",
	})
	comp.HandleEvent(WindowMappedEvent{
		ID: 2, Surface: 11, Width: 400, Height: 300, Role: RoleToplevel,
		OutputHint: "DP-2",
	})
	comp.HandleEvent(WindowMappedEvent{
		ID: 3, Surface: 12, Width: 400, Height: 300, Role: RoleToplevel,
		OutputHint: "DP-2",
	})
	comp.HandleEvent(FrameDoneEvent{Output: "DP-1"})
	comp.HandleEvent(FrameDoneEvent{Output: "DP-1"})
	comp.HandleEvent(FrameDoneEvent{Output: "DP-2"})
	comp.HandleEvent(FrameDoneEvent{Output: "DP-2"})
	backend.composes = nil

	comp.HandleEvent(OutputRemovedEvent{Name: "DP-2"})

	survivor := comp.Registry().Get("DP-1")
	seen := map[int]WindowID{}
	for _, id := range []WindowID{1, 2, 3} {
		w := comp.Tree().Window(id)
		assert.Equal(t, "DP-1", w.Output)
		assert.True(t, survivor.Bounds().Contains(w.Pos))
		idx := comp.Tree().StackIndex(id)
		if prev, dup := seen[idx]; dup {
			t.Fatalf("windows %d and %d share stack index %d", prev, id, idx)
		}
		seen[idx] = id
	}
	// Movers keep their relative order and land above the residents.
	assert.Equal(t, 0, comp.Tree().StackIndex(1))
	assert.Equal(t, 1, comp.Tree().StackIndex(2))
	assert.Equal(t, 2, comp.Tree().StackIndex(3))
	assert.Equal(t, 1, backend.composesFor("DP-1"), "destination gets a full redraw")
}

func TestLastOutputRemovalParksThenRehomes(t *testing.T) {
	comp, _, _ := newTestCompositor()
	comp.addTestOutput("DP-1", 0)
	comp.HandleEvent(WindowMappedEvent{ID: 1, Surface: 10, Width: 400, Height: 300, Role: RoleToplevel})

	comp.HandleEvent(OutputRemovedEvent{Name: "DP-1"})
	w := comp.Tree().Window(1)
	require.NotNil(t, w)
	assert.True(t, w.Mapped)

	comp.addTestOutput("DP-2", 0)
	assert.Equal(t, "DP-2", w.Output)
}

func TestSurfaceCommitSchedulesFrame(t *testing.T) {
	comp, backend, _ := newTestCompositor()
	comp.addTestOutput("DP-1", 0)
	comp.HandleEvent(WindowMappedEvent{ID: 1, Surface: 10, Width: 400, Height: 300, Role: RoleToplevel})
	comp.HandleEvent(FrameDoneEvent{Output: "DP-1"})
	comp.HandleEvent(FrameDoneEvent{Output: "DP-1"})
	backend.composes = nil

	comp.HandleEvent(SurfaceCommitEvent{
		Surface: 10, Buffer: 77, Width: 400, Height: 300,
		Damage: []geom.Rect{{X: 0, Y: 0, W: 50, H: 50}},
	})

	require.Equal(t, 1, backend.composesFor("DP-1"))
	frame := backend.composes[0].windows
	require.Len(t, frame, 1)
	assert.Equal(t, BufferToken(77), frame[0].Buffer)
	assert.NotEmpty(t, frame[0].Damage)
}

func TestCommitForUnknownSurfaceIgnored(t *testing.T) {
	comp, backend, _ := newTestCompositor()
	comp.addTestOutput("DP-1", 0)
	backend.composes = nil

	comp.HandleEvent(SurfaceCommitEvent{Surface: 99, Buffer: 1, Width: 10, Height: 10})
	assert.Empty(t, backend.composes)
}

func TestFailedImportKeepsPreviousBuffer(t *testing.T) {
	comp, backend, _ := newTestCompositor()
	comp.addTestOutput("DP-1", 0)
	comp.HandleEvent(WindowMappedEvent{ID: 1, Surface: 10, Width: 400, Height: 300, Role: RoleToplevel})
	comp.HandleEvent(SurfaceCommitEvent{Surface: 10, Buffer: 77, Width: 400, Height: 300})

	backend.importErr = assert.AnError
	comp.HandleEvent(SurfaceCommitEvent{Surface: 10, Buffer: 88, Width: 400, Height: 300})

	s := comp.Tree().Surface(10)
	assert.Equal(t, BufferToken(77), s.Token)
}

func TestCycleFocusWraps(t *testing.T) {
	comp, _, _ := newTestCompositor()
	comp.addTestOutput("DP-1", 0)
	for id := WindowID(1); id <= 3; id++ {
		comp.HandleEvent(WindowMappedEvent{
			ID: id, Surface: SurfaceID(10 + id), AppID: "app",
			Width: 400, Height: 300, Role: RoleToplevel,
		})
	}
	seat := comp.Router().Seat("seat0")
	require.Equal(t, WindowID(3), seat.Focus())

	comp.CycleFocus()
	assert.Equal(t, WindowID(1), seat.Focus())
	comp.CycleFocus()
	assert.Equal(t, WindowID(2), seat.Focus())
	comp.CycleFocus()
	assert.Equal(t, WindowID(3), seat.Focus())
}

func TestFocusOrSpawnFocusesExisting(t *testing.T) {
	comp, _, _ := newTestCompositor()
	comp.addTestOutput("DP-1", 0)
	comp.HandleEvent(WindowMappedEvent{ID: 1, Surface: 10, AppID: "editor", Width: 400, Height: 300, Role: RoleToplevel})
	comp.HandleEvent(WindowMappedEvent{ID: 2, Surface: 11, AppID: "term", Width: 400, Height: 300, Role: RoleToplevel})

	comp.FocusOrSpawn("editor", "true")
	assert.Equal(t, WindowID(1), comp.Router().Seat("seat0").Focus())
}

func TestMoveFocusedToZone(t *testing.T) {
	comp, _, _ := newTestCompositor()
	comp.addTestOutput("DP-1", 0)
	comp.SetZones([]Zone{
		{Name: "left", Rect: geom.Rect{X: 0, Y: 0, W: 960, H: 1080}},
	})
	comp.HandleEvent(WindowMappedEvent{ID: 1, Surface: 10, Width: 400, Height: 300, Role: RoleToplevel})

	comp.MoveFocusedToZone("left")
	w := comp.Tree().Window(1)
	assert.Equal(t, geom.Point{X: 280, Y: 390}, w.Pos)
}

func TestSnapshotRestoresLayoutHint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.snap")
	require.NoError(t, SaveSnapshot(path, &LayoutSnapshot{
		Outputs: []OutputSnapshot{{Name: "DP-1", X: 4000, Y: 100, Width: 1920, Height: 1080}},
		Seats:   []SeatSnapshot{{Name: "seat0", PointerX: 42, PointerY: 24}},
	}))

	backend := &fakeBackend{vsync: true}
	comp := NewCompositor(backend, &fakeEvents{}, Options{
		SeatName: "seat0", SnapshotPath: path,
	})
	comp.Startup()

	// Backend reports the output with no position preference; the hint
	// puts it back where it was.
	comp.HandleEvent(OutputAddedEvent{Name: "DP-1", Mode: Mode{Width: 1920, Height: 1080}, Scale: 1})
	out := comp.Registry().Get("DP-1")
	require.NotNil(t, out)
	assert.Equal(t, geom.Point{X: 4000, Y: 100}, out.Pos)

	seat := comp.Router().Seat("seat0")
	assert.Equal(t, 42.0, seat.PointerX)
}

func TestScheduledReloadAppliesOnTick(t *testing.T) {
	comp, _, _ := newTestCompositor()
	applied := 0
	comp.ScheduleReload(func(*Compositor) { applied++ })
	comp.ScheduleReload(func(*Compositor) { applied += 10 })

	comp.Tick(time.Now())
	comp.Tick(time.Now())
	assert.Equal(t, 10, applied, "only the latest reload applies, once")
}

func TestQuitIsIdempotent(t *testing.T) {
	comp, _, _ := newTestCompositor()
	quits := 0
	comp.OnQuit(func() { quits++ })
	comp.Quit()
	comp.Quit()
	assert.Equal(t, 1, quits)
}
