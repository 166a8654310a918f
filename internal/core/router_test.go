package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomwm/loom/internal/geom"
)

func newTestRouter() (*Router, *Tree, *fakeEvents) {
	tree, reg := newTestTree()
	events := &fakeEvents{}
	router := NewRouter(tree, reg, events)
	router.AddSeat(NewSeat("seat0"))
	return router, tree, events
}

func TestEnterLeaveFireOncePerTransition(t *testing.T) {
	router, tree, events := newTestRouter()
	w := addWindow(tree, 1, "app", 400, 300)
	tree.Map(1, "DP-1", geom.Point{})
	tree.MoveWindow(1, geom.Point{X: 100, Y: 100})
	_ = w

	// Three motions inside the window: one enter, three motions, no leave.
	router.PointerMotion("seat0", 1, 150, 150)
	router.PointerMotion("seat0", 2, 160, 150)
	router.PointerMotion("seat0", 3, 170, 150)
	assert.Equal(t, 1, events.count("enter:1"))
	assert.Equal(t, 3, events.count("motion:1"))
	assert.Equal(t, 0, events.count("leave:1"))

	// Leaving fires exactly one leave.
	router.PointerMotion("seat0", 4, 10, 10)
	router.PointerMotion("seat0", 5, 20, 10)
	assert.Equal(t, 1, events.count("leave:1"))

	// Re-entering fires a second enter.
	router.PointerMotion("seat0", 6, 150, 150)
	assert.Equal(t, 2, events.count("enter:1"))
}

func TestHitTestPrefersTopmost(t *testing.T) {
	router, tree, events := newTestRouter()
	addWindow(tree, 1, "below", 400, 300)
	addWindow(tree, 2, "above", 400, 300)
	tree.Map(1, "DP-1", geom.Point{})
	tree.Map(2, "DP-1", geom.Point{})
	tree.MoveWindow(1, geom.Point{X: 0, Y: 0})
	tree.MoveWindow(2, geom.Point{X: 0, Y: 0})

	router.PointerMotion("seat0", 1, 50, 50)
	assert.Equal(t, 1, events.count("enter:2"))
	assert.Equal(t, 0, events.count("enter:1"))
}

func TestHitTestSkipsInputTransparent(t *testing.T) {
	router, tree, events := newTestRouter()
	addWindow(tree, 1, "below", 400, 300)
	above := addWindow(tree, 2, "overlay", 400, 300)
	tree.Map(1, "DP-1", geom.Point{})
	tree.Map(2, "DP-1", geom.Point{})
	tree.MoveWindow(1, geom.Point{X: 0, Y: 0})
	tree.MoveWindow(2, geom.Point{X: 0, Y: 0})
	above.Root.InputTransparent = true

	router.PointerMotion("seat0", 1, 50, 50)
	assert.Equal(t, 1, events.count("enter:1"))
}

func TestButtonPressFocusesAndRaises(t *testing.T) {
	router, tree, events := newTestRouter()
	addWindow(tree, 1, "a", 400, 300)
	addWindow(tree, 2, "b", 400, 300)
	tree.Map(1, "DP-1", geom.Point{})
	tree.Map(2, "DP-1", geom.Point{})
	tree.MoveWindow(1, geom.Point{X: 0, Y: 0})
	tree.MoveWindow(2, geom.Point{X: 500, Y: 0})

	seat := router.Seat("seat0")
	router.PointerMotion("seat0", 1, 50, 50)
	router.PointerButton("seat0", 2, 0x110, true)

	assert.Equal(t, WindowID(1), seat.Focus())
	assert.Equal(t, 1, tree.StackIndex(1), "raised above window 2")
	assert.Equal(t, 1, events.count("kenter:1"))
	assert.Equal(t, 1, events.count("button:1"))
}

func TestBindingPreemptsClient(t *testing.T) {
	router, tree, events := newTestRouter()
	addWindow(tree, 1, "app", 400, 300)
	tree.Map(1, "DP-1", geom.Point{})
	seat := router.Seat("seat0")
	seat.SetFocus(1)

	fired := 0
	router.SetBindings(fakeBindings{
		bindingKey(ModAlt, KeyReturn): func() { fired++ },
	})

	t.Run("bound chord is consumed", func(t *testing.T) {
		router.Key("seat0", 1, 36, KeyReturn, ModAlt, true)
		assert.Equal(t, 1, fired)
		assert.Equal(t, 0, events.count("key:1"))
	})

	t.Run("unbound chord reaches the client", func(t *testing.T) {
		router.Key("seat0", 2, 36, KeyReturn, 0, true)
		assert.Equal(t, 1, fired)
		assert.Equal(t, 1, events.count("key:1"))
	})

	t.Run("releases always reach the client", func(t *testing.T) {
		router.Key("seat0", 3, 36, KeyReturn, ModAlt, false)
		assert.Equal(t, 2, events.count("key:1"))
	})
}

func TestBindingSwapIsTotal(t *testing.T) {
	router, tree, _ := newTestRouter()
	addWindow(tree, 1, "app", 400, 300)
	tree.Map(1, "DP-1", geom.Point{})

	var hits []string
	router.SetBindings(fakeBindings{
		bindingKey(ModAlt, KeyF1): func() { hits = append(hits, "old") },
	})
	router.Key("seat0", 1, 67, KeyF1, ModAlt, true)

	router.SetBindings(fakeBindings{
		bindingKey(ModAlt, KeyTab): func() { hits = append(hits, "new") },
	})
	router.Key("seat0", 2, 67, KeyF1, ModAlt, true)
	router.Key("seat0", 3, 23, KeyTab, ModAlt, true)

	assert.Equal(t, []string{"old", "new"}, hits)
}

func TestKeyWithoutFocusDropped(t *testing.T) {
	router, _, events := newTestRouter()
	router.Key("seat0", 1, 36, KeyReturn, 0, true)
	assert.Empty(t, events.log)
}

func TestInteractiveMove(t *testing.T) {
	router, tree, _ := newTestRouter()
	w := addWindow(tree, 1, "app", 400, 300)
	tree.Map(1, "DP-1", geom.Point{})
	tree.MoveWindow(1, geom.Point{X: 100, Y: 100})

	router.PointerMotion("seat0", 1, 150, 150)
	require.True(t, router.BeginInteractive("seat0", 1, false, 0))

	router.PointerMotion("seat0", 2, 250, 200)
	assert.Equal(t, geom.Point{X: 200, Y: 150}, w.Pos)

	// Release ends the grab; further motion no longer drags.
	router.PointerButton("seat0", 3, 0x110, false)
	assert.Equal(t, GrabNone, router.Seat("seat0").Grab().Kind)
	router.PointerMotion("seat0", 4, 300, 300)
	assert.Equal(t, geom.Point{X: 200, Y: 150}, w.Pos)
}

func TestInteractiveResize(t *testing.T) {
	router, tree, _ := newTestRouter()
	w := addWindow(tree, 1, "app", 400, 300)
	tree.Map(1, "DP-1", geom.Point{})
	tree.MoveWindow(1, geom.Point{X: 100, Y: 100})

	router.PointerMotion("seat0", 1, 490, 390)
	require.True(t, router.BeginInteractive("seat0", 1, true, EdgeBottom|EdgeRight))

	router.PointerMotion("seat0", 2, 540, 440)
	assert.Equal(t, 450, w.Width)
	assert.Equal(t, 350, w.Height)
	assert.Equal(t, geom.Point{X: 100, Y: 100}, w.Pos)
}

func TestInteractiveDeniedWhenNotHovered(t *testing.T) {
	router, tree, _ := newTestRouter()
	addWindow(tree, 1, "app", 400, 300)
	tree.Map(1, "DP-1", geom.Point{})
	tree.MoveWindow(1, geom.Point{X: 100, Y: 100})

	router.PointerMotion("seat0", 1, 10, 10)
	assert.False(t, router.BeginInteractive("seat0", 1, false, 0))
}

func TestSecondGrabRefused(t *testing.T) {
	router, tree, _ := newTestRouter()
	addWindow(tree, 1, "a", 400, 300)
	addWindow(tree, 2, "b", 400, 300)
	tree.Map(1, "DP-1", geom.Point{})
	tree.Map(2, "DP-1", geom.Point{})
	tree.MoveWindow(1, geom.Point{X: 0, Y: 0})
	tree.MoveWindow(2, geom.Point{X: 0, Y: 0})

	router.PointerMotion("seat0", 1, 50, 50)
	require.True(t, router.BeginInteractive("seat0", 2, false, 0))
	assert.False(t, router.BeginInteractive("seat0", 2, true, EdgeTop))
}

func TestClearFocusOf(t *testing.T) {
	router, tree, _ := newTestRouter()
	addWindow(tree, 1, "app", 400, 300)
	tree.Map(1, "DP-1", geom.Point{})
	seat := router.Seat("seat0")
	seat.SetFocus(1)
	router.PointerMotion("seat0", 1, 1000, 600)

	cleared := router.ClearFocusOf(1)
	require.Len(t, cleared, 1)
	assert.Equal(t, WindowID(0), seat.Focus())
	assert.Equal(t, SurfaceID(0), router.Hover("seat0"))
}
