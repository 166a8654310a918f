package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomwm/loom/internal/geom"
)

func newTestTree() (*Tree, *Registry) {
	reg := NewRegistry()
	reg.Add("DP-1", Mode{Width: 1920, Height: 1080}, 1, nil)
	reg.Add("DP-2", Mode{Width: 1920, Height: 1080}, 1, nil)
	return NewTree(reg), reg
}

func addWindow(t *Tree, id WindowID, appID string, w, h int) *Window {
	win := &Window{
		ID:            id,
		AppID:         appID,
		Role:          RoleToplevel,
		Root:          &Surface{ID: SurfaceID(id), Width: w, Height: h},
		Width:         w,
		Height:        h,
		FocusEligible: true,
	}
	t.AddWindow(win)
	return win
}

func TestMapCentersOnPointerOutput(t *testing.T) {
	tree, _ := newTestTree()
	addWindow(tree, 1, "term", 400, 300)

	p := tree.Map(1, "", geom.Point{X: 2500, Y: 500})
	assert.Equal(t, "DP-2", p.Output)
	assert.Equal(t, geom.Point{X: 1920 + (1920-400)/2, Y: (1080 - 300) / 2}, p.Pos)
	assert.True(t, p.Focus)
}

func TestMapHonorsDefaultZone(t *testing.T) {
	tree, _ := newTestTree()
	tree.SetZones([]Zone{
		{Name: "main", Rect: geom.Rect{X: 0, Y: 0, W: 1000, H: 1000}, Default: true},
	})
	addWindow(tree, 1, "term", 400, 300)

	p := tree.Map(1, "", geom.Point{X: 2500, Y: 500})
	assert.Equal(t, geom.Point{X: 300, Y: 350}, p.Pos)
	assert.Equal(t, "DP-1", p.Output)
}

func TestMapRuleOverrides(t *testing.T) {
	tree, _ := newTestTree()
	pos := geom.Point{X: 50, Y: 60}
	noFocus := false
	tree.SetRules(&fakeRules{app: "bar", dir: PlacementDirective{
		Pos: &pos, Focus: &noFocus,
	}})
	addWindow(tree, 1, "bar", 200, 100)

	p := tree.Map(1, "", geom.Point{})
	assert.Equal(t, pos, p.Pos)
	assert.False(t, p.Focus)
}

func TestMapUnknownOutputFallsBack(t *testing.T) {
	tree, _ := newTestTree()
	addWindow(tree, 1, "term", 400, 300)

	p := tree.Map(1, "DP-9", geom.Point{X: 10, Y: 10})
	assert.Equal(t, "DP-1", p.Output)
}

func TestMapWithoutOutputsParks(t *testing.T) {
	tree := NewTree(NewRegistry())
	addWindow(tree, 1, "term", 400, 300)

	p := tree.Map(1, "", geom.Point{})
	assert.Equal(t, "", p.Output)
	assert.True(t, tree.Window(1).Mapped)
}

func TestStackIndicesStayUnique(t *testing.T) {
	tree, _ := newTestTree()
	for id := WindowID(1); id <= 4; id++ {
		addWindow(tree, id, "app", 100, 100)
		tree.Map(id, "DP-1", geom.Point{})
	}

	check := func() {
		seen := map[int]WindowID{}
		for id := WindowID(1); id <= 4; id++ {
			idx := tree.StackIndex(id)
			if idx < 0 {
				continue
			}
			prev, dup := seen[idx]
			require.False(t, dup, "windows %d and %d share index %d", prev, id, idx)
			seen[idx] = id
		}
	}

	check()
	tree.Restack(2, RestackTop)
	check()
	tree.Restack(4, RestackBottom)
	check()
	tree.Restack(1, RestackUp)
	check()
	tree.Restack(3, RestackDown)
	check()
	tree.Unmap(2)
	check()

	top := tree.WindowsOn("DP-1")[0]
	tree.Restack(top.ID, RestackTop)
	check()
}

func TestUnmapCascadesPopups(t *testing.T) {
	tree, _ := newTestTree()
	addWindow(tree, 1, "app", 400, 300)
	tree.Map(1, "DP-1", geom.Point{})

	popup := &Window{
		ID:     2,
		Role:   RolePopup,
		Root:   &Surface{ID: 2, Width: 100, Height: 80},
		Width:  100,
		Height: 80,
		Parent: 1,
	}
	tree.AddWindow(popup)
	tree.Map(2, "DP-1", geom.Point{})
	require.True(t, popup.Mapped)

	var gone []WindowID
	tree.OnUnmap(func(w *Window) { gone = append(gone, w.ID) })

	tree.Unmap(1)
	assert.Equal(t, []WindowID{2, 1}, gone)
	assert.False(t, tree.Window(1).Mapped)
	assert.False(t, tree.Window(2).Mapped)
}

func TestDamageFansOutPerOutput(t *testing.T) {
	tree, _ := newTestTree()
	w := addWindow(tree, 1, "app", 400, 300)
	tree.Map(1, "DP-1", geom.Point{})

	var reports []string
	tree.OnDamage(func(output string, r geom.Rect) {
		reports = append(reports, output)
	})

	// Straddle the DP-1/DP-2 seam.
	tree.MoveWindow(1, geom.Point{X: 1800, Y: 100})
	reports = nil
	var region geom.Region
	region.Add(geom.Rect{X: 0, Y: 0, W: w.Width, H: w.Height})
	tree.MarkDamaged(1, region)

	assert.Contains(t, reports, "DP-1")
	assert.Contains(t, reports, "DP-2")
}

func TestMoveToOutputRecenters(t *testing.T) {
	tree, reg := newTestTree()
	w := addWindow(tree, 1, "app", 400, 300)
	tree.Map(1, "DP-1", geom.Point{})

	tree.MoveToOutput(1, reg.Get("DP-2"))
	assert.Equal(t, "DP-2", w.Output)
	assert.True(t, reg.Get("DP-2").Bounds().Contains(w.Pos))
	assert.Equal(t, 0, tree.StackIndex(1))
	assert.Empty(t, tree.WindowsOn("DP-1"))
}

func TestRemoveDropsSurfaces(t *testing.T) {
	tree, _ := newTestTree()
	addWindow(tree, 1, "app", 400, 300)
	tree.Map(1, "DP-1", geom.Point{})

	tree.Remove(1)
	assert.Nil(t, tree.Window(1))
	assert.Nil(t, tree.Surface(1))
	assert.Equal(t, -1, tree.StackIndex(1))
}

func TestFindByApp(t *testing.T) {
	tree, _ := newTestTree()
	addWindow(tree, 1, "term", 100, 100)
	addWindow(tree, 2, "browser", 100, 100)
	addWindow(tree, 3, "term", 100, 100)
	for id := WindowID(1); id <= 3; id++ {
		tree.Map(id, "DP-1", geom.Point{})
	}

	found := tree.FindByApp("term")
	require.NotNil(t, found)
	assert.Equal(t, WindowID(3), found.ID, "topmost instance wins")
	assert.Nil(t, tree.FindByApp("editor"))
}
