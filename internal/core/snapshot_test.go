package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.snap")
	snap := &LayoutSnapshot{
		Outputs: []OutputSnapshot{
			{Name: "DP-1", X: 0, Y: 0, Width: 1920, Height: 1080, RefreshMHz: 60000, Scale: 1, Enabled: true},
			{Name: "DP-2", X: 1920, Y: 0, Width: 2560, Height: 1440, RefreshMHz: 144000, Scale: 2, Enabled: false},
		},
		Seats: []SeatSnapshot{
			{Name: "seat0", PointerX: 123.5, PointerY: 456.25},
		},
	}

	require.NoError(t, SaveSnapshot(path, snap))
	loaded := LoadSnapshot(path)
	assert.Equal(t, snap, loaded)
}

func TestSnapshotMissingFileIsEmpty(t *testing.T) {
	loaded := LoadSnapshot(filepath.Join(t.TempDir(), "nope.snap"))
	require.NotNil(t, loaded)
	assert.Empty(t, loaded.Outputs)
	assert.Empty(t, loaded.Seats)
}

func TestSnapshotCorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.snap")
	require.NoError(t, os.WriteFile(path, []byte("not msgpack at all"), 0o644))

	loaded := LoadSnapshot(path)
	require.NotNil(t, loaded)
	assert.Empty(t, loaded.Outputs)
}

func TestSnapshotCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "layout.snap")
	require.NoError(t, SaveSnapshot(path, &LayoutSnapshot{}))
	_, err := os.Stat(path)
	assert.NoError(t, err)
}
