package core

import (
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/loomwm/loom/internal/logger"
)

// LayoutSnapshot is the persisted layout state written on shutdown and
// consulted on startup. Loading is best-effort: corrupt or missing files
// fall back to defaults and never fail startup.
type LayoutSnapshot struct {
	Outputs []OutputSnapshot `msgpack:"outputs"`
	Seats   []SeatSnapshot   `msgpack:"seats"`
}

// OutputSnapshot remembers where an output sat in the layout so a
// reconnected display lands in the same place.
type OutputSnapshot struct {
	Name       string `msgpack:"name"`
	X          int    `msgpack:"x"`
	Y          int    `msgpack:"y"`
	Width      int    `msgpack:"width"`
	Height     int    `msgpack:"height"`
	RefreshMHz int    `msgpack:"refresh_mhz"`
	Scale      int    `msgpack:"scale"`
	Enabled    bool   `msgpack:"enabled"`
}

// SeatSnapshot remembers the last pointer position per seat.
type SeatSnapshot struct {
	Name     string  `msgpack:"name"`
	PointerX float64 `msgpack:"pointer_x"`
	PointerY float64 `msgpack:"pointer_y"`
}

// SaveSnapshot writes the snapshot atomically (temp file + rename).
func SaveSnapshot(path string, snap *LayoutSnapshot) error {
	data, err := msgpack.Marshal(snap)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadSnapshot reads a snapshot. Missing or unreadable files return an
// empty snapshot; callers treat that as "no prior layout".
func LoadSnapshot(path string) *LayoutSnapshot {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("snapshot unreadable, using defaults", "path", path, "error", err)
		}
		return &LayoutSnapshot{}
	}
	var snap LayoutSnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		logger.Warn("snapshot corrupt, using defaults", "path", path, "error", err)
		return &LayoutSnapshot{}
	}
	return &snap
}
