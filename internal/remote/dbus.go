package remote

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/loomwm/loom/internal/logger"
)

const (
	busName       = "org.loomwm.Loom1"
	objectPath    = dbus.ObjectPath("/org/loomwm/Loom1")
	interfaceName = "org.loomwm.Loom1"
)

// DBusService publishes the compositor on the session bus. Desktop tooling
// can query and control it without knowing the socket path.
type DBusService struct {
	conn   *dbus.Conn
	bridge *Bridge
}

// NewDBusService creates the session bus service backed by bridge.
func NewDBusService(bridge *Bridge) *DBusService {
	return &DBusService{bridge: bridge}
}

// Start connects to the session bus and claims the well-known name.
func (s *DBusService) Start() error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	obj := &dbusObject{bridge: s.bridge}
	if err := conn.Export(obj, objectPath, interfaceName); err != nil {
		conn.Close()
		return fmt.Errorf("failed to export object: %w", err)
	}

	node := &introspect.Node{
		Name: string(objectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name: interfaceName,
				Methods: []introspect.Method{
					{Name: "Status", Args: []introspect.Arg{
						{Name: "status", Type: "a{sv}", Direction: "out"},
					}},
					{Name: "ListOutputs", Args: []introspect.Arg{
						{Name: "outputs", Type: "aa{sv}", Direction: "out"},
					}},
					{Name: "ListWindows", Args: []introspect.Arg{
						{Name: "windows", Type: "aa{sv}", Direction: "out"},
					}},
					{Name: "Focus", Args: []introspect.Arg{
						{Name: "window", Type: "t", Direction: "in"},
					}},
					{Name: "Reload"},
				},
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), objectPath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		conn.Close()
		return fmt.Errorf("failed to export introspection: %w", err)
	}

	reply, err := conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return fmt.Errorf("bus name %s already taken", busName)
	}

	s.conn = conn
	logger.Info("session bus service started", "name", busName)
	return nil
}

// Stop releases the bus name and closes the connection.
func (s *DBusService) Stop() {
	if s.conn == nil {
		return
	}
	if _, err := s.conn.ReleaseName(busName); err != nil {
		logger.Warnf("Failed to release bus name: %v", err)
	}
	s.conn.Close()
	s.conn = nil
	logger.Info("session bus service stopped")
}

// dbusObject holds the exported methods. Method signatures follow godbus
// conventions: values out plus a trailing *dbus.Error.
type dbusObject struct {
	bridge *Bridge
}

func (o *dbusObject) Status() (map[string]dbus.Variant, *dbus.Error) {
	resp, err := o.bridge.HandleStatus()
	if err != nil {
		return nil, dbus.MakeFailedError(err)
	}
	return map[string]dbus.Variant{
		"version":      dbus.MakeVariant(resp.Version),
		"socket":       dbus.MakeVariant(resp.Socket),
		"outputs":      dbus.MakeVariant(int32(resp.Outputs)),
		"windows":      dbus.MakeVariant(int32(resp.Windows)),
		"policy_ok":    dbus.MakeVariant(resp.PolicyOK),
		"policy_error": dbus.MakeVariant(resp.PolicyError),
		"uptime_sec":   dbus.MakeVariant(resp.UptimeSec),
	}, nil
}

func (o *dbusObject) ListOutputs() ([]map[string]dbus.Variant, *dbus.Error) {
	outputs, err := o.bridge.HandleListOutputs()
	if err != nil {
		return nil, dbus.MakeFailedError(err)
	}
	result := make([]map[string]dbus.Variant, 0, len(outputs))
	for _, out := range outputs {
		result = append(result, map[string]dbus.Variant{
			"name":    dbus.MakeVariant(out.Name),
			"x":       dbus.MakeVariant(int32(out.X)),
			"y":       dbus.MakeVariant(int32(out.Y)),
			"width":   dbus.MakeVariant(int32(out.Width)),
			"height":  dbus.MakeVariant(int32(out.Height)),
			"scale":   dbus.MakeVariant(int32(out.Scale)),
			"enabled": dbus.MakeVariant(out.Enabled),
		})
	}
	return result, nil
}

func (o *dbusObject) ListWindows() ([]map[string]dbus.Variant, *dbus.Error) {
	windows, err := o.bridge.HandleListWindows()
	if err != nil {
		return nil, dbus.MakeFailedError(err)
	}
	result := make([]map[string]dbus.Variant, 0, len(windows))
	for _, w := range windows {
		result = append(result, map[string]dbus.Variant{
			"id":      dbus.MakeVariant(uint64(w.ID)),
			"app_id":  dbus.MakeVariant(w.AppID),
			"title":   dbus.MakeVariant(w.Title),
			"output":  dbus.MakeVariant(w.Output),
			"x":       dbus.MakeVariant(int32(w.X)),
			"y":       dbus.MakeVariant(int32(w.Y)),
			"width":   dbus.MakeVariant(int32(w.Width)),
			"height":  dbus.MakeVariant(int32(w.Height)),
			"focused": dbus.MakeVariant(w.Focused),
		})
	}
	return result, nil
}

func (o *dbusObject) Focus(window uint64) *dbus.Error {
	if err := o.bridge.HandleFocus(window); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

func (o *dbusObject) Reload() *dbus.Error {
	if err := o.bridge.HandleReload(); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}
