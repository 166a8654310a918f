// Package config handles configuration management using Viper
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	// Compositor core settings
	Compositor CompositorConfig `mapstructure:"compositor"`

	// Policy scripting settings
	Policy PolicyConfig `mapstructure:"policy"`

	// Control socket settings
	IPC IPCConfig `mapstructure:"ipc"`

	// D-Bus remote interface settings
	DBus DBusConfig `mapstructure:"dbus"`

	// Screencast tap settings
	Screencast ScreencastConfig `mapstructure:"screencast"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// CompositorConfig contains core compositor settings
type CompositorConfig struct {
	SeatName       string `mapstructure:"seat_name"`
	Headless       bool   `mapstructure:"headless"`
	WaylandDisplay string `mapstructure:"wayland_display"`
	Xwayland       bool   `mapstructure:"xwayland"`
	SnapshotPath   string `mapstructure:"snapshot_path"`

	// Mode of the synthetic output created for headless runs.
	HeadlessWidth  int `mapstructure:"headless_width"`
	HeadlessHeight int `mapstructure:"headless_height"`
}

// PolicyConfig contains Lua scripting settings
type PolicyConfig struct {
	Script          string `mapstructure:"script"`            // Path to the policy script
	CPULimit        uint64 `mapstructure:"cpu_limit"`         // Instructions per callback, 0 = unlimited
	MemoryLimit     uint64 `mapstructure:"memory_limit"`      // Bytes per callback, 0 = unlimited
	ReloadDebounce  int    `mapstructure:"reload_debounce_ms"`
	WatchForChanges bool   `mapstructure:"watch"`
}

// IPCConfig contains control socket settings
type IPCConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	SocketPath string `mapstructure:"socket_path"`
}

// DBusConfig contains the session bus interface settings
type DBusConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ScreencastConfig contains frame tap settings
type ScreencastConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MinIntervalMS int  `mapstructure:"min_interval_ms"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	LogLevel string `mapstructure:"log_level"` // Override LOOM_LOG env var
}

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		Compositor: CompositorConfig{
			SeatName:       "seat0",
			Headless:       false,
			Xwayland:       true,
			SnapshotPath:   defaultSnapshotPath(),
			HeadlessWidth:  1920,
			HeadlessHeight: 1080,
		},
		Policy: PolicyConfig{
			Script:          defaultScriptPath(),
			CPULimit:        10_000_000,
			MemoryLimit:     32 * 1024 * 1024,
			ReloadDebounce:  250,
			WatchForChanges: true,
		},
		IPC: IPCConfig{
			Enabled:    true,
			SocketPath: defaultSocketPath(),
		},
		DBus: DBusConfig{
			Enabled: true,
		},
		Screencast: ScreencastConfig{
			Enabled:       false,
			MinIntervalMS: 0,
		},
		Logging: LoggingConfig{
			LogLevel: "", // Empty means use LOOM_LOG env var
		},
	}

	// Global config instance
	cfg *Config

	// Override config path if set
	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	viper.SetConfigName("loom")
	viper.SetConfigType("toml")

	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		viper.AddConfigPath("/etc/loom")
		viper.AddConfigPath(filepath.Join(xdg.ConfigHome, "loom"))
		viper.AddConfigPath(".")
	}

	viper.SetDefault("compositor.seat_name", DefaultConfig.Compositor.SeatName)
	viper.SetDefault("compositor.headless", DefaultConfig.Compositor.Headless)
	viper.SetDefault("compositor.wayland_display", DefaultConfig.Compositor.WaylandDisplay)
	viper.SetDefault("compositor.xwayland", DefaultConfig.Compositor.Xwayland)
	viper.SetDefault("compositor.snapshot_path", DefaultConfig.Compositor.SnapshotPath)
	viper.SetDefault("compositor.headless_width", DefaultConfig.Compositor.HeadlessWidth)
	viper.SetDefault("compositor.headless_height", DefaultConfig.Compositor.HeadlessHeight)

	viper.SetDefault("policy.script", DefaultConfig.Policy.Script)
	viper.SetDefault("policy.cpu_limit", DefaultConfig.Policy.CPULimit)
	viper.SetDefault("policy.memory_limit", DefaultConfig.Policy.MemoryLimit)
	viper.SetDefault("policy.reload_debounce_ms", DefaultConfig.Policy.ReloadDebounce)
	viper.SetDefault("policy.watch", DefaultConfig.Policy.WatchForChanges)

	viper.SetDefault("ipc.enabled", DefaultConfig.IPC.Enabled)
	viper.SetDefault("ipc.socket_path", DefaultConfig.IPC.SocketPath)

	viper.SetDefault("dbus.enabled", DefaultConfig.DBus.Enabled)

	viper.SetDefault("screencast.enabled", DefaultConfig.Screencast.Enabled)
	viper.SetDefault("screencast.min_interval_ms", DefaultConfig.Screencast.MinIntervalMS)

	viper.SetDefault("logging.log_level", DefaultConfig.Logging.LogLevel)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}

	return nil
}

// Reload re-reads the config file in place and returns the fresh config.
func Reload() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	fresh := &Config{}
	if err := viper.Unmarshal(fresh); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config: %w", err)
	}
	cfg = fresh
	return fresh, nil
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		return &DefaultConfig
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	cfg = c
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	if configPathOverride != "" {
		return configPathOverride
	}
	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}
	return filepath.Join(xdg.ConfigHome, "loom", "loom.toml")
}

func defaultScriptPath() string {
	return filepath.Join(xdg.ConfigHome, "loom", "policy.lua")
}

func defaultSnapshotPath() string {
	return filepath.Join(xdg.StateHome, "loom", "layout.snap")
}

func defaultSocketPath() string {
	runtime := os.Getenv("XDG_RUNTIME_DIR")
	if runtime == "" {
		runtime = os.TempDir()
	}
	return filepath.Join(runtime, "loom.sock")
}
