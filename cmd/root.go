package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loomwm/loom/internal/config"
)

var (
	// Version is set during build
	Version = "0.1.0-dev"

	configPath string

	rootCmd = &cobra.Command{
		Use:   "loom",
		Short: "Loom - scriptable Wayland compositor",
		Long: `Loom is a Wayland compositor whose window placement, focus and key
bindings are driven by a Lua policy script. A running instance is
controlled over its unix socket or the D-Bus session interface.`,
		SilenceUsage: true,
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
}

// socketPath resolves the control socket path from the loaded config.
func socketPath() string {
	if configPath != "" {
		config.SetConfigPath(configPath)
	}
	if err := config.Init(); err != nil {
		exitError("failed to load config: %v", err)
	}
	return config.Get().IPC.SocketPath
}

// Exit with error message
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
