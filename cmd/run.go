package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loomwm/loom/internal/backend"
	"github.com/loomwm/loom/internal/backend/wlroots"
	"github.com/loomwm/loom/internal/config"
	"github.com/loomwm/loom/internal/core"
	"github.com/loomwm/loom/internal/ipc"
	"github.com/loomwm/loom/internal/logger"
	"github.com/loomwm/loom/internal/policy"
	"github.com/loomwm/loom/internal/remote"
	"github.com/loomwm/loom/internal/screencast"
	"github.com/loomwm/loom/internal/xwayland"
)

var (
	runHeadless bool
	runScript   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the compositor",
	Long: `Run the compositor. With --headless no display hardware is touched;
windows and outputs exist only as state, which is useful for testing
policy scripts.`,
	RunE: runCompositor,
}

func init() {
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "Run without display hardware")
	runCmd.Flags().StringVar(&runScript, "script", "", "Path to the policy script")

	viper.BindPFlag("compositor.headless", runCmd.Flags().Lookup("headless"))
	viper.BindPFlag("policy.script", runCmd.Flags().Lookup("script"))

	rootCmd.AddCommand(runCmd)
}

// bufferedPoster queues events until the loop exists, then forwards. The
// wlroots server is created before the loop because the compositor needs
// the render backend first.
type bufferedPoster struct {
	mu      sync.Mutex
	loop    *core.Loop
	pending []core.Event
}

func (p *bufferedPoster) Post(ev core.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loop == nil {
		p.pending = append(p.pending, ev)
		return
	}
	p.loop.Post(ev)
}

func (p *bufferedPoster) SetLoop(l *core.Loop) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loop = l
	for _, ev := range p.pending {
		l.Post(ev)
	}
	p.pending = nil
}

func runCompositor(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		config.SetConfigPath(configPath)
	}
	if err := config.Init(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := config.Get()

	if cfg.Logging.LogLevel != "" {
		logger.SetLevel(cfg.Logging.LogLevel)
	}

	opts := core.Options{
		SeatName:     cfg.Compositor.SeatName,
		SnapshotPath: cfg.Compositor.SnapshotPath,
	}

	var (
		render core.RenderBackend
		events core.SurfaceEvents
		poster = &bufferedPoster{}
		wlr    *wlroots.Server
	)

	if cfg.Compositor.Headless {
		render = backend.NewHeadless()
		events = backend.NullEvents{}
		opts.WaylandDisplay = cfg.Compositor.WaylandDisplay
	} else {
		server, err := wlroots.NewServer(cfg.Compositor.SeatName, poster)
		if err != nil {
			return fmt.Errorf("failed to create display server: %w", err)
		}
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start display server: %w", err)
		}
		wlr = server
		render = server
		events = server
		opts.WaylandDisplay = server.Socket()
		logger.Info("wayland display ready", "socket", server.Socket())

		if cfg.Compositor.Xwayland {
			xw, err := xwayland.New(server.Socket())
			if err != nil {
				logger.Warn("xwayland unavailable", "error", err)
			} else if err := xw.Start(); err != nil {
				logger.Warn("xwayland failed to start", "error", err)
			} else {
				opts.X11Display = xw.Display()
				defer xw.Stop()
			}
		}
	}

	comp := core.NewCompositor(render, events, opts)
	loop := core.NewLoop(comp)
	poster.SetLoop(loop)

	if cfg.Compositor.Headless {
		// A headless run still needs somewhere to place windows.
		loop.Post(core.OutputAddedEvent{
			Name:  "HEADLESS-1",
			Mode:  core.Mode{Width: cfg.Compositor.HeadlessWidth, Height: cfg.Compositor.HeadlessHeight},
			Scale: 1,
		})
	}

	// Policy engine
	engine := policy.NewEngine(comp, policy.Limits{
		CPU:    cfg.Policy.CPULimit,
		Memory: cfg.Policy.MemoryLimit,
	})
	defer engine.Close()
	comp.SetHooks(engine)

	bridge := remote.NewBridge(loop, Version, cfg.IPC.SocketPath)

	scriptPath := cfg.Policy.Script
	if _, err := os.Stat(scriptPath); err == nil {
		if err := engine.LoadFile(scriptPath); err != nil {
			logger.Warn("policy script failed to load", "path", scriptPath, "error", err)
			bridge.SetPolicyError(err.Error())
		}
	} else {
		logger.Info("no policy script", "path", scriptPath)
	}

	reload := func() error {
		errCh := make(chan error, 1)
		loop.PostTask(func(*core.Compositor) {
			errCh <- engine.LoadFile(scriptPath)
		})
		select {
		case err := <-errCh:
			if err != nil {
				logger.Warn("policy reload failed", "error", err)
				bridge.SetPolicyError(err.Error())
				return err
			}
			logger.Info("policy reloaded", "path", scriptPath)
			bridge.SetPolicyError("")
			return nil
		case <-time.After(5 * time.Second):
			return errors.New("policy reload timed out")
		}
	}
	bridge.SetReloadFunc(reload)

	if cfg.Policy.WatchForChanges {
		debounce := time.Duration(cfg.Policy.ReloadDebounce) * time.Millisecond
		watcher, err := config.NewWatcher(scriptPath, debounce, func() { _ = reload() })
		if err != nil {
			logger.Warn("policy watcher unavailable", "error", err)
		} else {
			watcher.Start()
			defer watcher.Stop()
		}
	}

	// Screencast tap
	if cfg.Screencast.Enabled {
		minInterval := time.Duration(cfg.Screencast.MinIntervalMS) * time.Millisecond
		tap := screencast.NewTap(screencast.WithDefaultMinInterval(minInterval))
		comp.SetPublisher(tap)
		defer tap.Close()
		logger.Info("screencast tap enabled", "min_interval", minInterval)
	}

	// Control socket
	if cfg.IPC.Enabled {
		socketServer := ipc.NewSocketServer(cfg.IPC.SocketPath, bridge)
		if err := socketServer.Start(); err != nil {
			return fmt.Errorf("failed to start control socket: %w", err)
		}
		defer socketServer.Stop()
	}

	// Session bus
	if cfg.DBus.Enabled {
		dbusService := remote.NewDBusService(bridge)
		if err := dbusService.Start(); err != nil {
			logger.Warn("session bus unavailable", "error", err)
		} else {
			defer dbusService.Stop()
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if wlr != nil {
		go wlr.Run()
		defer wlr.Stop()
	}

	logger.Info("loom running", "seat", cfg.Compositor.SeatName, "headless", cfg.Compositor.Headless)
	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
