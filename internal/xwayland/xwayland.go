// Package xwayland manages the Xwayland bridge process so X11 clients can
// connect to the compositor.
package xwayland

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/loomwm/loom/internal/logger"
)

const (
	// maxDisplays bounds the search for a free X display number.
	maxDisplays = 32

	// restartDelay paces respawns so a crash-looping Xwayland does not
	// spin the CPU.
	restartDelay = time.Second
)

// Server runs and supervises an Xwayland process. The process is restarted
// when it exits until Stop is called.
type Server struct {
	waylandDisplay string
	display        string
	binary         string

	mu      sync.Mutex
	cmd     *exec.Cmd
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New prepares an Xwayland server bound to the given Wayland display. The
// X display number is picked from the first free slot.
func New(waylandDisplay string) (*Server, error) {
	binary, err := exec.LookPath("Xwayland")
	if err != nil {
		return nil, fmt.Errorf("Xwayland binary not found: %w", err)
	}

	display, err := freeDisplay()
	if err != nil {
		return nil, err
	}

	return &Server{
		waylandDisplay: waylandDisplay,
		display:        display,
		binary:         binary,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}, nil
}

// Display returns the X display name, e.g. ":1". Clients get it via the
// DISPLAY environment variable.
func (s *Server) Display() string {
	return s.display
}

// Start launches Xwayland and begins supervising it.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("server already stopped")
	}
	if s.cmd != nil {
		return nil
	}

	if err := s.spawnLocked(); err != nil {
		return err
	}
	go s.supervise()
	return nil
}

// Stop terminates the Xwayland process and stops supervision.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	cmd := s.cmd
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil {
			logger.Debugf("Failed to kill Xwayland: %v", err)
		}
	}
	<-s.doneCh
	logger.Info("xwayland stopped", "display", s.display)
}

func (s *Server) spawnLocked() error {
	cmd := exec.Command(s.binary, s.display, "-rootless", "-terminate")
	cmd.Env = append(os.Environ(), "WAYLAND_DISPLAY="+s.waylandDisplay)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start Xwayland: %w", err)
	}
	s.cmd = cmd
	logger.Info("xwayland started", "display", s.display, "pid", cmd.Process.Pid)
	return nil
}

// supervise waits for the process and restarts it until stopped.
func (s *Server) supervise() {
	defer close(s.doneCh)

	for {
		s.mu.Lock()
		cmd := s.cmd
		s.mu.Unlock()

		err := cmd.Wait()

		select {
		case <-s.stopCh:
			return
		default:
		}

		logger.Warn("xwayland exited, restarting", "display", s.display, "error", err)

		select {
		case <-s.stopCh:
			return
		case <-time.After(restartDelay):
		}

		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		spawnErr := s.spawnLocked()
		s.mu.Unlock()
		if spawnErr != nil {
			logger.Error("failed to restart xwayland", "error", spawnErr)
			return
		}
	}
}

// freeDisplay finds the first X display number without a lock file.
func freeDisplay() (string, error) {
	for n := 0; n < maxDisplays; n++ {
		lock := filepath.Join("/tmp", fmt.Sprintf(".X%d-lock", n))
		socket := filepath.Join("/tmp/.X11-unix", fmt.Sprintf("X%d", n))
		if fileExists(lock) || fileExists(socket) {
			continue
		}
		return fmt.Sprintf(":%d", n), nil
	}
	return "", fmt.Errorf("no free X display in the first %d slots", maxDisplays)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
