// Package remote exposes a running compositor to external controllers: the
// control socket handler and the D-Bus session service. Both funnel every
// request through the event loop so compositor state is only ever touched
// from the loop goroutine.
package remote

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/loomwm/loom/internal/core"
	"github.com/loomwm/loom/internal/ipc"
)

// requestTimeout bounds how long a remote caller waits for the loop to pick
// up its task.
const requestTimeout = 3 * time.Second

// Bridge turns synchronous remote requests into loop tasks with reply
// channels. It implements ipc.MessageHandler.
type Bridge struct {
	loop    *core.Loop
	version string
	socket  string
	started time.Time

	mu        sync.Mutex
	reloadFn  func() error
	policyErr string
}

// NewBridge creates a bridge posting into loop. version and socket are
// reported verbatim in status responses.
func NewBridge(loop *core.Loop, version, socket string) *Bridge {
	return &Bridge{
		loop:    loop,
		version: version,
		socket:  socket,
		started: time.Now(),
	}
}

// SetReloadFunc installs the policy reload callback. The callback runs on
// the caller's goroutine and must itself defer loop-state work to the loop.
func (b *Bridge) SetReloadFunc(fn func() error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reloadFn = fn
}

// SetPolicyError records the last policy load failure for status reporting.
// An empty string clears it.
func (b *Bridge) SetPolicyError(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.policyErr = msg
}

// run posts fn to the loop and waits for it to execute.
func (b *Bridge) run(fn func(*core.Compositor)) error {
	done := make(chan struct{}, 1)
	b.loop.PostTask(func(c *core.Compositor) {
		fn(c)
		done <- struct{}{}
	})
	select {
	case <-done:
		return nil
	case <-time.After(requestTimeout):
		return errors.New("compositor did not respond")
	}
}

// HandleStatus implements ipc.MessageHandler.
func (b *Bridge) HandleStatus() (*ipc.StatusResponse, error) {
	b.mu.Lock()
	policyErr := b.policyErr
	b.mu.Unlock()

	resp := &ipc.StatusResponse{
		Version:     b.version,
		Socket:      b.socket,
		PolicyOK:    policyErr == "",
		PolicyError: policyErr,
		UptimeSec:   int64(time.Since(b.started).Seconds()),
	}
	err := b.run(func(c *core.Compositor) {
		resp.Outputs = len(c.OutputInfos())
		resp.Windows = len(c.WindowInfos())
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// HandleListOutputs implements ipc.MessageHandler.
func (b *Bridge) HandleListOutputs() ([]core.OutputInfo, error) {
	var outputs []core.OutputInfo
	err := b.run(func(c *core.Compositor) {
		outputs = c.OutputInfos()
	})
	return outputs, err
}

// HandleListWindows implements ipc.MessageHandler.
func (b *Bridge) HandleListWindows() ([]core.WindowInfo, error) {
	var windows []core.WindowInfo
	err := b.run(func(c *core.Compositor) {
		windows = c.WindowInfos()
	})
	return windows, err
}

// HandleFocus implements ipc.MessageHandler.
func (b *Bridge) HandleFocus(window uint64) error {
	var ok bool
	err := b.run(func(c *core.Compositor) {
		ok = c.FocusWindowID(core.WindowID(window))
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no focusable window %d", window)
	}
	return nil
}

// HandleReload implements ipc.MessageHandler.
func (b *Bridge) HandleReload() error {
	b.mu.Lock()
	fn := b.reloadFn
	b.mu.Unlock()
	if fn == nil {
		return errors.New("policy reload not available")
	}
	return fn()
}
