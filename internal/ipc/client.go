package ipc

import (
	"fmt"
	"net"
	"time"

	"github.com/loomwm/loom/internal/core"
	"github.com/loomwm/loom/internal/logger"
)

// Client talks to a running compositor over the control socket. A fresh
// connection is opened per request.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for the socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

// NewClientWithTimeout creates a client with a custom per-request timeout.
func NewClientWithTimeout(socketPath string, timeout time.Duration) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    timeout,
	}
}

// Status queries the running compositor's status.
func (c *Client) Status() (*StatusResponse, error) {
	msg, err := NewStatusMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to create status message: %w", err)
	}

	response, err := c.sendMessage(msg)
	if err != nil {
		return nil, err
	}
	if err := responseError(response); err != nil {
		return nil, err
	}
	return GetStatusResponse(response)
}

// ListOutputs fetches the output registry.
func (c *Client) ListOutputs() ([]core.OutputInfo, error) {
	msg, err := NewOutputsMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to create outputs message: %w", err)
	}

	response, err := c.sendMessage(msg)
	if err != nil {
		return nil, err
	}
	if err := responseError(response); err != nil {
		return nil, err
	}
	return GetOutputList(response)
}

// ListWindows fetches the window list.
func (c *Client) ListWindows() ([]core.WindowInfo, error) {
	msg, err := NewWindowsMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to create windows message: %w", err)
	}

	response, err := c.sendMessage(msg)
	if err != nil {
		return nil, err
	}
	if err := responseError(response); err != nil {
		return nil, err
	}
	return GetWindowList(response)
}

// Focus asks the compositor to focus a window by ID.
func (c *Client) Focus(window uint64) error {
	msg, err := NewFocusMessage(window)
	if err != nil {
		return fmt.Errorf("failed to create focus message: %w", err)
	}

	response, err := c.sendMessage(msg)
	if err != nil {
		return err
	}
	return responseError(response)
}

// Reload asks the compositor to reload its policy script.
func (c *Client) Reload() error {
	msg, err := NewReloadMessage()
	if err != nil {
		return fmt.Errorf("failed to create reload message: %w", err)
	}

	response, err := c.sendMessage(msg)
	if err != nil {
		return err
	}
	return responseError(response)
}

// IsRunning reports whether a compositor answers on the socket.
func (c *Client) IsRunning() bool {
	_, err := c.Status()
	return err == nil
}

func responseError(response *Envelope) error {
	if response.Type != TypeError {
		return nil
	}
	errResp, err := GetErrorResponse(response)
	if err != nil {
		return fmt.Errorf("malformed error response: %w", err)
	}
	return fmt.Errorf("server error: %s", errResp.Error)
}

// sendMessage sends a request and returns the response.
func (c *Client) sendMessage(msg *Envelope) (*Envelope, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		if isConnectionRefused(err) {
			return nil, fmt.Errorf("compositor is not running")
		}
		return nil, fmt.Errorf("failed to connect to compositor: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Errorf("Failed to close control socket connection: %v", err)
		}
	}()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		logger.Warnf("Failed to set connection deadline: %v", err)
	}

	if err := writeMessage(conn, msg); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	response, err := readMessage(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return response, nil
}

// isConnectionRefused checks if the error is a connection refused error.
func isConnectionRefused(err error) bool {
	if netErr, ok := err.(*net.OpError); ok {
		if netErr.Op == "dial" {
			return true
		}
	}
	return false
}
