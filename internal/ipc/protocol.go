// Package ipc implements the control socket protocol. Messages are
// msgpack-encoded envelopes framed with a 4-byte big-endian length prefix
// over a unix socket.
package ipc

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/loomwm/loom/internal/core"
)

// MessageType identifies the payload carried by an envelope.
type MessageType string

const (
	TypeStatus          MessageType = "status"
	TypeStatusResponse  MessageType = "status_response"
	TypeOutputs         MessageType = "outputs"
	TypeOutputsResponse MessageType = "outputs_response"
	TypeWindows         MessageType = "windows"
	TypeWindowsResponse MessageType = "windows_response"
	TypeFocus           MessageType = "focus"
	TypeReload          MessageType = "reload"
	TypeAck             MessageType = "ack"
	TypeError           MessageType = "error"
)

// Envelope is the wire message. Payload holds the msgpack encoding of the
// type-specific body, empty for messages that carry none.
type Envelope struct {
	Type    MessageType `msgpack:"type"`
	Payload []byte      `msgpack:"payload,omitempty"`
}

// StatusResponse reports the running compositor's vital signs.
type StatusResponse struct {
	Version     string `msgpack:"version"`
	Socket      string `msgpack:"socket"`
	Outputs     int    `msgpack:"outputs"`
	Windows     int    `msgpack:"windows"`
	PolicyOK    bool   `msgpack:"policy_ok"`
	PolicyError string `msgpack:"policy_error,omitempty"`
	UptimeSec   int64  `msgpack:"uptime_sec"`
}

// OutputList carries the output registry contents.
type OutputList struct {
	Outputs []core.OutputInfo `msgpack:"outputs"`
}

// WindowList carries the window tree contents.
type WindowList struct {
	Windows []core.WindowInfo `msgpack:"windows"`
}

// FocusCommand asks the compositor to focus a window by ID.
type FocusCommand struct {
	Window uint64 `msgpack:"window"`
}

// Ack is the generic success response.
type Ack struct {
	OK bool `msgpack:"ok"`
}

// ErrorResponse carries a server-side failure back to the client.
type ErrorResponse struct {
	Error string `msgpack:"error"`
}

func newEnvelope(t MessageType, body interface{}) (*Envelope, error) {
	env := &Envelope{Type: t}
	if body != nil {
		data, err := msgpack.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", t, err)
		}
		env.Payload = data
	}
	return env, nil
}

func decodePayload(msg *Envelope, want MessageType, out interface{}) error {
	if msg.Type != want {
		return fmt.Errorf("message is not %s (got %s)", want, msg.Type)
	}
	if out == nil {
		return nil
	}
	if err := msgpack.Unmarshal(msg.Payload, out); err != nil {
		return fmt.Errorf("invalid %s payload: %w", want, err)
	}
	return nil
}

// NewStatusMessage creates a status query message.
func NewStatusMessage() (*Envelope, error) {
	return newEnvelope(TypeStatus, nil)
}

// NewStatusResponseMessage creates a status response message.
func NewStatusResponseMessage(resp *StatusResponse) (*Envelope, error) {
	return newEnvelope(TypeStatusResponse, resp)
}

// NewOutputsMessage creates an output list query message.
func NewOutputsMessage() (*Envelope, error) {
	return newEnvelope(TypeOutputs, nil)
}

// NewOutputsResponseMessage creates an output list response message.
func NewOutputsResponseMessage(outputs []core.OutputInfo) (*Envelope, error) {
	return newEnvelope(TypeOutputsResponse, &OutputList{Outputs: outputs})
}

// NewWindowsMessage creates a window list query message.
func NewWindowsMessage() (*Envelope, error) {
	return newEnvelope(TypeWindows, nil)
}

// NewWindowsResponseMessage creates a window list response message.
func NewWindowsResponseMessage(windows []core.WindowInfo) (*Envelope, error) {
	return newEnvelope(TypeWindowsResponse, &WindowList{Windows: windows})
}

// NewFocusMessage creates a focus command message.
func NewFocusMessage(window uint64) (*Envelope, error) {
	return newEnvelope(TypeFocus, &FocusCommand{Window: window})
}

// NewReloadMessage creates a policy reload command message.
func NewReloadMessage() (*Envelope, error) {
	return newEnvelope(TypeReload, nil)
}

// NewAckMessage creates a success acknowledgement message.
func NewAckMessage() (*Envelope, error) {
	return newEnvelope(TypeAck, &Ack{OK: true})
}

// NewErrorMessage creates an error response message.
func NewErrorMessage(errMsg string) (*Envelope, error) {
	return newEnvelope(TypeError, &ErrorResponse{Error: errMsg})
}

// GetStatusResponse extracts a status response from a message.
func GetStatusResponse(msg *Envelope) (*StatusResponse, error) {
	var resp StatusResponse
	if err := decodePayload(msg, TypeStatusResponse, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetOutputList extracts an output list from a message.
func GetOutputList(msg *Envelope) ([]core.OutputInfo, error) {
	var list OutputList
	if err := decodePayload(msg, TypeOutputsResponse, &list); err != nil {
		return nil, err
	}
	return list.Outputs, nil
}

// GetWindowList extracts a window list from a message.
func GetWindowList(msg *Envelope) ([]core.WindowInfo, error) {
	var list WindowList
	if err := decodePayload(msg, TypeWindowsResponse, &list); err != nil {
		return nil, err
	}
	return list.Windows, nil
}

// GetFocusCommand extracts a focus command from a message.
func GetFocusCommand(msg *Envelope) (*FocusCommand, error) {
	var cmd FocusCommand
	if err := decodePayload(msg, TypeFocus, &cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}

// GetErrorResponse extracts an error response from a message.
func GetErrorResponse(msg *Envelope) (*ErrorResponse, error) {
	var resp ErrorResponse
	if err := decodePayload(msg, TypeError, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
