package ipc

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/loomwm/loom/internal/core"
	"github.com/loomwm/loom/internal/logger"
)

// maxMessageSize caps a single framed message. Window lists are small;
// anything larger is a corrupt or hostile frame.
const maxMessageSize = 4 * 1024 * 1024

// MessageHandler defines the interface for handling control socket requests.
type MessageHandler interface {
	HandleStatus() (*StatusResponse, error)
	HandleListOutputs() ([]core.OutputInfo, error)
	HandleListWindows() ([]core.WindowInfo, error)
	HandleFocus(window uint64) error
	HandleReload() error
}

// SocketServer handles incoming control socket connections.
type SocketServer struct {
	mu         sync.Mutex
	listener   net.Listener
	socketPath string
	handler    MessageHandler
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	running    bool
}

// NewSocketServer creates a socket server listening at socketPath.
func NewSocketServer(socketPath string, handler MessageHandler) *SocketServer {
	return &SocketServer{
		socketPath: socketPath,
		handler:    handler,
	}
}

// SocketPath returns the path the server listens at.
func (s *SocketServer) SocketPath() string {
	return s.socketPath
}

// Start starts the socket server.
func (s *SocketServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	// Remove existing socket file if it exists
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket listener: %w", err)
	}

	// Socket permissions: user only
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.acceptConnections(ctx)

	logger.Info("control socket started", "path", s.socketPath)
	return nil
}

// Stop stops the socket server and removes the socket file.
func (s *SocketServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	if s.cancel != nil {
		s.cancel()
	}

	if s.listener != nil {
		s.listener.Close()
	}

	s.wg.Wait()

	os.RemoveAll(s.socketPath)

	logger.Info("control socket stopped")
}

func (s *SocketServer) acceptConnections(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
					logger.Errorf("Failed to accept connection: %v", err)
					continue
				}
			}

			s.wg.Add(1)
			go s.handleConnection(ctx, conn)
		}
	}
}

func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	logger.Debug("control socket connection established")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, err := readMessage(conn)
			if err != nil {
				logger.Debugf("Connection closed or read error: %v", err)
				return
			}

			response := s.handleMessage(msg)
			if err := writeMessage(conn, response); err != nil {
				logger.Errorf("Failed to send response: %v", err)
				return
			}
		}
	}
}

// handleMessage processes a single request and returns a response.
func (s *SocketServer) handleMessage(msg *Envelope) *Envelope {
	switch msg.Type {
	case TypeStatus:
		resp, err := s.handler.HandleStatus()
		if err != nil {
			return errorEnvelope(err.Error())
		}
		out, err := NewStatusResponseMessage(resp)
		if err != nil {
			return errorEnvelope(err.Error())
		}
		return out

	case TypeOutputs:
		outputs, err := s.handler.HandleListOutputs()
		if err != nil {
			return errorEnvelope(err.Error())
		}
		out, err := NewOutputsResponseMessage(outputs)
		if err != nil {
			return errorEnvelope(err.Error())
		}
		return out

	case TypeWindows:
		windows, err := s.handler.HandleListWindows()
		if err != nil {
			return errorEnvelope(err.Error())
		}
		out, err := NewWindowsResponseMessage(windows)
		if err != nil {
			return errorEnvelope(err.Error())
		}
		return out

	case TypeFocus:
		cmd, err := GetFocusCommand(msg)
		if err != nil {
			return errorEnvelope(fmt.Sprintf("Invalid focus command: %v", err))
		}
		if err := s.handler.HandleFocus(cmd.Window); err != nil {
			return errorEnvelope(err.Error())
		}
		out, _ := NewAckMessage()
		return out

	case TypeReload:
		if err := s.handler.HandleReload(); err != nil {
			return errorEnvelope(err.Error())
		}
		out, _ := NewAckMessage()
		return out

	default:
		return errorEnvelope(fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

func errorEnvelope(errMsg string) *Envelope {
	env, _ := NewErrorMessage(errMsg)
	return env
}

// readMessage reads one length-prefixed envelope from the connection.
func readMessage(conn net.Conn) (*Envelope, error) {
	// Message length: 4 bytes, big endian
	var length uint32
	if err := binary.Read(conn, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("failed to read message length: %w", err)
	}
	if length > maxMessageSize {
		return nil, fmt.Errorf("message too large: %d bytes", length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(conn, data); err != nil {
		return nil, fmt.Errorf("failed to read message data: %w", err)
	}

	var msg Envelope
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	return &msg, nil
}

// writeMessage writes one length-prefixed envelope to the connection.
func writeMessage(conn net.Conn, msg *Envelope) error {
	data, err := msgpack.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	length := uint32(len(data))
	if err := binary.Write(conn, binary.BigEndian, length); err != nil {
		return fmt.Errorf("failed to write message length: %w", err)
	}

	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("failed to write message data: %w", err)
	}

	return nil
}
