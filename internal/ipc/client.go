package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/1broseidon/wintile/internal/runtimepath"
)

// DefaultTimeout bounds one request, dial included.
const DefaultTimeout = 5 * time.Second

// Client talks to a running daemon over its unix socket. Each call opens
// a fresh connection; the daemon closes it after one response.
type Client struct {
	socketPath string
	timeout    time.Duration
	resolveErr error
}

// NewClient creates a client for the socket of the current display.
func NewClient() *Client {
	socketPath, err := runtimepath.SocketPath()
	c := NewClientWithSocket(socketPath)
	c.resolveErr = err
	return c
}

// NewClientWithSocket creates a client for an explicit socket path.
func NewClientWithSocket(socketPath string) *Client {
	return &Client{socketPath: socketPath, timeout: DefaultTimeout}
}

// SocketPath reports the socket the client dials.
func (c *Client) SocketPath() string { return c.socketPath }

func (c *Client) roundTrip(ctx context.Context, cmd CommandType, payload any) (*Response, error) {
	if c.resolveErr != nil {
		return nil, fmt.Errorf("failed to resolve daemon socket: %w", c.resolveErr)
	}
	req := Request{Command: cmd}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", cmd, err)
		}
		req.Payload = raw
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon at %s: %w (is the daemon running?)", c.socketPath, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := json.NewEncoder(conn).Encode(&req); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", cmd, err)
	}
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", cmd, err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", cmd, err)
	}
	if resp.Status == StatusError {
		if resp.Error == "" {
			return nil, errors.New("daemon error")
		}
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return &resp, nil
}

// call runs one command and decodes its data into T.
func call[T any](c *Client, cmd CommandType, payload any) (*T, error) {
	resp, err := c.roundTrip(context.Background(), cmd, payload)
	if err != nil {
		return nil, err
	}
	var out T
	if len(resp.Data) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse %s data: %w", cmd, err)
	}
	return &out, nil
}

// Reload asks the daemon to re-read its configuration.
func (c *Client) Reload() error {
	_, err := c.roundTrip(context.Background(), CommandReload, nil)
	return err
}

// GetStatus retrieves daemon status.
func (c *Client) GetStatus() (*StatusData, error) {
	return call[StatusData](c, CommandGetStatus, nil)
}

// ListWindows retrieves every tracked window.
func (c *Client) ListWindows() (*WindowsData, error) {
	return call[WindowsData](c, CommandListWindows, nil)
}

// WindowAction asks the daemon to run one action on a window.
func (c *Client) WindowAction(payload WindowActionPayload) error {
	_, err := c.roundTrip(context.Background(), CommandWindowAction, payload)
	return err
}

// Ping checks that the daemon answers.
func (c *Client) Ping() error {
	_, err := c.GetStatus()
	return err
}
