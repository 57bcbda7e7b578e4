// Package mcp exposes the running daemon to MCP clients over stdio. Every
// tool is a thin call through the daemon's IPC socket.
package mcp

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/wintile/internal/ipc"
)

const (
	ServerName    = "wintile"
	ServerVersion = "0.1.0"
)

// Daemon is the subset of the IPC client the tools use.
type Daemon interface {
	GetStatus() (*ipc.StatusData, error)
	ListWindows() (*ipc.WindowsData, error)
	WindowAction(payload ipc.WindowActionPayload) error
	Reload() error
}

var _ Daemon = (*ipc.Client)(nil)

// Server is the MCP server for window management.
type Server struct {
	mcpServer *mcpsdk.Server
	daemon    Daemon
	logger    *slog.Logger
}

// NewServer creates an MCP server that forwards to daemon.
func NewServer(daemon Daemon, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{daemon: daemon, logger: logger}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_status",
		Description: "Report whether the wintile daemon is running, its uptime and how many windows it tracks in each state.",
	}, s.handleGetStatus)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_windows",
		Description: "List the top-level windows the daemon tracks with their classification (Tiled, Floating, IgnorePermanent, IgnoreTemporary), the reason for it, and their current geometry. Optionally filter by state or class.",
	}, s.handleListWindows)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "window_action",
		Description: "Queue a command against a window: show, hide, close, poke, minimize, restore, unmaximize, always_on_top, resizable, float_to, show_at, delayed_show, delayed_hide or remove_titlebar. Commands run on the daemon's next scheduling pass.",
	}, s.handleWindowAction)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_layout",
		Description: "Tile a window into a layout cell. The daemon applies the configured gaps (outer margin on flush edges, half the inner margin elsewhere) and frame compensation, then retries until the window accepts the geometry.",
	}, s.handleSetLayout)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "reload_config",
		Description: "Reload the daemon's configuration file. On error the running configuration is kept and the error is returned.",
	}, s.handleReloadConfig)
}
