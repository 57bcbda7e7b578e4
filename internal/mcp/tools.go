package mcp

import (
	"context"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/wintile/internal/ipc"
)

func (s *Server) handleGetStatus(_ context.Context, _ *mcpsdk.CallToolRequest, _ GetStatusInput) (*mcpsdk.CallToolResult, ipc.StatusData, error) {
	status, err := s.daemon.GetStatus()
	if err != nil {
		return nil, ipc.StatusData{}, err
	}
	return nil, *status, nil
}

func (s *Server) handleListWindows(_ context.Context, _ *mcpsdk.CallToolRequest, args ListWindowsInput) (*mcpsdk.CallToolResult, ListWindowsOutput, error) {
	data, err := s.daemon.ListWindows()
	if err != nil {
		return nil, ListWindowsOutput{}, err
	}

	class := strings.ToLower(args.Class)
	out := ListWindowsOutput{Windows: make([]ipc.WindowInfo, 0, len(data.Windows))}
	for _, w := range data.Windows {
		if args.State != "" && !strings.EqualFold(w.State, args.State) {
			continue
		}
		if class != "" && !strings.Contains(strings.ToLower(w.Class), class) {
			continue
		}
		out.Windows = append(out.Windows, w)
	}
	s.logger.Debug("list_windows", "total", len(data.Windows), "returned", len(out.Windows))
	return nil, out, nil
}

func (s *Server) handleWindowAction(_ context.Context, _ *mcpsdk.CallToolRequest, args WindowActionInput) (*mcpsdk.CallToolResult, WindowActionOutput, error) {
	action := ipc.Action(strings.ToLower(strings.TrimSpace(args.Action)))
	if action == "" {
		return nil, WindowActionOutput{}, fmt.Errorf("action is required")
	}
	if action == ipc.ActionSetLayout {
		return nil, WindowActionOutput{}, fmt.Errorf("use the set_layout tool to tile a window")
	}
	if !knownAction(action) {
		return nil, WindowActionOutput{}, fmt.Errorf("unknown action %q", args.Action)
	}

	err := s.daemon.WindowAction(ipc.WindowActionPayload{
		Window:  args.Window,
		Action:  action,
		Value:   args.Value,
		Rect:    args.Rect,
		DelayMS: args.DelayMS,
	})
	if err != nil {
		return nil, WindowActionOutput{}, err
	}
	s.logger.Info("window action queued", "window", args.Window, "action", action)
	return nil, WindowActionOutput{Window: args.Window, Action: string(action), Queued: true}, nil
}

func (s *Server) handleSetLayout(_ context.Context, _ *mcpsdk.CallToolRequest, args SetLayoutInput) (*mcpsdk.CallToolResult, WindowActionOutput, error) {
	if args.Width <= 0 || args.Height <= 0 {
		return nil, WindowActionOutput{}, fmt.Errorf("width and height must be > 0")
	}
	err := s.daemon.WindowAction(ipc.WindowActionPayload{
		Window: args.Window,
		Action: ipc.ActionSetLayout,
		Layout: &ipc.LayoutData{
			Rect:       ipc.RectData{X: args.X, Y: args.Y, Width: args.Width, Height: args.Height},
			Margin:     args.Margin,
			Flush:      args.Flush,
			SkipInsets: args.SkipInsets,
			TabGroup:   args.TabGroup,
		},
	})
	if err != nil {
		return nil, WindowActionOutput{}, err
	}
	s.logger.Info("layout queued", "window", args.Window)
	return nil, WindowActionOutput{Window: args.Window, Action: string(ipc.ActionSetLayout), Queued: true}, nil
}

func (s *Server) handleReloadConfig(_ context.Context, _ *mcpsdk.CallToolRequest, _ ReloadConfigInput) (*mcpsdk.CallToolResult, ReloadConfigOutput, error) {
	if err := s.daemon.Reload(); err != nil {
		return nil, ReloadConfigOutput{}, err
	}
	out := ReloadConfigOutput{Reloaded: true, ConfigFiles: []string{}}
	if status, err := s.daemon.GetStatus(); err == nil && status.ConfigFiles != nil {
		out.ConfigFiles = status.ConfigFiles
	}
	return nil, out, nil
}

func knownAction(a ipc.Action) bool {
	for _, known := range ipc.Actions {
		if a == known {
			return true
		}
	}
	return false
}
