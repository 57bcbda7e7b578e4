package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/wintile/internal/ipc"
)

type fakeDaemon struct {
	windows   []ipc.WindowInfo
	actions   []ipc.WindowActionPayload
	reloads   int
	actionErr error
}

func (d *fakeDaemon) GetStatus() (*ipc.StatusData, error) {
	return &ipc.StatusData{DaemonRunning: true, Windows: len(d.windows), ConfigFiles: []string{"/tmp/config.yaml"}}, nil
}

func (d *fakeDaemon) ListWindows() (*ipc.WindowsData, error) {
	return &ipc.WindowsData{Windows: d.windows}, nil
}

func (d *fakeDaemon) WindowAction(p ipc.WindowActionPayload) error {
	if d.actionErr != nil {
		return d.actionErr
	}
	d.actions = append(d.actions, p)
	return nil
}

func (d *fakeDaemon) Reload() error {
	d.reloads++
	return nil
}

func newTestServer(d *fakeDaemon) *Server {
	return NewServer(d, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestListWindows_Filters(t *testing.T) {
	d := &fakeDaemon{windows: []ipc.WindowInfo{
		{Handle: 1, Class: "Firefox", State: "Tiled"},
		{Handle: 2, Class: "polybar", State: "IgnoreTemporary"},
		{Handle: 3, Class: "firefox-dialog", State: "Floating"},
	}}
	s := newTestServer(d)

	_, out, err := s.handleListWindows(context.Background(), nil, ListWindowsInput{Class: "fire"})
	if err != nil {
		t.Fatalf("handleListWindows: %v", err)
	}
	if len(out.Windows) != 2 {
		t.Fatalf("expected 2 firefox windows, got %+v", out.Windows)
	}

	_, out, err = s.handleListWindows(context.Background(), nil, ListWindowsInput{State: "tiled"})
	if err != nil {
		t.Fatalf("handleListWindows: %v", err)
	}
	if len(out.Windows) != 1 || out.Windows[0].Handle != 1 {
		t.Fatalf("expected only the tiled window, got %+v", out.Windows)
	}
}

func TestWindowAction_Validation(t *testing.T) {
	d := &fakeDaemon{}
	s := newTestServer(d)
	ctx := context.Background()

	for _, in := range []WindowActionInput{
		{Action: ""},
		{Action: "explode"},
		{Action: "set_layout"},
	} {
		if _, _, err := s.handleWindowAction(ctx, nil, in); err == nil {
			t.Fatalf("expected error for %q", in.Action)
		}
	}
	if len(d.actions) != 0 {
		t.Fatalf("invalid actions must not reach the daemon")
	}

	on := true
	_, out, err := s.handleWindowAction(ctx, nil, WindowActionInput{Window: 7, Action: " Always_On_Top ", Value: &on})
	if err != nil {
		t.Fatalf("handleWindowAction: %v", err)
	}
	if !out.Queued || out.Action != "always_on_top" {
		t.Fatalf("unexpected output: %+v", out)
	}
	if len(d.actions) != 1 || d.actions[0].Window != 7 || d.actions[0].Value == nil || !*d.actions[0].Value {
		t.Fatalf("unexpected payload: %+v", d.actions)
	}
}

func TestWindowAction_DaemonError(t *testing.T) {
	d := &fakeDaemon{actionErr: errors.New("window 0x7 is not tracked")}
	s := newTestServer(d)
	if _, _, err := s.handleWindowAction(context.Background(), nil, WindowActionInput{Window: 7, Action: "close"}); err == nil {
		t.Fatalf("expected daemon error to propagate")
	}
}

func TestSetLayout_BuildsPayload(t *testing.T) {
	d := &fakeDaemon{}
	s := newTestServer(d)

	if _, _, err := s.handleSetLayout(context.Background(), nil, SetLayoutInput{Width: 0, Height: 10}); err == nil {
		t.Fatalf("expected error for zero width")
	}

	_, _, err := s.handleSetLayout(context.Background(), nil, SetLayoutInput{
		Window: 3, X: 0, Y: 0, Width: 960, Height: 1080,
		Flush: []string{"left", "top", "bottom"}, TabGroup: true,
	})
	if err != nil {
		t.Fatalf("handleSetLayout: %v", err)
	}
	if len(d.actions) != 1 {
		t.Fatalf("expected one action, got %d", len(d.actions))
	}
	p := d.actions[0]
	if p.Action != ipc.ActionSetLayout || p.Layout == nil {
		t.Fatalf("unexpected payload: %+v", p)
	}
	if p.Layout.Rect != (ipc.RectData{Width: 960, Height: 1080}) || len(p.Layout.Flush) != 3 || !p.Layout.TabGroup {
		t.Fatalf("unexpected layout: %+v", *p.Layout)
	}
}

func TestReloadConfig(t *testing.T) {
	d := &fakeDaemon{}
	s := newTestServer(d)
	_, out, err := s.handleReloadConfig(context.Background(), nil, ReloadConfigInput{})
	if err != nil {
		t.Fatalf("handleReloadConfig: %v", err)
	}
	if d.reloads != 1 || !out.Reloaded || len(out.ConfigFiles) != 1 {
		t.Fatalf("unexpected reload result: %+v (reloads=%d)", out, d.reloads)
	}
}

func TestServer_CallToolOverTransport(t *testing.T) {
	d := &fakeDaemon{windows: []ipc.WindowInfo{{Handle: 1, Class: "code", State: "Tiled"}}}
	s := newTestServer(d)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverT, clientT := mcpsdk.NewInMemoryTransports()
	if _, err := s.mcpServer.Connect(ctx, serverT, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test", Version: "0"}, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "list_windows",
		Arguments: map[string]any{"state": "Tiled"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool returned error: %+v", res.Content)
	}

	raw, err := json.Marshal(res.StructuredContent)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out ListWindowsOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Windows) != 1 || out.Windows[0].Class != "code" {
		t.Fatalf("unexpected structured content: %s", raw)
	}
}
