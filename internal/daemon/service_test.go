package daemon

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/1broseidon/wintile/internal/classify"
	"github.com/1broseidon/wintile/internal/config"
	"github.com/1broseidon/wintile/internal/filters"
	"github.com/1broseidon/wintile/internal/ipc"
	"github.com/1broseidon/wintile/internal/platform"
	"github.com/1broseidon/wintile/internal/platform/platformtest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func appWindow(title, class string) platformtest.Window {
	return platformtest.Window{
		Title:   title,
		Class:   class,
		Visible: true,
		Rect:    platform.RectXYWH(100, 100, 800, 600),
		Style:   platform.StyleSizeBox | platform.StyleCaption | platform.StyleSysMenu,
		ExStyle: platform.ExStyleAppWindow,
	}
}

type fixture struct {
	t     *testing.T
	clock *fakeClock
	fake  *platformtest.Fake
	svc   *Service
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	fake := platformtest.New()
	svc, err := New(Options{
		Logger:  discardLogger(),
		Config:  cfg,
		Backend: fake,
		Now:     clock.Now,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{t: t, clock: clock, fake: fake, svc: svc}
}

func (f *fixture) tick() {
	f.t.Helper()
	if err := f.svc.Manager().Tick(); err != nil {
		f.t.Fatalf("Tick: %v", err)
	}
}

func (f *fixture) state(h platform.Handle) WindowState {
	f.t.Helper()
	for _, ws := range f.svc.Manager().Windows() {
		if ws.Handle == h {
			return ws
		}
	}
	f.t.Fatalf("window %s not listed", h)
	return WindowState{}
}

func TestManager_ClassifiesNewWindows(t *testing.T) {
	f := newFixture(t, nil)

	hidden := appWindow("background", "firefox")
	hidden.Visible = false
	tool := appWindow("palette", "gimp")
	tool.ExStyle = platform.ExStyleNoActivate
	listed := appWindow("notes", "inkscape")
	listed.ExStyle = platform.ExStyleNoActivate | platform.ExStyleAppWindow

	f.fake.Add(1, appWindow("editor", "Code"))
	f.fake.Add(2, appWindow("bar", "polybar"))
	f.fake.Add(3, hidden)
	f.fake.Add(4, appWindow("desktop", "xfdesktop"))
	f.fake.Add(5, tool)
	f.fake.Add(6, listed)
	f.tick()

	cases := []struct {
		h      platform.Handle
		state  classify.State
		reason classify.Reason
	}{
		{1, classify.Tiled, classify.ReasonDefault},
		{2, classify.IgnoreTemporary, classify.ReasonTaskbar},
		{3, classify.IgnoreTemporary, classify.ReasonInvisible},
		{4, classify.IgnorePermanent, classify.ReasonIgnoredClass},
		{5, classify.IgnorePermanent, classify.ReasonNotAppWindow},
		{6, classify.Tiled, classify.ReasonDefault},
	}
	for _, tc := range cases {
		ws := f.state(tc.h)
		if ws.State != tc.state || ws.Reason != tc.reason {
			t.Fatalf("window %s: got %s/%q, want %s/%q", tc.h, ws.State, ws.Reason, tc.state, tc.reason)
		}
	}

	p, _ := f.svc.registry.Get(2)
	if !p.TemporaryIgnore() || p.PermanentIgnore() {
		t.Fatalf("taskbar proxy flags: temp=%v perm=%v", p.TemporaryIgnore(), p.PermanentIgnore())
	}
	p, _ = f.svc.registry.Get(4)
	if !p.PermanentIgnore() {
		t.Fatalf("expected desktop window to be permanently ignored")
	}

	counts := f.svc.Manager().Counts()
	if counts[classify.Tiled] != 1 || counts[classify.IgnorePermanent] != 2 || counts[classify.IgnoreTemporary] != 2 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestManager_TemporaryIgnoreIsReevaluated(t *testing.T) {
	f := newFixture(t, nil)
	w := appWindow("loading", "firefox")
	w.Visible = false
	f.fake.Add(1, w)
	f.tick()

	if got := f.state(1).State; got != classify.IgnoreTemporary {
		t.Fatalf("state = %s, want IgnoreTemporary", got)
	}

	f.fake.Update(1, func(w *platformtest.Window) { w.Visible = true })
	f.tick()

	if got := f.state(1).State; got != classify.Tiled {
		t.Fatalf("state = %s, want Tiled", got)
	}
	p, _ := f.svc.registry.Get(1)
	if p.TemporaryIgnore() {
		t.Fatalf("temporary ignore should be cleared")
	}
}

func TestManager_RemovedWindowsAreForgotten(t *testing.T) {
	f := newFixture(t, nil)
	f.fake.Add(1, appWindow("editor", "code"))
	f.tick()

	f.fake.Destroy(1)
	f.tick()

	if n := len(f.svc.Manager().Windows()); n != 0 {
		t.Fatalf("expected no windows, got %d", n)
	}
	if len(f.svc.Manager().seen) != 0 {
		t.Fatalf("expected classification to be dropped")
	}
}

func TestManager_RemoveTitlebarsForTiledWindows(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RemoveTitlebars = true
	f := newFixture(t, cfg)

	f.fake.Add(1, appWindow("editor", "code"))
	f.fake.Add(2, appWindow("bar", "polybar"))
	f.tick()

	f.clock.Advance(time.Second)
	f.tick()

	w, _ := f.fake.Window(1)
	if w.Style&platform.StyleCaption != 0 {
		t.Fatalf("expected caption to be stripped, style %#x", w.Style)
	}
	for _, c := range f.fake.CallsTo(2) {
		if c.Op == "SetStyle" {
			t.Fatalf("taskbar window should keep its style")
		}
	}
}

func TestService_ApplyReclassifies(t *testing.T) {
	f := newFixture(t, nil)
	f.fake.Add(1, appWindow("editor", "code"))
	f.fake.Add(2, appWindow("desktop", "xfdesktop"))
	f.tick()

	cfg := config.DefaultConfig()
	cfg.Classification.FloatingClasses = []string{"code"}
	cfg.Classification.IgnoreClasses = nil
	if err := f.svc.apply(cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	f.tick()

	if ws := f.state(1); ws.State != classify.Floating || ws.Reason != classify.ReasonFloatingClass {
		t.Fatalf("window 1: %s/%q", ws.State, ws.Reason)
	}
	if ws := f.state(2); ws.State != classify.Tiled {
		t.Fatalf("window 2 should be re-evaluated, got %s", ws.State)
	}
	if f.svc.Config() != cfg {
		t.Fatalf("config was not swapped")
	}
}

func TestService_ApplyRejectsBadFilters(t *testing.T) {
	f := newFixture(t, nil)
	old := f.svc.Config()

	cfg := config.DefaultConfig()
	cfg.Filters = append(cfg.Filters, filters.Rule{Class: "code", Action: "explode"})
	if err := f.svc.apply(cfg); err == nil {
		t.Fatalf("expected apply to fail")
	}
	if f.svc.Config() != old {
		t.Fatalf("config should be unchanged")
	}
}

func TestService_WindowActions(t *testing.T) {
	f := newFixture(t, nil)
	f.fake.Add(1, appWindow("editor", "code"))
	f.tick()
	ctx := context.Background()

	if err := f.svc.WindowAction(ctx, ipc.WindowActionPayload{Window: 1, Action: ipc.ActionAlwaysOnTop}); err != nil {
		t.Fatalf("always_on_top: %v", err)
	}
	f.svc.sched.Drain()
	if w, _ := f.fake.Window(1); !w.TopMost {
		t.Fatalf("expected window to be topmost")
	}

	layout := &ipc.LayoutData{
		Rect:       ipc.RectData{X: 0, Y: 0, Width: 1000, Height: 800},
		Flush:      []string{"left", "top", "right", "bottom"},
		SkipInsets: true,
	}
	if err := f.svc.WindowAction(ctx, ipc.WindowActionPayload{Window: 1, Action: ipc.ActionSetLayout, Layout: layout}); err != nil {
		t.Fatalf("set_layout: %v", err)
	}
	f.tick()
	want := platform.Rect{Left: 10, Top: 10, Right: 990, Bottom: 790}
	if w, _ := f.fake.Window(1); w.Rect != want {
		t.Fatalf("rect = %v, want %v", w.Rect, want)
	}

	f.fake.Active = 1
	if err := f.svc.WindowAction(ctx, ipc.WindowActionPayload{Action: ipc.ActionMinimize}); err != nil {
		t.Fatalf("minimize active: %v", err)
	}
	f.svc.sched.Drain()
	if w, _ := f.fake.Window(1); w.Style&platform.StyleMinimize == 0 {
		t.Fatalf("expected active window to be minimized")
	}
}

func TestService_WindowActionErrors(t *testing.T) {
	f := newFixture(t, nil)
	f.fake.Add(1, appWindow("editor", "code"))
	f.tick()
	ctx := context.Background()

	cases := map[string]ipc.WindowActionPayload{
		"untracked":      {Window: 99, Action: ipc.ActionClose},
		"no active":      {Action: ipc.ActionClose},
		"unknown":        {Window: 1, Action: "dance"},
		"resizable":      {Window: 1, Action: ipc.ActionResizable},
		"float_to":       {Window: 1, Action: ipc.ActionFloatTo},
		"set_layout":     {Window: 1, Action: ipc.ActionSetLayout},
		"bad edge":       {Window: 1, Action: ipc.ActionSetLayout, Layout: &ipc.LayoutData{Flush: []string{"middle"}}},
		"negative delay": {Window: 1, Action: ipc.ActionDelayedHide, DelayMS: -1},
	}
	for name, req := range cases {
		if err := f.svc.WindowAction(ctx, req); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestService_HotkeyClosesActiveWindow(t *testing.T) {
	f := newFixture(t, nil)
	f.fake.Add(1, appWindow("editor", "code"))
	f.tick()
	f.fake.Active = 1

	f.svc.HandleHotkey(config.Hotkey{Keys: "Mod4-Shift-q", Action: config.HotkeyClose})
	f.svc.sched.Drain()

	closed := false
	for _, c := range f.fake.CallsTo(1) {
		if c.Op == "PostClose" {
			closed = true
		}
	}
	if !closed {
		t.Fatalf("expected PostClose, calls: %v", f.fake.CallsTo(1))
	}
}

func TestService_HotkeyExecRunsOnPool(t *testing.T) {
	f := newFixture(t, nil)
	marker := filepath.Join(t.TempDir(), "ran")

	f.svc.HandleHotkey(config.Hotkey{Keys: "Mod4-Return", Action: config.HotkeyExec, Command: []string{"sh", "-c", "touch " + marker}})
	f.svc.sched.Drain()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.svc.sched.Pool().Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("expected command to run: %v", err)
	}
}

func TestService_Status(t *testing.T) {
	f := newFixture(t, nil)
	f.fake.Add(1, appWindow("editor", "code"))
	f.fake.Add(2, appWindow("bar", "polybar"))
	f.tick()
	f.clock.Advance(90 * time.Second)

	st := f.svc.Status()
	if !st.DaemonRunning || st.Windows != 2 || st.Tiled != 1 || st.Ignored != 1 {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.UptimeSeconds != 90 || st.Ticks != 1 {
		t.Fatalf("unexpected uptime/ticks: %+v", st)
	}

	infos := f.svc.Windows()
	if len(infos) != 2 || infos[0].Handle != 1 || infos[0].State != "Tiled" {
		t.Fatalf("unexpected windows: %+v", infos)
	}
	if infos[0].Rect != (ipc.RectData{X: 100, Y: 100, Width: 800, Height: 600}) {
		t.Fatalf("unexpected rect: %+v", infos[0].Rect)
	}
}

func TestService_RunServesIPCAndReloads(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("remove_titlebars: false\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	sock := filepath.Join(dir, "d.sock")

	fake := platformtest.New()
	fake.Add(1, appWindow("editor", "code"))
	svc, err := New(Options{
		Logger:     discardLogger(),
		ConfigPath: cfgPath,
		Backend:    fake,
		SocketPath: sock,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	defer cancel()

	client := ipc.NewClientWithSocket(sock)
	deadline := time.Now().Add(5 * time.Second)
	for {
		data, err := client.ListWindows()
		if err == nil && len(data.Windows) == 1 && data.Windows[0].State == "Tiled" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("window never listed: %v %+v", err, data)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := os.WriteFile(cfgPath, []byte("remove_titlebars: true\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := client.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if !svc.Config().RemoveTitlebars {
		t.Fatalf("expected reloaded config")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop")
	}
	if _, err := os.Stat(sock); !os.IsNotExist(err) {
		t.Fatalf("socket should be removed")
	}
}
