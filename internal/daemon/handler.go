package daemon

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/1broseidon/wintile/internal/classify"
	"github.com/1broseidon/wintile/internal/commands"
	"github.com/1broseidon/wintile/internal/config"
	"github.com/1broseidon/wintile/internal/ipc"
	"github.com/1broseidon/wintile/internal/platform"
	"github.com/1broseidon/wintile/internal/winproxy"
)

// hotkeyTimeout bounds a hotkey-triggered reload.
const hotkeyTimeout = 5 * time.Second

// Status implements ipc.Handler.
func (s *Service) Status() ipc.StatusData {
	counts := s.manager.Counts()

	s.mu.Lock()
	files := append([]string(nil), s.files...)
	s.mu.Unlock()

	total := 0
	for _, n := range counts {
		total += n
	}
	return ipc.StatusData{
		DaemonRunning: true,
		UptimeSeconds: int64(s.opts.Now().Sub(s.started).Seconds()),
		Ticks:         s.manager.Ticks(),
		Windows:       total,
		Tiled:         counts[classify.Tiled],
		Floating:      counts[classify.Floating],
		Ignored:       counts[classify.IgnorePermanent] + counts[classify.IgnoreTemporary],
		ConfigFiles:   files,
	}
}

// Windows implements ipc.Handler.
func (s *Service) Windows() []ipc.WindowInfo {
	states := s.manager.Windows()
	out := make([]ipc.WindowInfo, 0, len(states))
	for _, ws := range states {
		a := ws.Attributes
		out = append(out, ipc.WindowInfo{
			Handle:       uint32(ws.Handle),
			Seq:          ws.Seq,
			Title:        a.Title,
			Class:        a.Class,
			State:        ws.State.String(),
			Reason:       string(ws.Reason),
			Visible:      a.Visible,
			Cloaked:      a.Cloaked,
			Hung:         a.Hung,
			ForceVisible: a.ForceVisible,
			AlwaysOnTop:  ws.AlwaysOnTop,
			Minimized:    a.IsMinimized(),
			Maximized:    a.IsMaximized(),
			Rect:         rectData(a.Rect),
			Generation:   ws.Generation,
		})
	}
	return out
}

// WindowAction implements ipc.Handler. Window 0 targets the active window.
func (s *Service) WindowAction(ctx context.Context, req ipc.WindowActionPayload) error {
	p, err := s.resolve(platform.Handle(req.Window))
	if err != nil {
		return err
	}

	switch req.Action {
	case ipc.ActionShow:
		return p.Show()
	case ipc.ActionHide:
		return p.Hide()
	case ipc.ActionClose:
		return p.Close()
	case ipc.ActionPoke:
		return p.Poke()
	case ipc.ActionMinimize:
		return p.Minimize()
	case ipc.ActionRestore:
		return p.Restore()
	case ipc.ActionUnmaximize:
		return p.RemoveMaximized()
	case ipc.ActionRemoveTitlebar:
		return p.RemoveTitlebar()
	case ipc.ActionAlwaysOnTop:
		on := !p.AlwaysOnTop()
		if req.Value != nil {
			on = *req.Value
		}
		return p.SetAlwaysOnTop(on)
	case ipc.ActionResizable:
		if req.Value == nil {
			return fmt.Errorf("%s requires value", req.Action)
		}
		return p.SetResizable(*req.Value)
	case ipc.ActionFloatTo:
		if req.Rect == nil {
			return fmt.Errorf("%s requires rect", req.Action)
		}
		return p.MoveFloatingTo(platformRect(*req.Rect))
	case ipc.ActionShowAt:
		if req.Rect == nil {
			return fmt.Errorf("%s requires rect", req.Action)
		}
		return p.ShowWithRect(platformRect(*req.Rect))
	case ipc.ActionDelayedShow, ipc.ActionDelayedHide:
		if req.DelayMS < 0 {
			return fmt.Errorf("delay_ms must be >= 0")
		}
		d := time.Duration(req.DelayMS) * time.Millisecond
		if req.Action == ipc.ActionDelayedShow {
			return p.DelayedShow(d)
		}
		return p.DelayedHide(d)
	case ipc.ActionSetLayout:
		if req.Layout == nil {
			return fmt.Errorf("%s requires layout", req.Action)
		}
		intent, err := layoutIntent(*req.Layout)
		if err != nil {
			return err
		}
		p.SetTabGroup(req.Layout.TabGroup)
		return p.SetLayout(intent)
	default:
		return fmt.Errorf("unknown action %q", req.Action)
	}
}

func (s *Service) resolve(h platform.Handle) (*winproxy.Proxy, error) {
	if h == 0 {
		active, err := s.backend.ActiveWindow()
		if err != nil {
			return nil, fmt.Errorf("failed to get active window: %w", err)
		}
		h = active
	}
	p, ok := s.registry.Get(h)
	if !ok {
		return nil, fmt.Errorf("window %s is not tracked", h)
	}
	return p, nil
}

var hotkeyToAction = map[config.HotkeyAction]ipc.Action{
	config.HotkeyClose:          ipc.ActionClose,
	config.HotkeyMinimize:       ipc.ActionMinimize,
	config.HotkeyRestore:        ipc.ActionRestore,
	config.HotkeyUnmaximize:     ipc.ActionUnmaximize,
	config.HotkeyPoke:           ipc.ActionPoke,
	config.HotkeyAlwaysOnTop:    ipc.ActionAlwaysOnTop,
	config.HotkeyRemoveTitlebar: ipc.ActionRemoveTitlebar,
}

// HandleHotkey runs a bound hotkey. It is called from the event loop, so
// anything that waits on the scheduler runs on its own goroutine.
func (s *Service) HandleHotkey(hk config.Hotkey) {
	switch hk.Action {
	case config.HotkeyReload:
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), hotkeyTimeout)
			defer cancel()
			s.reloadAndLog(ctx, "hotkey "+hk.Keys)
		}()
	case config.HotkeyExec:
		s.main.Queue(execCommand(hk.Command))
	default:
		action, ok := hotkeyToAction[hk.Action]
		if !ok {
			s.logger.Warn("unknown hotkey action", "keys", hk.Keys, "action", hk.Action)
			return
		}
		if err := s.WindowAction(context.Background(), ipc.WindowActionPayload{Action: action}); err != nil {
			s.logger.Warn("hotkey action failed", "keys", hk.Keys, "action", hk.Action, "error", err)
		}
	}
}

// execCommand runs argv on the worker pool and waits for it to exit.
func execCommand(argv []string) commands.Command {
	return commands.Threaded("exec "+strings.Join(argv, " "), func() error {
		if len(argv) == 0 {
			return fmt.Errorf("empty command")
		}
		cmd := exec.Command(argv[0], argv[1:]...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%s: %w", argv[0], err)
		}
		return nil
	})
}

func rectData(r platform.Rect) ipc.RectData {
	return ipc.RectData{X: r.Left, Y: r.Top, Width: r.Width(), Height: r.Height()}
}

func platformRect(r ipc.RectData) platform.Rect {
	return platform.RectXYWH(r.X, r.Y, r.Width, r.Height)
}

var edgeNames = map[string]winproxy.Edges{
	"left":   winproxy.EdgeLeft,
	"top":    winproxy.EdgeTop,
	"right":  winproxy.EdgeRight,
	"bottom": winproxy.EdgeBottom,
}

func layoutIntent(l ipc.LayoutData) (winproxy.LayoutIntent, error) {
	intent := winproxy.LayoutIntent{
		Rect:       platformRect(l.Rect),
		SkipInsets: l.SkipInsets,
	}
	for _, name := range l.Flush {
		edge, ok := edgeNames[strings.ToLower(name)]
		if !ok {
			return winproxy.LayoutIntent{}, fmt.Errorf("unknown edge %q", name)
		}
		intent.Flush |= edge
	}
	if l.Margin != nil {
		intent.Margin = &winproxy.Margin{
			Left:   l.Margin.Left,
			Top:    l.Margin.Top,
			Right:  l.Margin.Right,
			Bottom: l.Margin.Bottom,
		}
	}
	return intent, nil
}
