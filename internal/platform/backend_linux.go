//go:build linux

package platform

import (
	"fmt"
	"sync"
	"time"

	"github.com/1broseidon/wintile/internal/x11"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/motif"
)

// LinuxBackend wraps an existing X11 connection behind the platform Backend interface.
type LinuxBackend struct {
	conn *x11.Connection

	mu       sync.Mutex
	lastArea Rect
}

var (
	_ Backend        = (*LinuxBackend)(nil)
	_ GeometryWaiter = (*LinuxBackend)(nil)
)

// NewLinuxBackend creates a Linux platform backend from an existing X11 connection.
func NewLinuxBackend(conn *x11.Connection) *LinuxBackend {
	return &LinuxBackend{conn: conn}
}

// NewLinuxBackendFromDisplay creates a new Linux backend by opening a fresh X11 connection.
func NewLinuxBackendFromDisplay() (*LinuxBackend, error) {
	conn, err := x11.NewConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X11: %w", err)
	}
	return &LinuxBackend{conn: conn}, nil
}

// Disconnect closes the underlying X11 connection.
func (b *LinuxBackend) Disconnect() {
	if b != nil && b.conn != nil {
		b.conn.Close()
	}
}

// EventLoop starts the X11 event loop (blocking).
func (b *LinuxBackend) EventLoop() {
	if b != nil && b.conn != nil {
		b.conn.EventLoop()
	}
}

// StopEventLoop makes a running EventLoop return.
func (b *LinuxBackend) StopEventLoop() {
	if b != nil && b.conn != nil {
		b.conn.Quit()
	}
}

// XUtil returns the underlying xgbutil connection for X11-specific operations.
func (b *LinuxBackend) XUtil() *xgbutil.XUtil {
	if b == nil || b.conn == nil {
		return nil
	}
	return b.conn.XUtil
}

// RootWindow returns the X11 root window ID.
func (b *LinuxBackend) RootWindow() xproto.Window {
	if b == nil || b.conn == nil {
		return 0
	}
	return b.conn.Root
}

// Displays returns all active displays.
func (b *LinuxBackend) Displays() ([]Display, error) {
	monitors, err := b.conn.GetMonitors()
	if err != nil {
		return nil, err
	}

	displays := make([]Display, 0, len(monitors))
	for _, m := range monitors {
		usable := b.conn.UsableArea(m)
		displays = append(displays, Display{
			ID:      m.ID,
			Name:    m.Name,
			Primary: m.Primary,
			Bounds:  RectXYWH(m.X, m.Y, m.Width, m.Height),
			Usable:  RectXYWH(usable.X, usable.Y, usable.Width, usable.Height),
		})
	}
	return displays, nil
}

// DesktopArea returns the union of the usable areas of all displays. When
// the displays cannot be read the last known area is returned.
func (b *LinuxBackend) DesktopArea() Rect {
	b.mu.Lock()
	defer b.mu.Unlock()
	displays, err := b.Displays()
	if err != nil {
		return b.lastArea
	}
	var area Rect
	for _, d := range displays {
		area = area.Union(d.Usable)
	}
	b.lastArea = area
	return area
}

// ActiveWindow returns the currently active/focused window ID.
func (b *LinuxBackend) ActiveWindow() (Handle, error) {
	wid, err := b.conn.GetActiveWindow()
	if err != nil {
		return 0, err
	}
	return Handle(wid), nil
}

// Windows lists the managed top-level windows.
func (b *LinuxBackend) Windows() ([]Handle, error) {
	clients, err := b.conn.ClientList()
	if err != nil {
		return nil, err
	}
	handles := make([]Handle, len(clients))
	for i, c := range clients {
		handles[i] = Handle(c)
	}
	return handles, nil
}

func (b *LinuxBackend) IsWindow(h Handle) bool   { return b.conn.Exists(xproto.Window(h)) }
func (b *LinuxBackend) Title(h Handle) string    { return b.conn.Title(xproto.Window(h)) }
func (b *LinuxBackend) Class(h Handle) string    { return b.conn.Class(xproto.Window(h)) }
func (b *LinuxBackend) IsVisible(h Handle) bool  { return b.conn.IsViewable(xproto.Window(h)) }
func (b *LinuxBackend) IsCloaked(h Handle) bool  { return b.conn.IsOnOtherDesktop(xproto.Window(h)) }
func (b *LinuxBackend) IsHung(h Handle) bool     { return b.conn.IsHung(xproto.Window(h)) }
func (b *LinuxBackend) IsChild(h Handle) bool    { return b.conn.IsTransient(xproto.Window(h)) }
func (b *LinuxBackend) PostClose(h Handle) error { return b.conn.RequestClose(xproto.Window(h)) }

// Style synthesizes style bits from ICCCM, EWMH and Motif hints.
func (b *LinuxBackend) Style(h Handle) Style {
	win := xproto.Window(h)
	var style Style

	if b.conn.IsResizable(win) {
		style |= StyleSizeBox
	}
	decor := b.conn.Decorations(win)
	if decor&(motif.DecorationAll|motif.DecorationTitle) != 0 {
		style |= StyleCaption
	}
	if decor&(motif.DecorationAll|motif.DecorationMenu) != 0 {
		style |= StyleSysMenu
	}
	for _, t := range b.conn.WindowTypes(win) {
		switch t {
		case "_NET_WM_WINDOW_TYPE_MENU",
			"_NET_WM_WINDOW_TYPE_POPUP_MENU",
			"_NET_WM_WINDOW_TYPE_DROPDOWN_MENU",
			"_NET_WM_WINDOW_TYPE_TOOLTIP",
			"_NET_WM_WINDOW_TYPE_NOTIFICATION",
			"_NET_WM_WINDOW_TYPE_COMBO",
			"_NET_WM_WINDOW_TYPE_DND":
			style |= StylePopup
		}
	}

	var maxH, maxV bool
	for _, s := range b.conn.States(win) {
		switch s {
		case "_NET_WM_STATE_HIDDEN":
			style |= StyleMinimize
		case "_NET_WM_STATE_MAXIMIZED_HORZ":
			maxH = true
		case "_NET_WM_STATE_MAXIMIZED_VERT":
			maxV = true
		}
	}
	if maxH && maxV {
		style |= StyleMaximize
	}
	return style
}

// ExStyle synthesizes extended style bits.
func (b *LinuxBackend) ExStyle(h Handle) ExStyle {
	win := xproto.Window(h)
	var ex ExStyle

	if !b.conn.AcceptsInput(win) {
		ex |= ExStyleNoActivate
	}
	if !b.conn.HasState(win, "_NET_WM_STATE_SKIP_TASKBAR") {
		ex |= ExStyleAppWindow
	}
	if b.conn.HasOpacity(win) {
		ex |= ExStyleLayered
	}
	return ex
}

// SetStyle applies the size-box and caption bits; other bits have no X11
// counterpart and are ignored.
func (b *LinuxBackend) SetStyle(h Handle, style Style) error {
	win := xproto.Window(h)
	current := b.Style(h)

	if (current^style)&StyleSizeBox != 0 {
		if err := b.conn.SetResizable(win, style&StyleSizeBox != 0); err != nil {
			return fmt.Errorf("failed to set resizable on %s: %w", h, err)
		}
	}
	if (current^style)&StyleCaption != 0 {
		if err := b.conn.SetDecorated(win, style&StyleCaption != 0); err != nil {
			return fmt.Errorf("failed to set decorations on %s: %w", h, err)
		}
	}
	return nil
}

// Rect returns the outer window rectangle, including WM decorations.
func (b *LinuxBackend) Rect(h Handle) (Rect, bool) {
	x, y, w, hgt, ok := b.conn.OuterGeometry(xproto.Window(h))
	if !ok {
		return Rect{}, false
	}
	return RectXYWH(x, y, w, hgt), true
}

// WaitRect waits for the window manager to act on a move request; EWMH
// moves are handled by the window manager after SetPos returns.
func (b *LinuxBackend) WaitRect(h Handle, want Rect, timeout time.Duration) (Rect, bool) {
	x, y, w, hgt, ok := b.conn.WaitGeometry(xproto.Window(h), want.Left, want.Top, want.Width(), want.Height(), timeout)
	if !ok {
		return Rect{}, false
	}
	return RectXYWH(x, y, w, hgt), true
}

// FrameInsets reports the invisible client-side shadow around CSD windows.
// Server-side frames are visible and already part of Rect.
func (b *LinuxBackend) FrameInsets(h Handle, style Style, exStyle ExStyle) (Insets, error) {
	left, right, top, bottom := b.conn.GetShadowExtents(xproto.Window(h))
	return Insets{Left: left, Top: top, Right: right, Bottom: bottom}, nil
}

// SetPos moves, resizes and restacks a window.
func (b *LinuxBackend) SetPos(h Handle, z ZOrder, r Rect, flags PosFlags) error {
	win := xproto.Window(h)

	if flags&PosNoZOrder == 0 {
		switch z {
		case ZTopmost:
			if err := b.conn.SetState(win, "_NET_WM_STATE_ABOVE", true); err != nil {
				return err
			}
		case ZNoTopmost:
			if err := b.conn.SetState(win, "_NET_WM_STATE_ABOVE", false); err != nil {
				return err
			}
		case ZTop:
			if err := b.conn.Restack(win, true); err != nil {
				return err
			}
		case ZBottom:
			if err := b.conn.Restack(win, false); err != nil {
				return err
			}
		}
	}

	if flags&(PosNoMove|PosNoSize) == PosNoMove|PosNoSize {
		return nil
	}
	target := r
	if flags&(PosNoMove|PosNoSize) != 0 {
		current, ok := b.Rect(h)
		if !ok {
			return fmt.Errorf("window %s has no geometry", h)
		}
		if flags&PosNoMove != 0 {
			target = RectXYWH(current.Left, current.Top, r.Width(), r.Height())
		}
		if flags&PosNoSize != 0 {
			target = RectXYWH(r.Left, r.Top, current.Width(), current.Height())
		}
	}
	return b.conn.MoveResizeWindow(win, target.Left, target.Top, target.Width(), target.Height())
}

// ShowWindow maps, unmaps or minimizes a window.
func (b *LinuxBackend) ShowWindow(h Handle, cmd ShowCmd) error {
	win := xproto.Window(h)
	switch cmd {
	case ShowHide, ShowMinimize:
		return b.conn.Iconify(win)
	case ShowNoActivate:
		return b.conn.Map(win)
	case ShowRestore:
		if err := b.conn.Map(win); err != nil {
			return err
		}
		if err := b.conn.Unmaximize(win); err != nil {
			return err
		}
		return b.conn.Activate(win)
	default:
		return fmt.Errorf("unknown show command %d", cmd)
	}
}
