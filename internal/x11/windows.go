package x11

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/motif"
	"github.com/BurntSushi/xgbutil/xprop"
)

// ClientList returns the managed top-level windows in mapping order.
func (c *Connection) ClientList() ([]xproto.Window, error) {
	clients, err := ewmh.ClientListGet(c.XUtil)
	if err != nil {
		return nil, fmt.Errorf("failed to get client list: %w", err)
	}
	c.pings.retain(clients)
	return clients, nil
}

// Exists reports whether windowID still refers to a live window.
func (c *Connection) Exists(windowID xproto.Window) bool {
	_, err := xproto.GetWindowAttributes(c.XUtil.Conn(), windowID).Reply()
	return err == nil
}

// IsViewable reports whether the window is mapped and all its ancestors are.
func (c *Connection) IsViewable(windowID xproto.Window) bool {
	attrs, err := xproto.GetWindowAttributes(c.XUtil.Conn(), windowID).Reply()
	if err != nil {
		return false
	}
	return attrs.MapState == xproto.MapStateViewable
}

// Title returns the EWMH name, falling back to WM_NAME.
func (c *Connection) Title(windowID xproto.Window) string {
	title, err := ewmh.WmNameGet(c.XUtil, windowID)
	if err == nil {
		title = strings.TrimSpace(title)
		if title != "" {
			return title
		}
	}

	title, err = icccm.WmNameGet(c.XUtil, windowID)
	if err == nil {
		return strings.TrimSpace(title)
	}
	return ""
}

// Class returns the WM_CLASS class part.
func (c *Connection) Class(windowID xproto.Window) string {
	wmClass, err := icccm.WmClassGet(c.XUtil, windowID)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(wmClass.Class)
}

// States returns the window's _NET_WM_STATE atoms.
func (c *Connection) States(windowID xproto.Window) []string {
	states, err := ewmh.WmStateGet(c.XUtil, windowID)
	if err != nil {
		return nil
	}
	return states
}

// HasState reports whether the window carries the given _NET_WM_STATE atom.
func (c *Connection) HasState(windowID xproto.Window, state string) bool {
	for _, s := range c.States(windowID) {
		if s == state {
			return true
		}
	}
	return false
}

// SetState adds or removes a _NET_WM_STATE atom through the window manager.
func (c *Connection) SetState(windowID xproto.Window, state string, on bool) error {
	action := ewmh.StateRemove
	if on {
		action = ewmh.StateAdd
	}
	return ewmh.WmStateReq(c.XUtil, windowID, action, state)
}

// WindowTypes returns the window's _NET_WM_WINDOW_TYPE atoms.
func (c *Connection) WindowTypes(windowID xproto.Window) []string {
	types, err := ewmh.WmWindowTypeGet(c.XUtil, windowID)
	if err != nil {
		return nil
	}
	return types
}

// IsTransient reports whether the window is transient for another window.
func (c *Connection) IsTransient(windowID xproto.Window) bool {
	parent, err := icccm.WmTransientForGet(c.XUtil, windowID)
	return err == nil && parent != 0
}

// AcceptsInput reports the WM_HINTS input flag, or true if no hints are set.
func (c *Connection) AcceptsInput(windowID xproto.Window) bool {
	hints, err := icccm.WmHintsGet(c.XUtil, windowID)
	if err != nil || hints.Flags&icccm.HintInput == 0 {
		return true
	}
	return hints.Input != 0
}

// HasOpacity reports whether a compositor opacity is set on the window.
func (c *Connection) HasOpacity(windowID xproto.Window) bool {
	_, err := ewmh.WmWindowOpacityGet(c.XUtil, windowID)
	return err == nil
}

// IsResizable reports whether WM_NORMAL_HINTS allow the size to change.
func (c *Connection) IsResizable(windowID xproto.Window) bool {
	hints, err := icccm.WmNormalHintsGet(c.XUtil, windowID)
	if err != nil {
		return true
	}
	if hints.Flags&icccm.SizeHintPMinSize == 0 || hints.Flags&icccm.SizeHintPMaxSize == 0 {
		return true
	}
	return hints.MinWidth != hints.MaxWidth || hints.MinHeight != hints.MaxHeight
}

// SetResizable pins or releases the window's size through WM_NORMAL_HINTS.
func (c *Connection) SetResizable(windowID xproto.Window, resizable bool) error {
	hints, err := icccm.WmNormalHintsGet(c.XUtil, windowID)
	if err != nil {
		hints = &icccm.NormalHints{}
	}
	if resizable {
		hints.Flags &^= icccm.SizeHintPMinSize | icccm.SizeHintPMaxSize
		hints.MinWidth, hints.MinHeight, hints.MaxWidth, hints.MaxHeight = 0, 0, 0, 0
	} else {
		geom, err := xproto.GetGeometry(c.XUtil.Conn(), xproto.Drawable(windowID)).Reply()
		if err != nil {
			return fmt.Errorf("failed to get geometry: %w", err)
		}
		hints.Flags |= icccm.SizeHintPMinSize | icccm.SizeHintPMaxSize
		hints.MinWidth, hints.MaxWidth = uint(geom.Width), uint(geom.Width)
		hints.MinHeight, hints.MaxHeight = uint(geom.Height), uint(geom.Height)
	}
	return icccm.WmNormalHintsSet(c.XUtil, windowID, hints)
}

// Decorations returns the Motif decoration bits, or DecorationAll if the
// window does not set any.
func (c *Connection) Decorations(windowID xproto.Window) uint {
	hints, err := motif.WmHintsGet(c.XUtil, windowID)
	if err != nil || hints.Flags&motif.HintDecorations == 0 {
		return motif.DecorationAll
	}
	return hints.Decoration
}

// SetDecorated asks the window manager to draw or drop the title bar.
func (c *Connection) SetDecorated(windowID xproto.Window, decorated bool) error {
	hints, err := motif.WmHintsGet(c.XUtil, windowID)
	if err != nil {
		hints = &motif.Hints{}
	}
	hints.Flags |= motif.HintDecorations
	if decorated {
		hints.Decoration = motif.DecorationAll
	} else {
		hints.Decoration = motif.DecorationNone
	}
	return motif.WmHintsSet(c.XUtil, windowID, hints)
}

// GetFrameExtents returns the window decoration sizes (if available)
func (c *Connection) GetFrameExtents(windowID xproto.Window) (left, right, top, bottom int, err error) {
	extents, err := ewmh.FrameExtentsGet(c.XUtil, windowID)
	if err != nil {
		// No frame extents available, return zeros
		return 0, 0, 0, 0, nil
	}

	return int(extents.Left), int(extents.Right), int(extents.Top), int(extents.Bottom), nil
}

// GetShadowExtents returns the client-side shadow a CSD window draws outside
// its visible area (_GTK_FRAME_EXTENTS), or zeros.
func (c *Connection) GetShadowExtents(windowID xproto.Window) (left, right, top, bottom int) {
	vals, err := xprop.PropValNums(xprop.GetProperty(c.XUtil, windowID, "_GTK_FRAME_EXTENTS"))
	if err != nil || len(vals) < 4 {
		return 0, 0, 0, 0
	}
	return int(vals[0]), int(vals[1]), int(vals[2]), int(vals[3])
}

// OuterGeometry returns the window rectangle including WM frame decorations,
// in root coordinates.
func (c *Connection) OuterGeometry(windowID xproto.Window) (x, y, width, height int, ok bool) {
	geom, err := xproto.GetGeometry(c.XUtil.Conn(), xproto.Drawable(windowID)).Reply()
	if err != nil {
		return 0, 0, 0, 0, false
	}

	translate, err := xproto.TranslateCoordinates(
		c.XUtil.Conn(),
		windowID,
		c.Root,
		0, 0,
	).Reply()
	if err != nil {
		return 0, 0, 0, 0, false
	}

	left, right, top, bottom, _ := c.GetFrameExtents(windowID)
	return int(translate.DstX) - left,
		int(translate.DstY) - top,
		int(geom.Width) + left + right,
		int(geom.Height) + top + bottom,
		true
}

// WaitGeometry polls the outer geometry until it matches the wanted one or
// timeout passes. Each poll is a server round trip, which also gives the
// window manager time to act on a pending move request.
func (c *Connection) WaitGeometry(windowID xproto.Window, x, y, width, height int, timeout time.Duration) (gx, gy, gw, gh int, ok bool) {
	const poll = 2 * time.Millisecond
	deadline := time.Now().Add(timeout)
	for {
		gx, gy, gw, gh, ok = c.OuterGeometry(windowID)
		if !ok || (gx == x && gy == y && gw == width && gh == height) || !time.Now().Before(deadline) {
			return gx, gy, gw, gh, ok
		}
		time.Sleep(poll)
	}
}

// MoveResizeWindow places the window so that its outer frame covers the given
// geometry.
func (c *Connection) MoveResizeWindow(windowID xproto.Window, x, y, width, height int) error {
	// A maximized window ignores geometry requests.
	// Some windows don't support this; carry on regardless.
	_ = c.unmaximizeWindow(windowID)

	left, right, top, bottom, _ := c.GetFrameExtents(windowID)
	width -= left + right
	height -= top + bottom
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	// Use EWMH MoveResize for better WM compatibility
	if err := ewmh.MoveresizeWindow(c.XUtil, windowID, x, y, width, height); err != nil {
		// Fallback to direct window manipulation
		return xproto.ConfigureWindowChecked(
			c.XUtil.Conn(),
			windowID,
			xproto.ConfigWindowX|xproto.ConfigWindowY|xproto.ConfigWindowWidth|xproto.ConfigWindowHeight,
			[]uint32{uint32(int32(x)), uint32(int32(y)), uint32(width), uint32(height)},
		).Check()
	}
	return nil
}

// Restack moves the window to the top or bottom of its stacking layer.
func (c *Connection) Restack(windowID xproto.Window, above bool) error {
	mode := uint32(xproto.StackModeBelow)
	if above {
		mode = xproto.StackModeAbove
	}
	return xproto.ConfigureWindowChecked(
		c.XUtil.Conn(),
		windowID,
		xproto.ConfigWindowStackMode,
		[]uint32{mode},
	).Check()
}

// unmaximizeWindow removes maximized state from a window
func (c *Connection) unmaximizeWindow(windowID xproto.Window) error {
	states, err := ewmh.WmStateGet(c.XUtil, windowID)
	if err != nil {
		return err
	}

	for _, state := range states {
		if state == "_NET_WM_STATE_MAXIMIZED_HORZ" || state == "_NET_WM_STATE_MAXIMIZED_VERT" {
			if err := ewmh.WmStateReq(c.XUtil, windowID, ewmh.StateRemove, state); err != nil {
				return err
			}
		}
	}
	return nil
}

// Unmaximize drops any maximized state.
func (c *Connection) Unmaximize(windowID xproto.Window) error {
	return c.unmaximizeWindow(windowID)
}

// Map maps the window and clears a minimized state.
func (c *Connection) Map(windowID xproto.Window) error {
	if err := xproto.MapWindowChecked(c.XUtil.Conn(), windowID).Check(); err != nil {
		return fmt.Errorf("failed to map window: %w", err)
	}
	if c.HasState(windowID, "_NET_WM_STATE_HIDDEN") {
		return c.SetState(windowID, "_NET_WM_STATE_HIDDEN", false)
	}
	return nil
}

// Iconify minimizes a window via WM_CHANGE_STATE.
func (c *Connection) Iconify(windowID xproto.Window) error {
	const iconicState = 3
	return c.sendClientMessage(
		c.Root,
		windowID,
		"WM_CHANGE_STATE",
		[]uint32{iconicState},
		xproto.EventMaskSubstructureRedirect|xproto.EventMaskSubstructureNotify,
	)
}

// RequestClose requests graceful window close via WM_DELETE_WINDOW.
func (c *Connection) RequestClose(windowID xproto.Window) error {
	deleteAtom, err := c.atom("WM_DELETE_WINDOW")
	if err != nil {
		return err
	}
	return c.sendClientMessage(
		windowID,
		windowID,
		"WM_PROTOCOLS",
		[]uint32{uint32(deleteAtom)},
		xproto.EventMaskNoEvent,
	)
}

func (c *Connection) GetActiveWindow() (xproto.Window, error) {
	return ewmh.ActiveWindowGet(c.XUtil)
}
