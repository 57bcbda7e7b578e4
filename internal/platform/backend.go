package platform

import (
	"fmt"
	"time"
)

// Handle is an opaque reference to a native top-level window. It is never
// owned; the window system may revoke it at any time.
type Handle uint32

func (h Handle) String() string {
	return fmt.Sprintf("0x%x", uint32(h))
}

// Rect describes a rectangle in screen coordinates by its edges.
type Rect struct {
	Left   int
	Top    int
	Right  int
	Bottom int
}

// RectXYWH builds a Rect from a position and a size.
func RectXYWH(x, y, width, height int) Rect {
	return Rect{Left: x, Top: y, Right: x + width, Bottom: y + height}
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }

// Overlaps reports whether r and o share a non-empty area.
func (r Rect) Overlaps(o Rect) bool {
	return r.Left < o.Right && o.Left < r.Right && r.Top < o.Bottom && o.Top < r.Bottom
}

// Union returns the smallest rectangle containing both r and o.
func (r Rect) Union(o Rect) Rect {
	if r.Width() <= 0 || r.Height() <= 0 {
		return o
	}
	if o.Width() <= 0 || o.Height() <= 0 {
		return r
	}
	return Rect{
		Left:   min(r.Left, o.Left),
		Top:    min(r.Top, o.Top),
		Right:  max(r.Right, o.Right),
		Bottom: max(r.Bottom, o.Bottom),
	}
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", r.Left, r.Top, r.Width(), r.Height())
}

// Insets are per-edge thicknesses, e.g. invisible frame borders the window
// system draws outside the visible client area.
type Insets struct {
	Left   int
	Top    int
	Right  int
	Bottom int
}

// Style is the window style bit-field.
type Style uint32

const (
	StyleSizeBox  Style = 0x00040000
	StyleSysMenu  Style = 0x00080000
	StyleCaption  Style = 0x00C00000
	StyleMaximize Style = 0x01000000
	StyleDisabled Style = 0x08000000
	StyleMinimize Style = 0x20000000
	StylePopup    Style = 0x80000000
)

// ExStyle is the extended window style bit-field.
type ExStyle uint32

const (
	ExStyleAppWindow  ExStyle = 0x00040000
	ExStyleLayered    ExStyle = 0x00080000
	ExStyleNoActivate ExStyle = 0x08000000
)

// ZOrder selects where SetPos places the window in the stacking order.
type ZOrder int

const (
	ZTop ZOrder = iota
	ZBottom
	ZTopmost
	ZNoTopmost
)

// PosFlags modify SetPos.
type PosFlags uint32

const (
	PosNoSize PosFlags = 1 << iota
	PosNoMove
	PosNoActivate
	PosAsync
	PosNoRedraw
	PosNoZOrder
)

// ShowCmd is a visibility command for ShowWindow.
type ShowCmd int

const (
	ShowHide ShowCmd = iota
	ShowNoActivate
	ShowRestore
	ShowMinimize
)

// Attributes is one snapshot of a window's observable state.
type Attributes struct {
	Title        string
	Class        string
	Visible      bool
	Cloaked      bool
	Child        bool
	Hung         bool
	ForceVisible bool
	Rect         Rect
	Style        Style
	ExStyle      ExStyle
}

// CanResize reports whether the window carries a size grip.
func (a Attributes) CanResize() bool { return a.Style&StyleSizeBox != 0 }

// IsTaskbarIgnored reports the "no-activate but not app-window" combination
// the window system itself hides from task switching.
func (a Attributes) IsTaskbarIgnored() bool {
	return a.ExStyle&ExStyleNoActivate != 0 && a.ExStyle&ExStyleAppWindow == 0
}

func (a Attributes) IsMinimized() bool { return a.Style&StyleMinimize != 0 }
func (a Attributes) IsMaximized() bool { return a.Style&StyleMaximize != 0 }

// NativeAPI is the set of per-window native calls the proxies rely on.
// Implementations must tolerate stale handles: getters return zero values and
// setters return errors.
type NativeAPI interface {
	Windows() ([]Handle, error)
	IsWindow(h Handle) bool

	Title(h Handle) string
	Class(h Handle) string
	Style(h Handle) Style
	ExStyle(h Handle) ExStyle
	SetStyle(h Handle, style Style) error
	Rect(h Handle) (Rect, bool)

	IsVisible(h Handle) bool
	IsCloaked(h Handle) bool
	IsHung(h Handle) bool
	IsChild(h Handle) bool

	// FrameInsets returns how far the window system extends the window
	// beyond its visible area for the given style.
	FrameInsets(h Handle, style Style, exStyle ExStyle) (Insets, error)

	SetPos(h Handle, z ZOrder, r Rect, flags PosFlags) error
	ShowWindow(h Handle, cmd ShowCmd) error
	PostClose(h Handle) error
}

// GeometryWaiter is implemented by window systems that apply position
// requests asynchronously. WaitRect blocks until the window reports want or
// timeout passes, and returns the last geometry read.
type GeometryWaiter interface {
	WaitRect(h Handle, want Rect, timeout time.Duration) (Rect, bool)
}

// Display describes a physical display and its usable work area.
type Display struct {
	ID      int
	Name    string
	Primary bool
	Bounds  Rect
	Usable  Rect // Bounds minus panels and docks
}

// Backend is the full window-system capability used by the daemon.
type Backend interface {
	NativeAPI

	Displays() ([]Display, error)
	ActiveWindow() (Handle, error)
	// DesktopArea is the union of all usable display areas.
	DesktopArea() Rect
}
