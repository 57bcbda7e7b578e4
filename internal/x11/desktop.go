package x11

import (
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
)

// allDesktops is the _NET_WM_DESKTOP value of sticky windows.
const allDesktops = 0xFFFFFFFF

// Area is a rectangle in root window coordinates.
type Area struct {
	X, Y, Width, Height int
}

// Desktops is a snapshot of the EWMH virtual desktop properties on the root
// window. Missing properties leave their zero value.
type Desktops struct {
	Current   int
	Count     int
	Workareas []Area
}

// Desktops reads the virtual desktop state. Window managers without EWMH
// desktops yield a single desktop 0 with no work area.
func (c *Connection) Desktops() Desktops {
	var d Desktops
	if cur, err := ewmh.CurrentDesktopGet(c.XUtil); err == nil {
		d.Current = int(cur)
	}
	if n, err := ewmh.NumberOfDesktopsGet(c.XUtil); err == nil {
		d.Count = int(n)
	}
	if was, err := ewmh.WorkareaGet(c.XUtil); err == nil {
		d.Workareas = make([]Area, len(was))
		for i, wa := range was {
			d.Workareas[i] = Area{X: int(wa.X), Y: int(wa.Y), Width: int(wa.Width), Height: int(wa.Height)}
		}
	}
	return d
}

// Workarea returns the work area of the current desktop. Some window
// managers publish one area for all desktops; that one is used then.
func (d Desktops) Workarea() (Area, bool) {
	switch {
	case d.Current >= 0 && d.Current < len(d.Workareas):
		return d.Workareas[d.Current], true
	case len(d.Workareas) > 0:
		return d.Workareas[0], true
	default:
		return Area{}, false
	}
}

// WindowDesktop returns the desktop a window is on, -1 for sticky windows.
// ok is false when the window does not say.
func (c *Connection) WindowDesktop(windowID xproto.Window) (desktop int, ok bool) {
	n, err := ewmh.WmDesktopGet(c.XUtil, windowID)
	if err != nil {
		return 0, false
	}
	if n == allDesktops {
		return -1, true
	}
	return int(n), true
}

// IsOnOtherDesktop reports whether the window sits on a virtual desktop
// other than the current one. Such windows are kept alive but not shown,
// so they are treated as cloaked.
func (c *Connection) IsOnOtherDesktop(windowID xproto.Window) bool {
	desktop, ok := c.WindowDesktop(windowID)
	if !ok || desktop < 0 {
		return false
	}
	return desktop != c.Desktops().Current
}

// Activate asks the window manager to focus and raise a window, acting as
// a pager so focus stealing prevention does not apply.
func (c *Connection) Activate(windowID xproto.Window) error {
	const sourcePager = 2
	active, _ := ewmh.ActiveWindowGet(c.XUtil)
	return ewmh.ActiveWindowReqExtra(c.XUtil, windowID, sourcePager, 0, active)
}
