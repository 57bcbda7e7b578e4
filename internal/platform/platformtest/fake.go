// Package platformtest provides an in-memory platform backend for tests.
package platformtest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/1broseidon/wintile/internal/platform"
)

// ErrNoWindow is returned by setters on unknown or destroyed handles.
var ErrNoWindow = errors.New("no such window")

// Window is the mutable state of one fake window.
type Window struct {
	Title   string
	Class   string
	Visible bool
	Cloaked bool
	Child   bool
	Hung    bool
	Rect    platform.Rect
	Style   platform.Style
	ExStyle platform.ExStyle
	Insets  platform.Insets
	TopMost bool

	// Clamp, when set, rewrites every requested rect, mimicking a window
	// that refuses the geometry it is asked for.
	Clamp func(platform.Rect) platform.Rect
	// RejectPos makes SetPos fail.
	RejectPos bool
}

// Call is one recorded mutating native call.
type Call struct {
	Op     string
	Handle platform.Handle
	Z      platform.ZOrder
	Rect   platform.Rect
	Flags  platform.PosFlags
	Show   platform.ShowCmd
	Style  platform.Style
}

func (c Call) String() string {
	return fmt.Sprintf("%s(%s)", c.Op, c.Handle)
}

// Fake implements platform.Backend over a map of windows.
type Fake struct {
	mu      sync.Mutex
	windows map[platform.Handle]*Window
	order   []platform.Handle
	calls   []Call

	Active  platform.Handle
	Area    platform.Rect
	Screens []platform.Display
}

var _ platform.Backend = (*Fake)(nil)

// New returns an empty fake with a single 1920x1080 display.
func New() *Fake {
	area := platform.RectXYWH(0, 0, 1920, 1080)
	return &Fake{
		windows: make(map[platform.Handle]*Window),
		Area:    area,
		Screens: []platform.Display{{ID: 0, Name: "fake-0", Bounds: area, Usable: area}},
	}
}

// Add registers a window under h.
func (f *Fake) Add(h platform.Handle, w Window) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.windows[h]; !ok {
		f.order = append(f.order, h)
	}
	win := w
	f.windows[h] = &win
}

// Destroy removes h, as if the application closed it.
func (f *Fake) Destroy(h platform.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.windows, h)
	for i, o := range f.order {
		if o == h {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

// Update mutates the window under h while holding the fake's lock.
func (f *Fake) Update(h platform.Handle, fn func(w *Window)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.windows[h]; ok {
		fn(w)
	}
}

// Window returns a copy of the window state under h.
func (f *Fake) Window(h platform.Handle) (Window, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[h]
	if !ok {
		return Window{}, false
	}
	return *w, true
}

// Calls returns the recorded mutating calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsTo returns the recorded calls against h.
func (f *Fake) CallsTo(h platform.Handle) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Handle == h {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls forgets the recorded calls.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *Fake) record(c Call) {
	f.calls = append(f.calls, c)
}

func (f *Fake) get(h platform.Handle) (*Window, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[h]
	return w, ok
}

func (f *Fake) Windows() ([]platform.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]platform.Handle, len(f.order))
	copy(out, f.order)
	return out, nil
}

func (f *Fake) IsWindow(h platform.Handle) bool {
	_, ok := f.get(h)
	return ok
}

func (f *Fake) read(h platform.Handle, fn func(w *Window)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.windows[h]; ok {
		fn(w)
	}
}

func (f *Fake) Title(h platform.Handle) (s string) {
	f.read(h, func(w *Window) { s = w.Title })
	return s
}

func (f *Fake) Class(h platform.Handle) (s string) {
	f.read(h, func(w *Window) { s = w.Class })
	return s
}

func (f *Fake) Style(h platform.Handle) (s platform.Style) {
	f.read(h, func(w *Window) { s = w.Style })
	return s
}

func (f *Fake) ExStyle(h platform.Handle) (s platform.ExStyle) {
	f.read(h, func(w *Window) { s = w.ExStyle })
	return s
}

func (f *Fake) IsVisible(h platform.Handle) (v bool) {
	f.read(h, func(w *Window) { v = w.Visible })
	return v
}

func (f *Fake) IsCloaked(h platform.Handle) (v bool) {
	f.read(h, func(w *Window) { v = w.Cloaked })
	return v
}

func (f *Fake) IsHung(h platform.Handle) (v bool) {
	f.read(h, func(w *Window) { v = w.Hung })
	return v
}

func (f *Fake) IsChild(h platform.Handle) (v bool) {
	f.read(h, func(w *Window) { v = w.Child })
	return v
}

func (f *Fake) Rect(h platform.Handle) (r platform.Rect, ok bool) {
	f.read(h, func(w *Window) { r, ok = w.Rect, true })
	return r, ok
}

func (f *Fake) FrameInsets(h platform.Handle, style platform.Style, exStyle platform.ExStyle) (platform.Insets, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[h]
	if !ok {
		return platform.Insets{}, ErrNoWindow
	}
	return w.Insets, nil
}

func (f *Fake) SetStyle(h platform.Handle, style platform.Style) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Call{Op: "SetStyle", Handle: h, Style: style})
	w, ok := f.windows[h]
	if !ok {
		return ErrNoWindow
	}
	w.Style = style
	return nil
}

func (f *Fake) SetPos(h platform.Handle, z platform.ZOrder, r platform.Rect, flags platform.PosFlags) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Call{Op: "SetPos", Handle: h, Z: z, Rect: r, Flags: flags})
	w, ok := f.windows[h]
	if !ok {
		return ErrNoWindow
	}
	if w.RejectPos {
		return fmt.Errorf("set position on %s rejected", h)
	}
	if flags&platform.PosNoZOrder == 0 {
		switch z {
		case platform.ZTopmost:
			w.TopMost = true
		case platform.ZNoTopmost:
			w.TopMost = false
		}
	}

	target := w.Rect
	if flags&platform.PosNoMove == 0 {
		target = platform.RectXYWH(r.Left, r.Top, target.Width(), target.Height())
	}
	if flags&platform.PosNoSize == 0 {
		target = platform.RectXYWH(target.Left, target.Top, r.Width(), r.Height())
	}
	if w.Clamp != nil {
		target = w.Clamp(target)
	}
	w.Rect = target
	return nil
}

func (f *Fake) ShowWindow(h platform.Handle, cmd platform.ShowCmd) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Call{Op: "ShowWindow", Handle: h, Show: cmd})
	w, ok := f.windows[h]
	if !ok {
		return ErrNoWindow
	}
	switch cmd {
	case platform.ShowHide:
		w.Visible = false
	case platform.ShowMinimize:
		w.Style |= platform.StyleMinimize
	case platform.ShowNoActivate:
		w.Visible = true
	case platform.ShowRestore:
		w.Visible = true
		w.Style &^= platform.StyleMinimize | platform.StyleMaximize
	}
	return nil
}

func (f *Fake) PostClose(h platform.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Call{Op: "PostClose", Handle: h})
	if _, ok := f.windows[h]; !ok {
		return ErrNoWindow
	}
	return nil
}

func (f *Fake) Displays() ([]platform.Display, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]platform.Display, len(f.Screens))
	copy(out, f.Screens)
	return out, nil
}

func (f *Fake) ActiveWindow() (platform.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Active == 0 {
		return 0, errors.New("no active window")
	}
	return f.Active, nil
}

func (f *Fake) DesktopArea() platform.Rect {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Area
}
