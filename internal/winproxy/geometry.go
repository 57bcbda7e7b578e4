package winproxy

import "github.com/1broseidon/wintile/internal/platform"

// DefaultMaxAttempts bounds the set-position convergence loop.
const DefaultMaxAttempts = 10

// LayoutConfig holds the gap and chrome settings used to turn a
// LayoutIntent into the rectangle requested from the window system.
type LayoutConfig struct {
	// InnerMargin is the full gap between two adjacent tiled windows.
	InnerMargin int
	// OuterMargin is the gap on edges flush with the tiling boundary.
	OuterMargin int
	// TabGroupInset is reserved above windows that belong to a tab group.
	TabGroupInset int
	// NoSysMenuAllowance widens the frame of windows without a system menu.
	NoSysMenuAllowance int
	MaxAttempts        int
}

// DefaultLayoutConfig returns the built-in layout settings.
func DefaultLayoutConfig() LayoutConfig {
	return LayoutConfig{
		InnerMargin:   10,
		OuterMargin:   10,
		TabGroupInset: 24,
		MaxAttempts:   DefaultMaxAttempts,
	}
}

// FrameInfo is what the window system reports about a window's chrome.
type FrameInfo struct {
	Insets     platform.Insets
	Style      platform.Style
	InTabGroup bool
}

// gap returns the margin for one edge.
func (c LayoutConfig) gap(flush bool) int {
	if flush {
		return c.OuterMargin
	}
	// Each neighbour contributes half; round up so the two halves cover
	// the full inner gap.
	return (c.InnerMargin + 1) / 2
}

// ComputeLayoutRect returns the rectangle to request for intent. It has no
// side effects.
func ComputeLayoutRect(intent LayoutIntent, cfg LayoutConfig, frame FrameInfo) platform.Rect {
	r := intent.Rect

	if m := intent.Margin; m != nil {
		r.Left += m.Left
		r.Top += m.Top
		r.Right -= m.Right
		r.Bottom -= m.Bottom
	} else {
		r.Left += cfg.gap(intent.Flush.Has(EdgeLeft))
		r.Top += cfg.gap(intent.Flush.Has(EdgeTop))
		r.Right -= cfg.gap(intent.Flush.Has(EdgeRight))
		r.Bottom -= cfg.gap(intent.Flush.Has(EdgeBottom))
	}

	if !intent.SkipInsets {
		if frame.InTabGroup {
			r.Top += cfg.TabGroupInset
		}
		in := frame.Insets
		if frame.Style&platform.StyleSysMenu == 0 {
			in.Left += cfg.NoSysMenuAllowance
			in.Right += cfg.NoSysMenuAllowance
			in.Bottom += cfg.NoSysMenuAllowance
		}
		r.Left -= in.Left
		r.Top -= in.Top
		r.Right += in.Right
		r.Bottom += in.Bottom
	}

	// Never request an inverted rectangle.
	if r.Right < r.Left+1 {
		r.Right = r.Left + 1
	}
	if r.Bottom < r.Top+1 {
		r.Bottom = r.Top + 1
	}
	return r
}
