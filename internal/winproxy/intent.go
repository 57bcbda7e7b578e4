package winproxy

import "github.com/1broseidon/wintile/internal/platform"

// Margin is a per-side inset applied to a requested rectangle.
type Margin struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// UniformMargin returns a margin of n on every side.
func UniformMargin(n int) *Margin {
	return &Margin{Left: n, Top: n, Right: n, Bottom: n}
}

// Edges is a set of rectangle edges.
type Edges uint8

const (
	EdgeLeft Edges = 1 << iota
	EdgeTop
	EdgeRight
	EdgeBottom

	EdgesNone Edges = 0
	EdgesAll        = EdgeLeft | EdgeTop | EdgeRight | EdgeBottom
)

// Has reports whether every edge in o is in e.
func (e Edges) Has(o Edges) bool { return e&o == o }

// LayoutIntent asks the proxy to tile its window into Rect.
type LayoutIntent struct {
	Rect platform.Rect
	// Margin replaces the configured gaps when set.
	Margin *Margin
	// Flush edges touch the tiling boundary and get the outer margin
	// instead of half the inner margin.
	Flush Edges
	// SkipInsets disables compensation for invisible frame borders.
	SkipInsets bool
}

// FloatingIntent asks the proxy to move its window to Rect as-is.
type FloatingIntent struct {
	Rect platform.Rect
}
