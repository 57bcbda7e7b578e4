package winproxy

import (
	"fmt"

	"github.com/1broseidon/wintile/internal/platform"
)

// OpKind identifies a queued proxy operation.
type OpKind int

const (
	OpShow OpKind = iota
	OpShowWithRect
	OpHide
	OpDelayedShow
	OpDelayedHide
	OpClose
	OpPoke
	OpSetAlwaysOnTop
	OpMinimize
	OpRestore
	OpRemoveMaximized
	OpSetResizable
	OpRemoveTitlebar
)

var opNames = [...]string{
	OpShow:            "show",
	OpShowWithRect:    "show_with_rect",
	OpHide:            "hide",
	OpDelayedShow:     "delayed_show",
	OpDelayedHide:     "delayed_hide",
	OpClose:           "close",
	OpPoke:            "poke",
	OpSetAlwaysOnTop:  "set_always_on_top",
	OpMinimize:        "minimize",
	OpRestore:         "restore",
	OpRemoveMaximized: "remove_maximized",
	OpSetResizable:    "set_resizable",
	OpRemoveTitlebar:  "remove_titlebar",
}

func (k OpKind) String() string {
	if k >= 0 && int(k) < len(opNames) {
		return opNames[k]
	}
	return fmt.Sprintf("op(%d)", int(k))
}

// Op is one native operation queued for the scheduling goroutine.
type Op struct {
	Kind OpKind
	// Flag carries the boolean argument of SetAlwaysOnTop and SetResizable.
	Flag bool
	// Rect is the target of ShowWithRect.
	Rect platform.Rect
	// Gen is the visibility generation a delayed show/hide was issued in.
	Gen uint64
}

func (o Op) String() string {
	switch o.Kind {
	case OpSetAlwaysOnTop, OpSetResizable:
		return fmt.Sprintf("%s(%t)", o.Kind, o.Flag)
	case OpShowWithRect:
		return fmt.Sprintf("%s%s", o.Kind, o.Rect)
	default:
		return o.Kind.String()
	}
}
