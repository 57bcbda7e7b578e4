// Package classify decides how a newly observed window should be managed.
package classify

import (
	"strings"

	"github.com/1broseidon/wintile/internal/platform"
)

// State is the management state assigned to a window.
type State int

const (
	IgnorePermanent State = iota
	IgnoreTemporary
	Tiled
	Floating
	Unknown
)

func (s State) String() string {
	switch s {
	case IgnorePermanent:
		return "IgnorePermanent"
	case IgnoreTemporary:
		return "IgnoreTemporary"
	case Tiled:
		return "Tiled"
	case Floating:
		return "Floating"
	default:
		return "Unknown"
	}
}

// IsIgnored reports whether the state excludes the window from management.
func (s State) IsIgnored() bool {
	return s == IgnorePermanent || s == IgnoreTemporary
}

// Reason explains which rule produced a State.
type Reason string

const (
	ReasonIgnoredClass   Reason = "ignored class"
	ReasonTaskbar        Reason = "taskbar"
	ReasonNotAppWindow   Reason = "not app window"
	ReasonFilterIgnored  Reason = "ignored by filter"
	ReasonIgnoredTitle   Reason = "ignored title"
	ReasonInvisible      Reason = "invisible"
	ReasonCloaked        Reason = "cloaked"
	ReasonEmptyTitle     Reason = "empty title"
	ReasonZeroSize       Reason = "zero size"
	ReasonOffScreen      Reason = "off screen"
	ReasonFilterTiled    Reason = "tiled by filter"
	ReasonNotResizable   Reason = "not resizable"
	ReasonFilterFloating Reason = "floating by filter"
	ReasonFloatingClass  Reason = "floating class"
	ReasonDefault        Reason = ""
)

// SpawnSentinelLeft is the left edge the manager gives windows it spawns
// off-screen. Such windows are never treated as off screen.
const SpawnSentinelLeft = -19797

// Filter is the user-configured window policy.
type Filter interface {
	IsIgnored(attrs platform.Attributes) bool
	IsTiling(attrs platform.Attributes) bool
	IsFloating(attrs platform.Attributes) bool
}

// Desktop reports the usable desktop bounding area.
type Desktop interface {
	DesktopArea() platform.Rect
}

// Rules are the built-in class and title sets.
type Rules struct {
	IgnoreClasses   []string
	TaskbarClasses  []string
	FloatingClasses []string
	IgnoreTitles    []string
}

// DefaultRules returns the built-in sets for common X11 desktops.
func DefaultRules() Rules {
	return Rules{
		IgnoreClasses: []string{
			"xfdesktop",
			"desktop_window",
			"nautilus-desktop",
			"conky",
			"dunst",
			"xscreensaver",
		},
		TaskbarClasses: []string{
			"xfce4-panel",
			"plasmashell",
			"polybar",
			"tint2",
			"lxpanel",
			"mate-panel",
		},
		FloatingClasses: []string{
			"pinentry",
			"gcr-prompter",
			"zenity",
			"yad",
			"xmessage",
		},
		IgnoreTitles: []string{
			"wintile-internal",
		},
	}
}

// Classifier applies the classification rules in a fixed order; the first
// matching rule wins. It is not safe for concurrent use with SetRules.
type Classifier struct {
	ignoreClasses   map[string]struct{}
	taskbarClasses  map[string]struct{}
	floatingClasses map[string]struct{}
	ignoreTitles    map[string]struct{}

	filter  Filter
	desktop Desktop
}

// New creates a Classifier. A nil filter never matches. A nil desktop
// disables the off-screen rule.
func New(rules Rules, filter Filter, desktop Desktop) *Classifier {
	c := &Classifier{filter: filter, desktop: desktop}
	c.SetRules(rules)
	return c
}

// SetRules replaces the built-in sets.
func (c *Classifier) SetRules(rules Rules) {
	c.ignoreClasses = lowerSet(rules.IgnoreClasses)
	c.taskbarClasses = lowerSet(rules.TaskbarClasses)
	c.floatingClasses = lowerSet(rules.FloatingClasses)
	c.ignoreTitles = make(map[string]struct{}, len(rules.IgnoreTitles))
	for _, t := range rules.IgnoreTitles {
		c.ignoreTitles[t] = struct{}{}
	}
}

// SetFilter replaces the filter policy.
func (c *Classifier) SetFilter(filter Filter) {
	c.filter = filter
}

func lowerSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = struct{}{}
	}
	return set
}

// Classify returns the management state for a window and the rule that
// decided it.
func (c *Classifier) Classify(a platform.Attributes) (State, Reason) {
	class := strings.ToLower(a.Class)

	// Hard safety checks; no filter overrides these.
	if _, ok := c.ignoreClasses[class]; ok {
		return IgnorePermanent, ReasonIgnoredClass
	}
	if _, ok := c.taskbarClasses[class]; ok {
		return IgnoreTemporary, ReasonTaskbar
	}
	if a.IsTaskbarIgnored() {
		return IgnorePermanent, ReasonNotAppWindow
	}

	if c.filter != nil && c.filter.IsIgnored(a) {
		return IgnorePermanent, ReasonFilterIgnored
	}
	if _, ok := c.ignoreTitles[a.Title]; ok {
		return IgnorePermanent, ReasonIgnoredTitle
	}

	if !a.Visible {
		return IgnoreTemporary, ReasonInvisible
	}
	if a.Cloaked {
		return IgnoreTemporary, ReasonCloaked
	}
	if a.Title == "" {
		return IgnoreTemporary, ReasonEmptyTitle
	}
	if a.Rect.Width() == 0 || a.Rect.Height() == 0 {
		return IgnorePermanent, ReasonZeroSize
	}
	if c.desktop != nil && a.Rect.Left != SpawnSentinelLeft {
		// An empty area means the displays are unknown, not that every
		// window is off screen.
		area := c.desktop.DesktopArea()
		if area.Width() > 0 && area.Height() > 0 && !a.Rect.Overlaps(area) {
			return IgnoreTemporary, ReasonOffScreen
		}
	}

	if c.filter != nil && c.filter.IsTiling(a) {
		return Tiled, ReasonFilterTiled
	}
	if !a.CanResize() {
		return Floating, ReasonNotResizable
	}
	if c.filter != nil && c.filter.IsFloating(a) {
		return Floating, ReasonFilterFloating
	}
	if _, ok := c.floatingClasses[class]; ok {
		return Floating, ReasonFloatingClass
	}
	return Tiled, ReasonDefault
}
