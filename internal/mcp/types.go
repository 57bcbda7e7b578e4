package mcp

import "github.com/1broseidon/wintile/internal/ipc"

// GetStatusInput is the input for the get_status tool.
type GetStatusInput struct{}

// ListWindowsInput is the input for the list_windows tool.
type ListWindowsInput struct {
	State string `json:"state,omitempty" jsonschema:"Only return windows in this state (Tiled, Floating, IgnorePermanent, IgnoreTemporary, Unknown)"`
	Class string `json:"class,omitempty" jsonschema:"Only return windows whose class contains this text (case-insensitive)"`
}

// ListWindowsOutput is the output for the list_windows tool.
type ListWindowsOutput struct {
	Windows []ipc.WindowInfo `json:"windows"`
}

// WindowActionInput is the input for the window_action tool.
type WindowActionInput struct {
	Window  uint32        `json:"window,omitempty" jsonschema:"X11 window id from list_windows (default: the active window)"`
	Action  string        `json:"action" jsonschema:"One of: show, hide, close, poke, minimize, restore, unmaximize, always_on_top, resizable, float_to, show_at, delayed_show, delayed_hide, remove_titlebar"`
	Value   *bool         `json:"value,omitempty" jsonschema:"On/off for always_on_top (omit to toggle) and resizable (required)"`
	Rect    *ipc.RectData `json:"rect,omitempty" jsonschema:"Target rectangle for float_to and show_at"`
	DelayMS int           `json:"delay_ms,omitempty" jsonschema:"Delay in milliseconds for delayed_show and delayed_hide"`
}

// WindowActionOutput is the output for the window_action tool.
type WindowActionOutput struct {
	Window uint32 `json:"window"`
	Action string `json:"action"`
	Queued bool   `json:"queued"`
}

// SetLayoutInput is the input for the set_layout tool.
type SetLayoutInput struct {
	Window     uint32          `json:"window,omitempty" jsonschema:"X11 window id from list_windows (default: the active window)"`
	X          int             `json:"x" jsonschema:"Left edge of the layout cell"`
	Y          int             `json:"y" jsonschema:"Top edge of the layout cell"`
	Width      int             `json:"width" jsonschema:"Width of the layout cell"`
	Height     int             `json:"height" jsonschema:"Height of the layout cell"`
	Flush      []string        `json:"flush,omitempty" jsonschema:"Edges touching the tiling boundary (left, top, right, bottom); these get the outer margin"`
	Margin     *ipc.MarginData `json:"margin,omitempty" jsonschema:"Explicit per-edge margins; replaces the configured gaps"`
	SkipInsets bool            `json:"skip_insets,omitempty" jsonschema:"Do not compensate for invisible window frame borders"`
	TabGroup   bool            `json:"tab_group,omitempty" jsonschema:"Reserve the tab group strip above the window"`
}

// ReloadConfigInput is the input for the reload_config tool.
type ReloadConfigInput struct{}

// ReloadConfigOutput is the output for the reload_config tool.
type ReloadConfigOutput struct {
	Reloaded    bool     `json:"reloaded"`
	ConfigFiles []string `json:"config_files"`
}
