package ipc

import (
	"encoding/json"
	"fmt"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandReload       CommandType = "RELOAD"
	CommandGetStatus    CommandType = "GET_STATUS"
	CommandListWindows  CommandType = "LIST_WINDOWS"
	CommandWindowAction CommandType = "WINDOW_ACTION"
)

// Request represents an IPC request from client to server
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response status values.
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Response represents an IPC response from server to client
type Response struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StatusData represents the data returned by GET_STATUS
type StatusData struct {
	DaemonRunning bool     `json:"daemon_running"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	Ticks         uint64   `json:"ticks"`
	Windows       int      `json:"windows"`
	Tiled         int      `json:"tiled"`
	Floating      int      `json:"floating"`
	Ignored       int      `json:"ignored"`
	ConfigFiles   []string `json:"config_files,omitempty"`
}

// RectData is a window rectangle in screen coordinates.
type RectData struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// MarginData overrides the configured gaps for one layout request.
type MarginData struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// WindowInfo is one tracked window as reported by LIST_WINDOWS.
type WindowInfo struct {
	Handle       uint32   `json:"handle"`
	Seq          uint64   `json:"seq"`
	Title        string   `json:"title"`
	Class        string   `json:"class"`
	State        string   `json:"state"`
	Reason       string   `json:"reason,omitempty"`
	Visible      bool     `json:"visible"`
	Cloaked      bool     `json:"cloaked,omitempty"`
	Hung         bool     `json:"hung,omitempty"`
	ForceVisible bool     `json:"force_visible,omitempty"`
	AlwaysOnTop  bool     `json:"always_on_top,omitempty"`
	Minimized    bool     `json:"minimized,omitempty"`
	Maximized    bool     `json:"maximized,omitempty"`
	Rect         RectData `json:"rect"`
	Generation   uint64   `json:"generation"`
}

// WindowsData represents the data returned by LIST_WINDOWS
type WindowsData struct {
	Windows []WindowInfo `json:"windows"`
}

// Action names a WINDOW_ACTION operation.
type Action string

const (
	ActionShow           Action = "show"
	ActionHide           Action = "hide"
	ActionClose          Action = "close"
	ActionPoke           Action = "poke"
	ActionMinimize       Action = "minimize"
	ActionRestore        Action = "restore"
	ActionUnmaximize     Action = "unmaximize"
	ActionAlwaysOnTop    Action = "always_on_top"
	ActionResizable      Action = "resizable"
	ActionFloatTo        Action = "float_to"
	ActionShowAt         Action = "show_at"
	ActionSetLayout      Action = "set_layout"
	ActionDelayedShow    Action = "delayed_show"
	ActionDelayedHide    Action = "delayed_hide"
	ActionRemoveTitlebar Action = "remove_titlebar"
)

// Actions lists every WINDOW_ACTION operation.
var Actions = []Action{
	ActionShow,
	ActionHide,
	ActionClose,
	ActionPoke,
	ActionMinimize,
	ActionRestore,
	ActionUnmaximize,
	ActionAlwaysOnTop,
	ActionResizable,
	ActionFloatTo,
	ActionShowAt,
	ActionSetLayout,
	ActionDelayedShow,
	ActionDelayedHide,
	ActionRemoveTitlebar,
}

// LayoutData is the payload of set_layout.
type LayoutData struct {
	Rect   RectData    `json:"rect"`
	Margin *MarginData `json:"margin,omitempty"`
	// Flush lists the edges touching the work-area boundary: left, top,
	// right, bottom.
	Flush      []string `json:"flush,omitempty"`
	SkipInsets bool     `json:"skip_insets,omitempty"`
	TabGroup   bool     `json:"tab_group,omitempty"`
}

// WindowActionPayload represents the payload for WINDOW_ACTION.
// Window 0 targets the active window.
type WindowActionPayload struct {
	Window  uint32      `json:"window,omitempty"`
	Action  Action      `json:"action"`
	Value   *bool       `json:"value,omitempty"`
	Rect    *RectData   `json:"rect,omitempty"`
	DelayMS int         `json:"delay_ms,omitempty"`
	Layout  *LayoutData `json:"layout,omitempty"`
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: StatusOK,
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: StatusError,
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
