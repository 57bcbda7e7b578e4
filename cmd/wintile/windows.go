package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/1broseidon/wintile/internal/ipc"
)

const defaultTableWidth = 120

func runWindows(args []string) int {
	fs := flag.NewFlagSet("windows", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: wintile windows [--json] [--state STATE]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "List the windows the daemon tracks. Prints a table on a terminal and")
		fmt.Fprintln(os.Stderr, "JSON otherwise.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Flags:")
		fs.PrintDefaults()
	}
	jsonOut := fs.Bool("json", false, "Output JSON even on a terminal")
	state := fs.String("state", "", "Only list windows in this state (e.g. Tiled)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "windows takes no arguments")
		fs.Usage()
		return 2
	}

	data, err := ipc.NewClient().ListWindows()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	windows := filterState(data.Windows, *state)

	fd := int(os.Stdout.Fd())
	if *jsonOut || !term.IsTerminal(fd) {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(ipc.WindowsData{Windows: windows}); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}

	width := defaultTableWidth
	if w, _, err := term.GetSize(fd); err == nil && w > 0 {
		width = w
	}
	writeWindowsTable(os.Stdout, windows, width)
	return 0
}

func filterState(windows []ipc.WindowInfo, state string) []ipc.WindowInfo {
	if state == "" {
		return windows
	}
	out := make([]ipc.WindowInfo, 0, len(windows))
	for _, w := range windows {
		if strings.EqualFold(w.State, state) {
			out = append(out, w)
		}
	}
	return out
}

// writeWindowsTable prints one row per window. Titles are cut so a row
// fits in width columns.
func writeWindowsTable(w io.Writer, windows []ipc.WindowInfo, width int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tREASON\tCLASS\tRECT\tTITLE")
	for _, win := range windows {
		prefix := fmt.Sprintf("0x%x\t%s\t%s\t%s\t%s\t",
			win.Handle, win.State, orDash(win.Reason), orDash(win.Class), formatRect(win.Rect))
		fmt.Fprintln(tw, prefix+truncate(win.Title, width-visibleLen(prefix)))
	}
	tw.Flush()
}

// visibleLen approximates the printed width of a tab-separated row prefix.
func visibleLen(prefix string) int {
	n := 0
	for _, field := range strings.Split(prefix, "\t") {
		n += len(field) + 2
	}
	return n
}

func truncate(s string, max int) string {
	if max < 8 {
		max = 8
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatRect(r ipc.RectData) string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

func runAction(args []string) int {
	fs := flag.NewFlagSet("action", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: wintile action [flags] <action>")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Queue a command against a window (default: the active window).")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Actions:")
		for _, a := range ipc.Actions {
			fmt.Fprintf(os.Stderr, "  %s\n", a)
		}
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Flags:")
		fs.PrintDefaults()
	}
	window := fs.String("window", "", "Window id, decimal or 0x-prefixed hex (default: active window)")
	value := fs.String("value", "", "true/false for always_on_top and resizable")
	rect := fs.String("rect", "", "Rectangle as X,Y,W,H for float_to, show_at and set_layout")
	delay := fs.Int("delay", 0, "Delay in milliseconds for delayed_show and delayed_hide")
	flush := fs.String("flush", "", "Comma-separated flush edges for set_layout (left,top,right,bottom)")
	margin := fs.String("margin", "", "Explicit margins for set_layout as L,T,R,B")
	skipInsets := fs.Bool("skip-insets", false, "Do not compensate for frame borders (set_layout)")
	tabGroup := fs.Bool("tab-group", false, "Reserve the tab group strip (set_layout)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "action requires exactly one <action>")
		fs.Usage()
		return 2
	}

	payload, err := buildActionPayload(actionFlags{
		action:     fs.Arg(0),
		window:     *window,
		value:      *value,
		rect:       *rect,
		delay:      *delay,
		flush:      *flush,
		margin:     *margin,
		skipInsets: *skipInsets,
		tabGroup:   *tabGroup,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if err := ipc.NewClient().WindowAction(payload); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

type actionFlags struct {
	action     string
	window     string
	value      string
	rect       string
	delay      int
	flush      string
	margin     string
	skipInsets bool
	tabGroup   bool
}

func buildActionPayload(f actionFlags) (ipc.WindowActionPayload, error) {
	p := ipc.WindowActionPayload{
		Action:  ipc.Action(strings.ToLower(f.action)),
		DelayMS: f.delay,
	}
	if f.window != "" {
		id, err := parseWindowID(f.window)
		if err != nil {
			return p, err
		}
		p.Window = id
	}
	if f.value != "" {
		v, err := strconv.ParseBool(f.value)
		if err != nil {
			return p, fmt.Errorf("invalid --value %q", f.value)
		}
		p.Value = &v
	}

	var r *ipc.RectData
	if f.rect != "" {
		parsed, err := parseRect(f.rect)
		if err != nil {
			return p, err
		}
		r = &parsed
	}

	if p.Action != ipc.ActionSetLayout {
		p.Rect = r
		return p, nil
	}

	if r == nil {
		return p, fmt.Errorf("set_layout requires --rect")
	}
	layout := &ipc.LayoutData{Rect: *r, SkipInsets: f.skipInsets, TabGroup: f.tabGroup}
	if f.flush != "" {
		for _, e := range strings.Split(f.flush, ",") {
			layout.Flush = append(layout.Flush, strings.TrimSpace(e))
		}
	}
	if f.margin != "" {
		m, err := parseMargin(f.margin)
		if err != nil {
			return p, err
		}
		layout.Margin = &m
	}
	p.Layout = layout
	return p, nil
}

func parseWindowID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid window id %q", s)
	}
	return uint32(id), nil
}

func parseInts(s string, n int, what string) ([]int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("%s must have %d comma-separated values, got %q", what, n, s)
	}
	out := make([]int, n)
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", what, s, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseRect(s string) (ipc.RectData, error) {
	v, err := parseInts(s, 4, "rect")
	if err != nil {
		return ipc.RectData{}, err
	}
	if v[2] <= 0 || v[3] <= 0 {
		return ipc.RectData{}, fmt.Errorf("rect width and height must be > 0")
	}
	return ipc.RectData{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}

func parseMargin(s string) (ipc.MarginData, error) {
	v, err := parseInts(s, 4, "margin")
	if err != nil {
		return ipc.MarginData{}, err
	}
	return ipc.MarginData{Left: v[0], Top: v[1], Right: v[2], Bottom: v[3]}, nil
}
