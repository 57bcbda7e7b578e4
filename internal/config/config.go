package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/1broseidon/wintile/internal/classify"
	"github.com/1broseidon/wintile/internal/commands"
	"github.com/1broseidon/wintile/internal/filters"
	"github.com/1broseidon/wintile/internal/winproxy"
)

// LoggingConfig configures the daemon's slog handler.
type LoggingConfig struct {
	// Level is one of: debug, info, warning, error.
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// SlogLevel maps Level onto slog; unknown values mean info.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SchedulerConfig tunes the scheduling loop.
type SchedulerConfig struct {
	// MaxWait caps how long the loop sleeps between ticks.
	MaxWait  time.Duration `yaml:"max_wait"`
	PoolSize int           `yaml:"pool_size"`
}

// LayoutConfig holds the gap and retry settings applied to layout requests.
type LayoutConfig struct {
	InnerMargin        int `yaml:"inner_margin"`
	OuterMargin        int `yaml:"outer_margin"`
	TabGroupInset      int `yaml:"tab_group_inset"`
	NoSysMenuAllowance int `yaml:"no_sysmenu_allowance"`
	MaxAttempts        int `yaml:"max_attempts"`
}

// ClassificationConfig holds the built-in class and title sets.
type ClassificationConfig struct {
	IgnoreClasses       []string `yaml:"ignore_classes"`
	TaskbarClasses      []string `yaml:"taskbar_classes"`
	FloatingClasses     []string `yaml:"floating_classes"`
	IgnoreTitles        []string `yaml:"ignore_titles"`
	InteractableClasses []string `yaml:"interactable_classes"`
}

// HotkeyAction names what a hotkey does to the active window.
type HotkeyAction string

const (
	HotkeyClose          HotkeyAction = "close"
	HotkeyMinimize       HotkeyAction = "minimize"
	HotkeyRestore        HotkeyAction = "restore"
	HotkeyUnmaximize     HotkeyAction = "unmaximize"
	HotkeyPoke           HotkeyAction = "poke"
	HotkeyAlwaysOnTop    HotkeyAction = "toggle_always_on_top"
	HotkeyRemoveTitlebar HotkeyAction = "remove_titlebar"
	HotkeyReload         HotkeyAction = "reload"
	HotkeyExec           HotkeyAction = "exec"
)

var hotkeyActions = []HotkeyAction{
	HotkeyClose,
	HotkeyMinimize,
	HotkeyRestore,
	HotkeyUnmaximize,
	HotkeyPoke,
	HotkeyAlwaysOnTop,
	HotkeyRemoveTitlebar,
	HotkeyReload,
	HotkeyExec,
}

func (a HotkeyAction) valid() bool {
	for _, known := range hotkeyActions {
		if a == known {
			return true
		}
	}
	return false
}

// Hotkey binds a key sequence (xgbutil keybind syntax, e.g. "Mod4-q") to an
// action.
type Hotkey struct {
	Keys    string       `yaml:"keys"`
	Action  HotkeyAction `yaml:"action"`
	Command []string     `yaml:"command,omitempty"`
}

// Config is the effective daemon configuration.
type Config struct {
	Display         string               `yaml:"display,omitempty"`
	XAuthority      string               `yaml:"xauthority,omitempty"`
	Logging         LoggingConfig        `yaml:"logging"`
	Scheduler       SchedulerConfig      `yaml:"scheduler"`
	Layout          LayoutConfig         `yaml:"layout"`
	Classification  ClassificationConfig `yaml:"classification"`
	Filters         []filters.Rule       `yaml:"filters"`
	Hotkeys         []Hotkey             `yaml:"hotkeys"`
	RemoveTitlebars bool                 `yaml:"remove_titlebars"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	rules := classify.DefaultRules()
	layout := winproxy.DefaultLayoutConfig()
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Scheduler: SchedulerConfig{
			MaxWait:  commands.MaxWait,
			PoolSize: commands.DefaultPoolSize,
		},
		Layout: LayoutConfig{
			InnerMargin:        layout.InnerMargin,
			OuterMargin:        layout.OuterMargin,
			TabGroupInset:      layout.TabGroupInset,
			NoSysMenuAllowance: layout.NoSysMenuAllowance,
			MaxAttempts:        layout.MaxAttempts,
		},
		Classification: ClassificationConfig{
			IgnoreClasses:       rules.IgnoreClasses,
			TaskbarClasses:      rules.TaskbarClasses,
			FloatingClasses:     rules.FloatingClasses,
			IgnoreTitles:        rules.IgnoreTitles,
			InteractableClasses: winproxy.DefaultInteractableClasses(),
		},
		Filters: []filters.Rule{},
		Hotkeys: []Hotkey{
			{Keys: "Mod4-Shift-q", Action: HotkeyClose},
			{Keys: "Mod4-Shift-t", Action: HotkeyAlwaysOnTop},
			{Keys: "Mod4-Shift-r", Action: HotkeyReload},
		},
	}
}

// ClassifyRules converts the classification section.
func (c *Config) ClassifyRules() classify.Rules {
	return classify.Rules{
		IgnoreClasses:   c.Classification.IgnoreClasses,
		TaskbarClasses:  c.Classification.TaskbarClasses,
		FloatingClasses: c.Classification.FloatingClasses,
		IgnoreTitles:    c.Classification.IgnoreTitles,
	}
}

// WinproxyLayout converts the layout section.
func (c *Config) WinproxyLayout() winproxy.LayoutConfig {
	return winproxy.LayoutConfig{
		InnerMargin:        c.Layout.InnerMargin,
		OuterMargin:        c.Layout.OuterMargin,
		TabGroupInset:      c.Layout.TabGroupInset,
		NoSysMenuAllowance: c.Layout.NoSysMenuAllowance,
		MaxAttempts:        c.Layout.MaxAttempts,
	}
}

// FilterPolicy compiles the filter rules.
func (c *Config) FilterPolicy() (*filters.Policy, error) {
	return filters.Compile(c.Filters)
}

var validLogLevels = []string{"debug", "info", "warning", "error"}

// Validate checks the effective config.
func (c *Config) Validate() error {
	level := strings.ToLower(c.Logging.Level)
	if level == "warn" {
		level = "warning"
	}
	if !contains(validLogLevels, level) {
		return &ValidationError{Path: "logging.level", Err: fmt.Errorf("level must be one of: debug, info, warning, error")}
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return &ValidationError{Path: "logging.format", Err: fmt.Errorf("format must be one of: text, json")}
	}

	if c.Scheduler.MaxWait <= 0 {
		return &ValidationError{Path: "scheduler.max_wait", Err: fmt.Errorf("max_wait must be > 0")}
	}
	if c.Scheduler.MaxWait > time.Second {
		return &ValidationError{Path: "scheduler.max_wait", Err: fmt.Errorf("max_wait must be <= 1s")}
	}
	if c.Scheduler.PoolSize < 1 {
		return &ValidationError{Path: "scheduler.pool_size", Err: fmt.Errorf("pool_size must be >= 1")}
	}

	margins := map[string]int{
		"layout.inner_margin":         c.Layout.InnerMargin,
		"layout.outer_margin":         c.Layout.OuterMargin,
		"layout.tab_group_inset":      c.Layout.TabGroupInset,
		"layout.no_sysmenu_allowance": c.Layout.NoSysMenuAllowance,
	}
	for _, path := range sortedKeys(margins) {
		if margins[path] < 0 {
			return &ValidationError{Path: path, Err: fmt.Errorf("value must be >= 0")}
		}
	}
	if c.Layout.MaxAttempts < 1 {
		return &ValidationError{Path: "layout.max_attempts", Err: fmt.Errorf("max_attempts must be >= 1")}
	}

	if _, err := filters.Compile(c.Filters); err != nil {
		return &ValidationError{Path: "filters", Err: err}
	}

	seen := make(map[string]struct{}, len(c.Hotkeys))
	for i, hk := range c.Hotkeys {
		if strings.TrimSpace(hk.Keys) == "" {
			return &ValidationError{Path: "hotkeys", Err: fmt.Errorf("hotkey %d: keys is required", i)}
		}
		if _, dup := seen[hk.Keys]; dup {
			return &ValidationError{Path: "hotkeys", Err: fmt.Errorf("hotkey %d: %q is bound twice", i, hk.Keys)}
		}
		seen[hk.Keys] = struct{}{}
		if !hk.Action.valid() {
			return &ValidationError{Path: "hotkeys", Err: fmt.Errorf("hotkey %d: unknown action %q", i, hk.Action)}
		}
		if hk.Action == HotkeyExec && len(hk.Command) == 0 {
			return &ValidationError{Path: "hotkeys", Err: fmt.Errorf("hotkey %d: exec requires command", i)}
		}
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
