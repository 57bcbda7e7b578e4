package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/1broseidon/wintile/internal/filters"
)

// IncludeList supports either:
//
//	include: "/path/to/file.yaml"
//
// or:
//
//	include:
//	  - "/path/to/file.yaml"
//	  - "/path/to/dir"
type IncludeList []string

func (l *IncludeList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case 0:
		*l = nil
		return nil
	case yaml.ScalarNode:
		if value.Tag != "!!str" {
			return fmt.Errorf("include must be a string or list of strings")
		}
		*l = []string{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode || item.Tag != "!!str" {
				return fmt.Errorf("include entries must be strings")
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("include must be a string or list of strings")
	}
}

type RawLoggingConfig struct {
	Level  *string `yaml:"level"`
	Format *string `yaml:"format"`
}

type RawSchedulerConfig struct {
	MaxWait  *time.Duration `yaml:"max_wait"`
	PoolSize *int           `yaml:"pool_size"`
}

type RawLayoutConfig struct {
	InnerMargin        *int `yaml:"inner_margin"`
	OuterMargin        *int `yaml:"outer_margin"`
	TabGroupInset      *int `yaml:"tab_group_inset"`
	NoSysMenuAllowance *int `yaml:"no_sysmenu_allowance"`
	MaxAttempts        *int `yaml:"max_attempts"`
}

// RawClassificationConfig lists replace the defaults wholesale when present.
type RawClassificationConfig struct {
	IgnoreClasses       []string `yaml:"ignore_classes"`
	TaskbarClasses      []string `yaml:"taskbar_classes"`
	FloatingClasses     []string `yaml:"floating_classes"`
	IgnoreTitles        []string `yaml:"ignore_titles"`
	InteractableClasses []string `yaml:"interactable_classes"`
}

// RawConfig is one file's view of the config; nil means "not set here".
type RawConfig struct {
	Include         IncludeList              `yaml:"include"`
	Display         *string                  `yaml:"display"`
	XAuthority      *string                  `yaml:"xauthority"`
	Logging         *RawLoggingConfig        `yaml:"logging"`
	Scheduler       *RawSchedulerConfig      `yaml:"scheduler"`
	Layout          *RawLayoutConfig         `yaml:"layout"`
	Classification  *RawClassificationConfig `yaml:"classification"`
	Filters         []filters.Rule           `yaml:"filters"`
	Hotkeys         []Hotkey                 `yaml:"hotkeys"`
	RemoveTitlebars *bool                    `yaml:"remove_titlebars"`
}

// merge layers overlay on top of c. Scalars override individually; filter
// rules from later files are appended; hotkeys replace by key sequence.
func (c RawConfig) merge(overlay RawConfig) RawConfig {
	out := c

	if overlay.Display != nil {
		out.Display = overlay.Display
	}
	if overlay.XAuthority != nil {
		out.XAuthority = overlay.XAuthority
	}
	if overlay.RemoveTitlebars != nil {
		out.RemoveTitlebars = overlay.RemoveTitlebars
	}

	if overlay.Logging != nil {
		if out.Logging == nil {
			out.Logging = &RawLoggingConfig{}
		}
		l := *out.Logging
		setPtr(&l.Level, overlay.Logging.Level)
		setPtr(&l.Format, overlay.Logging.Format)
		out.Logging = &l
	}

	if overlay.Scheduler != nil {
		if out.Scheduler == nil {
			out.Scheduler = &RawSchedulerConfig{}
		}
		s := *out.Scheduler
		setPtr(&s.MaxWait, overlay.Scheduler.MaxWait)
		setPtr(&s.PoolSize, overlay.Scheduler.PoolSize)
		out.Scheduler = &s
	}

	if overlay.Layout != nil {
		if out.Layout == nil {
			out.Layout = &RawLayoutConfig{}
		}
		l := *out.Layout
		setPtr(&l.InnerMargin, overlay.Layout.InnerMargin)
		setPtr(&l.OuterMargin, overlay.Layout.OuterMargin)
		setPtr(&l.TabGroupInset, overlay.Layout.TabGroupInset)
		setPtr(&l.NoSysMenuAllowance, overlay.Layout.NoSysMenuAllowance)
		setPtr(&l.MaxAttempts, overlay.Layout.MaxAttempts)
		out.Layout = &l
	}

	if overlay.Classification != nil {
		if out.Classification == nil {
			out.Classification = &RawClassificationConfig{}
		}
		cl := *out.Classification
		setSlice(&cl.IgnoreClasses, overlay.Classification.IgnoreClasses)
		setSlice(&cl.TaskbarClasses, overlay.Classification.TaskbarClasses)
		setSlice(&cl.FloatingClasses, overlay.Classification.FloatingClasses)
		setSlice(&cl.IgnoreTitles, overlay.Classification.IgnoreTitles)
		setSlice(&cl.InteractableClasses, overlay.Classification.InteractableClasses)
		out.Classification = &cl
	}

	if overlay.Filters != nil {
		merged := make([]filters.Rule, 0, len(out.Filters)+len(overlay.Filters))
		merged = append(merged, out.Filters...)
		out.Filters = append(merged, overlay.Filters...)
	}

	if overlay.Hotkeys != nil {
		out.Hotkeys = mergeHotkeys(out.Hotkeys, overlay.Hotkeys)
	}

	return out
}

func mergeHotkeys(base, overlay []Hotkey) []Hotkey {
	out := make([]Hotkey, 0, len(base)+len(overlay))
	index := make(map[string]int, len(base))
	for _, hk := range base {
		index[hk.Keys] = len(out)
		out = append(out, hk)
	}
	for _, hk := range overlay {
		if i, ok := index[hk.Keys]; ok {
			out[i] = hk
			continue
		}
		index[hk.Keys] = len(out)
		out = append(out, hk)
	}
	return out
}

func setPtr[T any](dst **T, src *T) {
	if src != nil {
		*dst = src
	}
}

func setSlice(dst *[]string, src []string) {
	if src != nil {
		*dst = src
	}
}
