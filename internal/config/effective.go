package config

import (
	"fmt"
	"sort"
)

type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.Kind == SourceFile && e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// BuildEffectiveConfig layers raw over DefaultConfig.
func BuildEffectiveConfig(raw RawConfig) *Config {
	cfg := DefaultConfig()

	if raw.Display != nil {
		cfg.Display = *raw.Display
	}
	if raw.XAuthority != nil {
		cfg.XAuthority = *raw.XAuthority
	}
	if raw.RemoveTitlebars != nil {
		cfg.RemoveTitlebars = *raw.RemoveTitlebars
	}

	if l := raw.Logging; l != nil {
		cfg.Logging.Level = derefOr(l.Level, cfg.Logging.Level)
		cfg.Logging.Format = derefOr(l.Format, cfg.Logging.Format)
	}

	if s := raw.Scheduler; s != nil {
		cfg.Scheduler.MaxWait = derefOr(s.MaxWait, cfg.Scheduler.MaxWait)
		cfg.Scheduler.PoolSize = derefOr(s.PoolSize, cfg.Scheduler.PoolSize)
	}

	if l := raw.Layout; l != nil {
		cfg.Layout.InnerMargin = derefOr(l.InnerMargin, cfg.Layout.InnerMargin)
		cfg.Layout.OuterMargin = derefOr(l.OuterMargin, cfg.Layout.OuterMargin)
		cfg.Layout.TabGroupInset = derefOr(l.TabGroupInset, cfg.Layout.TabGroupInset)
		cfg.Layout.NoSysMenuAllowance = derefOr(l.NoSysMenuAllowance, cfg.Layout.NoSysMenuAllowance)
		cfg.Layout.MaxAttempts = derefOr(l.MaxAttempts, cfg.Layout.MaxAttempts)
	}

	if cl := raw.Classification; cl != nil {
		setSlice(&cfg.Classification.IgnoreClasses, cl.IgnoreClasses)
		setSlice(&cfg.Classification.TaskbarClasses, cl.TaskbarClasses)
		setSlice(&cfg.Classification.FloatingClasses, cl.FloatingClasses)
		setSlice(&cfg.Classification.IgnoreTitles, cl.IgnoreTitles)
		setSlice(&cfg.Classification.InteractableClasses, cl.InteractableClasses)
	}

	if raw.Filters != nil {
		cfg.Filters = raw.Filters
	}
	if raw.Hotkeys != nil {
		cfg.Hotkeys = mergeHotkeys(cfg.Hotkeys, raw.Hotkeys)
	}

	return cfg
}

func derefOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
