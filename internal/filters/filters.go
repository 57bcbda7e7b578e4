package filters

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/1broseidon/wintile/internal/platform"
)

// Action is the verdict a matching rule gives a window.
type Action string

const (
	ActionIgnore Action = "ignore"
	ActionTile   Action = "tile"
	ActionFloat  Action = "float"
)

func (a Action) valid() bool {
	switch a {
	case ActionIgnore, ActionTile, ActionFloat:
		return true
	}
	return false
}

// Rule matches windows by class and/or title. Empty patterns match anything;
// a rule with both patterns empty is rejected.
type Rule struct {
	Class  string `yaml:"class,omitempty" json:"class,omitempty"`
	Title  string `yaml:"title,omitempty" json:"title,omitempty"`
	Action Action `yaml:"action" json:"action"`
}

type compiledRule struct {
	class  *regexp.Regexp
	title  *regexp.Regexp
	action Action
}

func (r compiledRule) matches(a platform.Attributes) bool {
	if r.class != nil && !r.class.MatchString(a.Class) {
		return false
	}
	if r.title != nil && !r.title.MatchString(a.Title) {
		return false
	}
	return true
}

// Policy is an ordered rule list. The first matching rule wins.
type Policy struct {
	mu    sync.RWMutex
	rules []compiledRule
}

// Compile builds a policy from rules. Class patterns match case-insensitively.
func Compile(rules []Rule) (*Policy, error) {
	p := &Policy{}
	if err := p.Replace(rules); err != nil {
		return nil, err
	}
	return p, nil
}

// Replace swaps the rule set atomically. On error the old rules stay.
func (p *Policy) Replace(rules []Rule) error {
	compiled, err := compile(rules)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.rules = compiled
	p.mu.Unlock()
	return nil
}

func compile(rules []Rule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		if !r.Action.valid() {
			return nil, fmt.Errorf("rule %d: action must be one of: ignore, tile, float", i)
		}
		if r.Class == "" && r.Title == "" {
			return nil, fmt.Errorf("rule %d: class or title is required", i)
		}
		cr := compiledRule{action: r.Action}
		if r.Class != "" {
			re, err := regexp.Compile("(?i)" + r.Class)
			if err != nil {
				return nil, fmt.Errorf("rule %d: class: %w", i, err)
			}
			cr.class = re
		}
		if r.Title != "" {
			re, err := regexp.Compile(r.Title)
			if err != nil {
				return nil, fmt.Errorf("rule %d: title: %w", i, err)
			}
			cr.title = re
		}
		out = append(out, cr)
	}
	return out, nil
}

// Match returns the action of the first rule matching a.
func (p *Policy) Match(a platform.Attributes) (Action, bool) {
	if p == nil {
		return "", false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, r := range p.rules {
		if r.matches(a) {
			return r.action, true
		}
	}
	return "", false
}

// Len reports the number of rules.
func (p *Policy) Len() int {
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.rules)
}

func (p *Policy) IsIgnored(a platform.Attributes) bool {
	act, ok := p.Match(a)
	return ok && act == ActionIgnore
}

func (p *Policy) IsTiling(a platform.Attributes) bool {
	act, ok := p.Match(a)
	return ok && act == ActionTile
}

func (p *Policy) IsFloating(a platform.Attributes) bool {
	act, ok := p.Match(a)
	return ok && act == ActionFloat
}
