package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Explain resolves a dotted path against the effective config and reports
// the file position that set it, or the default. Paths follow the file
// layout; list items are addressed by index:
//
//	layout.inner_margin
//	classification.floating_classes.0
//	filters.2.action
//	hotkeys.0.keys
//
// A list item reports the source of its list.
func Explain(res *LoadResult, path string) (any, Source, error) {
	if res == nil || res.Config == nil {
		return nil, Source{}, errors.New("no config loaded")
	}
	segs := strings.Split(strings.TrimSpace(path), ".")
	for _, seg := range segs {
		if seg == "" {
			return nil, Source{}, fmt.Errorf("invalid path %q", path)
		}
	}

	var root yaml.Node
	if err := root.Encode(res.Config); err != nil {
		return nil, Source{}, fmt.Errorf("failed to encode config: %w", err)
	}
	node, err := descend(&root, segs)
	if err != nil {
		return nil, Source{}, fmt.Errorf("%s: %w", path, err)
	}
	var value any
	if err := node.Decode(&value); err != nil {
		return nil, Source{}, fmt.Errorf("%s: %w", path, err)
	}

	for n := len(segs); n > 0; n-- {
		if src, ok := res.Sources[strings.Join(segs[:n], ".")]; ok {
			return value, src, nil
		}
	}
	return value, Source{Kind: SourceDefault}, nil
}

func descend(node *yaml.Node, segs []string) (*yaml.Node, error) {
	for _, seg := range segs {
		switch node.Kind {
		case yaml.MappingNode:
			var next *yaml.Node
			for i := 0; i+1 < len(node.Content); i += 2 {
				if node.Content[i].Value == seg {
					next = node.Content[i+1]
					break
				}
			}
			if next == nil {
				return nil, fmt.Errorf("unknown key %q", seg)
			}
			node = next
		case yaml.SequenceNode:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node.Content) {
				return nil, fmt.Errorf("index %q out of range (0..%d)", seg, len(node.Content)-1)
			}
			node = node.Content[i]
		default:
			return nil, fmt.Errorf("%q is not a map or list", seg)
		}
	}
	return node, nil
}
