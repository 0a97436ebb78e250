package display

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/mescon/Tickarr/internal/widget"
)

// Layout is the YAML presets file: named widget configurations plus the
// elements (and their widgets) to create on first start.
//
//	defaults:
//	  mask: "hh:mm:ss"
//	presets:
//	  standup:
//	    type: count-down
//	    initial_time: 900000
//	    mask: "mm:ss"
//	elements:
//	  - id: lobby
//	    label: Lobby screen
//	    widgets:
//	      - preset: standup
type Layout struct {
	Defaults widget.Options            `yaml:"defaults"`
	Presets  map[string]widget.Options `yaml:"presets"`
	Elements []ElementSeed             `yaml:"elements"`
}

// ElementSeed describes an element created from the layout file.
type ElementSeed struct {
	ID      string       `yaml:"id"`
	Label   string       `yaml:"label"`
	Widgets []WidgetSeed `yaml:"widgets"`
}

// WidgetSeed describes a widget attached to a seeded element.
type WidgetSeed struct {
	Preset  string         `yaml:"preset"`
	Options widget.Options `yaml:",inline"`
}

// LoadLayout reads a layout file. A missing file yields an empty layout.
func LoadLayout(path string) (*Layout, error) {
	if path == "" {
		return &Layout{}, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Layout{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read layout %s: %w", path, err)
	}
	return ParseLayout(data)
}

// ParseLayout decodes and validates a layout document.
func ParseLayout(data []byte) (*Layout, error) {
	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}
	seen := make(map[string]bool)
	for _, el := range l.Elements {
		if el.ID == "" {
			return nil, fmt.Errorf("layout element without id")
		}
		if seen[el.ID] {
			return nil, fmt.Errorf("duplicate layout element %q", el.ID)
		}
		seen[el.ID] = true
		for _, w := range el.Widgets {
			if w.Preset == "" {
				continue
			}
			if _, ok := l.Presets[w.Preset]; !ok {
				return nil, fmt.Errorf("element %q: %w: %s", el.ID, ErrUnknownPreset, w.Preset)
			}
		}
	}
	return &l, nil
}

// PresetNames returns the preset names in sorted order.
func (l *Layout) PresetNames() []string {
	names := make([]string, 0, len(l.Presets))
	for name := range l.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
