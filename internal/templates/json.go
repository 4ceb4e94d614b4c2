package templates

import (
	"encoding/json"
	"fmt"
	"sort"
)

// BlockConfig is one configured block instance of a section
type BlockConfig struct {
	Type     string         `json:"type"`
	Settings map[string]any `json:"settings"`
	Disabled bool           `json:"disabled"`
}

// SectionConfig is one configured section instance of a JSON template
type SectionConfig struct {
	Type       string                 `json:"type"`
	Settings   map[string]any         `json:"settings"`
	Blocks     map[string]BlockConfig `json:"blocks"`
	BlockOrder []string               `json:"block_order"`
	Disabled   bool                   `json:"disabled"`
}

// OrderedBlocks returns the enabled blocks in block_order, followed by
// any blocks block_order leaves out, sorted by id
func (s SectionConfig) OrderedBlocks() []OrderedBlock {
	seen := make(map[string]bool, len(s.Blocks))
	var out []OrderedBlock
	for _, id := range s.BlockOrder {
		b, ok := s.Blocks[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		if !b.Disabled {
			out = append(out, OrderedBlock{ID: id, BlockConfig: b})
		}
	}
	var rest []string
	for id := range s.Blocks {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		if b := s.Blocks[id]; !b.Disabled {
			out = append(out, OrderedBlock{ID: id, BlockConfig: b})
		}
	}
	return out
}

// OrderedBlock is a block together with its instance id
type OrderedBlock struct {
	ID string
	BlockConfig
}

// JSONTemplate is a section-configured page template (templates/*.json)
// or section group (sections/*.json)
type JSONTemplate struct {
	Name     string                   `json:"name"`
	Type     string                   `json:"type"`
	Layout   json.RawMessage          `json:"layout"`
	Wrapper  string                   `json:"wrapper"`
	Sections map[string]SectionConfig `json:"sections"`
	Order    []string                 `json:"order"`
}

// ParseJSONTemplate decodes a JSON template document
func ParseJSONTemplate(raw []byte) (*JSONTemplate, error) {
	t := &JSONTemplate{}
	if err := json.Unmarshal(raw, t); err != nil {
		return nil, fmt.Errorf("failed to parse json template: %w", err)
	}
	return t, nil
}

// LayoutName returns the layout the template renders inside. An explicit
// false means no layout, reported as ("", false).
func (t *JSONTemplate) LayoutName() (string, bool) {
	if len(t.Layout) == 0 || string(t.Layout) == "null" {
		return "theme", true
	}
	var b bool
	if json.Unmarshal(t.Layout, &b) == nil {
		if b {
			return "theme", true
		}
		return "", false
	}
	var s string
	if json.Unmarshal(t.Layout, &s) == nil && s != "" {
		return s, true
	}
	return "theme", true
}

// SectionRef is one section instance in render order
type SectionRef struct {
	ID string
	SectionConfig
}

// OrderedSections returns the enabled sections in order. Sections missing
// from order follow, sorted by id.
func (t *JSONTemplate) OrderedSections() []SectionRef {
	seen := make(map[string]bool, len(t.Sections))
	var out []SectionRef
	for _, id := range t.Order {
		s, ok := t.Sections[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		if !s.Disabled && s.Type != "" {
			out = append(out, SectionRef{ID: id, SectionConfig: s})
		}
	}
	var rest []string
	for id := range t.Sections {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		if s := t.Sections[id]; !s.Disabled && s.Type != "" {
			out = append(out, SectionRef{ID: id, SectionConfig: s})
		}
	}
	return out
}

// ResolveSettingsData picks the active settings from a settings_data.json
// document: "current" is either the settings object itself or the name of
// a preset
func ResolveSettingsData(raw []byte) (map[string]any, error) {
	var doc struct {
		Current json.RawMessage           `json:"current"`
		Presets map[string]map[string]any `json:"presets"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse settings data: %w", err)
	}
	var preset string
	if json.Unmarshal(doc.Current, &preset) == nil {
		if p, ok := doc.Presets[preset]; ok {
			return p, nil
		}
		return map[string]any{}, nil
	}
	current := map[string]any{}
	if len(doc.Current) > 0 && string(doc.Current) != "null" {
		if err := json.Unmarshal(doc.Current, &current); err != nil {
			return nil, fmt.Errorf("failed to parse current settings: %w", err)
		}
	}
	return current, nil
}
