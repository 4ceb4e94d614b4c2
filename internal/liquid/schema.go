package liquid

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var schemaBlockRe = regexp.MustCompile(`(?s)\{%-?\s*schema\s*-?%\}(.*?)\{%-?\s*endschema\s*-?%\}`)

// SettingKind is the value family of a schema setting type
type SettingKind int

const (
	KindUnknown SettingKind = iota
	KindText
	KindNumber
	KindBoolean
	KindColor
	KindMedia
	KindSelect
)

func (k SettingKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindColor:
		return "color"
	case KindMedia:
		return "media"
	case KindSelect:
		return "select"
	}
	return "unknown"
}

// KindOf maps a schema setting type tag to its kind
func KindOf(settingType string) SettingKind {
	switch settingType {
	case "text", "textarea", "richtext", "inline_richtext", "html", "url", "liquid":
		return KindText
	case "number", "range":
		return KindNumber
	case "checkbox":
		return KindBoolean
	case "color", "color_background":
		return KindColor
	case "image", "image_picker", "file", "video", "video_url":
		return KindMedia
	case "select", "radio", "font_picker", "collection", "product", "page", "link_list", "blog":
		return KindSelect
	}
	return KindUnknown
}

// TypeDefault is the value an unset setting of kind k resolves to
func (k SettingKind) TypeDefault() any {
	switch k {
	case KindText:
		return ""
	case KindNumber:
		return 0
	case KindBoolean:
		return false
	case KindColor:
		return "#000000"
	}
	return nil
}

// SettingOption is one choice of a select or radio setting
type SettingOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// SettingDef is one entry of a schema's settings array
type SettingDef struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Label   string          `json:"label,omitempty"`
	Default json.RawMessage `json:"default,omitempty"`
	Options []SettingOption `json:"options,omitempty"`
	Min     *float64        `json:"min,omitempty"`
	Max     *float64        `json:"max,omitempty"`
}

// Kind returns the value family of the setting
func (d SettingDef) Kind() SettingKind {
	return KindOf(d.Type)
}

// DefaultValue returns the declared default, or the type default when none
// is declared
func (d SettingDef) DefaultValue() any {
	if len(d.Default) > 0 && string(d.Default) != "null" {
		var v any
		if err := json.Unmarshal(d.Default, &v); err == nil {
			return v
		}
	}
	return d.Kind().TypeDefault()
}

// BlockDef declares a block type a section accepts
type BlockDef struct {
	Type     string       `json:"type"`
	Name     string       `json:"name,omitempty"`
	Limit    int          `json:"limit,omitempty"`
	Settings []SettingDef `json:"settings,omitempty"`
}

// Defaults returns the block's resolved default settings
func (b BlockDef) Defaults() map[string]any {
	return settingDefaults(b.Settings)
}

// Schema is the parsed {% schema %} block of a section or theme
type Schema struct {
	Name      string          `json:"name,omitempty"`
	Tag       string          `json:"tag,omitempty"`
	Class     string          `json:"class,omitempty"`
	Settings  []SettingDef    `json:"settings"`
	Blocks    []BlockDef      `json:"blocks,omitempty"`
	MaxBlocks int             `json:"max_blocks,omitempty"`
	Presets   json.RawMessage `json:"presets,omitempty"`
}

// Defaults returns every setting id mapped to its default value
func (s *Schema) Defaults() map[string]any {
	if s == nil {
		return map[string]any{}
	}
	return settingDefaults(s.Settings)
}

// Block returns the declaration for a block type
func (s *Schema) Block(blockType string) (BlockDef, bool) {
	if s == nil {
		return BlockDef{}, false
	}
	for _, b := range s.Blocks {
		if b.Type == blockType {
			return b, true
		}
	}
	return BlockDef{}, false
}

func settingDefaults(defs []SettingDef) map[string]any {
	out := make(map[string]any, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			continue
		}
		out[d.ID] = d.DefaultValue()
	}
	return out
}

// ExtractSchema returns the raw JSON of the first schema block in source
func ExtractSchema(source string) (string, bool) {
	m := schemaBlockRe.FindStringSubmatch(source)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// StripSchema removes every schema block from source
func StripSchema(source string) string {
	return schemaBlockRe.ReplaceAllString(source, "")
}

// ParseSchema decodes a schema JSON document. Empty input yields an empty schema.
func ParseSchema(raw string) (*Schema, error) {
	s := &Schema{}
	if strings.TrimSpace(raw) == "" {
		return s, nil
	}
	if err := json.Unmarshal([]byte(raw), s); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	return s, nil
}

// ParseSettingsSchema decodes config/settings_schema.json, an array of
// named groups each holding a settings array
func ParseSettingsSchema(raw []byte) ([]SettingDef, error) {
	var groups []struct {
		Name     string       `json:"name"`
		Settings []SettingDef `json:"settings"`
	}
	if err := json.Unmarshal(raw, &groups); err != nil {
		return nil, fmt.Errorf("failed to parse settings schema: %w", err)
	}
	var defs []SettingDef
	for _, g := range groups {
		defs = append(defs, g.Settings...)
	}
	return defs, nil
}

// SettingDefaults maps setting ids to their resolved defaults
func SettingDefaults(defs []SettingDef) map[string]any {
	return settingDefaults(defs)
}

// MergeSettings layers overrides on top of defaults. An override always
// wins, including explicit zero values.
func MergeSettings(defaults, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
