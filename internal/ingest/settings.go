package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/internal/liquid"
	"github.com/aryan0dhankhar/storefront/internal/templates"
)

// ThemeSettings is the resolved theme configuration of an upload
type ThemeSettings struct {
	Values map[string]any    `json:"values"`
	Colors map[string]string `json:"colors"`
	Fonts  map[string]string `json:"fonts"`
}

// ParseThemeSettings resolves config/settings_schema.json defaults
// overlaid with config/settings_data.json. Color settings are normalized
// to lowercase #rrggbb; an unreadable color falls back to its default with
// a warning.
func ParseThemeSettings(files []domain.ThemeFile) (*ThemeSettings, []Issue) {
	out := &ThemeSettings{Values: map[string]any{}, Colors: map[string]string{}, Fonts: map[string]string{}}
	var issues []Issue

	schemaFile, ok := findFile(files, "config/settings_schema.json")
	if !ok {
		return out, nil
	}
	defs, err := liquid.ParseSettingsSchema(schemaFile.Content)
	if err != nil {
		return out, []Issue{{
			Severity: SeverityError, Category: CategorySettings, Path: schemaFile.Path,
			Message: "settings schema must be an array of groups with settings",
		}}
	}

	current := map[string]any{}
	if dataFile, ok := findFile(files, "config/settings_data.json"); ok {
		c, err := templates.ResolveSettingsData(dataFile.Content)
		if err != nil {
			issues = append(issues, Issue{
				Severity: SeverityWarning, Category: CategorySettings, Path: dataFile.Path,
				Message: "settings data ignored: " + err.Error(),
			})
		} else {
			current = c
		}
	}
	out.Values = liquid.MergeSettings(liquid.SettingDefaults(defs), current)

	for _, def := range defs {
		switch {
		case def.Kind() == liquid.KindColor:
			raw, _ := out.Values[def.ID].(string)
			color, ok := NormalizeColor(raw)
			if !ok {
				issues = append(issues, Issue{
					Severity: SeverityWarning, Category: CategorySettings, Path: "config/settings_data.json",
					Message: fmt.Sprintf("setting %q has unreadable color %q; using the default", def.ID, raw),
				})
				dflt, _ := def.DefaultValue().(string)
				color, _ = NormalizeColor(dflt)
			}
			out.Values[def.ID] = color
			out.Colors[def.ID] = color
		case def.Type == "font_picker":
			if font, ok := out.Values[def.ID].(string); ok {
				out.Fonts[def.ID] = font
			}
		}
	}
	return out, issues
}

func findFile(files []domain.ThemeFile, p string) (domain.ThemeFile, bool) {
	for _, f := range files {
		if f.Path == p {
			return f, true
		}
	}
	return domain.ThemeFile{}, false
}

// NormalizeColor converts #rgb, #rrggbb and rgb(r, g, b) to lowercase
// #rrggbb. Blank values, "transparent" and rgba() colors are kept as
// written.
func NormalizeColor(s string) (string, bool) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	switch {
	case s == "", lower == "transparent":
		return lower, true
	case strings.HasPrefix(lower, "rgba("):
		return lower, strings.HasSuffix(lower, ")")
	case strings.HasPrefix(lower, "rgb("):
		return rgbColor(lower)
	}
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return "", false
	}
	return c.Hex(), true
}

func rgbColor(s string) (string, bool) {
	inner, ok := strings.CutSuffix(strings.TrimPrefix(s, "rgb("), ")")
	if !ok {
		return "", false
	}
	parts := strings.Split(inner, ",")
	if len(parts) != 3 {
		return "", false
	}
	var ch [3]float64
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 255 {
			return "", false
		}
		ch[i] = float64(n) / 255
	}
	return colorful.Color{R: ch[0], G: ch[1], B: ch[2]}.Hex(), true
}
