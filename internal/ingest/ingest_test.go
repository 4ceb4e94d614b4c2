package ingest

import (
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/storefront/internal/domain"
)

func themeFiles(prefix string, extra map[string]string) []domain.ThemeFile {
	base := map[string]string{
		"layout/theme.liquid":         `<html><head>{{ content_for_header }}</head><body>{{ content_for_layout }}</body></html>`,
		"templates/index.json":        `{"sections": {"hero": {"type": "hero"}}, "order": ["hero"]}`,
		"config/settings_schema.json": `[{"name": "Colors", "settings": [{"id": "accent", "type": "color", "default": "#FFF"}]}]`,
		"sections/hero.liquid":        "{% comment %}hero banner{% endcomment %}\n<h1>{{ section.settings.heading }}</h1>\n\n\n\n{% schema %}{\"name\": \"Hero\"}{% endschema %}",
		"assets/theme.css":            "body {\n  color: #ff0000;\n  margin: 0px;\n}\n",
	}
	for k, v := range extra {
		base[k] = v
	}
	var files []domain.ThemeFile
	for p, c := range base {
		files = append(files, domain.ThemeFile{Path: prefix + p, Content: []byte(c), Type: domain.FileTypeFromPath(p)})
	}
	return files
}

func zipOf(t *testing.T, files []domain.ThemeFile) []byte {
	t.Helper()
	data, err := Package(files)
	require.NoError(t, err)
	return data
}

func TestProcessThemeZipAcceptsNestedRoot(t *testing.T) {
	data := zipOf(t, themeFiles("dawn-main/", nil))

	theme, err := ProcessThemeZip(data, "s1")
	require.NoError(t, err)
	assert.NotEmpty(t, theme.ID)
	assert.Equal(t, "s1", theme.StoreID)
	assert.Equal(t, 5, theme.Stats.Files)

	layout, ok := theme.File("layout/theme.liquid")
	require.True(t, ok)
	assert.Equal(t, domain.FileTypeLiquid, layout.Type)

	_, nested := theme.File("dawn-main/layout/theme.liquid")
	assert.False(t, nested)
}

func TestProcessThemeZipAggregatesErrors(t *testing.T) {
	files := themeFiles("", map[string]string{
		"sections/broken.liquid": "{% if true %}unclosed",
		"templates/page.json":    "{not json",
	})
	var kept []domain.ThemeFile
	for _, f := range files {
		if f.Path != "templates/index.json" {
			kept = append(kept, f)
		}
	}

	_, err := ProcessThemeZip(zipOf(t, kept), "s1")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))

	categories := map[Category][]string{}
	for _, i := range verr.Issues {
		if i.Severity == SeverityError {
			categories[i.Category] = append(categories[i.Category], i.Path)
		}
	}
	assert.Contains(t, categories[CategoryStructure], "templates/index.json")
	assert.ElementsMatch(t, []string{"sections/broken.liquid", "templates/page.json"}, categories[CategorySyntax])
}

func TestWarningsKeepThemeValid(t *testing.T) {
	files := themeFiles("", map[string]string{
		"snippets/widget.liquid": `<script src="https://cdn.example.com/w.js"></script><script>document.write("x")</script>`,
	})

	theme, err := ProcessThemeZip(zipOf(t, files), "s1")
	require.NoError(t, err)

	var messages []string
	for _, w := range theme.Warnings {
		assert.Equal(t, SeverityWarning, w.Severity)
		if w.Category == CategorySecurity {
			messages = append(messages, w.Message)
		}
	}
	assert.ElementsMatch(t, []string{"loads an external script", "calls document.write"}, messages)
}

func TestUnsafeEntryRejected(t *testing.T) {
	files := themeFiles("", map[string]string{"../escape.liquid": "x"})

	_, err := ProcessThemeZip(zipOf(t, files), "s1")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Error(), "escapes the theme root")
}

func TestMinificationFallsBackToOriginal(t *testing.T) {
	broken := "function ( { return"
	files := themeFiles("", map[string]string{"assets/broken.js": broken, "assets/app.js": "function add(a, b) {\n  return a + b;\n}\n"})

	theme, err := ProcessThemeZip(zipOf(t, files), "s1")
	require.NoError(t, err)

	js, _ := theme.File("assets/broken.js")
	assert.Equal(t, broken, string(js.Content))

	app, _ := theme.File("assets/app.js")
	assert.NotContains(t, string(app.Content), "\n  ")

	css, _ := theme.File("assets/theme.css")
	assert.NotContains(t, string(css.Content), "\n")
	assert.Contains(t, string(css.Content), "margin:0")

	hero, _ := theme.File("sections/hero.liquid")
	assert.NotContains(t, string(hero.Content), "hero banner")
	assert.NotContains(t, string(hero.Content), "\n\n\n")
	assert.Greater(t, theme.Stats.SavedBytes, int64(0))
}

func TestMinifyLiquidLeavesRawBlocks(t *testing.T) {
	src := "{% raw %}{{ x }}{% endraw %}\n\n\n{% comment %}c{% endcomment %}"
	assert.Equal(t, src, MinifyLiquid(src))
}

func TestThemeSettingsNormalizeColors(t *testing.T) {
	files := themeFiles("", map[string]string{
		"config/settings_schema.json": `[{"name": "Theme", "settings": [
			{"id": "accent", "type": "color", "default": "#FFF"},
			{"id": "text", "type": "color", "default": "#111111"},
			{"id": "body_font", "type": "font_picker", "default": "helvetica_n4"}
		]}]`,
		"config/settings_data.json": `{"current": {"text": "not-a-color"}}`,
	})

	settings, issues := ParseThemeSettings(files)
	assert.Equal(t, "#ffffff", settings.Colors["accent"])
	assert.Equal(t, "#111111", settings.Colors["text"])
	assert.Equal(t, "helvetica_n4", settings.Fonts["body_font"])
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityWarning, issues[0].Severity)
}

func TestNormalizeColor(t *testing.T) {
	cases := map[string]string{
		"#FFF":               "#ffffff",
		"336699":             "#336699",
		"rgb(255, 0, 0)":     "#ff0000",
		"transparent":        "transparent",
		"":                   "",
		"rgba(0, 0, 0, 0.5)": "rgba(0, 0, 0, 0.5)",
	}
	for in, want := range cases {
		got, ok := NormalizeColor(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := NormalizeColor("rgb(300, 0, 0)")
	assert.False(t, ok)
}

func TestPackageDirSkipsHiddenFiles(t *testing.T) {
	fsys := afero.NewMemMapFs()
	for _, f := range themeFiles("", nil) {
		require.NoError(t, afero.WriteFile(fsys, "/theme/"+f.Path, f.Content, 0o644))
	}
	require.NoError(t, afero.WriteFile(fsys, "/theme/.git/config", []byte("x"), 0o644))

	data, err := PackageDir(fsys, "/theme")
	require.NoError(t, err)

	theme, err := NewProcessor(Options{Minify: false}, nil).ProcessThemeZip(data, "s1")
	require.NoError(t, err)
	for _, f := range theme.Files {
		assert.False(t, strings.HasPrefix(f.Path, ".git"), f.Path)
	}
	assert.Equal(t, 5, theme.Stats.Files)
}
