package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeTheme(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"layout/theme.liquid":         `<html><body>{{ content_for_layout }}</body></html>`,
		"templates/index.json":        `{"sections": {"hero": {"type": "hero"}}, "order": ["hero"]}`,
		"templates/product.liquid":    `<h1>{{ product.title }}</h1>`,
		"sections/hero.liquid":        `<h2>{{ shop.name }}</h2>{% schema %}{"name": "Hero"}{% endschema %}`,
		"config/settings_schema.json": `[]`,
	}
	for p, c := range files {
		full := filepath.Join(dir, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(c), 0o644))
	}
	return dir
}

func TestRouteCommand(t *testing.T) {
	out, err := run(t, "route", "/products/blue-shirt")
	require.NoError(t, err)
	assert.Contains(t, out, "product")
	assert.Contains(t, out, "blue-shirt")

	out, err = run(t, "route", "/nowhere/at/all")
	require.NoError(t, err)
	assert.Contains(t, out, "(none)")
}

func TestThemePackageAndValidate(t *testing.T) {
	dir := writeTheme(t)
	zipPath := filepath.Join(t.TempDir(), "theme.zip")

	out, err := run(t, "theme", "package", dir, zipPath)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")

	out, err = run(t, "theme", "validate", zipPath)
	require.NoError(t, err)
	assert.Contains(t, out, "theme valid: 5 files")
}

func TestThemeValidateReportsIssues(t *testing.T) {
	dir := writeTheme(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "templates", "index.json")))

	out, err := run(t, "theme", "validate", dir)
	require.Error(t, err)
	assert.Contains(t, out, "templates/index.json")
}

func TestRenderPreview(t *testing.T) {
	dir := writeTheme(t)

	out, err := run(t, "render", dir, "--page", "/products/classic-tee")
	require.NoError(t, err)
	assert.Contains(t, out, "<h1>Classic Tee</h1>")

	out, err = run(t, "render", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "<h2>Preview Store</h2>")
}
