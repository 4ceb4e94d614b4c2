package featureflags

import (
	"os"
	"strings"
)

// Flag names, read from env as FLAG_<NAME>
const (
	MinifyHTML   = "MINIFY_HTML"
	EditorBridge = "EDITOR_BRIDGE"
	ThemeWatch   = "THEME_WATCH"
)

// Set is a snapshot of the flags taken at startup
type Set struct {
	// MinifyHTML minifies rendered pages before they are cached
	MinifyHTML bool
	// EditorBridge injects the Theme Studio script into editor-mode pages
	EditorBridge bool
	// ThemeWatch invalidates stores when their local theme files change
	ThemeWatch bool
}

// Load reads every flag once
func Load() Set {
	return Set{
		MinifyHTML:   Enabled(MinifyHTML),
		EditorBridge: Enabled(EditorBridge),
		ThemeWatch:   Enabled(ThemeWatch),
	}
}

// Enabled returns true if a flag is enabled via environment variable.
// Flags are read from env as FLAG_<NAME>=true/1/yes (case-insensitive)
func Enabled(name string) bool {
	v := os.Getenv("FLAG_" + strings.ToUpper(name))
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
