package ingest

import (
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"

	"github.com/aryan0dhankhar/storefront/internal/domain"
)

var (
	liquidCommentRe = regexp.MustCompile(`(?s)\{%-?\s*comment\s*-?%\}.*?\{%-?\s*endcomment\s*-?%\}`)
	blankLinesRe    = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)+`)
	trailingSpaceRe = regexp.MustCompile(`[ \t]+\n`)
)

// Minifier shrinks theme source files. A file the processors cannot
// handle is kept unchanged.
type Minifier struct {
	css    *minify.M
	logger *slog.Logger
}

// NewMinifier creates a minifier
func NewMinifier(logger *slog.Logger) *Minifier {
	if logger == nil {
		logger = slog.Default()
	}
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	return &Minifier{css: m, logger: logger}
}

// Minify returns the minified content of f and whether it changed
func (m *Minifier) Minify(f domain.ThemeFile) ([]byte, bool) {
	var (
		out string
		err error
	)
	src := string(f.Content)
	base := path.Base(f.Path)
	switch {
	case strings.Contains(base, ".min."):
		return f.Content, false
	case f.Type == domain.FileTypeCSS && strings.HasSuffix(base, ".css") && !hasLiquid(src):
		out, err = m.css.String("text/css", src)
	case f.Type == domain.FileTypeJS && !hasLiquid(src):
		out, err = minifyJS(src)
	case f.Type == domain.FileTypeLiquid:
		out = MinifyLiquid(src)
	default:
		return f.Content, false
	}
	if err != nil {
		m.logger.Warn("minification failed, keeping original",
			slog.String("path", f.Path),
			slog.String("error", err.Error()),
		)
		return f.Content, false
	}
	return []byte(out), out != src
}

func hasLiquid(s string) bool {
	return strings.Contains(s, "{{") || strings.Contains(s, "{%")
}

func minifyJS(src string) (string, error) {
	res := api.Transform(src, api.TransformOptions{
		Loader:            api.LoaderJS,
		MinifyWhitespace:  true,
		MinifySyntax:      true,
		MinifyIdentifiers: false,
	})
	if len(res.Errors) > 0 {
		return "", fmt.Errorf("esbuild: %s", res.Errors[0].Text)
	}
	return string(res.Code), nil
}

// MinifyLiquid drops comment blocks, trailing whitespace and runs of
// blank lines. Templates with raw blocks are left alone; preformatted
// text only loses its comments.
func MinifyLiquid(src string) string {
	if strings.Contains(src, "{% raw") || strings.Contains(src, "{%- raw") {
		return src
	}
	out := liquidCommentRe.ReplaceAllString(src, "")
	if strings.Contains(strings.ToLower(out), "<pre") {
		return out
	}
	out = trailingSpaceRe.ReplaceAllString(out, "\n")
	return blankLinesRe.ReplaceAllString(out, "\n\n")
}
