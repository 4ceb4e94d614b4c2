// Package liquid compiles and renders storefront theme templates. Parsing
// is delegated to github.com/osteele/liquid; this package adds the
// storefront tags and filters, schema handling and per-request state.
package liquid

import (
	"encoding/hex"
	"fmt"
	"log/slog"

	osteele "github.com/osteele/liquid"
	"github.com/zeebo/blake3"

	"github.com/aryan0dhankhar/storefront/internal/domain"
)

// Bindings are the variables a template renders against
type Bindings = map[string]any

// Environment is the ambient, per-store configuration filters read when
// their arguments are omitted
type Environment struct {
	StoreID      string
	StoreName    string
	Currency     domain.CurrencyConfig
	AssetBaseURL string            // prefix for asset_url, e.g. https://cdn.example.com or /cdn
	Translations map[string]string // flattened locale strings for the t filter
}

// Template is a compiled theme file
type Template struct {
	Path string
	Hash string
	tpl  *osteele.Template
}

// CompileError is returned when a template cannot be parsed
type CompileError struct {
	Path string
	Line int
	Err  error
}

func (e *CompileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("failed to compile %s (line %d): %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("failed to compile %s: %v", e.Path, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Engine compiles and renders templates for one store. Tag and filter
// registration happens once in NewEngine; afterwards the engine is safe
// for concurrent use.
type Engine struct {
	eng    *osteele.Engine
	env    Environment
	logger *slog.Logger
	money  Filter
}

// NewEngine creates an engine with the storefront tags and filters registered
func NewEngine(env Environment, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if env.Currency.Code == "" {
		env.Currency = domain.DefaultCurrency()
	}
	e := &Engine{
		eng:    osteele.NewEngine(),
		env:    env,
		logger: logger.With(slog.String("component", "liquid"), slog.String("store_id", env.StoreID)),
	}
	e.registerTags()
	e.registerFilters()
	return e
}

// Environment returns the ambient configuration the engine was built with
func (e *Engine) Environment() Environment {
	return e.env
}

// HashSource returns the content hash used to detect changed sources
func HashSource(source []byte) string {
	sum := blake3.Sum256(source)
	return hex.EncodeToString(sum[:16])
}

// Compile parses source into a template. The same source always yields an
// equal template.
func (e *Engine) Compile(path, source string) (*Template, error) {
	tpl, err := e.eng.ParseTemplate([]byte(source))
	if err != nil {
		var cause error = err
		if c := err.Cause(); c != nil {
			cause = c
		}
		return nil, &CompileError{Path: path, Line: err.LineNumber(), Err: cause}
	}
	return &Template{Path: path, Hash: HashSource([]byte(source)), tpl: tpl}, nil
}

// Render executes a compiled template. The bindings map is not modified.
func (e *Engine) Render(t *Template, b Bindings) (string, error) {
	if t == nil || t.tpl == nil {
		return "", fmt.Errorf("failed to render: nil template")
	}
	out, err := t.tpl.RenderString(b)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", t.Path, err)
	}
	return out, nil
}

// RenderSource compiles and renders in one step
func (e *Engine) RenderSource(path, source string, b Bindings) (string, error) {
	t, err := e.Compile(path, source)
	if err != nil {
		return "", err
	}
	return e.Render(t, b)
}

// Validate reports whether source compiles
func (e *Engine) Validate(path, source string) error {
	_, err := e.Compile(path, source)
	return err
}
