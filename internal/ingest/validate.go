package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/internal/liquid"
)

// Severity separates issues that reject a theme from advisory ones
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Category names the validator that raised an issue
type Category string

const (
	CategoryStructure   Category = "structure"
	CategorySyntax      Category = "syntax"
	CategorySecurity    Category = "security"
	CategoryPerformance Category = "performance"
	CategorySettings    Category = "settings"
)

// Issue is one validation finding
type Issue struct {
	Severity Severity `json:"severity"`
	Category Category `json:"category"`
	Path     string   `json:"path,omitempty"`
	Line     int      `json:"line,omitempty"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	loc := i.Path
	if loc != "" && i.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, i.Line)
	}
	if loc == "" {
		return fmt.Sprintf("[%s/%s] %s", i.Severity, i.Category, i.Message)
	}
	return fmt.Sprintf("[%s/%s] %s: %s", i.Severity, i.Category, loc, i.Message)
}

// HasErrors reports whether any issue rejects the theme
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidationError rejects a theme with every issue found
type ValidationError struct {
	Issues []Issue `json:"issues"`
}

func (e *ValidationError) Error() string {
	var errs []string
	for _, i := range e.Issues {
		if i.Severity == SeverityError {
			errs = append(errs, i.String())
		}
	}
	return fmt.Sprintf("invalid theme: %d error(s): %s", len(errs), strings.Join(errs, "; "))
}

// Validator checks one aspect of a theme
type Validator interface {
	Name() Category
	Validate(files []domain.ThemeFile) []Issue
}

// theme directories files are expected in
var themeDirs = map[string]bool{
	"layout": true, "templates": true, "sections": true, "snippets": true,
	"assets": true, "config": true, "locales": true, "blocks": true,
}

var allowedExt = map[string]bool{
	".liquid": true, ".json": true, ".css": true, ".scss": true, ".js": true, ".mjs": true, ".map": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".webp": true, ".ico": true, ".avif": true,
	".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true,
	".txt": true, ".md": true,
}

// StructureValidator checks required files, limits and file types
type StructureValidator struct {
	opts Options
}

func (StructureValidator) Name() Category { return CategoryStructure }

func (v StructureValidator) Validate(files []domain.ThemeFile) []Issue {
	var issues []Issue
	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f.Path] = true
	}
	for _, req := range RequiredFiles {
		if !present[req] {
			issues = append(issues, structureError(req, "required file is missing"))
		}
	}
	if v.opts.MaxFiles > 0 && len(files) > v.opts.MaxFiles {
		issues = append(issues, structureError("", fmt.Sprintf("theme has %d files, the limit is %d", len(files), v.opts.MaxFiles)))
	}
	var total int64
	for _, f := range files {
		total += int64(len(f.Content))
		ext := strings.ToLower(path.Ext(f.Path))
		if !allowedExt[ext] {
			issues = append(issues, structureError(f.Path, fmt.Sprintf("file type %q is not allowed", ext)))
			continue
		}
		dir, _, nested := strings.Cut(f.Path, "/")
		if !nested || !themeDirs[dir] {
			if ext != ".md" && ext != ".txt" {
				issues = append(issues, Issue{
					Severity: SeverityWarning, Category: CategoryStructure, Path: f.Path,
					Message: "file is outside the theme directories and will never be served",
				})
			}
		}
	}
	if v.opts.MaxTotalSize > 0 && total > v.opts.MaxTotalSize {
		issues = append(issues, structureError("", fmt.Sprintf("theme is %d bytes, the limit is %d", total, v.opts.MaxTotalSize)))
	}
	return issues
}

func structureError(p, msg string) Issue {
	return Issue{Severity: SeverityError, Category: CategoryStructure, Path: p, Message: msg}
}

// SyntaxValidator compiles every Liquid file and parses every JSON file
type SyntaxValidator struct {
	opts   Options
	engine *liquid.Engine
}

// NewSyntaxValidator creates a validator with its own engine
func NewSyntaxValidator(opts Options, logger *slog.Logger) SyntaxValidator {
	return SyntaxValidator{
		opts:   opts,
		engine: liquid.NewEngine(liquid.Environment{Currency: domain.DefaultCurrency()}, logger),
	}
}

func (SyntaxValidator) Name() Category { return CategorySyntax }

func (v SyntaxValidator) Validate(files []domain.ThemeFile) []Issue {
	var issues []Issue
	for _, f := range files {
		switch f.Type {
		case domain.FileTypeLiquid:
			issues = append(issues, v.liquid(f)...)
		case domain.FileTypeJSON:
			if !json.Valid(f.Content) {
				issues = append(issues, Issue{
					Severity: SeverityError, Category: CategorySyntax, Path: f.Path,
					Message: "invalid JSON",
				})
			}
		}
	}
	return issues
}

func (v SyntaxValidator) liquid(f domain.ThemeFile) []Issue {
	var issues []Issue
	if v.opts.MaxLiquidSize > 0 && int64(len(f.Content)) > v.opts.MaxLiquidSize {
		issues = append(issues, Issue{
			Severity: SeverityWarning, Category: CategorySyntax, Path: f.Path,
			Message: fmt.Sprintf("template is %d bytes; large templates slow every render", len(f.Content)),
		})
	}
	source := string(f.Content)
	if err := v.engine.Validate(f.Path, source); err != nil {
		issue := Issue{Severity: SeverityError, Category: CategorySyntax, Path: f.Path, Message: err.Error()}
		var ce *liquid.CompileError
		if errors.As(err, &ce) {
			issue.Line = ce.Line
			issue.Message = ce.Err.Error()
		}
		issues = append(issues, issue)
	}
	if raw, ok := liquid.ExtractSchema(source); ok {
		if _, err := liquid.ParseSchema(raw); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityWarning, Category: CategorySyntax, Path: f.Path,
				Message: "schema is not valid JSON; the section renders without settings",
			})
		}
	}
	return issues
}

var securityPatterns = []struct {
	re      *regexp.Regexp
	message string
}{
	{regexp.MustCompile(`(?i)<script[^>]+src\s*=\s*["']?https?://`), "loads an external script"},
	{regexp.MustCompile(`\beval\s*\(`), "calls eval"},
	{regexp.MustCompile(`\bdocument\.write\s*\(`), "calls document.write"},
	{regexp.MustCompile(`\.innerHTML\s*=[^=]`), "assigns innerHTML"},
}

// SecurityValidator flags risky script patterns. Findings are warnings:
// themes may legitimately embed third-party widgets.
type SecurityValidator struct{}

func (SecurityValidator) Name() Category { return CategorySecurity }

func (SecurityValidator) Validate(files []domain.ThemeFile) []Issue {
	var issues []Issue
	for _, f := range files {
		if f.Type != domain.FileTypeLiquid && f.Type != domain.FileTypeJS {
			continue
		}
		for _, p := range securityPatterns {
			loc := p.re.FindIndex(f.Content)
			if loc == nil {
				continue
			}
			issues = append(issues, Issue{
				Severity: SeverityWarning, Category: CategorySecurity, Path: f.Path,
				Line:    lineOf(f.Content, loc[0]),
				Message: p.message,
			})
		}
	}
	return issues
}

func lineOf(content []byte, offset int) int {
	return strings.Count(string(content[:offset]), "\n") + 1
}

// PerformanceValidator gives advisory hints about asset weight
type PerformanceValidator struct {
	opts Options
}

func (PerformanceValidator) Name() Category { return CategoryPerformance }

func (v PerformanceValidator) Validate(files []domain.ThemeFile) []Issue {
	var issues []Issue
	perDir := map[string]int{}
	var assetBytes int64
	for _, f := range files {
		dir, _, _ := strings.Cut(f.Path, "/")
		perDir[dir]++
		size := int64(len(f.Content))
		if dir == "assets" {
			assetBytes += size
		}
		if dir == "assets" && v.opts.MaxAssetSize > 0 && size > v.opts.MaxAssetSize {
			issues = append(issues, perfWarning(f.Path, fmt.Sprintf("asset is %d bytes; consider compressing it", size)))
		}
		if !v.opts.Minify && (f.Type == domain.FileTypeCSS || f.Type == domain.FileTypeJS) &&
			!strings.Contains(path.Base(f.Path), ".min.") && size > 50<<10 {
			issues = append(issues, perfWarning(f.Path, "unminified asset; enable minification or ship a .min file"))
		}
	}
	if perDir["sections"] > 100 {
		issues = append(issues, perfWarning("sections", fmt.Sprintf("%d sections; large section counts slow theme editing", perDir["sections"])))
	}
	if perDir["snippets"] > 200 {
		issues = append(issues, perfWarning("snippets", fmt.Sprintf("%d snippets; consider consolidating", perDir["snippets"])))
	}
	if v.opts.MaxTotalSize > 0 && assetBytes > v.opts.MaxTotalSize/2 {
		issues = append(issues, perfWarning("assets", "assets make up most of the theme weight"))
	}
	return issues
}

func perfWarning(p, msg string) Issue {
	return Issue{Severity: SeverityWarning, Category: CategoryPerformance, Path: p, Message: msg}
}
