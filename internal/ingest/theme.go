// Package ingest turns an uploaded theme ZIP into validated, optionally
// minified theme files ready to be stored.
package ingest

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	"github.com/aryan0dhankhar/storefront/internal/domain"
)

// RequiredFiles must exist in every theme
var RequiredFiles = []string{
	"layout/theme.liquid",
	"templates/index.json",
	"config/settings_schema.json",
}

// Options bounds and tunes ingestion
type Options struct {
	MaxFiles     int
	MaxTotalSize int64
	// MaxAssetSize is the size above which an asset draws a warning
	MaxAssetSize int64
	// MaxLiquidSize is the size above which a Liquid file draws a warning
	MaxLiquidSize int64
	Minify        bool
}

// DefaultOptions are the limits applied to theme uploads
func DefaultOptions() Options {
	return Options{
		MaxFiles:      1000,
		MaxTotalSize:  50 << 20,
		MaxAssetSize:  2 << 20,
		MaxLiquidSize: 1 << 20,
		Minify:        true,
	}
}

// Stats summarizes a processed theme
type Stats struct {
	Files      int   `json:"files"`
	TotalBytes int64 `json:"totalBytes"`
	Minified   int   `json:"minified"`
	SavedBytes int64 `json:"savedBytes"`
}

// ProcessedTheme is a theme that passed validation
type ProcessedTheme struct {
	ID       string             `json:"id"`
	StoreID  string             `json:"storeId"`
	Files    []domain.ThemeFile `json:"-"`
	Settings *ThemeSettings     `json:"settings"`
	Warnings []Issue            `json:"warnings"`
	Stats    Stats              `json:"stats"`
}

// File returns the theme file at path
func (t *ProcessedTheme) File(p string) (domain.ThemeFile, bool) {
	return findFile(t.Files, p)
}

// Processor validates and prepares uploaded themes
type Processor struct {
	opts       Options
	validators []Validator
	minifier   *Minifier
	logger     *slog.Logger
}

// NewProcessor creates a processor running the standard validators
func NewProcessor(opts Options, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		opts: opts,
		validators: []Validator{
			StructureValidator{opts: opts},
			NewSyntaxValidator(opts, logger),
			SecurityValidator{},
			PerformanceValidator{opts: opts},
		},
		minifier: NewMinifier(logger),
		logger:   logger,
	}
}

// ProcessThemeZip processes data with the default options
func ProcessThemeZip(data []byte, storeID string) (*ProcessedTheme, error) {
	return NewProcessor(DefaultOptions(), nil).ProcessThemeZip(data, storeID)
}

// ProcessThemeZip reads, validates and minifies a theme archive. Every
// validator runs; an error from any of them returns a *ValidationError
// carrying all issues. Warnings alone keep the theme valid.
func (p *Processor) ProcessThemeZip(data []byte, storeID string) (*ProcessedTheme, error) {
	// 1. Read the archive
	files, issues, err := p.readZip(data)
	if err != nil {
		return nil, err
	}

	// 2. Validate
	issues = append(issues, p.Validate(files)...)
	settings, settingIssues := ParseThemeSettings(files)
	issues = append(issues, settingIssues...)
	if HasErrors(issues) {
		return nil, &ValidationError{Issues: issues}
	}

	// 3. Minify
	theme := &ProcessedTheme{
		ID:       uuid.NewString(),
		StoreID:  storeID,
		Settings: settings,
		Warnings: issues,
	}
	for i, f := range files {
		theme.Stats.TotalBytes += int64(len(f.Content))
		if !p.opts.Minify {
			continue
		}
		out, ok := p.minifier.Minify(f)
		if ok && len(out) < len(f.Content) {
			theme.Stats.Minified++
			theme.Stats.SavedBytes += int64(len(f.Content) - len(out))
			files[i].Content = out
		}
	}
	theme.Files = files
	theme.Stats.Files = len(files)

	p.logger.Info("theme processed",
		slog.String("store_id", storeID),
		slog.String("theme_id", theme.ID),
		slog.Int("files", theme.Stats.Files),
		slog.Int("warnings", len(issues)),
		slog.Int("minified", theme.Stats.Minified),
	)
	return theme, nil
}

// Validate runs every validator over files and aggregates their issues
func (p *Processor) Validate(files []domain.ThemeFile) []Issue {
	var issues []Issue
	for _, v := range p.validators {
		issues = append(issues, v.Validate(files)...)
	}
	return issues
}

// readZip extracts the theme files. Archives that wrap the theme in a
// top-level folder are accepted. Unsafe entry names are reported rather
// than extracted.
func (p *Processor) readZip(data []byte) ([]domain.ThemeFile, []Issue, error) {
	// entries with unsafe names still yield a reader; they are reported below
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if zr == nil {
		return nil, nil, fmt.Errorf("failed to open theme archive: %w", err)
	}

	var names []string
	entries := make(map[string]*zip.File)
	var issues []Issue
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || ignoredEntry(f.Name) {
			continue
		}
		name := strings.ReplaceAll(f.Name, "\\", "/")
		if !safePath(name) {
			issues = append(issues, Issue{
				Severity: SeverityError, Category: CategorySecurity, Path: f.Name,
				Message: "archive entry escapes the theme root",
			})
			continue
		}
		names = append(names, name)
		entries[name] = f
	}

	root := themeRoot(names)
	var files []domain.ThemeFile
	var total int64
	for _, name := range names {
		if !strings.HasPrefix(name, root) {
			continue
		}
		rel := strings.TrimPrefix(name, root)
		f := entries[name]
		total += int64(f.UncompressedSize64)
		if p.opts.MaxTotalSize > 0 && total > p.opts.MaxTotalSize {
			issues = append(issues, Issue{
				Severity: SeverityError, Category: CategoryStructure,
				Message: fmt.Sprintf("theme exceeds %d bytes uncompressed", p.opts.MaxTotalSize),
			})
			break
		}
		content, err := readEntry(f)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		files = append(files, domain.ThemeFile{Path: rel, Content: content, Type: domain.FileTypeFromPath(rel)})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, issues, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func ignoredEntry(name string) bool {
	base := path.Base(name)
	return strings.HasPrefix(name, "__MACOSX/") || base == ".DS_Store" || base == "Thumbs.db"
}

func safePath(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, ":") {
		return false
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}

// themeRoot finds the folder the theme lives in: the shortest prefix under
// which a required file appears
func themeRoot(names []string) string {
	root, found := "", false
	for _, name := range names {
		for _, req := range RequiredFiles {
			if name != req && !strings.HasSuffix(name, "/"+req) {
				continue
			}
			prefix := strings.TrimSuffix(name, req)
			if !found || len(prefix) < len(root) {
				root, found = prefix, true
			}
		}
	}
	return root
}
