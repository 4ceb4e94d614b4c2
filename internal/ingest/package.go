package ingest

import (
	"bytes"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"

	"github.com/aryan0dhankhar/storefront/internal/domain"
)

// ReadDir loads a theme directory. Hidden files and folders are skipped.
func ReadDir(fsys afero.Fs, dir string) ([]domain.ThemeFile, error) {
	var files []domain.ThemeFile
	err := afero.Walk(fsys, dir, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel != "." && strings.HasPrefix(filepath.Base(p), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		content, err := afero.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}
		files = append(files, domain.ThemeFile{Path: rel, Content: content, Type: domain.FileTypeFromPath(rel)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read theme directory: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Package zips theme files in path order
func Package(files []domain.ThemeFile) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	sorted := append([]domain.ThemeFile(nil), files...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	for _, f := range sorted {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Path, Method: zip.Deflate})
		if err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", f.Path, err)
		}
		if _, err := w.Write(f.Content); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.Path, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	return buf.Bytes(), nil
}

// PackageDir zips a theme directory
func PackageDir(fsys afero.Fs, dir string) ([]byte, error) {
	files, err := ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	return Package(files)
}
