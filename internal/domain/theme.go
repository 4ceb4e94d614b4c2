package domain

import (
	"context"
	"path"
	"strings"
)

// FileType classifies a theme file by how it is consumed
type FileType string

const (
	FileTypeLiquid FileType = "liquid"
	FileTypeJSON   FileType = "json"
	FileTypeCSS    FileType = "css"
	FileTypeJS     FileType = "js"
	FileTypeImage  FileType = "image"
	FileTypeFont   FileType = "font"
	FileTypeOther  FileType = "other"
)

// FileTypeFromPath derives the declared type from a file extension
func FileTypeFromPath(p string) FileType {
	switch strings.ToLower(path.Ext(p)) {
	case ".liquid":
		return FileTypeLiquid
	case ".json":
		return FileTypeJSON
	case ".css", ".scss":
		return FileTypeCSS
	case ".js", ".mjs":
		return FileTypeJS
	case ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico", ".avif":
		return FileTypeImage
	case ".woff", ".woff2", ".ttf", ".otf", ".eot":
		return FileTypeFont
	default:
		return FileTypeOther
	}
}

// ThemeFile is one file of an installed theme. Content is immutable once stored.
type ThemeFile struct {
	Path    string
	Content []byte
	Type    FileType
}

// IsText reports whether the file content is template or source text
func (f ThemeFile) IsText() bool {
	switch f.Type {
	case FileTypeLiquid, FileTypeJSON, FileTypeCSS, FileTypeJS:
		return true
	}
	return strings.HasSuffix(f.Path, ".svg")
}

// ContentType returns the MIME type used when the file is uploaded
func (f ThemeFile) ContentType() string {
	switch f.Type {
	case FileTypeLiquid:
		return "text/x-liquid; charset=utf-8"
	case FileTypeJSON:
		return "application/json"
	case FileTypeCSS:
		return "text/css; charset=utf-8"
	case FileTypeJS:
		return "application/javascript"
	case FileTypeFont:
		return "font/" + strings.TrimPrefix(path.Ext(f.Path), ".")
	case FileTypeImage:
		if strings.HasSuffix(f.Path, ".svg") {
			return "image/svg+xml"
		}
		return "image/" + strings.TrimPrefix(strings.ToLower(path.Ext(f.Path)), ".")
	}
	return "application/octet-stream"
}

// TemplatePrefix is the object-storage prefix owning every file of a store's theme
func TemplatePrefix(storeID string) string {
	return "templates/" + storeID + "/"
}

// TemplateKey is the object-storage key of one theme file
func TemplateKey(storeID, filePath string) string {
	return TemplatePrefix(storeID) + strings.TrimPrefix(filePath, "/")
}

// ObjectStorage is the blob store theme files live in.
// Get returns ErrObjectNotFound for a missing key.
type ObjectStorage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}
