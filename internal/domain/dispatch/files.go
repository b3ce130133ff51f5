package dispatch

import (
	"path/filepath"
	"strings"
)

const (
	ContentTypeXML    = "application/xml"
	ContentTypeJSON   = "application/json"
	ContentTypeCSV    = "text/csv"
	ContentTypeBinary = "application/octet-stream"
)

// FileEntry is one discovered file in a dispatch folder.
type FileEntry struct {
	FullPath    string
	Name        string
	ContentType string
}

func ContentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xml":
		return ContentTypeXML
	case ".json":
		return ContentTypeJSON
	case ".csv":
		return ContentTypeCSV
	default:
		return ContentTypeBinary
	}
}

// NormalizeExtensions trims entries, drops empties, prefixes a dot,
// lower-cases and de-duplicates while keeping first-seen order.
func NormalizeExtensions(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, item := range raw {
		ext := strings.ToLower(strings.TrimSpace(item))
		if ext == "" || ext == "." {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, dup := seen[ext]; dup {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	return out
}

// MatchesExtension reports whether name passes the filter. An empty filter matches everything.
func MatchesExtension(name string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// NormalizeFolderPath trims whitespace and trailing separators. Blank input stays blank.
func NormalizeFolderPath(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	return filepath.Clean(trimmed)
}

func NormalizeIdempotencyKey(raw string) string {
	return strings.TrimSpace(raw)
}
