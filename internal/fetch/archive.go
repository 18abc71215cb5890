package fetch

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
)

// ExpandOptions limits ZIP expansion
type ExpandOptions struct {
	// MaxFileSize is the maximum size for a single entry in bytes (0 = unlimited)
	MaxFileSize int64
	// MaxTotalSize is the maximum total size of all extracted entries (0 = unlimited)
	MaxTotalSize int64
	// MaxFiles is the maximum number of entries to extract (0 = unlimited)
	MaxFiles int
	// AllowedExtensions filters which entries are extracted (empty = all)
	AllowedExtensions []string
	// SkipPatterns skips entries whose name contains any pattern
	SkipPatterns []string
}

// DefaultExpandOptions returns options suited to school dataset archives
func DefaultExpandOptions() ExpandOptions {
	return ExpandOptions{
		MaxFileSize:       512 * 1024 * 1024,
		MaxTotalSize:      1024 * 1024 * 1024,
		MaxFiles:          1000,
		AllowedExtensions: []string{".csv", ".xlsx"},
		SkipPatterns:      []string{"__MACOSX", ".DS_Store", "Thumbs.db", "desktop.ini"},
	}
}

// ArchiveEntry is one data file extracted from a ZIP archive
type ArchiveEntry struct {
	// Name is the flattened base name of the entry.
	Name    string
	Path    string
	Content []byte
}

// preferredNames are matched case-insensitively against entry names, in order.
var preferredNames = []string{"sekolah.csv", "data.csv", "schools.csv", "daftarsekolah.csv"}

// IsZip reports whether data starts with a ZIP local file header. XLSX
// files are ZIP containers too, so callers check the URL extension first.
func IsZip(data []byte) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], []byte("PK\x03\x04"))
}

// Expand extracts the data files of a ZIP archive in memory.
func Expand(ctx context.Context, content []byte, opts ExpandOptions) ([]ArchiveEntry, error) {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open ZIP: %w", err)
	}

	var (
		entries   []ArchiveEntry
		totalSize int64
		count     int
	)
	for _, file := range reader.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if file.FileInfo().IsDir() {
			continue
		}

		name, err := sanitizeFilename(file.Name)
		if err != nil {
			continue
		}
		if opts.shouldSkip(file.Name) || !opts.isAllowedExtension(name) {
			continue
		}

		count++
		if opts.MaxFiles > 0 && count > opts.MaxFiles {
			return nil, fmt.Errorf("too many files in archive (limit: %d)", opts.MaxFiles)
		}
		if opts.MaxFileSize > 0 && int64(file.UncompressedSize64) > opts.MaxFileSize {
			return nil, fmt.Errorf("file %s exceeds maximum size (%d > %d)",
				name, file.UncompressedSize64, opts.MaxFileSize)
		}

		data, err := readEntry(file, name, opts.MaxFileSize)
		if err != nil {
			return nil, err
		}

		totalSize += int64(len(data))
		if opts.MaxTotalSize > 0 && totalSize > opts.MaxTotalSize {
			return nil, fmt.Errorf("total extracted size exceeds maximum (%d > %d)", totalSize, opts.MaxTotalSize)
		}

		entries = append(entries, ArchiveEntry{Name: name, Path: file.Name, Content: data})
	}
	return entries, nil
}

// readEntry reads one entry, enforcing the actual size rather than the
// declared one.
func readEntry(file *zip.File, name string, limit int64) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s in ZIP: %w", name, err)
	}
	defer rc.Close()

	var reader io.Reader = rc
	if limit > 0 {
		reader = io.LimitReader(rc, limit+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s from ZIP: %w", name, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("file %s exceeds maximum size (actual data > %d bytes)", name, limit)
	}
	return data, nil
}

// PickDataFile chooses the entry to use as the raw dataset: the first
// preferred name, else the first CSV, else the first entry.
func PickDataFile(entries []ArchiveEntry) (ArchiveEntry, bool) {
	if len(entries) == 0 {
		return ArchiveEntry{}, false
	}
	for _, preferred := range preferredNames {
		for _, e := range entries {
			if strings.Contains(strings.ToLower(e.Name), preferred) {
				return e, true
			}
		}
	}
	for _, e := range entries {
		if strings.EqualFold(filepath.Ext(e.Name), ".csv") {
			return e, true
		}
	}
	return entries[0], true
}

// sanitizeFilename rejects entry names that could escape the archive and
// flattens the rest to a base name.
func sanitizeFilename(filename string) (string, error) {
	if path.IsAbs(filename) || filepath.IsAbs(filename) {
		return "", fmt.Errorf("absolute path not allowed: %s", filename)
	}
	if len(filename) >= 2 && filename[1] == ':' {
		return "", fmt.Errorf("drive letter not allowed: %s", filename)
	}
	filename = strings.ReplaceAll(filename, "\\", "/")

	cleaned := path.Clean(filename)
	if strings.HasPrefix(cleaned, "..") || strings.HasPrefix(cleaned, "/") {
		return "", fmt.Errorf("path traversal not allowed: %s", filename)
	}
	for _, part := range strings.Split(cleaned, "/") {
		if part == ".." {
			return "", fmt.Errorf("path traversal not allowed: %s", filename)
		}
	}

	base := path.Base(cleaned)
	if base == "." || base == "/" || base == "" {
		return "", fmt.Errorf("invalid filename: %s", filename)
	}
	return base, nil
}

func (o ExpandOptions) shouldSkip(name string) bool {
	for _, pattern := range o.SkipPatterns {
		if strings.Contains(name, pattern) {
			return true
		}
	}
	return false
}

func (o ExpandOptions) isAllowedExtension(name string) bool {
	if len(o.AllowedExtensions) == 0 {
		return true
	}
	ext := filepath.Ext(name)
	for _, allowed := range o.AllowedExtensions {
		if strings.EqualFold(ext, allowed) {
			return true
		}
	}
	return false
}
