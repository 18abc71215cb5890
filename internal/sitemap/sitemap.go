// Package sitemap writes XML sitemaps for the generated site.
package sitemap

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/storage"
)

const (
	// MaxURLsPerFile is the sitemap protocol limit per file.
	MaxURLsPerFile = 50000

	// IndexFile is the sitemap index written into the output root.
	IndexFile = "sitemap-index.xml"

	namespace = "http://www.sitemaps.org/schemas/sitemap/0.9"
)

type urlSet struct {
	XMLName xml.Name `xml:"urlset"`
	Xmlns   string   `xml:"xmlns,attr"`
	URLs    []urlLoc `xml:"url"`
}

type urlLoc struct {
	Loc string `xml:"loc"`
}

type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Xmlns    string   `xml:"xmlns,attr"`
	Sitemaps []urlLoc `xml:"sitemap"`
}

// Options configures Generate.
type Options struct {
	FS *storage.GuardedFS
	// RootDir is the output root; sitemaps are written into it.
	RootDir string
	// BaseURL prefixes every page path.
	BaseURL string
	// MaxURLs per sitemap file. Defaults to MaxURLsPerFile.
	MaxURLs int
	// Concurrency bounds parallel sitemap writes.
	Concurrency int
	Logger      *zerolog.Logger
}

// Result lists what Generate wrote.
type Result struct {
	URLs  int      `json:"urls"`
	Files []string `json:"files"`
	// Removed lists sitemap files left over from an earlier, larger run.
	Removed []string `json:"removed,omitempty"`
}

var chunkFile = regexp.MustCompile(`^sitemap-(\d{3,})\.xml$`)

// Generate writes sitemap-NNN.xml files for every HTML page under the
// output root and a sitemap-index.xml referencing them.
func Generate(ctx context.Context, opts Options) (*Result, error) {
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	logger := opts.Logger.With().Str("component", "sitemap").Logger()
	if opts.FS == nil {
		opts.FS = storage.New(storage.Options{Logger: opts.Logger})
	}
	if opts.MaxURLs <= 0 || opts.MaxURLs > MaxURLsPerFile {
		opts.MaxURLs = MaxURLsPerFile
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")

	urls, err := CollectURLs(ctx, opts.FS, opts.RootDir, baseURL)
	if err != nil {
		return nil, err
	}

	chunks := Chunk(urls, opts.MaxURLs)
	files := make([]string, len(chunks))
	for i := range chunks {
		files[i] = FileName(i + 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			data, err := encode(urlSet{Xmlns: namespace, URLs: locs(chunk)})
			if err != nil {
				return err
			}
			return opts.FS.WriteFile(gctx, filepath.Join(opts.RootDir, files[i]), data)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to write sitemap: %w", err)
	}

	index := sitemapIndex{Xmlns: namespace}
	for _, f := range files {
		index.Sitemaps = append(index.Sitemaps, urlLoc{Loc: baseURL + "/" + f})
	}
	data, err := encode(index)
	if err != nil {
		return nil, err
	}
	if err := opts.FS.WriteFile(ctx, filepath.Join(opts.RootDir, IndexFile), data); err != nil {
		return nil, fmt.Errorf("failed to write sitemap index: %w", err)
	}

	removed := removeStale(ctx, opts.FS, opts.RootDir, len(files), &logger)

	logger.Info().Int("files", len(files)).Int("urls", len(urls)).Int("removed", len(removed)).Msg("Generated sitemaps")
	return &Result{URLs: len(urls), Files: files, Removed: removed}, nil
}

// removeStale deletes sitemap-NNN.xml files numbered above keep. Failures
// are logged; the index no longer references those files either way.
func removeStale(ctx context.Context, fs *storage.GuardedFS, root string, keep int, logger *zerolog.Logger) []string {
	entries, err := fs.ReadDir(ctx, root)
	if err != nil {
		logger.Warn().Err(err).Str("path", root).Msg("Failed to list old sitemaps")
		return nil
	}

	var removed []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := chunkFile.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err != nil || n <= keep {
			continue
		}
		if err := fs.Remove(ctx, filepath.Join(root, e.Name())); err != nil {
			logger.Warn().Err(err).Str("file", e.Name()).Msg("Failed to remove old sitemap")
			continue
		}
		removed = append(removed, e.Name())
	}
	return removed
}

// CollectURLs returns the URL of every HTML page under root, sorted by path.
func CollectURLs(ctx context.Context, fs *storage.GuardedFS, root, baseURL string) ([]string, error) {
	files, err := fs.ListFiles(ctx, root, ".html")
	if err != nil {
		return nil, fmt.Errorf("failed to list pages under %s: %w", root, err)
	}
	baseURL = strings.TrimRight(baseURL, "/")

	urls := make([]string, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(root, f)
		if err != nil {
			return nil, err
		}
		urls = append(urls, baseURL+"/"+filepath.ToSlash(rel))
	}
	return urls, nil
}

// Chunk splits urls into consecutive groups of at most size.
func Chunk(urls []string, size int) [][]string {
	var chunks [][]string
	for start := 0; start < len(urls); start += size {
		chunks = append(chunks, urls[start:min(start+size, len(urls))])
	}
	return chunks
}

// FileName returns the name of the n-th sitemap file, 1-based.
func FileName(n int) string {
	return fmt.Sprintf("sitemap-%03d.xml", n)
}

func locs(urls []string) []urlLoc {
	out := make([]urlLoc, len(urls))
	for i, u := range urls {
		out[i] = urlLoc{Loc: u}
	}
	return out
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode sitemap: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
