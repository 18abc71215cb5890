package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/storage"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/telemetry"
)

// ErrNoDataFile is returned when a downloaded archive holds no CSV or XLSX.
var ErrNoDataFile = errors.New("archive contains no data files")

// Options configures Run.
type Options struct {
	FS     *storage.GuardedFS
	Client *Client
	// URL is the dataset location: a CSV, an XLSX or a ZIP holding either.
	URL string
	// OutputPath is where the raw dataset is written. Its extension follows
	// the downloaded format.
	OutputPath string
	Expand     ExpandOptions
	Logger     *zerolog.Logger
}

// Result describes a completed download.
type Result struct {
	URL        string `json:"url"`
	Source     string `json:"source"`
	FromZip    bool   `json:"fromZip"`
	Bytes      int    `json:"bytes"`
	SHA256     string `json:"sha256"`
	OutputPath string `json:"outputPath"`
}

// Run downloads the dataset, unpacks it when it is a ZIP archive and writes
// the raw data file.
func Run(ctx context.Context, opts Options) (*Result, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "fetch.Run")
	defer span.End()

	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	logger := opts.Logger.With().Str("component", "fetch").Logger()
	if opts.URL == "" {
		return nil, fmt.Errorf("no dataset URL configured")
	}
	if opts.FS == nil {
		opts.FS = storage.New(storage.Options{Logger: opts.Logger})
	}
	if opts.Client == nil {
		opts.Client = NewClient(DefaultConfig(), nil)
	}
	if opts.Expand.MaxFiles == 0 && len(opts.Expand.AllowedExtensions) == 0 {
		opts.Expand = DefaultExpandOptions()
	}
	span.SetAttributes(attribute.String("fetch.url", opts.URL))

	logger.Info().Str("url", opts.URL).Msg("Fetching dataset")
	data, err := opts.Client.GetBytes(ctx, opts.URL)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	source := urlBase(opts.URL)
	result := &Result{URL: opts.URL, Source: source}

	ext := strings.ToLower(filepath.Ext(source))
	if ext == ".zip" || (IsZip(data) && ext != ".xlsx") {
		entries, err := Expand(ctx, data, opts.Expand)
		if err != nil {
			return nil, fmt.Errorf("failed to expand %s: %w", source, err)
		}
		entry, ok := PickDataFile(entries)
		if !ok {
			return nil, fmt.Errorf("%s: %w", source, ErrNoDataFile)
		}
		logger.Info().Str("entry", entry.Path).Int("entries", len(entries)).Msg("Using archive entry")
		data = entry.Content
		result.Source = entry.Name
		result.FromZip = true
	}

	result.OutputPath = outputPathFor(opts.OutputPath, result.Source, data)
	if result.OutputPath != opts.OutputPath {
		logger.Warn().Str("configured", opts.OutputPath).Str("path", result.OutputPath).
			Msg("Dataset format differs from the configured raw path extension")
	}

	if err := opts.FS.MkdirAll(ctx, filepath.Dir(result.OutputPath)); err != nil {
		return nil, err
	}
	if err := opts.FS.WriteFile(ctx, result.OutputPath, data); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	result.SHA256 = hex.EncodeToString(sum[:])
	result.Bytes = len(data)
	logger.Info().Str("path", result.OutputPath).Int("bytes", result.Bytes).Str("sha256", result.SHA256).Msg("Wrote raw dataset")
	return result, nil
}

// outputPathFor swaps the output extension when the dataset is a workbook
// but the output path says CSV, or the reverse.
func outputPathFor(out, source string, data []byte) string {
	outExt := strings.ToLower(filepath.Ext(out))
	workbook := strings.EqualFold(filepath.Ext(source), ".xlsx") || IsZip(data)
	switch {
	case workbook && outExt != ".xlsx":
		return strings.TrimSuffix(out, filepath.Ext(out)) + ".xlsx"
	case !workbook && outExt == ".xlsx":
		return strings.TrimSuffix(out, filepath.Ext(out)) + ".csv"
	}
	return out
}

func urlBase(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return "dataset"
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return "dataset"
	}
	return base
}
