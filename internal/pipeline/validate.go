package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/metrics"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/ratelimit"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/resilience"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/storage"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/telemetry"
)

// ReportFile is the link validation report written into the output root.
const ReportFile = "link-validation-report.txt"

// ValidatorOptions configures a Validator.
type ValidatorOptions struct {
	FS       *storage.GuardedFS
	Limiter  *ratelimit.Limiter
	Recorder *metrics.Recorder
	Logger   *zerolog.Logger

	// RootDir is the output tree to validate.
	RootDir string
	// Concurrency bounds in-flight file tasks when Limiter is nil.
	Concurrency int
	// QueueTimeout bounds how long a file task waits for the limiter.
	QueueTimeout time.Duration

	// CheckExternal enables HTTP checks of http(s) links.
	CheckExternal bool
	// Strict fails validation on broken external links.
	Strict          bool
	ExternalTimeout time.Duration
	// ExternalRetries is the number of retries after the first attempt.
	ExternalRetries int
	HTTPClient      *http.Client

	Now func() time.Time
}

// BrokenLink is a link that could not be resolved.
type BrokenLink struct {
	Source string `json:"source"`
	Link   string `json:"link"`
	Error  string `json:"error,omitempty"`
}

// ValidationResult reports a validation run.
type ValidationResult struct {
	TotalFiles      int          `json:"totalFiles"`
	FilesChecked    int          `json:"filesChecked"`
	FilesSkipped    int          `json:"filesSkipped"`
	InternalChecked int          `json:"internalChecked"`
	ExternalChecked int          `json:"externalChecked"`
	BrokenInternal  []BrokenLink `json:"brokenInternal"`
	BrokenExternal  []BrokenLink `json:"brokenExternal"`
	Strict          bool         `json:"strict"`
	Passed          bool         `json:"passed"`
}

// Validator checks the links of every HTML file in an output tree.
type Validator struct {
	fs              *storage.GuardedFS
	limiter         *ratelimit.Limiter
	recorder        *metrics.Recorder
	logger          *zerolog.Logger
	root            string
	concurrency     int
	checkExternal   bool
	strict          bool
	externalTimeout time.Duration
	externalRetries int
	client          *http.Client
	now             func() time.Time

	mu       sync.Mutex
	external map[string]*externalCheck
}

type externalCheck struct {
	once sync.Once
	err  error
}

type fileResult struct {
	checked         bool
	internalChecked int
	externalChecked int
	brokenInternal  []BrokenLink
	brokenExternal  []BrokenLink
}

// NewValidator creates a Validator.
func NewValidator(opts ValidatorOptions) *Validator {
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	logger := opts.Logger.With().Str("component", "link-validator").Logger()

	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.QueueTimeout <= 0 {
		opts.QueueTimeout = 30 * time.Second
	}
	if opts.FS == nil {
		opts.FS = storage.New(storage.Options{Logger: opts.Logger})
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.New(ratelimit.Config{
			Name:          "validate",
			MaxConcurrent: opts.Concurrency,
			QueueTimeout:  opts.QueueTimeout,
		}, ratelimit.WithLogger(opts.Logger))
	}
	if opts.ExternalTimeout <= 0 {
		opts.ExternalTimeout = 5 * time.Second
	}
	if opts.ExternalRetries < 0 {
		opts.ExternalRetries = 0
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Validator{
		fs:              opts.FS,
		limiter:         opts.Limiter,
		recorder:        opts.Recorder,
		logger:          &logger,
		root:            opts.RootDir,
		concurrency:     opts.Concurrency,
		checkExternal:   opts.CheckExternal,
		strict:          opts.Strict,
		externalTimeout: opts.ExternalTimeout,
		externalRetries: opts.ExternalRetries,
		client:          opts.HTTPClient,
		now:             opts.Now,
		external:        make(map[string]*externalCheck),
	}
}

// ValidateOutputTree checks every link of every HTML file under the root.
// A missing root has nothing to validate and passes. Files that cannot be
// read, or that wait too long for the limiter, are logged and skipped. An
// error is returned only when the tree cannot be listed.
func (v *Validator) ValidateOutputTree(ctx context.Context) (*ValidationResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.ValidateOutputTree")
	defer span.End()

	result := &ValidationResult{
		BrokenInternal: make([]BrokenLink, 0),
		BrokenExternal: make([]BrokenLink, 0),
		Strict:         v.strict,
	}

	exists, err := v.fs.Exists(ctx, v.root)
	if err != nil {
		return nil, fmt.Errorf("failed to check output directory %s: %w", v.root, err)
	}
	if !exists {
		v.logger.Warn().Str("path", v.root).Msg("Output directory does not exist, nothing to validate")
		result.Passed = true
		return result, nil
	}

	files, err := v.fs.ListFiles(ctx, v.root, ".html")
	if err != nil {
		return nil, fmt.Errorf("failed to list output files: %w", err)
	}
	result.TotalFiles = len(files)
	v.logger.Info().Int("files", len(files)).Msg("Validating links")

	results := make([]fileResult, len(files))
	var g errgroup.Group
	g.SetLimit(v.concurrency * 2)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			err := v.limiter.Submit(ctx, v.relative(file), func(ctx context.Context) error {
				res, err := v.validateFile(ctx, file)
				results[i] = res
				return err
			})
			if err != nil {
				v.logger.Warn().Err(err).Str("path", file).Msg("Skipping file")
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		if !res.checked {
			result.FilesSkipped++
			continue
		}
		result.FilesChecked++
		result.InternalChecked += res.internalChecked
		result.ExternalChecked += res.externalChecked
		result.BrokenInternal = append(result.BrokenInternal, res.brokenInternal...)
		result.BrokenExternal = append(result.BrokenExternal, res.brokenExternal...)
	}

	result.Passed = len(result.BrokenInternal) == 0 && (!v.strict || len(result.BrokenExternal) == 0)

	v.recorder.RecordBrokenLinks("internal", len(result.BrokenInternal))
	v.recorder.RecordBrokenLinks("external", len(result.BrokenExternal))
	span.SetAttributes(
		attribute.Int("files.total", result.TotalFiles),
		attribute.Int("links.broken_internal", len(result.BrokenInternal)),
		attribute.Int("links.broken_external", len(result.BrokenExternal)),
		attribute.Bool("passed", result.Passed),
	)

	v.logger.Info().
		Int("files", result.FilesChecked).
		Int("skipped", result.FilesSkipped).
		Int("internal", result.InternalChecked).
		Int("external", result.ExternalChecked).
		Int("broken_internal", len(result.BrokenInternal)).
		Int("broken_external", len(result.BrokenExternal)).
		Bool("passed", result.Passed).
		Msg("Link validation complete")
	return result, nil
}

// validateFile reads one file and checks its links. A read failure is
// returned so the caller can skip the file.
func (v *Validator) validateFile(ctx context.Context, file string) (fileResult, error) {
	var res fileResult
	content, err := v.fs.ReadFile(ctx, file)
	if err != nil {
		return res, err
	}
	res.checked = true
	source := v.relative(file)

	for _, link := range ExtractLinks(content) {
		switch classifyLink(link) {
		case linkInternal:
			target, ok := resolveInternal(v.root, file, link)
			if !ok {
				continue
			}
			res.internalChecked++
			if !v.targetExists(ctx, target) {
				res.brokenInternal = append(res.brokenInternal, BrokenLink{
					Source: source,
					Link:   link,
					Error:  "target not found: " + v.relative(target),
				})
			}
		case linkExternal:
			if !v.checkExternal {
				continue
			}
			res.externalChecked++
			if err := v.checkURL(ctx, externalURL(link)); err != nil {
				res.brokenExternal = append(res.brokenExternal, BrokenLink{
					Source: source,
					Link:   link,
					Error:  err.Error(),
				})
			}
		}
	}
	return res, nil
}

// targetExists reports whether target exists as a file, falling back to a
// directory check.
func (v *Validator) targetExists(ctx context.Context, target string) bool {
	if err := v.fs.Access(ctx, target); err == nil {
		return true
	}
	info, err := v.fs.Stat(ctx, target)
	return err == nil && info.IsDir()
}

// checkURL checks an external URL once per validator; later calls for the
// same URL share the first result.
func (v *Validator) checkURL(ctx context.Context, url string) error {
	v.mu.Lock()
	check, ok := v.external[url]
	if !ok {
		check = &externalCheck{}
		v.external[url] = check
	}
	v.mu.Unlock()

	check.once.Do(func() {
		check.err = v.fetch(ctx, url)
	})
	return check.err
}

func (v *Validator) fetch(ctx context.Context, url string) error {
	opts := resilience.RetryOptions{
		MaxAttempts:  v.externalRetries + 1,
		InitialDelay: 500 * time.Millisecond,
		ShouldRetry:  func(error) bool { return true },
	}
	_, err := resilience.Retry(ctx, "checkExternalLink", opts, func(ctx context.Context) (struct{}, error) {
		return resilience.WithTimeout(ctx, v.externalTimeout, "GET "+url, func(ctx context.Context) (struct{}, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return struct{}{}, err
			}
			req.Header.Set("User-Agent", "sekolah-pseo-link-validator")

			resp, err := v.client.Do(req)
			if err != nil {
				return struct{}{}, err
			}
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

			if resp.StatusCode >= http.StatusBadRequest {
				return struct{}{}, fmt.Errorf("HTTP %d", resp.StatusCode)
			}
			return struct{}{}, nil
		})
	})
	return err
}

func (v *Validator) relative(path string) string {
	rel, err := filepath.Rel(v.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// WriteReport writes the report for result into the output root and
// returns its path.
func (v *Validator) WriteReport(ctx context.Context, result *ValidationResult) (string, error) {
	path := filepath.Join(v.root, ReportFile)
	if err := v.fs.WriteFile(ctx, path, []byte(FormatReport(result, v.now()))); err != nil {
		return "", fmt.Errorf("failed to write validation report: %w", err)
	}
	v.logger.Info().Str("path", path).Msg("Validation report written")
	return path, nil
}
