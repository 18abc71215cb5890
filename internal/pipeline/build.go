// Package pipeline drives school records through page generation and
// validates the generated output tree.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/manifest"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/metrics"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/pages"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/pkg/buildid"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/ratelimit"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/schools"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/storage"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/telemetry"
)

// Options configures a Pipeline.
type Options struct {
	FS       *storage.GuardedFS
	Builder  *pages.Builder
	Limiter  *ratelimit.Limiter
	Manifest *manifest.Store
	Recorder *metrics.Recorder
	Logger   *zerolog.Logger

	// OutputDir is the root of the generated site.
	OutputDir string
	// SchoolsCSV is the canonical schools CSV.
	SchoolsCSV string
	// Concurrency is the batch size and directory fan-out.
	Concurrency int
	// Incremental enables the build manifest.
	Incremental bool

	Now func() time.Time
}

// Pipeline builds the static site.
type Pipeline struct {
	fs          *storage.GuardedFS
	builder     *pages.Builder
	limiter     *ratelimit.Limiter
	manifest    *manifest.Store
	recorder    *metrics.Recorder
	logger      *zerolog.Logger
	outputDir   string
	schoolsCSV  string
	concurrency int
	incremental bool
	now         func() time.Time
}

// New creates a Pipeline. FS and OutputDir are required; the remaining
// collaborators get defaults.
func New(opts Options) *Pipeline {
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	logger := opts.Logger.With().Str("component", "pipeline").Logger()

	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.FS == nil {
		opts.FS = storage.New(storage.Options{Logger: opts.Logger})
	}
	if opts.Builder == nil {
		opts.Builder = pages.NewBuilder(nil, "")
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.New(ratelimit.Config{
			Name:          "build",
			MaxConcurrent: opts.Concurrency,
			QueueTimeout:  ratelimit.DefaultConfig().QueueTimeout,
		}, ratelimit.WithLogger(opts.Logger))
	}
	if opts.Incremental && opts.Manifest == nil {
		opts.Manifest = manifest.NewStore(opts.FS, filepath.Dir(opts.OutputDir), opts.Logger)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Pipeline{
		fs:          opts.FS,
		builder:     opts.Builder,
		limiter:     opts.Limiter,
		manifest:    opts.Manifest,
		recorder:    opts.Recorder,
		logger:      &logger,
		outputDir:   opts.OutputDir,
		schoolsCSV:  opts.SchoolsCSV,
		concurrency: opts.Concurrency,
		incremental: opts.Incremental,
		now:         opts.Now,
	}
}

// EnsureOutputRoot creates the output root. Failure is systemic.
func (p *Pipeline) EnsureOutputRoot(ctx context.Context) error {
	if err := p.fs.MkdirAll(ctx, p.outputDir); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", p.outputDir, err)
	}
	return nil
}

// LoadSchools reads the schools CSV. Failure is systemic.
func (p *Pipeline) LoadSchools(ctx context.Context) ([]schools.School, error) {
	data, err := p.fs.ReadFile(ctx, p.schoolsCSV)
	if err != nil {
		return nil, fmt.Errorf("failed to load schools from %s: %w", p.schoolsCSV, err)
	}
	records, err := schools.ParseCSV(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schools from %s: %w", p.schoolsCSV, err)
	}
	p.logger.Info().Str("path", p.schoolsCSV).Int("records", len(records)).Msg("Loaded school records")
	return records, nil
}

// Failure describes a record whose page could not be written.
type Failure struct {
	NPSN string
	Path string
	Err  error
}

// Summary aggregates the outcome of writing a set of records.
type Summary struct {
	Successful  int
	Failed      int
	Directories int
	// Written maps the manifest key of every written record to its page.
	Written  map[string]manifest.Built
	Failures []Failure
}

type writeOutcome struct {
	built manifest.Built
	path  string
	err   error
}

// WriteRecordsConcurrently renders and writes one page per record. Unique
// page directories are created up front. Records are then processed in
// batches of concurrency through the build limiter; every record in a batch
// settles before the next batch starts. Per-record failures are counted in
// the summary and never abort the run.
func (p *Pipeline) WriteRecordsConcurrently(ctx context.Context, records []schools.School, concurrency int) Summary {
	if concurrency < 1 {
		concurrency = 1
	}
	summary := Summary{
		Written:  make(map[string]manifest.Built, len(records)),
		Failures: make([]Failure, 0),
	}
	if len(records) == 0 {
		return summary
	}

	summary.Directories = p.createDirectories(ctx, records, concurrency)

	batches := (len(records) + concurrency - 1) / concurrency
	for start, batch := 0, 1; start < len(records); start, batch = start+concurrency, batch+1 {
		end := min(start+concurrency, len(records))
		chunk := records[start:end]

		if err := ctx.Err(); err != nil {
			for _, s := range records[start:] {
				summary.Failed++
				summary.Failures = append(summary.Failures, Failure{NPSN: s.NPSN, Err: err})
			}
			p.logger.Warn().Err(err).Int("remaining", len(records)-start).Msg("Build cancelled")
			break
		}

		outcomes := make([]writeOutcome, len(chunk))
		var wg sync.WaitGroup
		for i := range chunk {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				outcomes[i] = p.writeRecord(ctx, chunk[i])
			}(i)
		}
		wg.Wait()

		for i, out := range outcomes {
			if out.err != nil {
				summary.Failed++
				summary.Failures = append(summary.Failures, Failure{NPSN: chunk[i].NPSN, Path: out.path, Err: out.err})
				p.logger.Error().
					Err(out.err).
					Str("npsn", chunk[i].NPSN).
					Str("path", out.path).
					Msg("Failed to write school page")
				continue
			}
			summary.Successful++
			summary.Written[manifest.Key(chunk[i])] = out.built
		}

		p.logger.Info().
			Int("batch", batch).
			Int("batches", batches).
			Int("successful", summary.Successful).
			Int("failed", summary.Failed).
			Msg("Batch complete")
	}

	p.recorder.RecordPages("written", summary.Successful)
	p.recorder.RecordPages("failed", summary.Failed)
	return summary
}

// createDirectories creates the page directory of every valid record, one
// guarded mkdir per unique directory. Failures are logged and left for the
// page writes to report.
func (p *Pipeline) createDirectories(ctx context.Context, records []schools.School, concurrency int) int {
	valid := make([]schools.School, 0, len(records))
	for _, s := range records {
		if s.Validate() == nil {
			valid = append(valid, s)
		}
	}
	dirs := p.builder.UniqueDirectories(valid)

	var (
		g       errgroup.Group
		mu      sync.Mutex
		created int
	)
	g.SetLimit(concurrency)
	for _, dir := range dirs {
		full := filepath.Join(p.outputDir, filepath.FromSlash(dir))
		g.Go(func() error {
			if err := p.fs.MkdirAll(ctx, full); err != nil {
				p.logger.Warn().Err(err).Str("path", full).Msg("Failed to create directory")
				return nil
			}
			mu.Lock()
			created++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Debug().Int("directories", len(dirs)).Int("created", created).Msg("Page directories ready")
	return created
}

func (p *Pipeline) writeRecord(ctx context.Context, s schools.School) writeOutcome {
	var out writeOutcome
	err := p.limiter.Submit(ctx, s.NPSN, func(ctx context.Context) error {
		page, err := p.builder.Build(s)
		if err != nil {
			return err
		}
		out.path = page.RelativePath
		if err := p.fs.WriteFile(ctx, p.outputPath(page.RelativePath), page.Content); err != nil {
			return err
		}
		out.built = manifest.Built{Hash: manifest.ComputeHash(s), Path: page.RelativePath}
		return nil
	})
	out.err = err
	return out
}

func (p *Pipeline) outputPath(rel string) string {
	return filepath.Join(p.outputDir, filepath.FromSlash(rel))
}

func (p *Pipeline) writePage(ctx context.Context, page pages.Page) error {
	if err := p.fs.WriteFile(ctx, p.outputPath(page.RelativePath), page.Content); err != nil {
		return fmt.Errorf("failed to write %s: %w", page.RelativePath, err)
	}
	return nil
}

// RunOptions configures a build run.
type RunOptions struct {
	// Full ignores and clears the previous manifest.
	Full bool
}

// RunResult reports a build run.
type RunResult struct {
	BuildID     string        `json:"buildId"`
	Total       int           `json:"total"`
	Skipped     int           `json:"skipped"`
	Successful  int           `json:"successful"`
	Failed      int           `json:"failed"`
	Directories int           `json:"directories"`
	Indexes     int           `json:"indexes"`
	Duration    time.Duration `json:"duration"`
	Failures    []Failure     `json:"-"`
}

// Run performs a complete build: output root, stylesheet, records, pages,
// homepage, directory indexes and manifest. Only systemic failures are returned as errors;
// page failures are reported in the result.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.Run")
	defer span.End()

	started := p.now()
	result := &RunResult{BuildID: buildid.NewAt(started)}
	span.SetAttributes(attribute.String("build.id", result.BuildID), attribute.Bool("build.full", opts.Full))

	logger := p.logger.With().Str("build_id", result.BuildID).Logger()
	logger.Info().Bool("full", opts.Full).Bool("incremental", p.incremental).Msg("Starting build")

	fail := func(err error) (*RunResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := p.EnsureOutputRoot(ctx); err != nil {
		return fail(err)
	}
	if err := p.writePage(ctx, p.builder.Stylesheet()); err != nil {
		return fail(err)
	}

	records, err := p.LoadSchools(ctx)
	if err != nil {
		return fail(err)
	}
	result.Total = len(records)

	var prev *manifest.Manifest
	if p.incremental {
		if opts.Full {
			if err := p.manifest.Clear(ctx); err != nil {
				logger.Warn().Err(err).Msg("Failed to clear build manifest")
			}
		} else {
			prev = p.manifest.Load(ctx)
		}
	}
	diff := manifest.Diff(records, prev)
	result.Skipped = len(diff.Unchanged)
	p.recorder.RecordPages("skipped", result.Skipped)
	logger.Info().
		Int("changed", len(diff.Changed)).
		Int("unchanged", len(diff.Unchanged)).
		Msg("Computed build plan")

	writeCtx, writeSpan := telemetry.Tracer().Start(ctx, "pipeline.WriteRecords")
	summary := p.WriteRecordsConcurrently(writeCtx, diff.Changed, p.concurrency)
	writeSpan.SetAttributes(
		attribute.Int("pages.successful", summary.Successful),
		attribute.Int("pages.failed", summary.Failed),
	)
	writeSpan.End()

	result.Successful = summary.Successful
	result.Failed = summary.Failed
	result.Directories = summary.Directories
	result.Failures = summary.Failures

	homepage, err := p.builder.Homepage(records)
	if err == nil {
		err = p.writePage(ctx, homepage)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to write homepage")
		result.Failed++
	}

	written, failed := p.writeIndexPages(ctx, records)
	result.Indexes = written
	result.Failed += failed

	if p.incremental {
		next := manifest.Next(prev, result.BuildID, started, diff.Unchanged, summary.Written)
		if err := p.manifest.Save(ctx, next); err != nil {
			return fail(fmt.Errorf("failed to save build manifest: %w", err))
		}
	}

	result.Duration = p.now().Sub(started)
	p.recorder.RecordBuildDuration(result.Duration)
	span.SetAttributes(
		attribute.Int("records.total", result.Total),
		attribute.Int("records.skipped", result.Skipped),
		attribute.Int("pages.failed", result.Failed),
	)

	logger.Info().
		Int("total", result.Total).
		Int("skipped", result.Skipped).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("Build complete")
	return result, nil
}

// writeIndexPages writes the province, regency and district index pages.
// They list every valid record, so they are rewritten on every run. Failures
// are logged and counted; they never abort the build.
func (p *Pipeline) writeIndexPages(ctx context.Context, records []schools.School) (written, failed int) {
	indexes, err := p.builder.IndexPages(records)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to render index pages")
		return 0, 1
	}

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(p.concurrency)
	for _, page := range indexes {
		page := page
		g.Go(func() error {
			err := p.fs.MkdirAll(ctx, filepath.Dir(p.outputPath(page.RelativePath)))
			if err == nil {
				err = p.writePage(ctx, page)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				p.logger.Error().Err(err).Str("path", page.RelativePath).Msg("Failed to write index page")
				return nil
			}
			written++
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Debug().Int("written", written).Int("failed", failed).Msg("Index pages written")
	return written, failed
}
