package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/manifest"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/metrics"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/pages"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/pipeline"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/ratelimit"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/schools"
)

var (
	buildFull        bool
	buildWatch       bool
	buildMetricsFile string
	buildConcurrency int
)

// buildCmd represents the build command
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Generate school pages from the schools CSV",
	Long: `Generate one HTML page per school, plus the homepage and stylesheet, into the
output directory. Builds are incremental by default: records whose content is
unchanged since the last build are skipped using the build manifest.

Use --full to ignore the manifest and rebuild every page, and --watch to keep
rebuilding whenever the schools CSV changes.`,
	Example: `  sekolah-pseo build
  sekolah-pseo build --full
  sekolah-pseo build --watch --metrics-file /var/lib/node_exporter/sekolah.prom`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().BoolVar(&buildFull, "full", false, "Ignore the build manifest and rebuild every page")
	buildCmd.Flags().BoolVar(&buildWatch, "watch", false, "Rebuild when the schools CSV changes")
	buildCmd.Flags().StringVar(&buildMetricsFile, "metrics-file", "", "Write Prometheus metrics to this file after each build")
	buildCmd.Flags().IntVar(&buildConcurrency, "concurrency", 0, "Override build concurrency (default from config)")
}

func newPipeline(recorder *metrics.Recorder) *pipeline.Pipeline {
	concurrency := cfg.Build.Concurrency
	if buildConcurrency > 0 {
		concurrency = buildConcurrency
	}

	fs := newGuardedFS(recorder)
	limiter := ratelimit.New(ratelimit.Config{
		Name:          "build",
		MaxConcurrent: concurrency,
		QueueTimeout:  cfg.Build.QueueTimeout,
	}, ratelimit.WithLogger(logger), ratelimit.WithObserver(recorder))

	var store *manifest.Store
	if cfg.Build.Incremental {
		store = manifest.NewStore(fs, cfg.Paths.Root, logger)
	}

	return pipeline.New(pipeline.Options{
		FS:          fs,
		Builder:     pages.NewBuilder(schools.NewSlugger(cfg.Build.SlugCacheSize), cfg.Site.URL),
		Limiter:     limiter,
		Manifest:    store,
		Recorder:    recorder,
		Logger:      logger,
		OutputDir:   cfg.Paths.Dist,
		SchoolsCSV:  cfg.Paths.SchoolsCSV,
		Concurrency: concurrency,
		Incremental: cfg.Build.Incremental,
	})
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	recorder := newRecorder()
	p := newPipeline(recorder)

	build := func(ctx context.Context, full bool) error {
		result, err := p.Run(ctx, pipeline.RunOptions{Full: full})
		if err != nil {
			return err
		}
		displayBuildResult(result)
		for _, f := range result.Failures {
			logger.Warn().Str("npsn", f.NPSN).Str("path", f.Path).Err(f.Err).Msg("Page failed")
		}
		if buildMetricsFile != "" {
			if err := metrics.WriteTextfile(buildMetricsFile); err != nil {
				logger.Warn().Err(err).Str("path", buildMetricsFile).Msg("Failed to write metrics file")
			}
		}
		return nil
	}

	if err := build(ctx, buildFull); err != nil {
		return err
	}
	if !buildWatch {
		return nil
	}

	logger.Info().Str("path", cfg.Paths.SchoolsCSV).Msg("Watching for changes (Ctrl+C to stop)")
	return pipeline.Watch(ctx, cfg.Paths.SchoolsCSV, pipeline.DefaultDebounce, logger, func(ctx context.Context) error {
		return build(ctx, false)
	})
}

func displayBuildResult(r *pipeline.RunResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "BUILD ID\tTOTAL\tSKIPPED\tWRITTEN\tFAILED\tDIRS\tINDEXES\tDURATION")
	fmt.Fprintln(w, "--------\t-----\t-------\t-------\t------\t----\t-------\t--------")
	fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
		r.BuildID, r.Total, r.Skipped, r.Successful, r.Failed, r.Directories, r.Indexes, r.Duration.Round(time.Millisecond))
	w.Flush()
}
