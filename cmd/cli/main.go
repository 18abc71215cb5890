package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sulhimaskom/sekolah-pseo-sub000/config"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/metrics"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/resilience"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/storage"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/telemetry"
)

var (
	cfgFile string
	cfg     *config.Config
	cfgErr  error
	logger  *zerolog.Logger

	shutdownTelemetry = func(context.Context) error { return nil }
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sekolah-pseo",
	Short: "Static site generator for Indonesian school records",
	Long: `Builds a static website with one page per Indonesian school from a canonical
schools CSV, validates the links of the generated tree, and keeps the data
pipeline around it: fetching and cleaning raw data, sitemaps, freshness checks
and a local preview server.`,
	PersistentPreRunE: persistentPreRun,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml or ./config.yaml)")
}

func initConfig() {
	cfg, cfgErr = config.Load(cfgFile)
}

// persistentPreRun runs before each command and initializes dependencies
func persistentPreRun(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Name() == "completion" {
		return nil
	}
	if cfgErr != nil {
		return fmt.Errorf("failed to load config: %w", cfgErr)
	}

	logger = initLogger()

	shutdown, err := telemetry.Init(cmd.Context(), telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Telemetry disabled")
		return nil
	}
	shutdownTelemetry = shutdown
	return nil
}

func initLogger() *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	if cfg != nil && cfg.Logging.Level != "" {
		if parsedLevel, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
			level = parsedLevel
		}
	}

	// Logs go to stderr so stdout stays clean for tables and JSON.
	var output io.Writer
	if cfg != nil && cfg.Logging.Format == "json" {
		output = os.Stderr
	} else {
		noColor := false
		if cfg != nil {
			noColor = cfg.Logging.NoColor
		}
		output = zerolog.ConsoleWriter{Out: os.Stderr, NoColor: noColor}
	}

	log := zerolog.New(output).Level(level).With().Timestamp().Logger()
	return &log
}

// newRecorder returns the process metrics recorder.
func newRecorder() *metrics.Recorder {
	return metrics.NewRecorder()
}

// newGuardedFS builds the guarded filesystem every command goes through.
// Both breakers report their state to recorder.
func newGuardedFS(recorder *metrics.Recorder) *storage.GuardedFS {
	policies := storage.DefaultPolicies()
	policies.Read.Timeout = cfg.Resilience.FileTimeout
	policies.Write.Timeout = cfg.Resilience.FileTimeout

	fs := storage.New(storage.Options{
		Policies: policies,
		Breaker: resilience.BreakerConfig{
			FailureThreshold: cfg.Resilience.FailureThreshold,
			ResetTimeout:     cfg.Resilience.ResetTimeout,
		},
		RetryDelay: cfg.Resilience.RetryDelay,
		Observer:   recorder,
		Logger:     logger,
	})
	recorder.WatchBreaker(fs.ReadBreaker())
	recorder.WatchBreaker(fs.WriteBreaker())
	return fs
}

// errExitCode is returned by commands that already reported their outcome
// and only need a non-zero exit status.
var errExitCode = errors.New("exit 1")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := Execute(ctx)
	stop()

	if serr := shutdownTelemetry(context.Background()); serr != nil && logger != nil {
		logger.Warn().Err(serr).Msg("Failed to flush telemetry")
	}

	if err != nil {
		if !errors.Is(err, errExitCode) {
			if logger != nil {
				logger.Debug().Err(err).Str("code", string(resilience.CodeOf(err))).Msg("Command failed")
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
