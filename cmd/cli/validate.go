package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/pipeline"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/ratelimit"
)

var (
	validateStrict   bool
	validateExternal bool
	validateJSON     bool
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check every link in the generated site",
	Long: `Check every link of every HTML file in the output directory. Internal links
must resolve to a file or directory in the tree. With --external, http(s)
links are fetched too; broken external links are warnings unless --strict.

A report is written to link-validation-report.txt in the output directory.
The command exits non-zero when validation fails.`,
	Example: `  sekolah-pseo validate
  sekolah-pseo validate --external --strict`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateStrict, "strict", false, "Fail on broken external links")
	validateCmd.Flags().BoolVar(&validateExternal, "external", false, "Check external http(s) links")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Print the result as JSON")
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	recorder := newRecorder()

	limiter := ratelimit.New(ratelimit.Config{
		Name:          "validate",
		MaxConcurrent: cfg.Validation.Concurrency,
		QueueTimeout:  cfg.Validation.QueueTimeout,
	}, ratelimit.WithLogger(logger), ratelimit.WithObserver(recorder))

	v := pipeline.NewValidator(pipeline.ValidatorOptions{
		FS:              newGuardedFS(recorder),
		Limiter:         limiter,
		Recorder:        recorder,
		Logger:          logger,
		RootDir:         cfg.Paths.Dist,
		Concurrency:     cfg.Validation.Concurrency,
		QueueTimeout:    cfg.Validation.QueueTimeout,
		CheckExternal:   cfg.Validation.CheckExternal || validateExternal,
		Strict:          cfg.Validation.Strict || validateStrict,
		ExternalTimeout: cfg.Validation.ExternalTimeout,
		ExternalRetries: cfg.Validation.ExternalRetries,
	})

	result, err := v.ValidateOutputTree(ctx)
	if err != nil {
		return err
	}

	if result.TotalFiles > 0 {
		path, err := v.WriteReport(ctx, result)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to write link validation report")
		} else {
			logger.Info().Str("path", path).Msg("Wrote link validation report")
		}
	}

	if validateJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		displayValidationResult(result)
	}

	if !result.Passed {
		return errExitCode
	}
	return nil
}

func displayValidationResult(r *pipeline.ValidationResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FILES\tCHECKED\tSKIPPED\tINTERNAL\tEXTERNAL\tBROKEN INT\tBROKEN EXT\tSTATUS")
	fmt.Fprintln(w, "-----\t-------\t-------\t--------\t--------\t----------\t----------\t------")
	status := "PASSED"
	if !r.Passed {
		status = "FAILED"
	}
	fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
		r.TotalFiles, r.FilesChecked, r.FilesSkipped, r.InternalChecked, r.ExternalChecked,
		len(r.BrokenInternal), len(r.BrokenExternal), status)
	w.Flush()

	for _, b := range r.BrokenInternal {
		fmt.Printf("  broken: %s -> %s\n", b.Source, b.Link)
	}
	for _, b := range r.BrokenExternal {
		fmt.Printf("  warning: %s -> %s (%s)\n", b.Source, b.Link, b.Error)
	}
}
