package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/freshness"
)

var (
	freshnessJSON    bool
	freshnessVerbose bool
	freshnessMaxAge  int
)

// freshnessCmd represents the freshness command
var freshnessCmd = &cobra.Command{
	Use:   "freshness",
	Short: "Check how recent the schools CSV is",
	Long: `Report the most recent updated_at date in the schools CSV, how many days ago
it was, and data quality counts. Exits non-zero when the file is missing or
older than the maximum age.`,
	Example: `  sekolah-pseo freshness
  sekolah-pseo freshness --json --max-age 14`,
	Args: cobra.NoArgs,
	RunE: runFreshness,
}

func init() {
	rootCmd.AddCommand(freshnessCmd)

	freshnessCmd.Flags().BoolVar(&freshnessJSON, "json", false, "Print the result as JSON")
	freshnessCmd.Flags().BoolVarP(&freshnessVerbose, "verbose", "v", false, "Include data quality details")
	freshnessCmd.Flags().IntVar(&freshnessMaxAge, "max-age", 0, "Maximum age in days (default from config)")
}

func runFreshness(cmd *cobra.Command, args []string) error {
	maxAge := cfg.Freshness.MaxAgeDays
	if freshnessMaxAge > 0 {
		maxAge = freshnessMaxAge
	}

	result, err := freshness.Check(cmd.Context(), newGuardedFS(newRecorder()), cfg.Paths.SchoolsCSV, maxAge, time.Now())
	if err != nil {
		return err
	}

	if freshnessJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		result.WriteText(os.Stdout, freshnessVerbose)
	}

	if !result.Exists || !result.IsFresh {
		return errExitCode
	}
	return nil
}
