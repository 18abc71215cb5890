package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/etl"
)

var (
	etlRaw    string
	etlOutput string
	etlSheet  string
)

// etlCmd represents the etl command
var etlCmd = &cobra.Command{
	Use:   "etl",
	Short: "Clean a raw school dump into the canonical schools CSV",
	Long: `Read a raw CSV (any delimiter, UTF-8 or Windows-1252) or XLSX dump, map its
headers onto the canonical columns, sanitise and validate every row, stamp
updated_at and write the valid records to the schools CSV.

Fails when the raw file is missing or no row is valid.`,
	Example: `  sekolah-pseo etl
  sekolah-pseo etl --raw external/dapodik.xlsx --sheet Sekolah`,
	Args: cobra.NoArgs,
	RunE: runETL,
}

func init() {
	rootCmd.AddCommand(etlCmd)

	etlCmd.Flags().StringVar(&etlRaw, "raw", "", "Raw data file (default from config)")
	etlCmd.Flags().StringVar(&etlOutput, "output", "", "Schools CSV to write (default from config)")
	etlCmd.Flags().StringVar(&etlSheet, "sheet", "", "XLSX worksheet name (default first sheet)")
}

func runETL(cmd *cobra.Command, args []string) error {
	raw := cfg.Paths.RawData
	if etlRaw != "" {
		raw = etlRaw
	}
	output := cfg.Paths.SchoolsCSV
	if etlOutput != "" {
		output = etlOutput
	}

	report, err := etl.Run(cmd.Context(), etl.Options{
		FS:         newGuardedFS(newRecorder()),
		RawPath:    raw,
		OutputPath: output,
		Sheet:      etlSheet,
		Logger:     logger,
	})
	if report != nil {
		displayETLReport(report)
	}
	if errors.Is(err, etl.ErrNoValidRecords) {
		return fmt.Errorf("%w in %s", err, raw)
	}
	return err
}

func displayETLReport(r *etl.Report) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FORMAT\tENCODING\tLOADED\tVALID\tREJECTED")
	fmt.Fprintln(w, "------\t--------\t------\t-----\t--------")
	encoding := string(r.Encoding)
	if encoding == "" {
		encoding = "-"
	}
	fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", r.Format, encoding, r.Loaded, r.Valid, r.Rejected)
	w.Flush()

	const maxShown = 20
	for i, rej := range r.Rejections {
		if i == maxShown {
			fmt.Printf("  ... and %d more\n", len(r.Rejections)-maxShown)
			break
		}
		fmt.Printf("  row %d: %s\n", rej.Row, rej.Reason)
	}
}
