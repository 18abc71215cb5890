package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/fetch"
)

var (
	fetchURL    string
	fetchOutput string
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the raw school dataset",
	Long: `Download the raw school dataset from a URL. The dataset may be a CSV, an XLSX
workbook or a ZIP archive holding either; from an archive the entry named like
sekolah.csv, data.csv, schools.csv or daftarsekolah.csv is preferred.

Run "etl" afterwards to produce the canonical schools CSV.`,
	Example: `  sekolah-pseo fetch --url https://example.org/sekolah.zip
  DATA_SOURCE_URL=https://example.org/sekolah.csv sekolah-pseo fetch`,
	Args: cobra.NoArgs,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVar(&fetchURL, "url", "", "Dataset URL (default from config fetch.url)")
	fetchCmd.Flags().StringVar(&fetchOutput, "output", "", "Raw data file to write (default from config)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	url := cfg.Fetch.URL
	if fetchURL != "" {
		url = fetchURL
	}
	output := cfg.Paths.RawData
	if fetchOutput != "" {
		output = fetchOutput
	}

	clientCfg := fetch.DefaultConfig()
	clientCfg.Timeout = cfg.Fetch.Timeout
	clientCfg.MaxRetries = cfg.Fetch.MaxRetries
	clientCfg.RequestsPerSecond = cfg.Fetch.RequestsPerSecond

	result, err := fetch.Run(cmd.Context(), fetch.Options{
		FS:         newGuardedFS(newRecorder()),
		Client:     fetch.NewClient(clientCfg, nil),
		URL:        url,
		OutputPath: output,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Fetched %s (%d bytes, sha256 %s)\n", result.Source, result.Bytes, result.SHA256)
	fmt.Printf("Wrote %s\n", result.OutputPath)
	if result.OutputPath != cfg.Paths.RawData {
		fmt.Printf("Next: sekolah-pseo etl --raw %s\n", result.OutputPath)
	}
	return nil
}
