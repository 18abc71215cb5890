package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/manifest"
)

var manifestLimit int

// manifestCmd groups build manifest commands
var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Inspect or clear the incremental build manifest",
}

var manifestShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the last build recorded in the manifest",
	Args:  cobra.NoArgs,
	RunE:  runManifestShow,
}

var manifestClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the manifest so the next build rebuilds every page",
	Args:  cobra.NoArgs,
	RunE:  runManifestClear,
}

func init() {
	rootCmd.AddCommand(manifestCmd)
	manifestCmd.AddCommand(manifestShowCmd, manifestClearCmd)

	manifestShowCmd.Flags().IntVar(&manifestLimit, "limit", 10, "Number of entries to list (0 for none)")
}

func runManifestShow(cmd *cobra.Command, args []string) error {
	store := manifest.NewStore(newGuardedFS(newRecorder()), cfg.Paths.Root, logger)
	m := store.Load(cmd.Context())
	if m == nil {
		fmt.Printf("No build manifest at %s\n", store.Path())
		return nil
	}

	fmt.Printf("Manifest:   %s\n", store.Path())
	fmt.Printf("Build ID:   %s\n", m.BuildID)
	fmt.Printf("Last build: %s\n", m.LastBuild.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("Records:    %d\n", len(m.Records))

	if manifestLimit <= 0 || len(m.Records) == 0 {
		return nil
	}

	keys := make([]string, 0, len(m.Records))
	for k := range m.Records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > manifestLimit {
		keys = keys[:manifestLimit]
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NPSN\tHASH\tBUILT AT\tPATH")
	fmt.Fprintln(w, "----\t----\t--------\t----")
	for _, k := range keys {
		e := m.Records[k]
		hash := e.Hash
		if len(hash) > 12 {
			hash = hash[:12]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", k, hash, e.BuiltAt.Format("2006-01-02 15:04"), e.Path)
	}
	return w.Flush()
}

func runManifestClear(cmd *cobra.Command, args []string) error {
	store := manifest.NewStore(newGuardedFS(newRecorder()), cfg.Paths.Root, logger)
	if err := store.Clear(cmd.Context()); err != nil {
		return err
	}
	fmt.Printf("Cleared %s\n", store.Path())
	return nil
}
