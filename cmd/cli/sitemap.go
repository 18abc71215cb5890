package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/sitemap"
)

// sitemapCmd represents the sitemap command
var sitemapCmd = &cobra.Command{
	Use:   "sitemap",
	Short: "Write XML sitemaps for the generated site",
	Long: `Collect every HTML page in the output directory and write sitemap-NNN.xml
files of at most 50,000 URLs each, plus sitemap-index.xml referencing them.
URLs are prefixed with site.url (env SITE_URL).`,
	Args: cobra.NoArgs,
	RunE: runSitemap,
}

func init() {
	rootCmd.AddCommand(sitemapCmd)
}

func runSitemap(cmd *cobra.Command, args []string) error {
	result, err := sitemap.Generate(cmd.Context(), sitemap.Options{
		FS:          newGuardedFS(newRecorder()),
		RootDir:     cfg.Paths.Dist,
		BaseURL:     cfg.Site.URL,
		Concurrency: cfg.Build.Concurrency,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Wrote %d URLs in %d sitemap files\n", result.URLs, len(result.Files))
	for _, f := range result.Files {
		fmt.Printf("  %s\n", f)
	}
	if len(result.Removed) > 0 {
		fmt.Printf("Removed %d stale sitemap files\n", len(result.Removed))
	}
	return nil
}
