package main

import (
	"github.com/spf13/cobra"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/preview"
)

var servePort int

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Preview the generated site over HTTP",
	Long: `Serve the output directory over HTTP for local review, with /health and
/metrics endpoints. Stops gracefully on Ctrl+C or SIGTERM.`,
	Example: `  sekolah-pseo serve
  sekolah-pseo serve --port 3000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	port := cfg.Server.Port
	if servePort > 0 {
		port = servePort
	}

	srv := preview.New(preview.Config{
		Host:              cfg.Server.Host,
		Port:              port,
		Root:              cfg.Paths.Dist,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		Burst:             cfg.Server.Burst,
		Debug:             cfg.Logging.Level == "debug",
	}, nil, logger)

	return srv.Run(cmd.Context())
}
