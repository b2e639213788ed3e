// Package cmd contains CLI commands.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Mirascope/spancache/cli/internal/config"
)

var (
	cfg     *config.Config
	server  string
	envID   string
	format  string
	verbose bool
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "spancache",
	Short: "Spancache CLI - Telemetry Span Cache",
	Long: `Spancache is a short-lived cache for in-flight telemetry spans with
an embedded query engine.

This CLI provides commands to ingest spans and query the cache.

Examples:
  # Search recent spans in an environment
  spancache search --env env-prod --since 1h

  # Fetch a reconstructed trace
  spancache trace 0123456789abcdef0123456789abcdef --env env-prod

  # Check whether a span is still cached
  spancache exists 0123456789abcdef0123456789abcdef 0123456789abcdef --env env-prod

  # Ingest a span batch from a file
  spancache ingest batch.json
`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.DefaultConfig()
		if server != "" {
			cfg.ServerURL = server
		}
		if envID != "" {
			cfg.Environment = envID
		}
		if format != "" {
			cfg.Format = format
		}
		cfg.Verbose = verbose
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&server, "server", "s", "", "Cache server URL")
	rootCmd.PersistentFlags().StringVarP(&envID, "env", "e", "", "Environment partition")
	rootCmd.PersistentFlags().StringVarP(&format, "output", "o", "", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	// Add subcommands
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(existsCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(versionCmd)
}

// versionCmd prints version info.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("spancache version 0.1.0")
	},
}
