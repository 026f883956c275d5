package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "emend",
	Short: "Emend - Automated standard enhancement pipeline",
	Long: `Emend drafts, reviews and resolves enhancement proposals for
regulatory standard text.

Ingested sections are scanned for issues, a generator drafts an
enhancement proposal per section, a reviewer pool scores each draft, and
a consensus engine resolves every proposal to approved,
approved_with_modifications or rejected. Each state change is recorded
in a hash-chained audit log.`,
	Version: version,
	// Prevent silent success when unknown flags are passed to root command
	// e.g., "emend --standard FAS-28" instead of "emend ingest --standard FAS-28"
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no subcommand is specified, show help
		return cmd.Help()
	},
	// Enable strict flag parsing - unknown flags will cause an error
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Silence Cobra's default error and usage printing
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	// Global flags can be added here
}
