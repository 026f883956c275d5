package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/emendhq/emend/internal/audit"
	"github.com/emendhq/emend/internal/printer"
	"github.com/emendhq/emend/internal/watch"
	"github.com/spf13/cobra"
)

var (
	watchInstanceName string
	watchOutputFormat string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Monitor real-time pipeline activity",
	Long: `Monitor real-time pipeline activity by tailing the audit log.

Streams section ingestions, proposal drafts, review rounds and
validation verdicts as they are recorded. Only activity from the moment
the command starts is shown; history is served by 'emend audit list'.

Output Formats:
  default - Human-readable output with timestamps and emojis
  json    - Line-delimited JSON audit records, chain fields included

Examples:
  # Watch all activity on inferred instance
  emend watch

  # Watch specific instance
  emend watch --name prod

  # Archive the live stream
  emend watch --output=json >> audit-tail.jsonl`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchInstanceName, "name", "n", "", "Target instance name (auto-inferred if omitted)")
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	// Validate output format
	var outputFormat watch.OutputFormat
	switch watchOutputFormat {
	case "default":
		outputFormat = watch.OutputFormatDefault
	case "json":
		outputFormat = watch.OutputFormatJSON
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	// Stop cleanly on Ctrl+C
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := connectInstance(ctx, watchInstanceName)
	if err != nil {
		return err
	}
	defer conn.Close()

	log, err := audit.NewRedisLog(conn.Client, conn.InstanceName)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}

	if outputFormat == watch.OutputFormatDefault {
		printer.Info("Watching instance '%s' (Ctrl+C to stop)...\n", conn.InstanceName)
	}

	return watch.TailActivity(ctx, log, outputFormat, os.Stdout)
}
