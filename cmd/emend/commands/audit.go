package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/emendhq/emend/internal/audit"
	"github.com/emendhq/emend/internal/printer"
	"github.com/emendhq/emend/internal/timespec"
	"github.com/emendhq/emend/internal/views"
	"github.com/spf13/cobra"
)

var (
	auditInstanceName string

	auditListSince     string
	auditListUntil     string
	auditListEventType string
	auditListActor     string
	auditListSubject   string
	auditListOutput    string

	auditVerifyFrom int64
	auditVerifyTo   int64
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit log",
	Long: `Inspect the hash-chained audit log of pipeline state changes.

Every ingestion, draft, review round and verdict is appended as a record
carrying a SHA-256 hash over its content plus the hash of its
predecessor. 'audit list' filters and displays records; 'audit verify'
recomputes the chain and reports the first tampered record.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit records",
	Long: `List audit records, newest last, optionally filtered.

Time bounds accept a Go duration ("45m", "1h30m", relative to now) or an
RFC3339 timestamp. The event type filter is a glob.

Examples:
  # Everything recorded in the last hour
  emend audit list --since 1h

  # All verdicts for one proposal
  emend audit list --event-type 'validation_*' --subject 3f2a91c4-...

  # Full log as JSONL for archival
  emend audit list --output jsonl > audit.jsonl`,
	RunE: runAuditList,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify audit chain integrity",
	Long: `Recompute payload hashes and the hash chain and report the first
record that fails, if any.

By default the whole log is verified; --from/--to restrict the check to
a sequence range (the record before the range anchors its prev_hash).

Examples:
  # Verify the whole log
  emend audit verify

  # Verify records 100-200 only
  emend audit verify --from 100 --to 200`,
	RunE: runAuditVerify,
}

func init() {
	auditCmd.PersistentFlags().StringVarP(&auditInstanceName, "name", "n", "", "Target instance name (auto-inferred if omitted)")

	auditListCmd.Flags().StringVar(&auditListSince, "since", "", "Only records at or after this time (duration or RFC3339)")
	auditListCmd.Flags().StringVar(&auditListUntil, "until", "", "Only records at or before this time (duration or RFC3339)")
	auditListCmd.Flags().StringVar(&auditListEventType, "event-type", "", "Filter by event type glob, e.g. 'proposal_*'")
	auditListCmd.Flags().StringVar(&auditListActor, "actor", "", "Filter by actor, e.g. 'orchestrator'")
	auditListCmd.Flags().StringVar(&auditListSubject, "subject", "", "Filter by subject ID (proposal or section)")
	auditListCmd.Flags().StringVarP(&auditListOutput, "output", "o", "default", "Output format (default or jsonl)")

	auditVerifyCmd.Flags().Int64Var(&auditVerifyFrom, "from", 0, "First seq to verify (default: start of log)")
	auditVerifyCmd.Flags().Int64Var(&auditVerifyTo, "to", 0, "Last seq to verify (default: end of log)")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	rootCmd.AddCommand(auditCmd)
}

func runAuditList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if auditListOutput != "default" && auditListOutput != "jsonl" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", auditListOutput),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	sinceMS, untilMS, err := timespec.ParseRange(auditListSince, auditListUntil)
	if err != nil {
		return printer.Error(
			"invalid time filter",
			fmt.Sprintf("Error: %v", err),
			[]string{"Use a duration like '1h30m' or RFC3339 like '2026-08-23T13:00:00Z'"},
		)
	}

	conn, err := connectInstance(ctx, auditInstanceName)
	if err != nil {
		return err
	}
	defer conn.Close()

	log, err := audit.NewRedisLog(conn.Client, conn.InstanceName)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}

	records, err := log.List(ctx, audit.Filter{
		SinceTimestampMs: sinceMS,
		UntilTimestampMs: untilMS,
		EventTypeGlob:    auditListEventType,
		Actor:            auditListActor,
		SubjectID:        auditListSubject,
	})
	if err != nil {
		return fmt.Errorf("failed to list audit records: %w", err)
	}

	if auditListOutput == "jsonl" {
		return views.AuditJSONL(os.Stdout, records)
	}

	views.AuditTable(os.Stdout, records, conn.InstanceName)
	return nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	conn, err := connectInstance(ctx, auditInstanceName)
	if err != nil {
		return err
	}
	defer conn.Close()

	log, err := audit.NewRedisLog(conn.Client, conn.InstanceName)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}

	length, err := log.Length(ctx)
	if err != nil {
		return fmt.Errorf("failed to read audit log length: %w", err)
	}
	if length == 0 {
		printer.Info("Audit log is empty, nothing to verify.\n")
		return nil
	}

	if err := log.Verify(ctx, auditVerifyFrom, auditVerifyTo); err != nil {
		var integrity *audit.ChainIntegrityError
		if errors.As(err, &integrity) {
			return printer.ErrorWithContext(
				"audit chain broken",
				"A record fails hash verification. Records from this point on cannot be trusted.",
				map[string]string{
					"Seq":    fmt.Sprintf("%d", integrity.Seq),
					"Reason": integrity.Reason,
				},
				[]string{fmt.Sprintf("Inspect the record:\n  emend audit list --output jsonl | sed -n '%dp'", integrity.Seq)},
			)
		}
		return fmt.Errorf("verification failed: %w", err)
	}

	// Report the verified range using the same clamping as the check
	from, to := auditVerifyFrom, auditVerifyTo
	if from < 1 {
		from = 1
	}
	if to < 1 || to > length {
		to = length
	}
	count := to - from + 1
	if count < 0 {
		count = 0
	}

	printer.Success("Audit chain intact: %d record(s) verified (seq %d-%d)\n", count, from, to)
	return nil
}
