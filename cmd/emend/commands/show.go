package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/emendhq/emend/internal/printer"
	"github.com/emendhq/emend/internal/resolver"
	"github.com/emendhq/emend/internal/views"
	"github.com/spf13/cobra"
)

var (
	showInstanceName string
	showOutputFormat string
)

var showCmd = &cobra.Command{
	Use:   "show <proposal-id>",
	Short: "Show one proposal in full",
	Long: `Show a proposal with its full text, reviewer evaluations and the
consensus validation verdict.

The proposal ID may be abbreviated to a unique prefix of at least 6
characters, as printed by 'emend list'.

Output Formats:
  default - Human-readable detail view
  json    - Single JSON document

Examples:
  # Show by short ID
  emend show 3f2a91c4

  # Full machine-readable record
  emend show 3f2a91c4 --output json`,
	Args: exactArgs(1, "emend show <proposal-id>"),
	RunE: runShow,
}

func init() {
	showCmd.Flags().StringVarP(&showInstanceName, "name", "n", "", "Target instance name (auto-inferred if omitted)")
	showCmd.Flags().StringVarP(&showOutputFormat, "output", "o", "default", "Output format (default or json)")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Validate output format
	if showOutputFormat != "default" && showOutputFormat != "json" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", showOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	conn, err := connectInstance(ctx, showInstanceName)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Resolve short ID prefix to the full proposal UUID
	proposalID, err := resolver.ResolveProposalID(ctx, conn.Store, args[0])
	if err != nil {
		var ambiguous *resolver.AmbiguousError
		if errors.As(err, &ambiguous) {
			return printer.Error(
				"ambiguous proposal ID",
				resolver.FormatAmbiguousError(ambiguous),
				nil,
			)
		}
		if resolver.IsNotFoundError(err) {
			return printer.Error(
				fmt.Sprintf("no proposal matches '%s'", args[0]),
				"No proposal on this instance has that ID or prefix.",
				[]string{fmt.Sprintf("List proposals:\n  emend list --name %s", conn.InstanceName)},
			)
		}
		return printer.Error("cannot resolve proposal ID", err.Error(), nil)
	}

	detail, err := views.LoadProposalDetail(ctx, conn.Store, proposalID)
	if err != nil {
		if views.IsNotFound(err) {
			return printer.Error(
				fmt.Sprintf("proposal '%s' not found", proposalID),
				"The proposal disappeared between resolution and loading.",
				[]string{fmt.Sprintf("List proposals:\n  emend list --name %s", conn.InstanceName)},
			)
		}
		return fmt.Errorf("failed to load proposal detail: %w", err)
	}

	if showOutputFormat == "json" {
		return views.DetailJSON(os.Stdout, detail)
	}

	views.DetailText(os.Stdout, detail)
	return nil
}
