package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/emendhq/emend/internal/printer"
	"github.com/emendhq/emend/internal/views"
	"github.com/emendhq/emend/pkg/docket"
	"github.com/spf13/cobra"
)

var (
	listInstanceName string
	listStatus       string
	listStandardID   string
	listSectionID    string
	listOutputFormat string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List proposals",
	Long: `List proposals on an instance, optionally filtered by status,
standard or section.

Output Formats:
  default - Table with truncated text columns
  jsonl   - Line-delimited JSON, one complete proposal per line

Examples:
  # All proposals on the inferred instance
  emend list

  # Proposals still waiting on review
  emend list --status under_review

  # Everything drafted for one standard, as JSONL
  emend list --standard FAS-28 --output jsonl`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listInstanceName, "name", "n", "", "Target instance name (auto-inferred if omitted)")
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (drafted, under_review, approved, approved_with_modifications, rejected)")
	listCmd.Flags().StringVar(&listStandardID, "standard", "", "Filter by standard identifier")
	listCmd.Flags().StringVar(&listSectionID, "section", "", "Filter by section identifier")
	listCmd.Flags().StringVarP(&listOutputFormat, "output", "o", "default", "Output format (default or jsonl)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Validate output format
	var outputFormat views.OutputFormat
	switch listOutputFormat {
	case "default":
		outputFormat = views.OutputFormatDefault
	case "jsonl":
		outputFormat = views.OutputFormatJSONL
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", listOutputFormat),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	// Validate status filter
	filter := docket.ProposalFilter{
		StandardID: listStandardID,
		SectionID:  listSectionID,
	}
	if listStatus != "" {
		status := docket.ProposalStatus(listStatus)
		if err := status.Validate(); err != nil {
			return printer.Error(
				"invalid status filter",
				fmt.Sprintf("Error: %v", err),
				[]string{"Valid statuses: drafted, under_review, approved, approved_with_modifications, rejected"},
			)
		}
		filter.Status = status
	}

	conn, err := connectInstance(ctx, listInstanceName)
	if err != nil {
		return err
	}
	defer conn.Close()

	return views.RenderProposalList(ctx, conn.Store, conn.InstanceName, outputFormat, filter, os.Stdout)
}
