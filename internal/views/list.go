package views

import (
	"context"
	"fmt"
	"io"

	"github.com/emendhq/emend/pkg/docket"
)

// OutputFormat selects how list output is rendered.
type OutputFormat string

const (
	// OutputFormatDefault renders a table with truncated text columns.
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL renders complete records as line-delimited JSON.
	OutputFormatJSONL OutputFormat = "jsonl"
)

// RenderProposalList loads proposals matching the filter and writes them
// in the requested format. The store returns them in creation order.
func RenderProposalList(ctx context.Context, store *docket.Store, instanceName string, format OutputFormat, filter docket.ProposalFilter, w io.Writer) error {
	proposals, err := store.ListProposals(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list proposals: %w", err)
	}

	switch format {
	case OutputFormatDefault:
		ProposalTable(w, proposals, instanceName)
	case OutputFormatJSONL:
		if err := ProposalsJSONL(w, proposals); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
