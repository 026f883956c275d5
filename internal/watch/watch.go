// Package watch implements the live views of pipeline activity: a
// poll-based tail of the audit log backing `emend watch`, and a
// proposal poller backing `emend ingest --watch`.
package watch

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/emendhq/emend/internal/audit"
	"github.com/emendhq/emend/pkg/docket"
)

// pollInterval is how often the pollers re-query Redis.
const pollInterval = 200 * time.Millisecond

// PollForProposal polls until a proposal exists for the given standard
// section. Returns the proposal or an error if the timeout elapses.
func PollForProposal(ctx context.Context, store *docket.Store, standardID, sectionID string, timeout time.Duration) (*docket.Proposal, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timeoutCh:
			return nil, fmt.Errorf("timeout waiting for proposal after %v", timeout)

		case <-ticker.C:
			proposals, err := store.ListProposals(ctx, docket.ProposalFilter{
				StandardID: standardID,
				SectionID:  sectionID,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to query for proposal: %w", err)
			}
			if len(proposals) == 0 {
				// Not drafted yet, continue polling
				continue
			}

			return proposals[0], nil
		}
	}
}

// TailActivity streams audit records appended after the call, rendering
// each with the chosen format. It returns nil once ctx is cancelled and
// an error if the log becomes unreadable.
func TailActivity(ctx context.Context, log audit.Log, format OutputFormat, w io.Writer) error {
	formatter, err := newFormatter(format, w)
	if err != nil {
		return err
	}

	// Start at the current head so only activity from now on is shown.
	// History is served by `emend audit list`.
	cursor, err := log.Length(ctx)
	if err != nil {
		return fmt.Errorf("failed to read audit log length: %w", err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			length, err := log.Length(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to read audit log length: %w", err)
			}
			if length <= cursor {
				continue
			}

			records, err := log.ListRange(ctx, cursor+1, length)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to read audit records: %w", err)
			}

			for i := range records {
				if err := formatter.Format(&records[i]); err != nil {
					return err
				}
			}
			cursor = length
		}
	}
}
