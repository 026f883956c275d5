package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/emendhq/emend/internal/bus"
	"github.com/emendhq/emend/internal/ingest"
	"github.com/emendhq/emend/internal/printer"
	"github.com/emendhq/emend/internal/watch"
	"github.com/emendhq/emend/pkg/docket"
	"github.com/spf13/cobra"
)

// ingestWatchTimeout bounds the whole --watch phase. Generation for a
// single section is bounded by the orchestrator's generator timeout,
// which defaults to the same two minutes.
const ingestWatchTimeout = 2 * time.Minute

var (
	ingestInstanceName string
	ingestStandardID   string
	ingestWatch        bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest --standard <id> <file>",
	Short: "Ingest a standard document into the pipeline",
	Long: `Ingest a plain-text standard document: split it into sections on
numbered headings, flag ambiguity and missing-definition issues, persist
the sections and announce each one to the orchestrator.

The orchestrator drafts an enhancement proposal per announced section.
Sections already ingested are skipped; a skipped section is re-announced
only when no proposal exists for it yet, so an announcement lost while
the orchestrator was down can be replayed safely.

Examples:
  # Ingest the example standard
  emend ingest --standard FAS-28 standards/example-standard.txt

  # Ingest and wait for the drafted proposals
  emend ingest --standard FAS-28 --watch standards/example-standard.txt

  # Target a specific instance
  emend ingest --standard FAS-32 --name prod standards/ijarah.txt`,
	Args: exactArgs(1, "emend ingest --standard <id> <file>"),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestInstanceName, "name", "n", "", "Target instance name (auto-inferred if omitted)")
	ingestCmd.Flags().StringVarP(&ingestStandardID, "standard", "s", "", "Standard identifier, e.g. FAS-28 (required)")
	ingestCmd.Flags().BoolVarP(&ingestWatch, "watch", "w", false, "Wait for a drafted proposal per ingested section")
	ingestCmd.MarkFlagRequired("standard")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Phase 1: Scan the document
	text, err := os.ReadFile(args[0])
	if err != nil {
		return printer.Error(
			"cannot read standard document",
			fmt.Sprintf("Error: %v", err),
			[]string{"Check the path and try again:\n  emend ingest --standard <id> <file>"},
		)
	}

	sections, err := ingest.Scan(ingestStandardID, string(text))
	if err != nil {
		return printer.Error(
			"standard document could not be split into sections",
			fmt.Sprintf("Error: %v", err),
			[]string{"Sections are detected on numbered headings such as:\n  4.1 Profit Recognition"},
		)
	}

	printer.Info("Scanned %d section(s) from %s\n\n", len(sections), args[0])

	// Phase 2: Connect to the instance
	conn, err := connectInstance(ctx, ingestInstanceName)
	if err != nil {
		return err
	}
	defer conn.Close()

	eventBus, err := bus.NewRedis(conn.Client, conn.InstanceName)
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}
	defer eventBus.Close()

	// Phase 3: Persist and announce each section
	var ingested []docket.Section
	skipped := 0

	for _, section := range sections {
		err := conn.Store.CreateSection(ctx, &section)
		switch {
		case err == nil:
			if err := announceSection(ctx, eventBus, section); err != nil {
				return err
			}
			ingested = append(ingested, section)
			printer.Success("Ingested %s: %s (%s)\n", section.SectionID, section.Title, issueSummary(section))

		case docket.IsDuplicateKey(err):
			// Already persisted. Replay the announcement only when no
			// proposal exists, using the stored copy of the section.
			replayed, rerr := replaySection(ctx, conn, eventBus, section.SectionID)
			if rerr != nil {
				return rerr
			}
			if replayed != nil {
				ingested = append(ingested, *replayed)
				printer.Success("Re-announced %s: %s (no proposal yet)\n", section.SectionID, section.Title)
			} else {
				skipped++
				printer.Info("  skipped %s: %s (already ingested)\n", section.SectionID, section.Title)
			}

		default:
			return fmt.Errorf("failed to persist section %s: %w", section.SectionID, err)
		}
	}

	printer.Info("\n%d section(s) announced, %d skipped\n", len(ingested), skipped)

	// Phase 4: Optionally wait for the drafted proposals
	if ingestWatch && len(ingested) > 0 {
		return waitForProposals(ctx, conn, ingested)
	}

	if len(ingested) > 0 {
		printer.Info("\nNext steps:\n")
		printer.Info("  • Monitor the pipeline:  emend watch --name %s\n", conn.InstanceName)
		printer.Info("  • List proposals:        emend list --name %s\n", conn.InstanceName)
	}

	return nil
}

func announceSection(ctx context.Context, eventBus bus.Bus, section docket.Section) error {
	event := docket.SectionIngestedEvent{Section: section}
	if err := eventBus.Publish(ctx, docket.TopicSectionIngested, event); err != nil {
		return fmt.Errorf("failed to announce section %s: %w", section.SectionID, err)
	}
	return nil
}

// replaySection re-announces an already-persisted section if no proposal
// exists for it. Returns the stored section when it was re-announced.
func replaySection(ctx context.Context, conn *instanceConnection, eventBus bus.Bus, sectionID string) (*docket.Section, error) {
	proposals, err := conn.Store.ListProposals(ctx, docket.ProposalFilter{
		StandardID: ingestStandardID,
		SectionID:  sectionID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check proposals for section %s: %w", sectionID, err)
	}
	if len(proposals) > 0 {
		return nil, nil
	}

	stored, err := conn.Store.GetSection(ctx, ingestStandardID, sectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored section %s: %w", sectionID, err)
	}
	if err := announceSection(ctx, eventBus, *stored); err != nil {
		return nil, err
	}
	return stored, nil
}

func waitForProposals(ctx context.Context, conn *instanceConnection, sections []docket.Section) error {
	printer.Info("\nWaiting for drafted proposals (timeout %v)...\n", ingestWatchTimeout)

	watchCtx, cancel := context.WithTimeout(ctx, ingestWatchTimeout)
	defer cancel()

	drafted := 0
	for _, section := range sections {
		proposal, err := watch.PollForProposal(watchCtx, conn.Store, section.StandardID, section.SectionID, ingestWatchTimeout)
		if err != nil {
			printer.Warning("no proposal for section %s: %v\n", section.SectionID, err)
			continue
		}
		printer.Success("Proposal drafted for %s: %s (%s)\n", section.SectionID, proposal.ID, proposal.Category)
		drafted++
	}

	if drafted < len(sections) {
		return printer.Error(
			"some sections were not drafted in time",
			fmt.Sprintf("%d of %d sections have a proposal.", drafted, len(sections)),
			[]string{
				"Check that the orchestrator is running for this instance",
				fmt.Sprintf("Monitor progress:\n  emend watch --name %s", conn.InstanceName),
			},
		)
	}

	printer.Info("\nAll %d section(s) drafted. Review progress:\n", drafted)
	printer.Info("  emend list --name %s\n", conn.InstanceName)
	return nil
}

// issueSummary renders the per-section issue count for ingest output.
func issueSummary(section docket.Section) string {
	switch len(section.Issues) {
	case 0:
		return "no issues"
	case 1:
		return fmt.Sprintf("1 issue: %s", section.Issues[0].Type)
	default:
		return fmt.Sprintf("%d issues", len(section.Issues))
	}
}
