package views

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/emendhq/emend/pkg/docket"
)

// ProposalDetail is everything `emend show` displays for one proposal:
// the record itself, the evaluations recorded against it and the
// validation verdict when one exists.
type ProposalDetail struct {
	Proposal    *docket.Proposal     `json:"proposal"`
	Evaluations []*docket.Evaluation `json:"evaluations,omitempty"`
	Validation  *docket.Validation   `json:"validation,omitempty"`
}

// ProposalNotFoundError distinguishes a missing proposal from other
// load failures.
type ProposalNotFoundError struct {
	ProposalID string
}

func (e *ProposalNotFoundError) Error() string {
	return fmt.Sprintf("proposal with ID '%s' not found", e.ProposalID)
}

// IsNotFound returns true if the error is a ProposalNotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*ProposalNotFoundError)
	return ok
}

// LoadProposalDetail fetches a proposal with its evaluations and
// validation. A proposal without a validation yet is not an error.
func LoadProposalDetail(ctx context.Context, store *docket.Store, proposalID string) (*ProposalDetail, error) {
	proposal, err := store.GetProposal(ctx, proposalID)
	if err != nil {
		if docket.IsNotFound(err) {
			return nil, &ProposalNotFoundError{ProposalID: proposalID}
		}
		return nil, fmt.Errorf("failed to fetch proposal: %w", err)
	}

	evaluations, err := store.ListEvaluations(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}

	detail := &ProposalDetail{
		Proposal:    proposal,
		Evaluations: evaluations,
	}

	validation, err := store.GetValidation(ctx, proposalID)
	switch {
	case err == nil:
		detail.Validation = validation
	case docket.IsNotFound(err):
		// No round has finalized yet.
	default:
		return nil, fmt.Errorf("failed to fetch validation: %w", err)
	}

	return detail, nil
}

// DetailJSON writes the detail as pretty-printed JSON.
func DetailJSON(w io.Writer, detail *ProposalDetail) error {
	data, err := json.MarshalIndent(detail, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal proposal detail to JSON: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}

	fmt.Fprintln(w)
	return nil
}

// DetailText writes a human-readable report of the proposal, its
// evaluations and its validation.
func DetailText(w io.Writer, detail *ProposalDetail) {
	p := detail.Proposal

	fmt.Fprintf(w, "Proposal %s\n", p.ID)
	fmt.Fprintf(w, "  Standard:  %s  section %s\n", p.StandardID, p.SectionID)
	fmt.Fprintf(w, "  Category:  %s\n", p.Category)
	fmt.Fprintf(w, "  Status:    %s\n", p.Status)
	fmt.Fprintf(w, "  Created:   %s\n", formatTimestamp(p.CreatedAtMs))

	fmt.Fprintf(w, "\nCurrent text:\n%s\n", indent(p.CurrentText))
	fmt.Fprintf(w, "\nProposed text:\n%s\n", indent(p.ProposedText))
	fmt.Fprintf(w, "\nRationale:\n%s\n", indent(p.Rationale))

	if len(detail.Evaluations) > 0 {
		fmt.Fprintf(w, "\nEvaluations (%d):\n", len(detail.Evaluations))
		for _, e := range detail.Evaluations {
			fmt.Fprintf(w, "  %-12s %5.2f  %-8s %s\n",
				e.ReviewerID, e.OverallScore, e.Recommendation, formatText(e.Feedback))
		}
	}

	if v := detail.Validation; v != nil {
		fmt.Fprintf(w, "\nValidation %s:\n", formatID(v.ID))
		fmt.Fprintf(w, "  Status:           %s\n", v.Status)
		fmt.Fprintf(w, "  Overall score:    %.2f\n", v.OverallScore)
		fmt.Fprintf(w, "  Score spread:     %.2f\n", v.Consensus.ScoreSpread)
		fmt.Fprintf(w, "  Reviewers:        %d\n", v.Consensus.ReviewerCount)
		fmt.Fprintf(w, "  Unanimous reject: %t\n", v.Consensus.UnanimousReject)
		fmt.Fprintf(w, "  Needs escalation: %t\n", v.Consensus.NeedsEscalation)
		if len(v.Consensus.CriterionMeans) > 0 {
			fmt.Fprintf(w, "  Criterion means:  %s\n", formatCriterionMeans(v.Consensus.CriterionMeans))
		}
	}
}

func indent(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, line := range lines {
		lines[i] = "  " + line
	}
	return strings.Join(lines, "\n")
}

// formatCriterionMeans renders per-criterion averages in a stable order.
func formatCriterionMeans(means map[docket.Criterion]float64) string {
	criteria := make([]string, 0, len(means))
	for c := range means {
		criteria = append(criteria, string(c))
	}
	sort.Strings(criteria)

	parts := make([]string, len(criteria))
	for i, c := range criteria {
		parts[i] = fmt.Sprintf("%s %.2f", c, means[docket.Criterion(c)])
	}
	return strings.Join(parts, ", ")
}
