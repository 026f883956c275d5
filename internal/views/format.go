// Package views renders proposals, evaluations and audit records for the
// emend CLI: fixed-width tables for humans, JSONL and pretty JSON for
// machines.
package views

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emendhq/emend/internal/audit"
	"github.com/emendhq/emend/pkg/docket"
)

// ProposalTable writes proposals as a formatted table.
// Returns the number of proposals formatted.
func ProposalTable(w io.Writer, proposals []*docket.Proposal, instanceName string) int {
	if len(proposals) == 0 {
		fmt.Fprintf(w, "No proposals found for instance '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Proposals for instance '%s':\n\n", instanceName)

	fmt.Fprintf(w, "%-10s %-14s %-12s %-10s %-8s %-8s %s\n",
		"ID", "STATUS", "CATEGORY", "STANDARD", "SECTION", "AGE", "PROPOSED")
	fmt.Fprintf(w, "%-10s %-14s %-12s %-10s %-8s %-8s %s\n",
		"----------", "--------------", "------------", "----------", "--------", "--------", "----------------------------------------")

	for _, p := range proposals {
		fmt.Fprintf(w, "%-10s %-14s %-12s %-10s %-8s %-8s %s\n",
			formatID(p.ID),
			formatStatus(p.Status),
			formatCategory(p.Category),
			formatCell(p.StandardID, 10),
			formatCell(p.SectionID, 8),
			formatTimestamp(p.CreatedAtMs),
			formatText(p.ProposedText),
		)
	}

	countMsg := "proposal"
	if len(proposals) != 1 {
		countMsg = "proposals"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(proposals), countMsg)

	return len(proposals)
}

// ProposalsJSONL writes proposals as line-delimited JSON, one complete
// record per line.
func ProposalsJSONL(w io.Writer, proposals []*docket.Proposal) error {
	for _, p := range proposals {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal proposal to JSON: %w", err)
		}

		if _, err := fmt.Fprintf(w, "%s\n", string(data)); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}

	return nil
}

// AuditTable writes audit records as a formatted table.
// Returns the number of records formatted.
func AuditTable(w io.Writer, records []audit.Record, instanceName string) int {
	if len(records) == 0 {
		fmt.Fprintf(w, "No audit records found for instance '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Audit trail for instance '%s':\n\n", instanceName)

	fmt.Fprintf(w, "%-6s %-8s %-14s %-22s %-14s %s\n",
		"SEQ", "AGE", "ACTOR", "EVENT", "SUBJECT", "HASH")
	fmt.Fprintf(w, "%-6s %-8s %-14s %-22s %-14s %s\n",
		"------", "--------", "--------------", "----------------------", "--------------", "----------")

	for _, r := range records {
		fmt.Fprintf(w, "%-6d %-8s %-14s %-22s %-14s %s\n",
			r.Seq,
			formatTimestamp(r.TimestampMs),
			formatCell(r.Actor, 14),
			formatCell(r.EventType, 22),
			formatCell(r.SubjectID, 14),
			formatID(r.Hash),
		)
	}

	countMsg := "record"
	if len(records) != 1 {
		countMsg = "records"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(records), countMsg)

	return len(records)
}

// AuditJSONL writes audit records as line-delimited JSON. The output is a
// faithful export of the chain: re-hashing the lines reproduces the head.
func AuditJSONL(w io.Writer, records []audit.Record) error {
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal audit record to JSON: %w", err)
		}

		if _, err := fmt.Fprintf(w, "%s\n", string(data)); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}

	return nil
}

// formatID truncates an ID or hash to its first 8 characters.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatStatus shortens the long terminal status for column display.
func formatStatus(status docket.ProposalStatus) string {
	if status == docket.StatusApprovedWithModifications {
		return "appr+mods"
	}
	return string(status)
}

// formatCategory shortens category names to fit their column.
func formatCategory(category docket.Category) string {
	switch category {
	case docket.CategoryAmbiguityResolution:
		return "ambiguity"
	case docket.CategoryAccountingTreatment:
		return "accounting"
	case docket.CategoryTransactionStructure:
		return "transaction"
	case docket.CategoryNewGuidance:
		return "guidance"
	}
	return formatCell(string(category), 12)
}

// formatCell truncates a value to the column width.
func formatCell(value string, width int) string {
	if value == "" {
		return "-"
	}
	if len(value) > width {
		return value[:width-3] + "..."
	}
	return value
}

// formatText reduces multi-line text to its first non-empty line, capped
// at 40 characters.
func formatText(text string) string {
	if text == "" {
		return "-"
	}

	var firstLine string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			firstLine = trimmed
			break
		}
	}

	if firstLine == "" {
		return "-"
	}

	if len(firstLine) > 40 {
		return firstLine[:37] + "..."
	}

	return firstLine
}

// formatTimestamp renders a Unix millisecond timestamp as relative age.
func formatTimestamp(timestampMs int64) string {
	if timestampMs == 0 {
		return "-"
	}

	t := time.Unix(timestampMs/1000, (timestampMs%1000)*1000000)
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}
