package watch

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/emendhq/emend/internal/audit"
)

// OutputFormat selects how tailed audit records are rendered.
type OutputFormat string

const (
	// OutputFormatDefault is human-readable output with timestamps and emojis.
	OutputFormatDefault OutputFormat = "default"
	// OutputFormatJSON is line-delimited JSON for programmatic processing.
	OutputFormatJSON OutputFormat = "json"
)

// formatter renders one audit record per call.
type formatter interface {
	Format(record *audit.Record) error
}

func newFormatter(format OutputFormat, w io.Writer) (formatter, error) {
	switch format {
	case OutputFormatDefault:
		return &defaultFormatter{writer: w}, nil
	case OutputFormatJSON:
		return &jsonFormatter{writer: w}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %s", format)
	}
}

// defaultFormatter writes human-readable lines with timestamps.
type defaultFormatter struct {
	writer io.Writer
}

func (f *defaultFormatter) Format(record *audit.Record) error {
	var line string
	switch record.EventType {
	case audit.EventSectionIngested:
		line = fmt.Sprintf("📥 Section ingested: section=%s", record.SubjectID)
	case audit.EventProposalDrafted:
		line = fmt.Sprintf("✨ Proposal drafted: id=%s, category=%s",
			record.SubjectID, payloadField(record, "category"))
	case audit.EventGenerationFailed:
		line = fmt.Sprintf("❌ Generation failed: section=%s, reason=%s",
			record.SubjectID, payloadField(record, "reason"))
	case audit.EventReviewStarted:
		line = fmt.Sprintf("⏳ Review started: proposal=%s", record.SubjectID)
	case audit.EventValidationFinalized:
		line = fmt.Sprintf("🏆 Validation finalized: proposal=%s, status=%s, score=%s",
			record.SubjectID, payloadField(record, "status"), payloadField(record, "overall_score"))
	case audit.EventQuorumNotMet:
		line = fmt.Sprintf("⚠️ Quorum not met: proposal=%s, reason=%s",
			record.SubjectID, payloadField(record, "reason"))
	case audit.EventRecoveryRequeued:
		line = fmt.Sprintf("🔄 Proposal requeued: proposal=%s", record.SubjectID)
	default:
		line = fmt.Sprintf("%s: subject=%s", record.EventType, record.SubjectID)
	}

	timestamp := time.UnixMilli(record.TimestampMs).Format("15:04:05")
	_, err := fmt.Fprintf(f.writer, "[%s] %s\n", timestamp, line)
	return err
}

// payloadField extracts one key from the record payload for display.
// Returns "-" when the payload cannot be decoded or the key is absent.
func payloadField(record *audit.Record, key string) string {
	var fields map[string]interface{}
	if err := json.Unmarshal(record.Payload, &fields); err != nil {
		return "-"
	}

	switch v := fields[key].(type) {
	case string:
		return v
	case float64:
		// JSON numbers unmarshal as float64
		return strconv.FormatFloat(v, 'f', 2, 64)
	case nil:
		return "-"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// jsonFormatter writes each record as one JSON line. The hash chain
// fields are preserved so the stream can be archived and re-verified.
type jsonFormatter struct {
	writer io.Writer
}

func (f *jsonFormatter) Format(record *audit.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	data = append(data, '\n')
	if _, err := f.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}
