package audit

import "path/filepath"

// Filter defines selection criteria for audit records.
// All filters are ANDed together - a record must match ALL criteria to pass.
type Filter struct {
	SinceTimestampMs int64  // Unix timestamp in milliseconds, 0 = no filter
	UntilTimestampMs int64  // Unix timestamp in milliseconds, 0 = no filter
	EventTypeGlob    string // Glob pattern for event type, empty = no filter
	Actor            string // Exact match for actor, empty = no filter
	SubjectID        string // Exact match for subject_id, empty = no filter
}

// Matches returns true if the record matches all filter criteria.
// Empty/zero criteria values are treated as "match all" for that criterion.
func (f *Filter) Matches(r *Record) bool {
	// Time filtering - check TimestampMs field
	if f.SinceTimestampMs > 0 && r.TimestampMs < f.SinceTimestampMs {
		return false
	}
	if f.UntilTimestampMs > 0 && r.TimestampMs > f.UntilTimestampMs {
		return false
	}

	// Event type filtering - glob pattern matching
	if f.EventTypeGlob != "" {
		matched, err := filepath.Match(f.EventTypeGlob, r.EventType)
		if err != nil || !matched {
			return false
		}
	}

	if f.Actor != "" && r.Actor != f.Actor {
		return false
	}

	if f.SubjectID != "" && r.SubjectID != f.SubjectID {
		return false
	}

	return true
}

// HasFilters returns true if any filters are active.
func (f *Filter) HasFilters() bool {
	return f.SinceTimestampMs > 0 ||
		f.UntilTimestampMs > 0 ||
		f.EventTypeGlob != "" ||
		f.Actor != "" ||
		f.SubjectID != ""
}
