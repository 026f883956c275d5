// Package audit implements the tamper-evident audit log: an append-only,
// hash-chained sequence of records covering every pipeline state change.
//
// Each record carries a SHA-256 hash over its own header and payload plus
// the hash of its predecessor, so any retroactive edit to a stored record
// breaks the chain from that point forward and is detectable by Verify.
// The first record chains to a fixed all-zero genesis hash.
//
// Appends are ordered ahead of the state changes they describe: a crash
// after the append but before the store update leaves an audit entry with
// no matching state change, which is detectable and recoverable. The
// reverse (a state change with no audit entry) can never occur.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// GenesisHash anchors the chain: the first record's prev_hash.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Event types recorded by the pipeline.
const (
	EventSectionIngested     = "section_ingested"
	EventProposalDrafted     = "proposal_drafted"
	EventGenerationFailed    = "generation_failed"
	EventReviewStarted       = "review_started"
	EventValidationFinalized = "validation_finalized"
	EventQuorumNotMet        = "quorum_not_met"
	EventRecoveryRequeued    = "recovery_requeued"
)

// Entry is the caller-supplied portion of an audit record. The log assigns
// seq, timestamp and the hash chain fields on append. Payload is marshaled
// to canonical JSON (encoding/json sorts map keys) before hashing.
type Entry struct {
	Actor     string
	EventType string
	SubjectID string
	Payload   any
}

// Validate checks that the entry is complete enough to record.
func (e *Entry) Validate() error {
	if e.Actor == "" {
		return fmt.Errorf("actor cannot be empty")
	}
	if e.EventType == "" {
		return fmt.Errorf("event_type cannot be empty")
	}
	if e.SubjectID == "" {
		return fmt.Errorf("subject_id cannot be empty")
	}
	return nil
}

// Record is one link in the audit chain.
type Record struct {
	Seq         int64           `json:"seq"`
	TimestampMs int64           `json:"timestamp_ms"`
	Actor       string          `json:"actor"`
	EventType   string          `json:"event_type"`
	SubjectID   string          `json:"subject_id"`
	Payload     json.RawMessage `json:"payload"`
	PayloadHash string          `json:"payload_hash"`
	PrevHash    string          `json:"prev_hash"`
	Hash        string          `json:"hash"`
}

// Log is the audit trail contract. Implementations must make Append atomic
// with respect to concurrent appenders and must never reuse or skip a seq.
type Log interface {
	// Append records an entry and returns its assigned seq.
	// Fails with WriteError if the backing store is unreachable; the caller
	// must treat the transition being recorded as not having happened.
	Append(ctx context.Context, entry Entry) (int64, error)

	// Length returns the number of records in the log.
	Length(ctx context.Context) (int64, error)

	// ListRange returns records with seq in [from, to] inclusive.
	ListRange(ctx context.Context, from, to int64) ([]Record, error)

	// List returns all records matching the filter, in seq order.
	List(ctx context.Context, f Filter) ([]Record, error)

	// Verify recomputes hashes over seq range [from, to] and reports the
	// first broken link as a ChainIntegrityError. Zero bounds default to
	// the full log.
	Verify(ctx context.Context, from, to int64) error
}

// WriteError indicates an append could not be made durable. The transition
// it was recording must not be considered committed.
type WriteError struct {
	Cause error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("audit append failed: %v", e.Cause)
}

func (e *WriteError) Unwrap() error {
	return e.Cause
}

// IsWriteError returns true if the error is an audit WriteError.
func IsWriteError(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}

// ChainIntegrityError reports the first record at which verification
// failed.
type ChainIntegrityError struct {
	Seq    int64
	Reason string
}

func (e *ChainIntegrityError) Error() string {
	return fmt.Sprintf("audit chain broken at seq %d: %s", e.Seq, e.Reason)
}

// payloadHash returns the hex SHA-256 of the canonical JSON payload bytes.
func payloadHash(payload json.RawMessage) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// chainHash computes the record hash over the header fields, the payload
// hash and the previous record's hash. The preimage is canonical JSON with
// a fixed field order, so an independent verifier can reproduce it.
func chainHash(r *Record) string {
	preimage, _ := json.Marshal(struct {
		Seq         int64  `json:"seq"`
		TimestampMs int64  `json:"timestamp_ms"`
		Actor       string `json:"actor"`
		EventType   string `json:"event_type"`
		SubjectID   string `json:"subject_id"`
		PayloadHash string `json:"payload_hash"`
		PrevHash    string `json:"prev_hash"`
	}{r.Seq, r.TimestampMs, r.Actor, r.EventType, r.SubjectID, r.PayloadHash, r.PrevHash})

	sum := sha256.Sum256(preimage)
	return hex.EncodeToString(sum[:])
}

// verifyChain checks a contiguous run of records starting at firstSeq,
// whose first record must chain to prevHash. Reports the first failure.
func verifyChain(records []Record, firstSeq int64, prevHash string) error {
	for i := range records {
		r := &records[i]
		seq := firstSeq + int64(i)

		if r.Seq != seq {
			return &ChainIntegrityError{Seq: seq, Reason: fmt.Sprintf("expected seq %d, found %d", seq, r.Seq)}
		}
		if r.PrevHash != prevHash {
			return &ChainIntegrityError{Seq: seq, Reason: "prev_hash does not match previous record"}
		}
		if payloadHash(r.Payload) != r.PayloadHash {
			return &ChainIntegrityError{Seq: seq, Reason: "payload does not match payload_hash"}
		}
		if chainHash(r) != r.Hash {
			return &ChainIntegrityError{Seq: seq, Reason: "record does not match its hash"}
		}

		prevHash = r.Hash
	}
	return nil
}
