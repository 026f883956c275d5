// Package docket provides type-safe record definitions and the Redis store
// for the emend proposal docket.
//
// # Overview
//
// The docket is the shared state that emend components (orchestrator,
// ingestion, CLI) read and write through well-defined structures stored in
// Redis. It holds the full proposal lifecycle: ingested sections, drafted
// proposals, reviewer evaluations and consensus validations.
//
// # Core Concepts
//
// Sections are immutable slices of standard text produced by ingestion,
// each carrying the issues that were flagged in it. They are read-only to
// the pipeline.
//
// Proposals are candidate rewordings of a section with rationale. A proposal
// moves drafted → under_review → {approved, approved_with_modifications,
// rejected}, with a single recovery edge back to drafted when a review round
// fails to reach quorum. The orchestrator is the sole writer of status, and
// it writes it only through UpdateProposalStatus, a conditional atomic
// update that makes duplicate transition attempts observable as
// ConflictError instead of double-applying.
//
// Evaluations are individual reviewer verdicts; Validations are the
// consensus result derived from them. Both are immutable once created, and
// at most one validation can ever exist per proposal (enforced by keying
// validations on the proposal ID).
//
// # Multi-Instance Support
//
// All Redis keys and Pub/Sub channels are namespaced by instance name so
// multiple emend instances can safely coexist on a single Redis server.
//
// # Redis Schema
//
// Keys follow the pattern: emend:{instance_name}:{entity}:{id}
//
//	Sections:    emend:{instance_name}:section:{standard_id}:{section_id}
//	Proposals:   emend:{instance_name}:proposal:{proposal_id}
//	Evaluations: emend:{instance_name}:evaluation:{evaluation_id}
//	Eval index:  emend:{instance_name}:proposal_evaluations:{proposal_id}
//	Validations: emend:{instance_name}:validation:{proposal_id}
//
// Pub/Sub channels: emend:{instance_name}:events:{topic}
//
// # Design Principles
//
//   - Type safety: every record validates before it is written
//   - Immutability: sections, evaluations and validations never change;
//     proposals change only their status, and only conditionally
//   - Isolation: instance namespacing prevents cross-instance interference
//   - No hidden coordination: the store exposes atomic primitives and the
//     orchestrator owns sequencing
package docket
