// Package docket provides type-safe record definitions and the Redis store
// for the emend proposal docket. The docket is the shared state that all
// emend components (orchestrator, ingest, CLI) read and write through
// well-defined structures stored in Redis.
//
// All Redis keys and channels are namespaced by instance name so multiple
// emend instances can safely coexist on a single Redis server.
package docket

import (
	"fmt"

	"github.com/google/uuid"
)

// Section is an immutable slice of standard text produced by ingestion.
// Sections are read-only to the core pipeline; the ingestion step owns them.
type Section struct {
	StandardID   string  `json:"standard_id"`    // Identifier of the source standard (e.g. "FAS-4")
	SectionID    string  `json:"section_id"`     // Section number within the standard (e.g. "2.1")
	Title        string  `json:"title"`          // Section heading
	Content      string  `json:"content"`        // Plain text body
	Issues       []Issue `json:"issues"`         // Flagged problems driving proposal generation
	IngestedAtMs int64   `json:"ingested_at_ms"` // Unix timestamp in milliseconds when ingested
}

// Issue is a flagged problem in a section's text.
type Issue struct {
	Type        string   `json:"type"`        // e.g. "ambiguity", "missing_definition"
	Description string   `json:"description"` // Human-readable explanation
	Severity    Severity `json:"severity"`    // low, medium or high
}

// Severity grades how strongly an issue should drive enhancement.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Proposal is a candidate rewording of a section's text with rationale.
// Proposals are never deleted; a superseding edit is a new Proposal.
// The orchestrator is the sole writer of Status after creation.
type Proposal struct {
	ID           string         `json:"id"`            // UUID
	StandardID   string         `json:"standard_id"`   // Standard this proposal targets
	SectionID    string         `json:"section_id"`    // Section within the standard
	Category     Category       `json:"category"`      // Kind of enhancement
	CurrentText  string         `json:"current_text"`  // Text as it stands
	ProposedText string         `json:"proposed_text"` // Replacement text (must differ from current)
	Rationale    string         `json:"rationale"`     // Why the change improves the standard
	Status       ProposalStatus `json:"status"`        // Lifecycle state
	CreatedAtMs  int64          `json:"created_at_ms"` // Unix timestamp in milliseconds
}

// ProposalStatus is the lifecycle state of a proposal.
// Transitions move only forward: drafted → under_review → terminal, with a
// single recovery edge under_review → drafted when a review round fails to
// reach quorum. Terminal statuses are immutable.
type ProposalStatus string

const (
	// StatusDrafted is the initial state after generation, awaiting review dispatch.
	StatusDrafted ProposalStatus = "drafted"

	// StatusUnderReview indicates the proposal has been dispatched to the reviewer pool.
	StatusUnderReview ProposalStatus = "under_review"

	// StatusApproved indicates consensus accepted the proposal as written.
	StatusApproved ProposalStatus = "approved"

	// StatusApprovedWithModifications indicates consensus accepted the proposal
	// subject to the modifications collected in reviewer feedback.
	StatusApprovedWithModifications ProposalStatus = "approved_with_modifications"

	// StatusRejected indicates consensus declined the proposal.
	StatusRejected ProposalStatus = "rejected"
)

// Category classifies the kind of enhancement a proposal makes.
type Category string

const (
	CategoryDefinition           Category = "definition"
	CategoryAccountingTreatment  Category = "accounting_treatment"
	CategoryTransactionStructure Category = "transaction_structure"
	CategoryAmbiguityResolution  Category = "ambiguity_resolution"
	CategoryNewGuidance          Category = "new_guidance"
)

// Recommendation is a single reviewer's verdict on a proposal.
type Recommendation string

const (
	RecommendApprove Recommendation = "approve"
	RecommendRevise  Recommendation = "revise"
	RecommendReject  Recommendation = "reject"
)

// Criterion names one scored dimension of a reviewer evaluation.
type Criterion string

const (
	CriterionCompliance   Criterion = "compliance"
	CriterionAccuracy     Criterion = "accuracy"
	CriterionClarity      Criterion = "clarity"
	CriterionPracticality Criterion = "practicality"
	CriterionConsistency  Criterion = "consistency"
)

// CriterionWeights are the reference weights used to derive an overall score
// from criterion scores when a reviewer does not supply one.
var CriterionWeights = map[Criterion]float64{
	CriterionCompliance:   0.35,
	CriterionAccuracy:     0.25,
	CriterionClarity:      0.20,
	CriterionPracticality: 0.15,
	CriterionConsistency:  0.05,
}

// WeightedOverall derives an overall score from criterion scores using the
// reference weights, normalised over the criteria actually present.
// Returns 0 for an empty score map.
func WeightedOverall(scores map[Criterion]float64) float64 {
	var sum, weightSum float64
	for criterion, score := range scores {
		weight, ok := CriterionWeights[criterion]
		if !ok {
			continue
		}
		sum += score * weight
		weightSum += weight
	}
	if weightSum == 0 {
		return 0
	}
	return sum / weightSum
}

// Evaluation is one reviewer's scored opinion on a proposal.
// Evaluations are immutable once produced; a requeued proposal is
// re-reviewed in a fresh round with fresh evaluations.
type Evaluation struct {
	ID              string                `json:"id"`               // UUID
	ReviewerID      string                `json:"reviewer_id"`      // e.g. "reviewer-2"
	ProposalID      string                `json:"proposal_id"`      // UUID of the evaluated proposal
	CriterionScores map[Criterion]float64 `json:"criterion_scores"` // Per-criterion scores in [0,10]
	OverallScore    float64               `json:"overall_score"`    // Reviewer's overall score in [0,10]
	Recommendation  Recommendation        `json:"recommendation"`   // approve, revise or reject
	Feedback        string                `json:"feedback"`         // Free-text reviewer commentary
	CreatedAtMs     int64                 `json:"created_at_ms"`    // Unix timestamp in milliseconds
}

// ConsensusDetail records how a validation verdict was reached.
type ConsensusDetail struct {
	MeanScore       float64               `json:"mean_score"`       // Mean of reviewer overall scores
	ScoreSpread     float64               `json:"score_spread"`     // Max minus min reviewer overall score
	CriterionMeans  map[Criterion]float64 `json:"criterion_means"`  // Per-criterion averages for display/audit
	ReviewerCount   int                   `json:"reviewer_count"`   // Evaluations that reached the reduction
	UnanimousReject bool                  `json:"unanimous_reject"` // Every reviewer recommended reject
	NeedsEscalation bool                  `json:"needs_escalation"` // Score spread exceeded the escalation threshold
}

// Validation is the consensus result derived from a proposal's evaluations.
// At most one validation exists per proposal; it is immutable once created.
type Validation struct {
	ID           string          `json:"id"`               // UUID
	ProposalID   string          `json:"proposal_id"`      // UUID of the validated proposal
	OverallScore float64         `json:"overall_score"`    // Consensus overall score in [0,10]
	Status       ProposalStatus  `json:"status"`           // Terminal status the consensus mapped to
	Evaluations  []Evaluation    `json:"evaluations"`      // Evaluations of the finalizing round
	Consensus    ConsensusDetail `json:"consensus_detail"` // How the verdict was reached
	CreatedAtMs  int64           `json:"created_at_ms"`    // Unix timestamp in milliseconds
}

// Validate checks if the Section has valid field values.
func (s *Section) Validate() error {
	if s.StandardID == "" {
		return fmt.Errorf("standard_id cannot be empty")
	}

	if s.SectionID == "" {
		return fmt.Errorf("section_id cannot be empty")
	}

	if s.Content == "" {
		return fmt.Errorf("section content cannot be empty")
	}

	for i, issue := range s.Issues {
		if err := issue.Validate(); err != nil {
			return fmt.Errorf("invalid issue at index %d: %w", i, err)
		}
	}

	return nil
}

// Validate checks if the Issue has valid field values.
func (i *Issue) Validate() error {
	if i.Type == "" {
		return fmt.Errorf("issue type cannot be empty")
	}

	if err := i.Severity.Validate(); err != nil {
		return fmt.Errorf("invalid severity: %w", err)
	}

	return nil
}

// Validate checks if the Severity is a valid enum value.
func (s Severity) Validate() error {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return nil
	default:
		return fmt.Errorf("unknown severity: %q", s)
	}
}

// Validate checks if the Proposal has valid field values.
// Enforces the core invariant that a proposal must actually change the text.
func (p *Proposal) Validate() error {
	if !isValidUUID(p.ID) {
		return fmt.Errorf("invalid proposal ID: not a valid UUID")
	}

	if p.StandardID == "" {
		return fmt.Errorf("standard_id cannot be empty")
	}

	if p.SectionID == "" {
		return fmt.Errorf("section_id cannot be empty")
	}

	if err := p.Category.Validate(); err != nil {
		return fmt.Errorf("invalid category: %w", err)
	}

	if err := p.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}

	if p.ProposedText == "" {
		return fmt.Errorf("proposed_text cannot be empty")
	}

	if p.ProposedText == p.CurrentText {
		return fmt.Errorf("proposed_text must differ from current_text")
	}

	return nil
}

// Validate checks if the ProposalStatus is a valid enum value.
func (ps ProposalStatus) Validate() error {
	switch ps {
	case StatusDrafted, StatusUnderReview, StatusApproved,
		StatusApprovedWithModifications, StatusRejected:
		return nil
	default:
		return fmt.Errorf("unknown proposal status: %q", ps)
	}
}

// Terminal reports whether the status is one of the three immutable outcomes.
func (ps ProposalStatus) Terminal() bool {
	switch ps {
	case StatusApproved, StatusApprovedWithModifications, StatusRejected:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the directed edge ps → next exists in the
// proposal lifecycle. Terminal statuses have no outgoing edges.
func (ps ProposalStatus) CanTransitionTo(next ProposalStatus) bool {
	switch ps {
	case StatusDrafted:
		return next == StatusUnderReview
	case StatusUnderReview:
		// Terminal outcomes, plus the recovery edge back to drafted when a
		// review round fails to reach quorum.
		return next.Terminal() || next == StatusDrafted
	default:
		return false
	}
}

// Validate checks if the Category is a valid enum value.
func (c Category) Validate() error {
	switch c {
	case CategoryDefinition, CategoryAccountingTreatment, CategoryTransactionStructure,
		CategoryAmbiguityResolution, CategoryNewGuidance:
		return nil
	default:
		return fmt.Errorf("unknown category: %q", c)
	}
}

// Validate checks if the Recommendation is a valid enum value.
func (r Recommendation) Validate() error {
	switch r {
	case RecommendApprove, RecommendRevise, RecommendReject:
		return nil
	default:
		return fmt.Errorf("unknown recommendation: %q", r)
	}
}

// Validate checks if the Evaluation has valid field values.
func (e *Evaluation) Validate() error {
	if !isValidUUID(e.ID) {
		return fmt.Errorf("invalid evaluation ID: not a valid UUID")
	}

	if e.ReviewerID == "" {
		return fmt.Errorf("reviewer_id cannot be empty")
	}

	if !isValidUUID(e.ProposalID) {
		return fmt.Errorf("invalid proposal ID: not a valid UUID")
	}

	for criterion, score := range e.CriterionScores {
		if score < 0 || score > 10 {
			return fmt.Errorf("criterion %q score out of range [0,10]: %v", criterion, score)
		}
	}

	if e.OverallScore < 0 || e.OverallScore > 10 {
		return fmt.Errorf("overall_score out of range [0,10]: %v", e.OverallScore)
	}

	if err := e.Recommendation.Validate(); err != nil {
		return fmt.Errorf("invalid recommendation: %w", err)
	}

	return nil
}

// Validate checks if the Validation has valid field values.
func (v *Validation) Validate() error {
	if !isValidUUID(v.ID) {
		return fmt.Errorf("invalid validation ID: not a valid UUID")
	}

	if !isValidUUID(v.ProposalID) {
		return fmt.Errorf("invalid proposal ID: not a valid UUID")
	}

	if !v.Status.Terminal() {
		return fmt.Errorf("validation status must be terminal, got %q", v.Status)
	}

	if v.OverallScore < 0 || v.OverallScore > 10 {
		return fmt.Errorf("overall_score out of range [0,10]: %v", v.OverallScore)
	}

	if len(v.Evaluations) == 0 {
		return fmt.Errorf("validation must embed at least one evaluation")
	}

	for i := range v.Evaluations {
		if err := v.Evaluations[i].Validate(); err != nil {
			return fmt.Errorf("invalid evaluation at index %d: %w", i, err)
		}
	}

	return nil
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
