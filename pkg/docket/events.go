package docket

// Event payloads carried on the bus topics. Payloads are JSON-encoded by the
// publisher and decoded by each handler; full records are embedded where a
// consumer needs them without a store round trip.

// SectionIngestedEvent is published on TopicSectionIngested by the ingestion
// step. Carries the full section so the orchestrator can generate without
// re-reading the store.
type SectionIngestedEvent struct {
	Section Section `json:"section"`
}

// ProposalCreatedEvent is published on TopicProposalCreated after a drafted
// proposal has been persisted and audited.
type ProposalCreatedEvent struct {
	ProposalID string `json:"proposal_id"`
	StandardID string `json:"standard_id"`
	SectionID  string `json:"section_id"`
}

// ProposalValidatedEvent is published on TopicProposalValidated once a
// validation verdict is finalized and the proposal has reached its terminal
// status.
type ProposalValidatedEvent struct {
	ProposalID      string         `json:"proposal_id"`
	ValidationID    string         `json:"validation_id"`
	Status          ProposalStatus `json:"status"`
	OverallScore    float64        `json:"overall_score"`
	NeedsEscalation bool           `json:"needs_escalation"`
}

// ProposalRequeuedEvent is published on TopicProposalRequeued when a review
// round fails to reach quorum and the proposal returns to drafted.
type ProposalRequeuedEvent struct {
	ProposalID string `json:"proposal_id"`
	Reason     string `json:"reason"`
}
