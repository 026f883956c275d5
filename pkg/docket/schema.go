package docket

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name to
// enable multiple emend instances to safely coexist on a single Redis server.
//
// Key pattern: emend:{instance_name}:{entity}:{id}
// Channel pattern: emend:{instance_name}:events:{topic}

// Bus topics carried on the event bus. Topic names are logical; transports
// map them to their own addressing (the Redis transport prefixes them with
// the instance namespace via EventsChannel).
const (
	// TopicSectionIngested announces a newly ingested section.
	TopicSectionIngested = "section_ingested"

	// TopicProposalCreated announces a freshly drafted proposal.
	TopicProposalCreated = "proposal_created"

	// TopicProposalValidated announces a finalized validation verdict.
	TopicProposalValidated = "proposal_validated"

	// TopicProposalRequeued announces a proposal returned to drafted after a
	// failed review round.
	TopicProposalRequeued = "proposal_requeued"
)

// SectionKey returns the Redis key for a section.
// Pattern: emend:{instance_name}:section:{standard_id}:{section_id}
func SectionKey(instanceName, standardID, sectionID string) string {
	return fmt.Sprintf("emend:%s:section:%s:%s", instanceName, standardID, sectionID)
}

// ProposalKey returns the Redis key for a proposal.
// Pattern: emend:{instance_name}:proposal:{proposal_id}
func ProposalKey(instanceName, proposalID string) string {
	return fmt.Sprintf("emend:%s:proposal:%s", instanceName, proposalID)
}

// ProposalScanPattern returns the SCAN match pattern for proposals whose ID
// starts with the given prefix. An empty prefix matches all proposals.
func ProposalScanPattern(instanceName, idPrefix string) string {
	return fmt.Sprintf("emend:%s:proposal:%s*", instanceName, idPrefix)
}

// EvaluationKey returns the Redis key for an evaluation.
// Pattern: emend:{instance_name}:evaluation:{evaluation_id}
func EvaluationKey(instanceName, evaluationID string) string {
	return fmt.Sprintf("emend:%s:evaluation:%s", instanceName, evaluationID)
}

// ProposalEvaluationsKey returns the Redis key for the set of evaluation IDs
// recorded against a proposal. Lives outside the proposal:* namespace so
// proposal SCANs only ever see proposal hashes.
// Pattern: emend:{instance_name}:proposal_evaluations:{proposal_id}
func ProposalEvaluationsKey(instanceName, proposalID string) string {
	return fmt.Sprintf("emend:%s:proposal_evaluations:%s", instanceName, proposalID)
}

// ValidationKey returns the Redis key for a proposal's validation.
// Keyed by proposal ID so at most one validation can exist per proposal.
// Pattern: emend:{instance_name}:validation:{proposal_id}
func ValidationKey(instanceName, proposalID string) string {
	return fmt.Sprintf("emend:%s:validation:%s", instanceName, proposalID)
}

// EventsChannel returns the Pub/Sub channel name for a bus topic.
// Pattern: emend:{instance_name}:events:{topic}
func EventsChannel(instanceName, topic string) string {
	return fmt.Sprintf("emend:%s:events:%s", instanceName, topic)
}
