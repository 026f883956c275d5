package docket

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Redis stores data as string-to-string maps (hashes). Complex fields like
// issue lists, score maps and embedded evaluations are JSON-encoded into
// single hash fields. This keeps scalar fields individually readable while
// allowing structured nesting.

// SectionToHash converts a Section struct to a Redis hash format.
// The issues array is JSON-encoded.
func SectionToHash(s *Section) (map[string]interface{}, error) {
	issuesJSON, err := json.Marshal(s.Issues)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal issues: %w", err)
	}

	hash := map[string]interface{}{
		"standard_id":    s.StandardID,
		"section_id":     s.SectionID,
		"title":          s.Title,
		"content":        s.Content,
		"issues":         string(issuesJSON),
		"ingested_at_ms": s.IngestedAtMs,
	}

	return hash, nil
}

// HashToSection converts a Redis hash to a Section struct.
func HashToSection(hash map[string]string) (*Section, error) {
	var issues []Issue
	if issuesJSON := hash["issues"]; issuesJSON != "" {
		if err := json.Unmarshal([]byte(issuesJSON), &issues); err != nil {
			return nil, fmt.Errorf("failed to unmarshal issues: %w", err)
		}
	}
	if issues == nil {
		issues = []Issue{}
	}

	ingestedAtMs, _ := strconv.ParseInt(hash["ingested_at_ms"], 10, 64)

	section := &Section{
		StandardID:   hash["standard_id"],
		SectionID:    hash["section_id"],
		Title:        hash["title"],
		Content:      hash["content"],
		Issues:       issues,
		IngestedAtMs: ingestedAtMs,
	}

	return section, nil
}

// ProposalToHash converts a Proposal struct to a Redis hash format.
// All proposal fields are scalar, so no JSON encoding is needed.
func ProposalToHash(p *Proposal) map[string]interface{} {
	return map[string]interface{}{
		"id":            p.ID,
		"standard_id":   p.StandardID,
		"section_id":    p.SectionID,
		"category":      string(p.Category),
		"current_text":  p.CurrentText,
		"proposed_text": p.ProposedText,
		"rationale":     p.Rationale,
		"status":        string(p.Status),
		"created_at_ms": p.CreatedAtMs,
	}
}

// HashToProposal converts a Redis hash to a Proposal struct.
func HashToProposal(hash map[string]string) (*Proposal, error) {
	if hash["id"] == "" {
		return nil, fmt.Errorf("proposal hash missing id field")
	}

	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)

	proposal := &Proposal{
		ID:           hash["id"],
		StandardID:   hash["standard_id"],
		SectionID:    hash["section_id"],
		Category:     Category(hash["category"]),
		CurrentText:  hash["current_text"],
		ProposedText: hash["proposed_text"],
		Rationale:    hash["rationale"],
		Status:       ProposalStatus(hash["status"]),
		CreatedAtMs:  createdAtMs,
	}

	return proposal, nil
}

// EvaluationToHash converts an Evaluation struct to a Redis hash format.
// The criterion score map is JSON-encoded.
func EvaluationToHash(e *Evaluation) (map[string]interface{}, error) {
	scoresJSON, err := json.Marshal(e.CriterionScores)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal criterion_scores: %w", err)
	}

	hash := map[string]interface{}{
		"id":               e.ID,
		"reviewer_id":      e.ReviewerID,
		"proposal_id":      e.ProposalID,
		"criterion_scores": string(scoresJSON),
		"overall_score":    strconv.FormatFloat(e.OverallScore, 'f', -1, 64),
		"recommendation":   string(e.Recommendation),
		"feedback":         e.Feedback,
		"created_at_ms":    e.CreatedAtMs,
	}

	return hash, nil
}

// HashToEvaluation converts a Redis hash to an Evaluation struct.
func HashToEvaluation(hash map[string]string) (*Evaluation, error) {
	var scores map[Criterion]float64
	if scoresJSON := hash["criterion_scores"]; scoresJSON != "" {
		if err := json.Unmarshal([]byte(scoresJSON), &scores); err != nil {
			return nil, fmt.Errorf("failed to unmarshal criterion_scores: %w", err)
		}
	}
	if scores == nil {
		scores = map[Criterion]float64{}
	}

	overallScore, err := strconv.ParseFloat(hash["overall_score"], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid overall_score field: %w", err)
	}

	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)

	evaluation := &Evaluation{
		ID:              hash["id"],
		ReviewerID:      hash["reviewer_id"],
		ProposalID:      hash["proposal_id"],
		CriterionScores: scores,
		OverallScore:    overallScore,
		Recommendation:  Recommendation(hash["recommendation"]),
		Feedback:        hash["feedback"],
		CreatedAtMs:     createdAtMs,
	}

	return evaluation, nil
}

// ValidationToHash converts a Validation struct to a Redis hash format.
// The embedded evaluations and consensus detail are JSON-encoded.
func ValidationToHash(v *Validation) (map[string]interface{}, error) {
	evaluationsJSON, err := json.Marshal(v.Evaluations)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal evaluations: %w", err)
	}

	consensusJSON, err := json.Marshal(v.Consensus)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal consensus_detail: %w", err)
	}

	hash := map[string]interface{}{
		"id":               v.ID,
		"proposal_id":      v.ProposalID,
		"overall_score":    strconv.FormatFloat(v.OverallScore, 'f', -1, 64),
		"status":           string(v.Status),
		"evaluations":      string(evaluationsJSON),
		"consensus_detail": string(consensusJSON),
		"created_at_ms":    v.CreatedAtMs,
	}

	return hash, nil
}

// HashToValidation converts a Redis hash to a Validation struct.
func HashToValidation(hash map[string]string) (*Validation, error) {
	var evaluations []Evaluation
	if evaluationsJSON := hash["evaluations"]; evaluationsJSON != "" {
		if err := json.Unmarshal([]byte(evaluationsJSON), &evaluations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal evaluations: %w", err)
		}
	}
	if evaluations == nil {
		evaluations = []Evaluation{}
	}

	var consensus ConsensusDetail
	if consensusJSON := hash["consensus_detail"]; consensusJSON != "" {
		if err := json.Unmarshal([]byte(consensusJSON), &consensus); err != nil {
			return nil, fmt.Errorf("failed to unmarshal consensus_detail: %w", err)
		}
	}

	overallScore, err := strconv.ParseFloat(hash["overall_score"], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid overall_score field: %w", err)
	}

	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)

	validation := &Validation{
		ID:           hash["id"],
		ProposalID:   hash["proposal_id"],
		OverallScore: overallScore,
		Status:       ProposalStatus(hash["status"]),
		Evaluations:  evaluations,
		Consensus:    consensus,
		CreatedAtMs:  createdAtMs,
	}

	return validation, nil
}
