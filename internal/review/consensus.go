// Package review obtains independent reviewer evaluations for a proposal
// and reduces them into a single validation verdict. The pool dispatches
// concurrent evaluation capability calls; the consensus reduction is pure
// and deterministic over the evaluations that survive the round.
package review

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/emendhq/emend/pkg/docket"
)

// Thresholds are the consensus cutoffs. Scores are on the [0,10] scale.
type Thresholds struct {
	Approve          float64 // mean >= Approve maps to approved
	Revise           float64 // Revise <= mean < Approve maps to approved_with_modifications
	EscalationSpread float64 // spread above this flags needs_escalation
}

// DefaultThresholds returns the reference cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Approve:          8.0,
		Revise:           5.0,
		EscalationSpread: 4.0,
	}
}

// Reduce combines a completed round's evaluations into the proposal's
// validation record. The verdict is deterministic for a given set of
// evaluations:
//
//  1. Consensus score is the mean of reviewer overall scores, rounded to
//     two decimals. The status mapping runs on the rounded score so the
//     persisted record and its status always agree.
//  2. Unanimous reject recommendations veto the score mapping.
//  3. A score spread (max minus min) above the escalation threshold flags
//     the validation for human escalation without blocking the verdict.
//
// Callers enforce quorum before reducing; an empty round is an error here.
func Reduce(proposalID string, evals []docket.Evaluation, th Thresholds) (*docket.Validation, error) {
	if len(evals) == 0 {
		return nil, fmt.Errorf("cannot reduce an empty evaluation round")
	}

	min, max := evals[0].OverallScore, evals[0].OverallScore
	var sum float64
	unanimousReject := true
	for _, eval := range evals {
		sum += eval.OverallScore
		if eval.OverallScore < min {
			min = eval.OverallScore
		}
		if eval.OverallScore > max {
			max = eval.OverallScore
		}
		if eval.Recommendation != docket.RecommendReject {
			unanimousReject = false
		}
	}

	score := round2(sum / float64(len(evals)))
	spread := round2(max - min)

	var status docket.ProposalStatus
	switch {
	case unanimousReject:
		status = docket.StatusRejected
	case score >= th.Approve:
		status = docket.StatusApproved
	case score >= th.Revise:
		status = docket.StatusApprovedWithModifications
	default:
		status = docket.StatusRejected
	}

	return &docket.Validation{
		ID:           uuid.New().String(),
		ProposalID:   proposalID,
		OverallScore: score,
		Status:       status,
		Evaluations:  evals,
		Consensus: docket.ConsensusDetail{
			MeanScore:       score,
			ScoreSpread:     spread,
			CriterionMeans:  criterionMeans(evals),
			ReviewerCount:   len(evals),
			UnanimousReject: unanimousReject,
			NeedsEscalation: spread > th.EscalationSpread,
		},
		CreatedAtMs: time.Now().UnixMilli(),
	}, nil
}

// criterionMeans averages each criterion over the evaluations that scored
// it. Criteria nobody scored are absent from the result.
func criterionMeans(evals []docket.Evaluation) map[docket.Criterion]float64 {
	sums := make(map[docket.Criterion]float64)
	counts := make(map[docket.Criterion]int)
	for _, eval := range evals {
		for criterion, score := range eval.CriterionScores {
			sums[criterion] += score
			counts[criterion]++
		}
	}

	means := make(map[docket.Criterion]float64, len(sums))
	for criterion, sum := range sums {
		means[criterion] = round2(sum / float64(counts[criterion]))
	}
	return means
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
