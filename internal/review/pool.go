package review

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emendhq/emend/internal/capability"
	"github.com/emendhq/emend/pkg/docket"
)

// Config sets the pool's dispatch parameters and consensus thresholds.
type Config struct {
	Reviewers  int           // concurrent evaluation invocations per round
	Quorum     int           // minimum successful evaluations to finalize
	Attempts   int           // retry budget per reviewer invocation
	Timeout    time.Duration // per-reviewer invocation bound
	Thresholds Thresholds
}

// DefaultConfig returns the reference pool parameters.
func DefaultConfig() Config {
	return Config{
		Reviewers:  3,
		Quorum:     2,
		Attempts:   2,
		Timeout:    60 * time.Second,
		Thresholds: DefaultThresholds(),
	}
}

// QuorumNotMetError indicates too few reviewers returned a usable
// evaluation to finalize a validation. The round's partial evaluations are
// discarded; the proposal is expected to be requeued for a fresh round.
type QuorumNotMetError struct {
	ProposalID string
	Succeeded  int
	Required   int
}

func (e *QuorumNotMetError) Error() string {
	return fmt.Sprintf("quorum not met for proposal %s: %d of %d required evaluations succeeded",
		e.ProposalID, e.Succeeded, e.Required)
}

// IsQuorumNotMet checks if an error is a QuorumNotMetError.
func IsQuorumNotMet(err error) bool {
	_, ok := err.(*QuorumNotMetError)
	return ok
}

// Pool dispatches independent reviewer invocations and reduces their
// evaluations to one validation verdict. Safe for concurrent use across
// proposals.
type Pool struct {
	invoker capability.Invoker
	cfg     Config
	retry   capability.RetryConfig
}

// NewPool creates a reviewer pool. Non-positive config values fall back to
// the reference defaults; a quorum above the reviewer count is clamped to
// it so a round can always succeed in principle.
func NewPool(invoker capability.Invoker, cfg Config) *Pool {
	defaults := DefaultConfig()
	if cfg.Reviewers < 1 {
		cfg.Reviewers = defaults.Reviewers
	}
	if cfg.Quorum < 1 {
		cfg.Quorum = defaults.Quorum
	}
	if cfg.Quorum > cfg.Reviewers {
		cfg.Quorum = cfg.Reviewers
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = defaults.Attempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = defaults.Thresholds
	}

	retry := capability.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Attempts

	return &Pool{
		invoker: invoker,
		cfg:     cfg,
		retry:   retry,
	}
}

// Review runs one review round for a proposal: N concurrent evaluation
// invocations, each with its own timeout and retry budget, then quorum
// check and consensus reduction. Reviewers that time out, exhaust retries
// or return malformed verdicts are excluded from the round.
//
// Returns the validation record ready to persist (evaluations embedded),
// or QuorumNotMetError when fewer than quorum evaluations survived.
func (p *Pool) Review(ctx context.Context, proposal *docket.Proposal) (*docket.Validation, error) {
	if err := proposal.Validate(); err != nil {
		return nil, fmt.Errorf("invalid proposal: %w", err)
	}

	results := make([]*docket.Evaluation, p.cfg.Reviewers)
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Reviewers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			reviewerID := fmt.Sprintf("reviewer-%d", idx+1)
			eval, err := p.evaluateOne(ctx, proposal, reviewerID)
			if err != nil {
				log.Printf("[ReviewerPool] Excluding %s for proposal %s: %v", reviewerID, proposal.ID, err)
				return
			}
			results[idx] = eval
		}(i)
	}
	wg.Wait()

	evals := make([]docket.Evaluation, 0, p.cfg.Reviewers)
	for _, eval := range results {
		if eval != nil {
			evals = append(evals, *eval)
		}
	}

	if len(evals) < p.cfg.Quorum {
		return nil, &QuorumNotMetError{
			ProposalID: proposal.ID,
			Succeeded:  len(evals),
			Required:   p.cfg.Quorum,
		}
	}

	return Reduce(proposal.ID, evals, p.cfg.Thresholds)
}

// evaluateOne runs a single reviewer invocation under its own timeout with
// bounded retries on transient capability failures.
func (p *Pool) evaluateOne(ctx context.Context, proposal *docket.Proposal, reviewerID string) (*docket.Evaluation, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	payload := capability.EvaluatePayload{
		ProposalID:   proposal.ID,
		ReviewerID:   reviewerID,
		StandardID:   proposal.StandardID,
		SectionID:    proposal.SectionID,
		CurrentText:  proposal.CurrentText,
		ProposedText: proposal.ProposedText,
		Rationale:    proposal.Rationale,
	}

	var result *capability.EvaluateResult
	err := capability.Do(ctx, p.retry, func(ctx context.Context) error {
		var invokeErr error
		result, invokeErr = p.invoker.Evaluate(ctx, payload)
		return invokeErr
	})
	if err != nil {
		return nil, err
	}

	return buildEvaluation(proposal.ID, reviewerID, result)
}

// buildEvaluation converts a capability verdict into an evaluation record,
// deriving the overall score from the criterion scores when the reviewer
// omitted one. Malformed verdicts come back as errors and exclude the
// reviewer from the round.
func buildEvaluation(proposalID, reviewerID string, result *capability.EvaluateResult) (*docket.Evaluation, error) {
	if result.OverallScore == nil && len(result.CriterionScores) == 0 {
		return nil, fmt.Errorf("verdict carries no scores")
	}

	overall := docket.WeightedOverall(result.CriterionScores)
	if result.OverallScore != nil {
		overall = *result.OverallScore
	}

	eval := &docket.Evaluation{
		ID:              uuid.New().String(),
		ReviewerID:      reviewerID,
		ProposalID:      proposalID,
		CriterionScores: result.CriterionScores,
		OverallScore:    overall,
		Recommendation:  docket.Recommendation(strings.ToLower(strings.TrimSpace(result.Recommendation))),
		Feedback:        result.Feedback,
		CreatedAtMs:     time.Now().UnixMilli(),
	}
	if err := eval.Validate(); err != nil {
		return nil, fmt.Errorf("malformed verdict: %w", err)
	}

	return eval, nil
}
