package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/emendhq/emend/internal/audit"
	"github.com/emendhq/emend/pkg/docket"
)

// RecoverState reconciles persisted proposal state after a restart.
// It is called during startup, after the bus subscriptions are in place, to:
//  1. Finish terminal transitions for under_review proposals whose
//     validation was persisted before the crash
//  2. Requeue under_review proposals with no validation back to drafted
//  3. Re-announce every drafted proposal so review rounds restart
//
// Requeued proposals become drafted before step 3 runs, so a single pass
// re-announces them too.
func (e *Engine) RecoverState(ctx context.Context) error {
	log.Printf("[Orchestrator] Starting state recovery...")
	startTime := time.Now()

	underReview, err := e.store.ListProposals(ctx, docket.ProposalFilter{Status: docket.StatusUnderReview})
	if err != nil {
		return fmt.Errorf("failed to scan for under_review proposals: %w", err)
	}

	log.Printf("[Orchestrator] Found %d under_review proposals to recover", len(underReview))

	finalizedCount := 0
	requeuedCount := 0

	for _, proposal := range underReview {
		validation, err := e.store.GetValidation(ctx, proposal.ID)
		switch {
		case err == nil:
			if e.recoverFinalized(ctx, proposal, validation) {
				finalizedCount++
			}
		case docket.IsNotFound(err):
			if e.recoverInterrupted(ctx, proposal) {
				requeuedCount++
			}
		default:
			log.Printf("[Orchestrator] Warning: failed to load validation for proposal %s: %v", proposal.ID, err)
			// Left under_review; the next recovery pass retries it.
		}
	}

	drafted, err := e.store.ListProposals(ctx, docket.ProposalFilter{Status: docket.StatusDrafted})
	if err != nil {
		return fmt.Errorf("failed to scan for drafted proposals: %w", err)
	}

	announcedCount := 0
	for _, proposal := range drafted {
		if err := e.bus.Publish(ctx, docket.TopicProposalCreated, docket.ProposalCreatedEvent{
			ProposalID: proposal.ID,
			StandardID: proposal.StandardID,
			SectionID:  proposal.SectionID,
		}); err != nil {
			log.Printf("[Orchestrator] Warning: failed to re-announce proposal %s: %v", proposal.ID, err)
			continue
		}
		announcedCount++
	}

	duration := time.Since(startTime)
	e.logEvent("recovery_complete", map[string]interface{}{
		"proposals_finalized": finalizedCount,
		"proposals_requeued":  requeuedCount,
		"proposals_announced": announcedCount,
		"duration_ms":         duration.Milliseconds(),
	})

	log.Printf("[Orchestrator] State recovery complete: %d finalized, %d requeued, %d announced (duration: %v)",
		finalizedCount, requeuedCount, announcedCount, duration.Round(time.Millisecond))

	return nil
}

// recoverFinalized completes the terminal transition for a proposal whose
// validation outlived the crash. The validation_finalized audit entry was
// written before the validation was stored, so no new entry is appended;
// only the status update and the announcement are replayed.
func (e *Engine) recoverFinalized(ctx context.Context, proposal *docket.Proposal, validation *docket.Validation) bool {
	if err := e.store.UpdateProposalStatus(ctx, proposal.ID, docket.StatusUnderReview, validation.Status); err != nil {
		if docket.IsConflict(err) {
			log.Printf("[Orchestrator] Proposal %s advanced concurrently during recovery: %v", proposal.ID, err)
			return false
		}
		log.Printf("[Orchestrator] Warning: failed to finalize proposal %s during recovery: %v", proposal.ID, err)
		return false
	}

	e.metrics.validationFinalized(validation.Status)

	if err := e.bus.Publish(ctx, docket.TopicProposalValidated, docket.ProposalValidatedEvent{
		ProposalID:      proposal.ID,
		ValidationID:    validation.ID,
		Status:          validation.Status,
		OverallScore:    validation.OverallScore,
		NeedsEscalation: validation.Consensus.NeedsEscalation,
	}); err != nil {
		log.Printf("[Orchestrator] Warning: failed to publish %s for %s: %v", docket.TopicProposalValidated, proposal.ID, err)
	}

	log.Printf("[Orchestrator] Proposal %s finalized from recovered validation: %s", proposal.ID, validation.Status)
	return true
}

// recoverInterrupted requeues an under_review proposal whose round never
// produced a validation. Audit first; if the append fails the proposal
// stays under_review for the next pass.
func (e *Engine) recoverInterrupted(ctx context.Context, proposal *docket.Proposal) bool {
	if err := e.auditAppend(ctx, audit.EventRecoveryRequeued, proposal.ID, map[string]string{
		"reason": "review interrupted by restart",
	}); err != nil {
		log.Printf("[Orchestrator] Warning: %v; proposal %s stays under_review", err, proposal.ID)
		return false
	}

	if err := e.store.UpdateProposalStatus(ctx, proposal.ID, docket.StatusUnderReview, docket.StatusDrafted); err != nil {
		if docket.IsConflict(err) {
			log.Printf("[Orchestrator] Proposal %s advanced concurrently during recovery: %v", proposal.ID, err)
			return false
		}
		log.Printf("[Orchestrator] Warning: failed to requeue proposal %s during recovery: %v", proposal.ID, err)
		return false
	}

	if err := e.bus.Publish(ctx, docket.TopicProposalRequeued, docket.ProposalRequeuedEvent{
		ProposalID: proposal.ID,
		Reason:     "recovery_requeued",
	}); err != nil {
		log.Printf("[Orchestrator] Warning: failed to publish %s for %s: %v", docket.TopicProposalRequeued, proposal.ID, err)
	}

	log.Printf("[Orchestrator] Proposal %s requeued to drafted after interrupted review", proposal.ID)
	return true
}
