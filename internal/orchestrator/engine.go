package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/emendhq/emend/internal/audit"
	"github.com/emendhq/emend/internal/bus"
	"github.com/emendhq/emend/internal/generate"
	"github.com/emendhq/emend/internal/review"
	"github.com/emendhq/emend/pkg/docket"
)

// actorName is the actor recorded on every audit entry the engine writes.
// The orchestrator is the only writer of proposal status.
const actorName = "orchestrator"

// defaultMaxConcurrentReviews bounds how many review rounds run at once.
const defaultMaxConcurrentReviews = 4

// Deps holds the collaborators the engine coordinates. Everything is
// constructed by the caller and injected; the engine owns none of their
// lifecycles except the health server it creates itself.
type Deps struct {
	Store     *docket.Store
	Bus       bus.Bus
	Audit     audit.Log
	Generator *generate.Generator
	Pool      *review.Pool
}

// Engine is the core orchestrator that drives proposals through their
// lifecycle. It reacts to section_ingested events by generating drafts,
// to proposal_created events by dispatching review rounds through a
// bounded worker pool, and records every transition in the audit log
// before touching the store.
type Engine struct {
	store     *docket.Store
	bus       bus.Bus
	audit     audit.Log
	generator *generate.Generator
	pool      *review.Pool

	instanceName string
	healthServer *HealthServer
	metrics      *Metrics

	reviewSlots chan struct{}
	reviews     sync.WaitGroup

	// runCtx is the context Run was started with. Review goroutines use it
	// so cancellation reaches rounds that outlive the handler that spawned
	// them.
	runCtx context.Context
}

// NewEngine creates a new orchestrator engine. maxConcurrent bounds
// simultaneous review rounds; values below 1 fall back to the default.
// healthAddr is the health server listen address ("" for the default).
func NewEngine(deps Deps, instanceName string, maxConcurrent int, healthAddr string) *Engine {
	if maxConcurrent < 1 {
		maxConcurrent = defaultMaxConcurrentReviews
	}

	metrics := NewMetrics()
	return &Engine{
		store:        deps.Store,
		bus:          deps.Bus,
		audit:        deps.Audit,
		generator:    deps.Generator,
		pool:         deps.Pool,
		instanceName: instanceName,
		healthServer: NewHealthServer(deps.Store, metrics, healthAddr),
		metrics:      metrics,
		reviewSlots:  make(chan struct{}, maxConcurrent),
	}
}

// Run starts the orchestrator engine and blocks until context is cancelled.
// Subscriptions are registered before the recovery pass so the pass's own
// re-announcements are delivered back to this engine. On shutdown Run waits
// for in-flight review rounds to observe the cancellation.
func (e *Engine) Run(ctx context.Context) error {
	e.runCtx = ctx

	if err := e.healthServer.Start(); err != nil {
		return fmt.Errorf("failed to start health server: %w", err)
	}
	defer e.healthServer.Shutdown(context.Background())

	log.Printf("[Orchestrator] Starting for instance '%s'", e.instanceName)

	if err := e.bus.Subscribe(ctx, docket.TopicSectionIngested, e.handleSectionIngested); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", docket.TopicSectionIngested, err)
	}
	if err := e.bus.Subscribe(ctx, docket.TopicProposalCreated, e.handleProposalCreated); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", docket.TopicProposalCreated, err)
	}

	log.Printf("[Orchestrator] Subscribed to %s and %s", docket.TopicSectionIngested, docket.TopicProposalCreated)

	if err := e.RecoverState(ctx); err != nil {
		return fmt.Errorf("recovery pass failed: %w", err)
	}

	<-ctx.Done()
	log.Printf("[Orchestrator] Shutting down...")
	e.reviews.Wait()
	return nil
}

// handleSectionIngested runs the ingestion-to-draft step for one section:
// audit the arrival, generate a proposal, audit the draft, persist it and
// announce it on the bus. Generation failures are absorbed after auditing
// so one broken section does not stall the stream.
func (e *Engine) handleSectionIngested(ctx context.Context, payload []byte) error {
	var event docket.SectionIngestedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("malformed section_ingested payload: %w", err)
	}
	section := event.Section
	if err := section.Validate(); err != nil {
		return fmt.Errorf("invalid section in event: %w", err)
	}

	subject := section.StandardID + ":" + section.SectionID
	e.metrics.sectionsIngested.Inc()
	e.logEvent("section_received", map[string]interface{}{
		"standard_id": section.StandardID,
		"section_id":  section.SectionID,
		"issues":      len(section.Issues),
	})

	if err := e.auditAppend(ctx, audit.EventSectionIngested, subject, section); err != nil {
		return err
	}

	proposal, err := e.generator.Generate(ctx, &section)
	if err != nil {
		if generate.IsGenerationFailed(err) || generate.IsInvalidProposal(err) {
			e.metrics.generationFailures.Inc()
			log.Printf("[Orchestrator] Generation failed for section %s: %v", subject, err)
			return e.auditAppend(ctx, audit.EventGenerationFailed, subject, map[string]string{
				"reason": err.Error(),
			})
		}
		return fmt.Errorf("generation error for section %s: %w", subject, err)
	}

	// Audit precedes the store write. A crash between the two leaves an
	// audit entry describing a proposal that was never persisted, never
	// the reverse.
	if err := e.auditAppend(ctx, audit.EventProposalDrafted, proposal.ID, proposal); err != nil {
		return err
	}
	if err := e.store.CreateProposal(ctx, proposal); err != nil {
		return fmt.Errorf("failed to persist proposal %s: %w", proposal.ID, err)
	}
	e.metrics.proposalsCreated.Inc()

	if err := e.bus.Publish(ctx, docket.TopicProposalCreated, docket.ProposalCreatedEvent{
		ProposalID: proposal.ID,
		StandardID: proposal.StandardID,
		SectionID:  proposal.SectionID,
	}); err != nil {
		return fmt.Errorf("failed to publish %s for %s: %w", docket.TopicProposalCreated, proposal.ID, err)
	}

	log.Printf("[Orchestrator] Proposal %s drafted for section %s", proposal.ID, subject)
	return nil
}

// handleProposalCreated moves a drafted proposal under review and hands it
// to a review worker. Duplicate announcements are dropped: the conditional
// status update admits exactly one round per drafted proposal.
func (e *Engine) handleProposalCreated(ctx context.Context, payload []byte) error {
	var event docket.ProposalCreatedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("malformed proposal_created payload: %w", err)
	}

	proposal, err := e.store.GetProposal(ctx, event.ProposalID)
	if err != nil {
		if docket.IsNotFound(err) {
			log.Printf("[Orchestrator] %s for unknown proposal %s, dropping", docket.TopicProposalCreated, event.ProposalID)
			return nil
		}
		return fmt.Errorf("failed to fetch proposal %s: %w", event.ProposalID, err)
	}

	if proposal.Status != docket.StatusDrafted {
		log.Printf("[Orchestrator] Proposal %s is already %s, dropping duplicate announcement", proposal.ID, proposal.Status)
		return nil
	}

	if err := e.auditAppend(ctx, audit.EventReviewStarted, proposal.ID, map[string]string{
		"standard_id": proposal.StandardID,
		"section_id":  proposal.SectionID,
	}); err != nil {
		return err
	}

	if err := e.store.UpdateProposalStatus(ctx, proposal.ID, docket.StatusDrafted, docket.StatusUnderReview); err != nil {
		if docket.IsConflict(err) {
			log.Printf("[Orchestrator] Proposal %s advanced concurrently, dropping duplicate announcement: %v", proposal.ID, err)
			return nil
		}
		return fmt.Errorf("failed to move proposal %s under review: %w", proposal.ID, err)
	}
	proposal.Status = docket.StatusUnderReview

	e.logEvent("review_dispatched", map[string]interface{}{
		"proposal_id": proposal.ID,
		"standard_id": proposal.StandardID,
		"section_id":  proposal.SectionID,
	})

	// The slot is acquired inside the goroutine so the handler returns
	// immediately and delivery order on the topic is preserved.
	e.reviews.Add(1)
	go e.runReview(proposal)

	return nil
}

// runReview executes one review round under a bounded worker slot and
// resolves the outcome.
func (e *Engine) runReview(proposal *docket.Proposal) {
	defer e.reviews.Done()

	select {
	case e.reviewSlots <- struct{}{}:
		defer func() { <-e.reviewSlots }()
	case <-e.runCtx.Done():
		return
	}

	validation, err := e.pool.Review(e.runCtx, proposal)
	switch {
	case err == nil:
		e.finalizeValidation(proposal, validation)
	case e.runCtx.Err() != nil:
		// Shutdown mid-round. The proposal stays under_review; the next
		// startup's recovery pass requeues it.
		log.Printf("[Orchestrator] Review of proposal %s interrupted by shutdown", proposal.ID)
	case review.IsQuorumNotMet(err):
		log.Printf("[Orchestrator] %v", err)
		e.requeueProposal(proposal, err)
	default:
		log.Printf("[Orchestrator] Review of proposal %s failed: %v", proposal.ID, err)
	}
}

// finalizeValidation persists the round's evaluations and verdict, audits
// the outcome and completes the terminal transition. If another round
// already stored a validation for the proposal this one is dropped whole.
func (e *Engine) finalizeValidation(proposal *docket.Proposal, validation *docket.Validation) {
	ctx := e.runCtx

	for i := range validation.Evaluations {
		if err := e.store.CreateEvaluation(ctx, &validation.Evaluations[i]); err != nil && !docket.IsDuplicateKey(err) {
			log.Printf("[Orchestrator] Failed to persist evaluation for proposal %s: %v", proposal.ID, err)
			return
		}
	}

	if err := e.store.CreateValidation(ctx, validation); err != nil {
		if docket.IsDuplicateKey(err) {
			log.Printf("[Orchestrator] Validation for proposal %s already recorded, dropping this round", proposal.ID)
			return
		}
		log.Printf("[Orchestrator] Failed to persist validation for proposal %s: %v", proposal.ID, err)
		return
	}

	if err := e.auditAppend(ctx, audit.EventValidationFinalized, proposal.ID, validation); err != nil {
		log.Printf("[Orchestrator] %v; proposal %s stays under_review for recovery", err, proposal.ID)
		return
	}

	if err := e.store.UpdateProposalStatus(ctx, proposal.ID, docket.StatusUnderReview, validation.Status); err != nil {
		if docket.IsConflict(err) {
			log.Printf("[Orchestrator] Terminal transition for proposal %s dropped: %v", proposal.ID, err)
			return
		}
		log.Printf("[Orchestrator] Failed to finalize proposal %s: %v", proposal.ID, err)
		return
	}

	e.metrics.validationFinalized(validation.Status)
	e.logEvent("validation_finalized", map[string]interface{}{
		"proposal_id":      proposal.ID,
		"validation_id":    validation.ID,
		"status":           string(validation.Status),
		"overall_score":    validation.OverallScore,
		"reviewer_count":   validation.Consensus.ReviewerCount,
		"needs_escalation": validation.Consensus.NeedsEscalation,
	})

	if err := e.bus.Publish(ctx, docket.TopicProposalValidated, docket.ProposalValidatedEvent{
		ProposalID:      proposal.ID,
		ValidationID:    validation.ID,
		Status:          validation.Status,
		OverallScore:    validation.OverallScore,
		NeedsEscalation: validation.Consensus.NeedsEscalation,
	}); err != nil {
		log.Printf("[Orchestrator] Failed to publish %s for %s: %v", docket.TopicProposalValidated, proposal.ID, err)
	}

	log.Printf("[Orchestrator] Proposal %s validated: %s (score %.2f)", proposal.ID, validation.Status, validation.OverallScore)
}

// requeueProposal returns an under_review proposal to drafted after a
// round without quorum. The proposal is not re-dispatched automatically;
// it waits for the next recovery pass or an operator replay, which keeps a
// persistently failing capability from looping hot.
func (e *Engine) requeueProposal(proposal *docket.Proposal, cause error) {
	ctx := e.runCtx
	e.metrics.quorumFailures.Inc()

	if err := e.auditAppend(ctx, audit.EventQuorumNotMet, proposal.ID, map[string]string{
		"reason": cause.Error(),
	}); err != nil {
		log.Printf("[Orchestrator] %v; proposal %s stays under_review for recovery", err, proposal.ID)
		return
	}

	if err := e.store.UpdateProposalStatus(ctx, proposal.ID, docket.StatusUnderReview, docket.StatusDrafted); err != nil {
		if docket.IsConflict(err) {
			log.Printf("[Orchestrator] Requeue of proposal %s dropped: %v", proposal.ID, err)
			return
		}
		log.Printf("[Orchestrator] Failed to requeue proposal %s: %v", proposal.ID, err)
		return
	}

	if err := e.bus.Publish(ctx, docket.TopicProposalRequeued, docket.ProposalRequeuedEvent{
		ProposalID: proposal.ID,
		Reason:     "quorum_not_met",
	}); err != nil {
		log.Printf("[Orchestrator] Failed to publish %s for %s: %v", docket.TopicProposalRequeued, proposal.ID, err)
	}

	log.Printf("[Orchestrator] Proposal %s requeued to drafted", proposal.ID)
}

// auditAppend writes one engine audit record. A failed append aborts the
// transition it precedes, so callers must stop on error.
func (e *Engine) auditAppend(ctx context.Context, eventType, subjectID string, payload any) error {
	_, err := e.audit.Append(ctx, audit.Entry{
		Actor:     actorName,
		EventType: eventType,
		SubjectID: subjectID,
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("audit append %s for %s failed: %w", eventType, subjectID, err)
	}
	e.metrics.auditAppends.Inc()
	return nil
}

// logEvent emits a structured JSON log line for machine consumption.
func (e *Engine) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "orchestrator"
	data["event_type"] = eventType
	data["instance"] = e.instanceName

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Orchestrator] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
