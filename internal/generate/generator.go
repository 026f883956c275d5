// Package generate turns ingested sections into drafted proposals through
// the draft capability. It owns the boundary validation that keeps partial
// or no-op drafts out of the docket: nothing this package rejects is ever
// persisted.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emendhq/emend/internal/capability"
	"github.com/emendhq/emend/pkg/docket"
)

// GenerationFailedError indicates the draft capability could not produce a
// result within the retry budget and timeout.
type GenerationFailedError struct {
	StandardID string
	SectionID  string
	Cause      error
}

func (e *GenerationFailedError) Error() string {
	return fmt.Sprintf("generation failed for section %s:%s: %v", e.StandardID, e.SectionID, e.Cause)
}

func (e *GenerationFailedError) Unwrap() error {
	return e.Cause
}

// IsGenerationFailed checks if an error is a GenerationFailedError.
func IsGenerationFailed(err error) bool {
	var gfe *GenerationFailedError
	return errors.As(err, &gfe)
}

// InvalidProposalError indicates the capability returned a draft that fails
// boundary validation (empty or unchanged text, unknown category).
type InvalidProposalError struct {
	Reason string
}

func (e *InvalidProposalError) Error() string {
	return fmt.Sprintf("invalid draft result: %s", e.Reason)
}

// IsInvalidProposal checks if an error is an InvalidProposalError.
func IsInvalidProposal(err error) bool {
	var ipe *InvalidProposalError
	return errors.As(err, &ipe)
}

// Generator drafts one proposal per section through the capability
// boundary. Safe for concurrent use.
type Generator struct {
	invoker capability.Invoker
	retry   capability.RetryConfig
	timeout time.Duration
}

// NewGenerator creates a generator. attempts bounds retries on transient
// capability failures (default 3 when non-positive); timeout bounds the
// whole generation including retries (default 120s when non-positive).
func NewGenerator(invoker capability.Invoker, attempts int, timeout time.Duration) *Generator {
	if attempts < 1 {
		attempts = 3
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	retry := capability.DefaultRetryConfig()
	retry.MaxAttempts = attempts

	return &Generator{
		invoker: invoker,
		retry:   retry,
		timeout: timeout,
	}
}

// Generate builds a draft payload from the section's flagged issues, calls
// the draft capability with bounded retries (transient failures only) under
// the generator timeout, and assembles a drafted Proposal.
//
// Returns GenerationFailedError when the capability never produced a result
// and InvalidProposalError when the result fails boundary validation. No
// proposal is returned in either case.
func (g *Generator) Generate(ctx context.Context, section *docket.Section) (*docket.Proposal, error) {
	if err := section.Validate(); err != nil {
		return nil, fmt.Errorf("invalid section: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	payload := capability.DraftPayload{
		StandardID: section.StandardID,
		SectionID:  section.SectionID,
		Title:      section.Title,
		Content:    section.Content,
		Issues:     section.Issues,
	}

	var result *capability.DraftResult
	err := capability.Do(ctx, g.retry, func(ctx context.Context) error {
		var invokeErr error
		result, invokeErr = g.invoker.Draft(ctx, payload)
		return invokeErr
	})
	if err != nil {
		return nil, &GenerationFailedError{
			StandardID: section.StandardID,
			SectionID:  section.SectionID,
			Cause:      err,
		}
	}

	return buildProposal(section, result)
}

// buildProposal validates a draft result at the boundary and assembles the
// drafted proposal record.
func buildProposal(section *docket.Section, result *capability.DraftResult) (*docket.Proposal, error) {
	proposed := strings.TrimSpace(result.ProposedText)
	if proposed == "" {
		return nil, &InvalidProposalError{Reason: "proposed_text is empty"}
	}
	if proposed == strings.TrimSpace(section.Content) {
		return nil, &InvalidProposalError{Reason: "proposed_text is identical to the current text"}
	}

	rationale := strings.TrimSpace(result.Rationale)
	if rationale == "" {
		return nil, &InvalidProposalError{Reason: "rationale is empty"}
	}

	category, err := resolveCategory(result.Category)
	if err != nil {
		return nil, err
	}

	return &docket.Proposal{
		ID:           uuid.New().String(),
		StandardID:   section.StandardID,
		SectionID:    section.SectionID,
		Category:     category,
		CurrentText:  section.Content,
		ProposedText: proposed,
		Rationale:    rationale,
		Status:       docket.StatusDrafted,
		CreatedAtMs:  time.Now().UnixMilli(),
	}, nil
}

// resolveCategory maps the capability's category field to the docket enum.
// An absent category falls back to ambiguity_resolution; an unknown one is
// rejected rather than guessed at.
func resolveCategory(raw string) (docket.Category, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return docket.CategoryAmbiguityResolution, nil
	}

	category := docket.Category(strings.ToLower(raw))
	if err := category.Validate(); err != nil {
		return "", &InvalidProposalError{Reason: fmt.Sprintf("unknown category %q", raw)}
	}

	return category, nil
}
