// Package capability is the boundary to the content-generation service
// that drafts proposals and evaluates them. The wire contract is a single
// JSON POST endpoint dispatching on a role field, keeping the core
// provider-neutral.
//
// Failures are classified at this boundary: timeouts, connection errors,
// 429 and 5xx responses are transient (retryable); other 4xx responses
// and malformed bodies are fatal. Callers apply their own retry budgets
// via Do.
package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/emendhq/emend/pkg/docket"
)

// maxResponseSize limits the response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Roles dispatched on by the capability endpoint.
const (
	RoleDraft    = "draft"
	RoleEvaluate = "evaluate"
)

// DraftPayload carries the section a proposal should be drafted for.
type DraftPayload struct {
	StandardID string         `json:"standard_id"`
	SectionID  string         `json:"section_id"`
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Issues     []docket.Issue `json:"issues,omitempty"`
}

// DraftResult is the capability's proposed enhancement for a section.
type DraftResult struct {
	ProposedText string            `json:"proposed_text"`
	Rationale    string            `json:"rationale"`
	Category     string            `json:"category"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// EvaluatePayload carries the proposal one reviewer should score.
type EvaluatePayload struct {
	ProposalID   string `json:"proposal_id"`
	ReviewerID   string `json:"reviewer_id"`
	StandardID   string `json:"standard_id"`
	SectionID    string `json:"section_id"`
	CurrentText  string `json:"current_text"`
	ProposedText string `json:"proposed_text"`
	Rationale    string `json:"rationale"`
}

// EvaluateResult is one reviewer's verdict. OverallScore is optional on
// the wire; when omitted the caller derives it from the criterion scores.
type EvaluateResult struct {
	CriterionScores map[docket.Criterion]float64 `json:"criterion_scores"`
	OverallScore    *float64                     `json:"overall_score,omitempty"`
	Recommendation  string                       `json:"recommendation"`
	Feedback        string                       `json:"feedback"`
}

// Invoker is the capability contract the generator and reviewer pool are
// wired against. Implementations must be safe for concurrent use.
type Invoker interface {
	Draft(ctx context.Context, payload DraftPayload) (*DraftResult, error)
	Evaluate(ctx context.Context, payload EvaluatePayload) (*EvaluateResult, error)
}

// request is the wire envelope for capability calls.
type request struct {
	Role    string `json:"role"`
	Model   string `json:"model"`
	Payload any    `json:"payload"`
}

// Client invokes the capability endpoint over HTTP.
type Client struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

// NewClient creates a capability client for the given endpoint and model.
// The timeout bounds each individual request; callers pass tighter bounds
// via context where needed.
func NewClient(endpoint, model string, timeout time.Duration) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("capability endpoint cannot be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("capability model cannot be empty")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		endpoint:   endpoint,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Draft asks the capability to propose an enhancement for a section.
func (c *Client) Draft(ctx context.Context, payload DraftPayload) (*DraftResult, error) {
	var result DraftResult
	if err := c.invoke(ctx, RoleDraft, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Evaluate asks the capability to score a proposal as one reviewer.
func (c *Client) Evaluate(ctx context.Context, payload EvaluatePayload) (*EvaluateResult, error) {
	var result EvaluateResult
	if err := c.invoke(ctx, RoleEvaluate, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// invoke executes a single capability request and decodes the response
// into out. Errors come back classified as transient or fatal.
func (c *Client) invoke(ctx context.Context, role string, payload any, out any) error {
	body, err := json.Marshal(request{Role: role, Model: c.model, Payload: payload})
	if err != nil {
		return NewFatalError(fmt.Errorf("failed to marshal %s request: %w", role, err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return NewFatalError(fmt.Errorf("failed to create %s request: %w", role, err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network errors and timeouts are transient
		return NewTransientError(fmt.Errorf("%s request failed: %w", role, err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return NewTransientError(fmt.Errorf("failed to read %s response: %w", role, err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return classifyHTTPError(httpResp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return NewFatalError(fmt.Errorf("malformed %s response: %w", role, err))
	}

	return nil
}

// classifyHTTPError determines if an HTTP error is transient or fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("capability error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		// Rate limiting is transient
		return NewTransientError(err)
	case statusCode >= 500:
		// Server errors are transient
		return NewTransientError(err)
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden:
		// Auth errors are fatal
		return NewFatalError(err)
	case statusCode == http.StatusBadRequest:
		// Bad requests are fatal
		return NewFatalError(err)
	default:
		// Unknown errors default to fatal
		return NewFatalError(err)
	}
}
