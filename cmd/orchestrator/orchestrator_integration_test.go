//go:build integration

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/emendhq/emend/internal/audit"
	"github.com/emendhq/emend/internal/bus"
	"github.com/emendhq/emend/internal/capability"
	"github.com/emendhq/emend/internal/generate"
	"github.com/emendhq/emend/internal/orchestrator"
	"github.com/emendhq/emend/internal/review"
	"github.com/emendhq/emend/pkg/docket"
)

// setupRedis starts a Redis container for testing.
func setupRedis(t *testing.T) string {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Failed to start Redis container")
	t.Cleanup(func() {
		if err := redisC.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, port.Port())
}

// capabilityEnvelope mirrors the capability request wire format.
type capabilityEnvelope struct {
	Role    string          `json:"role"`
	Model   string          `json:"model"`
	Payload json.RawMessage `json:"payload"`
}

// startCapability serves scripted draft and evaluate responses.
// evaluateStatus controls the evaluate handler: 200 serves a scoring
// verdict, anything else is returned as a bare status code.
func startCapability(t *testing.T, evaluateStatus *atomic.Int64) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var envelope capabilityEnvelope
		if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		switch envelope.Role {
		case capability.RoleDraft:
			var payload capability.DraftPayload
			if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(capability.DraftResult{
				ProposedText: payload.Content + " Disclosure must occur no later than five business days before execution.",
				Rationale:    "Adds a measurable disclosure deadline.",
				Category:     "ambiguity_resolution",
			})
		case capability.RoleEvaluate:
			if status := int(evaluateStatus.Load()); status != http.StatusOK {
				http.Error(w, "evaluate unavailable", status)
				return
			}
			score := 9.0
			json.NewEncoder(w).Encode(capability.EvaluateResult{
				CriterionScores: map[docket.Criterion]float64{docket.CriterionCompliance: score},
				OverallScore:    &score,
				Recommendation:  "approve",
				Feedback:        "Deadline is verifiable.",
			})
		default:
			http.Error(w, "unknown role", http.StatusBadRequest)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

// startEngine wires a full engine against the Redis address and capability
// endpoint, runs it, and waits until its bus subscriptions are live.
func startEngine(t *testing.T, addr, endpoint, instance string) (*redis.Client, *docket.Store, audit.Log, bus.Bus, context.CancelFunc, chan error) {
	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })

	store, err := docket.NewStore(rdb, instance)
	require.NoError(t, err)
	auditLog, err := audit.NewRedisLog(rdb, instance)
	require.NoError(t, err)
	eventBus, err := bus.NewRedis(rdb, instance)
	require.NoError(t, err)
	t.Cleanup(func() { eventBus.Close() })

	capClient, err := capability.NewClient(endpoint, "standard-drafter", 5*time.Second)
	require.NoError(t, err)

	engine := orchestrator.NewEngine(orchestrator.Deps{
		Store:     store,
		Bus:       eventBus,
		Audit:     auditLog,
		Generator: generate.NewGenerator(capClient, 1, 10*time.Second),
		Pool: review.NewPool(capClient, review.Config{
			Reviewers: 3,
			Quorum:    2,
			Attempts:  1,
			Timeout:   5 * time.Second,
		}),
	}, instance, 2, "127.0.0.1:0")

	runCtx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- engine.Run(runCtx) }()

	// Wait for the engine's subscriptions before publishing anything;
	// pub/sub delivery only reaches current subscribers.
	channel := docket.EventsChannel(instance, docket.TopicSectionIngested)
	require.Eventually(t, func() bool {
		counts, err := rdb.PubSubNumSub(ctx, channel).Result()
		return err == nil && counts[channel] >= 1
	}, 10*time.Second, 50*time.Millisecond)

	return rdb, store, auditLog, eventBus, cancel, errCh
}

func shutdownEngine(t *testing.T, cancel context.CancelFunc, errCh chan error) {
	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("engine did not shut down")
	}
}

func sectionEvent() docket.SectionIngestedEvent {
	return docket.SectionIngestedEvent{
		Section: docket.Section{
			StandardID:   "FAS-28",
			SectionID:    "4.2",
			Title:        "Disclosure of deferred payment terms",
			Content:      "The institution should disclose material terms where appropriate.",
			IngestedAtMs: time.Now().UnixMilli(),
		},
	}
}

// TestOrchestrator_ProposalLifecycle drives a section from ingestion to an
// approved proposal over real Redis transport.
func TestOrchestrator_ProposalLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	addr := setupRedis(t)

	evaluateStatus := &atomic.Int64{}
	evaluateStatus.Store(http.StatusOK)
	capServer := startCapability(t, evaluateStatus)

	_, store, auditLog, eventBus, cancel, errCh := startEngine(t, addr, capServer.URL, "lifecycle")

	ctx := context.Background()
	require.NoError(t, eventBus.Publish(ctx, docket.TopicSectionIngested, sectionEvent()))

	var approved []*docket.Proposal
	require.Eventually(t, func() bool {
		var err error
		approved, err = store.ListProposals(ctx, docket.ProposalFilter{Status: docket.StatusApproved})
		return err == nil && len(approved) == 1
	}, 15*time.Second, 100*time.Millisecond)

	p := approved[0]
	assert.Equal(t, "FAS-28", p.StandardID)
	assert.NotEqual(t, p.CurrentText, p.ProposedText)

	validation, err := store.GetValidation(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, docket.StatusApproved, validation.Status)
	assert.Equal(t, 3, validation.Consensus.ReviewerCount)

	records, err := auditLog.List(ctx, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, audit.EventSectionIngested, records[0].EventType)
	assert.Equal(t, audit.EventValidationFinalized, records[3].EventType)
	require.NoError(t, auditLog.Verify(ctx, 0, 0))

	shutdownEngine(t, cancel, errCh)
}

// TestOrchestrator_QuorumFailureRequeues verifies that a review round with
// a failing capability returns the proposal to drafted.
func TestOrchestrator_QuorumFailureRequeues(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	addr := setupRedis(t)

	evaluateStatus := &atomic.Int64{}
	evaluateStatus.Store(http.StatusBadRequest)
	capServer := startCapability(t, evaluateStatus)

	_, store, auditLog, eventBus, cancel, errCh := startEngine(t, addr, capServer.URL, "requeue")

	ctx := context.Background()
	require.NoError(t, eventBus.Publish(ctx, docket.TopicSectionIngested, sectionEvent()))

	// Drafted, moved under review, then requeued back to drafted with a
	// quorum_not_met audit record.
	require.Eventually(t, func() bool {
		records, err := auditLog.List(ctx, audit.Filter{EventTypeGlob: audit.EventQuorumNotMet})
		return err == nil && len(records) == 1
	}, 15*time.Second, 100*time.Millisecond)

	require.Eventually(t, func() bool {
		drafted, err := store.ListProposals(ctx, docket.ProposalFilter{Status: docket.StatusDrafted})
		return err == nil && len(drafted) == 1
	}, 5*time.Second, 100*time.Millisecond)

	_, err := store.GetValidation(ctx, mustSingleProposalID(t, ctx, store))
	assert.True(t, docket.IsNotFound(err))

	shutdownEngine(t, cancel, errCh)
}

func mustSingleProposalID(t *testing.T, ctx context.Context, store *docket.Store) string {
	t.Helper()
	proposals, err := store.ListProposals(ctx, docket.ProposalFilter{})
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	return proposals[0].ID
}
