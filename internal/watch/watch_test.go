package watch

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/emendhq/emend/internal/audit"
	"github.com/emendhq/emend/pkg/docket"
)

func setupWatchTest(t *testing.T) (*docket.Store, audit.Log) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store, err := docket.NewStore(rdb, "test-instance")
	require.NoError(t, err)

	log, err := audit.NewRedisLog(rdb, "test-instance")
	require.NoError(t, err)

	return store, log
}

func watchProposal(standardID, sectionID string) *docket.Proposal {
	return &docket.Proposal{
		ID:           uuid.New().String(),
		StandardID:   standardID,
		SectionID:    sectionID,
		Category:     docket.CategoryAmbiguityResolution,
		CurrentText:  "The institution should disclose material terms.",
		ProposedText: "The institution must disclose material terms in advance.",
		Rationale:    "Makes the obligation verifiable.",
		Status:       docket.StatusDrafted,
		CreatedAtMs:  time.Now().UnixMilli(),
	}
}

func TestPollForProposal(t *testing.T) {
	ctx := context.Background()

	t.Run("returns proposal when found immediately", func(t *testing.T) {
		store, _ := setupWatchTest(t)

		proposal := watchProposal("FAS-28", "4.2")
		require.NoError(t, store.CreateProposal(ctx, proposal))

		found, err := PollForProposal(ctx, store, "FAS-28", "4.2", 2*time.Second)
		require.NoError(t, err)
		require.NotNil(t, found)
		require.Equal(t, proposal.ID, found.ID)
	})

	t.Run("returns proposal when found after delay", func(t *testing.T) {
		store, _ := setupWatchTest(t)

		proposal := watchProposal("FAS-28", "4.3")
		go func() {
			time.Sleep(500 * time.Millisecond)
			store.CreateProposal(context.Background(), proposal)
		}()

		start := time.Now()
		found, err := PollForProposal(ctx, store, "FAS-28", "4.3", 2*time.Second)
		elapsed := time.Since(start)

		require.NoError(t, err)
		require.Equal(t, proposal.ID, found.ID)
		require.GreaterOrEqual(t, elapsed, 500*time.Millisecond)
		require.Less(t, elapsed, 2*time.Second)
	})

	t.Run("ignores proposals for other sections", func(t *testing.T) {
		store, _ := setupWatchTest(t)

		other := watchProposal("FAS-28", "9.9")
		require.NoError(t, store.CreateProposal(ctx, other))

		_, err := PollForProposal(ctx, store, "FAS-28", "4.2", 500*time.Millisecond)
		require.Error(t, err)
		require.Contains(t, err.Error(), "timeout waiting for proposal")
	})

	t.Run("returns error on timeout", func(t *testing.T) {
		store, _ := setupWatchTest(t)

		start := time.Now()
		_, err := PollForProposal(ctx, store, "FAS-28", "4.2", 500*time.Millisecond)
		elapsed := time.Since(start)

		require.Error(t, err)
		require.Contains(t, err.Error(), "timeout waiting for proposal")
		require.GreaterOrEqual(t, elapsed, 500*time.Millisecond)
		require.Less(t, elapsed, 1*time.Second)
	})

	t.Run("returns error when context cancelled", func(t *testing.T) {
		store, _ := setupWatchTest(t)

		cancelCtx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(100 * time.Millisecond)
			cancel()
		}()

		_, err := PollForProposal(cancelCtx, store, "FAS-28", "4.2", 2*time.Second)
		require.Error(t, err)
		require.Equal(t, context.Canceled, err)
	})
}

// syncBuffer guards the output buffer against concurrent writes from the
// tail goroutine while the test reads it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTailActivity(t *testing.T) {
	t.Run("streams records appended after the call", func(t *testing.T) {
		_, log := setupWatchTest(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Appended before the tail starts; must not be shown.
		_, err := log.Append(ctx, audit.Entry{
			Actor:     "orchestrator",
			EventType: audit.EventSectionIngested,
			SubjectID: "FAS-28:1.1",
			Payload:   map[string]string{"standard_id": "FAS-28"},
		})
		require.NoError(t, err)

		buf := &syncBuffer{}
		done := make(chan error, 1)
		go func() {
			done <- TailActivity(ctx, log, OutputFormatDefault, buf)
		}()

		// Give the tail a moment to record its starting cursor.
		time.Sleep(300 * time.Millisecond)

		_, err = log.Append(ctx, audit.Entry{
			Actor:     "orchestrator",
			EventType: audit.EventProposalDrafted,
			SubjectID: "prop-123",
			Payload:   map[string]string{"category": "definition"},
		})
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return strings.Contains(buf.String(), "prop-123")
		}, 2*time.Second, 50*time.Millisecond)

		output := buf.String()
		require.Contains(t, output, "✨ Proposal drafted")
		require.Contains(t, output, "category=definition")
		require.NotContains(t, output, "FAS-28:1.1")

		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("tail did not stop after context cancellation")
		}
	})

	t.Run("streams as json when requested", func(t *testing.T) {
		_, log := setupWatchTest(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		buf := &syncBuffer{}
		done := make(chan error, 1)
		go func() {
			done <- TailActivity(ctx, log, OutputFormatJSON, buf)
		}()

		time.Sleep(300 * time.Millisecond)

		_, err := log.Append(ctx, audit.Entry{
			Actor:     "orchestrator",
			EventType: audit.EventReviewStarted,
			SubjectID: "prop-456",
			Payload:   map[string]string{"standard_id": "FAS-28"},
		})
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return strings.Contains(buf.String(), "prop-456")
		}, 2*time.Second, 50*time.Millisecond)

		output := buf.String()
		require.Contains(t, output, `"event_type":"review_started"`)
		require.Contains(t, output, `"prev_hash"`)

		cancel()
		require.NoError(t, <-done)
	})

	t.Run("rejects unknown output format", func(t *testing.T) {
		_, log := setupWatchTest(t)

		err := TailActivity(context.Background(), log, OutputFormat("yaml"), &bytes.Buffer{})
		require.Error(t, err)
		require.Contains(t, err.Error(), "unknown output format")
	})
}
