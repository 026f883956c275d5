package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestLog creates a test audit log connected to a miniredis instance
func setupTestLog(t *testing.T) (*RedisLog, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log, err := NewRedisLog(rdb, "test-instance")
	require.NoError(t, err)

	return log, mr
}

func testEntry(eventType, subjectID string) Entry {
	return Entry{
		Actor:     "orchestrator",
		EventType: eventType,
		SubjectID: subjectID,
		Payload:   map[string]string{"detail": "value"},
	}
}

func TestNewRedisLog(t *testing.T) {
	t.Run("creates log successfully", func(t *testing.T) {
		log, _ := setupTestLog(t)
		assert.NotNil(t, log)
	})

	t.Run("rejects nil client", func(t *testing.T) {
		_, err := NewRedisLog(nil, "test-instance")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "redis client cannot be nil")
	})

	t.Run("rejects empty instance name", func(t *testing.T) {
		rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
		defer rdb.Close()

		_, err := NewRedisLog(rdb, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "instance name cannot be empty")
	})
}

func TestAppend(t *testing.T) {
	log, _ := setupTestLog(t)
	ctx := context.Background()

	t.Run("first record chains to genesis", func(t *testing.T) {
		seq, err := log.Append(ctx, testEntry(EventSectionIngested, "FAS-4:2.1"))
		require.NoError(t, err)
		assert.Equal(t, int64(1), seq)

		records, err := log.ListRange(ctx, 1, 1)
		require.NoError(t, err)
		require.Len(t, records, 1)

		record := records[0]
		assert.Equal(t, int64(1), record.Seq)
		assert.Equal(t, "orchestrator", record.Actor)
		assert.Equal(t, EventSectionIngested, record.EventType)
		assert.Equal(t, "FAS-4:2.1", record.SubjectID)
		assert.Equal(t, GenesisHash, record.PrevHash)
		assert.Equal(t, payloadHash(record.Payload), record.PayloadHash)
		assert.Equal(t, chainHash(&record), record.Hash)
		assert.Positive(t, record.TimestampMs)
	})

	t.Run("subsequent records chain to predecessor", func(t *testing.T) {
		seq, err := log.Append(ctx, testEntry(EventProposalDrafted, "proposal-1"))
		require.NoError(t, err)
		assert.Equal(t, int64(2), seq)

		records, err := log.ListRange(ctx, 1, 2)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, records[0].Hash, records[1].PrevHash)
	})

	t.Run("rejects incomplete entry", func(t *testing.T) {
		_, err := log.Append(ctx, Entry{Actor: "orchestrator"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid audit entry")
		assert.False(t, IsWriteError(err))
	})

	t.Run("preserves payload bytes", func(t *testing.T) {
		entry := Entry{
			Actor:     "orchestrator",
			EventType: EventValidationFinalized,
			SubjectID: "proposal-2",
			Payload:   map[string]any{"overall_score": 8.67, "status": "approved"},
		}

		seq, err := log.Append(ctx, entry)
		require.NoError(t, err)

		records, err := log.ListRange(ctx, seq, seq)
		require.NoError(t, err)
		require.Len(t, records, 1)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(records[0].Payload, &payload))
		assert.Equal(t, 8.67, payload["overall_score"])
		assert.Equal(t, "approved", payload["status"])
	})
}

func TestAppend_StoreDown(t *testing.T) {
	log, mr := setupTestLog(t)
	ctx := context.Background()

	mr.Close()

	_, err := log.Append(ctx, testEntry(EventSectionIngested, "FAS-4:2.1"))
	require.Error(t, err)
	assert.True(t, IsWriteError(err))
}

func TestAppend_Concurrent(t *testing.T) {
	log, _ := setupTestLog(t)
	ctx := context.Background()

	const appendsPerWriter = 10
	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func(writer int) {
			defer wg.Done()
			for i := 0; i < appendsPerWriter; i++ {
				subject := fmt.Sprintf("writer-%d-record-%d", writer, i)
				_, err := log.Append(ctx, testEntry(EventProposalDrafted, subject))
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	length, err := log.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2*appendsPerWriter), length)

	// Concurrent appends must still form one unbroken chain
	assert.NoError(t, log.Verify(ctx, 0, 0))
}

func TestLength(t *testing.T) {
	log, _ := setupTestLog(t)
	ctx := context.Background()

	length, err := log.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)

	for i := 0; i < 3; i++ {
		_, err := log.Append(ctx, testEntry(EventSectionIngested, fmt.Sprintf("FAS-4:%d", i)))
		require.NoError(t, err)
	}

	length, err = log.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), length)
}

func TestListRange(t *testing.T) {
	log, _ := setupTestLog(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := log.Append(ctx, testEntry(EventSectionIngested, fmt.Sprintf("FAS-4:%d", i)))
		require.NoError(t, err)
	}

	t.Run("returns inclusive range", func(t *testing.T) {
		records, err := log.ListRange(ctx, 2, 4)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, int64(2), records[0].Seq)
		assert.Equal(t, int64(4), records[2].Seq)
	})

	t.Run("clamps low bound", func(t *testing.T) {
		records, err := log.ListRange(ctx, 0, 2)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, int64(1), records[0].Seq)
	})

	t.Run("high bound past end returns tail", func(t *testing.T) {
		records, err := log.ListRange(ctx, 4, 100)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, int64(5), records[1].Seq)
	})

	t.Run("inverted range is empty", func(t *testing.T) {
		records, err := log.ListRange(ctx, 4, 2)
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestList(t *testing.T) {
	log, _ := setupTestLog(t)
	ctx := context.Background()

	_, err := log.Append(ctx, testEntry(EventSectionIngested, "FAS-4:2.1"))
	require.NoError(t, err)
	_, err = log.Append(ctx, testEntry(EventProposalDrafted, "proposal-1"))
	require.NoError(t, err)
	_, err = log.Append(ctx, Entry{
		Actor:     "recovery",
		EventType: EventRecoveryRequeued,
		SubjectID: "proposal-1",
	})
	require.NoError(t, err)

	t.Run("no filter returns everything", func(t *testing.T) {
		records, err := log.List(ctx, Filter{})
		require.NoError(t, err)
		assert.Len(t, records, 3)
	})

	t.Run("filters by event type glob", func(t *testing.T) {
		records, err := log.List(ctx, Filter{EventTypeGlob: "proposal_*"})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, EventProposalDrafted, records[0].EventType)
	})

	t.Run("filters by actor", func(t *testing.T) {
		records, err := log.List(ctx, Filter{Actor: "recovery"})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, EventRecoveryRequeued, records[0].EventType)
	})

	t.Run("filters by subject", func(t *testing.T) {
		records, err := log.List(ctx, Filter{SubjectID: "proposal-1"})
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})
}

func TestVerify(t *testing.T) {
	log, _ := setupTestLog(t)
	ctx := context.Background()

	t.Run("empty log verifies clean", func(t *testing.T) {
		assert.NoError(t, log.Verify(ctx, 0, 0))
	})

	for i := 1; i <= 5; i++ {
		_, err := log.Append(ctx, testEntry(EventSectionIngested, fmt.Sprintf("FAS-4:%d", i)))
		require.NoError(t, err)
	}

	t.Run("full range verifies clean", func(t *testing.T) {
		assert.NoError(t, log.Verify(ctx, 0, 0))
	})

	t.Run("interior range verifies against stored predecessor", func(t *testing.T) {
		assert.NoError(t, log.Verify(ctx, 3, 5))
	})
}

// tamperRecord rewrites the stored record at the given seq in place.
func tamperRecord(t *testing.T, mr *miniredis.Miniredis, seq int64, mutate func(*Record)) {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	key := LogKey("test-instance")
	raw, err := rdb.LIndex(ctx, key, seq-1).Result()
	require.NoError(t, err)

	var record Record
	require.NoError(t, json.Unmarshal([]byte(raw), &record))
	mutate(&record)

	tampered, err := json.Marshal(&record)
	require.NoError(t, err)
	require.NoError(t, rdb.LSet(ctx, key, seq-1, string(tampered)).Err())
}

func TestVerify_TamperedPayload(t *testing.T) {
	log, mr := setupTestLog(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := log.Append(ctx, testEntry(EventSectionIngested, fmt.Sprintf("FAS-4:%d", i)))
		require.NoError(t, err)
	}

	// Swap the payload at seq 3 without touching the stored hashes
	tamperRecord(t, mr, 3, func(r *Record) {
		r.Payload = json.RawMessage(`{"detail":"rewritten"}`)
	})

	err := log.Verify(ctx, 0, 0)
	require.Error(t, err)

	var integrity *ChainIntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, int64(3), integrity.Seq)

	// Ranges before the tampered record stay clean
	assert.NoError(t, log.Verify(ctx, 1, 2))
}

func TestVerify_RehashedRecord(t *testing.T) {
	log, mr := setupTestLog(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		_, err := log.Append(ctx, testEntry(EventSectionIngested, fmt.Sprintf("FAS-4:%d", i)))
		require.NoError(t, err)
	}

	// A smarter attacker recomputes the tampered record's own hashes.
	// The successor's prev_hash still exposes the edit.
	tamperRecord(t, mr, 2, func(r *Record) {
		r.Payload = json.RawMessage(`{"detail":"rewritten"}`)
		r.PayloadHash = payloadHash(r.Payload)
		r.Hash = chainHash(r)
	})

	err := log.Verify(ctx, 0, 0)
	require.Error(t, err)

	var integrity *ChainIntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, int64(3), integrity.Seq)
}
