package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LogKey returns the Redis key for the audit record list.
// Format: emend:{instance_name}:audit:log
func LogKey(instanceName string) string {
	return fmt.Sprintf("emend:%s:audit:log", instanceName)
}

// HeadKey returns the Redis key holding the hash of the newest record.
// Format: emend:{instance_name}:audit:head
func HeadKey(instanceName string) string {
	return fmt.Sprintf("emend:%s:audit:head", instanceName)
}

// Sentinel result returned by the append script on success. Head hashes
// are 64 hex characters, so no collision is possible.
const luaResultAppended = "appended"

// Lost CAS races are retried with a fresh head read. Contention only
// occurs between concurrent appenders, so a handful of attempts is ample.
const appendRetryLimit = 16

// appendRecordScript pushes a record and advances the head hash, but only
// if the stored head still matches the hash the record was chained to.
// Returns the stored head on a mismatch so the caller can rebuild and
// retry (optimistic append).
var appendRecordScript = redis.NewScript(`
local head = redis.call('GET', KEYS[2])
if not head then
  head = ARGV[1]
end
if head ~= ARGV[2] then
  return head
end
redis.call('RPUSH', KEYS[1], ARGV[4])
redis.call('SET', KEYS[2], ARGV[3])
return 'appended'
`)

// RedisLog is the Redis-backed audit Log. Records live in a list in seq
// order (seq n at index n-1); a separate head key carries the newest hash
// and serves as the compare-and-set anchor for appends.
type RedisLog struct {
	rdb          *redis.Client
	instanceName string
}

// NewRedisLog creates an audit log for the specified instance on an
// existing Redis client. The client stays owned by the caller.
func NewRedisLog(rdb *redis.Client, instanceName string) (*RedisLog, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}

	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &RedisLog{
		rdb:          rdb,
		instanceName: instanceName,
	}, nil
}

// Append records an entry at the tail of the chain and returns its seq.
// Any storage failure surfaces as a WriteError: the transition being
// recorded must not proceed.
func (l *RedisLog) Append(ctx context.Context, entry Entry) (int64, error) {
	if err := entry.Validate(); err != nil {
		return 0, fmt.Errorf("invalid audit entry: %w", err)
	}

	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal audit payload: %w", err)
	}

	logKey := LogKey(l.instanceName)
	headKey := HeadKey(l.instanceName)

	for attempt := 0; attempt < appendRetryLimit; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, &WriteError{Cause: err}
		}

		prevHash, err := l.rdb.Get(ctx, headKey).Result()
		if err == redis.Nil {
			prevHash = GenesisHash
		} else if err != nil {
			return 0, &WriteError{Cause: err}
		}

		length, err := l.rdb.LLen(ctx, logKey).Result()
		if err != nil {
			return 0, &WriteError{Cause: err}
		}

		record := Record{
			Seq:         length + 1,
			TimestampMs: time.Now().UnixMilli(),
			Actor:       entry.Actor,
			EventType:   entry.EventType,
			SubjectID:   entry.SubjectID,
			Payload:     payload,
			PayloadHash: payloadHash(payload),
			PrevHash:    prevHash,
		}
		record.Hash = chainHash(&record)

		recordJSON, err := json.Marshal(&record)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal audit record: %w", err)
		}

		result, err := appendRecordScript.Run(ctx, l.rdb,
			[]string{logKey, headKey},
			GenesisHash, prevHash, record.Hash, string(recordJSON)).Text()
		if err != nil {
			return 0, &WriteError{Cause: err}
		}

		if result == luaResultAppended {
			return record.Seq, nil
		}
		// Another appender advanced the head; rebuild against it.
	}

	return 0, &WriteError{Cause: fmt.Errorf("append contention persisted after %d attempts", appendRetryLimit)}
}

// Length returns the number of records in the log.
func (l *RedisLog) Length(ctx context.Context) (int64, error) {
	length, err := l.rdb.LLen(ctx, LogKey(l.instanceName)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read audit length: %w", err)
	}
	return length, nil
}

// ListRange returns the records with seq in [from, to] inclusive.
// Bounds outside the log are clamped; an inverted range is empty.
func (l *RedisLog) ListRange(ctx context.Context, from, to int64) ([]Record, error) {
	if from < 1 {
		from = 1
	}
	if to < from {
		return []Record{}, nil
	}

	raw, err := l.rdb.LRange(ctx, LogKey(l.instanceName), from-1, to-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read audit records: %w", err)
	}

	records := make([]Record, 0, len(raw))
	for i, item := range raw {
		var record Record
		if err := json.Unmarshal([]byte(item), &record); err != nil {
			return nil, fmt.Errorf("failed to decode audit record at seq %d: %w", from+int64(i), err)
		}
		records = append(records, record)
	}

	return records, nil
}

// List returns all records matching the filter, in seq order.
func (l *RedisLog) List(ctx context.Context, f Filter) ([]Record, error) {
	length, err := l.Length(ctx)
	if err != nil {
		return nil, err
	}

	all, err := l.ListRange(ctx, 1, length)
	if err != nil {
		return nil, err
	}

	if !f.HasFilters() {
		return all, nil
	}

	matched := make([]Record, 0, len(all))
	for _, record := range all {
		if f.Matches(&record) {
			matched = append(matched, record)
		}
	}

	return matched, nil
}

// Verify recomputes payload hashes and the hash chain over seq range
// [from, to] and returns a ChainIntegrityError carrying the first broken
// seq. Zero or out-of-range bounds default to the full log. A record that
// no longer parses is treated as broken at its seq.
func (l *RedisLog) Verify(ctx context.Context, from, to int64) error {
	length, err := l.Length(ctx)
	if err != nil {
		return err
	}

	if from < 1 {
		from = 1
	}
	if to < 1 || to > length {
		to = length
	}
	if length == 0 || from > to {
		return nil
	}

	// The first record in the range chains to its stored predecessor, or
	// to the genesis hash at the start of the log.
	prevHash := GenesisHash
	if from > 1 {
		prev, err := l.rdb.LIndex(ctx, LogKey(l.instanceName), from-2).Result()
		if err != nil {
			return fmt.Errorf("failed to read audit record at seq %d: %w", from-1, err)
		}
		var prevRecord Record
		if err := json.Unmarshal([]byte(prev), &prevRecord); err != nil {
			return &ChainIntegrityError{Seq: from - 1, Reason: "record is not valid JSON"}
		}
		prevHash = prevRecord.Hash
	}

	raw, err := l.rdb.LRange(ctx, LogKey(l.instanceName), from-1, to-1).Result()
	if err != nil {
		return fmt.Errorf("failed to read audit records: %w", err)
	}

	records := make([]Record, 0, len(raw))
	for i, item := range raw {
		var record Record
		if err := json.Unmarshal([]byte(item), &record); err != nil {
			return &ChainIntegrityError{Seq: from + int64(i), Reason: "record is not valid JSON"}
		}
		records = append(records, record)
	}

	return verifyChain(records, from, prevHash)
}
