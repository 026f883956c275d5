package docket

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Store provides instance-scoped Redis operations for docket records.
// All keys are automatically namespaced with the instance name. The store is
// safe for concurrent use from multiple goroutines.
//
// The store never publishes events and never decides transitions; callers
// (the orchestrator, ingestion) own sequencing. All mutation goes through
// atomic or conditional operations so no caller ever needs an external lock.
type Store struct {
	rdb          *redis.Client
	instanceName string
}

// DuplicateKeyError indicates a create collided with an existing record.
type DuplicateKeyError struct {
	Kind string // "section", "proposal", "evaluation" or "validation"
	ID   string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.ID)
}

// ConflictError indicates a conditional status update found the proposal in
// a different status than expected. Under at-least-once event delivery this
// is benign: another in-flight transition already advanced the state.
type ConflictError struct {
	ProposalID string
	Expected   ProposalStatus
	Actual     ProposalStatus
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("proposal %q status is %q, expected %q", e.ProposalID, e.Actual, e.Expected)
}

// IsNotFound returns true if the error is a Redis "key not found" error.
// Use this to check results of GetSection, GetProposal and GetValidation.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}

// IsDuplicateKey returns true if the error is a DuplicateKeyError.
func IsDuplicateKey(err error) bool {
	var dup *DuplicateKeyError
	return errors.As(err, &dup)
}

// IsConflict returns true if the error is a ConflictError.
func IsConflict(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}

// Sentinel results returned by the status update script. Status enum values
// can never collide with these.
const (
	luaResultUpdated = "updated"
	luaResultMissing = "missing"
)

// updateProposalStatusScript performs the conditional status transition
// atomically: compare the stored status against the expected value and set
// the new one only on a match. Returns the stored status on a mismatch so
// the caller can report the conflict.
var updateProposalStatusScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then
  return 'missing'
end
if cur ~= ARGV[1] then
  return cur
end
redis.call('HSET', KEYS[1], 'status', ARGV[2])
return 'updated'
`)

// NewStore creates a docket store for the specified instance on an existing
// Redis client. The client is shared with the other Redis-backed components
// and stays owned by the caller.
func NewStore(rdb *redis.Client, instanceName string) (*Store, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}

	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Store{
		rdb:          rdb,
		instanceName: instanceName,
	}, nil
}

// InstanceName returns the instance namespace this store operates in.
func (s *Store) InstanceName() string {
	return s.instanceName
}

// Ping verifies Redis connectivity. Useful for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// CreateSection writes an ingested section to Redis.
// Returns DuplicateKeyError if the (standard, section) pair already exists;
// sections are immutable once ingested.
func (s *Store) CreateSection(ctx context.Context, section *Section) error {
	if err := section.Validate(); err != nil {
		return fmt.Errorf("invalid section: %w", err)
	}

	hash, err := SectionToHash(section)
	if err != nil {
		return fmt.Errorf("failed to serialize section: %w", err)
	}

	key := SectionKey(s.instanceName, section.StandardID, section.SectionID)

	// HSETNX on a guard field claims the key; losers see an existing record.
	// The key is unannounced until this method returns, so the window between
	// the guard and the full HSET has no readers.
	created, err := s.rdb.HSetNX(ctx, key, "standard_id", section.StandardID).Result()
	if err != nil {
		return fmt.Errorf("failed to write section to Redis: %w", err)
	}
	if !created {
		return &DuplicateKeyError{Kind: "section", ID: section.StandardID + ":" + section.SectionID}
	}

	if err := s.rdb.HSet(ctx, key, hash).Err(); err != nil {
		return fmt.Errorf("failed to write section to Redis: %w", err)
	}

	return nil
}

// GetSection retrieves a section by standard and section ID.
// Returns an error wrapping redis.Nil if the section doesn't exist;
// use IsNotFound() to check.
func (s *Store) GetSection(ctx context.Context, standardID, sectionID string) (*Section, error) {
	key := SectionKey(s.instanceName, standardID, sectionID)

	hashData, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read section from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	section, err := HashToSection(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize section: %w", err)
	}

	return section, nil
}

// CreateProposal writes a new proposal to Redis.
// Validates the proposal before writing and fails with DuplicateKeyError if
// the ID collides with an existing proposal.
func (s *Store) CreateProposal(ctx context.Context, p *Proposal) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid proposal: %w", err)
	}

	key := ProposalKey(s.instanceName, p.ID)

	created, err := s.rdb.HSetNX(ctx, key, "id", p.ID).Result()
	if err != nil {
		return fmt.Errorf("failed to write proposal to Redis: %w", err)
	}
	if !created {
		return &DuplicateKeyError{Kind: "proposal", ID: p.ID}
	}

	if err := s.rdb.HSet(ctx, key, ProposalToHash(p)).Err(); err != nil {
		return fmt.Errorf("failed to write proposal to Redis: %w", err)
	}

	return nil
}

// GetProposal retrieves a proposal by ID.
// Returns an error wrapping redis.Nil if the proposal doesn't exist.
func (s *Store) GetProposal(ctx context.Context, proposalID string) (*Proposal, error) {
	key := ProposalKey(s.instanceName, proposalID)

	hashData, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read proposal from Redis: %w", err)
	}

	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	proposal, err := HashToProposal(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize proposal: %w", err)
	}

	return proposal, nil
}

// UpdateProposalStatus transitions a proposal from one status to another.
// The update is conditional and atomic: it succeeds only if the stored
// status equals from, so concurrent transitions on the same proposal
// serialize without an external lock. Returns ConflictError when the stored
// status differs from the expected one, and an error wrapping redis.Nil when
// the proposal doesn't exist.
//
// Only the directed lifecycle edges are accepted; asking for any other
// transition is rejected before touching Redis.
func (s *Store) UpdateProposalStatus(ctx context.Context, proposalID string, from, to ProposalStatus) error {
	if err := from.Validate(); err != nil {
		return fmt.Errorf("invalid from status: %w", err)
	}
	if err := to.Validate(); err != nil {
		return fmt.Errorf("invalid to status: %w", err)
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("illegal status transition from %q to %q", from, to)
	}

	key := ProposalKey(s.instanceName, proposalID)

	result, err := updateProposalStatusScript.Run(ctx, s.rdb, []string{key}, string(from), string(to)).Text()
	if err != nil {
		return fmt.Errorf("failed to update proposal status: %w", err)
	}

	switch result {
	case luaResultUpdated:
		return nil
	case luaResultMissing:
		return fmt.Errorf("proposal %q: %w", proposalID, redis.Nil)
	default:
		return &ConflictError{
			ProposalID: proposalID,
			Expected:   from,
			Actual:     ProposalStatus(result),
		}
	}
}

// ProposalFilter selects proposals in ListProposals. Zero-valued fields
// match everything.
type ProposalFilter struct {
	Status     ProposalStatus
	StandardID string
	SectionID  string
}

// Matches returns true if the proposal passes all set criteria.
func (f *ProposalFilter) Matches(p *Proposal) bool {
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.StandardID != "" && p.StandardID != f.StandardID {
		return false
	}
	if f.SectionID != "" && p.SectionID != f.SectionID {
		return false
	}
	return true
}

// ListProposals returns all proposals matching the filter, ordered by
// creation time (oldest first, ID as tiebreak). Uses SCAN so large dockets
// don't block Redis.
func (s *Store) ListProposals(ctx context.Context, filter ProposalFilter) ([]*Proposal, error) {
	pattern := ProposalScanPattern(s.instanceName, "")

	var proposals []*Proposal
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan proposals: %w", err)
		}

		for _, key := range keys {
			hashData, err := s.rdb.HGetAll(ctx, key).Result()
			if err != nil {
				return nil, fmt.Errorf("failed to read proposal %s: %w", key, err)
			}
			if len(hashData) == 0 {
				// Key expired between SCAN and HGETALL
				continue
			}

			proposal, err := HashToProposal(hashData)
			if err != nil {
				return nil, fmt.Errorf("failed to deserialize proposal %s: %w", key, err)
			}

			if filter.Matches(proposal) {
				proposals = append(proposals, proposal)
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	sort.Slice(proposals, func(i, j int) bool {
		if proposals[i].CreatedAtMs != proposals[j].CreatedAtMs {
			return proposals[i].CreatedAtMs < proposals[j].CreatedAtMs
		}
		return proposals[i].ID < proposals[j].ID
	})

	return proposals, nil
}

// ScanProposalIDs returns the IDs of all proposals whose ID starts with the
// given prefix. Used for short-ID resolution in the CLI.
func (s *Store) ScanProposalIDs(ctx context.Context, idPrefix string) ([]string, error) {
	pattern := ProposalScanPattern(s.instanceName, idPrefix)
	keyPrefix := fmt.Sprintf("emend:%s:proposal:", s.instanceName)

	var ids []string
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan proposal IDs: %w", err)
		}

		for _, key := range keys {
			ids = append(ids, strings.TrimPrefix(key, keyPrefix))
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	sort.Strings(ids)
	return ids, nil
}

// CreateEvaluation writes a reviewer evaluation to Redis and indexes it
// against its proposal. Evaluations are immutable; an ID collision fails
// with DuplicateKeyError.
func (s *Store) CreateEvaluation(ctx context.Context, e *Evaluation) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid evaluation: %w", err)
	}

	hash, err := EvaluationToHash(e)
	if err != nil {
		return fmt.Errorf("failed to serialize evaluation: %w", err)
	}

	key := EvaluationKey(s.instanceName, e.ID)

	created, err := s.rdb.HSetNX(ctx, key, "id", e.ID).Result()
	if err != nil {
		return fmt.Errorf("failed to write evaluation to Redis: %w", err)
	}
	if !created {
		return &DuplicateKeyError{Kind: "evaluation", ID: e.ID}
	}

	if err := s.rdb.HSet(ctx, key, hash).Err(); err != nil {
		return fmt.Errorf("failed to write evaluation to Redis: %w", err)
	}

	indexKey := ProposalEvaluationsKey(s.instanceName, e.ProposalID)
	if err := s.rdb.SAdd(ctx, indexKey, e.ID).Err(); err != nil {
		return fmt.Errorf("failed to index evaluation: %w", err)
	}

	return nil
}

// GetEvaluation retrieves an evaluation by ID.
// Returns an error wrapping redis.Nil if the evaluation doesn't exist.
func (s *Store) GetEvaluation(ctx context.Context, evaluationID string) (*Evaluation, error) {
	key := EvaluationKey(s.instanceName, evaluationID)

	hashData, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read evaluation from Redis: %w", err)
	}

	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	evaluation, err := HashToEvaluation(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize evaluation: %w", err)
	}

	return evaluation, nil
}

// ListEvaluations returns all evaluations recorded against a proposal,
// ordered by creation time then reviewer ID. Returns an empty slice when
// none exist (not an error).
func (s *Store) ListEvaluations(ctx context.Context, proposalID string) ([]*Evaluation, error) {
	indexKey := ProposalEvaluationsKey(s.instanceName, proposalID)

	ids, err := s.rdb.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read evaluation index: %w", err)
	}

	evaluations := make([]*Evaluation, 0, len(ids))
	for _, id := range ids {
		evaluation, err := s.GetEvaluation(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to read indexed evaluation %s: %w", id, err)
		}
		evaluations = append(evaluations, evaluation)
	}

	sort.Slice(evaluations, func(i, j int) bool {
		if evaluations[i].CreatedAtMs != evaluations[j].CreatedAtMs {
			return evaluations[i].CreatedAtMs < evaluations[j].CreatedAtMs
		}
		return evaluations[i].ReviewerID < evaluations[j].ReviewerID
	})

	return evaluations, nil
}

// CreateValidation writes a validation verdict to Redis. Validations are
// keyed by proposal ID, so a second validation for the same proposal fails
// with DuplicateKeyError regardless of its own ID.
func (s *Store) CreateValidation(ctx context.Context, v *Validation) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("invalid validation: %w", err)
	}

	hash, err := ValidationToHash(v)
	if err != nil {
		return fmt.Errorf("failed to serialize validation: %w", err)
	}

	key := ValidationKey(s.instanceName, v.ProposalID)

	created, err := s.rdb.HSetNX(ctx, key, "id", v.ID).Result()
	if err != nil {
		return fmt.Errorf("failed to write validation to Redis: %w", err)
	}
	if !created {
		return &DuplicateKeyError{Kind: "validation", ID: v.ProposalID}
	}

	if err := s.rdb.HSet(ctx, key, hash).Err(); err != nil {
		return fmt.Errorf("failed to write validation to Redis: %w", err)
	}

	return nil
}

// GetValidation retrieves the validation for a proposal.
// Returns an error wrapping redis.Nil if no validation exists.
func (s *Store) GetValidation(ctx context.Context, proposalID string) (*Validation, error) {
	key := ValidationKey(s.instanceName, proposalID)

	hashData, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read validation from Redis: %w", err)
	}

	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	validation, err := HashToValidation(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize validation: %w", err)
	}

	return validation, nil
}
