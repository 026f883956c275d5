package docket

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

// TestSectionKey tests section key generation
func TestSectionKey(t *testing.T) {
	key := SectionKey("default-1", "FAS-4", "2.1")

	expected := "emend:default-1:section:FAS-4:2.1"
	if key != expected {
		t.Errorf("SectionKey() = %q, expected %q", key, expected)
	}
}

// TestProposalKey tests proposal key generation
func TestProposalKey(t *testing.T) {
	proposalID := uuid.New().String()
	key := ProposalKey("default-1", proposalID)

	expected := "emend:default-1:proposal:" + proposalID
	if key != expected {
		t.Errorf("ProposalKey() = %q, expected %q", key, expected)
	}

	if !strings.HasPrefix(key, "emend:") {
		t.Error("proposal key should start with 'emend:'")
	}
}

// TestProposalScanPattern tests the SCAN pattern used for listing and
// short-id resolution.
func TestProposalScanPattern(t *testing.T) {
	if got := ProposalScanPattern("default-1", ""); got != "emend:default-1:proposal:*" {
		t.Errorf("ProposalScanPattern with empty prefix = %q", got)
	}

	if got := ProposalScanPattern("default-1", "3fa8"); got != "emend:default-1:proposal:3fa8*" {
		t.Errorf("ProposalScanPattern with prefix = %q", got)
	}
}

// TestEvaluationIndexOutsideProposalNamespace pins that evaluation index
// keys can never be caught by a proposal SCAN.
func TestEvaluationIndexOutsideProposalNamespace(t *testing.T) {
	proposalID := uuid.New().String()
	indexKey := ProposalEvaluationsKey("default-1", proposalID)

	if strings.HasPrefix(indexKey, "emend:default-1:proposal:") {
		t.Errorf("evaluation index key %q must not live under the proposal:* namespace", indexKey)
	}
}

// TestValidationKey tests that validations are keyed by proposal ID.
func TestValidationKey(t *testing.T) {
	proposalID := uuid.New().String()
	key := ValidationKey("prod", proposalID)

	expected := "emend:prod:validation:" + proposalID
	if key != expected {
		t.Errorf("ValidationKey() = %q, expected %q", key, expected)
	}
}

// TestEventsChannel tests channel name generation for bus topics
func TestEventsChannel(t *testing.T) {
	testCases := []struct {
		topic    string
		expected string
	}{
		{TopicSectionIngested, "emend:default-1:events:section_ingested"},
		{TopicProposalCreated, "emend:default-1:events:proposal_created"},
		{TopicProposalValidated, "emend:default-1:events:proposal_validated"},
		{TopicProposalRequeued, "emend:default-1:events:proposal_requeued"},
	}

	for _, tc := range testCases {
		if got := EventsChannel("default-1", tc.topic); got != tc.expected {
			t.Errorf("EventsChannel(%q) = %q, expected %q", tc.topic, got, tc.expected)
		}
	}
}

// TestKeyIsolationBetweenInstances verifies different instances never share keys.
func TestKeyIsolationBetweenInstances(t *testing.T) {
	proposalID := uuid.New().String()

	keyA := ProposalKey("instance-a", proposalID)
	keyB := ProposalKey("instance-b", proposalID)

	if keyA == keyB {
		t.Error("different instances must produce different keys")
	}
}
