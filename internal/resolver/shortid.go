package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/emendhq/emend/pkg/docket"
)

// MinShortIDLength is the minimum required length for short ID prefixes.
// Set to 6 characters to balance usability with collision avoidance.
const MinShortIDLength = 6

// ResolveProposalID resolves a short ID prefix to a full proposal UUID.
// Returns the full UUID if exactly one match is found.
//
// Three cases are handled:
//  1. Input is already a full UUID (36 chars, 4 hyphens): existence is verified
//  2. Input is shorter than MinShortIDLength: validation error
//  3. Input is a short prefix: scan for matches and require a unique result
func ResolveProposalID(ctx context.Context, store *docket.Store, shortID string) (string, error) {
	if len(shortID) == 36 && strings.Count(shortID, "-") == 4 {
		_, err := store.GetProposal(ctx, shortID)
		if err != nil {
			if docket.IsNotFound(err) {
				return "", fmt.Errorf("proposal not found: %s", shortID)
			}
			return "", fmt.Errorf("failed to verify proposal existence: %w", err)
		}
		return shortID, nil
	}

	if len(shortID) < MinShortIDLength {
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}

	matches, err := store.ScanProposalIDs(ctx, shortID)
	if err != nil {
		return "", fmt.Errorf("failed to search for proposal: %w", err)
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: shortID}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{ShortID: shortID, Matches: matches}
	}
}

// NotFoundError indicates no proposals matched the short ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no proposals found matching '%s'", e.ShortID)
}

// AmbiguousError indicates multiple proposals matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d proposals", e.ShortID, len(e.Matches))
}

// FormatAmbiguousError creates a user-facing message for ambiguous short
// IDs, listing up to 10 matching UUIDs.
func FormatAmbiguousError(err *AmbiguousError) string {
	msg := fmt.Sprintf("Error: ambiguous short ID '%s' matches %d proposals:\n", err.ShortID, len(err.Matches))

	displayCount := len(err.Matches)
	if displayCount > 10 {
		displayCount = 10
	}

	for i := 0; i < displayCount; i++ {
		msg += fmt.Sprintf("  %s\n", err.Matches[i])
	}

	if len(err.Matches) > 10 {
		msg += fmt.Sprintf("  ...and %d more\n", len(err.Matches)-10)
	}

	msg += "\nUse a longer prefix to uniquely identify the proposal."
	return msg
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
