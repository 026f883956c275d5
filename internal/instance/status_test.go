package instance

import (
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/stretchr/testify/assert"
)

func TestDetermineStatus(t *testing.T) {
	testCases := []struct {
		name     string
		states   []string
		expected Status
	}{
		{
			name:     "all running",
			states:   []string{"running", "running", "running"},
			expected: StatusRunning,
		},
		{
			name:     "single running",
			states:   []string{"running"},
			expected: StatusRunning,
		},
		{
			name:     "all stopped",
			states:   []string{"exited", "exited"},
			expected: StatusStopped,
		},
		{
			name:     "single stopped",
			states:   []string{"exited"},
			expected: StatusStopped,
		},
		{
			name:     "no containers",
			states:   nil,
			expected: StatusStopped,
		},
		{
			name:     "mixed states",
			states:   []string{"running", "exited"},
			expected: StatusDegraded,
		},
		{
			name:     "mostly running",
			states:   []string{"running", "running", "running", "exited"},
			expected: StatusDegraded,
		},
		{
			name:     "mostly stopped",
			states:   []string{"running", "exited", "exited", "exited"},
			expected: StatusDegraded,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			containers := make([]types.Container, len(tc.states))
			for i, state := range tc.states {
				containers[i] = types.Container{State: state}
			}

			assert.Equal(t, tc.expected, DetermineStatus(containers))
		})
	}
}
