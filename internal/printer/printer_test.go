package printer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		err := Error("Redis container not found", "No container exists for this instance", []string{})
		require.Error(t, err)
		require.Equal(t, "Redis container not found", err.Error())
	})

	t.Run("returns error with title when including suggestions", func(t *testing.T) {
		err := Error("Invalid configuration", "emend.yml failed validation", []string{"Run 'emend init' to scaffold a valid file"})
		require.Error(t, err)
		require.Equal(t, "Invalid configuration", err.Error())
	})

	t.Run("returns error with title for multiple suggestions", func(t *testing.T) {
		err := Error("Instance already running", "A container with this name exists", []string{
			"Stop it with 'emend down'",
			"Pick a different name with --name",
		})
		require.Error(t, err)
		require.Equal(t, "Instance already running", err.Error())
	})
}

func TestErrorWithContext(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		context := map[string]string{
			"Instance": "default",
			"Port":     "6379",
		}
		err := ErrorWithContext("Port allocation failed", "No free port in range", context, []string{})
		require.Error(t, err)
		require.Equal(t, "Port allocation failed", err.Error())
	})

	t.Run("returns error with title when including suggestions", func(t *testing.T) {
		context := map[string]string{"Path": "/work/emend.yml"}
		err := ErrorWithContext("Config not found", "No emend.yml in the current directory", context, []string{"Run 'emend init'"})
		require.Error(t, err)
		require.Equal(t, "Config not found", err.Error())
	})
}
