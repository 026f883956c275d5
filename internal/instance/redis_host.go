package instance

import (
	"fmt"
	"os"
)

// GetRedisHost returns the hostname the CLI should use to reach an
// instance's published Redis port. Inside a container that is
// "host.docker.internal"; on the host it is "localhost".
func GetRedisHost() string {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return "host.docker.internal"
	}
	return "localhost"
}

// GetRedisURL constructs the full Redis URL for a given port.
func GetRedisURL(port int) string {
	return fmt.Sprintf("redis://%s:%d", GetRedisHost(), port)
}
