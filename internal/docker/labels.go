package docker

import (
	"fmt"

	"github.com/google/uuid"
)

// Label keys used for Emend resources
const (
	LabelProject       = "emend.project"
	LabelInstanceName  = "emend.instance.name"
	LabelInstanceRunID = "emend.instance.run_id"
	LabelWorkspacePath = "emend.workspace.path"
	LabelComponent     = "emend.component"
	LabelRedisPort     = "emend.redis.port"
)

// BuildLabels creates the standard label set for all Emend resources.
// All parameters are required except component (which is resource-specific).
func BuildLabels(instanceName, runID, workspacePath, component string) map[string]string {
	labels := map[string]string{
		LabelProject:       "true",
		LabelInstanceName:  instanceName,
		LabelInstanceRunID: runID,
		LabelWorkspacePath: workspacePath,
	}

	if component != "" {
		labels[LabelComponent] = component
	}

	return labels
}

// GenerateRunID creates a new UUID for an instance run.
// Each invocation of `emend up` gets a unique run ID.
func GenerateRunID() string {
	return uuid.New().String()
}

// Resource naming conventions for Emend components

// NetworkName returns the Docker network name for an instance
func NetworkName(instanceName string) string {
	return fmt.Sprintf("emend-network-%s", instanceName)
}

// RedisContainerName returns the Redis container name for an instance
func RedisContainerName(instanceName string) string {
	return fmt.Sprintf("emend-redis-%s", instanceName)
}
