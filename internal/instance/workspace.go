package instance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	dockerpkg "github.com/emendhq/emend/internal/docker"
)

// GetCanonicalWorkspacePath returns the absolute, symlink-resolved path of
// the current working directory. The workspace is wherever emend.yml and the
// standards files live; this path is what instances are keyed on for
// collision detection and inference.
func GetCanonicalWorkspacePath() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	// Resolve symlinks
	realPath, err := filepath.EvalSymlinks(cwd)
	if err != nil {
		return "", fmt.Errorf("failed to resolve symlinks: %w", err)
	}

	absPath, err := filepath.Abs(realPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	return absPath, nil
}

// WorkspaceCollision represents a workspace collision with another instance
type WorkspaceCollision struct {
	InstanceName  string
	WorkspacePath string
	ContainerID   string
}

// CheckWorkspaceCollision checks if any other instance is using the given
// workspace path. Returns a collision object if found, or nil if no collision.
// The currentInstanceName parameter allows checking for collisions with other
// instances (excluding the current instance being created/updated).
func CheckWorkspaceCollision(ctx context.Context, cli *client.Client, workspacePath, currentInstanceName string) (*WorkspaceCollision, error) {
	// Find all Emend containers
	filter := filters.NewArgs()
	filter.Add("label", fmt.Sprintf("%s=true", dockerpkg.LabelProject))

	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	for _, c := range containers {
		containerWorkspace := c.Labels[dockerpkg.LabelWorkspacePath]
		containerInstance := c.Labels[dockerpkg.LabelInstanceName]

		// Skip if this is the current instance
		if containerInstance == currentInstanceName {
			continue
		}

		if containerWorkspace == workspacePath {
			return &WorkspaceCollision{
				InstanceName:  containerInstance,
				WorkspacePath: containerWorkspace,
				ContainerID:   c.ID,
			}, nil
		}
	}

	return nil, nil
}
