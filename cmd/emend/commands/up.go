package commands

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/emendhq/emend/internal/config"
	dockerpkg "github.com/emendhq/emend/internal/docker"
	"github.com/emendhq/emend/internal/instance"
	"github.com/emendhq/emend/internal/printer"
	"github.com/spf13/cobra"
)

// redisImage is the pinned image for instance Redis containers.
const redisImage = "redis:7-alpine"

var (
	upInstanceName string
	upForce        bool
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Start an Emend instance",
	Long: `Start a new Emend instance for the current workspace.

Creates and starts:
  • Isolated Docker network
  • Redis container (pipeline state, audit log, event bus)

The Redis port is published on 127.0.0.1 so the orchestrator and the CLI
data commands can reach the instance from the host.

The instance name is auto-generated (default-N) unless specified with --name.
Workspace safety checks prevent multiple instances on the same directory unless --force is used.`,
	RunE: runUp,
}

func init() {
	upCmd.Flags().StringVar(&upInstanceName, "name", "", "Instance name (auto-generated if omitted)")
	upCmd.Flags().BoolVar(&upForce, "force", false, "Bypass workspace collision check")
	rootCmd.AddCommand(upCmd)
}

func runUp(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Phase 1: Configuration Validation
	cfg, err := config.Load("emend.yml")
	if err != nil {
		return printer.Error(
			"emend.yml not found or invalid",
			fmt.Sprintf("No valid configuration file found in the current directory.\n\nError details: %v", err),
			[]string{"Initialize your project first:\n  emend init\n\nThen retry: emend up"},
		)
	}

	// Create Docker client
	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	// Phase 2: Instance Name Determination
	targetInstanceName := upInstanceName
	if targetInstanceName == "" {
		// Auto-generate default-N name
		targetInstanceName, err = instance.GenerateDefaultName(ctx, cli)
		if err != nil {
			return fmt.Errorf("failed to generate instance name: %w", err)
		}
	}

	// Validate instance name
	if err := instance.ValidateName(targetInstanceName); err != nil {
		return printer.Error("invalid instance name", err.Error(), nil)
	}

	// Check for name collision
	nameCollision, err := instance.CheckNameCollision(ctx, cli, targetInstanceName)
	if err != nil {
		return err
	}
	if nameCollision {
		return printer.Error(
			fmt.Sprintf("instance '%s' already exists", targetInstanceName),
			"Found existing containers with this instance name.",
			[]string{
				fmt.Sprintf("Stop the existing instance:\n  emend down --name %s", targetInstanceName),
				"Choose a different name:\n  emend up --name other-name",
			},
		)
	}

	// Phase 3: Workspace Safety Check
	workspacePath, err := instance.GetCanonicalWorkspacePath()
	if err != nil {
		return fmt.Errorf("failed to get workspace path: %w", err)
	}

	if !upForce {
		collision, err := instance.CheckWorkspaceCollision(ctx, cli, workspacePath, targetInstanceName)
		if err != nil {
			return fmt.Errorf("failed to check workspace collision: %w", err)
		}
		if collision != nil {
			return printer.ErrorWithContext(
				"workspace in use",
				fmt.Sprintf("Another instance '%s' is already running on this workspace.", collision.InstanceName),
				map[string]string{
					"Workspace": collision.WorkspacePath,
					"Instance":  collision.InstanceName,
				},
				[]string{
					fmt.Sprintf("Stop the other instance:\n  emend down --name %s", collision.InstanceName),
					"Use --force to bypass this check (not recommended)",
				},
			)
		}
	}

	// Phase 4: Resource Creation
	runID := dockerpkg.GenerateRunID()
	redisPort, err := createInstance(ctx, cli, targetInstanceName, runID, workspacePath)
	if err != nil {
		// Attempt rollback on failure
		printer.Warning("resource creation failed, rolling back...\n")
		if rollbackErr := rollbackInstance(ctx, cli, targetInstanceName); rollbackErr != nil {
			printer.Warning("rollback encountered errors: %v\n", rollbackErr)
		}
		return fmt.Errorf("failed to create instance: %w", err)
	}

	// Success message
	printUpSuccess(cfg, targetInstanceName, workspacePath, redisPort)

	return nil
}

// createInstance allocates a host port, creates the instance network and
// starts the Redis container. Returns the allocated Redis port.
func createInstance(ctx context.Context, cli *client.Client, instanceName, runID, workspacePath string) (int, error) {
	// Step 1: Allocate Redis port
	redisPort, err := instance.FindNextAvailablePort(ctx, cli)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate Redis port: %w", err)
	}

	printer.Success("Allocated Redis port: %d\n", redisPort)

	// Step 2: Create isolated network
	networkName := dockerpkg.NetworkName(instanceName)
	networkLabels := dockerpkg.BuildLabels(instanceName, runID, workspacePath, "")

	_, err = cli.NetworkCreate(ctx, networkName, types.NetworkCreate{
		Driver: "bridge",
		Labels: networkLabels,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create network '%s': %w", networkName, err)
	}

	printer.Success("Created network: %s\n", networkName)

	// Step 3: Start Redis container with port mapping
	redisName := dockerpkg.RedisContainerName(instanceName)
	redisLabels := dockerpkg.BuildLabels(instanceName, runID, workspacePath, "redis")
	// Add Redis port label
	redisLabels[dockerpkg.LabelRedisPort] = fmt.Sprintf("%d", redisPort)

	redisResp, err := cli.ContainerCreate(ctx, &container.Config{
		Image:  redisImage,
		Labels: redisLabels,
		ExposedPorts: nat.PortSet{
			"6379/tcp": struct{}{},
		},
	}, &container.HostConfig{
		NetworkMode: container.NetworkMode(networkName),
		PortBindings: nat.PortMap{
			"6379/tcp": []nat.PortBinding{
				{
					HostIP:   "127.0.0.1",
					HostPort: fmt.Sprintf("%d", redisPort),
				},
			},
		},
	}, nil, nil, redisName)
	if err != nil {
		return 0, fmt.Errorf("failed to create Redis container: %w", err)
	}

	if err := cli.ContainerStart(ctx, redisResp.ID, container.StartOptions{}); err != nil {
		return 0, fmt.Errorf("failed to start Redis container: %w", err)
	}

	printer.Success("Started Redis container: %s (port %d)\n", redisName, redisPort)

	return redisPort, nil
}

func rollbackInstance(ctx context.Context, cli *client.Client, instanceName string) error {
	timeout := 10

	// Find all containers for this instance
	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", fmt.Sprintf("%s=%s", dockerpkg.LabelInstanceName, instanceName)),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}

	// Stop and remove containers
	for _, c := range containers {
		printer.Step("Stopping %s...\n", c.Names[0])
		_ = cli.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &timeout})

		printer.Step("Removing %s...\n", c.Names[0])
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			printer.Warning("failed to remove %s: %v\n", c.Names[0], err)
		}
	}

	// Remove network
	networks, err := cli.NetworkList(ctx, types.NetworkListOptions{
		Filters: filters.NewArgs(
			filters.Arg("label", fmt.Sprintf("%s=%s", dockerpkg.LabelInstanceName, instanceName)),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to list networks: %w", err)
	}

	for _, net := range networks {
		printer.Step("Removing network %s...\n", net.Name)
		if err := cli.NetworkRemove(ctx, net.ID); err != nil {
			printer.Warning("failed to remove network %s: %v\n", net.Name, err)
		}
	}

	return nil
}

func printUpSuccess(cfg *config.EmendConfig, instanceName, workspacePath string, redisPort int) {
	redisURL := instance.GetRedisURL(redisPort)

	printer.Success("Instance '%s' started successfully\n\n", instanceName)
	printer.Info("Containers:\n")
	printer.Info("  • %s (running)\n", dockerpkg.RedisContainerName(instanceName))
	printer.Info("\n")
	printer.Info("Network:\n")
	printer.Info("  • %s\n", dockerpkg.NetworkName(instanceName))
	printer.Info("\n")
	printer.Info("Workspace:  %s\n", workspacePath)
	printer.Info("Redis URL:  %s\n", redisURL)
	printer.Info("Capability: %s (%s)\n", cfg.Capability.Endpoint, cfg.Capability.Model)
	printer.Info("\n")
	printer.Info("Next steps:\n")
	printer.Info("  1. Start the orchestrator:\n")
	printer.Info("       EMEND_INSTANCE_NAME=%s REDIS_URL=%s emend-orchestrator\n", instanceName, redisURL)
	printer.Info("  2. Run 'emend ingest --standard <id> <file>' to feed sections\n")
	printer.Info("  3. Run 'emend down --name %s' when finished\n", instanceName)
}
