package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	dockerpkg "github.com/emendhq/emend/internal/docker"
	"github.com/emendhq/emend/internal/instance"
	"github.com/spf13/cobra"
)

var (
	instancesJSON bool
)

var instancesCmd = &cobra.Command{
	Use:   "instances",
	Short: "List all Emend instances",
	Long: `List all Emend instances by querying Docker for containers with the emend.project label.

For each instance, displays:
  • Instance name
  • Status (Running/Degraded/Stopped)
  • Workspace path
  • Redis port
  • Uptime (for running instances)

Use --json for machine-readable output.`,
	RunE: runInstances,
}

func init() {
	instancesCmd.Flags().BoolVar(&instancesJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(instancesCmd)
}

func runInstances(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Create Docker client
	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	// Find all Emend containers
	containerFilters := filters.NewArgs()
	containerFilters.Add("label", fmt.Sprintf("%s=true", dockerpkg.LabelProject))

	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: containerFilters,
	})
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}

	// Group by instance name
	instances := make(map[string][]types.Container)
	for _, c := range containers {
		instanceName := c.Labels[dockerpkg.LabelInstanceName]
		instances[instanceName] = append(instances[instanceName], c)
	}

	// Build instance info
	var infos []instance.InstanceInfo
	for name, containers := range instances {
		status := instance.DetermineStatus(containers)

		// Get metadata from first container (all have same labels)
		workspacePath := containers[0].Labels[dockerpkg.LabelWorkspacePath]
		createdAt := containers[0].Created

		// Calculate uptime (for Running status only)
		var uptime string
		if status == instance.StatusRunning {
			duration := time.Since(time.Unix(createdAt, 0))
			uptime = formatDuration(duration)
		} else {
			uptime = "-"
		}

		infos = append(infos, instance.InstanceInfo{
			Name:      name,
			Status:    status,
			Workspace: workspacePath,
			RedisPort: redisPortFromLabels(containers),
			Uptime:    uptime,
		})
	}

	// Sort by name
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})

	// Output
	if len(infos) == 0 {
		if !instancesJSON {
			fmt.Println("No Emend instances found.")
			fmt.Println()
			fmt.Println("Run 'emend up' to start a new instance.")
		} else {
			fmt.Println("[]")
		}
		return nil
	}

	if instancesJSON {
		outputInstancesJSON(infos)
	} else {
		outputInstancesTable(infos)
	}

	return nil
}

// redisPortFromLabels pulls the published Redis port off the instance's
// redis container. Returns 0 when the label is absent.
func redisPortFromLabels(containers []types.Container) int {
	for _, c := range containers {
		if c.Labels[dockerpkg.LabelComponent] != "redis" {
			continue
		}
		port, err := strconv.Atoi(c.Labels[dockerpkg.LabelRedisPort])
		if err != nil {
			return 0
		}
		return port
	}
	return 0
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)

	hours := d / time.Hour
	d -= hours * time.Hour

	minutes := d / time.Minute
	d -= minutes * time.Minute

	seconds := d / time.Second

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	} else {
		return fmt.Sprintf("%ds", seconds)
	}
}

func outputInstancesJSON(infos []instance.InstanceInfo) {
	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func outputInstancesTable(infos []instance.InstanceInfo) {
	// Print header
	fmt.Printf("%-15s %-10s %-30s %-6s %s\n", "INSTANCE", "STATUS", "WORKSPACE", "PORT", "UPTIME")

	// Print rows
	for _, info := range infos {
		// Truncate workspace if too long
		workspace := info.Workspace
		if len(workspace) > 30 {
			workspace = "..." + workspace[len(workspace)-27:]
		}

		port := "-"
		if info.RedisPort > 0 {
			port = strconv.Itoa(info.RedisPort)
		}

		fmt.Printf("%-15s %-10s %-30s %-6s %s\n", info.Name, info.Status, workspace, port, info.Uptime)
	}
}
