package commands

import (
	"context"
	"fmt"

	dockerpkg "github.com/emendhq/emend/internal/docker"
	"github.com/emendhq/emend/internal/instance"
	"github.com/emendhq/emend/internal/printer"
	"github.com/emendhq/emend/pkg/docket"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// instanceConnection bundles what a data command needs to talk to one
// running instance.
type instanceConnection struct {
	InstanceName string
	RedisPort    int
	Client       *redis.Client
	Store        *docket.Store
}

func (c *instanceConnection) Close() {
	c.Client.Close()
}

// connectInstance resolves the target instance (explicit --name or
// workspace inference), verifies its Redis container is running, reads
// the published port off the container labels and returns a connected
// store. Callers own the connection and must Close it.
func connectInstance(ctx context.Context, nameFlag string) (*instanceConnection, error) {
	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	defer cli.Close()

	targetInstanceName := nameFlag
	if targetInstanceName == "" {
		targetInstanceName, err = instance.InferInstanceFromWorkspace(ctx, cli)
		if err != nil {
			if err.Error() == "no Emend instances found for this workspace" {
				return nil, printer.Error(
					"no Emend instances found",
					"No running instances found for this workspace.",
					[]string{"Start an instance first:\n  emend up"},
				)
			}
			if err.Error() == "multiple instances found for this workspace, use --name to specify which one" {
				return nil, printer.Error(
					"multiple instances found",
					"Found multiple running instances for this workspace.",
					[]string{
						"Specify the instance:\n  --name <instance-name>",
						"List instances:\n  emend instances",
					},
				)
			}
			return nil, fmt.Errorf("failed to infer instance: %w", err)
		}
	}

	// Verify instance is running
	if err := instance.VerifyInstanceRunning(ctx, cli, targetInstanceName); err != nil {
		return nil, printer.Error(
			fmt.Sprintf("instance '%s' is not running", targetInstanceName),
			fmt.Sprintf("Error: %v", err),
			[]string{fmt.Sprintf("Start the instance:\n  emend up --name %s", targetInstanceName)},
		)
	}

	// Get Redis port
	redisPort, err := instance.GetInstanceRedisPort(ctx, cli, targetInstanceName)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"Redis port not found",
			fmt.Sprintf("Instance '%s' exists but its Redis port label is missing.", targetInstanceName),
			nil,
			[]string{fmt.Sprintf("Restart the instance:\n  emend down --name %s\n  emend up --name %s", targetInstanceName, targetInstanceName)},
		)
	}

	// Connect to the instance Redis
	redisURL := instance.GetRedisURL(redisPort)
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", redisURL),
			nil,
			[]string{
				fmt.Sprintf("Check Redis container status:\n  docker logs %s", dockerpkg.RedisContainerName(targetInstanceName)),
				fmt.Sprintf("Restart if needed:\n  emend down --name %s\n  emend up --name %s", targetInstanceName, targetInstanceName),
			},
		)
	}

	store, err := docket.NewStore(rdb, targetInstanceName)
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	return &instanceConnection{
		InstanceName: targetInstanceName,
		RedisPort:    redisPort,
		Client:       rdb,
		Store:        store,
	}, nil
}

// exactArgs wraps cobra.ExactArgs so argument-count mistakes surface
// through the printer like every other CLI error.
func exactArgs(n int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return printer.Error(
				fmt.Sprintf("expected %d argument(s), got %d", n, len(args)),
				fmt.Sprintf("Usage:\n  %s", usage),
				nil,
			)
		}
		return nil
	}
}
