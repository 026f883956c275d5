package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/emendhq/emend/internal/audit"
	"github.com/emendhq/emend/internal/bus"
	"github.com/emendhq/emend/internal/capability"
	"github.com/emendhq/emend/internal/config"
	"github.com/emendhq/emend/internal/generate"
	"github.com/emendhq/emend/internal/orchestrator"
	"github.com/emendhq/emend/internal/review"
	"github.com/emendhq/emend/pkg/docket"
)

// defaultConfigPath assumes the orchestrator is started from the project
// directory, next to the configuration `emend init` created. Override
// with EMEND_CONFIG_PATH when running from elsewhere.
const defaultConfigPath = "emend.yml"

func main() {
	instanceName := os.Getenv("EMEND_INSTANCE_NAME")
	redisURL := os.Getenv("REDIS_URL")

	if instanceName == "" || redisURL == "" {
		fmt.Fprintf(os.Stderr, "Error: EMEND_INSTANCE_NAME and REDIS_URL must be set\n")
		os.Exit(1)
	}

	configPath := os.Getenv("EMEND_CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load %s: %v\n", configPath, err)
		os.Exit(1)
	}

	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid REDIS_URL: %v\n", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Redis not accessible: %v\n", err)
		os.Exit(1)
	}

	store, err := docket.NewStore(rdb, instanceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create store: %v\n", err)
		os.Exit(1)
	}

	auditLog, err := audit.NewRedisLog(rdb, instanceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create audit log: %v\n", err)
		os.Exit(1)
	}

	eventBus, err := bus.NewRedis(rdb, instanceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create event bus: %v\n", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	capClient, err := capability.NewClient(cfg.Capability.Endpoint, cfg.Capability.Model, cfg.Capability.Timeout())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create capability client: %v\n", err)
		os.Exit(1)
	}

	generator := generate.NewGenerator(capClient, cfg.Generator.Attempts, cfg.Generator.Timeout())

	pool := review.NewPool(capClient, review.Config{
		Reviewers: cfg.Review.Reviewers,
		Quorum:    cfg.Review.Quorum,
		Attempts:  cfg.Review.Attempts,
		Timeout:   cfg.Review.Timeout(),
		Thresholds: review.Thresholds{
			Approve:          *cfg.Review.ApproveThreshold,
			Revise:           *cfg.Review.ReviseThreshold,
			EscalationSpread: *cfg.Review.EscalationSpread,
		},
	})

	fmt.Printf("Orchestrator starting for instance '%s' (reviewers=%d quorum=%d)\n",
		instanceName, cfg.Review.Reviewers, cfg.Review.Quorum)

	engine := orchestrator.NewEngine(orchestrator.Deps{
		Store:     store,
		Bus:       eventBus,
		Audit:     auditLog,
		Generator: generator,
		Pool:      pool,
	}, instanceName, cfg.Review.MaxConcurrent, "")

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	errCh := make(chan error, 1)
	go func() {
		errCh <- engine.Run(runCtx)
	}()

	select {
	case sig := <-sigCh:
		fmt.Printf("Received signal %v, shutting down gracefully...\n", sig)
		cancel()
		<-errCh
	case runErr := <-errCh:
		if runErr != nil {
			fmt.Fprintf(os.Stderr, "Orchestrator error: %v\n", runErr)
			os.Exit(1)
		}
	}

	fmt.Println("Orchestrator stopped")
}
