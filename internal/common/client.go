package common

import (
	"context"
	"fmt"
	"time"

	"trpc.group/trpc-go/trpc-a2a-go/client"
	"trpc.group/trpc-go/trpc-a2a-go/protocol"

	"github.com/tuannvm/workitem-qa/internal/config"
	log "github.com/tuannvm/workitem-qa/internal/logging"
)

// SetupA2AClient creates an A2A client for targetURL that authenticates the
// way the agent expects.
func SetupA2AClient(cfg *config.Config, targetURL string) (*client.A2AClient, error) {
	var opts []client.Option
	switch cfg.AuthType {
	case "apikey":
		log.Debugf("A2A client uses API key authentication")
		opts = append(opts, client.WithAPIKeyAuth(cfg.APIKey, apiKeyHeader))
	case "jwt":
		// Tokens are issued out of band.
		log.Warnf("JWT authentication selected for A2A client, no token is attached")
	default:
		log.Warnf("No authentication configured for A2A client")
	}

	c, err := client.NewA2AClient(targetURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create A2A client: %w", err)
	}
	return c, nil
}

// AwaitTask polls a task until it reaches a final state or ctx is done.
func AwaitTask(ctx context.Context, c *client.A2AClient, taskID string, every time.Duration) (*protocol.Task, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for task %s: %w", taskID, ctx.Err())
		case <-ticker.C:
		}

		task, err := c.GetTasks(ctx, protocol.TaskQueryParams{ID: taskID})
		if err != nil {
			return nil, fmt.Errorf("failed to get task %s: %w", taskID, err)
		}
		log.Debugf("Task %s status: %s", taskID, task.Status.State)
		switch task.Status.State {
		case "completed", "failed", "canceled":
			return task, nil
		}
	}
}
