package workflows

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/influai/control-plane/internal/automation"
	"github.com/influai/control-plane/internal/events"
)

const DefaultTaskQueue = "influai-campaigns"

type Service struct {
	client    client.Client
	taskQueue string
}

func NewService(client client.Client, taskQueue string) *Service {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	return &Service{client: client, taskQueue: taskQueue}
}

// StartRun schedules a detached campaign run. delays maps each step to the pause that
// follows it.
func (s *Service) StartRun(ctx context.Context, runID string, req automation.Request, delays map[events.Phase]time.Duration) error {
	options := client.StartWorkflowOptions{
		ID:        workflowID(runID),
		TaskQueue: s.taskQueue,
	}
	_, err := s.client.ExecuteWorkflow(ctx, options, CampaignWorkflow, CampaignInput{
		RunID:   runID,
		Request: req,
		Delays:  delays,
	})
	return err
}

func (s *Service) CancelRun(ctx context.Context, runID string) error {
	return s.client.CancelWorkflow(ctx, workflowID(runID), "")
}

func (s *Service) Ping(ctx context.Context) error {
	_, err := s.client.CheckHealth(ctx, &client.CheckHealthRequest{})
	return err
}

func workflowID(runID string) string {
	return fmt.Sprintf("campaign:%s", runID)
}
