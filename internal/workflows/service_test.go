package workflows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"

	"github.com/influai/control-plane/internal/automation"
	"github.com/influai/control-plane/internal/events"
)

func TestNewServiceDefaultsTaskQueue(t *testing.T) {
	service := NewService(mocks.NewClient(t), "")
	require.Equal(t, DefaultTaskQueue, service.taskQueue)
}

func TestStartRun_Success(t *testing.T) {
	mockClient := mocks.NewClient(t)
	workflowRun := mocks.NewWorkflowRun(t)
	runID := "run-123"
	taskQueue := "influai-test"
	req := automation.Request{Name: "Launch"}
	delays := map[events.Phase]time.Duration{events.PhasePlanning: time.Second}

	mockClient.On(
		"ExecuteWorkflow",
		mock.Anything,
		mock.MatchedBy(func(opts client.StartWorkflowOptions) bool {
			return opts.ID == workflowID(runID) && opts.TaskQueue == taskQueue
		}),
		mock.Anything,
		CampaignInput{RunID: runID, Request: req, Delays: delays},
	).Return(workflowRun, nil)

	service := NewService(mockClient, taskQueue)
	require.NoError(t, service.StartRun(context.Background(), runID, req, delays))
}

func TestStartRun_Error(t *testing.T) {
	mockClient := mocks.NewClient(t)
	expectedErr := errors.New("start failed")

	mockClient.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return((*mocks.WorkflowRun)(nil), expectedErr)

	service := NewService(mockClient, "influai-test")
	err := service.StartRun(context.Background(), "run-err", automation.Request{}, nil)
	require.ErrorIs(t, err, expectedErr)
}

func TestCancelRun(t *testing.T) {
	mockClient := mocks.NewClient(t)
	expectedErr := errors.New("not found")

	mockClient.On("CancelWorkflow", mock.Anything, workflowID("run-2"), "").Return(nil).Once()
	mockClient.On("CancelWorkflow", mock.Anything, workflowID("missing"), "").Return(expectedErr).Once()

	service := NewService(mockClient, "influai-test")
	require.NoError(t, service.CancelRun(context.Background(), "run-2"))
	require.ErrorIs(t, service.CancelRun(context.Background(), "missing"), expectedErr)
}

func TestPing(t *testing.T) {
	mockClient := mocks.NewClient(t)
	mockClient.On("CheckHealth", mock.Anything, mock.Anything).Return(&client.CheckHealthResponse{}, nil)

	require.NoError(t, NewService(mockClient, "").Ping(context.Background()))
}

func TestWorkflowID(t *testing.T) {
	require.Equal(t, "campaign:run-1", workflowID("run-1"))
}
