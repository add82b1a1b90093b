package workflows

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/influai/control-plane/internal/automation"
	"github.com/influai/control-plane/internal/events"
	"github.com/influai/control-plane/internal/influencer"
)

const (
	RunStepActivity          = "RunStep"
	HandleRunFailureActivity = "HandleRunFailure"
)

type CampaignInput struct {
	RunID   string
	Request automation.Request
	Delays  map[events.Phase]time.Duration
}

type CampaignResult struct {
	Status string
	Error  string
}

type StepInput struct {
	RunID      string
	Request    automation.Request
	Phase      events.Phase
	Candidates []influencer.Candidate
}

type StepOutput struct {
	Candidates []influencer.Candidate
}

type RunFailureInput struct {
	RunID     string
	Request   automation.Request
	Error     string
	Cancelled bool
}

// CampaignWorkflow runs the automation steps as separate activities. Nothing is retried:
// a failed step ends the run with an error status, as the inline relay does.
func CampaignWorkflow(ctx workflow.Context, input CampaignInput) (CampaignResult, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})
	logger := workflow.GetLogger(ctx)

	var candidates []influencer.Candidate
	phases := append(append([]events.Phase{}, automation.Steps...), events.PhaseCompleted)
	for _, phase := range phases {
		var out StepOutput
		err := workflow.ExecuteActivity(ctx, RunStepActivity, StepInput{
			RunID:      input.RunID,
			Request:    input.Request,
			Phase:      phase,
			Candidates: candidates,
		}).Get(ctx, &out)
		if err != nil {
			logger.Error("campaign step failed", "run_id", input.RunID, "phase", string(phase), "error", err)
			return failRun(ctx, input, err), nil
		}
		if phase == events.PhaseSearching {
			candidates = out.Candidates
		}
		if delay := input.Delays[phase]; delay > 0 {
			if err := workflow.Sleep(ctx, delay); err != nil {
				return failRun(ctx, input, err), nil
			}
		}
	}
	return CampaignResult{Status: string(events.PhaseCompleted)}, nil
}

func failRun(ctx workflow.Context, input CampaignInput, cause error) CampaignResult {
	logger := workflow.GetLogger(ctx)
	failure := RunFailureInput{RunID: input.RunID, Request: input.Request, Error: failureMessage(cause)}
	result := CampaignResult{Status: string(events.PhaseError), Error: failure.Error}
	if temporal.IsCanceledError(cause) {
		failure.Cancelled = true
		result = CampaignResult{Status: "cancelled"}
		// The workflow context is already cancelled; report on a detached one.
		disconnected, cancel := workflow.NewDisconnectedContext(ctx)
		defer cancel()
		ctx = disconnected
	}
	if err := workflow.ExecuteActivity(ctx, HandleRunFailureActivity, failure).Get(ctx, nil); err != nil {
		logger.Error("failed to report run failure", "run_id", input.RunID, "error", err)
	}
	return result
}

// failureMessage unwraps the activity error down to the message the step returned.
func failureMessage(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	return err.Error()
}
