package workflows

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/influai/control-plane/internal/automation"
)

// CampaignActivities execute single automation steps on a worker and forward the
// resulting events to the control plane.
type CampaignActivities struct {
	driver  *automation.Driver
	emitter func(runID string) automation.Emitter
	logger  *zap.Logger
}

func NewCampaignActivities(driver *automation.Driver, emitter func(runID string) automation.Emitter, logger *zap.Logger) *CampaignActivities {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CampaignActivities{driver: driver, emitter: emitter, logger: logger}
}

func (a *CampaignActivities) RunStep(ctx context.Context, input StepInput) (StepOutput, error) {
	if strings.TrimSpace(input.RunID) == "" {
		return StepOutput{}, errors.New("run_id required")
	}
	run := automation.NewRun(input.RunID, input.Request, a.emitter(input.RunID))
	run.SetCandidates(input.Candidates)
	if err := a.driver.RunStep(ctx, run, input.Phase); err != nil {
		a.logger.Warn("campaign step failed",
			zap.String("run_id", input.RunID),
			zap.String("phase", string(input.Phase)),
			zap.Error(err))
		return StepOutput{}, err
	}
	return StepOutput{Candidates: run.Candidates()}, nil
}

func (a *CampaignActivities) HandleRunFailure(ctx context.Context, input RunFailureInput) error {
	if strings.TrimSpace(input.RunID) == "" {
		return errors.New("run_id required")
	}
	var cause error = context.Canceled
	if !input.Cancelled {
		detail := strings.TrimSpace(input.Error)
		if detail == "" {
			detail = "unknown workflow activity error"
		}
		cause = errors.New(detail)
	}
	run := automation.NewRun(input.RunID, input.Request, a.emitter(input.RunID))
	return a.driver.Fail(ctx, run, cause)
}
