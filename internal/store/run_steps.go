package store

import (
	"github.com/influai/control-plane/internal/events"
)

const (
	StepRunning   = "running"
	StepCompleted = "completed"
	StepFailed    = "failed"
)

// RunStep is the timeline entry of one phase, derived from the run's status events.
type RunStep struct {
	Phase       string `json:"phase"`
	Status      string `json:"status"`
	Seq         int64  `json:"seq"`
	StartedAt   string `json:"started_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ApplyEvent folds one event into the run summary: status events advance the step
// timeline, influencers events record the candidate count, and the ai_output that
// follows an error status becomes the failure reason.
func ApplyEvent(run Run, event events.Event) Run {
	if event.Seq > run.LastSeq {
		run.LastSeq = event.Seq
	}
	if event.Ts != "" {
		run.UpdatedAt = event.Ts
	}
	switch event.Kind {
	case events.KindStatus:
		phase, err := event.Phase()
		if err != nil {
			return run
		}
		run.Status = string(phase)
		run.Steps = advanceSteps(run.Steps, phase, event)
	case events.KindInfluencers:
		candidates, err := event.Candidates()
		if err == nil {
			run.Candidates = len(candidates)
		}
	case events.KindAIOutput:
		if run.Status != string(events.PhaseError) || run.Reason != "" {
			return run
		}
		if text, err := event.Text(); err == nil {
			run.Reason = text
			if n := len(run.Steps); n > 0 && run.Steps[n-1].Status == StepFailed {
				run.Steps[n-1].Error = text
			}
		}
	}
	return run
}

func advanceSteps(steps []RunStep, phase events.Phase, event events.Event) []RunStep {
	steps = append([]RunStep(nil), steps...)
	n := len(steps)
	if phase == events.PhaseError {
		if n > 0 && steps[n-1].Status == StepRunning {
			steps[n-1].Status = StepFailed
			steps[n-1].CompletedAt = event.Ts
		}
		return steps
	}
	if n > 0 && steps[n-1].Status == StepRunning {
		steps[n-1] = MergeRunStep(steps[n-1], RunStep{Status: StepCompleted, CompletedAt: event.Ts})
	}
	step := RunStep{Phase: string(phase), Status: StepRunning, Seq: event.Seq, StartedAt: event.Ts}
	if phase == events.PhaseCompleted {
		step.Status = StepCompleted
		step.CompletedAt = event.Ts
	}
	return append(steps, step)
}

// MergeRunStep overlays the non-empty fields of incoming onto existing.
func MergeRunStep(existing RunStep, incoming RunStep) RunStep {
	merged := existing
	if incoming.Phase != "" {
		merged.Phase = incoming.Phase
	}
	if incoming.Status != "" {
		merged.Status = incoming.Status
	}
	if incoming.Seq > 0 {
		merged.Seq = incoming.Seq
	}
	if incoming.StartedAt != "" {
		merged.StartedAt = incoming.StartedAt
	}
	if incoming.CompletedAt != "" {
		merged.CompletedAt = incoming.CompletedAt
	}
	if incoming.Error != "" {
		merged.Error = incoming.Error
	}
	return merged
}
