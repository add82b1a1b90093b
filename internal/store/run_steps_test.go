package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/influai/control-plane/internal/events"
	"github.com/influai/control-plane/internal/influencer"
)

func stamped(seq int64, event events.Event) events.Event {
	event.RunID = "run-1"
	event.Seq = seq
	event.Ts = "t" + string(rune('0'+seq))
	return event
}

func TestApplyEvent_BuildsTimeline(t *testing.T) {
	run := Run{ID: "run-1"}
	for i, event := range []events.Event{
		events.Status(events.PhaseUnderstanding),
		events.AIOutput("AI Understanding: ok"),
		events.Status(events.PhaseSearching),
		events.Influencers(influencer.Fallback()),
		events.Status(events.PhaseCompleted),
	} {
		run = ApplyEvent(run, stamped(int64(i+1), event))
	}

	require.Equal(t, "completed", run.Status)
	require.Equal(t, 4, run.Candidates)
	require.EqualValues(t, 5, run.LastSeq)
	require.Len(t, run.Steps, 3)
	require.Equal(t, RunStep{Phase: "understanding", Status: StepCompleted, Seq: 1, StartedAt: "t1", CompletedAt: "t3"}, run.Steps[0])
	require.Equal(t, StepCompleted, run.Steps[1].Status)
	require.Equal(t, "completed", run.Steps[2].Phase)
	require.Empty(t, run.Reason)
}

func TestApplyEvent_RecordsFailure(t *testing.T) {
	run := Run{ID: "run-1"}
	run = ApplyEvent(run, stamped(1, events.Status(events.PhasePlanning)))
	run = ApplyEvent(run, stamped(2, events.Status(events.PhaseError)))
	run = ApplyEvent(run, stamped(3, events.AIOutput("An error occurred during automation: boom")))
	run = ApplyEvent(run, stamped(4, events.AIOutput("late")))

	require.Equal(t, "error", run.Status)
	require.Equal(t, "An error occurred during automation: boom", run.Reason)
	require.Len(t, run.Steps, 1)
	require.Equal(t, StepFailed, run.Steps[0].Status)
	require.Equal(t, run.Reason, run.Steps[0].Error)
}

func TestMergeRunStep(t *testing.T) {
	merged := MergeRunStep(RunStep{Phase: "planning", Status: StepRunning, Seq: 2}, RunStep{Status: StepFailed, Error: "x"})
	require.Equal(t, RunStep{Phase: "planning", Status: StepFailed, Seq: 2, Error: "x"}, merged)
}
