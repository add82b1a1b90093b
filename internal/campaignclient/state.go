package campaignclient

import (
	"fmt"

	"github.com/influai/control-plane/internal/events"
	"github.com/influai/control-plane/internal/influencer"
)

// RunState is what a caller renders while a run streams in.
type RunState struct {
	RunID      string
	Status     events.Phase
	Log        []string
	Candidates []influencer.Candidate
	LastSeq    int64
}

// Apply folds one event into the state. Unknown kinds are ignored.
func (s *RunState) Apply(event events.Event) error {
	if event.RunID != "" {
		s.RunID = event.RunID
	}
	if event.Seq > s.LastSeq {
		s.LastSeq = event.Seq
	}
	switch event.Kind {
	case events.KindStatus:
		phase, err := event.Phase()
		if err != nil {
			return err
		}
		s.Status = phase
	case events.KindAIOutput:
		text, err := event.Text()
		if err != nil {
			return err
		}
		s.Log = append(s.Log, text)
	case events.KindInfluencers:
		candidates, err := event.Candidates()
		if err != nil {
			return err
		}
		if candidates == nil {
			candidates = []influencer.Candidate{}
		}
		s.Candidates = candidates
	}
	return nil
}

// Fail moves the state to error and records err as the last log line.
func (s *RunState) Fail(err error) {
	s.Status = events.PhaseError
	if err != nil {
		s.Log = append(s.Log, "Error: "+err.Error())
	}
}

// Reason is the most recent log line, which explains an error status.
func (s RunState) Reason() string {
	if len(s.Log) == 0 {
		return ""
	}
	return s.Log[len(s.Log)-1]
}

func (s RunState) Done() bool {
	return s.Status.Terminal()
}

// RunError reports a run that the server ended with an error status.
type RunError struct {
	RunID  string
	Reason string
}

func (e *RunError) Error() string {
	if e.Reason == "" {
		return "automation run failed"
	}
	return "automation run failed: " + e.Reason
}

// StatusError is a non-OK answer from the control plane.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP error! status: %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("HTTP error! status: %d", e.Code)
}
