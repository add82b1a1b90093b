package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/influai/control-plane/internal/influencer"
)

type Kind string

const (
	KindStatus      Kind = "status"
	KindAIOutput    Kind = "ai_output"
	KindInfluencers Kind = "influencers"
)

func (k Kind) Valid() bool {
	switch k {
	case KindStatus, KindAIOutput, KindInfluencers:
		return true
	}
	return false
}

// Phase is the payload of a status event.
type Phase string

const (
	PhaseUnderstanding Phase = "understanding"
	PhasePlanning      Phase = "planning"
	PhaseSearching     Phase = "searching"
	PhaseSelecting     Phase = "selecting"
	PhaseNegotiating   Phase = "negotiating"
	PhaseCompleted     Phase = "completed"
	PhaseError         Phase = "error"
)

// Phases lists the non-error phases in emission order.
var Phases = []Phase{
	PhaseUnderstanding,
	PhasePlanning,
	PhaseSearching,
	PhaseSelecting,
	PhaseNegotiating,
	PhaseCompleted,
}

func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseError
}

func (p Phase) Valid() bool {
	if p == PhaseError {
		return true
	}
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}

// Event is one frame of an automation stream. Data holds a JSON string for status and
// ai_output events and a JSON array of candidates for influencers events.
type Event struct {
	RunID string          `json:"run_id,omitempty"`
	Seq   int64           `json:"seq,omitempty"`
	Kind  Kind            `json:"kind"`
	Ts    string          `json:"ts,omitempty"`
	Data  json.RawMessage `json:"data"`
}

func NormalizeKind(kind string) Kind {
	return Kind(strings.TrimSpace(strings.ToLower(kind)))
}

func Status(phase Phase) Event {
	return Event{Kind: KindStatus, Data: mustString(string(phase))}
}

func AIOutput(text string) Event {
	return Event{Kind: KindAIOutput, Data: mustString(text)}
}

func Influencers(candidates []influencer.Candidate) Event {
	if candidates == nil {
		candidates = []influencer.Candidate{}
	}
	data, err := json.Marshal(candidates)
	if err != nil {
		data = []byte("[]")
	}
	return Event{Kind: KindInfluencers, Data: data}
}

func mustString(value string) json.RawMessage {
	data, _ := json.Marshal(value)
	return data
}

func (e Event) Phase() (Phase, error) {
	if e.Kind != KindStatus {
		return "", fmt.Errorf("event kind %q has no phase", e.Kind)
	}
	text, err := e.text()
	if err != nil {
		return "", err
	}
	return Phase(text), nil
}

func (e Event) Text() (string, error) {
	if e.Kind != KindAIOutput {
		return "", fmt.Errorf("event kind %q has no text", e.Kind)
	}
	return e.text()
}

func (e Event) Candidates() ([]influencer.Candidate, error) {
	if e.Kind != KindInfluencers {
		return nil, fmt.Errorf("event kind %q has no candidates", e.Kind)
	}
	var candidates []influencer.Candidate
	if err := json.Unmarshal(e.Data, &candidates); err != nil {
		return nil, fmt.Errorf("decode influencers payload: %w", err)
	}
	return candidates, nil
}

// Terminal reports whether the event ends a run.
func (e Event) Terminal() bool {
	phase, err := e.Phase()
	return err == nil && phase.Terminal()
}

func (e Event) text() (string, error) {
	var text string
	if err := json.Unmarshal(e.Data, &text); err != nil {
		return "", fmt.Errorf("decode %s payload: %w", e.Kind, err)
	}
	return text, nil
}
