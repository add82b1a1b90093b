package automation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/influai/control-plane/internal/events"
	"github.com/influai/control-plane/internal/influencer"
)

var ErrRunFinished = errors.New("run already reached a terminal status")

type Emitter interface {
	Emit(ctx context.Context, event events.Event) error
}

type EmitterFunc func(ctx context.Context, event events.Event) error

func (f EmitterFunc) Emit(ctx context.Context, event events.Event) error {
	return f(ctx, event)
}

// Run is the state of one automation run. It is owned by a single driver goroutine;
// readers such as HTTP handlers use the accessor methods.
type Run struct {
	ID      string
	Request Request

	mu         sync.Mutex
	emitter    Emitter
	seq        int64
	phase      events.Phase
	candidates []influencer.Candidate
}

func NewRun(id string, req Request, emitter Emitter) *Run {
	return &Run{ID: id, Request: req, emitter: emitter}
}

// Emit stamps the event with run id, sequence and time, then hands it to the emitter.
// No status may follow a terminal status.
func (r *Run) Emit(ctx context.Context, event events.Event) error {
	r.mu.Lock()
	if r.phase.Terminal() && event.Kind == events.KindStatus {
		r.mu.Unlock()
		return ErrRunFinished
	}
	if event.Kind == events.KindStatus {
		if phase, err := event.Phase(); err == nil {
			r.phase = phase
		}
	}
	r.seq++
	event.RunID = r.ID
	event.Seq = r.seq
	event.Ts = time.Now().UTC().Format(time.RFC3339Nano)
	emitter := r.emitter
	r.mu.Unlock()

	if emitter == nil {
		return nil
	}
	return emitter.Emit(ctx, event)
}

func (r *Run) Phase() events.Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

func (r *Run) Candidates() []influencer.Candidate {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]influencer.Candidate, len(r.candidates))
	copy(out, r.candidates)
	return out
}

// SetCandidates seeds the candidate list, used when a step runs in a separate process.
func (r *Run) SetCandidates(candidates []influencer.Candidate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.candidates = append([]influencer.Candidate(nil), candidates...)
}
