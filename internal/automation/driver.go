package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/influai/control-plane/internal/events"
	"github.com/influai/control-plane/internal/influencer"
	"github.com/influai/control-plane/internal/llm"
	"github.com/influai/control-plane/internal/metrics"
)

const (
	CompletionMessage = "Campaign automation process completed successfully!"
	SearchingMessage  = "AI is now searching for suitable influencers..."
	errorPrefix       = "An error occurred during automation: "
)

// Steps are the working phases in order; each is followed by its pacing delay.
var Steps = []events.Phase{
	events.PhaseUnderstanding,
	events.PhasePlanning,
	events.PhaseSearching,
	events.PhaseSelecting,
	events.PhaseNegotiating,
}

// BaseDelays pace the UI animation between steps. They carry no functional meaning.
var BaseDelays = map[events.Phase]time.Duration{
	events.PhaseUnderstanding: 1500 * time.Millisecond,
	events.PhasePlanning:      2000 * time.Millisecond,
	events.PhaseSearching:     2500 * time.Millisecond,
	events.PhaseSelecting:     2000 * time.Millisecond,
	events.PhaseNegotiating:   2000 * time.Millisecond,
}

type Driver struct {
	generator llm.Provider
	searcher  influencer.Searcher
	pacing    func(base time.Duration) time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *zap.Logger
}

type Option func(*Driver)

// WithPacing scales the base delays; returning zero disables a delay.
func WithPacing(scale func(base time.Duration) time.Duration) Option {
	return func(d *Driver) {
		if scale != nil {
			d.pacing = scale
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Driver) {
		if sleep != nil {
			d.sleep = sleep
		}
	}
}

func NewDriver(generator llm.Provider, searcher influencer.Searcher, opts ...Option) *Driver {
	d := &Driver{
		generator: generator,
		searcher:  searcher,
		pacing:    func(base time.Duration) time.Duration { return base },
		sleep:     sleepContext,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Execute drives the whole fixed sequence. On failure it emits the error pair and returns
// the cause; the caller closes the stream either way.
func (d *Driver) Execute(ctx context.Context, run *Run) error {
	done := metrics.RunStarted()
	logger := d.logger.With(zap.String("run_id", run.ID))
	logger.Info("automation run started", zap.String("campaign", run.Request.Name))

	for _, phase := range Steps {
		if err := d.RunStep(ctx, run, phase); err != nil {
			return d.abort(ctx, run, phase, err, done)
		}
		if err := d.sleep(ctx, d.Delay(phase)); err != nil {
			return d.abort(ctx, run, phase, err, done)
		}
	}
	if err := d.RunStep(ctx, run, events.PhaseCompleted); err != nil {
		return d.abort(ctx, run, events.PhaseCompleted, err, done)
	}
	done("completed")
	logger.Info("automation run completed")
	return nil
}

func (d *Driver) abort(ctx context.Context, run *Run, phase events.Phase, cause error, done func(string)) error {
	outcome := "failed"
	if errors.Is(cause, context.Canceled) {
		outcome = "cancelled"
	}
	done(outcome)
	d.logger.Error("automation run failed",
		zap.String("run_id", run.ID),
		zap.String("phase", string(phase)),
		zap.Error(cause))
	if err := d.Fail(ctx, run, cause); err != nil {
		d.logger.Warn("failed to emit run error", zap.String("run_id", run.ID), zap.Error(err))
	}
	return cause
}

// Delay is the pacing delay that follows phase.
func (d *Driver) Delay(phase events.Phase) time.Duration {
	base, ok := BaseDelays[phase]
	if !ok {
		return 0
	}
	return d.pacing(base)
}

// RunStep executes exactly one phase. Steps are independent apart from the candidate list,
// which a separate process must seed with SetCandidates before selecting.
func (d *Driver) RunStep(ctx context.Context, run *Run, phase events.Phase) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	started := time.Now()
	err := d.runStep(ctx, run, phase)
	metrics.ObserveStep(string(phase), err == nil, time.Since(started))
	return err
}

func (d *Driver) runStep(ctx context.Context, run *Run, phase events.Phase) error {
	req := run.Request
	switch phase {
	case events.PhaseUnderstanding:
		return d.narrate(ctx, run, phase, "AI Understanding: ", understandingPrompt(req))
	case events.PhasePlanning:
		return d.narrate(ctx, run, phase, "AI Planning: ", planningPrompt(req))
	case events.PhaseSearching:
		return d.search(ctx, run)
	case events.PhaseSelecting:
		return d.narrate(ctx, run, phase, "AI Selection Logic: ", selectionPrompt(req, run.Candidates()))
	case events.PhaseNegotiating:
		return d.narrate(ctx, run, phase, "AI Negotiation Strategy: ", negotiationPrompt(req))
	case events.PhaseCompleted:
		if err := run.Emit(ctx, events.Status(events.PhaseCompleted)); err != nil {
			return err
		}
		return run.Emit(ctx, events.AIOutput(CompletionMessage))
	default:
		return fmt.Errorf("unknown automation step %q", phase)
	}
}

func (d *Driver) narrate(ctx context.Context, run *Run, phase events.Phase, prefix string, prompt string) error {
	if err := run.Emit(ctx, events.Status(phase)); err != nil {
		return err
	}
	if d.generator == nil {
		return errors.New("generative AI provider is not configured")
	}
	text, err := llm.GenerateText(ctx, d.generator, prompt)
	if err != nil {
		return err
	}
	return run.Emit(ctx, events.AIOutput(prefix+text))
}

func (d *Driver) search(ctx context.Context, run *Run) error {
	if err := run.Emit(ctx, events.Status(events.PhaseSearching)); err != nil {
		return err
	}
	if err := run.Emit(ctx, events.AIOutput(SearchingMessage)); err != nil {
		return err
	}
	candidates, fallbackErr := influencer.SearchOrFallback(ctx, d.searcher, run.Request.SearchQuery())
	if fallbackErr != nil {
		reason := influencer.FallbackReason(fallbackErr)
		metrics.SearchFallback(reason)
		d.logger.Warn("influencer search unavailable, using fallback list",
			zap.String("run_id", run.ID),
			zap.String("reason", reason),
			zap.Error(fallbackErr))
	}
	run.SetCandidates(candidates)
	if err := run.Emit(ctx, events.Influencers(candidates)); err != nil {
		return err
	}
	return run.Emit(ctx, events.AIOutput(fmt.Sprintf("Found %d potential influencers.", len(candidates))))
}

// Fail emits the error status followed by the human-readable reason. It uses a context
// detached from cancellation so a cancelled run still records why it stopped.
func (d *Driver) Fail(ctx context.Context, run *Run, cause error) error {
	emitCtx := context.WithoutCancel(ctx)
	if err := run.Emit(emitCtx, events.Status(events.PhaseError)); err != nil {
		return err
	}
	return run.Emit(emitCtx, events.AIOutput(errorPrefix+ErrorMessage(cause)))
}

// ErrorMessage is the text shown to the user for a failed run; never empty.
func ErrorMessage(err error) string {
	switch {
	case err == nil:
		return "unknown error"
	case errors.Is(err, context.Canceled):
		return "automation cancelled"
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "unknown error"
	}
	return msg
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
