package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/influai/control-plane/internal/automation"
	"github.com/influai/control-plane/internal/config"
	"github.com/influai/control-plane/internal/events"
	"github.com/influai/control-plane/internal/store"
	"github.com/influai/control-plane/internal/stream"
)

// RunIDHeader names the inline run on its streaming response, since inline SSE frames
// carry only the event and data fields.
const RunIDHeader = "X-Run-ID"

// campaignAutomation runs the whole automation inline and streams its events on the
// response. Validation problems are answered as JSON before the stream opens.
func (s *Server) campaignAutomation(w http.ResponseWriter, r *http.Request) {
	if s.driver == nil {
		writeError(w, http.StatusInternalServerError, config.ErrMissingGoogleAPIKey.Error())
		return
	}
	req, ok := s.readCampaignRequest(w, r)
	if !ok {
		return
	}

	runID := uuid.New().String()
	w.Header().Set(RunIDHeader, runID)
	format := stream.FormatFromRequest(r.Header.Get("Accept"), r.URL.Query().Get("format"))
	writer, err := stream.NewHTTPWriter(w, format, stream.WithoutEventIDs())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.trackRun(runID, cancel)
	defer s.untrackRun(runID)
	s.recordRun(ctx, runID, store.RunModeInline, req)

	stopHeartbeat := s.heartbeat(ctx, writer)
	defer stopHeartbeat()

	run := automation.NewRun(runID, req, automation.EmitterFunc(func(ctx context.Context, event events.Event) error {
		s.persist(ctx, event)
		return writer.Write(event)
	}))
	if err := s.driver.Execute(ctx, run); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug("inline automation ended with error", zap.String("run_id", runID), zap.Error(err))
	}
}

func (s *Server) readCampaignRequest(w http.ResponseWriter, r *http.Request) (automation.Request, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes()))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return automation.Request{}, false
		}
		writeError(w, http.StatusBadRequest, "invalid request")
		return automation.Request{}, false
	}
	req, err := automation.DecodeRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return automation.Request{}, false
	}
	return req, true
}

// heartbeat keeps idle proxies from closing the stream between slow steps. The returned
// func stops the ticker and waits until no keep-alive write is in flight.
func (s *Server) heartbeat(ctx context.Context, writer *stream.HTTPWriter) func() {
	interval := s.cfg.StreamHeartbeat
	if interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := writer.KeepAlive(); err != nil {
					return
				}
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

func (s *Server) recordRun(ctx context.Context, runID string, mode string, req automation.Request) {
	run := store.Run{
		ID:       runID,
		Mode:     mode,
		Status:   "pending",
		Name:     req.Name,
		Goals:    req.Goals,
		Industry: req.Industry,
		Budget:   req.Budget,
	}
	if err := s.store.CreateRun(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Warn("failed to record run", zap.String("run_id", runID), zap.Error(err))
	}
}

// persist appends an event to the run log and fans it out to watchers. Failures are
// logged; the primary consumer of an inline run is its own response.
func (s *Server) persist(ctx context.Context, event events.Event) {
	if err := s.store.AppendEvent(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("failed to append run event", zap.String("run_id", event.RunID), zap.Error(err))
	}
	if s.broker != nil {
		s.broker.Publish(event)
	}
}

func (s *Server) trackRun(runID string, cancel context.CancelFunc) {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	s.cancels[runID] = cancel
}

func (s *Server) untrackRun(runID string) {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	delete(s.cancels, runID)
}

func (s *Server) cancelLocalRun(runID string) bool {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	cancel, ok := s.cancels[runID]
	if ok {
		cancel()
	}
	return ok
}

func (s *Server) cancelAllRuns() {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	for _, cancel := range s.cancels {
		cancel()
	}
}

func (s *Server) pacingDelays() map[events.Phase]time.Duration {
	delays := make(map[events.Phase]time.Duration, len(automation.BaseDelays))
	for phase, base := range automation.BaseDelays {
		delays[phase] = s.cfg.PacingDelay(base)
	}
	return delays
}
