package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/influai/control-plane/internal/automation"
	"github.com/influai/control-plane/internal/events"
	"github.com/influai/control-plane/internal/store"
	"github.com/influai/control-plane/internal/stream"
)

// closeGrace bounds how long a watcher waits for the closing message after a terminal status.
const closeGrace = 5 * time.Second

type runResponse struct {
	ID         string             `json:"id"`
	Mode       string             `json:"mode"`
	Status     string             `json:"status"`
	Reason     string             `json:"reason,omitempty"`
	Request    automation.Request `json:"request"`
	Steps      []store.RunStep    `json:"steps"`
	Candidates int                `json:"candidates"`
	LastSeq    int64              `json:"last_seq"`
	CreatedAt  string             `json:"created_at"`
	UpdatedAt  string             `json:"updated_at"`
}

func toRunResponse(run store.Run) runResponse {
	steps := run.Steps
	if steps == nil {
		steps = []store.RunStep{}
	}
	return runResponse{
		ID:         run.ID,
		Mode:       run.Mode,
		Status:     run.Status,
		Reason:     run.Reason,
		Request:    automation.Request{Name: run.Name, Goals: run.Goals, Industry: run.Industry, Budget: run.Budget},
		Steps:      steps,
		Candidates: run.Candidates,
		LastSeq:    run.LastSeq,
		CreatedAt:  run.CreatedAt,
		UpdatedAt:  run.UpdatedAt,
	}
}

// createRun starts a detached run and returns its id right away; progress is read from
// the events endpoint.
func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	if s.driver == nil && s.workflows == nil {
		writeError(w, http.StatusInternalServerError, "automation is not configured")
		return
	}
	req, ok := s.readCampaignRequest(w, r)
	if !ok {
		return
	}
	runID := uuid.New().String()
	s.recordRun(r.Context(), runID, store.RunModeDetached, req)

	if s.workflows != nil {
		if err := s.workflows.StartRun(r.Context(), runID, req, s.pacingDelays()); err != nil {
			s.logger.Error("failed to start campaign workflow", zap.String("run_id", runID), zap.Error(err))
			_ = s.store.UpdateRunStatus(context.WithoutCancel(r.Context()), runID, string(events.PhaseError), err.Error())
			writeError(w, http.StatusBadGateway, "failed to start run")
			return
		}
	} else {
		s.startLocalRun(runID, req)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) startLocalRun(runID string, req automation.Request) {
	ctx, cancel := context.WithCancel(context.Background())
	s.trackRun(runID, cancel)
	s.runsWG.Add(1)
	go func() {
		defer s.runsWG.Done()
		defer cancel()
		defer s.untrackRun(runID)
		run := automation.NewRun(runID, req, automation.EmitterFunc(func(ctx context.Context, event events.Event) error {
			s.persist(ctx, event)
			return nil
		}))
		if err := s.driver.Execute(ctx, run); err != nil {
			s.logger.Info("detached run ended with error", zap.String("run_id", runID), zap.Error(err))
		}
	}()
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunResponse(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toRunResponse(run))
}

func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (store.Run, bool) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return store.Run{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return store.Run{}, false
	}
	return run, true
}

// ingestEvent accepts events from workers. The control plane assigns the sequence number.
func (s *Server) ingestEvent(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	runID := run.ID
	var event events.Event
	if err := s.decodeJSONBody(w, r, &event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	event.Kind = events.NormalizeKind(string(event.Kind))
	if !event.Kind.Valid() {
		writeError(w, http.StatusBadRequest, "unknown event kind")
		return
	}
	if len(event.Data) == 0 || !json.Valid(event.Data) {
		writeError(w, http.StatusBadRequest, "event data must be JSON")
		return
	}
	seq, err := s.store.NextSeq(r.Context(), runID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	event.RunID = runID
	event.Seq = seq
	if event.Ts == "" {
		event.Ts = time.Now().UTC().Format(time.RFC3339Nano)
	}
	s.persist(r.Context(), event)
	w.WriteHeader(http.StatusAccepted)
}

// streamEvents replays the stored log after the requested sequence and then follows the
// live run. It ends once the terminal status and the message that explains it are sent.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Subscribe first so nothing published between the replay and the live tail is lost.
	live := s.broker.Subscribe(ctx, run.ID)
	afterSeq := parseAfterSeq(run.ID, r)
	stored, err := s.store.ListEvents(ctx, run.ID, afterSeq)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	format := stream.FormatFromRequest(r.Header.Get("Accept"), r.URL.Query().Get("format"))
	writer, err := stream.NewHTTPWriter(w, format)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	tail := &streamTail{lastSeq: afterSeq}
	for _, event := range stored {
		if done, err := tail.write(writer, event); err != nil || done {
			return
		}
	}
	if !tail.terminal {
		// The run may have finished before this watcher resumed past its terminal status.
		current, err := s.store.GetRun(ctx, run.ID)
		if err == nil && events.Phase(current.Status).Terminal() && current.LastSeq <= tail.lastSeq {
			return
		}
	}

	heartbeat := time.NewTicker(s.heartbeatInterval())
	defer heartbeat.Stop()
	grace := time.NewTimer(closeGrace)
	defer grace.Stop()
	if !tail.terminal {
		grace.Stop()
	}

	for {
		select {
		case event, ok := <-live:
			if !ok {
				return
			}
			wasTerminal := tail.terminal
			done, err := tail.write(writer, event)
			if err != nil || done {
				return
			}
			if tail.terminal && !wasTerminal {
				grace.Reset(closeGrace)
			}
		case <-grace.C:
			return
		case <-heartbeat.C:
			if err := writer.KeepAlive(); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// streamTail de-duplicates replayed and live events and decides when a watcher is done.
type streamTail struct {
	lastSeq  int64
	terminal bool
}

func (t *streamTail) write(writer *stream.HTTPWriter, event events.Event) (bool, error) {
	if event.Seq != 0 && event.Seq <= t.lastSeq {
		return false, nil
	}
	if err := writer.Write(event); err != nil {
		return true, err
	}
	if event.Seq > t.lastSeq {
		t.lastSeq = event.Seq
	}
	if event.Terminal() {
		t.terminal = true
		return false, nil
	}
	return t.terminal && event.Kind == events.KindAIOutput, nil
}

func (s *Server) heartbeatInterval() time.Duration {
	if s.cfg.StreamHeartbeat > 0 {
		return s.cfg.StreamHeartbeat
	}
	return 15 * time.Second
}

func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	if events.Phase(run.Status).Terminal() {
		writeError(w, http.StatusConflict, "run already finished")
		return
	}
	if s.cancelLocalRun(run.ID) {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
		return
	}
	if run.Mode == store.RunModeDetached && s.workflows != nil {
		if err := s.workflows.CancelRun(r.Context(), run.ID); err != nil {
			s.logger.Warn("failed to cancel campaign workflow", zap.String("run_id", run.ID), zap.Error(err))
			writeError(w, http.StatusBadGateway, "failed to cancel run")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
		return
	}
	writeError(w, http.StatusConflict, "run is not active on this server")
}

func parseAfterSeq(runID string, r *http.Request) int64 {
	afterParam := strings.TrimSpace(r.URL.Query().Get("after_seq"))
	if afterParam != "" {
		if parsed, err := strconv.ParseInt(afterParam, 10, 64); err == nil && parsed > 0 {
			return parsed
		}
	}
	lastEventID := r.Header.Get("Last-Event-ID")
	if lastEventID == "" {
		return 0
	}
	parts := strings.Split(lastEventID, ":")
	if len(parts) != 2 || parts[0] != runID {
		return 0
	}
	seq, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || seq < 0 {
		return 0
	}
	return seq
}
