package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/influai/control-plane/internal/automation"
	"github.com/influai/control-plane/internal/events"
)

// EventSink is the store a worker falls back to when the control plane is unreachable.
type EventSink interface {
	NextSeq(ctx context.Context, runID string) (int64, error)
	AppendEvent(ctx context.Context, event events.Event) error
}

// IngestEmitter posts run events to the control plane, which assigns the authoritative
// sequence number and fans them out to watchers.
type IngestEmitter struct {
	controlPlane   string
	httpClient     *http.Client
	requestTimeout time.Duration
	fallback       EventSink
	logger         *zap.Logger
}

func NewIngestEmitter(controlPlaneURL string, fallback EventSink, logger *zap.Logger) *IngestEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestEmitter{
		controlPlane:   strings.TrimRight(controlPlaneURL, "/"),
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		requestTimeout: 10 * time.Second,
		fallback:       fallback,
		logger:         logger,
	}
}

// ForRun adapts the emitter to the per-run interface the driver expects.
func (e *IngestEmitter) ForRun(runID string) automation.Emitter {
	return automation.EmitterFunc(e.Emit)
}

func (e *IngestEmitter) Emit(ctx context.Context, event events.Event) error {
	err := e.postEvent(ctx, event)
	if err == nil || e.fallback == nil {
		return err
	}
	e.logger.Warn("control plane ingest failed, writing event to store", zap.String("run_id", event.RunID), zap.Error(err))
	seq, seqErr := e.fallback.NextSeq(ctx, event.RunID)
	if seqErr != nil {
		return seqErr
	}
	event.Seq = seq
	return e.fallback.AppendEvent(ctx, event)
}

func (e *IngestEmitter) postEvent(ctx context.Context, event events.Event) error {
	endpoint := fmt.Sprintf("%s/api/automation/runs/%s/events", e.controlPlane, url.PathEscape(event.RunID))
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	requestCtx, cancel := context.WithTimeout(ctx, e.requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("control plane event failed: %s", resp.Status)
	}
	return nil
}
