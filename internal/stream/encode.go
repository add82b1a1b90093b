package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/influai/control-plane/internal/events"
)

type Format string

const (
	FormatSSE    Format = "sse"
	FormatNDJSON Format = "ndjson"

	ContentTypeSSE    = "text/event-stream"
	ContentTypeNDJSON = "application/x-ndjson"
)

var ErrStreamingUnsupported = errors.New("streaming unsupported")

// FormatFromRequest picks NDJSON framing when asked for explicitly, SSE otherwise.
func FormatFromRequest(accept string, query string) Format {
	if strings.EqualFold(strings.TrimSpace(query), string(FormatNDJSON)) {
		return FormatNDJSON
	}
	if strings.Contains(strings.ToLower(accept), ContentTypeNDJSON) {
		return FormatNDJSON
	}
	return FormatSSE
}

func ContentType(format Format) string {
	if format == FormatNDJSON {
		return ContentTypeNDJSON
	}
	return ContentTypeSSE
}

type Encoder interface {
	Encode(event events.Event) error
}

type sseEncoder struct {
	w       io.Writer
	skipIDs bool
}

func NewSSEEncoder(w io.Writer) Encoder {
	return &sseEncoder{w: w}
}

// NewBareSSEEncoder writes frames with only the event and data fields.
func NewBareSSEEncoder(w io.Writer) Encoder {
	return &sseEncoder{w: w, skipIDs: true}
}

func (e *sseEncoder) Encode(event events.Event) error {
	data, err := compactData(event.Data)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if !e.skipIDs && event.RunID != "" && event.Seq > 0 {
		fmt.Fprintf(&buf, "id: %s:%d\n", event.RunID, event.Seq)
	}
	fmt.Fprintf(&buf, "event: %s\n", event.Kind)
	fmt.Fprintf(&buf, "data: %s\n\n", data)
	_, err = e.w.Write(buf.Bytes())
	return err
}

type ndjsonEncoder struct {
	enc *json.Encoder
}

func NewNDJSONEncoder(w io.Writer) Encoder {
	return &ndjsonEncoder{enc: json.NewEncoder(w)}
}

func (e *ndjsonEncoder) Encode(event events.Event) error {
	data, err := compactData(event.Data)
	if err != nil {
		return err
	}
	event.Data = data
	return e.enc.Encode(event)
}

func NewEncoder(w io.Writer, format Format) Encoder {
	if format == FormatNDJSON {
		return NewNDJSONEncoder(w)
	}
	return NewSSEEncoder(w)
}

// compactData keeps every payload on a single line so a frame never spans extra lines.
func compactData(data json.RawMessage) (json.RawMessage, error) {
	if len(data) == 0 {
		return json.RawMessage("null"), nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, fmt.Errorf("event data is not valid JSON: %w", err)
	}
	return buf.Bytes(), nil
}

// HTTPWriter frames events onto a streaming HTTP response and flushes after each one.
type HTTPWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	format  Format
	enc     Encoder
}

type WriterOption func(*HTTPWriter)

// WithoutEventIDs drops the SSE id field for streams that cannot be resumed.
func WithoutEventIDs() WriterOption {
	return func(h *HTTPWriter) {
		if h.format != FormatNDJSON {
			h.enc = NewBareSSEEncoder(h.w)
		}
	}
}

// NewHTTPWriter sets the streaming headers and writes the status line.
func NewHTTPWriter(w http.ResponseWriter, format Format, opts ...WriterOption) (*HTTPWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	w.Header().Set("Content-Type", ContentType(format))
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	writer := &HTTPWriter{w: w, flusher: flusher, format: format, enc: NewEncoder(w, format)}
	for _, opt := range opts {
		opt(writer)
	}
	return writer, nil
}

func (h *HTTPWriter) Write(event events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.enc.Encode(event); err != nil {
		return err
	}
	h.flusher.Flush()
	return nil
}

// KeepAlive writes a frame that decoders ignore.
func (h *HTTPWriter) KeepAlive() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var err error
	if h.format == FormatNDJSON {
		_, err = io.WriteString(h.w, "\n")
	} else {
		_, err = io.WriteString(h.w, ": keep-alive\n\n")
	}
	if err != nil {
		return err
	}
	h.flusher.Flush()
	return nil
}
