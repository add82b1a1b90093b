package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/influai/control-plane/internal/events"
)

// Decoder turns arbitrarily chunked stream bytes back into events. A line split across
// chunks is held until its newline arrives, so the result never depends on how the
// transport cut the body.
type Decoder struct {
	format  Format
	buf     []byte
	pending sseFrame
}

type sseFrame struct {
	event   string
	id      string
	data    []string
	hasData bool
}

func NewDecoder(format Format) *Decoder {
	if format == "" {
		format = FormatSSE
	}
	return &Decoder{format: format}
}

func (d *Decoder) Feed(chunk []byte) ([]events.Event, error) {
	d.buf = append(d.buf, chunk...)
	var out []events.Event
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(bytes.TrimSuffix(d.buf[:idx], []byte("\r")))
		d.buf = d.buf[idx+1:]
		event, ok, err := d.line(line)
		if err != nil {
			return out, err
		}
		if ok {
			out = append(out, event)
		}
	}
	if len(d.buf) == 0 {
		d.buf = nil
	} else {
		d.buf = append([]byte(nil), d.buf...)
	}
	return out, nil
}

// Close processes a final unterminated NDJSON line. An SSE frame without its closing
// blank line is incomplete and is dropped.
func (d *Decoder) Close() ([]events.Event, error) {
	rest := strings.TrimSuffix(string(d.buf), "\r")
	d.buf = nil
	d.pending = sseFrame{}
	if d.format != FormatNDJSON || strings.TrimSpace(rest) == "" {
		return nil, nil
	}
	event, ok, err := d.ndjsonLine(rest)
	if err != nil || !ok {
		return nil, err
	}
	return []events.Event{event}, nil
}

func (d *Decoder) line(line string) (events.Event, bool, error) {
	if d.format == FormatNDJSON {
		return d.ndjsonLine(line)
	}
	return d.sseLine(line)
}

func (d *Decoder) ndjsonLine(line string) (events.Event, bool, error) {
	if strings.TrimSpace(line) == "" {
		return events.Event{}, false, nil
	}
	var event events.Event
	if err := json.Unmarshal([]byte(line), &event); err != nil {
		return events.Event{}, false, fmt.Errorf("decode ndjson frame: %w", err)
	}
	event.Kind = events.NormalizeKind(string(event.Kind))
	if !event.Kind.Valid() {
		return events.Event{}, false, nil
	}
	return event, true, nil
}

func (d *Decoder) sseLine(line string) (events.Event, bool, error) {
	if line == "" {
		return d.dispatch()
	}
	if strings.HasPrefix(line, ":") {
		return events.Event{}, false, nil
	}
	field, value, found := strings.Cut(line, ":")
	if found {
		value = strings.TrimPrefix(value, " ")
	}
	switch field {
	case "event":
		d.pending.event = value
	case "data":
		d.pending.data = append(d.pending.data, value)
		d.pending.hasData = true
	case "id":
		d.pending.id = value
	}
	return events.Event{}, false, nil
}

func (d *Decoder) dispatch() (events.Event, bool, error) {
	frame := d.pending
	d.pending = sseFrame{}
	if !frame.hasData {
		return events.Event{}, false, nil
	}
	kind := events.NormalizeKind(frame.event)
	if !kind.Valid() {
		return events.Event{}, false, nil
	}
	data := strings.Join(frame.data, "\n")
	event := events.Event{Kind: kind}
	if json.Valid([]byte(data)) {
		event.Data = json.RawMessage(data)
	} else {
		// Plain text data lines are accepted as string payloads.
		encoded, _ := json.Marshal(data)
		event.Data = encoded
	}
	event.RunID, event.Seq = parseEventID(frame.id)
	return event, true, nil
}

// parseEventID splits "<run>:<seq>" ids written by the SSE encoder.
func parseEventID(id string) (string, int64) {
	runID, seqText, found := strings.Cut(strings.TrimSpace(id), ":")
	if !found {
		return "", 0
	}
	seq, err := strconv.ParseInt(seqText, 10, 64)
	if err != nil {
		return "", 0
	}
	return runID, seq
}

// ReadAll drains r through a decoder, calling fn for every event in order.
func ReadAll(r io.Reader, format Format, fn func(events.Event) error) error {
	dec := NewDecoder(format)
	buf := make([]byte, 4096)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			decoded, err := dec.Feed(buf[:n])
			for _, event := range decoded {
				if cbErr := fn(event); cbErr != nil {
					return cbErr
				}
			}
			if err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			rest, err := dec.Close()
			for _, event := range rest {
				if cbErr := fn(event); cbErr != nil {
					return cbErr
				}
			}
			return err
		}
		if readErr != nil {
			return readErr
		}
	}
}
