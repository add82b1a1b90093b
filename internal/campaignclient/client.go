package campaignclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/influai/control-plane/internal/automation"
	"github.com/influai/control-plane/internal/events"
	"github.com/influai/control-plane/internal/stream"
)

var ErrStreamTruncated = errors.New("stream ended before the run finished")

const readChunk = 4096

type Client struct {
	baseURL string
	http    *http.Client
	format  stream.Format
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithFormat selects the framing requested from the server.
func WithFormat(format stream.Format) Option {
	return func(c *Client) {
		c.format = format
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		format:  stream.FormatSSE,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// runIDHeader names an inline run on its streaming response.
const runIDHeader = "X-Run-ID"

// Run starts an inline automation and consumes its stream until the server closes it.
// onEvent, when set, sees every event after it was applied. A non-OK response, a read
// error and an error status all end with state.Status == error and a non-nil error.
func (c *Client) Run(ctx context.Context, req automation.Request, onEvent func(events.Event, RunState)) (RunState, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return RunState{}, errors.Wrap(err, "marshal campaign request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/campaign-automation", bytes.NewReader(body))
	if err != nil {
		return RunState{}, errors.Wrap(err, "build automation request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.consume(ctx, httpReq, RunState{}, onEvent)
}

// Watch replays and follows the events of a detached run after afterSeq.
func (c *Client) Watch(ctx context.Context, runID string, afterSeq int64, onEvent func(events.Event, RunState)) (RunState, error) {
	endpoint := c.baseURL + "/api/automation/runs/" + url.PathEscape(runID) + "/events"
	if afterSeq > 0 {
		endpoint += "?after_seq=" + strconv.FormatInt(afterSeq, 10)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return RunState{}, errors.Wrap(err, "build watch request")
	}
	return c.consume(ctx, httpReq, RunState{RunID: runID, LastSeq: afterSeq}, onEvent)
}

func (c *Client) consume(ctx context.Context, httpReq *http.Request, state RunState, onEvent func(events.Event, RunState)) (RunState, error) {
	httpReq.Header.Set("Accept", stream.ContentType(c.format))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		err = errors.Wrap(err, "call control plane")
		state.Fail(err)
		return state, err
	}
	defer resp.Body.Close()
	if state.RunID == "" {
		state.RunID = resp.Header.Get(runIDHeader)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{Code: resp.StatusCode, Message: readErrorMessage(resp.Body)}
		state.Fail(statusErr)
		return state, statusErr
	}

	decoder := stream.NewDecoder(responseFormat(resp.Header.Get("Content-Type")))
	apply := func(batch []events.Event) error {
		for _, event := range batch {
			if err := state.Apply(event); err != nil {
				return errors.Wrap(err, "apply event")
			}
			if onEvent != nil {
				onEvent(event, state)
			}
		}
		return nil
	}

	buf := make([]byte, readChunk)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			batch, err := decoder.Feed(buf[:n])
			if applyErr := apply(batch); applyErr != nil {
				err = applyErr
			}
			if err != nil {
				state.Fail(err)
				return state, err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				readErr = ctxErr
			}
			err := errors.Wrap(readErr, "read automation stream")
			state.Fail(err)
			return state, err
		}
	}
	rest, err := decoder.Close()
	if err == nil {
		err = apply(rest)
	}
	if err != nil {
		state.Fail(err)
		return state, err
	}

	switch state.Status {
	case events.PhaseError:
		return state, &RunError{RunID: state.RunID, Reason: state.Reason()}
	case events.PhaseCompleted:
		return state, nil
	}
	state.Fail(ErrStreamTruncated)
	return state, ErrStreamTruncated
}

func responseFormat(contentType string) stream.Format {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err == nil && mediaType == stream.ContentTypeNDJSON {
		return stream.FormatNDJSON
	}
	return stream.FormatSSE
}

func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(data))
}
