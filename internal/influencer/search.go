package influencer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrInvalidResponse = errors.New("influencer API returned an invalid format")
	ErrNoResults       = errors.New("influencer API returned no results")
)

// responseSchema accepts any array of objects. Record contents are relayed as received.
const responseSchema = `{
  "type": "array",
  "items": {"type": "object"}
}`

const maxErrorBody = 2048

type Query struct {
	Industry string `json:"industry"`
	Goals    string `json:"goals"`
	Budget   string `json:"budget"`
}

type Searcher interface {
	Search(ctx context.Context, query Query) ([]Candidate, error)
}

// StatusError is a non-2xx answer from the search endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("influencer API error: %d - %s", e.Code, e.Body)
}

type Client struct {
	url    string
	client *http.Client
	schema *gojsonschema.Schema
}

// NewClient builds a search client. A nil httpClient uses one without a timeout so the
// transport defaults apply.
func NewClient(url string, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("influencer API url is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(responseSchema))
	if err != nil {
		return nil, fmt.Errorf("compile influencer schema: %w", err)
	}
	return &Client{url: url, client: httpClient, schema: schema}, nil
}

func (c *Client) URL() string {
	return c.url
}

func (c *Client) Search(ctx context.Context, query Query) ([]Candidate, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call influencer API: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read influencer API response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := string(payload)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(text)}
	}
	if !json.Valid(payload) {
		return nil, ErrInvalidResponse
	}
	result, err := c.schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil || !result.Valid() {
		return nil, ErrInvalidResponse
	}
	var candidates []Candidate
	if err := json.Unmarshal(payload, &candidates); err != nil {
		return nil, ErrInvalidResponse
	}
	if len(candidates) == 0 {
		return nil, ErrNoResults
	}
	return candidates, nil
}

// SearchOrFallback never fails: any search problem yields the fallback list, and the
// returned error says why the fallback was used.
func SearchOrFallback(ctx context.Context, searcher Searcher, query Query) ([]Candidate, error) {
	if searcher == nil {
		return Fallback(), errors.New("influencer search is not configured")
	}
	candidates, err := searcher.Search(ctx, query)
	if err != nil {
		return Fallback(), err
	}
	if len(candidates) == 0 {
		return Fallback(), ErrNoResults
	}
	return candidates, nil
}

// FallbackReason buckets a fallback cause into a short label for metrics.
func FallbackReason(err error) string {
	var statusErr *StatusError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &statusErr):
		return "status"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid"
	case errors.Is(err, ErrNoResults):
		return "empty"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "transport"
	}
}
