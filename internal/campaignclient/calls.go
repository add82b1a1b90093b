package campaignclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"github.com/influai/control-plane/internal/automation"
)

// RunSummary mirrors the control plane's run listing entry.
type RunSummary struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"`
	Request   automation.Request `json:"request"`
	CreatedAt string             `json:"created_at"`
	UpdatedAt string             `json:"updated_at"`
}

type NegotiationDraft struct {
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	ConversationID string `json:"conversationId"`
}

type NegotiationReply struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversationId"`
}

// StartRun launches a detached run and returns its id.
func (c *Client) StartRun(ctx context.Context, req automation.Request) (string, error) {
	var out struct {
		RunID string `json:"run_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/automation/runs", req, &out); err != nil {
		return "", err
	}
	return out.RunID, nil
}

func (c *Client) GetRun(ctx context.Context, runID string) (RunSummary, error) {
	var out RunSummary
	err := c.doJSON(ctx, http.MethodGet, "/api/automation/runs/"+url.PathEscape(runID), nil, &out)
	return out, err
}

func (c *Client) ListRuns(ctx context.Context) ([]RunSummary, error) {
	var out struct {
		Runs []RunSummary `json:"runs"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/api/automation/runs", nil, &out)
	return out.Runs, err
}

func (c *Client) CancelRun(ctx context.Context, runID string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/automation/runs/"+url.PathEscape(runID)+"/cancel", nil, nil)
}

// SignedURL fetches a voice-agent session URL for the configured agent.
func (c *Client) SignedURL(ctx context.Context) (string, error) {
	var out struct {
		SignedURL string `json:"signedUrl"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/get-signed-url", nil, &out); err != nil {
		return "", err
	}
	return out.SignedURL, nil
}

func (c *Client) Negotiate(ctx context.Context, userPrompt string, influencerData map[string]any) (NegotiationDraft, error) {
	payload := map[string]any{"userPrompt": userPrompt, "influencerData": influencerData}
	var out NegotiationDraft
	err := c.doJSON(ctx, http.MethodPost, "/negotiate", payload, &out)
	return out, err
}

func (c *Client) NegotiateReply(ctx context.Context, conversationID, message string) (NegotiationReply, error) {
	payload := map[string]string{"conversationId": conversationID, "userMessage": message}
	var out NegotiationReply
	err := c.doJSON(ctx, http.MethodPost, "/negotiate-conversation", payload, &out)
	return out, err
}

func (c *Client) EndConversation(ctx context.Context, conversationID string) error {
	payload := map[string]string{"conversationId": conversationID}
	return c.doJSON(ctx, http.MethodPost, "/end-conversation", payload, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any) error {
	var body *bytes.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrapf(err, "marshal %s body", path)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrapf(err, "build %s request", path)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "call %s", path)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s response", path)
	}
	return nil
}
