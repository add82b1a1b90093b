// Package voice obtains short-lived conversation URLs from the voice-agent provider so
// browsers never see the provider key.
package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrNotConfigured  = errors.New("ELEVENLABS_API_KEY is not configured")
	ErrMissingAgent   = errors.New("agent id is required")
	ErrEmptySignedURL = errors.New("voice provider returned no signed url")
)

const signedURLPath = "/v1/convai/conversation/get-signed-url"

// StatusError is a non-OK answer from the provider.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("voice provider error: %d - %s", e.Code, e.Body)
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		http:    httpClient,
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

func (c *Client) SignedURL(ctx context.Context, agentID string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return "", ErrMissingAgent
	}
	endpoint := c.baseURL + signedURLPath + "?agent_id=" + url.QueryEscape(agentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call voice provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	var payload struct {
		SignedURL string `json:"signed_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode voice provider response: %w", err)
	}
	if payload.SignedURL == "" {
		return "", ErrEmptySignedURL
	}
	return payload.SignedURL, nil
}
