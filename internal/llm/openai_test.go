package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewOpenAIProvider_Defaults(t *testing.T) {
	provider := NewOpenAIProvider(OpenAIConfig{APIKey: "test-api-key", Model: "gpt-4"})
	if provider.baseURL != "https://api.openai.com/v1" {
		t.Errorf("expected default baseURL, got %s", provider.baseURL)
	}
	if provider.client == nil {
		t.Error("expected client to not be nil")
	}

	provider = NewOpenAIProvider(OpenAIConfig{APIKey: "k", Model: "m", BaseURL: "https://openrouter.ai/api/v1/"})
	if provider.baseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("expected trailing slash trimmed, got %s", provider.baseURL)
	}
}

func TestOpenAIProvider_MissingCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called without credentials")
	}))
	defer server.Close()

	cases := []struct {
		name  string
		cfg   OpenAIConfig
		field string
	}{
		{name: "key", cfg: OpenAIConfig{Model: "gpt-4", BaseURL: server.URL}, field: "API key"},
		{name: "model", cfg: OpenAIConfig{APIKey: "k", BaseURL: server.URL}, field: "model"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewOpenAIProvider(tc.cfg).Generate(context.Background(), []Message{{Role: RoleUser, Content: "Hello"}})
			var missing ErrMissingCredential
			if !errors.As(err, &missing) {
				t.Fatalf("expected ErrMissingCredential, got %v", err)
			}
			if missing.Field != tc.field {
				t.Errorf("expected field %q, got %q", tc.field, missing.Field)
			}
		})
	}
}

func TestOpenAIProvider_Generate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST method, got %s", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected path '/chat/completions', got %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-api-key" {
			t.Errorf("unexpected Authorization header %q", auth)
		}
		var reqBody chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		if reqBody.Model != "gpt-4" || len(reqBody.Messages) != 2 {
			t.Errorf("unexpected request body %+v", reqBody)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Campaign summary.  "}}]}`))
	}))
	defer server.Close()

	provider := NewOpenAIProvider(OpenAIConfig{APIKey: "test-api-key", Model: "gpt-4", BaseURL: server.URL})
	result, err := provider.Generate(context.Background(), []Message{
		{Role: RoleSystem, Content: "You are a campaign planner."},
		{Role: RoleUser, Content: "Summarise"},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result != "  Campaign summary.  " {
		t.Errorf("expected content as returned, got %q", result)
	}
}

func TestOpenAIProvider_Generate_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": "Invalid API key"}`))
	}))
	defer server.Close()

	provider := NewOpenAIProvider(OpenAIConfig{APIKey: "invalid-key", Model: "gpt-4", BaseURL: server.URL})
	_, err := GenerateText(context.Background(), provider, "Hello")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", statusErr.Code)
	}
	if err.Error() != "LLM request failed: 401 Unauthorized" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestOpenAIProvider_Generate_BadBodies(t *testing.T) {
	cases := []struct {
		name string
		body string
		want error
	}{
		{name: "invalid json", body: `{invalid json`},
		{name: "no choices", body: `{"choices":[]}`, want: ErrNoChoices},
		{name: "empty content", body: `{"choices":[{"message":{"content":"   "}}]}`, want: ErrEmptyResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			provider := NewOpenAIProvider(OpenAIConfig{APIKey: "k", Model: "gpt-4", BaseURL: server.URL})
			_, err := GenerateText(context.Background(), provider, "Hello")
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestOpenAIProvider_Generate_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	provider := NewOpenAIProvider(OpenAIConfig{APIKey: "k", Model: "gpt-4", BaseURL: server.URL})
	if _, err := GenerateText(ctx, provider, "Hello"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
