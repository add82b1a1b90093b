package llm

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyResponse = errors.New("LLM response was empty")
	ErrNoChoices     = errors.New("LLM response had no choices")
)

type ErrUnsupportedProvider struct {
	Provider string
}

func (e ErrUnsupportedProvider) Error() string {
	return fmt.Sprintf("unsupported LLM provider: %s", e.Provider)
}

// ErrMissingCredential is returned before any network call when a provider has no key or model.
type ErrMissingCredential struct {
	Provider string
	Field    string
}

func (e ErrMissingCredential) Error() string {
	return fmt.Sprintf("missing %s for %s provider", e.Field, e.Provider)
}

// StatusError reports a non-2xx answer from an HTTP-based provider.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("LLM request failed: %s", e.Status)
}
