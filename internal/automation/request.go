package automation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/influai/control-plane/internal/influencer"
)

// Request is the campaign description that drives one run. Empty fields are allowed;
// the model narrates around whatever it is given.
type Request struct {
	Name     string `json:"name"`
	Goals    string `json:"goals"`
	Industry string `json:"industry"`
	Budget   string `json:"budget"`
}

func (r Request) SearchQuery() influencer.Query {
	return influencer.Query{Industry: r.Industry, Goals: r.Goals, Budget: r.Budget}
}

const requestSchema = `{
  "type": "object",
  "properties": {
    "name": {"type": "string"},
    "goals": {"type": "string"},
    "industry": {"type": "string"},
    "budget": {"type": "string"}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	schemaErr      error
)

func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(requestSchema))
	})
	return compiledSchema, schemaErr
}

var ErrEmptyRequest = errors.New("request body is required")

// ValidationError lists every schema violation found in a request body.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid campaign request: " + strings.Join(e.Problems, "; ")
}

// DecodeRequest validates body against the request schema before decoding it.
func DecodeRequest(body []byte) (Request, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return Request{}, ErrEmptyRequest
	}
	if !json.Valid(body) {
		return Request{}, &ValidationError{Problems: []string{"body is not valid JSON"}}
	}
	schema, err := loadSchema()
	if err != nil {
		return Request{}, fmt.Errorf("compile request schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return Request{}, &ValidationError{Problems: []string{err.Error()}}
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return Request{}, &ValidationError{Problems: problems}
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return Request{}, &ValidationError{Problems: []string{err.Error()}}
	}
	return req, nil
}
