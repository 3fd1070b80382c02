// Package llm dispatches structured field decisions to a language model and
// parses the results into typed verdicts.
package llm

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrUpstream is returned when the model call fails or yields no usable
	// text payload.
	ErrUpstream = errors.New("language model unavailable")

	// ErrMalformedResponse is returned when the model's text payload does not
	// parse into the expected decision shape.
	ErrMalformedResponse = errors.New("malformed model response")
)

// CompletionRequest is one structured-output request to a language model.
type CompletionRequest struct {
	Model          string
	Instruction    string          // developer instruction text
	ResponseSchema json.RawMessage // response_format constraint, provider-interpreted
}

// Client is the transport contract for a language model provider. Complete
// issues exactly one request and returns the raw text payload.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
