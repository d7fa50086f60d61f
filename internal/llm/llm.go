// Package llm is the language-model capability boundary: a function from
// (instructions, context) to structured output. Stages depend on the
// Completer interface, never on a concrete vendor client.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrTimeout marks a call that exceeded its deadline. Callers apply
	// their stage-specific fallback policy.
	ErrTimeout = errors.New("LLM_TIMEOUT")

	// ErrUnavailable marks a connectivity failure to the capability itself.
	// This is the only request-fatal condition in the pipeline.
	ErrUnavailable = errors.New("LLM_UNAVAILABLE")

	// ErrMalformed marks output that failed schema validation or decoding.
	ErrMalformed = errors.New("LLM_MALFORMED_OUTPUT")
)

// Request carries one completion call.
type Request struct {
	Stage        string // stage label for logging and metrics
	Instructions string // system instructions
	Context      string // grounding context / user content
	MaxTokens    int
	Temperature  float64
}

// Completer is the language-model capability contract.
type Completer interface {
	Complete(ctx context.Context, req Request) (json.RawMessage, error)
}

// DecodeValidated validates raw model output against a JSON schema and
// decodes it into out. Validation failures surface as ErrMalformed so the
// caller can apply its bounded-retry policy.
func DecodeValidated(schema string, raw json.RawMessage, out interface{}) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !result.Valid() {
		details := ""
		for _, desc := range result.Errors() {
			details += desc.String() + "; "
		}
		return fmt.Errorf("%w: %s", ErrMalformed, details)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
