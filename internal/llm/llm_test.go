// internal/llm/llm_test.go
package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const verdictSchema = `{
	"type": "object",
	"required": ["sufficientlyGrounded"],
	"properties": {
		"sufficientlyGrounded": {"type": "boolean"},
		"missingAspects": {"type": "array", "items": {"type": "string"}}
	}
}`

type verdict struct {
	SufficientlyGrounded bool     `json:"sufficientlyGrounded"`
	MissingAspects       []string `json:"missingAspects"`
}

func TestDecodeValidated_Valid(t *testing.T) {
	var out verdict
	err := DecodeValidated(verdictSchema,
		json.RawMessage(`{"sufficientlyGrounded": false, "missingAspects": ["price"]}`), &out)

	require.NoError(t, err)
	assert.False(t, out.SufficientlyGrounded)
	assert.Equal(t, []string{"price"}, out.MissingAspects)
}

func TestDecodeValidated_MissingRequiredField(t *testing.T) {
	var out verdict
	err := DecodeValidated(verdictSchema, json.RawMessage(`{"missingAspects": []}`), &out)

	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeValidated_WrongType(t *testing.T) {
	var out verdict
	err := DecodeValidated(verdictSchema,
		json.RawMessage(`{"sufficientlyGrounded": "yes"}`), &out)

	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeValidated_NotJSON(t *testing.T) {
	var out verdict
	err := DecodeValidated(verdictSchema, json.RawMessage(`Sure! Here is the JSON you asked for`), &out)

	assert.ErrorIs(t, err, ErrMalformed)
}
