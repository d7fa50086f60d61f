// internal/session/resolver_test.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"answer-engine/internal/common/logger"
	"answer-engine/internal/llm"
	"answer-engine/internal/pipeline"

	"github.com/stretchr/testify/assert"
)

type fakeCompleter struct {
	response json.RawMessage
	err      error
	calls    int
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (json.RawMessage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func prevTurn(query string, filters map[string]string) *pipeline.Turn {
	return &pipeline.Turn{
		Query:         query,
		ResolvedQuery: query,
		Intent:        pipeline.IntentHotel,
		Filters:       filters,
	}
}

func TestResolver_FirstTurnPassesThrough(t *testing.T) {
	completer := &fakeCompleter{}
	r := NewResolver(completer, logger.NewTestLogger(t))

	resolved, used := r.Resolve(context.Background(), nil, "hotels in bangkok")

	assert.Equal(t, "hotels in bangkok", resolved)
	assert.False(t, used)
	assert.Zero(t, completer.calls, "no prior turn means no model call")
}

func TestResolver_ModelResolutionUsed(t *testing.T) {
	completer := &fakeCompleter{
		response: json.RawMessage(`{"resolvedQuery": "cheaper hotels in bangkok", "usedParentContext": true}`),
	}
	r := NewResolver(completer, logger.NewTestLogger(t))

	prev := prevTurn("hotels in bangkok", map[string]string{"location": "bangkok"})
	resolved, used := r.Resolve(context.Background(), prev, "any cheaper ones?")

	assert.Equal(t, "cheaper hotels in bangkok", resolved)
	assert.True(t, used)
}

func TestResolver_ExplicitTokensWin(t *testing.T) {
	// Model output that drops the explicitly stated "osaka" is rejected;
	// the fallback never overwrites an attribute the new query mentions.
	completer := &fakeCompleter{
		response: json.RawMessage(`{"resolvedQuery": "hotels in bangkok", "usedParentContext": true}`),
	}
	r := NewResolver(completer, logger.NewTestLogger(t))

	prev := prevTurn("hotels in bangkok", map[string]string{"location": "bangkok"})
	resolved, _ := r.Resolve(context.Background(), prev, "what about hotels in osaka")

	assert.Contains(t, resolved, "osaka")
	assert.NotContains(t, resolved, "bangkok")
}

func TestResolver_FallbackInheritsLocation(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("model down")}
	r := NewResolver(completer, logger.NewTestLogger(t))

	prev := prevTurn("hotels in bangkok", map[string]string{"location": "bangkok"})
	resolved, used := r.Resolve(context.Background(), prev, "show me 5-star options")

	assert.Equal(t, "show me 5-star options in bangkok", resolved)
	assert.True(t, used)
}

func TestResolver_FallbackLeavesExplicitLocationAlone(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("model down")}
	r := NewResolver(completer, logger.NewTestLogger(t))

	prev := prevTurn("hotels in bangkok", map[string]string{"location": "bangkok"})
	resolved, used := r.Resolve(context.Background(), prev, "hotels in osaka")

	assert.Equal(t, "hotels in osaka", resolved)
	assert.False(t, used)
}

func TestResolver_FallbackOnMalformedOutput(t *testing.T) {
	completer := &fakeCompleter{response: json.RawMessage(`{"unexpected": true}`)}
	r := NewResolver(completer, logger.NewTestLogger(t))

	prev := prevTurn("restaurants in lisbon", map[string]string{"location": "lisbon"})
	resolved, used := r.Resolve(context.Background(), prev, "which ones are open late")

	assert.Equal(t, "which ones are open late in lisbon", resolved)
	assert.True(t, used)
}
