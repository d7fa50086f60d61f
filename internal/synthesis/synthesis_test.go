// internal/synthesis/synthesis_test.go
package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"answer-engine/internal/common/logger"
	"answer-engine/internal/llm"
	"answer-engine/internal/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedCompleter returns one scripted response per call, in order.
type scriptedCompleter struct {
	responses []json.RawMessage
	errs      []error
	requests  []llm.Request
}

func (s *scriptedCompleter) Complete(ctx context.Context, req llm.Request) (json.RawMessage, error) {
	i := len(s.requests)
	s.requests = append(s.requests, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return nil, fmt.Errorf("%w: no scripted response", llm.ErrUnavailable)
}

func testQuery() pipeline.Query {
	return pipeline.Query{
		Raw:      "best hotels in bangkok",
		Resolved: "best hotels in bangkok",
		Intent:   pipeline.IntentHotel,
	}
}

func testEvidence() pipeline.MergedResult {
	return pipeline.MergedResult{Chunks: []pipeline.Chunk{
		{SourceID: "hotels-1", DedupKey: "h1", Title: "Grand Palace Hotel", Content: "5-star riverside hotel, $180/night", Score: 4.8, ProviderID: "hotels"},
		{SourceID: "web-1", DedupKey: "w1", Title: "Bangkok hotel guide", Content: "Top rated hotels near Sukhumvit", Score: 1.2, ProviderID: "web"},
	}}
}

func TestSynthesizer_GroundedAnswer(t *testing.T) {
	completer := &scriptedCompleter{responses: []json.RawMessage{
		json.RawMessage(`{"text": "The Grand Palace Hotel is a strong choice [hotels-1].", "citations": [{"sourceId": "hotels-1"}]}`),
	}}
	s := NewSynthesizer(completer, 6000, 1024, logger.NewTestLogger(t))

	answer, err := s.Synthesize(context.Background(), testQuery(), testEvidence(), pipeline.GroundingFull)

	require.NoError(t, err)
	assert.Contains(t, answer.Text, "Grand Palace")
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, "hotels-1", answer.Citations[0].SourceID)
	assert.False(t, answer.Degraded)
}

func TestSynthesizer_NullCitationsDoNotBurnRetry(t *testing.T) {
	completer := &scriptedCompleter{responses: []json.RawMessage{
		json.RawMessage(`{"text": "The evidence was inconclusive.", "citations": null}`),
	}}
	s := NewSynthesizer(completer, 6000, 1024, logger.NewTestLogger(t))

	answer, err := s.Synthesize(context.Background(), testQuery(), testEvidence(), pipeline.GroundingFull)

	require.NoError(t, err)
	assert.Equal(t, "The evidence was inconclusive.", answer.Text)
	assert.Empty(t, answer.Citations)
	assert.Len(t, completer.requests, 1, "a null citations list is a valid shape, not a parse failure")
	assert.False(t, answer.Degraded)
}

func TestSynthesizer_ParseFailureRetriesOnce(t *testing.T) {
	completer := &scriptedCompleter{
		responses: []json.RawMessage{
			json.RawMessage(`{"wrong": "shape"}`),
			json.RawMessage(`{"text": "Second attempt succeeded.", "citations": []}`),
		},
	}
	s := NewSynthesizer(completer, 6000, 1024, logger.NewTestLogger(t))

	answer, err := s.Synthesize(context.Background(), testQuery(), testEvidence(), pipeline.GroundingFull)

	require.NoError(t, err)
	assert.Equal(t, "Second attempt succeeded.", answer.Text)
	require.Len(t, completer.requests, 2)
	assert.Contains(t, completer.requests[1].Instructions, "not valid JSON")
}

func TestSynthesizer_DegradesAfterSecondParseFailure(t *testing.T) {
	completer := &scriptedCompleter{
		responses: []json.RawMessage{
			json.RawMessage(`not json at all`),
			json.RawMessage(`still not json`),
		},
	}
	s := NewSynthesizer(completer, 6000, 1024, logger.NewTestLogger(t))

	answer, err := s.Synthesize(context.Background(), testQuery(), testEvidence(), pipeline.GroundingFull)

	require.NoError(t, err)
	assert.True(t, answer.Degraded)
	assert.Empty(t, answer.Citations)
	// Best-effort text leans on the top-ranked chunk.
	assert.Contains(t, answer.Text, "riverside")
	assert.Len(t, completer.requests, 2, "exactly one retry, never more")
}

func TestSynthesizer_UnavailableIsFatal(t *testing.T) {
	completer := &scriptedCompleter{errs: []error{fmt.Errorf("%w: down", llm.ErrUnavailable)}}
	s := NewSynthesizer(completer, 6000, 1024, logger.NewTestLogger(t))

	answer, err := s.Synthesize(context.Background(), testQuery(), testEvidence(), pipeline.GroundingFull)

	assert.Nil(t, answer)
	assert.ErrorIs(t, err, llm.ErrUnavailable)
	assert.Len(t, completer.requests, 1, "unavailability is not retried here")
}

func TestSynthesizer_NoneModeSkipsEvidence(t *testing.T) {
	completer := &scriptedCompleter{responses: []json.RawMessage{
		json.RawMessage(`{"text": "Paris is the capital of France.", "citations": []}`),
	}}
	s := NewSynthesizer(completer, 6000, 1024, logger.NewTestLogger(t))

	answer, err := s.Synthesize(context.Background(), pipeline.Query{Resolved: "capital of France"}, pipeline.MergedResult{}, pipeline.GroundingNone)

	require.NoError(t, err)
	assert.Equal(t, pipeline.GroundingNone, answer.GroundingMode)
	assert.Empty(t, answer.Citations)
	require.Len(t, completer.requests, 1)
	assert.NotContains(t, completer.requests[0].Instructions, "evidence below")
}

func TestSynthesizer_ContextRespectsTokenBudget(t *testing.T) {
	// Budget of 50 tokens = 200 characters; only the leading chunks fit.
	completer := &scriptedCompleter{responses: []json.RawMessage{
		json.RawMessage(`{"text": "ok", "citations": []}`),
	}}
	s := NewSynthesizer(completer, 50, 1024, logger.NewTestLogger(t))

	merged := pipeline.MergedResult{}
	for i := 0; i < 20; i++ {
		merged.Chunks = append(merged.Chunks, pipeline.Chunk{
			SourceID: fmt.Sprintf("s-%d", i),
			Title:    fmt.Sprintf("title %d", i),
			Content:  "some moderately long content string for budgeting purposes",
		})
	}

	_, err := s.Synthesize(context.Background(), testQuery(), merged, pipeline.GroundingFull)

	require.NoError(t, err)
	ctxBlock := completer.requests[0].Context
	assert.Contains(t, ctxBlock, "s-0", "highest ranked chunk always survives truncation")
	assert.NotContains(t, ctxBlock, "s-19")
}

func TestSynthesizer_NoEvidenceAnswer(t *testing.T) {
	s := NewSynthesizer(&scriptedCompleter{}, 6000, 1024, logger.NewTestLogger(t))

	answer := s.NoEvidenceAnswer(pipeline.GroundingFull)

	assert.True(t, answer.Degraded)
	assert.Empty(t, answer.Citations)
	assert.NotEmpty(t, answer.Text)
}
