// Package synthesis builds the grounding context for the language model
// and parses its structured output into the final answer shape.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	commonerrors "answer-engine/internal/common/errors"
	"answer-engine/internal/common/logger"
	"answer-engine/internal/llm"
	"answer-engine/internal/pipeline"
)

const synthesisInstructions = `You answer the user's question using ONLY the numbered evidence below.
Cite evidence by its source id for every claim drawn from it.
If the evidence is insufficient, say so clearly.
Respond with JSON only: {"text": string, "citations": [{"sourceId": string}]}`

const strictRetryInstructions = synthesisInstructions + `
Your previous output was not valid JSON. Output a single JSON object and
nothing else: no markdown fences, no prose outside the object.`

const directInstructions = `You answer general-knowledge questions concisely from your own knowledge.
Respond with JSON only: {"text": string, "citations": []}`

const answerSchema = `{
	"type": "object",
	"required": ["text"],
	"properties": {
		"text": {"type": "string", "minLength": 1},
		"citations": {
			"type": ["array", "null"],
			"items": {
				"type": "object",
				"required": ["sourceId"],
				"properties": {"sourceId": {"type": "string"}}
			}
		}
	}
}`

// Synthesizer produces draft and final answers.
type Synthesizer struct {
	completer   llm.Completer
	tokenBudget int
	maxTokens   int
	logger      logger.Logger
}

func NewSynthesizer(completer llm.Completer, tokenBudget, maxTokens int, log logger.Logger) *Synthesizer {
	return &Synthesizer{
		completer:   completer,
		tokenBudget: tokenBudget,
		maxTokens:   maxTokens,
		logger:      log.WithFields(map[string]interface{}{"component": "synthesis"}),
	}
}

// Synthesize produces a grounded answer from the merged evidence. Parse
// failures get exactly one retry with a stricter format instruction before
// degrading to a citation-less best-effort answer.
func (s *Synthesizer) Synthesize(ctx context.Context, q pipeline.Query, merged pipeline.MergedResult, mode pipeline.GroundingMode) (*pipeline.Answer, error) {
	instructions := synthesisInstructions
	contextBlock := s.buildContext(q, merged)
	if mode == pipeline.GroundingNone {
		instructions = directInstructions
		contextBlock = "Question: " + q.Resolved
	}

	answer, err := s.complete(ctx, instructions, contextBlock, mode)
	if err == nil {
		return answer, nil
	}
	if errors.Is(err, llm.ErrUnavailable) {
		return nil, err
	}

	s.logger.WithError(commonerrors.NewSynthesisParseError(err.Error())).Warn("synthesis output unparsable, retrying with strict format", nil)

	answer, err = s.complete(ctx, strictRetryInstructions, contextBlock, mode)
	if err == nil {
		return answer, nil
	}
	if errors.Is(err, llm.ErrUnavailable) {
		return nil, err
	}

	// Degraded terminal: best-effort text with no citations.
	s.logger.WithError(commonerrors.NewSynthesisFailedError(err)).Error("synthesis degraded after retry", nil)
	return &pipeline.Answer{
		Text:          s.degradedText(merged),
		GroundingMode: mode,
		Degraded:      true,
	}, nil
}

// NoEvidenceAnswer is the degraded response when the grounding mode
// required evidence and none arrived. It is an answer, not an error.
func (s *Synthesizer) NoEvidenceAnswer(mode pipeline.GroundingMode) *pipeline.Answer {
	return &pipeline.Answer{
		Text:          "I could not find current information to answer that reliably. Please try again in a moment or rephrase the question.",
		GroundingMode: mode,
		Degraded:      true,
	}
}

func (s *Synthesizer) complete(ctx context.Context, instructions, contextBlock string, mode pipeline.GroundingMode) (*pipeline.Answer, error) {
	raw, err := s.completer.Complete(ctx, llm.Request{
		Stage:        "synthesis",
		Instructions: instructions,
		Context:      contextBlock,
		MaxTokens:    s.maxTokens,
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		Text      string `json:"text"`
		Citations []struct {
			SourceID string `json:"sourceId"`
		} `json:"citations"`
	}
	if err := llm.DecodeValidated(answerSchema, raw, &out); err != nil {
		return nil, err
	}

	answer := &pipeline.Answer{
		Text:          out.Text,
		GroundingMode: mode,
	}
	for _, c := range out.Citations {
		answer.Citations = append(answer.Citations, pipeline.Citation{SourceID: c.SourceID})
	}
	return answer, nil
}

// buildContext lays the chunks out in merged order under the token budget
// so the most relevant evidence survives truncation.
func (s *Synthesizer) buildContext(q pipeline.Query, merged pipeline.MergedResult) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(q.Resolved)
	b.WriteString("\n\nEvidence:\n")

	// Rough budget: four characters per token.
	budget := s.tokenBudget * 4
	used := b.Len()
	included := 0

	for i, chunk := range merged.Chunks {
		entry := fmt.Sprintf("[%d] source=%s %s: %s\n", i+1, chunk.SourceID, chunk.Title, chunk.Content)
		if used+len(entry) > budget {
			break
		}
		b.WriteString(entry)
		used += len(entry)
		included++
	}

	s.logger.Debug("grounding context built", map[string]interface{}{
		"chunksIncluded": included,
		"chunksTotal":    len(merged.Chunks),
	})
	return b.String()
}

func (s *Synthesizer) degradedText(merged pipeline.MergedResult) string {
	if len(merged.Chunks) == 0 {
		return "I could not put together a reliable answer this time. Please try rephrasing the question."
	}
	top := merged.Chunks[0]
	return fmt.Sprintf("I could not fully verify an answer, but the most relevant source says: %s", top.Content)
}
