// Package critique evaluates whether a draft answer is sufficiently
// grounded in the retrieved evidence.
package critique

import (
	"context"
	"fmt"
	"strings"

	"answer-engine/internal/common/logger"
	"answer-engine/internal/llm"
	"answer-engine/internal/pipeline"
)

const critiqueInstructions = `You review a draft answer against the user's question and the evidence it cites.
Judge whether every material claim is supported by the evidence and whether the
question is fully addressed. List aspects of the question the evidence does not
cover. Respond with JSON only:
{"sufficientlyGrounded": boolean, "missingAspects": [string]}`

const verdictSchema = `{
	"type": "object",
	"required": ["sufficientlyGrounded"],
	"properties": {
		"sufficientlyGrounded": {"type": "boolean"},
		"missingAspects": {"type": "array", "items": {"type": "string"}}
	}
}`

// Agent produces one Verdict per synthesis attempt.
type Agent struct {
	completer llm.Completer
	logger    logger.Logger
}

func NewAgent(completer llm.Completer, log logger.Logger) *Agent {
	return &Agent{
		completer: completer,
		logger:    log.WithFields(map[string]interface{}{"component": "critique"}),
	}
}

// Evaluate judges the draft. A failed critique call accepts the draft:
// critique only ever improves an answer, it never blocks one.
func (a *Agent) Evaluate(ctx context.Context, q pipeline.Query, draft *pipeline.Answer, merged pipeline.MergedResult) pipeline.Verdict {
	contextBlock := a.buildContext(q, draft, merged)

	raw, err := a.completer.Complete(ctx, llm.Request{
		Stage:        "critique",
		Instructions: critiqueInstructions,
		Context:      contextBlock,
		MaxTokens:    256,
	})
	if err != nil {
		a.logger.Warn("critique call failed, accepting draft", map[string]interface{}{
			"error": err.Error(),
		})
		return pipeline.Verdict{SufficientlyGrounded: true}
	}

	var verdict pipeline.Verdict
	if err := llm.DecodeValidated(verdictSchema, raw, &verdict); err != nil {
		a.logger.Warn("critique output unparsable, accepting draft", map[string]interface{}{
			"error": err.Error(),
		})
		return pipeline.Verdict{SufficientlyGrounded: true}
	}

	a.logger.Info("critique verdict", map[string]interface{}{
		"sufficientlyGrounded": verdict.SufficientlyGrounded,
		"missingAspects":       verdict.MissingAspects,
	})
	return verdict
}

func (a *Agent) buildContext(q pipeline.Query, draft *pipeline.Answer, merged pipeline.MergedResult) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(q.Resolved)
	b.WriteString("\n\nDraft answer:\n")
	b.WriteString(draft.Text)

	b.WriteString("\n\nEvidence used:\n")
	cited := make(map[string]bool, len(draft.Citations))
	for _, c := range draft.Citations {
		cited[c.SourceID] = true
	}
	for _, chunk := range merged.Chunks {
		marker := " "
		if cited[chunk.SourceID] {
			marker = "*"
		}
		b.WriteString(fmt.Sprintf("%s source=%s %s: %s\n", marker, chunk.SourceID, chunk.Title, chunk.Content))
	}
	return b.String()
}
