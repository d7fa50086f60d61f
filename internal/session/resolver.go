package session

import (
	"context"
	"fmt"
	"strings"

	"answer-engine/internal/common/logger"
	"answer-engine/internal/llm"
	"answer-engine/internal/pipeline"
)

const resolveInstructions = `You rewrite a follow-up question so it stands alone.
Fill in location, entity and modifier references from the previous turn.
Never remove or change anything the new question states explicitly.
Respond with JSON only: {"resolvedQuery": string, "usedParentContext": boolean}`

const resolveSchema = `{
	"type": "object",
	"required": ["resolvedQuery", "usedParentContext"],
	"properties": {
		"resolvedQuery": {"type": "string", "minLength": 1},
		"usedParentContext": {"type": "boolean"}
	}
}`

// Resolver rewrites a follow-up query to stand alone using the immediately
// preceding turn. Resolution is never fatal: any failure falls back to a
// deterministic inheritance of the prior turn's location/category only.
type Resolver struct {
	completer llm.Completer
	logger    logger.Logger
}

func NewResolver(completer llm.Completer, log logger.Logger) *Resolver {
	return &Resolver{
		completer: completer,
		logger:    log.WithFields(map[string]interface{}{"component": "session-resolver"}),
	}
}

// Resolve returns the stand-alone form of rawQuery plus whether context
// from the parent turn was used. Only the immediately preceding turn is
// eligible as context; prev is nil on the first turn of a conversation.
func (r *Resolver) Resolve(ctx context.Context, prev *pipeline.Turn, rawQuery string) (string, bool) {
	if prev == nil {
		return rawQuery, false
	}

	resolved, used, err := r.resolveWithModel(ctx, *prev, rawQuery)
	if err == nil && r.keepsExplicitTokens(rawQuery, resolved) {
		return resolved, used
	}
	if err != nil {
		r.logger.Warn("model resolution failed, applying fallback", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		r.logger.Warn("model resolution dropped explicit tokens, applying fallback", map[string]interface{}{})
	}

	return r.fallbackResolve(*prev, rawQuery)
}

func (r *Resolver) resolveWithModel(ctx context.Context, prev pipeline.Turn, rawQuery string) (string, bool, error) {
	contextBlock := fmt.Sprintf(
		"Previous question: %s\nPrevious resolved form: %s\nPrevious filters: %s\nNew question: %s",
		prev.Query, prev.ResolvedQuery, formatFilters(prev.Filters), rawQuery,
	)

	raw, err := r.completer.Complete(ctx, llm.Request{
		Stage:        "context-resolution",
		Instructions: resolveInstructions,
		Context:      contextBlock,
		MaxTokens:    256,
	})
	if err != nil {
		return "", false, err
	}

	var out struct {
		ResolvedQuery     string `json:"resolvedQuery"`
		UsedParentContext bool   `json:"usedParentContext"`
	}
	if err := llm.DecodeValidated(resolveSchema, raw, &out); err != nil {
		return "", false, err
	}
	return out.ResolvedQuery, out.UsedParentContext, nil
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true,
	"what": true, "which": true, "about": true, "this": true, "that": true,
	"any": true, "some": true, "one": true, "ones": true, "there": true,
	"show": true, "find": true, "give": true, "please": true, "can": true,
	"you": true, "how": true, "instead": true, "with": true, "from": true,
}

// keepsExplicitTokens guards the explicit-wins invariant: every substantive
// token of the new query must survive resolution. Function words are free
// to disappear in the rewrite.
func (r *Resolver) keepsExplicitTokens(rawQuery, resolved string) bool {
	lower := strings.ToLower(resolved)
	for _, token := range strings.Fields(strings.ToLower(rawQuery)) {
		token = strings.Trim(token, ".,!?")
		if len(token) <= 2 || stopwords[token] {
			continue
		}
		if !strings.Contains(lower, token) {
			return false
		}
	}
	return true
}

// fallbackResolve inherits only the prior turn's location and category
// tokens, leaving every other attribute untouched. Attributes the new
// query already mentions are never overwritten.
func (r *Resolver) fallbackResolve(prev pipeline.Turn, rawQuery string) (string, bool) {
	resolved := rawQuery
	used := false
	lower := strings.ToLower(rawQuery)

	for _, key := range []string{"location", "category"} {
		value, ok := prev.Filters[key]
		if !ok || value == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(value)) {
			continue
		}
		// A query naming its own place keeps it; inheriting on top of it
		// would override an explicit attribute.
		if key == "location" && strings.Contains(lower, " in ") {
			continue
		}
		if key == "location" {
			resolved = resolved + " in " + value
		} else {
			resolved = resolved + " " + value
		}
		used = true
	}

	return resolved, used
}

func formatFilters(filters map[string]string) string {
	if len(filters) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(filters))
	for k, v := range filters {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ", ")
}
