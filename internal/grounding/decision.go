// Package grounding decides how much external evidence a query needs
// before synthesis. The decision is a pure function of intent, filter
// completeness and freshness cues; it trades cost and latency against
// answer quality, it is not a correctness gate.
package grounding

import (
	"strings"

	"answer-engine/internal/pipeline"
)

// freshnessCues imply current prices or availability, which the model's
// own knowledge cannot answer.
var freshnessCues = []string{
	"price", "cost", "cheapest", "available", "availability", "in stock",
	"today", "tonight", "tomorrow", "this week", "this weekend", "now",
	"latest", "current", "open now", "schedule", "showtimes",
}

// definitionalCues mark questions answerable from parametric knowledge.
var definitionalCues = []string{
	"what is", "what are", "who is", "who was", "define", "meaning of",
	"capital of", "how does", "why does", "explain",
}

// Decide classifies the query into none, hybrid or full grounding.
func Decide(intent pipeline.Intent, filters map[string]string, rewrittenQuery string) pipeline.GroundingMode {
	lower := strings.ToLower(rewrittenQuery)

	// Domain intents always require planned multi-provider retrieval:
	// their answers depend on live inventory, not model knowledge.
	if intent != pipeline.IntentGeneric {
		return pipeline.GroundingFull
	}

	if hasCue(lower, freshnessCues) {
		if len(filters) > 0 {
			return pipeline.GroundingFull
		}
		return pipeline.GroundingHybrid
	}

	if hasCue(lower, definitionalCues) && len(filters) == 0 {
		return pipeline.GroundingNone
	}

	// Generic with attributes worth filtering on: one broad web lookup
	// plus synthesis suffices.
	if len(filters) > 0 {
		return pipeline.GroundingHybrid
	}

	return pipeline.GroundingNone
}

func hasCue(lower string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}
