// Package pipeline holds the data model shared by every stage of the
// agentic answer pipeline.
package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Intent classifies what kind of thing the user is asking about.
type Intent string

const (
	IntentShopping Intent = "shopping"
	IntentHotel    Intent = "hotel"
	IntentFlight   Intent = "flight"
	IntentMovie    Intent = "movie"
	IntentPlace    Intent = "place"
	IntentGeneric  Intent = "generic"
)

// KnownIntents lists every intent the pipeline understands, in a fixed order.
var KnownIntents = []Intent{
	IntentShopping, IntentHotel, IntentFlight, IntentMovie, IntentPlace, IntentGeneric,
}

// ParseIntent maps a raw string to an Intent, defaulting to generic.
func ParseIntent(s string) Intent {
	for _, intent := range KnownIntents {
		if string(intent) == strings.ToLower(strings.TrimSpace(s)) {
			return intent
		}
	}
	return IntentGeneric
}

// GroundingMode is how much external evidence a query requires before synthesis.
type GroundingMode string

const (
	GroundingNone   GroundingMode = "none"
	GroundingHybrid GroundingMode = "hybrid"
	GroundingFull   GroundingMode = "full"
)

// Query is the per-request immutable view of what the user asked.
type Query struct {
	Raw            string            `json:"raw"`
	Resolved       string            `json:"resolved"`
	Intent         Intent            `json:"intent"`
	Filters        map[string]string `json:"filters"`
	ConversationID string            `json:"conversationId"`
	Turn           int               `json:"turn"`
}

// NormalizedText returns the canonical form used for cache keys.
func (q Query) NormalizedText() string {
	return strings.ToLower(strings.Join(strings.Fields(q.Resolved), " "))
}

// CacheKey derives a stable key from the normalized query, intent, filters
// and grounding mode. Unrelated requests never share a key.
func (q Query) CacheKey(mode GroundingMode) string {
	keys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+q.Filters[k])
	}
	return fmt.Sprintf("%s|%s|%s|%s", q.NormalizedText(), q.Intent, strings.Join(parts, ","), mode)
}

// Turn is one completed exchange stored in session memory. Turn history is
// append-only; prior turns are never mutated.
type Turn struct {
	Query         string            `json:"query"`
	ResolvedQuery string            `json:"resolvedQuery"`
	Intent        Intent            `json:"intent"`
	Filters       map[string]string `json:"filters"`
	Timestamp     time.Time         `json:"timestamp"`
}

// PlannedCall is one provider invocation inside a retrieval plan.
type PlannedCall struct {
	ProviderID string            `json:"providerId"`
	Query      string            `json:"query"`
	Filters    map[string]string `json:"filters"`
	Deadline   time.Duration     `json:"deadline"`
}

// Fingerprint identifies a call by provider, query and filters so a
// refinement plan can avoid repeating an exhausted call.
func (c PlannedCall) Fingerprint() string {
	keys := make([]string, 0, len(c.Filters))
	for k := range c.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+c.Filters[k])
	}
	return c.ProviderID + "|" + strings.ToLower(c.Query) + "|" + strings.Join(parts, ",")
}

// RetrievalPlan is the ordered set of provider calls for one pass.
type RetrievalPlan struct {
	Calls      []PlannedCall `json:"calls"`
	Refinement bool          `json:"refinement"`
}

// Chunk is one unit of retrieved evidence.
type Chunk struct {
	SourceID   string  `json:"sourceId"`
	DedupKey   string  `json:"dedupKey"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"` // provider-local relevance
	ProviderID string  `json:"providerId"`
	Rank       int     `json:"rank"` // original rank within its provider
	FinalScore float64 `json:"finalScore,omitempty"`
}

// ProviderResult is what one adapter returns for one planned call.
type ProviderResult struct {
	ProviderID string  `json:"providerId"`
	Chunks     []Chunk `json:"chunks"`
}

// MergedResult is the cross-provider evidence set after dedup and rerank.
// Invariant: no two chunks share a dedup key.
type MergedResult struct {
	Chunks          []Chunk  `json:"chunks"`
	FailedProviders []string `json:"failedProviders,omitempty"`
}

// Verdict is the critique agent's judgment of a draft answer.
type Verdict struct {
	SufficientlyGrounded bool     `json:"sufficientlyGrounded"`
	MissingAspects       []string `json:"missingAspects,omitempty"`
}

// Citation points at the chunk a statement is grounded on.
type Citation struct {
	SourceID string `json:"sourceId"`
}

// Answer is the terminal artifact returned to the caller.
// CritiqueApplied records that the critique stage evaluated the draft;
// Refined records that a refinement pass replaced it.
type Answer struct {
	Text            string        `json:"text"`
	Citations       []Citation    `json:"citations,omitempty"`
	GroundingMode   GroundingMode `json:"groundingMode"`
	CritiqueApplied bool          `json:"critiqueApplied"`
	Refined         bool          `json:"refined,omitempty"`
	Degraded        bool          `json:"degraded,omitempty"`
}

// ClarificationRequest is the valid terminal branch when the query is too
// ambiguous to retrieve for.
type ClarificationRequest struct {
	Questions []string `json:"questions"`
}
