// Package understand turns a resolved query into intent, filters and a
// rewritten retrieval query, and gates on clarification.
package understand

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"answer-engine/internal/common/logger"
	"answer-engine/internal/llm"
	"answer-engine/internal/pipeline"
)

const understandInstructions = `You analyze a search query for a retrieval system.
Classify the intent as one of: shopping, hotel, flight, movie, place, generic.
Extract filters as flat string attributes (location, category, brand, price_max,
star_rating, dates, origin, destination). Rewrite the query into a concise
retrieval form. Respond with JSON only:
{"intent": string, "confidence": number, "filters": object, "rewrittenQuery": string}`

const understandSchema = `{
	"type": "object",
	"required": ["intent", "confidence", "rewrittenQuery"],
	"properties": {
		"intent": {"type": "string"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"filters": {"type": ["object", "null"]},
		"rewrittenQuery": {"type": "string", "minLength": 1}
	}
}`

// Understanding is the analyzed form of a resolved query.
type Understanding struct {
	Intent                 pipeline.Intent   `json:"intent"`
	Confidence             float64           `json:"confidence"`
	Filters                map[string]string `json:"filters"`
	RewrittenQuery         string            `json:"rewrittenQuery"`
	NeedsClarification     bool              `json:"needsClarification"`
	ClarificationQuestions []string          `json:"clarificationQuestions,omitempty"`
}

// requiredFilters lists the attributes an intent cannot be retrieved
// without and that have no sensible default.
var requiredFilters = map[pipeline.Intent]map[string]string{
	pipeline.IntentFlight: {
		"origin":      "Where are you flying from?",
		"destination": "Where are you flying to?",
		"dates":       "What dates are you travelling?",
	},
	pipeline.IntentHotel: {
		"location": "Which city or area should the hotel be in?",
	},
}

// Analyzer produces Understandings. The model call is primary; a
// deterministic keyword classifier covers model failures so this stage is
// never fatal on its own.
type Analyzer struct {
	completer           llm.Completer
	confidenceThreshold float64
	logger              logger.Logger
}

func NewAnalyzer(completer llm.Completer, confidenceThreshold float64, log logger.Logger) *Analyzer {
	return &Analyzer{
		completer:           completer,
		confidenceThreshold: confidenceThreshold,
		logger:              log.WithFields(map[string]interface{}{"component": "understand"}),
	}
}

func (a *Analyzer) Analyze(ctx context.Context, resolvedQuery string) (*Understanding, error) {
	u, err := a.analyzeWithModel(ctx, resolvedQuery)
	if err != nil {
		if isFatalLLM(err) {
			return nil, err
		}
		a.logger.Warn("model understanding failed, using keyword fallback", map[string]interface{}{
			"error": err.Error(),
		})
		u = fallbackClassify(resolvedQuery)
	}

	a.gate(u)

	a.logger.Info("query understood", map[string]interface{}{
		"intent":             string(u.Intent),
		"confidence":         u.Confidence,
		"filterCount":        len(u.Filters),
		"needsClarification": u.NeedsClarification,
	})
	return u, nil
}

func (a *Analyzer) analyzeWithModel(ctx context.Context, resolvedQuery string) (*Understanding, error) {
	raw, err := a.completer.Complete(ctx, llm.Request{
		Stage:        "understanding",
		Instructions: understandInstructions,
		Context:      "Query: " + resolvedQuery,
		MaxTokens:    256,
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		Intent         string            `json:"intent"`
		Confidence     float64           `json:"confidence"`
		Filters        map[string]string `json:"filters"`
		RewrittenQuery string            `json:"rewrittenQuery"`
	}
	if err := llm.DecodeValidated(understandSchema, raw, &out); err != nil {
		return nil, err
	}

	filters := out.Filters
	if filters == nil {
		filters = map[string]string{}
	}
	return &Understanding{
		Intent:         pipeline.ParseIntent(out.Intent),
		Confidence:     out.Confidence,
		Filters:        filters,
		RewrittenQuery: out.RewrittenQuery,
	}, nil
}

// gate sets the clarification flag. Clarification is a valid terminal
// branch for the orchestrator, not an error.
func (a *Analyzer) gate(u *Understanding) {
	if u.Confidence < a.confidenceThreshold {
		u.NeedsClarification = true
		u.ClarificationQuestions = append(u.ClarificationQuestions,
			fmt.Sprintf("Could you say more about what you are looking for? I was not sure how to read %q.", u.RewrittenQuery))
		return
	}

	required, ok := requiredFilters[u.Intent]
	if !ok {
		return
	}
	for attr, question := range required {
		if u.Filters[attr] == "" {
			u.NeedsClarification = true
			u.ClarificationQuestions = append(u.ClarificationQuestions, question)
		}
	}
}

var (
	priceRe = regexp.MustCompile(`(?i)(?:under|below|less than|max)\s*\$?(\d+)`)
	starRe  = regexp.MustCompile(`(?i)(\d)[\s-]?star`)
)

var intentKeywords = []struct {
	intent pipeline.Intent
	words  []string
}{
	{pipeline.IntentHotel, []string{"hotel", "hostel", "resort", "accommodation", "stay in"}},
	{pipeline.IntentFlight, []string{"flight", "fly to", "airline", "airfare"}},
	{pipeline.IntentMovie, []string{"movie", "film", "showtime", "cinema"}},
	{pipeline.IntentShopping, []string{"buy", "price of", "cheapest", "deal on", "shop"}},
	{pipeline.IntentPlace, []string{"restaurant", "cafe", "near me", "places to", "attraction"}},
}

// fallbackClassify is the deterministic classifier used when the model
// call fails. Confidence is fixed high enough to pass the gate so a model
// outage degrades quality instead of blocking every query on clarification.
func fallbackClassify(query string) *Understanding {
	lower := strings.ToLower(query)

	intent := pipeline.IntentGeneric
	for _, entry := range intentKeywords {
		for _, w := range entry.words {
			if strings.Contains(lower, w) {
				intent = entry.intent
				break
			}
		}
		if intent != pipeline.IntentGeneric {
			break
		}
	}

	filters := map[string]string{}
	if m := priceRe.FindStringSubmatch(query); m != nil {
		filters["price_max"] = m[1]
	}
	if m := starRe.FindStringSubmatch(query); m != nil {
		filters["star_rating"] = m[1]
	}
	if loc := extractLocation(lower); loc != "" {
		filters["location"] = loc
	}

	return &Understanding{
		Intent:         intent,
		Confidence:     0.7,
		Filters:        filters,
		RewrittenQuery: strings.Join(strings.Fields(query), " "),
	}
}

func extractLocation(lower string) string {
	idx := strings.LastIndex(lower, " in ")
	if idx < 0 {
		return ""
	}
	loc := strings.Trim(lower[idx+4:], " .,!?")
	if loc == "" || strings.ContainsAny(loc, "0123456789") {
		return ""
	}
	return loc
}

func isFatalLLM(err error) bool {
	return errors.Is(err, llm.ErrUnavailable)
}
