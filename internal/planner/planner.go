// Package planner maps (intent, filters, grounding mode) to a concrete
// set of provider calls, and narrows that set on a critique-triggered
// second pass.
package planner

import (
	"strings"
	"time"

	"answer-engine/internal/common/logger"
	"answer-engine/internal/pipeline"
	"answer-engine/internal/provider"
)

// Planner selects providers through the registry's capability table; it
// can never select a provider incapable of the intent.
type Planner struct {
	registry        *provider.Registry
	deadlines       map[string]time.Duration
	defaultDeadline time.Duration
	logger          logger.Logger
}

func New(registry *provider.Registry, deadlines map[string]time.Duration, defaultDeadline time.Duration, log logger.Logger) *Planner {
	return &Planner{
		registry:        registry,
		deadlines:       deadlines,
		defaultDeadline: defaultDeadline,
		logger:          log.WithFields(map[string]interface{}{"component": "planner"}),
	}
}

// Plan builds the first-pass retrieval plan.
func (p *Planner) Plan(q pipeline.Query, mode pipeline.GroundingMode) pipeline.RetrievalPlan {
	var plan pipeline.RetrievalPlan

	switch mode {
	case pipeline.GroundingNone:
		return plan

	case pipeline.GroundingHybrid:
		// One broad web lookup suffices.
		if web, ok := p.registry.Get("web"); ok {
			plan.Calls = append(plan.Calls, p.call(web, q.Resolved, q.Filters))
		}

	case pipeline.GroundingFull:
		for _, prov := range p.registry.ForIntent(q.Intent) {
			plan.Calls = append(plan.Calls, p.call(prov, q.Resolved, q.Filters))
		}
	}

	p.logger.Info("retrieval plan built", map[string]interface{}{
		"mode":      string(mode),
		"intent":    string(q.Intent),
		"callCount": len(plan.Calls),
	})
	return plan
}

// Refine builds the bounded second-pass plan from the critique's missing
// aspects: same or fewer providers, refined queries, and never a call that
// repeats an already-exhausted (provider, query, filters) combination.
func (p *Planner) Refine(q pipeline.Query, prev pipeline.RetrievalPlan, verdict pipeline.Verdict) pipeline.RetrievalPlan {
	plan := pipeline.RetrievalPlan{Refinement: true}
	if len(verdict.MissingAspects) == 0 {
		return plan
	}

	exhausted := make(map[string]bool, len(prev.Calls))
	prevProviders := make(map[string]bool, len(prev.Calls))
	for _, call := range prev.Calls {
		exhausted[call.Fingerprint()] = true
		prevProviders[call.ProviderID] = true
	}

	refinedQuery := strings.TrimSpace(q.Resolved + " " + strings.Join(verdict.MissingAspects, " "))

	for _, prov := range p.registry.ForIntent(q.Intent) {
		// Only providers from the first pass; the second pass narrows,
		// it never widens.
		if !prevProviders[prov.ID()] {
			continue
		}
		call := p.call(prov, refinedQuery, q.Filters)
		if exhausted[call.Fingerprint()] {
			continue
		}
		plan.Calls = append(plan.Calls, call)
	}

	p.logger.Info("refinement plan built", map[string]interface{}{
		"missingAspects": verdict.MissingAspects,
		"callCount":      len(plan.Calls),
	})
	return plan
}

func (p *Planner) call(prov provider.Provider, query string, filters map[string]string) pipeline.PlannedCall {
	deadline, ok := p.deadlines[prov.ID()]
	if !ok {
		deadline = p.defaultDeadline
	}
	return pipeline.PlannedCall{
		ProviderID: prov.ID(),
		Query:      query,
		Filters:    filters,
		Deadline:   deadline,
	}
}
