// Package orchestrator drives one query through the full pipeline:
// context resolution, understanding, grounding decision, retrieval
// fan-out, merge, synthesis and the bounded critique loop.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"answer-engine/internal/cache"
	"answer-engine/internal/common/config"
	commonerrors "answer-engine/internal/common/errors"
	"answer-engine/internal/common/logger"
	"answer-engine/internal/common/metrics"
	"answer-engine/internal/critique"
	"answer-engine/internal/grounding"
	"answer-engine/internal/pipeline"
	"answer-engine/internal/planner"
	"answer-engine/internal/provider"
	"answer-engine/internal/rerank"
	"answer-engine/internal/session"
	"answer-engine/internal/synthesis"
	"answer-engine/internal/understand"

	"github.com/google/uuid"
)

// Orchestrator wires the pipeline stages together. Each request flows
// Drafted -> Critiqued -> (Accepted | Refining) -> Finalized, with at
// most one critique-triggered refinement pass.
type Orchestrator struct {
	store       session.Store
	resolver    *session.Resolver
	analyzer    *understand.Analyzer
	planner     *planner.Planner
	registry    *provider.Registry
	merger      *rerank.Engine
	synthesizer *synthesis.Synthesizer
	critic      *critique.Agent
	cache       cache.Cache
	cfg         config.PipelineConfig
	logger      logger.Logger
}

func New(
	store session.Store,
	resolver *session.Resolver,
	analyzer *understand.Analyzer,
	plan *planner.Planner,
	registry *provider.Registry,
	merger *rerank.Engine,
	synthesizer *synthesis.Synthesizer,
	critic *critique.Agent,
	stageCache cache.Cache,
	cfg config.PipelineConfig,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:       store,
		resolver:    resolver,
		analyzer:    analyzer,
		planner:     plan,
		registry:    registry,
		merger:      merger,
		synthesizer: synthesizer,
		critic:      critic,
		cache:       stageCache,
		cfg:         cfg,
		logger:      log.WithFields(map[string]interface{}{"component": "orchestrator"}),
	}
}

// HandleQuery runs one user query to a terminal state. Exactly one of the
// three return values carries the outcome: an answer, a clarification
// request, or an error. Clarification is a valid terminal branch, not a
// failure.
func (o *Orchestrator) HandleQuery(ctx context.Context, conversationID, rawQuery string) (*pipeline.Answer, *pipeline.ClarificationRequest, error) {
	requestID := uuid.New().String()
	log := o.logger.WithFields(map[string]interface{}{
		"requestId":      requestID,
		"conversationId": conversationID,
	})

	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestDeadline())
	defer cancel()

	start := time.Now()
	log.Info("query received", map[string]interface{}{"query": rawQuery})

	// Session context: only the immediately preceding turn is eligible.
	turns := o.loadTurns(ctx, conversationID, log)
	var prev *pipeline.Turn
	if len(turns) > 0 {
		prev = &turns[len(turns)-1]
	}

	resolved, usedParent := o.resolveStage(ctx, prev, rawQuery)
	u, err := o.understandStage(ctx, resolved)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("error").Inc()
		return nil, nil, commonerrors.NewLLMUnavailableError(err)
	}

	if u.NeedsClarification {
		log.WithError(commonerrors.NewClarificationRequiredError(u.ClarificationQuestions)).Info("clarification requested", map[string]interface{}{
			"questions": u.ClarificationQuestions,
		})
		metrics.RequestsTotal.WithLabelValues("clarification").Inc()
		return nil, &pipeline.ClarificationRequest{Questions: u.ClarificationQuestions}, nil
	}

	q := pipeline.Query{
		Raw:            rawQuery,
		Resolved:       u.RewrittenQuery,
		Intent:         u.Intent,
		Filters:        u.Filters,
		ConversationID: conversationID,
		Turn:           len(turns),
	}

	mode := o.decideStage(q)
	log.Info("grounding mode decided", map[string]interface{}{
		"mode":              string(mode),
		"intent":            string(q.Intent),
		"usedParentContext": usedParent,
	})

	answer, err := o.answer(ctx, q, mode, log)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("error").Inc()
		return nil, nil, err
	}

	// Running out of the end-to-end budget degrades the answer instead of
	// failing the request.
	if ctx.Err() != nil {
		answer.Degraded = true
		log.WithError(commonerrors.NewUpstreamTimeoutError(time.Since(start))).Warn("request deadline exhausted", nil)
	}

	o.appendTurn(conversationID, q, log)

	outcome := "answered"
	if answer.Degraded {
		outcome = "degraded"
	}
	metrics.RequestsTotal.WithLabelValues(outcome).Inc()
	log.Info("query completed", map[string]interface{}{
		"outcome":         outcome,
		"groundingMode":   string(answer.GroundingMode),
		"critiqueApplied": answer.CritiqueApplied,
		"refined":         answer.Refined,
		"citationCount":   len(answer.Citations),
		"durationMs":      time.Since(start).Milliseconds(),
	})
	return answer, nil, nil
}

// answer runs retrieval, synthesis and the bounded critique loop.
func (o *Orchestrator) answer(ctx context.Context, q pipeline.Query, mode pipeline.GroundingMode, log logger.Logger) (*pipeline.Answer, error) {
	if mode == pipeline.GroundingNone {
		return o.synthesizeStage(ctx, q, pipeline.MergedResult{}, mode)
	}

	plan := o.planner.Plan(q, mode)
	merged, ok := o.retrieve(ctx, q, mode, plan, log)
	if !ok {
		// Evidence was required and none arrived: degraded terminal, not
		// an error.
		log.WithError(commonerrors.NewNoEvidenceError("mode " + string(mode))).Warn("answering without evidence", nil)
		return o.synthesizer.NoEvidenceAnswer(mode), nil
	}

	draft, err := o.synthesizeStage(ctx, q, merged, mode)
	if err != nil {
		return nil, err
	}

	// Critique runs only in deep mode under full grounding, and triggers
	// at most one refinement pass.
	if !o.cfg.DeepMode || mode != pipeline.GroundingFull {
		return draft, nil
	}

	verdict := o.critiqueStage(ctx, q, draft, merged)
	draft.CritiqueApplied = true
	if verdict.SufficientlyGrounded {
		return draft, nil
	}

	refinePlan := o.planner.Refine(q, plan, verdict)
	if len(refinePlan.Calls) == 0 {
		return draft, nil
	}

	metrics.CritiqueRefinements.Inc()
	log.Info("critique refinement pass", map[string]interface{}{
		"missingAspects": verdict.MissingAspects,
		"callCount":      len(refinePlan.Calls),
	})

	outcomes := append(outcomesFromMerged(merged), o.executePlan(ctx, refinePlan)...)
	refined, err := o.mergeStage(outcomes)
	if err != nil || len(refined.Chunks) == 0 {
		return draft, nil
	}

	final, err := o.synthesizeStage(ctx, q, refined, mode)
	if err != nil {
		return draft, nil
	}
	final.CritiqueApplied = true
	final.Refined = true
	return final, nil
}

// retrieve returns the merged evidence set, consulting the stage cache
// first. ok is false when the mode required evidence and none arrived.
func (o *Orchestrator) retrieve(ctx context.Context, q pipeline.Query, mode pipeline.GroundingMode, plan pipeline.RetrievalPlan, log logger.Logger) (pipeline.MergedResult, bool) {
	key := cache.Key("retrieval", q.CacheKey(mode))

	var cached pipeline.MergedResult
	if err := o.cache.Get(ctx, key, &cached); err == nil && len(cached.Chunks) > 0 {
		log.Info("retrieval served from cache", map[string]interface{}{
			"chunkCount": len(cached.Chunks),
		})
		return cached, true
	}

	if len(plan.Calls) == 0 {
		return pipeline.MergedResult{}, false
	}

	outcomes := o.executePlan(ctx, plan)
	merged, err := o.mergeStage(outcomes)
	if err != nil || len(merged.Chunks) == 0 {
		log.Warn("retrieval produced no evidence", map[string]interface{}{
			"mode":            string(mode),
			"failedProviders": merged.FailedProviders,
		})
		return merged, false
	}

	// Cache only fully successful evidence sets so a transient provider
	// outage never pins a thin result for the whole TTL.
	if len(merged.FailedProviders) == 0 {
		_ = o.cache.Put(ctx, key, merged, time.Duration(o.cfg.CacheTTL)*time.Second)
	}
	return merged, true
}

// executePlan fans the planned calls out concurrently, one goroutine per
// call with its own deadline, and waits for every call to settle.
func (o *Orchestrator) executePlan(ctx context.Context, plan pipeline.RetrievalPlan) []rerank.Outcome {
	outcomes := make([]rerank.Outcome, len(plan.Calls))

	var wg sync.WaitGroup
	for i, call := range plan.Calls {
		wg.Add(1)
		go func(i int, call pipeline.PlannedCall) {
			defer wg.Done()
			outcomes[i] = o.executeCall(ctx, call)
		}(i, call)
	}
	wg.Wait()

	return outcomes
}

func (o *Orchestrator) executeCall(ctx context.Context, call pipeline.PlannedCall) (outcome rerank.Outcome) {
	outcome.ProviderID = call.ProviderID

	// A misbehaving adapter must cost at most its own slot in the merge.
	defer func() {
		if r := recover(); r != nil {
			outcome.Result = nil
			outcome.Err = commonerrors.NewTransientProviderFailureError(call.ProviderID, fmt.Errorf("provider panic: %v", r))
			metrics.ProviderCalls.WithLabelValues(call.ProviderID, "panic").Inc()
		}
	}()

	prov, ok := o.registry.Get(call.ProviderID)
	if !ok {
		outcome.Err = commonerrors.NewInvalidPlanError("unknown provider " + call.ProviderID)
		return outcome
	}

	callCtx, cancel := context.WithTimeout(ctx, call.Deadline)
	defer cancel()

	start := time.Now()
	result, err := prov.Retrieve(callCtx, call.Query, call.Filters)
	metrics.StageDuration.WithLabelValues("provider:" + call.ProviderID).Observe(time.Since(start).Seconds())

	if err != nil {
		label := "failure"
		outcome.Err = commonerrors.NewTransientProviderFailureError(call.ProviderID, err)
		if errors.Is(err, provider.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			label = "timeout"
			outcome.Err = commonerrors.NewProviderTimeoutError(call.ProviderID)
		}
		metrics.ProviderCalls.WithLabelValues(call.ProviderID, label).Inc()
		return outcome
	}

	metrics.ProviderCalls.WithLabelValues(call.ProviderID, "success").Inc()
	outcome.Result = result
	return outcome
}

// outcomesFromMerged rehydrates a merged evidence set into per-provider
// outcomes so a refinement pass can re-merge old and new evidence under
// the same dedup and scoring rules.
func outcomesFromMerged(merged pipeline.MergedResult) []rerank.Outcome {
	byProvider := make(map[string]*pipeline.ProviderResult)
	order := make([]string, 0)
	for _, chunk := range merged.Chunks {
		result, ok := byProvider[chunk.ProviderID]
		if !ok {
			result = &pipeline.ProviderResult{ProviderID: chunk.ProviderID}
			byProvider[chunk.ProviderID] = result
			order = append(order, chunk.ProviderID)
		}
		result.Chunks = append(result.Chunks, chunk)
	}

	outcomes := make([]rerank.Outcome, 0, len(order))
	for _, id := range order {
		outcomes = append(outcomes, rerank.Outcome{ProviderID: id, Result: byProvider[id]})
	}
	return outcomes
}

func (o *Orchestrator) loadTurns(ctx context.Context, conversationID string, log logger.Logger) []pipeline.Turn {
	if conversationID == "" {
		return nil
	}
	turns, err := o.store.GetTurns(ctx, conversationID)
	if err != nil {
		// A broken session store costs context resolution, never the request.
		log.WithError(commonerrors.NewSessionStoreFailedError(err)).Warn("turn history unavailable", nil)
		return nil
	}
	return turns
}

// appendTurn persists the completed exchange. It uses its own context so
// a request that exhausted its deadline still records the turn.
func (o *Orchestrator) appendTurn(conversationID string, q pipeline.Query, log logger.Logger) {
	if conversationID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	turn := pipeline.Turn{
		Query:         q.Raw,
		ResolvedQuery: q.Resolved,
		Intent:        q.Intent,
		Filters:       q.Filters,
		Timestamp:     time.Now().UTC(),
	}
	if err := o.store.AppendTurn(ctx, conversationID, turn); err != nil {
		log.WithError(commonerrors.NewSessionStoreFailedError(err)).Warn("turn append failed", nil)
	}
}

// --- stage wrappers with duration metrics ---

func (o *Orchestrator) resolveStage(ctx context.Context, prev *pipeline.Turn, rawQuery string) (string, bool) {
	defer observe("resolve")()
	return o.resolver.Resolve(ctx, prev, rawQuery)
}

// understandStage memoizes the model's classification: the same resolved
// text always yields the same understanding, so repeat queries skip the
// model call entirely.
func (o *Orchestrator) understandStage(ctx context.Context, resolved string) (*understand.Understanding, error) {
	defer observe("understand")()

	key := cache.Key("understanding", strings.ToLower(strings.Join(strings.Fields(resolved), " ")))

	var cached understand.Understanding
	if err := o.cache.Get(ctx, key, &cached); err == nil && cached.Intent != "" {
		return &cached, nil
	}

	u, err := o.analyzer.Analyze(ctx, resolved)
	if err != nil {
		return nil, err
	}
	_ = o.cache.Put(ctx, key, u, time.Duration(o.cfg.CacheTTL)*time.Second)
	return u, nil
}

func (o *Orchestrator) decideStage(q pipeline.Query) pipeline.GroundingMode {
	defer observe("grounding")()
	return grounding.Decide(q.Intent, q.Filters, q.Resolved)
}

func (o *Orchestrator) mergeStage(outcomes []rerank.Outcome) (pipeline.MergedResult, error) {
	defer observe("merge")()
	return o.merger.Merge(outcomes)
}

func (o *Orchestrator) synthesizeStage(ctx context.Context, q pipeline.Query, merged pipeline.MergedResult, mode pipeline.GroundingMode) (*pipeline.Answer, error) {
	defer observe("synthesis")()
	return o.synthesizer.Synthesize(ctx, q, merged, mode)
}

func (o *Orchestrator) critiqueStage(ctx context.Context, q pipeline.Query, draft *pipeline.Answer, merged pipeline.MergedResult) pipeline.Verdict {
	defer observe("critique")()
	return o.critic.Evaluate(ctx, q, draft, merged)
}

func observe(stage string) func() {
	start := time.Now()
	return func() {
		metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}
