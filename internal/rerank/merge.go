// Package rerank deduplicates and ranks retrieval results across
// providers into one merged evidence set.
package rerank

import (
	"errors"
	"sort"

	"answer-engine/internal/common/logger"
	"answer-engine/internal/pipeline"
)

// ErrAllProvidersFailed signals that no provider produced a result at all.
// The orchestrator turns this into the NoEvidence degraded branch when the
// grounding mode required evidence.
var ErrAllProvidersFailed = errors.New("NO_PROVIDER_RESULTS")

// Outcome pairs one planned call with its settled result or failure.
type Outcome struct {
	ProviderID string
	Result     *pipeline.ProviderResult
	Err        error
}

// Engine merges provider outcomes. Weights and truncation are
// configuration, not hard-coded policy.
type Engine struct {
	priorities     map[string]int
	maxPriority    int
	localWeight    float64
	priorityWeight float64
	topK           int
	logger         logger.Logger
}

func NewEngine(priorities map[string]int, localWeight, priorityWeight float64, topK int, log logger.Logger) *Engine {
	maxPriority := 1
	for _, p := range priorities {
		if p > maxPriority {
			maxPriority = p
		}
	}
	return &Engine{
		priorities:     priorities,
		maxPriority:    maxPriority,
		localWeight:    localWeight,
		priorityWeight: priorityWeight,
		topK:           topK,
		logger:         log.WithFields(map[string]interface{}{"component": "rerank"}),
	}
}

// Merge drops failures, deduplicates by dedup key, computes cross-provider
// scores and returns the top-K chunks. A request with at least one
// successful provider proceeds; zero successes returns ErrAllProvidersFailed.
func (e *Engine) Merge(outcomes []Outcome) (pipeline.MergedResult, error) {
	var merged pipeline.MergedResult
	successes := 0

	byKey := make(map[string]pipeline.Chunk)
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			merged.FailedProviders = append(merged.FailedProviders, outcome.ProviderID)
			e.logger.Warn("provider dropped from merge", map[string]interface{}{
				"providerId": outcome.ProviderID,
				"error":      outcome.Err.Error(),
			})
			continue
		}
		successes++
		if outcome.Result == nil {
			continue
		}

		for _, chunk := range outcome.Result.Chunks {
			existing, seen := byKey[chunk.DedupKey]
			if !seen {
				byKey[chunk.DedupKey] = chunk
				continue
			}
			if e.wins(chunk, existing) {
				byKey[chunk.DedupKey] = chunk
			}
		}
	}

	if successes == 0 {
		return merged, ErrAllProvidersFailed
	}

	chunks := make([]pipeline.Chunk, 0, len(byKey))
	for _, chunk := range byKey {
		chunk.FinalScore = e.finalScore(chunk)
		chunks = append(chunks, chunk)
	}

	// Descending final score; exact ties break by provider priority, then
	// original provider rank, so ordering is fully deterministic.
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].FinalScore != chunks[j].FinalScore {
			return chunks[i].FinalScore > chunks[j].FinalScore
		}
		pi, pj := e.priorities[chunks[i].ProviderID], e.priorities[chunks[j].ProviderID]
		if pi != pj {
			return pi > pj
		}
		return chunks[i].Rank < chunks[j].Rank
	})

	if e.topK > 0 && len(chunks) > e.topK {
		chunks = chunks[:e.topK]
	}
	merged.Chunks = chunks

	e.logger.Info("merge completed", map[string]interface{}{
		"providerSuccesses": successes,
		"providerFailures":  len(merged.FailedProviders),
		"chunkCount":        len(chunks),
	})
	return merged, nil
}

// wins decides which of two chunks sharing a dedup key survives: higher
// local score, exact ties by provider priority.
func (e *Engine) wins(candidate, existing pipeline.Chunk) bool {
	if candidate.Score != existing.Score {
		return candidate.Score > existing.Score
	}
	return e.priorities[candidate.ProviderID] > e.priorities[existing.ProviderID]
}

func (e *Engine) finalScore(chunk pipeline.Chunk) float64 {
	normalized := float64(e.priorities[chunk.ProviderID]) / float64(e.maxPriority)
	return e.localWeight*chunk.Score + e.priorityWeight*normalized
}
