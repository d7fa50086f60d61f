// Package provider defines the uniform retrieval capability and the
// adapters that implement it over heterogeneous backends. An adapter is a
// capability record, not a class hierarchy: anything implementing Retrieve
// with the contract below qualifies.
package provider

import (
	"context"
	"errors"

	"answer-engine/internal/pipeline"
)

var (
	// ErrTimeout marks a call aborted at its deadline.
	ErrTimeout = errors.New("PROVIDER_TIMEOUT")

	// ErrUnavailable marks a transient backend outage. Outages are typed
	// failures the merge stage drops; they never abort the request.
	ErrUnavailable = errors.New("PROVIDER_UNAVAILABLE")
)

// Provider is the retrieval capability contract.
//
// Retrieve must respect the context deadline, return partial results when
// only some sub-calls succeed, and report outages as typed errors. An
// ordinary empty result is (empty chunks, nil error), never an error.
type Provider interface {
	ID() string
	Capabilities() []pipeline.Intent
	Priority() int
	Retrieve(ctx context.Context, query string, filters map[string]string) (*pipeline.ProviderResult, error)
}

// Registry is the capability lookup table the planner selects from.
type Registry struct {
	providers []Provider
	byIntent  map[pipeline.Intent][]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{
		byIntent: make(map[pipeline.Intent][]Provider),
	}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds a provider. Registration order is preserved so plans are
// deterministic for a given configuration.
func (r *Registry) Register(p Provider) {
	r.providers = append(r.providers, p)
	for _, intent := range p.Capabilities() {
		r.byIntent[intent] = append(r.byIntent[intent], p)
	}
}

// ForIntent returns every provider advertising the intent.
func (r *Registry) ForIntent(intent pipeline.Intent) []Provider {
	return r.byIntent[intent]
}

// Get returns a provider by id.
func (r *Registry) Get(id string) (Provider, bool) {
	for _, p := range r.providers {
		if p.ID() == id {
			return p, true
		}
	}
	return nil, false
}

// All returns every registered provider in registration order.
func (r *Registry) All() []Provider {
	return r.providers
}

// Priorities returns the configured priority per provider id, used by the
// merge stage for tie-breaks and score weighting.
func (r *Registry) Priorities() map[string]int {
	out := make(map[string]int, len(r.providers))
	for _, p := range r.providers {
		out[p.ID()] = p.Priority()
	}
	return out
}
