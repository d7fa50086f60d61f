// internal/pipeline/types_test.go
package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuery_CacheKey(t *testing.T) {
	base := Query{
		Resolved: "  Hotels   in Bangkok ",
		Intent:   IntentHotel,
		Filters:  map[string]string{"location": "bangkok", "star_rating": "5"},
	}
	reordered := Query{
		Resolved: "hotels in bangkok",
		Intent:   IntentHotel,
		Filters:  map[string]string{"star_rating": "5", "location": "bangkok"},
	}

	// Whitespace, case and filter-map order never change the key.
	assert.Equal(t, base.CacheKey(GroundingFull), reordered.CacheKey(GroundingFull))

	assert.NotEqual(t, base.CacheKey(GroundingFull), base.CacheKey(GroundingHybrid))

	other := base
	other.Intent = IntentPlace
	assert.NotEqual(t, base.CacheKey(GroundingFull), other.CacheKey(GroundingFull))
}

func TestPlannedCall_Fingerprint(t *testing.T) {
	a := PlannedCall{ProviderID: "web", Query: "Hotels in Bangkok", Filters: map[string]string{"location": "bangkok"}}
	b := PlannedCall{ProviderID: "web", Query: "hotels in bangkok", Filters: map[string]string{"location": "bangkok"}}
	c := PlannedCall{ProviderID: "hotels", Query: "hotels in bangkok", Filters: map[string]string{"location": "bangkok"}}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestParseIntent(t *testing.T) {
	assert.Equal(t, IntentHotel, ParseIntent(" Hotel "))
	assert.Equal(t, IntentGeneric, ParseIntent("weather"))
	assert.Equal(t, IntentGeneric, ParseIntent(""))
}
