// internal/provider/shopping_test.go
package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"answer-engine/internal/common/config"
	"answer-engine/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shoppingPayload = `{
	"shopping_results": [
		{"product_id": "p1", "title": "Budget Headphones", "link": "https://shop.example.com/p1",
		 "source": "ShopA", "price": "$49.00", "extracted_price": 49.0, "rating": 4.2, "reviews": 310},
		{"product_id": "p2", "title": "Premium Headphones", "link": "https://shop.example.com/p2",
		 "source": "ShopB", "price": "$249.00", "extracted_price": 249.0, "rating": 4.8, "reviews": 1200},
		{"product_id": "p3", "title": "Unrated Headphones", "link": "https://shop.example.com/p3",
		 "source": "ShopC", "price": "$79.00", "extracted_price": 79.0}
	]
}`

func newShoppingProvider(t *testing.T, payload string) (*ShoppingProvider, *httptest.Server) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "google_shopping", r.URL.Query().Get("engine"))
		w.Write([]byte(payload))
	}))
	t.Cleanup(server.Close)

	cfg := config.ProviderConfig{
		Enabled: true, BaseURL: server.URL, Engine: "google_shopping",
		Priority: 3, MaxResults: 10,
	}
	return NewShopping(cfg, logger.NewTestLogger(t)), server
}

func TestShopping_ParsesListings(t *testing.T) {
	p, _ := newShoppingProvider(t, shoppingPayload)

	result, err := p.Retrieve(context.Background(), "headphones", nil)

	require.NoError(t, err)
	require.Len(t, result.Chunks, 3)
	assert.Equal(t, "p1", result.Chunks[0].DedupKey)
	assert.Equal(t, 4.2, result.Chunks[0].Score)
	assert.Contains(t, result.Chunks[0].Content, "$49.00")
	assert.Contains(t, result.Chunks[0].Content, "310 reviews")
}

func TestShopping_UnratedListingsKeepNeutralScore(t *testing.T) {
	p, _ := newShoppingProvider(t, shoppingPayload)

	result, err := p.Retrieve(context.Background(), "headphones", nil)

	require.NoError(t, err)
	assert.Equal(t, 2.5, result.Chunks[2].Score)
}

func TestShopping_PriceMaxFilter(t *testing.T) {
	p, _ := newShoppingProvider(t, shoppingPayload)

	result, err := p.Retrieve(context.Background(), "headphones", map[string]string{"price_max": "100"})

	require.NoError(t, err)
	require.Len(t, result.Chunks, 2)
	for _, c := range result.Chunks {
		assert.NotContains(t, c.Title, "Premium")
	}
}

func TestShopping_MalformedPayloadIsTyped(t *testing.T) {
	p, _ := newShoppingProvider(t, `{"shopping_results": "nope"}`)

	_, err := p.Retrieve(context.Background(), "headphones", nil)

	assert.ErrorIs(t, err, ErrUnavailable)
}
