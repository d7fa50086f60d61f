// internal/provider/websearch_test.go
package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"answer-engine/internal/common/config"
	"answer-engine/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webConfig(baseURL string) config.ProviderConfig {
	return config.ProviderConfig{
		Enabled:    true,
		BaseURL:    baseURL,
		APIKey:     "test-key",
		Engine:     "google",
		Priority:   2,
		MaxResults: 10,
	}
}

func TestWebSearch_ParsesOrganicResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "google", r.URL.Query().Get("engine"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"organic_results": [
				{"link": "https://www.example.com/page/", "title": "Example Page", "snippet": "useful text"},
				{"link": "http://example.com/page", "title": "Duplicate of the same page", "snippet": "same"},
				{"link": "https://energy.gov/fusion", "title": "Official fusion overview", "snippet": "gov source"}
			]
		}`))
	}))
	defer server.Close()

	p := NewWebSearch(webConfig(server.URL), logger.NewTestLogger(t))
	result, err := p.Retrieve(context.Background(), "fusion energy", nil)

	require.NoError(t, err)
	require.Len(t, result.Chunks, 2, "scheme and www variants dedup to one chunk")
	assert.Equal(t, "example.com/page", result.Chunks[0].DedupKey)
	// .gov plus "official" in the title boosts relevance.
	assert.Greater(t, result.Chunks[1].Score, result.Chunks[0].Score)
}

func TestWebSearch_AppendsFilterTerms(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Write([]byte(`{"organic_results": []}`))
	}))
	defer server.Close()

	p := NewWebSearch(webConfig(server.URL), logger.NewTestLogger(t))
	_, err := p.Retrieve(context.Background(), "best coffee", map[string]string{
		"location": "lisbon",
		"category": "coffee", // already in the query text, must not repeat
	})

	require.NoError(t, err)
	assert.Equal(t, "best coffee lisbon", gotQuery)
}

func TestWebSearch_EmptyResultIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	p := NewWebSearch(webConfig(server.URL), logger.NewTestLogger(t))
	result, err := p.Retrieve(context.Background(), "obscure query", nil)

	require.NoError(t, err)
	assert.Empty(t, result.Chunks)
}

func TestWebSearch_TimeoutIsTyped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	p := NewWebSearch(webConfig(server.URL), logger.NewTestLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Retrieve(ctx, "slow", nil)

	assert.ErrorIs(t, err, ErrTimeout)
}

func TestWebSearch_ServerErrorIsTyped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	p := NewWebSearch(webConfig(server.URL), logger.NewTestLogger(t))
	_, err := p.Retrieve(context.Background(), "any", nil)

	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://www.example.com/page/", "example.com/page"},
		{"http://example.com/page", "example.com/page"},
		{"https://Example.COM/page?utm=1", "example.com/page"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, canonicalURL(tt.raw), "input %q", tt.raw)
	}
}
