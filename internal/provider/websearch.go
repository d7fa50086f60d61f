package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"answer-engine/internal/common/config"
	"answer-engine/internal/common/logger"
	"answer-engine/internal/pipeline"
)

// WebSearchProvider retrieves from a SerpAPI-style web search endpoint.
// The web is capable of every intent, at the lowest trust priority.
type WebSearchProvider struct {
	id     string
	cfg    config.ProviderConfig
	client *http.Client
	logger logger.Logger
}

func NewWebSearch(cfg config.ProviderConfig, log logger.Logger) *WebSearchProvider {
	return &WebSearchProvider{
		id:     "web",
		cfg:    cfg,
		client: &http.Client{},
		logger: log.WithFields(map[string]interface{}{"provider": "web"}),
	}
}

func (p *WebSearchProvider) ID() string    { return p.id }
func (p *WebSearchProvider) Priority() int { return p.cfg.Priority }

func (p *WebSearchProvider) Capabilities() []pipeline.Intent {
	return pipeline.KnownIntents
}

func (p *WebSearchProvider) Retrieve(ctx context.Context, query string, filters map[string]string) (*pipeline.ProviderResult, error) {
	endpoint, err := url.Parse(p.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base url: %v", ErrUnavailable, err)
	}

	params := url.Values{}
	params.Add("api_key", p.cfg.APIKey)
	params.Add("engine", p.cfg.Engine)
	params.Add("q", p.buildQuery(query, filters))
	params.Add("num", fmt.Sprintf("%d", p.cfg.MaxResults))
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: web search", ErrTimeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: search API returned %d", ErrUnavailable, resp.StatusCode)
	}

	var apiResponse struct {
		OrganicResults []struct {
			Link    string `json:"link"`
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}

	seen := make(map[string]bool)
	chunks := make([]pipeline.Chunk, 0, len(apiResponse.OrganicResults))
	for _, item := range apiResponse.OrganicResults {
		key := canonicalURL(item.Link)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		relevance := 1.0
		if strings.Contains(item.Link, ".gov") || strings.Contains(item.Link, ".edu") {
			relevance += 0.2
		}
		if strings.Contains(strings.ToLower(item.Title), "official") {
			relevance += 0.1
		}

		chunks = append(chunks, pipeline.Chunk{
			SourceID:   item.Link,
			DedupKey:   key,
			Title:      item.Title,
			Content:    item.Snippet,
			Score:      relevance,
			ProviderID: p.id,
			Rank:       len(chunks),
		})
	}

	p.logger.Info("web search completed", map[string]interface{}{
		"query":       query,
		"resultCount": len(chunks),
	})

	return &pipeline.ProviderResult{ProviderID: p.id, Chunks: chunks}, nil
}

func (p *WebSearchProvider) buildQuery(query string, filters map[string]string) string {
	parts := []string{query}
	for _, key := range []string{"location", "category", "brand"} {
		if v := filters[key]; v != "" && !strings.Contains(strings.ToLower(query), strings.ToLower(v)) {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

// canonicalURL strips scheme, query string and trailing slash so the same
// page fetched through different providers dedups to one chunk.
func canonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSpace(raw)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	path := strings.TrimSuffix(u.Path, "/")
	return host + path
}
