package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"answer-engine/internal/common/config"
	"answer-engine/internal/common/logger"
	"answer-engine/internal/pipeline"
)

// ShoppingProvider retrieves product listings from a shopping search
// engine (engine=google_shopping on a SerpAPI-style endpoint).
type ShoppingProvider struct {
	id     string
	cfg    config.ProviderConfig
	client *http.Client
	logger logger.Logger
}

func NewShopping(cfg config.ProviderConfig, log logger.Logger) *ShoppingProvider {
	return &ShoppingProvider{
		id:     "shopping",
		cfg:    cfg,
		client: &http.Client{},
		logger: log.WithFields(map[string]interface{}{"provider": "shopping"}),
	}
}

func (p *ShoppingProvider) ID() string    { return p.id }
func (p *ShoppingProvider) Priority() int { return p.cfg.Priority }

func (p *ShoppingProvider) Capabilities() []pipeline.Intent {
	return []pipeline.Intent{pipeline.IntentShopping}
}

func (p *ShoppingProvider) Retrieve(ctx context.Context, query string, filters map[string]string) (*pipeline.ProviderResult, error) {
	endpoint, err := url.Parse(p.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base url: %v", ErrUnavailable, err)
	}

	params := url.Values{}
	params.Add("api_key", p.cfg.APIKey)
	params.Add("engine", p.cfg.Engine)
	params.Add("q", query)
	params.Add("num", fmt.Sprintf("%d", p.cfg.MaxResults))
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: shopping search", ErrTimeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: shopping API returned %d", ErrUnavailable, resp.StatusCode)
	}

	var apiResponse struct {
		ShoppingResults []struct {
			ProductID      string  `json:"product_id"`
			Title          string  `json:"title"`
			Link           string  `json:"link"`
			Source         string  `json:"source"`
			Price          string  `json:"price"`
			ExtractedPrice float64 `json:"extracted_price"`
			Rating         float64 `json:"rating"`
			Reviews        int     `json:"reviews"`
		} `json:"shopping_results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}

	priceMax := 0.0
	if v := filters["price_max"]; v != "" {
		priceMax, _ = strconv.ParseFloat(v, 64)
	}

	seen := make(map[string]bool)
	var chunks []pipeline.Chunk
	for _, item := range apiResponse.ShoppingResults {
		if priceMax > 0 && item.ExtractedPrice > priceMax {
			continue
		}

		key := item.ProductID
		if key == "" {
			key = canonicalURL(item.Link)
		}
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		// Rating carries the provider-local relevance; unrated listings
		// keep a neutral score.
		score := item.Rating
		if score == 0 {
			score = 2.5
		}

		chunks = append(chunks, pipeline.Chunk{
			SourceID:   item.Link,
			DedupKey:   key,
			Title:      item.Title,
			Content:    fmt.Sprintf("%s: %s (%s, %d reviews)", item.Title, item.Price, item.Source, item.Reviews),
			Score:      score,
			ProviderID: p.id,
			Rank:       len(chunks),
		})
	}

	p.logger.Info("shopping search completed", map[string]interface{}{
		"query":       query,
		"resultCount": len(chunks),
	})

	return &pipeline.ProviderResult{ProviderID: p.id, Chunks: chunks}, nil
}
