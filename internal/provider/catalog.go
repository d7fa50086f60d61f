package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"answer-engine/internal/common/config"
	"answer-engine/internal/common/logger"
	"answer-engine/internal/pipeline"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// CatalogProvider retrieves from the internal product/place catalog kept
// in Elasticsearch. It outranks web sources for items it actually stocks.
type CatalogProvider struct {
	id     string
	cfg    config.ProviderConfig
	index  string
	client *elasticsearch.Client
	logger logger.Logger
}

func NewCatalog(cfg config.ProviderConfig, index string, client *elasticsearch.Client, log logger.Logger) *CatalogProvider {
	return &CatalogProvider{
		id:     "catalog",
		cfg:    cfg,
		index:  index,
		client: client,
		logger: log.WithFields(map[string]interface{}{"provider": "catalog"}),
	}
}

func (p *CatalogProvider) ID() string    { return p.id }
func (p *CatalogProvider) Priority() int { return p.cfg.Priority }

func (p *CatalogProvider) Capabilities() []pipeline.Intent {
	return []pipeline.Intent{pipeline.IntentShopping, pipeline.IntentPlace, pipeline.IntentHotel}
}

func (p *CatalogProvider) Retrieve(ctx context.Context, query string, filters map[string]string) (*pipeline.ProviderResult, error) {
	var mustClauses []interface{}

	mustClauses = append(mustClauses, map[string]interface{}{
		"multi_match": map[string]interface{}{
			"query":  query,
			"fields": []string{"name^2", "description"},
		},
	})

	if category := filters["category"]; category != "" {
		mustClauses = append(mustClauses, map[string]interface{}{
			"term": map[string]interface{}{"category.keyword": category},
		})
	}
	if location := filters["location"]; location != "" {
		mustClauses = append(mustClauses, map[string]interface{}{
			"match": map[string]interface{}{"location": location},
		})
	}
	if brand := filters["brand"]; brand != "" {
		mustClauses = append(mustClauses, map[string]interface{}{
			"term": map[string]interface{}{"brand.keyword": brand},
		})
	}
	if priceMax := filters["price_max"]; priceMax != "" {
		mustClauses = append(mustClauses, map[string]interface{}{
			"range": map[string]interface{}{
				"price": map[string]interface{}{"lte": priceMax},
			},
		})
	}

	queryBody := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"must": mustClauses},
		},
		"size": p.cfg.MaxResults,
	}

	body, _ := json.Marshal(queryBody)
	req := esapi.SearchRequest{
		Index: []string{p.index},
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, p.client)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: catalog search", ErrTimeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: catalog search status %s", ErrUnavailable, res.Status())
	}

	var searchResponse struct {
		Hits struct {
			Hits []struct {
				ID     string  `json:"_id"`
				Score  float64 `json:"_score"`
				Source struct {
					Name        string `json:"name"`
					Description string `json:"description"`
					URL         string `json:"url"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchResponse); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}

	var chunks []pipeline.Chunk
	for _, hit := range searchResponse.Hits.Hits {
		dedup := hit.ID
		if hit.Source.URL != "" {
			// Canonical URL lets catalog entries dedup against web results
			// for the same underlying item.
			dedup = canonicalURL(hit.Source.URL)
		}
		chunks = append(chunks, pipeline.Chunk{
			SourceID:   "catalog:" + hit.ID,
			DedupKey:   dedup,
			Title:      hit.Source.Name,
			Content:    hit.Source.Description,
			Score:      hit.Score,
			ProviderID: p.id,
			Rank:       len(chunks),
		})
	}

	p.logger.Info("catalog search completed", map[string]interface{}{
		"query":       query,
		"resultCount": len(chunks),
	})

	return &pipeline.ProviderResult{ProviderID: p.id, Chunks: chunks}, nil
}
