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

// HotelsProvider retrieves properties from a hotel search engine
// (engine=google_hotels on a SerpAPI-style endpoint).
type HotelsProvider struct {
	id     string
	cfg    config.ProviderConfig
	client *http.Client
	logger logger.Logger
}

func NewHotels(cfg config.ProviderConfig, log logger.Logger) *HotelsProvider {
	return &HotelsProvider{
		id:     "hotels",
		cfg:    cfg,
		client: &http.Client{},
		logger: log.WithFields(map[string]interface{}{"provider": "hotels"}),
	}
}

func (p *HotelsProvider) ID() string    { return p.id }
func (p *HotelsProvider) Priority() int { return p.cfg.Priority }

func (p *HotelsProvider) Capabilities() []pipeline.Intent {
	return []pipeline.Intent{pipeline.IntentHotel, pipeline.IntentPlace}
}

func (p *HotelsProvider) Retrieve(ctx context.Context, query string, filters map[string]string) (*pipeline.ProviderResult, error) {
	endpoint, err := url.Parse(p.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base url: %v", ErrUnavailable, err)
	}

	q := query
	if loc := filters["location"]; loc != "" {
		q = q + " " + loc
	}

	params := url.Values{}
	params.Add("api_key", p.cfg.APIKey)
	params.Add("engine", p.cfg.Engine)
	params.Add("q", q)
	if dates := filters["dates"]; dates != "" {
		params.Add("check_in_date", dates)
	}
	if stars := filters["star_rating"]; stars != "" {
		params.Add("hotel_class", stars)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: hotel search", ErrTimeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: hotel API returned %d", ErrUnavailable, resp.StatusCode)
	}

	var apiResponse struct {
		Properties []struct {
			PropertyToken string  `json:"property_token"`
			Name          string  `json:"name"`
			Link          string  `json:"link"`
			Description   string  `json:"description"`
			OverallRating float64 `json:"overall_rating"`
			HotelClass    string  `json:"hotel_class"`
			RatePerNight  struct {
				Lowest string `json:"lowest"`
			} `json:"rate_per_night"`
		} `json:"properties"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}

	minStars := 0
	if v := filters["star_rating"]; v != "" {
		minStars, _ = strconv.Atoi(v)
	}

	seen := make(map[string]bool)
	var chunks []pipeline.Chunk
	for _, item := range apiResponse.Properties {
		if minStars > 0 {
			class, _ := strconv.Atoi(item.HotelClass)
			if class > 0 && class < minStars {
				continue
			}
		}

		key := item.PropertyToken
		if key == "" {
			key = canonicalURL(item.Link)
		}
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		content := item.Description
		if item.RatePerNight.Lowest != "" {
			content = fmt.Sprintf("%s From %s per night.", content, item.RatePerNight.Lowest)
		}

		chunks = append(chunks, pipeline.Chunk{
			SourceID:   item.Link,
			DedupKey:   key,
			Title:      item.Name,
			Content:    content,
			Score:      item.OverallRating,
			ProviderID: p.id,
			Rank:       len(chunks),
		})
		if len(chunks) >= p.cfg.MaxResults {
			break
		}
	}

	p.logger.Info("hotel search completed", map[string]interface{}{
		"query":       q,
		"resultCount": len(chunks),
	})

	return &pipeline.ProviderResult{ProviderID: p.id, Chunks: chunks}, nil
}
