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

// MoviesProvider retrieves titles from a TMDB-style movie metadata API.
type MoviesProvider struct {
	id     string
	cfg    config.ProviderConfig
	client *http.Client
	logger logger.Logger
}

func NewMovies(cfg config.ProviderConfig, log logger.Logger) *MoviesProvider {
	return &MoviesProvider{
		id:     "movies",
		cfg:    cfg,
		client: &http.Client{},
		logger: log.WithFields(map[string]interface{}{"provider": "movies"}),
	}
}

func (p *MoviesProvider) ID() string    { return p.id }
func (p *MoviesProvider) Priority() int { return p.cfg.Priority }

func (p *MoviesProvider) Capabilities() []pipeline.Intent {
	return []pipeline.Intent{pipeline.IntentMovie}
}

func (p *MoviesProvider) Retrieve(ctx context.Context, query string, filters map[string]string) (*pipeline.ProviderResult, error) {
	endpoint, err := url.Parse(p.cfg.BaseURL + "/search/movie")
	if err != nil {
		return nil, fmt.Errorf("%w: bad base url: %v", ErrUnavailable, err)
	}

	params := url.Values{}
	params.Add("api_key", p.cfg.APIKey)
	params.Add("query", query)
	if year := filters["year"]; year != "" {
		params.Add("year", year)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: movie search", ErrTimeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: movie API returned %d", ErrUnavailable, resp.StatusCode)
	}

	var apiResponse struct {
		Results []struct {
			ID          int     `json:"id"`
			Title       string  `json:"title"`
			Overview    string  `json:"overview"`
			ReleaseDate string  `json:"release_date"`
			VoteAverage float64 `json:"vote_average"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}

	var chunks []pipeline.Chunk
	for _, item := range apiResponse.Results {
		key := "movie:" + strconv.Itoa(item.ID)
		chunks = append(chunks, pipeline.Chunk{
			SourceID:   key,
			DedupKey:   key,
			Title:      item.Title,
			Content:    fmt.Sprintf("%s (released %s) %s", item.Title, item.ReleaseDate, item.Overview),
			Score:      item.VoteAverage,
			ProviderID: p.id,
			Rank:       len(chunks),
		})
		if len(chunks) >= p.cfg.MaxResults {
			break
		}
	}

	p.logger.Info("movie search completed", map[string]interface{}{
		"query":       query,
		"resultCount": len(chunks),
	})

	return &pipeline.ProviderResult{ProviderID: p.id, Chunks: chunks}, nil
}
