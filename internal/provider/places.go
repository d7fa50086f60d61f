package provider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"answer-engine/internal/common/config"
	"answer-engine/internal/common/logger"
	"answer-engine/internal/pipeline"
)

// PlacesProvider retrieves curated venue records from the relational
// store. It is the second provider for hotel/place intents, improving
// recall alongside the hotel search engine.
type PlacesProvider struct {
	id     string
	cfg    config.ProviderConfig
	db     *sql.DB
	logger logger.Logger
}

func NewPlaces(cfg config.ProviderConfig, db *sql.DB, log logger.Logger) *PlacesProvider {
	return &PlacesProvider{
		id:     "places",
		cfg:    cfg,
		db:     db,
		logger: log.WithFields(map[string]interface{}{"provider": "places"}),
	}
}

func (p *PlacesProvider) ID() string    { return p.id }
func (p *PlacesProvider) Priority() int { return p.cfg.Priority }

func (p *PlacesProvider) Capabilities() []pipeline.Intent {
	return []pipeline.Intent{pipeline.IntentPlace, pipeline.IntentHotel}
}

func (p *PlacesProvider) Retrieve(ctx context.Context, query string, filters map[string]string) (*pipeline.ProviderResult, error) {
	conditions := []string{"(name ILIKE $1 OR description ILIKE $1)"}
	args := []interface{}{"%" + query + "%"}

	if location := filters["location"]; location != "" {
		args = append(args, "%"+location+"%")
		conditions = append(conditions, fmt.Sprintf("city ILIKE $%d", len(args)))
	}
	if category := filters["category"]; category != "" {
		args = append(args, category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if stars := filters["star_rating"]; stars != "" {
		args = append(args, stars)
		conditions = append(conditions, fmt.Sprintf("star_rating >= $%d", len(args)))
	}

	args = append(args, p.cfg.MaxResults)
	queryText := fmt.Sprintf(
		`SELECT id, name, description, city, rating, canonical_url
		 FROM places WHERE %s ORDER BY rating DESC LIMIT $%d`,
		strings.Join(conditions, " AND "), len(args),
	)

	rows, err := p.db.QueryContext(ctx, queryText, args...)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: places query", ErrTimeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var chunks []pipeline.Chunk
	for rows.Next() {
		var id, name, description, city string
		var rating float64
		var canonical sql.NullString
		if err := rows.Scan(&id, &name, &description, &city, &rating, &canonical); err != nil {
			// A bad row degrades to partial results.
			p.logger.Warn("places row scan failed", map[string]interface{}{"error": err.Error()})
			continue
		}

		dedup := "place:" + id
		if canonical.Valid && canonical.String != "" {
			dedup = canonicalURL(canonical.String)
		}

		chunks = append(chunks, pipeline.Chunk{
			SourceID:   "places:" + id,
			DedupKey:   dedup,
			Title:      name,
			Content:    fmt.Sprintf("%s (%s) %s", name, city, description),
			Score:      rating,
			ProviderID: p.id,
			Rank:       len(chunks),
		})
	}
	if err := rows.Err(); err != nil && len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	p.logger.Info("places query completed", map[string]interface{}{
		"query":       query,
		"resultCount": len(chunks),
	})

	return &pipeline.ProviderResult{ProviderID: p.id, Chunks: chunks}, nil
}
