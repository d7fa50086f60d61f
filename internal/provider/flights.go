package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"answer-engine/internal/common/config"
	"answer-engine/internal/common/logger"
	"answer-engine/internal/pipeline"
)

// FlightsProvider retrieves itineraries from a flight search engine
// (engine=google_flights on a SerpAPI-style endpoint).
type FlightsProvider struct {
	id     string
	cfg    config.ProviderConfig
	client *http.Client
	logger logger.Logger
}

func NewFlights(cfg config.ProviderConfig, log logger.Logger) *FlightsProvider {
	return &FlightsProvider{
		id:     "flights",
		cfg:    cfg,
		client: &http.Client{},
		logger: log.WithFields(map[string]interface{}{"provider": "flights"}),
	}
}

func (p *FlightsProvider) ID() string    { return p.id }
func (p *FlightsProvider) Priority() int { return p.cfg.Priority }

func (p *FlightsProvider) Capabilities() []pipeline.Intent {
	return []pipeline.Intent{pipeline.IntentFlight}
}

type flightItinerary struct {
	Price   float64 `json:"price"`
	Flights []struct {
		FlightNumber string `json:"flight_number"`
		Airline      string `json:"airline"`
		DepartureAirport struct {
			ID   string `json:"id"`
			Time string `json:"time"`
		} `json:"departure_airport"`
		ArrivalAirport struct {
			ID   string `json:"id"`
			Time string `json:"time"`
		} `json:"arrival_airport"`
	} `json:"flights"`
}

func (p *FlightsProvider) Retrieve(ctx context.Context, query string, filters map[string]string) (*pipeline.ProviderResult, error) {
	endpoint, err := url.Parse(p.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base url: %v", ErrUnavailable, err)
	}

	params := url.Values{}
	params.Add("api_key", p.cfg.APIKey)
	params.Add("engine", p.cfg.Engine)
	params.Add("departure_id", filters["origin"])
	params.Add("arrival_id", filters["destination"])
	if dates := filters["dates"]; dates != "" {
		params.Add("outbound_date", dates)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: flight search", ErrTimeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: flight API returned %d", ErrUnavailable, resp.StatusCode)
	}

	var apiResponse struct {
		BestFlights  []flightItinerary `json:"best_flights"`
		OtherFlights []flightItinerary `json:"other_flights"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}

	seen := make(map[string]bool)
	var chunks []pipeline.Chunk

	// Best flights score above the rest; both sections may be partially
	// present and whatever parsed is returned.
	for i, group := range [][]flightItinerary{apiResponse.BestFlights, apiResponse.OtherFlights} {
		baseScore := 5.0
		if i == 1 {
			baseScore = 3.0
		}
		for _, itin := range group {
			if len(itin.Flights) == 0 {
				continue
			}
			leg := itin.Flights[0]
			key := leg.Airline + "-" + leg.FlightNumber + "-" + leg.DepartureAirport.Time
			if seen[key] {
				continue
			}
			seen[key] = true

			chunks = append(chunks, pipeline.Chunk{
				SourceID: key,
				DedupKey: key,
				Title:    fmt.Sprintf("%s %s %s→%s", leg.Airline, leg.FlightNumber, leg.DepartureAirport.ID, leg.ArrivalAirport.ID),
				Content: fmt.Sprintf("Departs %s, arrives %s. Price %.0f.",
					leg.DepartureAirport.Time, leg.ArrivalAirport.Time, itin.Price),
				Score:      baseScore,
				ProviderID: p.id,
				Rank:       len(chunks),
			})
			if len(chunks) >= p.cfg.MaxResults {
				break
			}
		}
	}

	p.logger.Info("flight search completed", map[string]interface{}{
		"origin":      filters["origin"],
		"destination": filters["destination"],
		"resultCount": len(chunks),
	})

	return &pipeline.ProviderResult{ProviderID: p.id, Chunks: chunks}, nil
}
