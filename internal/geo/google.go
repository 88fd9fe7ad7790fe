package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

const googleGeocodeBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

type googleGeocoder struct {
	log        *logger.Logger
	apiKey     string
	bounds     Bounds
	baseURL    string
	httpClient *http.Client
}

func NewGoogleGeocoder(log *logger.Logger, apiKey string, bounds Bounds) Geocoder {
	return &googleGeocoder{
		log:        log.With("service", "GoogleGeocoder"),
		apiKey:     apiKey,
		bounds:     bounds,
		baseURL:    googleGeocodeBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *googleGeocoder) Geocode(ctx context.Context, address string) (*Point, error) {
	if address == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("address", address)
	params.Set("key", g.apiKey)
	if !g.bounds.IsZero() {
		params.Set("bounds", fmt.Sprintf("%f,%f|%f,%f", g.bounds.SWLat, g.bounds.SWLng, g.bounds.NELat, g.bounds.NELng))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build geocode request: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode request: status=%d", resp.StatusCode)
	}

	var payload struct {
		Status  string `json:"status"`
		Results []struct {
			Geometry struct {
				Location struct {
					Lat float64 `json:"lat"`
					Lng float64 `json:"lng"`
				} `json:"location"`
			} `json:"geometry"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}

	switch payload.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, nil
	default:
		return nil, fmt.Errorf("geocode status %s", payload.Status)
	}
	if len(payload.Results) == 0 {
		return nil, nil
	}

	p := Point{
		Lat: payload.Results[0].Geometry.Location.Lat,
		Lng: payload.Results[0].Geometry.Location.Lng,
	}
	if !g.bounds.IsZero() && !g.bounds.Contains(p) {
		g.log.Debug("geocode result outside region bounds", "address", address, "lat", p.Lat, "lng", p.Lng)
		return nil, nil
	}
	return &p, nil
}
