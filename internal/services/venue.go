package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

const foursquareAPIVersion = "20230801"

// Venue is the subset of a Foursquare venue recorded as proposal attributes.
type Venue struct {
	ID   string
	Name string
	URL  string
}

// VenueClient resolves the venue nearest to a coordinate pair. Returns
// (nil, nil) when no venue matches.
type VenueClient interface {
	FindVenue(ctx context.Context, lat, lng float64) (*Venue, error)
}

type foursquareClient struct {
	log          *logger.Logger
	clientID     string
	clientSecret string
	baseURL      string
	http         *http.Client
}

func NewFoursquareClient(log *logger.Logger, clientID, clientSecret string) VenueClient {
	return &foursquareClient{
		log:          log.With("service", "FoursquareClient"),
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      "https://api.foursquare.com/v2",
		http:         &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *foursquareClient) FindVenue(ctx context.Context, lat, lng float64) (*Venue, error) {
	if c.clientID == "" || c.clientSecret == "" {
		return nil, fmt.Errorf("foursquare credentials not configured")
	}

	q := url.Values{}
	q.Set("ll", fmt.Sprintf("%f,%f", lat, lng))
	q.Set("intent", "match")
	q.Set("client_id", c.clientID)
	q.Set("client_secret", c.clientSecret)
	q.Set("v", foursquareAPIVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/venues/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("foursquare search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("foursquare search: status %d", resp.StatusCode)
	}

	var body struct {
		Response struct {
			Venues []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
				URL  string `json:"url"`
			} `json:"venues"`
		} `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("foursquare decode: %w", err)
	}
	if len(body.Response.Venues) == 0 {
		return nil, nil
	}
	v := body.Response.Venues[0]
	out := &Venue{ID: v.ID, Name: v.Name, URL: v.URL}
	if out.URL == "" {
		out.URL = "https://foursquare.com/v/" + v.ID
	}
	return out, nil
}
