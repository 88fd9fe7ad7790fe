package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

const (
	arcgisTokenBaseURL   = "https://www.arcgis.com/sharing/oauth2/token"
	arcgisGeocodeBaseURL = "https://geocode.arcgis.com/arcgis/rest/services/World/GeocodeServer/findAddressCandidates"

	// Candidates scoring below this are treated as unresolved.
	arcgisMinScore = 75.0
)

type arcgisGeocoder struct {
	log          *logger.Logger
	clientID     string
	clientSecret string
	bounds       Bounds

	tokenURL   string
	geocodeURL string
	httpClient *http.Client

	mu         sync.Mutex
	token      string
	tokenUntil time.Time
}

func NewArcGISGeocoder(log *logger.Logger, clientID, clientSecret string, bounds Bounds) Geocoder {
	return &arcgisGeocoder{
		log:          log.With("service", "ArcGISGeocoder"),
		clientID:     clientID,
		clientSecret: clientSecret,
		bounds:       bounds,
		tokenURL:     arcgisTokenBaseURL,
		geocodeURL:   arcgisGeocodeBaseURL,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *arcgisGeocoder) Geocode(ctx context.Context, address string) (*Point, error) {
	if address == "" {
		return nil, nil
	}

	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("f", "json")
	params.Set("singleLine", address)
	params.Set("outFields", "Score")
	params.Set("maxLocations", "1")
	params.Set("token", token)
	params.Set("forStorage", "true")
	if !g.bounds.IsZero() {
		params.Set("searchExtent", fmt.Sprintf("%f,%f,%f,%f", g.bounds.SWLng, g.bounds.SWLat, g.bounds.NELng, g.bounds.NELat))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.geocodeURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build arcgis request: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arcgis request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arcgis request: status=%d", resp.StatusCode)
	}

	var payload struct {
		Candidates []struct {
			Score    float64 `json:"score"`
			Location struct {
				X float64 `json:"x"`
				Y float64 `json:"y"`
			} `json:"location"`
		} `json:"candidates"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode arcgis response: %w", err)
	}
	if payload.Error != nil {
		return nil, fmt.Errorf("arcgis geocode: %s", payload.Error.Message)
	}
	if len(payload.Candidates) == 0 || payload.Candidates[0].Score < arcgisMinScore {
		return nil, nil
	}

	p := Point{
		Lat: payload.Candidates[0].Location.Y,
		Lng: payload.Candidates[0].Location.X,
	}
	if !g.bounds.IsZero() && !g.bounds.Contains(p) {
		return nil, nil
	}
	return &p, nil
}

func (g *arcgisGeocoder) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token != "" && time.Now().Before(g.tokenUntil) {
		return g.token, nil
	}

	params := url.Values{}
	params.Set("client_id", g.clientID)
	params.Set("client_secret", g.clientSecret)
	params.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.tokenURL, nil)
	if err != nil {
		return "", fmt.Errorf("build arcgis token request: %w", err)
	}
	req.URL.RawQuery = params.Encode()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("arcgis token request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("arcgis token request: status=%d", resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		Error       *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode arcgis token: %w", err)
	}
	if payload.Error != nil {
		return "", fmt.Errorf("arcgis token: %s", payload.Error.Message)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("arcgis token: empty access_token")
	}

	g.token = payload.AccessToken
	ttl := time.Duration(payload.ExpiresIn) * time.Second
	if ttl <= time.Minute {
		ttl = 30 * time.Minute
	}
	g.tokenUntil = time.Now().Add(ttl - time.Minute)
	return g.token, nil
}
