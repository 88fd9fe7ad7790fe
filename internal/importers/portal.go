package importers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/civiclens/civiclens-backend/internal/geo"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

// PortalImporter reads a reports-and-decisions JSON feed. The feed lists
// cases updated since a given date; each case carries its documents and
// column properties. Addresses without coordinates are geocoded on the way
// in, one lookup per distinct address.
type PortalImporter struct {
	log        *logger.Logger
	name       string
	regionName string
	feedURL    string
	source     string
	http       *http.Client
}

func NewPortalImporter(log *logger.Logger, name, regionName, feedURL string) *PortalImporter {
	return &PortalImporter{
		log:        log.With("service", "PortalImporter", "importer", name),
		name:       name,
		regionName: regionName,
		feedURL:    feedURL,
		source:     feedURL,
		http:       &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *PortalImporter) Name() string       { return p.name }
func (p *PortalImporter) RegionName() string { return p.regionName }

type portalCase struct {
	CaseNumber  string   `json:"case_number"`
	Address     string   `json:"address"`
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
	Status      string   `json:"status"`
	Summary     string   `json:"summary"`
	Description string   `json:"description"`
	Updated     string   `json:"updated"`
	Published   string   `json:"published"`
	Documents   []struct {
		URL       string `json:"url"`
		Title     string `json:"title"`
		Field     string `json:"field"`
		Published string `json:"published"`
	} `json:"documents"`
	Attributes map[string]string `json:"attributes"`
}

type portalFeed struct {
	Cases []portalCase `json:"cases"`
}

func (p *PortalImporter) UpdatedSince(ctx context.Context, since time.Time, gc geo.Geocoder) ([]RawProposal, error) {
	u, err := url.Parse(p.feedURL)
	if err != nil {
		return nil, fmt.Errorf("bad feed url: %w", err)
	}
	q := u.Query()
	q.Set("since", since.Format("2006-01-02"))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed: status %d", resp.StatusCode)
	}

	var feed portalFeed
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	geocoded := map[string]*geo.Point{}
	out := make([]RawProposal, 0, len(feed.Cases))
	for _, c := range feed.Cases {
		raw, ok := p.toRaw(ctx, c, gc, geocoded)
		if !ok {
			continue
		}
		out = append(out, raw)
	}
	return out, nil
}

func (p *PortalImporter) toRaw(ctx context.Context, c portalCase, gc geo.Geocoder, geocoded map[string]*geo.Point) (RawProposal, bool) {
	caseNumber := strings.TrimSpace(c.CaseNumber)
	if caseNumber == "" {
		p.log.Warn("skipping case without case_number", "address", c.Address)
		return RawProposal{}, false
	}

	raw := RawProposal{
		CaseNumber:  caseNumber,
		RegionName:  p.regionName,
		Address:     strings.TrimSpace(c.Address),
		Lat:         c.Lat,
		Lng:         c.Lng,
		Status:      strings.TrimSpace(c.Status),
		Summary:     c.Summary,
		Description: c.Description,
		Source:      p.source,
		Complete:    isCompleteStatus(c.Status),
		Updated:     parsePortalTime(c.Updated),
		Published:   parsePortalTime(c.Published),
	}
	if raw.Updated.IsZero() {
		raw.Updated = time.Now().UTC()
	}
	if raw.Published.IsZero() {
		raw.Published = raw.Updated
	}

	if (raw.Lat == nil || raw.Lng == nil) && raw.Address != "" && gc != nil {
		pt, cached := geocoded[raw.Address]
		if !cached {
			resolved, err := gc.Geocode(ctx, raw.Address)
			if err != nil {
				p.log.Warn("geocode failed", "address", raw.Address, "error", err)
			}
			pt = resolved
			geocoded[raw.Address] = pt
		}
		if pt != nil {
			raw.Lat = &pt.Lat
			raw.Lng = &pt.Lng
		}
	}

	for _, d := range c.Documents {
		if strings.TrimSpace(d.URL) == "" {
			continue
		}
		rd := RawDocument{
			URL:   strings.TrimSpace(d.URL),
			Title: d.Title,
			Field: d.Field,
		}
		if t := parsePortalTime(d.Published); !t.IsZero() {
			rd.Published = &t
		}
		raw.Documents = append(raw.Documents, rd)
	}

	for name, value := range c.Attributes {
		if strings.TrimSpace(name) == "" {
			continue
		}
		raw.Attributes = append(raw.Attributes, RawAttribute{
			Name:      name,
			TextValue: value,
		})
	}
	return raw, true
}

// PortalEventImporter reads a meeting calendar JSON feed from the same kind
// of portal.
type PortalEventImporter struct {
	log        *logger.Logger
	name       string
	regionName string
	feedURL    string
	http       *http.Client
}

func NewPortalEventImporter(log *logger.Logger, name, regionName, feedURL string) *PortalEventImporter {
	return &PortalEventImporter{
		log:        log.With("service", "PortalEventImporter", "importer", name),
		name:       name,
		regionName: regionName,
		feedURL:    feedURL,
		http:       &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *PortalEventImporter) Name() string       { return p.name }
func (p *PortalEventImporter) RegionName() string { return p.regionName }

type portalEventFeed struct {
	Events []struct {
		Title           string   `json:"title"`
		Description     string   `json:"description"`
		Date            string   `json:"date"`
		DurationMinutes int      `json:"duration_minutes"`
		Location        string   `json:"location"`
		Cases           []string `json:"cases"`
	} `json:"events"`
}

func (p *PortalEventImporter) UpdatedSince(ctx context.Context, since *time.Time) ([]RawEvent, error) {
	u, err := url.Parse(p.feedURL)
	if err != nil {
		return nil, fmt.Errorf("bad feed url: %w", err)
	}
	if since != nil {
		q := u.Query()
		q.Set("since", since.Format("2006-01-02"))
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch events feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch events feed: status %d", resp.StatusCode)
	}

	var feed portalEventFeed
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode events feed: %w", err)
	}

	out := make([]RawEvent, 0, len(feed.Events))
	for _, e := range feed.Events {
		title := strings.TrimSpace(e.Title)
		date := parsePortalTime(e.Date)
		if title == "" || date.IsZero() {
			p.log.Warn("skipping event without title or date", "title", e.Title, "date", e.Date)
			continue
		}
		out = append(out, RawEvent{
			Title:           title,
			RegionName:      p.regionName,
			Description:     e.Description,
			Date:            date,
			DurationMinutes: e.DurationMinutes,
			Location:        e.Location,
			CaseNumbers:     e.Cases,
		})
	}
	return out, nil
}

// parsePortalTime accepts the handful of timestamp shapes portals emit.
func parsePortalTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"Jan 2, 2006",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func isCompleteStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "complete", "completed", "closed", "decided", "withdrawn", "denied", "approved":
		return true
	default:
		return false
	}
}
