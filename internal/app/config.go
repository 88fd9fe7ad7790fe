package app

import (
	"strings"

	"github.com/civiclens/civiclens-backend/internal/geo"
	"github.com/civiclens/civiclens-backend/internal/platform/envutil"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

// Feed identifies one portal JSON feed to import from.
type Feed struct {
	Name       string
	RegionName string
	URL        string
}

type Config struct {
	GoogleAPIKey     string
	StreetViewSecret string

	FoursquareClientID string
	FoursquareSecret   string

	ArcGISClientID string
	ArcGISSecret   string

	// GeocoderBackend selects "google" or "arcgis".
	GeocoderBackend string
	RegionBounds    geo.Bounds

	ThumbnailDim int
	TextEncoding string

	VisionEnabled bool

	ProposalFeeds []Feed
	EventFeeds    []Feed
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		GoogleAPIKey:     envutil.String("GOOGLE_API_KEY", ""),
		StreetViewSecret: envutil.String("GOOGLE_STREET_VIEW_SECRET", ""),

		FoursquareClientID: envutil.String("FOURSQUARE_CLIENT_ID", ""),
		FoursquareSecret:   envutil.String("FOURSQUARE_SECRET", ""),

		ArcGISClientID: envutil.String("ARCGIS_CLIENT_ID", ""),
		ArcGISSecret:   envutil.String("ARCGIS_SECRET", ""),

		GeocoderBackend: strings.ToLower(envutil.String("GEOCODER", "google")),

		ThumbnailDim: envutil.Int("THUMBNAIL_DIM", 300),
		TextEncoding: envutil.String("PDF_TEXT_ENCODING", ""),

		VisionEnabled: envutil.Bool("VISION_ENABLED", false),

		ProposalFeeds: parseFeeds(envutil.String("PORTAL_FEEDS", "")),
		EventFeeds:    parseFeeds(envutil.String("PORTAL_EVENT_FEEDS", "")),
	}

	if raw := envutil.String("GEO_BOUNDS", ""); raw != "" {
		bounds, err := geo.ParseBounds(raw)
		if err != nil {
			log.Warn("Bad GEO_BOUNDS; geocoding will be unbounded", "value", raw, "error", err)
		} else {
			cfg.RegionBounds = bounds
		}
	}

	if len(cfg.ProposalFeeds) == 0 {
		log.Warn("PORTAL_FEEDS not set; scheduled imports will have nothing to do")
	}

	return cfg
}

// parseFeeds reads a semicolon-separated list of name,region,url triples:
// "somerville,Somerville, MA,https://.../reports.json;..." would be ambiguous,
// so fields are pipe-separated: "name|Region Name|https://url".
func parseFeeds(raw string) []Feed {
	var feeds []Feed
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "|", 3)
		if len(parts) != 3 {
			continue
		}
		f := Feed{
			Name:       strings.TrimSpace(parts[0]),
			RegionName: strings.TrimSpace(parts[1]),
			URL:        strings.TrimSpace(parts[2]),
		}
		if f.Name == "" || f.RegionName == "" || f.URL == "" {
			continue
		}
		feeds = append(feeds, f)
	}
	return feeds
}
