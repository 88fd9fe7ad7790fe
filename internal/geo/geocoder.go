package geo

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds is a lat/lng box used to bias geocoding toward the covered region
// and to reject results that land outside it.
type Bounds struct {
	SWLat float64 `json:"sw_lat"`
	SWLng float64 `json:"sw_lng"`
	NELat float64 `json:"ne_lat"`
	NELng float64 `json:"ne_lng"`
}

func (b Bounds) IsZero() bool {
	return b.SWLat == 0 && b.SWLng == 0 && b.NELat == 0 && b.NELng == 0
}

func (b Bounds) Contains(p Point) bool {
	return p.Lat >= b.SWLat && p.Lat <= b.NELat && p.Lng >= b.SWLng && p.Lng <= b.NELng
}

// ParseBounds parses "swLat,swLng,neLat,neLng".
func ParseBounds(s string) (Bounds, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 4 {
		return Bounds{}, fmt.Errorf("bounds must be swLat,swLng,neLat,neLng, got %q", s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Bounds{}, fmt.Errorf("bad bounds component %q: %w", p, err)
		}
		vals[i] = v
	}
	return Bounds{SWLat: vals[0], SWLng: vals[1], NELat: vals[2], NELng: vals[3]}, nil
}

// Geocoder resolves a street address to coordinates. Implementations return
// (nil, nil) when the address cannot be resolved; errors are reserved for
// transport and quota failures.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*Point, error)
}
