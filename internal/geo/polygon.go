package geo

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PointInGeoJSONShape reports whether p lies inside a GeoJSON Polygon or
// MultiPolygon. Interior rings count as holes. GeoJSON positions are
// [lng, lat].
func PointInGeoJSONShape(shape []byte, p Point) (bool, error) {
	if len(shape) == 0 {
		return false, nil
	}

	var g struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	}
	if err := json.Unmarshal(shape, &g); err != nil {
		return false, fmt.Errorf("parse geojson shape: %w", err)
	}

	switch strings.ToLower(g.Type) {
	case "polygon":
		var rings [][][2]float64
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return false, fmt.Errorf("parse polygon coordinates: %w", err)
		}
		return pointInPolygon(rings, p), nil
	case "multipolygon":
		var polys [][][][2]float64
		if err := json.Unmarshal(g.Coordinates, &polys); err != nil {
			return false, fmt.Errorf("parse multipolygon coordinates: %w", err)
		}
		for _, rings := range polys {
			if pointInPolygon(rings, p) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unsupported geojson type %q", g.Type)
	}
}

func pointInPolygon(rings [][][2]float64, p Point) bool {
	if len(rings) == 0 {
		return false
	}
	if !pointInRing(rings[0], p) {
		return false
	}
	for _, hole := range rings[1:] {
		if pointInRing(hole, p) {
			return false
		}
	}
	return true
}

// pointInRing is the even-odd ray casting test.
func pointInRing(ring [][2]float64, p Point) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > p.Lat) != (yj > p.Lat) &&
			p.Lng < (xj-xi)*(p.Lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}
