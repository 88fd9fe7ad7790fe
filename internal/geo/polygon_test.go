package geo

import "testing"

func TestPointInGeoJSONShape(t *testing.T) {
	// Unit square with a hole in the middle.
	holed := []byte(`{"type":"Polygon","coordinates":[
		[[0,0],[10,0],[10,10],[0,10],[0,0]],
		[[4,4],[6,4],[6,6],[4,6],[4,4]]
	]}`)

	cases := []struct {
		name  string
		p     Point
		want  bool
		shape []byte
	}{
		{"inside", Point{Lat: 2, Lng: 2}, true, holed},
		{"in hole", Point{Lat: 5, Lng: 5}, false, holed},
		{"outside", Point{Lat: 15, Lng: 5}, false, holed},
		{"between hole and edge", Point{Lat: 5, Lng: 8}, true, holed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := PointInGeoJSONShape(tc.shape, tc.p)
			if err != nil {
				t.Fatalf("PointInGeoJSONShape: %v", err)
			}
			if got != tc.want {
				t.Fatalf("point (%v,%v): got %v, want %v", tc.p.Lat, tc.p.Lng, got, tc.want)
			}
		})
	}
}

func TestPointInGeoJSONShapeMultiPolygon(t *testing.T) {
	multi := []byte(`{"type":"MultiPolygon","coordinates":[
		[[[0,0],[2,0],[2,2],[0,2],[0,0]]],
		[[[10,10],[12,10],[12,12],[10,12],[10,10]]]
	]}`)

	in, err := PointInGeoJSONShape(multi, Point{Lat: 11, Lng: 11})
	if err != nil || !in {
		t.Fatalf("second polygon member: in=%v err=%v", in, err)
	}
	in, err = PointInGeoJSONShape(multi, Point{Lat: 5, Lng: 5})
	if err != nil || in {
		t.Fatalf("gap between polygons: in=%v err=%v", in, err)
	}
}

func TestPointInGeoJSONShapeErrors(t *testing.T) {
	if in, err := PointInGeoJSONShape(nil, Point{}); err != nil || in {
		t.Fatalf("empty shape: in=%v err=%v", in, err)
	}
	if _, err := PointInGeoJSONShape([]byte(`{"type":"Point","coordinates":[1,2]}`), Point{}); err == nil {
		t.Fatalf("expected error for unsupported geojson type")
	}
	if _, err := PointInGeoJSONShape([]byte(`{not json`), Point{}); err == nil {
		t.Fatalf("expected error for malformed shape")
	}
}

func TestParseBounds(t *testing.T) {
	b, err := ParseBounds("42.35,-71.14,42.42,-71.07")
	if err != nil {
		t.Fatalf("ParseBounds: %v", err)
	}
	if b.SWLat != 42.35 || b.SWLng != -71.14 || b.NELat != 42.42 || b.NELng != -71.07 {
		t.Fatalf("ParseBounds: %+v", b)
	}
	if !b.Contains(Point{Lat: 42.39, Lng: -71.10}) {
		t.Fatalf("Contains: expected point inside bounds")
	}
	if b.Contains(Point{Lat: 42.50, Lng: -71.10}) {
		t.Fatalf("Contains: expected point outside bounds")
	}

	if _, err := ParseBounds("42.35,-71.14,42.42"); err == nil {
		t.Fatalf("expected error for short bounds string")
	}
	if _, err := ParseBounds("a,b,c,d"); err == nil {
		t.Fatalf("expected error for non-numeric bounds")
	}
}
