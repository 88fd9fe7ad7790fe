package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

func newTestFoursquare(t *testing.T, handler http.HandlerFunc) (*foursquareClient, *httptest.Server) {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewFoursquareClient(log, "client-id", "client-secret").(*foursquareClient)
	c.baseURL = srv.URL
	return c, srv
}

func TestFoursquareFindVenue(t *testing.T) {
	c, _ := newTestFoursquare(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("client_id") != "client-id" || q.Get("client_secret") != "client-secret" {
			t.Errorf("missing credentials: %v", q)
		}
		if q.Get("v") == "" || q.Get("intent") != "match" {
			t.Errorf("missing api params: %v", q)
		}
		fmt.Fprint(w, `{"response":{"venues":[
			{"id":"4b5","name":"Elm Street Cafe","url":"https://elmstreetcafe.example.com"},
			{"id":"4b6","name":"Second Match"}
		]}}`)
	})

	v, err := c.FindVenue(context.Background(), 42.3966, -71.1223)
	if err != nil || v == nil {
		t.Fatalf("FindVenue: v=%v err=%v", v, err)
	}
	if v.ID != "4b5" || v.Name != "Elm Street Cafe" || v.URL != "https://elmstreetcafe.example.com" {
		t.Fatalf("FindVenue: %+v", v)
	}
}

func TestFoursquareFindVenueNoMatch(t *testing.T) {
	c, _ := newTestFoursquare(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":{"venues":[]}}`)
	})
	v, err := c.FindVenue(context.Background(), 42.0, -71.0)
	if err != nil || v != nil {
		t.Fatalf("no match: v=%v err=%v", v, err)
	}
}

func TestFoursquareFindVenueURLFallback(t *testing.T) {
	c, _ := newTestFoursquare(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":{"venues":[{"id":"4b7","name":"No URL Venue"}]}}`)
	})
	v, err := c.FindVenue(context.Background(), 42.0, -71.0)
	if err != nil || v == nil {
		t.Fatalf("FindVenue: %v", err)
	}
	if v.URL != "https://foursquare.com/v/4b7" {
		t.Fatalf("URL fallback: %q", v.URL)
	}
}

func TestFoursquareFindVenueErrors(t *testing.T) {
	c, _ := newTestFoursquare(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	if _, err := c.FindVenue(context.Background(), 42.0, -71.0); err == nil {
		t.Fatalf("expected error for non-200 response")
	}

	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	unconfigured := NewFoursquareClient(log, "", "")
	if _, err := unconfigured.FindVenue(context.Background(), 42.0, -71.0); err == nil {
		t.Fatalf("expected error for missing credentials")
	}
}
