package geo

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"strings"
	"testing"
)

func TestStreetViewURL(t *testing.T) {
	raw, err := StreetViewURL("240 Elm St, Somerville MA", "", "test-key", "")
	if err != nil {
		t.Fatalf("StreetViewURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}
	q := u.Query()
	if q.Get("location") != "240 Elm St, Somerville MA" {
		t.Fatalf("location = %q", q.Get("location"))
	}
	if q.Get("size") != "640x400" {
		t.Fatalf("default size = %q", q.Get("size"))
	}
	if q.Get("key") != "test-key" {
		t.Fatalf("key = %q", q.Get("key"))
	}
	if q.Get("signature") != "" {
		t.Fatalf("unsigned URL carries a signature")
	}
}

func TestStreetViewURLSigned(t *testing.T) {
	secret := base64.URLEncoding.EncodeToString([]byte("shared-signing-secret"))

	raw, err := StreetViewURL("240 Elm St", "400x300", "test-key", secret)
	if err != nil {
		t.Fatalf("StreetViewURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}

	sig := u.Query().Get("signature")
	if sig == "" {
		t.Fatalf("signed URL missing signature")
	}

	// Recompute over path + query minus the trailing signature param.
	unsigned := strings.TrimSuffix(u.RawQuery, "&signature="+sig)
	mac := hmac.New(sha1.New, []byte("shared-signing-secret"))
	mac.Write([]byte(u.Path + "?" + unsigned))
	want := base64.URLEncoding.EncodeToString(mac.Sum(nil))
	if sig != want {
		t.Fatalf("signature = %q, want %q", sig, want)
	}

	// Same inputs always yield the same URL, so stored image URLs dedup.
	again, err := StreetViewURL("240 Elm St", "400x300", "test-key", secret)
	if err != nil || again != raw {
		t.Fatalf("signing not deterministic: %v", err)
	}
}

func TestStreetViewURLValidation(t *testing.T) {
	if _, err := StreetViewURL("", "640x400", "key", ""); err == nil {
		t.Fatalf("expected error for empty address")
	}
	if _, err := StreetViewURL("240 Elm St", "640x400", "", ""); err == nil {
		t.Fatalf("expected error for empty api key")
	}
	if _, err := StreetViewURL("240 Elm St", "640x400", "key", "not base64 !!"); err == nil {
		t.Fatalf("expected error for undecodable secret")
	}
}
