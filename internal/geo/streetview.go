package geo

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/url"
)

const streetViewBaseURL = "https://maps.googleapis.com/maps/api/streetview"

// StreetViewURL builds a Street View Static API URL for an address. When a
// signing secret is supplied the URL carries the url-safe HMAC-SHA1 signature
// Google requires for signed requests.
func StreetViewURL(address string, size string, apiKey string, secret string) (string, error) {
	if address == "" {
		return "", fmt.Errorf("address required")
	}
	if apiKey == "" {
		return "", fmt.Errorf("api key required")
	}
	if size == "" {
		size = "640x400"
	}

	params := url.Values{}
	params.Set("location", address)
	params.Set("size", size)
	params.Set("key", apiKey)

	u, err := url.Parse(streetViewBaseURL)
	if err != nil {
		return "", err
	}
	u.RawQuery = params.Encode()

	if secret == "" {
		return u.String(), nil
	}

	sig, err := signURLPath(u.Path+"?"+u.RawQuery, secret)
	if err != nil {
		return "", err
	}
	u.RawQuery += "&signature=" + sig
	return u.String(), nil
}

// signURLPath implements Google's URL signing scheme: HMAC-SHA1 of the path
// and query using the url-safe base64 decoded secret, re-encoded url-safe.
func signURLPath(pathAndQuery string, secret string) (string, error) {
	key, err := base64.URLEncoding.DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("decode signing secret: %w", err)
	}
	mac := hmac.New(sha1.New, key)
	mac.Write([]byte(pathAndQuery))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}
