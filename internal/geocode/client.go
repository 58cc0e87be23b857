// Package geocode resolves free-text addresses to coordinates via the
// Nominatim search API, with an optional Redis cache in front.
package geocode

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	userAgent = "mapchat-app"
	cacheTTL  = 24 * time.Hour
)

// Location is a resolved place: coordinates plus the display name the
// geocoder knows it by.
type Location struct {
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	DisplayName string  `json:"display_name"`
}

// Client looks up addresses against a Nominatim instance. A nil cache
// disables caching.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *redis.Client
}

// NewClient builds a geocoder for the given Nominatim base URL.
// insecure disables TLS verification, needed behind intercepting proxies.
// cache may be nil.
func NewClient(baseURL string, insecure bool, cache *redis.Client) *Client {
	hc := &http.Client{Timeout: 10 * time.Second}
	if insecure {
		hc.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
		cache:      cache,
	}
}

// nominatimResult mirrors the wire shape: Nominatim returns coordinates
// as strings.
type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode resolves address to a location. It returns (nil, nil) when the
// geocoder answered but found nothing, so callers can tell "unknown place"
// apart from transport failure.
func (c *Client) Geocode(ctx context.Context, address string) (*Location, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, nil
	}

	if loc := c.cacheGet(ctx, address); loc != nil {
		return loc, nil
	}

	params := url.Values{
		"q":      {address},
		"format": {"json"},
		"limit":  {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("geocode: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("geocode: read response: %w", err)
	}

	var results []nominatimResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("geocode: unmarshal response: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("geocode: parse lat %q: %w", results[0].Lat, err)
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("geocode: parse lon %q: %w", results[0].Lon, err)
	}

	loc := &Location{Lat: lat, Lng: lng, DisplayName: results[0].DisplayName}
	c.cachePut(ctx, address, loc)
	return loc, nil
}

func cacheKey(address string) string {
	return "geocode:" + strings.ToLower(address)
}

// cacheGet is best-effort: cache trouble logs and falls through to the API.
func (c *Client) cacheGet(ctx context.Context, address string) *Location {
	if c.cache == nil {
		return nil
	}
	raw, err := c.cache.Get(ctx, cacheKey(address)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[geocode] cache get: %v", err)
		}
		return nil
	}
	var loc Location
	if err := json.Unmarshal([]byte(raw), &loc); err != nil {
		log.Printf("[geocode] cache decode: %v", err)
		return nil
	}
	return &loc
}

func (c *Client) cachePut(ctx context.Context, address string, loc *Location) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(loc)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, cacheKey(address), raw, cacheTTL).Err(); err != nil {
		log.Printf("[geocode] cache set: %v", err)
	}
}
