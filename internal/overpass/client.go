// Package overpass fetches settlements and natural features around route
// geometry from the Overpass API, rotating across public mirrors with
// retry and backoff.
package overpass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mapchat/internal/geo"
)

const userAgent = "MapChat/1.0 (route enrichment)"

var errExhausted = errors.New("overpass: endpoints exhausted")

// Client queries a list of Overpass mirrors in order. Rate limiting
// (429/503) retries the same mirror with exponential backoff; 403 and
// other errors advance to the next mirror immediately.
type Client struct {
	endpoints  []string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
}

type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry overrides the per-endpoint retry budget and the backoff base.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.baseDelay = baseDelay
	}
}

func NewClient(endpoints []string, opts ...Option) *Client {
	c := &Client{
		endpoints:  endpoints,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
		baseDelay:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Places returns settlements (city/town/village) within radiusM of the
// given route points. A nil error with an empty slice means the mirrors
// answered but found nothing; ErrUnavailable means no mirror answered.
func (c *Client) Places(ctx context.Context, points []geo.Point, radiusM int) ([]Record, error) {
	if len(points) == 0 {
		return nil, nil
	}

	capped := capQueryPoints(points, maxQueryPoints)
	elements, err := c.fetch(ctx, placesQuery(capped, radiusM))
	if err == nil {
		return normalizePlaces(elements), nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	log.Printf("[overpass] places query failed on all endpoints, trying simplified query: %v", err)
	elements, err = c.fetchSimplified(ctx, simplePlacesQuery(capQueryPoints(points, fallbackQueryPoints), radiusM))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrUnavailable
	}
	return normalizePlaces(elements), nil
}

// Features returns natural and waterway features within radiusM of the
// given route points. Error semantics match Places.
func (c *Client) Features(ctx context.Context, points []geo.Point, radiusM int) ([]Record, error) {
	if len(points) == 0 {
		return nil, nil
	}

	capped := capQueryPoints(points, maxQueryPoints)
	elements, err := c.fetch(ctx, featuresQuery(capped, radiusM))
	if err == nil {
		return normalizeFeatures(elements), nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	log.Printf("[overpass] features query failed on all endpoints, trying simplified query: %v", err)
	elements, err = c.fetchSimplified(ctx, simpleFeaturesQuery(capQueryPoints(points, fallbackQueryPoints), radiusM))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrUnavailable
	}
	return normalizeFeatures(elements), nil
}

// fetch walks the endpoint list, retrying rate-limited responses with
// backoff and skipping to the next mirror on hard failures.
func (c *Client) fetch(ctx context.Context, query string) ([]element, error) {
endpoints:
	for _, endpoint := range c.endpoints {
		for attempt := 0; attempt < c.maxRetries; attempt++ {
			if attempt > 0 {
				if err := c.backoff(ctx, attempt); err != nil {
					return nil, err
				}
			}

			elements, status, err := c.post(ctx, endpoint, query)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				log.Printf("[overpass] %s attempt %d/%d: %v", endpoint, attempt+1, c.maxRetries, err)
				continue
			}

			switch status {
			case http.StatusOK:
				return elements, nil
			case http.StatusTooManyRequests, http.StatusServiceUnavailable:
				log.Printf("[overpass] %s rate limited (status %d), retrying", endpoint, status)
				continue
			default:
				// 403 and anything else unexpected: this mirror is not
				// going to serve us, move on without waiting.
				log.Printf("[overpass] %s returned status %d, trying next endpoint", endpoint, status)
				continue endpoints
			}
		}
	}
	return nil, errExhausted
}

// fetchSimplified gives each endpoint one last chance with a minimal query
// and a tighter deadline.
func (c *Client) fetchSimplified(ctx context.Context, query string) ([]element, error) {
	for _, endpoint := range c.endpoints {
		reqCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		elements, status, err := c.post(reqCtx, endpoint, query)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if status == http.StatusOK {
			return elements, nil
		}
	}
	return nil, errExhausted
}

func (c *Client) post(ctx context.Context, endpoint, query string) ([]element, int, error) {
	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("overpass: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("overpass: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resp.StatusCode, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("overpass: read response: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, 0, fmt.Errorf("overpass: unmarshal response: %w", err)
	}
	return parsed.Elements, resp.StatusCode, nil
}

// backoff sleeps for baseDelay*2^attempt plus jitter, aborting early when
// the context is done. It never blocks the caller with an uncancelable sleep.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	delay := c.baseDelay * time.Duration(1<<attempt)
	if c.baseDelay > 0 {
		delay += time.Duration(rand.Int63n(int64(c.baseDelay)/2 + 1))
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
