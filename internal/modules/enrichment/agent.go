// Package enrichment answers "what's along the way" questions by querying
// map data around the active route's geometry.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"mapchat/internal/ai"
	"mapchat/internal/geo"
	"mapchat/internal/modules/clarify"
	"mapchat/internal/overpass"
)

const agentPrompt = `You are a travel assistant describing what lies along a driving route.

Given a factual summary of places or natural features found near the route, write a short, friendly reply for the user. Do not invent places that are not in the summary.`

// Source fetches records around route points.
type Source interface {
	Places(ctx context.Context, points []geo.Point, radiusM int) ([]overpass.Record, error)
	Features(ctx context.Context, points []geo.Point, radiusM int) ([]overpass.Record, error)
}

// Result is the outcome of an enrichment query. Records is non-nil on
// success so the caller can cache it, even when nothing was found.
type Result struct {
	Success       bool
	Message       string
	Records       []overpass.Record
	FromCache     bool
	Clarification *clarify.Context
}

// Agent answers places and features queries along a route.
type Agent struct {
	llm    ai.Provider
	source Source

	intervalKm      float64
	placesRadiusM   int
	featuresRadiusM int
}

func NewAgent(llm ai.Provider, source Source, intervalKm float64, placesRadiusM, featuresRadiusM int) *Agent {
	return &Agent{
		llm:             llm,
		source:          source,
		intervalKm:      intervalKm,
		placesRadiusM:   placesRadiusM,
		featuresRadiusM: featuresRadiusM,
	}
}

// Places reports settlements along path. cached, when non-nil, is a prior
// result for the same route and skips the fetch entirely.
func (a *Agent) Places(ctx context.Context, path []geo.Point, cached []overpass.Record) Result {
	return a.query(ctx, path, cached, querySpec{
		kind:      "places",
		radiusM:   a.placesRadiusM,
		fetch:     a.source.Places,
		summarize: SummarizePlaces,
		failTopic: clarify.TopicPlacesFetch,
		emptyMsg:  "I couldn't find any notable places along this route.",
		busyMsg:   "The map data service is busy right now, so I couldn't look up places along your route. Would you like me to try again?",
	})
}

// Features reports natural features along path, with the same caching and
// failure behavior as Places.
func (a *Agent) Features(ctx context.Context, path []geo.Point, cached []overpass.Record) Result {
	return a.query(ctx, path, cached, querySpec{
		kind:      "features",
		radiusM:   a.featuresRadiusM,
		fetch:     a.source.Features,
		summarize: SummarizeFeatures,
		failTopic: clarify.TopicFeaturesFetch,
		emptyMsg:  "I couldn't find any notable natural features along this route.",
		busyMsg:   "The map data service is busy right now, so I couldn't look up natural features along your route. Would you like me to try again?",
	})
}

// MissingRoute is the reply when enrichment is requested with no active
// route.
func MissingRoute(what string) Result {
	return Result{
		Message: fmt.Sprintf("You don't have an active route yet, so I can't look up %s along the way. Would you like to create a route first? If so, please tell me the origin and destination.", what),
		Clarification: &clarify.Context{
			Topic:      clarify.TopicMissingRoute,
			Suggestion: "create a route",
		},
	}
}

type querySpec struct {
	kind      string
	radiusM   int
	fetch     func(ctx context.Context, points []geo.Point, radiusM int) ([]overpass.Record, error)
	summarize func([]overpass.Record) string
	failTopic string
	emptyMsg  string
	busyMsg   string
}

func (a *Agent) query(ctx context.Context, path []geo.Point, cached []overpass.Record, spec querySpec) Result {
	if cached != nil {
		return Result{
			Success:   true,
			Message:   a.phrase(ctx, spec, cached),
			Records:   cached,
			FromCache: true,
		}
	}

	points := geo.SampleInterval(path, a.intervalKm)
	records, err := spec.fetch(ctx, points, spec.radiusM)
	if err != nil {
		if !errors.Is(err, overpass.ErrUnavailable) {
			log.Printf("[enrichment] %s fetch failed: %v", spec.kind, err)
		}
		return Result{
			Message:       spec.busyMsg,
			Clarification: &clarify.Context{Topic: spec.failTopic, Suggestion: "try again"},
		}
	}
	if records == nil {
		records = []overpass.Record{}
	}

	return Result{
		Success: true,
		Message: a.phrase(ctx, spec, records),
		Records: records,
	}
}

// phrase asks the LLM to present the factual summary, falling back to the
// summary itself when the model is unavailable.
func (a *Agent) phrase(ctx context.Context, spec querySpec, records []overpass.Record) string {
	summary := spec.summarize(records)
	if summary == "" {
		return spec.emptyMsg
	}

	userPrompt := fmt.Sprintf("Summary of %s found near the user's route:\n\n%s\n\nPresent this to the user.", spec.kind, summary)
	messages := []ai.Message{
		{Role: ai.RoleSystem, Content: agentPrompt},
		{Role: ai.RoleUser, Content: userPrompt},
	}
	reply, err := a.llm.Chat(ctx, messages, ai.ChatOptions{Temperature: 0.7})
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			log.Printf("[enrichment] %s reply generation failed: %v", spec.kind, err)
		}
		return summary
	}
	return strings.TrimSpace(reply)
}

// Sink receives preloaded records. StoreIfAbsent implementations must be
// no-ops when data for the route is already present.
type Sink interface {
	StorePlacesIfAbsent(records []overpass.Record)
	StoreFeaturesIfAbsent(records []overpass.Record)
}

const preloadTimeout = 2 * time.Minute

// Preload fetches places and then features for a fresh route in the
// background, so the first enrichment question usually hits the cache.
// It returns a channel that closes when the load finishes, for callers
// that need to wait.
func (a *Agent) Preload(path []geo.Point, sink Sink) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), preloadTimeout)
		defer cancel()

		points := geo.SampleInterval(path, a.intervalKm)

		if records, err := a.source.Places(ctx, points, a.placesRadiusM); err != nil {
			log.Printf("[enrichment] preload places: %v", err)
		} else {
			if records == nil {
				records = []overpass.Record{}
			}
			sink.StorePlacesIfAbsent(records)
		}

		if records, err := a.source.Features(ctx, points, a.featuresRadiusM); err != nil {
			log.Printf("[enrichment] preload features: %v", err)
		} else {
			if records == nil {
				records = []overpass.Record{}
			}
			sink.StoreFeaturesIfAbsent(records)
		}
	}()
	return done
}
