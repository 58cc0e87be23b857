// Package route turns "from A to B" requests into resolved, computed
// routes: geocoding every stop, calling the directions service, and
// phrasing the answer.
package route

import (
	"context"
	"fmt"
	"log"
	"strings"

	"mapchat/internal/ai"
	"mapchat/internal/geo"
	"mapchat/internal/geocode"
	"mapchat/internal/maps"
	"mapchat/internal/modules/clarify"
)

const agentPrompt = `You are a route planning assistant. You help users plan driving routes between locations.

When presenting a route, be friendly and concise. Mention the distance and estimated travel time, and invite the user to explore places or natural features along the way.`

// Geocoder resolves an address to coordinates. A (nil, nil) return means
// the geocoder answered but found nothing.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*geocode.Location, error)
}

// Planner computes a route through the given points.
type Planner interface {
	Route(ctx context.Context, origin, destination geo.Point, waypoints []geo.Point) (*maps.RouteSummary, error)
}

// Agent builds route plans from user-supplied location names.
type Agent struct {
	llm      ai.Provider
	geocoder Geocoder
	planner  Planner
}

func NewAgent(llm ai.Provider, geocoder Geocoder, planner Planner) *Agent {
	return &Agent{llm: llm, geocoder: geocoder, planner: planner}
}

// Build resolves origin, destination and waypoints in that order, computes
// the route, and phrases a reply. A stop that fails to geocode aborts the
// turn with a clarification about that stop; later stops are not touched.
func (a *Agent) Build(ctx context.Context, origin, destination string, waypoints []string) Outcome {
	originStop, out := a.resolve(ctx, origin, clarify.TopicOrigin)
	if out != nil {
		return *out
	}
	destStop, out := a.resolve(ctx, destination, clarify.TopicDestination)
	if out != nil {
		return *out
	}

	stops := make([]Stop, 0, len(waypoints))
	for _, wp := range waypoints {
		stop, out := a.resolve(ctx, wp, clarify.TopicWaypoint)
		if out != nil {
			return *out
		}
		stops = append(stops, stop)
	}

	return a.compute(ctx, originStop, destStop, stops)
}

// Rebuild recomputes the route for an already-resolved set of stops, used
// after a waypoint change. Failures carry the route-update topic so the
// dialogue can offer a retry.
func (a *Agent) Rebuild(ctx context.Context, plan *Plan) Outcome {
	return a.recompute(ctx, plan.Origin, plan.Destination, plan.Waypoints, clarify.TopicRouteUpdate)
}

func (a *Agent) compute(ctx context.Context, origin, destination Stop, waypoints []Stop) Outcome {
	return a.recompute(ctx, origin, destination, waypoints, clarify.TopicRouteGeneration)
}

func (a *Agent) recompute(ctx context.Context, origin, destination Stop, waypoints []Stop, failTopic string) Outcome {
	points := make([]geo.Point, len(waypoints))
	for i, wp := range waypoints {
		points[i] = wp.Point
	}

	summary, err := a.planner.Route(ctx, origin.Point, destination.Point, points)
	if err != nil {
		log.Printf("[route] directions failed (%s -> %s): %v", origin.DisplayName, destination.DisplayName, err)
		return Outcome{
			Message: fmt.Sprintf("I found both locations but couldn't compute a route from %s to %s. Would you like to try different locations?",
				origin.DisplayName, destination.DisplayName),
			Clarification: &clarify.Context{Topic: failTopic, Suggestion: "try different locations"},
		}
	}

	plan := &Plan{
		Origin:      origin,
		Destination: destination,
		Waypoints:   waypoints,
		Summary:     summary,
	}
	return Outcome{
		Success: true,
		Message: a.describe(ctx, plan),
		Plan:    plan,
	}
}

// resolve geocodes one stop. On a miss or transport failure it returns an
// Outcome asking the user to clarify that stop.
func (a *Agent) resolve(ctx context.Context, address, topic string) (Stop, *Outcome) {
	loc, err := a.geocoder.Geocode(ctx, address)
	if err != nil {
		log.Printf("[route] geocode %q failed: %v", address, err)
	}
	if err != nil || loc == nil {
		return Stop{}, &Outcome{
			Message: fmt.Sprintf("I couldn't find the location '%s'. Could you please provide more details or check the spelling?", address),
			Clarification: &clarify.Context{
				Topic:         topic,
				OriginalValue: address,
			},
		}
	}
	return Stop{
		Query:       address,
		DisplayName: loc.DisplayName,
		Point:       geo.Point{Lat: loc.Lat, Lng: loc.Lng},
	}, nil
}

// describe asks the LLM to phrase the route summary, falling back to a
// fixed template when the model is unavailable.
func (a *Agent) describe(ctx context.Context, plan *Plan) string {
	fallback := fmt.Sprintf("I've found a route from %s to %s. The journey is %s and will take approximately %s. Would you like to see places or natural features along this route?",
		plan.Origin.DisplayName, plan.Destination.DisplayName,
		plan.Summary.DistanceText, plan.Summary.DurationText)

	var b strings.Builder
	fmt.Fprintf(&b, "I computed a driving route for the user.\n\n")
	fmt.Fprintf(&b, "Origin: %s\n", plan.Origin.DisplayName)
	fmt.Fprintf(&b, "Destination: %s\n", plan.Destination.DisplayName)
	if len(plan.Waypoints) > 0 {
		names := make([]string, len(plan.Waypoints))
		for i, wp := range plan.Waypoints {
			names[i] = wp.DisplayName
		}
		fmt.Fprintf(&b, "Waypoints: %s\n", strings.Join(names, "; "))
	}
	fmt.Fprintf(&b, "Distance: %s\n", plan.Summary.DistanceText)
	fmt.Fprintf(&b, "Duration: %s\n\n", plan.Summary.DurationText)
	b.WriteString("Write a short, friendly reply presenting this route to the user.")

	messages := []ai.Message{
		{Role: ai.RoleSystem, Content: agentPrompt},
		{Role: ai.RoleUser, Content: b.String()},
	}
	reply, err := a.llm.Chat(ctx, messages, ai.ChatOptions{Temperature: 0.7})
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			log.Printf("[route] reply generation failed: %v", err)
		}
		return fallback
	}
	return strings.TrimSpace(reply)
}
