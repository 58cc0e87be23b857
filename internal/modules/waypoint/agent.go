// Package waypoint edits the waypoint list of an active route and
// recomputes the route after each change.
package waypoint

import (
	"context"
	"fmt"
	"log"
	"strings"

	"mapchat/internal/geo"
	"mapchat/internal/modules/clarify"
	"mapchat/internal/modules/route"
)

// Rebuilder recomputes a route after the stop list changed.
type Rebuilder interface {
	Rebuild(ctx context.Context, plan *route.Plan) route.Outcome
}

// Agent adds and removes waypoints on an existing plan.
type Agent struct {
	geocoder route.Geocoder
	routes   Rebuilder
}

func NewAgent(geocoder route.Geocoder, routes Rebuilder) *Agent {
	return &Agent{geocoder: geocoder, routes: routes}
}

// Add appends a stop to the plan and recomputes the route. Without an
// active plan it asks whether to create one first.
func (a *Agent) Add(ctx context.Context, plan *route.Plan, name string) route.Outcome {
	if plan == nil {
		return missingRoute(fmt.Sprintf("add %s as a waypoint", name))
	}

	loc, err := a.geocoder.Geocode(ctx, name)
	if err != nil {
		log.Printf("[waypoint] geocode %q failed: %v", name, err)
	}
	if err != nil || loc == nil {
		return route.Outcome{
			Message: fmt.Sprintf("I couldn't find the location '%s'. Could you please provide more details or check the spelling?", name),
			Clarification: &clarify.Context{
				Topic:         clarify.TopicWaypoint,
				OriginalValue: name,
			},
		}
	}

	next := clonePlan(plan)
	next.Waypoints = append(next.Waypoints, route.Stop{
		Query:       name,
		DisplayName: loc.DisplayName,
		Point:       geo.Point{Lat: loc.Lat, Lng: loc.Lng},
	})

	out := a.routes.Rebuild(ctx, next)
	if !out.Success {
		return out
	}
	out.Message = fmt.Sprintf("I've added %s as a waypoint to your route. The updated journey is %s and will take approximately %s.",
		loc.DisplayName, out.Plan.Summary.DistanceText, out.Plan.Summary.DurationText)
	return out
}

// Remove drops the first waypoint matching target and recomputes the
// route. An unmatched target asks which waypoint was meant.
func (a *Agent) Remove(ctx context.Context, plan *route.Plan, target string) route.Outcome {
	if plan == nil {
		return missingRoute(fmt.Sprintf("remove the waypoint %s", target))
	}
	if len(plan.Waypoints) == 0 {
		return route.Outcome{
			Message: "Your route doesn't have any waypoints to remove.",
		}
	}

	idx := match(target, plan.Waypoints)
	if idx < 0 {
		names := displayNames(plan.Waypoints)
		return route.Outcome{
			Message: fmt.Sprintf("I couldn't find a waypoint matching '%s'. Your current waypoints are: %s. Which one would you like to remove?",
				target, strings.Join(names, ", ")),
			Clarification: &clarify.Context{
				Topic:         clarify.TopicWaypointRemoval,
				OriginalValue: target,
				Waypoints:     names,
			},
		}
	}

	removed := plan.Waypoints[idx]
	next := clonePlan(plan)
	next.Waypoints = append(next.Waypoints[:idx], next.Waypoints[idx+1:]...)

	out := a.routes.Rebuild(ctx, next)
	if !out.Success {
		return out
	}
	out.Message = fmt.Sprintf("I've removed %s from your route. The updated journey is %s and will take approximately %s.",
		removed.DisplayName, out.Plan.Summary.DistanceText, out.Plan.Summary.DurationText)
	return out
}

// match finds the waypoint the target refers to: exact display name first,
// then case-insensitive substring in either direction. Only the first
// match in list order is taken, even when later waypoints also match.
func match(target string, waypoints []route.Stop) int {
	for i, wp := range waypoints {
		if target == wp.DisplayName {
			return i
		}
	}
	lower := strings.ToLower(strings.TrimSpace(target))
	if lower == "" {
		return -1
	}
	for i, wp := range waypoints {
		name := strings.ToLower(wp.DisplayName)
		if strings.Contains(name, lower) || strings.Contains(lower, name) {
			return i
		}
	}
	return -1
}

func missingRoute(action string) route.Outcome {
	return route.Outcome{
		Message: fmt.Sprintf("You don't have an active route yet, so I can't %s. Would you like to create a route first? If so, please tell me the origin and destination.", action),
		Clarification: &clarify.Context{
			Topic:      clarify.TopicMissingRoute,
			Suggestion: "create a route",
		},
	}
}

func displayNames(waypoints []route.Stop) []string {
	names := make([]string, len(waypoints))
	for i, wp := range waypoints {
		names[i] = wp.DisplayName
	}
	return names
}

func clonePlan(plan *route.Plan) *route.Plan {
	next := *plan
	next.Waypoints = make([]route.Stop, len(plan.Waypoints))
	copy(next.Waypoints, plan.Waypoints)
	return &next
}
