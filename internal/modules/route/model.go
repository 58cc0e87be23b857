package route

import (
	"mapchat/internal/geo"
	"mapchat/internal/maps"
	"mapchat/internal/modules/clarify"
)

// Stop is a resolved point on the route: the name the user gave, the
// geocoder's display name, and the coordinates.
type Stop struct {
	Query       string    `json:"query"`
	DisplayName string    `json:"display_name"`
	Point       geo.Point `json:"point"`
}

// Plan is a fully resolved route ready to be stored as conversation state.
type Plan struct {
	Origin      Stop               `json:"origin"`
	Destination Stop               `json:"destination"`
	Waypoints   []Stop             `json:"waypoints"`
	Summary     *maps.RouteSummary `json:"summary"`
}

// Outcome is what an agent turn produced: either a plan with a reply, or
// a failure whose Clarification tells the dialogue how to recover.
type Outcome struct {
	Success       bool
	Message       string
	Plan          *Plan
	Clarification *clarify.Context
}
