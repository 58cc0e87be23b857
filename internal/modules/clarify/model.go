package clarify

// Clarification topics. Agents attach one of these to a failure so the
// next user message can be routed to the matching recovery branch.
const (
	TopicOrigin          = "origin location"
	TopicDestination     = "destination location"
	TopicWaypoint        = "waypoint location"
	TopicWaypointRemoval = "waypoint removal"
	TopicMissingRoute    = "missing route"
	TopicRouteGeneration = "route generation"
	TopicRouteUpdate     = "route update failure"
	TopicPlacesFetch     = "places data fetch failure"
	TopicFeaturesFetch   = "features data fetch failure"
)

// Context describes what a pending clarification is about.
type Context struct {
	Topic string

	// OriginalValue is the value that could not be resolved, when there
	// was one (an ungeocodable location, an unmatched waypoint name).
	OriginalValue string

	// Waypoints holds the candidate display names for a removal
	// clarification.
	Waypoints []string

	// Suggestion hints the recovery path, e.g. "create a route".
	Suggestion string
}

// Result is the outcome of processing a user's clarification answer.
type Result struct {
	Success bool

	// ClarifiedValue is the extracted replacement value on success.
	ClarifiedValue string

	// WantsRoute reports, for the missing-route topic, whether the user
	// asked for a route to be created. Origin and Destination are set
	// when they could be pulled from the same answer.
	WantsRoute  bool
	Origin      string
	Destination string

	Message string
}
