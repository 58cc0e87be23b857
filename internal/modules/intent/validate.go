package intent

import "fmt"

// ValidateParameters checks that the extracted parameters are sufficient to
// act on the intent. It returns false with a user-facing message naming the
// first missing slot.
func ValidateParameters(intentName string, p Parameters) (bool, string) {
	switch intentName {
	case RouteQuery:
		if p.Origin == "" {
			return false, "Please specify an origin location."
		}
		if p.Destination == "" {
			return false, "Please specify a destination location."
		}
		return true, ""

	case AddWaypoint:
		if p.Waypoint == "" {
			return false, "Please specify a location to add as a waypoint."
		}
		return true, ""

	case RemoveWaypoint:
		if p.Waypoint == "" {
			return false, "Please specify which waypoint to remove."
		}
		return true, ""

	case PlacesQuery, FeaturesQuery:
		// The active-route requirement is enforced by the agent.
		return true, ""

	case GeneralQuery, Clarification, Unknown:
		return true, ""

	default:
		return false, fmt.Sprintf("Unknown intent: %s", intentName)
	}
}
