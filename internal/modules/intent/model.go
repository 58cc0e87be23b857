package intent

// Intent labels produced by the classifier.
const (
	RouteQuery     = "ROUTE_QUERY"
	PlacesQuery    = "PLACES_QUERY"
	FeaturesQuery  = "FEATURES_QUERY"
	AddWaypoint    = "ADD_WAYPOINT"
	RemoveWaypoint = "REMOVE_WAYPOINT"
	GeneralQuery   = "GENERAL_QUERY"
	Clarification  = "CLARIFICATION"
	Unknown        = "UNKNOWN"
)

// Parameters are the slots extracted alongside an intent. Which fields are
// populated depends on the intent.
type Parameters struct {
	Origin      string   `json:"origin,omitempty"`
	Destination string   `json:"destination,omitempty"`
	Waypoints   []string `json:"waypoints,omitempty"`
	Waypoint    string   `json:"waypoint,omitempty"`
}

// Classification is the structured result of classifying one user query.
type Classification struct {
	Intent                string     `json:"intent"`
	Parameters            Parameters `json:"parameters"`
	Confidence            float64    `json:"confidence"`
	RequiresClarification bool       `json:"requires_clarification"`
	ClarificationQuestion string     `json:"clarification_question,omitempty"`

	// OriginalQuery is the verbatim user text the classification was made
	// from; it is carried forward so agents can quote it.
	OriginalQuery string `json:"-"`
}

// RouteContext is the slice of conversation state the classifier grounds
// its prompt in.
type RouteContext struct {
	HasActiveRoute bool
	Origin         string
	Destination    string
	Waypoints      []string

	// PendingTopic is set when the user is answering a clarification
	// question about that topic.
	PendingTopic string
}
