package conversation

import (
	"sync"
	"time"

	"mapchat/internal/ai"
	"mapchat/internal/modules/clarify"
	"mapchat/internal/modules/intent"
	"mapchat/internal/modules/route"
	"mapchat/internal/overpass"
)

// Message is one turn of the dialogue as kept in history.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

// pending ties a clarification question to the classification that raised
// it, so the answer can resume the original request.
type pending struct {
	ctx clarify.Context
	cls intent.Classification
}

// State is the mutable conversation state: history, the active route
// plan, cached enrichment data and at most one pending clarification.
// All methods are safe for concurrent use.
type State struct {
	mu       sync.Mutex
	history  []Message
	plan     *route.Plan
	places   []overpass.Record
	features []overpass.Record
	pending  *pending
}

func NewState() *State {
	return &State{}
}

func (s *State) AppendUser(content string) {
	s.append(ai.RoleUser, content)
}

func (s *State) AppendAssistant(content string) {
	s.append(ai.RoleAssistant, content)
}

func (s *State) append(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, Message{Role: role, Content: content, Time: time.Now()})
}

// History returns up to limit most recent messages, oldest first. A
// non-positive limit returns everything.
func (s *State) History(limit int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := 0
	if limit > 0 && len(s.history) > limit {
		start = len(s.history) - limit
	}
	out := make([]Message, len(s.history)-start)
	copy(out, s.history[start:])
	return out
}

// SetPlan installs a new route plan. Enrichment caches belong to the old
// geometry and are dropped.
func (s *State) SetPlan(plan *route.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plan = plan
	s.places = nil
	s.features = nil
}

func (s *State) Plan() *route.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan
}

// SetPending installs the clarification awaiting the next user message,
// replacing any previous one.
func (s *State) SetPending(cc clarify.Context, cls intent.Classification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &pending{ctx: cc, cls: cls}
}

// TakePending removes and returns the pending clarification, so exactly
// one turn consumes it.
func (s *State) TakePending() (clarify.Context, intent.Classification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return clarify.Context{}, intent.Classification{}, false
	}
	p := *s.pending
	s.pending = nil
	return p.ctx, p.cls, true
}

func (s *State) Places() ([]overpass.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.places, s.places != nil
}

func (s *State) Features() ([]overpass.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.features, s.features != nil
}

func (s *State) StorePlaces(records []overpass.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.places = records
}

func (s *State) StoreFeatures(records []overpass.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.features = records
}

// StorePlacesIfAbsent stores preloaded records unless a fetch for this
// route already landed.
func (s *State) StorePlacesIfAbsent(records []overpass.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.places == nil {
		s.places = records
	}
}

func (s *State) StoreFeaturesIfAbsent(records []overpass.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.features == nil {
		s.features = records
	}
}

// Reset clears the conversation. With keepRoute the plan and its cached
// enrichment survive, so the user can keep asking about the same route.
func (s *State) Reset(keepRoute bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.pending = nil
	if !keepRoute {
		s.plan = nil
		s.places = nil
		s.features = nil
	}
}

// RouteContext projects the state into the slice the classifier and
// clarifier prompts need.
func (s *State) RouteContext() intent.RouteContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc := intent.RouteContext{}
	if s.plan != nil {
		rc.HasActiveRoute = true
		rc.Origin = s.plan.Origin.DisplayName
		rc.Destination = s.plan.Destination.DisplayName
		for _, wp := range s.plan.Waypoints {
			rc.Waypoints = append(rc.Waypoints, wp.DisplayName)
		}
	}
	if s.pending != nil {
		rc.PendingTopic = s.pending.ctx.Topic
	}
	return rc
}

// RouteSnapshot is the read-only view served over the API.
type RouteSnapshot struct {
	HasRoute bool              `json:"has_route"`
	Plan     *route.Plan       `json:"plan,omitempty"`
	Places   []overpass.Record `json:"places,omitempty"`
	Features []overpass.Record `json:"features,omitempty"`
}

func (s *State) Snapshot() RouteSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RouteSnapshot{
		HasRoute: s.plan != nil,
		Plan:     s.plan,
		Places:   s.places,
		Features: s.features,
	}
}
