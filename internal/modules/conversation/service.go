// Package conversation orchestrates the dialogue: it classifies each user
// message, dispatches to the route, waypoint and enrichment agents, and
// drives clarification sub-dialogues to completion.
package conversation

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"mapchat/internal/ai"
	"mapchat/internal/geo"
	"mapchat/internal/modules/clarify"
	"mapchat/internal/modules/enrichment"
	"mapchat/internal/modules/intent"
	"mapchat/internal/modules/route"
	"mapchat/internal/overpass"
)

const chatPrompt = `You are a helpful trip planning assistant. You help users plan driving routes and discover places and natural features along the way.

Answer conversationally and concisely. When route information is provided below, ground your answers in it and do not invent details.`

const apologyReply = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."

const historyWindow = 10

// routeWords lowers the sampling temperature for grounded route questions.
var routeWords = []string{"route", "way", "journey", "trip", "path", "road"}

// Classifier labels a user message with an intent.
type Classifier interface {
	Classify(ctx context.Context, query string, rc intent.RouteContext) intent.Classification
}

// Clarifier runs the clarification sub-dialogue.
type Clarifier interface {
	Process(ctx context.Context, query string, cc clarify.Context) clarify.Result
	GenerateQuestion(ctx context.Context, cls intent.Classification, rc intent.RouteContext) string
}

// RouteBuilder resolves and computes routes from location names.
type RouteBuilder interface {
	Build(ctx context.Context, origin, destination string, waypoints []string) route.Outcome
}

// WaypointEditor edits the waypoint list of an active plan.
type WaypointEditor interface {
	Add(ctx context.Context, plan *route.Plan, name string) route.Outcome
	Remove(ctx context.Context, plan *route.Plan, target string) route.Outcome
}

// Enricher answers places and features queries along a route.
type Enricher interface {
	Places(ctx context.Context, path []geo.Point, cached []overpass.Record) enrichment.Result
	Features(ctx context.Context, path []geo.Point, cached []overpass.Record) enrichment.Result
	Preload(path []geo.Point, sink enrichment.Sink) <-chan struct{}
}

// TurnRecord is the per-turn analytics row.
type TurnRecord struct {
	UserMessage      string
	AssistantMessage string
	Intent           string
	Confidence       float64
	RequiresUIUpdate bool
	Latency          time.Duration
}

// Recorder persists turn records. Implementations must tolerate being
// called concurrently.
type Recorder interface {
	Record(ctx context.Context, rec TurnRecord) error
}

// Reply is the assistant's answer to one user message.
type Reply struct {
	Message          string  `json:"response"`
	Intent           string  `json:"intent,omitempty"`
	Confidence       float64 `json:"confidence,omitempty"`
	RequiresUIUpdate bool    `json:"requires_ui_update"`
}

// StreamEvent is one SSE frame of a streamed turn. Structured turns send
// a single status event; grounded chat sends chunks followed by a
// completion marker.
type StreamEvent struct {
	Status           string `json:"status,omitempty"`
	Message          string `json:"message,omitempty"`
	RequiresUIUpdate bool   `json:"requires_ui_update,omitempty"`
	Chunk            string `json:"chunk,omitempty"`
	Complete         bool   `json:"complete,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Service is the conversation engine for one session.
type Service struct {
	llm        ai.Provider
	classifier Classifier
	clarifier  Clarifier
	routes     RouteBuilder
	waypoints  WaypointEditor
	enrich     Enricher
	recorder   Recorder

	state *State
}

// NewService wires the agents into a conversation engine with fresh
// state. recorder may be nil.
func NewService(llm ai.Provider, classifier Classifier, clarifier Clarifier, routes RouteBuilder, waypoints WaypointEditor, enrich Enricher, recorder Recorder) *Service {
	return &Service{
		llm:        llm,
		classifier: classifier,
		clarifier:  clarifier,
		routes:     routes,
		waypoints:  waypoints,
		enrich:     enrich,
		recorder:   recorder,
		state:      NewState(),
	}
}

// State exposes the conversation state for the HTTP surface.
func (s *Service) State() *State {
	return s.state
}

// HandleTurn processes one user message end to end and returns the reply.
func (s *Service) HandleTurn(ctx context.Context, query string) Reply {
	start := time.Now()
	s.state.AppendUser(query)

	reply := s.handle(ctx, query)

	s.state.AppendAssistant(reply.Message)
	s.record(query, reply, time.Since(start))
	return reply
}

// StreamTurn processes one user message, emitting SSE events. Structured
// intents produce one status event; grounded chat streams chunks.
func (s *Service) StreamTurn(ctx context.Context, query string, emit func(StreamEvent) error) error {
	start := time.Now()
	s.state.AppendUser(query)

	if cc, cls, ok := s.state.TakePending(); ok {
		reply := s.resumeClarification(ctx, query, cc, cls)
		return s.finishStream(query, reply, start, emit)
	}

	cls := s.classifier.Classify(ctx, query, s.state.RouteContext())
	if s.isGroundedChat(cls) {
		return s.streamGrounded(ctx, query, cls, start, emit)
	}

	reply := s.dispatch(ctx, cls)
	return s.finishStream(query, reply, start, emit)
}

func (s *Service) finishStream(query string, reply Reply, start time.Time, emit func(StreamEvent) error) error {
	s.state.AppendAssistant(reply.Message)
	s.record(query, reply, time.Since(start))
	if err := emit(StreamEvent{
		Status:           "complete",
		Message:          reply.Message,
		RequiresUIUpdate: reply.RequiresUIUpdate,
	}); err != nil {
		return err
	}
	return emit(StreamEvent{Complete: true})
}

func (s *Service) streamGrounded(ctx context.Context, query string, cls intent.Classification, start time.Time, emit func(StreamEvent) error) error {
	messages := s.groundedMessages()
	opts := ai.ChatOptions{Temperature: s.chatTemperature(query)}

	var full strings.Builder
	var emitErr error
	err := s.llm.StreamChat(ctx, messages, opts, func(chunk string) error {
		full.WriteString(chunk)
		if err := emit(StreamEvent{Chunk: chunk}); err != nil {
			emitErr = err
			return err
		}
		return nil
	})
	if err != nil {
		log.Printf("[conversation] streamed chat failed: %v", err)
		// The consumer already saw whatever was streamed; history must
		// record that text, not an apology the user never got.
		message := apologyReply
		if full.Len() > 0 {
			message = full.String()
		}
		s.state.AppendAssistant(message)
		s.record(query, Reply{Message: message, Intent: cls.Intent, Confidence: cls.Confidence}, time.Since(start))
		if emitErr != nil {
			// Consumer is gone; there is nobody to send an error event to.
			return err
		}
		return emit(StreamEvent{Error: apologyReply})
	}

	reply := Reply{Message: full.String(), Intent: cls.Intent, Confidence: cls.Confidence}
	s.state.AppendAssistant(reply.Message)
	s.record(query, reply, time.Since(start))
	return emit(StreamEvent{Complete: true})
}

func (s *Service) isGroundedChat(cls intent.Classification) bool {
	if cls.RequiresClarification {
		return false
	}
	return cls.Intent == intent.GeneralQuery || cls.Intent == intent.Clarification
}

func (s *Service) handle(ctx context.Context, query string) Reply {
	if cc, cls, ok := s.state.TakePending(); ok {
		return s.resumeClarification(ctx, query, cc, cls)
	}
	cls := s.classifier.Classify(ctx, query, s.state.RouteContext())
	return s.dispatch(ctx, cls)
}

func (s *Service) dispatch(ctx context.Context, cls intent.Classification) Reply {
	if cls.RequiresClarification || cls.Intent == intent.Unknown {
		question := s.clarifier.GenerateQuestion(ctx, cls, s.state.RouteContext())
		s.state.SetPending(s.pendingContext(cls), cls)
		return Reply{Message: question, Intent: cls.Intent, Confidence: cls.Confidence}
	}

	if ok, msg := intent.ValidateParameters(cls.Intent, cls.Parameters); !ok {
		s.state.SetPending(s.pendingContext(cls), cls)
		return Reply{Message: msg, Intent: cls.Intent, Confidence: cls.Confidence}
	}

	switch cls.Intent {
	case intent.RouteQuery:
		return s.applyOutcome(cls, s.routes.Build(ctx, cls.Parameters.Origin, cls.Parameters.Destination, cls.Parameters.Waypoints))
	case intent.AddWaypoint:
		return s.applyOutcome(cls, s.waypoints.Add(ctx, s.state.Plan(), cls.Parameters.Waypoint))
	case intent.RemoveWaypoint:
		return s.applyOutcome(cls, s.waypoints.Remove(ctx, s.state.Plan(), cls.Parameters.Waypoint))
	case intent.PlacesQuery:
		return s.enrichmentTurn(ctx, cls, "places")
	case intent.FeaturesQuery:
		return s.enrichmentTurn(ctx, cls, "features")
	default:
		return s.generalTurn(ctx, cls)
	}
}

// pendingContext picks the clarification topic for a classification that
// could not be acted on yet.
func (s *Service) pendingContext(cls intent.Classification) clarify.Context {
	switch cls.Intent {
	case intent.RouteQuery:
		if cls.Parameters.Origin == "" {
			return clarify.Context{Topic: clarify.TopicOrigin}
		}
		if cls.Parameters.Destination == "" {
			return clarify.Context{Topic: clarify.TopicDestination}
		}
		return clarify.Context{Topic: clarify.TopicRouteGeneration}
	case intent.AddWaypoint:
		return clarify.Context{Topic: clarify.TopicWaypoint, OriginalValue: cls.Parameters.Waypoint}
	case intent.RemoveWaypoint:
		return clarify.Context{
			Topic:         clarify.TopicWaypointRemoval,
			OriginalValue: cls.Parameters.Waypoint,
			Waypoints:     s.state.RouteContext().Waypoints,
		}
	default:
		return clarify.Context{Topic: "user intent"}
	}
}

// applyOutcome installs a successful plan (kicking off the enrichment
// preload) or parks the failure's clarification for the next turn.
func (s *Service) applyOutcome(cls intent.Classification, out route.Outcome) Reply {
	if !out.Success {
		if out.Clarification != nil {
			s.state.SetPending(*out.Clarification, cls)
		}
		return Reply{Message: out.Message, Intent: cls.Intent, Confidence: cls.Confidence}
	}

	if out.Plan != nil {
		s.state.SetPlan(out.Plan)
		s.enrich.Preload(out.Plan.Summary.Path, s.state)
		return Reply{Message: out.Message, Intent: cls.Intent, Confidence: cls.Confidence, RequiresUIUpdate: true}
	}
	return Reply{Message: out.Message, Intent: cls.Intent, Confidence: cls.Confidence}
}

func (s *Service) enrichmentTurn(ctx context.Context, cls intent.Classification, what string) Reply {
	plan := s.state.Plan()
	if plan == nil {
		res := enrichment.MissingRoute(what)
		s.state.SetPending(*res.Clarification, cls)
		return Reply{Message: res.Message, Intent: cls.Intent, Confidence: cls.Confidence}
	}

	var res enrichment.Result
	switch what {
	case "places":
		cached, _ := s.state.Places()
		res = s.enrich.Places(ctx, plan.Summary.Path, cached)
		if res.Success && !res.FromCache {
			s.state.StorePlaces(res.Records)
		}
	default:
		cached, _ := s.state.Features()
		res = s.enrich.Features(ctx, plan.Summary.Path, cached)
		if res.Success && !res.FromCache {
			s.state.StoreFeatures(res.Records)
		}
	}

	if !res.Success && res.Clarification != nil {
		s.state.SetPending(*res.Clarification, cls)
	}
	return Reply{Message: res.Message, Intent: cls.Intent, Confidence: cls.Confidence}
}

// resumeClarification feeds the user's answer back into the request that
// raised the question.
func (s *Service) resumeClarification(ctx context.Context, query string, cc clarify.Context, cls intent.Classification) Reply {
	res := s.clarifier.Process(ctx, query, cc)
	if !res.Success {
		// Still unresolved: keep waiting for a usable answer.
		s.state.SetPending(cc, cls)
		return Reply{Message: res.Message, Intent: intent.Clarification}
	}

	switch cc.Topic {
	case clarify.TopicOrigin:
		cls.Intent = intent.RouteQuery
		cls.Parameters.Origin = res.ClarifiedValue
		return s.dispatch(ctx, cls)

	case clarify.TopicDestination:
		cls.Intent = intent.RouteQuery
		cls.Parameters.Destination = res.ClarifiedValue
		return s.dispatch(ctx, cls)

	case clarify.TopicWaypoint:
		substituteWaypoint(&cls, cc.OriginalValue, res.ClarifiedValue)
		return s.dispatch(ctx, cls)

	case clarify.TopicWaypointRemoval:
		cls.Intent = intent.RemoveWaypoint
		cls.Parameters.Waypoint = res.ClarifiedValue
		return s.applyOutcome(cls, s.waypoints.Remove(ctx, s.state.Plan(), res.ClarifiedValue))

	case clarify.TopicMissingRoute:
		if !res.WantsRoute {
			return Reply{Message: res.Message, Intent: intent.Clarification}
		}
		if res.Origin != "" && res.Destination != "" {
			routeCls := intent.Classification{
				Intent:     intent.RouteQuery,
				Parameters: intent.Parameters{Origin: res.Origin, Destination: res.Destination},
				Confidence: cls.Confidence,
			}
			return s.applyOutcome(routeCls, s.routes.Build(ctx, res.Origin, res.Destination, nil))
		}
		return Reply{Message: res.Message, Intent: intent.Clarification}

	case clarify.TopicPlacesFetch, clarify.TopicFeaturesFetch:
		if !wantsRetry(query) {
			return Reply{Message: "Okay. Let me know if you'd like me to try again later.", Intent: intent.Clarification}
		}
		what := "places"
		retry := intent.PlacesQuery
		if cc.Topic == clarify.TopicFeaturesFetch {
			what = "features"
			retry = intent.FeaturesQuery
		}
		cls.Intent = retry
		return s.enrichmentTurn(ctx, cls, what)

	default:
		// Generic topics resolve to the user's own words; classify them as
		// a fresh request.
		next := s.classifier.Classify(ctx, res.ClarifiedValue, s.state.RouteContext())
		return s.dispatch(ctx, next)
	}
}

// substituteWaypoint replaces the waypoint that failed to resolve with
// the clarified name, wherever the original request carried it.
func substituteWaypoint(cls *intent.Classification, original, clarified string) {
	if cls.Parameters.Waypoint == original || cls.Parameters.Waypoint == "" && cls.Intent == intent.AddWaypoint {
		cls.Parameters.Waypoint = clarified
	}
	for i, wp := range cls.Parameters.Waypoints {
		if wp == original {
			cls.Parameters.Waypoints[i] = clarified
		}
	}
}

func wantsRetry(answer string) bool {
	lower := strings.ToLower(answer)
	for _, word := range []string{"yes", "sure", "ok", "please", "retry", "try"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

func (s *Service) generalTurn(ctx context.Context, cls intent.Classification) Reply {
	reply, err := s.llm.Chat(ctx, s.groundedMessages(), ai.ChatOptions{Temperature: s.chatTemperature(cls.OriginalQuery)})
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			log.Printf("[conversation] grounded chat failed: %v", err)
		}
		return Reply{Message: apologyReply, Intent: cls.Intent, Confidence: cls.Confidence}
	}
	return Reply{Message: strings.TrimSpace(reply), Intent: cls.Intent, Confidence: cls.Confidence}
}

// groundedMessages builds the chat transcript: the grounding system
// prompt followed by the recent history, which already ends with the
// current user message.
func (s *Service) groundedMessages() []ai.Message {
	messages := []ai.Message{{Role: ai.RoleSystem, Content: s.groundedPrompt()}}
	for _, m := range s.state.History(historyWindow) {
		messages = append(messages, ai.Message{Role: m.Role, Content: m.Content})
	}
	return messages
}

func (s *Service) groundedPrompt() string {
	var b strings.Builder
	b.WriteString(chatPrompt)

	plan := s.state.Plan()
	if plan == nil {
		return b.String()
	}

	fmt.Fprintf(&b, "\n\nCurrent route: %s to %s, %s, about %s.",
		plan.Origin.DisplayName, plan.Destination.DisplayName,
		plan.Summary.DistanceText, plan.Summary.DurationText)
	if len(plan.Waypoints) > 0 {
		names := make([]string, len(plan.Waypoints))
		for i, wp := range plan.Waypoints {
			names[i] = wp.DisplayName
		}
		fmt.Fprintf(&b, " Waypoints: %s.", strings.Join(names, "; "))
	}

	if places, ok := s.state.Places(); ok && len(places) > 0 {
		b.WriteString("\n" + enrichment.SummarizePlaces(places))
	}
	if features, ok := s.state.Features(); ok && len(features) > 0 {
		b.WriteString("\n" + enrichment.SummarizeFeatures(features))
	}
	return b.String()
}

// chatTemperature lowers the temperature when the question is about the
// route itself, to keep grounded answers factual.
func (s *Service) chatTemperature(query string) float32 {
	lower := strings.ToLower(query)
	for _, word := range routeWords {
		if strings.Contains(lower, word) {
			return 0.3
		}
	}
	return 0.7
}

// record persists the turn asynchronously; analytics never block a reply.
func (s *Service) record(query string, reply Reply, latency time.Duration) {
	if s.recorder == nil {
		return
	}
	rec := TurnRecord{
		UserMessage:      query,
		AssistantMessage: reply.Message,
		Intent:           reply.Intent,
		Confidence:       reply.Confidence,
		RequiresUIUpdate: reply.RequiresUIUpdate,
		Latency:          latency,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.recorder.Record(ctx, rec); err != nil {
			log.Printf("[conversation] turn record failed: %v", err)
		}
	}()
}
