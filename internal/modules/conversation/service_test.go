package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"mapchat/internal/ai"
	"mapchat/internal/geo"
	"mapchat/internal/modules/clarify"
	"mapchat/internal/modules/enrichment"
	"mapchat/internal/modules/intent"
	"mapchat/internal/modules/route"
	"mapchat/internal/overpass"
)

type fakeProvider struct {
	reply  string
	chunks []string
	err    error
}

func (f *fakeProvider) Chat(ctx context.Context, messages []ai.Message, opts ai.ChatOptions) (string, error) {
	return f.reply, f.err
}

func (f *fakeProvider) StreamChat(ctx context.Context, messages []ai.Message, opts ai.ChatOptions, emit func(string) error) error {
	if f.err != nil {
		return f.err
	}
	for _, c := range f.chunks {
		if err := emit(c); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeProvider) Close() {}

// fakeClassifier maps exact queries to classifications.
type fakeClassifier struct {
	byQuery map[string]intent.Classification
}

func (f *fakeClassifier) Classify(ctx context.Context, query string, rc intent.RouteContext) intent.Classification {
	cls, ok := f.byQuery[query]
	if !ok {
		cls = intent.Classification{Intent: intent.GeneralQuery, Confidence: 0.9}
	}
	cls.OriginalQuery = query
	return cls
}

type fakeClarifier struct {
	result   clarify.Result
	question string
	lastCC   clarify.Context
}

func (f *fakeClarifier) Process(ctx context.Context, query string, cc clarify.Context) clarify.Result {
	f.lastCC = cc
	return f.result
}

func (f *fakeClarifier) GenerateQuestion(ctx context.Context, cls intent.Classification, rc intent.RouteContext) string {
	if f.question != "" {
		return f.question
	}
	return "Could you tell me more?"
}

type fakeRouteBuilder struct {
	outcome route.Outcome
	calls   int
}

func (f *fakeRouteBuilder) Build(ctx context.Context, origin, destination string, waypoints []string) route.Outcome {
	f.calls++
	return f.outcome
}

type fakeWaypointEditor struct {
	outcome    route.Outcome
	lastTarget string
}

func (f *fakeWaypointEditor) Add(ctx context.Context, plan *route.Plan, name string) route.Outcome {
	f.lastTarget = name
	return f.outcome
}

func (f *fakeWaypointEditor) Remove(ctx context.Context, plan *route.Plan, target string) route.Outcome {
	f.lastTarget = target
	return f.outcome
}

type fakeEnricher struct {
	placesRes   enrichment.Result
	featuresRes enrichment.Result
	placesCalls int
	preloads    int
	mu          sync.Mutex
}

func (f *fakeEnricher) Places(ctx context.Context, path []geo.Point, cached []overpass.Record) enrichment.Result {
	f.placesCalls++
	if cached != nil {
		return enrichment.Result{Success: true, Message: "cached places", Records: cached, FromCache: true}
	}
	return f.placesRes
}

func (f *fakeEnricher) Features(ctx context.Context, path []geo.Point, cached []overpass.Record) enrichment.Result {
	return f.featuresRes
}

func (f *fakeEnricher) Preload(path []geo.Point, sink enrichment.Sink) <-chan struct{} {
	f.mu.Lock()
	f.preloads++
	f.mu.Unlock()
	done := make(chan struct{})
	close(done)
	return done
}

type fakeRecorder struct {
	mu   sync.Mutex
	recs []TurnRecord
}

func (f *fakeRecorder) Record(ctx context.Context, rec TurnRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
	return nil
}

func successfulRouteOutcome() route.Outcome {
	return route.Outcome{
		Success: true,
		Message: "I've found a route from Chicago to New York.",
		Plan:    testPlan(),
	}
}

type deps struct {
	llm        *fakeProvider
	classifier *fakeClassifier
	clarifier  *fakeClarifier
	routes     *fakeRouteBuilder
	waypoints  *fakeWaypointEditor
	enrich     *fakeEnricher
	recorder   *fakeRecorder
}

func newTestService(d *deps) *Service {
	if d.llm == nil {
		d.llm = &fakeProvider{reply: "sure"}
	}
	if d.classifier == nil {
		d.classifier = &fakeClassifier{byQuery: map[string]intent.Classification{}}
	}
	if d.clarifier == nil {
		d.clarifier = &fakeClarifier{}
	}
	if d.routes == nil {
		d.routes = &fakeRouteBuilder{outcome: successfulRouteOutcome()}
	}
	if d.waypoints == nil {
		d.waypoints = &fakeWaypointEditor{}
	}
	if d.enrich == nil {
		d.enrich = &fakeEnricher{}
	}
	var recorder Recorder
	if d.recorder != nil {
		recorder = d.recorder
	}
	return NewService(d.llm, d.classifier, d.clarifier, d.routes, d.waypoints, d.enrich, recorder)
}

func TestHandleTurn_RouteQueryCreatesPlanAndPreloads(t *testing.T) {
	d := &deps{
		classifier: &fakeClassifier{byQuery: map[string]intent.Classification{
			"route from Chicago to New York": {
				Intent:     intent.RouteQuery,
				Parameters: intent.Parameters{Origin: "Chicago", Destination: "New York"},
				Confidence: 0.95,
			},
		}},
	}
	s := newTestService(d)

	reply := s.HandleTurn(context.Background(), "route from Chicago to New York")
	if !reply.RequiresUIUpdate {
		t.Errorf("reply = %+v", reply)
	}
	if s.State().Plan() == nil {
		t.Fatal("no plan stored")
	}
	if d.enrich.preloads != 1 {
		t.Errorf("preloads = %d", d.enrich.preloads)
	}
	hist := s.State().History(0)
	if len(hist) != 2 || hist[0].Role != ai.RoleUser || hist[1].Role != ai.RoleAssistant {
		t.Errorf("history = %+v", hist)
	}
}

func TestHandleTurn_ValidationFailureParksClarification(t *testing.T) {
	d := &deps{
		classifier: &fakeClassifier{byQuery: map[string]intent.Classification{
			"route to New York": {
				Intent:     intent.RouteQuery,
				Parameters: intent.Parameters{Destination: "New York"},
				Confidence: 0.9,
			},
		}},
	}
	s := newTestService(d)

	reply := s.HandleTurn(context.Background(), "route to New York")
	if reply.Message != "Please specify an origin location." {
		t.Errorf("reply = %+v", reply)
	}
	cc, cls, ok := s.State().TakePending()
	if !ok || cc.Topic != clarify.TopicOrigin || cls.Intent != intent.RouteQuery {
		t.Fatalf("pending = %+v / %+v / %v", cc, cls, ok)
	}
	if d.routes.calls != 0 {
		t.Errorf("route builder called %d times", d.routes.calls)
	}
}

func TestHandleTurn_ClarifiedOriginResumesRouteBuild(t *testing.T) {
	d := &deps{
		clarifier: &fakeClarifier{result: clarify.Result{Success: true, ClarifiedValue: "Chicago"}},
	}
	s := newTestService(d)
	s.State().SetPending(clarify.Context{Topic: clarify.TopicOrigin}, intent.Classification{
		Intent:     intent.RouteQuery,
		Parameters: intent.Parameters{Destination: "New York"},
	})

	reply := s.HandleTurn(context.Background(), "I meant Chicago")
	if !reply.RequiresUIUpdate {
		t.Errorf("reply = %+v", reply)
	}
	if d.routes.calls != 1 {
		t.Errorf("route builder calls = %d", d.routes.calls)
	}
	if s.State().Plan() == nil {
		t.Error("no plan stored after clarified route")
	}
}

func TestHandleTurn_FailedClarificationKeepsPending(t *testing.T) {
	d := &deps{
		clarifier: &fakeClarifier{result: clarify.Result{Success: false, Message: "Which Denver?"}},
	}
	s := newTestService(d)
	s.State().SetPending(clarify.Context{Topic: clarify.TopicWaypointRemoval, Waypoints: []string{"Denver, CO"}}, intent.Classification{Intent: intent.RemoveWaypoint})

	reply := s.HandleTurn(context.Background(), "the other one")
	if reply.Message != "Which Denver?" {
		t.Errorf("reply = %+v", reply)
	}
	if _, _, ok := s.State().TakePending(); !ok {
		t.Error("pending was dropped while still unresolved")
	}
}

func TestHandleTurn_WaypointRemovalClarified(t *testing.T) {
	d := &deps{
		clarifier: &fakeClarifier{result: clarify.Result{Success: true, ClarifiedValue: "Denver, CO"}},
		waypoints: &fakeWaypointEditor{outcome: route.Outcome{Success: true, Message: "removed", Plan: testPlan()}},
	}
	s := newTestService(d)
	s.State().SetPlan(testPlan())
	s.State().SetPending(clarify.Context{Topic: clarify.TopicWaypointRemoval, Waypoints: []string{"Denver, CO", "Topeka, KS"}}, intent.Classification{Intent: intent.RemoveWaypoint})

	reply := s.HandleTurn(context.Background(), "Denver")
	if !reply.RequiresUIUpdate {
		t.Errorf("reply = %+v", reply)
	}
	if d.waypoints.lastTarget != "Denver, CO" {
		t.Errorf("removal target = %q", d.waypoints.lastTarget)
	}
}

func TestHandleTurn_MissingRouteClarificationBuildsRoute(t *testing.T) {
	d := &deps{
		clarifier: &fakeClarifier{result: clarify.Result{
			Success:     true,
			WantsRoute:  true,
			Origin:      "Chicago",
			Destination: "New York",
		}},
	}
	s := newTestService(d)
	s.State().SetPending(clarify.Context{Topic: clarify.TopicMissingRoute}, intent.Classification{Intent: intent.PlacesQuery})

	reply := s.HandleTurn(context.Background(), "yes, from Chicago to New York")
	if !reply.RequiresUIUpdate || d.routes.calls != 1 {
		t.Errorf("reply = %+v, builds = %d", reply, d.routes.calls)
	}
}

func TestHandleTurn_MissingRouteDeclined(t *testing.T) {
	d := &deps{
		clarifier: &fakeClarifier{result: clarify.Result{Success: true, WantsRoute: false, Message: "No problem."}},
	}
	s := newTestService(d)
	s.State().SetPending(clarify.Context{Topic: clarify.TopicMissingRoute}, intent.Classification{Intent: intent.PlacesQuery})

	reply := s.HandleTurn(context.Background(), "no thanks")
	if reply.Message != "No problem." || reply.RequiresUIUpdate {
		t.Errorf("reply = %+v", reply)
	}
	if d.routes.calls != 0 {
		t.Errorf("route builder calls = %d", d.routes.calls)
	}
}

func TestHandleTurn_PlacesWithoutRouteAsksToCreateOne(t *testing.T) {
	d := &deps{
		classifier: &fakeClassifier{byQuery: map[string]intent.Classification{
			"what places are on the way?": {Intent: intent.PlacesQuery, Confidence: 0.9},
		}},
	}
	s := newTestService(d)

	reply := s.HandleTurn(context.Background(), "what places are on the way?")
	if !strings.Contains(reply.Message, "don't have an active route") {
		t.Errorf("reply = %+v", reply)
	}
	cc, _, ok := s.State().TakePending()
	if !ok || cc.Topic != clarify.TopicMissingRoute {
		t.Fatalf("pending = %+v / %v", cc, ok)
	}
}

func TestHandleTurn_PlacesStoresFetchedRecords(t *testing.T) {
	records := []overpass.Record{{Name: "Gary", Type: "city"}}
	d := &deps{
		classifier: &fakeClassifier{byQuery: map[string]intent.Classification{
			"places?": {Intent: intent.PlacesQuery, Confidence: 0.9},
		}},
		enrich: &fakeEnricher{placesRes: enrichment.Result{Success: true, Message: "found Gary", Records: records}},
	}
	s := newTestService(d)
	s.State().SetPlan(testPlan())

	reply := s.HandleTurn(context.Background(), "places?")
	if reply.Message != "found Gary" {
		t.Errorf("reply = %+v", reply)
	}
	stored, ok := s.State().Places()
	if !ok || len(stored) != 1 {
		t.Errorf("stored = %+v", stored)
	}

	// Second ask hits the cache: the fetch path is not taken again.
	s.HandleTurn(context.Background(), "places?")
	if d.enrich.placesCalls != 2 {
		t.Fatalf("places calls = %d", d.enrich.placesCalls)
	}
}

func TestHandleTurn_PlacesFetchFailureThenRetry(t *testing.T) {
	d := &deps{
		classifier: &fakeClassifier{byQuery: map[string]intent.Classification{
			"places?": {Intent: intent.PlacesQuery, Confidence: 0.9},
		}},
		clarifier: &fakeClarifier{result: clarify.Result{Success: true, ClarifiedValue: "yes"}},
		enrich: &fakeEnricher{placesRes: enrichment.Result{
			Message:       "service busy",
			Clarification: &clarify.Context{Topic: clarify.TopicPlacesFetch},
		}},
	}
	s := newTestService(d)
	s.State().SetPlan(testPlan())

	reply := s.HandleTurn(context.Background(), "places?")
	if reply.Message != "service busy" {
		t.Fatalf("reply = %+v", reply)
	}

	// "yes" answers the retry question and runs the fetch again.
	s.HandleTurn(context.Background(), "yes please")
	if d.enrich.placesCalls != 2 {
		t.Errorf("places calls = %d", d.enrich.placesCalls)
	}
}

func TestHandleTurn_GeneralQueryUsesGroundedChat(t *testing.T) {
	d := &deps{llm: &fakeProvider{reply: "It takes about 12 hours."}}
	s := newTestService(d)
	s.State().SetPlan(testPlan())

	reply := s.HandleTurn(context.Background(), "how long will my trip take?")
	if reply.Message != "It takes about 12 hours." {
		t.Errorf("reply = %+v", reply)
	}
}

func TestHandleTurn_GeneralQueryLLMFailure(t *testing.T) {
	d := &deps{llm: &fakeProvider{err: errors.New("down")}}
	s := newTestService(d)

	reply := s.HandleTurn(context.Background(), "hello")
	if reply.Message != apologyReply {
		t.Errorf("reply = %+v", reply)
	}
}

func TestHandleTurn_UnknownAsksQuestion(t *testing.T) {
	d := &deps{
		classifier: &fakeClassifier{byQuery: map[string]intent.Classification{
			"asdf": {Intent: intent.Unknown, RequiresClarification: true},
		}},
		clarifier: &fakeClarifier{question: "What would you like to do?"},
	}
	s := newTestService(d)

	reply := s.HandleTurn(context.Background(), "asdf")
	if reply.Message != "What would you like to do?" {
		t.Errorf("reply = %+v", reply)
	}
	if _, _, ok := s.State().TakePending(); !ok {
		t.Error("no pending clarification parked")
	}
}

func TestHandleTurn_RecordsTurn(t *testing.T) {
	rec := &fakeRecorder{}
	d := &deps{
		recorder: rec,
		classifier: &fakeClassifier{byQuery: map[string]intent.Classification{
			"route from Chicago to New York": {
				Intent:     intent.RouteQuery,
				Parameters: intent.Parameters{Origin: "Chicago", Destination: "New York"},
				Confidence: 0.95,
			},
		}},
	}
	s := newTestService(d)
	s.HandleTurn(context.Background(), "route from Chicago to New York")

	deadline := time.After(2 * time.Second)
	for {
		rec.mu.Lock()
		n := len(rec.recs)
		rec.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("turn was never recorded")
		case <-time.After(10 * time.Millisecond):
		}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	got := rec.recs[0]
	if got.Intent != intent.RouteQuery || !got.RequiresUIUpdate || got.UserMessage != "route from Chicago to New York" {
		t.Errorf("record = %+v", got)
	}
}

func TestStreamTurn_GroundedChatStreamsChunks(t *testing.T) {
	d := &deps{llm: &fakeProvider{chunks: []string{"Hel", "lo"}}}
	s := newTestService(d)

	var events []StreamEvent
	err := s.StreamTurn(context.Background(), "hi there", func(ev StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if len(events) != 3 || events[0].Chunk != "Hel" || events[1].Chunk != "lo" || !events[2].Complete {
		t.Errorf("events = %+v", events)
	}
	hist := s.State().History(0)
	if hist[len(hist)-1].Content != "Hello" {
		t.Errorf("history = %+v", hist)
	}
}

func TestStreamTurn_StructuredIntentSendsStatusEvent(t *testing.T) {
	d := &deps{
		classifier: &fakeClassifier{byQuery: map[string]intent.Classification{
			"route from Chicago to New York": {
				Intent:     intent.RouteQuery,
				Parameters: intent.Parameters{Origin: "Chicago", Destination: "New York"},
				Confidence: 0.95,
			},
		}},
	}
	s := newTestService(d)

	var events []StreamEvent
	err := s.StreamTurn(context.Background(), "route from Chicago to New York", func(ev StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Status != "complete" || !events[0].RequiresUIUpdate || events[0].Message == "" {
		t.Errorf("status event = %+v", events[0])
	}
	if !events[1].Complete {
		t.Errorf("final event = %+v", events[1])
	}
}

func TestStreamTurn_DisconnectKeepsPartialInHistory(t *testing.T) {
	rec := &fakeRecorder{}
	d := &deps{
		llm:      &fakeProvider{chunks: []string{"The route ", "passes through Ohio."}},
		recorder: rec,
	}
	s := newTestService(d)

	// The consumer drops after the first chunk.
	var delivered int
	err := s.StreamTurn(context.Background(), "tell me about my trip", func(ev StreamEvent) error {
		delivered++
		if delivered > 1 {
			t.Fatalf("event after disconnect: %+v", ev)
		}
		return errors.New("client went away")
	})
	if err == nil {
		t.Fatal("expected the consumer error to propagate")
	}

	hist := s.State().History(0)
	last := hist[len(hist)-1]
	if last.Role != ai.RoleAssistant || last.Content != "The route " {
		t.Errorf("history = %+v", hist)
	}

	got := waitForRecord(t, rec)
	if got.AssistantMessage != "The route " || got.UserMessage != "tell me about my trip" {
		t.Errorf("record = %+v", got)
	}
}

func TestStreamTurn_LLMFailureRecordsApology(t *testing.T) {
	rec := &fakeRecorder{}
	d := &deps{llm: &fakeProvider{err: errors.New("down")}, recorder: rec}
	s := newTestService(d)

	if err := s.StreamTurn(context.Background(), "hi", func(StreamEvent) error { return nil }); err != nil {
		t.Fatalf("stream error: %v", err)
	}

	got := waitForRecord(t, rec)
	if got.AssistantMessage != apologyReply {
		t.Errorf("record = %+v", got)
	}
}

func waitForRecord(t *testing.T, rec *fakeRecorder) TurnRecord {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		rec.mu.Lock()
		n := len(rec.recs)
		rec.mu.Unlock()
		if n > 0 {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			return rec.recs[0]
		}
		select {
		case <-deadline:
			t.Fatal("turn was never recorded")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStreamTurn_LLMFailureEmitsError(t *testing.T) {
	d := &deps{llm: &fakeProvider{err: errors.New("down")}}
	s := newTestService(d)

	var events []StreamEvent
	err := s.StreamTurn(context.Background(), "hi", func(ev StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if len(events) != 1 || events[0].Error == "" {
		t.Errorf("events = %+v", events)
	}
}
