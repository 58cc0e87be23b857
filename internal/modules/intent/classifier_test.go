package intent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mapchat/internal/ai"
)

// fakeProvider replays a canned reply or error.
type fakeProvider struct {
	reply string
	err   error

	lastMessages []ai.Message
	lastOpts     ai.ChatOptions
}

func (f *fakeProvider) Chat(ctx context.Context, messages []ai.Message, opts ai.ChatOptions) (string, error) {
	f.lastMessages = messages
	f.lastOpts = opts
	return f.reply, f.err
}

func (f *fakeProvider) StreamChat(ctx context.Context, messages []ai.Message, opts ai.ChatOptions, emit func(string) error) error {
	reply, err := f.Chat(ctx, messages, opts)
	if err != nil {
		return err
	}
	return emit(reply)
}

func (f *fakeProvider) Close() {}

func TestClassify_PlainJSON(t *testing.T) {
	fake := &fakeProvider{reply: `{
		"intent": "ROUTE_QUERY",
		"parameters": {"origin": "Chicago", "destination": "New York"},
		"confidence": 0.95,
		"requires_clarification": false
	}`}
	c := NewClassifier(fake)

	got := c.Classify(context.Background(), "How do I get from Chicago to New York?", RouteContext{})
	if got.Intent != RouteQuery {
		t.Errorf("intent = %q", got.Intent)
	}
	if got.Parameters.Origin != "Chicago" || got.Parameters.Destination != "New York" {
		t.Errorf("parameters = %+v", got.Parameters)
	}
	if got.RequiresClarification {
		t.Error("unexpected clarification flag")
	}
	if got.OriginalQuery != "How do I get from Chicago to New York?" {
		t.Errorf("original query = %q", got.OriginalQuery)
	}
	if !fake.lastOpts.JSONResponse {
		t.Error("classifier should request a JSON response")
	}
}

func TestClassify_JSONEmbeddedInProse(t *testing.T) {
	fake := &fakeProvider{reply: "Sure! Here is the classification:\n```json\n" +
		`{"intent": "ADD_WAYPOINT", "parameters": {"waypoint": "Denver"}, "confidence": 0.8, "requires_clarification": false}` +
		"\n```\nLet me know if you need anything else."}
	c := NewClassifier(fake)

	got := c.Classify(context.Background(), "stop in Denver", RouteContext{})
	if got.Intent != AddWaypoint || got.Parameters.Waypoint != "Denver" {
		t.Errorf("classification = %+v", got)
	}
}

func TestClassify_MalformedFallsBackToUnknown(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"no json at all", "I cannot classify that."},
		{"broken json", `{"intent": "ROUTE_QUERY", "parameters": {`},
		{"empty reply", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(&fakeProvider{reply: tt.reply})
			got := c.Classify(context.Background(), "gibberish", RouteContext{})
			if got.Intent != Unknown {
				t.Errorf("intent = %q, want UNKNOWN", got.Intent)
			}
			if got.Confidence != 0 {
				t.Errorf("confidence = %f, want 0", got.Confidence)
			}
			if !got.RequiresClarification {
				t.Error("fallback must request clarification")
			}
			if got.ClarificationQuestion == "" {
				t.Error("fallback must carry a question")
			}
		})
	}
}

func TestClassify_ProviderErrorFallsBack(t *testing.T) {
	c := NewClassifier(&fakeProvider{err: errors.New("connection refused")})
	got := c.Classify(context.Background(), "route to Boston", RouteContext{})
	if got.Intent != Unknown || !got.RequiresClarification {
		t.Errorf("classification = %+v", got)
	}
	if got.OriginalQuery != "route to Boston" {
		t.Errorf("original query = %q", got.OriginalQuery)
	}
}

func TestClassify_PromptCarriesRouteContext(t *testing.T) {
	fake := &fakeProvider{reply: `{"intent": "GENERAL_QUERY", "parameters": {}, "confidence": 0.9, "requires_clarification": false}`}
	c := NewClassifier(fake)

	c.Classify(context.Background(), "how long is it?", RouteContext{
		HasActiveRoute: true,
		Origin:         "Chicago, Cook County, Illinois",
		Destination:    "New York, NY",
		Waypoints:      []string{"Cleveland, OH"},
		PendingTopic:   "",
	})

	system := fake.lastMessages[0].Content
	for _, want := range []string{"Chicago, Cook County, Illinois", "New York, NY", "Cleveland, OH"} {
		if !strings.Contains(system, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if fake.lastMessages[1].Content != "how long is it?" {
		t.Errorf("user message = %q", fake.lastMessages[1].Content)
	}
}

func TestValidateParameters(t *testing.T) {
	tests := []struct {
		name    string
		intent  string
		params  Parameters
		wantOK  bool
		wantMsg string
	}{
		{"route with both ends", RouteQuery, Parameters{Origin: "A", Destination: "B"}, true, ""},
		{"route missing origin", RouteQuery, Parameters{Destination: "B"}, false, "Please specify an origin location."},
		{"route missing destination", RouteQuery, Parameters{Origin: "A"}, false, "Please specify a destination location."},
		{"add waypoint ok", AddWaypoint, Parameters{Waypoint: "Denver"}, true, ""},
		{"add waypoint missing", AddWaypoint, Parameters{}, false, "Please specify a location to add as a waypoint."},
		{"remove waypoint missing", RemoveWaypoint, Parameters{}, false, "Please specify which waypoint to remove."},
		{"places needs no params", PlacesQuery, Parameters{}, true, ""},
		{"features needs no params", FeaturesQuery, Parameters{}, true, ""},
		{"general ok", GeneralQuery, Parameters{}, true, ""},
		{"unknown label rejected", "TELEPORT", Parameters{}, false, "Unknown intent: TELEPORT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, msg := ValidateParameters(tt.intent, tt.params)
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
			if msg != tt.wantMsg {
				t.Errorf("msg = %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}
