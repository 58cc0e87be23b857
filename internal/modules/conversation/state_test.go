package conversation

import (
	"testing"

	"mapchat/internal/geo"
	"mapchat/internal/maps"
	"mapchat/internal/modules/clarify"
	"mapchat/internal/modules/intent"
	"mapchat/internal/modules/route"
	"mapchat/internal/overpass"
)

func testPlan() *route.Plan {
	return &route.Plan{
		Origin:      route.Stop{DisplayName: "Chicago, Cook County, Illinois"},
		Destination: route.Stop{DisplayName: "New York, NY"},
		Summary: &maps.RouteSummary{
			DistanceText: "1270.0 km",
			DurationText: "720 minutes",
			Path:         []geo.Point{{Lat: 41.88, Lng: -87.63}, {Lat: 40.71, Lng: -74.01}},
		},
	}
}

func TestState_HistoryWindow(t *testing.T) {
	s := NewState()
	s.AppendUser("one")
	s.AppendAssistant("two")
	s.AppendUser("three")

	got := s.History(2)
	if len(got) != 2 || got[0].Content != "two" || got[1].Content != "three" {
		t.Errorf("history = %+v", got)
	}
	if all := s.History(0); len(all) != 3 {
		t.Errorf("full history = %+v", all)
	}
}

func TestState_SetPlanClearsEnrichment(t *testing.T) {
	s := NewState()
	s.SetPlan(testPlan())
	s.StorePlaces([]overpass.Record{{Name: "Gary", Type: "city"}})
	s.StoreFeatures([]overpass.Record{{Name: "Maumee River", Type: "river"}})

	s.SetPlan(testPlan())
	if _, ok := s.Places(); ok {
		t.Error("places survived a route change")
	}
	if _, ok := s.Features(); ok {
		t.Error("features survived a route change")
	}
}

func TestState_TakePendingIsSingleFlight(t *testing.T) {
	s := NewState()
	s.SetPending(clarify.Context{Topic: clarify.TopicOrigin}, intent.Classification{Intent: intent.RouteQuery})

	cc, cls, ok := s.TakePending()
	if !ok || cc.Topic != clarify.TopicOrigin || cls.Intent != intent.RouteQuery {
		t.Fatalf("pending = %+v / %+v / %v", cc, cls, ok)
	}
	if _, _, ok := s.TakePending(); ok {
		t.Error("pending consumed twice")
	}
}

func TestState_StoreIfAbsentDoesNotOverwrite(t *testing.T) {
	s := NewState()
	s.StorePlaces([]overpass.Record{{Name: "Gary", Type: "city"}})
	s.StorePlacesIfAbsent([]overpass.Record{{Name: "Toledo", Type: "city"}})

	places, ok := s.Places()
	if !ok || len(places) != 1 || places[0].Name != "Gary" {
		t.Errorf("places = %+v", places)
	}

	s.StoreFeaturesIfAbsent([]overpass.Record{{Name: "Maumee River", Type: "river"}})
	features, ok := s.Features()
	if !ok || len(features) != 1 {
		t.Errorf("features = %+v", features)
	}
}

func TestState_Reset(t *testing.T) {
	s := NewState()
	s.AppendUser("hello")
	s.SetPlan(testPlan())
	s.StorePlaces([]overpass.Record{{Name: "Gary", Type: "city"}})
	s.SetPending(clarify.Context{Topic: clarify.TopicOrigin}, intent.Classification{})

	s.Reset(true)
	if len(s.History(0)) != 0 {
		t.Error("history survived reset")
	}
	if _, _, ok := s.TakePending(); ok {
		t.Error("pending survived reset")
	}
	if s.Plan() == nil {
		t.Error("plan should survive reset with keepRoute")
	}
	if _, ok := s.Places(); !ok {
		t.Error("places should survive reset with keepRoute")
	}

	s.Reset(false)
	if s.Plan() != nil {
		t.Error("plan survived full reset")
	}
	if _, ok := s.Places(); ok {
		t.Error("places survived full reset")
	}
}

func TestState_RouteContext(t *testing.T) {
	s := NewState()
	rc := s.RouteContext()
	if rc.HasActiveRoute {
		t.Errorf("route context = %+v", rc)
	}

	plan := testPlan()
	plan.Waypoints = []route.Stop{{DisplayName: "Cleveland, OH"}}
	s.SetPlan(plan)
	s.SetPending(clarify.Context{Topic: clarify.TopicWaypoint}, intent.Classification{})

	rc = s.RouteContext()
	if !rc.HasActiveRoute || rc.Origin != "Chicago, Cook County, Illinois" || rc.Destination != "New York, NY" {
		t.Errorf("route context = %+v", rc)
	}
	if len(rc.Waypoints) != 1 || rc.Waypoints[0] != "Cleveland, OH" {
		t.Errorf("waypoints = %v", rc.Waypoints)
	}
	if rc.PendingTopic != clarify.TopicWaypoint {
		t.Errorf("pending topic = %q", rc.PendingTopic)
	}
}

func TestState_Snapshot(t *testing.T) {
	s := NewState()
	if snap := s.Snapshot(); snap.HasRoute {
		t.Errorf("snapshot = %+v", snap)
	}

	s.SetPlan(testPlan())
	s.StorePlaces([]overpass.Record{{Name: "Gary", Type: "city"}})
	snap := s.Snapshot()
	if !snap.HasRoute || snap.Plan == nil || len(snap.Places) != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}
