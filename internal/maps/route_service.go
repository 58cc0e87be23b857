package maps

import (
	"context"
	"errors"
	"fmt"

	"googlemaps.github.io/maps"

	"mapchat/internal/geo"
)

// ErrNoRoute is returned when the directions API answers but has no route
// between the given points.
var ErrNoRoute = errors.New("no route found")

// RouteSummary is the computed route: human-readable distance and duration
// plus the full decoded geometry for downstream sampling.
type RouteSummary struct {
	DistanceText string      `json:"distance_text"`
	DurationText string      `json:"duration_text"`
	Polyline     string      `json:"polyline"`
	Path         []geo.Point `json:"polyline_coords"`
}

// RouteService handles interactions with the Google Maps Directions API.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a new RouteService with the given API key.
func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// Route computes a driving route from origin to destination through the
// given waypoints, in order.
func (s *RouteService) Route(ctx context.Context, origin, destination geo.Point, waypoints []geo.Point) (*RouteSummary, error) {
	r := &maps.DirectionsRequest{
		Origin:      formatLatLng(origin),
		Destination: formatLatLng(destination),
		Mode:        maps.TravelModeDriving,
	}
	for _, wp := range waypoints {
		r.Waypoints = append(r.Waypoints, formatLatLng(wp))
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return nil, ErrNoRoute
	}

	route := routes[0]

	var meters int
	var duration float64
	for _, leg := range route.Legs {
		meters += leg.Distance.Meters
		duration += leg.Duration.Minutes()
	}

	decoded, err := route.OverviewPolyline.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode polyline: %w", err)
	}
	path := make([]geo.Point, len(decoded))
	for i, ll := range decoded {
		path[i] = geo.Point{Lat: ll.Lat, Lng: ll.Lng}
	}

	return &RouteSummary{
		DistanceText: fmt.Sprintf("%.1f km", float64(meters)/1000),
		DurationText: fmt.Sprintf("%.0f minutes", duration),
		Polyline:     route.OverviewPolyline.Points,
		Path:         path,
	}, nil
}

func formatLatLng(p geo.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}
