package overpass

import (
	"fmt"
	"strings"

	"mapchat/internal/geo"
)

const (
	// maxQueryPoints bounds the union size so queries stay within the
	// mirrors' size limits.
	maxQueryPoints      = 20
	fallbackQueryPoints = 5
)

// capQueryPoints thins points to at most max by striding, keeping the
// original order.
func capQueryPoints(points []geo.Point, max int) []geo.Point {
	if len(points) <= max {
		return points
	}
	step := len(points) / max
	if step < 1 {
		step = 1
	}
	capped := make([]geo.Point, 0, max)
	for i := 0; i < len(points) && len(capped) < max; i += step {
		capped = append(capped, points[i])
	}
	return capped
}

func placesQuery(points []geo.Point, radiusM int) string {
	var b strings.Builder
	b.WriteString("[out:json][timeout:90];\n(\n")
	for _, p := range points {
		fmt.Fprintf(&b, "  node[\"place\"~\"city|town|village\"](around:%d,%f,%f);\n", radiusM, p.Lat, p.Lng)
	}
	b.WriteString(");\nout center;")
	return b.String()
}

func simplePlacesQuery(points []geo.Point, radiusM int) string {
	var b strings.Builder
	b.WriteString("[out:json][timeout:60];\n(\n")
	for _, p := range points {
		fmt.Fprintf(&b, "  node[\"place\"~\"city|town|village\"](around:%d,%f,%f);\n", radiusM, p.Lat, p.Lng)
	}
	b.WriteString(");\nout center;")
	return b.String()
}

func featuresQuery(points []geo.Point, radiusM int) string {
	var b strings.Builder
	b.WriteString("[out:json][timeout:120];\n(\n")
	for _, p := range points {
		fmt.Fprintf(&b, "  node(around:%d,%f,%f)[\"natural\"];\n", radiusM, p.Lat, p.Lng)
		fmt.Fprintf(&b, "  way(around:%d,%f,%f)[\"natural\"];\n", radiusM, p.Lat, p.Lng)
		fmt.Fprintf(&b, "  node(around:%d,%f,%f)[\"waterway\"];\n", radiusM, p.Lat, p.Lng)
		fmt.Fprintf(&b, "  way(around:%d,%f,%f)[\"waterway\"];\n", radiusM, p.Lat, p.Lng)
	}
	b.WriteString(");\nout center;")
	return b.String()
}

func simpleFeaturesQuery(points []geo.Point, radiusM int) string {
	var b strings.Builder
	b.WriteString("[out:json][timeout:60];\n(\n")
	for _, p := range points {
		fmt.Fprintf(&b, "  node(around:%d,%f,%f)[\"natural\"];\n", radiusM, p.Lat, p.Lng)
		fmt.Fprintf(&b, "  node(around:%d,%f,%f)[\"waterway\"];\n", radiusM, p.Lat, p.Lng)
	}
	b.WriteString(");\nout center;")
	return b.String()
}
