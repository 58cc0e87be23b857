package geo

// SampleInterval thins a polyline so that consecutive kept points are at
// least intervalKm apart. The first point is always kept, and the final
// point is appended even when it falls short of the interval so the route
// endpoint is never lost.
func SampleInterval(points []Point, intervalKm float64) []Point {
	if len(points) == 0 {
		return nil
	}

	sampled := []Point{points[0]}
	last := points[0]

	for _, p := range points[1:] {
		if HaversineKm(last, p) >= intervalKm {
			sampled = append(sampled, p)
			last = p
		}
	}

	final := points[len(points)-1]
	if sampled[len(sampled)-1] != final {
		sampled = append(sampled, final)
	}

	return sampled
}

// SampleNth keeps every nth point starting from the first.
func SampleNth(points []Point, n int) []Point {
	if n <= 1 || len(points) == 0 {
		return points
	}
	sampled := make([]Point, 0, len(points)/n+1)
	for i := 0; i < len(points); i += n {
		sampled = append(sampled, points[i])
	}
	return sampled
}
