package overpass

import "errors"

// ErrUnavailable is returned when every endpoint, including the simplified
// fallback pass, failed to produce a response. An empty result with a nil
// error means the mirrors answered but nothing matched.
var ErrUnavailable = errors.New("overpass: all endpoints unavailable")

// Record is a normalized map element: a settlement or a natural feature.
type Record struct {
	Name string  `json:"name"`
	Type string  `json:"type"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// element mirrors the wire shape of an Overpass API element. Ways carry
// their coordinates under "center" (from `out center`), nodes inline.
type element struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Center *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"center"`
	Tags map[string]string `json:"tags"`
}

type apiResponse struct {
	Elements []element `json:"elements"`
}

func (e element) coords() (float64, float64) {
	if e.Lat != 0 || e.Lon != 0 {
		return e.Lat, e.Lon
	}
	if e.Center != nil {
		return e.Center.Lat, e.Center.Lon
	}
	return 0, 0
}

// normalizePlaces keeps named settlements only, deduplicated on (name, type)
// with the first occurrence winning.
func normalizePlaces(elements []element) []Record {
	seen := make(map[string]struct{}, len(elements))
	var places []Record

	for _, elem := range elements {
		name := elem.Tags["name"]
		placeType := elem.Tags["place"]
		if name == "" {
			continue
		}
		key := name + "\x00" + placeType
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		lat, lon := elem.coords()
		places = append(places, Record{Name: name, Type: placeType, Lat: lat, Lon: lon})
	}

	return places
}

// normalizeFeatures keeps natural and waterway elements. Nameless features
// are kept under the sentinel name "unnamed" as long as they carry
// coordinates; duplicates on (name, type) collapse to the first occurrence.
func normalizeFeatures(elements []element) []Record {
	seen := make(map[string]struct{}, len(elements))
	var features []Record

	for _, elem := range elements {
		featureType := elem.Tags["natural"]
		if featureType == "" {
			featureType = elem.Tags["waterway"]
		}
		if featureType == "" {
			continue
		}

		name := elem.Tags["name"]
		lat, lon := elem.coords()
		if name == "" && lat == 0 && lon == 0 {
			continue
		}
		if name == "" {
			name = "unnamed"
		}

		key := name + "\x00" + featureType
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		features = append(features, Record{Name: name, Type: featureType, Lat: lat, Lon: lon})
	}

	return features
}
