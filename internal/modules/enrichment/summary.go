package enrichment

import (
	"fmt"
	"strings"

	"mapchat/internal/overpass"
)

const maxExemplars = 5

// placeOrder fixes the presentation order for settlement types.
var placeOrder = []string{"city", "town", "village"}

var placePlural = map[string]string{
	"city":    "cities",
	"town":    "towns",
	"village": "villages",
}

// SummarizePlaces renders settlement records as one sentence: a count per
// type plus a handful of example names.
func SummarizePlaces(records []overpass.Record) string {
	byType := groupByType(records)

	var parts []string
	for _, typ := range placeOrder {
		names := byType[typ]
		if len(names) == 0 {
			continue
		}
		parts = append(parts, countWithExamples(len(names), plural(typ, len(names)), exemplars(names)))
	}
	if len(parts) == 0 {
		return ""
	}
	return "Along your route I found " + joinList(parts) + "."
}

// SummarizeFeatures renders natural feature records. The type set is open
// (whatever tags the map data carries); unnamed features count toward the
// totals but are never used as examples.
func SummarizeFeatures(records []overpass.Record) string {
	byType := groupByType(records)

	var parts []string
	for _, typ := range typeOrder(records) {
		names := byType[typ]
		named := withoutUnnamed(names)
		parts = append(parts, countWithExamples(len(names), plural(typ, len(names)), exemplars(named)))
	}
	if len(parts) == 0 {
		return ""
	}
	return "Along your route I found " + joinList(parts) + "."
}

func groupByType(records []overpass.Record) map[string][]string {
	byType := make(map[string][]string)
	for _, r := range records {
		byType[r.Type] = append(byType[r.Type], r.Name)
	}
	return byType
}

// typeOrder returns the distinct types in first-seen order.
func typeOrder(records []overpass.Record) []string {
	seen := make(map[string]bool)
	var order []string
	for _, r := range records {
		if !seen[r.Type] {
			seen[r.Type] = true
			order = append(order, r.Type)
		}
	}
	return order
}

func withoutUnnamed(names []string) []string {
	var named []string
	for _, n := range names {
		if n != "unnamed" {
			named = append(named, n)
		}
	}
	return named
}

func exemplars(names []string) []string {
	if len(names) > maxExemplars {
		return names[:maxExemplars]
	}
	return names
}

func countWithExamples(count int, noun string, examples []string) string {
	if len(examples) == 0 {
		return fmt.Sprintf("%d %s", count, noun)
	}
	return fmt.Sprintf("%d %s (including %s)", count, noun, strings.Join(examples, ", "))
}

func plural(typ string, count int) string {
	if count == 1 {
		return typ
	}
	if p, ok := placePlural[typ]; ok {
		return p
	}
	return typ + "s"
}

// joinList joins items as "a", "a and b", or "a, b and c".
func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}
