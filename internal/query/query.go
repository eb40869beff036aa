// Package query derives read-only views from a record table snapshot. None
// of the functions mutate their input.
package query

import (
	"sort"

	"github.com/mkusaka/test-tracker/internal/record"
)

// All is the filter value that disables a predicate.
const All = "All"

// Count is one category and how many records fall into it.
type Count struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// CountBy groups records by the value of field. The result is sorted by
// descending count; ties keep the order in which categories first appear.
func CountBy(t record.Table, field record.Field) []Count {
	index := map[string]int{}
	var counts []Count
	for _, r := range t {
		v := r.Value(field)
		i, ok := index[v]
		if !ok {
			i = len(counts)
			index[v] = i
			counts = append(counts, Count{Category: v})
		}
		counts[i].Count++
	}
	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})
	return counts
}

// Predicates maps a field to the exact value it must have.
type Predicates map[record.Field]string

// Filter returns the records matching every active predicate, in their
// original order. An empty value or All disables that predicate.
func Filter(t record.Table, p Predicates) record.Table {
	out := record.Table{}
	for _, r := range t {
		if matches(r, p) {
			out = append(out, r)
		}
	}
	return out
}

func matches(r record.Record, p Predicates) bool {
	for f, want := range p {
		if want == "" || want == All {
			continue
		}
		if r.Value(f) != want {
			return false
		}
	}
	return true
}

// Distinct lists the values of field in first-seen order.
func Distinct(t record.Table, field record.Field) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range t {
		v := r.Value(field)
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// Rate is n as a percentage of total, and 0 when total is 0.
func Rate(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
