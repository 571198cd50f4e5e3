// Package diffstatus classifies a single screenshot pair as added, removed,
// unchanged, changed or failure.
//
// The classification exists twice: as the in-process Classify predicate and
// as an equivalent SQLite CASE expression used for bulk sorting and
// filtering. Both are built from the same failure marker list.
package diffstatus

import (
	"strings"
)

// Status is the display classification of a screenshot diff.
type Status string

const (
	Failure   Status = "failure"
	Changed   Status = "changed"
	Added     Status = "added"
	Removed   Status = "removed"
	Unchanged Status = "unchanged"
)

// failureMarkers are the filename fragments test runners append to
// screenshots captured on a failed test.
var failureMarkers = map[string]string{
	"cypress":    " (failed).",
	"playwright": "-failed-",
}

var markerOrder = []string{"cypress", "playwright"}

var rankByStatus = map[Status]int{
	Failure:   0,
	Changed:   1,
	Added:     2,
	Removed:   3,
	Unchanged: 4,
}

// Classify derives the status of one pair. score is nil when the diff engine
// has not produced a result.
func Classify(hasBase, hasCompare bool, score *float64, compareName string) Status {
	if !hasCompare {
		return Removed
	}
	if !hasBase {
		if IsFailureScreenshot(compareName) {
			return Failure
		}
		return Added
	}
	if score != nil && *score > 0 {
		return Changed
	}
	return Unchanged
}

// IsFailureScreenshot reports whether name carries a known failure marker.
func IsFailureScreenshot(name string) bool {
	for _, runner := range markerOrder {
		if strings.Contains(name, failureMarkers[runner]) {
			return true
		}
	}
	return false
}

// Rank orders statuses for display, most actionable first.
func Rank(status Status) int {
	if rank, ok := rankByStatus[status]; ok {
		return rank
	}
	return len(rankByStatus)
}

// AllStatuses returns every status in rank order.
func AllStatuses() []Status {
	return []Status{Failure, Changed, Added, Removed, Unchanged}
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := rankByStatus[status]
	return status, ok
}
