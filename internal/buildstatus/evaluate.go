package buildstatus

import (
	"time"

	"shotdiff/internal/jobstatus"
)

// Evaluate runs the three phases (statuses, conclusions, review statuses)
// over many builds and returns one Summary per input, in order.
func Evaluate(inputs []Input, now time.Time, policy jobstatus.Policy) []Summary {
	statuses := Statuses(inputs, now, policy)
	conclusions := Conclusions(inputs, statuses)
	reviews := ReviewStatuses(inputs, conclusions)

	out := make([]Summary, len(inputs))
	for i := range inputs {
		out[i] = Summary{
			Status:       statuses[i],
			Conclusion:   conclusions[i],
			ReviewStatus: reviews[i],
		}
	}
	return out
}
