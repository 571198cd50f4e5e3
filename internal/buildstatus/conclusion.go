package buildstatus

import "shotdiff/internal/jobstatus"

// ConclusionFor derives the verdict for a build whose status is known. Builds
// that are not complete have no conclusion.
func ConclusionFor(status jobstatus.Status, diffs []DiffSnapshot) Conclusion {
	if status != jobstatus.Complete {
		return ConclusionNone
	}
	for _, diff := range diffs {
		if diff.HasDifference() {
			return ConclusionDiffDetected
		}
	}
	return ConclusionStable
}

// Conclusions evaluates ConclusionFor in bulk using precomputed statuses.
// A missing status yields no conclusion.
func Conclusions(inputs []Input, statuses []jobstatus.Status) []Conclusion {
	out := make([]Conclusion, len(inputs))
	for i, input := range inputs {
		if i >= len(statuses) {
			continue
		}
		out[i] = ConclusionFor(statuses[i], input.Diffs)
	}
	return out
}

// ReviewStatusFor aggregates validation across the diffs with a positive
// score. Only diff-detected builds carry a review status.
func ReviewStatusFor(conclusion Conclusion, diffs []DiffSnapshot) ReviewStatus {
	if conclusion != ConclusionDiffDetected {
		return ReviewNone
	}
	changed := 0
	accepted := 0
	for _, diff := range diffs {
		if !diff.HasDifference() {
			continue
		}
		changed++
		switch diff.ValidationStatus {
		case ValidationRejected:
			return ReviewRejected
		case ValidationAccepted:
			accepted++
		}
	}
	if changed > 0 && accepted == changed {
		return ReviewAccepted
	}
	return ReviewNone
}

// ReviewStatuses evaluates ReviewStatusFor in bulk using precomputed
// conclusions.
func ReviewStatuses(inputs []Input, conclusions []Conclusion) []ReviewStatus {
	out := make([]ReviewStatus, len(inputs))
	for i, input := range inputs {
		if i >= len(conclusions) {
			continue
		}
		out[i] = ReviewStatusFor(conclusions[i], input.Diffs)
	}
	return out
}
