package buildstatus

import (
	"time"

	"shotdiff/internal/jobstatus"
)

// Status computes the effective status of a build.
//
// Until the build's own job completes, its own (expiry-adjusted) status wins
// and children are ignored; an active own job is reported as pending. Once it
// completes, children are reduced: any error → error, any pending or progress
// → progress, otherwise complete.
func Status(build BuildSnapshot, children []jobstatus.Status, now time.Time, policy jobstatus.Policy) jobstatus.Status {
	switch build.JobStatus {
	case jobstatus.Aborted:
		return jobstatus.Aborted
	case jobstatus.Error:
		return jobstatus.Error
	case jobstatus.Pending, jobstatus.Progress:
		if jobstatus.Effective(build.JobStatus, build.CreatedAt, now, policy) == jobstatus.Expired {
			return jobstatus.Expired
		}
		return jobstatus.Pending
	case jobstatus.Complete:
		return reduceChildren(children)
	default:
		return build.JobStatus
	}
}

func reduceChildren(children []jobstatus.Status) jobstatus.Status {
	var hasPending, hasProgress bool
	for _, child := range children {
		switch child {
		case jobstatus.Error:
			return jobstatus.Error
		case jobstatus.Pending:
			hasPending = true
		case jobstatus.Progress:
			hasProgress = true
		}
	}
	if hasPending || hasProgress {
		return jobstatus.Progress
	}
	return jobstatus.Complete
}

// Statuses evaluates Status for many builds, preserving input order.
func Statuses(inputs []Input, now time.Time, policy jobstatus.Policy) []jobstatus.Status {
	out := make([]jobstatus.Status, len(inputs))
	for i, input := range inputs {
		children := make([]jobstatus.Status, len(input.Diffs))
		for j, diff := range input.Diffs {
			children[j] = diff.JobStatus
		}
		out[i] = Status(input.Build, children, now, policy)
	}
	return out
}
