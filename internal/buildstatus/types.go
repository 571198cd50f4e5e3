package buildstatus

import (
	"time"

	"shotdiff/internal/jobstatus"
)

// Conclusion is the build-level verdict on visual differences. The empty
// value means no conclusion is available yet.
type Conclusion string

const (
	ConclusionNone         Conclusion = ""
	ConclusionStable       Conclusion = "stable"
	ConclusionDiffDetected Conclusion = "diffDetected"
)

// ReviewStatus aggregates human validation across detected differences. The
// empty value means undecided or not applicable.
type ReviewStatus string

const (
	ReviewNone     ReviewStatus = ""
	ReviewAccepted ReviewStatus = "accepted"
	ReviewRejected ReviewStatus = "rejected"
)

// Validation values recorded on individual diffs.
const (
	ValidationAccepted = "accepted"
	ValidationRejected = "rejected"
	ValidationUnknown  = "unknown"
)

// BuildSnapshot is the subset of a build the reductions need.
type BuildSnapshot struct {
	JobStatus jobstatus.Status
	CreatedAt time.Time
}

// DiffSnapshot is the subset of a screenshot diff the reductions need.
type DiffSnapshot struct {
	JobStatus        jobstatus.Status
	Score            *float64
	ValidationStatus string
}

// HasDifference reports whether the diff carries a positive score.
func (d DiffSnapshot) HasDifference() bool {
	return d.Score != nil && *d.Score > 0
}

// Input pairs one build with its diffs for bulk evaluation.
type Input struct {
	Build BuildSnapshot
	Diffs []DiffSnapshot
}

// Summary is the fully derived state of one build.
type Summary struct {
	Status       jobstatus.Status
	Conclusion   Conclusion
	ReviewStatus ReviewStatus
}
