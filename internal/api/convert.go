package api

import (
	"sort"
	"time"

	"shotdiff/internal/buildstatus"
	"shotdiff/internal/jobstatus"
	"shotdiff/internal/store"
	"shotdiff/internal/workflow"
)

// URLResolver maps asset keys to public URLs.
type URLResolver interface {
	PublicURL(key string) (string, bool)
}

// FromBuild converts a build and its derived summary into a DTO.
func FromBuild(build *store.Build, summary buildstatus.Summary, url string) Build {
	if build == nil {
		return Build{}
	}
	dto := Build{
		ID:              build.ID,
		RepositoryID:    build.RepositoryID,
		Number:          build.Number,
		Name:            build.Name,
		URL:             url,
		CompareBucketID: build.CompareBucketID,
		JobStatus:       string(build.JobStatus),
		Status:          string(summary.Status),
		BatchCount:      build.BatchCount,
		TotalBatch:      build.TotalBatch,
		ErrorMessage:    build.ErrorMessage,
		CreatedAt:       formatTime(build.CreatedAt),
		UpdatedAt:       formatTime(build.UpdatedAt),
	}
	if build.BaseBucketID != 0 {
		base := build.BaseBucketID
		dto.BaseBucketID = &base
	}
	if summary.Conclusion != buildstatus.ConclusionNone {
		conclusion := string(summary.Conclusion)
		dto.Conclusion = &conclusion
	}
	if summary.ReviewStatus != buildstatus.ReviewNone {
		review := string(summary.ReviewStatus)
		dto.ReviewStatus = &review
	}
	return dto
}

// FromDiffView converts a classified diff into a DTO. Active diffs older
// than the policy threshold are reported as expired.
func FromDiffView(view store.DiffView, urls URLResolver, now time.Time, policy jobstatus.Policy) Diff {
	dto := Diff{
		ID:           view.ID,
		BuildID:      view.BuildID,
		Name:         view.Name(),
		Status:       string(view.Status),
		JobStatus:    string(jobstatus.Effective(view.JobStatus, view.CreatedAt, now, policy)),
		Score:        view.Score,
		Width:        view.Width,
		Height:       view.Height,
		ErrorMessage: view.ErrorMessage,
	}
	if view.ValidationStatus != "" {
		validation := view.ValidationStatus
		dto.ValidationStatus = &validation
	}
	if urls != nil {
		dto.BaseURL = publicURL(urls, view.BaseKey)
		dto.CompareURL = publicURL(urls, view.CompareKey)
		dto.DiffURL = publicURL(urls, view.ArtifactKey)
	}
	return dto
}

// FromStatusSummary converts workflow diagnostics into a DTO.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	return WorkflowStatus{
		Running:       summary.Running,
		DiffWorkers:   summary.DiffWorkers,
		BuildsHandled: summary.BuildsHandled,
		DiffsHandled:  summary.DiffsHandled,
		LastBuildID:   summary.LastBuildID,
		LastDiffID:    summary.LastDiffID,
		LastError:     summary.LastError,
		BuildStats:    MergeStats(summary.BuildStats),
		DiffStats:     MergeStats(summary.DiffStats),
	}
}

// MergeStats keys counts by status string and fills in every persisted
// status so clients see zeros rather than missing keys.
func MergeStats(stats map[jobstatus.Status]int) map[string]int {
	out := make(map[string]int)
	for _, status := range jobstatus.AllStatuses() {
		out[string(status)] = stats[status]
	}
	return out
}

// StatusKeys returns the keys of a stats map in a stable order.
func StatusKeys(stats map[string]int) []string {
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func publicURL(urls URLResolver, key string) string {
	if key == "" {
		return ""
	}
	url, ok := urls.PublicURL(key)
	if !ok {
		return ""
	}
	return url
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// ParseTime parses an API timestamp; invalid input yields the zero time.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}
