package store

import (
	"errors"
	"time"

	"shotdiff/internal/diffstatus"
	"shotdiff/internal/jobstatus"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// Bucket is a named, branch/commit-scoped set of screenshots from one run.
type Bucket struct {
	ID           int64
	RepositoryID int64
	Name         string
	Branch       string
	Commit       string
	Complete     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Screenshot is one captured image inside a bucket.
type Screenshot struct {
	ID        int64
	BucketID  int64
	Name      string
	Key       string
	Width     int
	Height    int
	CreatedAt time.Time
}

// Build compares a compare bucket against an optional base bucket. Zero
// values stand for SQL NULL on BaseBucketID, ExternalID, BatchCount and
// TotalBatch.
type Build struct {
	ID              int64
	RepositoryID    int64
	Number          int64
	Name            string
	BaseBucketID    int64
	CompareBucketID int64
	JobStatus       jobstatus.Status
	ExternalID      string
	BatchCount      int
	TotalBatch      int
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Diff is the comparison of one screenshot pair. Zero screenshot ids stand
// for an absent side; at least one is always set.
type Diff struct {
	ID                  int64
	BuildID             int64
	BaseScreenshotID    int64
	CompareScreenshotID int64
	Score               *float64
	ArtifactKey         string
	Width               int
	Height              int
	JobStatus           jobstatus.Status
	ValidationStatus    string
	ErrorMessage        string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// DiffView is a Diff joined with its screenshots and classified in SQL.
type DiffView struct {
	Diff
	BaseName    string
	BaseKey     string
	CompareName string
	CompareKey  string
	Status      diffstatus.Status
}

// Name returns the screenshot name shared by the pair.
func (v DiffView) Name() string {
	if v.CompareName != "" {
		return v.CompareName
	}
	return v.BaseName
}

// Stats counts builds and diffs by persisted job status.
type Stats struct {
	Builds map[jobstatus.Status]int
	Diffs  map[jobstatus.Status]int
}
