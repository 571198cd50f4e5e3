package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ScreenshotRef names an uploaded asset inside a submission.
type ScreenshotRef struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// SubmissionRequest is one shard of screenshots for a build.
type SubmissionRequest struct {
	RepositoryID  int64           `json:"repositoryId"`
	Commit        string          `json:"commit"`
	Branch        string          `json:"branch"`
	Name          string          `json:"name"`
	Number        *int64          `json:"number,omitempty"`
	Screenshots   []ScreenshotRef `json:"screenshots"`
	Parallel      bool            `json:"parallel"`
	ParallelNonce string          `json:"parallelNonce,omitempty"`
	ParallelTotal int             `json:"parallelTotal,omitempty"`
}

// BuildRef identifies a build for clients.
type BuildRef struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

// SubmissionResponse answers a submission.
type SubmissionResponse struct {
	Build BuildRef `json:"build"`
}

// Build describes a build with its derived state.
type Build struct {
	ID              int64   `json:"id"`
	RepositoryID    int64   `json:"repositoryId"`
	Number          int64   `json:"number"`
	Name            string  `json:"name"`
	URL             string  `json:"url"`
	BaseBucketID    *int64  `json:"baseBucketId"`
	CompareBucketID int64   `json:"compareBucketId"`
	JobStatus       string  `json:"jobStatus"`
	Status          string  `json:"status"`
	Conclusion      *string `json:"conclusion"`
	ReviewStatus    *string `json:"reviewStatus"`
	BatchCount      int     `json:"batchCount,omitempty"`
	TotalBatch      int     `json:"totalBatch,omitempty"`
	ErrorMessage    string  `json:"errorMessage,omitempty"`
	CreatedAt       string  `json:"createdAt,omitempty"`
	UpdatedAt       string  `json:"updatedAt,omitempty"`
}

// Diff describes one screenshot comparison.
type Diff struct {
	ID               int64    `json:"id"`
	BuildID          int64    `json:"buildId"`
	Name             string   `json:"name"`
	Status           string   `json:"status"`
	JobStatus        string   `json:"jobStatus"`
	Score            *float64 `json:"score"`
	Width            int      `json:"width,omitempty"`
	Height           int      `json:"height,omitempty"`
	BaseURL          string   `json:"baseUrl,omitempty"`
	CompareURL       string   `json:"compareUrl,omitempty"`
	DiffURL          string   `json:"diffUrl,omitempty"`
	ValidationStatus *string  `json:"validationStatus"`
	ErrorMessage     string   `json:"errorMessage,omitempty"`
}

// BuildListResponse wraps a collection of builds.
type BuildListResponse struct {
	Builds []Build `json:"builds"`
}

// BuildResponse wraps a single build.
type BuildResponse struct {
	Build Build `json:"build"`
}

// DiffListResponse wraps the diffs of a build in review order.
type DiffListResponse struct {
	Diffs []Diff `json:"diffs"`
}

// ValidationRequest records a reviewer decision on a diff.
type ValidationRequest struct {
	Status string `json:"status"`
}

// AssetResponse answers an upload.
type AssetResponse struct {
	Key string `json:"key"`
	URL string `json:"url,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running       bool           `json:"running"`
	DiffWorkers   int            `json:"diffWorkers"`
	BuildsHandled int            `json:"buildsHandled"`
	DiffsHandled  int            `json:"diffsHandled"`
	LastBuildID   int64          `json:"lastBuildId,omitempty"`
	LastDiffID    int64          `json:"lastDiffId,omitempty"`
	LastError     string         `json:"lastError,omitempty"`
	BuildStats    map[string]int `json:"buildStats"`
	DiffStats     map[string]int `json:"diffStats"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	AssetDir     string         `json:"assetDir"`
	ExpiryMode   string         `json:"expiryMode"`
	Workflow     WorkflowStatus `json:"workflow"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
