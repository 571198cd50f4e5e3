package store

import (
	"database/sql"
	"errors"
	"time"

	"shotdiff/internal/diffstatus"
	"shotdiff/internal/jobstatus"
)

type rowScanner interface {
	Scan(dest ...any) error
}

const bucketColumns = "id, repository_id, name, branch, commit_sha, complete, created_at, updated_at"

func scanBucket(scanner rowScanner) (*Bucket, error) {
	var (
		bucket     Bucket
		complete   int
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&bucket.ID, &bucket.RepositoryID, &bucket.Name, &bucket.Branch, &bucket.Commit, &complete, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	bucket.Complete = complete != 0
	bucket.CreatedAt, _ = parseTimeString(createdRaw)
	bucket.UpdatedAt, _ = parseTimeString(updatedRaw)
	return &bucket, nil
}

const screenshotColumns = "id, bucket_id, name, asset_key, width, height, created_at"

func scanScreenshot(scanner rowScanner) (*Screenshot, error) {
	var (
		shot       Screenshot
		width      sql.NullInt64
		height     sql.NullInt64
		createdRaw string
	)
	if err := scanner.Scan(&shot.ID, &shot.BucketID, &shot.Name, &shot.Key, &width, &height, &createdRaw); err != nil {
		return nil, err
	}
	shot.Width = int(width.Int64)
	shot.Height = int(height.Int64)
	shot.CreatedAt, _ = parseTimeString(createdRaw)
	return &shot, nil
}

const buildColumns = "id, repository_id, number, name, base_bucket_id, compare_bucket_id, job_status, external_id, batch_count, total_batch, error_message, created_at, updated_at"

func scanBuild(scanner rowScanner) (*Build, error) {
	var (
		build        Build
		baseBucket   sql.NullInt64
		statusStr    string
		externalID   sql.NullString
		batchCount   sql.NullInt64
		totalBatch   sql.NullInt64
		errorMessage sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&build.ID,
		&build.RepositoryID,
		&build.Number,
		&build.Name,
		&baseBucket,
		&build.CompareBucketID,
		&statusStr,
		&externalID,
		&batchCount,
		&totalBatch,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	build.BaseBucketID = baseBucket.Int64
	build.JobStatus = jobstatus.Status(statusStr)
	build.ExternalID = externalID.String
	build.BatchCount = int(batchCount.Int64)
	build.TotalBatch = int(totalBatch.Int64)
	build.ErrorMessage = errorMessage.String
	build.CreatedAt, _ = parseTimeString(createdRaw)
	build.UpdatedAt, _ = parseTimeString(updatedRaw)
	return &build, nil
}

const diffColumns = "d.id, d.build_id, d.base_screenshot_id, d.compare_screenshot_id, d.score, d.artifact_key, d.width, d.height, d.job_status, d.validation_status, d.error_message, d.created_at, d.updated_at"

func diffScanTargets(diff *Diff, raw *diffRaw) []any {
	return []any{
		&diff.ID,
		&diff.BuildID,
		&raw.baseID,
		&raw.compareID,
		&raw.score,
		&raw.artifactKey,
		&raw.width,
		&raw.height,
		&raw.status,
		&raw.validation,
		&raw.errorMessage,
		&raw.created,
		&raw.updated,
	}
}

type diffRaw struct {
	baseID       sql.NullInt64
	compareID    sql.NullInt64
	score        sql.NullFloat64
	artifactKey  sql.NullString
	width        sql.NullInt64
	height       sql.NullInt64
	status       string
	validation   sql.NullString
	errorMessage sql.NullString
	created      string
	updated      string
}

func (raw diffRaw) apply(diff *Diff) {
	diff.BaseScreenshotID = raw.baseID.Int64
	diff.CompareScreenshotID = raw.compareID.Int64
	if raw.score.Valid {
		v := raw.score.Float64
		diff.Score = &v
	}
	diff.ArtifactKey = raw.artifactKey.String
	diff.Width = int(raw.width.Int64)
	diff.Height = int(raw.height.Int64)
	diff.JobStatus = jobstatus.Status(raw.status)
	diff.ValidationStatus = raw.validation.String
	diff.ErrorMessage = raw.errorMessage.String
	diff.CreatedAt, _ = parseTimeString(raw.created)
	diff.UpdatedAt, _ = parseTimeString(raw.updated)
}

func scanDiff(scanner rowScanner) (*Diff, error) {
	var (
		diff Diff
		raw  diffRaw
	)
	if err := scanner.Scan(diffScanTargets(&diff, &raw)...); err != nil {
		return nil, err
	}
	raw.apply(&diff)
	return &diff, nil
}

func scanDiffView(scanner rowScanner) (*DiffView, error) {
	var (
		view        DiffView
		raw         diffRaw
		baseName    sql.NullString
		baseKey     sql.NullString
		compareName sql.NullString
		compareKey  sql.NullString
		status      string
	)
	targets := append(diffScanTargets(&view.Diff, &raw), &baseName, &baseKey, &compareName, &compareKey, &status)
	if err := scanner.Scan(targets...); err != nil {
		return nil, err
	}
	raw.apply(&view.Diff)
	view.BaseName = baseName.String
	view.BaseKey = baseKey.String
	view.CompareName = compareName.String
	view.CompareKey = compareKey.String
	view.Status = diffstatus.Status(status)
	return &view, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableID(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullableInt(value int) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func int64Args(values []int64) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
