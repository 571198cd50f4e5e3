package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"shotdiff/internal/services"
)

// BucketInput describes a new screenshot bucket.
type BucketInput struct {
	RepositoryID int64
	Name         string
	Branch       string
	Commit       string
	Complete     bool
}

// ScreenshotInput describes one screenshot to attach to a bucket.
type ScreenshotInput struct {
	Name   string
	Key    string
	Width  int
	Height int
}

func (in BucketInput) validate() error {
	switch {
	case in.RepositoryID <= 0:
		return services.Wrap(services.ErrValidation, "store", "create bucket", "repository id must be positive", nil)
	case strings.TrimSpace(in.Name) == "":
		return services.Wrap(services.ErrValidation, "store", "create bucket", "bucket name is required", nil)
	case strings.TrimSpace(in.Branch) == "":
		return services.Wrap(services.ErrValidation, "store", "create bucket", "branch is required", nil)
	case strings.TrimSpace(in.Commit) == "":
		return services.Wrap(services.ErrValidation, "store", "create bucket", "commit is required", nil)
	}
	return nil
}

// CreateBucket inserts a new screenshot bucket.
func (s *Store) CreateBucket(ctx context.Context, in BucketInput) (*Bucket, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	id, err := s.insertBucket(ctx, s.db, in)
	if err != nil {
		return nil, err
	}
	return s.GetBucket(ctx, id)
}

func (s *Store) insertBucket(ctx context.Context, q querier, in BucketInput) (int64, error) {
	ts := s.timestamp()
	res, err := q.ExecContext(ctx,
		`INSERT INTO screenshot_buckets (repository_id, name, branch, commit_sha, complete, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.RepositoryID, strings.TrimSpace(in.Name), strings.TrimSpace(in.Branch), strings.TrimSpace(in.Commit),
		boolToInt(in.Complete), ts, ts,
	)
	if err != nil {
		return 0, fmt.Errorf("insert bucket: %w", err)
	}
	return res.LastInsertId()
}

// GetBucket fetches a bucket by identifier.
func (s *Store) GetBucket(ctx context.Context, id int64) (*Bucket, error) {
	return getBucket(ctx, s.db, id)
}

func getBucket(ctx context.Context, q querier, id int64) (*Bucket, error) {
	row := q.QueryRowContext(ctx, `SELECT `+bucketColumns+` FROM screenshot_buckets WHERE id = ?`, id)
	bucket, err := scanBucket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bucket %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get bucket: %w", err)
	}
	return bucket, nil
}

// SetBucketComplete flips the complete flag on a bucket.
func (s *Store) SetBucketComplete(ctx context.Context, id int64, complete bool) error {
	return setBucketComplete(ctx, s.db, id, complete, s.timestamp())
}

func setBucketComplete(ctx context.Context, q querier, id int64, complete bool, ts string) error {
	res, err := q.ExecContext(ctx,
		`UPDATE screenshot_buckets SET complete = ?, updated_at = ? WHERE id = ?`,
		boolToInt(complete), ts, id,
	)
	if err != nil {
		return fmt.Errorf("update bucket: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("bucket %d: %w", id, ErrNotFound)
	}
	return nil
}

// AddScreenshots attaches screenshots to a bucket. A screenshot whose name
// already exists in the bucket is replaced.
func (s *Store) AddScreenshots(ctx context.Context, bucketID int64, shots []ScreenshotInput) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin screenshots tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := s.insertScreenshots(ctx, tx, bucketID, shots); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) insertScreenshots(ctx context.Context, q querier, bucketID int64, shots []ScreenshotInput) error {
	ts := s.timestamp()
	for _, shot := range shots {
		name := strings.TrimSpace(shot.Name)
		if name == "" || strings.TrimSpace(shot.Key) == "" {
			return services.Wrap(services.ErrValidation, "store", "add screenshots", "screenshot name and key are required", nil)
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO screenshots (bucket_id, name, asset_key, width, height, created_at)
             VALUES (?, ?, ?, ?, ?, ?)
             ON CONFLICT (bucket_id, name) DO UPDATE SET
                 asset_key = excluded.asset_key, width = excluded.width, height = excluded.height`,
			bucketID, name, shot.Key, nullableInt(shot.Width), nullableInt(shot.Height), ts,
		); err != nil {
			return fmt.Errorf("insert screenshot %q: %w", name, err)
		}
	}
	return nil
}

// ListScreenshots returns every screenshot in a bucket ordered by name.
func (s *Store) ListScreenshots(ctx context.Context, bucketID int64) ([]Screenshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+screenshotColumns+` FROM screenshots WHERE bucket_id = ? ORDER BY name, id`, bucketID)
	if err != nil {
		return nil, fmt.Errorf("list screenshots: %w", err)
	}
	defer rows.Close()

	var shots []Screenshot
	for rows.Next() {
		shot, err := scanScreenshot(rows)
		if err != nil {
			return nil, err
		}
		shots = append(shots, *shot)
	}
	return shots, rows.Err()
}

// GetScreenshot fetches a screenshot by identifier.
func (s *Store) GetScreenshot(ctx context.Context, id int64) (*Screenshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+screenshotColumns+` FROM screenshots WHERE id = ?`, id)
	shot, err := scanScreenshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("screenshot %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get screenshot: %w", err)
	}
	return shot, nil
}

// LatestCompleteBucket returns the newest complete bucket with the given
// name and branch in a repository, excluding excludeID. It returns nil when
// none exists.
func (s *Store) LatestCompleteBucket(ctx context.Context, repositoryID int64, name, branch string, excludeID int64) (*Bucket, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bucketColumns+` FROM screenshot_buckets
         WHERE repository_id = ? AND name = ? AND branch = ? AND complete = 1 AND id <> ?
         ORDER BY id DESC LIMIT 1`,
		repositoryID, name, branch, excludeID,
	)
	bucket, err := scanBucket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest complete bucket: %w", err)
	}
	return bucket, nil
}
