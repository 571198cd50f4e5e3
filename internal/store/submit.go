package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shotdiff/internal/batch"
	"shotdiff/internal/jobstatus"
	"shotdiff/internal/services"
)

// Submission is one uploaded shard of screenshots for a build.
type Submission struct {
	RepositoryID int64
	Name         string
	Branch       string
	Commit       string
	// Number overrides automatic numbering on the first shard.
	Number      *int64
	Screenshots []ScreenshotInput
	Batch       batch.Submission
}

// SubmitBatch records a shard. Non-parallel submissions create a build with
// a complete compare bucket. Parallel shards sharing a nonce append to one
// build; the shard that brings the batch count up to the declared total
// marks the bucket complete. Shards for the same nonce are serialised so
// exactly one of them completes the bucket.
func (s *Store) SubmitBatch(ctx context.Context, sub Submission) (*Build, error) {
	bucketIn := BucketInput{RepositoryID: sub.RepositoryID, Name: sub.Name, Branch: sub.Branch, Commit: sub.Commit}
	if err := bucketIn.validate(); err != nil {
		return nil, err
	}
	if err := sub.Batch.Validate(); err != nil {
		return nil, services.Wrap(services.ErrValidation, "store", "submit batch", "", err)
	}
	if sub.Batch.Parallel {
		unlock := s.batch.Lock(batch.Key(sub.RepositoryID, sub.Batch.ParallelNonce))
		defer unlock()
	}

	var buildID int64
	err := s.withImmediateTx(ctx, func(q querier) error {
		var existing *Build
		if sub.Batch.Parallel {
			found, err := findBuildByExternalID(ctx, q, sub.RepositoryID, sub.Batch.ParallelNonce)
			if err != nil {
				return err
			}
			existing = found
		}
		if existing == nil {
			id, err := s.createSubmittedBuild(ctx, q, sub, bucketIn)
			buildID = id
			return err
		}
		buildID = existing.ID
		return s.appendShard(ctx, q, existing, sub)
	})
	if err != nil {
		return nil, err
	}
	return s.GetBuild(ctx, buildID)
}

func (s *Store) createSubmittedBuild(ctx context.Context, q querier, sub Submission, bucketIn BucketInput) (int64, error) {
	state, err := batch.Apply(batch.State{}, sub.Batch)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "store", "submit batch", "", err)
	}
	bucketID, err := s.insertBucket(ctx, q, bucketIn)
	if err != nil {
		return 0, err
	}
	if err := s.insertScreenshots(ctx, q, bucketID, sub.Screenshots); err != nil {
		return 0, err
	}
	in := BuildInput{
		RepositoryID:    sub.RepositoryID,
		Name:            sub.Name,
		CompareBucketID: bucketID,
		Number:          sub.Number,
		BatchCount:      state.BatchCount,
		TotalBatch:      state.TotalBatch,
	}
	if sub.Batch.Parallel {
		in.ExternalID = sub.Batch.ParallelNonce
	}
	buildID, err := s.insertBuild(ctx, q, in)
	if err != nil {
		return 0, err
	}
	if state.Complete {
		if err := setBucketComplete(ctx, q, bucketID, true, s.timestamp()); err != nil {
			return 0, err
		}
	}
	return buildID, nil
}

func (s *Store) appendShard(ctx context.Context, q querier, build *Build, sub Submission) error {
	if build.JobStatus != jobstatus.Pending {
		return services.Wrap(services.ErrConflict, "store", "submit batch",
			fmt.Sprintf("build %d is %s and no longer accepts batches", build.ID, build.JobStatus), nil)
	}
	bucket, err := getBucket(ctx, q, build.CompareBucketID)
	if err != nil {
		return err
	}
	prev := batch.State{
		Exists:     true,
		BatchCount: build.BatchCount,
		TotalBatch: build.TotalBatch,
		Complete:   bucket.Complete,
	}
	next, err := batch.Apply(prev, sub.Batch)
	if err != nil {
		return services.Wrap(services.ErrValidation, "store", "submit batch", "", err)
	}
	if err := s.insertScreenshots(ctx, q, bucket.ID, sub.Screenshots); err != nil {
		return err
	}
	ts := s.timestamp()
	if _, err := q.ExecContext(ctx,
		`UPDATE builds SET batch_count = ?, total_batch = ?, updated_at = ? WHERE id = ?`,
		nullableInt(next.BatchCount), nullableInt(next.TotalBatch), ts, build.ID,
	); err != nil {
		return fmt.Errorf("update batch counters: %w", err)
	}
	if next.Complete != bucket.Complete {
		return setBucketComplete(ctx, q, bucket.ID, next.Complete, ts)
	}
	return nil
}

func findBuildByExternalID(ctx context.Context, q querier, repositoryID int64, externalID string) (*Build, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+buildColumns+` FROM builds WHERE repository_id = ? AND external_id = ?`,
		repositoryID, externalID,
	)
	build, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find build by external id: %w", err)
	}
	return build, nil
}
