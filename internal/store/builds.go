package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"shotdiff/internal/jobstatus"
	"shotdiff/internal/services"
)

// BuildInput describes a new build.
type BuildInput struct {
	RepositoryID    int64
	Name            string
	BaseBucketID    int64
	CompareBucketID int64
	// Number overrides automatic numbering when non-nil. Zero is a valid
	// override.
	Number     *int64
	ExternalID string
	BatchCount int
	TotalBatch int
}

// BuildPatch lists the mutable build fields. The build number is never
// patched.
type BuildPatch struct {
	Name         *string
	BaseBucketID *int64
}

func (in BuildInput) validate() error {
	if in.RepositoryID <= 0 {
		return services.Wrap(services.ErrValidation, "store", "create build", "repository id must be positive", nil)
	}
	if in.CompareBucketID <= 0 {
		return services.Wrap(services.ErrValidation, "store", "create build", "compare bucket is required", nil)
	}
	if err := jobstatus.ValidateBucketPair(in.BaseBucketID, in.CompareBucketID); err != nil {
		return services.Wrap(services.ErrValidation, "store", "create build", "", err)
	}
	return nil
}

// CreateBuild inserts a pending build, assigning the next per-repository
// number unless an override is given.
func (s *Store) CreateBuild(ctx context.Context, in BuildInput) (*Build, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	var id int64
	err := s.withImmediateTx(ctx, func(q querier) error {
		var err error
		id, err = s.insertBuild(ctx, q, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetBuild(ctx, id)
}

func (s *Store) insertBuild(ctx context.Context, q querier, in BuildInput) (int64, error) {
	var number int64
	if in.Number != nil {
		number = *in.Number
	} else {
		if err := q.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(number), 0) + 1 FROM builds WHERE repository_id = ?`, in.RepositoryID,
		).Scan(&number); err != nil {
			return 0, fmt.Errorf("next build number: %w", err)
		}
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = "default"
	}
	ts := s.timestamp()
	res, err := q.ExecContext(ctx,
		`INSERT INTO builds (
            repository_id, number, name, base_bucket_id, compare_bucket_id, job_status,
            external_id, batch_count, total_batch, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.RepositoryID, number, name, nullableID(in.BaseBucketID), in.CompareBucketID, jobstatus.Pending,
		nullableString(in.ExternalID), nullableInt(in.BatchCount), nullableInt(in.TotalBatch), ts, ts,
	)
	if err != nil {
		return 0, fmt.Errorf("insert build: %w", err)
	}
	return res.LastInsertId()
}

// GetBuild fetches a build by identifier.
func (s *Store) GetBuild(ctx context.Context, id int64) (*Build, error) {
	return getBuild(ctx, s.db, id)
}

func getBuild(ctx context.Context, q querier, id int64) (*Build, error) {
	row := q.QueryRowContext(ctx, `SELECT `+buildColumns+` FROM builds WHERE id = ?`, id)
	build, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("build %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get build: %w", err)
	}
	return build, nil
}

// GetBuildByNumber returns a repository's build by its number. Numbers can be
// overridden on submit, so the newest build carrying the number wins.
func (s *Store) GetBuildByNumber(ctx context.Context, repositoryID, number int64) (*Build, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+buildColumns+` FROM builds WHERE repository_id = ? AND number = ? ORDER BY id DESC LIMIT 1`,
		repositoryID, number)
	build, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("build #%d of repository %d: %w", number, repositoryID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get build by number: %w", err)
	}
	return build, nil
}

// ListBuilds returns builds newest first. A zero repositoryID lists every
// repository; a non-positive limit means no limit.
func (s *Store) ListBuilds(ctx context.Context, repositoryID int64, limit int) ([]Build, error) {
	query := `SELECT ` + buildColumns + ` FROM builds`
	var args []any
	if repositoryID > 0 {
		query += ` WHERE repository_id = ?`
		args = append(args, repositoryID)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	defer rows.Close()

	var builds []Build
	for rows.Next() {
		build, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		builds = append(builds, *build)
	}
	return builds, rows.Err()
}

// PatchBuild updates mutable build fields.
func (s *Store) PatchBuild(ctx context.Context, id int64, patch BuildPatch) (*Build, error) {
	err := s.withImmediateTx(ctx, func(q querier) error {
		current, err := getBuild(ctx, q, id)
		if err != nil {
			return err
		}
		name := current.Name
		if patch.Name != nil && strings.TrimSpace(*patch.Name) != "" {
			name = strings.TrimSpace(*patch.Name)
		}
		base := current.BaseBucketID
		if patch.BaseBucketID != nil {
			base = *patch.BaseBucketID
		}
		if err := jobstatus.ValidateBucketPair(base, current.CompareBucketID); err != nil {
			return services.Wrap(services.ErrValidation, "store", "patch build", "", err)
		}
		_, err = q.ExecContext(ctx,
			`UPDATE builds SET name = ?, base_bucket_id = ?, updated_at = ? WHERE id = ?`,
			name, nullableID(base), s.timestamp(), id,
		)
		if err != nil {
			return fmt.Errorf("patch build: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetBuild(ctx, id)
}

// TransitionBuild moves a build to a new job status, rejecting transitions
// the state machine does not allow. message is recorded for error states.
func (s *Store) TransitionBuild(ctx context.Context, id int64, to jobstatus.Status, message string) error {
	return s.withImmediateTx(ctx, func(q querier) error {
		return s.transitionBuild(ctx, q, id, to, message)
	})
}

func (s *Store) transitionBuild(ctx context.Context, q querier, id int64, to jobstatus.Status, message string) error {
	current, err := getBuild(ctx, q, id)
	if err != nil {
		return err
	}
	if _, err := jobstatus.Transition(current.JobStatus, to); err != nil {
		return fmt.Errorf("build %d: %w", id, err)
	}
	if _, err := q.ExecContext(ctx,
		`UPDATE builds SET job_status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		to, nullableString(message), s.timestamp(), id,
	); err != nil {
		return fmt.Errorf("update build status: %w", err)
	}
	return nil
}

// ClaimNextBuild moves the oldest pending build whose compare bucket is
// complete to progress and returns it. It returns nil when nothing is ready.
func (s *Store) ClaimNextBuild(ctx context.Context) (*Build, error) {
	for attempt := 0; attempt < 3; attempt++ {
		var id int64
		err := s.db.QueryRowContext(ctx,
			`SELECT b.id FROM builds b
             JOIN screenshot_buckets c ON c.id = b.compare_bucket_id
             WHERE b.job_status = ? AND c.complete = 1
             ORDER BY b.id LIMIT 1`,
			jobstatus.Pending,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("select pending build: %w", err)
		}
		claimed, err := s.claim(ctx, "builds", id)
		if err != nil {
			return nil, err
		}
		if claimed {
			return s.GetBuild(ctx, id)
		}
	}
	return nil, nil
}

// claim atomically moves a pending row to progress. It reports false when
// another worker won the race.
func (s *Store) claim(ctx context.Context, table string, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE `+table+` SET job_status = ?, updated_at = ? WHERE id = ? AND job_status = ?`,
		jobstatus.Progress, s.timestamp(), id, jobstatus.Pending,
	)
	if err != nil {
		return false, fmt.Errorf("claim %s %d: %w", table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// AbortBuild marks a build aborted and aborts its diffs that have not
// started yet.
func (s *Store) AbortBuild(ctx context.Context, id int64) error {
	return s.withImmediateTx(ctx, func(q querier) error {
		if err := s.transitionBuild(ctx, q, id, jobstatus.Aborted, ""); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx,
			`UPDATE screenshot_diffs SET job_status = ?, updated_at = ? WHERE build_id = ? AND job_status = ?`,
			jobstatus.Aborted, s.timestamp(), id, jobstatus.Pending,
		); err != nil {
			return fmt.Errorf("abort diffs: %w", err)
		}
		return nil
	})
}
