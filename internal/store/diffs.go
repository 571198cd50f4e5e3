package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"shotdiff/internal/buildstatus"
	"shotdiff/internal/diffstatus"
	"shotdiff/internal/jobstatus"
	"shotdiff/internal/services"
)

// DiffInput pairs screenshots for a new diff. Zero ids stand for an absent
// side.
type DiffInput struct {
	BaseScreenshotID    int64
	CompareScreenshotID int64
}

// DiffResult is what a finished comparison writes back.
type DiffResult struct {
	Score       *float64
	ArtifactKey string
	Width       int
	Height      int
}

var diffClassColumns = diffstatus.Columns{
	BaseID:      "d.base_screenshot_id",
	CompareID:   "d.compare_screenshot_id",
	Score:       "d.score",
	CompareName: "cs.name",
}

const diffJoins = ` FROM screenshot_diffs d
    LEFT JOIN screenshots bs ON bs.id = d.base_screenshot_id
    LEFT JOIN screenshots cs ON cs.id = d.compare_screenshot_id`

// CreateDiffs inserts pending diffs for a build and returns their ids in
// input order.
func (s *Store) CreateDiffs(ctx context.Context, buildID int64, inputs []DiffInput) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin diffs tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ids, err := s.insertDiffs(ctx, tx, buildID, inputs)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit diffs: %w", err)
	}
	return ids, nil
}

func (s *Store) insertDiffs(ctx context.Context, q querier, buildID int64, inputs []DiffInput) ([]int64, error) {
	ts := s.timestamp()
	ids := make([]int64, 0, len(inputs))
	for _, in := range inputs {
		if in.BaseScreenshotID == 0 && in.CompareScreenshotID == 0 {
			return nil, services.Wrap(services.ErrValidation, "store", "create diff", "a diff needs at least one screenshot", nil)
		}
		res, err := q.ExecContext(ctx,
			`INSERT INTO screenshot_diffs (build_id, base_screenshot_id, compare_screenshot_id, job_status, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?)`,
			buildID, nullableID(in.BaseScreenshotID), nullableID(in.CompareScreenshotID), jobstatus.Pending, ts, ts,
		)
		if err != nil {
			return nil, fmt.Errorf("insert diff: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("last insert id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// PlanBuild replaces a build's diffs with inputs and marks the build
// complete in one transaction. The build must be in progress. Re-running it
// after a crash yields the same diff set rather than duplicates.
func (s *Store) PlanBuild(ctx context.Context, buildID int64, inputs []DiffInput) ([]int64, error) {
	var ids []int64
	err := s.withImmediateTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM screenshot_diffs WHERE build_id = ?`, buildID); err != nil {
			return fmt.Errorf("clear diffs: %w", err)
		}
		created, err := s.insertDiffs(ctx, q, buildID, inputs)
		if err != nil {
			return err
		}
		ids = created
		return s.transitionBuild(ctx, q, buildID, jobstatus.Complete, "")
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// GetDiff fetches a diff by identifier.
func (s *Store) GetDiff(ctx context.Context, id int64) (*Diff, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+diffColumns+` FROM screenshot_diffs d WHERE d.id = ?`, id)
	diff, err := scanDiff(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("diff %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get diff: %w", err)
	}
	return diff, nil
}

// ClaimDiff atomically moves a pending diff to progress. It reports false
// when the diff is not pending, for example because another worker took it.
func (s *Store) ClaimDiff(ctx context.Context, id int64) (bool, error) {
	return s.claim(ctx, "screenshot_diffs", id)
}

// PendingDiffIDs returns up to limit pending diff ids, oldest first.
func (s *Store) PendingDiffIDs(ctx context.Context, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM screenshot_diffs WHERE job_status = ? ORDER BY id LIMIT ?`,
		jobstatus.Pending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("pending diffs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CompleteDiff records a finished comparison. Only an in-progress diff can
// complete; anything else yields jobstatus.ErrInvalidTransition.
func (s *Store) CompleteDiff(ctx context.Context, id int64, result DiffResult) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE screenshot_diffs
         SET job_status = ?, score = ?, artifact_key = ?, width = ?, height = ?, error_message = NULL, updated_at = ?
         WHERE id = ? AND job_status = ?`,
		jobstatus.Complete, nullableFloat(result.Score), nullableString(result.ArtifactKey),
		nullableInt(result.Width), nullableInt(result.Height), s.timestamp(),
		id, jobstatus.Progress,
	)
	if err != nil {
		return fmt.Errorf("complete diff: %w", err)
	}
	return s.expectTransition(ctx, res, id, jobstatus.Complete)
}

// FailDiff moves a pending or in-progress diff to error with a reason.
func (s *Store) FailDiff(ctx context.Context, id int64, message string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE screenshot_diffs SET job_status = ?, error_message = ?, updated_at = ?
         WHERE id = ? AND job_status IN (?, ?)`,
		jobstatus.Error, nullableString(message), s.timestamp(),
		id, jobstatus.Pending, jobstatus.Progress,
	)
	if err != nil {
		return fmt.Errorf("fail diff: %w", err)
	}
	return s.expectTransition(ctx, res, id, jobstatus.Error)
}

func (s *Store) expectTransition(ctx context.Context, res sql.Result, id int64, to jobstatus.Status) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	current, err := s.GetDiff(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("diff %d %s -> %s: %w", id, current.JobStatus, to, jobstatus.ErrInvalidTransition)
}

// SetValidationStatus records a reviewer decision on a diff. "unknown" and
// the empty string clear it.
func (s *Store) SetValidationStatus(ctx context.Context, id int64, value string) error {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case buildstatus.ValidationAccepted, buildstatus.ValidationRejected:
	case "", buildstatus.ValidationUnknown:
		value = ""
	default:
		return services.Wrap(services.ErrValidation, "store", "validate diff", fmt.Sprintf("unsupported validation status %q", value), nil)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE screenshot_diffs SET validation_status = ?, updated_at = ? WHERE id = ?`,
		nullableString(value), s.timestamp(), id,
	)
	if err != nil {
		return fmt.Errorf("set validation status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("diff %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListDiffs returns a build's diffs classified and ordered for review:
// failures first, then changed, added, removed and unchanged, by name.
func (s *Store) ListDiffs(ctx context.Context, buildID int64) ([]DiffView, error) {
	query := `SELECT ` + diffColumns + `, bs.name, bs.asset_key, cs.name, cs.asset_key, ` +
		diffstatus.SQLExpr(diffClassColumns) + diffJoins + `
        WHERE d.build_id = ?
        ORDER BY ` + diffstatus.SQLRankExpr(diffClassColumns) + `, COALESCE(cs.name, bs.name), d.id`
	rows, err := s.db.QueryContext(ctx, query, buildID)
	if err != nil {
		return nil, fmt.Errorf("list diffs: %w", err)
	}
	defer rows.Close()

	var views []DiffView
	for rows.Next() {
		view, err := scanDiffView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, rows.Err()
}
