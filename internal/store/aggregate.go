package store

import (
	"context"
	"fmt"

	"shotdiff/internal/buildstatus"
	"shotdiff/internal/jobstatus"
)

// BuildInputs loads the snapshots the status reductions need for each build
// id, in input order, using one query per table.
func (s *Store) BuildInputs(ctx context.Context, ids []int64) ([]buildstatus.Input, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(ids))

	builds := make(map[int64]buildstatus.BuildSnapshot, len(ids))
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_status, created_at FROM builds WHERE id IN (`+placeholders+`)`, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("load builds: %w", err)
	}
	for rows.Next() {
		var (
			id         int64
			status     string
			createdRaw string
		)
		if err := rows.Scan(&id, &status, &createdRaw); err != nil {
			rows.Close()
			return nil, err
		}
		created, _ := parseTimeString(createdRaw)
		builds[id] = buildstatus.BuildSnapshot{JobStatus: jobstatus.Status(status), CreatedAt: created}
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	diffs := make(map[int64][]buildstatus.DiffSnapshot, len(ids))
	rows, err = s.db.QueryContext(ctx,
		`SELECT build_id, job_status, score, validation_status FROM screenshot_diffs
         WHERE build_id IN (`+placeholders+`) ORDER BY id`, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("load diffs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			buildID int64
			raw     diffRaw
		)
		if err := rows.Scan(&buildID, &raw.status, &raw.score, &raw.validation); err != nil {
			return nil, err
		}
		snapshot := buildstatus.DiffSnapshot{
			JobStatus:        jobstatus.Status(raw.status),
			ValidationStatus: raw.validation.String,
		}
		if raw.score.Valid {
			v := raw.score.Float64
			snapshot.Score = &v
		}
		diffs[buildID] = append(diffs[buildID], snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	inputs := make([]buildstatus.Input, len(ids))
	for i, id := range ids {
		build, ok := builds[id]
		if !ok {
			return nil, fmt.Errorf("build %d: %w", id, ErrNotFound)
		}
		inputs[i] = buildstatus.Input{Build: build, Diffs: diffs[id]}
	}
	return inputs, nil
}

// Stats counts builds and diffs by persisted job status.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		Builds: make(map[jobstatus.Status]int),
		Diffs:  make(map[jobstatus.Status]int),
	}
	for table, dst := range map[string]map[jobstatus.Status]int{
		"builds":           stats.Builds,
		"screenshot_diffs": stats.Diffs,
	} {
		rows, err := s.db.QueryContext(ctx, `SELECT job_status, COUNT(1) FROM `+table+` GROUP BY job_status`)
		if err != nil {
			return Stats{}, fmt.Errorf("%s stats: %w", table, err)
		}
		for rows.Next() {
			var (
				status string
				count  int
			)
			if err := rows.Scan(&status, &count); err != nil {
				rows.Close()
				return Stats{}, err
			}
			dst[jobstatus.Status(status)] = count
		}
		if err := rows.Close(); err != nil {
			return Stats{}, err
		}
	}
	return stats, nil
}
