package store

import (
	"context"
	"fmt"

	"shotdiff/internal/jobstatus"
)

// ResetStuckProcessing returns builds and diffs left in progress by a crashed
// daemon to pending so the workflow picks them up again.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	var total int64
	for _, table := range []string{"builds", "screenshot_diffs"} {
		res, err := s.execWithRetry(ctx,
			`UPDATE `+table+` SET job_status = ?, updated_at = ? WHERE job_status = ?`,
			jobstatus.Pending, s.timestamp(), jobstatus.Progress,
		)
		if err != nil {
			return total, fmt.Errorf("reset stuck %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// CheckIntegrity runs SQLite's integrity check and returns its verdict.
func (s *Store) CheckIntegrity(ctx context.Context) (string, error) {
	var result string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return "", fmt.Errorf("integrity check: %w", err)
	}
	return result, nil
}
