package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"shotdiff/internal/logging"
	"shotdiff/internal/services"
	"shotdiff/internal/store"
)

func (m *Manager) processBuild(ctx context.Context, build *store.Build) error {
	ctx = services.WithRequestID(services.WithBuildID(ctx, build.ID), uuid.NewString())
	logger := logging.WithContext(ctx, m.logger)
	start := time.Now()
	logger.Info("build job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.Int64("compare_bucket_id", build.CompareBucketID),
	)

	ids, err := m.builds.Run(ctx, build)
	m.recordOutcome(laneBuild, build.ID, err)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Warn("build job failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "job_failed"),
				logging.Bool("retryable", services.Retryable(err)),
			)
		}
		return err
	}
	logger.Info("build job completed",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.Int("diffs", len(ids)),
		logging.Duration("job_duration", time.Since(start)),
	)
	if len(ids) > 0 {
		m.Notify()
	}
	return nil
}

func (m *Manager) processDiff(ctx context.Context, id int64) error {
	claimed, err := m.store.ClaimDiff(ctx, id)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			m.setLastError(err)
			logging.WithContext(services.WithDiffID(ctx, id), m.logger).Warn("claim diff failed", logging.Error(err))
		}
		return err
	}
	if !claimed {
		return nil
	}

	ctx = services.WithRequestID(services.WithDiffID(ctx, id), uuid.NewString())
	logger := logging.WithContext(ctx, m.logger)
	start := time.Now()

	err = m.diffs.Run(ctx, id)
	m.recordOutcome(laneDiff, id, err)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Warn("diff job failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "job_failed"),
				logging.Bool("retryable", services.Retryable(err)),
			)
		}
		return err
	}
	logger.Debug("diff job completed", logging.Duration("job_duration", time.Since(start)))
	return nil
}

func (m *Manager) recordOutcome(lane laneKind, id int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch lane {
	case laneBuild:
		m.lastBuildID = id
	case laneDiff:
		m.lastDiffID = id
	}
	m.processed[lane]++
	if err != nil && !errors.Is(err, context.Canceled) {
		m.lastErr = err
	}
}
