package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"shotdiff/internal/logging"
	"shotdiff/internal/services"
)

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.builds == nil || m.diffs == nil {
		m.mu.Unlock()
		return errors.New("workflow jobs not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	ids := make(chan int64)
	m.wg.Add(2 + m.workers)
	m.mu.Unlock()

	go m.runBuildLane(services.WithLane(runCtx, string(laneBuild)))
	diffCtx := services.WithLane(runCtx, string(laneDiff))
	go m.runDiffDispatcher(diffCtx, ids)
	for i := 0; i < m.workers; i++ {
		go m.runDiffWorker(diffCtx, ids)
	}
	m.logger.Info("workflow started", logging.Int("diff_workers", m.workers))
	return nil
}

// Stop terminates background processing and waits for in-flight work.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped")
}

func (m *Manager) runBuildLane(ctx context.Context) {
	defer m.wg.Done()
	logger := logging.WithContext(ctx, m.logger)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		build, err := m.store.ClaimNextBuild(ctx)
		if err != nil {
			m.handleFetchError(ctx, logger, err)
			continue
		}
		if build == nil {
			m.waitForWork(ctx, laneBuild)
			continue
		}
		if err := m.processBuild(ctx, build); err != nil && errors.Is(err, context.Canceled) {
			return
		}
	}
}

// runDiffDispatcher feeds pending diff ids to the workers. It closes ids on
// shutdown so idle workers exit.
func (m *Manager) runDiffDispatcher(ctx context.Context, ids chan<- int64) {
	defer m.wg.Done()
	defer close(ids)
	logger := logging.WithContext(ctx, m.logger)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pending, err := m.store.PendingDiffIDs(ctx, m.workers*4)
		if err != nil {
			m.handleFetchError(ctx, logger, err)
			continue
		}
		if len(pending) == 0 {
			m.waitForWork(ctx, laneDiff)
			continue
		}
		for _, id := range pending {
			select {
			case <-ctx.Done():
				return
			case ids <- id:
			}
		}
	}
}

func (m *Manager) runDiffWorker(ctx context.Context, ids <-chan int64) {
	defer m.wg.Done()
	for id := range ids {
		if ctx.Err() != nil {
			return
		}
		if err := m.processDiff(ctx, id); err != nil && errors.Is(err, context.Canceled) {
			return
		}
	}
}

func (m *Manager) handleFetchError(ctx context.Context, logger *slog.Logger, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	m.setLastError(err)
	logger.Error("failed to fetch next unit of work",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(m.retryInterval):
	}
}

func (m *Manager) waitForWork(ctx context.Context, lane laneKind) {
	select {
	case <-ctx.Done():
	case <-m.wake[lane]:
	case <-time.After(m.pollInterval):
	}
}
