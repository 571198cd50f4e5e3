package workflow

import (
	"context"

	"shotdiff/internal/jobstatus"
	"shotdiff/internal/logging"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running       bool
	DiffWorkers   int
	LastError     string
	LastBuildID   int64
	LastDiffID    int64
	BuildsHandled int
	DiffsHandled  int
	BuildStats    map[jobstatus.Status]int
	DiffStats     map[jobstatus.Status]int
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:       m.running,
		DiffWorkers:   m.workers,
		LastBuildID:   m.lastBuildID,
		LastDiffID:    m.lastDiffID,
		BuildsHandled: m.processed[laneBuild],
		DiffsHandled:  m.processed[laneDiff],
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
		return summary
	}
	summary.BuildStats = stats.Builds
	summary.DiffStats = stats.Diffs
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
