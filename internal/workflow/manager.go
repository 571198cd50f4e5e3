package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"shotdiff/internal/config"
	"shotdiff/internal/logging"
)

// Manager coordinates the build and diff lanes.
type Manager struct {
	store         Store
	builds        BuildRunner
	diffs         DiffRunner
	logger        *slog.Logger
	pollInterval  time.Duration
	retryInterval time.Duration
	workers       int

	wake map[laneKind]chan struct{}

	mu          sync.RWMutex
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	lastErr     error
	lastBuildID int64
	lastDiffID  int64
	processed   map[laneKind]int
}

// NewManager constructs a workflow manager using the intervals and worker
// count from cfg.
func NewManager(cfg *config.Config, st Store, builds BuildRunner, diffs DiffRunner, logger *slog.Logger) *Manager {
	workers := cfg.Workflow.DiffWorkers
	if workers <= 0 {
		workers = 1
	}
	return &Manager{
		store:         st,
		builds:        builds,
		diffs:         diffs,
		logger:        logging.NewComponentLogger(logger, "workflow"),
		pollInterval:  cfg.QueuePollInterval(),
		retryInterval: cfg.ErrorRetryInterval(),
		workers:       workers,
		wake: map[laneKind]chan struct{}{
			laneBuild: make(chan struct{}, 1),
			laneDiff:  make(chan struct{}, 1),
		},
		processed: make(map[laneKind]int),
	}
}

// Notify wakes idle lanes so new work is picked up before the next poll.
func (m *Manager) Notify() {
	for _, ch := range m.wake {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
