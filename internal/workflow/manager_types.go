package workflow

import (
	"context"

	"shotdiff/internal/store"
)

// Store is the persistence the manager polls.
type Store interface {
	ClaimNextBuild(ctx context.Context) (*store.Build, error)
	PendingDiffIDs(ctx context.Context, limit int) ([]int64, error)
	ClaimDiff(ctx context.Context, id int64) (bool, error)
	Stats(ctx context.Context) (store.Stats, error)
}

// BuildRunner plans a claimed build.
type BuildRunner interface {
	Run(ctx context.Context, build *store.Build) ([]int64, error)
}

// DiffRunner computes a claimed diff.
type DiffRunner interface {
	Run(ctx context.Context, id int64) error
}

type laneKind string

const (
	laneBuild laneKind = "build"
	laneDiff  laneKind = "diff"
)
