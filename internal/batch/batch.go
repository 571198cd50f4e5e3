// Package batch reconciles independent upload shards that share a parallel
// nonce into one logical build.
//
// Apply is a pure transition over the shard counters stored on a build; the
// store runs it inside a transaction serialised per (repository, nonce) so
// exactly one shard flips the compare bucket to complete.
package batch

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInconsistentParallelTotal is returned when a shard declares a batch
	// total that differs from the one already recorded for its nonce.
	ErrInconsistentParallelTotal = errors.New("`parallelTotal` must be the same on every batch")
	// ErrBatchCountExceeded is returned when more shards arrive than declared.
	ErrBatchCountExceeded = errors.New("more batches received than `parallelTotal`")
	// ErrMissingNonce is returned for a parallel shard without a nonce.
	ErrMissingNonce = errors.New("`parallelNonce` is required when `parallel` is true")
	// ErrInvalidTotal is returned for a non-positive declared total.
	ErrInvalidTotal = errors.New("`parallelTotal` must be a positive integer")
)

// State is the shard bookkeeping carried by a build and its compare bucket.
type State struct {
	// Exists is false before the first shard for a nonce has landed.
	Exists     bool
	BatchCount int
	// TotalBatch is zero while no shard has declared the total.
	TotalBatch int
	Complete   bool
}

// Submission describes the shard metadata of one upload.
type Submission struct {
	Parallel      bool
	ParallelNonce string
	// ParallelTotal is zero when the shard does not declare the total.
	ParallelTotal int
}

// Validate checks the shard metadata on its own.
func (s Submission) Validate() error {
	if !s.Parallel {
		return nil
	}
	if strings.TrimSpace(s.ParallelNonce) == "" {
		return ErrMissingNonce
	}
	if s.ParallelTotal < 0 {
		return ErrInvalidTotal
	}
	return nil
}

// Apply folds one shard into the recorded state. On error the previous state
// is returned unchanged.
func Apply(prev State, sub Submission) (State, error) {
	if err := sub.Validate(); err != nil {
		return prev, err
	}
	if !sub.Parallel {
		return State{Exists: true, BatchCount: 1, TotalBatch: 1, Complete: true}, nil
	}

	next := prev
	if !prev.Exists {
		next = State{Exists: true}
	}
	if sub.ParallelTotal > 0 {
		if prev.TotalBatch > 0 && prev.TotalBatch != sub.ParallelTotal {
			return prev, ErrInconsistentParallelTotal
		}
		next.TotalBatch = sub.ParallelTotal
	}
	next.BatchCount++
	if next.TotalBatch > 0 && next.BatchCount > next.TotalBatch {
		return prev, fmt.Errorf("%w: %d of %d", ErrBatchCountExceeded, next.BatchCount, next.TotalBatch)
	}
	next.Complete = next.TotalBatch > 0 && next.BatchCount == next.TotalBatch
	return next, nil
}
