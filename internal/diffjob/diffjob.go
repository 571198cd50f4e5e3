// Package diffjob computes one screenshot diff: it resolves both images from
// the asset store, runs the image engine, uploads the mask, and records the
// result on the diff row.
//
// Running the same diff twice overwrites the previous result with an
// identical one, so the workflow may re-dispatch freely.
package diffjob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"shotdiff/internal/imagediff"
	"shotdiff/internal/jobstatus"
	"shotdiff/internal/logging"
	"shotdiff/internal/services"
	"shotdiff/internal/store"
)

// Store is the persistence the job needs.
type Store interface {
	GetDiff(ctx context.Context, id int64) (*store.Diff, error)
	GetScreenshot(ctx context.Context, id int64) (*store.Screenshot, error)
	CompleteDiff(ctx context.Context, id int64, result store.DiffResult) error
	FailDiff(ctx context.Context, id int64, message string) error
}

// Assets resolves and stores image files by key.
type Assets interface {
	LocalPath(ctx context.Context, key string) (string, error)
	Store(ctx context.Context, localPath string) (string, error)
}

// Options configures a Job.
type Options struct {
	Engine imagediff.Options
	Policy jobstatus.Policy
	Clock  jobstatus.Clock
}

// Job runs screenshot comparisons.
type Job struct {
	store  Store
	assets Assets
	opts   Options
	logger *slog.Logger
}

// New constructs a Job.
func New(st Store, as Assets, opts Options, logger *slog.Logger) *Job {
	if opts.Clock == nil {
		opts.Clock = jobstatus.SystemClock
	}
	return &Job{
		store:  st,
		assets: as,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "diffjob"),
	}
}

// Run computes the diff identified by id, which must already be claimed
// (in progress). Failures are recorded on the row; the returned error is
// for logging. In veto mode a diff past the expiry threshold is left
// untouched, before or after computing, so it keeps reading as expired.
func (j *Job) Run(ctx context.Context, id int64) error {
	ctx = services.WithStage(services.WithDiffID(ctx, id), "diff")
	logger := logging.WithContext(ctx, j.logger)

	diff, err := j.store.GetDiff(ctx, id)
	if err != nil {
		err = services.Wrap(services.ErrTransient, "diff", "load", "", err)
		return j.recordFailure(ctx, logger, id, err)
	}
	ctx = services.WithBuildID(ctx, diff.BuildID)
	logger = logging.WithContext(ctx, j.logger)

	if j.expired(diff) {
		logging.WarnWithContext(logger, "diff expired before start", "diff_expired",
			logging.String(logging.FieldImpact, "diff not computed; it stays expired"))
		return nil
	}

	result, err := j.compute(ctx, diff)
	if err != nil {
		return j.recordFailure(ctx, logger, id, err)
	}

	if j.expired(diff) {
		logging.WarnWithContext(logger, "diff finished after expiry", "diff_expired",
			logging.String(logging.FieldImpact, "result discarded; diff stays expired"))
		return nil
	}

	if err := j.store.CompleteDiff(ctx, id, result); err != nil {
		err = services.Wrap(services.ErrTransient, "diff", "record result", "", err)
		return j.recordFailure(ctx, logger, id, err)
	}
	attrs := []logging.Attr{logging.Int("width", result.Width), logging.Int("height", result.Height)}
	if result.Score != nil {
		attrs = append(attrs, logging.Float64("score", *result.Score))
	}
	logger.Info("diff complete", logging.Args(attrs...)...)
	return nil
}

// recordFailure moves the diff to error so it does not sit in progress until
// the next restart. Cancellation is left for ResetStuckProcessing to requeue.
func (j *Job) recordFailure(ctx context.Context, logger *slog.Logger, id int64, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	logging.ErrorWithContext(logger, "diff failed", "diff_failed", logging.Error(err))
	if failErr := j.fail(ctx, id, err.Error()); failErr != nil {
		return errors.Join(err, failErr)
	}
	return err
}

func (j *Job) expired(diff *store.Diff) bool {
	return j.opts.Policy.Mode == jobstatus.ExpiryVeto && j.opts.Policy.IsStale(diff.CreatedAt, j.opts.Clock.Now())
}

func (j *Job) fail(ctx context.Context, id int64, message string) error {
	if err := j.store.FailDiff(ctx, id, message); err != nil {
		return services.Wrap(services.ErrTransient, "diff", "record failure", "", err)
	}
	return nil
}

func (j *Job) compute(ctx context.Context, diff *store.Diff) (store.DiffResult, error) {
	base, err := j.screenshot(ctx, diff.BaseScreenshotID)
	if err != nil {
		return store.DiffResult{}, err
	}
	compare, err := j.screenshot(ctx, diff.CompareScreenshotID)
	if err != nil {
		return store.DiffResult{}, err
	}
	if base == nil || compare == nil {
		// One-sided pairs are added or removed; nothing to compare.
		present := base
		if present == nil {
			present = compare
		}
		return store.DiffResult{Width: present.Width, Height: present.Height}, nil
	}

	basePath, err := j.assets.LocalPath(ctx, base.Key)
	if err != nil {
		return store.DiffResult{}, classifyAssetError("resolve base image", err)
	}
	comparePath, err := j.assets.LocalPath(ctx, compare.Key)
	if err != nil {
		return store.DiffResult{}, classifyAssetError("resolve compare image", err)
	}

	res, err := imagediff.Diff(ctx, basePath, comparePath, j.opts.Engine)
	if err != nil {
		switch {
		case errors.Is(err, imagediff.ErrImageNotFound):
			return store.DiffResult{}, services.Wrap(services.ErrNotFound, "diff", "compare", "", err)
		case errors.Is(err, imagediff.ErrImageDiffFailed):
			return store.DiffResult{}, services.Wrap(services.ErrValidation, "diff", "compare", "", err)
		default:
			return store.DiffResult{}, err
		}
	}

	score := res.Score
	out := store.DiffResult{Score: &score, Width: res.Width, Height: res.Height}
	if res.HasArtifact() {
		defer os.Remove(res.Path)
		key, err := j.assets.Store(ctx, res.Path)
		if err != nil {
			return store.DiffResult{}, services.Wrap(services.ErrTransient, "diff", "store mask", "", err)
		}
		out.ArtifactKey = key
	}
	return out, nil
}

func (j *Job) screenshot(ctx context.Context, id int64) (*store.Screenshot, error) {
	if id == 0 {
		return nil, nil
	}
	shot, err := j.store.GetScreenshot(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, services.Wrap(services.ErrNotFound, "diff", "load screenshot", fmt.Sprintf("screenshot %d", id), err)
		}
		return nil, services.Wrap(services.ErrTransient, "diff", "load screenshot", "", err)
	}
	return shot, nil
}

func classifyAssetError(operation string, err error) error {
	if errors.Is(err, services.ErrNotFound) {
		return services.Wrap(services.ErrNotFound, "diff", operation, "", imagediff.ErrImageNotFound)
	}
	return services.Wrap(services.ErrTransient, "diff", operation, "", err)
}
