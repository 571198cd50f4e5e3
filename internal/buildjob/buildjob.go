// Package buildjob plans a claimed build: it resolves the base bucket when
// the submitter did not name one, pairs base and compare screenshots by
// name, and records one pending diff per pair.
package buildjob

import (
	"context"
	"log/slog"
	"sort"

	"shotdiff/internal/jobstatus"
	"shotdiff/internal/logging"
	"shotdiff/internal/services"
	"shotdiff/internal/store"
)

// Store is the persistence the job needs.
type Store interface {
	GetBucket(ctx context.Context, id int64) (*store.Bucket, error)
	LatestCompleteBucket(ctx context.Context, repositoryID int64, name, branch string, excludeID int64) (*store.Bucket, error)
	PatchBuild(ctx context.Context, id int64, patch store.BuildPatch) (*store.Build, error)
	ListScreenshots(ctx context.Context, bucketID int64) ([]store.Screenshot, error)
	PlanBuild(ctx context.Context, buildID int64, inputs []store.DiffInput) ([]int64, error)
	TransitionBuild(ctx context.Context, id int64, to jobstatus.Status, message string) error
}

// Options configures a Job.
type Options struct {
	// ReferenceBranch is where base buckets are looked up.
	ReferenceBranch string
	Policy          jobstatus.Policy
	Clock           jobstatus.Clock
}

// Job plans builds.
type Job struct {
	store  Store
	opts   Options
	logger *slog.Logger
}

// New constructs a Job.
func New(st Store, opts Options, logger *slog.Logger) *Job {
	if opts.Clock == nil {
		opts.Clock = jobstatus.SystemClock
	}
	return &Job{store: st, opts: opts, logger: logging.NewComponentLogger(logger, "buildjob")}
}

// Run plans build, which must already be claimed. It returns the ids of the
// diffs created for it. In veto mode a build past the expiry threshold is
// left untouched so it keeps reading as expired.
func (j *Job) Run(ctx context.Context, build *store.Build) ([]int64, error) {
	ctx = services.WithStage(services.WithBuildID(ctx, build.ID), "build")
	logger := logging.WithContext(ctx, j.logger)

	if j.opts.Policy.Mode == jobstatus.ExpiryVeto && j.opts.Policy.IsStale(build.CreatedAt, j.opts.Clock.Now()) {
		logging.WarnWithContext(logger, "build expired before start", "build_expired",
			logging.String(logging.FieldImpact, "build not planned; it stays expired"))
		return nil, nil
	}

	ids, err := j.plan(ctx, build, logger)
	if err != nil {
		logging.ErrorWithContext(logger, "build planning failed", "build_failed", logging.Error(err))
		if failErr := j.fail(ctx, build.ID, err.Error()); failErr != nil {
			logger.Warn("failed to record build failure", logging.Error(failErr))
		}
		return nil, err
	}
	logger.Info("build planned", logging.Int("diffs", len(ids)))
	return ids, nil
}

func (j *Job) plan(ctx context.Context, build *store.Build, logger *slog.Logger) ([]int64, error) {
	compare, err := j.store.GetBucket(ctx, build.CompareBucketID)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "build", "load compare bucket", "", err)
	}

	baseID := build.BaseBucketID
	if baseID == 0 {
		base, err := j.store.LatestCompleteBucket(ctx, build.RepositoryID, compare.Name, j.opts.ReferenceBranch, compare.ID)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "build", "resolve base bucket", "", err)
		}
		if base != nil {
			baseID = base.ID
			if _, err := j.store.PatchBuild(ctx, build.ID, store.BuildPatch{BaseBucketID: &baseID}); err != nil {
				return nil, services.Wrap(services.ErrTransient, "build", "record base bucket", "", err)
			}
			logger.Info("resolved base bucket",
				logging.Int64("base_bucket_id", baseID),
				logging.String("branch", base.Branch),
				logging.String("commit", base.Commit),
			)
		} else {
			logger.Info("no base bucket found; every screenshot is new",
				logging.String("branch", j.opts.ReferenceBranch))
		}
	}

	compareShots, err := j.store.ListScreenshots(ctx, compare.ID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "build", "list compare screenshots", "", err)
	}
	var baseShots []store.Screenshot
	if baseID != 0 {
		baseShots, err = j.store.ListScreenshots(ctx, baseID)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "build", "list base screenshots", "", err)
		}
	}

	ids, err := j.store.PlanBuild(ctx, build.ID, Pair(baseShots, compareShots))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "build", "create diffs", "", err)
	}
	return ids, nil
}

func (j *Job) fail(ctx context.Context, id int64, message string) error {
	if err := j.store.TransitionBuild(ctx, id, jobstatus.Error, message); err != nil {
		return services.Wrap(services.ErrTransient, "build", "record failure", "", err)
	}
	return nil
}

// Pair matches screenshots by name. Compare screenshots without a base
// counterpart are added, base screenshots missing from compare are removed.
// The result is ordered by name.
func Pair(base, compare []store.Screenshot) []store.DiffInput {
	type pair struct {
		name string
		in   store.DiffInput
	}
	byName := make(map[string]*pair, len(base)+len(compare))
	for _, shot := range base {
		byName[shot.Name] = &pair{name: shot.Name, in: store.DiffInput{BaseScreenshotID: shot.ID}}
	}
	for _, shot := range compare {
		if p, ok := byName[shot.Name]; ok {
			p.in.CompareScreenshotID = shot.ID
			continue
		}
		byName[shot.Name] = &pair{name: shot.Name, in: store.DiffInput{CompareScreenshotID: shot.ID}}
	}
	pairs := make([]*pair, 0, len(byName))
	for _, p := range byName {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(a, b int) bool { return pairs[a].name < pairs[b].name })
	out := make([]store.DiffInput, len(pairs))
	for i, p := range pairs {
		out[i] = p.in
	}
	return out
}
