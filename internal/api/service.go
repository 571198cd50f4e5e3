package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"shotdiff/internal/assets"
	"shotdiff/internal/batch"
	"shotdiff/internal/buildstatus"
	"shotdiff/internal/imagediff"
	"shotdiff/internal/jobstatus"
	"shotdiff/internal/services"
	"shotdiff/internal/store"
)

// Store abstracts the persistence the service needs.
type Store interface {
	SubmitBatch(ctx context.Context, sub store.Submission) (*store.Build, error)
	GetBuild(ctx context.Context, id int64) (*store.Build, error)
	GetBuildByNumber(ctx context.Context, repositoryID, number int64) (*store.Build, error)
	ListBuilds(ctx context.Context, repositoryID int64, limit int) ([]store.Build, error)
	BuildInputs(ctx context.Context, ids []int64) ([]buildstatus.Input, error)
	ListDiffs(ctx context.Context, buildID int64) ([]store.DiffView, error)
	GetDiff(ctx context.Context, id int64) (*store.Diff, error)
	SetValidationStatus(ctx context.Context, id int64, value string) error
	AbortBuild(ctx context.Context, id int64) error
}

// Assets abstracts the asset store.
type Assets interface {
	URLResolver
	LocalPath(ctx context.Context, key string) (string, error)
	StoreReader(ctx context.Context, r io.Reader) (string, error)
}

// Notifier is told when new work is queued.
type Notifier interface {
	Notify()
}

// Options configures a Service.
type Options struct {
	Policy jobstatus.Policy
	Clock  jobstatus.Clock
	// BuildURLBase prefixes build URLs, which end in
	// "/repositories/{repositoryID}/builds/{number}".
	BuildURLBase string
	Notifier     Notifier
}

// Service exposes submission and read operations returning API DTOs.
type Service struct {
	store  Store
	assets Assets
	opts   Options
}

// NewService constructs a Service.
func NewService(st Store, as Assets, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = jobstatus.SystemClock
	}
	opts.BuildURLBase = strings.TrimRight(opts.BuildURLBase, "/")
	return &Service{store: st, assets: as, opts: opts}
}

// BuildURL returns the URL clients use to view build. It is keyed by the
// per-repository build number rather than the global id.
func (s *Service) BuildURL(build *store.Build) string {
	return fmt.Sprintf("%s/repositories/%d/builds/%d", s.opts.BuildURLBase, build.RepositoryID, build.Number)
}

// UploadAsset stores an image body and returns its key.
func (s *Service) UploadAsset(ctx context.Context, body io.Reader) (AssetResponse, error) {
	key, err := s.assets.StoreReader(ctx, body)
	if err != nil {
		return AssetResponse{}, err
	}
	path, err := s.assets.LocalPath(ctx, key)
	if err != nil {
		return AssetResponse{}, err
	}
	if _, _, err := imagediff.Dimensions(path); err != nil {
		return AssetResponse{}, services.Wrap(services.ErrValidation, "api", "upload asset", "body is not a supported image", err)
	}
	resp := AssetResponse{Key: key}
	if url, ok := s.assets.PublicURL(key); ok {
		resp.URL = url
	}
	return resp, nil
}

// Submit records one shard of screenshots. Every shard of a parallel batch
// returns the same build.
func (s *Service) Submit(ctx context.Context, req SubmissionRequest) (SubmissionResponse, error) {
	if len(req.Screenshots) == 0 {
		return SubmissionResponse{}, services.Wrap(services.ErrValidation, "api", "submit", "at least one screenshot is required", nil)
	}
	shots := make([]store.ScreenshotInput, 0, len(req.Screenshots))
	seen := make(map[string]struct{}, len(req.Screenshots))
	for _, ref := range req.Screenshots {
		shot, err := s.screenshotInput(ctx, ref)
		if err != nil {
			return SubmissionResponse{}, err
		}
		if _, dup := seen[shot.Name]; dup {
			return SubmissionResponse{}, services.Wrap(services.ErrValidation, "api", "submit", fmt.Sprintf("duplicate screenshot name %q", shot.Name), nil)
		}
		seen[shot.Name] = struct{}{}
		shots = append(shots, shot)
	}

	build, err := s.store.SubmitBatch(ctx, store.Submission{
		RepositoryID: req.RepositoryID,
		Name:         req.Name,
		Branch:       req.Branch,
		Commit:       req.Commit,
		Number:       req.Number,
		Screenshots:  shots,
		Batch: batch.Submission{
			Parallel:      req.Parallel,
			ParallelNonce: req.ParallelNonce,
			ParallelTotal: req.ParallelTotal,
		},
	})
	if err != nil {
		return SubmissionResponse{}, err
	}
	if s.opts.Notifier != nil {
		s.opts.Notifier.Notify()
	}
	return SubmissionResponse{Build: BuildRef{ID: build.ID, URL: s.BuildURL(build)}}, nil
}

func (s *Service) screenshotInput(ctx context.Context, ref ScreenshotRef) (store.ScreenshotInput, error) {
	name := strings.TrimSpace(ref.Name)
	if name == "" {
		return store.ScreenshotInput{}, services.Wrap(services.ErrValidation, "api", "submit", "screenshot name is required", nil)
	}
	key := strings.TrimSpace(ref.Key)
	if !assets.ValidKey(key) {
		return store.ScreenshotInput{}, services.Wrap(services.ErrValidation, "api", "submit", fmt.Sprintf("invalid screenshot key %q", ref.Key), nil)
	}
	path, err := s.assets.LocalPath(ctx, key)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return store.ScreenshotInput{}, services.Wrap(services.ErrValidation, "api", "submit", fmt.Sprintf("screenshot %q was not uploaded", name), err)
		}
		return store.ScreenshotInput{}, err
	}
	shot := store.ScreenshotInput{Name: name, Key: key, Width: ref.Width, Height: ref.Height}
	if shot.Width <= 0 || shot.Height <= 0 {
		w, h, err := imagediff.Dimensions(path)
		if err != nil {
			return store.ScreenshotInput{}, services.Wrap(services.ErrValidation, "api", "submit", fmt.Sprintf("screenshot %q is not a supported image", name), err)
		}
		shot.Width, shot.Height = w, h
	}
	return shot, nil
}

// ListBuilds returns the newest builds of a repository with derived state.
func (s *Service) ListBuilds(ctx context.Context, repositoryID int64, limit int) ([]Build, error) {
	builds, err := s.store.ListBuilds(ctx, repositoryID, limit)
	if err != nil {
		return nil, err
	}
	return s.describe(ctx, builds)
}

// DescribeBuild returns one build with derived state.
func (s *Service) DescribeBuild(ctx context.Context, id int64) (*Build, error) {
	build, err := s.store.GetBuild(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	out, err := s.describe(ctx, []store.Build{*build})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// DescribeBuildByNumber returns a repository's build, addressed by number,
// with derived state.
func (s *Service) DescribeBuildByNumber(ctx context.Context, repositoryID, number int64) (*Build, error) {
	build, err := s.store.GetBuildByNumber(ctx, repositoryID, number)
	if err != nil {
		return nil, notFound(err)
	}
	out, err := s.describe(ctx, []store.Build{*build})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

func (s *Service) describe(ctx context.Context, builds []store.Build) ([]Build, error) {
	if len(builds) == 0 {
		return []Build{}, nil
	}
	ids := make([]int64, len(builds))
	for i, b := range builds {
		ids[i] = b.ID
	}
	inputs, err := s.store.BuildInputs(ctx, ids)
	if err != nil {
		return nil, notFound(err)
	}
	summaries := buildstatus.Evaluate(inputs, s.opts.Clock.Now(), s.opts.Policy)
	out := make([]Build, len(builds))
	for i := range builds {
		out[i] = FromBuild(&builds[i], summaries[i], s.BuildURL(&builds[i]))
	}
	return out, nil
}

// ListDiffs returns a build's diffs in review order.
func (s *Service) ListDiffs(ctx context.Context, buildID int64) ([]Diff, error) {
	if _, err := s.store.GetBuild(ctx, buildID); err != nil {
		return nil, notFound(err)
	}
	views, err := s.store.ListDiffs(ctx, buildID)
	if err != nil {
		return nil, err
	}
	now := s.opts.Clock.Now()
	out := make([]Diff, len(views))
	for i, view := range views {
		out[i] = FromDiffView(view, s.assets, now, s.opts.Policy)
	}
	return out, nil
}

// SetValidation records a reviewer decision and returns the build's
// refreshed state.
func (s *Service) SetValidation(ctx context.Context, diffID int64, status string) (*Build, error) {
	if err := s.store.SetValidationStatus(ctx, diffID, status); err != nil {
		return nil, notFound(err)
	}
	diff, err := s.store.GetDiff(ctx, diffID)
	if err != nil {
		return nil, notFound(err)
	}
	return s.DescribeBuild(ctx, diff.BuildID)
}

// Abort stops a build and its unstarted diffs.
func (s *Service) Abort(ctx context.Context, id int64) (*Build, error) {
	if err := s.store.AbortBuild(ctx, id); err != nil {
		if errors.Is(err, jobstatus.ErrInvalidTransition) {
			return nil, services.Wrap(services.ErrConflict, "api", "abort build", "build already finished", err)
		}
		return nil, notFound(err)
	}
	return s.DescribeBuild(ctx, id)
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) && !errors.Is(err, services.ErrNotFound) {
		return services.Wrap(services.ErrNotFound, "api", "lookup", "", err)
	}
	return err
}
