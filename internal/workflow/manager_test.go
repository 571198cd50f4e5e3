package workflow_test

import (
	"context"
	"errors"
	"image/color"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"shotdiff/internal/batch"
	"shotdiff/internal/buildjob"
	"shotdiff/internal/diffjob"
	"shotdiff/internal/imagediff"
	"shotdiff/internal/jobstatus"
	"shotdiff/internal/logging"
	"shotdiff/internal/store"
	"shotdiff/internal/testsupport"
	"shotdiff/internal/workflow"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestManagerProcessesBuildsAndDiffs(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDiffWorkers(3))
	st := testsupport.MustOpenStore(t, cfg)
	as := testsupport.MustOpenAssets(t, cfg)
	dir := testsupport.BaseDir(cfg)

	black := testsupport.Solid(color.NRGBA{A: 255})
	white := testsupport.Solid(color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	baseHome := testsupport.MustStoreAsset(t, as, testsupport.WritePNG(t, filepath.Join(dir, "base-home.png"), 6, 6, black))
	cmpHome := testsupport.MustStoreAsset(t, as, testsupport.WritePNG(t, filepath.Join(dir, "cmp-home.png"), 6, 6, white))

	testsupport.MustSubmit(t, st, store.Submission{
		RepositoryID: 1, Name: "default", Branch: "main", Commit: "aaa",
		Screenshots: []store.ScreenshotInput{{Name: "home", Key: baseHome}, {Name: "about", Key: baseHome}},
	})
	build := testsupport.MustSubmit(t, st, store.Submission{
		RepositoryID: 1, Name: "default", Branch: "feature", Commit: "bbb",
		Screenshots: []store.ScreenshotInput{{Name: "home", Key: cmpHome}, {Name: "about", Key: baseHome}, {Name: "signup", Key: cmpHome}},
	})

	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, st,
		buildjob.New(st, buildjob.Options{ReferenceBranch: cfg.Diff.ReferenceBranch, Policy: cfg.StatusPolicy()}, logger),
		diffjob.New(st, as, diffjob.Options{Policy: cfg.StatusPolicy()}, logger),
		logger,
	)
	ctx := context.Background()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)
	if err := mgr.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}
	mgr.Notify()

	waitFor(t, 10*time.Second, func() bool {
		views, err := st.ListDiffs(ctx, build.ID)
		if err != nil || len(views) != 3 {
			return false
		}
		for _, v := range views {
			if v.JobStatus != jobstatus.Complete {
				return false
			}
		}
		return true
	})

	views, _ := st.ListDiffs(ctx, build.ID)
	byName := map[string]store.DiffView{}
	for _, v := range views {
		byName[v.Name()] = v
	}
	if home := byName["home"]; home.Score == nil || *home.Score != imagediff.MaxPixelScore || home.ArtifactKey == "" {
		t.Fatalf("home diff = %+v, want full change with mask", home)
	}
	if about := byName["about"]; about.Score == nil || *about.Score != 0 {
		t.Fatalf("about diff = %+v, want unchanged", about)
	}
	if signup := byName["signup"]; signup.Score != nil || signup.BaseScreenshotID != 0 {
		t.Fatalf("signup diff = %+v, want added", signup)
	}

	summary := mgr.Status(ctx)
	if !summary.Running || summary.DiffWorkers != 3 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.BuildStats[jobstatus.Complete] != 2 {
		t.Fatalf("complete builds = %d, want 2", summary.BuildStats[jobstatus.Complete])
	}
}

func TestManagerWaitsForParallelBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	shard := store.Submission{
		RepositoryID: 1, Name: "default", Branch: "feature", Commit: "ccc",
		Screenshots: []store.ScreenshotInput{{Name: "home", Key: "0000000000000000000000000000000000000000000000000000000000000001"}},
		Batch:       batch.Submission{Parallel: true, ParallelNonce: "run-1", ParallelTotal: 2},
	}
	build := testsupport.MustSubmit(t, st, shard)

	runner := &recordingBuilds{}
	mgr := workflow.NewManager(cfg, st, runner, noopDiffs{}, nil)
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	time.Sleep(200 * time.Millisecond)
	if runner.count() != 0 {
		t.Fatal("build planned before its batch was complete")
	}

	shard.Screenshots = []store.ScreenshotInput{{Name: "about", Key: shard.Screenshots[0].Key}}
	testsupport.MustSubmit(t, st, shard)
	mgr.Notify()
	waitFor(t, 5*time.Second, func() bool { return runner.count() == 1 })
	if got := runner.ids(); got[0] != build.ID {
		t.Fatalf("planned build %d, want %d", got[0], build.ID)
	}
}

func TestManagerRecordsLastError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.MustSubmit(t, st, store.Submission{
		RepositoryID: 1, Name: "default", Branch: "feature", Commit: "ddd",
		Screenshots: []store.ScreenshotInput{{Name: "home", Key: "0000000000000000000000000000000000000000000000000000000000000001"}},
	})

	runner := &recordingBuilds{err: errors.New("boom")}
	mgr := workflow.NewManager(cfg, st, runner, noopDiffs{}, nil)
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)
	waitFor(t, 5*time.Second, func() bool { return mgr.Status(ctx).LastError != "" })
	if summary := mgr.Status(ctx); summary.BuildsHandled != 1 || summary.LastError != "boom" {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

type recordingBuilds struct {
	mu    sync.Mutex
	built []int64
	err   error
}

func (r *recordingBuilds) Run(_ context.Context, build *store.Build) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.built = append(r.built, build.ID)
	return nil, r.err
}

func (r *recordingBuilds) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.built)
}

func (r *recordingBuilds) ids() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.built...)
}

type noopDiffs struct{}

func (noopDiffs) Run(context.Context, int64) error { return nil }
