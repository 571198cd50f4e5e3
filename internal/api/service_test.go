package api_test

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shotdiff/internal/api"
	"shotdiff/internal/assets"
	"shotdiff/internal/batch"
	"shotdiff/internal/buildstatus"
	"shotdiff/internal/jobstatus"
	"shotdiff/internal/services"
	"shotdiff/internal/store"
	"shotdiff/internal/testsupport"
)

type countingNotifier struct{ n int }

func (c *countingNotifier) Notify() { c.n++ }

type harness struct {
	svc      *api.Service
	st       *store.Store
	assets   *assets.Store
	notifier *countingNotifier
	dir      string
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	opts = append([]testsupport.ConfigOption{testsupport.WithPublicBaseURL("https://cdn.example.com/shots")}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)
	as := testsupport.MustOpenAssets(t, cfg)
	notifier := &countingNotifier{}
	svc := api.NewService(st, as, api.Options{
		Policy:       cfg.StatusPolicy(),
		BuildURLBase: "http://localhost:7488/",
		Notifier:     notifier,
	})
	return &harness{svc: svc, st: st, assets: as, notifier: notifier, dir: testsupport.BaseDir(cfg)}
}

func (h *harness) upload(t *testing.T, name string, paint testsupport.Paint) string {
	t.Helper()
	path := testsupport.WritePNG(t, filepath.Join(h.dir, "src", name), 5, 4, paint)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	resp, err := h.svc.UploadAsset(context.Background(), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("UploadAsset: %v", err)
	}
	if !strings.HasPrefix(resp.URL, "https://cdn.example.com/shots/") {
		t.Fatalf("unexpected asset URL %q", resp.URL)
	}
	return resp.Key
}

func TestSubmitReturnsBuildURLAndFillsDimensions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := h.upload(t, "home.png", testsupport.Solid(color.White))

	resp, err := h.svc.Submit(ctx, api.SubmissionRequest{
		RepositoryID: 1, Commit: "abc", Branch: "feature", Name: "default",
		Screenshots: []api.ScreenshotRef{{Key: key, Name: "home"}},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.Build.URL != "http://localhost:7488/repositories/1/builds/1" || resp.Build.ID != 1 {
		t.Fatalf("unexpected build ref %+v", resp.Build)
	}
	if h.notifier.n != 1 {
		t.Fatalf("notifier calls = %d, want 1", h.notifier.n)
	}
	byNumber, err := h.svc.DescribeBuildByNumber(ctx, 1, 1)
	if err != nil || byNumber.ID != resp.Build.ID || byNumber.URL != resp.Build.URL {
		t.Fatalf("DescribeBuildByNumber = %+v, %v", byNumber, err)
	}
	build, _ := h.st.GetBuild(ctx, resp.Build.ID)
	shots, _ := h.st.ListScreenshots(ctx, build.CompareBucketID)
	if len(shots) != 1 || shots[0].Width != 5 || shots[0].Height != 4 {
		t.Fatalf("unexpected screenshots %+v", shots)
	}
}

func TestSubmitRejectsUnknownAndDuplicateScreenshots(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := h.upload(t, "home.png", testsupport.Solid(color.White))
	base := api.SubmissionRequest{RepositoryID: 1, Commit: "abc", Branch: "feature", Name: "default"}

	tests := []struct {
		name  string
		shots []api.ScreenshotRef
	}{
		{"empty", nil},
		{"bad key", []api.ScreenshotRef{{Key: "nope", Name: "home"}}},
		{"not uploaded", []api.ScreenshotRef{{Key: strings.Repeat("ab", 32), Name: "home"}}},
		{"missing name", []api.ScreenshotRef{{Key: key}}},
		{"duplicate", []api.ScreenshotRef{{Key: key, Name: "home"}, {Key: key, Name: "home"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			req.Screenshots = tc.shots
			if _, err := h.svc.Submit(ctx, req); !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSubmitParallelShardsShareBuild(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := h.upload(t, "home.png", testsupport.Solid(color.White))
	req := api.SubmissionRequest{
		RepositoryID: 1, Commit: "abc", Branch: "feature", Name: "default",
		Parallel: true, ParallelNonce: "ci-42", ParallelTotal: 2,
		Screenshots: []api.ScreenshotRef{{Key: key, Name: "home"}},
	}
	first, err := h.svc.Submit(ctx, req)
	if err != nil {
		t.Fatalf("Submit first: %v", err)
	}

	bad := req
	bad.ParallelTotal = 3
	bad.Screenshots = []api.ScreenshotRef{{Key: key, Name: "about"}}
	_, err = h.svc.Submit(ctx, bad)
	if !errors.Is(err, batch.ErrInconsistentParallelTotal) || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected inconsistent total, got %v", err)
	}

	req.Screenshots = []api.ScreenshotRef{{Key: key, Name: "about"}}
	second, err := h.svc.Submit(ctx, req)
	if err != nil {
		t.Fatalf("Submit second: %v", err)
	}
	if first.Build != second.Build {
		t.Fatalf("shards returned different builds: %+v vs %+v", first.Build, second.Build)
	}
}

func TestDescribeBuildDerivesConclusionAndReview(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	white := h.upload(t, "white.png", testsupport.Solid(color.White))
	black := h.upload(t, "black.png", testsupport.Solid(color.Black))

	resp, err := h.svc.Submit(ctx, api.SubmissionRequest{
		RepositoryID: 1, Commit: "abc", Branch: "feature", Name: "default",
		Screenshots: []api.ScreenshotRef{{Key: white, Name: "home"}, {Key: black, Name: "about"}},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	build, err := h.svc.DescribeBuild(ctx, resp.Build.ID)
	if err != nil {
		t.Fatalf("DescribeBuild: %v", err)
	}
	if build.Status != string(jobstatus.Pending) || build.Conclusion != nil || build.ReviewStatus != nil {
		t.Fatalf("fresh build = %+v, want pending without conclusion", build)
	}

	claimed, _ := h.st.ClaimNextBuild(ctx)
	shots, _ := h.st.ListScreenshots(ctx, claimed.CompareBucketID)
	inputs := make([]store.DiffInput, len(shots))
	for i, s := range shots {
		inputs[i] = store.DiffInput{BaseScreenshotID: s.ID, CompareScreenshotID: s.ID}
	}
	ids, err := h.st.PlanBuild(ctx, claimed.ID, inputs)
	if err != nil {
		t.Fatalf("PlanBuild: %v", err)
	}
	scores := []float64{0.4, 0}
	for i, id := range ids {
		if ok, err := h.st.ClaimDiff(ctx, id); err != nil || !ok {
			t.Fatalf("ClaimDiff: %v %v", ok, err)
		}
		if err := h.st.CompleteDiff(ctx, id, store.DiffResult{Score: &scores[i], ArtifactKey: white}); err != nil {
			t.Fatalf("CompleteDiff: %v", err)
		}
	}

	build, _ = h.svc.DescribeBuild(ctx, resp.Build.ID)
	if build.Status != string(jobstatus.Complete) || build.Conclusion == nil || *build.Conclusion != string(buildstatus.ConclusionDiffDetected) {
		t.Fatalf("build = %+v, want complete with diff detected", build)
	}
	if build.ReviewStatus != nil {
		t.Fatalf("review = %v, want undecided", *build.ReviewStatus)
	}

	diffs, err := h.svc.ListDiffs(ctx, resp.Build.ID)
	if err != nil {
		t.Fatalf("ListDiffs: %v", err)
	}
	if diffs[0].Status != "changed" || diffs[0].DiffURL == "" || diffs[0].BaseURL == "" {
		t.Fatalf("first diff = %+v, want changed with URLs", diffs[0])
	}

	build, err = h.svc.SetValidation(ctx, diffs[0].ID, "accepted")
	if err != nil {
		t.Fatalf("SetValidation: %v", err)
	}
	if build.ReviewStatus == nil || *build.ReviewStatus != string(buildstatus.ReviewAccepted) {
		t.Fatalf("review = %v, want accepted", build.ReviewStatus)
	}
}

func TestAbortAndNotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := h.upload(t, "home.png", testsupport.Solid(color.White))
	resp, err := h.svc.Submit(ctx, api.SubmissionRequest{
		RepositoryID: 1, Commit: "abc", Branch: "feature", Name: "default",
		Screenshots: []api.ScreenshotRef{{Key: key, Name: "home"}},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	build, err := h.svc.Abort(ctx, resp.Build.ID)
	if err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if build.Status != string(jobstatus.Aborted) {
		t.Fatalf("status = %s, want aborted", build.Status)
	}
	if _, err := h.svc.Abort(ctx, resp.Build.ID); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict aborting twice, got %v", err)
	}
	if _, err := h.svc.DescribeBuild(ctx, 999); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := h.svc.DescribeBuildByNumber(ctx, 1, 999); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found by number, got %v", err)
	}
	if _, err := h.svc.ListDiffs(ctx, 999); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListBuildsExpiresStaleBuilds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := h.upload(t, "home.png", testsupport.Solid(color.White))
	if _, err := h.svc.Submit(ctx, api.SubmissionRequest{
		RepositoryID: 1, Commit: "abc", Branch: "feature", Name: "default",
		Screenshots: []api.ScreenshotRef{{Key: key, Name: "home"}},
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	later := api.NewService(h.st, h.assets, api.Options{
		Policy: jobstatus.Policy{Threshold: time.Minute, Mode: jobstatus.ExpiryAdvisory},
		Clock:  jobstatus.ClockFunc(func() time.Time { return time.Now().UTC().Add(time.Hour) }),
	})
	builds, err := later.ListBuilds(ctx, 1, 10)
	if err != nil {
		t.Fatalf("ListBuilds: %v", err)
	}
	if len(builds) != 1 || builds[0].Status != string(jobstatus.Expired) || builds[0].JobStatus != string(jobstatus.Pending) {
		t.Fatalf("builds = %+v, want one expired", builds)
	}
	if builds[0].URL != "/repositories/1/builds/1" {
		t.Fatalf("url = %q", builds[0].URL)
	}
}
