package buildstatus_test

import (
	"testing"

	"shotdiff/internal/buildstatus"
	"shotdiff/internal/jobstatus"
)

func score(v float64) *float64 { return &v }

func diff(s *float64, validation string) buildstatus.DiffSnapshot {
	return buildstatus.DiffSnapshot{JobStatus: jobstatus.Complete, Score: s, ValidationStatus: validation}
}

func TestConclusionsNullForUncompletedBuilds(t *testing.T) {
	inputs := []buildstatus.Input{
		{Build: fresh(jobstatus.Pending)},
		{Build: fresh(jobstatus.Progress)},
		{Build: fresh(jobstatus.Error)},
		{Build: fresh(jobstatus.Aborted)},
	}
	statuses := buildstatus.Statuses(inputs, testNow, testPolicy)
	conclusions := buildstatus.Conclusions(inputs, statuses)
	for i, c := range conclusions {
		if c != buildstatus.ConclusionNone {
			t.Fatalf("index %d: expected no conclusion, got %q", i, c)
		}
	}
}

func TestConclusions(t *testing.T) {
	cases := []struct {
		name  string
		diffs []buildstatus.DiffSnapshot
		want  buildstatus.Conclusion
	}{
		{"empty build is stable", nil, buildstatus.ConclusionStable},
		{"null scores are stable", []buildstatus.DiffSnapshot{diff(nil, ""), diff(nil, "")}, buildstatus.ConclusionStable},
		{"zero scores are stable", []buildstatus.DiffSnapshot{diff(score(0), ""), diff(nil, "")}, buildstatus.ConclusionStable},
		{"positive score detects diff", []buildstatus.DiffSnapshot{diff(nil, ""), diff(score(1.3), "")}, buildstatus.ConclusionDiffDetected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inputs := []buildstatus.Input{{Build: fresh(jobstatus.Complete), Diffs: tc.diffs}}
			statuses := buildstatus.Statuses(inputs, testNow, testPolicy)
			got := buildstatus.Conclusions(inputs, statuses)
			if got[0] != tc.want {
				t.Fatalf("got %q want %q", got[0], tc.want)
			}
		})
	}
}

func TestReviewStatuses(t *testing.T) {
	cases := []struct {
		name  string
		build buildstatus.BuildSnapshot
		diffs []buildstatus.DiffSnapshot
		want  buildstatus.ReviewStatus
	}{
		{"uncompleted build", fresh(jobstatus.Pending), []buildstatus.DiffSnapshot{diff(score(1), "accepted")}, buildstatus.ReviewNone},
		{"stable build", fresh(jobstatus.Complete), []buildstatus.DiffSnapshot{diff(nil, "accepted"), diff(nil, "")}, buildstatus.ReviewNone},
		{"all accepted", fresh(jobstatus.Complete), []buildstatus.DiffSnapshot{diff(score(1.3), "accepted"), diff(score(0.4), "accepted")}, buildstatus.ReviewAccepted},
		{"one rejected", fresh(jobstatus.Complete), []buildstatus.DiffSnapshot{diff(score(1.3), "accepted"), diff(score(0.4), "rejected")}, buildstatus.ReviewRejected},
		{"one undecided", fresh(jobstatus.Complete), []buildstatus.DiffSnapshot{diff(score(1.3), "accepted"), diff(score(0.4), "")}, buildstatus.ReviewNone},
		{"one unknown", fresh(jobstatus.Complete), []buildstatus.DiffSnapshot{diff(score(1.3), "unknown"), diff(score(0.4), "accepted")}, buildstatus.ReviewNone},
		{"unchanged rows are ignored", fresh(jobstatus.Complete), []buildstatus.DiffSnapshot{diff(score(0.2), "accepted"), diff(score(0), "rejected"), diff(nil, "")}, buildstatus.ReviewAccepted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inputs := []buildstatus.Input{{Build: tc.build, Diffs: tc.diffs}}
			statuses := buildstatus.Statuses(inputs, testNow, testPolicy)
			conclusions := buildstatus.Conclusions(inputs, statuses)
			got := buildstatus.ReviewStatuses(inputs, conclusions)
			if got[0] != tc.want {
				t.Fatalf("got %q want %q", got[0], tc.want)
			}
		})
	}
}

func TestEvaluatePreservesOrder(t *testing.T) {
	inputs := []buildstatus.Input{
		{Build: fresh(jobstatus.Complete), Diffs: []buildstatus.DiffSnapshot{diff(score(0.5), "rejected")}},
		{Build: fresh(jobstatus.Pending)},
		{Build: fresh(jobstatus.Complete)},
		{Build: stale(jobstatus.Progress)},
	}
	got := buildstatus.Evaluate(inputs, testNow, testPolicy)
	want := []buildstatus.Summary{
		{Status: jobstatus.Complete, Conclusion: buildstatus.ConclusionDiffDetected, ReviewStatus: buildstatus.ReviewRejected},
		{Status: jobstatus.Pending},
		{Status: jobstatus.Complete, Conclusion: buildstatus.ConclusionStable},
		{Status: jobstatus.Expired},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %+v want %+v", i, got[i], want[i])
		}
	}
}
