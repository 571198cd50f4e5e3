package jobstatus_test

import (
	"errors"
	"testing"
	"time"

	"shotdiff/internal/jobstatus"
)

func TestTransitions(t *testing.T) {
	cases := []struct {
		from, to jobstatus.Status
		ok       bool
	}{
		{jobstatus.Pending, jobstatus.Progress, true},
		{jobstatus.Progress, jobstatus.Complete, true},
		{jobstatus.Pending, jobstatus.Error, true},
		{jobstatus.Progress, jobstatus.Error, true},
		{jobstatus.Pending, jobstatus.Aborted, true},
		{jobstatus.Progress, jobstatus.Aborted, true},
		{jobstatus.Pending, jobstatus.Complete, false},
		{jobstatus.Complete, jobstatus.Progress, false},
		{jobstatus.Error, jobstatus.Pending, false},
		{jobstatus.Aborted, jobstatus.Progress, false},
		{jobstatus.Complete, jobstatus.Aborted, false},
	}
	for _, tc := range cases {
		got, err := jobstatus.Transition(tc.from, tc.to)
		if tc.ok {
			if err != nil || got != tc.to {
				t.Fatalf("%s -> %s: expected success, got %s, %v", tc.from, tc.to, got, err)
			}
			continue
		}
		if !errors.Is(err, jobstatus.ErrInvalidTransition) {
			t.Fatalf("%s -> %s: expected ErrInvalidTransition, got %v", tc.from, tc.to, err)
		}
		if got != tc.from {
			t.Fatalf("%s -> %s: expected status unchanged, got %s", tc.from, tc.to, got)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if got, ok := jobstatus.ParseStatus("  Progress "); !ok || got != jobstatus.Progress {
		t.Fatalf("expected progress, got %q %v", got, ok)
	}
	if _, ok := jobstatus.ParseStatus("running"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
	if _, ok := jobstatus.ParseStatus(""); ok {
		t.Fatal("expected empty status to be rejected")
	}
}

func TestEffectiveAppliesExpiryToActiveStatuses(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-3 * time.Hour)
	recent := now.Add(-10 * time.Minute)
	policy := jobstatus.Policy{Threshold: 2 * time.Hour}

	cases := []struct {
		status    jobstatus.Status
		createdAt time.Time
		want      jobstatus.Status
	}{
		{jobstatus.Pending, old, jobstatus.Expired},
		{jobstatus.Progress, old, jobstatus.Expired},
		{jobstatus.Pending, recent, jobstatus.Pending},
		{jobstatus.Progress, recent, jobstatus.Progress},
		{jobstatus.Complete, old, jobstatus.Complete},
		{jobstatus.Error, old, jobstatus.Error},
		{jobstatus.Aborted, old, jobstatus.Aborted},
		{jobstatus.Pending, time.Time{}, jobstatus.Pending},
	}
	for _, tc := range cases {
		if got := jobstatus.Effective(tc.status, tc.createdAt, now, policy); got != tc.want {
			t.Fatalf("Effective(%s, %s): got %s want %s", tc.status, tc.createdAt, got, tc.want)
		}
	}
}

func TestPolicyThresholdIsConfigurable(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	createdAt := now.Add(-30 * time.Minute)

	short := jobstatus.Policy{Threshold: 15 * time.Minute}
	if got := jobstatus.Effective(jobstatus.Pending, createdAt, now, short); got != jobstatus.Expired {
		t.Fatalf("expected expired with 15m threshold, got %s", got)
	}
	if got := jobstatus.Effective(jobstatus.Pending, createdAt, now, jobstatus.Policy{}); got != jobstatus.Pending {
		t.Fatalf("expected default threshold to keep pending, got %s", got)
	}
}

func TestParseExpiryMode(t *testing.T) {
	if mode, err := jobstatus.ParseExpiryMode(""); err != nil || mode != jobstatus.ExpiryAdvisory {
		t.Fatalf("expected advisory default, got %q %v", mode, err)
	}
	if mode, err := jobstatus.ParseExpiryMode("VETO"); err != nil || mode != jobstatus.ExpiryVeto {
		t.Fatalf("expected veto, got %q %v", mode, err)
	}
	if _, err := jobstatus.ParseExpiryMode("sticky"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestValidateBucketPair(t *testing.T) {
	if err := jobstatus.ValidateBucketPair(1, 1); !errors.Is(err, jobstatus.ErrInvalidBucketPair) {
		t.Fatalf("expected ErrInvalidBucketPair, got %v", err)
	}
	if err := jobstatus.ValidateBucketPair(1, 2); err != nil {
		t.Fatalf("expected distinct buckets to pass, got %v", err)
	}
	if err := jobstatus.ValidateBucketPair(0, 2); err != nil {
		t.Fatalf("expected unresolved base to pass, got %v", err)
	}
}
